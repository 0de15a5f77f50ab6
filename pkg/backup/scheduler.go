package backup

import (
	"context"
	"sync"
	"time"

	logger "github.com/rs/zerolog/log"

	"github.com/pkg/errors"
)

var log = logger.With().Str("component", "backup").Logger()

// Scheduler executes backups at a regular interval.
type Scheduler struct {
	NotificationCh chan bool

	backuperOptions BackuperOptions
	notify          bool
	tickerFrequency time.Duration

	// control
	close     chan struct{}
	closeOnce sync.Once
}

// BackuperOptions carries what the scheduler needs to build a fresh backuper
// for every run.
type BackuperOptions struct {
	SourcePath string
	BackupDir  string
	Opts       []Option
}

// NewScheduler creates a new backup scheduler that runs every intervalSecs
// seconds.
func NewScheduler(intervalSecs int, opts BackuperOptions, notify bool) (*Scheduler, error) {
	if intervalSecs <= 0 {
		return nil, errors.New("interval must be positive")
	}
	return &Scheduler{
		NotificationCh: make(chan bool),

		backuperOptions: opts,
		notify:          notify,
		tickerFrequency: time.Duration(intervalSecs) * time.Second,

		close: make(chan struct{}),
	}, nil
}

// Run starts the scheduler and listens for a shutdown call.
func (s *Scheduler) Run() {
	log.Info().Msg("starting backup scheduler")

	ticker := time.NewTicker(s.tickerFrequency)
	defer ticker.Stop()
	for {
		select {
		case <-s.close:
			log.Info().Msg("closing backup scheduler")
			return
		case <-ticker.C:
		}

		s.backup()
		if s.notify {
			s.NotificationCh <- true
		}
	}
}

// Shutdown gracefully shutdowns the scheduler.
func (s *Scheduler) Shutdown() {
	s.closeOnce.Do(func() {
		s.close <- struct{}{}
		close(s.close)
	})
}

func (s *Scheduler) backup() {
	backuper, err := NewBackuper(s.backuperOptions.SourcePath, s.backuperOptions.BackupDir, s.backuperOptions.Opts...)
	if err != nil {
		log.Error().Err(err).Msg("creating backuper")
		return
	}
	if err := backuper.Init(); err != nil {
		log.Error().Err(err).Msg("initializing backuper")
		return
	}
	result, err := backuper.Backup(context.Background())
	if err != nil {
		log.Error().Err(err).Msg("backup failed")
	} else {
		log.Info().
			Str("path", result.Path).
			Int64("elapsed_time", result.ElapsedTime.Milliseconds()).
			Int64("elapsed_time_vacuum", result.VacuumElapsedTime.Milliseconds()).
			Int64("size", result.Size).
			Int64("size_vacuum", result.SizeAfterVacuum).
			Msg("backup succeeded")
	}

	if err := backuper.Close(); err != nil {
		log.Error().Err(err).Msg("closing backup")
	}
}
