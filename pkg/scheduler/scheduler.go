// Package scheduler runs the periodic maintenance jobs of the daemon:
// notification sweeps, invitation cleanup, match expiry, follow-up reminders,
// digest generation and contract activation. One goroutine per job.
package scheduler

import (
	"context"
	"sync"
	"time"

	logger "github.com/rs/zerolog/log"
	"go.uber.org/atomic"
)

var log = logger.With().Str("component", "scheduler").Logger()

// Job is one periodic unit of work. Implementations operate on a bounded
// batch and commit per item so a stop between runs never loses work.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler executes registered jobs at their intervals.
type Scheduler struct {
	jobs []Job

	runs atomic.Int64

	wg        sync.WaitGroup
	close     chan struct{}
	closeOnce sync.Once
}

// New creates a scheduler with no jobs registered.
func New() *Scheduler {
	return &Scheduler{
		close: make(chan struct{}),
	}
}

// Register adds a job. Must be called before Run.
func (s *Scheduler) Register(name string, interval time.Duration, run func(ctx context.Context) error) {
	s.jobs = append(s.jobs, Job{Name: name, Interval: interval, Run: run})
}

// Run starts one goroutine per registered job and returns immediately.
func (s *Scheduler) Run() {
	log.Info().Int("jobs", len(s.jobs)).Msg("starting scheduler")
	for _, job := range s.jobs {
		job := job
		s.wg.Add(1)
		go s.loop(job)
	}
}

func (s *Scheduler) loop(job Job) {
	defer s.wg.Done()

	period := job.Interval
	for {
		select {
		case <-s.close:
			log.Info().Str("job", job.Name).Msg("closing job")
			return
		case <-time.After(period):
		}

		startTime := time.Now()
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			select {
			case <-s.close:
				cancel()
			case <-ctx.Done():
			}
		}()
		if err := job.Run(ctx); err != nil {
			log.Error().Err(err).Str("job", job.Name).Msg("job run failed")
		}
		cancel()
		s.runs.Inc()

		period = job.Interval - time.Since(startTime)
		if period < 0 {
			period = 0
		}
	}
}

// Runs returns how many job executions completed since start.
func (s *Scheduler) Runs() int64 {
	return s.runs.Load()
}

// Shutdown stops every job loop and waits for in-flight runs. Safe to call
// more than once.
func (s *Scheduler) Shutdown() {
	s.closeOnce.Do(func() {
		close(s.close)
	})
	s.wg.Wait()
}
