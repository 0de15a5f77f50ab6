package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/viviendahub/go-viviendahub/buildinfo"
	"github.com/viviendahub/go-viviendahub/internal/contracts"
	contractsimpl "github.com/viviendahub/go-viviendahub/internal/contracts/impl"
	"github.com/viviendahub/go-viviendahub/internal/matching"
	matchingimpl "github.com/viviendahub/go-viviendahub/internal/matching/impl"
	"github.com/viviendahub/go-viviendahub/internal/notifications"
	"github.com/viviendahub/go-viviendahub/internal/notifications/channels"
	notificationsimpl "github.com/viviendahub/go-viviendahub/internal/notifications/impl"
	"github.com/viviendahub/go-viviendahub/internal/router"
	"github.com/viviendahub/go-viviendahub/pkg/backup"
	"github.com/viviendahub/go-viviendahub/pkg/logging"
	"github.com/viviendahub/go-viviendahub/pkg/metrics"
	"github.com/viviendahub/go-viviendahub/pkg/pdfrender"
	"github.com/viviendahub/go-viviendahub/pkg/properties"
	"github.com/viviendahub/go-viviendahub/pkg/scheduler"
	sqlstoreimpl "github.com/viviendahub/go-viviendahub/pkg/sqlstore/impl"
	"github.com/viviendahub/go-viviendahub/pkg/telemetry"
	"github.com/viviendahub/go-viviendahub/pkg/telemetry/publisher"
	"github.com/viviendahub/go-viviendahub/pkg/telemetry/statscollector"
	telemetrystorage "github.com/viviendahub/go-viviendahub/pkg/telemetry/storage"
	"github.com/viviendahub/go-viviendahub/pkg/userdir"
)

func main() {
	cfg := setupConfig()
	logging.SetupLogger(buildinfo.GitCommit, cfg.Log.Debug, cfg.Log.Human)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	store, err := sqlstoreimpl.NewStore(cfg.DB.Path)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DB.Path).Msg("opening database")
	}
	defer store.Close()

	directory := setupDirectory(cfg)
	catalog := setupCatalog(cfg)
	renderer := setupRenderer(cfg)

	hub := channels.NewHub()
	manager := channels.NewManager(setupChannels(cfg, hub)...)

	dispatcher, err := notificationsimpl.NewDispatcher(store, directory, manager)
	if err != nil {
		log.Fatal().Err(err).Msg("creating notification dispatcher")
	}
	notificationService, err := notificationsimpl.NewInstrumentedService(dispatcher)
	if err != nil {
		log.Fatal().Err(err).Msg("instrumenting notification service")
	}

	contractEngine := contractsimpl.NewEngine(store, directory, notificationService, renderer,
		contractsimpl.WithInvitationTTL(cfg.Invitations.TTLDays),
		contractsimpl.WithInvitationMaxAttempts(cfg.Invitations.MaxAttempts),
	)
	contractService, err := contractsimpl.NewInstrumentedService(contractEngine)
	if err != nil {
		log.Fatal().Err(err).Msg("instrumenting contract service")
	}

	matchEngine := matchingimpl.NewEngine(store, catalog, directory, notificationService)
	matchService, err := matchingimpl.NewInstrumentedService(matchEngine)
	if err != nil {
		log.Fatal().Err(err).Msg("instrumenting matching service")
	}

	rtr, err := router.ConfiguredRouter(router.Config{
		Contracts:     contractService,
		Matching:      matchService,
		Notifications: notificationService,
		Hub:           hub,
		Directory:     directory,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("configuring router")
	}

	if err := metrics.SetupInstrumentation(":"+cfg.Metrics.Port, "viviendahub"); err != nil {
		log.Fatal().Err(err).Str("port", cfg.Metrics.Port).Msg("could not setup instrumentation")
	}

	closeTelemetry := setupTelemetry(ctx, cfg, store)
	defer closeTelemetry()

	jobs := setupScheduler(contractService, matchService, notificationService)
	jobs.Run()
	defer jobs.Shutdown()

	if cfg.Backup.Enabled {
		shutdownBackups := setupBackups(cfg)
		defer shutdownBackups()
	}

	server := &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           rtr.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("port", cfg.HTTP.Port).Msg("serving http api")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown")
	}
}

func setupDirectory(cfg *config) userdir.Directory {
	if cfg.Users.DirectoryURL == "" {
		log.Warn().Msg("no user directory configured, using empty static directory")
		return userdir.NewStaticDirectory()
	}
	directory, err := userdir.NewHTTPDirectory(cfg.Users.DirectoryURL)
	if err != nil {
		log.Fatal().Err(err).Str("url", cfg.Users.DirectoryURL).Msg("creating user directory")
	}
	return directory
}

func setupCatalog(cfg *config) properties.Catalog {
	if cfg.Properties.CatalogURL == "" {
		log.Warn().Msg("no property catalog configured, using empty static catalog")
		return properties.NewStaticCatalog()
	}
	catalog, err := properties.NewHTTPCatalog(cfg.Properties.CatalogURL)
	if err != nil {
		log.Fatal().Err(err).Str("url", cfg.Properties.CatalogURL).Msg("creating property catalog")
	}
	return catalog
}

func setupRenderer(cfg *config) pdfrender.Renderer {
	if cfg.PDF.RenderURL == "" {
		return nil
	}
	renderer, err := pdfrender.NewHTTPRenderer(cfg.PDF.RenderURL)
	if err != nil {
		log.Fatal().Err(err).Str("url", cfg.PDF.RenderURL).Msg("creating pdf renderer")
	}
	return renderer
}

// setupChannels builds the delivery channel list from the config. The in-app
// channel is always on; the external channels join when configured.
func setupChannels(cfg *config, hub *channels.Hub) []channels.Channel {
	list := []channels.Channel{
		{Adapter: channels.NewInApp(hub), Priority: 0},
	}
	if cfg.Channels.Email.Host != "" {
		list = append(list, channels.Channel{
			Adapter: channels.NewEmail(channels.EmailConfig{
				Host:     cfg.Channels.Email.Host,
				Port:     cfg.Channels.Email.Port,
				Username: cfg.Channels.Email.Username,
				Password: cfg.Channels.Email.Password,
				From:     cfg.Channels.Email.From,
			}),
			Priority:      1,
			RetryAttempts: 3,
			RetryDelay:    time.Minute,
			PerMinute:     10,
			PerHour:       100,
		})
	}
	if cfg.Channels.SMS.BaseURL != "" {
		list = append(list, channels.Channel{
			Adapter: channels.NewSMS(channels.SMSConfig{
				BaseURL:    cfg.Channels.SMS.BaseURL,
				AccountSID: cfg.Channels.SMS.AccountSID,
				AuthToken:  cfg.Channels.SMS.AuthToken,
				From:       cfg.Channels.SMS.From,
			}),
			Priority:      2,
			RetryAttempts: 3,
			RetryDelay:    time.Minute,
			PerMinute:     5,
			PerHour:       20,
		})
	}
	if cfg.Channels.Push.URL != "" {
		list = append(list, channels.Channel{
			Adapter: channels.NewPush(channels.PushConfig{
				URL:       cfg.Channels.Push.URL,
				ServerKey: cfg.Channels.Push.ServerKey,
			}),
			Priority:      1,
			RetryAttempts: 3,
			RetryDelay:    30 * time.Second,
		})
	}
	if cfg.Channels.Webhook.URL != "" {
		webhook, err := channels.NewWebhook(channels.WebhookConfig{
			URL:         cfg.Channels.Webhook.URL,
			BearerToken: cfg.Channels.Webhook.BearerToken,
		})
		if err != nil {
			log.Fatal().Err(err).Str("url", cfg.Channels.Webhook.URL).Msg("creating webhook channel")
		}
		list = append(list, channels.Channel{
			Adapter:       webhook,
			Priority:      3,
			RetryAttempts: 5,
			RetryDelay:    time.Minute,
		})
	}
	return list
}

// setupTelemetry wires the local metric store, records the binary's git
// summary and, when an external endpoint is configured, starts the publisher
// and the platform stats collector. The returned function stops everything.
func setupTelemetry(ctx context.Context, cfg *config, store *sqlstoreimpl.Store) func() {
	metricStore, err := telemetrystorage.New(cfg.Telemetry.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Telemetry.DatabasePath).Msg("opening telemetry database")
	}
	telemetry.SetMetricStore(metricStore)

	summary := buildinfo.GetSummary()
	if err := telemetry.Collect(ctx, telemetry.GitSummaryMetric{
		Version:       telemetry.GitSummaryMetricV1,
		GitCommit:     summary.GitCommit,
		GitBranch:     summary.GitBranch,
		GitState:      summary.GitState,
		GitSummary:    summary.GitSummary,
		BuildDate:     summary.BuildDate,
		BinaryVersion: summary.Version,
	}); err != nil {
		log.Error().Err(err).Msg("collecting git summary metric")
	}

	closers := []func(){func() {
		if err := metricStore.Close(); err != nil {
			log.Error().Err(err).Msg("closing telemetry database")
		}
	}}

	if cfg.Telemetry.ExternalEndpoint != "" {
		publishInterval, err := time.ParseDuration(cfg.Telemetry.PublishInterval)
		if err != nil {
			log.Fatal().Err(err).Msgf("publish interval has invalid format: %s", cfg.Telemetry.PublishInterval)
		}
		exporter, err := publisher.NewHTTPExporter(cfg.Telemetry.ExternalEndpoint, cfg.Telemetry.APIKey)
		if err != nil {
			log.Fatal().Err(err).Msg("creating metrics exporter")
		}
		p := publisher.NewPublisher(metricStore, exporter, cfg.Telemetry.NodeID, publishInterval)
		p.Start()
		closers = append(closers, p.Close)

		statsInterval, err := time.ParseDuration(cfg.Telemetry.StatsInterval)
		if err != nil {
			log.Fatal().Err(err).Msgf("stats interval has invalid format: %s", cfg.Telemetry.StatsInterval)
		}
		collector, err := statscollector.New(store, statsInterval)
		if err != nil {
			log.Fatal().Err(err).Msg("creating stats collector")
		}
		go collector.Start(ctx)
	}

	return func() {
		for _, c := range closers {
			c()
		}
	}
}

// setupScheduler registers the periodic maintenance jobs of the three
// engines.
func setupScheduler(
	contractService contracts.Service,
	matchService matching.Service,
	notificationService notifications.Service,
) *scheduler.Scheduler {
	jobs := scheduler.New()
	jobs.Register("notifications:process-scheduled", time.Minute, func(ctx context.Context) error {
		_, err := notificationService.ProcessScheduled(ctx)
		return err
	})
	jobs.Register("notifications:retry-failed", 5*time.Minute, func(ctx context.Context) error {
		_, err := notificationService.RetryFailed(ctx)
		return err
	})
	jobs.Register("notifications:daily-digests", time.Hour, func(ctx context.Context) error {
		_, err := notificationService.CreateDigests(ctx, notifications.DigestDaily)
		return err
	})
	jobs.Register("invitations:cleanup", time.Hour, func(ctx context.Context) error {
		_, err := contractService.CleanupExpiredInvitations(ctx)
		return err
	})
	jobs.Register("contracts:activate-due", time.Hour, func(ctx context.Context) error {
		_, err := contractService.ActivateDue(ctx)
		return err
	})
	jobs.Register("contracts:expire-due", time.Hour, func(ctx context.Context) error {
		_, err := contractService.ExpireDue(ctx)
		return err
	})
	jobs.Register("matching:expire-old", time.Hour, func(ctx context.Context) error {
		_, err := matchService.ExpireOld(ctx)
		return err
	})
	jobs.Register("matching:follow-ups", 6*time.Hour, func(ctx context.Context) error {
		_, err := matchService.SendFollowUpReminders(ctx)
		return err
	})
	jobs.Register("matching:process-daily", 24*time.Hour, func(ctx context.Context) error {
		_, err := matchService.ProcessDaily(ctx)
		return err
	})
	return jobs
}

func setupBackups(cfg *config) func() {
	frequency, err := time.ParseDuration(cfg.Backup.Frequency)
	if err != nil {
		log.Fatal().Err(err).Msgf("backup frequency has invalid format: %s", cfg.Backup.Frequency)
	}
	bs, err := backup.NewScheduler(int(frequency.Seconds()), backup.BackuperOptions{
		SourcePath: cfg.DB.Path,
		BackupDir:  cfg.Backup.Dir,
		Opts: []backup.Option{
			backup.WithVacuum(cfg.Backup.EnableVacuum),
			backup.WithCompression(cfg.Backup.EnableCompression),
			backup.WithPruning(cfg.Backup.Pruning.Enabled),
			backup.WithKeepFiles(cfg.Backup.Pruning.KeepAmount),
		},
	}, false)
	if err != nil {
		log.Fatal().Err(err).Msg("creating backup scheduler")
	}
	go bs.Run()
	return bs.Shutdown
}
