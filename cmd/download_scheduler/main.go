package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	otelruntime "go.opentelemetry.io/contrib/instrumentation/runtime"
	"golang.org/x/sync/errgroup"

	"github.com/italolelis/download_scheduler/internal/config"
	"github.com/italolelis/download_scheduler/internal/http/rest"
	"github.com/italolelis/download_scheduler/internal/logctx"
	"github.com/italolelis/download_scheduler/internal/notifier"
	"github.com/italolelis/download_scheduler/internal/scheduler"
	"github.com/italolelis/download_scheduler/internal/storage"
	"github.com/italolelis/download_scheduler/internal/storage/sqlite"
	"github.com/italolelis/download_scheduler/internal/telemetry"
	"github.com/italolelis/download_scheduler/internal/transfer"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	handler := logctx.NewTraceHandler(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	logger := slog.New(handler)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("download scheduler starting...", "log_level", cfg.LogLevel)

	if err := run(logctx.WithLogger(ctx, logger), cfg); err != nil && ctx.Err() == nil {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logctx.LoggerFromContext(ctx)

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "download_scheduler",
		ServiceVersion: "1.0.0",
		Exporter:       cfg.Telemetry.Exporter,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown telemetry", "err", err)
		}
	}()

	if cfg.Telemetry.Enabled {
		if err := otelruntime.Start(otelruntime.WithMinimumReadMemStatsInterval(10 * time.Second)); err != nil {
			logger.Warn("failed to start runtime instrumentation", "err", err)
		}
	}

	// =========================================================================
	// Start Database
	database, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open archive database: %w", err)
	}
	defer database.Close()

	archive := sqlite.NewInstrumentedArchiveRepository(database, tel)

	// =========================================================================
	// Start Scheduler
	factory := transfer.NewFactory(ctx, http.DefaultClient, cfg.DownloadDir)

	// The sinks need snapshots out of the scheduler that does not exist yet;
	// the closure binds once it does.
	var sched *scheduler.Scheduler

	lookup := func(id uint64) (scheduler.Info, error) {
		return sched.DownloadInfo(id)
	}

	meter := telemetry.NewTransferMeter(tel)
	sink := buildSink(ctx, cfg, tel, meter, archive, lookup)

	sched, err = scheduler.New(cfg.SchedulerConfig(), factory, sink)
	if err != nil {
		return fmt.Errorf("failed to build scheduler: %w", err)
	}

	sched.SetLogger(logger)
	factory.Bind(sched.Budget(), buildProgressFeed(ctx, meter, func(id uint64, n int64) error {
		return sched.UpdateProgress(id, n)
	}))

	if err := tel.RegisterQueueStats(func() (int, int, int) {
		return sched.ActiveCount(), sched.PendingCount(), sched.TotalCount()
	}); err != nil {
		return fmt.Errorf("failed to register queue gauges: %w", err)
	}

	// =========================================================================
	// Start API Service
	server := setupServer(ctx, sched, archive, tel, cfg)

	logger.Info("waiting for downloads...",
		"download_dir", cfg.DownloadDir,
		"max_concurrent", cfg.MaxConcurrentDownloads,
		"queue_size", cfg.QueueSize,
		"process_interval", cfg.ProcessInterval.String(),
	)

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info("initializing API support", "host", cfg.Web.BindAddress)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

		return nil
	})

	group.Go(func() error {
		ticker := time.NewTicker(cfg.ProcessInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if started := sched.ProcessQueue(); started > 0 {
					logger.Debug("admitted queued downloads", "started", started)
				}
			}
		}
	})

	group.Go(func() error {
		<-ctx.Done()
		logger.Info("start shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to gracefully shutdown the server", "err", err)

			if err = server.Close(); err != nil {
				return fmt.Errorf("could not stop server gracefully: %w", err)
			}
		}

		return nil
	})

	return group.Wait()
}

// buildSink assembles the notification fan-out: structured logs always, the
// archive recorder always, chat announcements when a webhook is configured.
func buildSink(ctx context.Context, cfg *config.Config, tel *telemetry.Telemetry, meter *telemetry.TransferMeter, archive storage.ArchiveWriteRepository, lookup func(uint64) (scheduler.Info, error)) scheduler.NotificationSink {
	logger := logctx.LoggerFromContext(ctx)

	sinks := scheduler.MultiSink{
		notifier.NewSlogSink(logger),
		storage.NewRecorder(archive, lookup, logger),
		&outcomeSink{tel: tel, meter: meter},
	}

	if cfg.DiscordWebhookURL != "" {
		discord := &notifier.DiscordNotifier{WebhookURL: cfg.DiscordWebhookURL}
		sinks = append(sinks, notifier.NewEvents(discord, notifier.LookupFunc(lookup), logger))
	}

	return sinks
}

// buildProgressFeed adapts the factory's cumulative byte reports into
// scheduler progress updates and the transferred-bytes counter.
func buildProgressFeed(ctx context.Context, meter *telemetry.TransferMeter, update func(uint64, int64) error) transfer.ProgressFunc {
	logger := logctx.LoggerFromContext(ctx)

	return func(id uint64, downloaded int64) {
		meter.Record(id, downloaded)

		if err := update(id, downloaded); err != nil {
			logger.Warn("progress report dropped", "download_id", id, "err", err)
		}
	}
}

// outcomeSink counts terminal outcomes in the metrics pipeline and releases
// the per-download byte tracking once no more reports are expected.
type outcomeSink struct {
	scheduler.NopSink

	tel   *telemetry.Telemetry
	meter *telemetry.TransferMeter
}

func (s *outcomeSink) OnCompleted(id uint64) {
	s.tel.RecordFinished("completed")
	s.meter.Forget(id)
}

func (s *outcomeSink) OnCancelled(id uint64) {
	s.tel.RecordFinished("cancelled")
	s.meter.Forget(id)
}

// setupServer prepares the middleware chain and routes for the REST API.
func setupServer(ctx context.Context, sched *scheduler.Scheduler, archive storage.ArchiveReadRepository, tel *telemetry.Telemetry, cfg *config.Config) *http.Server {
	handler := rest.NewDownloadHandler(sched, archive, tel)

	r := chi.NewRouter()
	r.Use(telemetry.RequestID)
	r.Use(telemetry.HTTPLogging)
	r.Use(telemetry.NewHTTPMiddleware(tel).Middleware)

	r.Mount("/", handler.Routes())
	r.Method(http.MethodGet, "/metrics", tel.Handler())

	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      otelhttp.NewHandler(r, "download_scheduler"),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}
