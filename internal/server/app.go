// Package server wires the sync server together: it opens the configured
// storage backend, runs migrations, builds the sync engine and serves it over
// gRPC and HTTP until a termination signal arrives.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/vaultsync/internal/logging"
	"github.com/dmitrijs2005/vaultsync/internal/server/config"
	gs "github.com/dmitrijs2005/vaultsync/internal/server/grpc"
	"github.com/dmitrijs2005/vaultsync/internal/server/jobs"
	"github.com/dmitrijs2005/vaultsync/internal/server/ratelimit"
	"github.com/dmitrijs2005/vaultsync/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/vaultsync/internal/server/rest"
	"github.com/dmitrijs2005/vaultsync/internal/server/services"
	"go.uber.org/zap"
)

type App struct {
	config      *config.Config
	logger      logging.Logger
	repos       repomanager.RepositoryManager
	syncService *services.SyncService
	attachments *services.AttachmentService
	limiter     *ratelimit.Registry
	scheduler   *jobs.Scheduler
}

// NewLogger returns the logger selected by c.LogFormat.
func NewLogger(c *config.Config) (logging.Logger, error) {
	switch c.LogFormat {
	case "", "slog":
		return logging.NewJSONSlogLogger(os.Stdout, slog.LevelInfo), nil
	case "zap":
		z, err := zap.NewProduction()
		if err != nil {
			return nil, fmt.Errorf("zap init error: %w", err)
		}
		return logging.NewZapLogger(z), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", c.LogFormat)
	}
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger, err := NewLogger(c)
	if err != nil {
		return nil, err
	}
	return newApp(ctx, c, logger)
}

func newApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	repos, err := repomanager.Open(ctx, c.StorageBackend, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	if err := repos.RunMigrations(ctx); err != nil {
		_ = repos.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	app := &App{
		config:      c,
		logger:      logger,
		repos:       repos,
		syncService: services.NewSyncService(repos.Records(), logger, c),
		attachments: services.NewAttachmentService(repos.Records(), logger, c),
		limiter:     ratelimit.NewRegistry(c.RateLimitRPS, c.RateLimitBurst),
		scheduler:   jobs.NewScheduler(logger),
	}

	if err := app.scheduler.Add(ctx, app.pruneLimiterTask()); err != nil {
		_ = repos.Close()
		return nil, err
	}

	return app, nil
}

func (app *App) pruneLimiterTask() jobs.Task {
	unit, amount := jobs.EveryDuration(app.config.LimiterIdleTTL)
	return jobs.Task{
		Name:           "prune idle rate limiters",
		Interval:       unit,
		IntervalAmount: amount,
		Enabled:        app.config.LimiterIdleTTL > 0,
		TaskFn: func(ctx context.Context) {
			if n := app.limiter.Prune(app.config.LimiterIdleTTL); n > 0 {
				app.logger.Info(ctx, "pruned idle rate limiters", "count", n)
			}
		},
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.syncService, app.limiter, app.config.SecretKey)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, "grpc server failed", "error", err)
		cancelFunc()
	}
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := rest.NewHTTPServer(rest.Options{
		Address:     app.config.EndpointAddrHTTP,
		SecretKey:   app.config.SecretKey,
		CORSOrigins: app.config.CORSOrigins,
	}, app.logger, app.syncService, app.attachments, app.limiter)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, "http server failed", "error", err)
		cancelFunc()
	}
}

// Run serves until ctx is cancelled, a signal arrives or a server fails,
// then releases the storage backend.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "storage", app.config.StorageBackend,
		"allow_undelete", app.config.AllowUndelete)

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(3)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.scheduler.Run(ctx)
	}()

	wg.Wait()

	app.logger.Info(context.Background(), "Closing storage...")
	if err := app.repos.Close(); err != nil {
		return fmt.Errorf("close storage: %w", err)
	}
	return nil
}
