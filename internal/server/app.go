package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/kindrid-api/internal/handler"
	"github.com/noah-isme/kindrid-api/internal/middleware"
	"github.com/noah-isme/kindrid-api/internal/realtime"
	"github.com/noah-isme/kindrid-api/internal/repository"
	"github.com/noah-isme/kindrid-api/internal/service"
	"github.com/noah-isme/kindrid-api/pkg/config"
	"github.com/noah-isme/kindrid-api/pkg/imaging"
	"github.com/noah-isme/kindrid-api/pkg/jobs"
	"github.com/noah-isme/kindrid-api/pkg/storage"
)

const (
	shutdownTimeout = 10 * time.Second
	sweepInterval   = 15 * time.Minute
)

// App owns every long-lived component of the server process.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	handler   http.Handler
	store     *repository.PhotoStore
	workflow  *service.PhotoWorkflowService
	exports   *service.ExportService
	hub       *realtime.Hub
	closeSlot func() error
}

// New wires storage, services and the HTTP router from cfg.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	media, err := storage.NewLocalStorage(cfg.Media.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("init media storage: %w", err)
	}
	metrics := service.NewMetricsService()

	slot, closeSlot, err := repository.OpenSlot(ctx, cfg, media, logger)
	if err != nil {
		return nil, fmt.Errorf("open slot: %w", err)
	}
	store := repository.NewPhotoStore(slot, media, logger, repository.WithWriteFailureHook(metrics.RecordSlotWriteFailure))
	loaded := store.Load(ctx)
	logger.Info("photo store loaded", zap.Int("photos", loaded), zap.String("backend", cfg.Slot.Backend))

	catalog, err := service.LoadAnalyzerCatalog(cfg.Analyzer.CatalogPath)
	if err != nil {
		_ = closeSlot()
		return nil, err
	}
	analyzer, err := service.NewMockAnalyzer(service.MockAnalyzerConfig{
		Delay:        cfg.Analyzer.Delay,
		RemovalDelay: cfg.Analyzer.RemovalDelay,
		Seed:         cfg.Analyzer.Seed,
		Catalog:      catalog,
		Logger:       logger,
	})
	if err != nil {
		_ = closeSlot()
		return nil, err
	}

	hub := realtime.NewHub(logger,
		realtime.WithClientCountHook(metrics.SetRealtimeClients),
		realtime.WithAllowedOrigins(cfg.CORS.AllowedOrigins),
	)

	signer := storage.NewSignedURLSigner(cfg.Media.SignedURLSecret, cfg.Media.SignedURLTTL)
	workflow := service.NewPhotoWorkflowService(store, media, analyzer, imaging.NewPixelator(16), logger,
		service.WithEventPublisher(hub),
		service.WithMetrics(metrics),
		service.WithMediaSigner(signer, "/media"),
		service.WithMaxUploadSize(cfg.Media.MaxFileSizeBytes),
		service.WithAnalysisQueue(jobs.QueueConfig{
			Workers:    cfg.Analyzer.Workers,
			MaxRetries: cfg.Analyzer.Retries,
			RetryDelay: time.Second,
		}),
	)
	exports := service.NewExportService(store, media, service.ExportConfig{}, logger)
	auth := service.NewAuthService(logger, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})

	checks := map[string]handler.ReadinessCheck{
		"slot": func(ctx context.Context) error {
			_, err := slot.Read(ctx)
			return err
		},
	}
	router := NewRouter(RouterDeps{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics,
		Guard:   middleware.NewGuard(cfg.Auth.Enabled, auth),
		Photos:  handler.NewPhotoHandler(workflow),
		Reports: handler.NewReportHandler(exports),
		Media:   handler.NewMediaHandler(workflow, logger),
		Events:  handler.NewEventsHandler(hub, logger),
		System:  handler.NewMetricsHandler(metrics, cfg.Env, checks),
		Static:  handler.NewStaticHandler(cfg.StaticDir, apiPrefix(cfg), "/media", "/ws", "/docs", "/metrics"),
	})

	return &App{
		cfg:       cfg,
		logger:    logger,
		handler:   router,
		store:     store,
		workflow:  workflow,
		exports:   exports,
		hub:       hub,
		closeSlot: closeSlot,
	}, nil
}

// Handler exposes the HTTP handler.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Start launches the background workers without serving HTTP.
func (a *App) Start(ctx context.Context) {
	go a.hub.Run(ctx)
	a.workflow.Start(ctx)
}

// Run serves HTTP on the configured port until ctx ends, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Port),
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.hub.Run(gctx)
		return nil
	})
	a.workflow.Start(gctx)

	g.Go(func() error {
		a.sweepLoop(gctx)
		return nil
	})
	g.Go(func() error {
		a.logger.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", a.cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	a.Close()
	a.logger.Info("server stopped")
	return err
}

// Close stops the analysis workers and releases the slot.
func (a *App) Close() {
	a.workflow.Stop()
	if a.closeSlot != nil {
		if err := a.closeSlot(); err != nil {
			a.logger.Warn("close slot failed", zap.Error(err))
		}
	}
}

func (a *App) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.exports.SweepOrphanMedia(0); err != nil {
				a.logger.Warn("orphan media sweep failed", zap.Error(err))
			}
		}
	}
}
