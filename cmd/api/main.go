// cmd/api/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"parknet-api-server/config"
	"parknet-api-server/internal/api/handlers"
	"parknet-api-server/internal/api/middleware"
	"parknet-api-server/internal/api/routes"
	"parknet-api-server/internal/auth"
	"parknet-api-server/internal/clock"
	"parknet-api-server/internal/database"
	"parknet-api-server/internal/journal"
	"parknet-api-server/internal/metrics"
	"parknet-api-server/internal/models"
	"parknet-api-server/internal/parking"
	"parknet-api-server/internal/relay"
	"parknet-api-server/internal/s3"
	"parknet-api-server/internal/socket"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func main() {
	// 1. Load configuration
	cfg, err := config.LoadConfig("./config")
	if err != nil {
		log.Fatalf("Could not load config: %v", err)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Could not build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server stopped with error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	// 2. Metrics
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(promRegistry)

	// 3. Change-event sinks
	var sinks []parking.Sink
	var history handlers.EventHistory = noHistory{}
	if cfg.Journal.Enabled {
		j, err := journal.Open(cfg.Journal.Path, logger)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer func() {
			if err := j.Close(); err != nil {
				logger.Warn("journal close failed", zap.Error(err))
			}
		}()
		sinks = append(sinks, j)
		history = j
	}
	if cfg.NATS.Enabled {
		r, err := relay.Connect(cfg.NATS.URL, cfg.NATS.SubjectPrefix, logger)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer r.Close()
		sinks = append(sinks, r)
	}

	// 4. Core: bus, registry, holds
	policy, err := parking.ParseOverflowPolicy(cfg.Bus.OverflowPolicy)
	if err != nil {
		return err
	}
	bus := parking.NewBus(logger,
		parking.WithQueueSize(cfg.Bus.QueueSize),
		parking.WithOverflowPolicy(policy),
		parking.WithSinks(sinks...),
		parking.WithSinkWorkers(cfg.Bus.SinkWorkers),
		parking.WithBusMetrics(m),
	)
	// Closed before the sinks above so queued deliveries finish first.
	defer bus.Close()

	clk := clock.NewSystem()
	registry := parking.NewRegistry(bus, clk, logger)
	holds := parking.NewHoldManager(registry, clk, logger,
		parking.WithDefaultTTL(cfg.Holds.DefaultTTL),
		parking.WithMaxTTL(cfg.Holds.MaxTTL),
		parking.WithHoldMetrics(m),
	)

	// 5. MongoDB: indexes, seed, load facilities into the registry
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	mongoClient, db, err := database.Connect(connectCtx, cfg.Mongo.URI, cfg.Mongo.DBName)
	cancel()
	if err != nil {
		return fmt.Errorf("connect mongo: %w", err)
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mongoClient.Disconnect(disconnectCtx); err != nil {
			logger.Warn("mongo disconnect failed", zap.Error(err))
		}
	}()
	logger.Info("connected to MongoDB", zap.String("db", cfg.Mongo.DBName))

	if err := database.EnsureIndexes(ctx, db); err != nil {
		return fmt.Errorf("ensure indexes: %w", err)
	}
	facilityRepo := database.NewFacilityRepository(db)
	feedbackRepo := database.NewFeedbackRepository(db)
	if cfg.Seed.Enabled {
		if _, err := database.SeedFacilities(ctx, facilityRepo, cfg.Seed.SeedFacilities(), logger); err != nil {
			return fmt.Errorf("seed facilities: %w", err)
		}
	}
	stored, err := facilityRepo.All(ctx)
	if err != nil {
		return fmt.Errorf("load facilities: %w", err)
	}
	for _, f := range stored {
		if err := registry.Provision(f); err != nil {
			logger.Warn("skipping stored facility", zap.String("facility", f.FacilityID), zap.Error(err))
		}
	}
	logger.Info("facilities loaded", zap.Int("count", len(registry.Facilities())))

	// 6. Image uploads
	var uploader handlers.ImageUploader = disabledUploader{}
	if cfg.S3.Enabled {
		u, err := s3.NewUploader(ctx, cfg.S3)
		if err != nil {
			return fmt.Errorf("create s3 uploader: %w", err)
		}
		uploader = u
	}

	// 7. Auth, rate limiting and websocket hub
	verifier, err := auth.NewVerifier(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Expiration)
	if err != nil {
		return err
	}
	limiter := middleware.NewLimiterStore(cfg.RateLimit.RPS, cfg.RateLimit.Burst, cfg.RateLimit.IdleTTL)
	limiter.StartJanitor(ctx, cfg.RateLimit.CleanupEvery)

	hub := socket.NewHub(registry, logger, m)
	defer hub.Shutdown()

	go holds.Run(ctx, cfg.Holds.SweepInterval)

	router := routes.SetupRouter(routes.Deps{
		Config:     cfg,
		Logger:     logger,
		Verifier:   verifier,
		Registry:   registry,
		Holds:      holds,
		Hub:        hub,
		Facilities: facilityRepo,
		Feedbacks:  feedbackRepo,
		History:    history,
		Uploader:   uploader,
		Limiter:    limiter,
		Metrics:    metrics.Handler(promRegistry),
	})

	// 8. Start server
	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting API server", zap.String("port", cfg.Server.Port))
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	// Hijacked websocket connections are not tracked by Shutdown.
	hub.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		zc.Level = level
	}
	return zc.Build()
}

type disabledUploader struct{}

func (disabledUploader) UploadFile(context.Context, io.Reader, string, string) (string, error) {
	return "", fmt.Errorf("image uploads are disabled: %w", parking.ErrTransientUnavailable)
}

type noHistory struct{}

func (noHistory) History(context.Context, string, int, int) ([]models.ChangeEvent, error) {
	return nil, fmt.Errorf("event journal is disabled: %w", parking.ErrTransientUnavailable)
}
