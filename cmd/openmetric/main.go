package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"openmetric/internal/cache"
	"openmetric/internal/cli"
	"openmetric/internal/engine"
	apphttp "openmetric/internal/http"
	"openmetric/internal/log"
	"openmetric/internal/middleware/ratelimit"
	"openmetric/internal/services"
	"openmetric/internal/stream"
)

const (
	shutdownTimeout = 30 * time.Second
	cleanupInterval = time.Minute
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentApp)

	if err := run(logger); err != nil {
		logger.Error("Server error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

func run(logger *log.Logger) error {
	cfg := cli.LoadAndValidateConfig(logger)

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	be := cli.OpenBackend(ctx, logger, cfg)
	defer be.Close()

	svc := services.NewMetricsService(be.Reader, engine.New(cli.EngineParams(logger, cfg)), services.MetricsServiceOptions{
		SourceName: be.Name,
		CacheTTL:   cfg.MetricsCacheTTL,
		CacheSize:  cfg.MetricsCacheSize,
		Logger:     logger,
	})

	var limiter *ratelimit.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerSecond: cfg.RateLimitRPS,
			Burst:             cfg.RateLimitBurst,
			IdleTTL:           ratelimit.DefaultConfig().IdleTTL,
		})
	}

	cacheLogger := logger.WithComponent(log.ComponentCache)
	caches := cache.NewManager(func(removed int) {
		if removed > 0 {
			cacheLogger.Debug("Removed expired entries", "removed", removed)
		}
	})
	if memo := svc.MemoCache(); memo != nil {
		caches.Register(memo)
	}
	if limiter != nil {
		caches.Register(limiter)
	}
	caches.StartCleanup(cleanupInterval)
	defer caches.Stop()

	streamHandler := stream.NewHandler(svc, stream.Options{
		AllowedOrigins: cfg.WSAllowedOrigins,
		IdleTimeout:    cfg.WSIdleTimeout,
		Logger:         logger,
	})

	srv := apphttp.NewServer(":"+cfg.Port, svc, apphttp.Options{
		PageSize: cfg.PageSize,
		Stream:   streamHandler,
		Limiter:  limiter,
		Logger:   logger,
	})

	// Configure server timeouts and limits
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting openmetric server",
			"port", cfg.Port,
			log.FieldSource, be.Name,
			log.FieldOperation, log.OpStartup)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
