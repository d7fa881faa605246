package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"investimento/internal/cli"
	"investimento/internal/core"
	"investimento/internal/export"
	apphttp "investimento/internal/http"
	applog "investimento/internal/log"
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig()

	engine, err := core.NewEngine(cfg.EngineConfig())
	if err != nil {
		logger.Error("Failed to create projection engine", applog.FieldError, err)
		os.Exit(1)
	}
	if cfg.EngineConfig().Policy == core.ContributionSubtracted {
		logger.Warn("Deprecated interest policy selected", applog.FieldPolicy, cfg.InterestPolicy)
	}

	encoder := export.NewEncoder(export.EncoderConfig{
		CacheSize: cfg.CSVCacheSize,
		CacheTTL:  cfg.CSVCacheTTL,
	})

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Options{
		Engine:             engine,
		Encoder:            encoder,
		Logger:             logger,
		MaxMonths:          cfg.MaxMonths,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		TrustedProxies:     cfg.TrustedProxies,
	})

	// Configure server timeouts and limits
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) error {
		return srv.Shutdown(ctx)
	})

	logger.Info("Starting investimento server",
		applog.FieldPort, cfg.Port,
		applog.FieldPolicy, cfg.InterestPolicy,
		applog.FieldOperation, applog.OpStartup)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, applog.FieldPort, cfg.Port)
		_ = srv.Shutdown(context.Background())
		os.Exit(1)
	}

	<-done
	logger.Info("Server stopped gracefully")
}
