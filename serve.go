package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"phasewatch/analytics"
	"phasewatch/cache"
	"phasewatch/config"
	"phasewatch/handlers"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP ingestion and scoring server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			setupLogging(cfg.Logging)
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	orchestrator, err := analytics.NewOrchestrator(analytics.OrchestratorConfig{
		Channels:   cfg.Channels,
		WindowSize: cfg.WindowSize,
		Workers:    cfg.Workers,
		Policy:     analytics.ErrorPolicy(cfg.ErrorPolicy),
	})
	if err != nil {
		return err
	}

	var (
		resultCache analytics.ResultCache
		analyses    handlers.AnalysisReader
	)
	if cfg.Redis.Enabled {
		redisClient, err := cache.NewRedisClient(ctx, cache.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
			TTL:      cfg.Redis.TTL,
		})
		if err != nil {
			slog.Error("failed to connect to Redis", "addr", cfg.Redis.Addr, "err", err)
			return err
		}
		defer redisClient.Close()
		slog.Info("connected to Redis", "addr", cfg.Redis.Addr)
		resultCache, analyses = redisClient, redisClient
	}

	engine := analytics.NewAnalyticsEngine(analytics.EngineConfig{
		WindowSize: cfg.WindowSize,
		Threshold:  cfg.Threshold,
		Workers:    cfg.Workers,
		QueueSize:  cfg.Server.QueueSize,
	}, resultCache, handlers.OnAnomaly)
	defer engine.Close()

	srv := &http.Server{
		Addr:           cfg.Server.Addr,
		Handler:        handlers.NewRouter(handlers.NewReadingHandler(engine, orchestrator, analyses)),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: 1 << 20,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", cfg.Server.Addr, "channels", cfg.Channels)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	slog.Info("server exited")
	return nil
}
