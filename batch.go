package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"phasewatch/analytics"
	"phasewatch/cache"
	"phasewatch/config"
	"phasewatch/store"
)

func newBatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "batch",
		Short: "Score stored readings and write the scores back",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			setupLogging(cfg.Logging)
			return runBatch(cmd.Context(), cfg)
		},
	}
}

func runBatch(ctx context.Context, cfg *config.Config) error {
	orchestrator, err := analytics.NewOrchestrator(analytics.OrchestratorConfig{
		Channels:   cfg.Channels,
		WindowSize: cfg.WindowSize,
		Workers:    cfg.Workers,
		Policy:     analytics.ErrorPolicy(cfg.ErrorPolicy),
	})
	if err != nil {
		return err
	}

	db, err := store.Open(store.Config{
		Path:      cfg.Store.Path,
		ChunkSize: cfg.Store.ChunkSize,
		Limit:     cfg.Store.Limit,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	sinks := []analytics.ResultSink{db}
	if cfg.Redis.Enabled {
		redisClient, err := cache.NewRedisClient(ctx, cache.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
			TTL:      cfg.Redis.TTL,
		})
		if err != nil {
			slog.Warn("Redis unavailable, latest scores will not be cached", "addr", cfg.Redis.Addr, "err", err)
		} else {
			defer redisClient.Close()
			sinks = append(sinks, redisClient)
		}
	}

	job := &analytics.Job{
		Source:       db,
		Sinks:        sinks,
		Orchestrator: orchestrator,
		Threshold:    cfg.Threshold,
	}

	report, err := job.Run(ctx)
	if err != nil {
		return err
	}

	for ch, reason := range report.Failures {
		slog.Error("channel skipped", "channel", ch, "reason", reason)
	}
	return nil
}
