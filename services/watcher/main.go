package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lmittmann/tint"

	"github.com/waterwatch/dashboard/services/api/weather"
	"github.com/waterwatch/dashboard/services/watcher/internal/config"
	"github.com/waterwatch/dashboard/services/watcher/internal/db"
	"github.com/waterwatch/dashboard/services/watcher/internal/lookup"
	"github.com/waterwatch/dashboard/services/watcher/internal/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "err", err.Error())
		os.Exit(1)
	}

	log := slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: cfg.LogLevel}))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("watcher failed", "err", err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	cutoff := time.Now().UTC().Add(-cfg.MinAge)
	pending, err := db.FetchPending(ctx, pool, cutoff, cfg.BatchLimit)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		log.Info("no records waiting for weather", "cutoff", cutoff.Format(time.RFC3339))
		return nil
	}

	keys, groups := utils.GroupPending(pending, cfg.CellPrecision)
	log.Info("prepared weather lookups", "records", len(pending), "lookups", len(keys), "dry_run", cfg.DryRun)

	client := weather.NewClient(
		&http.Client{Timeout: cfg.RequestTimeout},
		cfg.WeatherBaseURL,
		weather.StaticKey(cfg.WeatherAPIKey),
		log.With("component", "weather"),
	)
	results := lookup.Resolve(ctx, client, keys, cfg.Concurrency, cfg.RequestTimeout, log)

	updates, err := utils.BuildUpdates(keys, groups, results)
	if err != nil {
		return err
	}

	if cfg.DryRun {
		for _, k := range keys {
			if mm, ok := results[k]; ok {
				log.Info("dry-run: would fill weather", "lookup", utils.KeyString(k), "records", len(groups[k]), "precipitation_mm", mm)
			}
		}
		return nil
	}

	updated, err := db.UpdateWeather(ctx, pool, updates)
	if err != nil {
		return err
	}

	log.Info("weather backfilled", "updated", updated, "lookups_failed", len(keys)-len(results))
	return nil
}
