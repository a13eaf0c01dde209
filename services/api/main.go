package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/waterwatch/dashboard/services/api/aligner"
	"github.com/waterwatch/dashboard/services/api/blob"
	"github.com/waterwatch/dashboard/services/api/config"
	"github.com/waterwatch/dashboard/services/api/db"
	httpserver "github.com/waterwatch/dashboard/services/api/http"
	"github.com/waterwatch/dashboard/services/api/session"
	"github.com/waterwatch/dashboard/services/api/waterdata"
	"github.com/waterwatch/dashboard/services/api/weather"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "err", err.Error())
		os.Exit(1)
	}

	log := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      cfg.LogLevel,
		TimeFormat: time.Kitchen,
	}))
	slog.SetDefault(log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server error", "err", err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	httpClient := &http.Client{Timeout: cfg.RequestTimeout}

	source, err := waterdata.NewClient(httpClient, cfg.WaterDataURL, cfg.DeviceIDs, cfg.PageSize, log.With("component", "waterdata"))
	if err != nil {
		return err
	}

	sess := session.New(cfg.PageSize)
	pager := waterdata.NewPager(source, sess, log.With("component", "pager"))

	if timeline, err := pager.Load(ctx); err != nil {
		log.Warn("initial page failed, dashboard starts empty", "err", err.Error())
	} else {
		log.Info("initial page loaded", "count", timeline.Count, "devices", len(timeline.Devices))
	}

	var opts []aligner.Option
	if cfg.Bounded {
		opts = append(opts, aligner.WithTolerance(cfg.Tolerance))
	}

	var keys weather.KeySource = weather.StaticKey(cfg.WeatherAPIKey)
	if cfg.WeatherAPIKey == "" && cfg.WeatherKeyURL != "" {
		keys = weather.NewRemoteKey(httpClient, cfg.WeatherKeyURL)
	}

	deps := httpserver.Deps{
		Session: sess,
		Pager:   pager,
		Aligner: aligner.New(opts...),
		Weather: weather.NewClient(httpClient, cfg.WeatherBaseURL, keys, log.With("component", "weather")),
		Log:     log,
	}

	if cfg.DatabaseURL != "" {
		store, err := db.New(ctx, cfg.DatabaseURL, log.With("component", "db"))
		if err != nil {
			return err
		}
		defer store.Close()
		deps.Store = store

		images, err := blob.NewS3Store(ctx, blob.Options{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.AWSRegion,
			AccessID:  cfg.AWSAccessID,
			AccessKey: cfg.AWSKey,
		}, log.With("component", "s3"))
		if err != nil {
			log.Warn("image uploads disabled", "err", err.Error())
		} else {
			deps.Images = images
		}
	}

	return httpserver.New(cfg, deps).Run(ctx)
}
