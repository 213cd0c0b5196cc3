package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"skymosaic/internal/compute"
	"skymosaic/internal/config"
	"skymosaic/internal/events"
	"skymosaic/internal/logger"
	"skymosaic/internal/pipeline"
	"skymosaic/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		logger.Fatal("Failed to load configuration", err)
	}
	if err := logger.Setup(cfg.LogLevel, cfg.LogFormat); err != nil {
		logger.Fatal("Invalid logging configuration", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", err)
	}

	logger.Infof("Satellite mosaic pipeline %s starting", config.Version())
	logger.Infof("Region (%.4f, %.4f)-(%.4f, %.4f) at %gm, %s to %s",
		cfg.LonMin, cfg.LatMin, cfg.LonMax, cfg.LatMax,
		cfg.TargetResolutionM, cfg.StartDate, cfg.EndDate)

	store, err := storage.NewClient(ctx, cfg.GCSBucket, cfg.OutputDir)
	if err != nil {
		logger.Fatal("Failed to initialize storage", err)
	}
	defer store.Close()

	svc := compute.NewClient(cfg.ComputeBaseURL, cfg.ComputeToken)
	sink := events.NewBuffered(events.Log{}, 256)
	defer sink.Close()
	runner := pipeline.NewRunner(cfg, svc, store, sink)

	if err := runner.Run(ctx); err != nil {
		logger.Fatal("Pipeline failed", err)
	}
	logger.Info("Pipeline finished")
}
