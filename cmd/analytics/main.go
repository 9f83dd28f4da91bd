package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/JaimeStill/healthplan-dw/internal/analytics"
	"github.com/JaimeStill/healthplan-dw/internal/config"
	"github.com/JaimeStill/healthplan-dw/internal/infrastructure"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config load failed: ", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	infra, err := infrastructure.New(ctx, cfg, os.Stderr)
	if err != nil {
		log.Fatal("analytics init failed: ", err)
	}

	runErr := run(infra, cfg)
	if err := infra.Lifecycle.Shutdown(cfg.ShutdownTimeoutDuration()); err != nil {
		infra.Logger.Error("shutdown failed", "error", err)
	}
	if runErr != nil {
		infra.Logger.Error("analytics failed", "error", runErr)
		os.Exit(1)
	}
}

func run(infra *infrastructure.Infrastructure, cfg *config.Config) error {
	if err := infra.Start(); err != nil {
		return err
	}
	if err := infra.Lifecycle.Startup(cfg.StartupTimeoutDuration()); err != nil {
		return err
	}

	sinks := []analytics.Sink{
		analytics.NewDocumentSink(infra.Docstore),
		analytics.NewWarehouseSink(infra.Database.Connection()),
	}
	if cfg.Analytics.ExportDir != "" {
		sinks = append(sinks, analytics.NewParquetSink(cfg.Analytics.ExportDir))
	}

	job, err := analytics.NewJob(infra.Docstore, sinks, analytics.Options{
		Mapping:          cfg.Pipeline.Mapping(),
		AnomalyThreshold: cfg.Analytics.AnomalyThreshold,
	}, infra.Logger)
	if err != nil {
		return err
	}

	_, err = job.Run(infra.Lifecycle.Context())
	return err
}
