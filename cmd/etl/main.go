package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/JaimeStill/healthplan-dw/internal/config"
	"github.com/JaimeStill/healthplan-dw/internal/pipeline"
)

func main() {
	var (
		task  = flag.String("task", "", "Run a single task of the chain (requires -run-id)")
		runID = flag.String("run-id", "", "Run id shared by every task of one chain")
		list  = flag.Bool("list", false, "Print the task names in chain order")
	)
	flag.Parse()

	if *list {
		for _, name := range pipeline.Chain() {
			fmt.Println(name)
		}
		return
	}

	id, err := resolveRunID(*task, *runID)
	if err != nil {
		log.Fatal(err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config load failed: ", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	job, err := newJob(ctx, cfg)
	if err != nil {
		log.Fatal("etl init failed: ", err)
	}

	runErr := job.Run(*task, id)
	if err := job.Shutdown(cfg.ShutdownTimeoutDuration()); err != nil {
		job.infra.Logger.Error("shutdown failed", "error", err)
	}
	if runErr != nil {
		os.Exit(1)
	}
}

func resolveRunID(task, runID string) (uuid.UUID, error) {
	if runID == "" {
		if task != "" {
			return uuid.Nil, fmt.Errorf("-task %s requires -run-id", task)
		}
		return uuid.New(), nil
	}
	id, err := uuid.Parse(runID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid -run-id: %w", err)
	}
	return id, nil
}
