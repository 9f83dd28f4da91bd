package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/healthplan-dw/internal/config"
	"github.com/JaimeStill/healthplan-dw/internal/infrastructure"
	"github.com/JaimeStill/healthplan-dw/internal/pipeline"
	"github.com/JaimeStill/healthplan-dw/internal/warehouse"
)

type Job struct {
	infra    *infrastructure.Infrastructure
	pipeline *pipeline.Pipeline
	cfg      *config.Config
}

func newJob(ctx context.Context, cfg *config.Config) (*Job, error) {
	infra, err := infrastructure.New(ctx, cfg, os.Stderr)
	if err != nil {
		return nil, err
	}

	wh, err := warehouse.New(infra.Database.Connection(), infra.Logger, cfg.Pipeline.Writer())
	if err != nil {
		return nil, err
	}

	p, err := pipeline.New(pipeline.Deps{
		Source:    infra.Docstore,
		Database:  infra.Database,
		Warehouse: wh,
		Handoff:   infra.Handoff,
		Metrics:   infra.Metrics,
		Logger:    infra.Logger,
	}, pipeline.Options{
		JobName:           cfg.Pipeline.JobName,
		JobType:           cfg.Pipeline.JobType,
		SourceSystem:      cfg.Pipeline.SourceSystem,
		TargetTable:       cfg.Pipeline.TargetTable,
		Mapping:           cfg.Pipeline.Mapping(),
		Quality:           cfg.Quality.Limits(),
		BlockOnQuality:    cfg.Quality.BlockSuccess,
		RebuildAggregates: cfg.Pipeline.RebuildAggregates,
	})
	if err != nil {
		return nil, err
	}

	infra.Logger.Info(
		"etl initialized",
		"version", cfg.Version,
		"env", cfg.Env(),
		"commit_mode", cfg.Pipeline.CommitMode,
		"handoff", cfg.Handoff.Backend,
	)

	return &Job{infra: infra, pipeline: p, cfg: cfg}, nil
}

// Run executes the whole chain, or only task when it is set. A startup
// failure of the whole chain is still recorded in the audit log.
func (j *Job) Run(task string, id uuid.UUID) error {
	ctx := j.infra.Lifecycle.Context()

	if err := j.infra.Start(); err != nil {
		return err
	}
	if err := j.infra.Lifecycle.Startup(j.cfg.StartupTimeoutDuration()); err != nil {
		j.infra.Logger.Error("startup failed", "error", err)
		if task == "" {
			return errors.Join(err, j.pipeline.Abort(ctx, id, "startup", err))
		}
		return err
	}

	var err error
	if task == "" {
		err = j.pipeline.RunAll(ctx, id)
	} else {
		err = j.pipeline.RunTask(ctx, id, task)
	}

	if perr := j.infra.Metrics.Push(ctx); perr != nil {
		j.infra.Logger.Warn("metrics push failed", "error", perr)
	}
	return err
}

func (j *Job) Shutdown(timeout time.Duration) error {
	j.infra.Logger.Info("releasing connections")
	return j.infra.Lifecycle.Shutdown(timeout)
}
