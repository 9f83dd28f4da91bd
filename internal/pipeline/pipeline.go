// Package pipeline runs the scheduled extract, transform-and-load chain.
//
// The chain is a fixed sequence of tasks. RunAll executes it in one process;
// RunTask executes a single task so an external scheduler can drive the
// chain step by step. Tasks exchange data only through the handoff store.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/JaimeStill/healthplan-dw/internal/handoff"
	"github.com/JaimeStill/healthplan-dw/internal/plans"
	"github.com/JaimeStill/healthplan-dw/internal/warehouse"
	"github.com/JaimeStill/healthplan-dw/pkg/metrics"
)

// Task names in chain order.
const (
	TaskCheckSource       = "check_source"
	TaskCheckWarehouse    = "check_warehouse"
	TaskExtract           = "extract"
	TaskTransformLoad     = "transform_load"
	TaskQualityChecks     = "quality_checks"
	TaskRefreshAggregates = "refresh_aggregates"
	TaskAuditLog          = "audit_log"
)

// Chain returns the task names in execution order.
func Chain() []string {
	return []string{
		TaskCheckSource,
		TaskCheckWarehouse,
		TaskExtract,
		TaskTransformLoad,
		TaskQualityChecks,
		TaskRefreshAggregates,
		TaskAuditLog,
	}
}

// ErrUnknownTask indicates a task name that is not part of the chain.
var ErrUnknownTask = errors.New("unknown task")

// Source is the document store read by the extract task.
type Source interface {
	Ping(ctx context.Context) error
	SourceCollection() string
	Count(ctx context.Context, collection string) (int64, error)
	FindAll(ctx context.Context, collection string) ([]bson.M, error)
}

// Pinger verifies a connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configure a pipeline.
type Options struct {
	JobName           string
	JobType           string
	SourceSystem      string
	TargetTable       string
	Mapping           plans.Options
	Quality           warehouse.QualityLimits
	BlockOnQuality    bool
	RebuildAggregates bool
}

// Deps are the systems a pipeline drives.
type Deps struct {
	Source    Source
	Database  Pinger
	Warehouse warehouse.System
	Handoff   handoff.Store
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

type task struct {
	name string
	run  func(ctx context.Context, r *run) error
}

type run struct {
	id     uuid.UUID
	start  time.Time
	logger *slog.Logger
}

// Pipeline is the task chain of one job.
type Pipeline struct {
	source  Source
	db      Pinger
	wh      warehouse.System
	handoff handoff.Store
	metrics *metrics.Metrics
	logger  *slog.Logger
	opts    Options
	tasks   []task
}

// New assembles a pipeline.
func New(deps Deps, opts Options) (*Pipeline, error) {
	if err := opts.Mapping.Validate(); err != nil {
		return nil, err
	}

	p := &Pipeline{
		source:  deps.Source,
		db:      deps.Database,
		wh:      deps.Warehouse,
		handoff: deps.Handoff,
		metrics: deps.Metrics,
		logger:  deps.Logger.With("system", "pipeline"),
		opts:    opts,
	}

	p.tasks = []task{
		{TaskCheckSource, p.checkSource},
		{TaskCheckWarehouse, p.checkWarehouse},
		{TaskExtract, p.extract},
		{TaskTransformLoad, p.transformLoad},
		{TaskQualityChecks, p.qualityChecks},
		{TaskRefreshAggregates, p.refreshAggregates},
		{TaskAuditLog, p.auditLog},
	}
	return p, nil
}

// Tasks returns the task names in chain order.
func (p *Pipeline) Tasks() []string {
	names := make([]string, len(p.tasks))
	for i, t := range p.tasks {
		names[i] = t.name
	}
	return names
}

// RunAll executes every task in order. The first failure stops the chain;
// a FAILED audit row is then written when the warehouse still accepts it.
func (p *Pipeline) RunAll(ctx context.Context, id uuid.UUID) error {
	r := p.newRun(id)
	r.logger.Info("run started", "tasks", len(p.tasks))

	for _, t := range p.tasks {
		if err := p.exec(ctx, r, t); err != nil {
			return errors.Join(err, p.auditFailure(ctx, r, t.name, err))
		}
	}

	p.metrics.MarkSuccess(time.Now())
	r.logger.Info("run finished", "duration", time.Since(r.start))
	return nil
}

// RunTask executes the named task alone as part of run id.
func (p *Pipeline) RunTask(ctx context.Context, id uuid.UUID, name string) error {
	i := slices.IndexFunc(p.tasks, func(t task) bool { return t.name == name })
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}

	r := p.newRun(id)
	if err := p.exec(ctx, r, p.tasks[i]); err != nil {
		return err
	}
	if name == TaskAuditLog {
		p.metrics.MarkSuccess(time.Now())
	}
	return nil
}

// Abort records a FAILED audit row for run id when it fails in stage before
// any task ran.
func (p *Pipeline) Abort(ctx context.Context, id uuid.UUID, stage string, cause error) error {
	return p.auditFailure(ctx, p.newRun(id), stage, cause)
}

func (p *Pipeline) newRun(id uuid.UUID) *run {
	return &run{
		id:     id,
		start:  time.Now().UTC(),
		logger: p.logger.With("run_id", id),
	}
}

func (p *Pipeline) exec(ctx context.Context, r *run, t task) error {
	logger := r.logger.With("task", t.name)
	logger.Info("task started")

	start := time.Now()
	err := t.run(ctx, &run{id: r.id, start: r.start, logger: logger})
	p.metrics.ObserveTask(t.name, time.Since(start))

	if err != nil {
		logger.Error("task failed", "error", err)
		return fmt.Errorf("%s: %w", t.name, err)
	}
	logger.Info("task finished", "duration", time.Since(start))
	return nil
}

func (p *Pipeline) auditFailure(ctx context.Context, r *run, taskName string, cause error) error {
	entry := p.auditEntry(r, warehouse.LoadStats{})
	entry.Status = warehouse.StatusFailed
	entry.ErrorMessage = cause.Error()
	entry.ExecutionMessage = fmt.Sprintf("Run aborted in %s", taskName)

	if err := p.wh.WriteAudit(ctx, entry); err != nil {
		r.logger.Error("failure audit not written", "error", err)
		return fmt.Errorf("audit failure: %w", err)
	}
	return nil
}

func (p *Pipeline) auditEntry(r *run, stats warehouse.LoadStats) warehouse.AuditEntry {
	return warehouse.AuditEntry{
		RunID:            r.id,
		JobName:          p.opts.JobName,
		JobType:          p.opts.JobType,
		SourceSystem:     p.opts.SourceSystem,
		TargetTable:      p.opts.TargetTable,
		StartTime:        r.start,
		EndTime:          time.Now().UTC(),
		RecordsProcessed: stats.Processed,
		RecordsInserted:  stats.Inserted,
		RecordsUpdated:   stats.Updated,
		RecordsFailed:    stats.Failed,
	}
}
