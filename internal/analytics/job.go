package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"golang.org/x/sync/errgroup"

	"github.com/JaimeStill/healthplan-dw/internal/document"
	"github.com/JaimeStill/healthplan-dw/internal/plans"
)

// Source is the document store holding the plans.
type Source interface {
	SourceCollection() string
	FindAll(ctx context.Context, collection string) ([]bson.M, error)
}

// Job computes a report and publishes it to every sink.
type Job struct {
	source Source
	sinks  []Sink
	opts   Options
	logger *slog.Logger
}

// NewJob creates a job.
func NewJob(source Source, sinks []Sink, opts Options, logger *slog.Logger) (*Job, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Job{
		source: source,
		sinks:  sinks,
		opts:   opts,
		logger: logger.With("system", "analytics"),
	}, nil
}

// Run reads every plan, computes the report and writes it to the sinks
// concurrently. The first sink failure cancels the others.
func (j *Job) Run(ctx context.Context) (*Report, error) {
	start := time.Now()

	ps, err := j.readPlans(ctx)
	if err != nil {
		return nil, err
	}

	report, err := j.compute(ctx, ps)
	if err != nil {
		return nil, err
	}

	j.logger.Info("analytics computed",
		"plans", report.Plans,
		"cost_trends", len(report.CostTrends),
		"service_patterns", len(report.ServicePatterns),
		"anomalies", len(report.Anomalies),
		"monthly_metrics", len(report.MonthlyMetrics),
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range j.sinks {
		g.Go(func() error {
			if err := s.Write(gctx, report); err != nil {
				j.logger.Error("sink failed", "sink", s.Name(), "error", err)
				return fmt.Errorf("%s sink: %w", s.Name(), err)
			}
			j.logger.Info("sink written", "sink", s.Name())
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	j.logger.Info("analytics finished", "duration", time.Since(start))
	return report, nil
}

func (j *Job) readPlans(ctx context.Context) ([]plans.Plan, error) {
	collection := j.source.SourceCollection()
	raw, err := j.source.FindAll(ctx, collection)
	if err != nil {
		return nil, err
	}

	docs, failed := document.NormalizeAll(raw)
	for _, f := range failed {
		j.logger.Warn("plan document skipped", "index", f.Index, "id", f.ID, "error", f.Err)
	}

	ps := make([]plans.Plan, 0, len(docs))
	for i, doc := range docs {
		p, _, err := plans.FromDocument(doc, j.opts.Mapping)
		if err != nil {
			j.logger.Warn("plan document skipped", "index", i, "error", err)
			continue
		}
		ps = append(ps, p)
	}
	return ps, nil
}

func (j *Job) compute(ctx context.Context, ps []plans.Plan) (*Report, error) {
	engine, err := NewEngine(ctx)
	if err != nil {
		return nil, err
	}
	defer engine.Close()

	if err := engine.Load(ctx, ps); err != nil {
		return nil, err
	}

	report, err := engine.Compute(ctx, j.opts.AnomalyThreshold, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	report.Plans = len(ps)
	return report, nil
}
