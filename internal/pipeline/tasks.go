package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JaimeStill/healthplan-dw/internal/document"
	"github.com/JaimeStill/healthplan-dw/internal/handoff"
	"github.com/JaimeStill/healthplan-dw/internal/warehouse"
	"github.com/JaimeStill/healthplan-dw/pkg/metrics"
)

// Handoff keys.
const (
	keyDocuments = "documents"
	keySummary   = "summary"
	keyReport    = "report"
)

// Extracted is the extract task's handoff payload. Rejected counts source
// documents that could not be normalized.
type Extracted struct {
	StartedAt time.Time        `json:"started_at"`
	Documents []document.Value `json:"documents"`
	Rejected  int              `json:"rejected"`
}

// Summary is the transform_load task's handoff payload.
type Summary struct {
	StartedAt time.Time           `json:"started_at"`
	Stats     warehouse.LoadStats `json:"stats"`
}

func (p *Pipeline) checkSource(ctx context.Context, r *run) error {
	if err := p.source.Ping(ctx); err != nil {
		return err
	}

	collection := p.source.SourceCollection()
	n, err := p.source.Count(ctx, collection)
	if err != nil {
		return err
	}
	r.logger.Info("document store reachable", "collection", collection, "documents", n)
	return nil
}

func (p *Pipeline) checkWarehouse(ctx context.Context, r *run) error {
	if err := p.db.Ping(ctx); err != nil {
		return err
	}
	r.logger.Info("warehouse reachable")
	return nil
}

func (p *Pipeline) extract(ctx context.Context, r *run) error {
	collection := p.source.SourceCollection()

	raw, err := p.source.FindAll(ctx, collection)
	if err != nil {
		return err
	}

	docs, failed := document.NormalizeAll(raw)
	for _, f := range failed {
		r.logger.Warn("plan document rejected", "index", f.Index, "id", f.ID, "error", f.Err)
	}

	payload := Extracted{StartedAt: r.start, Documents: docs, Rejected: len(failed)}
	if err := p.handoff.Put(ctx, r.id, TaskExtract, keyDocuments, payload); err != nil {
		return err
	}

	r.logger.Info("documents extracted",
		"collection", collection,
		"count", len(docs),
		"rejected", len(failed),
	)
	return nil
}

func (p *Pipeline) transformLoad(ctx context.Context, r *run) error {
	var in Extracted
	if err := p.handoff.Get(ctx, r.id, TaskExtract, keyDocuments, &in); err != nil {
		return err
	}

	records, stats := Transform(in.Documents, p.opts.Mapping, r.logger)
	stats.Processed += in.Rejected
	stats.Failed += in.Rejected

	loaded, err := p.wh.Load(ctx, records)
	stats.Add(loaded)
	p.recordStats(stats)
	if err != nil {
		return err
	}

	out := Summary{StartedAt: in.StartedAt, Stats: stats}
	if err := p.handoff.Put(ctx, r.id, TaskTransformLoad, keySummary, out); err != nil {
		return err
	}
	p.release(ctx, r, TaskExtract, keyDocuments)

	r.logger.Info(warehouse.ExecutionMessage(stats),
		"processed", stats.Processed,
		"failed", stats.Failed,
		"services_skipped", stats.ServicesSkipped,
	)
	return nil
}

func (p *Pipeline) recordStats(s warehouse.LoadStats) {
	p.metrics.AddRecords(metrics.OutcomeInserted, s.Inserted)
	p.metrics.AddRecords(metrics.OutcomeUpdated, s.Updated)
	p.metrics.AddRecords(metrics.OutcomeUnchanged, s.Unchanged)
	p.metrics.AddRecords(metrics.OutcomeFailed, s.Failed)
	p.metrics.AddServices(metrics.OutcomeLoaded, s.ServicesLoaded)
	p.metrics.AddServices(metrics.OutcomeSkipped, s.ServicesSkipped)
}

func (p *Pipeline) qualityChecks(ctx context.Context, r *run) error {
	report, err := p.wh.CheckQuality(ctx, p.opts.Quality)
	if err != nil {
		return err
	}

	for _, c := range report.Results {
		p.metrics.SetQualityIssues(c.Check, c.Count)
	}

	if err := p.handoff.Put(ctx, r.id, TaskQualityChecks, keyReport, report); err != nil {
		return err
	}

	r.logger.Info("quality checks complete",
		"checks", len(report.Results),
		"issues", len(report.Issues()),
	)
	return nil
}

func (p *Pipeline) refreshAggregates(ctx context.Context, r *run) error {
	n, err := p.wh.RefreshDailyAggregates(ctx, p.opts.RebuildAggregates)
	if err != nil {
		return err
	}
	r.logger.Info("aggregates refreshed", "rows", n)
	return nil
}

func (p *Pipeline) auditLog(ctx context.Context, r *run) error {
	var summary Summary
	if err := p.handoff.Get(ctx, r.id, TaskTransformLoad, keySummary, &summary); err != nil {
		return err
	}

	var report warehouse.QualityReport
	err := p.handoff.Get(ctx, r.id, TaskQualityChecks, keyReport, &report)
	if err != nil && !errors.Is(err, handoff.ErrNotFound) {
		return err
	}

	issues := len(report.Issues())
	entry := p.auditEntry(r, summary.Stats)
	if !summary.StartedAt.IsZero() {
		entry.StartTime = summary.StartedAt
	}
	entry.Status = warehouse.StatusFor(summary.Stats, nil, issues, p.opts.BlockOnQuality)
	entry.ExecutionMessage = warehouse.ExecutionMessage(summary.Stats)
	if issues > 0 {
		entry.ErrorMessage = fmt.Sprintf("%d data quality checks flagged rows", issues)
	}

	if err := p.wh.WriteAudit(ctx, entry); err != nil {
		return err
	}

	p.release(ctx, r, TaskTransformLoad, keySummary)
	p.release(ctx, r, TaskQualityChecks, keyReport)
	return nil
}

func (p *Pipeline) release(ctx context.Context, r *run, task, key string) {
	if err := p.handoff.Delete(ctx, r.id, task, key); err != nil {
		r.logger.Warn("handoff payload not released", "task", task, "key", key, "error", err)
	}
}
