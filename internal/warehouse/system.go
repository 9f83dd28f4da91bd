// Package warehouse writes mapped plan records into the dimensional schema
// and maintains the audit log, daily aggregates and data quality checks.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/JaimeStill/healthplan-dw/internal/plans"
	"github.com/JaimeStill/healthplan-dw/pkg/repository"
)

// Tables lists the warehouse tables in dependency order.
var Tables = []string{
	"dim_date",
	"dim_organization",
	"dim_plan_type",
	"dim_plan",
	"fact_plan_costs",
	"dim_service",
	"fact_service_costs",
	"agg_daily_plan_costs",
	"etl_audit_log",
}

// System is the public contract of the warehouse.
type System interface {
	// Load writes records with the get-or-create protocol.
	Load(ctx context.Context, records []plans.Record) (LoadStats, error)
	// RefreshDailyAggregates upserts agg_daily_plan_costs and returns the rows written.
	RefreshDailyAggregates(ctx context.Context, rebuild bool) (int64, error)
	// CheckQuality runs the post-load checks. It never modifies data.
	CheckQuality(ctx context.Context, limits QualityLimits) (QualityReport, error)
	// WriteAudit appends one etl_audit_log row.
	WriteAudit(ctx context.Context, entry AuditEntry) error
	// Counts returns the row count of every table in Tables.
	Counts(ctx context.Context) (map[string]int64, error)
}

type repo struct {
	db     *sql.DB
	writer *Writer
	logger *slog.Logger
}

// New creates the warehouse system over db.
func New(db *sql.DB, logger *slog.Logger, opts Options) (System, error) {
	logger = logger.With("system", "warehouse")

	w, err := NewWriter(db, logger, opts)
	if err != nil {
		return nil, err
	}

	return &repo{
		db:     db,
		writer: w,
		logger: logger,
	}, nil
}

func (r *repo) Load(ctx context.Context, records []plans.Record) (LoadStats, error) {
	return r.writer.Load(ctx, records)
}

func (r *repo) RefreshDailyAggregates(ctx context.Context, rebuild bool) (int64, error) {
	n, err := refreshAggregates(ctx, r.db, rebuild)
	if err != nil {
		return 0, err
	}
	r.logger.Info("daily aggregates refreshed", "rows", n, "rebuild", rebuild)
	return n, nil
}

func (r *repo) CheckQuality(ctx context.Context, limits QualityLimits) (QualityReport, error) {
	report, err := checkQuality(ctx, r.db, limits)
	if err != nil {
		return report, err
	}

	issues := report.Issues()
	for _, c := range issues {
		r.logger.Warn("data quality issue",
			"check", c.Check,
			"count", c.Count,
			"message", fmt.Sprintf("found %d %s", c.Count, c.Description),
		)
	}
	if len(issues) == 0 {
		r.logger.Info("all data quality checks passed", "checks", len(report.Results))
	}
	return report, nil
}

func (r *repo) WriteAudit(ctx context.Context, entry AuditEntry) error {
	if err := writeAudit(ctx, r.db, entry); err != nil {
		return err
	}
	r.logger.Info("run audited",
		"run_id", entry.RunID,
		"status", entry.Status,
		"processed", entry.RecordsProcessed,
	)
	return nil
}

func (r *repo) Counts(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64, len(Tables))
	for _, table := range Tables {
		// Table names come from the fixed Tables list.
		n, err := repository.QueryOne(ctx, r.db, "SELECT COUNT(*) FROM "+table, nil, scanCount)
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}
