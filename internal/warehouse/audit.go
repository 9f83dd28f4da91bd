package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/healthplan-dw/pkg/repository"
)

// Status is the outcome recorded for a run in etl_audit_log.
type Status string

const (
	StatusSuccess             Status = "SUCCESS"
	StatusCompletedWithErrors Status = "COMPLETED_WITH_ERRORS"
	StatusFailed              Status = "FAILED"
)

// AuditEntry is one etl_audit_log row.
type AuditEntry struct {
	RunID            uuid.UUID
	JobName          string
	JobType          string
	SourceSystem     string
	TargetTable      string
	StartTime        time.Time
	EndTime          time.Time
	Status           Status
	RecordsProcessed int
	RecordsInserted  int
	RecordsUpdated   int
	RecordsFailed    int
	ErrorMessage     string
	ExecutionMessage string
}

// StatusFor derives the run status. A fatal error is FAILED. Record failures,
// skipped services, or quality issues when blockOnQuality is set give
// COMPLETED_WITH_ERRORS.
func StatusFor(stats LoadStats, fatal error, qualityIssues int, blockOnQuality bool) Status {
	switch {
	case fatal != nil:
		return StatusFailed
	case stats.Failed > 0 || stats.ServicesSkipped > 0:
		return StatusCompletedWithErrors
	case blockOnQuality && qualityIssues > 0:
		return StatusCompletedWithErrors
	default:
		return StatusSuccess
	}
}

// ExecutionMessage renders the audit summary line.
func ExecutionMessage(stats LoadStats) string {
	return fmt.Sprintf("Loaded %d plans and %d services", stats.Processed-stats.Failed, stats.ServicesLoaded)
}

const insertAudit = `
	INSERT INTO etl_audit_log (
		run_id, job_name, job_type, source_system, target_table,
		start_time, end_time, status,
		records_processed, records_inserted, records_updated, records_failed,
		error_message, execution_message
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

func writeAudit(ctx context.Context, db repository.Executor, e AuditEntry) error {
	_, err := db.ExecContext(ctx, insertAudit,
		e.RunID, e.JobName, e.JobType, e.SourceSystem, e.TargetTable,
		e.StartTime, e.EndTime, string(e.Status),
		e.RecordsProcessed, e.RecordsInserted, e.RecordsUpdated, e.RecordsFailed,
		nullable(e.ErrorMessage), nullable(e.ExecutionMessage),
	)
	if err != nil {
		return fmt.Errorf("insert audit row: %w", err)
	}
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
