package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"

	"github.com/JaimeStill/healthplan-dw/pkg/repository"
)

// Sink publishes a report.
type Sink interface {
	Name() string
	Write(ctx context.Context, r *Report) error
}

// DocumentStore replaces whole collections.
type DocumentStore interface {
	Replace(ctx context.Context, collection string, docs []any) error
}

type documentSink struct {
	store DocumentStore
}

// NewDocumentSink replaces the analytics_* collections of store.
func NewDocumentSink(store DocumentStore) Sink {
	return &documentSink{store: store}
}

func (s *documentSink) Name() string { return "docstore" }

func (s *documentSink) Write(ctx context.Context, r *Report) error {
	sets := []struct {
		collection string
		docs       []any
	}{
		{CostTrends, toAny(r.CostTrends)},
		{ServicePatterns, toAny(r.ServicePatterns)},
		{Anomalies, toAny(r.Anomalies)},
		{MonthlyMetrics, toAny(r.MonthlyMetrics)},
	}
	for _, set := range sets {
		if err := s.store.Replace(ctx, set.collection, set.docs); err != nil {
			return fmt.Errorf("replace %s: %w", set.collection, err)
		}
	}
	return nil
}

func toAny[T any](rows []T) []any {
	out := make([]any, len(rows))
	for i, r := range rows {
		out[i] = r
	}
	return out
}

const (
	insertCostTrend = `
		INSERT INTO analytics_cost_trends (
			plan_type, plan_count, avg_deductible, avg_copay, avg_total_cost,
			min_total_cost, max_total_cost, stddev_total, computed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	insertServicePattern = `
		INSERT INTO analytics_service_patterns (
			service_name, service_type, frequency, avg_copay, avg_deductible, computed_at
		) VALUES ($1, $2, $3, $4, $5, $6)`

	insertAnomaly = `
		INSERT INTO analytics_anomalies (
			plan_id, plan_type, org_id, total_cost, mean_total, stddev_total, z_score, computed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	insertMonthlyMetric = `
		INSERT INTO analytics_monthly_metrics (
			year, month, plan_type, plans_created, avg_total_cost, sum_total_cost, computed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`
)

type warehouseSink struct {
	db *sql.DB
}

// NewWarehouseSink replaces the contents of the warehouse analytics_*
// tables in one transaction.
func NewWarehouseSink(db *sql.DB) Sink {
	return &warehouseSink{db: db}
}

func (s *warehouseSink) Name() string { return "warehouse" }

func (s *warehouseSink) Write(ctx context.Context, r *Report) error {
	_, err := repository.WithTx(ctx, s.db, func(tx *sql.Tx) (struct{}, error) {
		for _, table := range []string{CostTrends, ServicePatterns, Anomalies, MonthlyMetrics} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return struct{}{}, fmt.Errorf("clear %s: %w", table, err)
			}
		}

		for _, c := range r.CostTrends {
			if _, err := tx.ExecContext(ctx, insertCostTrend,
				c.PlanType, c.PlanCount, c.AvgDeductible, c.AvgCopay, c.AvgTotal,
				c.MinTotal, c.MaxTotal, c.StddevTotal, c.ComputedAt,
			); err != nil {
				return struct{}{}, fmt.Errorf("insert cost trend %s: %w", c.PlanType, err)
			}
		}
		for _, p := range r.ServicePatterns {
			if _, err := tx.ExecContext(ctx, insertServicePattern,
				p.ServiceName, p.ServiceType, p.Frequency, p.AvgCopay, p.AvgDeductible, p.ComputedAt,
			); err != nil {
				return struct{}{}, fmt.Errorf("insert service pattern %s: %w", p.ServiceName, err)
			}
		}
		for _, a := range r.Anomalies {
			if _, err := tx.ExecContext(ctx, insertAnomaly,
				a.PlanID, a.PlanType, a.OrgID, a.TotalCost, a.MeanTotal, a.StddevTotal, a.ZScore, a.ComputedAt,
			); err != nil {
				return struct{}{}, fmt.Errorf("insert anomaly %s: %w", a.PlanID, err)
			}
		}
		for _, m := range r.MonthlyMetrics {
			if _, err := tx.ExecContext(ctx, insertMonthlyMetric,
				m.Year, m.Month, m.PlanType, m.PlansCreated, m.AvgTotal, m.SumTotal, m.ComputedAt,
			); err != nil {
				return struct{}{}, fmt.Errorf("insert monthly metric %d-%02d %s: %w", m.Year, m.Month, m.PlanType, err)
			}
		}
		return struct{}{}, nil
	})
	return err
}

type parquetSink struct {
	dir string
}

// NewParquetSink writes one <name>.parquet file per result set into dir.
func NewParquetSink(dir string) Sink {
	return &parquetSink{dir: dir}
}

func (s *parquetSink) Name() string { return "parquet" }

func (s *parquetSink) Write(_ context.Context, r *Report) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	if err := writeParquet(s.path(CostTrends), r.CostTrends); err != nil {
		return err
	}
	if err := writeParquet(s.path(ServicePatterns), r.ServicePatterns); err != nil {
		return err
	}
	if err := writeParquet(s.path(Anomalies), r.Anomalies); err != nil {
		return err
	}
	return writeParquet(s.path(MonthlyMetrics), r.MonthlyMetrics)
}

func (s *parquetSink) path(name string) string {
	return filepath.Join(s.dir, name+".parquet")
}

func writeParquet[T any](path string, rows []T) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	writer := parquet.NewGenericWriter[T](file, parquet.Compression(&parquet.Snappy))
	if _, err := writer.Write(rows); err != nil {
		file.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := writer.Close(); err != nil {
		file.Close()
		return fmt.Errorf("close %s writer: %w", path, err)
	}
	return file.Close()
}
