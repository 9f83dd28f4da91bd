package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/JaimeStill/healthplan-dw/internal/plans"
	"github.com/JaimeStill/healthplan-dw/pkg/repository"
)

var engineSchema = []string{`
	CREATE TABLE plans (
		plan_id       VARCHAR NOT NULL,
		org_id        VARCHAR NOT NULL,
		plan_type     VARCHAR NOT NULL,
		creation_date DATE NOT NULL,
		deductible    DOUBLE NOT NULL,
		copay         DOUBLE NOT NULL
	)`, `
	CREATE TABLE services (
		plan_id      VARCHAR NOT NULL,
		plan_type    VARCHAR NOT NULL,
		service_name VARCHAR NOT NULL,
		service_type VARCHAR NOT NULL,
		deductible   DOUBLE NOT NULL,
		copay        DOUBLE NOT NULL
	)`,
}

const (
	insertPlan    = `INSERT INTO plans VALUES (?, ?, ?, CAST(? AS DATE), ?, ?)`
	insertService = `INSERT INTO services VALUES (?, ?, ?, ?, ?, ?)`

	costTrendsQuery = `
		SELECT plan_type,
			count(*),
			avg(deductible),
			avg(copay),
			avg(deductible + copay),
			min(deductible + copay),
			max(deductible + copay),
			stddev_samp(deductible + copay)
		FROM plans
		GROUP BY plan_type
		ORDER BY plan_type`

	servicePatternsQuery = `
		SELECT service_name, min(service_type), count(*), avg(copay), avg(deductible)
		FROM services
		GROUP BY service_name
		ORDER BY count(*) DESC, service_name`

	anomaliesQuery = `
		WITH costs AS (
			SELECT plan_id, plan_type, org_id, deductible + copay AS total
			FROM plans
		), stats AS (
			SELECT plan_type, avg(total) AS mean, stddev_samp(total) AS sd
			FROM costs
			GROUP BY plan_type
		)
		SELECT c.plan_id, c.plan_type, c.org_id, c.total, s.mean, s.sd,
			(c.total - s.mean) / s.sd AS z
		FROM costs c
		JOIN stats s ON s.plan_type = c.plan_type
		WHERE s.sd > 0 AND abs((c.total - s.mean) / s.sd) > ?
		ORDER BY abs(z) DESC, c.plan_id`

	monthlyMetricsQuery = `
		SELECT year(creation_date), month(creation_date), plan_type,
			count(*),
			avg(deductible + copay),
			sum(deductible + copay)
		FROM plans
		GROUP BY 1, 2, 3
		ORDER BY 1, 2, 3`
)

// Engine is an in-memory DuckDB database holding one run's plans.
type Engine struct {
	db *sql.DB
}

// NewEngine opens an empty in-memory engine.
func NewEngine(ctx context.Context) (*Engine, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, stmt := range engineSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create engine schema: %w", err)
		}
	}
	return &Engine{db: db}, nil
}

// Close releases the engine.
func (e *Engine) Close() error {
	return e.db.Close()
}

// Load inserts plans and their linked services.
func (e *Engine) Load(ctx context.Context, ps []plans.Plan) error {
	_, err := repository.WithTx(ctx, e.db, func(tx *sql.Tx) (struct{}, error) {
		planStmt, err := tx.PrepareContext(ctx, insertPlan)
		if err != nil {
			return struct{}{}, err
		}
		defer planStmt.Close()

		svcStmt, err := tx.PrepareContext(ctx, insertService)
		if err != nil {
			return struct{}{}, err
		}
		defer svcStmt.Close()

		for _, p := range ps {
			_, err := planStmt.ExecContext(ctx,
				p.ID, p.OrgID, p.PlanType, p.CreationDate.String(),
				p.CostShares.Deductible.InexactFloat64(),
				p.CostShares.Copay.InexactFloat64(),
			)
			if err != nil {
				return struct{}{}, fmt.Errorf("load plan %s: %w", p.ID, err)
			}

			for _, s := range p.Services {
				_, err := svcStmt.ExecContext(ctx,
					p.ID, p.PlanType, s.Name, s.Type,
					s.CostShares.Deductible.InexactFloat64(),
					s.CostShares.Copay.InexactFloat64(),
				)
				if err != nil {
					return struct{}{}, fmt.Errorf("load service %s of plan %s: %w", s.Key, p.ID, err)
				}
			}
		}
		return struct{}{}, nil
	})
	return err
}

// Compute runs every analysis over the loaded plans.
func (e *Engine) Compute(ctx context.Context, threshold float64, at time.Time) (*Report, error) {
	r := &Report{ComputedAt: at}
	var err error

	r.CostTrends, err = repository.QueryMany(ctx, e.db, costTrendsQuery, nil, func(s repository.Scanner) (CostTrend, error) {
		var c CostTrend
		var sd sql.NullFloat64
		err := s.Scan(&c.PlanType, &c.PlanCount, &c.AvgDeductible, &c.AvgCopay,
			&c.AvgTotal, &c.MinTotal, &c.MaxTotal, &sd)
		if sd.Valid {
			c.StddevTotal = &sd.Float64
		}
		c.ComputedAt = at
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("cost trends: %w", err)
	}

	r.ServicePatterns, err = repository.QueryMany(ctx, e.db, servicePatternsQuery, nil, func(s repository.Scanner) (ServicePattern, error) {
		var p ServicePattern
		err := s.Scan(&p.ServiceName, &p.ServiceType, &p.Frequency, &p.AvgCopay, &p.AvgDeductible)
		p.ComputedAt = at
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("service patterns: %w", err)
	}

	r.Anomalies, err = repository.QueryMany(ctx, e.db, anomaliesQuery, []any{threshold}, func(s repository.Scanner) (Anomaly, error) {
		var a Anomaly
		err := s.Scan(&a.PlanID, &a.PlanType, &a.OrgID, &a.TotalCost, &a.MeanTotal, &a.StddevTotal, &a.ZScore)
		a.ComputedAt = at
		return a, err
	})
	if err != nil {
		return nil, fmt.Errorf("anomalies: %w", err)
	}

	r.MonthlyMetrics, err = repository.QueryMany(ctx, e.db, monthlyMetricsQuery, nil, func(s repository.Scanner) (MonthlyMetric, error) {
		var m MonthlyMetric
		err := s.Scan(&m.Year, &m.Month, &m.PlanType, &m.PlansCreated, &m.AvgTotal, &m.SumTotal)
		m.ComputedAt = at
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("monthly metrics: %w", err)
	}

	return r, nil
}
