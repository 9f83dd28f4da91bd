package warehouse

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/JaimeStill/healthplan-dw/pkg/repository"
)

// QualityLimits bound the cost range check.
type QualityLimits struct {
	MaxDeductible decimal.Decimal
}

// CheckResult is the outcome of one data quality check.
type CheckResult struct {
	Check       string `json:"check"`
	Description string `json:"description"`
	Count       int64  `json:"count"`
}

// Passed reports whether the check flagged no rows.
func (r CheckResult) Passed() bool {
	return r.Count == 0
}

// QualityReport holds every check result of one pass.
type QualityReport struct {
	Results []CheckResult `json:"results"`
}

// Issues returns the results that flagged rows.
func (r QualityReport) Issues() []CheckResult {
	var out []CheckResult
	for _, c := range r.Results {
		if !c.Passed() {
			out = append(out, c)
		}
	}
	return out
}

type qualityCheck struct {
	name        string
	description string
	query       string
	args        func(QualityLimits) []any
}

var qualityChecks = []qualityCheck{
	{
		name:        "plan_null_keys",
		description: "plans with NULL critical values",
		query:       `SELECT COUNT(*) FROM dim_plan WHERE plan_id IS NULL OR plan_type_key IS NULL`,
	},
	{
		name:        "plan_cost_range",
		description: "plans with invalid cost values",
		query: `
			SELECT COUNT(*) FROM fact_plan_costs
			WHERE deductible < 0 OR copay < 0 OR deductible > $1`,
		args: func(l QualityLimits) []any { return []any{l.MaxDeductible} },
	},
	{
		name:        "orphaned_plan_costs",
		description: "orphaned cost records",
		query: `
			SELECT COUNT(*) FROM fact_plan_costs f
			LEFT JOIN dim_plan p ON p.plan_key = f.plan_key
			WHERE p.plan_key IS NULL`,
	},
	{
		name:        "orphaned_service_costs",
		description: "orphaned service cost records",
		query: `
			SELECT COUNT(*) FROM fact_service_costs f
			LEFT JOIN dim_plan p ON p.plan_key = f.plan_key
			LEFT JOIN dim_service s ON s.service_key = f.service_key
			WHERE p.plan_key IS NULL OR s.service_key IS NULL`,
	},
}

func checkQuality(ctx context.Context, q repository.Querier, limits QualityLimits) (QualityReport, error) {
	report := QualityReport{Results: make([]CheckResult, 0, len(qualityChecks))}

	for _, c := range qualityChecks {
		var args []any
		if c.args != nil {
			args = c.args(limits)
		}

		n, err := repository.QueryOne(ctx, q, c.query, args, scanCount)
		if err != nil {
			return report, fmt.Errorf("quality check %s: %w", c.name, err)
		}

		report.Results = append(report.Results, CheckResult{
			Check:       c.name,
			Description: c.description,
			Count:       n,
		})
	}
	return report, nil
}

func scanCount(s repository.Scanner) (int64, error) {
	var n int64
	err := s.Scan(&n)
	return n, err
}
