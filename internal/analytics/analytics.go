// Package analytics computes batch statistics over the plan documents with
// an in-process DuckDB engine and publishes them to the document store, the
// warehouse and optionally Parquet files.
package analytics

import (
	"errors"
	"fmt"
	"time"

	"github.com/JaimeStill/healthplan-dw/internal/plans"
)

// DefaultAnomalyThreshold is the |z| above which a plan is anomalous.
const DefaultAnomalyThreshold = 2.0

// Result collection and table names.
const (
	CostTrends      = "analytics_cost_trends"
	ServicePatterns = "analytics_service_patterns"
	Anomalies       = "analytics_anomalies"
	MonthlyMetrics  = "analytics_monthly_metrics"
)

// ErrInvalidThreshold indicates a non-positive anomaly threshold.
var ErrInvalidThreshold = errors.New("anomaly threshold must be positive")

// Options configure a job run.
type Options struct {
	Mapping          plans.Options
	AnomalyThreshold float64
}

// Validate checks the options.
func (o Options) Validate() error {
	if o.AnomalyThreshold <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidThreshold, o.AnomalyThreshold)
	}
	return o.Mapping.Validate()
}

// CostTrend summarizes total cost shares of one plan type.
type CostTrend struct {
	PlanType      string    `bson:"plan_type" parquet:"plan_type" json:"plan_type"`
	PlanCount     int64     `bson:"plan_count" parquet:"plan_count" json:"plan_count"`
	AvgDeductible float64   `bson:"avg_deductible" parquet:"avg_deductible" json:"avg_deductible"`
	AvgCopay      float64   `bson:"avg_copay" parquet:"avg_copay" json:"avg_copay"`
	AvgTotal      float64   `bson:"avg_total_cost" parquet:"avg_total_cost" json:"avg_total_cost"`
	MinTotal      float64   `bson:"min_total_cost" parquet:"min_total_cost" json:"min_total_cost"`
	MaxTotal      float64   `bson:"max_total_cost" parquet:"max_total_cost" json:"max_total_cost"`
	StddevTotal   *float64  `bson:"stddev_total_cost" parquet:"stddev_total_cost,optional" json:"stddev_total_cost"`
	ComputedAt    time.Time `bson:"computed_at" parquet:"computed_at" json:"computed_at"`
}

// ServicePattern is the popularity of one service name across plans.
// ServiceType is the lowest type recorded under that name.
type ServicePattern struct {
	ServiceName   string    `bson:"service_name" parquet:"service_name" json:"service_name"`
	ServiceType   string    `bson:"service_type" parquet:"service_type" json:"service_type"`
	Frequency     int64     `bson:"frequency" parquet:"frequency" json:"frequency"`
	AvgCopay      float64   `bson:"avg_copay" parquet:"avg_copay" json:"avg_copay"`
	AvgDeductible float64   `bson:"avg_deductible" parquet:"avg_deductible" json:"avg_deductible"`
	ComputedAt    time.Time `bson:"computed_at" parquet:"computed_at" json:"computed_at"`
}

// Anomaly is a plan whose total cost lies beyond the threshold in standard
// deviations from its plan type mean.
type Anomaly struct {
	PlanID      string    `bson:"plan_id" parquet:"plan_id" json:"plan_id"`
	PlanType    string    `bson:"plan_type" parquet:"plan_type" json:"plan_type"`
	OrgID       string    `bson:"org_id" parquet:"org_id" json:"org_id"`
	TotalCost   float64   `bson:"total_cost" parquet:"total_cost" json:"total_cost"`
	MeanTotal   float64   `bson:"mean_cost" parquet:"mean_cost" json:"mean_cost"`
	StddevTotal float64   `bson:"stddev_cost" parquet:"stddev_cost" json:"stddev_cost"`
	ZScore      float64   `bson:"z_score" parquet:"z_score" json:"z_score"`
	ComputedAt  time.Time `bson:"computed_at" parquet:"computed_at" json:"computed_at"`
}

// MonthlyMetric aggregates plans created in one month per plan type.
type MonthlyMetric struct {
	Year         int32     `bson:"year" parquet:"year" json:"year"`
	Month        int32     `bson:"month" parquet:"month" json:"month"`
	PlanType     string    `bson:"plan_type" parquet:"plan_type" json:"plan_type"`
	PlansCreated int64     `bson:"plans_created" parquet:"plans_created" json:"plans_created"`
	AvgTotal     float64   `bson:"avg_total_cost" parquet:"avg_total_cost" json:"avg_total_cost"`
	SumTotal     float64   `bson:"total_revenue" parquet:"total_revenue" json:"total_revenue"`
	ComputedAt   time.Time `bson:"computed_at" parquet:"computed_at" json:"computed_at"`
}

// Report is the full output of one run.
type Report struct {
	ComputedAt      time.Time
	Plans           int
	CostTrends      []CostTrend
	ServicePatterns []ServicePattern
	Anomalies       []Anomaly
	MonthlyMetrics  []MonthlyMetric
}
