package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/JaimeStill/healthplan-dw/internal/plans"
	"github.com/JaimeStill/healthplan-dw/internal/warehouse"
)

const (
	EnvPipelineJobName           = "HPDW_PIPELINE_JOB_NAME"
	EnvPipelineServiceKey        = "HPDW_PIPELINE_SERVICE_KEY"
	EnvPipelineCostPath          = "HPDW_PIPELINE_COST_PATH"
	EnvPipelineFallbackDate      = "HPDW_PIPELINE_FALLBACK_DATE"
	EnvPipelineCommitMode        = "HPDW_PIPELINE_COMMIT_MODE"
	EnvPipelineCommitEvery       = "HPDW_PIPELINE_COMMIT_EVERY"
	EnvPipelinePlanPolicy        = "HPDW_PIPELINE_PLAN_POLICY"
	EnvPipelineServicePolicy     = "HPDW_PIPELINE_SERVICE_POLICY"
	EnvPipelineRebuildAggregates = "HPDW_PIPELINE_REBUILD_AGGREGATES"
)

// PipelineConfig holds the ETL job identity, document coercion and warehouse
// writer settings.
type PipelineConfig struct {
	JobName           string `toml:"job_name"`
	JobType           string `toml:"job_type"`
	SourceSystem      string `toml:"source_system"`
	TargetTable       string `toml:"target_table"`
	ServiceKey        string `toml:"service_key"`
	CostPath          string `toml:"cost_path"`
	FallbackDate      string `toml:"fallback_date"`
	CommitMode        string `toml:"commit_mode"`
	CommitEvery       int    `toml:"commit_every"`
	PlanPolicy        string `toml:"plan_policy"`
	ServicePolicy     string `toml:"service_policy"`
	RebuildAggregates bool   `toml:"rebuild_aggregates"`
}

// Mapping returns the document coercion options.
func (c *PipelineConfig) Mapping() plans.Options {
	d, _ := plans.ParseCalendarDate(c.FallbackDate)
	return plans.Options{
		ServiceKey:   plans.ServiceKey(c.ServiceKey),
		CostPath:     plans.CostPath(c.CostPath),
		FallbackDate: d,
	}
}

// Writer returns the warehouse writer options.
func (c *PipelineConfig) Writer() warehouse.Options {
	return warehouse.Options{
		CommitMode:    warehouse.CommitMode(c.CommitMode),
		CommitEvery:   c.CommitEvery,
		PlanPolicy:    warehouse.PlanPolicy(c.PlanPolicy),
		ServicePolicy: warehouse.ServicePolicy(c.ServicePolicy),
	}
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *PipelineConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *PipelineConfig) Merge(overlay *PipelineConfig) {
	if overlay.JobName != "" {
		c.JobName = overlay.JobName
	}
	if overlay.JobType != "" {
		c.JobType = overlay.JobType
	}
	if overlay.SourceSystem != "" {
		c.SourceSystem = overlay.SourceSystem
	}
	if overlay.TargetTable != "" {
		c.TargetTable = overlay.TargetTable
	}
	if overlay.ServiceKey != "" {
		c.ServiceKey = overlay.ServiceKey
	}
	if overlay.CostPath != "" {
		c.CostPath = overlay.CostPath
	}
	if overlay.FallbackDate != "" {
		c.FallbackDate = overlay.FallbackDate
	}
	if overlay.CommitMode != "" {
		c.CommitMode = overlay.CommitMode
	}
	if overlay.CommitEvery != 0 {
		c.CommitEvery = overlay.CommitEvery
	}
	if overlay.PlanPolicy != "" {
		c.PlanPolicy = overlay.PlanPolicy
	}
	if overlay.ServicePolicy != "" {
		c.ServicePolicy = overlay.ServicePolicy
	}
	if overlay.RebuildAggregates {
		c.RebuildAggregates = true
	}
}

func (c *PipelineConfig) loadDefaults() {
	if c.JobName == "" {
		c.JobName = "healthplan_etl"
	}
	if c.JobType == "" {
		c.JobType = "FULL_LOAD"
	}
	if c.SourceSystem == "" {
		c.SourceSystem = "mongodb"
	}
	if c.TargetTable == "" {
		c.TargetTable = "fact_plan_costs"
	}

	mapping := plans.DefaultOptions()
	if c.ServiceKey == "" {
		c.ServiceKey = string(mapping.ServiceKey)
	}
	if c.CostPath == "" {
		c.CostPath = string(mapping.CostPath)
	}
	if c.FallbackDate == "" {
		c.FallbackDate = mapping.FallbackDate.String()
	}

	writer := warehouse.DefaultOptions()
	if c.CommitMode == "" {
		c.CommitMode = string(writer.CommitMode)
	}
	if c.CommitEvery == 0 {
		c.CommitEvery = writer.CommitEvery
	}
	if c.PlanPolicy == "" {
		c.PlanPolicy = string(writer.PlanPolicy)
	}
	if c.ServicePolicy == "" {
		c.ServicePolicy = string(writer.ServicePolicy)
	}
}

func (c *PipelineConfig) loadEnv() {
	str := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	str(EnvPipelineJobName, &c.JobName)
	str(EnvPipelineServiceKey, &c.ServiceKey)
	str(EnvPipelineCostPath, &c.CostPath)
	str(EnvPipelineFallbackDate, &c.FallbackDate)
	str(EnvPipelineCommitMode, &c.CommitMode)
	str(EnvPipelinePlanPolicy, &c.PlanPolicy)
	str(EnvPipelineServicePolicy, &c.ServicePolicy)

	if v := os.Getenv(EnvPipelineCommitEvery); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.CommitEvery = n
		}
	}
	if v := os.Getenv(EnvPipelineRebuildAggregates); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.RebuildAggregates = b
		}
	}
}

func (c *PipelineConfig) validate() error {
	if c.JobName == "" {
		return fmt.Errorf("job_name required")
	}
	if _, err := plans.ParseCalendarDate(c.FallbackDate); err != nil {
		return fmt.Errorf("invalid fallback_date: %w", err)
	}
	if err := c.Mapping().Validate(); err != nil {
		return err
	}
	return c.Writer().Validate()
}
