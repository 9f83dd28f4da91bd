package warehouse_test

import (
	"errors"
	"testing"

	"github.com/JaimeStill/healthplan-dw/internal/warehouse"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name   string
		stats  warehouse.LoadStats
		fatal  error
		issues int
		block  bool
		want   warehouse.Status
	}{
		{"clean", warehouse.LoadStats{Processed: 3}, nil, 0, false, warehouse.StatusSuccess},
		{"record failures", warehouse.LoadStats{Processed: 3, Failed: 1}, nil, 0, false, warehouse.StatusCompletedWithErrors},
		{"skipped services", warehouse.LoadStats{Processed: 3, ServicesSkipped: 2}, nil, 0, false, warehouse.StatusCompletedWithErrors},
		{"fatal", warehouse.LoadStats{}, errors.New("unreachable"), 0, false, warehouse.StatusFailed},
		{"quality reported only", warehouse.LoadStats{Processed: 1}, nil, 2, false, warehouse.StatusSuccess},
		{"quality blocks", warehouse.LoadStats{Processed: 1}, nil, 2, true, warehouse.StatusCompletedWithErrors},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := warehouse.StatusFor(tt.stats, tt.fatal, tt.issues, tt.block)
			if got != tt.want {
				t.Errorf("StatusFor() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestExecutionMessage(t *testing.T) {
	stats := warehouse.LoadStats{Processed: 12, Failed: 2, ServicesLoaded: 31}

	want := "Loaded 10 plans and 31 services"
	if got := warehouse.ExecutionMessage(stats); got != want {
		t.Errorf("ExecutionMessage() = %q, want %q", got, want)
	}
}

func TestLoadStatsAdd(t *testing.T) {
	a := warehouse.LoadStats{Processed: 2, Inserted: 1, Unchanged: 1, ServicesLoaded: 3}
	a.Add(warehouse.LoadStats{Processed: 1, Failed: 1, ServicesSkipped: 2})

	if a.Processed != 3 || a.Failed != 1 || a.ServicesSkipped != 2 || a.ServicesLoaded != 3 {
		t.Errorf("Add() = %+v", a)
	}
}

func TestOptionsValidate(t *testing.T) {
	if err := warehouse.DefaultOptions().Validate(); err != nil {
		t.Errorf("default options invalid: %v", err)
	}

	tests := []struct {
		name   string
		modify func(*warehouse.Options)
	}{
		{"commit mode", func(o *warehouse.Options) { o.CommitMode = "hourly" }},
		{"commit every", func(o *warehouse.Options) { o.CommitEvery = 0 }},
		{"plan policy", func(o *warehouse.Options) { o.PlanPolicy = "type2" }},
		{"service policy", func(o *warehouse.Options) { o.ServicePolicy = "merge" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := warehouse.DefaultOptions()
			tt.modify(&opts)
			if err := opts.Validate(); !errors.Is(err, warehouse.ErrInvalidOption) {
				t.Errorf("err = %v, want ErrInvalidOption", err)
			}
		})
	}

	tiered := warehouse.DefaultOptions()
	tiered.CommitMode = warehouse.CommitTiered
	tiered.CommitEvery = 0
	if err := tiered.Validate(); err != nil {
		t.Errorf("tiered mode ignores commit_every: %v", err)
	}
}

func TestQualityReportIssues(t *testing.T) {
	report := warehouse.QualityReport{Results: []warehouse.CheckResult{
		{Check: "a", Count: 0},
		{Check: "b", Count: 4},
	}}

	issues := report.Issues()
	if len(issues) != 1 || issues[0].Check != "b" {
		t.Errorf("Issues() = %+v", issues)
	}
}
