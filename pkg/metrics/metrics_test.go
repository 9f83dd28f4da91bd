package metrics_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/JaimeStill/healthplan-dw/pkg/metrics"
)

func TestFinalize(t *testing.T) {
	tests := []struct {
		name    string
		cfg     metrics.Config
		wantErr string
	}{
		{"defaults", metrics.Config{}, ""},
		{"push url", metrics.Config{PushURL: "http://pushgateway:9091"}, ""},
		{"bad push url", metrics.Config{PushURL: "not a url"}, "invalid push_url"},
		{"bad timeout", metrics.Config{Timeout: "later"}, "invalid timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Finalize(nil)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if tt.cfg.Job != "healthplan_etl" {
					t.Errorf("job default: got %s", tt.cfg.Job)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("got %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestMerge(t *testing.T) {
	base := metrics.Config{Job: "healthplan_etl", Timeout: "10s"}
	base.Merge(&metrics.Config{PushURL: "http://pushgateway:9091"})

	if base.PushURL != "http://pushgateway:9091" || base.Job != "healthplan_etl" || base.Timeout != "10s" {
		t.Errorf("merge result: %+v", base)
	}
}

func TestCollectors(t *testing.T) {
	m := metrics.New(metrics.Config{Job: "healthplan_etl", Timeout: "1s"})

	m.AddRecords(metrics.OutcomeInserted, 3)
	m.AddRecords(metrics.OutcomeInserted, 2)
	m.AddServices(metrics.OutcomeSkipped, 1)
	m.SetQualityIssues("plan_cost_range", 4)
	m.ObserveTask("extract", 1500*time.Millisecond)

	expected := `
# HELP hpdw_records_total Plan documents processed by the warehouse writer, by outcome
# TYPE hpdw_records_total counter
hpdw_records_total{outcome="inserted"} 5
`
	if err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "hpdw_records_total"); err != nil {
		t.Errorf("records: %v", err)
	}

	expected = `
# HELP hpdw_quality_issues Rows flagged by each post-load data quality check
# TYPE hpdw_quality_issues gauge
hpdw_quality_issues{check="plan_cost_range"} 4
`
	if err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "hpdw_quality_issues"); err != nil {
		t.Errorf("quality issues: %v", err)
	}

	expected = `
# HELP hpdw_task_duration_seconds Wall time of the last execution of each pipeline task
# TYPE hpdw_task_duration_seconds gauge
hpdw_task_duration_seconds{task="extract"} 1.5
`
	if err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "hpdw_task_duration_seconds"); err != nil {
		t.Errorf("task duration: %v", err)
	}
}

func TestPushDisabled(t *testing.T) {
	m := metrics.New(metrics.Config{Job: "healthplan_etl", Timeout: "1s"})

	if m.Enabled() {
		t.Error("metrics without push_url should be disabled")
	}
	if err := m.Push(context.Background()); err != nil {
		t.Errorf("Push() without gateway: %v", err)
	}
}

func TestPush(t *testing.T) {
	var (
		method string
		path   string
		body   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := metrics.New(metrics.Config{PushURL: srv.URL, Job: "healthplan_etl", Timeout: "5s"})
	m.MarkSuccess(time.Unix(1700000000, 0))

	if err := m.Push(context.Background()); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if method != http.MethodPut {
		t.Errorf("method: got %s, want PUT", method)
	}
	if path != "/metrics/job/healthplan_etl" {
		t.Errorf("path: got %s", path)
	}
	if body == "" {
		t.Error("push body is empty")
	}
}

func TestPushFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	m := metrics.New(metrics.Config{PushURL: srv.URL, Job: "healthplan_etl", Timeout: "5s"})
	if err := m.Push(context.Background()); err == nil {
		t.Fatal("expected push error")
	}
}
