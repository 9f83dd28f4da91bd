package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"testing"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/JaimeStill/healthplan-dw/internal/document"
	"github.com/JaimeStill/healthplan-dw/internal/handoff"
	"github.com/JaimeStill/healthplan-dw/internal/pipeline"
	"github.com/JaimeStill/healthplan-dw/internal/plans"
	"github.com/JaimeStill/healthplan-dw/internal/warehouse"
	"github.com/JaimeStill/healthplan-dw/pkg/metrics"
)

type fakeSource struct {
	docs    []bson.M
	pingErr error
}

func (f *fakeSource) Ping(context.Context) error { return f.pingErr }
func (f *fakeSource) SourceCollection() string { return "plans" }
func (f *fakeSource) Count(context.Context, string) (int64, error) {
	return int64(len(f.docs)), nil
}
func (f *fakeSource) FindAll(context.Context, string) ([]bson.M, error) {
	return f.docs, nil
}

type fakeDB struct{ err error }

func (f fakeDB) Ping(context.Context) error { return f.err }

type fakeWarehouse struct {
	loaded  []plans.Record
	audits  []warehouse.AuditEntry
	report  warehouse.QualityReport
	loadErr error
}

func (f *fakeWarehouse) Load(_ context.Context, recs []plans.Record) (warehouse.LoadStats, error) {
	f.loaded = append(f.loaded, recs...)
	stats := warehouse.LoadStats{Processed: len(recs), Inserted: len(recs)}
	for _, r := range recs {
		stats.ServicesLoaded += len(r.Services)
	}
	return stats, f.loadErr
}

func (f *fakeWarehouse) RefreshDailyAggregates(context.Context, bool) (int64, error) {
	return 1, nil
}

func (f *fakeWarehouse) CheckQuality(context.Context, warehouse.QualityLimits) (warehouse.QualityReport, error) {
	return f.report, nil
}

func (f *fakeWarehouse) WriteAudit(_ context.Context, e warehouse.AuditEntry) error {
	f.audits = append(f.audits, e)
	return nil
}

func (f *fakeWarehouse) Counts(context.Context) (map[string]int64, error) {
	return nil, nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOptions() pipeline.Options {
	return pipeline.Options{
		JobName:      "healthplan_etl",
		JobType:      "FULL_LOAD",
		SourceSystem: "mongodb",
		TargetTable:  "fact_plan_costs",
		Mapping:      plans.DefaultOptions(),
	}
}

func newPipeline(t *testing.T, src *fakeSource, db fakeDB, wh *fakeWarehouse, opts pipeline.Options) (*pipeline.Pipeline, *metrics.Metrics) {
	t.Helper()
	m := metrics.New(metrics.Config{})
	p, err := pipeline.New(pipeline.Deps{
		Source:    src,
		Database:  db,
		Warehouse: wh,
		Handoff:   handoff.NewMemory(0),
		Metrics:   m,
		Logger:    discard(),
	}, opts)
	if err != nil {
		t.Fatalf("pipeline.New failed: %v", err)
	}
	return p, m
}

func sourceDocs() []bson.M {
	return []bson.M{
		{
			"_id":          bson.NewObjectID(),
			"objectId":     "P1",
			"_org":         "OrgA",
			"planType":     "inpatient",
			"creationDate": "2024-01-15",
			"linkedPlanServices": bson.A{
				bson.M{"linkedService": bson.M{"objectId": "S1", "name": "X-Ray"}},
				bson.M{"linkedService": "bad"},
			},
		},
		{"objectId": "P2", "creationDate": bson.NewDateTimeFromTime(plans.DefaultFallbackDate.Time())},
	}
}

func TestTasks(t *testing.T) {
	p, _ := newPipeline(t, &fakeSource{}, fakeDB{}, &fakeWarehouse{}, testOptions())

	want := []string{
		pipeline.TaskCheckSource,
		pipeline.TaskCheckWarehouse,
		pipeline.TaskExtract,
		pipeline.TaskTransformLoad,
		pipeline.TaskQualityChecks,
		pipeline.TaskRefreshAggregates,
		pipeline.TaskAuditLog,
	}
	if got := p.Tasks(); !slices.Equal(got, want) {
		t.Errorf("Tasks() = %v, want %v", got, want)
	}
	if got := pipeline.Chain(); !slices.Equal(got, want) {
		t.Errorf("Chain() = %v, want %v", got, want)
	}
}

func TestAbort(t *testing.T) {
	wh := &fakeWarehouse{}
	p, _ := newPipeline(t, &fakeSource{}, fakeDB{}, wh, testOptions())

	cause := errors.New("document store unreachable")
	if err := p.Abort(context.Background(), uuid.New(), "startup", cause); err != nil {
		t.Fatalf("Abort failed: %v", err)
	}
	if len(wh.audits) != 1 {
		t.Fatalf("audits = %d, want 1", len(wh.audits))
	}
	a := wh.audits[0]
	if a.Status != warehouse.StatusFailed || a.ErrorMessage != cause.Error() {
		t.Errorf("audit = %+v", a)
	}
	if a.ExecutionMessage != "Run aborted in startup" {
		t.Errorf("execution message = %q", a.ExecutionMessage)
	}
}

func TestRunAll(t *testing.T) {
	wh := &fakeWarehouse{}
	p, m := newPipeline(t, &fakeSource{docs: sourceDocs()}, fakeDB{}, wh, testOptions())

	if err := p.RunAll(context.Background(), uuid.New()); err != nil {
		t.Fatalf("RunAll failed: %v", err)
	}

	if len(wh.loaded) != 2 {
		t.Fatalf("loaded = %d records, want 2", len(wh.loaded))
	}
	if wh.loaded[1].Date != plans.DefaultFallbackDate {
		t.Errorf("record 2 date = %s", wh.loaded[1].Date)
	}

	if len(wh.audits) != 1 {
		t.Fatalf("audits = %d, want 1", len(wh.audits))
	}
	a := wh.audits[0]
	if a.Status != warehouse.StatusCompletedWithErrors {
		t.Errorf("status = %s, want COMPLETED_WITH_ERRORS for skipped service", a.Status)
	}
	if a.RecordsProcessed != 2 || a.ExecutionMessage != "Loaded 2 plans and 1 services" {
		t.Errorf("audit = %+v", a)
	}

	if got := metricsCounter(t, m, "hpdw_services_total", "skipped"); got != 1 {
		t.Errorf("skipped services metric = %v, want 1", got)
	}
}

func metricsCounter(t *testing.T, m *metrics.Metrics, name, outcome string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, metric := range f.GetMetric() {
			for _, l := range metric.GetLabel() {
				if l.GetName() == "outcome" && l.GetValue() == outcome {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestRunAllSuccessStatus(t *testing.T) {
	wh := &fakeWarehouse{}
	docs := []bson.M{{"objectId": "P1", "creationDate": "2024-03-05T10:00:00Z"}}
	p, _ := newPipeline(t, &fakeSource{docs: docs}, fakeDB{}, wh, testOptions())

	if err := p.RunAll(context.Background(), uuid.New()); err != nil {
		t.Fatalf("RunAll failed: %v", err)
	}
	if wh.loaded[0].Date.Key() != 20240305 {
		t.Errorf("date key = %d, want 20240305", wh.loaded[0].Date.Key())
	}
	if wh.audits[0].Status != warehouse.StatusSuccess {
		t.Errorf("status = %s, want SUCCESS", wh.audits[0].Status)
	}
}

func TestQualityIssuesDoNotBlockByDefault(t *testing.T) {
	report := warehouse.QualityReport{Results: []warehouse.CheckResult{{Check: "plan_cost_range", Count: 3}}}
	docs := []bson.M{{"objectId": "P1", "creationDate": "2024-01-01"}}

	tests := []struct {
		name  string
		block bool
		want  warehouse.Status
	}{
		{"reported only", false, warehouse.StatusSuccess},
		{"blocking", true, warehouse.StatusCompletedWithErrors},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wh := &fakeWarehouse{report: report}
			opts := testOptions()
			opts.BlockOnQuality = tt.block
			p, _ := newPipeline(t, &fakeSource{docs: docs}, fakeDB{}, wh, opts)

			if err := p.RunAll(context.Background(), uuid.New()); err != nil {
				t.Fatalf("RunAll failed: %v", err)
			}
			if got := wh.audits[0].Status; got != tt.want {
				t.Errorf("status = %s, want %s", got, tt.want)
			}
			if wh.audits[0].ErrorMessage == "" {
				t.Error("expected quality issues in error message")
			}
		})
	}
}

func TestRunAllConnectivityFailure(t *testing.T) {
	wh := &fakeWarehouse{}
	src := &fakeSource{pingErr: errors.New("connection refused")}
	p, _ := newPipeline(t, src, fakeDB{}, wh, testOptions())

	err := p.RunAll(context.Background(), uuid.New())
	if err == nil {
		t.Fatal("expected error")
	}
	if len(wh.loaded) != 0 {
		t.Error("load ran after failed connectivity check")
	}
	if len(wh.audits) != 1 || wh.audits[0].Status != warehouse.StatusFailed {
		t.Fatalf("audits = %+v, want one FAILED row", wh.audits)
	}
	if wh.audits[0].ErrorMessage == "" {
		t.Error("FAILED row has no error text")
	}
}

func TestRunAllLoadFailure(t *testing.T) {
	wh := &fakeWarehouse{loadErr: errors.New("commit failed")}
	docs := []bson.M{{"objectId": "P1"}}
	p, _ := newPipeline(t, &fakeSource{docs: docs}, fakeDB{}, wh, testOptions())

	if err := p.RunAll(context.Background(), uuid.New()); err == nil {
		t.Fatal("expected error")
	}
	if len(wh.audits) != 1 || wh.audits[0].Status != warehouse.StatusFailed {
		t.Errorf("audits = %+v", wh.audits)
	}
}

func TestRunTaskChain(t *testing.T) {
	wh := &fakeWarehouse{}
	p, _ := newPipeline(t, &fakeSource{docs: sourceDocs()}, fakeDB{}, wh, testOptions())
	ctx := context.Background()
	id := uuid.New()

	for _, name := range p.Tasks() {
		if err := p.RunTask(ctx, id, name); err != nil {
			t.Fatalf("RunTask(%s) failed: %v", name, err)
		}
	}
	if len(wh.audits) != 1 {
		t.Errorf("audits = %d, want 1", len(wh.audits))
	}

	err := p.RunTask(ctx, id, pipeline.TaskAuditLog)
	if !errors.Is(err, handoff.ErrNotFound) {
		t.Errorf("repeated audit_log err = %v, want ErrNotFound", err)
	}
}

func TestRunTaskRetryAfterLoadFailure(t *testing.T) {
	wh := &fakeWarehouse{loadErr: errors.New("connection reset")}
	p, _ := newPipeline(t, &fakeSource{docs: sourceDocs()}, fakeDB{}, wh, testOptions())
	ctx := context.Background()
	id := uuid.New()

	if err := p.RunTask(ctx, id, pipeline.TaskExtract); err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if err := p.RunTask(ctx, id, pipeline.TaskTransformLoad); err == nil {
		t.Fatal("expected transform_load to fail")
	}

	wh.loadErr = nil
	wh.loaded = nil
	if err := p.RunTask(ctx, id, pipeline.TaskTransformLoad); err != nil {
		t.Fatalf("retried transform_load failed: %v", err)
	}
	if len(wh.loaded) != 2 {
		t.Errorf("retry loaded %d records, want 2", len(wh.loaded))
	}

	err := p.RunTask(ctx, id, pipeline.TaskTransformLoad)
	if !errors.Is(err, handoff.ErrNotFound) {
		t.Errorf("transform_load after success err = %v, want ErrNotFound", err)
	}
}

func TestRunAllSkipsRejectedDocument(t *testing.T) {
	wh := &fakeWarehouse{}
	docs := []bson.M{
		{"objectId": "P1", "planType": "inpatient", "creationDate": "2024-01-15"},
		{"objectId": "P2", "marker": bson.MinKey{}},
	}
	p, m := newPipeline(t, &fakeSource{docs: docs}, fakeDB{}, wh, testOptions())

	if err := p.RunAll(context.Background(), uuid.New()); err != nil {
		t.Fatalf("RunAll failed: %v", err)
	}

	if len(wh.loaded) != 1 || wh.loaded[0].Plan.ID != "P1" {
		t.Fatalf("loaded = %+v, want only P1", wh.loaded)
	}

	a := wh.audits[0]
	if a.RecordsProcessed != 2 || a.RecordsFailed != 1 {
		t.Errorf("audit counts = processed %d failed %d, want 2 and 1", a.RecordsProcessed, a.RecordsFailed)
	}
	if a.Status != warehouse.StatusCompletedWithErrors {
		t.Errorf("status = %s, want COMPLETED_WITH_ERRORS", a.Status)
	}
	if got := metricsCounter(t, m, "hpdw_records_total", "failed"); got != 1 {
		t.Errorf("failed records metric = %v, want 1", got)
	}
}

func TestRunTaskUnknown(t *testing.T) {
	p, _ := newPipeline(t, &fakeSource{}, fakeDB{}, &fakeWarehouse{}, testOptions())

	err := p.RunTask(context.Background(), uuid.New(), "vacuum")
	if !errors.Is(err, pipeline.ErrUnknownTask) {
		t.Errorf("err = %v, want ErrUnknownTask", err)
	}
}

func TestTransform(t *testing.T) {
	docs := []document.Value{
		document.String("not a document"),
		document.Object(
			document.Field{Key: "objectId", Value: document.String("P1")},
			document.Field{Key: "linkedPlanServices", Value: document.Seq(document.Int(1))},
		),
	}

	records, stats := pipeline.Transform(docs, plans.DefaultOptions(), discard())

	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	if records[0].Organization.ID != plans.Unknown {
		t.Errorf("org = %q, want unknown", records[0].Organization.ID)
	}
	if stats.Processed != 1 || stats.Failed != 1 || stats.ServicesSkipped != 1 {
		t.Errorf("stats = %+v", stats)
	}
}
