package dashboard_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/JaimeStill/healthplan-dw/internal/dashboard"
)

var nameField = map[string]string{
	"database":  "database_name",
	"dataset":   "table_name",
	"chart":     "slice_name",
	"dashboard": "slug",
}

type platform struct {
	mu        sync.Mutex
	nextID    int
	resources map[string][]map[string]any
	reject    map[string]bool
	logins    int
	updates   int
}

func newPlatform(t *testing.T) (*platform, *httptest.Server) {
	t.Helper()
	p := &platform{
		nextID:    100,
		resources: make(map[string][]map[string]any),
		reject:    make(map[string]bool),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/security/login", p.login)
	mux.HandleFunc("GET /api/v1/security/csrf_token/", p.authed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"result": "csrf-1"})
	}))
	mux.HandleFunc("GET /api/v1/{resource}/", p.authed(p.list))
	mux.HandleFunc("POST /api/v1/{resource}/", p.authed(p.create))
	mux.HandleFunc("PUT /api/v1/{resource}/{id}", p.authed(p.update))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return p, srv
}

func (p *platform) login(w http.ResponseWriter, r *http.Request) {
	var body map[string]string
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if body["username"] != "admin" || body["password"] != "secret" || body["provider"] != "db" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	p.mu.Lock()
	p.logins++
	p.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"access_token": "tok-1"})
}

func (p *platform) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (p *platform) list(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	items := p.resources[r.PathValue("resource")]
	if items == nil {
		items = []map[string]any{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": items, "count": len(items)})
}

func (p *platform) create(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("X-CSRFToken") != "csrf-1" {
		http.Error(w, "csrf", http.StatusBadRequest)
		return
	}

	resource := r.PathValue("resource")
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	name, _ := body[nameField[resource]].(string)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reject[resource+":"+name] {
		http.Error(w, "rejected", http.StatusUnprocessableEntity)
		return
	}

	p.nextID++
	body["id"] = p.nextID
	p.resources[resource] = append(p.resources[resource], body)
	writeJSON(w, http.StatusCreated, map[string]any{"id": p.nextID, "result": body})
}

func (p *platform) update(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("X-CSRFToken") != "csrf-1" {
		http.Error(w, "csrf", http.StatusBadRequest)
		return
	}

	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		http.Error(w, "bad id", http.StatusBadRequest)
		return
	}
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, item := range p.resources[r.PathValue("resource")] {
		if item["id"] != id {
			continue
		}
		for k, v := range body {
			item[k] = v
		}
		p.updates++
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "result": body})
		return
	}
	http.Error(w, "not found", http.StatusNotFound)
}

func chartsInLayout(t *testing.T, dash map[string]any) int {
	t.Helper()
	var layout map[string]any
	if err := json.Unmarshal([]byte(dash["position_json"].(string)), &layout); err != nil {
		t.Fatalf("position_json not JSON: %v", err)
	}
	n := 0
	for key := range layout {
		if strings.HasPrefix(key, "CHART-") {
			n++
		}
	}
	return n
}

func (p *platform) count(resource string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.resources[resource])
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func manifest(t *testing.T) *dashboard.Manifest {
	t.Helper()
	t.Setenv("HPDW_DASHBOARD_DB_URI", "postgresql://user:pw@warehouse:5432/healthcare_dw")
	m, err := dashboard.DefaultManifest()
	if err != nil {
		t.Fatalf("DefaultManifest failed: %v", err)
	}
	return m
}

func provisioner(srv *httptest.Server, password string) *dashboard.Provisioner {
	return dashboard.New(dashboard.Credentials{
		URL:      srv.URL,
		Username: "admin",
		Password: password,
		Timeout:  5 * time.Second,
	}, discard())
}

func TestDefaultManifest(t *testing.T) {
	m := manifest(t)

	if m.Database.Name != "Healthcare Data Warehouse" {
		t.Errorf("database name = %q", m.Database.Name)
	}
	if !strings.HasPrefix(m.Database.URI, "postgresql://user:pw@") {
		t.Errorf("uri not expanded: %q", m.Database.URI)
	}
	if len(m.Datasets) != 3 || len(m.Charts) != 4 {
		t.Errorf("datasets = %d, charts = %d", len(m.Datasets), len(m.Charts))
	}
	if m.Dashboard.Slug != "healthcare-analytics" || m.Dashboard.Columns != 2 {
		t.Errorf("dashboard = %+v", m.Dashboard)
	}
}

func TestParseManifestInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			"missing database name",
			"dashboard: {title: T, slug: s}",
		},
		{
			"missing slug",
			"database: {name: DW}\ndashboard: {title: T}",
		},
		{
			"columns do not divide grid",
			"database: {name: DW}\ndashboard: {title: T, slug: s, columns: 5}",
		},
		{
			"chart without dataset",
			"database: {name: DW}\ndashboard: {title: T, slug: s}\ncharts: [{name: C, viz_type: pie}]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := dashboard.ParseManifest([]byte(tt.yaml))
			if !errors.Is(err, dashboard.ErrInvalidManifest) {
				t.Errorf("err = %v, want ErrInvalidManifest", err)
			}
		})
	}
}

func TestLayout(t *testing.T) {
	tree := dashboard.Layout([]int{7, 8, 9}, 2)

	grid := tree["GRID_ID"].(dashboard.Component)
	if !slices.Equal(grid.Children, []string{"ROW-0", "ROW-1"}) {
		t.Errorf("grid children = %v", grid.Children)
	}

	row0 := tree["ROW-0"].(dashboard.Component)
	if !slices.Equal(row0.Children, []string{"CHART-7", "CHART-8"}) {
		t.Errorf("ROW-0 children = %v", row0.Children)
	}
	row1 := tree["ROW-1"].(dashboard.Component)
	if !slices.Equal(row1.Children, []string{"CHART-9"}) {
		t.Errorf("ROW-1 children = %v", row1.Children)
	}

	chart := tree["CHART-9"].(dashboard.Component)
	if chart.Meta["width"] != 6 || chart.Meta["height"] != dashboard.ChartHeight || chart.Meta["chartId"] != 9 {
		t.Errorf("chart meta = %v", chart.Meta)
	}
	if !slices.Equal(chart.Parents, []string{"ROOT_ID", "GRID_ID", "ROW-1"}) {
		t.Errorf("chart parents = %v", chart.Parents)
	}
	if tree["DASHBOARD_VERSION_KEY"] != "v2" {
		t.Error("missing version key")
	}
}

func TestProvision(t *testing.T) {
	plat, srv := newPlatform(t)

	res, err := provisioner(srv, "secret").Provision(context.Background(), manifest(t))
	if err != nil {
		t.Fatalf("Provision failed: %v", err)
	}

	if len(res.Datasets) != 3 || len(res.Charts) != 4 {
		t.Errorf("datasets = %d, charts = %d", len(res.Datasets), len(res.Charts))
	}
	if res.Created != 9 || len(res.Skipped) != 0 {
		t.Errorf("created = %d, skipped = %v", res.Created, res.Skipped)
	}
	if plat.count("dashboard") != 1 {
		t.Fatalf("dashboards = %d, want 1", plat.count("dashboard"))
	}

	dash := plat.resources["dashboard"][0]
	var layout map[string]any
	if err := json.Unmarshal([]byte(dash["position_json"].(string)), &layout); err != nil {
		t.Fatalf("position_json not JSON: %v", err)
	}
	for _, key := range []string{"ROOT_ID", "GRID_ID", "ROW-0", "ROW-1"} {
		if _, ok := layout[key]; !ok {
			t.Errorf("layout missing %s", key)
		}
	}

	var metadata map[string]any
	if err := json.Unmarshal([]byte(dash["json_metadata"].(string)), &metadata); err != nil {
		t.Fatalf("json_metadata not JSON: %v", err)
	}
	if metadata["default_filters"] != "{}" {
		t.Errorf("json_metadata = %v", metadata)
	}

	chart := plat.resources["chart"][1]
	if chart["datasource_type"] != "table" {
		t.Errorf("chart datasource_type = %v", chart["datasource_type"])
	}
	var params map[string]any
	if err := json.Unmarshal([]byte(chart["params"].(string)), &params); err != nil {
		t.Fatalf("chart params not JSON: %v", err)
	}
	if _, ok := params["groupby"]; !ok {
		t.Errorf("chart params = %v", params)
	}
}

func TestProvisionRerun(t *testing.T) {
	plat, srv := newPlatform(t)
	p := provisioner(srv, "secret")
	m := manifest(t)

	first, err := p.Provision(context.Background(), m)
	if err != nil {
		t.Fatalf("first Provision failed: %v", err)
	}
	second, err := p.Provision(context.Background(), m)
	if err != nil {
		t.Fatalf("second Provision failed: %v", err)
	}

	if second.Created != 0 {
		t.Errorf("second run created %d resources", second.Created)
	}
	if second.DashboardID != first.DashboardID {
		t.Errorf("dashboard id %d, want %d", second.DashboardID, first.DashboardID)
	}
	if plat.count("chart") != 4 {
		t.Errorf("charts = %d, want 4", plat.count("chart"))
	}
}

func TestProvisionRerunUpdatesLayout(t *testing.T) {
	plat, srv := newPlatform(t)
	p := provisioner(srv, "secret")
	m := manifest(t)

	plat.reject["dataset:v_monthly_cost_trends"] = true
	first, err := p.Provision(context.Background(), m)
	if err != nil {
		t.Fatalf("first Provision failed: %v", err)
	}
	if len(first.Charts) != 3 {
		t.Fatalf("first run charts = %d, want 3", len(first.Charts))
	}
	if n := chartsInLayout(t, plat.resources["dashboard"][0]); n != 3 {
		t.Fatalf("first layout charts = %d, want 3", n)
	}

	plat.mu.Lock()
	delete(plat.reject, "dataset:v_monthly_cost_trends")
	plat.mu.Unlock()

	second, err := p.Provision(context.Background(), m)
	if err != nil {
		t.Fatalf("second Provision failed: %v", err)
	}
	if len(second.Charts) != 4 || second.DashboardID != first.DashboardID {
		t.Errorf("second run = %+v", second)
	}
	if plat.count("dashboard") != 1 || plat.updates != 1 {
		t.Errorf("dashboards = %d, updates = %d, want 1 and 1", plat.count("dashboard"), plat.updates)
	}
	if n := chartsInLayout(t, plat.resources["dashboard"][0]); n != 4 {
		t.Errorf("updated layout charts = %d, want 4", n)
	}
}

func TestProvisionLoginFailure(t *testing.T) {
	plat, srv := newPlatform(t)

	_, err := provisioner(srv, "wrong").Provision(context.Background(), manifest(t))
	if !errors.Is(err, dashboard.ErrLogin) {
		t.Errorf("err = %v, want ErrLogin", err)
	}
	if plat.count("database") != 0 {
		t.Error("resources created after failed login")
	}
}

func TestProvisionDatabaseFailureAborts(t *testing.T) {
	plat, srv := newPlatform(t)
	plat.reject["database:Healthcare Data Warehouse"] = true

	_, err := provisioner(srv, "secret").Provision(context.Background(), manifest(t))
	if !errors.Is(err, dashboard.ErrStatus) {
		t.Errorf("err = %v, want ErrStatus", err)
	}
	if plat.count("dataset") != 0 {
		t.Error("datasets created after database failure")
	}
}

func TestProvisionSkipsChartsOfFailedDataset(t *testing.T) {
	plat, srv := newPlatform(t)
	plat.reject["dataset:v_monthly_cost_trends"] = true

	res, err := provisioner(srv, "secret").Provision(context.Background(), manifest(t))
	if err != nil {
		t.Fatalf("Provision failed: %v", err)
	}

	if len(res.Datasets) != 2 || len(res.Charts) != 3 {
		t.Errorf("datasets = %d, charts = %d", len(res.Datasets), len(res.Charts))
	}
	want := []string{"dataset:v_monthly_cost_trends", "chart:Monthly Cost Trends"}
	if !slices.Equal(res.Skipped, want) {
		t.Errorf("skipped = %v, want %v", res.Skipped, want)
	}
	if res.DashboardID == 0 {
		t.Error("dashboard not created")
	}
}
