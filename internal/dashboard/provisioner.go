// Package dashboard provisions the analytics dashboard over the warehouse
// views through the dashboard platform's REST API.
//
// Provisioning is re-runnable: every resource is looked up by its natural
// name first and only created when absent. An existing dashboard has its
// layout replaced so charts added since the last run appear on it.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Credentials authenticate against the dashboard platform.
type Credentials struct {
	URL      string
	Username string
	Password string
	Timeout  time.Duration
}

// Result reports what a provisioning run resolved.
type Result struct {
	DatabaseID  int            `json:"database_id"`
	Datasets    map[string]int `json:"datasets"`
	Charts      []int          `json:"charts"`
	DashboardID int            `json:"dashboard_id"`
	Created     int            `json:"created"`
	Skipped     []string       `json:"skipped,omitempty"`
}

// Provisioner creates the manifest's resources.
type Provisioner struct {
	client *Client
	creds  Credentials
	logger *slog.Logger
}

// New creates a provisioner.
func New(creds Credentials, logger *slog.Logger) *Provisioner {
	return &Provisioner{
		client: NewClient(creds.URL, creds.Timeout),
		creds:  creds,
		logger: logger.With("system", "dashboard"),
	}
}

// Provision runs login, database, datasets, charts and dashboard in order.
// Login and database failures abort; dataset and chart failures are logged
// and the resource skipped.
func (p *Provisioner) Provision(ctx context.Context, m *Manifest) (*Result, error) {
	if err := p.client.Login(ctx, p.creds.Username, p.creds.Password); err != nil {
		return nil, err
	}
	if err := p.client.FetchCSRF(ctx); err != nil {
		p.logger.Warn("continuing without csrf token", "error", err)
	}

	res := &Result{Datasets: make(map[string]int)}

	dbID, err := p.ensure(ctx, res, "database", "database_name", m.Database.Name, func() any {
		return map[string]any{
			"database_name":    m.Database.Name,
			"sqlalchemy_uri":   m.Database.URI,
			"expose_in_sqllab": m.Database.ExposeInSQLLab,
			"allow_ctas":       m.Database.AllowCTAS,
			"allow_cvas":       m.Database.AllowCVAS,
			"allow_dml":        m.Database.AllowDML,
		}
	})
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	res.DatabaseID = dbID

	for _, view := range m.Datasets {
		id, err := p.ensure(ctx, res, "dataset", "table_name", view, func() any {
			return map[string]any{
				"database":   dbID,
				"schema":     m.Database.Schema,
				"table_name": view,
			}
		})
		if err != nil {
			p.skip(res, "dataset", view, err)
			continue
		}
		res.Datasets[view] = id
	}

	for _, c := range m.Charts {
		dsID, ok := res.Datasets[c.Dataset]
		if !ok {
			p.skip(res, "chart", c.Name, fmt.Errorf("dataset %s unavailable", c.Dataset))
			continue
		}

		body, err := chartBody(c, dsID)
		if err != nil {
			p.skip(res, "chart", c.Name, err)
			continue
		}

		id, err := p.ensure(ctx, res, "chart", "slice_name", c.Name, func() any { return body })
		if err != nil {
			p.skip(res, "chart", c.Name, err)
			continue
		}
		res.Charts = append(res.Charts, id)
	}

	position, err := PositionJSON(res.Charts, m.Dashboard.Columns)
	if err != nil {
		return res, err
	}
	metadata, err := json.Marshal(map[string]any{
		"default_filters": "{}",
		"filter_scopes":   map[string]any{},
	})
	if err != nil {
		return res, fmt.Errorf("dashboard: encode metadata: %w", err)
	}

	created := res.Created
	dashID, err := p.ensure(ctx, res, "dashboard", "slug", m.Dashboard.Slug, func() any {
		return map[string]any{
			"dashboard_title": m.Dashboard.Title,
			"slug":            m.Dashboard.Slug,
			"published":       m.Dashboard.Published,
			"position_json":   position,
			"json_metadata":   string(metadata),
		}
	})
	if err != nil {
		return res, fmt.Errorf("dashboard: %w", err)
	}
	res.DashboardID = dashID

	if res.Created == created {
		err := p.client.Update(ctx, "dashboard", dashID, map[string]any{
			"position_json": position,
			"json_metadata": string(metadata),
		})
		if err != nil {
			return res, fmt.Errorf("dashboard: %w", err)
		}
		p.logger.Info("dashboard layout updated", "id", dashID, "charts", len(res.Charts))
	}

	p.logger.Info("dashboard provisioned",
		"dashboard_id", dashID,
		"datasets", len(res.Datasets),
		"charts", len(res.Charts),
		"created", res.Created,
		"skipped", len(res.Skipped),
	)
	return res, nil
}

func (p *Provisioner) ensure(ctx context.Context, res *Result, resource, field, name string, body func() any) (int, error) {
	id, found, err := p.client.Find(ctx, resource, field, name)
	if err != nil {
		return 0, err
	}
	if found {
		p.logger.Info("resource exists", "resource", resource, "name", name, "id", id)
		return id, nil
	}

	id, err = p.client.Create(ctx, resource, body())
	if err != nil {
		return 0, err
	}
	res.Created++
	p.logger.Info("resource created", "resource", resource, "name", name, "id", id)
	return id, nil
}

func (p *Provisioner) skip(res *Result, resource, name string, err error) {
	res.Skipped = append(res.Skipped, resource+":"+name)
	p.logger.Warn("resource skipped", "resource", resource, "name", name, "error", err)
}

func chartBody(c ChartSpec, datasetID int) (map[string]any, error) {
	params, err := json.Marshal(c.Params)
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}

	metrics, ok := c.Params["metrics"]
	if !ok {
		metrics = []any{c.Params["metric"]}
	}
	query, err := json.Marshal(map[string]any{
		"datasource": map[string]any{"id": datasetID, "type": "table"},
		"queries": []any{map[string]any{
			"columns": []any{},
			"metrics": metrics,
			"filters": []any{},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("encode query context: %w", err)
	}

	return map[string]any{
		"slice_name":      c.Name,
		"viz_type":        c.VizType,
		"datasource_id":   datasetID,
		"datasource_type": "table",
		"params":          string(params),
		"query_context":   string(query),
	}, nil
}
