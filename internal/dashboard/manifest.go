package dashboard

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultManifest []byte

// Manifest describes everything the provisioner creates.
type Manifest struct {
	Database  DatabaseSpec  `yaml:"database"`
	Datasets  []string      `yaml:"datasets"`
	Charts    []ChartSpec   `yaml:"charts"`
	Dashboard DashboardSpec `yaml:"dashboard"`
}

// DatabaseSpec registers the warehouse as a data source.
type DatabaseSpec struct {
	Name           string `yaml:"name"`
	URI            string `yaml:"uri"`
	Schema         string `yaml:"schema"`
	ExposeInSQLLab bool   `yaml:"expose_in_sqllab"`
	AllowCTAS      bool   `yaml:"allow_ctas"`
	AllowCVAS      bool   `yaml:"allow_cvas"`
	AllowDML       bool   `yaml:"allow_dml"`
}

// ChartSpec is one chart bound to a dataset by view name.
type ChartSpec struct {
	Name    string         `yaml:"name"`
	VizType string         `yaml:"viz_type"`
	Dataset string         `yaml:"dataset"`
	Params  map[string]any `yaml:"params"`
}

// DashboardSpec is the dashboard assembled from the created charts.
type DashboardSpec struct {
	Title     string `yaml:"title"`
	Slug      string `yaml:"slug"`
	Published bool   `yaml:"published"`
	Columns   int    `yaml:"columns"`
}

// DefaultManifest returns the built-in healthcare analytics manifest.
func DefaultManifest() (*Manifest, error) {
	return ParseManifest(defaultManifest)
}

// LoadManifest reads a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest expands ${VAR} references, then decodes and validates a
// YAML manifest.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	m.defaults()
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Manifest) defaults() {
	if m.Database.Schema == "" {
		m.Database.Schema = "public"
	}
	if m.Dashboard.Columns == 0 {
		m.Dashboard.Columns = 2
	}
}

func (m *Manifest) validate() error {
	if m.Database.Name == "" {
		return fmt.Errorf("%w: database.name required", ErrInvalidManifest)
	}
	if m.Dashboard.Title == "" || m.Dashboard.Slug == "" {
		return fmt.Errorf("%w: dashboard title and slug required", ErrInvalidManifest)
	}
	if GridWidth%m.Dashboard.Columns != 0 {
		return fmt.Errorf("%w: dashboard.columns must divide %d", ErrInvalidManifest, GridWidth)
	}
	for _, c := range m.Charts {
		if c.Name == "" || c.VizType == "" || c.Dataset == "" {
			return fmt.Errorf("%w: chart requires name, viz_type and dataset", ErrInvalidManifest)
		}
	}
	return nil
}
