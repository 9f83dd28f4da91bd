package dashboard

import (
	"encoding/json"
	"fmt"
)

// Layout grid constants.
const (
	GridWidth   = 12
	ChartHeight = 50

	rootID  = "ROOT_ID"
	gridID  = "GRID_ID"
	version = "v2"
)

// Component is one node of a dashboard position tree.
type Component struct {
	Type     string         `json:"type"`
	ID       string         `json:"id"`
	Children []string       `json:"children"`
	Parents  []string       `json:"parents,omitempty"`
	Meta     map[string]any `json:"meta,omitempty"`
}

// Layout builds the position tree for charts placed left to right, columns
// per row. Every chart is GridWidth/columns wide.
func Layout(chartIDs []int, columns int) map[string]any {
	if columns <= 0 {
		columns = 1
	}
	width := GridWidth / columns

	tree := map[string]any{"DASHBOARD_VERSION_KEY": version}
	root := Component{Type: "ROOT", ID: rootID, Children: []string{gridID}}
	grid := Component{Type: "GRID", ID: gridID, Children: []string{}, Parents: []string{rootID}}

	var row *Component
	for i, id := range chartIDs {
		if i%columns == 0 {
			if row != nil {
				tree[row.ID] = *row
			}
			row = &Component{
				Type:     "ROW",
				ID:       fmt.Sprintf("ROW-%d", i/columns),
				Children: []string{},
				Parents:  []string{rootID, gridID},
				Meta:     map[string]any{"background": "BACKGROUND_TRANSPARENT"},
			}
			grid.Children = append(grid.Children, row.ID)
		}

		chart := Component{
			Type:     "CHART",
			ID:       fmt.Sprintf("CHART-%d", id),
			Children: []string{},
			Parents:  []string{rootID, gridID, row.ID},
			Meta:     map[string]any{"chartId": id, "width": width, "height": ChartHeight},
		}
		row.Children = append(row.Children, chart.ID)
		tree[chart.ID] = chart
	}
	if row != nil {
		tree[row.ID] = *row
	}

	tree[rootID] = root
	tree[gridID] = grid
	return tree
}

// PositionJSON encodes the layout as the string the dashboard API expects.
func PositionJSON(chartIDs []int, columns int) (string, error) {
	data, err := json.Marshal(Layout(chartIDs, columns))
	if err != nil {
		return "", fmt.Errorf("encode layout: %w", err)
	}
	return string(data), nil
}
