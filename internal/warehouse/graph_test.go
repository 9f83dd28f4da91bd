package warehouse_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/JaimeStill/healthplan-dw/internal/warehouse"
)

func TestLoadGraphOrder(t *testing.T) {
	g := warehouse.LoadGraph()

	want := []string{
		warehouse.StepDate,
		warehouse.StepOrg,
		warehouse.StepPlanType,
		warehouse.StepPlan,
		warehouse.StepPlanCost,
		warehouse.StepService,
		warehouse.StepServiceCost,
	}
	if got := g.Order(); !slices.Equal(got, want) {
		t.Errorf("Order() = %v, want %v", got, want)
	}
}

func TestLoadGraphTiers(t *testing.T) {
	tiers := warehouse.LoadGraph().Tiers()

	if len(tiers) != 5 {
		t.Fatalf("tiers = %d, want 5: %v", len(tiers), tiers)
	}
	if !slices.Equal(tiers[0], []string{warehouse.StepDate, warehouse.StepOrg, warehouse.StepPlanType}) {
		t.Errorf("tier 0 = %v", tiers[0])
	}
	if !slices.Equal(tiers[1], []string{warehouse.StepPlan}) {
		t.Errorf("tier 1 = %v", tiers[1])
	}
	if !slices.Equal(tiers[4], []string{warehouse.StepServiceCost}) {
		t.Errorf("tier 4 = %v", tiers[4])
	}
}

func TestGraphRespectsDependencies(t *testing.T) {
	g, err := warehouse.NewGraph(
		warehouse.Node{Name: "fact", DependsOn: []string{"b", "a"}},
		warehouse.Node{Name: "b", DependsOn: []string{"a"}},
		warehouse.Node{Name: "a"},
	)
	if err != nil {
		t.Fatalf("NewGraph failed: %v", err)
	}

	order := g.Order()
	pos := func(name string) int { return slices.Index(order, name) }

	if !(pos("a") < pos("b") && pos("b") < pos("fact")) {
		t.Errorf("Order() = %v violates dependencies", order)
	}
}

func TestGraphErrors(t *testing.T) {
	tests := []struct {
		name  string
		nodes []warehouse.Node
		want  error
	}{
		{
			name:  "duplicate",
			nodes: []warehouse.Node{{Name: "a"}, {Name: "a"}},
			want:  warehouse.ErrDuplicateStep,
		},
		{
			name:  "unknown dependency",
			nodes: []warehouse.Node{{Name: "a", DependsOn: []string{"missing"}}},
			want:  warehouse.ErrUnknownStep,
		},
		{
			name: "cycle",
			nodes: []warehouse.Node{
				{Name: "a", DependsOn: []string{"c"}},
				{Name: "b", DependsOn: []string{"a"}},
				{Name: "c", DependsOn: []string{"b"}},
			},
			want: warehouse.ErrCycle,
		},
		{
			name:  "self dependency",
			nodes: []warehouse.Node{{Name: "a", DependsOn: []string{"a"}}},
			want:  warehouse.ErrCycle,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := warehouse.NewGraph(tt.nodes...)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}
