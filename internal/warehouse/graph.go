package warehouse

import (
	"fmt"
	"slices"
)

// Node is a named write step and the steps whose keys it consumes.
type Node struct {
	Name      string
	DependsOn []string
}

// Graph is a validated, acyclic set of write steps.
type Graph struct {
	nodes []Node
	index map[string]int
	order []string
	depth map[string]int
}

// NewGraph validates nodes and computes their topological order. Duplicate
// names, unknown dependencies and cycles are rejected.
func NewGraph(nodes ...Node) (*Graph, error) {
	g := &Graph{
		nodes: slices.Clone(nodes),
		index: make(map[string]int, len(nodes)),
		depth: make(map[string]int, len(nodes)),
	}

	for i, n := range nodes {
		if _, ok := g.index[n.Name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateStep, n.Name)
		}
		g.index[n.Name] = i
	}

	for _, n := range nodes {
		for _, dep := range n.DependsOn {
			if _, ok := g.index[dep]; !ok {
				return nil, fmt.Errorf("%w: %s depends on %s", ErrUnknownStep, n.Name, dep)
			}
		}
	}

	if err := g.sort(); err != nil {
		return nil, err
	}
	return g, nil
}

// sort runs Kahn's algorithm. Among ready nodes the earliest declared is
// taken first, so the order is stable for a given declaration.
func (g *Graph) sort() error {
	indegree := make([]int, len(g.nodes))
	dependents := make([][]int, len(g.nodes))
	for i, n := range g.nodes {
		indegree[i] = len(n.DependsOn)
		for _, dep := range n.DependsOn {
			d := g.index[dep]
			dependents[d] = append(dependents[d], i)
		}
	}

	var ready []int
	for i, deg := range indegree {
		if deg == 0 {
			ready = append(ready, i)
		}
	}

	g.order = make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		slices.Sort(ready)
		i := ready[0]
		ready = ready[1:]

		n := g.nodes[i]
		g.order = append(g.order, n.Name)

		depth := 0
		for _, dep := range n.DependsOn {
			depth = max(depth, g.depth[dep]+1)
		}
		g.depth[n.Name] = depth

		for _, d := range dependents[i] {
			indegree[d]--
			if indegree[d] == 0 {
				ready = append(ready, d)
			}
		}
	}

	if len(g.order) != len(g.nodes) {
		var stuck []string
		for i, deg := range indegree {
			if deg > 0 {
				stuck = append(stuck, g.nodes[i].Name)
			}
		}
		return fmt.Errorf("%w: %v", ErrCycle, stuck)
	}
	return nil
}

// Order returns every step name in dependency order.
func (g *Graph) Order() []string {
	return slices.Clone(g.order)
}

// Tiers groups steps by dependency depth. Every step in tier n depends only
// on steps in tiers before n, so each tier can be committed as a unit.
func (g *Graph) Tiers() [][]string {
	var tiers [][]string
	for _, name := range g.order {
		d := g.depth[name]
		for len(tiers) <= d {
			tiers = append(tiers, nil)
		}
		tiers[d] = append(tiers[d], name)
	}
	return tiers
}

// Step names of the load graph.
const (
	StepDate        = "date"
	StepOrg         = "organization"
	StepPlanType    = "plan_type"
	StepPlan        = "plan"
	StepPlanCost    = "plan_cost"
	StepService     = "service"
	StepServiceCost = "service_cost"
)

// LoadGraph is the dimension-then-fact order used to write a plan record.
func LoadGraph() *Graph {
	g, err := NewGraph(
		Node{Name: StepDate},
		Node{Name: StepOrg},
		Node{Name: StepPlanType},
		Node{Name: StepPlan, DependsOn: []string{StepOrg, StepPlanType}},
		Node{Name: StepPlanCost, DependsOn: []string{StepDate, StepPlan}},
		Node{Name: StepService, DependsOn: []string{StepPlanCost}},
		Node{Name: StepServiceCost, DependsOn: []string{StepService, StepPlan, StepDate}},
	)
	if err != nil {
		panic(err)
	}
	return g
}
