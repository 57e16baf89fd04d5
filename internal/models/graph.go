package models

import (
	"fmt"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// CompartmentGraph is the directed graph of allowed transitions between
// compartments.
type CompartmentGraph struct {
	g     *simple.DirectedGraph
	ids   map[string]int64
	names map[int64]string
	order []string
}

func NewCompartmentGraph(compartments []string, transitions []Transition) (*CompartmentGraph, error) {
	cg := &CompartmentGraph{
		g:     simple.NewDirectedGraph(),
		ids:   make(map[string]int64, len(compartments)),
		names: make(map[int64]string, len(compartments)),
		order: append([]string(nil), compartments...),
	}

	for _, c := range compartments {
		if c == "" {
			return nil, fmt.Errorf("empty compartment name")
		}
		if _, dup := cg.ids[c]; dup {
			return nil, fmt.Errorf("duplicate compartment %q", c)
		}
		n := cg.g.NewNode()
		cg.g.AddNode(n)
		cg.ids[c] = n.ID()
		cg.names[n.ID()] = c
	}

	for _, tr := range transitions {
		from, ok := cg.ids[tr.From]
		if !ok {
			return nil, fmt.Errorf("transition %s->%s: unknown compartment %q", tr.From, tr.To, tr.From)
		}
		to, ok := cg.ids[tr.To]
		if !ok {
			return nil, fmt.Errorf("transition %s->%s: unknown compartment %q", tr.From, tr.To, tr.To)
		}
		if from == to {
			return nil, fmt.Errorf("transition %s->%s: self transition", tr.From, tr.To)
		}
		if cg.g.HasEdgeFromTo(from, to) {
			return nil, fmt.Errorf("duplicate transition %s->%s", tr.From, tr.To)
		}
		cg.g.SetEdge(cg.g.NewEdge(cg.g.Node(from), cg.g.Node(to)))
	}

	return cg, nil
}

func (cg *CompartmentGraph) Compartments() []string {
	return append([]string(nil), cg.order...)
}

func (cg *CompartmentGraph) Has(c string) bool {
	_, ok := cg.ids[c]
	return ok
}

func (cg *CompartmentGraph) HasTransition(from, to string) bool {
	f, ok := cg.ids[from]
	if !ok {
		return false
	}
	t, ok := cg.ids[to]
	if !ok {
		return false
	}
	return cg.g.HasEdgeFromTo(f, t)
}

// Successors returns the compartments reachable in one transition from c,
// in declaration order.
func (cg *CompartmentGraph) Successors(c string) []string {
	id, ok := cg.ids[c]
	if !ok {
		return nil
	}
	return cg.sorted(graph.NodesOf(cg.g.From(id)))
}

func (cg *CompartmentGraph) Predecessors(c string) []string {
	id, ok := cg.ids[c]
	if !ok {
		return nil
	}
	return cg.sorted(graph.NodesOf(cg.g.To(id)))
}

// Sources are compartments nothing flows into.
func (cg *CompartmentGraph) Sources() []string {
	var out []string
	for _, c := range cg.order {
		if cg.g.To(cg.ids[c]).Len() == 0 {
			out = append(out, c)
		}
	}
	return out
}

// Sinks are absorbing compartments.
func (cg *CompartmentGraph) Sinks() []string {
	var out []string
	for _, c := range cg.order {
		if cg.g.From(cg.ids[c]).Len() == 0 {
			out = append(out, c)
		}
	}
	return out
}

func (cg *CompartmentGraph) Acyclic() bool {
	_, err := topo.Sort(cg.g)
	return err == nil
}

func (cg *CompartmentGraph) Reachable(from, to string) bool {
	f, ok := cg.ids[from]
	if !ok {
		return false
	}
	t, ok := cg.ids[to]
	if !ok {
		return false
	}
	return topo.PathExistsIn(cg.g, cg.g.Node(f), cg.g.Node(t))
}

// Validate rejects compartments no source can reach. Graphs without sources
// (fully cyclic models) are accepted as is.
func (cg *CompartmentGraph) Validate() error {
	sources := cg.Sources()
	if len(sources) == 0 {
		return nil
	}
	for _, c := range cg.order {
		reached := false
		for _, s := range sources {
			if s == c || cg.Reachable(s, c) {
				reached = true
				break
			}
		}
		if !reached {
			return fmt.Errorf("compartment %q is unreachable from %v", c, sources)
		}
	}
	return nil
}

func (cg *CompartmentGraph) sorted(nodes []graph.Node) []string {
	in := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		in[cg.names[n.ID()]] = true
	}
	out := make([]string, 0, len(nodes))
	for _, c := range cg.order {
		if in[c] {
			out = append(out, c)
		}
	}
	return out
}
