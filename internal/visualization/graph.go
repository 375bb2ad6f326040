// Package visualization renders a model's equation dependency graph.
package visualization

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/nvandessel/sfcsim/internal/model"
	"github.com/nvandessel/sfcsim/internal/rescale"
)

// Format specifies the output format for graph rendering.
type Format string

const (
	FormatDOT  Format = "dot"
	FormatJSON Format = "json"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatDOT, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown graph format %q (valid: dot, json)", s)
	}
}

// Node kinds.
const (
	KindVariable  = "variable"
	KindParameter = "parameter"
)

// Node is a variable or parameter in the graph.
type Node struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Role     string `json:"role,omitempty"`
	Equation string `json:"equation,omitempty"`
	// Block is the 1-based index into Graph.Blocks, or 0.
	Block int `json:"block,omitempty"`
}

// Edge says that the equation for Target reads Source.
type Edge struct {
	Source string               `json:"source"`
	Target string               `json:"target"`
	Kind   model.DependencyKind `json:"kind"`
}

// Graph is the dependency graph of one model.
type Graph struct {
	Model string `json:"model"`
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
	// Blocks are the sets of variables that must be solved simultaneously
	// within a period, each sorted by name.
	Blocks [][]string `json:"blocks"`
}

// Options selects which edges Build keeps.
type Options struct {
	// Params adds parameter nodes and their edges.
	Params bool
	// Lags keeps edges from previous-period values.
	Lags bool
}

// Build derives the dependency graph of m. Roles are taken from t when it
// is non-nil. Self edges are dropped, and a pair read both in the current
// and the previous period keeps only the current edge.
func Build(m *model.Model, t *rescale.Table, opts Options) (*Graph, error) {
	deps, err := m.Dependencies()
	if err != nil {
		return nil, err
	}

	g := &Graph{Model: m.Name, Nodes: []Node{}, Edges: []Edge{}, Blocks: [][]string{}}

	eqs := make(map[string]string)
	for _, eq := range m.Equations() {
		eqs[eq.Target] = eq.Desc
	}
	index := make(map[string]int)
	for _, v := range m.Variables() {
		n := Node{Name: v.Name, Kind: KindVariable, Equation: eqs[v.Name]}
		if t != nil {
			n.Role = t.Role(v.Name).String()
		}
		index[v.Name] = len(g.Nodes)
		g.Nodes = append(g.Nodes, n)
	}
	if opts.Params {
		for _, p := range m.Parameters() {
			index[p.Name] = len(g.Nodes)
			g.Nodes = append(g.Nodes, Node{Name: p.Name, Kind: KindParameter})
		}
	}

	type pair struct{ source, target string }
	edgeAt := make(map[pair]int)
	for _, d := range deps {
		if d.Source == d.Target {
			continue
		}
		switch d.Kind {
		case model.DependsParam:
			if !opts.Params {
				continue
			}
		case model.DependsLag:
			if !opts.Lags {
				continue
			}
		}
		key := pair{d.Source, d.Target}
		if i, ok := edgeAt[key]; ok {
			if d.Kind == model.DependsCurrent {
				g.Edges[i].Kind = model.DependsCurrent
			}
			continue
		}
		edgeAt[key] = len(g.Edges)
		g.Edges = append(g.Edges, Edge{Source: d.Source, Target: d.Target, Kind: d.Kind})
	}

	g.Blocks = simultaneousBlocks(m.Variables(), deps)
	for i, block := range g.Blocks {
		for _, name := range block {
			g.Nodes[index[name]].Block = i + 1
		}
	}
	return g, nil
}

// simultaneousBlocks returns the strongly connected components of the
// current-period dependency graph that hold more than one variable.
func simultaneousBlocks(vars []model.Variable, deps []model.Dependency) [][]string {
	dg := simple.NewDirectedGraph()
	ids := make(map[string]int64, len(vars))
	names := make(map[int64]string, len(vars))
	for i, v := range vars {
		id := int64(i)
		ids[v.Name] = id
		names[id] = v.Name
		dg.AddNode(simple.Node(id))
	}
	for _, d := range deps {
		if d.Kind != model.DependsCurrent || d.Source == d.Target {
			continue
		}
		from, ok1 := ids[d.Source]
		to, ok2 := ids[d.Target]
		if !ok1 || !ok2 {
			continue
		}
		dg.SetEdge(dg.NewEdge(simple.Node(from), simple.Node(to)))
	}

	blocks := [][]string{}
	for _, scc := range topo.TarjanSCC(dg) {
		if len(scc) < 2 {
			continue
		}
		block := make([]string, 0, len(scc))
		for _, n := range scc {
			block = append(block, names[n.ID()])
		}
		slices.Sort(block)
		blocks = append(blocks, block)
	}
	slices.SortFunc(blocks, func(a, b []string) int {
		return strings.Compare(a[0], b[0])
	})
	return blocks
}

// Render writes g in the given format.
func Render(w io.Writer, format Format, g *Graph) error {
	switch format {
	case FormatDOT:
		return RenderDOT(w, g)
	case FormatJSON:
		return RenderJSON(w, g)
	default:
		return fmt.Errorf("unknown graph format %q", format)
	}
}

// RenderJSON writes g as indented JSON.
func RenderJSON(w io.Writer, g *Graph) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(g); err != nil {
		return fmt.Errorf("encode graph: %w", err)
	}
	return nil
}
