package visualization

import (
	"fmt"
	"io"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/encoding"
	"gonum.org/v1/gonum/graph/encoding/dot"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/nvandessel/sfcsim/internal/model"
)

// roleColors maps rescale roles to DOT fill colors.
var roleColors = map[string]string{
	"output":       "steelblue",
	"labor":        "mediumseagreen",
	"output/labor": "goldenrod",
	"output*price": "tomato",
	"price":        "orchid",
}

// edgeStyles maps dependency kinds to DOT styles.
var edgeStyles = map[model.DependencyKind]string{
	model.DependsCurrent: "solid",
	model.DependsLag:     "dashed",
	model.DependsParam:   "dotted",
}

type attributes []encoding.Attribute

func (a attributes) Attributes() []encoding.Attribute { return a }

type dotNode struct {
	id int64
	Node
}

func (n dotNode) ID() int64     { return n.id }
func (n dotNode) DOTID() string { return n.Name }
func (n dotNode) Attributes() []encoding.Attribute {
	color := "lightgray"
	if c, ok := roleColors[n.Role]; ok {
		color = c
	}
	attrs := attributes{{Key: "fillcolor", Value: color}}
	if n.Kind == KindParameter {
		attrs = attributes{{Key: "shape", Value: "ellipse"}, {Key: "fillcolor", Value: "white"}}
	}
	if n.Equation != "" {
		attrs = append(attrs, encoding.Attribute{Key: "tooltip", Value: n.Equation})
	}
	if n.Block > 0 {
		attrs = append(attrs, encoding.Attribute{Key: "penwidth", Value: "2"})
	}
	return attrs
}

type dotEdge struct {
	from, to graph.Node
	kind     model.DependencyKind
}

func (e dotEdge) From() graph.Node         { return e.from }
func (e dotEdge) To() graph.Node           { return e.to }
func (e dotEdge) ReversedEdge() graph.Edge { return dotEdge{from: e.to, to: e.from, kind: e.kind} }
func (e dotEdge) Attributes() []encoding.Attribute {
	if e.kind == model.DependsCurrent {
		return nil
	}
	return attributes{{Key: "style", Value: edgeStyles[e.kind]}}
}

// dotGraph adds graph-wide DOT attributes to a simple directed graph.
type dotGraph struct {
	*simple.DirectedGraph
}

func (dotGraph) DOTAttributers() (g, n, e encoding.Attributer) {
	g = attributes{{Key: "rankdir", Value: "LR"}}
	n = attributes{
		{Key: "shape", Value: "box"},
		{Key: "style", Value: "filled"},
		{Key: "fontname", Value: "Helvetica"},
	}
	e = attributes{{Key: "fontname", Value: "Helvetica"}, {Key: "fontsize", Value: "10"}}
	return g, n, e
}

// RenderDOT writes g as a Graphviz digraph. Members of a simultaneous block
// are drawn with a heavier border; lagged edges are dashed and parameter
// edges dotted.
func RenderDOT(w io.Writer, g *Graph) error {
	dg := dotGraph{simple.NewDirectedGraph()}
	nodes := make(map[string]dotNode, len(g.Nodes))
	for i, n := range g.Nodes {
		dn := dotNode{id: int64(i), Node: n}
		nodes[n.Name] = dn
		dg.AddNode(dn)
	}
	for _, e := range g.Edges {
		from, ok1 := nodes[e.Source]
		to, ok2 := nodes[e.Target]
		if !ok1 || !ok2 || e.Source == e.Target {
			continue
		}
		dg.SetEdge(dotEdge{from: from, to: to, kind: e.Kind})
	}

	b, err := dot.Marshal(dg, g.Model, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal dot: %w", err)
	}
	if _, err := w.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("write dot: %w", err)
	}
	return nil
}
