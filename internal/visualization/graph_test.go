package visualization

import (
	"bytes"
	"encoding/json"
	"slices"
	"strings"
	"testing"

	"github.com/nvandessel/sfcsim/internal/developmentalist"
	"github.com/nvandessel/sfcsim/internal/model"
)

// loopModel has a simultaneous x/y pair and a lagged accumulator z.
func loopModel() *model.Model {
	m := model.New("loop")
	m.Var("x", "", model.Default(1))
	m.Var("y", "", model.Default(1))
	m.Var("z", "", model.Default(1))
	m.Param("k", "", model.Default(0.5))
	m.Add("x", "x = k*y", func(s model.State) float64 { return s.P("k") * s.V("y") })
	m.Add("y", "y = x + x(-1)", func(s model.State) float64 { return s.V("x") + s.Lag("x") })
	m.Add("z", "z = z(-1) + y(-1)", func(s model.State) float64 { return s.Lag("z") + s.Lag("y") })
	return m
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"dot", FormatDOT, false},
		{" JSON ", FormatJSON, false},
		{"html", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestBuild_Edges(t *testing.T) {
	tests := []struct {
		name      string
		opts      Options
		wantNodes int
		want      []Edge
	}{
		{
			name:      "current only",
			opts:      Options{},
			wantNodes: 3,
			want: []Edge{
				{"y", "x", model.DependsCurrent},
				{"x", "y", model.DependsCurrent},
			},
		},
		{
			name:      "params and lags",
			opts:      Options{Params: true, Lags: true},
			wantNodes: 4,
			want: []Edge{
				{"k", "x", model.DependsParam},
				{"y", "x", model.DependsCurrent},
				{"x", "y", model.DependsCurrent},
				{"y", "z", model.DependsLag},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := Build(loopModel(), nil, tt.opts)
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}
			if len(g.Nodes) != tt.wantNodes {
				t.Errorf("got %d nodes, want %d", len(g.Nodes), tt.wantNodes)
			}
			if !slices.Equal(g.Edges, tt.want) {
				t.Errorf("edges = %+v, want %+v", g.Edges, tt.want)
			}
		})
	}
}

func TestBuild_Blocks(t *testing.T) {
	g, err := Build(loopModel(), nil, Options{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(g.Blocks) != 1 || !slices.Equal(g.Blocks[0], []string{"x", "y"}) {
		t.Fatalf("blocks = %v, want [[x y]]", g.Blocks)
	}
	for _, n := range g.Nodes {
		want := 0
		if n.Name == "x" || n.Name == "y" {
			want = 1
		}
		if n.Block != want {
			t.Errorf("%s.Block = %d, want %d", n.Name, n.Block, want)
		}
	}
}

func TestBuild_Developmentalist(t *testing.T) {
	g, err := Build(developmentalist.New(), developmentalist.Table(), Options{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(g.Nodes) != 30 {
		t.Errorf("got %d nodes, want 30", len(g.Nodes))
	}

	want := [][]string{
		{"K", "Y", "gh", "h", "sigma", "u"},
		{"e", "gy", "y"},
		{"gw", "p", "varpi", "w"},
	}
	if len(g.Blocks) != len(want) {
		t.Fatalf("blocks = %v, want %v", g.Blocks, want)
	}
	for i := range want {
		if !slices.Equal(g.Blocks[i], want[i]) {
			t.Errorf("block %d = %v, want %v", i, g.Blocks[i], want[i])
		}
	}

	for _, n := range g.Nodes {
		if n.Name == "Y" && n.Role != "output" {
			t.Errorf("Y role = %q, want output", n.Role)
		}
	}
}

func TestRenderDOT(t *testing.T) {
	g, err := Build(developmentalist.New(), developmentalist.Table(), Options{Lags: true})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	var buf bytes.Buffer
	if err := RenderDOT(&buf, g); err != nil {
		t.Fatalf("RenderDOT() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{"digraph", "rankdir=LR", "K -> u", "steelblue"} {
		if !strings.Contains(out, want) {
			t.Errorf("DOT output missing %q", want)
		}
	}

	g, err = Build(loopModel(), nil, Options{Lags: true})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	buf.Reset()
	if err := RenderDOT(&buf, g); err != nil {
		t.Fatalf("RenderDOT() error = %v", err)
	}
	if out := buf.String(); !strings.Contains(out, "y -> z") || !strings.Contains(out, "dashed") {
		t.Errorf("lagged edge not rendered:\n%s", out)
	}
}

func TestRenderJSON(t *testing.T) {
	g, err := Build(loopModel(), nil, Options{Params: true})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	var buf bytes.Buffer
	if err := Render(&buf, FormatJSON, g); err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	var got Graph
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got.Model != "loop" || len(got.Nodes) != 4 || len(got.Edges) != 3 || len(got.Blocks) != 1 {
		t.Errorf("decoded graph = %+v", got)
	}
	if got.Nodes[3].Kind != KindParameter {
		t.Errorf("last node kind = %q, want parameter", got.Nodes[3].Kind)
	}
}
