package developmentalist

import (
	"github.com/nvandessel/sfcsim/internal/model"
	"github.com/nvandessel/sfcsim/internal/rescale"
)

// VariableInfo describes a variable for listings.
type VariableInfo struct {
	Name     string       `json:"name" yaml:"name"`
	Desc     string       `json:"desc" yaml:"desc"`
	Default  float64      `json:"default" yaml:"default"`
	Role     rescale.Role `json:"role" yaml:"role"`
	Equation string       `json:"equation,omitempty" yaml:"equation,omitempty"`
}

// Description lists a model's variables and parameters.
type Description struct {
	Model      string            `json:"model" yaml:"model"`
	Variables  []VariableInfo    `json:"variables" yaml:"variables"`
	Parameters []model.Parameter `json:"parameters" yaml:"parameters"`
}

// Describe builds the listing for m, tagging each variable with its role in t.
// Parameter defaults reflect the model's current parameter values.
func Describe(m *model.Model, t *rescale.Table) Description {
	eqs := make(map[string]string)
	for _, eq := range m.Equations() {
		eqs[eq.Target] = eq.Desc
	}

	d := Description{Model: m.Name}
	for _, v := range m.Variables() {
		info := VariableInfo{Name: v.Name, Desc: v.Desc, Default: v.Default, Equation: eqs[v.Name]}
		if t != nil {
			info.Role = t.Role(v.Name)
		}
		d.Variables = append(d.Variables, info)
	}
	for _, p := range m.Parameters() {
		if v, ok := m.ParamValue(p.Name); ok {
			p.Default = v
		}
		d.Parameters = append(d.Parameters, p)
	}
	return d
}
