package mcp

import (
	"time"

	"github.com/nvandessel/sfcsim/internal/store"
	"github.com/nvandessel/sfcsim/internal/visualization"
)

// RunInput defines the input for the sfcsim_run tool. Zero-valued solver
// fields fall back to the server's configured settings.
type RunInput struct {
	Overrides          map[string]float64 `json:"overrides,omitempty" jsonschema:"initial variable values applied before the first solve"`
	Params             map[string]float64 `json:"params,omitempty" jsonschema:"parameter values replacing the model defaults"`
	Method             string             `json:"method,omitempty" jsonschema:"inner solve method (gauss-seidel or newton)"`
	MaxOuterIterations int                `json:"max_outer_iterations,omitempty" jsonschema:"maximum number of periods to solve"`
	InnerIterations    int                `json:"inner_iterations,omitempty" jsonschema:"maximum sweeps per period solve"`
	ConvergenceRTol    float64            `json:"convergence_rtol,omitempty" jsonschema:"relative tolerance of the steady-state check"`
	Decimals           *int               `json:"decimals,omitempty" jsonschema:"decimal places of the returned values"`
	Rescale            *bool              `json:"rescale,omitempty" jsonschema:"rescale trending variables between periods (default true)"`
	Save               bool               `json:"save,omitempty" jsonschema:"persist the run and its trace"`
}

// RunOutput defines the output for the sfcsim_run tool.
type RunOutput struct {
	RunID       string             `json:"run_id,omitempty" jsonschema:"ID of the saved run"`
	Converged   bool               `json:"converged" jsonschema:"whether the steady-state check passed"`
	Iterations  int                `json:"iterations" jsonschema:"number of period solves"`
	RescaleSafe bool               `json:"rescale_safe" jsonschema:"false when labor-force growth breaks the rescaling assumptions"`
	Values      map[string]float64 `json:"values" jsonschema:"rounded steady-state values"`
}

// VariablesInput defines the input for the sfcsim_variables tool.
type VariablesInput struct{}

// VariablesOutput defines the output for the sfcsim_variables tool.
type VariablesOutput struct {
	Model      string          `json:"model"`
	Variables  []VariableView  `json:"variables"`
	Parameters []ParameterView `json:"parameters"`
}

// VariableView describes one model variable.
type VariableView struct {
	Name     string  `json:"name"`
	Desc     string  `json:"desc"`
	Default  float64 `json:"default"`
	Role     string  `json:"role" jsonschema:"rescaling role (untouched, output, labor, price, output/labor, output*price)"`
	Equation string  `json:"equation,omitempty"`
}

// ParameterView describes one model parameter.
type ParameterView struct {
	Name  string  `json:"name"`
	Desc  string  `json:"desc"`
	Value float64 `json:"value"`
}

// GraphInput defines the input for the sfcsim_graph tool.
type GraphInput struct {
	Params bool `json:"params,omitempty" jsonschema:"include parameter nodes and their edges"`
	Lags   bool `json:"lags,omitempty" jsonschema:"include edges from previous-period values"`
}

// GraphOutput defines the output for the sfcsim_graph tool.
type GraphOutput struct {
	Model  string               `json:"model"`
	Nodes  []visualization.Node `json:"nodes"`
	Edges  []visualization.Edge `json:"edges"`
	Blocks [][]string           `json:"blocks" jsonschema:"variables solved simultaneously within a period"`
}

// ExportInput defines the input for the sfcsim_export tool.
type ExportInput struct {
	ID     string `json:"id" jsonschema:"run ID or unique prefix"`
	Format string `json:"format,omitempty" jsonschema:"arrow (default) or json"`
	Path   string `json:"path,omitempty" jsonschema:"file name inside the export directory; defaults to <run id>.<format>"`
}

// ExportOutput defines the output for the sfcsim_export tool.
type ExportOutput struct {
	RunID      string `json:"run_id"`
	Format     string `json:"format"`
	Path       string `json:"path"`
	Iterations int    `json:"iterations"`
}

// RunsInput defines the input for the sfcsim_runs tool.
type RunsInput struct {
	ID    string `json:"id,omitempty" jsonschema:"run ID or unique prefix; empty lists recent runs"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum runs to list (default 20)"`
}

// RunsOutput defines the output for the sfcsim_runs tool.
type RunsOutput struct {
	Runs  []RunSummary `json:"runs,omitempty"`
	Run   *store.Run   `json:"run,omitempty"`
	Count int          `json:"count"`
}

// RunSummary is the list view of a stored run.
type RunSummary struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	Converged  bool      `json:"converged"`
	Iterations int       `json:"iterations"`
	Method     string    `json:"method"`
}

// TraceInput defines the input for the sfcsim_trace tool.
type TraceInput struct {
	ID    string   `json:"id" jsonschema:"run ID or unique prefix"`
	Names []string `json:"names,omitempty" jsonschema:"variables to include; empty includes none"`
}

// TraceOutput defines the output for the sfcsim_trace tool.
type TraceOutput struct {
	RunID      string       `json:"run_id"`
	Iterations []TracePoint `json:"iterations"`
}

// TracePoint is one outer iteration of a stored trace.
type TracePoint struct {
	Iteration   int                `json:"iteration"`
	Close       bool               `json:"close"`
	OutputScale float64            `json:"output_scale"`
	LaborScale  float64            `json:"labor_scale"`
	PriceScale  float64            `json:"price_scale"`
	Values      map[string]float64 `json:"values,omitempty"`
}
