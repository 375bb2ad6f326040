package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/sfcsim/internal/developmentalist"
	"github.com/nvandessel/sfcsim/internal/export"
	"github.com/nvandessel/sfcsim/internal/pathutil"
	"github.com/nvandessel/sfcsim/internal/ratelimit"
	"github.com/nvandessel/sfcsim/internal/session"
	"github.com/nvandessel/sfcsim/internal/store"
	"github.com/nvandessel/sfcsim/internal/visualization"
)

const (
	modelResourceURI = "sfcsim://model/" + developmentalist.Name
	defaultRunsLimit = 20
)

func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "sfcsim_run",
		Description: "Solve the new developmentalist model to its steady state, optionally overriding initial values, parameters and solver settings",
	}, s.handleRun)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "sfcsim_variables",
		Description: "List the model's variables with their equations and rescaling roles, and its parameters",
	}, s.handleVariables)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "sfcsim_runs",
		Description: "List saved runs, or show one run by ID or unique ID prefix",
	}, s.handleRuns)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "sfcsim_trace",
		Description: "Show the per-iteration rescaling factors of a saved run, with selected variables",
	}, s.handleTrace)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "sfcsim_graph",
		Description: "Show which variables each equation reads and the blocks of variables solved simultaneously",
	}, s.handleGraph)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "sfcsim_export",
		Description: "Write a saved run and its iteration trace to the export directory as an Arrow IPC file or JSON",
	}, s.handleExport)
}

func (s *Server) registerResources() {
	s.server.AddResource(&sdk.Resource{
		URI:         modelResourceURI,
		Name:        "sfcsim-model",
		Description: "Variables, equations and parameters of the new developmentalist model.",
		MIMEType:    "text/markdown",
	}, s.handleModelResource)
}

// handleModelResource renders the model description as markdown.
func (s *Server) handleModelResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	d := developmentalist.Describe(developmentalist.New(), developmentalist.Table())

	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", d.Model)
	sb.WriteString("| Variable | Description | Default | Role |\n|---|---|---|---|\n")
	for _, v := range d.Variables {
		fmt.Fprintf(&sb, "| %s | %s | %g | %s |\n", v.Name, v.Desc, v.Default, v.Role)
	}
	sb.WriteString("\n| Parameter | Description | Value |\n|---|---|---|\n")
	for _, p := range d.Parameters {
		fmt.Fprintf(&sb, "| %s | %s | %g |\n", p.Name, p.Desc, p.Default)
	}

	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{
				URI:      modelResourceURI,
				MIMEType: "text/markdown",
				Text:     sb.String(),
			},
		},
	}, nil
}

// runRequest merges tool input over the server's configured solver settings.
func (s *Server) runRequest(args RunInput) session.Request {
	solver := s.settings.Solver
	if args.Method != "" {
		solver.Method = args.Method
	}
	if args.MaxOuterIterations > 0 {
		solver.MaxOuterIterations = args.MaxOuterIterations
	}
	if args.InnerIterations > 0 {
		solver.InnerIterations = args.InnerIterations
	}
	if args.ConvergenceRTol > 0 {
		solver.ConvergenceRTol = args.ConvergenceRTol
	}
	if args.Decimals != nil {
		solver.Decimals = *args.Decimals
	}
	if args.Rescale != nil {
		solver.Rescale = *args.Rescale
	}
	return session.Request{
		Overrides: args.Overrides,
		Params:    args.Params,
		Solver:    solver,
		Save:      args.Save,
	}
}

func (s *Server) handleRun(ctx context.Context, req *sdk.CallToolRequest, args RunInput) (_ *sdk.CallToolResult, _ RunOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("sfcsim_run", start, retErr, sanitizeToolParams(map[string]any{
			"overrides": args.Overrides, "params": args.Params, "method": args.Method, "save": args.Save,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "sfcsim_run"); err != nil {
		return nil, RunOutput{}, err
	}

	out, err := s.session.Run(ctx, s.runRequest(args))
	if err != nil {
		return nil, RunOutput{}, fmt.Errorf("run failed: %w", err)
	}

	result := RunOutput{
		Converged:   out.Result.Converged,
		Iterations:  out.Result.Iterations,
		RescaleSafe: out.RescaleSafe,
		Values:      out.Result.Values,
	}
	if out.Saved {
		result.RunID = out.RunID
	}
	return nil, result, nil
}

func (s *Server) handleVariables(ctx context.Context, req *sdk.CallToolRequest, args VariablesInput) (_ *sdk.CallToolResult, _ VariablesOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("sfcsim_variables", start, retErr, nil)
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "sfcsim_variables"); err != nil {
		return nil, VariablesOutput{}, err
	}

	d := developmentalist.Describe(developmentalist.New(), developmentalist.Table())
	out := VariablesOutput{
		Model:      d.Model,
		Variables:  make([]VariableView, 0, len(d.Variables)),
		Parameters: make([]ParameterView, 0, len(d.Parameters)),
	}
	for _, v := range d.Variables {
		out.Variables = append(out.Variables, VariableView{
			Name:     v.Name,
			Desc:     v.Desc,
			Default:  v.Default,
			Role:     v.Role.String(),
			Equation: v.Equation,
		})
	}
	for _, p := range d.Parameters {
		out.Parameters = append(out.Parameters, ParameterView{Name: p.Name, Desc: p.Desc, Value: p.Default})
	}
	return nil, out, nil
}

func (s *Server) handleRuns(ctx context.Context, req *sdk.CallToolRequest, args RunsInput) (_ *sdk.CallToolResult, _ RunsOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("sfcsim_runs", start, retErr, sanitizeToolParams(map[string]any{
			"id": args.ID, "limit": args.Limit,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "sfcsim_runs"); err != nil {
		return nil, RunsOutput{}, err
	}

	if args.ID != "" {
		run, err := s.store.GetRun(ctx, args.ID)
		if err != nil {
			return nil, RunsOutput{}, fmt.Errorf("failed to get run: %w", err)
		}
		return nil, RunsOutput{Run: run, Count: 1}, nil
	}

	limit := args.Limit
	if limit <= 0 {
		limit = defaultRunsLimit
	}
	runs, err := s.store.ListRuns(ctx, limit)
	if err != nil {
		return nil, RunsOutput{}, fmt.Errorf("failed to list runs: %w", err)
	}
	out := RunsOutput{Runs: make([]RunSummary, 0, len(runs)), Count: len(runs)}
	for _, r := range runs {
		out.Runs = append(out.Runs, RunSummary{
			ID:         r.ID,
			CreatedAt:  r.CreatedAt,
			Converged:  r.Converged,
			Iterations: r.Iterations,
			Method:     r.Settings.Method,
		})
	}
	return nil, out, nil
}

func (s *Server) handleTrace(ctx context.Context, req *sdk.CallToolRequest, args TraceInput) (_ *sdk.CallToolResult, _ TraceOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("sfcsim_trace", start, retErr, sanitizeToolParams(map[string]any{
			"id": args.ID, "names": len(args.Names),
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "sfcsim_trace"); err != nil {
		return nil, TraceOutput{}, err
	}
	if args.ID == "" {
		return nil, TraceOutput{}, fmt.Errorf("'id' parameter is required")
	}

	run, err := s.store.GetRun(ctx, args.ID)
	if err != nil {
		return nil, TraceOutput{}, fmt.Errorf("failed to get run: %w", err)
	}
	trace, err := s.store.Trace(ctx, run.ID)
	if err != nil {
		return nil, TraceOutput{}, fmt.Errorf("failed to read trace: %w", err)
	}

	out := TraceOutput{RunID: run.ID, Iterations: make([]TracePoint, 0, len(trace))}
	for _, it := range trace {
		p := TracePoint{
			Iteration:   it.Iteration,
			Close:       it.Close,
			OutputScale: it.Factors.Output,
			LaborScale:  it.Factors.Labor,
			PriceScale:  it.Factors.Price,
		}
		if len(args.Names) > 0 {
			p.Values = make(map[string]float64, len(args.Names))
			for _, name := range args.Names {
				if v, ok := it.Values[name]; ok {
					p.Values[name] = v
				}
			}
		}
		out.Iterations = append(out.Iterations, p)
	}
	return nil, out, nil
}

func (s *Server) handleGraph(ctx context.Context, req *sdk.CallToolRequest, args GraphInput) (_ *sdk.CallToolResult, _ GraphOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("sfcsim_graph", start, retErr, sanitizeToolParams(map[string]any{
			"params": args.Params, "lags": args.Lags,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "sfcsim_graph"); err != nil {
		return nil, GraphOutput{}, err
	}

	g, err := visualization.Build(developmentalist.New(), developmentalist.Table(), visualization.Options{
		Params: args.Params,
		Lags:   args.Lags,
	})
	if err != nil {
		return nil, GraphOutput{}, fmt.Errorf("failed to build graph: %w", err)
	}
	return nil, GraphOutput{Model: g.Model, Nodes: g.Nodes, Edges: g.Edges, Blocks: g.Blocks}, nil
}

func (s *Server) handleExport(ctx context.Context, req *sdk.CallToolRequest, args ExportInput) (_ *sdk.CallToolResult, _ ExportOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("sfcsim_export", start, retErr, sanitizeToolParams(map[string]any{
			"id": args.ID, "format": args.Format, "path": args.Path,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "sfcsim_export"); err != nil {
		return nil, ExportOutput{}, err
	}
	if s.exportDir == "" {
		return nil, ExportOutput{}, fmt.Errorf("exports are disabled on this server")
	}
	if args.ID == "" {
		return nil, ExportOutput{}, fmt.Errorf("'id' parameter is required")
	}
	format := export.FormatArrow
	if args.Format != "" {
		f, err := export.ParseFormat(args.Format)
		if err != nil {
			return nil, ExportOutput{}, err
		}
		format = f
	}

	run, err := s.store.GetRun(ctx, args.ID)
	if err != nil {
		return nil, ExportOutput{}, fmt.Errorf("failed to get run: %w", err)
	}
	trace, err := s.store.Trace(ctx, run.ID)
	if err != nil {
		return nil, ExportOutput{}, fmt.Errorf("failed to read trace: %w", err)
	}

	name := args.Path
	if name == "" {
		name = run.ID + "." + string(format)
	}
	path, err := pathutil.Resolve(name, s.exportDir)
	if err != nil {
		return nil, ExportOutput{}, fmt.Errorf("invalid export path: %w", err)
	}
	if err := writeExport(path, format, run, trace); err != nil {
		return nil, ExportOutput{}, fmt.Errorf("failed to write %s: %w", pathutil.RedactPath(path), err)
	}

	s.logger.Info("exported run", "id", run.ID, "format", format, "path", pathutil.RedactPath(path))
	return nil, ExportOutput{
		RunID:      run.ID,
		Format:     string(format),
		Path:       path,
		Iterations: len(trace),
	}, nil
}

// writeExport writes run to path, creating parent directories.
func writeExport(path string, format export.Format, run *store.Run, trace []store.Iteration) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := export.Write(f, format, run, trace); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
