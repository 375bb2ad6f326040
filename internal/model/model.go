// Package model implements a small equation-system engine: named variables and
// parameters, explicit difference equations that read current and lagged
// values, and an append-only history of solved snapshots.
//
// Each equation defines exactly one variable. Implicit forms such as
//
//	h - h(-1) = gh * h(-1)
//
// are written explicitly as h = h(-1) * (1 + gh).
package model

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
)

// Solution maps every declared variable name to its value after one solve.
type Solution map[string]float64

// Clone returns an independent copy of the solution.
func (s Solution) Clone() Solution {
	return maps.Clone(s)
}

// Variable is a declared endogenous or exogenous variable.
type Variable struct {
	Name    string  `json:"name" yaml:"name"`
	Desc    string  `json:"desc" yaml:"desc"`
	Default float64 `json:"default" yaml:"default"`
}

// Parameter is a named constant read by equations.
type Parameter struct {
	Name    string  `json:"name" yaml:"name"`
	Desc    string  `json:"desc" yaml:"desc"`
	Default float64 `json:"default" yaml:"default"`
}

// State is the read-only view an equation evaluates against.
type State interface {
	// V returns the current-period value of a variable.
	V(name string) float64
	// Lag returns the previous-period value of a variable.
	Lag(name string) float64
	// P returns a parameter value.
	P(name string) float64
}

// EquationFunc computes the value of an equation's target variable.
type EquationFunc func(s State) float64

// Equation defines one variable as a function of the model state.
type Equation struct {
	Target string
	Desc   string
	Fn     EquationFunc
}

// Method selects the fixed-point algorithm used by Solve.
type Method string

const (
	MethodGaussSeidel Method = "gauss-seidel"
	MethodNewton      Method = "newton"
)

// ParseMethod maps a method name to a Method. Empty selects Gauss-Seidel.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case "", MethodGaussSeidel:
		return MethodGaussSeidel, nil
	case MethodNewton:
		return MethodNewton, nil
	default:
		return "", fmt.Errorf("unknown solve method %q (valid: gauss-seidel, newton)", s)
	}
}

// Option configures a declaration.
type Option func(*declaration)

type declaration struct {
	def    float64
	hasDef bool
}

// Default sets the default value of a variable or parameter.
func Default(v float64) Option {
	return func(d *declaration) {
		d.def = v
		d.hasDef = true
	}
}

// Model holds the declarations, current values and solution history.
// A Model is not safe for concurrent use.
type Model struct {
	Name string

	vars       []Variable
	varIndex   map[string]int
	params     []Parameter
	paramIndex map[string]int
	equations  []Equation

	varDefault  float64
	current     []float64
	paramValues []float64
	pending     map[int]float64
	solutions   []Solution

	method  Method
	logger  *slog.Logger
	declErr error
}

// New creates an empty model.
func New(name string) *Model {
	return &Model{
		Name:       name,
		varIndex:   make(map[string]int),
		paramIndex: make(map[string]int),
		pending:    make(map[int]float64),
		method:     MethodGaussSeidel,
		logger:     slog.Default(),
	}
}

// SetVarDefault sets the default for variables declared afterwards without Default.
func (m *Model) SetVarDefault(v float64) {
	m.varDefault = v
}

// SetMethod selects the solve algorithm.
func (m *Model) SetMethod(method Method) {
	m.method = method
}

// Method returns the selected solve algorithm.
func (m *Model) Method() Method {
	return m.method
}

// SetLogger replaces the logger used for solver diagnostics.
func (m *Model) SetLogger(l *slog.Logger) {
	if l != nil {
		m.logger = l
	}
}

// Var declares a variable.
func (m *Model) Var(name, desc string, opts ...Option) {
	d := declaration{def: m.varDefault}
	for _, o := range opts {
		o(&d)
	}
	if _, dup := m.varIndex[name]; dup {
		m.declErr = errors.Join(m.declErr, fmt.Errorf("%w: variable %s declared twice", ErrInvalidModel, name))
		return
	}
	if _, clash := m.paramIndex[name]; clash {
		m.declErr = errors.Join(m.declErr, fmt.Errorf("%w: %s is already a parameter", ErrInvalidModel, name))
		return
	}
	m.varIndex[name] = len(m.vars)
	m.vars = append(m.vars, Variable{Name: name, Desc: desc, Default: d.def})
	m.current = append(m.current, d.def)
}

// Param declares a parameter. Parameters without Default are zero.
func (m *Model) Param(name, desc string, opts ...Option) {
	var d declaration
	for _, o := range opts {
		o(&d)
	}
	if _, dup := m.paramIndex[name]; dup {
		m.declErr = errors.Join(m.declErr, fmt.Errorf("%w: parameter %s declared twice", ErrInvalidModel, name))
		return
	}
	if _, clash := m.varIndex[name]; clash {
		m.declErr = errors.Join(m.declErr, fmt.Errorf("%w: %s is already a variable", ErrInvalidModel, name))
		return
	}
	m.paramIndex[name] = len(m.params)
	m.params = append(m.params, Parameter{Name: name, Desc: desc, Default: d.def})
	m.paramValues = append(m.paramValues, d.def)
}

// Add registers an equation defining target.
func (m *Model) Add(target, desc string, fn EquationFunc) {
	m.equations = append(m.equations, Equation{Target: target, Desc: desc, Fn: fn})
}

// Names returns variable names in declaration order.
func (m *Model) Names() []string {
	names := make([]string, len(m.vars))
	for i, v := range m.vars {
		names[i] = v.Name
	}
	return names
}

// Variables returns the declared variables.
func (m *Model) Variables() []Variable {
	return slices.Clone(m.vars)
}

// Parameters returns the declared parameters with their default values.
func (m *Model) Parameters() []Parameter {
	return slices.Clone(m.params)
}

// Equations returns the registered equations in evaluation order.
func (m *Model) Equations() []Equation {
	return slices.Clone(m.equations)
}

// ParamValue returns the current value of a parameter.
func (m *Model) ParamValue(name string) (float64, bool) {
	i, ok := m.paramIndex[name]
	if !ok {
		return 0, false
	}
	return m.paramValues[i], true
}

// SetValues overrides variable values. Before the first solve they become the
// starting point and the lagged values; afterwards they override the starting
// point of the next solve only. Unknown names fail the whole call.
func (m *Model) SetValues(values map[string]float64) error {
	for name := range values {
		if _, ok := m.varIndex[name]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownVariable, name)
		}
	}
	for name, v := range values {
		i := m.varIndex[name]
		m.current[i] = v
		m.pending[i] = v
	}
	return nil
}

// SetParams overrides parameter values. Unknown names fail the whole call.
func (m *Model) SetParams(values map[string]float64) error {
	for name := range values {
		if _, ok := m.paramIndex[name]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownParameter, name)
		}
	}
	for name, v := range values {
		m.paramValues[m.paramIndex[name]] = v
	}
	return nil
}

// Solutions returns the solution history. Entries are the model's own maps:
// writing to the latest entry changes the lagged values seen by the next solve.
func (m *Model) Solutions() []Solution {
	return m.solutions
}

// Validate checks declarations and dry-runs every equation against the
// default values to catch references to undeclared names.
func (m *Model) Validate() error {
	var errs []error
	if m.declErr != nil {
		errs = append(errs, m.declErr)
	}

	defined := make(map[string]bool, len(m.equations))
	for _, eq := range m.equations {
		if _, ok := m.varIndex[eq.Target]; !ok {
			errs = append(errs, fmt.Errorf("%w: equation for undeclared variable %s", ErrInvalidModel, eq.Target))
			continue
		}
		if defined[eq.Target] {
			errs = append(errs, fmt.Errorf("%w: variable %s defined by more than one equation", ErrInvalidModel, eq.Target))
		}
		defined[eq.Target] = true
		if eq.Fn == nil {
			errs = append(errs, fmt.Errorf("%w: equation for %s has no function", ErrInvalidModel, eq.Target))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	cur := slices.Clone(m.current)
	st := &evalState{m: m, cur: cur, lag: cur}
	for _, eq := range m.equations {
		eq.Fn(st)
		if st.err != nil {
			errs = append(errs, fmt.Errorf("equation %s: %w", eq.Target, st.err))
			st.err = nil
		}
	}
	return errors.Join(errs...)
}

// DependencyKind says how an equation reads a name.
type DependencyKind string

const (
	DependsCurrent DependencyKind = "current"
	DependsLag     DependencyKind = "lag"
	DependsParam   DependencyKind = "param"
)

// Dependency records that the equation for Target reads Source.
type Dependency struct {
	Target string         `json:"target"`
	Source string         `json:"source"`
	Kind   DependencyKind `json:"kind"`
}

// Dependencies lists the names each equation reads when evaluated at the
// default values, in equation order. Branches not taken at the defaults are
// not seen.
func (m *Model) Dependencies() ([]Dependency, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	var (
		deps   []Dependency
		target string
		seen   = make(map[Dependency]bool)
	)
	cur := slices.Clone(m.current)
	st := &evalState{m: m, cur: cur, lag: cur}
	st.record = func(name string, kind DependencyKind) {
		d := Dependency{Target: target, Source: name, Kind: kind}
		if !seen[d] {
			seen[d] = true
			deps = append(deps, d)
		}
	}
	for _, eq := range m.equations {
		target = eq.Target
		eq.Fn(st)
	}
	return deps, nil
}

// evalState resolves names against value slices indexed like m.vars.
type evalState struct {
	m      *Model
	cur    []float64
	lag    []float64
	err    error
	record func(name string, kind DependencyKind)
}

func (s *evalState) V(name string) float64 {
	if s.record != nil {
		s.record(name, DependsCurrent)
	}
	i, ok := s.m.varIndex[name]
	if !ok {
		s.fail(fmt.Errorf("%w: reference to undeclared variable %s", ErrInvalidModel, name))
		return 0
	}
	return s.cur[i]
}

func (s *evalState) Lag(name string) float64 {
	if s.record != nil {
		s.record(name, DependsLag)
	}
	i, ok := s.m.varIndex[name]
	if !ok {
		s.fail(fmt.Errorf("%w: lagged reference to undeclared variable %s", ErrInvalidModel, name))
		return 0
	}
	return s.lag[i]
}

func (s *evalState) P(name string) float64 {
	if s.record != nil {
		s.record(name, DependsParam)
	}
	i, ok := s.m.paramIndex[name]
	if !ok {
		s.fail(fmt.Errorf("%w: reference to undeclared parameter %s", ErrInvalidModel, name))
		return 0
	}
	return s.m.paramValues[i]
}

func (s *evalState) fail(err error) {
	if s.err == nil {
		s.err = err
	}
}
