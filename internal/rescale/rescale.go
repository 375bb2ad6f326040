// Package rescale normalizes trending level variables of a solved period so
// that repeated solves do not grow without bound.
//
// Three scale factors are taken from anchor variables of the latest solution:
//
//	output = 100 / Y    labor = 100 / N    price = 1 / p
//
// Every variable carries a Role saying which combination of factors it is
// multiplied by. Ratios and growth rates keep RoleUntouched.
//
// The transform preserves the model's identities only while the labor force
// is stationary (zero exogenous labor-force growth).
package rescale

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/nvandessel/sfcsim/internal/model"
)

var (
	// ErrMissingVariable indicates a variable named by the table is absent from the solution.
	ErrMissingVariable = errors.New("rescale: variable missing from solution")

	// ErrDegenerateAnchor indicates an anchor value of zero, NaN or Inf.
	ErrDegenerateAnchor = errors.New("rescale: degenerate anchor value")
)

// Role says how a variable is rescaled.
type Role int

const (
	RoleUntouched Role = iota
	RoleOutput
	RoleLabor
	RoleOutputPerLabor
	RoleOutputTimesPrice
	RolePrice
)

var roleNames = map[Role]string{
	RoleUntouched:        "untouched",
	RoleOutput:           "output",
	RoleLabor:            "labor",
	RoleOutputPerLabor:   "output/labor",
	RoleOutputTimesPrice: "output*price",
	RolePrice:            "price",
}

func (r Role) String() string {
	if s, ok := roleNames[r]; ok {
		return s
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(b []byte) error {
	role, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = role
	return nil
}

// ParseRole maps a role name back to a Role.
func ParseRole(s string) (Role, error) {
	for r, name := range roleNames {
		if name == s {
			return r, nil
		}
	}
	return RoleUntouched, fmt.Errorf("unknown rescale role %q", s)
}

// Factors holds the scale factors of one rescaling call.
type Factors struct {
	Output float64 `json:"output"`
	Labor  float64 `json:"labor"`
	Price  float64 `json:"price"`
}

// For returns the multiplier applied to a variable with the given role.
func (f Factors) For(r Role) float64 {
	switch r {
	case RoleOutput:
		return f.Output
	case RoleLabor:
		return f.Labor
	case RoleOutputPerLabor:
		return f.Output / f.Labor
	case RoleOutputTimesPrice:
		return f.Output * f.Price
	case RolePrice:
		return f.Price
	default:
		return 1
	}
}

// Table declares the anchors and the role of every rescaled variable.
// Variables not listed are untouched.
type Table struct {
	OutputAnchor string
	LaborAnchor  string
	PriceAnchor  string
	Roles        map[string]Role
}

// Role returns the role of a variable.
func (t *Table) Role(name string) Role {
	return t.Roles[name]
}

// Names returns the rescaled variable names, sorted.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.Roles))
	for name, r := range t.Roles {
		if r != RoleUntouched {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Validate checks that every anchor and every listed variable is declared.
func (t *Table) Validate(declared []string) error {
	known := make(map[string]bool, len(declared))
	for _, n := range declared {
		known[n] = true
	}
	var errs []error
	for _, a := range []string{t.OutputAnchor, t.LaborAnchor, t.PriceAnchor} {
		if !known[a] {
			errs = append(errs, fmt.Errorf("%w: anchor %q", ErrMissingVariable, a))
		}
	}
	for _, name := range t.Names() {
		if !known[name] {
			errs = append(errs, fmt.Errorf("%w: %q", ErrMissingVariable, name))
		}
	}
	return errors.Join(errs...)
}

// Factors computes the scale factors from the anchors of sol.
func (t *Table) Factors(sol model.Solution) (Factors, error) {
	y, err := anchor(sol, t.OutputAnchor)
	if err != nil {
		return Factors{}, err
	}
	n, err := anchor(sol, t.LaborAnchor)
	if err != nil {
		return Factors{}, err
	}
	p, err := anchor(sol, t.PriceAnchor)
	if err != nil {
		return Factors{}, err
	}
	return Factors{Output: 100 / y, Labor: 100 / n, Price: 1 / p}, nil
}

// Apply rescales sol in place and returns the factors used. On error sol is
// left unchanged.
func (t *Table) Apply(sol model.Solution) (Factors, error) {
	f, err := t.Factors(sol)
	if err != nil {
		return Factors{}, err
	}
	for name, r := range t.Roles {
		if r == RoleUntouched {
			continue
		}
		if _, ok := sol[name]; !ok {
			return Factors{}, fmt.Errorf("%w: %q", ErrMissingVariable, name)
		}
	}
	for name, r := range t.Roles {
		if r != RoleUntouched {
			sol[name] *= f.For(r)
		}
	}
	return f, nil
}

func anchor(sol model.Solution, name string) (float64, error) {
	v, ok := sol[name]
	if !ok {
		return 0, fmt.Errorf("%w: anchor %q", ErrMissingVariable, name)
	}
	if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %s = %g", ErrDegenerateAnchor, name, v)
	}
	return v, nil
}
