package rescale

import (
	"errors"
	"math"
	"testing"

	"github.com/nvandessel/sfcsim/internal/model"
)

func testTable() *Table {
	return &Table{
		OutputAnchor: "Y",
		LaborAnchor:  "N",
		PriceAnchor:  "p",
		Roles: map[string]Role{
			"Y": RoleOutput,
			"K": RoleOutput,
			"X": RoleOutput,
			"y": RoleOutputPerLabor,
			"N": RoleLabor,
			"w": RoleOutputTimesPrice,
			"p": RolePrice,
		},
	}
}

func TestApply_DimensionalConsistency(t *testing.T) {
	sol := model.Solution{
		"Y": 50, "K": 200, "X": 25,
		"N": 20, "p": 2, "y": 5, "w": 1,
		"varpi": 0.5, "gY": 0.03,
	}

	f, err := testTable().Apply(sol)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if f.Output != 2 || f.Labor != 5 || f.Price != 0.5 {
		t.Errorf("factors = %+v, want {2 5 0.5}", f)
	}

	want := map[string]float64{
		"Y": 100, "K": 400, "X": 50,
		"N": 100, "p": 1,
		"y": 2, // 5 * (2/5)
		"w": 1, // 1 * 2 * 0.5
		"varpi": 0.5, "gY": 0.03,
	}
	for name, w := range want {
		if math.Abs(sol[name]-w) > 1e-12 {
			t.Errorf("%s = %v, want %v", name, sol[name], w)
		}
	}
}

func TestApply_IdempotentAtAnchors(t *testing.T) {
	sol := model.Solution{
		"Y": 100, "K": 412.3, "X": 44.4,
		"N": 100, "p": 1, "y": 1.7, "w": 0.61,
		"e": 0.93,
	}
	before := sol.Clone()

	if _, err := testTable().Apply(sol); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	for name, v := range before {
		if sol[name] != v {
			t.Errorf("%s changed from %v to %v", name, v, sol[name])
		}
	}
}

func TestApply_RatioInvariance(t *testing.T) {
	ratios := map[string]float64{
		"u": 0.7, "gu": -0.01, "e": 1.02, "varpi": 0.45, "z": 0.995,
		"i": 0.04, "gY": 0.021, "sigma": 2.25, "h": 0.26, "gamma": 0.25,
	}
	levels := []model.Solution{
		{"Y": 3, "N": 7, "p": 0.2},
		{"Y": 1e9, "N": 1e-3, "p": 12345},
		{"Y": -40, "N": 100, "p": 1},
	}

	for _, lv := range levels {
		sol := model.Solution{"K": 1, "X": 1, "y": 1, "w": 1}
		for k, v := range lv {
			sol[k] = v
		}
		for k, v := range ratios {
			sol[k] = v
		}

		if _, err := testTable().Apply(sol); err != nil {
			t.Fatalf("Apply: %v", err)
		}
		for k, v := range ratios {
			if sol[k] != v {
				t.Errorf("levels %v: ratio %s changed from %v to %v", lv, k, v, sol[k])
			}
		}
	}
}

func TestApply_PerRoleMultiplier(t *testing.T) {
	f := Factors{Output: 2, Labor: 4, Price: 3}
	tests := []struct {
		role Role
		want float64
	}{
		{RoleUntouched, 1},
		{RoleOutput, 2},
		{RoleLabor, 4},
		{RoleOutputPerLabor, 0.5},
		{RoleOutputTimesPrice, 6},
		{RolePrice, 3},
	}

	for _, tt := range tests {
		t.Run(tt.role.String(), func(t *testing.T) {
			if got := f.For(tt.role); got != tt.want {
				t.Errorf("For(%v) = %v, want %v", tt.role, got, tt.want)
			}
		})
	}
}

func TestApply_MissingVariable(t *testing.T) {
	tests := []struct {
		name string
		sol  model.Solution
	}{
		{"missing anchor", model.Solution{"Y": 100, "p": 1, "K": 1, "X": 1, "y": 1, "w": 1}},
		{"missing rescaled variable", model.Solution{"Y": 100, "N": 100, "p": 1, "X": 1, "y": 1, "w": 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := tt.sol.Clone()
			_, err := testTable().Apply(tt.sol)
			if !errors.Is(err, ErrMissingVariable) {
				t.Fatalf("Apply error = %v, want ErrMissingVariable", err)
			}
			for k, v := range before {
				if tt.sol[k] != v {
					t.Errorf("%s modified on error", k)
				}
			}
		})
	}
}

func TestApply_DegenerateAnchor(t *testing.T) {
	for _, bad := range []float64{0, math.NaN(), math.Inf(1)} {
		sol := model.Solution{"Y": 100, "N": 100, "p": bad, "K": 1, "X": 1, "y": 1, "w": 1}
		if _, err := testTable().Apply(sol); !errors.Is(err, ErrDegenerateAnchor) {
			t.Errorf("p=%v: Apply error = %v, want ErrDegenerateAnchor", bad, err)
		}
		if sol["Y"] != 100 {
			t.Errorf("p=%v: Y modified on error", bad)
		}
	}
}

func TestTable_Validate(t *testing.T) {
	tbl := testTable()
	if err := tbl.Validate([]string{"Y", "K", "X", "y", "N", "w", "p", "e"}); err != nil {
		t.Errorf("Validate: %v", err)
	}
	if err := tbl.Validate([]string{"Y", "N", "p"}); !errors.Is(err, ErrMissingVariable) {
		t.Errorf("Validate with missing names = %v, want ErrMissingVariable", err)
	}
}

func TestRole_TextRoundTrip(t *testing.T) {
	for r := range roleNames {
		b, err := r.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%v): %v", r, err)
		}
		var back Role
		if err := back.UnmarshalText(b); err != nil {
			t.Fatalf("UnmarshalText(%s): %v", b, err)
		}
		if back != r {
			t.Errorf("round trip %v -> %s -> %v", r, b, back)
		}
	}
	var r Role
	if err := r.UnmarshalText([]byte("sideways")); err == nil {
		t.Error("expected error for unknown role")
	}
}
