package driver

import (
	"math"

	"gonum.org/v1/gonum/floats/scalar"

	"github.com/nvandessel/sfcsim/internal/model"
)

// IsClose reports whether two solutions hold the same names and every pair of
// values agrees within atol absolutely or rtol relative to the larger
// magnitude. It is symmetric in a and b. NaN is never close to anything.
func IsClose(a, b model.Solution, rtol, atol float64) bool {
	if len(a) != len(b) {
		return false
	}
	for name, av := range a {
		bv, ok := b[name]
		if !ok {
			return false
		}
		if math.IsNaN(av) || math.IsNaN(bv) {
			return false
		}
		if av == bv {
			continue
		}
		if !scalar.EqualWithinAbsOrRel(av, bv, atol, rtol) {
			return false
		}
	}
	return true
}

// Round returns a copy of sol with every value rounded half away from zero to
// the given number of decimal places.
func Round(sol model.Solution, decimals int) model.Solution {
	out := make(model.Solution, len(sol))
	for name, v := range sol {
		out[name] = scalar.Round(v, decimals)
	}
	return out
}
