// Package developmentalist configures the new-developmentalist growth model:
// a stock-flow-consistent open economy where output is led by exports through
// a Harrod supermultiplier, productivity and the manufacturing share respond
// to the real exchange rate, and the wage share adjusts towards a target.
package developmentalist

import (
	"log/slog"

	"github.com/nvandessel/sfcsim/internal/model"
	"github.com/nvandessel/sfcsim/internal/rescale"
)

// Name identifies the model in logs and stored runs.
const Name = "new-developmentalist"

// DefaultExchangeRate is the real exchange rate at which the industrial and
// current-account equilibrium rates coincide under the default parameters.
const DefaultExchangeRate = 2.75

// New returns the configured model with default values and parameters.
func New() *model.Model {
	m := model.New(Name)
	m.SetVarDefault(0)
	declareVariables(m)
	declareParameters(m)
	addEquations(m)
	return m
}

// Table returns the rescaling roles of the model's trending variables.
// Anchors are output Y, labor force N and the price level p.
func Table() *rescale.Table {
	return &rescale.Table{
		OutputAnchor: "Y",
		LaborAnchor:  "N",
		PriceAnchor:  "p",
		Roles: map[string]rescale.Role{
			"Y": rescale.RoleOutput,
			"K": rescale.RoleOutput,
			"X": rescale.RoleOutput,
			"y": rescale.RoleOutputPerLabor,
			"N": rescale.RoleLabor,
			"w": rescale.RoleOutputTimesPrice,
			"p": rescale.RolePrice,
		},
	}
}

// CheckRescaling warns when the labor force grows, since the rescaling roles
// keep the model's identities only for a stationary labor force.
func CheckRescaling(m *model.Model, logger *slog.Logger) bool {
	n, ok := m.ParamValue("n")
	if !ok || n == 0 {
		return true
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("rescaling assumes zero labor-force growth", "n", n)
	return false
}

func declareVariables(m *model.Model) {
	m.Var("u", "Capacity utilization rate", model.Default(0.7))
	m.Var("gu", "Growth of capacity utilization rate")

	m.Var("e", "Employment share dynamic", model.Default(1))
	m.Var("ge", "Growth in employment share dynamic")

	m.Var("Y", "Output", model.Default(100))
	m.Var("gY", "Growth of output")

	m.Var("sigma", "Supermultiplier")

	m.Var("h", "Propensity to invest I/Y (0<h<1)", model.Default(0.2561))
	m.Var("gh", "Growth in propensity to invest")

	m.Var("y", "Productivity", model.Default(1))
	m.Var("gy", "Growth in productivity")

	m.Var("gamma", "Share of manufacturing", model.Default(0.25))
	m.Var("ggamma", "Growth of share of manufacturing")

	m.Var("X", "Exports", model.Default(44.4))
	m.Var("gX", "Growth rate of exports")

	m.Var("p", "Price level", model.Default(1))
	m.Var("gp", "Inflation rate")

	m.Var("z", "Mark-up")

	m.Var("w", "Nominal wage", model.Default(0.5))
	m.Var("gw", "Growth in nominal wage")
	m.Var("varpi", "Wage share")

	m.Var("gp_e", "Expected inflation")

	m.Var("d", "Current account deficit")
	m.Var("ca", "Capital account surplus")
	m.Var("i", "Domestic interest rate", model.Default(0.04))

	m.Var("N", "Labor force", model.Default(100))

	m.Var("K", "Capital stock", model.Default(100))
	m.Var("gK", "Growth of capital stock")

	m.Var("q_i", "Industrial equilibrium exchange rate")
	m.Var("q_cab", "Current-account-balance equilibrium exchange rate")
}

func declareParameters(m *model.Model) {
	m.Param("gp_bar", "Inflation target", model.Default(0.02))

	m.Param("vareps", "Optimal capital-output ratio", model.Default(4.66))

	m.Param("c", "Propensity to consume", model.Default(0.8))
	m.Param("m", "Propensity to import", model.Default(0.2))
	m.Param("g", "Propensity to government spend", model.Default(0.05))

	m.Param("mu", "Response of the investment propensity to utilization", model.Default(0.01))
	m.Param("u_n", "Normal capacity utilization rate", model.Default(0.7))

	m.Param("alpha_0", "Autonomous growth in productivity", model.Default(0.005))
	m.Param("alpha_1", "Capital intensity effect on productivity (>0)", model.Default(0.5))
	m.Param("alpha_2", "Labor market effect on productivity (>0)", model.Default(0.03))

	m.Param("beta_0", "Autonomous growth in manufacturing (<0)", model.Default(-0.01))
	m.Param("beta_1", "Real exchange rate effect on manufacturing growth (>0)", model.Default(0.01))
	m.Param("beta_2", "Technology gap effect on manufacturing growth (>0)", model.Default(0.0875))
	m.Param("Gap", "Technology gap (>0)", model.Default(0.2))

	m.Param("x_0", "Autonomous export growth", model.Default(0.015))
	m.Param("x_1", "Export reaction to the manufacturing share", model.Default(0.1))

	m.Param("xi_0", "Autonomous part of the mark-up", model.Default(0.5))
	m.Param("xi_1", "Reaction of the mark-up to the real exchange rate", model.Default(0.18))

	m.Param("epsilon_1", "Effect of inflation expectations on wage growth (eps1 + eps2 < 1)", model.Default(0.33))
	m.Param("epsilon_2", "Effect of the wage share gap on wage growth", model.Default(0.33))
	m.Param("varpi_bar", "Target wage share", model.Default(0.5))

	m.Param("phi_0", "Autonomous part of the deficit (>0)", model.Default(0.275))
	m.Param("phi_1", "Effect of the real exchange rate on the current account (>0)", model.Default(0.1))

	m.Param("i_f", "Foreign interest rate", model.Default(0.02))
	m.Param("rho", "Country risk", model.Default(0.02))
	m.Param("psi", "Effect of the interest differential on the capital account (>0)", model.Default(0.1))

	m.Param("n", "Growth rate of the labor force", model.Default(0))

	m.Param("q", "Real exchange rate", model.Default(DefaultExchangeRate))
}

func addEquations(m *model.Model) {
	m.Add("u", "u = vareps*(Y/K)", func(s model.State) float64 {
		return s.P("vareps") * (s.V("Y") / s.V("K"))
	})
	m.Add("gu", "gu = (u - u(-1))/u(-1)", func(s model.State) float64 {
		return growth(s, "u")
	})

	m.Add("e", "e = Y/(y*N)", func(s model.State) float64 {
		return s.V("Y") / (s.V("y") * s.V("N"))
	})
	m.Add("ge", "ge = (e - e(-1))/e(-1)", func(s model.State) float64 {
		return growth(s, "e")
	})

	m.Add("Y", "Y = sigma*X", func(s model.State) float64 {
		return s.V("sigma") * s.V("X")
	})
	m.Add("gY", "gY = (Y - Y(-1))/Y(-1)", func(s model.State) float64 {
		return growth(s, "Y")
	})

	// Harrod supermultiplier.
	m.Add("sigma", "sigma = 1/(1 - c + q*m - g - h)", func(s model.State) float64 {
		return 1 / (1 - s.P("c") + s.P("q")*s.P("m") - s.P("g") - s.V("h"))
	})

	m.Add("gh", "gh = mu*(u - u_n)", func(s model.State) float64 {
		return s.P("mu") * (s.V("u") - s.P("u_n"))
	})
	m.Add("h", "h = h(-1)*(1 + gh)", func(s model.State) float64 {
		return s.Lag("h") * (1 + s.V("gh"))
	})

	m.Add("gy", "gy = (alpha_0 + alpha_2*e)/(1 - alpha_1*gamma)", func(s model.State) float64 {
		return (s.P("alpha_0") + s.P("alpha_2")*s.V("e")) / (1 - s.P("alpha_1")*s.V("gamma"))
	})
	m.Add("y", "y = y(-1)*(1 + gy)", func(s model.State) float64 {
		return s.Lag("y") * (1 + s.V("gy"))
	})

	m.Add("ggamma", "ggamma = beta_0 + beta_1*q - beta_2*Gap", func(s model.State) float64 {
		return s.P("beta_0") + s.P("beta_1")*s.P("q") - s.P("beta_2")*s.P("Gap")
	})
	m.Add("gamma", "gamma = gamma(-1)*(1 + ggamma)", func(s model.State) float64 {
		return s.Lag("gamma") * (1 + s.V("ggamma"))
	})

	m.Add("gX", "gX = x_0 + x_1*gamma", func(s model.State) float64 {
		return s.P("x_0") + s.P("x_1")*s.V("gamma")
	})
	m.Add("X", "X = X(-1)*(1 + gX)", func(s model.State) float64 {
		return s.Lag("X") * (1 + s.V("gX"))
	})

	m.Add("p", "p = (1 + z)*w/y", func(s model.State) float64 {
		return (1 + s.V("z")) * s.V("w") * (1 / s.V("y"))
	})
	m.Add("gp", "gp = (p - p(-1))/p(-1)", func(s model.State) float64 {
		return growth(s, "p")
	})

	m.Add("z", "z = xi_0 + xi_1*q", func(s model.State) float64 {
		return s.P("xi_0") + s.P("xi_1")*s.P("q")
	})

	m.Add("gw", "gw = epsilon_1*gp_e + epsilon_2*(varpi_bar - varpi) + (1 - epsilon_1 - epsilon_2)*e", func(s model.State) float64 {
		e1, e2 := s.P("epsilon_1"), s.P("epsilon_2")
		return e1*s.V("gp_e") + e2*(s.P("varpi_bar")-s.V("varpi")) + (1-e1-e2)*s.V("e")
	})
	m.Add("w", "w = (1 + gw)*w(-1)", func(s model.State) float64 {
		return (1 + s.V("gw")) * s.Lag("w")
	})

	m.Add("varpi", "varpi = (w/p)/y", func(s model.State) float64 {
		return (s.V("w") / s.V("p")) / s.V("y")
	})

	m.Add("gp_e", "gp_e = gp_bar", func(s model.State) float64 {
		return s.P("gp_bar")
	})

	// Balance of payments and the exchange rate.
	m.Add("d", "d = phi_0 - phi_1*q", func(s model.State) float64 {
		return s.P("phi_0") - s.P("phi_1")*s.P("q")
	})
	m.Add("ca", "ca = d", func(s model.State) float64 {
		return s.V("d")
	})
	m.Add("i", "i = i_f + rho + ca/psi", func(s model.State) float64 {
		return s.P("i_f") + s.P("rho") + s.V("ca")/s.P("psi")
	})

	m.Add("N", "N = (1 + n)*N(-1)", func(s model.State) float64 {
		return (1 + s.P("n")) * s.Lag("N")
	})

	m.Add("K", "K = K(-1) + h*Y", func(s model.State) float64 {
		return s.Lag("K") + s.V("h")*s.V("Y")
	})
	m.Add("gK", "gK = (K - K(-1))/K(-1)", func(s model.State) float64 {
		return growth(s, "K")
	})

	m.Add("q_i", "q_i = (beta_2*Gap - beta_0)/beta_1", func(s model.State) float64 {
		return (s.P("beta_2")*s.P("Gap") - s.P("beta_0")) / s.P("beta_1")
	})
	m.Add("q_cab", "q_cab = phi_0/phi_1", func(s model.State) float64 {
		return s.P("phi_0") / s.P("phi_1")
	})
}

// growth returns the period growth rate (x - x(-1))/x(-1).
func growth(s model.State, name string) float64 {
	lag := s.Lag(name)
	return (s.V(name) - lag) / lag
}
