package risk

import (
	"math"
	"runtime"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/quantfolio/engine/pkg/formulas"
)

// ScenarioSpec names a single stress scenario.
//
// Exactly one shock applies per scenario. MarketShock moves every asset by
// shock × beta; VolMultiplier scales the covariance matrix and reports the
// 95% one-period Gaussian loss under the inflated volatility. Betas may be
// supplied per symbol; missing betas are estimated against the equal-weighted
// basket of the requested assets.
type ScenarioSpec struct {
	Name          string             `json:"name"`
	MarketShock   float64            `json:"market_shock,omitempty"`
	VolMultiplier float64            `json:"vol_multiplier,omitempty"`
	Betas         map[string]float64 `json:"betas,omitempty"`
}

// ScenarioResult is the hypothetical one-period portfolio return under one
// scenario with weights held fixed.
type ScenarioResult struct {
	Name            string  `json:"name"`
	PortfolioReturn float64 `json:"portfolio_return"`
}

// StressTester replays scenario shocks against a fixed weight vector.
type StressTester struct {
	log zerolog.Logger
}

// NewStressTester creates a stress tester.
func NewStressTester(log zerolog.Logger) *StressTester {
	return &StressTester{
		log: log.With().Str("component", "stress").Logger(),
	}
}

// DefaultScenarios covers the standard market-move and volatility-regime
// shocks applied when the caller supplies none.
func DefaultScenarios() []ScenarioSpec {
	return []ScenarioSpec{
		{Name: "market_down_20", MarketShock: -0.20},
		{Name: "market_down_10", MarketShock: -0.10},
		{Name: "market_up_10", MarketShock: 0.10},
		{Name: "volatility_x2", VolMultiplier: 2.0},
		{Name: "volatility_x3", VolMultiplier: 3.0},
	}
}

// Run evaluates every scenario against the weights. Scenarios are
// independent and evaluated concurrently; each writes to its own slot.
// Results preserve the scenario order.
func (st *StressTester) Run(
	scenarios []ScenarioSpec,
	symbols []string,
	weights []float64,
	returns [][]float64,
	cov [][]float64,
) []ScenarioResult {
	if len(scenarios) == 0 {
		scenarios = DefaultScenarios()
	}

	// Shared beta estimates against the equal-weighted basket, computed once
	// for every market scenario that does not supply its own.
	estimated := st.estimateBetas(symbols, returns)

	results := make([]ScenarioResult, len(scenarios))
	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for k, scenario := range scenarios {
		g.Go(func() error {
			results[k] = st.evaluate(scenario, symbols, weights, cov, estimated)
			return nil
		})
	}
	_ = g.Wait()

	st.log.Debug().Int("num_scenarios", len(results)).Msg("Completed stress run")
	return results
}

func (st *StressTester) evaluate(
	scenario ScenarioSpec,
	symbols []string,
	weights []float64,
	cov [][]float64,
	estimatedBetas map[string]float64,
) ScenarioResult {
	var ret float64

	switch {
	case scenario.VolMultiplier > 0:
		var variance float64
		for i := range weights {
			for j := range weights {
				variance += weights[i] * weights[j] * cov[i][j]
			}
		}
		stressedVol := math.Sqrt(math.Max(variance, 0) * scenario.VolMultiplier)
		ret = formulas.GaussianQuantile(0, stressedVol, 0.05)

	default:
		for i, symbol := range symbols {
			beta, ok := scenario.Betas[symbol]
			if !ok {
				beta = estimatedBetas[symbol]
			}
			ret += weights[i] * beta * scenario.MarketShock
		}
	}

	return ScenarioResult{Name: scenario.Name, PortfolioReturn: ret}
}

// estimateBetas regresses each asset against the equal-weighted basket of
// all requested assets, the proxy for "the market" when no benchmark series
// is available inside the engine.
func (st *StressTester) estimateBetas(symbols []string, returns [][]float64) map[string]float64 {
	betas := make(map[string]float64, len(symbols))
	if len(returns) == 0 {
		return betas
	}

	n := len(returns)
	market := make([]float64, len(returns[0]))
	for t := range market {
		var sum float64
		for i := 0; i < n; i++ {
			sum += returns[i][t]
		}
		market[t] = sum / float64(n)
	}

	for i, symbol := range symbols {
		betas[symbol] = formulas.Beta(returns[i], market)
	}
	return betas
}
