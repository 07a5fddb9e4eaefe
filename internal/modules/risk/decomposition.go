package risk

import (
	"math"

	"github.com/quantfolio/engine/pkg/formulas"
)

// Contribution is one asset's share of total portfolio risk.
//
// Marginal is the change in portfolio volatility per unit of additional
// weight (MCTR); Component is the asset's absolute slice of the total
// (CCTR = w × MCTR). Component contributions sum to the portfolio
// volatility.
type Contribution struct {
	Symbol    string  `json:"symbol"`
	Weight    float64 `json:"weight"`
	Marginal  float64 `json:"marginal_contribution"`
	Component float64 `json:"component_contribution"`
}

// Decompose attributes the portfolio's annualized volatility across assets.
//
// The covariance matrix is daily; both contributions are annualized so that
// the component contributions sum to the annualized portfolio volatility
// reported by Analytics.
func Decompose(symbols []string, weights []float64, cov [][]float64) []Contribution {
	n := len(weights)

	sigmaW := make([]float64, n)
	var variance float64
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			sigmaW[i] += cov[i][j] * weights[j]
		}
		variance += weights[i] * sigmaW[i]
	}

	annualVariance := variance * formulas.TradingDaysPerYear
	annualVol := math.Sqrt(math.Max(annualVariance, 0))

	contributions := make([]Contribution, n)
	for i := 0; i < n; i++ {
		var marginal float64
		if annualVol > 0 {
			marginal = sigmaW[i] * formulas.TradingDaysPerYear / annualVol
		}
		contributions[i] = Contribution{
			Symbol:    symbols[i],
			Weight:    weights[i],
			Marginal:  marginal,
			Component: weights[i] * marginal,
		}
	}

	return contributions
}
