package risk

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/quantfolio/engine/pkg/formulas"
)

// monteCarloSimulations sizes the parametric CVaR cross-check.
const monteCarloSimulations = 10000

// Report carries every portfolio-level risk measure derived from a fixed
// weight vector and the historical return matrix.
type Report struct {
	ExpectedReturn       float64 `json:"expected_return"`
	Volatility           float64 `json:"volatility"`
	Sharpe               float64 `json:"sharpe"`
	Sortino              float64 `json:"sortino"`
	VaR95                float64 `json:"var_95"`
	VaR99                float64 `json:"var_99"`
	CVaR95               float64 `json:"cvar_95"`
	CVaR99               float64 `json:"cvar_99"`
	CVaR95MonteCarlo     float64 `json:"cvar_95_monte_carlo"`
	MaxDrawdown          float64 `json:"max_drawdown"`
	Herfindahl           float64 `json:"herfindahl"`
	EffectivePositions   float64 `json:"effective_positions"`
	DiversificationRatio float64 `json:"diversification_ratio"`
}

// Analytics derives risk measures from portfolio weights and return history.
type Analytics struct {
	log zerolog.Logger
}

// NewAnalytics creates a risk analytics calculator.
func NewAnalytics(log zerolog.Logger) *Analytics {
	return &Analytics{
		log: log.With().Str("component", "risk_analytics").Logger(),
	}
}

// PortfolioReturns reconstructs the portfolio's historical daily return
// series r_p(t) = Σ_i w_i · r_i(t) from per-asset return rows.
func PortfolioReturns(weights []float64, returns [][]float64) []float64 {
	if len(returns) == 0 {
		return nil
	}

	periods := len(returns[0])
	series := make([]float64, periods)
	for t := 0; t < periods; t++ {
		var r float64
		for i := range weights {
			r += weights[i] * returns[i][t]
		}
		series[t] = r
	}
	return series
}

// Analyze computes the full risk report for a weight vector over the given
// return matrix. All ratio and volatility figures are annualized from daily
// returns; VaR/CVaR and drawdown stay in daily units by historical
// simulation.
func (a *Analytics) Analyze(weights []float64, returns [][]float64, riskFree float64) *Report {
	portfolio := PortfolioReturns(weights, returns)

	report := &Report{
		ExpectedReturn: formulas.AnnualizedReturn(portfolio),
		Volatility:     formulas.AnnualizedVolatility(portfolio),
		Sharpe:         formulas.SharpeRatio(portfolio, riskFree),
		Sortino:        formulas.SortinoRatio(portfolio, riskFree),
		VaR95:          formulas.HistoricalVaR(portfolio, 0.95),
		VaR99:          formulas.HistoricalVaR(portfolio, 0.99),
		CVaR95:         formulas.HistoricalCVaR(portfolio, 0.95),
		CVaR99:         formulas.HistoricalCVaR(portfolio, 0.99),
		MaxDrawdown:    formulas.MaxDrawdown(portfolio),
	}

	report.CVaR95MonteCarlo = formulas.MonteCarloCVaR(
		formulas.Mean(portfolio),
		formulas.StdDev(portfolio),
		monteCarloSimulations,
		0.95,
	)

	report.Herfindahl = Herfindahl(weights)
	if report.Herfindahl > 0 {
		report.EffectivePositions = 1.0 / report.Herfindahl
	}
	report.DiversificationRatio = DiversificationRatio(weights, returns, report.Volatility)

	a.log.Debug().
		Float64("volatility", report.Volatility).
		Float64("sharpe", report.Sharpe).
		Float64("cvar_95", report.CVaR95).
		Float64("effective_positions", report.EffectivePositions).
		Msg("Computed risk report")

	return report
}

// Herfindahl computes the concentration index Σw_i².
func Herfindahl(weights []float64) float64 {
	var hhi float64
	for _, w := range weights {
		hhi += w * w
	}
	return hhi
}

// DiversificationRatio computes (Σ w_i·σ_i) / σ_p using annualized
// volatilities. Values above 1 indicate a diversification benefit.
func DiversificationRatio(weights []float64, returns [][]float64, portfolioVol float64) float64 {
	if portfolioVol <= 0 {
		return 0
	}

	var weightedVol float64
	for i, w := range weights {
		weightedVol += math.Abs(w) * formulas.AnnualizedVolatility(returns[i])
	}
	return weightedVol / portfolioVol
}
