package formulas

import "math"

// SharpeRatio calculates the annualized Sharpe ratio from daily returns.
//
// Sharpe = (mean(r) × 252 − riskFreeRate) / (std(r) × sqrt(252))
//
// Returns 0 when the return series carries no volatility.
func SharpeRatio(dailyReturns []float64, riskFreeRate float64) float64 {
	vol := AnnualizedVolatility(dailyReturns)
	if vol == 0 {
		return 0
	}
	return (AnnualizedReturn(dailyReturns) - riskFreeRate) / vol
}

// SortinoRatio calculates the annualized Sortino ratio from daily returns.
// The denominator uses downside deviation: the standard deviation of the
// negative daily returns only, annualized the same way as total volatility.
func SortinoRatio(dailyReturns []float64, riskFreeRate float64) float64 {
	downside := make([]float64, 0, len(dailyReturns))
	for _, r := range dailyReturns {
		if r < 0 {
			downside = append(downside, r)
		}
	}

	if len(downside) < 2 {
		return 0
	}

	downsideDev := StdDev(downside) * math.Sqrt(TradingDaysPerYear)
	if downsideDev == 0 {
		return 0
	}

	return (AnnualizedReturn(dailyReturns) - riskFreeRate) / downsideDev
}
