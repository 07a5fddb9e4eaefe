package formulas

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"
)

// HistoricalVaR calculates Value at Risk at the given confidence level by
// historical simulation: the empirical (1−confidence) percentile of the
// return series. No distributional assumption is made.
//
// The result is a return (negative for losses), not a loss magnitude.
func HistoricalVaR(returns []float64, confidence float64) float64 {
	if len(returns) == 0 {
		return 0
	}

	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	return sorted[tailCount(len(sorted), confidence)-1]
}

// HistoricalCVaR calculates Conditional Value at Risk: the mean of the
// returns at or below the VaR threshold for the given confidence level.
func HistoricalCVaR(returns []float64, confidence float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	if len(returns) == 1 {
		return returns[0]
	}

	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	tail := sorted[:tailCount(len(sorted), confidence)]
	sum := 0.0
	for _, r := range tail {
		sum += r
	}
	return sum / float64(len(tail))
}

// tailCount returns the number of observations in the (1−confidence) tail,
// at least 1 and at most n.
func tailCount(n int, confidence float64) int {
	count := int(math.Ceil(float64(n) * (1.0 - confidence)))
	if count < 1 {
		count = 1
	}
	if count > n {
		count = n
	}
	return count
}

// MonteCarloCVaR estimates CVaR by simulating one-period portfolio returns
// from a normal distribution with the given mean and standard deviation.
// Useful as a parametric cross-check when the historical window is short.
func MonteCarloCVaR(mu, sigma float64, numSimulations int, confidence float64) float64 {
	if numSimulations <= 0 || sigma <= 0 {
		return mu
	}

	normal := distuv.Normal{Mu: mu, Sigma: sigma}
	simulated := make([]float64, numSimulations)
	for i := range simulated {
		simulated[i] = normal.Rand()
	}

	return HistoricalCVaR(simulated, confidence)
}

// GaussianQuantile returns the p-quantile of a normal distribution with the
// given mean and standard deviation.
func GaussianQuantile(mu, sigma, p float64) float64 {
	if sigma <= 0 {
		return mu
	}
	return distuv.Normal{Mu: mu, Sigma: sigma}.Quantile(p)
}
