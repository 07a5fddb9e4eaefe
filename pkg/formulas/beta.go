package formulas

import (
	"math"

	"github.com/markcheno/go-talib"
)

// Beta estimates the beta of an asset's return series against a market
// return series over the full window.
//
// TA-Lib's BETA works on price series and differences them internally, so
// both return series are first compounded into synthetic price paths. Falls
// back to the direct cov(asset, market) / var(market) estimate when the
// talib output is unusable (short series, NaN).
func Beta(assetReturns, marketReturns []float64) float64 {
	n := len(assetReturns)
	if n < 2 || n != len(marketReturns) {
		return 1.0
	}

	assetPrices := compound(assetReturns)
	marketPrices := compound(marketReturns)

	rolling := talib.Beta(assetPrices, marketPrices, n)
	if len(rolling) > 0 {
		last := rolling[len(rolling)-1]
		if !math.IsNaN(last) && !math.IsInf(last, 0) {
			return last
		}
	}

	marketVar := Variance(marketReturns)
	if marketVar == 0 {
		return 1.0
	}
	return Covariance(assetReturns, marketReturns) / marketVar
}

// compound turns a return series into a price path starting at 1.
func compound(returns []float64) []float64 {
	prices := make([]float64, len(returns)+1)
	prices[0] = 1.0
	for i, r := range returns {
		prices[i+1] = prices[i] * (1.0 + r)
	}
	return prices
}
