package formulas

// MaxDrawdown calculates the maximum peak-to-trough decline of the
// cumulative growth of a daily return series.
//
// The cumulative curve is the running product of (1 + r_t); the result is a
// positive fraction (0.25 = 25% decline from peak).
func MaxDrawdown(dailyReturns []float64) float64 {
	if len(dailyReturns) == 0 {
		return 0
	}

	maxDrawdown := 0.0
	value := 1.0
	peak := 1.0

	for _, r := range dailyReturns {
		value *= 1.0 + r
		if value > peak {
			peak = value
		}
		if peak > 0 {
			drawdown := (peak - value) / peak
			if drawdown > maxDrawdown {
				maxDrawdown = drawdown
			}
		}
	}

	return maxDrawdown
}
