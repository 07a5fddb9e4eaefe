package optimization

import (
	"math"
	"sort"

	"github.com/rs/zerolog"
)

// DefaultMinPricePoints is the minimum number of valid price observations an
// asset needs before it can enter the return matrix.
const DefaultMinPricePoints = 30

// Preprocessor aligns heterogeneous per-asset price histories to a shared
// date index and converts the aligned prices to log returns.
//
// Dates not present for every asset are dropped (strict intersection), never
// interpolated. Observations with non-positive prices are excluded.
type Preprocessor struct {
	minPoints int
	log       zerolog.Logger
}

// NewPreprocessor creates a preprocessor with the default minimum-history
// requirement.
func NewPreprocessor(log zerolog.Logger) *Preprocessor {
	return &Preprocessor{
		minPoints: DefaultMinPricePoints,
		log:       log.With().Str("component", "preprocessor").Logger(),
	}
}

// Align builds a ReturnMatrix from raw per-asset price series, trimmed to the
// most recent lookbackDays of the common date intersection.
func (p *Preprocessor) Align(prices map[string][]PricePoint, symbols []string, lookbackDays int) (*ReturnMatrix, error) {
	if len(symbols) == 0 {
		return nil, &InvalidInputError{Reason: "no symbols provided"}
	}

	// Index prices by date per symbol, dropping non-positive observations.
	bySymbol := make(map[string]map[string]float64, len(symbols))
	short := make([]string, 0)
	for _, symbol := range symbols {
		series := prices[symbol]
		dated := make(map[string]float64, len(series))
		for _, pt := range series {
			if pt.Close > 0 && !math.IsNaN(pt.Close) && !math.IsInf(pt.Close, 0) {
				dated[pt.Date] = pt.Close
			}
		}
		if len(dated) < p.minPoints {
			short = append(short, symbol)
			continue
		}
		bySymbol[symbol] = dated
	}

	if len(short) > 0 {
		return nil, &DataInsufficientError{Symbols: short, MinPoints: p.minPoints}
	}

	// Strict date intersection across all symbols.
	dates := make([]string, 0, len(bySymbol[symbols[0]]))
	for date := range bySymbol[symbols[0]] {
		shared := true
		for _, symbol := range symbols[1:] {
			if _, ok := bySymbol[symbol][date]; !ok {
				shared = false
				break
			}
		}
		if shared {
			dates = append(dates, date)
		}
	}
	sort.Strings(dates)

	// Keep the most recent lookbackDays+1 prices: lookbackDays returns.
	if lookbackDays > 0 && len(dates) > lookbackDays+1 {
		dates = dates[len(dates)-(lookbackDays+1):]
	}

	if len(dates) < p.minPoints {
		return nil, &DataInsufficientError{Symbols: symbols, MinPoints: p.minPoints}
	}

	p.log.Debug().
		Int("num_symbols", len(symbols)).
		Int("num_dates", len(dates)).
		Msg("Aligned price histories")

	// Convert aligned prices to log returns, one row per symbol.
	returns := make([][]float64, len(symbols))
	for i, symbol := range symbols {
		row := make([]float64, len(dates)-1)
		dated := bySymbol[symbol]
		for t := 1; t < len(dates); t++ {
			row[t-1] = math.Log(dated[dates[t]] / dated[dates[t-1]])
		}
		returns[i] = row
	}

	return &ReturnMatrix{
		Symbols: symbols,
		Dates:   dates[1:],
		Returns: returns,
	}, nil
}

// Validate checks an externally supplied return matrix for shape defects and
// non-finite values before any algebra touches it.
func (p *Preprocessor) Validate(rm *ReturnMatrix) error {
	if rm == nil || len(rm.Symbols) == 0 {
		return &InvalidInputError{Reason: "empty return matrix"}
	}
	if len(rm.Returns) != len(rm.Symbols) {
		return &InvalidInputError{Reason: "return matrix row count does not match symbol count"}
	}

	periods := len(rm.Returns[0])
	if periods < 2 {
		return &InvalidInputError{Reason: "return matrix needs at least 2 observations"}
	}

	for i, row := range rm.Returns {
		if len(row) != periods {
			return &InvalidInputError{Reason: "return matrix rows have mismatched lengths"}
		}
		for _, r := range row {
			if math.IsNaN(r) || math.IsInf(r, 0) {
				return &InvalidInputError{Reason: "return matrix contains non-finite values for " + rm.Symbols[i]}
			}
		}
	}

	return nil
}
