package optimization

import (
	"time"

	"github.com/quantfolio/engine/internal/modules/risk"
)

// Mode selects the optimization objective.
type Mode string

const (
	// ModeMinVariance minimizes portfolio variance w'Σw.
	ModeMinVariance Mode = "min_variance"
	// ModeMaxSharpe maximizes the Sharpe ratio (μ'w − r_f) / sqrt(w'Σw).
	ModeMaxSharpe Mode = "max_sharpe"
)

// CovMethod selects the covariance estimator.
type CovMethod string

const (
	// MethodSample uses the plain sample covariance.
	MethodSample CovMethod = "sample"
	// MethodShrinkage applies Ledoit-Wolf constant-correlation shrinkage.
	MethodShrinkage CovMethod = "shrinkage"
)

// PricePoint is a single dated closing price.
type PricePoint struct {
	Date  string  `json:"date"` // YYYY-MM-DD
	Close float64 `json:"close"`
}

// ConstraintInput carries the caller-facing constraint settings before
// normalization into a ConstraintSet.
type ConstraintInput struct {
	MinPositionSize float64               `json:"min_position_size"`
	MaxPositionSize float64               `json:"max_position_size"`
	Bounds          map[string][2]float64 `json:"bounds,omitempty"` // per-symbol overrides
	SectorCaps      map[string]float64    `json:"sector_caps,omitempty"`
	ExcludedSymbols []string              `json:"excluded_symbols,omitempty"`
}

// Request is the full input contract for one optimization run.
//
// Either Prices (raw series, aligned by the preprocessor) or Returns (a
// pre-aligned log-return matrix) must be supplied.
type Request struct {
	Symbols         []string                `json:"symbols"`
	Prices          map[string][]PricePoint `json:"prices,omitempty"`
	Returns         *ReturnMatrix           `json:"returns,omitempty"`
	LookbackDays    int                     `json:"lookback_days"`
	ExpectedReturns map[string]float64      `json:"expected_returns,omitempty"` // annualized; required for max_sharpe
	Sectors         map[string]string       `json:"sectors,omitempty"`
	Mode            Mode                    `json:"mode"`
	CovMethod       CovMethod               `json:"covariance_method"`
	RiskFreeRate    float64                 `json:"risk_free_rate"`
	Constraints     ConstraintInput         `json:"constraints"`
	FrontierPoints  int                     `json:"frontier_points"`
	Scenarios       []risk.ScenarioSpec     `json:"scenarios,omitempty"`
}

// ReturnMatrix is an n_assets × n_periods grid of log returns, one row per
// symbol, aligned to a shared strictly increasing date sequence.
type ReturnMatrix struct {
	Symbols []string    `json:"symbols"`
	Dates   []string    `json:"dates"` // dates of the return periods
	Returns [][]float64 `json:"returns"`
}

// NumAssets returns the number of asset rows.
func (rm *ReturnMatrix) NumAssets() int {
	return len(rm.Symbols)
}

// NumPeriods returns the number of return observations per asset.
func (rm *ReturnMatrix) NumPeriods() int {
	if len(rm.Returns) == 0 {
		return 0
	}
	return len(rm.Returns[0])
}

// FrontierPoint is one solved point on the efficient frontier.
type FrontierPoint struct {
	ExpectedReturn float64            `json:"expected_return"`
	Volatility     float64            `json:"volatility"`
	Sharpe         float64            `json:"sharpe"`
	Weights        map[string]float64 `json:"weights"`
}

// AssetPoint is a single asset's own historical return/volatility pair,
// reported alongside the frontier for reference. Not solved.
type AssetPoint struct {
	Symbol         string  `json:"symbol"`
	ExpectedReturn float64 `json:"expected_return"`
	Volatility     float64 `json:"volatility"`
}

// Result is the complete output of one optimization run.
type Result struct {
	RunID                string                `json:"run_id"`
	Timestamp            time.Time             `json:"timestamp"`
	Mode                 Mode                  `json:"mode"`
	Symbols              []string              `json:"symbols"`
	Weights              map[string]float64    `json:"weights"`
	ExpectedReturn       float64               `json:"expected_return"`
	Volatility           float64               `json:"volatility"`
	Sharpe               float64               `json:"sharpe"`
	Sortino              float64               `json:"sortino"`
	VaR95                float64               `json:"var_95"`
	VaR99                float64               `json:"var_99"`
	CVaR95               float64               `json:"cvar_95"`
	CVaR99               float64               `json:"cvar_99"`
	MaxDrawdown          float64               `json:"max_drawdown"`
	Herfindahl           float64               `json:"herfindahl"`
	EffectivePositions   float64               `json:"effective_positions"`
	DiversificationRatio float64               `json:"diversification_ratio"`
	Decomposition        []risk.Contribution   `json:"risk_decomposition"`
	CorrelationMatrix    [][]float64           `json:"correlation_matrix"`
	ShrinkageIntensity   float64               `json:"shrinkage_intensity"`
	Frontier             []FrontierPoint       `json:"efficient_frontier"`
	AssetPoints          []AssetPoint          `json:"asset_points"`
	StressResults        []risk.ScenarioResult `json:"stress_results"`
}
