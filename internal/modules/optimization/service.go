package optimization

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quantfolio/engine/internal/modules/risk"
	"github.com/quantfolio/engine/pkg/formulas"
)

// Service composes the full optimization pipeline: preprocess, estimate
// covariance, build constraints, optimize, analyze risk, decompose, sweep
// the frontier, and stress test. Every entity is created fresh per request;
// only the covariance cache persists across calls, keyed explicitly by the
// request inputs.
type Service struct {
	preprocessor *Preprocessor
	estimator    *CovarianceEstimator
	constraints  *ConstraintsBuilder
	optimizer    *Optimizer
	frontier     *FrontierGenerator
	analytics    *risk.Analytics
	stress       *risk.StressTester
	cache        *CovarianceCache // optional
	log          zerolog.Logger
}

// NewService wires the pipeline. The cache may be nil, in which case every
// request estimates covariance from scratch.
func NewService(cache *CovarianceCache, log zerolog.Logger) *Service {
	optimizer := NewOptimizer(NewQPSolver(), log)
	return &Service{
		preprocessor: NewPreprocessor(log),
		estimator:    NewCovarianceEstimator(log),
		constraints:  NewConstraintsBuilder(log),
		optimizer:    optimizer,
		frontier:     NewFrontierGenerator(optimizer, log),
		analytics:    risk.NewAnalytics(log),
		stress:       risk.NewStressTester(log),
		cache:        cache,
		log:          log.With().Str("component", "optimization").Logger(),
	}
}

// Optimize runs the full pipeline for one request.
func (s *Service) Optimize(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	if err := s.validateRequest(&req); err != nil {
		return nil, err
	}

	rm, err := s.returnMatrix(req)
	if err != nil {
		return nil, err
	}

	estimate, err := s.estimateCovariance(ctx, req, rm)
	if err != nil {
		return nil, err
	}

	cs, err := s.constraints.Build(rm.Symbols, req.Constraints, req.Sectors)
	if err != nil {
		return nil, err
	}

	mu := s.expectedReturns(req, rm)

	var weights []float64
	switch req.Mode {
	case ModeMaxSharpe:
		weights, err = s.optimizer.MaxSharpe(estimate.Cov, mu, req.RiskFreeRate, cs)
	default:
		weights, err = s.optimizer.MinVariance(estimate.Cov, cs)
	}
	if err != nil {
		return nil, err
	}

	report := s.analytics.Analyze(weights, rm.Returns, req.RiskFreeRate)
	decomposition := risk.Decompose(rm.Symbols, weights, estimate.Cov)

	frontierPoints, assetPoints, err := s.frontier.Generate(
		estimate.Cov, mu, req.RiskFreeRate, cs, rm, req.FrontierPoints)
	if err != nil {
		return nil, err
	}

	stressResults := s.stress.Run(req.Scenarios, rm.Symbols, weights, rm.Returns, estimate.Cov)

	result := &Result{
		RunID:                uuid.New().String(),
		Timestamp:            time.Now().UTC(),
		Mode:                 req.Mode,
		Symbols:              rm.Symbols,
		Weights:              weightsMap(rm.Symbols, weights),
		ExpectedReturn:       dot(mu, weights),
		Volatility:           report.Volatility,
		Sharpe:               report.Sharpe,
		Sortino:              report.Sortino,
		VaR95:                report.VaR95,
		VaR99:                report.VaR99,
		CVaR95:               report.CVaR95,
		CVaR99:               report.CVaR99,
		MaxDrawdown:          report.MaxDrawdown,
		Herfindahl:           report.Herfindahl,
		EffectivePositions:   report.EffectivePositions,
		DiversificationRatio: report.DiversificationRatio,
		Decomposition:        decomposition,
		CorrelationMatrix:    CorrelationFromCovariance(estimate.Cov),
		ShrinkageIntensity:   estimate.Intensity,
		Frontier:             frontierPoints,
		AssetPoints:          assetPoints,
		StressResults:        stressResults,
	}

	s.log.Info().
		Str("run_id", result.RunID).
		Str("mode", string(result.Mode)).
		Int("num_assets", len(result.Symbols)).
		Float64("volatility", result.Volatility).
		Dur("duration_ms", time.Since(start)).
		Msg("Optimization run completed")

	return result, nil
}

func (s *Service) validateRequest(req *Request) error {
	if len(req.Symbols) < 2 {
		return &InvalidInputError{Reason: "at least 2 symbols are required"}
	}
	if req.Returns == nil && len(req.Prices) == 0 {
		return &InvalidInputError{Reason: "either prices or a return matrix must be supplied"}
	}

	switch req.Mode {
	case "":
		req.Mode = ModeMinVariance
	case ModeMinVariance, ModeMaxSharpe:
	default:
		return &InvalidInputError{Reason: fmt.Sprintf("unknown optimization mode %q", req.Mode)}
	}

	switch req.CovMethod {
	case "":
		req.CovMethod = MethodShrinkage
	case MethodSample, MethodShrinkage:
	default:
		return &InvalidInputError{Reason: fmt.Sprintf("unknown covariance method %q", req.CovMethod)}
	}

	if req.Mode == ModeMaxSharpe {
		for _, symbol := range req.Symbols {
			if _, ok := req.ExpectedReturns[symbol]; !ok {
				return &InvalidInputError{
					Reason: fmt.Sprintf("max_sharpe requires an expected return for every symbol, missing %s", symbol),
				}
			}
		}
	}

	return nil
}

func (s *Service) returnMatrix(req Request) (*ReturnMatrix, error) {
	if req.Returns != nil {
		if err := s.preprocessor.Validate(req.Returns); err != nil {
			return nil, err
		}
		return req.Returns, nil
	}
	return s.preprocessor.Align(req.Prices, req.Symbols, req.LookbackDays)
}

// estimateCovariance checks the cache before estimating, keyed by the asset
// set, lookback window, last aligned date, and method.
func (s *Service) estimateCovariance(ctx context.Context, req Request, rm *ReturnMatrix) (*CovarianceEstimate, error) {
	var key string
	if s.cache != nil && len(rm.Dates) > 0 {
		asOf := rm.Dates[len(rm.Dates)-1]
		key = s.cache.Key(rm.Symbols, req.LookbackDays, asOf, req.CovMethod)
		if cached, err := s.cache.Get(ctx, key, rm.Symbols); err != nil {
			s.log.Warn().Err(err).Msg("Covariance cache read failed, estimating directly")
		} else if cached != nil {
			return cached, nil
		}
	}

	estimate, err := s.estimator.Estimate(rm, req.CovMethod)
	if err != nil {
		return nil, err
	}

	if s.cache != nil && key != "" {
		if err := s.cache.Put(ctx, key, rm.Symbols, estimate, req.CovMethod); err != nil {
			s.log.Warn().Err(err).Msg("Covariance cache write failed")
		}
	}

	return estimate, nil
}

// expectedReturns builds the annualized μ vector from the caller's forecasts
// when supplied, falling back to each asset's historical annualized mean.
func (s *Service) expectedReturns(req Request, rm *ReturnMatrix) []float64 {
	mu := make([]float64, rm.NumAssets())
	for i, symbol := range rm.Symbols {
		if forecast, ok := req.ExpectedReturns[symbol]; ok {
			mu[i] = forecast
		} else {
			mu[i] = formulas.AnnualizedReturn(rm.Returns[i])
		}
	}
	return mu
}
