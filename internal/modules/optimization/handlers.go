package optimization

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantfolio/engine/internal/modules/history"
)

// resultCache stores the last optimization result for the status endpoint.
type resultCache struct {
	mu          sync.RWMutex
	lastResult  *Result
	lastUpdated time.Time
}

// Defaults fills request fields the caller leaves unset.
type Defaults struct {
	RiskFreeRate   float64
	LookbackDays   int
	FrontierPoints int
}

// Handler handles HTTP requests for the optimization module.
type Handler struct {
	service     *Service
	historyRepo *history.Repository
	defaults    Defaults
	cache       *resultCache
	log         zerolog.Logger
}

// NewHandler creates a new optimization handler. The history repository may
// be nil when the server runs without a price store; requests must then
// carry their own prices or return matrix.
func NewHandler(service *Service, historyRepo *history.Repository, defaults Defaults, log zerolog.Logger) *Handler {
	return &Handler{
		service:     service,
		historyRepo: historyRepo,
		defaults:    defaults,
		cache:       &resultCache{},
		log:         log.With().Str("component", "optimizer_handler").Logger(),
	}
}

// HandleGetStatus handles GET /api/optimizer - returns optimizer status and last run.
func (h *Handler) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	h.cache.mu.RLock()
	defer h.cache.mu.RUnlock()

	response := map[string]interface{}{
		"status":   "ready",
		"last_run": nil,
	}
	if h.cache.lastResult != nil {
		response["last_run"] = h.cache.lastResult
		response["last_run_time"] = h.cache.lastUpdated.Format(time.RFC3339)
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleRun handles POST /api/optimizer/run - runs an optimization and returns the result.
func (h *Handler) HandleRun(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.RiskFreeRate == 0 {
		req.RiskFreeRate = h.defaults.RiskFreeRate
	}
	if req.LookbackDays <= 0 {
		req.LookbackDays = h.defaults.LookbackDays
	}
	if req.FrontierPoints <= 0 {
		req.FrontierPoints = h.defaults.FrontierPoints
	}

	// Pull prices from the store when the request carries neither raw prices
	// nor a prepared return matrix.
	if req.Returns == nil && len(req.Prices) == 0 {
		if h.historyRepo == nil {
			h.writeError(w, http.StatusBadRequest, "Request must include prices or a return matrix")
			return
		}
		stored, err := h.historyRepo.GetPriceHistory(r.Context(), req.Symbols, req.LookbackDays)
		if err != nil {
			h.log.Error().Err(err).Msg("Failed to load price history")
			h.writeError(w, http.StatusInternalServerError, "Failed to load price history")
			return
		}
		req.Prices = convertPrices(stored)
	}

	result, err := h.service.Optimize(r.Context(), req)
	if err != nil {
		h.log.Error().Err(err).Str("mode", string(req.Mode)).Msg("Optimization failed")
		h.writeError(w, statusForError(err), err.Error())
		return
	}

	h.cache.mu.Lock()
	h.cache.lastResult = result
	h.cache.lastUpdated = time.Now()
	h.cache.mu.Unlock()

	h.writeJSON(w, http.StatusOK, result)
}

// statusForError maps the engine's typed errors onto HTTP statuses.
func statusForError(err error) int {
	var invalid *InvalidInputError
	var insufficient *DataInsufficientError
	var infeasible *InfeasibleConstraintsError
	var diverged *OptimizationDivergedError

	switch {
	case errors.As(err, &invalid):
		return http.StatusBadRequest
	case errors.As(err, &insufficient), errors.As(err, &infeasible):
		return http.StatusUnprocessableEntity
	case errors.As(err, &diverged):
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

func convertPrices(stored map[string][]history.PricePoint) map[string][]PricePoint {
	out := make(map[string][]PricePoint, len(stored))
	for symbol, points := range stored {
		series := make([]PricePoint, len(points))
		for i, p := range points {
			series[i] = PricePoint{Date: p.Date, Close: p.Close}
		}
		out[symbol] = series
	}
	return out
}

// HTTP helpers

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]interface{}{
		"error": message,
	})
}
