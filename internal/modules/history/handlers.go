package history

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler handles HTTP requests for the price history module.
type Handler struct {
	repo *Repository
	log  zerolog.Logger
}

// NewHandler creates a new history handler.
func NewHandler(repo *Repository, log zerolog.Logger) *Handler {
	return &Handler{
		repo: repo,
		log:  log.With().Str("component", "history_handler").Logger(),
	}
}

// HandleSavePrices handles PUT /api/history/prices/{symbol} - upserts a price batch.
func (h *Handler) HandleSavePrices(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	if symbol == "" {
		h.writeError(w, http.StatusBadRequest, "Symbol is required")
		return
	}

	var points []PricePoint
	if err := json.NewDecoder(r.Body).Decode(&points); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	for _, p := range points {
		if p.Date == "" || p.Close <= 0 {
			h.writeError(w, http.StatusBadRequest, "Every price point needs a date and a positive close")
			return
		}
	}

	if err := h.repo.SavePrices(r.Context(), symbol, points); err != nil {
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to save prices")
		h.writeError(w, http.StatusInternalServerError, "Failed to save prices")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol": symbol,
		"saved":  len(points),
	})
}

// HandleGetPrices handles GET /api/history/prices/{symbol}?lookback_days=N.
func (h *Handler) HandleGetPrices(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	if symbol == "" {
		h.writeError(w, http.StatusBadRequest, "Symbol is required")
		return
	}

	lookbackDays := 252
	if raw := r.URL.Query().Get("lookback_days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "lookback_days must be a positive integer")
			return
		}
		lookbackDays = parsed
	}

	stored, err := h.repo.GetPriceHistory(r.Context(), []string{symbol}, lookbackDays)
	if err != nil {
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to load prices")
		h.writeError(w, http.StatusInternalServerError, "Failed to load prices")
		return
	}

	points, ok := stored[symbol]
	if !ok {
		h.writeError(w, http.StatusNotFound, "No prices stored for "+symbol)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol": symbol,
		"prices": points,
	})
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
	h.writeJSON(w, status, map[string]string{
		"error": message,
	})
}
