package server

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/quantfolio/engine/internal/database"
	"github.com/quantfolio/engine/internal/modules/history"
)

// SystemHandlers handles system-wide monitoring endpoints
type SystemHandlers struct {
	log         zerolog.Logger
	startedAt   time.Time
	historyDB   *database.DB
	cacheDB     *database.DB
	historyRepo *history.Repository
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(log zerolog.Logger, historyDB, cacheDB *database.DB, historyRepo *history.Repository) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("component", "system_handlers").Logger(),
		startedAt:   time.Now(),
		historyDB:   historyDB,
		cacheDB:     cacheDB,
		historyRepo: historyRepo,
	}
}

// HandleSystemStatus returns process and host resource status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, ramPercent := h.getSystemStats()

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	symbolCount := 0
	if h.historyRepo != nil {
		if count, err := h.historyRepo.CountSymbols(r.Context()); err == nil {
			symbolCount = count
		} else {
			h.log.Warn().Err(err).Msg("Failed to count stored symbols")
		}
	}

	response := map[string]interface{}{
		"status":         "running",
		"uptime_seconds": int(time.Since(h.startedAt).Seconds()),
		"cpu_percent":    cpuPercent,
		"ram_percent":    ramPercent,
		"goroutines":     runtime.NumGoroutine(),
		"memory": map[string]interface{}{
			"alloc_mb":       m.Alloc / 1024 / 1024,
			"total_alloc_mb": m.TotalAlloc / 1024 / 1024,
			"sys_mb":         m.Sys / 1024 / 1024,
			"num_gc":         m.NumGC,
		},
		"stored_symbols": symbolCount,
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleDatabaseStats returns size and page statistics for both databases
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	databases := make([]map[string]interface{}, 0, 2)

	for _, db := range []*database.DB{h.historyDB, h.cacheDB} {
		if db == nil {
			continue
		}
		entry := map[string]interface{}{
			"name":    db.Name(),
			"path":    db.Path(),
			"profile": string(db.Profile()),
		}
		if stats, err := db.GetStats(); err == nil {
			entry["size_mb"] = float64(stats.SizeBytes) / 1024 / 1024
			entry["wal_size_mb"] = float64(stats.WALSizeBytes) / 1024 / 1024
			entry["page_count"] = stats.PageCount
			entry["freelist_count"] = stats.FreelistCount
		} else {
			h.log.Warn().Err(err).Str("db", db.Name()).Msg("Failed to get database stats")
		}
		databases = append(databases, entry)
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"databases":    databases,
		"last_checked": time.Now().Format(time.RFC3339),
	})
}

// getSystemStats calculates CPU and RAM usage percentages.
// CPU sampling uses a 100ms interval so the status endpoint stays responsive.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil || len(cpuPercent) == 0 {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return cpuPercent[0], 0
	}

	return cpuPercent[0], memStat.UsedPercent
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
