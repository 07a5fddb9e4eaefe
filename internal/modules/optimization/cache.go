package optimization

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/quantfolio/engine/internal/database"
)

// cachePayload is the msgpack-encoded cache value. Symbols records the row
// order the covariance was stored in; the key is order-insensitive, so reads
// must remap to the requesting order.
type cachePayload struct {
	Symbols   []string    `msgpack:"symbols"`
	Cov       [][]float64 `msgpack:"cov"`
	Intensity float64     `msgpack:"intensity"`
	Method    string      `msgpack:"method"`
}

// CovarianceCache persists covariance estimates keyed by the exact inputs
// that produced them, so repeated runs over the same asset set and window
// skip the estimation pass. Keys are explicit (asset set, lookback, as-of
// date); there is no implicit process-wide state.
type CovarianceCache struct {
	db  *database.DB
	ttl time.Duration
	log zerolog.Logger
}

// NewCovarianceCache creates the cache and ensures its schema.
func NewCovarianceCache(db *database.DB, ttl time.Duration, log zerolog.Logger) (*CovarianceCache, error) {
	c := &CovarianceCache{
		db:  db,
		ttl: ttl,
		log: log.With().Str("component", "covariance_cache").Logger(),
	}

	schema := `
		CREATE TABLE IF NOT EXISTS covariance_cache (
			cache_key  TEXT PRIMARY KEY,
			payload    BLOB NOT NULL,
			created_at INTEGER NOT NULL
		);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create covariance_cache schema: %w", err)
	}

	return c, nil
}

// Key builds the deterministic cache key for an estimation request. The
// symbol set is sorted so ordering differences do not split the cache.
func (c *CovarianceCache) Key(symbols []string, lookbackDays int, asOf string, method CovMethod) string {
	sorted := make([]string, len(symbols))
	copy(sorted, symbols)
	sort.Strings(sorted)
	return fmt.Sprintf("%s|%d|%s|%s", strings.Join(sorted, ","), lookbackDays, asOf, method)
}

// Get returns the cached estimate for a key, remapped to the requested
// symbol order, or (nil, nil) on a miss. Expired entries count as misses, as
// do entries whose stored symbol set does not cover the request.
func (c *CovarianceCache) Get(ctx context.Context, key string, symbols []string) (*CovarianceEstimate, error) {
	var blob []byte
	var createdAt int64
	err := c.db.QueryRowContext(ctx,
		"SELECT payload, created_at FROM covariance_cache WHERE cache_key = ?", key,
	).Scan(&blob, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read covariance cache: %w", err)
	}

	if time.Since(time.Unix(createdAt, 0)) > c.ttl {
		return nil, nil
	}

	var payload cachePayload
	if err := msgpack.Unmarshal(blob, &payload); err != nil {
		// Corrupt entry, treat as a miss and let Put overwrite it.
		c.log.Warn().Err(err).Str("cache_key", key).Msg("Dropping undecodable cache entry")
		return nil, nil
	}

	cov, ok := remapCovariance(payload.Symbols, payload.Cov, symbols)
	if !ok {
		return nil, nil
	}

	c.log.Debug().Str("cache_key", key).Msg("Covariance cache hit")
	return &CovarianceEstimate{Cov: cov, Intensity: payload.Intensity}, nil
}

// remapCovariance reorders a stored covariance matrix from its stored row
// order into the requested one. Returns false when the stored symbol set does
// not match the request exactly.
func remapCovariance(stored []string, cov [][]float64, requested []string) ([][]float64, bool) {
	if len(stored) != len(requested) || len(cov) != len(stored) {
		return nil, false
	}

	pos := make(map[string]int, len(stored))
	for i, symbol := range stored {
		pos[symbol] = i
	}

	idx := make([]int, len(requested))
	for i, symbol := range requested {
		p, ok := pos[symbol]
		if !ok {
			return nil, false
		}
		idx[i] = p
	}

	out := make([][]float64, len(requested))
	for i := range out {
		out[i] = make([]float64, len(requested))
		for j := range out[i] {
			out[i][j] = cov[idx[i]][idx[j]]
		}
	}
	return out, true
}

// Put stores an estimate under the key along with the symbol order its rows
// follow, replacing any existing entry.
func (c *CovarianceCache) Put(ctx context.Context, key string, symbols []string, estimate *CovarianceEstimate, method CovMethod) error {
	blob, err := msgpack.Marshal(cachePayload{
		Symbols:   symbols,
		Cov:       estimate.Cov,
		Intensity: estimate.Intensity,
		Method:    string(method),
	})
	if err != nil {
		return fmt.Errorf("failed to encode covariance cache payload: %w", err)
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO covariance_cache (cache_key, payload, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET payload = excluded.payload, created_at = excluded.created_at
	`, key, blob, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to write covariance cache: %w", err)
	}

	return nil
}

// Prune deletes entries older than the TTL and returns the number removed.
func (c *CovarianceCache) Prune(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-c.ttl).Unix()
	result, err := c.db.ExecContext(ctx,
		"DELETE FROM covariance_cache WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune covariance cache: %w", err)
	}

	removed, _ := result.RowsAffected()
	if removed > 0 {
		c.log.Info().Int64("removed", removed).Msg("Pruned expired covariance cache entries")
	}
	return removed, nil
}

// PruneJob wraps Prune as a schedulable background job.
type PruneJob struct {
	cache *CovarianceCache
}

// NewPruneJob creates the cache prune job.
func NewPruneJob(cache *CovarianceCache) *PruneJob {
	return &PruneJob{cache: cache}
}

// Name returns the job name for scheduler logging.
func (j *PruneJob) Name() string {
	return "covariance_cache_prune"
}

// Run prunes expired cache entries.
func (j *PruneJob) Run() error {
	_, err := j.cache.Prune(context.Background())
	return err
}
