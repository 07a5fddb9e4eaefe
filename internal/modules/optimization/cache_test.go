package optimization

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfolio/engine/internal/database"
)

func newTestCache(t *testing.T, ttl time.Duration) *CovarianceCache {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cache, err := NewCovarianceCache(db, ttl, zerolog.Nop())
	require.NoError(t, err)
	return cache
}

func TestCacheKeyIsOrderInsensitive(t *testing.T) {
	cache := newTestCache(t, time.Hour)

	k1 := cache.Key([]string{"BBB", "AAA"}, 252, "2024-06-01", MethodShrinkage)
	k2 := cache.Key([]string{"AAA", "BBB"}, 252, "2024-06-01", MethodShrinkage)
	assert.Equal(t, k1, k2)

	// Any input change splits the key.
	assert.NotEqual(t, k1, cache.Key([]string{"AAA", "BBB"}, 120, "2024-06-01", MethodShrinkage))
	assert.NotEqual(t, k1, cache.Key([]string{"AAA", "BBB"}, 252, "2024-06-02", MethodShrinkage))
	assert.NotEqual(t, k1, cache.Key([]string{"AAA", "BBB"}, 252, "2024-06-01", MethodSample))
}

func TestCachePutGetRoundTrip(t *testing.T) {
	cache := newTestCache(t, time.Hour)
	ctx := context.Background()

	symbols := []string{"AAA", "BBB"}
	estimate := &CovarianceEstimate{
		Cov: [][]float64{
			{0.04, 0.01},
			{0.01, 0.09},
		},
		Intensity: 0.35,
	}

	key := cache.Key(symbols, 252, "2024-06-01", MethodShrinkage)
	require.NoError(t, cache.Put(ctx, key, symbols, estimate, MethodShrinkage))

	got, err := cache.Get(ctx, key, symbols)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, estimate.Intensity, got.Intensity)
	assert.Equal(t, estimate.Cov, got.Cov)
}

func TestCacheRemapsSymbolOrder(t *testing.T) {
	// The key is order-insensitive, so a hit must be reordered into the
	// requesting row order, never served in the order it was stored.
	cache := newTestCache(t, time.Hour)
	ctx := context.Background()

	stored := []string{"AAA", "BBB", "CCC"}
	estimate := &CovarianceEstimate{
		Cov: [][]float64{
			{0.04, 0.01, 0.00},
			{0.01, 0.09, 0.02},
			{0.00, 0.02, 0.16},
		},
		Intensity: 0.20,
	}

	key := cache.Key(stored, 252, "2024-06-01", MethodShrinkage)
	require.NoError(t, cache.Put(ctx, key, stored, estimate, MethodShrinkage))

	reversed := []string{"CCC", "BBB", "AAA"}
	require.Equal(t, key, cache.Key(reversed, 252, "2024-06-01", MethodShrinkage))

	got, err := cache.Get(ctx, key, reversed)
	require.NoError(t, err)
	require.NotNil(t, got)

	expected := [][]float64{
		{0.16, 0.02, 0.00},
		{0.02, 0.09, 0.01},
		{0.00, 0.01, 0.04},
	}
	assert.Equal(t, expected, got.Cov)
}

func TestCacheMissOnSymbolSetMismatch(t *testing.T) {
	cache := newTestCache(t, time.Hour)
	ctx := context.Background()

	stored := []string{"AAA", "BBB"}
	key := cache.Key(stored, 252, "2024-06-01", MethodSample)
	require.NoError(t, cache.Put(ctx, key, stored, &CovarianceEstimate{
		Cov: [][]float64{{0.04, 0.01}, {0.01, 0.09}},
	}, MethodSample))

	got, err := cache.Get(ctx, key, []string{"AAA", "ZZZ"})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCacheMissOnUnknownKey(t *testing.T) {
	cache := newTestCache(t, time.Hour)

	got, err := cache.Get(context.Background(), "no-such-key", []string{"AAA"})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCacheExpiredEntryIsMiss(t *testing.T) {
	cache := newTestCache(t, time.Nanosecond)
	ctx := context.Background()

	symbols := []string{"AAA"}
	key := cache.Key(symbols, 60, "2024-06-01", MethodSample)
	require.NoError(t, cache.Put(ctx, key, symbols, &CovarianceEstimate{
		Cov: [][]float64{{0.04}},
	}, MethodSample))

	time.Sleep(10 * time.Millisecond)

	got, err := cache.Get(ctx, key, symbols)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCachePrune(t *testing.T) {
	cache := newTestCache(t, time.Nanosecond)
	ctx := context.Background()

	for _, symbol := range []string{"AAA", "BBB", "CCC"} {
		key := cache.Key([]string{symbol}, 60, "2024-06-01", MethodSample)
		require.NoError(t, cache.Put(ctx, key, []string{symbol}, &CovarianceEstimate{
			Cov: [][]float64{{0.01}},
		}, MethodSample))
	}

	time.Sleep(10 * time.Millisecond)

	removed, err := cache.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)
}

func TestPruneJob(t *testing.T) {
	cache := newTestCache(t, time.Hour)
	job := NewPruneJob(cache)

	assert.Equal(t, "covariance_cache_prune", job.Name())
	assert.NoError(t, job.Run())
}
