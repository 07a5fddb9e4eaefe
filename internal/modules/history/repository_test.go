package history

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfolio/engine/internal/database"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "history.db"),
		Profile: database.ProfileStandard,
		Name:    "history",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo, err := NewRepository(db, zerolog.Nop())
	require.NoError(t, err)
	return repo
}

func seedPrices(numDays int, start float64) []PricePoint {
	points := make([]PricePoint, numDays)
	for i := range points {
		points[i] = PricePoint{
			Date:  fmt.Sprintf("2024-01-%02d", i+1),
			Close: start + float64(i),
		}
	}
	return points
}

func TestSaveAndGetPriceHistory(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.SavePrices(ctx, "AAA", seedPrices(10, 100)))
	require.NoError(t, repo.SavePrices(ctx, "BBB", seedPrices(10, 50)))

	history, err := repo.GetPriceHistory(ctx, []string{"AAA", "BBB"}, 252)
	require.NoError(t, err)
	require.Contains(t, history, "AAA")
	require.Contains(t, history, "BBB")

	aaa := history["AAA"]
	require.Equal(t, 10, len(aaa))
	assert.Equal(t, "2024-01-01", aaa[0].Date)
	assert.Equal(t, 100.0, aaa[0].Close)
	assert.Equal(t, "2024-01-10", aaa[9].Date)

	// Ascending date order throughout.
	for i := 1; i < len(aaa); i++ {
		assert.Less(t, aaa[i-1].Date, aaa[i].Date)
	}
}

func TestGetPriceHistoryLookbackWindow(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.SavePrices(ctx, "AAA", seedPrices(20, 100)))

	// One extra row beyond the lookback so the window yields lookbackDays
	// returns after differencing.
	history, err := repo.GetPriceHistory(ctx, []string{"AAA"}, 5)
	require.NoError(t, err)

	points := history["AAA"]
	require.Equal(t, 6, len(points))
	assert.Equal(t, "2024-01-15", points[0].Date)
	assert.Equal(t, "2024-01-20", points[5].Date)
}

func TestSavePricesUpsert(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.SavePrices(ctx, "AAA", []PricePoint{
		{Date: "2024-01-01", Close: 100},
	}))
	require.NoError(t, repo.SavePrices(ctx, "AAA", []PricePoint{
		{Date: "2024-01-01", Close: 105},
	}))

	history, err := repo.GetPriceHistory(ctx, []string{"AAA"}, 10)
	require.NoError(t, err)

	points := history["AAA"]
	require.Equal(t, 1, len(points))
	assert.Equal(t, 105.0, points[0].Close)
}

func TestGetPriceHistoryMissingSymbol(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.SavePrices(ctx, "AAA", seedPrices(5, 100)))

	history, err := repo.GetPriceHistory(ctx, []string{"AAA", "ZZZ"}, 10)
	require.NoError(t, err)
	assert.Contains(t, history, "AAA")
	assert.NotContains(t, history, "ZZZ")
}

func TestSavePricesEmptyBatch(t *testing.T) {
	repo := newTestRepository(t)
	assert.NoError(t, repo.SavePrices(context.Background(), "AAA", nil))
}

func TestCountSymbols(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	count, err := repo.CountSymbols(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	require.NoError(t, repo.SavePrices(ctx, "AAA", seedPrices(3, 100)))
	require.NoError(t, repo.SavePrices(ctx, "BBB", seedPrices(3, 50)))

	count, err = repo.CountSymbols(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
