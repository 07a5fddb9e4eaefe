// Package history stores and serves daily closing prices, the raw input for
// every optimization run.
package history

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/quantfolio/engine/internal/database"
)

// PricePoint is a single dated closing price.
type PricePoint struct {
	Date  string  `json:"date"` // YYYY-MM-DD
	Close float64 `json:"close"`
}

// Repository provides access to the daily price store.
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a price history repository and ensures its schema.
func NewRepository(db *database.DB, log zerolog.Logger) (*Repository, error) {
	r := &Repository{
		db:  db,
		log: log.With().Str("component", "history").Logger(),
	}
	if err := r.migrate(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Repository) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS daily_prices (
			symbol TEXT NOT NULL,
			date   TEXT NOT NULL,
			close  REAL NOT NULL,
			PRIMARY KEY (symbol, date)
		);
		CREATE INDEX IF NOT EXISTS idx_daily_prices_symbol ON daily_prices(symbol);
	`
	if _, err := r.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create daily_prices schema: %w", err)
	}
	return nil
}

// SavePrices upserts a batch of price points for one symbol in a single
// transaction.
func (r *Repository) SavePrices(ctx context.Context, symbol string, points []PricePoint) error {
	if len(points) == 0 {
		return nil
	}

	err := database.WithTransaction(r.db.Conn(), func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO daily_prices (symbol, date, close)
			VALUES (?, ?, ?)
			ON CONFLICT(symbol, date) DO UPDATE SET close = excluded.close
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, p := range points {
			if _, err := stmt.ExecContext(ctx, symbol, p.Date, p.Close); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save prices for %s: %w", symbol, err)
	}

	r.log.Debug().Str("symbol", symbol).Int("num_points", len(points)).Msg("Saved price history")
	return nil
}

// GetPriceHistory returns up to lookbackDays+1 most recent closes per symbol
// in ascending date order. Symbols with no stored prices are simply absent
// from the result; the caller decides whether that is fatal.
func (r *Repository) GetPriceHistory(ctx context.Context, symbols []string, lookbackDays int) (map[string][]PricePoint, error) {
	out := make(map[string][]PricePoint, len(symbols))

	for _, symbol := range symbols {
		points, err := r.getSymbolHistory(ctx, symbol, lookbackDays)
		if err != nil {
			return nil, err
		}
		if len(points) > 0 {
			out[symbol] = points
		}
	}

	return out, nil
}

func (r *Repository) getSymbolHistory(ctx context.Context, symbol string, lookbackDays int) ([]PricePoint, error) {
	// Take the most recent window, then flip to ascending order. One extra
	// row so that lookbackDays returns survive the price-to-return
	// conversion.
	rows, err := r.db.QueryContext(ctx, `
		SELECT date, close FROM (
			SELECT date, close
			FROM daily_prices
			WHERE symbol = ?
			ORDER BY date DESC
			LIMIT ?
		)
		ORDER BY date ASC
	`, symbol, lookbackDays+1)
	if err != nil {
		return nil, fmt.Errorf("failed to query price history for %s: %w", symbol, err)
	}
	defer rows.Close()

	var points []PricePoint
	for rows.Next() {
		var p PricePoint
		if err := rows.Scan(&p.Date, &p.Close); err != nil {
			return nil, fmt.Errorf("failed to scan price row for %s: %w", symbol, err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate price rows for %s: %w", symbol, err)
	}

	return points, nil
}

// CountSymbols returns the number of distinct symbols with stored prices.
func (r *Repository) CountSymbols(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(DISTINCT symbol) FROM daily_prices").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count symbols: %w", err)
	}
	return count, nil
}
