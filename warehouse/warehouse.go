// Package warehouse provides read-only access to the historical tick
// warehouse. The warehouse schema (options.greeks, stocks.daily_underlying)
// is owned elsewhere; this package only queries it.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"openrange-backtest/marketdata"
)

// Warehouse wraps the warehouse connection pool.
type Warehouse struct {
	conn *sql.DB
}

// Open connects to the warehouse and verifies the connection.
func Open(dsn string) (*Warehouse, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open warehouse: %w", err)
	}

	// Read-only analytical workload; keep a small warm pool.
	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping warehouse: %w", err)
	}

	return &Warehouse{conn: conn}, nil
}

// Close closes the warehouse connection pool.
func (w *Warehouse) Close() error {
	if w.conn != nil {
		return w.conn.Close()
	}
	return nil
}

// EpochDateRanges generates one epoch per day from the first day after the
// beginning of high resolution data up to now. The beginning day itself is
// excluded because the opening-range query includes it as its base window.
// Weekends and holidays stay in the list; their query windows return no
// rows, which drops them from the sweep.
func EpochDateRanges(beginningEpoch int64, now time.Time) []int64 {
	var epochs []int64
	for ts := beginningEpoch + 86400; ts < now.Unix(); ts += 86400 {
		epochs = append(epochs, ts)
	}
	return epochs
}

// OpeningRangeRows pulls every tick inside the opening-range window of each
// requested day, across all tickers, oldest to newest.
func (w *Warehouse) OpeningRangeRows(ctx context.Context, beginningEpoch int64, epochs []int64, duration int64) ([]marketdata.Row, error) {
	var clause strings.Builder
	for _, epoch := range epochs {
		fmt.Fprintf(&clause, "OR timestamp_utc BETWEEN %d AND %d ", epoch, epoch+duration)
	}

	query := fmt.Sprintf(`
		SELECT timestamp_utc, ticker, underlying
		FROM options.greeks
		WHERE timestamp_utc BETWEEN %d AND %d %s
		ORDER BY timestamp_utc`,
		beginningEpoch, beginningEpoch+duration, clause.String(),
	)

	rows, err := w.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("opening range query: %w", err)
	}
	defer rows.Close()

	var result []marketdata.Row
	for rows.Next() {
		var row marketdata.Row
		if err := rows.Scan(&row.TimestampUTC, &row.Ticker, &row.Underlying); err != nil {
			return nil, fmt.Errorf("scan opening range row: %w", err)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// IntradayTicks pulls one ticker's full-session tick series for the day
// starting at start, deduplicated and ordered by timestamp.
func (w *Warehouse) IntradayTicks(ctx context.Context, start, marketOpenDuration int64, ticker string) ([]marketdata.Tick, error) {
	rows, err := w.conn.QueryContext(ctx, `
		SELECT DISTINCT timestamp_utc, underlying
		FROM options.greeks
		WHERE timestamp_utc BETWEEN $1 AND $2
		AND ticker = $3
		ORDER BY timestamp_utc`,
		start, start+marketOpenDuration, ticker,
	)
	if err != nil {
		return nil, fmt.Errorf("intraday query for %s: %w", ticker, err)
	}
	defer rows.Close()

	var ticks []marketdata.Tick
	for rows.Next() {
		var tick marketdata.Tick
		if err := rows.Scan(&tick.TimestampUTC, &tick.Underlying); err != nil {
			return nil, fmt.Errorf("scan intraday tick: %w", err)
		}
		ticks = append(ticks, tick)
	}
	return ticks, rows.Err()
}

// DailyCloses pulls daily close prices for a ticker and the benchmark,
// feeding the long-term correlation stat.
func (w *Warehouse) DailyCloses(ctx context.Context, ticker, benchmark string) ([]marketdata.DailyClose, error) {
	rows, err := w.conn.QueryContext(ctx, `
		SELECT ticker, date, close_price
		FROM stocks.daily_underlying
		WHERE ticker IN ($1, $2)`,
		benchmark, ticker,
	)
	if err != nil {
		return nil, fmt.Errorf("daily close query for %s: %w", ticker, err)
	}
	defer rows.Close()

	var closes []marketdata.DailyClose
	for rows.Next() {
		var row marketdata.DailyClose
		if err := rows.Scan(&row.Ticker, &row.Date, &row.ClosePrice); err != nil {
			return nil, fmt.Errorf("scan daily close: %w", err)
		}
		closes = append(closes, row)
	}
	return closes, rows.Err()
}
