// Package staging uploads per-day backtest inputs into the shared cache:
// opening ranges into one namespace, compressed series into another, both
// keyed by trading date.
package staging

import (
	"context"

	"golang.org/x/sync/errgroup"

	"openrange-backtest/cache"
	"openrange-backtest/marketdata"
)

// maxInFlight caps concurrent uploads per batch so a large staging run
// cannot exhaust the broker's connection pool.
const maxInFlight = 100

// Writer stages serialized inputs into the two cache namespaces.
type Writer struct {
	ranges *cache.RedisClient
	series *cache.RedisClient
}

// NewWriter wraps the opening-range and series namespaces.
func NewWriter(ranges, series *cache.RedisClient) *Writer {
	return &Writer{ranges: ranges, series: series}
}

// StageOpeningRanges uploads one opening range per date.
func (w *Writer) StageOpeningRanges(ctx context.Context, byDate map[string]marketdata.OpeningRange) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxInFlight)
	for date, openingRange := range byDate {
		date, openingRange := date, openingRange
		g.Go(func() error {
			return w.ranges.SetJSON(ctx, date, openingRange)
		})
	}
	return g.Wait()
}

// StageSeries uploads one compressed series per date.
func (w *Writer) StageSeries(ctx context.Context, byDate map[string]marketdata.Series) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxInFlight)
	for date, series := range byDate {
		date, series := date, series
		g.Go(func() error {
			return w.series.SetJSON(ctx, date, series)
		})
	}
	return g.Wait()
}
