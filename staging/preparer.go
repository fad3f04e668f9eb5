package staging

import (
	"context"
	"fmt"
	"log"
	"time"

	"openrange-backtest/config"
	"openrange-backtest/marketdata"
	"openrange-backtest/warehouse"
)

// Preparer runs the data-preparation stage: derive opening ranges from the
// warehouse, compress each day's tick series, and stage both products.
type Preparer struct {
	wh     *warehouse.Warehouse
	writer *Writer
	cfg    config.BacktestConfig
}

// NewPreparer wires the warehouse and the staging writer.
func NewPreparer(wh *warehouse.Warehouse, writer *Writer, cfg config.BacktestConfig) *Preparer {
	return &Preparer{wh: wh, writer: writer, cfg: cfg}
}

// Run stages every available trading day for the configured ticker and
// returns how many days went up. Days with no warehouse rows (weekends,
// holidays) are skipped silently.
func (p *Preparer) Run(ctx context.Context) (int, error) {
	epochs := warehouse.EpochDateRanges(p.cfg.BeginningEpoch, time.Now())

	rows, err := p.wh.OpeningRangeRows(ctx, p.cfg.BeginningEpoch, epochs, p.cfg.OpeningRangeDuration)
	if err != nil {
		return 0, err
	}

	organized := marketdata.BuildOpeningRanges(rows, p.cfg.OpeningRangeDuration)
	byDate, ok := organized[p.cfg.Ticker]
	if !ok {
		return 0, fmt.Errorf("no opening range data for ticker %s", p.cfg.Ticker)
	}

	log.Printf("Built opening ranges for %s across %d trading days", p.cfg.Ticker, len(byDate))
	if err := p.writer.StageOpeningRanges(ctx, byDate); err != nil {
		return 0, fmt.Errorf("stage opening ranges: %w", err)
	}

	// The base epoch is part of the opening-range query window but not of
	// the generated list, so it gets prepended here.
	dayStarts := append([]int64{p.cfg.BeginningEpoch}, epochs...)

	seriesByDate := make(map[string]marketdata.Series)
	for _, start := range dayStarts {
		date := marketdata.DateOf(start)
		if _, ok := byDate[date]; !ok {
			continue
		}

		ticks, err := p.wh.IntradayTicks(ctx, start, p.cfg.MarketOpenDuration, p.cfg.Ticker)
		if err != nil {
			return 0, fmt.Errorf("intraday pull for %s: %w", date, err)
		}
		if len(ticks) == 0 {
			continue
		}

		series := marketdata.Compress(ticks)
		log.Printf("Compressed %s: %d ticks -> %d points", date, len(ticks), series.Len())
		seriesByDate[date] = series
	}

	if err := p.writer.StageSeries(ctx, seriesByDate); err != nil {
		return 0, fmt.Errorf("stage series: %w", err)
	}

	log.Printf("Staged %d trading days for %s", len(seriesByDate), p.cfg.Ticker)

	p.reportCorrelation(ctx)
	return len(seriesByDate), nil
}

// reportCorrelation logs the ticker's long-term correlation with the
// benchmark. The stat is informational; a failed query must not fail the
// preparation run.
func (p *Preparer) reportCorrelation(ctx context.Context) {
	if p.cfg.Ticker == p.cfg.Benchmark {
		return
	}
	closes, err := p.wh.DailyCloses(ctx, p.cfg.Ticker, p.cfg.Benchmark)
	if err != nil {
		log.Printf("Daily close query failed, skipping correlation: %v", err)
		return
	}
	corr, ok := CorrelationReport(closes, p.cfg.Benchmark)
	if !ok {
		log.Printf("Not enough daily closes to correlate %s with %s", p.cfg.Ticker, p.cfg.Benchmark)
		return
	}
	log.Printf("Daily close correlation %s vs %s: %.4f", p.cfg.Ticker, p.cfg.Benchmark, corr)
}

// CorrelationReport computes the benchmark correlation over the joined
// daily closes. The bool is false when fewer than two dates match on both
// sides, where the coefficient carries no information.
func CorrelationReport(closes []marketdata.DailyClose, benchmark string) (float64, bool) {
	matched := 0
	benchmarkDates := make(map[string]bool)
	for _, row := range closes {
		if row.Ticker == benchmark {
			benchmarkDates[row.Date] = true
		}
	}
	for _, row := range closes {
		if row.Ticker != benchmark && benchmarkDates[row.Date] {
			matched++
		}
	}
	if matched < 2 {
		return 0, false
	}
	return marketdata.Correlation(closes, benchmark), true
}
