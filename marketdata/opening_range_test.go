package marketdata

import (
	"testing"
	"time"
)

// epoch inside a single local calendar day to keep DateOf stable.
func dayEpoch(t *testing.T, date string) int64 {
	t.Helper()
	parsed, err := time.ParseInLocation("2006-01-02 15:04:05", date, time.Local)
	if err != nil {
		t.Fatal(err)
	}
	return parsed.Unix()
}

func TestBuildOpeningRanges(t *testing.T) {
	day1 := dayEpoch(t, "2023-05-19 09:30:00")
	day2 := dayEpoch(t, "2023-05-22 09:30:00")

	rows := []Row{
		{day1, "MSFT", 316.88},
		{day1 + 5, "MSFT", 317.20},
		{day1 + 10, "MSFT", 316.50},
		{day1 + 5, "SPY", 420.00},
		{day2, "MSFT", 318.00},
	}

	organized := BuildOpeningRanges(rows, 0)

	msft, ok := organized["MSFT"]
	if !ok {
		t.Fatal("expected MSFT bucket")
	}
	if len(msft) != 2 {
		t.Fatalf("expected 2 MSFT days, got %d", len(msft))
	}

	d1 := msft[DateOf(day1)]
	if d1.OpenPrice != 316.88 {
		t.Errorf("open_price should be the first tick, got %v", d1.OpenPrice)
	}
	if d1.High != 317.20 || d1.Low != 316.50 {
		t.Errorf("high/low wrong: %+v", d1)
	}
	if d1.CountTrades != 3 {
		t.Errorf("expected 3 folded trades, got %d", d1.CountTrades)
	}
	if d1.TradingStart != day1+10 {
		t.Errorf("trading_start should advance to max ts, got %d", d1.TradingStart)
	}
	if !(d1.Low <= d1.OpenPrice && d1.OpenPrice <= d1.High) {
		t.Errorf("invariant low <= open <= high violated: %+v", d1)
	}

	spy := organized["SPY"][DateOf(day1)]
	if spy.OpenPrice != 420.00 || spy.CountTrades != 1 {
		t.Errorf("mixed tickers must not bleed into each other: %+v", spy)
	}
}

func TestBuildOpeningRangesSubWindow(t *testing.T) {
	day := dayEpoch(t, "2023-05-19 09:30:00")
	rows := []Row{
		{day, "SPY", 420.00},
		{day + 20, "SPY", 425.00},
		{day + 45, "SPY", 400.00}, // outside first_seen + 30
	}

	organized := BuildOpeningRanges(rows, 30)
	bucket := organized["SPY"][DateOf(day)]

	if bucket.Low != 420.00 {
		t.Errorf("row outside sub-window must be ignored, low = %v", bucket.Low)
	}
	if bucket.CountTrades != 2 {
		t.Errorf("expected 2 contributing rows, got %d", bucket.CountTrades)
	}
}

func TestBuildOpeningRangesEmptyInput(t *testing.T) {
	organized := BuildOpeningRanges(nil, 30)
	if len(organized) != 0 {
		t.Errorf("empty row set must produce no buckets, got %v", organized)
	}
}
