package staging

import (
	"math"
	"testing"

	"openrange-backtest/marketdata"
)

func TestCorrelationReport(t *testing.T) {
	tests := []struct {
		name   string
		closes []marketdata.DailyClose
		want   float64
		wantOK bool
	}{
		{
			name: "perfect positive",
			closes: []marketdata.DailyClose{
				{Ticker: "SPY", Date: "2023-05-19", ClosePrice: 400},
				{Ticker: "SPY", Date: "2023-05-22", ClosePrice: 410},
				{Ticker: "SPY", Date: "2023-05-23", ClosePrice: 420},
				{Ticker: "QQQ", Date: "2023-05-19", ClosePrice: 300},
				{Ticker: "QQQ", Date: "2023-05-22", ClosePrice: 310},
				{Ticker: "QQQ", Date: "2023-05-23", ClosePrice: 320},
			},
			want:   1,
			wantOK: true,
		},
		{
			name: "one matched date is not enough",
			closes: []marketdata.DailyClose{
				{Ticker: "SPY", Date: "2023-05-19", ClosePrice: 400},
				{Ticker: "QQQ", Date: "2023-05-19", ClosePrice: 300},
				{Ticker: "QQQ", Date: "2023-05-22", ClosePrice: 310},
			},
			wantOK: false,
		},
		{
			name: "benchmark only",
			closes: []marketdata.DailyClose{
				{Ticker: "SPY", Date: "2023-05-19", ClosePrice: 400},
				{Ticker: "SPY", Date: "2023-05-22", ClosePrice: 410},
			},
			wantOK: false,
		},
		{
			name:   "no rows",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := CorrelationReport(tt.closes, "SPY")
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("correlation = %v, want %v", got, tt.want)
			}
		})
	}
}
