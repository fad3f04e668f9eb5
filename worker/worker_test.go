package worker

import (
	"encoding/json"
	"strings"
	"testing"

	"openrange-backtest/engine"
	"openrange-backtest/marketdata"
)

var testParams = engine.StrategyParams{
	StopDistance:      0.25,
	StopCountLimit:    4,
	StopCooloffPeriod: 30,
	LimitDistance:     5,
}

func stagedRange(t *testing.T, high, low float64) string {
	t.Helper()
	data, err := json.Marshal(marketdata.OpeningRange{
		OpenPrice: low, High: high, Low: low, CountTrades: 2, TradingStart: 1684503000,
	})
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func stagedSeries(t *testing.T, points ...marketdata.Point) string {
	t.Helper()
	data, err := json.Marshal(marketdata.Series{Points: points})
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestSimulateStagedDays(t *testing.T) {
	goodRange := stagedRange(t, 100, 95)
	goodSeries := stagedSeries(t,
		marketdata.Point{TS: 1684503000, Price: 101},
		marketdata.Point{TS: 1684503010, Price: 106},
	)

	tests := []struct {
		name         string
		dates        []string
		rangeValues  []string
		seriesValues []string
		wantErr      string
	}{
		{
			name:         "complete day simulates",
			dates:        []string{"2023-05-19"},
			rangeValues:  []string{goodRange},
			seriesValues: []string{goodSeries},
		},
		{
			name:         "missing opening range is fatal",
			dates:        []string{"2023-05-19", "2023-05-22"},
			rangeValues:  []string{goodRange, ""},
			seriesValues: []string{goodSeries, goodSeries},
			wantErr:      "missing opening range for staged date 2023-05-22",
		},
		{
			name:         "missing series is fatal",
			dates:        []string{"2023-05-19"},
			rangeValues:  []string{goodRange},
			seriesValues: []string{""},
			wantErr:      "missing series for staged date 2023-05-19",
		},
		{
			name:         "malformed opening range is fatal",
			dates:        []string{"2023-05-19"},
			rangeValues:  []string{"{broken"},
			seriesValues: []string{goodSeries},
			wantErr:      "decode opening range 2023-05-19",
		},
		{
			name:         "malformed series is fatal",
			dates:        []string{"2023-05-19"},
			rangeValues:  []string{goodRange},
			seriesValues: []string{`{"not-a-ts": 1.0}`},
			wantErr:      "decode series 2023-05-19",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			byDay, err := SimulateStagedDays(testParams, tt.dates, tt.rangeValues, tt.seriesValues)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
				if byDay != nil {
					t.Errorf("incomplete staging must yield no results, got %v", byDay)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if len(byDay) != len(tt.dates) {
				t.Fatalf("expected %d simulated days, got %d", len(tt.dates), len(byDay))
			}
		})
	}
}

func TestSimulateStagedDaysResults(t *testing.T) {
	dates := []string{"2023-05-19"}
	rangeValues := []string{stagedRange(t, 100, 95)}
	seriesValues := []string{stagedSeries(t,
		marketdata.Point{TS: 1684503000, Price: 101},
		marketdata.Point{TS: 1684503010, Price: 106},
	)}

	byDay, err := SimulateStagedDays(testParams, dates, rangeValues, seriesValues)
	if err != nil {
		t.Fatal(err)
	}

	day := byDay["2023-05-19"]
	if day.TradesTriggered != 1 || day.NetProfit != 5 {
		t.Errorf("breakout day simulated wrong: %+v", day)
	}
}

func TestSimulateStagedDaysEmpty(t *testing.T) {
	byDay, err := SimulateStagedDays(testParams, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(byDay) != 0 {
		t.Errorf("no staged days must simulate nothing, got %v", byDay)
	}
}
