package engine

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
)

func TestNewBacktestID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewBacktestID()
		if len(id) != 5 {
			t.Fatalf("expected 5 characters, got %q", id)
		}
		for _, c := range id {
			if !strings.ContainsRune(idAlphabet, c) {
				t.Fatalf("unexpected character %q in id %q", c, id)
			}
		}
		seen[id] = true
	}
	if len(seen) < 90 {
		t.Errorf("ids look far from random: %d distinct out of 100", len(seen))
	}
}

func TestAggregate(t *testing.T) {
	params := StrategyParams{StopDistance: 0.25, StopCountLimit: 4, StopCooloffPeriod: 30, LimitDistance: 5}

	byDay := map[string]DayResult{
		"2023-05-19": {NetProfit: 5.004, AverageHoldingPeriod: 10, TradesTriggered: 1},
		"2023-05-22": {NetProfit: -0.5, AverageHoldingPeriod: 20, TradesTriggered: 2, StopsTriggered: 1},
		"2023-05-23": {NetProfit: 0, AverageHoldingPeriod: 0},
	}

	result := Aggregate(params, byDay)

	if result.BacktestProfit != 4.5 {
		t.Errorf("profit must round to cents, expected 4.5 got %v", result.BacktestProfit)
	}
	if math.Abs(result.AverageHoldingPeriod-10) > 1e-9 {
		t.Errorf("expected mean of per-day averages 10, got %v", result.AverageHoldingPeriod)
	}
	// 1 winning day out of 3 -> 33%.
	if result.WinRatePercent != 33 {
		t.Errorf("expected win rate 33, got %v", result.WinRatePercent)
	}
	if result.BacktestID == "" {
		t.Error("aggregate must assign a backtest id")
	}
}

func TestAggregateEmpty(t *testing.T) {
	result := Aggregate(StrategyParams{}, map[string]DayResult{})
	if result.BacktestProfit != 0 || result.WinRatePercent != 0 || result.AverageHoldingPeriod != 0 {
		t.Errorf("empty sweep point must aggregate to zeros: %+v", result)
	}
}

func TestDayStatsWireFormat(t *testing.T) {
	stats := DayStats{
		Trades: []TradeStats{
			{OpenPrice: 101, OpenTS: 1000, ClosePrice: 106, CloseTS: 1010, Profit: 5, HoldingPeriod: 10, Direction: "long"},
			{OpenPrice: 94, OpenTS: 1100, ClosePrice: 89, CloseTS: 1200, Profit: 5, HoldingPeriod: 100, Direction: "short"},
		},
		StopsTriggered:       1,
		TradesTriggered:      2,
		AverageHoldingPeriod: 55,
		NetProfit:            10,
	}

	data, err := json.Marshal(stats)
	if err != nil {
		t.Fatal(err)
	}

	// The abbreviated keys are the external contract.
	var wire map[string]json.RawMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"st", "tt", "ahp", "snp", "1", "2"} {
		if _, ok := wire[key]; !ok {
			t.Errorf("missing wire key %q in %s", key, data)
		}
	}

	var firstTrade map[string]json.RawMessage
	if err := json.Unmarshal(wire["1"], &firstTrade); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"top", "to", "tcp", "tc", "p", "hp", "d"} {
		if _, ok := firstTrade[key]; !ok {
			t.Errorf("missing trade wire key %q in %s", key, wire["1"])
		}
	}

	var decoded DayStats
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if len(decoded.Trades) != 2 {
		t.Fatalf("expected 2 trades after round trip, got %d", len(decoded.Trades))
	}
	if decoded.Trades[0].OpenPrice != 101 || decoded.Trades[1].Direction != "short" {
		t.Errorf("trade order lost in round trip: %+v", decoded.Trades)
	}
	if decoded.NetProfit != 10 || decoded.StopsTriggered != 1 {
		t.Errorf("summary fields lost in round trip: %+v", decoded)
	}
}

func TestResultPayload(t *testing.T) {
	result := BacktestResult{
		BacktestID: "Ab3x9",
		ByDay: map[string]DayResult{
			"2023-05-19": {
				Trades: []Trade{
					{OpenPrice: 101, OpenTS: 1000, ClosePrice: 106, CloseTS: 1010, Direction: Long, Profit: 5, HoldingPeriod: 10},
				},
				StopsTriggered:  0,
				TradesTriggered: 1,
				NetProfit:       5,
			},
			"2023-05-22": {
				StopsTriggered:  2,
				TradesTriggered: 2,
				NetProfit:       -0.5,
			},
		},
		BacktestProfit:       4.5,
		AverageHoldingPeriod: 5,
		WinRatePercent:       50,
	}

	payload := result.Payload()

	if payload.BacktestID != "Ab3x9" {
		t.Errorf("backtest id lost: %+v", payload)
	}
	if payload.StopsTriggered != 2 || payload.TradesTriggered != 3 {
		t.Errorf("totals must sum across days: %+v", payload)
	}
	if payload.NetProfit != 4.5 {
		t.Errorf("net profit mismatch: %v", payload.NetProfit)
	}

	// The reaper filters on net_profit being present in the result JSON.
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	var wire map[string]json.RawMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		t.Fatal(err)
	}
	if _, ok := wire["net_profit"]; !ok {
		t.Errorf("payload must expose net_profit on the wire: %s", data)
	}
	if _, ok := wire["trade_stats"]; !ok {
		t.Errorf("payload must expose trade_stats on the wire: %s", data)
	}
}
