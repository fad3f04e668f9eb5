package reaper

import (
	"encoding/json"
	"testing"

	"openrange-backtest/engine"
	"openrange-backtest/tasks"
)

func metaValue(t *testing.T, status string, result interface{}) string {
	t.Helper()
	encoded, err := json.Marshal(result)
	if err != nil {
		t.Fatal(err)
	}
	meta := tasks.TaskMeta{
		Status:   status,
		Result:   encoded,
		Children: []interface{}{},
		TaskID:   "8b5a2f2e-0000-0000-0000-000000000000",
	}
	data, err := json.Marshal(meta)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func successValue(t *testing.T, backtestID string, netProfit float64) string {
	t.Helper()
	return metaValue(t, tasks.StatusSuccess, engine.ResultPayload{
		BacktestID:           backtestID,
		StopsTriggered:       3,
		TradesTriggered:      7,
		NetProfit:            netProfit,
		AverageHoldingPeriod: 42.5,
		TradeStats: map[string]engine.DayStats{
			"2023-05-19": {TradesTriggered: 1, NetProfit: netProfit},
		},
	})
}

func TestCollectRows(t *testing.T) {
	keys := []string{
		"celery-task-meta-a", // success with net_profit
		"celery-task-meta-b", // failed task
		"celery-task-meta-c", // success but unrelated payload
		"celery-task-meta-d", // malformed json
		"celery-task-meta-e", // missing value
		"celery-task-meta-f", // second good result
	}
	values := []string{
		successValue(t, "Ab3x9", 12.5),
		metaValue(t, tasks.StatusFailure, map[string]string{"error": "boom"}),
		metaValue(t, tasks.StatusSuccess, map[string]string{"message": "reaper run report"}),
		"{definitely not json",
		"",
		successValue(t, "Zz01q", -3.25),
	}

	rows, drainable := CollectRows(keys, values)

	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d: %+v", len(rows), rows)
	}
	if len(drainable) != 2 {
		t.Fatalf("expected 2 drainable keys, got %v", drainable)
	}
	if drainable[0] != "celery-task-meta-a" || drainable[1] != "celery-task-meta-f" {
		t.Errorf("wrong drainable keys: %v", drainable)
	}

	first := rows[0]
	if first.TradeID != "Ab3x9" {
		t.Errorf("trade_id must be the backtest id, got %q", first.TradeID)
	}
	if first.StopsTriggered != 3 || first.TradesTriggered != 7 {
		t.Errorf("counters lost: %+v", first)
	}
	if first.NetProfit != 12.5 || first.AverageHoldingPeriod != 42.5 {
		t.Errorf("aggregates lost: %+v", first)
	}

	var stats map[string]engine.DayStats
	if err := json.Unmarshal([]byte(first.TradeStats), &stats); err != nil {
		t.Fatalf("trade_stats column is not valid JSON: %v", err)
	}
	if stats["2023-05-19"].NetProfit != 12.5 {
		t.Errorf("trade stats content lost: %+v", stats)
	}
}

func TestCollectRowsEmpty(t *testing.T) {
	rows, drainable := CollectRows(nil, nil)
	if len(rows) != 0 || len(drainable) != 0 {
		t.Errorf("empty scan must collect nothing, got %v %v", rows, drainable)
	}
}

// Running the collection twice over identical input yields identical rows;
// combined with the insert-ignore unique key this makes the drain idempotent.
func TestCollectRowsDeterministic(t *testing.T) {
	keys := []string{"celery-task-meta-a"}
	values := []string{successValue(t, "Ab3x9", 1.5)}

	first, _ := CollectRows(keys, values)
	second, _ := CollectRows(keys, values)

	if len(first) != 1 || len(second) != 1 {
		t.Fatal("expected one row from each pass")
	}
	if first[0] != second[0] {
		t.Errorf("rows differ between passes: %+v vs %+v", first[0], second[0])
	}
}
