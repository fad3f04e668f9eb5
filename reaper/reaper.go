// Package reaper lifecycles completed results out of the cache and into
// the durable store. Insert first, delete after: the unique trade_id key
// makes a crash between the two a harmless re-insert on the next run.
package reaper

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"openrange-backtest/cache"
	"openrange-backtest/database"
	"openrange-backtest/engine"
	"openrange-backtest/tasks"
)

// Reaper periodically drains the results keyspace.
type Reaper struct {
	broker   *cache.RedisClient
	repo     *database.ResultRepository
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

// New creates a reaper running every interval.
func New(broker *cache.RedisClient, repo *database.ResultRepository, interval time.Duration) *Reaper {
	return &Reaper{
		broker:   broker,
		repo:     repo,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the reaper loop. Errors are logged and the entries stay in
// the cache for the next run; at-least-once, never lossy.
func (r *Reaper) Start() {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			drained, err := r.RunOnce(context.Background())
			if err != nil {
				log.Printf("Reaper run failed: %v", err)
				continue
			}
			if drained > 0 {
				log.Printf("Reaper lifecycled %d results to the durable store", drained)
			}
		}
	}
}

// Stop shuts the loop down and waits for it to exit.
func (r *Reaper) Stop() {
	close(r.stop)
	<-r.done
}

// RunOnce performs a single drain cycle and returns how many results moved.
func (r *Reaper) RunOnce(ctx context.Context) (int, error) {
	keys, err := r.broker.ScanKeys(ctx, tasks.ResultKeyPrefix+"*")
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	values, err := r.broker.MGet(ctx, keys)
	if err != nil {
		return 0, err
	}

	rows, drainable := CollectRows(keys, values)
	if len(rows) == 0 {
		return 0, nil
	}

	if err := r.repo.InsertIgnore(rows); err != nil {
		// Leave the cache entries alone; the next run retries them.
		return 0, err
	}

	if err := r.broker.Delete(ctx, drainable...); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// CollectRows filters raw result backend values down to successful backtest
// results and converts them to durable rows. Malformed payloads and
// unrelated entries are dropped, matching keys returned alongside.
func CollectRows(keys, values []string) ([]database.BacktestRow, []string) {
	var rows []database.BacktestRow
	var drainable []string

	for i, value := range values {
		if value == "" {
			continue
		}

		var meta tasks.TaskMeta
		if err := json.Unmarshal([]byte(value), &meta); err != nil {
			continue
		}
		if meta.Status != tasks.StatusSuccess {
			continue
		}

		// Reject unrelated or malformed results: a real backtest result
		// always carries net_profit.
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(meta.Result, &fields); err != nil {
			continue
		}
		if _, ok := fields["net_profit"]; !ok {
			continue
		}

		var payload engine.ResultPayload
		if err := json.Unmarshal(meta.Result, &payload); err != nil {
			continue
		}

		stats, err := json.Marshal(payload.TradeStats)
		if err != nil {
			continue
		}

		rows = append(rows, database.BacktestRow{
			TradeID:              payload.BacktestID,
			StopsTriggered:       payload.StopsTriggered,
			TradesTriggered:      payload.TradesTriggered,
			NetProfit:            payload.NetProfit,
			AverageHoldingPeriod: payload.AverageHoldingPeriod,
			TradeStats:           string(stats),
		})
		drainable = append(drainable, keys[i])
	}

	return rows, drainable
}
