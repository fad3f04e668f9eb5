// Package worker consumes sweep tasks, runs the breakout simulation over
// every staged trading day, and records results in the result backend.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"openrange-backtest/cache"
	"openrange-backtest/engine"
	"openrange-backtest/marketdata"
	"openrange-backtest/tasks"
)

// popTimeout bounds each blocking pop so workers notice cancellation.
const popTimeout = 5 * time.Second

// Worker runs sweep tasks pulled from the shared queue.
type Worker struct {
	broker *cache.RedisClient // result backend
	ranges *cache.RedisClient
	series *cache.RedisClient
	queue  *tasks.Queue
}

// New wires a worker to the broker and the two staging namespaces.
func New(broker, ranges, series *cache.RedisClient, queue *tasks.Queue) *Worker {
	return &Worker{broker: broker, ranges: ranges, series: series, queue: queue}
}

// RunPool runs n single-threaded workers until the context is cancelled.
func (w *Worker) RunPool(ctx context.Context, n int) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		worker := i
		g.Go(func() error {
			return w.run(ctx, worker)
		})
	}
	return g.Wait()
}

func (w *Worker) run(ctx context.Context, id int) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		msg, err := w.queue.Pop(ctx, popTimeout)
		if cache.IsNil(err) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("worker %d pop: %w", id, err)
		}

		w.process(ctx, msg)
	}
}

// process runs one task end to end. Failures are recorded against the task
// id; redelivery is the task runtime's decision, not ours.
func (w *Worker) process(ctx context.Context, msg tasks.Message) {
	taskID := msg.Headers.ID

	payload, err := w.runTask(ctx, msg)
	if err != nil {
		log.Printf("Task %s failed: %v", taskID, err)
		failure := map[string]string{"error": err.Error()}
		if storeErr := tasks.StoreResult(ctx, w.broker, taskID, tasks.StatusFailure, failure); storeErr != nil {
			log.Printf("Task %s: failed to record failure: %v", taskID, storeErr)
		}
		return
	}

	if err := tasks.StoreResult(ctx, w.broker, taskID, tasks.StatusSuccess, payload); err != nil {
		log.Printf("Task %s: failed to record result: %v", taskID, err)
	}
}

func (w *Worker) runTask(ctx context.Context, msg tasks.Message) (engine.ResultPayload, error) {
	var params engine.StrategyParams
	if err := msg.DecodeKwargs(&params); err != nil {
		return engine.ResultPayload{}, err
	}
	if err := params.Validate(); err != nil {
		return engine.ResultPayload{}, err
	}

	result, err := w.Backtest(ctx, params)
	if err != nil {
		return engine.ResultPayload{}, err
	}
	return result.Payload(), nil
}

// Backtest loads every staged trading day and simulates the sweep point
// across all of them.
func (w *Worker) Backtest(ctx context.Context, params engine.StrategyParams) (engine.BacktestResult, error) {
	dates, err := w.series.ScanKeys(ctx, "*")
	if err != nil {
		return engine.BacktestResult{}, fmt.Errorf("scan staged dates: %w", err)
	}
	sort.Strings(dates)

	rangeValues, err := w.ranges.MGet(ctx, dates)
	if err != nil {
		return engine.BacktestResult{}, fmt.Errorf("load opening ranges: %w", err)
	}
	seriesValues, err := w.series.MGet(ctx, dates)
	if err != nil {
		return engine.BacktestResult{}, fmt.Errorf("load series: %w", err)
	}

	byDay, err := SimulateStagedDays(params, dates, rangeValues, seriesValues)
	if err != nil {
		return engine.BacktestResult{}, err
	}
	return engine.Aggregate(params, byDay), nil
}

// SimulateStagedDays decodes each staged day's inputs and runs the
// simulation over them. Any gap in the staged data is a task failure: a
// series without its opening range (or the reverse) means the preparation
// stage was incomplete, and no range may be fabricated.
func SimulateStagedDays(params engine.StrategyParams, dates, rangeValues, seriesValues []string) (map[string]engine.DayResult, error) {
	byDay := make(map[string]engine.DayResult, len(dates))
	for i, date := range dates {
		if rangeValues[i] == "" {
			return nil, fmt.Errorf("missing opening range for staged date %s", date)
		}
		if seriesValues[i] == "" {
			return nil, fmt.Errorf("missing series for staged date %s", date)
		}

		var openingRange marketdata.OpeningRange
		if err := json.Unmarshal([]byte(rangeValues[i]), &openingRange); err != nil {
			return nil, fmt.Errorf("decode opening range %s: %w", date, err)
		}
		var series marketdata.Series
		if err := json.Unmarshal([]byte(seriesValues[i]), &series); err != nil {
			return nil, fmt.Errorf("decode series %s: %w", date, err)
		}

		byDay[date] = engine.SimulateDay(params, openingRange.High, openingRange.Low, series)
	}
	return byDay, nil
}
