// Package dispatcher expands the sweep grid into queue messages.
package dispatcher

import (
	"context"
	"fmt"
	"log"
	"math"

	"openrange-backtest/config"
	"openrange-backtest/engine"
	"openrange-backtest/tasks"
)

// Dispatcher enqueues one task per sweep point.
type Dispatcher struct {
	queue    *tasks.Queue
	taskName string
	grid     config.GridConfig
}

// New creates a dispatcher for the given queue and grid.
func New(queue *tasks.Queue, taskName string, grid config.GridConfig) *Dispatcher {
	return &Dispatcher{queue: queue, taskName: taskName, grid: grid}
}

// EnumerateGrid expands the four axes into their Cartesian product. The
// float axes are walked with integer counters and a multiply so repeated
// addition cannot accumulate drift; values are rounded to cents.
func EnumerateGrid(grid config.GridConfig) []engine.StrategyParams {
	var points []engine.StrategyParams

	for li := 0; ; li++ {
		limitDistance := grid.LimitDistanceStart + float64(li)*grid.LimitDistanceStep
		if limitDistance >= grid.LimitDistanceEnd {
			break
		}
		limitDistance = round2(limitDistance)

		for stopCount := grid.StopCountLimitStart; stopCount < grid.StopCountLimitEnd; stopCount += grid.StopCountLimitStep {
			for cooloff := grid.StopCooloffStart; cooloff < grid.StopCooloffEnd; cooloff += grid.StopCooloffStep {
				for si := 0; ; si++ {
					stopDistance := grid.StopDistanceStart + float64(si)*grid.StopDistanceStep
					if stopDistance >= grid.StopDistanceEnd {
						break
					}
					points = append(points, engine.StrategyParams{
						StopDistance:      round2(stopDistance),
						StopCountLimit:    stopCount,
						StopCooloffPeriod: cooloff,
						LimitDistance:     limitDistance,
					})
				}
			}
		}
	}
	return points
}

// Dispatch pushes the full grid onto the queue and returns how many tasks
// went out. A broker failure halts the dispatch.
func (d *Dispatcher) Dispatch(ctx context.Context) (int, error) {
	points := EnumerateGrid(d.grid)

	messages := make([]tasks.Message, 0, len(points))
	for _, params := range points {
		msg, err := tasks.NewMessage(d.taskName, d.queue.Name(), nil, params)
		if err != nil {
			return 0, fmt.Errorf("build task message: %w", err)
		}
		messages = append(messages, msg)
	}

	if err := d.queue.Push(ctx, messages); err != nil {
		return 0, err
	}

	log.Printf("Dispatched %d sweep tasks to queue %s", len(messages), d.queue.Name())
	return len(messages), nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
