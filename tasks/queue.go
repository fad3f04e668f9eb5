package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"openrange-backtest/cache"
)

// pushPipelineSize bounds how many queue messages ride in a single round
// trip to the broker.
const pushPipelineSize = 1000

// ResultKeyPrefix is the worker runtime's result backend namespace.
const ResultKeyPrefix = "celery-task-meta-"

// Task completion states, as the runtime spells them.
const (
	StatusSuccess = "SUCCESS"
	StatusFailure = "FAILURE"
)

// Queue pushes and pops wire messages on one broker list.
type Queue struct {
	broker *cache.RedisClient
	name   string
}

// NewQueue wraps a broker connection and a queue name.
func NewQueue(broker *cache.RedisClient, name string) *Queue {
	return &Queue{broker: broker, name: name}
}

// Name returns the queue's routing key.
func (q *Queue) Name() string {
	return q.name
}

// Push enqueues messages, flushing in pipelined batches to keep the
// broker's per-operation cost bounded.
func (q *Queue) Push(ctx context.Context, messages []Message) error {
	for start := 0; start < len(messages); start += pushPipelineSize {
		end := start + pushPipelineSize
		if end > len(messages) {
			end = len(messages)
		}

		pipe := q.broker.Client().Pipeline()
		for _, msg := range messages[start:end] {
			payload, err := json.Marshal(msg)
			if err != nil {
				return fmt.Errorf("encode queue message: %w", err)
			}
			pipe.LPush(ctx, q.name, payload)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("push batch to %s: %w", q.name, err)
		}
	}
	return nil
}

// Pop blocks for up to timeout waiting for the next message. Returns a
// redis.Nil error (see cache.IsNil) when the queue stayed empty.
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (Message, error) {
	raw, err := q.broker.BRPop(ctx, timeout, q.name)
	if err != nil {
		return Message{}, err
	}
	return ParseMessage(raw)
}

// Len reports the queue depth.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.broker.QueueLen(ctx, q.name)
}

// TaskMeta is the result backend record for one completed task.
type TaskMeta struct {
	Status    string          `json:"status"`
	Result    json.RawMessage `json:"result"`
	Traceback *string         `json:"traceback"`
	Children  []interface{}   `json:"children"`
	DateDone  string          `json:"date_done"`
	TaskID    string          `json:"task_id"`
}

// StoreResult writes a task's completion record under its result backend
// key.
func StoreResult(ctx context.Context, broker *cache.RedisClient, taskID, status string, result interface{}) error {
	encoded, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode task result: %w", err)
	}
	meta := TaskMeta{
		Status:   status,
		Result:   encoded,
		Children: []interface{}{},
		DateDone: time.Now().UTC().Format("2006-01-02T15:04:05.000000"),
		TaskID:   taskID,
	}
	return broker.SetJSON(ctx, ResultKeyPrefix+taskID, meta)
}
