// Package tasks implements the wire protocol of the existing worker
// runtime: queue messages are pushed onto Redis lists in the exact JSON
// shape the runtime expects, and results are written to its
// celery-task-meta result backend keys.
package tasks

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
)

// Message is the fixed queue message format (celery 5.4.0 protocol 2).
// Field names and the base64 encoding of the body triple are external
// contract; changing them orphans every message on the wire.
type Message struct {
	Body            string     `json:"body"`
	ContentEncoding string     `json:"content-encoding"`
	ContentType     string     `json:"content-type"`
	Headers         Headers    `json:"headers"`
	Properties      Properties `json:"properties"`
}

// Headers carries task routing and bookkeeping metadata.
type Headers struct {
	Lang                string                 `json:"lang"`
	Task                string                 `json:"task"`
	ID                  string                 `json:"id"`
	Shadow              *string                `json:"shadow"`
	ETA                 *string                `json:"eta"`
	Expires             *string                `json:"expires"`
	Group               *string                `json:"group"`
	GroupIndex          *int                   `json:"group_index"`
	Retries             int                    `json:"retries"`
	Timelimit           [2]*int                `json:"timelimit"`
	RootID              string                 `json:"root_id"`
	ParentID            *string                `json:"parent_id"`
	ArgsRepr            string                 `json:"argsrepr"`
	KwargsRepr          string                 `json:"kwargsrepr"`
	Origin              string                 `json:"origin"`
	IgnoreResult        bool                   `json:"ignore_result"`
	ReplacedTaskNesting int                    `json:"replaced_task_nesting"`
	StampedHeaders      *string                `json:"stamped_headers"`
	Stamps              map[string]interface{} `json:"stamps"`
}

// Properties carries broker delivery metadata.
type Properties struct {
	CorrelationID string       `json:"correlation_id"`
	ReplyTo       string       `json:"reply_to"`
	DeliveryMode  int          `json:"delivery_mode"`
	DeliveryInfo  DeliveryInfo `json:"delivery_info"`
	Priority      int          `json:"priority"`
	BodyEncoding  string       `json:"body_encoding"`
	DeliveryTag   string       `json:"delivery_tag"`
}

// DeliveryInfo names the target queue.
type DeliveryInfo struct {
	Exchange   string `json:"exchange"`
	RoutingKey string `json:"routing_key"`
}

// NewMessage builds a queue message for one task invocation. args is
// usually empty; kwargs carries the strategy parameters.
func NewMessage(taskName, queue string, args []interface{}, kwargs interface{}) (Message, error) {
	if args == nil {
		args = []interface{}{}
	}
	if kwargs == nil {
		kwargs = map[string]interface{}{}
	}

	bodyTriple, err := json.Marshal([]interface{}{args, kwargs, map[string]interface{}{}})
	if err != nil {
		return Message{}, fmt.Errorf("encode task body: %w", err)
	}

	// argsrepr/kwargsrepr hold JSON here where the runtime's own producers
	// emit Python repr. The runtime never parses these fields; only the
	// base64 body triple is decoded.
	argsRepr, err := json.Marshal(args)
	if err != nil {
		return Message{}, err
	}
	kwargsRepr, err := json.Marshal(kwargs)
	if err != nil {
		return Message{}, err
	}

	taskID := uuid.NewString()
	hostname, _ := os.Hostname()

	return Message{
		Body:            base64.StdEncoding.EncodeToString(bodyTriple),
		ContentEncoding: "utf-8",
		ContentType:     "application/json",
		Headers: Headers{
			Lang:       "py",
			Task:       taskName,
			ID:         taskID,
			Retries:    0,
			RootID:     taskID,
			ArgsRepr:   string(argsRepr),
			KwargsRepr: string(kwargsRepr),
			Origin:     fmt.Sprintf("%d@%s", os.Getpid(), hostname),
			Stamps:     map[string]interface{}{},
		},
		Properties: Properties{
			CorrelationID: taskID,
			ReplyTo:       uuid.NewString(),
			DeliveryMode:  2, // persistent
			DeliveryInfo: DeliveryInfo{
				Exchange:   "",
				RoutingKey: queue,
			},
			Priority:     0,
			BodyEncoding: "base64",
			DeliveryTag:  uuid.NewString(),
		},
	}, nil
}

// ParseMessage decodes a raw queue payload.
func ParseMessage(raw string) (Message, error) {
	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return Message{}, fmt.Errorf("decode queue message: %w", err)
	}
	return msg, nil
}

// DecodeKwargs extracts the kwargs element of the base64 body triple into
// dest.
func (m Message) DecodeKwargs(dest interface{}) error {
	bodyTriple, err := base64.StdEncoding.DecodeString(m.Body)
	if err != nil {
		return fmt.Errorf("decode task body: %w", err)
	}
	var triple [3]json.RawMessage
	if err := json.Unmarshal(bodyTriple, &triple); err != nil {
		return fmt.Errorf("decode body triple: %w", err)
	}
	if err := json.Unmarshal(triple[1], dest); err != nil {
		return fmt.Errorf("decode task kwargs: %w", err)
	}
	return nil
}
