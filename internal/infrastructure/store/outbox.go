package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/stock-reservation/internal/domain/aggregate"
)

// Event is the envelope written as the payload of every outbox row.
// ID is the event id and serves as the consumer idempotency key.
type Event struct {
	ID            string          `json:"id"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	EventType     string          `json:"event_type"`
	Data          json.RawMessage `json:"data"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
}

// OutboxMessage is one row of the outbox table.
type OutboxMessage struct {
	ID            int64
	Topic         string
	CorrelationID string
	Payload       []byte
	Sent          bool
	Processing    bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TopicFor returns the stable topic name of an aggregate type.
func TopicFor(aggregateType string) string {
	return aggregateType + "_events"
}

func NewOutboxMessage(aggregateType string, e aggregate.Event) (OutboxMessage, error) {
	h := e.Header()
	data, err := json.Marshal(e)
	if err != nil {
		return OutboxMessage{}, fmt.Errorf("marshal %s: %w", e.EventType(), err)
	}

	payload, err := json.Marshal(Event{
		ID:            h.ID,
		AggregateID:   h.SourceID,
		AggregateType: aggregateType,
		EventType:     e.EventType(),
		Data:          data,
		Timestamp:     h.Timestamp,
		Version:       h.Version,
	})
	if err != nil {
		return OutboxMessage{}, fmt.Errorf("marshal envelope: %w", err)
	}

	return OutboxMessage{
		Topic:         TopicFor(aggregateType),
		CorrelationID: h.SourceID,
		Payload:       payload,
		CreatedAt:     h.Timestamp,
	}, nil
}
