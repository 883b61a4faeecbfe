package models

import (
	"encoding/json"
	"fmt"
	"time"

	id "kyb/pkg/domain"
)

// Event is one row of an outbox table.
//
// Invariant: ProcessedAt == nil means delivery has not been confirmed. The
// event may already have been published (at-least-once), but a non-nil
// ProcessedAt always follows a publish acknowledgment.
type Event struct {
	ID            id.EventID
	AggregateID   string
	AggregateType string
	EventType     string
	Payload       json.RawMessage
	OccurredAt    time.Time
	ProcessedAt   *time.Time
}

// NewEvent marshals payload into an unprocessed outbox event.
func NewEvent(eventID id.EventID, aggregateType, aggregateID, eventType string, payload any, occurredAt time.Time) (*Event, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	if eventID.IsNil() {
		eventID = id.NewEventID()
	}
	return &Event{
		ID:            eventID,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Payload:       body,
		OccurredAt:    occurredAt.UTC(),
	}, nil
}

func (e *Event) IsProcessed() bool {
	return e.ProcessedAt != nil
}

// Clone copies the event so stores never share mutable state with callers.
func (e *Event) Clone() *Event {
	c := *e
	c.Payload = append(json.RawMessage(nil), e.Payload...)
	if e.ProcessedAt != nil {
		t := *e.ProcessedAt
		c.ProcessedAt = &t
	}
	return &c
}
