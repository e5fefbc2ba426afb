package amqp

import (
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"openmetric/internal/core"
)

// MessageKind selects what an ingest message carries.
type MessageKind string

const (
	KindEvent  MessageKind = "event"
	KindCohort MessageKind = "cohort"
)

var errUnknownKind = errors.New("unknown message kind")

// IngestMessage carries either one event or one month of retention data.
type IngestMessage struct {
	Kind      MessageKind           `json:"kind"`
	Event     *core.Event           `json:"event,omitempty"`
	Month     core.MonthKey         `json:"month,omitempty"`
	Cohort    *core.RetentionCohort `json:"cohort,omitempty"`
	Timestamp time.Time             `json:"timestamp"`
}

func NewEventMessage(e core.Event) *IngestMessage {
	return &IngestMessage{
		Kind:      KindEvent,
		Event:     &e,
		Timestamp: time.Now(),
	}
}

func NewCohortMessage(month core.MonthKey, c core.RetentionCohort) *IngestMessage {
	return &IngestMessage{
		Kind:      KindCohort,
		Month:     month,
		Cohort:    &c,
		Timestamp: time.Now(),
	}
}

// Validate reports a malformed message. Every error wraps core.ErrMalformedRecord.
func (m *IngestMessage) Validate() error {
	switch m.Kind {
	case KindEvent:
		if m.Event == nil {
			return fmt.Errorf("%w: event message without event", core.ErrMalformedRecord)
		}
		return m.Event.Validate()
	case KindCohort:
		if m.Cohort == nil {
			return fmt.Errorf("%w: cohort message without cohort", core.ErrMalformedRecord)
		}
		if _, err := core.ParseMonthKey(string(m.Month)); err != nil {
			return fmt.Errorf("%w: %w", core.ErrMalformedRecord, err)
		}
		return nil
	default:
		return fmt.Errorf("%w: %w %q", core.ErrMalformedRecord, errUnknownKind, m.Kind)
	}
}

// ToJSON converts the message to JSON bytes
func (m *IngestMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// IngestMessageFromJSON decodes and validates a message.
func IngestMessageFromJSON(data []byte) (*IngestMessage, error) {
	var msg IngestMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrMalformedRecord, err)
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
