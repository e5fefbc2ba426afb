package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	EventPayment      EventType = "payment"
	EventExpense      EventType = "expense"
	EventCancellation EventType = "cancellation"
)

// MonthLayout is the time layout of a MonthKey.
const MonthLayout = "2006-01"

type (
	EventType string

	// MonthKey is a canonical "YYYY-MM" month identifier in UTC.
	MonthKey string

	Event struct {
		Type        EventType `json:"event_type"`
		CustomerID  *int64    `json:"customer_id"`
		Amount      *float64  `json:"amount"`
		Description *string   `json:"description"`
		Timestamp   string    `json:"timestamp"`
	}

	// RetentionCohort tracks the customers acquired in one month and how many
	// of them were still active in each subsequent period.
	RetentionCohort struct {
		Acquired uint32   `json:"acquired"`
		Active   []uint32 `json:"active"`
	}

	CohortTable map[MonthKey]RetentionCohort

	// Dataset is one immutable snapshot of events and cohorts, loaded fresh
	// for every computation.
	Dataset struct {
		Name    string
		Events  []Event
		Cohorts CohortTable
	}
)

var (
	ErrEmptyEventType = errors.New("empty event type")
	ErrEmptyTimestamp = errors.New("empty timestamp")
	ErrInvalidMonth   = errors.New("invalid month key")
)

// Known reports whether the event type takes part in metric calculations.
// Unknown types are stored as-is and skipped by every calculator.
func (t EventType) Known() bool {
	switch t {
	case EventPayment, EventExpense, EventCancellation:
		return true
	default:
		return false
	}
}

func (t EventType) String() string {
	return string(t)
}

// AmountOrZero returns the event amount, treating an absent amount as 0.
func (e Event) AmountOrZero() float64 {
	if e.Amount == nil {
		return 0
	}
	return *e.Amount
}

// Time parses the event timestamp as RFC 3339 and converts it to UTC.
func (e Event) Time() (time.Time, error) {
	return ParseTimestamp(e.Timestamp)
}

// Month returns the UTC month bucket of the event.
func (e Event) Month() (MonthKey, error) {
	t, err := e.Time()
	if err != nil {
		return "", err
	}
	return MonthKeyOf(t), nil
}

func (e Event) Validate() error {
	if strings.TrimSpace(string(e.Type)) == "" {
		return fmt.Errorf("%w: %w", ErrMalformedRecord, ErrEmptyEventType)
	}
	if _, err := e.Time(); err != nil {
		return err
	}
	return nil
}

// ParseTimestamp parses an ISO-8601 / RFC 3339 timestamp. Fractional seconds
// and numeric offsets are accepted; the result is in UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: %w", ErrMalformedRecord, ErrEmptyTimestamp)
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: timestamp %q: %v", ErrMalformedRecord, s, err)
	}
	return t.UTC(), nil
}

// MonthKeyOf truncates t (converted to UTC) to its "YYYY-MM" month.
func MonthKeyOf(t time.Time) MonthKey {
	return MonthKey(t.UTC().Format(MonthLayout))
}

// ParseMonthKey validates a "YYYY-MM" string.
func ParseMonthKey(s string) (MonthKey, error) {
	s = strings.TrimSpace(s)
	if _, err := time.Parse(MonthLayout, s); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidMonth, s)
	}
	return MonthKey(s), nil
}

func (m MonthKey) String() string {
	return string(m)
}

// ActiveTotal sums the active counts over every tracked period.
func (c RetentionCohort) ActiveTotal() uint64 {
	var total uint64
	for _, n := range c.Active {
		total += uint64(n)
	}
	return total
}

// Clone returns a deep copy so callers can't mutate a shared snapshot.
func (t CohortTable) Clone() CohortTable {
	out := make(CohortTable, len(t))
	for k, v := range t {
		v.Active = append([]uint32(nil), v.Active...)
		out[k] = v
	}
	return out
}
