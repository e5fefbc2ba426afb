package engine

import (
	"fmt"
	"sort"

	"openmetric/internal/core"
)

// Buckets groups events by UTC month. Keys is sorted ascending and holds
// exactly the months present in Events.
type Buckets struct {
	Keys   []core.MonthKey
	Events map[core.MonthKey][]core.Event
}

// GroupByMonth buckets events by the UTC month of their timestamp. Months
// without events are never created.
func GroupByMonth(events []core.Event) (Buckets, error) {
	b := Buckets{
		Keys:   make([]core.MonthKey, 0),
		Events: make(map[core.MonthKey][]core.Event),
	}
	for i, ev := range events {
		key, err := ev.Month()
		if err != nil {
			return Buckets{}, wrapRecord(i, err)
		}
		if _, ok := b.Events[key]; !ok {
			b.Keys = append(b.Keys, key)
		}
		b.Events[key] = append(b.Events[key], ev)
	}
	// "YYYY-MM" sorts chronologically.
	sort.Slice(b.Keys, func(i, j int) bool { return b.Keys[i] < b.Keys[j] })
	return b, nil
}

func (b Buckets) Len() int {
	return len(b.Keys)
}

func wrapRecord(i int, err error) error {
	return fmt.Errorf("event %d: %w", i, err)
}
