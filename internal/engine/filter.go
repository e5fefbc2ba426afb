package engine

import (
	"math"
	"time"

	"openmetric/internal/core"
)

// maxCutoffDays is the longest look-back a time.Duration can hold.
const maxCutoffDays = int(math.MaxInt64 / int64(24*time.Hour))

// Cutoff returns the instant before which events fall outside w. The month
// length is approximated as p.DaysPerMonth days. It reports false when w is
// AllTime or reaches further back than maxCutoffDays, and nothing is filtered.
func Cutoff(now time.Time, w Window, p Params) (time.Time, bool) {
	if w.IsAllTime() {
		return time.Time{}, false
	}
	if p.DaysPerMonth > 0 && w.Months() > maxCutoffDays/p.DaysPerMonth {
		return time.Time{}, false
	}
	days := w.Months() * p.DaysPerMonth
	return now.UTC().Add(-time.Duration(days) * 24 * time.Hour), true
}

// FilterWindow keeps the events strictly after the window cutoff. Every
// timestamp is parsed, even for AllTime, so a malformed record fails the whole
// call instead of surfacing later in one bucket.
func FilterWindow(events []core.Event, w Window, now time.Time, p Params) ([]core.Event, error) {
	cutoff, bounded := Cutoff(now, w, p)
	out := make([]core.Event, 0, len(events))
	for i, ev := range events {
		ts, err := ev.Time()
		if err != nil {
			return nil, wrapRecord(i, err)
		}
		if bounded && !ts.After(cutoff) {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}
