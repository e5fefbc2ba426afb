package engine

import (
	"time"

	"openmetric/internal/core"
)

// Assemble runs the calculators for each bucket in key order.
func Assemble(b Buckets, cohorts core.CohortTable, p Params) core.MonthlyMetrics {
	out := core.NewMonthlyMetrics(b.Len())
	for _, month := range b.Keys {
		out.Append(Snapshot(month, b.Events[month], cohorts, p))
	}
	return out
}

// Engine binds Params and a clock to the pipeline.
type Engine struct {
	params Params
	now    func() time.Time
}

type Option func(*Engine)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(p Params, opts ...Option) *Engine {
	e := &Engine{params: p, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Params() Params {
	return e.params
}

// Compute filters, groups and assembles ds for window w. A malformed record
// aborts the computation and no partial result is returned.
func (e *Engine) Compute(ds core.Dataset, w Window) (core.MonthlyMetrics, error) {
	return Compute(ds.Events, ds.Cohorts, w, e.now(), e.params)
}

// Compute is the stateless pipeline.
func Compute(events []core.Event, cohorts core.CohortTable, w Window, now time.Time, p Params) (core.MonthlyMetrics, error) {
	filtered, err := FilterWindow(events, w, now, p)
	if err != nil {
		return core.MonthlyMetrics{}, err
	}
	buckets, err := GroupByMonth(filtered)
	if err != nil {
		return core.MonthlyMetrics{}, err
	}
	return Assemble(buckets, cohorts, p), nil
}
