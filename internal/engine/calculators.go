package engine

import (
	"math"

	"openmetric/internal/core"
)

// epsilon is the float64 machine epsilon.
const epsilon = 0x1p-52

// Totals are the per-type sums of one month bucket.
type Totals struct {
	Revenue       float64
	Expenses      float64
	Cancellations int
}

// Sum folds a bucket into Totals. Unknown event types are skipped and a
// missing amount counts as 0.
func Sum(events []core.Event) Totals {
	var t Totals
	for _, ev := range events {
		switch ev.Type {
		case core.EventPayment:
			t.Revenue += ev.AmountOrZero()
		case core.EventExpense:
			t.Expenses += ev.AmountOrZero()
		case core.EventCancellation:
			t.Cancellations++
		default:
		}
	}
	return t
}

func Revenue(events []core.Event) float64 {
	return Sum(events).Revenue
}

// BurnRate is expenses minus revenue; negative means net profit.
func BurnRate(t Totals) float64 {
	return t.Expenses - t.Revenue
}

// Runway is revenue divided by expenses, +Inf when there are no expenses.
func Runway(t Totals) float64 {
	if t.Expenses <= 0 {
		return math.Inf(1)
	}
	return t.Revenue / t.Expenses
}

// Retention is the cohort's summed active count over acquired, as a
// percentage. A missing cohort or zero acquisitions yield 0.
func Retention(month core.MonthKey, cohorts core.CohortTable) float64 {
	c, ok := cohorts[month]
	if !ok || c.Acquired == 0 {
		return 0
	}
	return float64(c.ActiveTotal()) / float64(c.Acquired) * 100
}

// NetDollarRetention models ending MRR as starting MRR minus a fixed amount
// per cancellation. It is 100 when starting MRR is zero.
func NetDollarRetention(t Totals, p Params) float64 {
	start := t.Revenue
	if math.Abs(start) < epsilon {
		return 100
	}
	end := start - p.ChurnPerCancellation*float64(t.Cancellations)
	return end / start * 100
}

// GrossMargin counts a fixed share of expenses as COGS. It is 0 when there is
// no revenue.
func GrossMargin(t Totals, p Params) float64 {
	if t.Revenue <= 0 {
		return 0
	}
	cogs := t.Expenses * p.COGSRatio
	return (t.Revenue - cogs) / t.Revenue * 100
}

// Snapshot runs every calculator over one month bucket.
func Snapshot(month core.MonthKey, events []core.Event, cohorts core.CohortTable, p Params) core.MonthSnapshot {
	t := Sum(events)
	return core.MonthSnapshot{
		Month:              month,
		Revenue:            t.Revenue,
		BurnRate:           BurnRate(t),
		Runway:             Runway(t),
		Retention:          Retention(month, cohorts),
		NetDollarRetention: NetDollarRetention(t, p),
		GrossMargin:        GrossMargin(t, p),
	}
}
