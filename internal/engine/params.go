// Package engine turns a dataset snapshot into the monthly metrics series.
//
// The pipeline is FilterWindow -> GroupByMonth -> calculators -> Assemble.
// Every stage is a pure function of its inputs; nothing here caches, locks or
// touches storage.
package engine

import (
	"errors"
	"fmt"
)

// Default business constants.
const (
	DefaultChurnPerCancellation = 12000.0
	DefaultCOGSRatio            = 0.5
	DefaultDaysPerMonth         = 30
)

// Params holds the business constants used by the calculators.
type Params struct {
	// ChurnPerCancellation is the MRR lost for every cancellation event.
	ChurnPerCancellation float64
	// COGSRatio is the share of expenses counted as cost of goods sold.
	COGSRatio float64
	// DaysPerMonth approximates a month when computing the window cutoff.
	DaysPerMonth int
}

func DefaultParams() Params {
	return Params{
		ChurnPerCancellation: DefaultChurnPerCancellation,
		COGSRatio:            DefaultCOGSRatio,
		DaysPerMonth:         DefaultDaysPerMonth,
	}
}

func (p Params) Validate() error {
	var errs []error
	if p.ChurnPerCancellation < 0 {
		errs = append(errs, fmt.Errorf("churn per cancellation must be >= 0, got %v", p.ChurnPerCancellation))
	}
	if p.COGSRatio < 0 || p.COGSRatio > 1 {
		errs = append(errs, fmt.Errorf("cogs ratio must be within [0,1], got %v", p.COGSRatio))
	}
	if p.DaysPerMonth <= 0 {
		errs = append(errs, fmt.Errorf("days per month must be positive, got %d", p.DaysPerMonth))
	}
	return errors.Join(errs...)
}
