package engine

import (
	"fmt"
	"strconv"
	"strings"

	"openmetric/internal/core"
)

// AllTimeToken is the textual sentinel for an unbounded window.
const AllTimeToken = "all"

// Window is a trailing look-back period in months. The zero value is AllTime.
type Window struct {
	months int
}

// AllTime disables filtering.
var AllTime = Window{}

// Months returns a window of n months. n must be positive.
func Months(n int) (Window, error) {
	if n <= 0 {
		return Window{}, fmt.Errorf("%w: window must be a positive number of months, got %d", core.ErrInvalidRequest, n)
	}
	return Window{months: n}, nil
}

// ParseWindow accepts "all" (or an empty string) and positive integers.
func ParseWindow(s string) (Window, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" || s == AllTimeToken {
		return AllTime, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return Window{}, fmt.Errorf("%w: invalid time window %q", core.ErrInvalidRequest, s)
	}
	return Months(n)
}

func (w Window) IsAllTime() bool {
	return w.months == 0
}

// Months returns the month count, 0 for AllTime.
func (w Window) Months() int {
	return w.months
}

func (w Window) String() string {
	if w.IsAllTime() {
		return AllTimeToken
	}
	return strconv.Itoa(w.months)
}
