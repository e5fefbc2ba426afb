package core

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

var ErrInvalidAmount = errors.New("invalid amount")

// ParseAmount converts a spreadsheet or CLI cell to an event amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators, an
// optional sign and thousands separators written as spaces or apostrophes.
// An empty cell means the amount is absent and returns (nil, nil).
//
// Examples:
//
//	ParseAmount("12.34")   -> 12.34
//	ParseAmount("1 200,5") -> 1200.5
//	ParseAmount("")        -> nil
func ParseAmount(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	s = strings.NewReplacer(" ", "", "'", "", "\u00a0", "").Replace(s)

	// With both separators present the last one is the decimal point.
	if strings.Contains(s, ",") && strings.Contains(s, ".") {
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	}
	s = strings.ReplaceAll(s, ",", ".")

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, ErrInvalidAmount
	}
	return &v, nil
}

// FormatAmount renders a value with two decimals, or "∞" for an unbounded
// runway.
func FormatAmount(v float64) string {
	if math.IsInf(v, 1) {
		return "∞"
	}
	if math.IsInf(v, -1) {
		return "-∞"
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}
