package core

import (
	"fmt"
	"math"
	"strconv"

	json "github.com/goccy/go-json"
)

// Series is one metric sequence, index-aligned with MonthlyMetrics.Months.
// Non-finite values (an unbounded runway) encode as JSON null.
type Series []float64

// MonthlyMetrics is the computed time series. Months is strictly ascending
// and every series has the same length as Months.
type MonthlyMetrics struct {
	Months             []MonthKey `json:"months"`
	Revenue            Series     `json:"revenue"`
	BurnRate           Series     `json:"burn_rate"`
	Runway             Series     `json:"runway"`
	Retention          Series     `json:"retention"`
	NetDollarRetention Series     `json:"net_dollar_retention"`
	GrossMargin        Series     `json:"gross_margin"`
}

// MonthSnapshot is one row of MonthlyMetrics.
type MonthSnapshot struct {
	Month              MonthKey
	Revenue            float64
	BurnRate           float64
	Runway             float64
	Retention          float64
	NetDollarRetention float64
	GrossMargin        float64
}

// NewMonthlyMetrics returns an empty result whose sequences encode as [].
func NewMonthlyMetrics(capacity int) MonthlyMetrics {
	return MonthlyMetrics{
		Months:             make([]MonthKey, 0, capacity),
		Revenue:            make(Series, 0, capacity),
		BurnRate:           make(Series, 0, capacity),
		Runway:             make(Series, 0, capacity),
		Retention:          make(Series, 0, capacity),
		NetDollarRetention: make(Series, 0, capacity),
		GrossMargin:        make(Series, 0, capacity),
	}
}

func (m *MonthlyMetrics) Append(s MonthSnapshot) {
	m.Months = append(m.Months, s.Month)
	m.Revenue = append(m.Revenue, s.Revenue)
	m.BurnRate = append(m.BurnRate, s.BurnRate)
	m.Runway = append(m.Runway, s.Runway)
	m.Retention = append(m.Retention, s.Retention)
	m.NetDollarRetention = append(m.NetDollarRetention, s.NetDollarRetention)
	m.GrossMargin = append(m.GrossMargin, s.GrossMargin)
}

func (m MonthlyMetrics) Len() int {
	return len(m.Months)
}

// At returns the i-th month row. It panics if i is out of range.
func (m MonthlyMetrics) At(i int) MonthSnapshot {
	return MonthSnapshot{
		Month:              m.Months[i],
		Revenue:            m.Revenue[i],
		BurnRate:           m.BurnRate[i],
		Runway:             m.Runway[i],
		Retention:          m.Retention[i],
		NetDollarRetention: m.NetDollarRetention[i],
		GrossMargin:        m.GrossMargin[i],
	}
}

// Latest returns the most recent month, if any.
func (m MonthlyMetrics) Latest() (MonthSnapshot, bool) {
	if m.Len() == 0 {
		return MonthSnapshot{}, false
	}
	return m.At(m.Len() - 1), true
}

// Validate checks the length and ordering invariants.
func (m MonthlyMetrics) Validate() error {
	n := len(m.Months)
	for name, s := range map[string]Series{
		"revenue":              m.Revenue,
		"burn_rate":            m.BurnRate,
		"runway":               m.Runway,
		"retention":            m.Retention,
		"net_dollar_retention": m.NetDollarRetention,
		"gross_margin":         m.GrossMargin,
	} {
		if len(s) != n {
			return fmt.Errorf("series %s has %d values, want %d", name, len(s), n)
		}
	}
	for i := 1; i < n; i++ {
		if m.Months[i-1] >= m.Months[i] {
			return fmt.Errorf("months not strictly ascending at %d: %s >= %s", i, m.Months[i-1], m.Months[i])
		}
	}
	return nil
}

// Page returns the contiguous slice [page*size, page*size+size). A page past
// the end is empty. A size <= 0 returns the whole series.
func (m MonthlyMetrics) Page(page, size int) MonthlyMetrics {
	if size <= 0 || page < 0 {
		return m
	}
	n := m.Len()
	start := n
	if page <= n/size {
		start = page * size
	}
	end := n
	if size < n-start {
		end = start + size
	}
	return MonthlyMetrics{
		Months:             m.Months[start:end:end],
		Revenue:            m.Revenue[start:end:end],
		BurnRate:           m.BurnRate[start:end:end],
		Runway:             m.Runway[start:end:end],
		Retention:          m.Retention[start:end:end],
		NetDollarRetention: m.NetDollarRetention[start:end:end],
		GrossMargin:        m.GrossMargin[start:end:end],
	}
}

// Pages reports how many pages of the given size cover the series.
func (m MonthlyMetrics) Pages(size int) int {
	if size <= 0 || m.Len() == 0 {
		return 1
	}
	return (m.Len() + size - 1) / size
}

func (s Series) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	buf := make([]byte, 0, 2+len(s)*8)
	buf = append(buf, '[')
	for i, v := range s {
		if i > 0 {
			buf = append(buf, ',')
		}
		if math.IsInf(v, 0) || math.IsNaN(v) {
			buf = append(buf, "null"...)
			continue
		}
		buf = strconv.AppendFloat(buf, v, 'g', -1, 64)
	}
	buf = append(buf, ']')
	return buf, nil
}

// UnmarshalJSON reads null entries back as +Inf.
func (s *Series) UnmarshalJSON(data []byte) error {
	var raw []*float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Series, len(raw))
	for i, v := range raw {
		if v == nil {
			out[i] = math.Inf(1)
			continue
		}
		out[i] = *v
	}
	*s = out
	return nil
}
