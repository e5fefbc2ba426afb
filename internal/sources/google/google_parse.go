package google

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"openmetric/internal/core"
)

var eventColumns = []string{"event_type", "customer_id", "amount", "description", "timestamp"}

// parseEvents converts the events tab (header row first) into events. Blank
// rows are skipped; a row with a bad amount or id is a malformed record.
func parseEvents(values [][]interface{}) ([]core.Event, error) {
	events := make([]core.Event, 0, len(values))
	if len(values) == 0 {
		return events, nil
	}
	headers := toStrings(values[0])
	cols := make(map[string]int, len(eventColumns))
	var missing []string
	for _, name := range eventColumns {
		cols[name] = indexOf(headers, name)
	}
	for _, name := range []string{"event_type", "timestamp"} {
		if cols[name] == -1 {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: unexpected events header: missing %s; got headers=%v",
			core.ErrMalformedRecord, strings.Join(missing, ","), headers)
	}

	for i := 1; i < len(values); i++ {
		row := toStrings(values[i])
		if blank(row) {
			continue
		}
		ev := core.Event{
			Type:      core.EventType(safeGet(row, cols["event_type"])),
			Timestamp: safeGet(row, cols["timestamp"]),
		}
		amt, err := core.ParseAmount(safeGet(row, cols["amount"]))
		if err != nil {
			return nil, fmt.Errorf("%w: row %d amount: %v", core.ErrMalformedRecord, i+1, err)
		}
		ev.Amount = amt
		if s := safeGet(row, cols["customer_id"]); s != "" {
			id, err := parseID(s)
			if err != nil {
				return nil, fmt.Errorf("%w: row %d customer_id %q", core.ErrMalformedRecord, i+1, s)
			}
			ev.CustomerID = &id
		}
		if s := safeGet(row, cols["description"]); s != "" {
			ev.Description = &s
		}
		events = append(events, ev)
	}
	return events, nil
}

// parseCohorts reads month | acquired | period 1 | period 2 | ... rows. The
// header row is optional and recognised by a non-month first cell.
func parseCohorts(values [][]interface{}) (core.CohortTable, error) {
	table := core.CohortTable{}
	for i, raw := range values {
		row := toStrings(raw)
		if blank(row) {
			continue
		}
		month, err := core.ParseMonthKey(safeGet(row, 0))
		if err != nil {
			if i == 0 {
				continue
			}
			return nil, fmt.Errorf("%w: row %d: %v", core.ErrMalformedRecord, i+1, err)
		}
		acquired, err := parseCount(safeGet(row, 1))
		if err != nil {
			return nil, fmt.Errorf("%w: row %d acquired: %v", core.ErrMalformedRecord, i+1, err)
		}
		c := core.RetentionCohort{Acquired: acquired, Active: make([]uint32, 0, len(row))}
		for j := 2; j < len(row); j++ {
			if row[j] == "" {
				continue
			}
			n, err := parseCount(row[j])
			if err != nil {
				return nil, fmt.Errorf("%w: row %d period %d: %v", core.ErrMalformedRecord, i+1, j-1, err)
			}
			c.Active = append(c.Active, n)
		}
		table[month] = c
	}
	return table, nil
}

func eventRow(e core.Event) []any {
	row := []any{string(e.Type), "", "", "", e.Timestamp}
	if e.CustomerID != nil {
		row[1] = *e.CustomerID
	}
	if e.Amount != nil {
		row[2] = *e.Amount
	}
	if e.Description != nil {
		row[3] = *e.Description
	}
	return row
}

// parseID accepts integers and integral floats, since UNFORMATTED_VALUE
// returns numbers as float64.
func parseID(s string) (int64, error) {
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		return id, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	return int64(f), nil
}

func parseCount(s string) (uint32, error) {
	if s == "" {
		return 0, nil
	}
	id, err := parseID(s)
	if err != nil {
		return 0, err
	}
	if id < 0 || id > math.MaxUint32 {
		return 0, fmt.Errorf("out of range: %d", id)
	}
	return uint32(id), nil
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		switch x := v.(type) {
		case float64:
			out[i] = strconv.FormatFloat(x, 'f', -1, 64)
		default:
			out[i] = strings.TrimSpace(fmt.Sprint(v))
		}
	}
	return out
}

func indexOf(arr []string, target string) int {
	for i, v := range arr {
		if strings.EqualFold(strings.TrimSpace(v), target) {
			return i
		}
	}
	return -1
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}

func blank(row []string) bool {
	for _, v := range row {
		if v != "" {
			return false
		}
	}
	return true
}
