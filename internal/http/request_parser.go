// Package http provides HTTP server and handler implementations.
//
// This file implements parsing and validation of the metrics query
// parameters shared by the dashboard and the JSON API.

package http

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"openmetric/internal/core"
	"openmetric/internal/engine"
)

// Query parameter names.
const (
	ParamTimeWindow = "time_window"
	ParamPage       = "page"
	ParamPageSize   = "page_size"
)

// maxPageSize caps page_size.
const maxPageSize = 1200

// WindowOptions are the windows offered by the dashboard selector.
var WindowOptions = []string{engine.AllTimeToken, "3", "6", "12"}

// MetricsQuery holds the parsed query of a metrics request.
type MetricsQuery struct {
	Window   engine.Window
	Page     int
	PageSize int
}

// ParseMetricsQuery reads time_window, page and page_size. Missing values
// fall back to all time, page 0 and defaultPageSize. Present but unusable
// values are rejected with core.ErrInvalidRequest.
func ParseMetricsQuery(query url.Values, defaultPageSize int) (MetricsQuery, error) {
	q := MetricsQuery{Window: engine.AllTime, PageSize: defaultPageSize}

	if v := strings.TrimSpace(query.Get(ParamTimeWindow)); v != "" {
		w, err := engine.ParseWindow(v)
		if err != nil {
			return MetricsQuery{}, err
		}
		q.Window = w
	}

	page, err := parseNonNegative(query, ParamPage, 0)
	if err != nil {
		return MetricsQuery{}, err
	}
	q.Page = page

	size, err := parseNonNegative(query, ParamPageSize, defaultPageSize)
	if err != nil {
		return MetricsQuery{}, err
	}
	if size == 0 || size > maxPageSize {
		return MetricsQuery{}, fmt.Errorf("%w: %s must be between 1 and %d", core.ErrInvalidRequest, ParamPageSize, maxPageSize)
	}
	q.PageSize = size

	return q, nil
}

func parseNonNegative(query url.Values, key string, def int) (int, error) {
	v := strings.TrimSpace(query.Get(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer, got %q", core.ErrInvalidRequest, key, v)
	}
	return n, nil
}

// Values encodes q back to query parameters, used for pagination links.
func (q MetricsQuery) Values() url.Values {
	v := url.Values{}
	v.Set(ParamTimeWindow, q.Window.String())
	v.Set(ParamPage, strconv.Itoa(q.Page))
	v.Set(ParamPageSize, strconv.Itoa(q.PageSize))
	return v
}

// WithPage returns a copy of q pointing at another page.
func (q MetricsQuery) WithPage(page int) MetricsQuery {
	q.Page = page
	return q
}
