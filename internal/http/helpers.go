package http

import (
	"html/template"
	"math"
	"net/http"
	"strings"

	"openmetric/internal/core"
	"openmetric/internal/middleware/trace"
)

// templateFuncs are available to every dashboard template.
var templateFuncs = template.FuncMap{
	"money":   formatMoney,
	"percent": formatPercent,
	"ratio":   core.FormatAmount,
	"inc":     func(i int) int { return i + 1 },
	"signClass": func(v float64) string {
		switch {
		case v > 0:
			return "value--negative"
		case v < 0:
			return "value--positive"
		default:
			return ""
		}
	},
}

// formatMoney formats an amount with two decimals and thousands separators,
// e.g. "-1,234.50".
func formatMoney(v float64) string {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return core.FormatAmount(v)
	}
	s := core.FormatAmount(math.Abs(v))
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	if v < 0 && s != "0.00" {
		b.WriteByte('-')
	}
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}

// formatPercent formats a percentage with one decimal.
func formatPercent(v float64) string {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return core.FormatAmount(v)
	}
	s := core.FormatAmount(v)
	return s[:len(s)-1] + "%"
}

// routeLabel maps a request to a bounded Prometheus route label.
func routeLabel(r *http.Request) string {
	switch p := r.URL.Path; {
	case p == "/", p == "/api/metrics", p == "/metrics_ws", p == "/healthz", p == "/readyz", p == "/metrics":
		return p
	case strings.HasPrefix(p, "/static/"):
		return "/static/"
	default:
		return "other"
	}
}

func requestID(r *http.Request) string {
	return trace.GetRequestID(r.Context())
}
