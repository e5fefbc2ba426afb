package http

import (
	"context"
	"net/http"
	"time"

	"openmetric/internal/core"
	"openmetric/internal/log"
)

// MetricsPage is the JSON body of GET /api/metrics.
type MetricsPage struct {
	Dataset     string              `json:"dataset"`
	Window      string              `json:"window"`
	Page        int                 `json:"page"`
	PageSize    int                 `json:"page_size"`
	TotalMonths int                 `json:"total_months"`
	TotalPages  int                 `json:"total_pages"`
	Metrics     core.MonthlyMetrics `json:"metrics"`
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady loads the dataset once; the service is ready only when its
// source is readable and well-formed.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.readyTimeout)
	defer cancel()

	checks := map[string]string{"templates": "ok", "source": "ok"}
	status, httpStatus := "ready", http.StatusOK

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	}
	if err := s.svc.Ready(ctx); err != nil {
		checks["source"] = "failed: " + err.Error()
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	}

	NewResponse().Status(httpStatus).JSON(map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

// handleAPIMetrics serves one page of the computed series as JSON.
func (s *Server) handleAPIMetrics(w http.ResponseWriter, r *http.Request) {
	q, err := ParseMetricsQuery(r.URL.Query(), s.pageSize)
	if err != nil {
		log.FromContext(r.Context()).DebugContext(r.Context(), "Rejected metrics query", log.FieldError, err)
		ErrorResponse(err).Write(w)
		return
	}

	res, err := s.svc.Compute(r.Context(), q.Window)
	if err != nil {
		s.structured.LogError(r.Context(), "Metrics request failed", err, log.OpCompute,
			log.NewFields().WithRequestID(requestID(r)))
		ErrorResponse(err).Write(w)
		return
	}

	NewResponse().JSON(MetricsPage{
		Dataset:     res.Dataset,
		Window:      q.Window.String(),
		Page:        q.Page,
		PageSize:    q.PageSize,
		TotalMonths: res.Metrics.Len(),
		TotalPages:  res.Metrics.Pages(q.PageSize),
		Metrics:     res.Metrics.Page(q.Page, q.PageSize),
	}).Write(w)
}
