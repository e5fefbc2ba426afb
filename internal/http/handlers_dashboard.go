package http

import (
	"bytes"
	"net/http"

	"openmetric/internal/core"
	"openmetric/internal/engine"
	"openmetric/internal/log"
)

type windowOption struct {
	Value    string
	Label    string
	Selected bool
}

type dashboardView struct {
	Dataset  string
	Window   string
	Windows  []windowOption
	Latest   core.MonthSnapshot
	HasData  bool
	Rows     []core.MonthSnapshot
	Page     int
	Pages    int
	PageSize int
	PrevURL  string
	NextURL  string
	// StreamURL is empty when live updates are unavailable.
	StreamURL string
}

type errorView struct {
	Status  int
	Title   string
	Message string
}

// handleDashboard renders the headline figures of the latest month and a
// paged table of the series.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if s.templates == nil {
		s.logger.ErrorContext(r.Context(), "Templates not loaded",
			log.FieldPath, r.URL.Path,
			log.FieldErrorType, log.ErrorTypeConfiguration)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	q, err := ParseMetricsQuery(r.URL.Query(), s.pageSize)
	if err != nil {
		s.renderError(w, r, err)
		return
	}

	res, err := s.svc.Compute(r.Context(), q.Window)
	if err != nil {
		s.structured.LogError(r.Context(), "Dashboard computation failed", err, log.OpRender,
			log.NewFields().WithRequestID(requestID(r)))
		s.renderError(w, r, err)
		return
	}

	view := dashboardView{
		Dataset:   res.Dataset,
		Window:    q.Window.String(),
		Windows:   windowOptions(q.Window.String()),
		Page:      q.Page,
		Pages:     res.Metrics.Pages(q.PageSize),
		PageSize:  q.PageSize,
		StreamURL: "/metrics_ws",
	}
	if latest, ok := res.Metrics.Latest(); ok {
		view.Latest, view.HasData = latest, true
	}
	page := res.Metrics.Page(q.Page, q.PageSize)
	for i := 0; i < page.Len(); i++ {
		view.Rows = append(view.Rows, page.At(i))
	}
	if q.Page > 0 {
		view.PrevURL = "/?" + q.WithPage(q.Page-1).Values().Encode()
	}
	if q.Page < view.Pages-1 {
		view.NextURL = "/?" + q.WithPage(q.Page+1).Values().Encode()
	}

	s.render(w, r, http.StatusOK, "dashboard.html", view)
}

func windowOptions(selected string) []windowOption {
	opts := make([]windowOption, 0, len(WindowOptions))
	for _, v := range WindowOptions {
		label := "Last " + v + " months"
		if v == engine.AllTimeToken {
			label = "All time"
		}
		opts = append(opts, windowOption{Value: v, Label: label, Selected: v == selected})
	}
	return opts
}

func (s *Server) renderError(w http.ResponseWriter, r *http.Request, err error) {
	status := PageStatusForError(err)
	title := "Something went wrong"
	if status == http.StatusBadRequest {
		title = "Invalid request"
	}
	s.render(w, r, status, "error.html", errorView{
		Status:  status,
		Title:   title,
		Message: err.Error(),
	})
}

// render buffers the output; nothing is written when the template fails.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.logger.WithComponent(log.ComponentTemplate).ErrorContext(r.Context(), "Template execution failed",
			log.FieldError, err,
			"template", name)
		http.Error(w, "template rendering failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
