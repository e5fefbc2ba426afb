package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"openmetric/internal/engine"
	"openmetric/internal/log"
	"openmetric/internal/middleware/ratelimit"
	"openmetric/internal/middleware/security"
	"openmetric/internal/middleware/trace"
	"openmetric/internal/services"
	appweb "openmetric/web"
)

// MetricsQuerier is the read side the handlers need.
type MetricsQuerier interface {
	Compute(ctx context.Context, w engine.Window) (services.Result, error)
	Ready(ctx context.Context) error
}

// Options configures NewServer.
type Options struct {
	// PageSize is the default page_size.
	PageSize int
	// Stream serves GET /metrics_ws. The route is absent when nil.
	Stream http.Handler
	// Limiter throttles the query routes per client. Nil disables it.
	Limiter      *ratelimit.Limiter
	ReadyTimeout time.Duration
	Logger       *log.Logger
}

type Server struct {
	http.Server
	templates    *template.Template
	svc          MetricsQuerier
	pageSize     int
	readyTimeout time.Duration
	detector     *security.Detector
	logger       *log.Logger
	structured   *log.StructuredLogger
	started      time.Time
	shutdownOnce sync.Once
}

// NewServer configures routes, middleware and templates, returning a
// ready-to-run http.Server.
func NewServer(addr string, svc MetricsQuerier, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentHTTP)
	if opts.PageSize <= 0 {
		opts.PageSize = 12
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 10 * time.Second
	}

	mux := http.NewServeMux()
	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
		},
		svc:          svc,
		pageSize:     opts.PageSize,
		readyTimeout: opts.ReadyTimeout,
		detector:     security.NewDetector(logger),
		logger:       logger,
		structured:   log.NewStructuredLogger(logger),
		started:      time.Now(),
	}

	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		logger.WithComponent(log.ComponentTemplate).Warn("Failed parsing templates", log.FieldError, err)
	} else {
		s.templates = t
	}

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	limited := func(h http.Handler) http.Handler {
		if opts.Limiter == nil {
			return h
		}
		return opts.Limiter.Middleware(s.detector.ExtractClientIP, s.writeRateLimited)(h)
	}

	mux.Handle("GET /{$}", limited(http.HandlerFunc(s.handleDashboard)))
	mux.Handle("GET /api/metrics", limited(security.NoStore(http.HandlerFunc(s.handleAPIMetrics))))
	if opts.Stream != nil {
		mux.Handle("GET /metrics_ws", limited(opts.Stream))
	}
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	tracer := trace.NewMiddleware(logger, s.detector.ExtractClientIP, routeLabel)
	s.Handler = tracer.Middleware(s.detector.Middleware(headers.Middleware(mux)))

	return s
}

func (s *Server) writeRateLimited(w http.ResponseWriter, r *http.Request) {
	s.logger.WithComponent(log.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldPath, r.URL.Path)
	NewResponse().
		Status(http.StatusTooManyRequests).
		JSON(ErrorBody{Error: "rate limit exceeded, try again later"}).
		Write(w)
}

// Shutdown gracefully shuts down the server. Safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.logger.Info("HTTP server shutting down", log.FieldOperation, log.OpShutdown)
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
