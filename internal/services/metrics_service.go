package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"openmetric/internal/cache"
	"openmetric/internal/core"
	"openmetric/internal/engine"
	"openmetric/internal/log"
	"openmetric/internal/metrics"
	"openmetric/internal/sources"
)

// Result is one computed series plus where it came from. Metrics may be
// shared with the memo cache and must be treated as read-only.
type Result struct {
	Dataset  string
	Window   engine.Window
	Metrics  core.MonthlyMetrics
	CacheHit bool
}

type memoKey struct {
	version string
	window  string
}

type memoEntry struct {
	dataset string
	metrics core.MonthlyMetrics
}

// MetricsServiceOptions configures NewMetricsService.
type MetricsServiceOptions struct {
	// SourceName labels metrics and logs, e.g. the backend type.
	SourceName string
	// CacheTTL enables memoization for versioned sources when positive.
	CacheTTL  time.Duration
	CacheSize int
	Logger    *log.Logger
}

// MetricsService loads a fresh dataset for every request and runs the engine
// over it. With memoization enabled, all-time results are reused while the
// source reports the same snapshot version. Windowed results depend on the
// clock through the cutoff and are always recomputed.
type MetricsService struct {
	source     sources.DatasetReader
	versioner  sources.Versioner
	sourceName string
	engine     *engine.Engine
	memo       *cache.LRUCache[memoKey, memoEntry]
	logger     *log.Logger
	structured *log.StructuredLogger
}

func NewMetricsService(source sources.DatasetReader, eng *engine.Engine, opts MetricsServiceOptions) *MetricsService {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentMetrics)
	if opts.SourceName == "" {
		opts.SourceName = "unknown"
	}

	s := &MetricsService{
		source:     source,
		sourceName: opts.SourceName,
		engine:     eng,
		logger:     logger,
		structured: log.NewStructuredLogger(logger),
	}
	if v, ok := source.(sources.Versioner); ok && opts.CacheTTL > 0 {
		s.versioner = v
		s.memo = cache.NewLRUCache[memoKey, memoEntry](opts.CacheSize, opts.CacheTTL)
		logger.Info("Metrics memoization enabled",
			log.FieldSource, opts.SourceName,
			"ttl", opts.CacheTTL.String(),
			"size", opts.CacheSize)
	}
	return s
}

// Compute runs the full pipeline for window w.
func (s *MetricsService) Compute(ctx context.Context, w engine.Window) (Result, error) {
	var key memoKey
	if s.memo != nil && w.IsAllTime() {
		version, err := s.versioner.Version(ctx)
		if err != nil {
			s.logger.WarnContext(ctx, "Source version unavailable, computing without cache", log.FieldError, err)
		} else {
			key = memoKey{version: version, window: w.String()}
			if hit, ok := s.memo.Get(key); ok {
				metrics.MemoCacheHits.Inc()
				s.structured.LogComputed(ctx, hit.dataset, w.String(), 0, hit.metrics.Len(), true)
				return Result{Dataset: hit.dataset, Window: w, Metrics: hit.metrics, CacheHit: true}, nil
			}
			metrics.MemoCacheMisses.Inc()
		}
	}

	ds, err := s.load(ctx)
	if err != nil {
		return Result{}, err
	}

	started := time.Now()
	out, err := s.engine.Compute(ds, w)
	metrics.RecordRecompute(w.String(), started, err)
	if err != nil {
		s.structured.LogError(ctx, "Metrics computation failed", err, log.OpCompute,
			log.NewFields().WithErrorType(errorType(err)).WithComputation(ds.Name, w.String(), len(ds.Events), 0))
		return Result{}, fmt.Errorf("compute %s: %w", ds.Name, err)
	}

	if s.memo != nil && key.version != "" {
		s.memo.Set(key, memoEntry{dataset: ds.Name, metrics: out})
	}
	s.structured.LogComputed(ctx, ds.Name, w.String(), len(ds.Events), out.Len(), false)
	return Result{Dataset: ds.Name, Window: w, Metrics: out}, nil
}

// Ready loads the dataset once to prove the source is reachable and
// parseable.
func (s *MetricsService) Ready(ctx context.Context) error {
	_, err := s.load(ctx)
	return err
}

// Params exposes the business constants in use.
func (s *MetricsService) Params() engine.Params {
	return s.engine.Params()
}

// MemoCache returns the memo cache for cleanup registration, or nil when
// memoization is off.
func (s *MetricsService) MemoCache() cache.Cleaner {
	if s.memo == nil {
		return nil
	}
	return s.memo
}

func (s *MetricsService) load(ctx context.Context) (core.Dataset, error) {
	started := time.Now()
	ds, err := s.source.LoadDataset(ctx)
	metrics.RecordDatasetLoad(s.sourceName, started, err)
	if err != nil {
		s.structured.LogError(ctx, "Dataset load failed", err, log.OpLoad,
			log.NewFields().WithErrorType(errorType(err)))
		if !errors.Is(err, core.ErrSourceUnavailable) && !errors.Is(err, core.ErrMalformedRecord) {
			err = fmt.Errorf("%w: %v", core.ErrSourceUnavailable, err)
		}
		return core.Dataset{}, fmt.Errorf("load dataset from %s: %w", s.sourceName, err)
	}
	return ds, nil
}

func errorType(err error) string {
	switch {
	case errors.Is(err, core.ErrMalformedRecord):
		return log.ErrorTypeMalformed
	case errors.Is(err, core.ErrSourceUnavailable):
		return log.ErrorTypeSource
	case errors.Is(err, context.DeadlineExceeded):
		return log.ErrorTypeTimeout
	default:
		return log.ErrorTypeInternal
	}
}
