package services

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"openmetric/internal/core"
	"openmetric/internal/engine"
	"openmetric/internal/log"
	"openmetric/internal/sources/memory"
)

var testNow = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func quietLogger() *log.Logger {
	return log.New(log.Config{Output: io.Discard})
}

func testEngine() *engine.Engine {
	return engine.New(engine.DefaultParams(), engine.WithClock(func() time.Time { return testNow }))
}

type countingSource struct {
	loads   atomic.Int32
	ds      core.Dataset
	err     error
	version string
}

func (c *countingSource) LoadDataset(context.Context) (core.Dataset, error) {
	c.loads.Add(1)
	return c.ds, c.err
}

type versionedSource struct {
	*countingSource
}

func (v versionedSource) Version(context.Context) (string, error) {
	return v.version, nil
}

func amount(v float64) *float64 { return &v }

func sampleDataset() core.Dataset {
	return core.Dataset{
		Name: "sample",
		Events: []core.Event{
			{Type: core.EventPayment, Amount: amount(1000), Timestamp: "2024-01-05T00:00:00Z"},
			{Type: core.EventExpense, Amount: amount(400), Timestamp: "2024-01-10T00:00:00Z"},
			{Type: core.EventPayment, Amount: amount(1200), Timestamp: "2024-02-03T00:00:00Z"},
		},
		Cohorts: core.CohortTable{},
	}
}

func TestComputeReloadsEveryTime(t *testing.T) {
	src := &countingSource{ds: sampleDataset()}
	svc := NewMetricsService(src, testEngine(), MetricsServiceOptions{SourceName: "test", Logger: quietLogger()})

	for i := 0; i < 3; i++ {
		res, err := svc.Compute(context.Background(), engine.AllTime)
		if err != nil {
			t.Fatalf("compute: %v", err)
		}
		if res.Dataset != "sample" || res.Metrics.Len() != 2 || res.CacheHit {
			t.Fatalf("unexpected result %+v", res)
		}
	}
	if got := src.loads.Load(); got != 3 {
		t.Fatalf("expected 3 loads, got %d", got)
	}
}

func TestComputeWindow(t *testing.T) {
	src := &countingSource{ds: sampleDataset()}
	svc := NewMetricsService(src, testEngine(), MetricsServiceOptions{Logger: quietLogger()})
	w, _ := engine.Months(1)
	res, err := svc.Compute(context.Background(), w)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if res.Metrics.Len() != 1 || res.Metrics.Months[0] != "2024-02" {
		t.Fatalf("unexpected months %v", res.Metrics.Months)
	}
}

func TestComputeErrors(t *testing.T) {
	cases := []struct {
		name string
		src  *countingSource
		want error
	}{
		{"source unavailable", &countingSource{err: core.ErrSourceUnavailable}, core.ErrSourceUnavailable},
		{"untyped source error", &countingSource{err: errors.New("disk on fire")}, core.ErrSourceUnavailable},
		{"malformed from source", &countingSource{err: core.ErrMalformedRecord}, core.ErrMalformedRecord},
		{"malformed timestamp", &countingSource{ds: core.Dataset{Events: []core.Event{{Type: core.EventPayment, Timestamp: "never"}}}}, core.ErrMalformedRecord},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := NewMetricsService(tc.src, testEngine(), MetricsServiceOptions{Logger: quietLogger()})
			_, err := svc.Compute(context.Background(), engine.AllTime)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestMemoization(t *testing.T) {
	src := versionedSource{&countingSource{ds: sampleDataset(), version: "v1"}}
	svc := NewMetricsService(src, testEngine(), MetricsServiceOptions{
		CacheTTL:  time.Minute,
		CacheSize: 8,
		Logger:    quietLogger(),
	})
	if svc.MemoCache() == nil {
		t.Fatalf("memo cache should be enabled")
	}
	ctx := context.Background()

	first, err := svc.Compute(ctx, engine.AllTime)
	if err != nil || first.CacheHit {
		t.Fatalf("first compute: %+v, %v", first, err)
	}
	second, err := svc.Compute(ctx, engine.AllTime)
	if err != nil || !second.CacheHit {
		t.Fatalf("second compute should hit: %+v, %v", second, err)
	}
	if src.loads.Load() != 1 {
		t.Fatalf("expected 1 load, got %d", src.loads.Load())
	}

	w, _ := engine.Months(1)
	for i := 0; i < 2; i++ {
		if res, _ := svc.Compute(ctx, w); res.CacheHit {
			t.Fatalf("windowed result must not be memoized")
		}
	}

	src.version = "v2"
	if res, _ := svc.Compute(ctx, engine.AllTime); res.CacheHit {
		t.Fatalf("new version must miss")
	}
	if src.loads.Load() != 4 {
		t.Fatalf("expected 4 loads, got %d", src.loads.Load())
	}
}

func TestMemoizationDisabledWithoutVersioner(t *testing.T) {
	src := &countingSource{ds: sampleDataset()}
	svc := NewMetricsService(src, testEngine(), MetricsServiceOptions{CacheTTL: time.Minute, CacheSize: 4, Logger: quietLogger()})
	if svc.MemoCache() != nil {
		t.Fatalf("sources without versions must not be memoized")
	}
}

func TestMemoryStoreVersionInvalidatesMemo(t *testing.T) {
	st := memory.New("mem", sampleDataset().Events, nil)
	svc := NewMetricsService(st, testEngine(), MetricsServiceOptions{CacheTTL: time.Minute, CacheSize: 4, Logger: quietLogger()})
	ctx := context.Background()

	before, err := svc.Compute(ctx, engine.AllTime)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if _, err := st.AppendEvent(ctx, core.Event{Type: core.EventPayment, Amount: amount(5), Timestamp: "2024-02-20T00:00:00Z"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	after, err := svc.Compute(ctx, engine.AllTime)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if after.CacheHit || after.Metrics.Revenue[1] != before.Metrics.Revenue[1]+5 {
		t.Fatalf("expected fresh result after write, got %+v", after)
	}
}

func TestReady(t *testing.T) {
	ok := NewMetricsService(&countingSource{ds: sampleDataset()}, testEngine(), MetricsServiceOptions{Logger: quietLogger()})
	if err := ok.Ready(context.Background()); err != nil {
		t.Fatalf("ready: %v", err)
	}
	down := NewMetricsService(&countingSource{err: errors.New("down")}, testEngine(), MetricsServiceOptions{Logger: quietLogger()})
	if err := down.Ready(context.Background()); !errors.Is(err, core.ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
}
