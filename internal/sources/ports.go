// Package sources defines the ports the metrics service uses to load
// datasets and the ingest paths use to extend them.
package sources

import (
	"context"

	"openmetric/internal/core"
)

// Ports for outbound adapters.
type (
	// DatasetReader loads one full snapshot of events and cohorts. It is
	// called once per computation; implementations must not return shared
	// mutable slices.
	DatasetReader interface {
		LoadDataset(ctx context.Context) (core.Dataset, error)
	}

	EventWriter interface {
		AppendEvent(ctx context.Context, e core.Event) (ref string, err error)
	}

	CohortWriter interface {
		PutCohort(ctx context.Context, month core.MonthKey, c core.RetentionCohort) error
	}

	// Versioner reports an opaque snapshot version that changes whenever the
	// underlying data changes. Sources that implement it can be memoized.
	Versioner interface {
		Version(ctx context.Context) (string, error)
	}

	// Store is a source that can both serve and accept data.
	Store interface {
		DatasetReader
		EventWriter
		CohortWriter
	}
)
