package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"

	"openmetric/internal/amqp"
	"openmetric/internal/core"
	"openmetric/internal/log"
	"openmetric/internal/sources"
)

// IngestWorker stores ingest messages and imported datasets in a writable
// source.
type IngestWorker struct {
	events  sources.EventWriter
	cohorts sources.CohortWriter
	logger  *log.Logger

	stored   atomic.Int64
	rejected atomic.Int64
}

// Stats counts what the worker has handled since it started.
type Stats struct {
	Stored   int64
	Rejected int64
}

func NewIngestWorker(events sources.EventWriter, cohorts sources.CohortWriter, logger *log.Logger) (*IngestWorker, error) {
	if events == nil || cohorts == nil {
		return nil, errors.New("ingest worker needs a writable store")
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &IngestWorker{
		events:  events,
		cohorts: cohorts,
		logger:  logger.WithComponent(log.ComponentWorker),
	}, nil
}

// HandleMessage stores a single ingest message from AMQP. Store validation
// failures come back wrapping core.ErrMalformedRecord so the consumer drops
// them.
func (w *IngestWorker) HandleMessage(ctx context.Context, msg *amqp.IngestMessage) error {
	var err error
	switch msg.Kind {
	case amqp.KindEvent:
		var ref string
		ref, err = w.events.AppendEvent(ctx, *msg.Event)
		if err == nil {
			w.logger.DebugContext(ctx, "Stored event",
				log.FieldEventType, msg.Event.Type,
				log.FieldRef, ref)
		}
	case amqp.KindCohort:
		err = w.cohorts.PutCohort(ctx, msg.Month, *msg.Cohort)
		if err == nil {
			w.logger.DebugContext(ctx, "Stored cohort", log.FieldMonth, msg.Month)
		}
	default:
		err = fmt.Errorf("%w: unknown message kind %q", core.ErrMalformedRecord, msg.Kind)
	}

	if err != nil {
		if errors.Is(err, core.ErrMalformedRecord) || errors.Is(err, core.ErrInvalidMonth) {
			w.rejected.Add(1)
			return fmt.Errorf("%w: %v", core.ErrMalformedRecord, err)
		}
		return fmt.Errorf("store %s: %w", msg.Kind, err)
	}
	w.stored.Add(1)
	return nil
}

// ImportDataset writes every event and cohort of ds, calling step after each
// record. It stops at the first failure.
func (w *IngestWorker) ImportDataset(ctx context.Context, ds core.Dataset, step func()) error {
	if step == nil {
		step = func() {}
	}

	for i, e := range ds.Events {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := w.events.AppendEvent(ctx, e); err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}
		w.stored.Add(1)
		step()
	}

	for _, month := range sortedMonths(ds.Cohorts) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.cohorts.PutCohort(ctx, month, ds.Cohorts[month]); err != nil {
			return fmt.Errorf("cohort %s: %w", month, err)
		}
		w.stored.Add(1)
		step()
	}

	w.logger.InfoContext(ctx, "Imported dataset",
		log.FieldDataset, ds.Name,
		log.FieldEvents, len(ds.Events),
		log.FieldCohorts, len(ds.Cohorts))
	return nil
}

func (w *IngestWorker) Stats() Stats {
	return Stats{Stored: w.stored.Load(), Rejected: w.rejected.Load()}
}

func sortedMonths(t core.CohortTable) []core.MonthKey {
	months := make([]core.MonthKey, 0, len(t))
	for m := range t {
		months = append(months, m)
	}
	sort.Slice(months, func(i, j int) bool { return months[i] < months[j] })
	return months
}
