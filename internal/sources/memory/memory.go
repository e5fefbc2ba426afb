package memory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	json "github.com/goccy/go-json"

	"openmetric/internal/core"
	"openmetric/internal/sources"
)

var (
	_ sources.Store     = (*Store)(nil)
	_ sources.Versioner = (*Store)(nil)
)

// Store keeps a dataset in memory. Every write bumps the version.
type Store struct {
	mu      sync.Mutex
	name    string
	events  []core.Event
	cohorts core.CohortTable
	version uint64
}

func New(name string, events []core.Event, cohorts core.CohortTable) *Store {
	if cohorts == nil {
		cohorts = core.CohortTable{}
	}
	return &Store{
		name:    name,
		events:  append([]core.Event(nil), events...),
		cohorts: cohorts.Clone(),
	}
}

// NewFromFiles seeds a store from an events JSON file and an optional
// retention JSON file. A missing retention file yields an empty table.
func NewFromFiles(eventsPath, retentionPath string) (*Store, error) {
	var events []core.Event
	data, err := os.ReadFile(eventsPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrSourceUnavailable, err)
	}
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", core.ErrMalformedRecord, eventsPath, err)
	}
	cohorts := core.CohortTable{}
	if retentionPath != "" {
		data, err := os.ReadFile(retentionPath)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("%w: %v", core.ErrSourceUnavailable, err)
		default:
			if err := json.Unmarshal(data, &cohorts); err != nil {
				return nil, fmt.Errorf("%w: %s: %v", core.ErrMalformedRecord, retentionPath, err)
			}
		}
	}
	name := strings.TrimSuffix(filepath.Base(eventsPath), filepath.Ext(eventsPath))
	return New(name, events, cohorts), nil
}

func (s *Store) LoadDataset(_ context.Context) (core.Dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return core.Dataset{
		Name:    s.name,
		Events:  append([]core.Event(nil), s.events...),
		Cohorts: s.cohorts.Clone(),
	}, nil
}

// AppendEvent stores the event and returns a synthetic reference.
func (s *Store) AppendEvent(_ context.Context, e core.Event) (string, error) {
	if err := e.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	s.version++
	return fmt.Sprintf("mem:%d", len(s.events)), nil
}

func (s *Store) PutCohort(_ context.Context, month core.MonthKey, c core.RetentionCohort) error {
	if _, err := core.ParseMonthKey(string(month)); err != nil {
		return err
	}
	c.Active = append([]uint32(nil), c.Active...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cohorts[month] = c
	s.version++
	return nil
}

func (s *Store) Version(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return "mem:" + strconv.FormatUint(s.version, 10), nil
}
