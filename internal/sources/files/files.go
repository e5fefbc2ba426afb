// Package files serves datasets from paired "<name>.evnt" / "<name>.ret" JSON
// files in a directory.
package files

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"openmetric/internal/core"
	"openmetric/internal/sources"
)

const (
	EventsExt    = ".evnt"
	RetentionExt = ".ret"
)

var (
	_ sources.DatasetReader = (*Source)(nil)
	_ sources.Versioner     = (*Source)(nil)
)

// Pair is an events file and its retention file sharing a base name.
type Pair struct {
	Name          string
	EventsPath    string
	RetentionPath string
}

// Source reads a dataset pair from Dir on every call. When Name is empty the
// first pair in base-name order is used.
type Source struct {
	Dir  string
	Name string
}

func New(dir, name string) *Source {
	return &Source{Dir: dir, Name: strings.TrimSpace(name)}
}

// Discover lists complete pairs in dir sorted by base name. Events files
// without a matching retention file are ignored.
func Discover(dir string) ([]Pair, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", core.ErrSourceUnavailable, dir, err)
	}
	names := make(map[string]bool)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names[e.Name()] = true
	}
	var pairs []Pair
	for n := range names {
		if filepath.Ext(n) != EventsExt {
			continue
		}
		base := strings.TrimSuffix(n, EventsExt)
		if !names[base+RetentionExt] {
			continue
		}
		pairs = append(pairs, Pair{
			Name:          base,
			EventsPath:    filepath.Join(dir, n),
			RetentionPath: filepath.Join(dir, base+RetentionExt),
		})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Name < pairs[j].Name })
	return pairs, nil
}

// Resolve picks the pair to serve.
func (s *Source) Resolve() (Pair, error) {
	pairs, err := Discover(s.Dir)
	if err != nil {
		return Pair{}, err
	}
	if len(pairs) == 0 {
		return Pair{}, fmt.Errorf("%w: No data files found in %s", core.ErrSourceUnavailable, s.Dir)
	}
	if s.Name == "" {
		return pairs[0], nil
	}
	for _, p := range pairs {
		if p.Name == s.Name {
			return p, nil
		}
	}
	return Pair{}, fmt.Errorf("%w: no data pair named %q in %s", core.ErrSourceUnavailable, s.Name, s.Dir)
}

func (s *Source) LoadDataset(_ context.Context) (core.Dataset, error) {
	p, err := s.Resolve()
	if err != nil {
		return core.Dataset{}, err
	}
	return ReadPair(p)
}

// ReadPair decodes both files of a pair. Decode failures are malformed
// records, read failures mean the source is unavailable.
func ReadPair(p Pair) (core.Dataset, error) {
	events, err := ReadEvents(p.EventsPath)
	if err != nil {
		return core.Dataset{}, err
	}
	cohorts, err := ReadCohorts(p.RetentionPath)
	if err != nil {
		return core.Dataset{}, err
	}
	return core.Dataset{Name: p.Name, Events: events, Cohorts: cohorts}, nil
}

func ReadEvents(path string) ([]core.Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrSourceUnavailable, err)
	}
	var events []core.Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", core.ErrMalformedRecord, filepath.Base(path), err)
	}
	if events == nil {
		events = []core.Event{}
	}
	return events, nil
}

func ReadCohorts(path string) (core.CohortTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrSourceUnavailable, err)
	}
	cohorts := core.CohortTable{}
	if err := json.Unmarshal(data, &cohorts); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", core.ErrMalformedRecord, filepath.Base(path), err)
	}
	return cohorts, nil
}

// Version combines name, size and modification time of both files.
func (s *Source) Version(_ context.Context) (string, error) {
	p, err := s.Resolve()
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(p.Name)
	for _, path := range []string{p.EventsPath, p.RetentionPath} {
		fi, err := os.Stat(path)
		if err != nil {
			return "", fmt.Errorf("%w: %v", core.ErrSourceUnavailable, err)
		}
		b.WriteByte(':')
		b.WriteString(strconv.FormatInt(fi.Size(), 10))
		b.WriteByte('.')
		b.WriteString(strconv.FormatInt(fi.ModTime().UnixNano(), 10))
	}
	return b.String(), nil
}
