package backend

import (
	"context"
	"errors"
	"fmt"

	"openmetric/internal/core"
	"openmetric/internal/log"
	"openmetric/internal/sources/files"
	gsheet "openmetric/internal/sources/google"
	"openmetric/internal/sources/memory"
	"openmetric/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case FilesBackend:
		return f.createFilesBackend(config)
	case MemoryBackend:
		return f.createMemoryBackend(config)
	case SQLiteBackend:
		return f.createSQLiteBackend(config)
	case MySQLBackend:
		return f.createMySQLBackend(config)
	case SheetsBackend:
		return f.createSheetsBackend(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createFilesBackend(config Config) (*BackendResult, error) {
	src := files.New(config.DataDir, config.DataBaseName)

	// Files are re-read on every request, so a missing pair at startup is
	// only a warning.
	if p, err := src.Resolve(); err != nil {
		f.logger.Warn("No usable data pair yet", "data_dir", config.DataDir, log.FieldError, err)
	} else {
		f.logger.Info("Initialized files backend", "data_dir", config.DataDir, log.FieldDataset, p.Name)
	}

	return &BackendResult{Name: FilesBackend.String(), Reader: src}, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*BackendResult, error) {
	var store *memory.Store

	p, err := files.New(config.DataDir, config.DataBaseName).Resolve()
	switch {
	case err == nil:
		store, err = memory.NewFromFiles(p.EventsPath, p.RetentionPath)
		if err != nil {
			return nil, fmt.Errorf("failed to seed memory backend: %w", err)
		}
	case errors.Is(err, core.ErrSourceUnavailable):
		store = memory.New("memory", nil, nil)
	default:
		return nil, err
	}

	ds, _ := store.LoadDataset(context.Background())
	f.logger.Info("Initialized memory backend",
		log.FieldDataset, ds.Name,
		log.FieldEvents, len(ds.Events),
		log.FieldCohorts, len(ds.Cohorts))

	return &BackendResult{
		Name:    MemoryBackend.String(),
		Reader:  store,
		Events:  store,
		Cohorts: store,
	}, nil
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath, "dialect", repo.Dialect())
	return sqlResult(SQLiteBackend, repo), nil
}

func (f *DefaultFactory) createMySQLBackend(config Config) (*BackendResult, error) {
	repo, err := storage.NewMySQLRepository(config.MySQLDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MySQL repository: %w", err)
	}

	f.logger.Info("Initialized MySQL backend", "dialect", repo.Dialect())
	return sqlResult(MySQLBackend, repo), nil
}

func sqlResult(t BackendType, repo *storage.Repository) *BackendResult {
	return &BackendResult{
		Name:    t.String(),
		Reader:  repo,
		Events:  repo,
		Cohorts: repo,
		Cleanup: repo.Close,
	}
}

func (f *DefaultFactory) createSheetsBackend(ctx context.Context, config Config) (*BackendResult, error) {
	cli, err := gsheet.New(ctx, gsheet.Options{
		SpreadsheetID:  config.GoogleSpreadsheetID,
		EventsSheet:    config.GoogleEventsSheet,
		RetentionSheet: config.GoogleRetentionSheet,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}

	f.logger.Info("Initialized Google Sheets backend",
		"events_sheet", config.GoogleEventsSheet,
		"retention_sheet", config.GoogleRetentionSheet)

	return &BackendResult{
		Name:   SheetsBackend.String(),
		Reader: cli,
		Events: cli,
	}, nil
}
