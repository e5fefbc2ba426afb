package backend

import (
	"context"

	"openmetric/internal/sources"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the configured source and what it supports.
type BackendResult struct {
	// Name labels the backend in logs and metrics.
	Name   string
	Reader sources.DatasetReader

	// Events and Cohorts are nil when the backend is read-only.
	Events  sources.EventWriter
	Cohorts sources.CohortWriter
	Cleanup CleanupFunc
}

// Close runs Cleanup if there is one.
func (r *BackendResult) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// Files and memory
	DataDir      string
	DataBaseName string

	// SQL stores
	SQLiteDBPath string
	MySQLDSN     string

	// Google Sheets
	GoogleSpreadsheetID  string
	GoogleEventsSheet    string
	GoogleRetentionSheet string
}

// BackendType represents the type of backend
type BackendType string

const (
	FilesBackend  BackendType = "files"
	MemoryBackend BackendType = "memory"
	SQLiteBackend BackendType = "sqlite"
	MySQLBackend  BackendType = "mysql"
	SheetsBackend BackendType = "sheets"
)

func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case FilesBackend, MemoryBackend, SQLiteBackend, MySQLBackend, SheetsBackend:
		return true
	default:
		return false
	}
}

// IsSQL reports whether the backend is one of the SQL stores.
func (bt BackendType) IsSQL() bool {
	return bt == SQLiteBackend || bt == MySQLBackend
}
