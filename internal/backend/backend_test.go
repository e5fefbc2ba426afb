package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"openmetric/internal/config"
	"openmetric/internal/core"
)

func TestBackendType(t *testing.T) {
	for _, bt := range GetBackendTypes() {
		if !bt.IsValid() {
			t.Errorf("%s should be valid", bt)
		}
	}
	if BackendType("postgres").IsValid() {
		t.Error("postgres should not be valid")
	}
	if !SQLiteBackend.IsSQL() || !MySQLBackend.IsSQL() || MemoryBackend.IsSQL() {
		t.Error("IsSQL mismatch")
	}
	if got := GetBackendTypeStrings(); len(got) != 5 || got[0] != "files" {
		t.Errorf("GetBackendTypeStrings() = %v", got)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"files ok", Config{Type: FilesBackend, DataDir: "./data"}, false},
		{"files without dir", Config{Type: FilesBackend}, true},
		{"memory without dir", Config{Type: MemoryBackend}, false},
		{"sqlite without path", Config{Type: SQLiteBackend}, true},
		{"mysql without dsn", Config{Type: MySQLBackend}, true},
		{"mysql ok", Config{Type: MySQLBackend, MySQLDSN: "u:p@tcp(localhost)/db"}, false},
		{"sheets without id", Config{Type: SheetsBackend}, true},
		{"unknown", Config{Type: "nope"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
	if _, err := FromAppConfig(&config.Config{DataBackend: "redis"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}

	cfg, err := FromAppConfig(&config.Config{
		DataBackend:          "sheets",
		GoogleSpreadsheetID:  "sheet-id",
		GoogleEventsSheet:    "Events",
		GoogleRetentionSheet: "Retention",
	})
	if err != nil {
		t.Fatalf("FromAppConfig: %v", err)
	}
	if cfg.Type != SheetsBackend || cfg.GoogleSpreadsheetID != "sheet-id" || cfg.GoogleEventsSheet != "Events" {
		t.Errorf("unexpected config %+v", cfg)
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestCreateFilesBackend(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "acme.evnt", `[{"event_type":"payment","amount":10,"timestamp":"2024-01-05T00:00:00Z"}]`)
	writeFile(t, dir, "acme.ret", `{}`)

	res, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: FilesBackend, DataDir: dir})
	if err != nil {
		t.Fatalf("CreateBackend: %v", err)
	}
	defer res.Close()

	if res.Name != "files" || res.Events != nil || res.Cohorts != nil {
		t.Errorf("files backend should be read-only, got %+v", res)
	}
	ds, err := res.Reader.LoadDataset(context.Background())
	if err != nil {
		t.Fatalf("LoadDataset: %v", err)
	}
	if ds.Name != "acme" || len(ds.Events) != 1 {
		t.Errorf("unexpected dataset %+v", ds)
	}
}

func TestCreateFilesBackendEmptyDir(t *testing.T) {
	res, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: FilesBackend, DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("an empty directory must not fail startup: %v", err)
	}
	if _, err := res.Reader.LoadDataset(context.Background()); err == nil {
		t.Fatal("expected source unavailable on load")
	}
}

func TestCreateMemoryBackend(t *testing.T) {
	ctx := context.Background()

	t.Run("seeded", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "seed.evnt", `[{"event_type":"payment","amount":10,"timestamp":"2024-01-05T00:00:00Z"}]`)
		writeFile(t, dir, "seed.ret", `{"2024-01":{"acquired":4,"active":[2]}}`)

		res, err := NewFactory(nil).CreateBackend(ctx, Config{Type: MemoryBackend, DataDir: dir})
		if err != nil {
			t.Fatalf("CreateBackend: %v", err)
		}
		ds, _ := res.Reader.LoadDataset(ctx)
		if ds.Name != "seed" || len(ds.Events) != 1 || len(ds.Cohorts) != 1 {
			t.Errorf("unexpected dataset %+v", ds)
		}
	})

	t.Run("empty", func(t *testing.T) {
		res, err := NewFactory(nil).CreateBackend(ctx, Config{Type: MemoryBackend, DataDir: filepath.Join(t.TempDir(), "missing")})
		if err != nil {
			t.Fatalf("CreateBackend: %v", err)
		}
		amt := 5.0
		if _, err := res.Events.AppendEvent(ctx, core.Event{Type: core.EventPayment, Amount: &amt, Timestamp: "2024-03-01T00:00:00Z"}); err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
		ds, _ := res.Reader.LoadDataset(ctx)
		if len(ds.Events) != 1 {
			t.Errorf("expected appended event, got %+v", ds.Events)
		}
	})

	t.Run("malformed seed", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "bad.evnt", `{not json`)
		writeFile(t, dir, "bad.ret", `{}`)
		if _, err := NewFactory(nil).CreateBackend(ctx, Config{Type: MemoryBackend, DataDir: dir}); err == nil {
			t.Fatal("expected error for malformed seed")
		}
	})
}

func TestCreateSQLiteBackend(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "metrics.db")

	res, err := NewFactory(nil).CreateBackend(ctx, Config{Type: SQLiteBackend, SQLiteDBPath: path})
	if err != nil {
		t.Fatalf("CreateBackend: %v", err)
	}
	defer res.Close()

	if res.Events == nil || res.Cohorts == nil || res.Cleanup == nil {
		t.Fatalf("sqlite backend should be writable, got %+v", res)
	}
	if err := res.Cohorts.PutCohort(ctx, "2024-01", core.RetentionCohort{Acquired: 10, Active: []uint32{6}}); err != nil {
		t.Fatalf("PutCohort: %v", err)
	}
	ds, err := res.Reader.LoadDataset(ctx)
	if err != nil {
		t.Fatalf("LoadDataset: %v", err)
	}
	if c, ok := ds.Cohorts["2024-01"]; !ok || c.Acquired != 10 {
		t.Errorf("unexpected cohorts %+v", ds.Cohorts)
	}
}

func TestBackendResultCloseNil(t *testing.T) {
	var r *BackendResult
	if err := r.Close(); err != nil {
		t.Fatalf("Close on nil result: %v", err)
	}
}
