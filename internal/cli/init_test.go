package cli

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"openmetric/internal/config"
	"openmetric/internal/log"
)

func TestSetupLogger(t *testing.T) {
	logger := SetupLogger("debug", log.ComponentWorker)
	if logger.Component() != log.ComponentWorker {
		t.Errorf("Component() = %q", logger.Component())
	}
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug level should be enabled")
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("OPENMETRIC_TEST_VALUE=from-dotenv\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	wd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		os.Chdir(wd)
		os.Unsetenv("OPENMETRIC_TEST_VALUE")
	})

	LoadEnvFile()
	if got := os.Getenv("OPENMETRIC_TEST_VALUE"); got != "from-dotenv" {
		t.Errorf("OPENMETRIC_TEST_VALUE = %q", got)
	}
}

func TestEngineParams(t *testing.T) {
	cfg := &config.Config{ChurnPerCancellation: 500, COGSRatio: 0.25, DaysPerMonth: 28}
	p := EngineParams(log.New(log.DefaultConfig()), cfg)
	if p.ChurnPerCancellation != 500 || p.COGSRatio != 0.25 || p.DaysPerMonth != 28 {
		t.Errorf("unexpected params %+v", p)
	}
}

func TestSignalContextCancel(t *testing.T) {
	ctx, cancel := SignalContext(log.New(log.DefaultConfig()))
	cancel()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled")
	}
}
