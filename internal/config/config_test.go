package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"loom/internal/config"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.GracePeriod() != 5*time.Second {
		t.Fatalf("default grace period = %s, want 5s", cfg.GracePeriod())
	}
	if !cfg.Journal.Enabled {
		t.Fatal("journal disabled by default")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if exists {
		t.Fatal("Load reported a file that does not exist")
	}
	if resolved == "" {
		t.Fatal("Load returned no resolved path")
	}
	if cfg.Execution.MaxWorkers != config.Default().Execution.MaxWorkers {
		t.Fatalf("max_workers = %d, want default", cfg.Execution.MaxWorkers)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
data_dir = "` + filepath.Join(dir, "data") + `"

[execution]
max_workers = 9
grace_period_seconds = 2

[journal]
enabled = false

[logging]
format = "JSON"
level = "Debug"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists {
		t.Fatal("Load did not read the file")
	}
	if cfg.Execution.MaxWorkers != 9 {
		t.Fatalf("max_workers = %d, want 9", cfg.Execution.MaxWorkers)
	}
	if cfg.GracePeriod() != 2*time.Second {
		t.Fatalf("grace period = %s, want 2s", cfg.GracePeriod())
	}
	if cfg.Journal.Enabled {
		t.Fatal("journal.enabled override ignored")
	}
	// Format and level are normalized to lower case.
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("logging = %+v, want json/debug", cfg.Logging)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[execution]
max_workers = 0

[logging]
format = "xml"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, _, _, err := config.Load(path)
	if err == nil {
		t.Fatal("Load accepted an invalid config")
	}
	msg := err.Error()
	for _, want := range []string{"max_workers", "logging.format"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("error %q does not mention %s", msg, want)
		}
	}
}

func TestLoadExpandsHomePaths(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory: %v", err)
	}
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[paths]
data_dir = "~/loom-test-data"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if want := filepath.Join(home, "loom-test-data"); cfg.Paths.DataDir != want {
		t.Fatalf("data_dir = %q, want %q", cfg.Paths.DataDir, want)
	}
}

func TestJournalPathFallback(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.DataDir = "/tmp/loom"
	if got := cfg.JournalPath(); got != "/tmp/loom/journal.db" {
		t.Fatalf("JournalPath = %q", got)
	}
	cfg.Journal.Path = "/var/lib/loom/runs.db"
	if got := cfg.JournalPath(); got != "/var/lib/loom/runs.db" {
		t.Fatalf("explicit JournalPath = %q", got)
	}
}

func TestWriteSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.WriteSample(path); err != nil {
		t.Fatalf("WriteSample: %v", err)
	}
	if err := config.WriteSample(path); err == nil {
		t.Fatal("WriteSample overwrote an existing file")
	}

	// The sample must load and validate as-is.
	if _, _, _, err := config.Load(path); err != nil {
		t.Fatalf("Load sample: %v", err)
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs", "deep")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("directory %s missing: %v", dir, err)
		}
	}
}
