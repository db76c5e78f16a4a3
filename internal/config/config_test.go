package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	for _, k := range []string{"CHECK_CADENCE", "RETENTION_CADENCE", "RETENTION_KEEP", "USER_AGENT", "DB_DRIVER"} {
		t.Setenv(k, "")
	}

	cfg := Load()
	if cfg.CheckCadence != 60*time.Second {
		t.Errorf("CheckCadence: got %s, want 60s", cfg.CheckCadence)
	}
	if cfg.RetentionCadence != 24*time.Hour {
		t.Errorf("RetentionCadence: got %s, want 24h", cfg.RetentionCadence)
	}
	if cfg.RetentionKeep != 1000 {
		t.Errorf("RetentionKeep: got %d, want 1000", cfg.RetentionKeep)
	}
	if cfg.UserAgent != "StatusMonitor/1.0" {
		t.Errorf("UserAgent: got %q", cfg.UserAgent)
	}
	if cfg.DBDriver != "postgres" {
		t.Errorf("DBDriver: got %q, want postgres", cfg.DBDriver)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("CHECK_CADENCE", "15s")
	t.Setenv("RETENTION_KEEP", "50")
	t.Setenv("MAX_CONCURRENCY", "not-a-number")

	cfg := Load()
	if cfg.CheckCadence != 15*time.Second {
		t.Errorf("CheckCadence: got %s, want 15s", cfg.CheckCadence)
	}
	if cfg.RetentionKeep != 50 {
		t.Errorf("RetentionKeep: got %d, want 50", cfg.RetentionKeep)
	}
	if cfg.MaxConcurrency != 64 {
		t.Errorf("MaxConcurrency: got %d, want fallback 64", cfg.MaxConcurrency)
	}
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("SQLITE_PATH=/tmp/from-file.db\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ENV_FILE", path)
	t.Setenv("SQLITE_PATH", "")
	os.Unsetenv("SQLITE_PATH")
	t.Cleanup(func() { os.Unsetenv("SQLITE_PATH") })

	cfg := Load()
	if cfg.SQLitePath != "/tmp/from-file.db" {
		t.Errorf("SQLitePath: got %q, want value from env file", cfg.SQLitePath)
	}
}
