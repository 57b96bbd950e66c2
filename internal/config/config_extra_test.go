package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSchedulerDefaultsFromFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")
	content := `tick_interval_default_ms = 20000
batch_size_default = 50
http_timeout_default_ms = 10000
`
	if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("PULSEWARD_DATA_DIR", dir)
	t.Setenv("PULSEWARD_LISTEN", "")
	t.Setenv("DISPATCH_TOKEN", "")

	cfg := Load()
	if cfg.TickIntervalDefault != 20*time.Second {
		t.Fatalf("TickIntervalDefault = %s, want 20s", cfg.TickIntervalDefault)
	}
	if cfg.BatchSizeDefault != 50 {
		t.Fatalf("BatchSizeDefault = %d, want 50", cfg.BatchSizeDefault)
	}
	if cfg.HTTPTimeoutDefault != 10*time.Second {
		t.Fatalf("HTTPTimeoutDefault = %s, want 10s", cfg.HTTPTimeoutDefault)
	}
}

func TestSchedulerDefaultsInvalidValuesKeepDefault(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")
	// Zero/negative values in the file must not override the built-in defaults.
	content := `tick_interval_default_ms = 0
batch_size_default = 0
`
	if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("PULSEWARD_DATA_DIR", dir)
	t.Setenv("PULSEWARD_LISTEN", "")
	t.Setenv("DISPATCH_TOKEN", "")

	cfg := Load()
	if cfg.TickIntervalDefault != 15*time.Second {
		t.Fatalf("TickIntervalDefault = %s, want default 15s", cfg.TickIntervalDefault)
	}
	if cfg.BatchSizeDefault != 100 {
		t.Fatalf("BatchSizeDefault = %d, want default 100", cfg.BatchSizeDefault)
	}
}

func TestAnalyticsConfigFromFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")
	content := `ae_account_id = "file-account"
ae_heartbeats_dataset = "file-dataset"
clickhouse_addr = "ch.internal:9000"
`
	if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("PULSEWARD_DATA_DIR", dir)
	t.Setenv("PULSEWARD_LISTEN", "")
	t.Setenv("DISPATCH_TOKEN", "")
	t.Setenv("AE_ACCOUNT_ID", "")
	t.Setenv("AE_HEARTBEATS_DATASET", "")

	cfg := Load()
	if cfg.Analytics.AccountID != "file-account" {
		t.Fatalf("AccountID = %q, want file-account", cfg.Analytics.AccountID)
	}
	if !cfg.Analytics.Enabled() {
		t.Fatal("Analytics.Enabled() = false, want true when both fields are set")
	}
	if cfg.Analytics.ClickHouseAddr != "ch.internal:9000" {
		t.Fatalf("ClickHouseAddr = %q, want ch.internal:9000", cfg.Analytics.ClickHouseAddr)
	}

	// Env overrides file.
	t.Setenv("AE_ACCOUNT_ID", "env-account")
	cfg = Load()
	if cfg.Analytics.AccountID != "env-account" {
		t.Fatalf("AccountID = %q, want env-account", cfg.Analytics.AccountID)
	}
}

func TestRedisConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")
	content := `redis_addr = "127.0.0.1:6379"
redis_db = 2
`
	if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("PULSEWARD_DATA_DIR", dir)
	t.Setenv("PULSEWARD_LISTEN", "")
	t.Setenv("DISPATCH_TOKEN", "")
	t.Setenv("PULSEWARD_REDIS_ADDR", "")

	cfg := Load()
	if cfg.Redis.Addr != "127.0.0.1:6379" {
		t.Fatalf("Redis.Addr = %q, want 127.0.0.1:6379", cfg.Redis.Addr)
	}
	if cfg.Redis.DB != 2 {
		t.Fatalf("Redis.DB = %d, want 2", cfg.Redis.DB)
	}
}
