package config

import (
	"errors"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// LocationHints enumerates the six coarse geographies a Ticker instance may
// be pinned to. Anything else is logged and ignored.
var LocationHints = map[string]bool{
	"wnam": true, "enam": true, "weur": true, "eeur": true, "apac": true, "oc": true,
}

type Config struct {
	ListenAddr   string
	DataDir      string
	LogLevel     string
	DispatchToken string

	TickIntervalDefault time.Duration
	BatchSizeDefault    int
	HTTPTimeoutDefault  time.Duration
	TickerLocationHint  string

	// DispatcherURL is where a Ticker process sends dispatch requests.
	// Unused by the Dispatcher role itself.
	DispatcherURL string

	// Region/Colo identify where this process instance runs, stamped onto
	// every heartbeat the Dispatcher records (spec.md §4.2: "region/colo
	// come from the inbound request's runtime metadata, defaulting to
	// unknown if absent"). Unlike TickerLocationHint these describe the
	// Dispatcher side, not the tenant scheduling side.
	Region string
	Colo   string

	Analytics AnalyticsConfig
	Redis     RedisConfig
}

// AnalyticsConfig selects between the ClickHouse-backed analytics sink and
// the local SQLite heartbeats-table fallback. See internal/analytics.
type AnalyticsConfig struct {
	AccountID        string
	HeartbeatsDataset string
	APIToken         string
	ClickHouseAddr   string
	ClickHouseDB     string
	ClickHouseUser   string
	ClickHousePass   string
}

// Enabled reports whether enough configuration is present to use the
// ClickHouse sink instead of the local fallback table.
func (a AnalyticsConfig) Enabled() bool {
	return a.AccountID != "" && a.HeartbeatsDataset != ""
}

// RedisConfig backs the JWKS TTL cache used by the externally-facing
// router (out of scope here beyond configuration plumbing).
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

var (
	osUserHomeDir = os.UserHomeDir
	osCurrentUser = user.Current
	osGeteuid     = os.Geteuid
	osTempDir     = os.TempDir
)

// fileConfig mirrors the on-disk TOML shape. Fields are exported and
// carry explicit toml tags naming the file's snake_case keys.
type fileConfig struct {
	Listen               string `toml:"listen"`
	LogLevel             string `toml:"log_level"`
	DispatchToken        string `toml:"dispatch_token"`
	TickIntervalDefaultMs int64  `toml:"tick_interval_default_ms"`
	BatchSizeDefault     int    `toml:"batch_size_default"`
	HTTPTimeoutDefaultMs int64  `toml:"http_timeout_default_ms"`
	TickerLocationHint   string `toml:"ticker_location_hint"`
	DispatcherURL        string `toml:"dispatcher_url"`

	AEAccountID         string `toml:"ae_account_id"`
	AEHeartbeatsDataset string `toml:"ae_heartbeats_dataset"`
	AEAPIToken          string `toml:"ae_api_token"`
	ClickHouseAddr      string `toml:"clickhouse_addr"`
	ClickHouseDB        string `toml:"clickhouse_db"`
	ClickHouseUser      string `toml:"clickhouse_user"`
	ClickHousePass      string `toml:"clickhouse_pass"`

	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`

	Region string `toml:"region"`
	Colo   string `toml:"colo"`
}

const defaultConfigContent = `# pulseward configuration
# All values shown are defaults. Uncomment and edit to customize.

# Address and port the internal RPC server listens on.
# Environment variable: PULSEWARD_LISTEN
# listen = "127.0.0.1:8787"

# Log level: debug, info, warn, error.
# Environment variable: PULSEWARD_LOG_LEVEL
# log_level = "info"

# Shared secret the Ticker presents to the Dispatcher's /internal/dispatch/run.
# Environment variable: DISPATCH_TOKEN
# dispatch_token = ""

# Scheduler defaults (per §4.1); individual tenants may override via bootstrap.
# tick_interval_default_ms = 15000
# batch_size_default = 100
# http_timeout_default_ms = 30000

# One of wnam|enam|weur|eeur|apac|oc. Anything else is logged and ignored.
# Environment variable: TICKER_LOCATION_HINT
# ticker_location_hint = ""

# Where this Ticker sends dispatch requests, e.g. "http://127.0.0.1:8788".
# Unused by the dispatcher role.
# Environment variable: PULSEWARD_DISPATCHER_URL
# dispatcher_url = ""

# Analytics sink. When ae_account_id/ae_heartbeats_dataset are both set,
# heartbeats are written to ClickHouse instead of the local fallback table.
# Environment variables: AE_ACCOUNT_ID, AE_HEARTBEATS_DATASET, AE_API_TOKEN
# ae_account_id = ""
# ae_heartbeats_dataset = ""
# ae_api_token = ""
# clickhouse_addr = "127.0.0.1:9000"
# clickhouse_db = "pulseward"
# clickhouse_user = "default"
# clickhouse_pass = ""

# JWKS cache backing store for the externally-facing router.
# redis_addr = ""
# redis_password = ""
# redis_db = 0

# Stamped onto every heartbeat this Dispatcher instance records.
# Environment variables: PULSEWARD_REGION, PULSEWARD_COLO
# region = "unknown"
# colo = "unknown"
`

func Load() Config {
	cfg := Config{
		ListenAddr:          "127.0.0.1:8787",
		LogLevel:            "info",
		TickIntervalDefault: 15 * time.Second,
		BatchSizeDefault:    100,
		HTTPTimeoutDefault:  30 * time.Second,
	}

	cfg.DataDir = resolveDataDir()
	configPath := filepath.Join(cfg.DataDir, "config.toml")
	ensureDefaultConfig(configPath)

	var file fileConfig
	_, _ = toml.DecodeFile(configPath, &file)

	applyCoreConfig(&cfg, file)
	applyAnalyticsConfig(&cfg, file)
	applyRedisConfig(&cfg, file)

	return cfg
}

func resolveDataDir() string {
	if v := strings.TrimSpace(os.Getenv("PULSEWARD_DATA_DIR")); v != "" {
		return v
	}
	if home, err := resolveHomeDir(); err == nil {
		return filepath.Join(home, ".pulseward")
	}
	return filepath.Join(osTempDir(), "pulseward")
}

func ensureDefaultConfig(configPath string) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		writeDefaultConfig(configPath)
	}
}

func applyCoreConfig(cfg *Config, file fileConfig) {
	if listen := readRawEnvOrFile("PULSEWARD_LISTEN", file.Listen); listen != "" {
		cfg.ListenAddr = listen
	}
	if level := readRawEnvOrFile("PULSEWARD_LOG_LEVEL", file.LogLevel); level != "" {
		cfg.LogLevel = strings.ToLower(level)
	}
	cfg.DispatchToken = readRawEnvOrFile("DISPATCH_TOKEN", file.DispatchToken)

	if ms := file.TickIntervalDefaultMs; ms > 0 {
		cfg.TickIntervalDefault = time.Duration(ms) * time.Millisecond
	}
	if n := file.BatchSizeDefault; n > 0 {
		cfg.BatchSizeDefault = n
	}
	if ms := file.HTTPTimeoutDefaultMs; ms > 0 {
		cfg.HTTPTimeoutDefault = time.Duration(ms) * time.Millisecond
	}

	hint := strings.ToLower(readRawEnvOrFile("TICKER_LOCATION_HINT", file.TickerLocationHint))
	if hint != "" {
		if LocationHints[hint] {
			cfg.TickerLocationHint = hint
		} else {
			// An unrecognized hint is ignored with a warning.
			slog.Warn("config: ignoring unrecognized ticker location hint", "hint", hint)
		}
	}

	cfg.Region = orDefault(readRawEnvOrFile("PULSEWARD_REGION", file.Region), "unknown")
	cfg.Colo = orDefault(readRawEnvOrFile("PULSEWARD_COLO", file.Colo), "unknown")
	cfg.DispatcherURL = readRawEnvOrFile("PULSEWARD_DISPATCHER_URL", file.DispatcherURL)
}

func applyAnalyticsConfig(cfg *Config, file fileConfig) {
	cfg.Analytics = AnalyticsConfig{
		AccountID:         readRawEnvOrFile("AE_ACCOUNT_ID", file.AEAccountID),
		HeartbeatsDataset: readRawEnvOrFile("AE_HEARTBEATS_DATASET", file.AEHeartbeatsDataset),
		APIToken:          readRawEnvOrFile("AE_API_TOKEN", file.AEAPIToken),
		ClickHouseAddr:    orDefault(file.ClickHouseAddr, "127.0.0.1:9000"),
		ClickHouseDB:      orDefault(file.ClickHouseDB, "pulseward"),
		ClickHouseUser:    orDefault(file.ClickHouseUser, "default"),
		ClickHousePass:    file.ClickHousePass,
	}
}

func applyRedisConfig(cfg *Config, file fileConfig) {
	cfg.Redis = RedisConfig{
		Addr:     readRawEnvOrFile("PULSEWARD_REDIS_ADDR", file.RedisAddr),
		Password: file.RedisPassword,
		DB:       file.RedisDB,
	}
}

func readRawEnvOrFile(envKey, fileValue string) string {
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		return v
	}
	return strings.TrimSpace(fileValue)
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

func writeDefaultConfig(path string) {
	_ = os.MkdirAll(filepath.Dir(path), 0o700)
	_ = os.WriteFile(path, []byte(defaultConfigContent), 0o600) //nolint:gosec // fixed content, not user input
}

func resolveHomeDir() (string, error) {
	if home := strings.TrimSpace(os.Getenv("HOME")); home != "" {
		return home, nil
	}
	if home, err := osUserHomeDir(); err == nil && strings.TrimSpace(home) != "" {
		return strings.TrimSpace(home), nil
	}
	if current, err := osCurrentUser(); err == nil && current != nil {
		if home := strings.TrimSpace(current.HomeDir); home != "" {
			return home, nil
		}
	}
	if osGeteuid() == 0 {
		if runtime.GOOS == "darwin" {
			return "/var/root", nil
		}
		return "/root", nil
	}
	return "", errors.New("home directory not found")
}
