// Package config loads tracker settings from defaults, an optional YAML file,
// a .env file, the environment and command-line flags, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"token-call-tracker/internal/logging"
)

// EnvPrefix is the prefix for environment overrides (TRACKER_TRACKER_WORKERS, ...).
const EnvPrefix = "TRACKER"

// DefaultSQLitePath is used when no database URL is configured.
const DefaultSQLitePath = "token_tracker.db"

// Config is the full tracker configuration.
type Config struct {
	Database    DatabaseConfig   `mapstructure:"database"`
	Birdeye     ProviderConfig   `mapstructure:"birdeye"`
	DexScreener ProviderConfig   `mapstructure:"dexscreener"`
	GoPlus      ProviderConfig   `mapstructure:"goplus"`
	HTTP        HTTPConfig       `mapstructure:"http"`
	Cache       CacheConfig      `mapstructure:"cache"`
	Breaker     BreakerConfig    `mapstructure:"breaker"`
	Tracker     TrackerConfig    `mapstructure:"tracker"`
	DeadLetter  DeadLetterConfig `mapstructure:"dead_letter"`
	ClickHouse  ClickHouseConfig `mapstructure:"clickhouse"`
	Metrics     MetricsConfig    `mapstructure:"metrics"`
	Log         logging.Config   `mapstructure:"log"`
}

// DatabaseConfig selects the storage backend.
type DatabaseConfig struct {
	URL           string `mapstructure:"url"`
	MaxConns      int32  `mapstructure:"max_conns"`
	BusyTimeoutMs int    `mapstructure:"busy_timeout_ms"`
}

// ProviderConfig holds one upstream provider's endpoint and credential.
type ProviderConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// HTTPConfig applies to every provider call.
type HTTPConfig struct {
	Timeout       time.Duration `mapstructure:"timeout"`
	Retries       int           `mapstructure:"retries"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	MaxRetryDelay time.Duration `mapstructure:"max_retry_delay"`
}

// CacheConfig controls the response cache.
type CacheConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// BreakerConfig controls the primary escalating breaker and the degraded breakers.
type BreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	BaseCooldown     time.Duration `mapstructure:"base_cooldown"`
	Escalation       float64       `mapstructure:"escalation"`
	MaxCooldown      time.Duration `mapstructure:"max_cooldown"`
	DegradedCooldown time.Duration `mapstructure:"degraded_cooldown"`
}

// TrackerConfig controls batch selection and dispatch.
type TrackerConfig struct {
	Workers         int     `mapstructure:"workers"`
	Sequential      bool    `mapstructure:"sequential"`
	Limit           int     `mapstructure:"limit"`
	MinAgeHours     float64 `mapstructure:"min_age_hours"`
	HitThresholdPct float64 `mapstructure:"hit_threshold_pct"`
}

// DeadLetterConfig selects the dead-letter backing store.
type DeadLetterConfig struct {
	Path       string `mapstructure:"path"`
	MaxEntries int    `mapstructure:"max_entries"`
}

// ClickHouseConfig enables the history archive when DSN is set.
type ClickHouseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// MetricsConfig enables the Pushgateway push when PushgatewayURL is set.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

var defaults = map[string]any{
	"database.url":             "",
	"database.max_conns":       0,
	"database.busy_timeout_ms": 5000,

	"birdeye.api_key":      "",
	"birdeye.base_url":     "https://public-api.birdeye.so",
	"dexscreener.base_url": "https://api.dexscreener.com",
	"goplus.base_url":      "https://api.gopluslabs.io",

	"http.timeout":         10 * time.Second,
	"http.retries":         1,
	"http.retry_delay":     time.Second,
	"http.max_retry_delay": 5 * time.Second,

	"cache.ttl": 60 * time.Second,

	"breaker.failure_threshold": 3,
	"breaker.base_cooldown":     30 * time.Second,
	"breaker.escalation":        2.0,
	"breaker.max_cooldown":      10 * time.Minute,
	"breaker.degraded_cooldown": 30 * time.Second,

	"tracker.workers":           4,
	"tracker.sequential":        false,
	"tracker.limit":             0,
	"tracker.min_age_hours":     0.0,
	"tracker.hit_threshold_pct": 50.0,

	"dead_letter.path":        "",
	"dead_letter.max_entries": 1000,

	"clickhouse.dsn": "",

	"metrics.pushgateway_url": "",
	"metrics.job":             "token_tracker",

	"log.level":        "info",
	"log.file":         "",
	"log.max_size_mb":  50,
	"log.max_backups":  3,
	"log.max_age_days": 14,
	"log.compress":     true,
}

// legacyEnv maps config keys to the plain environment names used by deployments
// that predate the TRACKER_ prefix.
var legacyEnv = map[string]string{
	"birdeye.api_key": "BIRDEYE_API_KEY",
	"database.url":    "DATABASE_URL",
	"log.level":       "LOG_LEVEL",
}

// flagKeys maps CLI flags registered by RegisterFlags to config keys.
var flagKeys = map[string]string{
	"workers":    "tracker.workers",
	"sequential": "tracker.sequential",
	"limit":      "tracker.limit",
	"min-age":    "tracker.min_age_hours",
	"db":         "database.url",
	"log-level":  "log.level",
}

// RegisterFlags adds the configuration flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to YAML config file")
	fs.String("env-file", ".env", "Path to .env file (ignored if missing)")
	fs.Int("workers", 4, "Number of concurrent workers")
	fs.Bool("sequential", false, "Process positions one at a time")
	fs.Int("limit", 0, "Track only the N most recently created positions (0 = all)")
	fs.Float64("min-age", 0, "Skip positions younger than this many hours")
	fs.String("db", "", "Database URL: postgres://..., sqlite path, or 'memory'")
	fs.String("log-level", "info", "Log level: debug, info, warn, error")
}

// Load resolves the configuration. flags may be nil.
func Load(flags *pflag.FlagSet) (*Config, error) {
	envFile := ".env"
	configFile := ""
	if flags != nil {
		if f := flags.Lookup("env-file"); f != nil {
			envFile = f.Value.String()
		}
		if f := flags.Lookup("config"); f != nil {
			configFile = f.Value.String()
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks numeric ranges and the log level.
// A missing Birdeye key is allowed: the fetcher then runs fallback-only.
func (c *Config) Validate() error {
	var errs []error

	if c.Tracker.Workers < 1 {
		errs = append(errs, errors.New("tracker.workers must be >= 1"))
	}
	if c.Tracker.Limit < 0 {
		errs = append(errs, errors.New("tracker.limit must be >= 0"))
	}
	if c.Tracker.MinAgeHours < 0 {
		errs = append(errs, errors.New("tracker.min_age_hours must be >= 0"))
	}
	if c.Breaker.FailureThreshold < 1 {
		errs = append(errs, errors.New("breaker.failure_threshold must be >= 1"))
	}
	if c.Breaker.Escalation < 1 {
		errs = append(errs, errors.New("breaker.escalation must be >= 1"))
	}
	if c.Breaker.BaseCooldown <= 0 {
		errs = append(errs, errors.New("breaker.base_cooldown must be positive"))
	}
	if c.Breaker.MaxCooldown < c.Breaker.BaseCooldown {
		errs = append(errs, errors.New("breaker.max_cooldown must be >= breaker.base_cooldown"))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, errors.New("cache.ttl must be positive"))
	}
	if c.HTTP.Timeout <= 0 {
		errs = append(errs, errors.New("http.timeout must be positive"))
	}
	if c.HTTP.Retries < 0 {
		errs = append(errs, errors.New("http.retries must be >= 0"))
	}
	if c.DeadLetter.MaxEntries < 1 {
		errs = append(errs, errors.New("dead_letter.max_entries must be >= 1"))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if _, _, err := c.Database.Backend(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Storage backends.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Backend returns the storage backend and its connection target.
func (d DatabaseConfig) Backend() (backend, target string, err error) {
	url := strings.TrimSpace(d.URL)
	switch {
	case url == "":
		return BackendSQLite, DefaultSQLitePath, nil
	case url == "memory":
		return BackendMemory, "", nil
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return BackendPostgres, url, nil
	case strings.HasPrefix(url, "sqlite://"):
		path := strings.TrimPrefix(url, "sqlite://")
		if path == "" {
			return "", "", errors.New("database.url: sqlite:// needs a path")
		}
		return BackendSQLite, path, nil
	case strings.Contains(url, "://"):
		return "", "", fmt.Errorf("database.url: unsupported scheme in %q", url)
	default:
		return BackendSQLite, url, nil
	}
}
