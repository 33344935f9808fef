package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the knsearch API configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Engine    EngineConfig    `yaml:"engine"`
	Breaker   BreakerConfig   `yaml:"breaker"`
	Cache     CacheConfig     `yaml:"cache"`
	Indexer   IndexerConfig   `yaml:"indexer"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Auth      AuthConfig      `yaml:"auth"`
	Upstreams UpstreamsConfig `yaml:"upstreams"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds cache store connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// EngineConfig holds search engine client settings. Refresh makes the
// write-to-search visibility window an explicit knob: wait_for (default),
// true, or false.
type EngineConfig struct {
	BaseURL    string `yaml:"base_url"`
	Index      string `yaml:"index"`
	TimeoutSec int    `yaml:"timeout_sec"`
	Refresh    string `yaml:"refresh"`
}

// BreakerConfig holds circuit breaker thresholds.
type BreakerConfig struct {
	FailureThreshold    int     `yaml:"failure_threshold"`
	HalfOpenMaxAttempts int     `yaml:"half_open_max_attempts"`
	ResetTimeoutSec     int     `yaml:"reset_timeout_sec"`
	BackoffFactor       float64 `yaml:"backoff_factor"`
	MaxResetTimeoutSec  int     `yaml:"max_reset_timeout_sec"`
}

// CacheConfig holds result cache settings.
type CacheConfig struct {
	KeyPrefix    string `yaml:"key_prefix"`
	ResultTTLSec int    `yaml:"result_ttl_sec"`
}

// IndexerConfig holds batching pipeline settings.
type IndexerConfig struct {
	DebounceMS   int `yaml:"debounce_ms"`
	MaxBatchSize int `yaml:"max_batch_size"`
}

// MonitorConfig holds performance monitoring settings.
type MonitorConfig struct {
	WindowSize        int     `yaml:"window_size"`
	AlertLatencyP95MS int     `yaml:"alert_latency_p95_ms"`
	AlertErrorRate    float64 `yaml:"alert_error_rate"`
}

// UpstreamsConfig holds the external collaborator endpoints.
type UpstreamsConfig struct {
	PermissionsBaseURL string `yaml:"permissions_base_url"`
	EntityStoreBaseURL string `yaml:"entity_store_base_url"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Engine.Index == "" {
		c.Engine.Index = "knowledge"
	}
	if c.Engine.TimeoutSec <= 0 {
		c.Engine.TimeoutSec = 10
	}
	if c.Engine.Refresh == "" {
		c.Engine.Refresh = "wait_for"
	}
	if c.Breaker.FailureThreshold <= 0 {
		c.Breaker.FailureThreshold = 5
	}
	if c.Breaker.HalfOpenMaxAttempts <= 0 {
		c.Breaker.HalfOpenMaxAttempts = 3
	}
	if c.Breaker.ResetTimeoutSec <= 0 {
		c.Breaker.ResetTimeoutSec = 30
	}
	if c.Breaker.BackoffFactor <= 0 {
		c.Breaker.BackoffFactor = 2
	}
	if c.Breaker.MaxResetTimeoutSec <= 0 {
		c.Breaker.MaxResetTimeoutSec = 300
	}
	if c.Cache.KeyPrefix == "" {
		c.Cache.KeyPrefix = "knsearch:"
	}
	if c.Cache.ResultTTLSec <= 0 {
		c.Cache.ResultTTLSec = 300
	}
	if c.Indexer.DebounceMS <= 0 {
		c.Indexer.DebounceMS = 100
	}
	if c.Indexer.MaxBatchSize <= 0 {
		c.Indexer.MaxBatchSize = 500
	}
	if c.Monitor.WindowSize <= 0 {
		c.Monitor.WindowSize = 1024
	}
	if c.Monitor.AlertLatencyP95MS <= 0 {
		c.Monitor.AlertLatencyP95MS = 1000
	}
	if c.Monitor.AlertErrorRate <= 0 {
		c.Monitor.AlertErrorRate = 0.1
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	if c.Engine.BaseURL == "" {
		return fmt.Errorf("engine.base_url is required")
	}
	switch c.Engine.Refresh {
	case "wait_for", "true", "false":
		// ok
	default:
		return fmt.Errorf(
			"engine.refresh must be \"wait_for\", \"true\" or \"false\", got %q",
			c.Engine.Refresh,
		)
	}
	if c.Breaker.BackoffFactor < 1 {
		return fmt.Errorf("breaker.backoff_factor must be >= 1, got %g", c.Breaker.BackoffFactor)
	}
	if c.Monitor.AlertErrorRate < 0 || c.Monitor.AlertErrorRate > 1 {
		return fmt.Errorf("monitor.alert_error_rate must be between 0 and 1, got %g", c.Monitor.AlertErrorRate)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
