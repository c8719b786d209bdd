package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Default port band the backend launcher binds into
const (
	DefaultPortStart = 8000
	DefaultPortEnd   = 8020
)

// Config holds client configuration
type Config struct {
	// Backend location
	Host        string `yaml:"host" json:"host"`
	Scheme      string `yaml:"scheme" json:"scheme"`
	PortStart   int    `yaml:"port_start" json:"port_start"`     // First port of the scan band (inclusive)
	PortEnd     int    `yaml:"port_end" json:"port_end"`         // Last port of the scan band (inclusive)
	DefaultPort int    `yaml:"default_port" json:"default_port"` // Used when nothing answers

	// Port hints, tried before the scan
	HintURL      string `yaml:"hint_url" json:"hint_url"`           // e.g. http://localhost:8080/api_port.txt
	HintFile     string `yaml:"hint_file" json:"hint_file"`         // api_port.txt written by the launcher
	HintListener bool   `yaml:"hint_listener" json:"hint_listener"` // Inspect local listening sockets
	WatchHint    bool   `yaml:"watch_hint" json:"watch_hint"`       // Rediscover when hint_file changes

	// Timeouts (milliseconds unless noted)
	ProbeTimeoutMS    int `yaml:"probe_timeout_ms" json:"probe_timeout_ms"`
	HintTimeoutMS     int `yaml:"hint_timeout_ms" json:"hint_timeout_ms"`
	RequestTimeoutSec int `yaml:"request_timeout_sec" json:"request_timeout_sec"` // LLM replies can be slow

	// Background health checks
	HealthIntervalSec int `yaml:"health_interval_sec" json:"health_interval_sec"`
	StartupAttempts   int `yaml:"startup_attempts" json:"startup_attempts"`
	StartupRetryMS    int `yaml:"startup_retry_ms" json:"startup_retry_ms"`

	// Degraded mode
	MockFallback bool `yaml:"mock_fallback" json:"mock_fallback"` // Synthesize chat replies when the backend is gone

	// Protection of the backend
	BreakerFailures   int     `yaml:"breaker_failures" json:"breaker_failures"`       // Consecutive transport failures before opening (negative = off)
	BreakerTimeoutSec int     `yaml:"breaker_timeout_sec" json:"breaker_timeout_sec"` // Open state duration
	RateLimit         float64 `yaml:"rate_limit" json:"rate_limit"`                   // Requests per second (0 = unlimited)
	EnableRequestID   bool    `yaml:"enable_request_id" json:"enable_request_id"`     // Send X-Request-ID on API calls

	// Logging
	LogLevel string `yaml:"log_level" json:"log_level"`
	LogFile  string `yaml:"log_file" json:"log_file"`
	LogJSON  bool   `yaml:"log_json" json:"log_json"`
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Host:              getEnv("ALEZIA_HOST", "localhost"),
		Scheme:            getEnv("ALEZIA_SCHEME", "http"),
		PortStart:         getEnvInt("ALEZIA_PORT_START", DefaultPortStart),
		PortEnd:           getEnvInt("ALEZIA_PORT_END", DefaultPortEnd),
		DefaultPort:       getEnvInt("ALEZIA_DEFAULT_PORT", DefaultPortStart),
		HintURL:           getEnv("ALEZIA_HINT_URL", ""),
		HintFile:          getEnv("ALEZIA_HINT_FILE", ""),
		HintListener:      getEnvBool("ALEZIA_HINT_LISTENER", false),
		WatchHint:         getEnvBool("ALEZIA_WATCH_HINT", false),
		ProbeTimeoutMS:    getEnvInt("ALEZIA_PROBE_TIMEOUT_MS", 500),
		HintTimeoutMS:     getEnvInt("ALEZIA_HINT_TIMEOUT_MS", 300),
		RequestTimeoutSec: getEnvInt("ALEZIA_REQUEST_TIMEOUT", 120), // Matches the backend's long-request timeout
		HealthIntervalSec: getEnvInt("ALEZIA_HEALTH_INTERVAL", 15),
		StartupAttempts:   getEnvInt("ALEZIA_STARTUP_ATTEMPTS", 10),
		StartupRetryMS:    getEnvInt("ALEZIA_STARTUP_RETRY_MS", 1000),
		MockFallback:      getEnvBool("ALEZIA_MOCK_FALLBACK", false),
		BreakerFailures:   getEnvInt("ALEZIA_BREAKER_FAILURES", 5),
		BreakerTimeoutSec: getEnvInt("ALEZIA_BREAKER_TIMEOUT", 30),
		RateLimit:         getEnvFloat("ALEZIA_RATE_LIMIT", 0),
		EnableRequestID:   getEnvBool("ALEZIA_REQUEST_ID", true),
		LogLevel:          getEnv("ALEZIA_LOG_LEVEL", "info"),
		LogFile:           getEnv("ALEZIA_LOG_FILE", ""),
		LogJSON:           getEnvBool("ALEZIA_LOG_JSON", false),
	}
}

// ProbeTimeout returns the per-probe deadline
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutMS) * time.Millisecond
}

// HintTimeout returns the deadline for reading a port hint
func (c *Config) HintTimeout() time.Duration {
	return time.Duration(c.HintTimeoutMS) * time.Millisecond
}

// RequestTimeout returns the deadline for one API call
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

// HealthInterval returns the period of the background health check
func (c *Config) HealthInterval() time.Duration {
	return time.Duration(c.HealthIntervalSec) * time.Second
}

// StartupRetryDelay returns the pause between startup connection attempts
func (c *Config) StartupRetryDelay() time.Duration {
	return time.Duration(c.StartupRetryMS) * time.Millisecond
}

// BreakerTimeout returns how long the circuit breaker stays open
func (c *Config) BreakerTimeout() time.Duration {
	return time.Duration(c.BreakerTimeoutSec) * time.Second
}

// DefaultBaseURL is the handle used when no candidate answers
func (c *Config) DefaultBaseURL() string {
	return c.Scheme + "://" + net.JoinHostPort(c.Host, strconv.Itoa(c.DefaultPort))
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host must not be empty")
	}
	if c.Scheme != "http" && c.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q (use http or https)", c.Scheme)
	}
	if c.PortStart < 1 || c.PortEnd > 65535 || c.PortStart > c.PortEnd {
		return fmt.Errorf("invalid port band %d-%d", c.PortStart, c.PortEnd)
	}
	if c.DefaultPort < 1 || c.DefaultPort > 65535 {
		return fmt.Errorf("invalid default port %d", c.DefaultPort)
	}
	if c.ProbeTimeoutMS <= 0 || c.ProbeTimeoutMS > 500 {
		return fmt.Errorf("probe timeout must be in 1-500ms, got %d", c.ProbeTimeoutMS)
	}
	if c.HintTimeoutMS <= 0 || c.HintTimeoutMS > 300 {
		return fmt.Errorf("hint timeout must be in 1-300ms, got %d", c.HintTimeoutMS)
	}
	if c.HealthIntervalSec <= 0 {
		return fmt.Errorf("health interval must be positive, got %d", c.HealthIntervalSec)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit must not be negative")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Booleans that default to true are seeded before decoding; an absent key
	// keeps the seed and an explicit false overrides it.
	cfg := &Config{EnableRequestID: true}

	ext := filepath.Ext(path)
	if ext == ".yaml" || ext == ".yml" {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	} else if ext == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	} else {
		return nil, fmt.Errorf("unsupported config file format: %s (use .yaml, .yml, or .json)", ext)
	}

	// Apply defaults for any missing values
	cfg.applyDefaults()

	return cfg, nil
}

// SaveToFile saves configuration to a YAML or JSON file
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	ext := filepath.Ext(path)
	if ext == ".yaml" || ext == ".yml" {
		data, err = yaml.Marshal(c)
		if err != nil {
			return fmt.Errorf("failed to marshal YAML: %w", err)
		}
	} else if ext == ".json" {
		data, err = json.MarshalIndent(c, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
	} else {
		return fmt.Errorf("unsupported config file format: %s (use .yaml, .yml, or .json)", ext)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadWithPriority loads config with priority: file > env > defaults
func LoadWithPriority(configPath string) (*Config, error) {
	var cfg *Config
	var err error

	if configPath != "" {
		cfg, err = LoadFromFile(configPath)
		if err != nil {
			return nil, err
		}
	} else {
		// Check for default config file locations
		homeDir, _ := os.UserHomeDir()
		configDirs := []string{
			filepath.Join(homeDir, ".alezia", "client.yaml"),
			filepath.Join(homeDir, ".alezia", "client.yml"),
			filepath.Join(homeDir, ".alezia", "client.json"),
			"alezia.yaml",
			"alezia.yml",
			"alezia.json",
		}

		for _, path := range configDirs {
			if _, err := os.Stat(path); err == nil {
				cfg, err = LoadFromFile(path)
				if err != nil {
					return nil, err
				}
				break
			}
		}

		// If no file found, use defaults
		if cfg == nil {
			cfg = LoadConfig()
		}
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// applyDefaults sets default values for unset fields
func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Scheme == "" {
		c.Scheme = "http"
	}
	if c.PortStart == 0 {
		c.PortStart = DefaultPortStart
	}
	if c.PortEnd == 0 {
		c.PortEnd = DefaultPortEnd
	}
	if c.DefaultPort == 0 {
		c.DefaultPort = c.PortStart
	}
	if c.ProbeTimeoutMS == 0 {
		c.ProbeTimeoutMS = 500
	}
	if c.HintTimeoutMS == 0 {
		c.HintTimeoutMS = 300
	}
	if c.RequestTimeoutSec == 0 {
		c.RequestTimeoutSec = 120
	}
	if c.HealthIntervalSec == 0 {
		c.HealthIntervalSec = 15
	}
	if c.StartupAttempts == 0 {
		c.StartupAttempts = 10
	}
	if c.StartupRetryMS == 0 {
		c.StartupRetryMS = 1000
	}
	if c.BreakerFailures == 0 {
		c.BreakerFailures = 5
	}
	if c.BreakerTimeoutSec == 0 {
		c.BreakerTimeoutSec = 30
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// applyEnvOverrides overrides config with environment variables
func (c *Config) applyEnvOverrides() {
	if host := getEnv("ALEZIA_HOST", ""); host != "" {
		c.Host = host
	}
	if scheme := getEnv("ALEZIA_SCHEME", ""); scheme != "" {
		c.Scheme = scheme
	}
	if start := getEnvInt("ALEZIA_PORT_START", 0); start != 0 {
		c.PortStart = start
	}
	if end := getEnvInt("ALEZIA_PORT_END", 0); end != 0 {
		c.PortEnd = end
	}
	if port := getEnvInt("ALEZIA_DEFAULT_PORT", 0); port != 0 {
		c.DefaultPort = port
	}
	if url := getEnv("ALEZIA_HINT_URL", ""); url != "" {
		c.HintURL = url
	}
	if file := getEnv("ALEZIA_HINT_FILE", ""); file != "" {
		c.HintFile = file
	}
	if listener := os.Getenv("ALEZIA_HINT_LISTENER"); listener != "" {
		c.HintListener = getEnvBool("ALEZIA_HINT_LISTENER", false)
	}
	if watch := os.Getenv("ALEZIA_WATCH_HINT"); watch != "" {
		c.WatchHint = getEnvBool("ALEZIA_WATCH_HINT", false)
	}
	if timeout := getEnvInt("ALEZIA_PROBE_TIMEOUT_MS", 0); timeout != 0 {
		c.ProbeTimeoutMS = timeout
	}
	if timeout := getEnvInt("ALEZIA_HINT_TIMEOUT_MS", 0); timeout != 0 {
		c.HintTimeoutMS = timeout
	}
	if timeout := getEnvInt("ALEZIA_REQUEST_TIMEOUT", 0); timeout != 0 {
		c.RequestTimeoutSec = timeout
	}
	if interval := getEnvInt("ALEZIA_HEALTH_INTERVAL", 0); interval != 0 {
		c.HealthIntervalSec = interval
	}
	if attempts := getEnvInt("ALEZIA_STARTUP_ATTEMPTS", 0); attempts != 0 {
		c.StartupAttempts = attempts
	}
	if retry := getEnvInt("ALEZIA_STARTUP_RETRY_MS", 0); retry != 0 {
		c.StartupRetryMS = retry
	}
	if mock := os.Getenv("ALEZIA_MOCK_FALLBACK"); mock != "" {
		c.MockFallback = getEnvBool("ALEZIA_MOCK_FALLBACK", false)
	}
	if failures := os.Getenv("ALEZIA_BREAKER_FAILURES"); failures != "" {
		c.BreakerFailures = getEnvInt("ALEZIA_BREAKER_FAILURES", c.BreakerFailures)
	}
	if timeout := getEnvInt("ALEZIA_BREAKER_TIMEOUT", 0); timeout != 0 {
		c.BreakerTimeoutSec = timeout
	}
	if limit := os.Getenv("ALEZIA_RATE_LIMIT"); limit != "" {
		c.RateLimit = getEnvFloat("ALEZIA_RATE_LIMIT", c.RateLimit)
	}
	if reqID := os.Getenv("ALEZIA_REQUEST_ID"); reqID != "" {
		c.EnableRequestID = getEnvBool("ALEZIA_REQUEST_ID", true)
	}
	if level := getEnv("ALEZIA_LOG_LEVEL", ""); level != "" {
		c.LogLevel = level
	}
	if file := getEnv("ALEZIA_LOG_FILE", ""); file != "" {
		c.LogFile = file
	}
	if logJSON := os.Getenv("ALEZIA_LOG_JSON"); logJSON != "" {
		c.LogJSON = getEnvBool("ALEZIA_LOG_JSON", false)
	}
}
