package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"
)

// DefaultConfigPath is read when no config path is given and the file exists
const DefaultConfigPath = "screener.yaml"

// placeholderAPIKey is the value shipped in example config files
const placeholderAPIKey = "your_api_key_here"

// ErrAPIKeyMissing is returned when no usable Alpha Vantage API key is configured
var ErrAPIKeyMissing = errors.New("alpha vantage API key not configured")

// Config holds all application configuration
type Config struct {
	AlphaVantage AlphaVantageConfig `yaml:"alpha_vantage"`
	Log          LogConfig          `yaml:"log"`
}

// AlphaVantageConfig holds Alpha Vantage API configuration
type AlphaVantageConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	CallsPerMinute int    `yaml:"calls_per_minute"` // free tier allows 5
	Burst          int    `yaml:"burst"`
	TimeoutSeconds int    `yaml:"timeout_seconds"` // per HTTP request
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// Defaults returns a Config with every default applied and no API key
func Defaults() *Config {
	return &Config{
		AlphaVantage: AlphaVantageConfig{
			BaseURL:        "https://www.alphavantage.co/query",
			CallsPerMinute: 5,
			Burst:          5,
			TimeoutSeconds: 30,
		},
		Log: LogConfig{
			Level:  "warn",
			Format: "text",
		},
	}
}

// Load builds the configuration from, in increasing precedence: defaults,
// the YAML file at path, and environment variables. An empty path falls back
// to CONFIG_PATH and then to DefaultConfigPath, which may be absent.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	explicit := path != ""
	if !explicit {
		path = getEnvString("CONFIG_PATH", "")
		explicit = path != ""
	}
	if !explicit {
		path = DefaultConfigPath
	}

	if err := cfg.mergeFile(path); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides file values with environment variables. A set but
// non-numeric integer is an error; range checks are left to Validate.
func (c *Config) applyEnv() error {
	c.AlphaVantage.APIKey = getEnvString("ALPHA_VANTAGE_API_KEY", c.AlphaVantage.APIKey)
	c.AlphaVantage.BaseURL = getEnvString("ALPHA_VANTAGE_BASE_URL", c.AlphaVantage.BaseURL)
	c.Log.Level = getEnvString("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnvString("LOG_FORMAT", c.Log.Format)

	var errs []error
	for _, f := range []struct {
		key   string
		value *int
	}{
		{"ALPHA_VANTAGE_CALLS_PER_MINUTE", &c.AlphaVantage.CallsPerMinute},
		{"ALPHA_VANTAGE_BURST", &c.AlphaVantage.Burst},
		{"ALPHA_VANTAGE_TIMEOUT_SECONDS", &c.AlphaVantage.TimeoutSeconds},
	} {
		v, err := getEnvInt(f.key, *f.value)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		*f.value = v
	}
	return errors.Join(errs...)
}

// Validate validates the configuration. The API key is checked separately by
// RequireAPIKey so a command-line flag can still supply it.
func (c *Config) Validate() error {
	if c.AlphaVantage.CallsPerMinute <= 0 {
		return fmt.Errorf("ALPHA_VANTAGE_CALLS_PER_MINUTE must be positive, got %d", c.AlphaVantage.CallsPerMinute)
	}
	if c.AlphaVantage.Burst <= 0 {
		return fmt.Errorf("ALPHA_VANTAGE_BURST must be positive, got %d", c.AlphaVantage.Burst)
	}
	if c.AlphaVantage.TimeoutSeconds <= 0 {
		return fmt.Errorf("ALPHA_VANTAGE_TIMEOUT_SECONDS must be positive, got %d", c.AlphaVantage.TimeoutSeconds)
	}
	if u, err := url.Parse(c.AlphaVantage.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("ALPHA_VANTAGE_BASE_URL must be an absolute URL, got %q", c.AlphaVantage.BaseURL)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// RequireAPIKey returns ErrAPIKeyMissing unless a real API key is configured
func (c *Config) RequireAPIKey() error {
	if !c.HasAlphaVantage() {
		return ErrAPIKeyMissing
	}
	return nil
}

// HasAlphaVantage returns true if an Alpha Vantage API key is available
func (c *Config) HasAlphaVantage() bool {
	key := strings.TrimSpace(c.AlphaVantage.APIKey)
	return key != "" && key != placeholderAPIKey
}

// JSONLogs reports whether logs should use the JSON handler
func (c *Config) JSONLogs() bool {
	return strings.EqualFold(c.Log.Format, "json")
}

func getEnvString(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue, fmt.Errorf("%s must be an integer, got %q", key, val)
	}
	return parsed, nil
}

// NewTestConfig creates a Config with default values for testing
func NewTestConfig() *Config {
	cfg := Defaults()
	cfg.AlphaVantage.APIKey = "test-api-key"
	return cfg
}
