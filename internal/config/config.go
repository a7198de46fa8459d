// Package config provides configuration types and helpers for sift.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
)

// Config holds the application-wide configuration.
type Config struct {
	Format  string `mapstructure:"format"`
	Verbose bool   `mapstructure:"verbose"`
	Debug   bool   `mapstructure:"debug"`
	// Color is "auto", "always", or "never".
	Color string `mapstructure:"color"`

	Input   string `mapstructure:"input"`
	Output  string `mapstructure:"output"`
	Workers int    `mapstructure:"workers"`
	// Timeout bounds each transform, e.g. "30s" or "2m". Empty means none.
	Timeout    string `mapstructure:"timeout"`
	ReportName string `mapstructure:"report_name"`
	// CaptureLevel is the minimum level recorded from preprocessor loggers.
	CaptureLevel string `mapstructure:"capture_level"`

	Policy        PolicyConfig        `mapstructure:"policy"`
	Preprocessors PreprocessorsConfig `mapstructure:"preprocessors"`
	Store         StoreConfig         `mapstructure:"store"`
	Redaction     RedactionConfig     `mapstructure:"redaction"`
	Watch         WatchConfig         `mapstructure:"watch"`
	LLM           LLMConfig           `mapstructure:"llm"`
}

// PolicyConfig locates the policy document handed to preprocessors.
type PolicyConfig struct {
	// Location is a path or go-getter URL. Empty means no policy.
	Location string `mapstructure:"location"`
}

// PreprocessorsConfig locates the preprocessor manifest.
type PreprocessorsConfig struct {
	// Manifest is a path or go-getter URL to a YAML or TOML manifest.
	// Empty uses the built-in text redaction preprocessor only.
	Manifest string `mapstructure:"manifest"`
	// CacheDir receives downloaded manifests, modules, and policies.
	// Empty uses a temporary directory removed after the run.
	CacheDir string `mapstructure:"cache_dir"`
	// ModuleCache is how many compiled WASM modules are kept.
	ModuleCache int `mapstructure:"module_cache"`
}

// StoreConfig selects where output is written.
type StoreConfig struct {
	// Kind is "local" or "s3".
	Kind string   `mapstructure:"kind"`
	S3   S3Config `mapstructure:"s3"`
}

// S3Config holds S3-compatible object storage settings.
type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"` // Optional: read from SIFT_STORE_S3_ACCESS_KEY
	SecretKey string `mapstructure:"secret_key"` // Optional: read from SIFT_STORE_S3_SECRET_KEY
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// WatchConfig tunes watch mode.
type WatchConfig struct {
	Debounce string `mapstructure:"debounce"` // e.g. "2s"
}

// LLMConfig holds configuration for report explanations.
type LLMConfig struct {
	Temperature float32      `mapstructure:"temperature"`
	MaxTokens   int          `mapstructure:"max_tokens"`
	Ollama      OllamaConfig `mapstructure:"ollama"`
}

// OllamaConfig holds Ollama-specific settings.
type OllamaConfig struct {
	Host  string `mapstructure:"host"`  // API endpoint
	Model string `mapstructure:"model"` // Default model name
}

// RedactionConfig holds configuration for the built-in text redaction.
type RedactionConfig struct {
	// Enabled controls whether the default redact-text preprocessor is
	// registered when no manifest is given, and whether explain redacts
	// reports before sending them to the model.
	Enabled bool `mapstructure:"enabled"`

	// Patterns specifies which redaction patterns to use
	// Available: mrn, dob, ssn, email, phone, ipv4, ipv6, mac_address, api_key, aws_key, jwt, private_key, credit_card, uuid
	Patterns []string `mapstructure:"patterns"`
}

// Defaults for unset keys.
const (
	DefaultFormat     = "text"
	DefaultOutput     = "output"
	DefaultInput      = "input"
	DefaultReportName = "preprocessor_logs.txt"
	DefaultStoreKind  = "local"
	DefaultDebounce   = "2s"
)

// FileTimeout parses Timeout. Empty means no limit.
func (c *Config) FileTimeout() (time.Duration, error) {
	return optionalDuration("timeout", c.Timeout)
}

// WatchDebounce parses Watch.Debounce.
func (c *Config) WatchDebounce() (time.Duration, error) {
	if c.Watch.Debounce == "" {
		return ParseDuration(DefaultDebounce)
	}
	return optionalDuration("watch.debounce", c.Watch.Debounce)
}

func optionalDuration(key, s string) (time.Duration, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	d, err := ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: negative duration %s", key, s)
	}
	return d, nil
}

// Validate checks the run settings.
func (c *Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("workers must be zero or more, got %d", c.Workers)
	}
	if _, err := c.FileTimeout(); err != nil {
		return err
	}
	if _, err := c.WatchDebounce(); err != nil {
		return err
	}
	switch strings.ToLower(c.Store.Kind) {
	case "", "local", "s3":
	default:
		return fmt.Errorf("unknown store kind %q", c.Store.Kind)
	}
	if c.CaptureLevel != "" && ParseLevel(c.CaptureLevel) == LevelUnknown {
		return fmt.Errorf("unknown capture level %q", c.CaptureLevel)
	}
	return nil
}

// Nested reports whether child lies inside parent, or is parent. Both are
// made absolute first.
func Nested(parent, child string) (bool, error) {
	p, err := filepath.Abs(parent)
	if err != nil {
		return false, err
	}
	c, err := filepath.Abs(child)
	if err != nil {
		return false, err
	}
	rel, err := filepath.Rel(p, c)
	if err != nil {
		return false, nil
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))), nil
}

// LogLevel represents a standard log severity level.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelUnknown
)

// String returns the string representation of a LogLevel.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Slog converts the level. Unknown maps to debug so nothing is dropped.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelDebug
	}
}

// MarshalJSON implements json.Marshaler for LogLevel.
func (l LogLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// UnmarshalJSON implements json.Unmarshaler for LogLevel.
func (l *LogLevel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*l = ParseLevel(s)
	return nil
}

// ParseLevel converts a string to a LogLevel.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(s) {
	case "debug", "dbg":
		return LevelDebug
	case "info", "inf":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error", "err":
		return LevelError
	default:
		return LevelUnknown
	}
}
