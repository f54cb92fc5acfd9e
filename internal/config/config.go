package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultHTTPPort   = 8080
	DefaultStoreTTL   = 15 * time.Minute
	DefaultBatchLimit = 8
	DefaultLogLevel   = "info"
	DefaultLogFormat  = "json"
	DefaultAPIHeader  = "x-api-key"
)

// Config is the top-level service configuration.
// Fields map 1:1 to assetscore.example.yaml.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Scoring ScoringConfig `yaml:"scoring"`
	Alerts  AlertsConfig  `yaml:"alerts"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	// HTTPPort is the port the REST API and /metrics listen on (default 8080).
	HTTPPort int `yaml:"http_port"`

	// Auth configures how the server authenticates incoming REST requests.
	Auth AuthConfig `yaml:"auth"`

	// StoreTTL is how long an asset's latest score is kept after it was
	// last scored. Zero disables eviction.
	StoreTTL time.Duration `yaml:"store_ttl"`
}

// AuthConfig controls client authentication on the server side.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// Header is the HTTP header name to read the key from.
	// Defaults to "x-api-key" if empty.
	Header string `yaml:"header"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	KeyEnv string `yaml:"key_env"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return DefaultAPIHeader
}

// ScoringConfig locates the scoring policy and bounds batch concurrency.
type ScoringConfig struct {
	// PolicyPath is the JSON or YAML scoring policy. A relative path is
	// resolved against the directory of the config file.
	PolicyPath string `yaml:"policy_path"`

	// BatchLimit caps how many assets of one batch request are scored at once.
	BatchLimit int `yaml:"batch_limit"`
}

// AlertsConfig holds score alert rules and webhook delivery targets.
type AlertsConfig struct {
	Rules    []AlertRule     `yaml:"rules"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// AlertRule defines one alert condition evaluated against every new score.
type AlertRule struct {
	// Name is the human-readable alert identifier, used as the deduplication key.
	Name string `yaml:"name"`

	// Condition is an expression over final_score, age_score, event_score,
	// age_years and state, e.g. "final_score < 60" or "state == 'critical'".
	Condition string `yaml:"condition"`

	// Severity is one of: critical | warning | info. Defaults to warning.
	Severity string `yaml:"severity"`

	// Cooldown suppresses re-fires for this duration after an alert fires.
	// Defaults to 15 minutes if zero.
	Cooldown time.Duration `yaml:"cooldown"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | pagerduty | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`

	// KeyEnv names the environment variable holding the PagerDuty routing
	// key. Required for type pagerduty, ignored otherwise.
	KeyEnv string `yaml:"key_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// Key returns the routing key resolved from the environment.
func (w WebhookConfig) Key() string {
	if w.KeyEnv == "" {
		return ""
	}
	return os.Getenv(w.KeyEnv)
}

// LogConfig selects the slog level and handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SlogLevel maps Level onto a slog.Level. Unknown values map to Info;
// validate rejects them before this is reached.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if !filepath.IsAbs(cfg.Scoring.PolicyPath) {
		cfg.Scoring.PolicyPath = filepath.Join(filepath.Dir(path), cfg.Scoring.PolicyPath)
	}
	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort: DefaultHTTPPort,
			StoreTTL: DefaultStoreTTL,
		},
		Scoring: ScoringConfig{
			BatchLimit: DefaultBatchLimit,
		},
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", cfg.Server.HTTPPort)
	}
	switch cfg.Server.Auth.Mode {
	case "apikey":
		if cfg.Server.Auth.KeyEnv == "" {
			return fmt.Errorf("server.auth.key_env is required for apikey mode")
		}
	case "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", cfg.Server.Auth.Mode)
	}
	if cfg.Server.StoreTTL < 0 {
		return fmt.Errorf("server.store_ttl must not be negative")
	}
	if cfg.Scoring.PolicyPath == "" {
		return fmt.Errorf("scoring.policy_path is required")
	}
	if cfg.Scoring.BatchLimit <= 0 {
		return fmt.Errorf("scoring.batch_limit must be positive")
	}
	seen := make(map[string]bool, len(cfg.Alerts.Rules))
	for i, r := range cfg.Alerts.Rules {
		if r.Name == "" {
			return fmt.Errorf("alerts.rules[%d]: name is required", i)
		}
		if seen[r.Name] {
			return fmt.Errorf("alerts.rules[%d]: duplicate name %q", i, r.Name)
		}
		seen[r.Name] = true
		if r.Condition == "" {
			return fmt.Errorf("alerts.rules[%d] %q: condition is required", i, r.Name)
		}
		switch r.Severity {
		case "critical", "warning", "info", "":
		default:
			return fmt.Errorf("alerts.rules[%d] %q: unknown severity %q", i, r.Name, r.Severity)
		}
		if r.Cooldown < 0 {
			return fmt.Errorf("alerts.rules[%d] %q: cooldown must not be negative", i, r.Name)
		}
	}
	for i, wh := range cfg.Alerts.Webhooks {
		switch wh.Type {
		case "teams", "slack", "pagerduty", "http":
		default:
			return fmt.Errorf("alerts.webhooks[%d]: unknown type %q", i, wh.Type)
		}
		if wh.URLEnv == "" {
			return fmt.Errorf("alerts.webhooks[%d]: url_env is required", i)
		}
		if wh.Type == "pagerduty" && wh.KeyEnv == "" {
			return fmt.Errorf("alerts.webhooks[%d]: key_env is required for pagerduty", i)
		}
	}
	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q unknown: want debug|info|warn|error", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format %q unknown: want json|text", cfg.Log.Format)
	}
	return nil
}
