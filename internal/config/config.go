// ABOUTME: Configuration loading and parsing for knowledge-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Chat modes
const (
	ModeOneShot   = "oneshot"
	ModeStreaming = "streaming"
)

// Agent providers
const (
	ProviderOpenAI   = "openai"
	ProviderScripted = "scripted"
)

// Config represents the complete knowledge-gateway configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Chat     ChatConfig     `yaml:"chat"`
	Agent    AgentConfig    `yaml:"agent"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds authentication configuration. An empty jwt_secret
// disables authentication entirely: every request runs as the default user.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	UsersFile string `yaml:"users_file"`

	TokenTTL    time.Duration `yaml:"-"`
	TokenTTLRaw string        `yaml:"token_ttl"`
}

// ChatConfig holds session and exchange behavior configuration
type ChatConfig struct {
	// Mode selects the output channel kind bound to new sessions:
	// "oneshot" blocks the send-message call for the reply, "streaming"
	// fans events out over SSE.
	Mode string `yaml:"mode"`

	ResponseTimeout time.Duration `yaml:"-"`
	SessionTTL      time.Duration `yaml:"-"`

	ResponseTimeoutRaw string `yaml:"response_timeout"`
	SessionTTLRaw      string `yaml:"session_ttl"`
}

// AgentConfig holds the model runtime configuration
type AgentConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
}

// AnalysisConfig holds background knowledge extraction configuration
type AnalysisConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Model     string `yaml:"model"`
	QueueSize int    `yaml:"queue_size"`

	RunTimeout    time.Duration `yaml:"-"`
	RunTimeoutRaw string        `yaml:"run_timeout"`
}

// IngestConfig holds document ingestion configuration
type IngestConfig struct {
	DataDir string `yaml:"data_dir"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Default returns a configuration suitable for local development.
func Default() *Config {
	cfg := &Config{
		Server:   ServerConfig{HTTPAddr: ":8080"},
		Database: DatabaseConfig{Path: "data/knowledge-gateway.db"},
		Agent:    AgentConfig{Provider: ProviderScripted},
		Analysis: AnalysisConfig{Enabled: true},
		Metrics:  MetricsConfig{Enabled: true},
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Chat.Mode == "" {
		c.Chat.Mode = ModeStreaming
	}
	if c.Chat.ResponseTimeout == 0 {
		c.Chat.ResponseTimeout = 30 * time.Second
	}
	if c.Chat.SessionTTL == 0 {
		c.Chat.SessionTTL = 30 * time.Minute
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = 24 * time.Hour
	}
	if c.Agent.Provider == "" {
		c.Agent.Provider = ProviderOpenAI
	}
	if c.Analysis.QueueSize == 0 {
		c.Analysis.QueueSize = 64
	}
	if c.Analysis.RunTimeout == 0 {
		c.Analysis.RunTimeout = 2 * time.Minute
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Chat.Mode != ModeOneShot && c.Chat.Mode != ModeStreaming {
		return fmt.Errorf("chat.mode must be %q or %q, got %q", ModeOneShot, ModeStreaming, c.Chat.Mode)
	}

	switch c.Agent.Provider {
	case ProviderScripted:
	case ProviderOpenAI:
		if c.Agent.APIKey == "" {
			return fmt.Errorf("agent.api_key is required for the openai provider")
		}
	default:
		return fmt.Errorf("agent.provider must be %q or %q, got %q", ProviderOpenAI, ProviderScripted, c.Agent.Provider)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		raw  string
		name string
		dst  *time.Duration
	}{
		{cfg.Chat.ResponseTimeoutRaw, "chat.response_timeout", &cfg.Chat.ResponseTimeout},
		{cfg.Chat.SessionTTLRaw, "chat.session_ttl", &cfg.Chat.SessionTTL},
		{cfg.Auth.TokenTTLRaw, "auth.token_ttl", &cfg.Auth.TokenTTL},
		{cfg.Analysis.RunTimeoutRaw, "analysis.run_timeout", &cfg.Analysis.RunTimeout},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
