// Package config loads and persists Valet configuration.
// Configuration lives at ~/.valet/config.yaml and every key can be
// overridden through VALET_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration for the Valet assistant.
type Config struct {
	LLM      LLMConfig      `mapstructure:"llm" yaml:"llm"`
	Drive    DriveConfig    `mapstructure:"drive" yaml:"drive"`
	Services ServicesConfig `mapstructure:"services" yaml:"services"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	Data     DataConfig     `mapstructure:"data" yaml:"data"`
}

// LLMConfig contains configuration for chat-completion providers.
type LLMConfig struct {
	// DefaultProvider is the head of the fallback chain.
	DefaultProvider string `mapstructure:"default_provider" yaml:"default_provider"`
	// ChainOrder is the total provider order used by the fallback chain.
	ChainOrder []string `mapstructure:"chain_order" yaml:"chain_order"`
	// Providers maps provider names to their specific configuration.
	Providers map[string]ProviderConfig `mapstructure:"providers" yaml:"providers"`
}

// ProviderConfig contains configuration for a single provider.
type ProviderConfig struct {
	// Endpoint is the API base URL. Empty means the provider default.
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	// APIKey is the authentication key for the provider.
	APIKey string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	// Model is the model to request.
	Model string `mapstructure:"model" yaml:"model,omitempty"`
	// TimeoutSec bounds a single completion call.
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec,omitempty"`
}

// DriveConfig contains configuration for the remote document store.
type DriveConfig struct {
	// WorkspaceName is the managed workspace folder created for focus
	// documents.
	WorkspaceName string `mapstructure:"workspace_name" yaml:"workspace_name"`
	// SearchCap is the global result cap for recursive search.
	SearchCap int `mapstructure:"search_cap" yaml:"search_cap"`
}

// ServicesConfig contains configuration for domain-service summaries.
type ServicesConfig struct {
	// CacheTTL is how long a service summary stays cached.
	CacheTTL time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
	// LocationTimeout bounds the location lookup call.
	LocationTimeout time.Duration `mapstructure:"location_timeout" yaml:"location_timeout"`
}

// LoggingConfig contains configuration for application logging.
type LoggingConfig struct {
	// Level is the log level ("debug", "info", "warn", "error").
	Level string `mapstructure:"level" yaml:"level"`
	// File is the path to the log file.
	File string `mapstructure:"file" yaml:"file"`
}

// DataConfig contains configuration for local persistence.
type DataConfig struct {
	// Dir is the directory holding the SQLite database.
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// Default returns the default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	valetDir := filepath.Join(homeDir, ".valet")

	return &Config{
		LLM: LLMConfig{
			DefaultProvider: "gemini",
			ChainOrder:      []string{"gemini", "openai", "anthropic"},
			Providers: map[string]ProviderConfig{
				"gemini": {
					Model: "gemini-1.5-flash",
				},
				"openai": {
					Model: "gpt-4o-mini",
				},
				"anthropic": {
					Model: "claude-3-5-sonnet-20241022",
				},
			},
		},
		Drive: DriveConfig{
			WorkspaceName: "Valet Workspace",
			SearchCap:     200,
		},
		Services: ServicesConfig{
			CacheTTL:        5 * time.Minute,
			LocationTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  filepath.Join(valetDir, "logs", "valet.log"),
		},
		Data: DataConfig{
			Dir: valetDir,
		},
	}
}

// Load reads configuration from the default location (~/.valet/config.yaml),
// creating it with defaults if absent, and merges environment overrides.
func Load() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("get home directory: %w", err)
	}
	return LoadFromPath(filepath.Join(homeDir, ".valet", "config.yaml"))
}

// PathOrDefault returns path unchanged when non-empty, otherwise the
// default config location under the user's home directory.
func PathOrDefault(path string) string {
	if path != "" {
		return expandPath(path)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(homeDir, ".valet", "config.yaml")
}

// LoadFromPath reads configuration from a specific file path, falling
// back to the default location when path is empty. If the file does
// not exist it is created with default values first.
func LoadFromPath(path string) (*Config, error) {
	path = PathOrDefault(path)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create config directory: %w", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeConfigFile(path, Default()); err != nil {
			return nil, fmt.Errorf("write default config: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Example override: VALET_LLM_DEFAULT_PROVIDER
	v.SetEnvPrefix("VALET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Logging.File = expandPath(cfg.Logging.File)
	cfg.Data.Dir = expandPath(cfg.Data.Dir)
	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults fills in zero values left by sparse config files.
func (c *Config) applyDefaults() {
	defaults := Default()

	if c.Drive.WorkspaceName == "" {
		c.Drive.WorkspaceName = defaults.Drive.WorkspaceName
	}
	if c.Drive.SearchCap <= 0 {
		c.Drive.SearchCap = defaults.Drive.SearchCap
	}
	if c.Services.CacheTTL <= 0 {
		c.Services.CacheTTL = defaults.Services.CacheTTL
	}
	if c.Services.LocationTimeout <= 0 {
		c.Services.LocationTimeout = defaults.Services.LocationTimeout
	}
	if c.LLM.DefaultProvider == "" {
		c.LLM.DefaultProvider = defaults.LLM.DefaultProvider
	}
	if len(c.LLM.ChainOrder) == 0 {
		c.LLM.ChainOrder = defaults.LLM.ChainOrder
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaults.Logging.Level
	}
	if c.Data.Dir == "" {
		c.Data.Dir = defaults.Data.Dir
	}
}

// SaveToPath writes the current configuration to a specific file path.
func (c *Config) SaveToPath(path string) error {
	path = expandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return writeConfigFile(path, c)
}

// Validate checks the configuration for common errors.
func (c *Config) Validate() error {
	if c.LLM.DefaultProvider == "" {
		return fmt.Errorf("llm.default_provider cannot be empty")
	}
	if _, exists := c.LLM.Providers[c.LLM.DefaultProvider]; !exists {
		return fmt.Errorf("default provider '%s' not found in providers map", c.LLM.DefaultProvider)
	}
	for _, name := range c.LLM.ChainOrder {
		if _, exists := c.LLM.Providers[name]; !exists {
			return fmt.Errorf("chain provider '%s' not found in providers map", name)
		}
	}
	if c.Drive.SearchCap <= 0 {
		return fmt.Errorf("drive.search_cap must be positive")
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level '%s', must be one of: debug, info, warn, error", c.Logging.Level)
	}
	return nil
}

// writeConfigFile writes a Config struct to a YAML file using the yaml
// struct tags (viper's own writer ignores them).
func writeConfigFile(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[1:])
	}
	return path
}
