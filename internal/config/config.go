// Package config handles configuration loading for concierge.
// It supports XDG config paths, project-level overrides, and environment
// variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// BusyPolicy controls what happens when two requests hit the same session
// concurrently.
type BusyPolicy string

const (
	// BusyFail rejects the second request immediately with a
	// session-busy error.
	BusyFail BusyPolicy = "fail"
	// BusyQueue blocks the second request until the first turn finishes,
	// preserving arrival order.
	BusyQueue BusyPolicy = "queue"
)

// Valid returns true for a known policy value.
func (p BusyPolicy) Valid() bool {
	return p == BusyFail || p == BusyQueue
}

// Config holds all configuration for concierge.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Resolver  ResolverConfig  `mapstructure:"resolver"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Session   SessionConfig   `mapstructure:"session"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
}

// AnthropicConfig holds settings for the classification capability.
type AnthropicConfig struct {
	// APIKey is the Anthropic API key. Empty falls back to the
	// ANTHROPIC_API_KEY environment variable.
	APIKey string `mapstructure:"api_key"`
	// Model is the classifier model name.
	Model string `mapstructure:"model"`
	// UseAWSBedrock routes classification calls through AWS Bedrock.
	UseAWSBedrock bool `mapstructure:"use_aws_bedrock"`
	// AWSRegion is the Bedrock region (e.g. "us-west-2").
	AWSRegion string `mapstructure:"aws_region"`
	// AWSProfile is the optional AWS profile name.
	AWSProfile string `mapstructure:"aws_profile"`
}

// ResolverConfig holds intent resolution settings.
type ResolverConfig struct {
	// ConfidenceThreshold is the minimum confidence required to act on a
	// candidate rather than reject the turn.
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	// AmbiguityWindow is the confidence delta under which two competing
	// capabilities force a clarification instead of a guess.
	AmbiguityWindow float64 `mapstructure:"ambiguity_window"`
	// Timeout bounds each classification call.
	Timeout time.Duration `mapstructure:"timeout"`
	// MemoryWindow caps how many entity-memory entries are included in
	// the classifier prompt.
	MemoryWindow int `mapstructure:"memory_window"`
}

// EngineConfig holds handler execution settings.
type EngineConfig struct {
	// HandlerTimeout bounds each handler invocation attempt.
	HandlerTimeout time.Duration `mapstructure:"handler_timeout"`
	// MaxRetries is the number of additional attempts after a transient
	// failure.
	MaxRetries int `mapstructure:"max_retries"`
	// BackoffBase is the initial retry backoff delay.
	BackoffBase time.Duration `mapstructure:"backoff_base"`
	// BackoffFactor multiplies the delay after each retry.
	BackoffFactor float64 `mapstructure:"backoff_factor"`
	// MaxParallel bounds concurrent handler invocations in a parallel
	// dispatch.
	MaxParallel int `mapstructure:"max_parallel"`
}

// SessionConfig holds session store settings.
type SessionConfig struct {
	// BusyPolicy is "fail" or "queue" (see BusyPolicy).
	BusyPolicy BusyPolicy `mapstructure:"busy_policy"`
	// DBPath is the SQLite session database path. Empty keeps sessions
	// in memory only.
	DBPath string `mapstructure:"db_path"`
}

// CatalogConfig holds capability catalog settings.
type CatalogConfig struct {
	// Path is the capability catalog YAML file.
	Path string `mapstructure:"path"`
	// Watch reloads the catalog when the file changes.
	Watch bool `mapstructure:"watch"`
}

// Load loads configuration from XDG paths, project overrides, and
// environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY)
// 2. Project config (.concierge.yaml in current directory or parent)
// 3. User config (~/.config/concierge/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromPath loads configuration from a specific file (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks value ranges the components depend on.
func (c *Config) Validate() error {
	if c.Resolver.ConfidenceThreshold < 0 || c.Resolver.ConfidenceThreshold > 1 {
		return fmt.Errorf("resolver.confidence_threshold must be in [0,1], got %v", c.Resolver.ConfidenceThreshold)
	}
	if c.Resolver.AmbiguityWindow < 0 || c.Resolver.AmbiguityWindow > 1 {
		return fmt.Errorf("resolver.ambiguity_window must be in [0,1], got %v", c.Resolver.AmbiguityWindow)
	}
	if !c.Session.BusyPolicy.Valid() {
		return fmt.Errorf("session.busy_policy must be %q or %q, got %q", BusyFail, BusyQueue, c.Session.BusyPolicy)
	}
	if c.Engine.MaxRetries < 0 {
		return fmt.Errorf("engine.max_retries must not be negative, got %d", c.Engine.MaxRetries)
	}
	if c.Engine.MaxParallel < 1 {
		return fmt.Errorf("engine.max_parallel must be at least 1, got %d", c.Engine.MaxParallel)
	}
	return nil
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "")
	v.SetDefault("anthropic.use_aws_bedrock", false)

	v.SetDefault("resolver.confidence_threshold", 0.5)
	v.SetDefault("resolver.ambiguity_window", 0.05)
	v.SetDefault("resolver.timeout", "30s")
	v.SetDefault("resolver.memory_window", 10)

	v.SetDefault("engine.handler_timeout", "30s")
	v.SetDefault("engine.max_retries", 2)
	v.SetDefault("engine.backoff_base", "500ms")
	v.SetDefault("engine.backoff_factor", 2.0)
	v.SetDefault("engine.max_parallel", 4)

	v.SetDefault("session.busy_policy", string(BusyFail))
	v.SetDefault("session.db_path", "")

	v.SetDefault("catalog.path", "configs/capabilities.yaml")
	v.SetDefault("catalog.watch", false)
}

// Default returns a Config with built-in default values.
func Default() *Config {
	return &Config{
		Resolver: ResolverConfig{
			ConfidenceThreshold: 0.5,
			AmbiguityWindow:     0.05,
			Timeout:             30 * time.Second,
			MemoryWindow:        10,
		},
		Engine: EngineConfig{
			HandlerTimeout: 30 * time.Second,
			MaxRetries:     2,
			BackoffBase:    500 * time.Millisecond,
			BackoffFactor:  2.0,
			MaxParallel:    4,
		},
		Session: SessionConfig{
			BusyPolicy: BusyFail,
		},
		Catalog: CatalogConfig{
			Path: "configs/capabilities.yaml",
		},
	}
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// getUserConfigDir returns the XDG config directory for concierge.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "concierge")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "concierge")
	}
	return filepath.Join(home, ".config", "concierge")
}

// findProjectConfig searches for .concierge.yaml in the current directory
// and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".concierge.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}
