// Package config handles configuration loading for relay.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/relay-dev/relay/internal/invoke"
	"github.com/relay-dev/relay/pkg/models"
)

// Config holds all configuration for relay.
type Config struct {
	Agent    AgentConfig    `mapstructure:"agent"`
	Sandbox  SandboxConfig  `mapstructure:"sandbox"`
	Retry    RetryConfig    `mapstructure:"retry"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Publish  PublishConfig  `mapstructure:"publish"`
}

// AgentConfig holds the agent command run inside sandboxes.
type AgentConfig struct {
	Command string   `mapstructure:"command"`
	Args    []string `mapstructure:"args"`
}

// SandboxConfig holds sandbox image and resource limits.
type SandboxConfig struct {
	Image   string `mapstructure:"image"`
	Memory  string `mapstructure:"memory"`
	CPUs    string `mapstructure:"cpus"`
	Network string `mapstructure:"network"`
}

// RetryConfig holds the per-step retry policy.
type RetryConfig struct {
	Timeout     time.Duration   `mapstructure:"timeout"`
	MaxAttempts int             `mapstructure:"max_attempts"`
	Backoff     []time.Duration `mapstructure:"backoff"`
	GraceWindow time.Duration   `mapstructure:"grace_window"`
}

// PipelineConfig holds routing settings.
type PipelineConfig struct {
	// Order lists the roles run by default, in order.
	Order []string `mapstructure:"order"`
	// ExtraSteps is how far past the default order routing may go
	// before the run is declared non-convergent.
	ExtraSteps int `mapstructure:"extra_steps"`
}

// PublishConfig holds publication settings.
type PublishConfig struct {
	Remote string `mapstructure:"remote"`
	Base   string `mapstructure:"base"`
	Token  string `mapstructure:"token"`
}

// Policy converts the retry section into an invocation policy.
func (rc RetryConfig) Policy() invoke.Policy {
	return invoke.Policy{
		Timeout:     rc.Timeout,
		MaxAttempts: rc.MaxAttempts,
		Backoff:     rc.Backoff,
		GraceWindow: rc.GraceWindow,
	}
}

// Roles converts the pipeline order into roles, rejecting unknown names.
func (pc PipelineConfig) Roles() ([]models.Role, error) {
	if len(pc.Order) == 0 {
		return models.DefaultOrder(), nil
	}
	roles := make([]models.Role, 0, len(pc.Order))
	for _, name := range pc.Order {
		role := models.Role(name)
		if !role.Valid() {
			return nil, fmt.Errorf("unknown pipeline role %q", name)
		}
		roles = append(roles, role)
	}
	return roles, nil
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (RELAY_*, GITHUB_TOKEN)
// 2. Project config (.relay.yaml in current directory or parent)
// 3. User config (~/.config/relay/config.yaml)
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

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("RELAY")
	v.AutomaticEnv()
	v.BindEnv("publish.token", "GITHUB_TOKEN")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Publish.Token = os.ExpandEnv(cfg.Publish.Token)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
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

	cfg.Publish.Token = os.ExpandEnv(cfg.Publish.Token)

	return cfg, nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("agent.command", "agent")
	v.SetDefault("agent.args", []string{})

	v.SetDefault("sandbox.image", "relay-sandbox:latest")
	v.SetDefault("sandbox.memory", "2g")
	v.SetDefault("sandbox.cpus", "2")
	v.SetDefault("sandbox.network", "none")

	v.SetDefault("retry.timeout", "5m")
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.backoff", []string{"0s", "2s", "4s"})
	v.SetDefault("retry.grace_window", "5s")

	order := models.DefaultOrder()
	names := make([]string, len(order))
	for i, r := range order {
		names[i] = string(r)
	}
	v.SetDefault("pipeline.order", names)
	v.SetDefault("pipeline.extra_steps", 8)

	v.SetDefault("publish.remote", "origin")
	v.SetDefault("publish.base", "main")
	v.SetDefault("publish.token", "")
}

// getUserConfigDir returns the XDG config directory for relay.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "relay")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "relay")
	}
	return filepath.Join(home, ".config", "relay")
}

// findProjectConfig searches for .relay.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".relay.yaml")
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

// Default returns a Config with default values.
func Default() *Config {
	order := models.DefaultOrder()
	names := make([]string, len(order))
	for i, r := range order {
		names[i] = string(r)
	}
	return &Config{
		Agent: AgentConfig{
			Command: "agent",
		},
		Sandbox: SandboxConfig{
			Image:   "relay-sandbox:latest",
			Memory:  "2g",
			CPUs:    "2",
			Network: "none",
		},
		Retry: RetryConfig{
			Timeout:     5 * time.Minute,
			MaxAttempts: 3,
			Backoff:     []time.Duration{0, 2 * time.Second, 4 * time.Second},
			GraceWindow: 5 * time.Second,
		},
		Pipeline: PipelineConfig{
			Order:      names,
			ExtraSteps: 8,
		},
		Publish: PublishConfig{
			Remote: "origin",
			Base:   "main",
		},
	}
}
