// Package config loads pilot's configuration: which agent command to
// supervise and the budgets the watchdog enforces. Defaults come from
// ~/.pilot/config.yaml and can be overridden per project.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/shlex"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Agent     AgentConfig     `yaml:"agent"`
	Budgets   BudgetConfig    `yaml:"budgets"`
	Dashboard DashboardConfig `yaml:"dashboard"`

	// Schedule is an optional RRULE string (e.g. "FREQ=DAILY;BYHOUR=2")
	// for unattended recurring runs via `pilot schedule`.
	Schedule string `yaml:"schedule,omitempty"`
}

type AgentConfig struct {
	// Command is the agent executable. Defaults to "claude".
	Command string `yaml:"command"`

	// ExtraArgs is a shell-style string of additional arguments,
	// appended after the built-in flags.
	ExtraArgs string `yaml:"extra_args,omitempty"`

	// Model is passed through as --model when set.
	Model string `yaml:"model,omitempty"`

	// Plain invokes the command as-is with only the task on stdin,
	// skipping the built-in stream-json flags. For agents with their
	// own wrappers, and for tests.
	Plain bool `yaml:"plain,omitempty"`

	// PTY runs the agent under a pseudo-terminal.
	PTY bool `yaml:"pty,omitempty"`
}

type BudgetConfig struct {
	SessionTimeoutSeconds int `yaml:"session_timeout_seconds"`
	IdleTimeoutSeconds    int `yaml:"idle_timeout_seconds"`
	PollIntervalSeconds   int `yaml:"poll_interval_seconds"`
	DrainIntervalMs       int `yaml:"drain_interval_ms"`
}

type DashboardConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

// Defaults mirror the supervisor's: generous budgets, short polls.
const (
	DefaultAgentCommand          = "claude"
	DefaultSessionTimeoutSeconds = 3600
	DefaultIdleTimeoutSeconds    = 1800
	DefaultPollIntervalSeconds   = 15
	DefaultDrainIntervalMs       = 300
	DefaultDashboardAddr         = "127.0.0.1:8791"
)

// Dir returns the pilot configuration directory (~/.pilot/).
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".pilot")
	}
	return filepath.Join(home, ".pilot")
}

// Load reads the config from ~/.pilot/config.yaml.
// A missing file yields the defaults with no error.
func Load() (*Config, error) {
	return LoadFrom(filepath.Join(Dir(), "config.yaml"))
}

// LoadFrom reads the config from the given path.
// A missing file yields the defaults with no error.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config with every field at its default.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Agent.Command == "" {
		c.Agent.Command = DefaultAgentCommand
	}
	if c.Budgets.SessionTimeoutSeconds == 0 {
		c.Budgets.SessionTimeoutSeconds = DefaultSessionTimeoutSeconds
	}
	if c.Budgets.IdleTimeoutSeconds == 0 {
		c.Budgets.IdleTimeoutSeconds = DefaultIdleTimeoutSeconds
	}
	if c.Budgets.PollIntervalSeconds == 0 {
		c.Budgets.PollIntervalSeconds = DefaultPollIntervalSeconds
	}
	if c.Budgets.DrainIntervalMs == 0 {
		c.Budgets.DrainIntervalMs = DefaultDrainIntervalMs
	}
	if c.Dashboard.Addr == "" {
		c.Dashboard.Addr = DefaultDashboardAddr
	}
}

func (c *Config) validate() error {
	b := c.Budgets
	if b.SessionTimeoutSeconds < 0 || b.IdleTimeoutSeconds < 0 || b.PollIntervalSeconds < 0 || b.DrainIntervalMs < 0 {
		return fmt.Errorf("budgets: negative values not permitted")
	}
	// The watchdog's poll cadence has to be materially shorter than the
	// budgets it enforces, or overshoot swamps them.
	if b.PollIntervalSeconds >= b.SessionTimeoutSeconds {
		return fmt.Errorf("budgets: poll_interval_seconds (%d) must be shorter than session_timeout_seconds (%d)",
			b.PollIntervalSeconds, b.SessionTimeoutSeconds)
	}
	if b.PollIntervalSeconds >= b.IdleTimeoutSeconds {
		return fmt.Errorf("budgets: poll_interval_seconds (%d) must be shorter than idle_timeout_seconds (%d)",
			b.PollIntervalSeconds, b.IdleTimeoutSeconds)
	}
	if _, err := c.Agent.ParsedExtraArgs(); err != nil {
		return fmt.Errorf("agent: extra_args: %w", err)
	}
	return nil
}

// ParsedExtraArgs splits ExtraArgs with shell quoting rules.
func (a AgentConfig) ParsedExtraArgs() ([]string, error) {
	if a.ExtraArgs == "" {
		return nil, nil
	}
	return shlex.Split(a.ExtraArgs)
}

// SessionTimeout returns the wall-clock budget as a duration.
func (b BudgetConfig) SessionTimeout() time.Duration {
	return time.Duration(b.SessionTimeoutSeconds) * time.Second
}

// IdleTimeout returns the idle budget as a duration.
func (b BudgetConfig) IdleTimeout() time.Duration {
	return time.Duration(b.IdleTimeoutSeconds) * time.Second
}

// PollInterval returns the watchdog poll cadence as a duration.
func (b BudgetConfig) PollInterval() time.Duration {
	return time.Duration(b.PollIntervalSeconds) * time.Second
}

// DrainInterval returns the drain loop's empty-read sleep as a duration.
func (b BudgetConfig) DrainInterval() time.Duration {
	return time.Duration(b.DrainIntervalMs) * time.Millisecond
}
