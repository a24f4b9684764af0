// Package config loads the tickos daemon configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fentz26/tickos/internal/logging"
	"github.com/fentz26/tickos/internal/scheduler"
)

// Config is the daemon configuration.
type Config struct {
	// FreqHz is the tick frequency. Millisecond values in the API and in
	// task definitions are converted to ticks at this rate.
	FreqHz int `yaml:"freq_hz"`
	// Scheduler table sizes.
	scheduler.Config `yaml:",inline"`
	// Listen is the control plane address.
	Listen string `yaml:"listen"`
	// DB is the SQLite path for the dispatch trace and audit log.
	DB string `yaml:"db"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
	// LogFormat is text or json.
	LogFormat string `yaml:"log_format"`
	// TraceBuffer is the number of dispatch records the recorder can hold
	// before it starts dropping.
	TraceBuffer int `yaml:"trace_buffer"`
	// Tasks are installed at daemon start.
	Tasks []TaskSpec `yaml:"tasks"`
	// Events are registered at daemon start.
	Events []EventSpec `yaml:"events"`
}

// TaskSpec declares a periodic task.
type TaskSpec struct {
	Index    int        `yaml:"index"`
	Name     string     `yaml:"name"`
	PeriodMs uint32     `yaml:"period_ms"`
	Action   ActionSpec `yaml:"action"`
}

// EventSpec declares an event.
type EventSpec struct {
	ID     uint16     `yaml:"id"`
	Name   string     `yaml:"name"`
	Action ActionSpec `yaml:"action"`
}

// ActionSpec selects what a task or event callback does. Which fields apply
// depends on Kind.
type ActionSpec struct {
	Kind       string `yaml:"kind"`
	Message    string `yaml:"message,omitempty"`
	Event      uint16 `yaml:"event,omitempty"`
	DelayKey   uint16 `yaml:"delay_key,omitempty"`
	DurationMs uint32 `yaml:"duration_ms,omitempty"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		FreqHz:      1000,
		Config:      scheduler.DefaultConfig(),
		Listen:      "127.0.0.1:7467",
		DB:          "tickos.db",
		LogLevel:    "info",
		LogFormat:   "text",
		TraceBuffer: 1024,
	}
}

// Load reads the configuration at path over the defaults. A missing file
// yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Save writes cfg to path, creating parent directories if needed.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("creating config dir: %w", err)
		}
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Validate checks ranges and cross references.
func (c *Config) Validate() error {
	if c.FreqHz < 1 || c.FreqHz > 1_000_000 {
		return fmt.Errorf("freq_hz must be in [1,1000000], got %d", c.FreqHz)
	}
	if c.TaskCapacity < 1 || c.DelayCapacity < 1 || c.EventCapacity < 1 {
		return fmt.Errorf("capacities must be at least 1")
	}
	if c.TaskCapacity > 1<<16 || c.DelayCapacity > 1<<16 || c.EventCapacity > 1<<16 {
		return fmt.Errorf("capacities must not exceed %d", 1<<16)
	}
	if c.TraceBuffer < 1 {
		return fmt.Errorf("trace_buffer must be at least 1")
	}
	if !logging.ValidFormat(c.LogFormat) {
		return fmt.Errorf("unknown log_format %q", c.LogFormat)
	}

	seen := make(map[int]bool, len(c.Tasks))
	for _, t := range c.Tasks {
		if t.Index < 0 || t.Index >= c.TaskCapacity {
			return fmt.Errorf("task %q: index %d out of range [0,%d)", t.Name, t.Index, c.TaskCapacity)
		}
		if seen[t.Index] {
			return fmt.Errorf("task %q: index %d declared twice", t.Name, t.Index)
		}
		seen[t.Index] = true
		if t.Action.Kind == "" {
			return fmt.Errorf("task %q: action kind is required", t.Name)
		}
	}

	ids := make(map[uint16]bool, len(c.Events))
	for _, e := range c.Events {
		if ids[e.ID] {
			return fmt.Errorf("event %q: id %d declared twice", e.Name, e.ID)
		}
		ids[e.ID] = true
		if e.Action.Kind == "" {
			return fmt.Errorf("event %q: action kind is required", e.Name)
		}
	}
	if len(c.Events) > c.EventCapacity {
		return fmt.Errorf("%d events declared, event_capacity is %d", len(c.Events), c.EventCapacity)
	}
	return nil
}

// TickPeriod is the wall-clock length of one tick.
func (c *Config) TickPeriod() time.Duration {
	return time.Second / time.Duration(c.FreqHz)
}

// MsToTicks converts milliseconds to ticks, rounding up so that a nonzero
// duration never becomes zero ticks.
func (c *Config) MsToTicks(ms uint32) uint32 {
	return MsToTicks(ms, c.FreqHz)
}

// TicksToMs converts ticks to milliseconds, rounding down.
func (c *Config) TicksToMs(ticks uint32) uint64 {
	return TicksToMs(ticks, c.FreqHz)
}

// MsToTicks converts ms to ticks at freqHz, rounding up. The result
// saturates at the largest uint32.
func MsToTicks(ms uint32, freqHz int) uint32 {
	if freqHz <= 0 {
		return 0
	}
	t := (uint64(ms)*uint64(freqHz) + 999) / 1000
	if t > uint64(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(t)
}

// TicksToMs converts ticks at freqHz to milliseconds.
func TicksToMs(ticks uint32, freqHz int) uint64 {
	if freqHz <= 0 {
		return 0
	}
	return uint64(ticks) * 1000 / uint64(freqHz)
}

// DefaultPath returns ~/.tickos/tickos.yaml, or tickos.yaml when the home
// directory is unknown.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "tickos.yaml"
	}
	return filepath.Join(home, ".tickos", "tickos.yaml")
}
