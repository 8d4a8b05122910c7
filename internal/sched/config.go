package sched

import (
	"fmt"
	"os"

	yaml "github.com/goccy/go-yaml"
)

// Config mirrors config.yaml: the compile-time parameters spec names
// become load-time ones instead, since a hosted Go binary has no separate
// compilation unit per target.
type Config struct {
	MaxTaskCount     int          `yaml:"max_task_count"`     // 16 by default, capped at 254
	TickMS           int          `yaml:"tick_ms"`            // 1 by default
	IdleSleepEnabled bool         `yaml:"idle_sleep_enabled"` // true by default
	ProfileLevel     ProfileLevel `yaml:"profile_level"`      // none by default
	SkipChecks       bool         `yaml:"skip_checks"`        // false by default
	HostedSleeper    bool         `yaml:"hosted_sleeper"`     // false: bare-metal TickSleeper
}

// If the config file is not found, we use default values.
func defaultConfig() Config {
	return Config{
		MaxTaskCount:     16,
		TickMS:           1,
		IdleSleepEnabled: true,
		ProfileLevel:     ProfileNone,
		SkipChecks:       false,
		HostedSleeper:    false,
	}
}

// Load reads YAML and overrides defaults; empty path = defaults only.
func Load(path string) Config {
	cfg := defaultConfig()

	if path == "" {
		return cfg
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}

	_ = yaml.Unmarshal(data, &cfg)

	// sanity clamps
	if cfg.MaxTaskCount <= 0 {
		cfg.MaxTaskCount = 16
	}
	if cfg.MaxTaskCount > 254 {
		cfg.MaxTaskCount = 254
	}
	if cfg.TickMS <= 0 {
		cfg.TickMS = 1
	}

	return cfg
}

// UnmarshalYAML lets ProfileLevel be written as a plain string
// (none/aggregate/per_task) in config.yaml instead of a bare integer.
func (p *ProfileLevel) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	switch s {
	case "", "none":
		*p = ProfileNone
	case "aggregate":
		*p = ProfileAggregate
	case "per_task", "per-task":
		*p = ProfilePerTask
	default:
		return fmt.Errorf("sched: unknown profile level %q", s)
	}
	return nil
}
