package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ahmed-com/cadence/ticker"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
)

// Config is the daemon configuration file
type Config struct {
	Log            LogConfig      `json:"log"`
	Timezone       string         `json:"timezone,omitempty"`
	Workers        int            `json:"workers,omitempty"`
	HandlerTimeout Duration       `json:"handler_timeout,omitempty"`
	Journal        JournalConfig  `json:"journal"`
	Tickers        []TickerConfig `json:"tickers"`
}

// LogConfig selects the log level and output format
type LogConfig struct {
	Level   string `json:"level,omitempty"`
	Console bool   `json:"console,omitempty"`
}

// JournalConfig configures the tick journal. An empty path disables it
// unless InMemory is set.
type JournalConfig struct {
	Path         string   `json:"path,omitempty"`
	InMemory     bool     `json:"in_memory,omitempty"`
	Retention    Duration `json:"retention,omitempty"`
	ReapInterval Duration `json:"reap_interval,omitempty"`
}

// Enabled reports whether ticks are journaled
func (j JournalConfig) Enabled() bool {
	return j.Path != "" || j.InMemory
}

// TickerConfig declares one ticker. Exactly one of Interval and Granularity
// is set: Interval for a periodic ticker, Granularity and Targets for a
// calendar ticker.
type TickerConfig struct {
	Name             string   `json:"name"`
	Interval         Duration `json:"interval,omitempty"`
	FireImmediately  bool     `json:"fire_immediately,omitempty"`
	AlignToWallClock bool     `json:"align_to_wall_clock,omitempty"`
	LateThreshold    Duration `json:"late_threshold,omitempty"`

	Granularity string `json:"granularity,omitempty"`
	Targets     Expr   `json:"targets,omitempty"`

	// Timezone overrides the top-level timezone for this ticker.
	Timezone string `json:"timezone,omitempty"`
}

// IsCalendar reports whether the ticker is a calendar ticker
func (t TickerConfig) IsCalendar() bool {
	return t.Granularity != ""
}

// Parse reads and strictly decodes a YAML or JSON config file.
func Parse(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseBytes(path, b)
}

// ParseBytes decodes config data. The format is taken from the path
// extension: .yaml and .yml are YAML, anything else JSON.
func ParseBytes(path string, data []byte) (*Config, error) {
	jb, err := coerceToJSONBytes(path, data)
	if err != nil {
		return nil, err
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("invalid config: trailing data")
		}
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the whole config and reports every problem found.
func (c *Config) Validate() error {
	var result *multierror.Error

	if lvl := strings.ToLower(strings.TrimSpace(c.Log.Level)); lvl != "" && lvl != "warning" {
		if _, err := zerolog.ParseLevel(lvl); err != nil {
			result = multierror.Append(result, fmt.Errorf("log.level: %w", err))
		}
	}
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			result = multierror.Append(result, fmt.Errorf("timezone: %w", err))
		}
	}
	if c.Workers < 0 {
		result = multierror.Append(result, fmt.Errorf("workers: must be >= 0"))
	}
	if c.Journal.Retention > 0 && !c.Journal.Enabled() {
		result = multierror.Append(result, fmt.Errorf("journal.retention: set without a journal path"))
	}

	if len(c.Tickers) == 0 {
		result = multierror.Append(result, fmt.Errorf("tickers: at least one ticker is required"))
	}
	seen := make(map[string]bool, len(c.Tickers))
	for i, t := range c.Tickers {
		field := fmt.Sprintf("tickers[%d]", i)
		if strings.TrimSpace(t.Name) == "" {
			result = multierror.Append(result, fmt.Errorf("%s.name: required", field))
		} else if seen[t.Name] {
			result = multierror.Append(result, fmt.Errorf("%s.name: duplicate ticker %q", field, t.Name))
		}
		seen[t.Name] = true

		if err := t.validate(); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", field, err))
		}
	}

	return result.ErrorOrNil()
}

func (t TickerConfig) validate() error {
	if t.Timezone != "" {
		if _, err := time.LoadLocation(t.Timezone); err != nil {
			return fmt.Errorf("timezone: %w", err)
		}
	}

	switch {
	case t.IsCalendar() && t.Interval > 0:
		return fmt.Errorf("interval and granularity are mutually exclusive")
	case t.IsCalendar():
		if t.FireImmediately {
			return fmt.Errorf("fire_immediately is only supported by periodic tickers")
		}
		_, _, err := t.CalendarSpec()
		return err
	case t.Interval <= 0:
		return fmt.Errorf("interval: must be positive")
	}
	return nil
}

// CalendarSpec parses the granularity and targets of a calendar ticker
func (t TickerConfig) CalendarSpec() (ticker.Granularity, []int, error) {
	g, err := ticker.ParseGranularity(t.Granularity)
	if err != nil {
		return 0, nil, fmt.Errorf("granularity: %w", err)
	}
	targets, err := ticker.ParseTargets(g, string(t.Targets))
	if err != nil {
		return 0, nil, fmt.Errorf("targets: %w", err)
	}
	return g, targets, nil
}
