package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ahmed-com/cadence/ticker"
)

const sampleYAML = `
log:
  level: debug
  console: true
timezone: UTC
workers: 4
handler_timeout: 30s
journal:
  path: /var/lib/cadence
  retention: 168h
tickers:
  - name: heartbeat
    interval: 1s
    fire_immediately: true
  - name: quarter-hours
    granularity: minute
    targets: "0,15,30,45"
  - name: half-past
    granularity: hour
    targets: 30
    timezone: Europe/Berlin
`

func TestParseBytesYAML(t *testing.T) {
	cfg, err := ParseBytes("cadence.yaml", []byte(sampleYAML))
	if err != nil {
		t.Fatalf("ParseBytes() error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if cfg.Log.Level != "debug" || !cfg.Log.Console {
		t.Errorf("log = %+v", cfg.Log)
	}
	if cfg.HandlerTimeout.Std() != 30*time.Second {
		t.Errorf("handler_timeout = %s, want 30s", cfg.HandlerTimeout.Std())
	}
	if cfg.Journal.Retention.Std() != 168*time.Hour || !cfg.Journal.Enabled() {
		t.Errorf("journal = %+v", cfg.Journal)
	}
	if len(cfg.Tickers) != 3 {
		t.Fatalf("got %d tickers, want 3", len(cfg.Tickers))
	}

	hb := cfg.Tickers[0]
	if hb.IsCalendar() || hb.Interval.Std() != time.Second || !hb.FireImmediately {
		t.Errorf("heartbeat = %+v", hb)
	}

	g, targets, err := cfg.Tickers[1].CalendarSpec()
	if err != nil {
		t.Fatalf("CalendarSpec() error = %v", err)
	}
	if g != ticker.GranularityMinute || len(targets) != 4 || targets[3] != 45 {
		t.Errorf("quarter-hours = %s %v", g, targets)
	}

	// bare YAML number
	if cfg.Tickers[2].Targets != "30" {
		t.Errorf("half-past targets = %q, want \"30\"", cfg.Tickers[2].Targets)
	}
}

func TestParseBytesJSON(t *testing.T) {
	data := `{"tickers":[{"name":"hb","interval":"250ms"}]}`
	cfg, err := ParseBytes("cadence.json", []byte(data))
	if err != nil {
		t.Fatalf("ParseBytes() error = %v", err)
	}
	if cfg.Tickers[0].Interval.Std() != 250*time.Millisecond {
		t.Errorf("interval = %s, want 250ms", cfg.Tickers[0].Interval.Std())
	}
}

func TestParseBytesRejects(t *testing.T) {
	tests := []struct {
		name string
		path string
		data string
	}{
		{"unknown field", "c.json", `{"tickers":[],"bogus":1}`},
		{"trailing data", "c.json", `{"tickers":[]} {"tickers":[]}`},
		{"numeric duration", "c.json", `{"tickers":[{"name":"a","interval":1000}]}`},
		{"negative duration", "c.json", `{"tickers":[{"name":"a","interval":"-1s"}]}`},
		{"bad duration", "c.yaml", "tickers:\n  - name: a\n    interval: soon\n"},
		{"bad yaml", "c.yml", "tickers: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseBytes(tt.path, []byte(tt.data)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestValidate(t *testing.T) {
	periodic := TickerConfig{Name: "p", Interval: Duration(time.Second)}

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name: "valid",
			cfg:  Config{Tickers: []TickerConfig{periodic}},
		},
		{
			name:    "no tickers",
			cfg:     Config{},
			wantErr: "at least one ticker",
		},
		{
			name:    "duplicate name",
			cfg:     Config{Tickers: []TickerConfig{periodic, periodic}},
			wantErr: "duplicate ticker",
		},
		{
			name:    "missing name",
			cfg:     Config{Tickers: []TickerConfig{{Interval: Duration(time.Second)}}},
			wantErr: "name: required",
		},
		{
			name:    "missing interval",
			cfg:     Config{Tickers: []TickerConfig{{Name: "p"}}},
			wantErr: "interval: must be positive",
		},
		{
			name: "interval and granularity",
			cfg: Config{Tickers: []TickerConfig{
				{Name: "p", Interval: Duration(time.Second), Granularity: "minute", Targets: "0"},
			}},
			wantErr: "mutually exclusive",
		},
		{
			name:    "bad granularity",
			cfg:     Config{Tickers: []TickerConfig{{Name: "c", Granularity: "day", Targets: "0"}}},
			wantErr: "granularity",
		},
		{
			name:    "bad targets",
			cfg:     Config{Tickers: []TickerConfig{{Name: "c", Granularity: "minute", Targets: "61"}}},
			wantErr: "targets",
		},
		{
			name:    "immediate calendar",
			cfg:     Config{Tickers: []TickerConfig{{Name: "c", Granularity: "minute", Targets: "0", FireImmediately: true}}},
			wantErr: "fire_immediately",
		},
		{
			name:    "bad timezone",
			cfg:     Config{Timezone: "Mars/Olympus", Tickers: []TickerConfig{periodic}},
			wantErr: "timezone",
		},
		{
			name:    "bad log level",
			cfg:     Config{Log: LogConfig{Level: "loud"}, Tickers: []TickerConfig{periodic}},
			wantErr: "log.level",
		},
		{
			name:    "retention without journal",
			cfg:     Config{Journal: JournalConfig{Retention: Duration(time.Hour)}, Tickers: []TickerConfig{periodic}},
			wantErr: "journal.retention",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Config{
		Log: LogConfig{Level: "loud"},
		Tickers: []TickerConfig{
			{Name: "a"},
			{Name: "b", Granularity: "week"},
		},
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected an error")
	}
	for _, want := range []string{"log.level", "tickers[0]", "tickers[1]"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestCalendarSpecWrapsInvalidArgument(t *testing.T) {
	tc := TickerConfig{Name: "c", Granularity: "minute", Targets: "*/0"}
	if _, _, err := tc.CalendarSpec(); !errors.Is(err, ticker.ErrInvalidArgument) {
		t.Errorf("CalendarSpec() error = %v, want ErrInvalidArgument", err)
	}
}
