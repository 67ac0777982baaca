package ticker

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ahmed-com/cadence/metrics"
)

// Granularity selects the wall-clock field a CalendarTicker matches.
type Granularity int

const (
	// GranularityHour fires once in each hour whose minute is a target.
	GranularityHour Granularity = iota + 1
	// GranularityMinute fires once in each minute whose second is a target.
	GranularityMinute
)

// String returns the lower-case name of the granularity.
func (g Granularity) String() string {
	switch g {
	case GranularityHour:
		return "hour"
	case GranularityMinute:
		return "minute"
	default:
		return fmt.Sprintf("granularity(%d)", int(g))
	}
}

// ParseGranularity parses "hour" or "minute".
func ParseGranularity(s string) (Granularity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hour":
		return GranularityHour, nil
	case "minute":
		return GranularityMinute, nil
	default:
		return 0, fmt.Errorf("%w: unknown granularity %q", ErrInvalidArgument, s)
	}
}

func (g Granularity) valid() bool {
	return g == GranularityHour || g == GranularityMinute
}

// step is the truncation unit of a granularity.
func (g Granularity) step() time.Duration {
	if g == GranularityHour {
		return time.Minute
	}
	return time.Second
}

// calendarKey identifies one emission window. The zero value, with set
// false, is the "never emitted" sentinel and equals no real key.
type calendarKey struct {
	hour, minute, second int
	set                  bool
}

// CalendarTicker fires on chosen values of a wall-clock field, for example at
// seconds 30, 35, 40 and 55 of every minute. It filters the ticks of an
// internal 1-second PeriodicTicker and emits at most once per matching
// truncated timestamp.
type CalendarTicker struct {
	granularity Granularity
	targets     [60]bool
	cfg         resolvedConfig
	base        *PeriodicTicker

	// lastKey is only touched on the base ticker's delivery goroutine.
	lastKey calendarKey
	count   atomic.Int64

	observers observerSet
	sink      channelSink
}

// NewCalendarTicker creates a calendar ticker firing when the field selected
// by granularity equals one of targets (0..59).
func NewCalendarTicker(granularity Granularity, targets []int, config TickerConfig) (*CalendarTicker, error) {
	if !granularity.valid() {
		return nil, fmt.Errorf("%w: unknown granularity %d", ErrInvalidArgument, int(granularity))
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: target set is empty", ErrInvalidArgument)
	}

	var set [60]bool
	for _, v := range targets {
		if v < 0 || v > 59 {
			return nil, fmt.Errorf("%w: target %d outside 0..59", ErrInvalidArgument, v)
		}
		set[v] = true
	}

	cfg, err := config.resolve("calendar")
	if err != nil {
		return nil, err
	}

	baseConfig := config
	baseConfig.Name = cfg.name + "/base"
	baseConfig.Clock = cfg.clock
	baseConfig.AlignToWallClock = true
	base, err := NewPeriodicTicker(time.Second, baseConfig)
	if err != nil {
		return nil, err
	}

	c := &CalendarTicker{
		granularity: granularity,
		targets:     set,
		cfg:         cfg,
		base:        base,
	}
	base.Subscribe(c.onBaseTick)
	return c, nil
}

// NewCalendarTickerFromExpr is NewCalendarTicker with the targets written as
// one cron field, see ParseTargets.
func NewCalendarTickerFromExpr(granularity Granularity, expr string, config TickerConfig) (*CalendarTicker, error) {
	targets, err := ParseTargets(granularity, expr)
	if err != nil {
		return nil, err
	}
	return NewCalendarTicker(granularity, targets, config)
}

func (c *CalendarTicker) onBaseTick(tick Tick) {
	local := tick.FireTime.In(c.cfg.location)
	hour, minute, second := local.Clock()

	field := second
	key := calendarKey{hour: hour, minute: minute, second: second, set: true}
	if c.granularity == GranularityHour {
		field = minute
		key.second = 0
	}

	if !c.targets[field] {
		c.cfg.metrics.IncSuppressed(c.cfg.name, metrics.SuppressNoMatch)
		return
	}
	if key == c.lastKey {
		c.cfg.metrics.IncSuppressed(c.cfg.name, metrics.SuppressDuplicate)
		return
	}
	c.lastKey = key

	year, month, day := local.Date()
	scheduled := time.Date(year, month, day, key.hour, key.minute, key.second, 0, c.cfg.location)

	c.cfg.metrics.IncTicks(c.cfg.name, metrics.KindCalendar)
	c.observers.notify(Tick{
		TickerID:      c.cfg.id,
		Name:          c.cfg.name,
		ScheduledTime: scheduled,
		FireTime:      local,
		Count:         c.count.Add(1),
	})
}

// Start begins matching. Calendar tickers never fire immediately on start.
func (c *CalendarTicker) Start() error {
	return c.base.Start()
}

// Stop halts matching; see PeriodicTicker.Stop.
func (c *CalendarTicker) Stop() error {
	return c.base.Stop()
}

// Close releases the ticker and closes its channel.
func (c *CalendarTicker) Close() error {
	if err := c.base.Close(); err != nil {
		return err
	}
	c.sink.close()
	return nil
}

// Channel returns the tick channel
func (c *CalendarTicker) Channel() <-chan Tick {
	return c.sink.channel(c.cfg.channelBuffer, &c.observers, func() {
		c.cfg.metrics.IncDropped(c.cfg.name)
	})
}

// Subscribe registers an observer for every calendar tick.
func (c *CalendarTicker) Subscribe(obs Observer) func() {
	if obs == nil {
		return func() {}
	}
	return c.observers.add(obs)
}

// ID returns the deterministic ticker ID derived from its name
func (c *CalendarTicker) ID() string {
	return c.cfg.id
}

// Name returns the ticker name
func (c *CalendarTicker) Name() string {
	return c.cfg.name
}

// Granularity returns the matched field
func (c *CalendarTicker) Granularity() Granularity {
	return c.granularity
}

// Targets returns the target values in ascending order
func (c *CalendarTicker) Targets() []int {
	var out []int
	for v, ok := range c.targets {
		if ok {
			out = append(out, v)
		}
	}
	return out
}

// IsRunning returns whether the base ticker is armed
func (c *CalendarTicker) IsRunning() bool {
	return c.base.IsRunning()
}

// TickCount returns the number of calendar ticks emitted.
func (c *CalendarTicker) TickCount() int64 {
	return c.count.Load()
}

// NextRun returns the next matching instant after now, or nil when stopped
func (c *CalendarTicker) NextRun() (*time.Time, error) {
	if _, err := c.base.NextRun(); err != nil {
		return nil, err
	}
	if !c.base.IsRunning() {
		return nil, nil
	}

	step := c.granularity.step()
	current := c.cfg.clock.Now().In(c.cfg.location).Truncate(step)
	// One full cycle of the matched field always contains a target.
	for i := 0; i <= 60; i++ {
		current = current.Add(step)
		if c.matches(current) {
			return &current, nil
		}
	}
	return nil, fmt.Errorf("no matching instant within one %s", c.granularity)
}

// GetOccurrencesBetween returns all matching instants in [start, end)
func (c *CalendarTicker) GetOccurrencesBetween(start, end time.Time) ([]time.Time, error) {
	step := c.granularity.step()
	current := start.In(c.cfg.location).Truncate(step)
	if current.Before(start) {
		current = current.Add(step)
	}

	var occurrences []time.Time
	iterations := 0
	for current.Before(end) {
		iterations++
		if iterations > MaxOccurrenceIterations {
			return nil, fmt.Errorf("too many iterations while computing occurrences")
		}
		if c.matches(current) {
			occurrences = append(occurrences, current)
		}
		current = current.Add(step)
	}

	return occurrences, nil
}

func (c *CalendarTicker) matches(t time.Time) bool {
	local := t.In(c.cfg.location)
	if c.granularity == GranularityHour {
		return c.targets[local.Minute()]
	}
	return c.targets[local.Second()]
}
