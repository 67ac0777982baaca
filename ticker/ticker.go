package ticker

import (
	"errors"
	"fmt"
	"time"

	"github.com/ahmed-com/cadence/clock"
	"github.com/ahmed-com/cadence/id"
	"github.com/ahmed-com/cadence/metrics"
	"github.com/rs/zerolog"
)

// MaxOccurrenceIterations is the safety limit for occurrence calculations
const MaxOccurrenceIterations = 10000

// DefaultChannelBuffer is the capacity of the tick channel returned by Channel.
const DefaultChannelBuffer = 10

var (
	// ErrInvalidArgument reports a configuration that can never tick:
	// a non-positive interval, an unknown granularity, or a bad target set.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidState reports caller misuse of the lifecycle: starting a
	// running ticker, or any operation after Close.
	ErrInvalidState = errors.New("invalid state")
)

// Tick is one notification delivered to observers.
type Tick struct {
	TickerID string
	Name     string

	// ScheduledTime is the instant the tick was due: the grid target for
	// periodic ticks, the truncated matching instant for calendar ticks.
	ScheduledTime time.Time
	// FireTime is the clock reading when the tick was delivered.
	FireTime time.Time
	// Count is the ordinal of this tick, starting at 1.
	Count int64
	// Immediate marks the extra tick requested by StartImmediate.
	Immediate bool
}

// Lateness is how far FireTime trails ScheduledTime.
func (t Tick) Lateness() time.Duration {
	return t.FireTime.Sub(t.ScheduledTime)
}

// Observer receives ticks on the ticker's delivery goroutine. It must return
// quickly: the next wake-up is armed only after all observers returned.
type Observer func(Tick)

// Ticker defines the surface shared by periodic and calendar tickers
type Ticker interface {
	// Channel returns a read-only channel that emits ticks. Sends never
	// block; ticks are dropped when the buffer is full.
	Channel() <-chan Tick

	// Subscribe registers an observer and returns a function removing it.
	Subscribe(obs Observer) (unsubscribe func())

	// Control methods
	Start() error
	Stop() error
	Close() error

	// Status checks
	ID() string
	Name() string
	IsRunning() bool
	TickCount() int64
	NextRun() (*time.Time, error)

	// GetOccurrencesBetween returns the instants in [start, end) at which
	// the ticker would fire.
	GetOccurrencesBetween(start, end time.Time) ([]time.Time, error)
}

// TickerConfig provides common configuration for all tickers
type TickerConfig struct {
	// Name identifies the ticker in logs, metrics and ids.
	Name string
	// Timezone is the location used for tick times and calendar fields.
	// Defaults to the local zone.
	Timezone string
	// Clock is the time source and wake-up primitive. Defaults to clock.Real().
	Clock clock.Clock
	// AlignToWallClock places periodic ticks on wall-clock multiples of the
	// interval on first start instead of one interval after Start.
	AlignToWallClock bool
	// ChannelBuffer is the capacity of the channel returned by Channel.
	ChannelBuffer int
	// LateThreshold is the lateness above which a warning is logged.
	// Defaults to one interval.
	LateThreshold time.Duration

	Logger  *zerolog.Logger
	Metrics metrics.MetricsCollector
}

// resolvedConfig is a TickerConfig with every default filled in.
type resolvedConfig struct {
	name          string
	id            string
	location      *time.Location
	clock         clock.Clock
	align         bool
	channelBuffer int
	lateThreshold time.Duration
	log           zerolog.Logger
	metrics       metrics.MetricsCollector
}

func (c TickerConfig) resolve(kind string) (resolvedConfig, error) {
	timezone := c.Timezone
	if timezone == "" {
		timezone = "Local"
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return resolvedConfig{}, fmt.Errorf("%w: invalid timezone %s: %v", ErrInvalidArgument, timezone, err)
	}

	r := resolvedConfig{
		name:          c.Name,
		location:      loc,
		clock:         c.Clock,
		align:         c.AlignToWallClock,
		channelBuffer: c.ChannelBuffer,
		lateThreshold: c.LateThreshold,
		metrics:       c.Metrics,
	}
	if r.name == "" {
		r.name = kind
	}
	r.id = id.GenerateTickerID(r.name)
	if r.clock == nil {
		r.clock = clock.Real()
	}
	if r.channelBuffer <= 0 {
		r.channelBuffer = DefaultChannelBuffer
	}
	if r.metrics == nil {
		r.metrics = metrics.NewNoOpMetrics()
	}
	if c.Logger != nil {
		r.log = c.Logger.With().Str("ticker", r.name).Logger()
	} else {
		r.log = zerolog.Nop()
	}
	return r, nil
}
