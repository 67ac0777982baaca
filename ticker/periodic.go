package ticker

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ahmed-com/cadence/clock"
	"github.com/ahmed-com/cadence/metrics"
	"golang.org/x/time/rate"
)

// PeriodicTicker fires every interval on a fixed grid. Every wake-up re-arms
// the clock for the time remaining to the next grid point, so scheduler
// latency and timer jitter are corrected on each cycle instead of
// accumulating.
//
// Targets are kept as nanosecond offsets from the clock reading taken at
// construction, which keeps the arithmetic on the monotonic clock when the
// real clock is used.
type PeriodicTicker struct {
	interval time.Duration
	cfg      resolvedConfig
	epoch    time.Time
	lateLog  *rate.Limiter

	nextTarget atomic.Int64
	tickCount  atomic.Int64

	observers observerSet
	sink      channelSink

	mu        sync.Mutex
	running   bool
	closed    bool
	gen       uint64
	phase     int64
	hasPhase  bool
	timer     clock.Timer
	immediate clock.Timer

	// fireMu serializes deliveries so tick counts reach observers in order.
	fireMu sync.Mutex
}

// MaxInterval is the longest accepted period. It keeps grid offsets, which
// are int64 nanoseconds from construction, far from overflow.
const MaxInterval = 100 * 365 * 24 * time.Hour

// NewPeriodicTicker creates a ticker firing every interval.
func NewPeriodicTicker(interval time.Duration, config TickerConfig) (*PeriodicTicker, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("%w: interval must be positive, got %s", ErrInvalidArgument, interval)
	}
	if interval > MaxInterval {
		return nil, fmt.Errorf("%w: interval %s exceeds the maximum of %s", ErrInvalidArgument, interval, MaxInterval)
	}

	cfg, err := config.resolve("periodic")
	if err != nil {
		return nil, err
	}
	if cfg.lateThreshold <= 0 {
		cfg.lateThreshold = interval
	}

	return &PeriodicTicker{
		interval: interval,
		cfg:      cfg,
		epoch:    cfg.clock.Now(),
		lateLog:  rate.NewLimiter(rate.Every(time.Second), 1),
	}, nil
}

// Start begins ticking. The first tick lands on the grid: one interval after
// the first ever Start, or on the grid preserved by the last Stop.
func (t *PeriodicTicker) Start() error {
	return t.start(false)
}

// StartImmediate is Start plus one extra, asynchronously delivered tick
// stamped with the start instant. The extra tick does not move the grid.
func (t *PeriodicTicker) StartImmediate() error {
	return t.start(true)
}

func (t *PeriodicTicker) start(fireImmediately bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return t.closedErr("start")
	}
	if t.running {
		return fmt.Errorf("%w: ticker %q already running", ErrInvalidState, t.cfg.name)
	}

	now := t.cfg.clock.Now()
	off := t.offset(now)
	iv := int64(t.interval)
	next := nextOnGrid(off, t.gridPhase(off), iv)
	t.nextTarget.Store(next)

	t.gen++
	gen := t.gen
	t.running = true
	t.timer = t.cfg.clock.AfterFunc(time.Duration(next-off), func() { t.wake(gen) })
	if fireImmediately {
		t.immediate = t.cfg.clock.AfterFunc(0, func() { t.fireImmediate(gen, now) })
	}

	t.cfg.metrics.SetRunning(t.cfg.name, true)
	t.cfg.log.Debug().
		Dur("interval", t.interval).
		Time("first", t.epoch.Add(time.Duration(next))).
		Bool("immediate", fireImmediately).
		Msg("ticker started")
	return nil
}

// wake runs on every expiry of the underlying timer, early or late.
func (t *PeriodicTicker) wake(gen uint64) {
	t.fireMu.Lock()
	defer t.fireMu.Unlock()

	if !t.isCurrent(gen) {
		return
	}
	// Deferred so an observer panic still leaves the next tick armed.
	defer t.rearm(gen)

	now := t.cfg.clock.Now()
	off := t.offset(now)
	target := t.nextTarget.Load()
	if off < target {
		t.cfg.metrics.IncWakeups(t.cfg.name, metrics.WakeEarly)
		return
	}
	t.cfg.metrics.IncWakeups(t.cfg.name, metrics.WakeFired)

	// Advance from the target, never from now.
	t.nextTarget.Store(target + int64(t.interval))

	scheduled := t.epoch.Add(time.Duration(target))
	lateness := time.Duration(off - target)
	t.cfg.metrics.ObserveLateness(t.cfg.name, lateness)
	if lateness > t.cfg.lateThreshold && t.lateLog.AllowN(now, 1) {
		t.cfg.log.Warn().
			Dur("lateness", lateness).
			Time("scheduled", scheduled).
			Msg("tick fired late")
	}

	t.fire(Tick{ScheduledTime: scheduled, FireTime: now}, metrics.KindGrid)
}

func (t *PeriodicTicker) rearm(gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running || t.gen != gen {
		return
	}

	delay := t.nextTarget.Load() - t.offset(t.cfg.clock.Now())
	if delay < 0 {
		delay = 0
	}
	t.timer = t.cfg.clock.AfterFunc(time.Duration(delay), func() { t.wake(gen) })
}

func (t *PeriodicTicker) fireImmediate(gen uint64, at time.Time) {
	t.fireMu.Lock()
	defer t.fireMu.Unlock()

	t.mu.Lock()
	current := t.running && t.gen == gen
	if current {
		t.immediate = nil
	}
	t.mu.Unlock()
	if !current {
		return
	}

	t.fire(Tick{ScheduledTime: at, FireTime: at, Immediate: true}, metrics.KindImmediate)
}

// fire must be called with fireMu held.
func (t *PeriodicTicker) fire(tick Tick, kind string) {
	tick.TickerID = t.cfg.id
	tick.Name = t.cfg.name
	tick.ScheduledTime = tick.ScheduledTime.In(t.cfg.location)
	tick.FireTime = tick.FireTime.In(t.cfg.location)
	tick.Count = t.tickCount.Add(1)

	t.cfg.metrics.IncTicks(t.cfg.name, kind)
	t.observers.notify(tick)
}

// Stop disarms the ticker. The grid phase and the tick count are kept, so a
// later Start resumes on the same grid. Stopping a stopped ticker is a no-op.
// A wake-up already past its checks when Stop is called may still deliver
// one tick.
func (t *PeriodicTicker) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return t.closedErr("stop")
	}
	if !t.running {
		return nil
	}

	t.phase = floorMod(t.nextTarget.Load(), int64(t.interval))
	t.hasPhase = true
	t.halt()

	t.cfg.log.Debug().Int64("ticks", t.tickCount.Load()).Msg("ticker stopped")
	return nil
}

// Close stops the ticker for good and closes its channel. No tick is
// delivered after Close returns. Close must not be called from an Observer;
// use Stop there.
func (t *PeriodicTicker) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return t.closedErr("close")
	}
	if t.running {
		t.halt()
	}
	t.closed = true
	t.mu.Unlock()

	// Wait out a delivery that passed its checks before halt.
	t.fireMu.Lock()
	t.fireMu.Unlock()

	t.sink.close()
	t.cfg.log.Debug().Msg("ticker closed")
	return nil
}

// halt must be called with mu held.
func (t *PeriodicTicker) halt() {
	t.running = false
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	if t.immediate != nil {
		t.immediate.Stop()
		t.immediate = nil
	}
	t.cfg.metrics.SetRunning(t.cfg.name, false)
}

func (t *PeriodicTicker) isCurrent(gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running && t.gen == gen
}

func (t *PeriodicTicker) closedErr(op string) error {
	return fmt.Errorf("%w: %s on closed ticker %q", ErrInvalidState, op, t.cfg.name)
}

func (t *PeriodicTicker) offset(now time.Time) int64 {
	return int64(now.Sub(t.epoch))
}

// gridPhase must be called with mu held.
func (t *PeriodicTicker) gridPhase(off int64) int64 {
	iv := int64(t.interval)
	switch {
	case t.hasPhase:
		return t.phase
	case t.cfg.align:
		return floorMod(-t.epoch.UnixNano(), iv)
	default:
		return floorMod(off, iv)
	}
}

// nextOnGrid returns the smallest point strictly after off that is congruent
// to phase modulo iv.
func nextOnGrid(off, phase, iv int64) int64 {
	return off - floorMod(off-phase, iv) + iv
}

func floorMod(a, m int64) int64 {
	r := a % m
	if r < 0 {
		r += m
	}
	return r
}

// Channel returns the tick channel
func (t *PeriodicTicker) Channel() <-chan Tick {
	return t.sink.channel(t.cfg.channelBuffer, &t.observers, func() {
		t.cfg.metrics.IncDropped(t.cfg.name)
	})
}

// Subscribe registers an observer for every tick.
func (t *PeriodicTicker) Subscribe(obs Observer) func() {
	if obs == nil {
		return func() {}
	}
	return t.observers.add(obs)
}

// TickCount returns the number of ticks delivered since construction.
func (t *PeriodicTicker) TickCount() int64 {
	return t.tickCount.Load()
}

// Interval returns the tick interval
func (t *PeriodicTicker) Interval() time.Duration {
	return t.interval
}

// ID returns the deterministic ticker ID derived from its name
func (t *PeriodicTicker) ID() string {
	return t.cfg.id
}

// Name returns the ticker name
func (t *PeriodicTicker) Name() string {
	return t.cfg.name
}

// IsRunning returns whether the ticker is armed
func (t *PeriodicTicker) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// NextRun returns the next grid target, or nil when the ticker is stopped
func (t *PeriodicTicker) NextRun() (*time.Time, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, t.closedErr("next run")
	}
	if !t.running {
		return nil, nil
	}

	next := t.epoch.Add(time.Duration(t.nextTarget.Load())).In(t.cfg.location)
	return &next, nil
}

// GetOccurrencesBetween returns the grid points in [start, end). A ticker that
// is not running reports what Start would produce if called now: the grid it
// would use, beginning strictly after now.
func (t *PeriodicTicker) GetOccurrencesBetween(start, end time.Time) ([]time.Time, error) {
	iv := int64(t.interval)
	offStart := t.offset(start)

	t.mu.Lock()
	var phase int64
	if t.running {
		phase = floorMod(t.nextTarget.Load(), iv)
	} else {
		now := t.offset(t.cfg.clock.Now())
		phase = t.gridPhase(now)
		if offStart <= now {
			offStart = now + 1
		}
	}
	t.mu.Unlock()

	offEnd := t.offset(end)
	current := offStart + floorMod(phase-offStart, iv)

	var occurrences []time.Time
	for count := 0; current < offEnd; count++ {
		// Safety check
		if count >= MaxOccurrenceIterations {
			return nil, fmt.Errorf("too many occurrences between %s and %s", start, end)
		}
		occurrences = append(occurrences, t.epoch.Add(time.Duration(current)).In(t.cfg.location))
		current += iv
	}

	return occurrences, nil
}
