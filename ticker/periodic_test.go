package ticker

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ahmed-com/cadence/clock"
	"github.com/ahmed-com/cadence/metrics"
)

var testStart = time.Date(2025, 11, 7, 12, 0, 0, 0, time.UTC)

// recorder collects ticks delivered on the fake clock's goroutine.
type recorder struct {
	ticks []Tick
}

func (r *recorder) observe(t Tick) {
	r.ticks = append(r.ticks, t)
}

func newTestPeriodic(t *testing.T, interval time.Duration, fake *clock.Fake, m metrics.MetricsCollector) (*PeriodicTicker, *recorder) {
	t.Helper()
	ticker, err := NewPeriodicTicker(interval, TickerConfig{
		Name:     "test",
		Timezone: "UTC",
		Clock:    fake,
		Metrics:  m,
	})
	if err != nil {
		t.Fatalf("NewPeriodicTicker() error = %v", err)
	}
	rec := &recorder{}
	ticker.Subscribe(rec.observe)
	return ticker, rec
}

func TestPeriodicTickerCreation(t *testing.T) {
	tests := []struct {
		name        string
		interval    time.Duration
		timezone    string
		shouldError bool
	}{
		{"valid interval", 100 * time.Millisecond, "UTC", false},
		{"zero interval", 0, "UTC", true},
		{"negative interval", -time.Second, "UTC", true},
		{"invalid timezone", time.Second, "Not/AZone", true},
		{"longest interval", MaxInterval, "UTC", false},
		{"interval above maximum", MaxInterval + 1, "UTC", true},
		{"max int64 interval", time.Duration(math.MaxInt64), "UTC", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPeriodicTicker(tt.interval, TickerConfig{Timezone: tt.timezone})
			if tt.shouldError {
				if !errors.Is(err, ErrInvalidArgument) {
					t.Errorf("expected ErrInvalidArgument, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestPeriodicTickerFiresOnGrid(t *testing.T) {
	fake := clock.NewFake(testStart)
	ticker, rec := newTestPeriodic(t, 100*time.Millisecond, fake, nil)

	if err := ticker.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	fake.Advance(time.Second)

	if len(rec.ticks) != 10 {
		t.Fatalf("got %d ticks, want 10", len(rec.ticks))
	}
	for i, tick := range rec.ticks {
		want := testStart.Add(time.Duration(i+1) * 100 * time.Millisecond)
		if !tick.ScheduledTime.Equal(want) {
			t.Errorf("tick %d scheduled at %s, want %s", i, tick.ScheduledTime, want)
		}
		if tick.Count != int64(i+1) {
			t.Errorf("tick %d Count = %d, want %d", i, tick.Count, i+1)
		}
		if tick.Immediate {
			t.Errorf("tick %d unexpectedly immediate", i)
		}
		if tick.TickerID != ticker.ID() || tick.Name != "test" {
			t.Errorf("tick %d carries %q/%q", i, tick.TickerID, tick.Name)
		}
	}
}

func TestPeriodicTickerNoDriftUnderLateWakeups(t *testing.T) {
	fake := clock.NewFake(testStart)
	fake.SetSkew(20 * time.Millisecond)
	m := metrics.NewInMemoryMetrics()
	ticker, rec := newTestPeriodic(t, 100*time.Millisecond, fake, m)

	if err := ticker.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	fake.Advance(10 * time.Second)

	if len(rec.ticks) != 100 {
		t.Fatalf("got %d ticks, want 100", len(rec.ticks))
	}
	// Lateness never compounds: the last tick is still on the original grid.
	last := rec.ticks[len(rec.ticks)-1]
	if want := testStart.Add(10 * time.Second); !last.ScheduledTime.Equal(want) {
		t.Errorf("last tick scheduled at %s, want %s", last.ScheduledTime, want)
	}
	for i, tick := range rec.ticks {
		if l := tick.Lateness(); l < 0 || l > 20*time.Millisecond {
			t.Errorf("tick %d lateness = %s, want within [0, 20ms]", i, l)
		}
	}
	if got := m.MaxLateness("test"); got != 20*time.Millisecond {
		t.Errorf("MaxLateness() = %s, want 20ms", got)
	}
}

func TestPeriodicTickerCatchUpAfterStall(t *testing.T) {
	fake := clock.NewFake(testStart)
	ticker, rec := newTestPeriodic(t, 100*time.Millisecond, fake, nil)

	if err := ticker.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// The first wake-up lands 350ms late, past three more grid points.
	fake.SetSkew(350 * time.Millisecond)
	fake.Advance(450 * time.Millisecond)

	if len(rec.ticks) != 4 {
		t.Fatalf("got %d ticks after the stall, want 4", len(rec.ticks))
	}
	stalledAt := testStart.Add(450 * time.Millisecond)
	for i, tick := range rec.ticks {
		want := testStart.Add(time.Duration(i+1) * 100 * time.Millisecond)
		if !tick.ScheduledTime.Equal(want) {
			t.Errorf("tick %d scheduled %s, want %s", i+1, tick.ScheduledTime, want)
		}
		if !tick.FireTime.Equal(stalledAt) {
			t.Errorf("tick %d fired %s, want the catch-up at %s", i+1, tick.FireTime, stalledAt)
		}
		if tick.Count != int64(i+1) {
			t.Errorf("tick %d has count %d", i+1, tick.Count)
		}
	}

	fake.SetSkew(0)
	fake.Advance(150 * time.Millisecond)

	if len(rec.ticks) != 6 {
		t.Fatalf("got %d ticks, want 6", len(rec.ticks))
	}
	for i, ms := range []int{500, 600} {
		tick := rec.ticks[4+i]
		want := testStart.Add(time.Duration(ms) * time.Millisecond)
		if !tick.ScheduledTime.Equal(want) || !tick.FireTime.Equal(want) {
			t.Errorf("tick %d = scheduled %s fired %s, want both %s", tick.Count, tick.ScheduledTime, tick.FireTime, want)
		}
	}
}

func TestPeriodicTickerEarlyWakeupRearms(t *testing.T) {
	fake := clock.NewFake(testStart)
	fake.SetSkew(-20 * time.Millisecond)
	m := metrics.NewInMemoryMetrics()
	ticker, rec := newTestPeriodic(t, 100*time.Millisecond, fake, m)

	if err := ticker.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	fake.Advance(time.Second)

	if len(rec.ticks) != 10 {
		t.Fatalf("got %d ticks, want 10", len(rec.ticks))
	}
	for i, tick := range rec.ticks {
		if tick.FireTime.Before(tick.ScheduledTime) {
			t.Errorf("tick %d fired at %s before its target %s", i, tick.FireTime, tick.ScheduledTime)
		}
	}
	if got := m.GetWakeups("test", metrics.WakeEarly); got != 10 {
		t.Errorf("early wakeups = %d, want 10", got)
	}
	if got := m.GetWakeups("test", metrics.WakeFired); got != 10 {
		t.Errorf("fired wakeups = %d, want 10", got)
	}
}

func TestPeriodicTickerStartImmediate(t *testing.T) {
	fake := clock.NewFake(testStart)
	m := metrics.NewInMemoryMetrics()
	ticker, rec := newTestPeriodic(t, 100*time.Millisecond, fake, m)

	if err := ticker.StartImmediate(); err != nil {
		t.Fatalf("StartImmediate() error = %v", err)
	}
	if len(rec.ticks) != 0 {
		t.Fatal("immediate tick delivered synchronously from Start")
	}
	fake.Advance(time.Second)

	if len(rec.ticks) != 11 {
		t.Fatalf("got %d ticks, want 11", len(rec.ticks))
	}
	first := rec.ticks[0]
	if !first.Immediate || !first.ScheduledTime.Equal(testStart) || first.Count != 1 {
		t.Errorf("first tick = %+v, want immediate tick at start", first)
	}
	// The immediate tick does not shift the grid.
	if want := testStart.Add(100 * time.Millisecond); !rec.ticks[1].ScheduledTime.Equal(want) {
		t.Errorf("second tick scheduled at %s, want %s", rec.ticks[1].ScheduledTime, want)
	}
	if got := m.GetTicks("test", metrics.KindImmediate); got != 1 {
		t.Errorf("immediate ticks = %d, want 1", got)
	}
	if got := m.GetTicks("test", metrics.KindGrid); got != 10 {
		t.Errorf("grid ticks = %d, want 10", got)
	}
}

func TestPeriodicTickerImmediateCancelledByStop(t *testing.T) {
	fake := clock.NewFake(testStart)
	ticker, rec := newTestPeriodic(t, 100*time.Millisecond, fake, nil)

	if err := ticker.StartImmediate(); err != nil {
		t.Fatalf("StartImmediate() error = %v", err)
	}
	if err := ticker.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	fake.Advance(time.Second)

	if len(rec.ticks) != 0 {
		t.Errorf("got %d ticks after Stop, want 0", len(rec.ticks))
	}
}

func TestPeriodicTickerLifecycle(t *testing.T) {
	fake := clock.NewFake(testStart)
	m := metrics.NewInMemoryMetrics()
	ticker, _ := newTestPeriodic(t, time.Second, fake, m)

	if ticker.IsRunning() {
		t.Error("ticker should not be running before Start")
	}
	if next, err := ticker.NextRun(); err != nil || next != nil {
		t.Errorf("NextRun() before Start = %v, %v; want nil, nil", next, err)
	}

	if err := ticker.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !ticker.IsRunning() {
		t.Error("ticker should be running after Start")
	}
	if m.GetRunning() != 1 {
		t.Errorf("GetRunning() = %d, want 1", m.GetRunning())
	}
	if err := ticker.Start(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second Start() error = %v, want ErrInvalidState", err)
	}

	if err := ticker.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := ticker.Stop(); err != nil {
		t.Errorf("second Stop() error = %v, want nil", err)
	}
	if ticker.IsRunning() {
		t.Error("ticker should not be running after Stop")
	}
	if fake.Pending() != 0 {
		t.Errorf("Pending() = %d after Stop, want 0", fake.Pending())
	}

	if err := ticker.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := ticker.Close(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second Close() error = %v, want ErrInvalidState", err)
	}
	if err := ticker.Start(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Start() after Close error = %v, want ErrInvalidState", err)
	}
	if err := ticker.Stop(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Stop() after Close error = %v, want ErrInvalidState", err)
	}
	if _, err := ticker.NextRun(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("NextRun() after Close error = %v, want ErrInvalidState", err)
	}
	if m.GetRunning() != 0 {
		t.Errorf("GetRunning() = %d, want 0", m.GetRunning())
	}
}

func TestPeriodicTickerNoTicksAfterClose(t *testing.T) {
	fake := clock.NewFake(testStart)
	ticker, rec := newTestPeriodic(t, 100*time.Millisecond, fake, nil)
	ch := ticker.Channel()

	if err := ticker.StartImmediate(); err != nil {
		t.Fatalf("StartImmediate() error = %v", err)
	}
	fake.Advance(250 * time.Millisecond)
	if len(rec.ticks) != 3 {
		t.Fatalf("got %d ticks before Close, want 3", len(rec.ticks))
	}

	if err := ticker.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if fake.Pending() != 0 {
		t.Errorf("Pending() = %d after Close, want 0", fake.Pending())
	}
	fake.Advance(time.Second)

	if len(rec.ticks) != 3 {
		t.Errorf("observer saw %d ticks after Close", len(rec.ticks)-3)
	}
	if ticker.TickCount() != 3 {
		t.Errorf("TickCount() = %d after Close, want 3", ticker.TickCount())
	}

	received := 0
	for range ch {
		received++
	}
	if received != 3 {
		t.Errorf("channel delivered %d ticks, want the 3 sent before Close", received)
	}
}

func TestPeriodicTickerLongestInterval(t *testing.T) {
	fake := clock.NewFake(testStart)
	ticker, _ := newTestPeriodic(t, MaxInterval, fake, nil)

	fake.Advance(time.Second)
	if err := ticker.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	next, err := ticker.NextRun()
	if err != nil {
		t.Fatalf("NextRun() error = %v", err)
	}
	if want := fake.Now().Add(MaxInterval); !next.Equal(want) {
		t.Errorf("NextRun() = %s, want %s", next, want)
	}
}

func TestPeriodicTickerRestartKeepsGridAndCount(t *testing.T) {
	fake := clock.NewFake(testStart)
	ticker, rec := newTestPeriodic(t, 100*time.Millisecond, fake, nil)

	// Start off the round grid so the phase is observable.
	fake.Advance(30 * time.Millisecond)
	if err := ticker.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	fake.Advance(220 * time.Millisecond) // ticks at +130ms and +230ms
	if err := ticker.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if ticker.TickCount() != 2 {
		t.Fatalf("TickCount() = %d, want 2", ticker.TickCount())
	}

	fake.Advance(100 * time.Millisecond) // now +350ms
	if err := ticker.Start(); err != nil {
		t.Fatalf("restart error = %v", err)
	}

	next, err := ticker.NextRun()
	if err != nil || next == nil {
		t.Fatalf("NextRun() = %v, %v", next, err)
	}
	if want := testStart.Add(430 * time.Millisecond); !next.Equal(want) {
		t.Errorf("NextRun() after restart = %s, want %s", next, want)
	}

	fake.Advance(100 * time.Millisecond)
	if len(rec.ticks) != 3 || rec.ticks[2].Count != 3 {
		t.Fatalf("got %d ticks, want count to continue at 3", len(rec.ticks))
	}
}

func TestPeriodicTickerAlignToWallClock(t *testing.T) {
	fake := clock.NewFake(testStart.Add(300 * time.Millisecond))
	ticker, err := NewPeriodicTicker(time.Second, TickerConfig{
		Timezone:         "UTC",
		Clock:            fake,
		AlignToWallClock: true,
	})
	if err != nil {
		t.Fatalf("NewPeriodicTicker() error = %v", err)
	}

	if err := ticker.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	next, err := ticker.NextRun()
	if err != nil || next == nil {
		t.Fatalf("NextRun() = %v, %v", next, err)
	}
	if want := testStart.Add(time.Second); !next.Equal(want) {
		t.Errorf("NextRun() = %s, want %s", next, want)
	}
}

func TestPeriodicTickerStopFromObserver(t *testing.T) {
	fake := clock.NewFake(testStart)
	ticker, _ := newTestPeriodic(t, 100*time.Millisecond, fake, nil)

	ticker.Subscribe(func(tick Tick) {
		if tick.Count == 3 {
			if err := ticker.Stop(); err != nil {
				t.Errorf("Stop() from observer error = %v", err)
			}
		}
	})

	if err := ticker.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	fake.Advance(time.Second)

	if ticker.TickCount() != 3 {
		t.Errorf("TickCount() = %d, want 3", ticker.TickCount())
	}
	if fake.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", fake.Pending())
	}
}

func TestPeriodicTickerObserverPanicKeepsTicking(t *testing.T) {
	fake := clock.NewFake(testStart)
	ticker, _ := newTestPeriodic(t, 100*time.Millisecond, fake, nil)

	ticker.Subscribe(func(tick Tick) {
		if tick.Count == 1 {
			panic("observer failure")
		}
	})
	if err := ticker.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Error("expected observer panic to propagate")
			}
		}()
		fake.Advance(100 * time.Millisecond)
	}()

	if fake.Pending() != 1 {
		t.Fatalf("Pending() = %d after panic, want 1", fake.Pending())
	}
	fake.Advance(100 * time.Millisecond)
	if ticker.TickCount() != 2 {
		t.Errorf("TickCount() = %d, want 2", ticker.TickCount())
	}
}

func TestPeriodicTickerUnsubscribe(t *testing.T) {
	fake := clock.NewFake(testStart)
	ticker, rec := newTestPeriodic(t, 100*time.Millisecond, fake, nil)

	other := &recorder{}
	unsubscribe := ticker.Subscribe(other.observe)

	if err := ticker.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	fake.Advance(200 * time.Millisecond)
	unsubscribe()
	unsubscribe()
	fake.Advance(200 * time.Millisecond)

	if len(other.ticks) != 2 {
		t.Errorf("unsubscribed observer got %d ticks, want 2", len(other.ticks))
	}
	if len(rec.ticks) != 4 {
		t.Errorf("remaining observer got %d ticks, want 4", len(rec.ticks))
	}
}

func TestPeriodicTickerChannel(t *testing.T) {
	fake := clock.NewFake(testStart)
	m := metrics.NewInMemoryMetrics()
	ticker, err := NewPeriodicTicker(100*time.Millisecond, TickerConfig{
		Name:          "buffered",
		Clock:         fake,
		ChannelBuffer: 2,
		Metrics:       m,
	})
	if err != nil {
		t.Fatalf("NewPeriodicTicker() error = %v", err)
	}

	ch := ticker.Channel()
	if ticker.Channel() != ch {
		t.Error("Channel() should return the same channel")
	}
	if err := ticker.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	fake.Advance(500 * time.Millisecond)

	if len(ch) != 2 {
		t.Errorf("channel holds %d ticks, want 2", len(ch))
	}
	if got := m.GetDropped("buffered"); got != 3 {
		t.Errorf("GetDropped() = %d, want 3", got)
	}

	if err := ticker.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	for i := 1; i <= 2; i++ {
		tick, ok := <-ch
		if !ok || tick.Count != int64(i) {
			t.Fatalf("buffered tick %d = %+v, %v", i, tick, ok)
		}
	}
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after Close")
	}
}

func TestPeriodicTickerGetOccurrencesBetween(t *testing.T) {
	fake := clock.NewFake(testStart)
	ticker, _ := newTestPeriodic(t, 15*time.Minute, fake, nil)
	if err := ticker.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	start := testStart.Add(time.Minute)
	end := start.Add(time.Hour)
	occurrences, err := ticker.GetOccurrencesBetween(start, end)
	if err != nil {
		t.Fatalf("Failed to get occurrences: %v", err)
	}

	if len(occurrences) != 4 {
		t.Fatalf("Expected 4 occurrences, got %d", len(occurrences))
	}
	for i, occ := range occurrences {
		want := testStart.Add(time.Duration(i+1) * 15 * time.Minute)
		if !occ.Equal(want) {
			t.Errorf("Occurrence %d: got %s, want %s", i, occ, want)
		}
	}

	fast, _ := newTestPeriodic(t, time.Millisecond, fake, nil)
	if _, err := fast.GetOccurrencesBetween(start, end); err == nil {
		t.Error("expected an error for too many occurrences")
	}
}

func TestPeriodicTickerOccurrencesBeforeStart(t *testing.T) {
	fake := clock.NewFake(testStart)
	ticker, rec := newTestPeriodic(t, 15*time.Minute, fake, nil)

	// Not running: the grid Start would use, which never includes now.
	occurrences, err := ticker.GetOccurrencesBetween(testStart, testStart.Add(time.Hour))
	if err != nil {
		t.Fatalf("GetOccurrencesBetween() error = %v", err)
	}
	if len(occurrences) != 3 {
		t.Fatalf("got %d occurrences, want 3: %v", len(occurrences), occurrences)
	}
	if !occurrences[0].Equal(testStart.Add(15 * time.Minute)) {
		t.Errorf("first occurrence = %s, want one interval after now", occurrences[0])
	}

	if err := ticker.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	fake.Advance(15 * time.Minute)
	if len(rec.ticks) != 1 || !rec.ticks[0].ScheduledTime.Equal(occurrences[0]) {
		t.Errorf("first tick does not match the first predicted occurrence")
	}

	// Stopped mid-grid: predictions stay on the preserved grid, after now.
	fake.Advance(5 * time.Minute)
	if err := ticker.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	occurrences, err = ticker.GetOccurrencesBetween(testStart, testStart.Add(time.Hour))
	if err != nil {
		t.Fatalf("GetOccurrencesBetween() error = %v", err)
	}
	if len(occurrences) != 2 || !occurrences[0].Equal(testStart.Add(30*time.Minute)) {
		t.Errorf("occurrences after Stop = %v, want 12:30 and 12:45", occurrences)
	}
}

func TestPeriodicTickerConcurrentReaders(t *testing.T) {
	if testing.Short() {
		t.Skip("real clock test")
	}

	ticker, err := NewPeriodicTicker(2*time.Millisecond, TickerConfig{Name: "readers"})
	if err != nil {
		t.Fatalf("NewPeriodicTicker() error = %v", err)
	}
	var observed atomic.Int64
	ticker.Subscribe(func(Tick) { observed.Add(1) })

	done := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var last int64
			for {
				select {
				case <-done:
					return
				default:
				}
				count := ticker.TickCount()
				if count < last {
					t.Errorf("TickCount() went backwards: %d after %d", count, last)
					return
				}
				last = count
				ticker.NextRun()
				ticker.IsRunning()
			}
		}()
	}

	if err := ticker.StartImmediate(); err != nil {
		t.Fatalf("StartImmediate() error = %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	if err := ticker.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := ticker.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	if err := ticker.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	afterClose := observed.Load()
	time.Sleep(20 * time.Millisecond)
	close(done)
	wg.Wait()

	if afterClose == 0 {
		t.Error("no ticks observed while running")
	}
	if got := observed.Load(); got != afterClose {
		t.Errorf("%d ticks delivered after Close", got-afterClose)
	}
	if ticker.TickCount() != afterClose {
		t.Errorf("TickCount() = %d, observers saw %d", ticker.TickCount(), afterClose)
	}
}

func TestPeriodicTickerRealClock(t *testing.T) {
	if testing.Short() {
		t.Skip("real clock test")
	}

	ticker, err := NewPeriodicTicker(50*time.Millisecond, TickerConfig{Name: "real"})
	if err != nil {
		t.Fatalf("NewPeriodicTicker() error = %v", err)
	}
	defer ticker.Close()

	ch := ticker.Channel()
	if err := ticker.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	var ticks []Tick
	timeout := time.After(2 * time.Second)
	for len(ticks) < 5 {
		select {
		case tick := <-ch:
			ticks = append(ticks, tick)
		case <-timeout:
			t.Fatalf("received %d ticks before timeout, want 5", len(ticks))
		}
	}

	for i := 1; i < len(ticks); i++ {
		if gap := ticks[i].ScheduledTime.Sub(ticks[i-1].ScheduledTime); gap != 50*time.Millisecond {
			t.Errorf("scheduled gap %d = %s, want 50ms", i, gap)
		}
		if ticks[i].FireTime.Before(ticks[i].ScheduledTime) {
			t.Errorf("tick %d fired before its target", i)
		}
	}
}
