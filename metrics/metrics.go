package metrics

import (
	"sync"
	"time"

	"github.com/eapache/queue"
)

// Tick kinds reported through IncTicks.
const (
	KindGrid      = "grid"
	KindImmediate = "immediate"
	KindCalendar  = "calendar"
)

// Wake-up outcomes reported through IncWakeups.
const (
	WakeFired = "fired"
	WakeEarly = "early"
)

// Suppression reasons reported through IncSuppressed.
const (
	SuppressNoMatch   = "no_match"
	SuppressDuplicate = "duplicate"
)

// DefaultLatenessSamples bounds the lateness observations kept per ticker.
const DefaultLatenessSamples = 1024

// MetricsCollector defines the interface for collecting ticker metrics
type MetricsCollector interface {
	// Gauges - current state
	SetRunning(ticker string, running bool)

	// Counters - event tracking
	IncTicks(ticker, kind string)
	IncWakeups(ticker, outcome string)
	IncSuppressed(ticker, reason string)
	IncDropped(ticker string)

	// Histograms - lateness of grid ticks behind their target
	ObserveLateness(ticker string, lateness time.Duration)

	// Query methods for testing and monitoring
	GetRunning() int
	GetTicks(ticker, kind string) int64
	GetWakeups(ticker, outcome string) int64
	GetSuppressed(ticker, reason string) int64
	GetDropped(ticker string) int64
}

// NoOpMetrics is a metrics collector that does nothing
type NoOpMetrics struct{}

func NewNoOpMetrics() *NoOpMetrics {
	return &NoOpMetrics{}
}

func (m *NoOpMetrics) SetRunning(ticker string, running bool)                 {}
func (m *NoOpMetrics) IncTicks(ticker, kind string)                           {}
func (m *NoOpMetrics) IncWakeups(ticker, outcome string)                      {}
func (m *NoOpMetrics) IncSuppressed(ticker, reason string)                    {}
func (m *NoOpMetrics) IncDropped(ticker string)                               {}
func (m *NoOpMetrics) ObserveLateness(ticker string, lateness time.Duration) {}
func (m *NoOpMetrics) GetRunning() int                                        { return 0 }
func (m *NoOpMetrics) GetTicks(ticker, kind string) int64                     { return 0 }
func (m *NoOpMetrics) GetWakeups(ticker, outcome string) int64                { return 0 }
func (m *NoOpMetrics) GetSuppressed(ticker, reason string) int64              { return 0 }
func (m *NoOpMetrics) GetDropped(ticker string) int64                         { return 0 }

// InMemoryMetrics is a simple in-memory metrics collector for testing and basic monitoring
type InMemoryMetrics struct {
	mu sync.RWMutex

	// Gauges
	running map[string]bool

	// Counters - using map with composite key
	ticks      map[string]int64 // key: "ticker:kind"
	wakeups    map[string]int64 // key: "ticker:outcome"
	suppressed map[string]int64 // key: "ticker:reason"
	dropped    map[string]int64 // key: "ticker"

	// Histograms - most recent observations per ticker
	maxSamples int
	lateness   map[string]*queue.Queue
}

func NewInMemoryMetrics() *InMemoryMetrics {
	return NewInMemoryMetricsWithSamples(DefaultLatenessSamples)
}

// NewInMemoryMetricsWithSamples keeps at most maxSamples lateness
// observations per ticker, discarding the oldest.
func NewInMemoryMetricsWithSamples(maxSamples int) *InMemoryMetrics {
	if maxSamples <= 0 {
		maxSamples = DefaultLatenessSamples
	}
	return &InMemoryMetrics{
		running:    make(map[string]bool),
		ticks:      make(map[string]int64),
		wakeups:    make(map[string]int64),
		suppressed: make(map[string]int64),
		dropped:    make(map[string]int64),
		maxSamples: maxSamples,
		lateness:   make(map[string]*queue.Queue),
	}
}

// Gauges
func (m *InMemoryMetrics) SetRunning(ticker string, running bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if running {
		m.running[ticker] = true
	} else {
		delete(m.running, ticker)
	}
}

func (m *InMemoryMetrics) GetRunning() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.running)
}

// Counters
func (m *InMemoryMetrics) IncTicks(ticker, kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticks[ticker+":"+kind]++
}

func (m *InMemoryMetrics) IncWakeups(ticker, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wakeups[ticker+":"+outcome]++
}

func (m *InMemoryMetrics) IncSuppressed(ticker, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suppressed[ticker+":"+reason]++
}

func (m *InMemoryMetrics) IncDropped(ticker string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped[ticker]++
}

func (m *InMemoryMetrics) GetTicks(ticker, kind string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ticks[ticker+":"+kind]
}

func (m *InMemoryMetrics) GetWakeups(ticker, outcome string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.wakeups[ticker+":"+outcome]
}

func (m *InMemoryMetrics) GetSuppressed(ticker, reason string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.suppressed[ticker+":"+reason]
}

func (m *InMemoryMetrics) GetDropped(ticker string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dropped[ticker]
}

// Histograms
func (m *InMemoryMetrics) ObserveLateness(ticker string, lateness time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.lateness[ticker]
	if !ok {
		q = queue.New()
		m.lateness[ticker] = q
	}
	q.Add(lateness)
	for q.Length() > m.maxSamples {
		q.Remove()
	}
}

// GetLateness returns the retained lateness observations, oldest first.
func (m *InMemoryMetrics) GetLateness(ticker string) []time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.lateness[ticker]
	if !ok {
		return []time.Duration{}
	}
	result := make([]time.Duration, q.Length())
	for i := range result {
		result[i] = q.Get(i).(time.Duration)
	}
	return result
}

// MaxLateness returns the largest retained lateness observation.
func (m *InMemoryMetrics) MaxLateness(ticker string) time.Duration {
	var max time.Duration
	for _, d := range m.GetLateness(ticker) {
		if d > max {
			max = d
		}
	}
	return max
}

// Reset clears all metrics (useful for testing)
func (m *InMemoryMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = make(map[string]bool)
	m.ticks = make(map[string]int64)
	m.wakeups = make(map[string]int64)
	m.suppressed = make(map[string]int64)
	m.dropped = make(map[string]int64)
	m.lateness = make(map[string]*queue.Queue)
}
