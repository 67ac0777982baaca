package cadence

import (
	"context"
	"sync"
	"time"

	"github.com/ahmed-com/cadence/id"
	"github.com/ahmed-com/cadence/ticker"
)

// HandlerFunc defines the function signature for tick handlers
type HandlerFunc func(ctx context.Context, tick ticker.Tick) error

// Job binds a ticker to the handlers run on each of its ticks
type Job struct {
	ID     string
	Name   string
	Ticker ticker.Ticker

	// FireImmediately requests an extra tick when the job starts. Only
	// periodic tickers support it.
	FireImmediately bool

	handlers []HandlerFunc
	paused   bool
	mu       sync.RWMutex
}

// NewJob creates a new job instance
func NewJob(name string, t ticker.Ticker) *Job {
	return &Job{
		ID:     id.GenerateJobID(name),
		Name:   name,
		Ticker: t,
	}
}

// Every creates a job on a periodic ticker of the same name.
func Every(name string, interval time.Duration, cfg ticker.TickerConfig) (*Job, error) {
	if cfg.Name == "" {
		cfg.Name = name
	}
	t, err := ticker.NewPeriodicTicker(interval, cfg)
	if err != nil {
		return nil, err
	}
	return NewJob(name, t), nil
}

// At creates a job on a calendar ticker of the same name.
func At(name string, granularity ticker.Granularity, targets []int, cfg ticker.TickerConfig) (*Job, error) {
	if cfg.Name == "" {
		cfg.Name = name
	}
	t, err := ticker.NewCalendarTicker(granularity, targets, cfg)
	if err != nil {
		return nil, err
	}
	return NewJob(name, t), nil
}

// AddHandler appends a handler. Handlers run in the order they were added.
func (j *Job) AddHandler(fn HandlerFunc) *Job {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.handlers = append(j.handlers, fn)
	return j
}

// Handlers returns a snapshot of the job's handlers
func (j *Job) Handlers() []HandlerFunc {
	j.mu.RLock()
	defer j.mu.RUnlock()

	handlers := make([]HandlerFunc, len(j.handlers))
	copy(handlers, j.handlers)
	return handlers
}

// Pause keeps the ticker running but skips the handlers
func (j *Job) Pause() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.paused = true
}

// Resume undoes Pause
func (j *Job) Resume() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.paused = false
}

// IsPaused reports whether handlers are skipped
func (j *Job) IsPaused() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.paused
}

// Start starts the job's ticker, with the immediate tick when requested.
func (j *Job) Start() error {
	if p, ok := j.Ticker.(*ticker.PeriodicTicker); ok && j.FireImmediately {
		return p.StartImmediate()
	}
	return j.Ticker.Start()
}
