package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a tick or ticker is not in the journal.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a tick with the same ID was already recorded.
	ErrAlreadyExists = errors.New("already exists")
)

// Storage defines the interface for the tick journal
type Storage interface {
	// RecordTick stores a tick. Recording the same tick twice fails with
	// ErrAlreadyExists.
	RecordTick(ctx context.Context, record *TickRecord) error
	GetTick(ctx context.Context, tickID string) (*TickRecord, error)
	// ListTicks returns the ticks of one ticker ordered by fire time.
	ListTicks(ctx context.Context, tickerID string) ([]*TickRecord, error)
	ListTickers(ctx context.Context) ([]*TickerInfo, error)
	// DeleteTicksBefore removes ticks fired before cutoff and returns how
	// many were removed.
	DeleteTicksBefore(ctx context.Context, cutoff time.Time) (int, error)

	// Close closes the storage connection
	Close() error
}

// Tick outcomes
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// TickRecord is the persisted form of one delivered tick
type TickRecord struct {
	ID            string        `json:"id"`
	TickerID      string        `json:"ticker_id"`
	TickerName    string        `json:"ticker_name"`
	JobID         string        `json:"job_id,omitempty"`
	Count         int64         `json:"count"`
	ScheduledTime time.Time     `json:"scheduled_time"`
	FireTime      time.Time     `json:"fire_time"`
	Immediate     bool          `json:"immediate,omitempty"`
	Outcome       string        `json:"outcome,omitempty"`
	ErrorMessage  string        `json:"error_message,omitempty"`
	Handlers      int           `json:"handlers"`
	Duration      time.Duration `json:"duration"`
	RecordedAt    time.Time     `json:"recorded_at"`
}

// Lateness is how far the tick fired behind its scheduled time.
func (r *TickRecord) Lateness() time.Duration {
	return r.FireTime.Sub(r.ScheduledTime)
}

// TickerInfo describes a ticker seen by the journal
type TickerInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	FirstSeen time.Time `json:"first_seen"`
}
