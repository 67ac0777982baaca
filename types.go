package cadence

import (
	"time"

	"github.com/ahmed-com/cadence/clock"
	"github.com/ahmed-com/cadence/metrics"
	"github.com/ahmed-com/cadence/ticker"
	"github.com/rs/zerolog"
)

// Errors shared by every ticker, re-exported for callers of this package.
var (
	ErrInvalidArgument = ticker.ErrInvalidArgument
	ErrInvalidState    = ticker.ErrInvalidState
)

// HandlerStatus represents the outcome of one handler run
type HandlerStatus string

const (
	HandlerStatusSuccess  HandlerStatus = "Success"
	HandlerStatusFailed   HandlerStatus = "Failed"
	HandlerStatusTimeout  HandlerStatus = "Timeout"
	HandlerStatusPanicked HandlerStatus = "Panicked"
)

// DefaultHandlerTimeout bounds a handler run when SchedulerConfig leaves it unset.
const DefaultHandlerTimeout = 5 * time.Minute

// SchedulerConfig holds scheduler-level configuration
type SchedulerConfig struct {
	// MaxConcurrentJobs bounds the handlers running at once.
	MaxConcurrentJobs int
	// HandlerTimeout is the deadline of the context passed to each handler.
	HandlerTimeout time.Duration

	// JournalRetention enables pruning of journal entries older than this.
	JournalRetention time.Duration
	ReaperInterval   time.Duration

	Clock   clock.Clock
	Logger  *zerolog.Logger
	Metrics metrics.MetricsCollector
}

// HandlerReport provides detailed information about one handler run
type HandlerReport struct {
	Index        int
	Status       HandlerStatus
	ErrorMessage string
	StartTime    time.Time
	Duration     time.Duration
}

// ExecutionReport provides detailed information about the handling of a tick
type ExecutionReport struct {
	JobID          string
	JobName        string
	Tick           ticker.Tick
	HandlerReports []*HandlerReport
	Outcome        string
}

// AddHandlerReport appends a handler report
func (r *ExecutionReport) AddHandlerReport(report *HandlerReport) {
	r.HandlerReports = append(r.HandlerReports, report)
}

// Failed reports whether any handler did not succeed
func (r *ExecutionReport) Failed() bool {
	for _, hr := range r.HandlerReports {
		if hr.Status != HandlerStatusSuccess {
			return true
		}
	}
	return false
}

// FirstError returns the first handler error message, if any
func (r *ExecutionReport) FirstError() string {
	for _, hr := range r.HandlerReports {
		if hr.ErrorMessage != "" {
			return hr.ErrorMessage
		}
	}
	return ""
}
