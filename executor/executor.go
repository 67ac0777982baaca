package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ahmed-com/cadence"
	"github.com/ahmed-com/cadence/clock"
	"github.com/ahmed-com/cadence/id"
	"github.com/ahmed-com/cadence/storage"
	"github.com/ahmed-com/cadence/ticker"
	"github.com/rs/zerolog"
)

// Executor runs a job's handlers for one tick and journals the outcome
type Executor struct {
	store   storage.Storage
	timeout time.Duration
	clock   clock.Clock
	log     zerolog.Logger
}

// NewExecutor creates a new executor instance. store may be nil, in which
// case nothing is journaled.
func NewExecutor(store storage.Storage, timeout time.Duration, clk clock.Clock, logger *zerolog.Logger) *Executor {
	if timeout <= 0 {
		timeout = cadence.DefaultHandlerTimeout
	}
	if clk == nil {
		clk = clock.Real()
	}
	log := zerolog.Nop()
	if logger != nil {
		log = logger.With().Str("component", "executor").Logger()
	}

	return &Executor{
		store:   store,
		timeout: timeout,
		clock:   clk,
		log:     log,
	}
}

// ExecuteTick runs the handlers of job for tick, in order, and records the
// tick in the journal. Handler failures are reported, not returned; the
// error is the journal write failure, if any.
func (e *Executor) ExecuteTick(ctx context.Context, job *cadence.Job, tick ticker.Tick) (*cadence.ExecutionReport, error) {
	startTime := e.clock.Now()

	report := &cadence.ExecutionReport{
		JobID:   job.ID,
		JobName: job.Name,
		Tick:    tick,
	}

	if job.IsPaused() {
		report.Outcome = storage.OutcomeSkipped
	} else {
		for i, handler := range job.Handlers() {
			report.AddHandlerReport(e.executeHandler(ctx, i, handler, tick))

			// Check context cancellation
			if ctx.Err() != nil {
				break
			}
		}

		report.Outcome = storage.OutcomeCompleted
		if report.Failed() {
			report.Outcome = storage.OutcomeFailed
			e.log.Warn().
				Str("job", job.Name).
				Int64("count", tick.Count).
				Str("error", report.FirstError()).
				Msg("tick handler failed")
		}
	}

	if e.store == nil {
		return report, nil
	}

	record := &storage.TickRecord{
		ID:            id.GenerateTickID(tick.TickerID, tick.Count, tick.ScheduledTime),
		TickerID:      tick.TickerID,
		TickerName:    tick.Name,
		JobID:         job.ID,
		Count:         tick.Count,
		ScheduledTime: tick.ScheduledTime,
		FireTime:      tick.FireTime,
		Immediate:     tick.Immediate,
		Outcome:       report.Outcome,
		ErrorMessage:  report.FirstError(),
		Handlers:      len(report.HandlerReports),
		Duration:      e.clock.Now().Sub(startTime),
	}
	if err := e.store.RecordTick(ctx, record); err != nil {
		return report, fmt.Errorf("failed to journal tick %d of %s: %w", tick.Count, job.Name, err)
	}

	return report, nil
}

// executeHandler runs one handler under the handler timeout
func (e *Executor) executeHandler(ctx context.Context, index int, handler cadence.HandlerFunc, tick ticker.Tick) (report *cadence.HandlerReport) {
	report = &cadence.HandlerReport{
		Index:     index,
		StartTime: e.clock.Now(),
	}

	handlerCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	defer func() {
		report.Duration = e.clock.Now().Sub(report.StartTime)
		if r := recover(); r != nil {
			report.Status = cadence.HandlerStatusPanicked
			report.ErrorMessage = fmt.Sprintf("handler panicked: %v", r)
		}
	}()

	err := handler(handlerCtx, tick)

	switch {
	case err == nil:
		report.Status = cadence.HandlerStatusSuccess
	case errors.Is(handlerCtx.Err(), context.DeadlineExceeded):
		report.Status = cadence.HandlerStatusTimeout
		report.ErrorMessage = "handler execution timeout"
	default:
		report.Status = cadence.HandlerStatusFailed
		report.ErrorMessage = err.Error()
	}

	return report
}
