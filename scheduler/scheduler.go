package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ahmed-com/cadence"
	"github.com/ahmed-com/cadence/concurrency"
	"github.com/ahmed-com/cadence/executor"
	"github.com/ahmed-com/cadence/retention"
	"github.com/ahmed-com/cadence/storage"
	"github.com/ahmed-com/cadence/ticker"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
)

// Scheduler hosts independent jobs: it starts their tickers, runs their
// handlers on a worker pool and journals every tick.
type Scheduler struct {
	config cadence.SchedulerConfig
	store  storage.Storage
	exec   *executor.Executor
	pool   *concurrency.WorkerPool
	reaper *retention.Reaper
	log    zerolog.Logger

	jobs   map[string]*cadence.Job
	jobsMu sync.RWMutex

	running   bool
	closed    bool
	runningMu sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a new scheduler instance. store may be nil to run
// without a journal.
func NewScheduler(config cadence.SchedulerConfig, store storage.Storage) (*Scheduler, error) {
	log := zerolog.Nop()
	if config.Logger != nil {
		log = config.Logger.With().Str("component", "scheduler").Logger()
	}

	var reaper *retention.Reaper
	if store != nil && config.JournalRetention > 0 {
		var err error
		reaper, err = retention.NewReaper(store, config.JournalRetention, config.ReaperInterval, retention.Config{
			Clock:   config.Clock,
			Logger:  config.Logger,
			Metrics: config.Metrics,
		})
		if err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		config: config,
		store:  store,
		exec:   executor.NewExecutor(store, config.HandlerTimeout, config.Clock, config.Logger),
		pool:   concurrency.NewWorkerPoolWithLogger(config.MaxConcurrentJobs, config.Logger),
		reaper: reaper,
		log:    log,
		jobs:   make(map[string]*cadence.Job),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// RegisterJob registers a job with the scheduler. Jobs registered while the
// scheduler runs are started right away.
func (s *Scheduler) RegisterJob(job *cadence.Job) error {
	if job == nil || job.Ticker == nil {
		return fmt.Errorf("%w: job needs a ticker", cadence.ErrInvalidArgument)
	}

	s.runningMu.RLock()
	defer s.runningMu.RUnlock()

	if s.closed {
		return fmt.Errorf("%w: scheduler is shut down", cadence.ErrInvalidState)
	}

	s.jobsMu.Lock()
	if _, exists := s.jobs[job.ID]; exists {
		s.jobsMu.Unlock()
		return fmt.Errorf("%w: job already registered: %s", cadence.ErrInvalidArgument, job.ID)
	}
	s.jobs[job.ID] = job
	s.jobsMu.Unlock()

	s.log.Debug().Str("job", job.Name).Str("ticker", job.Ticker.Name()).Msg("job registered")

	if s.running {
		return s.startJob(job)
	}
	return nil
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()

	if s.closed {
		return fmt.Errorf("%w: scheduler is shut down", cadence.ErrInvalidState)
	}
	if s.running {
		return fmt.Errorf("%w: scheduler already running", cadence.ErrInvalidState)
	}

	// Start worker pool
	s.pool.Start()

	// Start reaper
	if s.reaper != nil {
		if err := s.reaper.Start(s.ctx); err != nil {
			return fmt.Errorf("failed to start reaper: %w", err)
		}
	}

	// Start all job tickers
	var result *multierror.Error
	s.jobsMu.RLock()
	count := len(s.jobs)
	for _, job := range s.jobs {
		if err := s.startJob(job); err != nil {
			result = multierror.Append(result, err)
		}
	}
	s.jobsMu.RUnlock()

	s.running = true
	s.log.Info().Int("jobs", count).Msg("scheduler started")
	return result.ErrorOrNil()
}

func (s *Scheduler) startJob(job *cadence.Job) error {
	// Take the channel before starting so the immediate tick is buffered.
	ch := job.Ticker.Channel()
	if err := job.Start(); err != nil {
		return fmt.Errorf("failed to start job %s: %w", job.Name, err)
	}

	s.wg.Add(1)
	go s.watchJob(job, ch)
	return nil
}

// watchJob monitors a job's ticker and dispatches its ticks
func (s *Scheduler) watchJob(job *cadence.Job, ch <-chan ticker.Tick) {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case tick, ok := <-ch:
			if !ok {
				return
			}
			s.handleTick(job, tick)
		}
	}
}

// handleTick queues the job's handlers for one tick. Ticks of one job run in
// order, one at a time.
func (s *Scheduler) handleTick(job *cadence.Job, tick ticker.Tick) {
	accepted := s.pool.Submit(job.ID, func() {
		if _, err := s.exec.ExecuteTick(s.ctx, job, tick); err != nil {
			s.log.Error().Err(err).Str("job", job.Name).Msg("failed to record tick")
		}
	})
	if !accepted {
		s.log.Warn().Str("job", job.Name).Int64("count", tick.Count).Msg("handler backlog full; tick not handled")
	}
}

// Shutdown gracefully shuts down the scheduler. Tickers are closed, queued
// handlers get until timeout to finish. The store is left open.
func (s *Scheduler) Shutdown(timeout time.Duration) error {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()

	if !s.running {
		return nil
	}

	var result *multierror.Error

	// Close all tickers
	s.jobsMu.RLock()
	for _, job := range s.jobs {
		if err := job.Ticker.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("job %s: %w", job.Name, err))
		}
	}
	s.jobsMu.RUnlock()

	// Stop reaper
	if s.reaper != nil {
		if err := s.reaper.Stop(); err != nil {
			result = multierror.Append(result, fmt.Errorf("reaper: %w", err))
		}
	}

	// Wait for grace period or all handlers to complete
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		s.pool.Stop()
		close(done)
	}()

	select {
	case <-done:
		// All handlers completed gracefully
	case <-time.After(timeout):
		result = multierror.Append(result, fmt.Errorf("shutdown timed out after %s", timeout))
	}

	// Signal cancellation to handlers still running
	s.cancel()

	s.running = false
	s.closed = true
	s.log.Info().Msg("scheduler stopped")
	return result.ErrorOrNil()
}

// IsRunning reports whether the scheduler was started and not shut down
func (s *Scheduler) IsRunning() bool {
	s.runningMu.RLock()
	defer s.runningMu.RUnlock()
	return s.running
}

// GetJob returns a registered job by ID
func (s *Scheduler) GetJob(jobID string) (*cadence.Job, bool) {
	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()

	job, exists := s.jobs[jobID]
	return job, exists
}

// ListJobs returns all registered jobs
func (s *Scheduler) ListJobs() []*cadence.Job {
	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()

	jobs := make([]*cadence.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job)
	}
	return jobs
}
