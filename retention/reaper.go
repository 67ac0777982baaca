package retention

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ahmed-com/cadence/clock"
	"github.com/ahmed-com/cadence/metrics"
	"github.com/ahmed-com/cadence/storage"
	"github.com/ahmed-com/cadence/ticker"
	"github.com/rs/zerolog"
)

// DefaultInterval is how often the reaper prunes when no interval is given.
const DefaultInterval = 5 * time.Minute

// Config holds the optional collaborators of a Reaper
type Config struct {
	Clock   clock.Clock
	Logger  *zerolog.Logger
	Metrics metrics.MetricsCollector
}

// Reaper periodically removes journal entries older than the retention window
type Reaper struct {
	store     storage.Storage
	retention time.Duration
	clock     clock.Clock
	ticker    *ticker.PeriodicTicker
	log       zerolog.Logger

	mu     sync.Mutex
	stopCh chan struct{}
}

// NewReaper creates a new reaper instance
func NewReaper(store storage.Storage, retention, interval time.Duration, cfg Config) (*Reaper, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: reaper needs a store", ticker.ErrInvalidArgument)
	}
	if retention <= 0 {
		return nil, fmt.Errorf("%w: retention must be positive, got %s", ticker.ErrInvalidArgument, retention)
	}
	if interval == 0 {
		interval = DefaultInterval // default
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}

	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = cfg.Logger.With().Str("component", "reaper").Logger()
	}

	t, err := ticker.NewPeriodicTicker(interval, ticker.TickerConfig{
		Name:    "reaper",
		Clock:   cfg.Clock,
		Logger:  cfg.Logger,
		Metrics: cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}

	return &Reaper{
		store:     store,
		retention: retention,
		clock:     cfg.Clock,
		ticker:    t,
		log:       log,
	}, nil
}

// Start starts pruning on every interval until ctx is done or Stop is called
func (r *Reaper) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopCh != nil {
		return fmt.Errorf("%w: reaper already started or stopped", ticker.ErrInvalidState)
	}

	r.ticker.Subscribe(func(ticker.Tick) {
		if ctx.Err() != nil {
			return
		}
		r.ReapOnce(ctx)
	})
	if err := r.ticker.Start(); err != nil {
		return err
	}

	stopCh := make(chan struct{})
	r.stopCh = stopCh
	go func() {
		select {
		case <-ctx.Done():
			r.ticker.Stop()
		case <-stopCh:
		}
	}()

	r.log.Debug().Dur("retention", r.retention).Msg("reaper started")
	return nil
}

// ReapOnce deletes every tick fired before now minus the retention window
func (r *Reaper) ReapOnce(ctx context.Context) (int, error) {
	cutoff := r.clock.Now().Add(-r.retention)

	deleted, err := r.store.DeleteTicksBefore(ctx, cutoff)
	if err != nil {
		r.log.Error().Err(err).Msg("failed to prune journal")
		return 0, err
	}
	if deleted > 0 {
		r.log.Info().Int("deleted", deleted).Time("cutoff", cutoff).Msg("pruned journal")
	}
	return deleted, nil
}

// Stop stops the reaper. A stopped reaper cannot be restarted.
func (r *Reaper) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopCh == nil {
		r.stopCh = make(chan struct{})
	}
	select {
	case <-r.stopCh:
		return nil
	default:
		close(r.stopCh)
	}

	return r.ticker.Close()
}
