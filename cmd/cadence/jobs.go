package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ahmed-com/cadence"
	"github.com/ahmed-com/cadence/config"
	"github.com/ahmed-com/cadence/scheduler"
	"github.com/ahmed-com/cadence/storage"
	"github.com/ahmed-com/cadence/storage/badger"
	"github.com/ahmed-com/cadence/ticker"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
)

// buildJobs creates one job per configured ticker. base carries the shared
// clock, logger and metrics.
func buildJobs(cfg *config.Config, base ticker.TickerConfig) ([]*cadence.Job, error) {
	var result *multierror.Error
	jobs := make([]*cadence.Job, 0, len(cfg.Tickers))

	for _, tc := range cfg.Tickers {
		tcfg := base
		tcfg.Name = tc.Name
		tcfg.Timezone = cfg.Timezone
		if tc.Timezone != "" {
			tcfg.Timezone = tc.Timezone
		}
		tcfg.AlignToWallClock = tc.AlignToWallClock
		tcfg.LateThreshold = tc.LateThreshold.Std()

		var (
			job *cadence.Job
			err error
		)
		if tc.IsCalendar() {
			g, targets, perr := tc.CalendarSpec()
			if perr != nil {
				result = multierror.Append(result, fmt.Errorf("ticker %s: %w", tc.Name, perr))
				continue
			}
			job, err = cadence.At(tc.Name, g, targets, tcfg)
		} else {
			job, err = cadence.Every(tc.Name, tc.Interval.Std(), tcfg)
		}
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("ticker %s: %w", tc.Name, err))
			continue
		}
		job.FireImmediately = tc.FireImmediately
		jobs = append(jobs, job)
	}

	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return jobs, nil
}

// buildScheduler registers every configured ticker on a new, unstarted
// scheduler. Each tick is logged.
func buildScheduler(cfg *config.Config, store storage.Storage, log *zerolog.Logger, base ticker.TickerConfig) (*scheduler.Scheduler, error) {
	base.Logger = log
	jobs, err := buildJobs(cfg, base)
	if err != nil {
		return nil, err
	}

	sched, err := scheduler.NewScheduler(cadence.SchedulerConfig{
		MaxConcurrentJobs: cfg.Workers,
		HandlerTimeout:    cfg.HandlerTimeout.Std(),
		JournalRetention:  cfg.Journal.Retention.Std(),
		ReaperInterval:    cfg.Journal.ReapInterval.Std(),
		Clock:             base.Clock,
		Logger:            log,
		Metrics:           base.Metrics,
	}, store)
	if err != nil {
		return nil, err
	}

	for _, job := range jobs {
		job.AddHandler(logTick(log))
		if err := sched.RegisterJob(job); err != nil {
			return nil, err
		}
	}
	return sched, nil
}

func logTick(log *zerolog.Logger) cadence.HandlerFunc {
	return func(ctx context.Context, tick ticker.Tick) error {
		log.Info().
			Str("ticker", tick.Name).
			Int64("count", tick.Count).
			Time("scheduled", tick.ScheduledTime).
			Dur("lateness", tick.Lateness()).
			Bool("immediate", tick.Immediate).
			Msg("tick")
		return nil
	}
}

// openJournal opens the configured journal, or returns nil when disabled.
func openJournal(cfg config.JournalConfig) (storage.Storage, error) {
	var (
		store *badger.BadgerStorage
		err   error
	)
	switch {
	case cfg.InMemory:
		store, err = badger.NewInMemoryStorage()
	case cfg.Path != "":
		store, err = badger.NewBadgerStorage(cfg.Path)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return store, nil
}

// upcoming returns the first n occurrences of t within window after from.
func upcoming(t ticker.Ticker, from time.Time, window time.Duration, n int) ([]time.Time, error) {
	occ, err := t.GetOccurrencesBetween(from, from.Add(window))
	if err != nil {
		return nil, err
	}
	if len(occ) > n {
		occ = occ[:n]
	}
	return occ, nil
}
