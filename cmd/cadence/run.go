package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ahmed-com/cadence/clock"
	"github.com/ahmed-com/cadence/config"
	"github.com/ahmed-com/cadence/logging"
	"github.com/ahmed-com/cadence/metrics"
	"github.com/ahmed-com/cadence/scheduler"
	"github.com/ahmed-com/cadence/storage"
	"github.com/ahmed-com/cadence/ticker"
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/rs/zerolog"
	"github.com/urfave/cli"
)

const shutdownTimeout = 10 * time.Second

var (
	configPath  string
	watchConfig bool

	runFlags = []cli.Flag{
		cli.StringFlag{
			Name:        "config, c",
			Usage:       "path of the YAML or JSON config file",
			Value:       "cadence.yaml",
			Destination: &configPath,
		},
		cli.BoolFlag{
			Name:        "watch, w",
			Usage:       "reload the tickers when the config file changes (default: false)",
			Destination: &watchConfig,
		},
	}
)

func run(ctx *cli.Context) error {
	mgr := config.NewManager(configPath)
	cfg, err := mgr.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	mgr.SetLogger(&log)

	store, err := openJournal(cfg.Journal)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	collector := metrics.NewInMemoryMetrics()
	base := ticker.TickerConfig{Clock: clock.Real(), Metrics: collector}

	sched, err := buildScheduler(cfg, store, &log, base)
	if err != nil {
		return err
	}
	if err := sched.Start(); err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var updates chan *config.Config
	if watchConfig {
		updates = mgr.Subscribe(1)
		defer mgr.Unsubscribe(updates)
		go func() {
			if err := mgr.Watch(sigCtx); err != nil {
				log.Error().Err(err).Msg("config watcher failed")
			}
		}()
	}

	pet, err := startWatchdog(&log, base)
	if err != nil {
		log.Warn().Err(err).Msg("systemd watchdog unavailable")
	}
	if pet != nil {
		defer pet.Close()
	}

	notify(&log, daemon.SdNotifyReady)
	log.Info().Str("config", configPath).Int("tickers", len(cfg.Tickers)).Msg("cadence running")

	for {
		select {
		case <-sigCtx.Done():
			log.Info().Msg("shutting down")
			notify(&log, daemon.SdNotifyStopping)
			err := sched.Shutdown(shutdownTimeout)
			logStats(&log, cfg, collector)
			return err
		case next, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			if next.Journal != cfg.Journal || next.Log != cfg.Log {
				log.Warn().Msg("journal and log settings take effect on restart")
			}
			notify(&log, daemon.SdNotifyReloading)
			replacement, err := reload(sched, next, store, &log, base)
			notify(&log, daemon.SdNotifyReady)
			if err != nil {
				log.Error().Err(err).Msg("config reload failed; keeping current tickers")
				continue
			}
			sched, cfg = replacement, next
		}
	}
}

// reload swaps the running scheduler for one built from cfg. The current
// scheduler is only shut down once the replacement was built.
func reload(current *scheduler.Scheduler, cfg *config.Config, store storage.Storage, log *zerolog.Logger, base ticker.TickerConfig) (*scheduler.Scheduler, error) {
	next, err := buildScheduler(cfg, store, log, base)
	if err != nil {
		return nil, err
	}
	if err := current.Shutdown(shutdownTimeout); err != nil {
		log.Warn().Err(err).Msg("previous tickers did not stop cleanly")
	}
	// The old tickers are gone at this point, so a partial start is kept.
	if err := next.Start(); err != nil {
		log.Error().Err(err).Msg("some tickers failed to start")
	}
	log.Info().Int("tickers", len(cfg.Tickers)).Msg("tickers reloaded")
	return next, nil
}

func logStats(log *zerolog.Logger, cfg *config.Config, m *metrics.InMemoryMetrics) {
	for _, tc := range cfg.Tickers {
		kind, wakeups := metrics.KindGrid, tc.Name
		if tc.IsCalendar() {
			// lateness is observed on the 1s base ticker
			kind, wakeups = metrics.KindCalendar, tc.Name+"/base"
		}
		log.Info().
			Str("ticker", tc.Name).
			Int64("ticks", m.GetTicks(tc.Name, kind)).
			Int64("dropped", m.GetDropped(tc.Name)).
			Dur("max_lateness", m.MaxLateness(wakeups)).
			Msg("ticker stats")
	}
}
