package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ahmed-com/cadence/ticker"
	"github.com/urfave/cli"
)

var (
	watchInterval    time.Duration
	watchImmediate   bool
	watchAlign       bool
	watchGranularity string
	watchTargets     string
	watchTimezone    string
	watchFor         time.Duration
	watchCount       int

	watchFlags = []cli.Flag{
		cli.DurationFlag{
			Name:        "interval, i",
			Usage:       "tick period of a periodic ticker, e.g. 1s",
			Destination: &watchInterval,
		},
		cli.BoolFlag{
			Name:        "immediate",
			Usage:       "emit one tick right away (default: false)",
			Destination: &watchImmediate,
		},
		cli.BoolFlag{
			Name:        "align, a",
			Usage:       "place ticks on wall-clock multiples of the interval (default: false)",
			Destination: &watchAlign,
		},
		cli.StringFlag{
			Name:        "granularity, g",
			Usage:       "calendar granularity: hour or minute",
			Destination: &watchGranularity,
		},
		cli.StringFlag{
			Name:        "targets, t",
			Usage:       "calendar field values, e.g. \"0,15,30,45\" or \"*/10\"",
			Destination: &watchTargets,
		},
		cli.StringFlag{
			Name:        "timezone, z",
			Usage:       "IANA timezone of the calendar fields",
			Destination: &watchTimezone,
		},
		cli.DurationFlag{
			Name:        "for, d",
			Usage:       "stop after this long (default: until interrupted)",
			Destination: &watchFor,
		},
		cli.IntFlag{
			Name:        "count, n",
			Usage:       "stop after this many ticks (default: until interrupted)",
			Destination: &watchCount,
		},
	}
)

func watch(ctx *cli.Context) error {
	t, err := newWatchTicker()
	if err != nil {
		return err
	}
	defer t.Close()

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if watchFor > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, watchFor)
		defer cancel()
	}

	ch := t.Channel()
	if p, ok := t.(*ticker.PeriodicTicker); ok && watchImmediate {
		err = p.StartImmediate()
	} else {
		err = t.Start()
	}
	if err != nil {
		return err
	}

	for {
		select {
		case <-runCtx.Done():
			return nil
		case tick, ok := <-ch:
			if !ok {
				return nil
			}
			printTick(tick)
			if watchCount > 0 && tick.Count >= int64(watchCount) {
				return nil
			}
		}
	}
}

func newWatchTicker() (ticker.Ticker, error) {
	cfg := ticker.TickerConfig{
		Name:             "watch",
		Timezone:         watchTimezone,
		AlignToWallClock: watchAlign,
	}

	switch {
	case watchGranularity != "" && watchInterval > 0:
		return nil, fmt.Errorf("--interval and --granularity are mutually exclusive")
	case watchGranularity != "":
		if watchImmediate {
			return nil, fmt.Errorf("--immediate is only supported with --interval")
		}
		g, err := ticker.ParseGranularity(watchGranularity)
		if err != nil {
			return nil, err
		}
		return ticker.NewCalendarTickerFromExpr(g, watchTargets, cfg)
	case watchInterval > 0:
		return ticker.NewPeriodicTicker(watchInterval, cfg)
	default:
		return nil, fmt.Errorf("one of --interval or --granularity is required")
	}
}

func printTick(tick ticker.Tick) {
	flag := ""
	if tick.Immediate {
		flag = " (immediate)"
	}
	fmt.Printf("#%-5d %s  late %-12s%s\n",
		tick.Count,
		tick.ScheduledTime.Format("15:04:05.000"),
		tick.Lateness().Round(time.Microsecond),
		flag,
	)
}
