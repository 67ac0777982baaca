package main

import (
	"fmt"
	"time"

	"github.com/ahmed-com/cadence/clock"
	"github.com/ahmed-com/cadence/config"
	"github.com/ahmed-com/cadence/ticker"
	"github.com/urfave/cli"
)

var (
	checkConfigPath string
	checkCount      int

	checkFlags = []cli.Flag{
		cli.StringFlag{
			Name:        "config, c",
			Usage:       "path of the YAML or JSON config file",
			Value:       "cadence.yaml",
			Destination: &checkConfigPath,
		},
		cli.IntFlag{
			Name:        "next, n",
			Usage:       "number of upcoming ticks to show per ticker",
			Value:       3,
			Destination: &checkCount,
		},
	}
)

func check(ctx *cli.Context) error {
	cfg, err := config.Parse(checkConfigPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	jobs, err := buildJobs(cfg, ticker.TickerConfig{Clock: clock.Real()})
	if err != nil {
		return err
	}

	now := time.Now()
	fmt.Printf("%s: %d tickers ok\n", checkConfigPath, len(jobs))
	for i, job := range jobs {
		next, err := upcoming(job.Ticker, now, lookahead(job.Ticker, checkCount), checkCount)
		if err != nil {
			return fmt.Errorf("ticker %s: %w", job.Name, err)
		}

		fmt.Printf("\n%s (%s)\n", job.Name, describe(cfg.Tickers[i]))
		for _, at := range next {
			fmt.Printf("  %s\n", at.Format(time.RFC3339Nano))
		}
		job.Ticker.Close()
	}
	return nil
}

// lookahead is a window long enough to hold n occurrences of t: every
// calendar cycle holds at least one match and one is added for the
// partial cycle at the start.
func lookahead(t ticker.Ticker, n int) time.Duration {
	cycles := time.Duration(n + 1)
	switch tk := t.(type) {
	case *ticker.PeriodicTicker:
		return tk.Interval() * cycles
	case *ticker.CalendarTicker:
		if tk.Granularity() == ticker.GranularityHour {
			return time.Hour * cycles
		}
		return time.Minute * cycles
	default:
		return time.Hour * cycles
	}
}

func describe(tc config.TickerConfig) string {
	if tc.IsCalendar() {
		return fmt.Sprintf("%s at %s", tc.Granularity, tc.Targets)
	}
	s := "every " + tc.Interval.Std().String()
	if tc.AlignToWallClock {
		s += ", aligned"
	}
	if tc.FireImmediately {
		s += ", immediate"
	}
	return s
}
