package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/ahmed-com/cadence/storage"
	"github.com/ahmed-com/cadence/storage/badger"
	"github.com/urfave/cli"
)

var (
	journalPath   string
	journalTicker string
	journalLimit  int
	journalPrune  time.Duration

	journalFlags = []cli.Flag{
		cli.StringFlag{
			Name:        "path, p",
			Usage:       "journal directory (the daemon must not be running)",
			Destination: &journalPath,
		},
		cli.StringFlag{
			Name:        "ticker, t",
			Usage:       "only show the ticker with this name",
			Destination: &journalTicker,
		},
		cli.IntFlag{
			Name:        "limit, n",
			Usage:       "number of most recent ticks to print per ticker",
			Value:       20,
			Destination: &journalLimit,
		},
		cli.DurationFlag{
			Name:        "prune",
			Usage:       "delete ticks older than this before printing",
			Destination: &journalPrune,
		},
	}
)

func journal(ctx *cli.Context) error {
	if journalPath == "" {
		return fmt.Errorf("--path is required")
	}
	store, err := badger.NewBadgerStorage(journalPath)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer store.Close()

	bg := context.Background()
	if journalPrune > 0 {
		n, err := store.DeleteTicksBefore(bg, time.Now().Add(-journalPrune))
		if err != nil {
			return err
		}
		fmt.Printf("pruned %d ticks older than %s\n", n, journalPrune)
	}

	tickers, err := store.ListTickers(bg)
	if err != nil {
		return err
	}

	shown := 0
	for _, info := range tickers {
		if journalTicker != "" && info.Name != journalTicker {
			continue
		}
		records, err := store.ListTicks(bg, info.ID)
		if err != nil {
			return err
		}
		printJournal(info, records)
		shown++
	}
	if shown == 0 {
		fmt.Println("cadence: no journaled ticks found")
	}
	return nil
}

func printJournal(info *storage.TickerInfo, records []*storage.TickRecord) {
	s := storage.Summarize(records)
	fmt.Printf("\n%s  [%s]\n", info.Name, info.ID)
	fmt.Printf("  ticks %d (immediate %d, failed %d)\n", s.Count, s.Immediate, s.Failed)
	if s.Count == 0 {
		return
	}
	fmt.Printf("  from %s to %s\n", s.First.Format(time.RFC3339), s.Last.Format(time.RFC3339))
	fmt.Printf("  lateness min %s, mean %s, max %s; mean spacing %s\n\n",
		s.MinLateness, s.MeanLateness, s.MaxLateness, s.MeanSpacing)

	if journalLimit > 0 && len(records) > journalLimit {
		records = records[len(records)-journalLimit:]
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "  COUNT\tSCHEDULED\tLATENESS\tOUTCOME\tERROR")
	for _, r := range records {
		count := fmt.Sprint(r.Count)
		if r.Immediate {
			count += "*"
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\n",
			count,
			r.ScheduledTime.Format("2006-01-02 15:04:05.000"),
			r.Lateness().Round(time.Microsecond),
			r.Outcome,
			r.ErrorMessage,
		)
	}
	w.Flush()
}
