package storage

import (
	"sort"
	"time"
)

// Summary holds drift statistics over a set of journal records.
type Summary struct {
	Count     int
	Immediate int
	Failed    int

	First time.Time
	Last  time.Time

	MinLateness  time.Duration
	MaxLateness  time.Duration
	MeanLateness time.Duration

	// MeanSpacing is the average gap between consecutive scheduled times of
	// non-immediate ticks. For a drift-free periodic ticker it equals the
	// interval.
	MeanSpacing time.Duration
}

// Summarize computes drift statistics. Records may be in any order.
func Summarize(records []*TickRecord) Summary {
	var s Summary
	if len(records) == 0 {
		return s
	}

	sorted := make([]*TickRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ScheduledTime.Before(sorted[j].ScheduledTime)
	})

	var total time.Duration
	var prev *TickRecord
	var spacing time.Duration
	gaps := 0

	for i, r := range sorted {
		s.Count++
		if r.Immediate {
			s.Immediate++
		}
		if r.Outcome == OutcomeFailed {
			s.Failed++
		}

		lateness := r.Lateness()
		total += lateness
		if i == 0 || lateness < s.MinLateness {
			s.MinLateness = lateness
		}
		if i == 0 || lateness > s.MaxLateness {
			s.MaxLateness = lateness
		}

		if r.Immediate {
			continue
		}
		if prev != nil {
			spacing += r.ScheduledTime.Sub(prev.ScheduledTime)
			gaps++
		}
		prev = r
	}

	s.First = sorted[0].ScheduledTime
	s.Last = sorted[len(sorted)-1].ScheduledTime
	s.MeanLateness = total / time.Duration(s.Count)
	if gaps > 0 {
		s.MeanSpacing = spacing / time.Duration(gaps)
	}
	return s
}
