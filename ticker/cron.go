package ticker

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// fieldParser parses the full six-field form so a single field can be
// validated by placing it in the seconds or minutes slot.
var fieldParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseTargets parses one cron field into calendar targets. The field is the
// minute for GranularityHour and the second for GranularityMinute, and accepts
// the usual forms: "30", "0,15,30,45", "*/10", "10-20/5", "*".
func ParseTargets(granularity Granularity, expr string) ([]int, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("%w: empty target expression", ErrInvalidArgument)
	}
	// Only a single field; descriptors and TZ prefixes are rejected.
	if strings.ContainsAny(expr, " \t@=") {
		return nil, fmt.Errorf("%w: target expression %q must be a single cron field", ErrInvalidArgument, expr)
	}

	var spec string
	switch granularity {
	case GranularityMinute:
		spec = expr + " * * * * *"
	case GranularityHour:
		spec = "0 " + expr + " * * * *"
	default:
		return nil, fmt.Errorf("%w: unknown granularity %d", ErrInvalidArgument, int(granularity))
	}

	schedule, err := fieldParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid target expression %q: %v", ErrInvalidArgument, expr, err)
	}
	parsed, ok := schedule.(*cron.SpecSchedule)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported target expression %q", ErrInvalidArgument, expr)
	}

	bits := parsed.Second
	if granularity == GranularityHour {
		bits = parsed.Minute
	}

	var targets []int
	for v := 0; v < 60; v++ {
		if bits&(1<<uint(v)) != 0 {
			targets = append(targets, v)
		}
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: target expression %q selects nothing", ErrInvalidArgument, expr)
	}
	return targets, nil
}
