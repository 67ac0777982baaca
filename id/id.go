package id

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Namespace UUIDs for different entity types (UUIDv5 requires a namespace)
var (
	TickerNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	JobNamespace    = uuid.MustParse("6ba7b811-9dad-11d1-80b4-00c04fd430c8")
	TickNamespace   = uuid.MustParse("6ba7b812-9dad-11d1-80b4-00c04fd430c8")
)

// GenerateTickerID generates a deterministic ID for a ticker based on its name
func GenerateTickerID(name string) string {
	id := uuid.NewSHA1(TickerNamespace, []byte(name))
	return fmt.Sprintf("tkr_%s", id.String())
}

// GenerateJobID generates a deterministic ID for a job based on its name
func GenerateJobID(name string) string {
	id := uuid.NewSHA1(JobNamespace, []byte(name))
	return fmt.Sprintf("job_%s", id.String())
}

// GenerateTickID generates a deterministic ID for one tick of a ticker,
// based on the ticker ID, the tick count and the scheduled time.
func GenerateTickID(tickerID string, count int64, scheduledTime time.Time) string {
	// RFC3339Nano keeps sub-second grids distinct
	timeStr := scheduledTime.UTC().Format(time.RFC3339Nano)
	combined := fmt.Sprintf("%s:%d:%s", tickerID, count, timeStr)
	id := uuid.NewSHA1(TickNamespace, []byte(combined))
	return fmt.Sprintf("tick_%s", id.String())
}
