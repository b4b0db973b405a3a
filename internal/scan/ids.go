package scan

import (
	"time"

	"github.com/google/uuid"
)

// IDGenerator produces scan run identifiers.
type IDGenerator interface {
	NewID() string
}

// Clock supplies the time used to measure a run.
type Clock interface {
	Now() time.Time
}

// UUIDv7Generator issues time-ordered UUIDs, so run ids sort by start time.
type UUIDv7Generator struct{}

// NewID returns a new UUIDv7, or a random UUID if the clock source fails.
func (UUIDv7Generator) NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
