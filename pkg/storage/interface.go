package storage

import (
	"context"
	"errors"

	"coalmine/pkg/models"
)

var (
	// ErrLockTimeout is returned when an append could not take the log lock in time.
	ErrLockTimeout = errors.New("timed out waiting for result log lock")
)

// ResultLog is the shared, append-only collection of result records.
type ResultLog interface {
	// Append writes one record as a single all-or-nothing unit. Concurrent
	// appends from other processes never interleave with it.
	Append(ctx context.Context, rec models.Record) error

	// Records returns every record in the log. Order across writers is not defined.
	Records(ctx context.Context) ([]models.Record, error)

	// Close releases backend resources. It never truncates the log.
	Close() error
}
