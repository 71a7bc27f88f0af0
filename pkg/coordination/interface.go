package coordination

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotClaimed is returned by Leader when nobody has claimed the election yet.
var ErrNotClaimed = errors.New("election has not been claimed")

// Claimer implements a one-shot, first-come-first-served election against a
// shared marker. The marker is never released.
type Claimer interface {
	// TryClaim atomically creates the election marker if it is absent.
	// It returns true only for the single caller whose create succeeded and
	// was persisted. An existing marker yields (false, nil). Any storage
	// failure yields a non-nil error, which must not be read as a lost race.
	TryClaim(ctx context.Context, identity string) (bool, error)

	// Leader returns the message stored in the marker.
	Leader(ctx context.Context) (string, error)

	// Close releases what the claimer opened itself. It never touches the marker.
	Close() error
}

// ClaimMessage is the human-readable marker content written by a winner.
func ClaimMessage(identity string, at time.Time) string {
	return fmt.Sprintf("%s has assumed command as of %s.\n", identity, at.UTC().Format(time.RFC3339))
}
