package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"coalmine/pkg/coordination"
)

// Claimer stores the election marker as a file on a shared filesystem.
// Exclusive creation (O_CREATE|O_EXCL) is the atomic primitive.
type Claimer struct {
	path string
	now  func() time.Time
}

// NewClaimer returns a Claimer for the marker at path. The parent directory
// must already exist; it is the shared storage root.
func NewClaimer(path string) *Claimer {
	return &Claimer{path: path, now: time.Now}
}

// Path returns the marker location.
func (c *Claimer) Path() string {
	return c.path
}

func (c *Claimer) TryClaim(ctx context.Context, identity string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	f, err := os.OpenFile(c.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create election marker: %w", err)
	}

	// From here on the marker exists and belongs to us. A failure below leaves
	// it in place: the claim happened, it just is not fully persisted.
	msg := coordination.ClaimMessage(identity, c.now())
	if _, err := f.WriteString(msg); err != nil {
		f.Close()
		return false, fmt.Errorf("failed to write election marker: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return false, fmt.Errorf("failed to sync election marker: %w", err)
	}
	if err := f.Close(); err != nil {
		return false, fmt.Errorf("failed to close election marker: %w", err)
	}
	if err := syncDir(filepath.Dir(c.path)); err != nil {
		return false, fmt.Errorf("failed to sync storage root: %w", err)
	}
	return true, nil
}

func (c *Claimer) Leader(ctx context.Context) (string, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", coordination.ErrNotClaimed
		}
		return "", fmt.Errorf("failed to read election marker: %w", err)
	}
	return string(data), nil
}

func (c *Claimer) Close() error {
	return nil
}

// syncDir flushes the directory entry so the new marker survives a crash.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	if err := d.Sync(); err != nil && !errors.Is(err, os.ErrInvalid) {
		return err
	}
	return nil
}
