package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sys/unix"

	"coalmine/pkg/metrics"
	"coalmine/pkg/models"
	"coalmine/pkg/storage"
)

// DefaultLockTimeout bounds how long an append waits for other writers.
const DefaultLockTimeout = 10 * time.Second

// ResultLog appends CSV lines to a file on shared storage.
//
// Each append opens the file with O_APPEND, takes an exclusive flock, and
// writes the whole line with one write call. O_APPEND makes the tail write
// atomic on local filesystems; the lock covers network filesystems where it
// is not. The lock is acquired by polling so a stuck writer cannot block
// others past the lock timeout.
type ResultLog struct {
	path        string
	lockTimeout time.Duration
}

// NewResultLog returns a log at path. The file is created on first append.
func NewResultLog(path string, lockTimeout time.Duration) *ResultLog {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	return &ResultLog{path: path, lockTimeout: lockTimeout}
}

// Path returns the log location.
func (l *ResultLog) Path() string {
	return l.path
}

func (l *ResultLog) Append(ctx context.Context, rec models.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("failed to open result log: %w", err)
	}
	defer f.Close()

	unlock, err := l.lock(ctx, f, unix.LOCK_EX)
	if err != nil {
		return err
	}
	defer unlock()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat result log: %w", err)
	}

	line := rec.Line()
	n, err := f.Write(line)
	if err == nil && n < len(line) {
		err = io.ErrShortWrite
	}
	if err != nil {
		// Drop our own partial bytes so readers never see a torn line.
		_ = f.Truncate(info.Size())
		return fmt.Errorf("failed to append to result log: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync result log: %w", err)
	}
	return nil
}

func (l *ResultLog) Records(ctx context.Context) ([]models.Record, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open result log: %w", err)
	}
	defer f.Close()

	unlock, err := l.lock(ctx, f, unix.LOCK_SH)
	if err != nil {
		return nil, err
	}
	defer unlock()

	recs, err := models.ParseRecords(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read result log %s: %w", l.path, err)
	}
	return recs, nil
}

func (l *ResultLog) Close() error {
	return nil
}

// lock takes a flock of the given mode, retrying non-blocking attempts with
// backoff until lockTimeout elapses.
func (l *ResultLog) lock(ctx context.Context, f *os.File, mode int) (func(), error) {
	fd := int(f.Fd())
	start := time.Now()

	try := func() (struct{}, error) {
		err := unix.Flock(fd, mode|unix.LOCK_NB)
		switch {
		case err == nil:
			return struct{}{}, nil
		case errors.Is(err, unix.EWOULDBLOCK), errors.Is(err, unix.EINTR):
			return struct{}{}, err
		default:
			return struct{}{}, backoff.Permanent(err)
		}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Millisecond
	b.MaxInterval = 100 * time.Millisecond

	_, err := backoff.Retry(ctx, try,
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(l.lockTimeout),
	)
	if err != nil {
		if errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EINTR) {
			return nil, fmt.Errorf("%w after %s", storage.ErrLockTimeout, l.lockTimeout)
		}
		return nil, fmt.Errorf("failed to lock result log: %w", err)
	}
	metrics.LockWait.Observe(time.Since(start).Seconds())

	return func() { _ = unix.Flock(fd, unix.LOCK_UN) }, nil
}
