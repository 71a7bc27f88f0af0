package file_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coalmine/pkg/coordination"
	. "coalmine/pkg/coordination/file"
)

func TestClaimer_FirstCallerWins(t *testing.T) {
	ctx := context.Background()
	c := NewClaimer(filepath.Join(t.TempDir(), "elector.txt"))

	won, err := c.TryClaim(ctx, "A")
	require.NoError(t, err)
	assert.True(t, won)

	won, err = c.TryClaim(ctx, "B")
	require.NoError(t, err)
	assert.False(t, won)

	msg, err := c.Leader(ctx)
	require.NoError(t, err)
	assert.Contains(t, msg, "A")
	assert.NotContains(t, msg, "B")
}

func TestClaimer_WinnerCannotClaimAgain(t *testing.T) {
	ctx := context.Background()
	c := NewClaimer(filepath.Join(t.TempDir(), "elector.txt"))

	won, err := c.TryClaim(ctx, "A")
	require.NoError(t, err)
	require.True(t, won)

	for i := 0; i < 3; i++ {
		won, err = c.TryClaim(ctx, "A")
		require.NoError(t, err)
		assert.False(t, won)
	}
}

func TestClaimer_SingleWinnerUnderConcurrency(t *testing.T) {
	const n = 64
	path := filepath.Join(t.TempDir(), "elector.txt")

	var (
		wg    sync.WaitGroup
		wins  atomic.Int32
		loses atomic.Int32
		start = make(chan struct{})
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Separate claimers, like separate processes.
			c := NewClaimer(path)
			<-start
			won, err := c.TryClaim(context.Background(), "worker-"+string(rune('a'+i%26)))
			if err != nil {
				t.Errorf("claim %d: %v", i, err)
				return
			}
			if won {
				wins.Add(1)
			} else {
				loses.Add(1)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(n-1), loses.Load())
}

func TestClaimer_LeaderBeforeClaim(t *testing.T) {
	c := NewClaimer(filepath.Join(t.TempDir(), "elector.txt"))

	_, err := c.Leader(context.Background())
	assert.ErrorIs(t, err, coordination.ErrNotClaimed)
}

func TestClaimer_MissingRootIsErrorNotLoss(t *testing.T) {
	c := NewClaimer(filepath.Join(t.TempDir(), "missing", "elector.txt"))

	won, err := c.TryClaim(context.Background(), "A")
	assert.Error(t, err)
	assert.False(t, won)
}

func TestClaimer_ReadOnlyRootIsError(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	dir := t.TempDir()
	require.NoError(t, os.Chmod(dir, 0555))
	t.Cleanup(func() { _ = os.Chmod(dir, 0755) })

	won, err := NewClaimer(filepath.Join(dir, "elector.txt")).TryClaim(context.Background(), "A")
	assert.Error(t, err)
	assert.False(t, won)
}

func TestClaimer_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	path := filepath.Join(t.TempDir(), "elector.txt")

	_, err := NewClaimer(path).TryClaim(ctx, "A")
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, path)
}
