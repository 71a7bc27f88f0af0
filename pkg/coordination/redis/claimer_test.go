package redis_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coalmine/pkg/coordination"
	. "coalmine/pkg/coordination/redis"
	"coalmine/pkg/storage/redis/redistest"
)

func newClient(t *testing.T, addr string) *goredis.Client {
	t.Helper()
	client := goredis.NewClient(&goredis.Options{Addr: addr, MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func newClaimer(t *testing.T, addr string) *RedisClaimer {
	t.Helper()
	c, err := NewRedisClaimer(newClient(t, addr), "test")
	require.NoError(t, err)
	return c
}

func TestRedisClaimer_FirstCallerWins(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	c := newClaimer(t, mr.Addr())

	_, err := c.Leader(ctx)
	assert.ErrorIs(t, err, coordination.ErrNotClaimed)

	won, err := c.TryClaim(ctx, "A")
	require.NoError(t, err)
	assert.True(t, won)

	won, err = c.TryClaim(ctx, "A")
	require.NoError(t, err)
	assert.False(t, won)

	msg, err := c.Leader(ctx)
	require.NoError(t, err)
	assert.Contains(t, msg, "A")

	// No expiry: the claim is permanent.
	assert.Zero(t, mr.TTL("test:elector"))
}

func TestRedisClaimer_SingleWinnerUnderConcurrency(t *testing.T) {
	const n = 50
	mr := miniredis.RunT(t)

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for i := 0; i < n; i++ {
		c := newClaimer(t, mr.Addr())
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := c.TryClaim(context.Background(), "worker")
			if err != nil {
				t.Errorf("claim: %v", err)
				return
			}
			if won {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestRedisClaimer_UnreachableIsError(t *testing.T) {
	mr := miniredis.RunT(t)
	c := newClaimer(t, mr.Addr())
	mr.Close()

	won, err := c.TryClaim(context.Background(), "A")
	assert.Error(t, err)
	assert.False(t, won)
}

func TestRedisClaimer_LostReplyIsNotALostRace(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	proxy := redistest.NewReplyDropper(t, mr.Addr(), "setnx")

	won, err := newClaimer(t, proxy.Addr()).TryClaim(ctx, "A")
	require.True(t, proxy.Dropped())
	assert.Error(t, err, "an unanswered claim must not read as a loss")
	assert.False(t, won)

	marker, err := mr.Get("test:elector")
	require.NoError(t, err)
	assert.Contains(t, marker, "A has assumed command as of ")

	won, err = newClaimer(t, mr.Addr()).TryClaim(ctx, "B")
	require.NoError(t, err)
	assert.False(t, won)
}

func TestNewRedisClaimer_RejectsRetryingClient(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()

	_, err := NewRedisClaimer(client, "test")
	assert.ErrorIs(t, err, ErrClientRetries)
}
