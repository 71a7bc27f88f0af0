package redis_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coalmine/pkg/models"
	. "coalmine/pkg/storage/redis"
	"coalmine/pkg/storage/redis/redistest"
)

func newLog(t *testing.T, mr *miniredis.Miniredis) *RedisResultLog {
	t.Helper()
	client, err := NewClient(DefaultClientConfig(mr.Addr()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisResultLog(client, "test")
}

func TestRedisResultLog_AppendAndRead(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	l := newLog(t, mr)

	rec := models.Record{Identity: "B", Parameter: 9, Duration: 0.125}
	require.NoError(t, l.Append(ctx, rec))

	stored, err := mr.List("test:results")
	require.NoError(t, err)
	assert.Equal(t, []string{"B,9,0.125"}, stored)

	recs, err := l.Records(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.Record{rec}, recs)
}

func TestRedisResultLog_ConcurrentAppends(t *testing.T) {
	const m = 50
	mr := miniredis.RunT(t)
	l := newLog(t, mr)

	var wg sync.WaitGroup
	for i := 0; i < m; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := models.Record{Identity: fmt.Sprintf("w%d", i), Parameter: i + 1, Duration: 1}
			if err := l.Append(context.Background(), rec); err != nil {
				t.Errorf("append: %v", err)
			}
		}(i)
	}
	wg.Wait()

	recs, err := l.Records(context.Background())
	require.NoError(t, err)
	assert.Len(t, recs, m)
}

func TestNewClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewClient(DefaultClientConfig(addr))
	assert.Error(t, err)
}

func TestRedisResultLog_LostReplyDoesNotDuplicate(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	proxy := redistest.NewReplyDropper(t, mr.Addr(), "rpush")

	client, err := NewClient(DefaultClientConfig(proxy.Addr()))
	require.NoError(t, err)
	defer client.Close()
	l := NewRedisResultLog(client, "test")

	err = l.Append(ctx, models.Record{Identity: "B", Parameter: 3, Duration: 0.5})
	require.True(t, proxy.Dropped())
	assert.Error(t, err)

	stored, err := mr.List("test:results")
	require.NoError(t, err)
	assert.Equal(t, []string{"B,3,0.5"}, stored, "the command ran exactly once")
}
