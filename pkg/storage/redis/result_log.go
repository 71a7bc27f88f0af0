package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"coalmine/pkg/models"
)

// RedisResultLog keeps the result log as a Redis list of CSV lines.
// RPUSH is a single atomic command, so records never interleave. The client
// should not retry commands (see DefaultClientConfig); a lost reply is then
// reported as an error instead of risking a duplicate record.
type RedisResultLog struct {
	client *redis.Client
	key    string
}

// NewRedisResultLog stores records at prefix + ":results". The caller owns client.
func NewRedisResultLog(client *redis.Client, prefix string) *RedisResultLog {
	return &RedisResultLog{client: client, key: prefix + ":results"}
}

func (r *RedisResultLog) Close() error {
	return nil
}

func (r *RedisResultLog) Append(ctx context.Context, rec models.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if err := r.client.RPush(ctx, r.key, rec.String()).Err(); err != nil {
		return fmt.Errorf("failed to push result record: %w", err)
	}
	return nil
}

func (r *RedisResultLog) Records(ctx context.Context) ([]models.Record, error) {
	lines, err := r.client.LRange(ctx, r.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read result records: %w", err)
	}

	recs := make([]models.Record, 0, len(lines))
	for i, line := range lines {
		rec, err := models.ParseRecord(line)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}
