package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"coalmine/pkg/coordination"
)

// RedisClaimer keeps the election marker as a plain string key claimed with SETNX.
type RedisClaimer struct {
	client *redis.Client
	key    string
	now    func() time.Time
}

// ErrClientRetries is returned for a client that resends failed commands.
// A resent SETNX whose first reply was lost answers 0 to the caller that won.
var ErrClientRetries = errors.New("redis claimer needs a client with command retries disabled (MaxRetries: -1)")

// NewRedisClaimer wraps client; the marker lives at prefix + ":elector".
// The caller owns client.
func NewRedisClaimer(client *redis.Client, prefix string) (*RedisClaimer, error) {
	if client.Options().MaxRetries > 0 {
		return nil, ErrClientRetries
	}
	return &RedisClaimer{
		client: client,
		key:    prefix + ":elector",
		now:    time.Now,
	}, nil
}

func (c *RedisClaimer) Close() error {
	return nil
}

// TryClaim uses SETNX with no expiry: the claim is permanent. A lost reply is
// an error, never a lost race: the command may or may not have run.
func (c *RedisClaimer) TryClaim(ctx context.Context, identity string) (bool, error) {
	ok, err := c.client.SetNX(ctx, c.key, coordination.ClaimMessage(identity, c.now()), 0).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim election key: %w", err)
	}
	return ok, nil
}

func (c *RedisClaimer) Leader(ctx context.Context) (string, error) {
	msg, err := c.client.Get(ctx, c.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", coordination.ErrNotClaimed
		}
		return "", fmt.Errorf("failed to read election key: %w", err)
	}
	return msg, nil
}
