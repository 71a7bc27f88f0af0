package etcd

import (
	"context"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"coalmine/pkg/coordination"
)

// EtcdClaimer keeps the election marker as a single etcd key.
// The key is written without a lease so the claim never expires.
type EtcdClaimer struct {
	client *clientv3.Client
	key    string
	now    func() time.Time
}

// NewEtcdClaimer connects to etcd and stores the marker at prefix + "/elector".
func NewEtcdClaimer(endpoints []string, prefix string, dialTimeout time.Duration) (*EtcdClaimer, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}
	return NewEtcdClaimerFromClient(cli, prefix), nil
}

// NewEtcdClaimerFromClient wraps an existing client. Close closes it.
func NewEtcdClaimerFromClient(cli *clientv3.Client, prefix string) *EtcdClaimer {
	return &EtcdClaimer{
		client: cli,
		key:    prefix + "/elector",
		now:    time.Now,
	}
}

func (c *EtcdClaimer) Close() error {
	return c.client.Close()
}

// TryClaim puts the marker only if the key has never been created
// (CreateRevision == 0). etcd evaluates the compare and the put in one
// serialized transaction, so exactly one caller sees Succeeded.
func (c *EtcdClaimer) TryClaim(ctx context.Context, identity string) (bool, error) {
	msg := coordination.ClaimMessage(identity, c.now())
	resp, err := c.client.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(c.key), "=", 0)).
		Then(clientv3.OpPut(c.key, msg)).
		Commit()
	if err != nil {
		return false, fmt.Errorf("failed to commit election txn: %w", err)
	}
	return resp.Succeeded, nil
}

func (c *EtcdClaimer) Leader(ctx context.Context) (string, error) {
	resp, err := c.client.Get(ctx, c.key)
	if err != nil {
		return "", fmt.Errorf("failed to read election marker: %w", err)
	}
	if len(resp.Kvs) == 0 {
		return "", coordination.ErrNotClaimed
	}
	return string(resp.Kvs[0].Value), nil
}
