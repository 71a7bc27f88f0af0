package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/cenkalti/backoff/v5"

	"coalmine/pkg/coordination"
)

const (
	codePreconditionFailed  = "PreconditionFailed"
	codeConditionalConflict = "ConditionalRequestConflict"
)

// S3Claimer keeps the election marker as an object created with a conditional
// write (If-None-Match: *). S3 rejects the put with 412 once the key exists.
type S3Claimer struct {
	client *s3.Client
	bucket string
	key    string
	now    func() time.Time

	// conflictWait bounds retries of 409 responses, which S3 returns while
	// another conditional write to the same key is still in flight.
	conflictWait time.Duration
}

// NewS3Claimer stores the marker at s3://bucket/prefix/elector.txt.
func NewS3Claimer(client *s3.Client, bucket, prefix string) *S3Claimer {
	return &S3Claimer{
		client:       client,
		bucket:       bucket,
		key:          strings.TrimSuffix(prefix, "/") + "/elector.txt",
		now:          time.Now,
		conflictWait: 10 * time.Second,
	}
}

func (c *S3Claimer) Close() error {
	return nil
}

func (c *S3Claimer) TryClaim(ctx context.Context, identity string) (bool, error) {
	msg := coordination.ClaimMessage(identity, c.now())

	put := func() (bool, error) {
		_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(c.bucket),
			Key:         aws.String(c.key),
			Body:        strings.NewReader(msg),
			ContentType: aws.String("text/plain"),
			IfNoneMatch: aws.String("*"),
		}, withoutRetries)
		if err == nil {
			return true, nil
		}
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.ErrorCode() {
			case codePreconditionFailed:
				return false, nil
			case codeConditionalConflict:
				return false, err
			}
		}
		return false, backoff.Permanent(err)
	}

	won, err := backoff.Retry(ctx, put,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(c.conflictWait),
	)
	if err != nil {
		return false, fmt.Errorf("failed to put election marker: %w", err)
	}
	return won, nil
}

// withoutRetries turns off the SDK retryer for the claim. If S3 stored the
// marker but the reply was lost, a resent put would get 412 and report the
// winner as a loser; without the resend the caller gets an error instead.
func withoutRetries(o *s3.Options) {
	o.Retryer = aws.NopRetryer{}
}

func (c *S3Claimer) Leader(ctx context.Context) (string, error) {
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(c.key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return "", coordination.ErrNotClaimed
		}
		return "", fmt.Errorf("failed to get election marker: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read election marker: %w", err)
	}
	return string(data), nil
}
