package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"coalmine/pkg/models"
)

// S3ResultLog stores each record as its own object. S3 has no append, but a
// single PutObject is atomic, so every record is visible whole or not at all.
// The log is the concatenation of all objects under the prefix.
type S3ResultLog struct {
	client *s3.Client
	bucket string
	prefix string
	now    func() time.Time
}

// NewS3ResultLog writes records under s3://bucket/prefix/results/.
func NewS3ResultLog(client *s3.Client, bucket, prefix string) *S3ResultLog {
	return &S3ResultLog{
		client: client,
		bucket: bucket,
		prefix: strings.TrimSuffix(prefix, "/") + "/results/",
		now:    time.Now,
	}
}

func (s *S3ResultLog) Close() error {
	return nil
}

func (s *S3ResultLog) Append(ctx context.Context, rec models.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	key := s.buildKey()
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(rec.Line()),
		ContentType: aws.String("text/csv"),
		IfNoneMatch: aws.String("*"),
	})
	if err != nil {
		// Keys are unique per append, so an existing key means an earlier
		// attempt of this same put landed and the SDK resent it.
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "PreconditionFailed" {
			return nil
		}
		return fmt.Errorf("failed to upload result record to S3: %w", err)
	}
	return nil
}

func (s *S3ResultLog) Records(ctx context.Context) ([]models.Record, error) {
	var recs []models.Record

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list result records: %w", err)
		}
		for _, obj := range page.Contents {
			rec, err := s.fetch(ctx, aws.ToString(obj.Key))
			if err != nil {
				return nil, err
			}
			recs = append(recs, rec...)
		}
	}
	return recs, nil
}

func (s *S3ResultLog) fetch(ctx context.Context, key string) ([]models.Record, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get result record %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read result record %s: %w", key, err)
	}
	recs, err := models.ParseRecords(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("object %s: %w", key, err)
	}
	return recs, nil
}

// buildKey leads with the timestamp so listing order follows append order.
func (s *S3ResultLog) buildKey() string {
	now := s.now().UTC()
	return fmt.Sprintf("%s%s/%020d-%s.csv", s.prefix, now.Format("2006/01/02"), now.UnixNano(), uuid.New().String())
}
