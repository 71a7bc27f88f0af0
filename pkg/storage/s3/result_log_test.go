package s3

import (
	"context"
	"os"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"coalmine/pkg/models"
	"coalmine/pkg/storage/s3/s3test"
)

func TestBuildKey(t *testing.T) {
	log := NewS3ResultLog(nil, "bucket", "fleet/")
	at := time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)
	log.now = func() time.Time { return at }

	key := log.buildKey()
	assert.True(t, strings.HasPrefix(key, "fleet/results/2026/03/09/"), key)
	assert.True(t, strings.HasSuffix(key, ".csv"), key)

	later := at.Add(time.Nanosecond)
	log.now = func() time.Time { return later }
	next := log.buildKey()
	keys := []string{next, key}
	sort.Strings(keys)
	assert.Equal(t, []string{key, next}, keys, "keys sort in append order")
}

func TestAppend_ResentPutIsNotAFailure(t *testing.T) {
	srv := s3test.NewServer(t)
	srv.LoseFirstPut = true
	log := NewS3ResultLog(srv.Client(), "fleet", "coalmine")

	err := log.Append(context.Background(), models.Record{Identity: "B", Parameter: 4, Duration: 0.5})
	require.NoError(t, err)
	assert.Equal(t, 2, srv.Puts(), "the SDK resent the put after the 500")
	assert.Equal(t, 1, srv.Objects(), "the record is stored once")
}

// S3ResultLogSuite needs an S3-compatible endpoint such as MinIO; set
// TEST_S3_ENDPOINT and TEST_S3_BUCKET to run it.
type S3ResultLogSuite struct {
	suite.Suite
	log *S3ResultLog
}

func (s *S3ResultLogSuite) SetupTest() {
	endpoint, bucket := os.Getenv("TEST_S3_ENDPOINT"), os.Getenv("TEST_S3_BUCKET")
	if endpoint == "" || bucket == "" {
		s.T().Skip("TEST_S3_ENDPOINT or TEST_S3_BUCKET not set")
	}
	client, err := NewClient(context.Background(), ClientConfig{
		Region:          "us-east-1",
		Endpoint:        endpoint,
		AccessKeyID:     os.Getenv("TEST_S3_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("TEST_S3_SECRET_ACCESS_KEY"),
	})
	s.Require().NoError(err)
	s.log = NewS3ResultLog(client, bucket, "coalmine-test/"+uuid.NewString())
}

func (s *S3ResultLogSuite) TestAppendAndRead() {
	ctx := context.Background()

	recs, err := s.log.Records(ctx)
	s.Require().NoError(err)
	s.Empty(recs)

	want := []models.Record{
		{Identity: "B", Parameter: 10, Duration: 0.5},
		{Identity: "C", Parameter: 20, Duration: 1.5},
	}
	for _, r := range want {
		s.Require().NoError(s.log.Append(ctx, r))
		time.Sleep(time.Millisecond)
	}

	got, err := s.log.Records(ctx)
	s.Require().NoError(err)
	s.Equal(want, got)
}

func TestS3ResultLogSuite(t *testing.T) {
	suite.Run(t, new(S3ResultLogSuite))
}
