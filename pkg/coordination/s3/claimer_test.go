package s3

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"coalmine/pkg/coordination"
	s3store "coalmine/pkg/storage/s3"
	"coalmine/pkg/storage/s3/s3test"
)

func TestMarkerKey(t *testing.T) {
	assert.Equal(t, "fleet/elector.txt", NewS3Claimer(nil, "bucket", "fleet/").key)
	assert.Equal(t, "fleet/elector.txt", NewS3Claimer(nil, "bucket", "fleet").key)
}

func TestS3Claimer_FirstClaimWins(t *testing.T) {
	ctx := context.Background()
	srv := s3test.NewServer(t)
	a := NewS3Claimer(srv.Client(), "fleet", "coalmine")
	b := NewS3Claimer(srv.Client(), "fleet", "coalmine")

	_, err := a.Leader(ctx)
	assert.ErrorIs(t, err, coordination.ErrNotClaimed)

	won, err := a.TryClaim(ctx, "A")
	require.NoError(t, err)
	assert.True(t, won)

	won, err = b.TryClaim(ctx, "B")
	require.NoError(t, err)
	assert.False(t, won)

	msg, err := b.Leader(ctx)
	require.NoError(t, err)
	assert.Contains(t, msg, "A has assumed command as of ")
}

func TestS3Claimer_LostReplyIsNotALostRace(t *testing.T) {
	ctx := context.Background()
	srv := s3test.NewServer(t)
	srv.LoseFirstPut = true

	won, err := NewS3Claimer(srv.Client(), "fleet", "coalmine").TryClaim(ctx, "A")
	assert.Error(t, err, "an unanswered claim must not read as a loss")
	assert.False(t, won)
	assert.Equal(t, 1, srv.Puts(), "the claim put is never resent")

	marker, ok := srv.Object("fleet", "coalmine/elector.txt")
	require.True(t, ok)
	assert.Contains(t, marker, "A has assumed command as of ")

	won, err = NewS3Claimer(srv.Client(), "fleet", "coalmine").TryClaim(ctx, "B")
	require.NoError(t, err)
	assert.False(t, won)
}

// S3ClaimerSuite needs an S3-compatible endpoint with conditional writes;
// set TEST_S3_ENDPOINT and TEST_S3_BUCKET to run it.
type S3ClaimerSuite struct {
	suite.Suite
	claimer *S3Claimer
}

func (s *S3ClaimerSuite) SetupTest() {
	endpoint, bucket := os.Getenv("TEST_S3_ENDPOINT"), os.Getenv("TEST_S3_BUCKET")
	if endpoint == "" || bucket == "" {
		s.T().Skip("TEST_S3_ENDPOINT or TEST_S3_BUCKET not set")
	}
	client, err := s3store.NewClient(context.Background(), s3store.ClientConfig{
		Region:          "us-east-1",
		Endpoint:        endpoint,
		AccessKeyID:     os.Getenv("TEST_S3_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("TEST_S3_SECRET_ACCESS_KEY"),
	})
	s.Require().NoError(err)
	s.claimer = NewS3Claimer(client, bucket, "coalmine-test/"+uuid.NewString())
}

func (s *S3ClaimerSuite) TestFirstClaimWins() {
	ctx := context.Background()

	_, err := s.claimer.Leader(ctx)
	s.ErrorIs(err, coordination.ErrNotClaimed)

	won, err := s.claimer.TryClaim(ctx, "A")
	s.Require().NoError(err)
	s.True(won)

	won, err = s.claimer.TryClaim(ctx, "B")
	s.Require().NoError(err)
	s.False(won)

	msg, err := s.claimer.Leader(ctx)
	s.Require().NoError(err)
	s.True(strings.HasPrefix(msg, "A has assumed command as of "))
}

func TestS3ClaimerSuite(t *testing.T) {
	suite.Run(t, new(S3ClaimerSuite))
}
