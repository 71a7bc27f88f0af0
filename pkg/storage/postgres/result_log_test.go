package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/suite"

	"coalmine/pkg/models"
)

// ResultLogSuite needs a live database; set TEST_DATABASE_DSN to run it.
type ResultLogSuite struct {
	suite.Suite
	log *PostgresResultLog
}

func (s *ResultLogSuite) SetupTest() {
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		s.T().Skip("TEST_DATABASE_DSN not set")
	}
	db, err := Open(dsn)
	s.Require().NoError(err)
	s.log, err = NewPostgresResultLog(db)
	s.Require().NoError(err)
	s.Require().NoError(db.Exec("DELETE FROM result_records").Error)
}

func (s *ResultLogSuite) TearDownTest() {
	if s.log != nil {
		_ = Close(s.log.db)
	}
}

func (s *ResultLogSuite) TestAppendPreservesOrder() {
	ctx := context.Background()
	want := []models.Record{
		{Identity: "B", Parameter: 1, Duration: 0.5},
		{Identity: "C", Parameter: 2, Duration: 1.25},
		{Identity: "B", Parameter: 3, Duration: 2},
	}
	for _, r := range want {
		s.Require().NoError(s.log.Append(ctx, r))
	}

	got, err := s.log.Records(ctx)
	s.Require().NoError(err)
	s.Equal(want, got)
}

func (s *ResultLogSuite) TestRejectsInvalidRecord() {
	err := s.log.Append(context.Background(), models.Record{Identity: "B", Parameter: 0, Duration: 1})
	s.ErrorIs(err, models.ErrMalformedRecord)
}

func TestResultLogSuite(t *testing.T) {
	suite.Run(t, new(ResultLogSuite))
}

func TestDSN(t *testing.T) {
	got := DSN("db", "5432", "u", "p", "coalmine")
	want := "host=db user=u password=p dbname=coalmine port=5432 sslmode=disable TimeZone=UTC"
	if got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}
