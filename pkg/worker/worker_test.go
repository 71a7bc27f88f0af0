package worker

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	filecoord "coalmine/pkg/coordination/file"
	"coalmine/pkg/models"
	"coalmine/pkg/recorder"
	filestore "coalmine/pkg/storage/file"
	"coalmine/pkg/workload"
)

type busyWork struct{}

func (busyWork) Name() string { return "busy" }

func (busyWork) Run(ctx context.Context, parameter int) error {
	time.Sleep(time.Millisecond)
	return nil
}

type failingClaimer struct{}

func (failingClaimer) TryClaim(context.Context, string) (bool, error) {
	return false, errors.New("storage unreachable")
}
func (failingClaimer) Leader(context.Context) (string, error) { return "", nil }
func (failingClaimer) Close() error                           { return nil }

// WorkerSuite runs worker cycles against a fresh shared storage root.
type WorkerSuite struct {
	suite.Suite
	root    string
	claimer *filecoord.Claimer
	log     *filestore.ResultLog
}

func (s *WorkerSuite) SetupTest() {
	s.root = s.T().TempDir()
	s.claimer = filecoord.NewClaimer(filepath.Join(s.root, "elector.txt"))
	s.log = filestore.NewResultLog(filepath.Join(s.root, "output.csv"), time.Second)
}

func (s *WorkerSuite) newWorker(id string, param int) *Worker {
	rec := recorder.New(recorder.Config{
		Workload: busyWork{},
		Log:      s.log,
		Stdout:   &bytes.Buffer{},
	})
	return New(Config{
		Identity:        id,
		Claimer:         s.claimer,
		ElectionBackend: "file",
		Chooser:         workload.FixedChooser(param),
		Recorder:        rec,
	})
}

func (s *WorkerSuite) TestFirstRun() {
	ctx := context.Background()

	outcome, _, err := s.newWorker("A", 7).Run(ctx)
	s.Require().NoError(err)
	s.Equal(OutcomeElected, outcome)
	s.NoFileExists(s.log.Path(), "the elected worker does no work")

	outcome, rec, err := s.newWorker("B", 7).Run(ctx)
	s.Require().NoError(err)
	s.Equal(OutcomeRecorded, outcome)
	s.Greater(rec.Duration, 0.0)

	data, err := os.ReadFile(s.log.Path())
	s.Require().NoError(err)
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	s.Require().Len(lines, 1)

	got, err := models.ParseRecord(lines[0])
	s.Require().NoError(err)
	s.Equal("B", got.Identity)
	s.Equal(7, got.Parameter)
	s.InDelta(rec.Duration, got.Duration, 1e-12)
}

func (s *WorkerSuite) TestRepeatedRunsAppend() {
	ctx := context.Background()
	won, err := s.claimer.TryClaim(ctx, "captain")
	s.Require().NoError(err)
	s.Require().True(won)

	existing := "old-1,100,1.5\nold-2,200,3.25\nold-3,300,4\n"
	s.Require().NoError(os.WriteFile(s.log.Path(), []byte(existing), 0644))

	for i := 0; i < 10; i++ {
		outcome, _, err := s.newWorker("peon", i+1).Run(ctx)
		s.Require().NoError(err)
		s.Equal(OutcomeRecorded, outcome)
	}

	data, err := os.ReadFile(s.log.Path())
	s.Require().NoError(err)
	s.True(strings.HasPrefix(string(data), existing), "existing lines are preserved verbatim")

	recs, err := s.log.Records(ctx)
	s.Require().NoError(err)
	s.Len(recs, 13)
	for i, r := range recs[3:] {
		s.Equal("peon", r.Identity)
		s.Equal(i+1, r.Parameter)
	}
}

func (s *WorkerSuite) TestWinnerRecordsOnLaterRun() {
	ctx := context.Background()
	w := s.newWorker("A", 3)

	outcome, _, err := w.Run(ctx)
	s.Require().NoError(err)
	s.Equal(OutcomeElected, outcome)

	outcome, _, err = w.Run(ctx)
	s.Require().NoError(err)
	s.Equal(OutcomeRecorded, outcome)
}

func TestWorkerSuite(t *testing.T) {
	suite.Run(t, new(WorkerSuite))
}

func TestWorker_ClaimErrorIsNotALoss(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output.csv")
	w := New(Config{
		Identity: "B",
		Claimer:  failingClaimer{},
		Chooser:  workload.FixedChooser(1),
		Recorder: recorder.New(recorder.Config{
			Workload: busyWork{},
			Log:      filestore.NewResultLog(path, time.Second),
			Stdout:   &bytes.Buffer{},
		}),
	})

	outcome, _, err := w.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, OutcomeNone, outcome)
	assert.NoFileExists(t, path, "no work after an ambiguous claim")
}

func TestWorker_DefaultsIdentityToHostname(t *testing.T) {
	host, err := os.Hostname()
	require.NoError(t, err)

	w := New(Config{Claimer: failingClaimer{}})
	assert.Equal(t, host, w.ID)
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "elected", OutcomeElected.String())
	assert.Equal(t, "recorded", OutcomeRecorded.String())
	assert.Equal(t, "none", OutcomeNone.String())
}
