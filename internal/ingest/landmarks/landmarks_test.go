package landmarks_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claude/repform/internal/config"
	"github.com/claude/repform/internal/ingest/landmarks"
	"github.com/claude/repform/internal/models"
	"github.com/claude/repform/internal/posetest"
	"github.com/claude/repform/internal/session"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestReaderParsesFrames verifies frame index, timestamp and landmarks are
// decoded, blank lines skipped and unknown joints ignored.
func TestReaderParsesFrames(t *testing.T) {
	input := `{"frame":3,"t":0.1,"landmarks":{"left_hip":[0.4,0.5,0.9],"left_pinky":[0,0,1]}}

{"frame":4,"t":0.2,"landmarks":{}}
`
	r := landmarks.NewReader(strings.NewReader(input))

	set, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, 3, set.Index)
	assert.Equal(t, 100*time.Millisecond, set.Timestamp)
	assert.Equal(t, models.Landmark{X: 0.4, Y: 0.5, Confidence: 0.9}, set.Points[models.LeftHip])
	assert.Len(t, set.Points, 1)

	set, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, 4, set.Index)
	assert.Equal(t, 3, r.Line())

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

// TestReaderLastLineWithoutNewline verifies the final frame is read even
// without a trailing newline.
func TestReaderLastLineWithoutNewline(t *testing.T) {
	r := landmarks.NewReader(strings.NewReader(`{"frame":0,"t":0,"landmarks":{}}`))
	set, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, 0, set.Index)
	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

// TestReaderErrors verifies malformed lines are reported with their line number.
func TestReaderErrors(t *testing.T) {
	tests := []struct {
		name string
		line string
		want string
	}{
		{"bad json", `{"frame":`, "decoding frame"},
		{"missing frame", `{"t":0.1,"landmarks":{}}`, "missing frame index"},
		{"negative time", `{"frame":2,"t":-1,"landmarks":{}}`, "invalid timestamp"},
		{"short landmark", `{"frame":2,"t":0.1,"landmarks":{"left_knee":[0.1,0.2]}}`, "left_knee"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := `{"frame":0,"t":0,"landmarks":{}}` + "\n\n" + tt.line + "\n"
			r := landmarks.NewReader(strings.NewReader(input))
			_, err := r.Next()
			require.NoError(t, err)
			_, err = r.Next()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "line 3")
			assert.Contains(t, err.Error(), tt.want)
			var perr *landmarks.ParseError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, 3, perr.Line)
		})
	}
}

// TestDecompress verifies gzip input is detected and plain input passes through.
func TestDecompress(t *testing.T) {
	plain := posetest.NDJSON(posetest.Frames([]float64{170, 160}))

	for name, input := range map[string][]byte{
		"plain": plain,
		"gzip":  posetest.Gzip(plain),
	} {
		t.Run(name, func(t *testing.T) {
			src, err := landmarks.Decompress(bytes.NewReader(input))
			require.NoError(t, err)
			got, err := io.ReadAll(src)
			require.NoError(t, err)
			assert.Equal(t, plain, got)
		})
	}
}

// TestRecordingRoundTrip verifies a generated recording decodes to the same
// landmarks.
func TestRecordingRoundTrip(t *testing.T) {
	want := posetest.Body(7, 120)
	r := landmarks.NewReader(bytes.NewReader(posetest.NDJSON([]models.LandmarkSet{want})))
	got, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, want.Index, got.Index)
	assert.Len(t, got.Points, len(want.Points))
	for j, lm := range want.Points {
		assert.InDelta(t, lm.X, got.Points[j].X, 1e-12, j)
		assert.InDelta(t, lm.Y, got.Points[j].Y, 1e-12, j)
	}
}

type fakeStore struct {
	session models.SessionRow
	reps    []models.RepRow
	err     error
}

func (s *fakeStore) InsertSession(_ context.Context, row models.SessionRow, reps []models.RepRow) error {
	if s.err != nil {
		return s.err
	}
	s.session = row
	s.reps = reps
	return nil
}

func newProvider(t *testing.T, store landmarks.Store) *landmarks.Provider {
	t.Helper()
	cfg, err := config.Example()
	require.NoError(t, err)
	return landmarks.NewProvider(cfg, store, quietLogger())
}

// TestIngestStoresSession verifies a gzipped two-squat recording is analyzed
// and stored with its reps.
func TestIngestStoresSession(t *testing.T) {
	store := &fakeStore{}
	p := newProvider(t, store)
	data := posetest.Gzip(posetest.NDJSON(posetest.Squats(80, 2)))

	res, err := p.Ingest(context.Background(), bytes.NewReader(data), 1, landmarks.Options{
		Source:   "squats.ndjson.gz",
		Exercise: models.Squat,
	})
	require.NoError(t, err)
	require.NotNil(t, res.SessionID)
	assert.Equal(t, 180, res.FramesReceived)
	assert.Equal(t, 2, res.RepsDetected)
	assert.Equal(t, "squat", res.Exercise)

	assert.Equal(t, *res.SessionID, store.session.ID)
	assert.Equal(t, 1, store.session.UserID)
	assert.Equal(t, "squats.ndjson.gz", store.session.Source)
	require.Len(t, store.reps, 2)
	assert.Equal(t, 1, store.reps[0].Number)
	assert.Equal(t, 2, store.reps[1].Number)
	assert.Equal(t, store.session.ID, store.reps[1].SessionID)
}

// TestIngestShallowFaults verifies rep faults are carried into storage rows.
func TestIngestShallowFaults(t *testing.T) {
	store := &fakeStore{}
	p := newProvider(t, store)
	data := posetest.NDJSON(posetest.Squats(140, 1))

	_, err := p.Ingest(context.Background(), bytes.NewReader(data), 1, landmarks.Options{Exercise: models.Squat})
	require.NoError(t, err)
	require.Len(t, store.reps, 1)

	var found bool
	for _, f := range store.reps[0].Faults {
		if f.Category == "insufficient_depth" {
			found = true
			assert.Equal(t, "major", f.Severity)
			assert.Equal(t, 1, f.RepNumber)
		}
	}
	assert.True(t, found, "insufficient_depth fault not stored")
}

// TestIngestWithoutStore verifies a nil store analyzes without persisting.
func TestIngestWithoutStore(t *testing.T) {
	p := newProvider(t, nil)
	data := posetest.NDJSON(posetest.Squats(80, 1))

	res, err := p.Ingest(context.Background(), bytes.NewReader(data), 1, landmarks.Options{Exercise: models.Squat})
	require.NoError(t, err)
	assert.Nil(t, res.SessionID)
	assert.Equal(t, 1, res.RepsDetected)
}

// TestIngestErrors verifies empty recordings, parse errors and store
// failures are returned.
func TestIngestErrors(t *testing.T) {
	p := newProvider(t, &fakeStore{})
	_, err := p.Ingest(context.Background(), strings.NewReader(""), 1, landmarks.Options{})
	assert.ErrorIs(t, err, landmarks.ErrEmptyRecording)

	_, err = p.Ingest(context.Background(), strings.NewReader("not json\n"), 1, landmarks.Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")

	storeErr := errors.New("db down")
	p = newProvider(t, &fakeStore{err: storeErr})
	data := posetest.NDJSON(posetest.Squats(80, 1))
	_, err = p.Ingest(context.Background(), bytes.NewReader(data), 1, landmarks.Options{Exercise: models.Squat})
	assert.ErrorIs(t, err, storeErr)
}

// TestAnalyzeOutOfOrderFrame verifies a repeated frame index is reported as
// a parse error on the offending line.
func TestAnalyzeOutOfOrderFrame(t *testing.T) {
	frames := posetest.Squats(80, 1)
	frames[5].Index = 4

	_, err := newProvider(t, nil).Analyze(context.Background(), bytes.NewReader(posetest.NDJSON(frames)), landmarks.Options{
		Exercise: models.Squat,
	})
	var perr *landmarks.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 6, perr.Line)
	assert.ErrorIs(t, err, session.ErrOutOfOrder)
}
