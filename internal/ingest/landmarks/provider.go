package landmarks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/claude/repform/internal/config"
	"github.com/claude/repform/internal/feedback"
	"github.com/claude/repform/internal/ingest"
	"github.com/claude/repform/internal/models"
	"github.com/claude/repform/internal/session"
	"github.com/google/uuid"
)

// ErrEmptyRecording is returned for a recording without a single frame.
var ErrEmptyRecording = errors.New("recording has no frames")

// Store persists analyzed sessions. *storage.DB implements it.
type Store interface {
	InsertSession(ctx context.Context, s models.SessionRow, reps []models.RepRow) error
}

// Options configures one analysis run.
type Options struct {
	// Source labels where the recording came from (file name, device).
	Source string
	// Exercise forces the exercise kind; Unknown uses the config.
	Exercise  models.ExerciseKind
	Publisher feedback.Publisher
	// OnFrame, if set, observes every frame result.
	OnFrame func(session.FrameResult)
}

// Provider analyzes NDJSON landmark recordings.
type Provider struct {
	cfg   *config.Config
	store Store
	log   *slog.Logger
}

// NewProvider creates a provider. A nil store analyzes without persisting.
func NewProvider(cfg *config.Config, store Store, log *slog.Logger) *Provider {
	return &Provider{cfg: cfg, store: store, log: log}
}

// Analyze runs one session over the recording in r. Gzip-compressed input is
// detected and decompressed.
func (p *Provider) Analyze(ctx context.Context, r io.Reader, opts Options) (models.SessionSummary, error) {
	src, err := Decompress(r)
	if err != nil {
		return models.SessionSummary{}, err
	}
	sess, err := session.New(p.cfg, session.Options{
		Forced:    opts.Exercise,
		Publisher: opts.Publisher,
		Log:       p.log.With("source", opts.Source),
	})
	if err != nil {
		return models.SessionSummary{}, err
	}

	reader := NewReader(src)
	sum, err := sess.Run(ctx, reader, opts.OnFrame)
	if errors.Is(err, session.ErrOutOfOrder) {
		// A repeated or backwards frame index is bad input, like a syntax error.
		err = &ParseError{Line: reader.Line(), Err: err}
	}
	if err != nil {
		return sum, fmt.Errorf("analyzing %s: %w", opts.Source, err)
	}
	if sum.FramesTotal == 0 {
		return sum, ErrEmptyRecording
	}
	return sum, nil
}

// Ingest analyzes a recording and stores the resulting session for userID.
func (p *Provider) Ingest(ctx context.Context, r io.Reader, userID int, opts Options) (*ingest.Result, error) {
	sum, err := p.Analyze(ctx, r, opts)
	if err != nil {
		return nil, err
	}

	result := &ingest.Result{
		Exercise:       string(sum.Exercise),
		Status:         sum.Status,
		FramesReceived: sum.FramesTotal,
		FramesSkipped:  sum.FramesSkipped,
		RepsDetected:   sum.TotalReps,
		RepsAborted:    sum.AbortedReps,
		MeanQuality:    sum.MeanQuality,
		FaultHistogram: sum.FaultHistogram,
	}
	if !sum.Exercise.Known() {
		result.Message = "exercise could not be recognized"
	}

	if p.store == nil {
		return result, nil
	}

	id := uuid.New()
	row, reps := models.NewSessionRows(id, userID, opts.Source, sum)
	if err := p.store.InsertSession(ctx, row, reps); err != nil {
		return nil, fmt.Errorf("storing session: %w", err)
	}
	result.SessionID = &id

	p.log.Info("session stored",
		"session", id,
		"exercise", sum.Exercise,
		"reps", sum.TotalReps,
		"frames", sum.FramesTotal,
	)
	return result, nil
}
