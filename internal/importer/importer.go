package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/claude/repform/internal/config"
	"github.com/claude/repform/internal/ingest/landmarks"
)

// Stats tracks import progress.
type Stats struct {
	FilesProcessed int
	FilesSkipped   int
	FilesErrored   int

	FramesAnalyzed int
	FramesSkipped  int
	RepsDetected   int
	RepsAborted    int

	// Unrecognized lists recordings whose exercise could not be determined.
	Unrecognized []string
}

// Importer analyzes a directory of landmark recordings and stores the sessions.
type Importer struct {
	provider *landmarks.Provider
	log      *slog.Logger
	dryRun   bool
	userID   int
	stats    Stats
}

// New creates a new Importer. In dry-run mode nothing is written to store.
func New(cfg *config.Config, store landmarks.Store, log *slog.Logger, dryRun bool) *Importer {
	if dryRun {
		store = nil
	}
	return &Importer{
		provider: landmarks.NewProvider(cfg, store, log),
		log:      log,
		dryRun:   dryRun,
		userID:   1,
	}
}

// Import processes every recording under dir. Malformed or empty recordings
// are counted and skipped; a storage failure or cancellation stops the run.
func (imp *Importer) Import(ctx context.Context, dir string) (*Stats, error) {
	files, err := FindRecordings(dir)
	if err != nil {
		return &imp.stats, fmt.Errorf("scanning %s: %w", dir, err)
	}

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return &imp.stats, err
		}
		if err := imp.importFile(ctx, dir, path); err != nil {
			return &imp.stats, err
		}
	}
	return &imp.stats, nil
}

func (imp *Importer) importFile(ctx context.Context, dir, path string) error {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		rel = path
	}

	f, err := os.Open(path)
	if err != nil {
		imp.log.Warn("open failed", "file", rel, "error", err)
		imp.stats.FilesErrored++
		return nil
	}
	defer f.Close()

	res, err := imp.provider.Ingest(ctx, f, imp.userID, landmarks.Options{
		Source:   rel,
		Exercise: ExerciseFromName(path),
	})
	var perr *landmarks.ParseError
	switch {
	case errors.Is(err, landmarks.ErrEmptyRecording):
		imp.stats.FilesSkipped++
		return nil
	case errors.As(err, &perr):
		imp.log.Warn("parse failed", "file", rel, "line", perr.Line, "error", perr.Err)
		imp.stats.FilesErrored++
		return nil
	case err != nil:
		return fmt.Errorf("importing %s: %w", rel, err)
	}

	imp.stats.FilesProcessed++
	imp.stats.FramesAnalyzed += res.FramesReceived
	imp.stats.FramesSkipped += res.FramesSkipped
	imp.stats.RepsDetected += res.RepsDetected
	imp.stats.RepsAborted += res.RepsAborted
	if res.Message != "" {
		imp.stats.Unrecognized = append(imp.stats.Unrecognized, rel)
	}
	imp.log.Info("recording imported",
		"file", rel,
		"exercise", res.Exercise,
		"reps", res.RepsDetected,
		"dry_run", imp.dryRun,
	)
	return nil
}
