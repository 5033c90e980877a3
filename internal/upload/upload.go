package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/claude/repform/internal/importer"
	"github.com/claude/repform/internal/ingest/landmarks"
)

// Stats tracks upload progress.
type Stats struct {
	FilesTotal    int
	FilesUploaded int
	FilesSkipped  int
	FilesErrored  int

	RepsDetected int

	// Rejected lists recordings the server refused.
	Rejected []string
}

// Uploader walks a recordings directory and POSTs every new recording to the
// repform server. In dry-run mode recordings are analyzed locally instead.
type Uploader struct {
	client   *Client
	state    *StateDB
	dir      string
	dryRun   bool
	provider *landmarks.Provider
	log      *slog.Logger
	stats    Stats
}

// New creates a new Uploader. provider is only used in dry-run mode.
func New(client *Client, state *StateDB, dir string, dryRun bool, provider *landmarks.Provider, log *slog.Logger) *Uploader {
	return &Uploader{
		client:   client,
		state:    state,
		dir:      dir,
		dryRun:   dryRun,
		provider: provider,
		log:      log,
	}
}

// Run executes the upload pipeline. Per-file problems are counted and
// logged; a server that stays unreachable stops the run.
func (u *Uploader) Run(ctx context.Context) (*Stats, error) {
	files, err := importer.FindRecordings(u.dir)
	if err != nil {
		return &u.stats, fmt.Errorf("scanning %s: %w", u.dir, err)
	}

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return &u.stats, err
		}
		u.stats.FilesTotal++
		if err := u.uploadFile(ctx, f); err != nil {
			return &u.stats, err
		}
	}
	return &u.stats, nil
}

func (u *Uploader) uploadFile(ctx context.Context, path string) error {
	relPath, err := filepath.Rel(u.dir, path)
	if err != nil {
		relPath = path
	}

	info, err := os.Stat(path)
	if err != nil {
		u.log.Warn("stat failed", "file", relPath, "error", err)
		u.stats.FilesErrored++
		return nil
	}

	hash, err := HashFile(path)
	if err != nil {
		u.log.Warn("hash failed", "file", relPath, "error", err)
		u.stats.FilesErrored++
		return nil
	}

	uploaded, err := u.state.IsUploaded(relPath, info.Size(), hash)
	if err != nil {
		u.log.Warn("state check failed", "file", relPath, "error", err)
		u.stats.FilesErrored++
		return nil
	}
	if uploaded {
		u.stats.FilesSkipped++
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		u.log.Warn("read failed", "file", relPath, "error", err)
		u.stats.FilesErrored++
		return nil
	}
	exercise := importer.ExerciseFromName(path)

	if u.dryRun {
		sum, err := u.provider.Analyze(ctx, bytes.NewReader(data), landmarks.Options{
			Source:   relPath,
			Exercise: exercise,
		})
		if err != nil {
			u.log.Warn("analysis failed", "file", relPath, "error", err)
			u.stats.FilesErrored++
			return nil
		}
		u.log.Info("dry-run: would send",
			"file", relPath,
			"exercise", sum.Exercise,
			"reps", sum.TotalReps,
		)
		u.stats.RepsDetected += sum.TotalReps
		return nil
	}

	result, err := u.client.SendRecording(ctx, relPath, exercise, data)
	if errors.Is(err, ErrRejected) {
		u.log.Warn("recording rejected", "file", relPath, "error", err)
		u.stats.FilesErrored++
		u.stats.Rejected = append(u.stats.Rejected, relPath)
		return nil
	}
	if err != nil {
		return fmt.Errorf("sending %s: %w", relPath, err)
	}

	sessionID := ""
	if result.SessionID != nil {
		sessionID = result.SessionID.String()
	}
	if err := u.state.MarkUploaded(relPath, info.Size(), hash, sessionID, result.RepsDetected); err != nil {
		u.log.Warn("failed to mark uploaded", "file", relPath, "error", err)
	}
	u.stats.FilesUploaded++
	u.stats.RepsDetected += result.RepsDetected

	u.log.Info("uploaded recording",
		"file", relPath,
		"session", sessionID,
		"exercise", result.Exercise,
		"reps", result.RepsDetected,
	)
	return nil
}
