package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/claude/repform/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrNotFound is returned when a requested row does not exist for the user.
var ErrNotFound = errors.New("not found")

// SessionFilter narrows a session listing.
type SessionFilter struct {
	Start    time.Time
	End      time.Time
	Exercise string // empty matches every exercise
	Limit    int
}

// InsertSession stores a session with its reps and rep faults in one
// transaction. The session's created_at is set by the database when zero.
func (db *DB) InsertSession(ctx context.Context, s models.SessionRow, reps []models.RepRow) error {
	return pgx.BeginFunc(ctx, db.Pool, func(tx pgx.Tx) error {
		created := s.CreatedAt
		if created.IsZero() {
			created = time.Now().UTC()
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO sessions (id, user_id, source, exercise, status, created_at,
			 frames_total, frames_skipped, total_reps, aborted_reps, mean_quality,
			 fault_histogram, phase_frames)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
			s.ID, s.UserID, s.Source, s.Exercise, s.Status, created,
			s.FramesTotal, s.FramesSkipped, s.TotalReps, s.AbortedReps, s.MeanQuality,
			nonNilCounts(s.FaultHistogram), nonNilCounts(s.PhaseFrames))
		if err != nil {
			return fmt.Errorf("inserting session: %w", err)
		}

		if err := insertReps(ctx, tx, reps); err != nil {
			return err
		}

		var faults []models.RepFaultRow
		for _, r := range reps {
			faults = append(faults, r.Faults...)
		}
		return insertRepFaults(ctx, tx, faults)
	})
}

func insertReps(ctx context.Context, tx pgx.Tx, reps []models.RepRow) error {
	if len(reps) == 0 {
		return nil
	}

	query := `INSERT INTO reps (session_id, number, start_frame, end_frame, duration_frames,
	 duration_sec, min_depth, max_depth, quality, phase_scores) VALUES `
	args := make([]any, 0, len(reps)*10)
	valueStrings := make([]string, 0, len(reps))

	for i, r := range reps {
		base := i * 10
		valueStrings = append(valueStrings, fmt.Sprintf(
			"($%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10,
		))
		scores := r.PhaseScores
		if scores == nil {
			scores = map[string]float64{}
		}
		args = append(args, r.SessionID, r.Number, r.StartFrame, r.EndFrame, r.DurationFrames,
			r.DurationSec, r.MinDepth, r.MaxDepth, r.Quality, scores)
	}

	if _, err := tx.Exec(ctx, query+strings.Join(valueStrings, ","), args...); err != nil {
		return fmt.Errorf("inserting reps: %w", err)
	}
	return nil
}

func insertRepFaults(ctx context.Context, tx pgx.Tx, faults []models.RepFaultRow) error {
	if len(faults) == 0 {
		return nil
	}

	query := `INSERT INTO rep_faults (session_id, rep_number, category, severity, phase, message) VALUES `
	args := make([]any, 0, len(faults)*6)
	valueStrings := make([]string, 0, len(faults))

	for i, f := range faults {
		base := i * 6
		valueStrings = append(valueStrings, fmt.Sprintf(
			"($%d,$%d,$%d,$%d,$%d,$%d)",
			base+1, base+2, base+3, base+4, base+5, base+6,
		))
		args = append(args, f.SessionID, f.RepNumber, f.Category, f.Severity, f.Phase, f.Message)
	}

	query += strings.Join(valueStrings, ",") + " ON CONFLICT DO NOTHING"
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting rep faults: %w", err)
	}
	return nil
}

const sessionColumns = `id, user_id, source, exercise, status, created_at,
	 frames_total, frames_skipped, total_reps, aborted_reps, mean_quality,
	 fault_histogram, phase_frames`

// QuerySessions lists a user's sessions, newest first.
func (db *DB) QuerySessions(ctx context.Context, userID int, f SessionFilter) ([]models.SessionRow, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	end := f.End
	if end.IsZero() {
		end = time.Now().Add(time.Minute)
	}

	rows, err := db.Pool.Query(ctx,
		`SELECT `+sessionColumns+`
		 FROM sessions
		 WHERE user_id = $1 AND created_at >= $2 AND created_at < $3
		   AND ($4 = '' OR exercise = $4)
		 ORDER BY created_at DESC
		 LIMIT $5`,
		userID, f.Start, end, f.Exercise, limit)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var result []models.SessionRow
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

// GetSession returns one session. ErrNotFound is returned when the session
// does not exist or belongs to another user.
func (db *DB) GetSession(ctx context.Context, id uuid.UUID, userID int) (*models.SessionRow, error) {
	row := db.Pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1 AND user_id = $2`,
		id, userID)
	s, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// QueryReps returns a session's reps in order with their faults attached.
func (db *DB) QueryReps(ctx context.Context, sessionID uuid.UUID, userID int) ([]models.RepRow, error) {
	if _, err := db.GetSession(ctx, sessionID, userID); err != nil {
		return nil, err
	}

	rows, err := db.Pool.Query(ctx,
		`SELECT session_id, number, start_frame, end_frame, duration_frames,
		 duration_sec, min_depth, max_depth, quality, phase_scores
		 FROM reps
		 WHERE session_id = $1
		 ORDER BY number ASC`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying reps: %w", err)
	}
	defer rows.Close()

	var reps []models.RepRow
	index := map[int]int{}
	for rows.Next() {
		var r models.RepRow
		if err := rows.Scan(&r.SessionID, &r.Number, &r.StartFrame, &r.EndFrame, &r.DurationFrames,
			&r.DurationSec, &r.MinDepth, &r.MaxDepth, &r.Quality, &r.PhaseScores); err != nil {
			return nil, fmt.Errorf("scanning rep: %w", err)
		}
		index[r.Number] = len(reps)
		reps = append(reps, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	faultRows, err := db.Pool.Query(ctx,
		`SELECT session_id, rep_number, category, severity, phase, message
		 FROM rep_faults
		 WHERE session_id = $1
		 ORDER BY rep_number ASC, category ASC`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying rep faults: %w", err)
	}
	defer faultRows.Close()

	for faultRows.Next() {
		var f models.RepFaultRow
		if err := faultRows.Scan(&f.SessionID, &f.RepNumber, &f.Category, &f.Severity, &f.Phase, &f.Message); err != nil {
			return nil, fmt.Errorf("scanning rep fault: %w", err)
		}
		if i, ok := index[f.RepNumber]; ok {
			reps[i].Faults = append(reps[i].Faults, f)
		}
	}
	return reps, faultRows.Err()
}

// DeleteSession removes a session; reps and faults cascade.
func (db *DB) DeleteSession(ctx context.Context, id uuid.UUID, userID int) error {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("deleting session %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanSession(row pgx.Row) (models.SessionRow, error) {
	var s models.SessionRow
	err := row.Scan(&s.ID, &s.UserID, &s.Source, &s.Exercise, &s.Status, &s.CreatedAt,
		&s.FramesTotal, &s.FramesSkipped, &s.TotalReps, &s.AbortedReps, &s.MeanQuality,
		&s.FaultHistogram, &s.PhaseFrames)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return s, fmt.Errorf("scanning session: %w", err)
	}
	return s, err
}

func nonNilCounts(m map[string]int) map[string]int {
	if m == nil {
		return map[string]int{}
	}
	return m
}
