package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ImportLog represents a single recording analysis outcome.
type ImportLog struct {
	ID             int64      `json:"id"`
	UserID         int        `json:"user_id"`
	CreatedAt      time.Time  `json:"created_at"`
	Source         string     `json:"source"`
	Status         string     `json:"status"`
	FramesReceived int        `json:"frames_received"`
	FramesSkipped  int        `json:"frames_skipped"`
	RepsDetected   int        `json:"reps_detected"`
	SessionID      *uuid.UUID `json:"session_id"`
	DurationMs     *int       `json:"duration_ms"`
	ErrorMessage   *string    `json:"error_message"`
}

// InsertImportLog creates a new import log entry and returns its ID.
func (db *DB) InsertImportLog(ctx context.Context, log ImportLog) (int64, error) {
	var id int64
	err := db.Pool.QueryRow(ctx,
		`INSERT INTO import_logs (user_id, source, status, frames_received, frames_skipped,
		 reps_detected, session_id, duration_ms, error_message)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		 RETURNING id`,
		log.UserID, log.Source, log.Status, log.FramesReceived, log.FramesSkipped,
		log.RepsDetected, log.SessionID, log.DurationMs, log.ErrorMessage,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting import log: %w", err)
	}
	return id, nil
}

// UpdateImportLog updates an existing import log entry (typically from "running" to "success" or "error").
func (db *DB) UpdateImportLog(ctx context.Context, id int64, log ImportLog) error {
	_, err := db.Pool.Exec(ctx,
		`UPDATE import_logs SET
		 status = $2, frames_received = $3, frames_skipped = $4, reps_detected = $5,
		 session_id = $6, duration_ms = $7, error_message = $8
		 WHERE id = $1`,
		id, log.Status, log.FramesReceived, log.FramesSkipped, log.RepsDetected,
		log.SessionID, log.DurationMs, log.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("updating import log %d: %w", id, err)
	}
	return nil
}

// QueryImportLogs returns the most recent import logs for a user.
func (db *DB) QueryImportLogs(ctx context.Context, userID, limit int) ([]ImportLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Pool.Query(ctx,
		`SELECT id, user_id, created_at, source, status, frames_received, frames_skipped,
		 reps_detected, session_id, duration_ms, error_message
		 FROM import_logs
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying import logs: %w", err)
	}
	defer rows.Close()

	var result []ImportLog
	for rows.Next() {
		var l ImportLog
		if err := rows.Scan(&l.ID, &l.UserID, &l.CreatedAt, &l.Source, &l.Status,
			&l.FramesReceived, &l.FramesSkipped, &l.RepsDetected, &l.SessionID,
			&l.DurationMs, &l.ErrorMessage); err != nil {
			return nil, fmt.Errorf("scanning import log: %w", err)
		}
		result = append(result, l)
	}
	return result, rows.Err()
}
