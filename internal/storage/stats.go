package storage

import (
	"context"
	"fmt"
	"time"
)

// DataStats holds aggregate statistics about a user's stored sessions.
type DataStats struct {
	TotalSessions      int64          `json:"total_sessions"`
	TotalReps          int64          `json:"total_reps"`
	AbortedReps        int64          `json:"aborted_reps"`
	EarliestSession    *time.Time     `json:"earliest_session"`
	LatestSession      *time.Time     `json:"latest_session"`
	SessionsByExercise []ExerciseStat `json:"sessions_by_exercise"`
}

// ExerciseStat holds summary stats for a single exercise.
type ExerciseStat struct {
	Exercise    string  `json:"exercise"`
	Sessions    int64   `json:"sessions"`
	Reps        int64   `json:"reps"`
	MeanQuality float64 `json:"mean_quality"`
}

// FaultStat counts how often one fault category occurred.
type FaultStat struct {
	Exercise string `json:"exercise"`
	Category string `json:"category"`
	Severity string `json:"severity"`
	Reps     int64  `json:"reps"`
	Sessions int64  `json:"sessions"`
}

// GetDataStats returns aggregate statistics for a user's stored sessions.
func (db *DB) GetDataStats(ctx context.Context, userID int) (*DataStats, error) {
	stats := &DataStats{}

	err := db.Pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(total_reps), 0), COALESCE(SUM(aborted_reps), 0),
		 MIN(created_at), MAX(created_at)
		 FROM sessions WHERE user_id = $1`, userID,
	).Scan(&stats.TotalSessions, &stats.TotalReps, &stats.AbortedReps,
		&stats.EarliestSession, &stats.LatestSession)
	if err != nil {
		return nil, fmt.Errorf("counting sessions: %w", err)
	}

	// Mean quality is weighted by rep count so empty sessions do not drag it down.
	rows, err := db.Pool.Query(ctx,
		`SELECT exercise, COUNT(*), COALESCE(SUM(total_reps), 0),
		 COALESCE(SUM(mean_quality * total_reps) / NULLIF(SUM(total_reps), 0), 0)
		 FROM sessions
		 WHERE user_id = $1
		 GROUP BY exercise
		 ORDER BY COUNT(*) DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying sessions by exercise: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s ExerciseStat
		if err := rows.Scan(&s.Exercise, &s.Sessions, &s.Reps, &s.MeanQuality); err != nil {
			return nil, fmt.Errorf("scanning exercise stat: %w", err)
		}
		stats.SessionsByExercise = append(stats.SessionsByExercise, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return stats, nil
}

// GetFaultStats returns fault frequencies over a time range, most frequent first.
func (db *DB) GetFaultStats(ctx context.Context, userID int, start, end time.Time, exercise string) ([]FaultStat, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT s.exercise, f.category, f.severity, COUNT(*), COUNT(DISTINCT s.id)
		 FROM rep_faults f
		 JOIN sessions s ON s.id = f.session_id
		 WHERE s.user_id = $1 AND s.created_at >= $2 AND s.created_at < $3
		   AND ($4 = '' OR s.exercise = $4)
		 GROUP BY s.exercise, f.category, f.severity
		 ORDER BY COUNT(*) DESC, f.category ASC`,
		userID, start, end, exercise)
	if err != nil {
		return nil, fmt.Errorf("querying fault stats: %w", err)
	}
	defer rows.Close()

	var result []FaultStat
	for rows.Next() {
		var s FaultStat
		if err := rows.Scan(&s.Exercise, &s.Category, &s.Severity, &s.Reps, &s.Sessions); err != nil {
			return nil, fmt.Errorf("scanning fault stat: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}
