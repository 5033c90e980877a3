package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionRow is a row ready for insertion into the sessions table.
type SessionRow struct {
	ID             uuid.UUID      `json:"id"`
	UserID         int            `json:"user_id"`
	Source         string         `json:"source"`
	Exercise       string         `json:"exercise"`
	Status         string         `json:"status"`
	CreatedAt      time.Time      `json:"created_at"`
	FramesTotal    int            `json:"frames_total"`
	FramesSkipped  int            `json:"frames_skipped"`
	TotalReps      int            `json:"total_reps"`
	AbortedReps    int            `json:"aborted_reps"`
	MeanQuality    float64        `json:"mean_quality"`
	FaultHistogram map[string]int `json:"fault_histogram"`
	PhaseFrames    map[string]int `json:"phase_frames"`
}

// RepRow is a row for the reps table.
type RepRow struct {
	SessionID      uuid.UUID          `json:"session_id"`
	Number         int                `json:"number"`
	StartFrame     int                `json:"start_frame"`
	EndFrame       int                `json:"end_frame"`
	DurationFrames int                `json:"duration_frames"`
	DurationSec    float64            `json:"duration_sec"`
	MinDepth       float64            `json:"min_depth"`
	MaxDepth       float64            `json:"max_depth"`
	Quality        float64            `json:"quality"`
	PhaseScores    map[string]float64 `json:"phase_scores"`
	Faults         []RepFaultRow      `json:"faults"`
}

// RepFaultRow is a row for the rep_faults table.
type RepFaultRow struct {
	SessionID uuid.UUID `json:"-"`
	RepNumber int       `json:"rep_number"`
	Category  string    `json:"category"`
	Severity  string    `json:"severity"`
	Phase     string    `json:"phase"`
	Message   string    `json:"message"`
}

// NewSessionRows converts a finished session summary into storage rows.
func NewSessionRows(id uuid.UUID, userID int, source string, sum SessionSummary) (SessionRow, []RepRow) {
	row := SessionRow{
		ID:             id,
		UserID:         userID,
		Source:         source,
		Exercise:       string(sum.Exercise),
		Status:         sum.Status,
		FramesTotal:    sum.FramesTotal,
		FramesSkipped:  sum.FramesSkipped,
		TotalReps:      sum.TotalReps,
		AbortedReps:    sum.AbortedReps,
		MeanQuality:    sum.MeanQuality,
		FaultHistogram: sum.FaultHistogram,
		PhaseFrames:    sum.PhaseFrames,
	}

	reps := make([]RepRow, 0, len(sum.Reps))
	for _, r := range sum.Reps {
		rr := RepRow{
			SessionID:      id,
			Number:         r.Number,
			StartFrame:     r.StartFrame,
			EndFrame:       r.EndFrame,
			DurationFrames: r.DurationFrames,
			DurationSec:    r.Duration.Seconds(),
			MinDepth:       r.MinDepth,
			MaxDepth:       r.MaxDepth,
			Quality:        r.Quality,
			PhaseScores:    r.PhaseScores,
		}
		for _, f := range r.Faults {
			rr.Faults = append(rr.Faults, RepFaultRow{
				SessionID: id,
				RepNumber: r.Number,
				Category:  f.Category,
				Severity:  string(f.Severity),
				Phase:     f.Phase.String(),
				Message:   f.Message,
			})
		}
		reps = append(reps, rr)
	}
	return row, reps
}
