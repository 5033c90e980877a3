package models

import "time"

// Severity grades a form fault.
type Severity string

const (
	SeverityMinor Severity = "minor"
	SeverityMajor Severity = "major"
)

// Fault is a detected deviation from good form.
type Fault struct {
	Category string   `json:"category"`
	Severity Severity `json:"severity"`
	Phase    Phase    `json:"phase"`
	Message  string   `json:"message"`
}

// RepRecord is one completed repetition. It is immutable once closed.
type RepRecord struct {
	Number         int                `json:"number"`
	StartFrame     int                `json:"start_frame"`
	EndFrame       int                `json:"end_frame"`
	DurationFrames int                `json:"duration_frames"`
	Duration       time.Duration      `json:"duration"`
	MinDepth       float64            `json:"min_depth"`
	MaxDepth       float64            `json:"max_depth"`
	Quality        float64            `json:"quality"`
	PhaseScores    map[string]float64 `json:"phase_scores,omitempty"`
	Faults         []Fault            `json:"faults,omitempty"`
}

// AnnouncementKind tells the feedback collaborator how to render a message.
type AnnouncementKind string

const (
	AnnounceWarning AnnouncementKind = "warning"
	AnnouncePraise  AnnouncementKind = "praise"
)

// Announcement is one deduplicated feedback message handed to the speech or
// visual layer. Seq increases monotonically within a session.
type Announcement struct {
	Seq      uint64           `json:"seq"`
	Kind     AnnouncementKind `json:"kind"`
	Category string           `json:"category,omitempty"`
	Message  string           `json:"message"`
	Frame    int              `json:"frame"`
}

// SessionSummary aggregates a finished session.
type SessionSummary struct {
	Exercise       ExerciseKind   `json:"exercise"`
	Status         string         `json:"status"`
	FramesTotal    int            `json:"frames_total"`
	FramesSkipped  int            `json:"frames_skipped"`
	TotalReps      int            `json:"total_reps"`
	AbortedReps    int            `json:"aborted_reps"`
	MeanQuality    float64        `json:"mean_quality"`
	FaultHistogram map[string]int `json:"fault_histogram"`
	PhaseFrames    map[string]int `json:"phase_frames"`
	Reps           []RepRecord    `json:"reps"`
}
