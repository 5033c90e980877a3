package ingest

import "github.com/google/uuid"

// Result holds the outcome of analyzing and storing one recording.
type Result struct {
	SessionID      *uuid.UUID     `json:"session_id,omitempty"`
	Exercise       string         `json:"exercise"`
	Status         string         `json:"status"`
	FramesReceived int            `json:"frames_received"`
	FramesSkipped  int            `json:"frames_skipped"`
	RepsDetected   int            `json:"reps_detected"`
	RepsAborted    int            `json:"reps_aborted"`
	MeanQuality    float64        `json:"mean_quality"`
	FaultHistogram map[string]int `json:"fault_histogram,omitempty"`

	Message string `json:"message,omitempty"`
}
