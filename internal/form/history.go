package form

import "github.com/claude/repform/internal/models"

// PhaseScores accumulates frame scores per phase for the rep in progress.
type PhaseScores struct {
	sum   [4]float64
	count [4]int
}

// Add records one frame score.
func (h *PhaseScores) Add(p models.Phase, score float64) {
	h.sum[p] += score
	h.count[p]++
}

// Mean returns the mean score of phase p, if any frame was recorded.
func (h *PhaseScores) Mean(p models.Phase) (float64, bool) {
	if h.count[p] == 0 {
		return 0, false
	}
	return h.sum[p] / float64(h.count[p]), true
}

// Means returns the per-phase means keyed by phase name.
func (h *PhaseScores) Means() map[string]float64 {
	out := make(map[string]float64, len(models.Phases))
	for _, p := range models.Phases {
		if m, ok := h.Mean(p); ok {
			out[p.String()] = m
		}
	}
	return out
}

// Reset clears the accumulator for the next rep.
func (h *PhaseScores) Reset() {
	*h = PhaseScores{}
}
