// Package form scores frames and closed reps against a config-driven rule
// list. Nothing here knows which exercise it is scoring.
package form

import (
	"math"
	"slices"

	"github.com/claude/repform/internal/config"
	"github.com/claude/repform/internal/models"
)

// Perfect is the score of a frame or rep with no faults.
const Perfect = 100.0

type rule struct {
	config.Rule
	phases    []models.Phase
	threshold float64
}

func (r rule) appliesTo(p models.Phase) bool {
	return len(r.phases) == 0 || slices.Contains(r.phases, p)
}

func (r rule) fault(p models.Phase) models.Fault {
	return models.Fault{Category: r.Category, Severity: models.Severity(r.Severity), Phase: p, Message: r.Message}
}

// repPhase is the phase a rep-scope fault is attributed to: the first phase
// the rule names, else Bottom.
func (r rule) repPhase() models.Phase {
	if len(r.phases) > 0 {
		return r.phases[0]
	}
	return models.PhaseBottom
}

// Evaluator applies one exercise's form profile.
type Evaluator struct {
	cutoff  float64
	weights map[models.Phase]float64
	frame   []rule
	rep     []rule
}

// NewEvaluator compiles a validated form profile.
func NewEvaluator(profile config.FormProfile) *Evaluator {
	e := &Evaluator{
		cutoff:  profile.GoodFormCutoff,
		weights: make(map[models.Phase]float64, len(profile.PhaseWeights)),
	}
	for name, w := range profile.PhaseWeights {
		if p, ok := models.ParsePhase(name); ok {
			e.weights[p] = w
		}
	}
	for _, r := range profile.Rules {
		cr := rule{Rule: r, threshold: *r.Threshold}
		for _, name := range r.Phases {
			if p, ok := models.ParsePhase(name); ok {
				cr.phases = append(cr.phases, p)
			}
		}
		if r.Scope == "rep" {
			e.rep = append(e.rep, cr)
		} else {
			e.frame = append(e.frame, cr)
		}
	}
	return e
}

// ScoreFrame applies the frame-scope rules for phase. The score starts at
// Perfect and loses each violated rule's weight.
func (e *Evaluator) ScoreFrame(f models.Features, phase models.Phase) (float64, []models.Fault) {
	score := Perfect
	var faults []models.Fault
	for _, r := range e.frame {
		if !r.appliesTo(phase) {
			continue
		}
		if config.Compare(r.Op, f.Must(r.Metric), r.threshold) {
			score -= r.Weight
			faults = append(faults, r.fault(phase))
		}
	}
	return clamp(score), faults
}

// ScoreRep returns the quality of a closed rep: the phase-weighted mean of
// its frame scores, less the weight of every violated rep-scope rule. A rep
// starts on leaving top, so the mean never includes top frames.
func (e *Evaluator) ScoreRep(rep models.RepRecord, history *PhaseScores) (float64, []models.Fault) {
	base := Perfect
	if history != nil {
		base = e.weightedMean(history)
	}
	var faults []models.Fault
	for _, r := range e.rep {
		if config.Compare(r.Op, repMetric(rep, r.Metric), r.threshold) {
			base -= r.Weight
			faults = append(faults, r.fault(r.repPhase()))
		}
	}
	return clamp(base), faults
}

// GoodForm reports whether score meets the profile's good-form cutoff.
func (e *Evaluator) GoodForm(score float64) bool {
	return score >= e.cutoff
}

// weightedMean averages per-phase means over the phases that were observed,
// renormalizing the configured weights over those phases.
func (e *Evaluator) weightedMean(h *PhaseScores) float64 {
	var sum, wsum float64
	for _, p := range models.Phases {
		mean, ok := h.Mean(p)
		if !ok {
			continue
		}
		w := e.weights[p]
		sum += w * mean
		wsum += w
	}
	if wsum == 0 {
		return Perfect
	}
	return sum / wsum
}

func repMetric(rep models.RepRecord, metric string) float64 {
	switch metric {
	case "min_depth":
		return rep.MinDepth
	case "max_depth":
		return rep.MaxDepth
	case "duration_frames":
		return float64(rep.DurationFrames)
	case "duration_seconds":
		return rep.Duration.Seconds()
	}
	panic("form: unknown rep metric " + metric)
}

func clamp(s float64) float64 {
	return math.Max(0, math.Min(Perfect, s))
}
