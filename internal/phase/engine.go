package phase

import "github.com/claude/repform/internal/models"

// Engine tracks the current phase of one session. A candidate phase must be
// indicated on Debounce consecutive frames before it is adopted, and the
// enter/exit thresholds of Top and Bottom are separated by a hysteresis band.
type Engine struct {
	table   RuleTable
	current models.Phase

	candidate models.Phase
	pending   bool
	streak    int
}

// NewEngine creates an engine in the top phase.
func NewEngine(table RuleTable) *Engine {
	return &Engine{table: table, current: models.PhaseTop}
}

// Table returns the engine's rule table.
func (e *Engine) Table() RuleTable { return e.table }

// Current returns the current phase.
func (e *Engine) Current() models.Phase { return e.current }

// Reset returns the engine to the top phase and drops any pending candidate.
func (e *Engine) Reset() {
	e.current = models.PhaseTop
	e.clearCandidate()
}

// Advance evaluates one frame. It returns the (possibly new) current phase
// and a transition when the phase changed on this frame.
func (e *Engine) Advance(f models.Features) (models.Phase, *models.Transition) {
	next, ok := e.target(f)
	if !ok {
		e.clearCandidate()
		return e.current, nil
	}
	if !e.pending || e.candidate != next {
		e.candidate = next
		e.pending = true
		e.streak = 0
	}
	e.streak++
	if e.streak < e.table.Debounce {
		return e.current, nil
	}

	tr := &models.Transition{From: e.current, To: next, Frame: f.Index, Values: e.triggerValues(f)}
	e.current = next
	e.clearCandidate()
	return e.current, tr
}

// target returns the phase the frame points to, if it differs from the
// current one.
func (e *Engine) target(f models.Features) (models.Phase, bool) {
	x, topExit, bottomEnter, bottomExit, topEnter := e.table.oriented(f.Must(e.table.Primary))

	switch e.current {
	case models.PhaseTop:
		if x < topExit {
			return models.PhaseDescending, true
		}
	case models.PhaseDescending:
		if x <= bottomEnter {
			return models.PhaseBottom, true
		}
		if x >= topEnter && e.table.guardsPass(f) {
			return models.PhaseTop, true
		}
	case models.PhaseBottom:
		if x > bottomExit {
			return models.PhaseAscending, true
		}
	case models.PhaseAscending:
		if x >= topEnter && e.table.guardsPass(f) {
			return models.PhaseTop, true
		}
		if x <= bottomEnter {
			return models.PhaseBottom, true
		}
	}
	return 0, false
}

func (e *Engine) triggerValues(f models.Features) map[string]float64 {
	out := map[string]float64{e.table.Primary: f.Must(e.table.Primary)}
	for _, g := range e.table.TopGuards {
		if v, ok := f.Get(g.Feature); ok {
			out[g.Feature] = v
		}
	}
	return out
}

func (e *Engine) clearCandidate() {
	e.pending = false
	e.streak = 0
}
