// Package phase implements the generic movement-phase state machine. Every
// exercise runs the same engine; only its RuleTable differs.
package phase

import (
	"github.com/claude/repform/internal/config"
	"github.com/claude/repform/internal/models"
)

// Direction says which way the primary signal moves toward the bottom.
type Direction int

const (
	// Decreasing signals fall toward the bottom (joint angles closing).
	Decreasing Direction = iota
	// Increasing signals rise toward the bottom (e.g. a y coordinate).
	Increasing
)

// Guard is an extra feature condition for re-entering the top phase.
type Guard struct {
	Feature string
	Op      string
	Value   float64
}

// RuleTable parameterizes the engine for one exercise.
type RuleTable struct {
	Primary   string
	Direction Direction

	TopExit     float64
	BottomEnter float64
	BottomExit  float64
	TopEnter    float64

	Debounce  int
	TopGuards []Guard
	TopLabel  string
}

// TableFrom builds a RuleTable from a validated phase config.
func TableFrom(cfg config.PhaseConfig) RuleTable {
	t := RuleTable{
		Primary:     cfg.Primary,
		TopExit:     cfg.TopExit,
		BottomEnter: cfg.BottomEnter,
		BottomExit:  cfg.BottomExit,
		TopEnter:    cfg.TopEnter,
		Debounce:    cfg.Debounce,
		TopLabel:    cfg.TopLabel,
	}
	if cfg.Direction == "increasing" {
		t.Direction = Increasing
	}
	if t.TopLabel == "" {
		t.TopLabel = models.PhaseTop.String()
	}
	for _, g := range cfg.TopGuards {
		t.TopGuards = append(t.TopGuards, Guard{Feature: g.Feature, Op: g.Op, Value: g.Value})
	}
	return t
}

// Label returns the display name of p for this exercise.
func (t RuleTable) Label(p models.Phase) string {
	if p == models.PhaseTop {
		return t.TopLabel
	}
	return p.String()
}

// oriented flips the primary value and thresholds of an increasing table so
// the engine can always treat "deeper" as "smaller".
func (t RuleTable) oriented(v float64) (x, topExit, bottomEnter, bottomExit, topEnter float64) {
	if t.Direction == Increasing {
		return -v, -t.TopExit, -t.BottomEnter, -t.BottomExit, -t.TopEnter
	}
	return v, t.TopExit, t.BottomEnter, t.BottomExit, t.TopEnter
}

func (t RuleTable) guardsPass(f models.Features) bool {
	for _, g := range t.TopGuards {
		v, ok := f.Get(g.Feature)
		if !ok || !config.Compare(g.Op, v, g.Value) {
			return false
		}
	}
	return true
}
