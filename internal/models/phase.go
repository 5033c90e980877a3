package models

// Phase is one stage of a repetition cycle. Every exercise shares the same
// four-phase topology; exercises may relabel PhaseTop (e.g. "start").
type Phase int

const (
	PhaseTop Phase = iota
	PhaseDescending
	PhaseBottom
	PhaseAscending
)

// Phases lists all phases in cycle order.
var Phases = []Phase{PhaseTop, PhaseDescending, PhaseBottom, PhaseAscending}

func (p Phase) String() string {
	switch p {
	case PhaseTop:
		return "top"
	case PhaseDescending:
		return "descending"
	case PhaseBottom:
		return "bottom"
	case PhaseAscending:
		return "ascending"
	}
	return "invalid"
}

// ParsePhase parses a phase name. "start" is accepted as an alias of top.
func ParsePhase(s string) (Phase, bool) {
	switch s {
	case "top", "start":
		return PhaseTop, true
	case "descending":
		return PhaseDescending, true
	case "bottom":
		return PhaseBottom, true
	case "ascending":
		return PhaseAscending, true
	}
	return 0, false
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// Transition is a phase change emitted by the phase state machine.
type Transition struct {
	From   Phase              `json:"from"`
	To     Phase              `json:"to"`
	Frame  int                `json:"frame"`
	Values map[string]float64 `json:"values,omitempty"`
}
