// Package reps turns the phase transition stream into repetition records.
package reps

import (
	"fmt"
	"math"
	"time"

	"github.com/claude/repform/internal/models"
)

// Outcome says what a transition did to the open rep.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeOpened
	OutcomeClosed
	OutcomeAborted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOpened:
		return "opened"
	case OutcomeClosed:
		return "closed"
	case OutcomeAborted:
		return "aborted"
	}
	return "none"
}

// Counter opens a rep when the body leaves the top, closes it when it returns
// there after passing through the bottom, and discards it when it returns
// without reaching the bottom. At most one rep is open at a time.
type Counter struct {
	fps     float64
	open    *models.RepRecord
	bottom  bool
	closed  []models.RepRecord
	aborted int
	lastEnd int
}

// NewCounter creates a Counter that converts frame counts to wall time at fps.
func NewCounter(fps float64) *Counter {
	return &Counter{fps: fps, lastEnd: -1}
}

// Observe folds the frame's primary value into the open rep's depth extrema
// while the phase is Bottom.
func (c *Counter) Observe(phase models.Phase, f models.Features, primary string) {
	if c.open == nil || phase != models.PhaseBottom {
		return
	}
	v, ok := f.Get(primary)
	if !ok {
		return
	}
	c.open.MinDepth = math.Min(c.open.MinDepth, v)
	c.open.MaxDepth = math.Max(c.open.MaxDepth, v)
}

// OnTransition applies one phase transition. A closed rep is returned by
// value together with OutcomeClosed.
func (c *Counter) OnTransition(t models.Transition) (*models.RepRecord, Outcome) {
	switch {
	case t.From == models.PhaseTop && t.To == models.PhaseDescending:
		if t.Frame <= c.lastEnd {
			panic(fmt.Sprintf("reps: rep opened at frame %d before previous end %d", t.Frame, c.lastEnd))
		}
		c.open = &models.RepRecord{
			StartFrame: t.Frame,
			MinDepth:   math.Inf(1),
			MaxDepth:   math.Inf(-1),
		}
		c.bottom = false
		return nil, OutcomeOpened

	case t.To == models.PhaseBottom:
		c.bottom = true

	case t.To == models.PhaseTop:
		if c.open == nil {
			return nil, OutcomeNone
		}
		if t.From == models.PhaseDescending || !c.bottom {
			c.open = nil
			c.aborted++
			return nil, OutcomeAborted
		}
		return c.close(t.Frame), OutcomeClosed
	}
	return nil, OutcomeNone
}

func (c *Counter) close(end int) *models.RepRecord {
	rep := *c.open
	c.open = nil
	if end <= rep.StartFrame {
		panic(fmt.Sprintf("reps: rep closed at frame %d, not after start %d", end, rep.StartFrame))
	}
	rep.Number = len(c.closed) + 1
	rep.EndFrame = end
	rep.DurationFrames = end - rep.StartFrame
	rep.Duration = time.Duration(float64(rep.DurationFrames) / c.fps * float64(time.Second))
	if math.IsInf(rep.MinDepth, 0) {
		rep.MinDepth, rep.MaxDepth = 0, 0
	}
	c.closed = append(c.closed, rep)
	c.lastEnd = end
	return &rep
}

// Discard drops the open rep without counting it, as at cancellation.
// It reports whether a rep was open.
func (c *Counter) Discard() bool {
	had := c.open != nil
	c.open = nil
	c.bottom = false
	return had
}

// Open returns a copy of the in-progress rep, if any.
func (c *Counter) Open() (models.RepRecord, bool) {
	if c.open == nil {
		return models.RepRecord{}, false
	}
	return *c.open, true
}

// Closed returns the closed reps in order.
func (c *Counter) Closed() []models.RepRecord {
	out := make([]models.RepRecord, len(c.closed))
	copy(out, c.closed)
	return out
}

// Aborted returns how many reps were discarded for never reaching the bottom.
func (c *Counter) Aborted() int { return c.aborted }
