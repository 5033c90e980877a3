package phase

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claude/repform/internal/config"
	"github.com/claude/repform/internal/models"
)

func squatTable() RuleTable {
	return TableFrom(config.PhaseConfig{
		Primary:     models.KneeAngleAvg,
		Direction:   "decreasing",
		TopLabel:    "start",
		TopExit:     155,
		BottomEnter: 145,
		BottomExit:  150,
		TopEnter:    160,
		Debounce:    3,
		TopGuards:   []config.Guard{{Feature: models.HipAngleAvg, Op: "ge", Value: 150}},
	})
}

func feat(i int, knee, hip float64) models.Features {
	f := models.NewFeatures(i, 0)
	f.Values[models.KneeAngleAvg] = knee
	f.Values[models.HipAngleAvg] = hip
	return f
}

// run feeds a primary trace with an extended hip and collects transitions.
func run(e *Engine, start int, trace ...float64) []models.Transition {
	var out []models.Transition
	for i, v := range trace {
		if _, tr := e.Advance(feat(start+i, v, 175)); tr != nil {
			out = append(out, *tr)
		}
	}
	return out
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func concat(parts ...[]float64) []float64 {
	var out []float64
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// TestFullCycle verifies the four transitions of one rep, each confirmed on
// the third consecutive frame.
func TestFullCycle(t *testing.T) {
	e := NewEngine(squatTable())
	trace := concat(repeat(170, 5), repeat(150, 5), repeat(100, 5), repeat(152, 5), repeat(170, 5))
	trs := run(e, 0, trace...)

	require.Len(t, trs, 4)
	want := []struct {
		from, to models.Phase
		frame    int
	}{
		{models.PhaseTop, models.PhaseDescending, 7},
		{models.PhaseDescending, models.PhaseBottom, 12},
		{models.PhaseBottom, models.PhaseAscending, 17},
		{models.PhaseAscending, models.PhaseTop, 22},
	}
	for i, w := range want {
		assert.Equal(t, w.from, trs[i].From, "transition %d", i)
		assert.Equal(t, w.to, trs[i].To, "transition %d", i)
		assert.Equal(t, w.frame, trs[i].Frame, "transition %d", i)
	}
	assert.Equal(t, 170.0, trs[3].Values[models.KneeAngleAvg])
	assert.Equal(t, 175.0, trs[3].Values[models.HipAngleAvg])
	assert.Equal(t, models.PhaseTop, e.Current())
}

// TestHysteresisBandNoFlicker verifies that a signal oscillating around a
// threshold for fewer than the debounce count never emits a transition.
func TestHysteresisBandNoFlicker(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for trial := 0; trial < 50; trial++ {
		e := NewEngine(squatTable())
		var trace []float64
		for len(trace) < 200 {
			// Below top_exit for 1..debounce-1 frames, then back above it.
			n := 1 + rng.Intn(2)
			for i := 0; i < n; i++ {
				trace = append(trace, 150+rng.Float64()*4.9)
			}
			trace = append(trace, 155+rng.Float64()*10)
		}
		assert.Empty(t, run(e, 0, trace...), "trial %d", trial)
		assert.Equal(t, models.PhaseTop, e.Current())
	}
}

// TestBottomBandHolds verifies values between bottom_enter and bottom_exit
// neither leave Bottom nor re-enter it.
func TestBottomBandHolds(t *testing.T) {
	e := NewEngine(squatTable())
	run(e, 0, concat(repeat(150, 3), repeat(140, 3))...)
	require.Equal(t, models.PhaseBottom, e.Current())

	var band []float64
	for i := 0; i < 40; i++ {
		band = append(band, 145+float64(i%6))
	}
	assert.Empty(t, run(e, 6, band...))
	assert.Equal(t, models.PhaseBottom, e.Current())
}

// TestAbortedDescent verifies Descending returns to Top without a Bottom
// visit when the signal recovers.
func TestAbortedDescent(t *testing.T) {
	e := NewEngine(squatTable())
	trs := run(e, 0, concat(repeat(150, 3), repeat(165, 3))...)
	require.Len(t, trs, 2)
	assert.Equal(t, models.PhaseDescending, trs[0].To)
	assert.Equal(t, models.PhaseDescending, trs[1].From)
	assert.Equal(t, models.PhaseTop, trs[1].To)
}

// TestTopGuardBlocksReentry verifies a bent hip keeps the squat in
// Ascending even with straight knees.
func TestTopGuardBlocksReentry(t *testing.T) {
	e := NewEngine(squatTable())
	run(e, 0, concat(repeat(150, 3), repeat(100, 3), repeat(152, 3))...)
	require.Equal(t, models.PhaseAscending, e.Current())

	for i := 0; i < 10; i++ {
		_, tr := e.Advance(feat(9+i, 170, 120))
		assert.Nil(t, tr)
	}
	for i := 0; i < 3; i++ {
		e.Advance(feat(19+i, 170, 170))
	}
	assert.Equal(t, models.PhaseTop, e.Current())
}

// TestReDip verifies Ascending can drop back to Bottom.
func TestReDip(t *testing.T) {
	e := NewEngine(squatTable())
	trs := run(e, 0, concat(repeat(150, 3), repeat(100, 3), repeat(152, 3), repeat(120, 3))...)
	require.Len(t, trs, 4)
	assert.Equal(t, models.PhaseAscending, trs[3].From)
	assert.Equal(t, models.PhaseBottom, trs[3].To)
}

// TestIncreasingDirection verifies a signal that rises toward the bottom.
func TestIncreasingDirection(t *testing.T) {
	table := TableFrom(config.PhaseConfig{
		Primary:     models.HipY,
		Direction:   "increasing",
		TopExit:     0.3,
		BottomEnter: 0.6,
		BottomExit:  0.55,
		TopEnter:    0.25,
		Debounce:    2,
	})
	e := NewEngine(table)
	var phases []models.Phase
	for i, y := range []float64{0.2, 0.35, 0.35, 0.65, 0.65, 0.5, 0.5, 0.2, 0.2} {
		f := models.NewFeatures(i, 0)
		f.Values[models.HipY] = y
		if _, tr := e.Advance(f); tr != nil {
			phases = append(phases, tr.To)
		}
	}
	assert.Equal(t, []models.Phase{
		models.PhaseDescending, models.PhaseBottom, models.PhaseAscending, models.PhaseTop,
	}, phases)
	assert.Equal(t, "top", table.Label(models.PhaseTop))
}

// TestLabelAndReset checks the top label alias and Reset.
func TestLabelAndReset(t *testing.T) {
	e := NewEngine(squatTable())
	assert.Equal(t, "start", e.Table().Label(models.PhaseTop))
	assert.Equal(t, "bottom", e.Table().Label(models.PhaseBottom))

	run(e, 0, repeat(150, 3)...)
	require.Equal(t, models.PhaseDescending, e.Current())
	e.Reset()
	assert.Equal(t, models.PhaseTop, e.Current())
}
