package pose

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claude/repform/internal/config"
	"github.com/claude/repform/internal/models"
)

func lm(x, y, c float64) models.Landmark { return models.Landmark{X: x, Y: y, Confidence: c} }

func frame(i int, pts map[models.Joint]models.Landmark) models.LandmarkSet {
	return models.LandmarkSet{Index: i, Points: pts}
}

func smoothingConfig(method string) config.SmoothingConfig {
	return config.SmoothingConfig{
		Method:        method,
		Alpha:         0.5,
		Window:        3,
		Q:             0.01,
		R:             1,
		MinConfidence: 0.5,
		MaxHoldFrames: 2,
	}
}

// TestAngle covers right, straight and acute angles at the middle point.
func TestAngle(t *testing.T) {
	tests := []struct {
		name    string
		a, b, c models.Landmark
		want    float64
	}{
		{"right", lm(0, 1, 1), lm(0, 0, 1), lm(1, 0, 1), 90},
		{"straight", lm(0, 1, 1), lm(0, 0, 1), lm(0, -1, 1), 180},
		{"acute", lm(1, 1, 1), lm(0, 0, 1), lm(1, 0, 1), 45},
		{"folded", lm(1, 0, 1), lm(0, 0, 1), lm(2, 0, 1), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Angle(tt.a, tt.b, tt.c), 1e-6)
		})
	}
}

// TestAnglePanicsOnZeroLengthArm verifies degenerate geometry fails loudly.
func TestAnglePanicsOnZeroLengthArm(t *testing.T) {
	assert.Panics(t, func() { Angle(lm(0, 0, 1), lm(0, 0, 1), lm(1, 0, 1)) })
	assert.True(t, Degenerate(lm(0, 0, 1), lm(0, 0, 1), lm(1, 0, 1)))
	assert.False(t, Degenerate(lm(0, 1, 1), lm(0, 0, 1), lm(1, 0, 1)))
}

// TestTiltFromVertical checks upright, horizontal and diagonal segments.
func TestTiltFromVertical(t *testing.T) {
	assert.InDelta(t, 0, TiltFromVertical(lm(0.5, 0.2, 1), lm(0.5, 0.5, 1)), 1e-9)
	assert.InDelta(t, 90, TiltFromVertical(lm(0.2, 0.5, 1), lm(0.6, 0.5, 1)), 1e-9)
	assert.InDelta(t, 45, TiltFromVertical(lm(0.2, 0.2, 1), lm(0.5, 0.5, 1)), 1e-9)
}

// TestMidpointAndDistance checks the helpers used for torso measurements.
func TestMidpointAndDistance(t *testing.T) {
	m := Midpoint(lm(0, 0, 0.9), lm(1, 1, 0.6))
	assert.InDelta(t, 0.5, m.X, 1e-9)
	assert.InDelta(t, 0.5, m.Y, 1e-9)
	assert.InDelta(t, 0.6, m.Confidence, 1e-9)
	assert.InDelta(t, math.Sqrt2, Distance(lm(0, 0, 1), lm(1, 1, 1)), 1e-9)
}

// TestSmoothEMA verifies exponential smoothing seeded with the first value.
func TestSmoothEMA(t *testing.T) {
	s := NewSmoother(smoothingConfig("ema"))

	out := s.Smooth(frame(0, map[models.Joint]models.Landmark{models.LeftHip: lm(0.4, 0.4, 0.9)}))
	assert.InDelta(t, 0.4, out.Points[models.LeftHip].X, 1e-9)

	out = s.Smooth(frame(1, map[models.Joint]models.Landmark{models.LeftHip: lm(0.6, 0.8, 0.9)}))
	assert.InDelta(t, 0.5, out.Points[models.LeftHip].X, 1e-9)
	assert.InDelta(t, 0.6, out.Points[models.LeftHip].Y, 1e-9)
	assert.Equal(t, 1, out.Index)
}

// TestSmoothMovingAverage verifies the window bounds the average and the history.
func TestSmoothMovingAverage(t *testing.T) {
	s := NewSmoother(smoothingConfig("moving_average"))
	var out models.LandmarkSet
	for i, x := range []float64{0.1, 0.2, 0.3, 0.7} {
		out = s.Smooth(frame(i, map[models.Joint]models.Landmark{models.Nose: lm(x, 0.5, 1)}))
	}
	assert.InDelta(t, (0.2+0.3+0.7)/3, out.Points[models.Nose].X, 1e-9)
	assert.Len(t, s.History(models.Nose), 3)
}

// TestSmoothKalmanConverges verifies the Kalman filter tracks a step change
// without overshooting it.
func TestSmoothKalmanConverges(t *testing.T) {
	s := NewSmoother(smoothingConfig("kalman"))
	s.Smooth(frame(0, map[models.Joint]models.Landmark{models.Nose: lm(0, 0, 1)}))

	prev := 0.0
	for i := 1; i < 200; i++ {
		out := s.Smooth(frame(i, map[models.Joint]models.Landmark{models.Nose: lm(1, 1, 1)}))
		x := out.Points[models.Nose].X
		require.GreaterOrEqual(t, x, prev)
		require.LessOrEqual(t, x, 1.0)
		prev = x
	}
	assert.Greater(t, prev, 0.8)
}

// TestSmoothHoldsLowConfidenceJoint verifies a dropped joint keeps its last
// smoothed position and confidence until max_hold_frames is exceeded.
func TestSmoothHoldsLowConfidenceJoint(t *testing.T) {
	s := NewSmoother(smoothingConfig("ema"))
	s.Smooth(frame(0, map[models.Joint]models.Landmark{models.LeftKnee: lm(0.5, 0.7, 0.9)}))

	for i := 1; i <= 2; i++ {
		out := s.Smooth(frame(i, map[models.Joint]models.Landmark{models.LeftKnee: lm(0.9, 0.1, 0.1)}))
		got := out.Points[models.LeftKnee]
		assert.InDelta(t, 0.5, got.X, 1e-9, "frame %d", i)
		assert.InDelta(t, 0.7, got.Y, 1e-9, "frame %d", i)
		assert.InDelta(t, 0.9, got.Confidence, 1e-9, "frame %d", i)
	}

	out := s.Smooth(frame(3, map[models.Joint]models.Landmark{models.LeftKnee: lm(0.9, 0.1, 0.1)}))
	got := out.Points[models.LeftKnee]
	assert.InDelta(t, 0.5, got.X, 1e-9)
	assert.InDelta(t, 0.1, got.Confidence, 1e-9)

	out = s.Smooth(frame(4, map[models.Joint]models.Landmark{}))
	assert.Zero(t, out.Points[models.LeftKnee].Confidence)

	// A good reading resumes filtering from the held state.
	out = s.Smooth(frame(5, map[models.Joint]models.Landmark{models.LeftKnee: lm(0.7, 0.7, 0.9)}))
	assert.InDelta(t, 0.6, out.Points[models.LeftKnee].X, 1e-9)
	assert.InDelta(t, 0.9, out.Points[models.LeftKnee].Confidence, 1e-9)
}

// TestSmoothDoesNotMutateInput verifies the raw set is left untouched.
func TestSmoothDoesNotMutateInput(t *testing.T) {
	s := NewSmoother(smoothingConfig("ema"))
	s.Smooth(frame(0, map[models.Joint]models.Landmark{models.Nose: lm(0, 0, 1)}))
	raw := frame(1, map[models.Joint]models.Landmark{models.Nose: lm(1, 1, 1)})
	s.Smooth(raw)
	assert.Equal(t, lm(1, 1, 1), raw.Points[models.Nose])
}

// TestSmoothReset verifies Reset drops the filter state.
func TestSmoothReset(t *testing.T) {
	s := NewSmoother(smoothingConfig("ema"))
	s.Smooth(frame(0, map[models.Joint]models.Landmark{models.Nose: lm(0, 0, 1)}))
	s.Reset()
	out := s.Smooth(frame(1, map[models.Joint]models.Landmark{models.Nose: lm(1, 1, 1)}))
	assert.InDelta(t, 1, out.Points[models.Nose].X, 1e-9)
	assert.Empty(t, s.History(models.LeftHip))
}
