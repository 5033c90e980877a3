package features

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claude/repform/internal/config"
	"github.com/claude/repform/internal/models"
)

func testConfig() config.FeatureConfig {
	return config.FeatureConfig{MinConfidence: 0.5, VelocityHistory: 3, BaselineFrames: 2}
}

// skeleton returns an upright side-by-side body with vertical thighs. The
// shins are rotated about the knees so the knee angles equal left and right.
func skeleton(index int, left, right, dy float64) models.LandmarkSet {
	p := func(x, y float64) models.Landmark { return models.Landmark{X: x, Y: y + dy, Confidence: 0.9} }
	ankle := func(kx, ky, deg float64) models.Landmark {
		rad := deg * math.Pi / 180
		return p(kx+0.2*math.Sin(rad), ky-0.2*math.Cos(rad))
	}
	return models.LandmarkSet{
		Index: index,
		Points: map[models.Joint]models.Landmark{
			models.Nose:          p(0.5, 0.1),
			models.LeftShoulder:  p(0.45, 0.2),
			models.RightShoulder: p(0.55, 0.2),
			models.LeftElbow:     p(0.45, 0.3),
			models.RightElbow:    p(0.55, 0.3),
			models.LeftWrist:     p(0.45, 0.4),
			models.RightWrist:    p(0.55, 0.4),
			models.LeftHip:       p(0.45, 0.5),
			models.RightHip:      p(0.55, 0.5),
			models.LeftKnee:      p(0.45, 0.7),
			models.RightKnee:     p(0.55, 0.7),
			models.LeftAnkle:     ankle(0.45, 0.7, left),
			models.RightAnkle:    ankle(0.55, 0.7, right),
		},
	}
}

var allJoints = models.AllJoints

// TestExtractAngles verifies joint angles, averages, symmetry and tilt.
func TestExtractAngles(t *testing.T) {
	e := NewExtractor(testConfig())
	f, err := e.Extract(skeleton(0, 90, 120, 0), allJoints)
	require.NoError(t, err)

	assert.InDelta(t, 90, f.Must(models.KneeAngleL), 1e-6)
	assert.InDelta(t, 120, f.Must(models.KneeAngleR), 1e-6)
	assert.InDelta(t, 105, f.Must(models.KneeAngleAvg), 1e-6)
	assert.InDelta(t, 30, f.Must(models.SymKnee), 1e-6)
	assert.InDelta(t, 90, f.Must(models.FrontKneeAngle), 1e-6)
	assert.InDelta(t, 120, f.Must(models.BackKneeAngle), 1e-6)
	assert.InDelta(t, 180, f.Must(models.HipAngleAvg), 1e-6)
	assert.InDelta(t, 180, f.Must(models.ElbowAngleAvg), 1e-6)
	assert.InDelta(t, 0, f.Must(models.SymElbow), 1e-6)
	assert.InDelta(t, 0, f.Must(models.TrunkTilt), 1e-6)
	assert.InDelta(t, 0.5, f.Must(models.HipY), 1e-9)
	assert.InDelta(t, 0.2, f.Must(models.ShoulderY), 1e-9)
	assert.InDelta(t, 0.4, f.Must(models.WristY), 1e-9)
	assert.Zero(t, f.Must(models.KneeVelAvg))
	assert.Zero(t, f.Must(models.VerticalDisp))
}

// TestExtractMissingRequiredJoint verifies a missing or low-confidence
// required joint fails the frame with the joint named in the error.
func TestExtractMissingRequiredJoint(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(models.LandmarkSet)
	}{
		{"absent", func(s models.LandmarkSet) { delete(s.Points, models.LeftKnee) }},
		{"low confidence", func(s models.LandmarkSet) {
			lm := s.Points[models.LeftKnee]
			lm.Confidence = 0.2
			s.Points[models.LeftKnee] = lm
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewExtractor(testConfig())
			set := skeleton(0, 170, 170, 0)
			tt.mutate(set)
			_, err := e.Extract(set, JointsFor(models.KneeAngleAvg))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInsufficientLandmarks))
			assert.Contains(t, err.Error(), "left_knee")
		})
	}
}

// TestExtractOptionalJointMissing verifies features are skipped, not failed,
// when their joints are not required.
func TestExtractOptionalJointMissing(t *testing.T) {
	e := NewExtractor(testConfig())
	set := skeleton(0, 170, 170, 0)
	delete(set.Points, models.LeftWrist)

	f, err := e.Extract(set, JointsFor(models.KneeAngleAvg))
	require.NoError(t, err)
	_, ok := f.Get(models.ElbowAngleAvg)
	assert.False(t, ok)
	_, ok = f.Get(models.ElbowAngleR)
	assert.True(t, ok)
	assert.InDelta(t, 170, f.Must(models.KneeAngleAvg), 1e-6)
}

// TestExtractDegenerateGeometry verifies coincident required points are
// reported as insufficient data instead of panicking.
func TestExtractDegenerateGeometry(t *testing.T) {
	e := NewExtractor(testConfig())
	set := skeleton(0, 170, 170, 0)
	set.Points[models.LeftAnkle] = set.Points[models.LeftKnee]

	_, err := e.Extract(set, JointsFor(models.KneeAngleAvg))
	require.ErrorIs(t, err, ErrInsufficientLandmarks)

	// Not required: the angle is just left out.
	f, err := e.Extract(set, JointsFor(models.ElbowAngleAvg))
	require.NoError(t, err)
	_, ok := f.Get(models.KneeAngleL)
	assert.False(t, ok)
}

// TestExtractVelocity verifies velocity is the difference from the previous
// successful frame and that failed frames do not advance the history.
func TestExtractVelocity(t *testing.T) {
	e := NewExtractor(testConfig())
	req := JointsFor(models.KneeAngleAvg)

	_, err := e.Extract(skeleton(0, 170, 170, 0), req)
	require.NoError(t, err)

	bad := skeleton(1, 100, 100, 0)
	delete(bad.Points, models.RightAnkle)
	_, err = e.Extract(bad, req)
	require.Error(t, err)

	f, err := e.Extract(skeleton(2, 160, 160, 0), req)
	require.NoError(t, err)
	assert.InDelta(t, -10, f.Must(models.KneeVelAvg), 1e-6)
	assert.InDelta(t, -10, f.Must(models.FrontKneeVel), 1e-6)
}

// TestExtractVerticalDisplacement verifies hip drop is measured against the
// baseline in torso lengths once the baseline frames have been seen.
func TestExtractVerticalDisplacement(t *testing.T) {
	e := NewExtractor(testConfig())
	for i := 0; i < 2; i++ {
		f, err := e.Extract(skeleton(i, 170, 170, 0), allJoints)
		require.NoError(t, err)
		assert.Zero(t, f.Must(models.VerticalDisp))
	}
	require.True(t, e.BaselineReady())

	f, err := e.Extract(skeleton(2, 170, 170, 0.1), allJoints)
	require.NoError(t, err)
	assert.InDelta(t, 0.1/0.3, f.Must(models.VerticalDisp), 1e-6)

	e.Reset()
	assert.False(t, e.BaselineReady())
}

// TestRequiredJoints verifies the joint sets derived from the example rules.
func TestRequiredJoints(t *testing.T) {
	cfg, err := config.Example()
	require.NoError(t, err)

	squat := RequiredJoints(cfg, models.Squat)
	assert.Contains(t, squat, models.LeftKnee)
	assert.Contains(t, squat, models.RightAnkle)
	assert.Contains(t, squat, models.LeftShoulder)
	assert.NotContains(t, squat, models.LeftWrist)
	assert.NotContains(t, squat, models.Nose)

	pushup := RequiredJoints(cfg, models.PushUp)
	assert.Contains(t, pushup, models.LeftWrist)
	assert.Contains(t, pushup, models.RightAnkle)

	unknown := RequiredJoints(cfg, models.Unknown)
	assert.Contains(t, unknown, models.LeftElbow)
	assert.Contains(t, unknown, models.LeftKnee)
	assert.NotContains(t, unknown, models.Nose)
}
