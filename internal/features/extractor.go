// Package features turns smoothed landmarks into the named biomechanical
// signals every later stage works on.
package features

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/claude/repform/internal/config"
	"github.com/claude/repform/internal/models"
	"github.com/claude/repform/internal/pose"
)

// ErrInsufficientLandmarks is returned when a required joint is missing, below
// the confidence threshold, or placed so that its angle is undefined.
var ErrInsufficientLandmarks = errors.New("insufficient landmarks")

type angleDef struct {
	name    string
	a, b, c models.Joint
}

const (
	plankL = "plank_l"
	plankR = "plank_r"
)

var angleDefs = []angleDef{
	{models.KneeAngleL, models.LeftHip, models.LeftKnee, models.LeftAnkle},
	{models.KneeAngleR, models.RightHip, models.RightKnee, models.RightAnkle},
	{models.HipAngleL, models.LeftShoulder, models.LeftHip, models.LeftKnee},
	{models.HipAngleR, models.RightShoulder, models.RightHip, models.RightKnee},
	{models.ElbowAngleL, models.LeftShoulder, models.LeftElbow, models.LeftWrist},
	{models.ElbowAngleR, models.RightShoulder, models.RightElbow, models.RightWrist},
	{plankL, models.LeftShoulder, models.LeftHip, models.LeftAnkle},
	{plankR, models.RightShoulder, models.RightHip, models.RightAnkle},
}

// velocity signals and the feature each one differentiates.
var velocities = []struct{ name, of string }{
	{models.KneeVelAvg, models.KneeAngleAvg},
	{models.ElbowVelAvg, models.ElbowAngleAvg},
	{models.FrontKneeVel, models.FrontKneeAngle},
}

// Extractor computes frame features. It keeps short per-signal histories for
// velocities and the session baseline for vertical displacement, so one
// Extractor serves exactly one session.
type Extractor struct {
	cfg     config.FeatureConfig
	history map[string][]float64

	baseFrames int
	baseHipY   float64
	baseTorso  float64
}

// NewExtractor creates an Extractor.
func NewExtractor(cfg config.FeatureConfig) *Extractor {
	return &Extractor{cfg: cfg, history: make(map[string][]float64)}
}

// Extract computes every feature whose joints are usable in set. Any joint in
// required that is absent or below the confidence threshold fails the whole
// frame with ErrInsufficientLandmarks, and no internal state advances.
func (e *Extractor) Extract(set models.LandmarkSet, required []models.Joint) (models.Features, error) {
	need := make(map[models.Joint]bool, len(required))
	var missing []string
	for _, j := range required {
		need[j] = true
		if _, ok := e.usable(set, j); !ok {
			missing = append(missing, string(j))
		}
	}
	if len(missing) > 0 {
		return models.Features{}, fmt.Errorf("frame %d: %w: %s", set.Index, ErrInsufficientLandmarks, strings.Join(missing, ", "))
	}

	f := models.NewFeatures(set.Index, set.Timestamp)
	angles := make(map[string]float64, len(angleDefs))
	for _, d := range angleDefs {
		a, okA := e.usable(set, d.a)
		b, okB := e.usable(set, d.b)
		c, okC := e.usable(set, d.c)
		if !okA || !okB || !okC {
			continue
		}
		if pose.Degenerate(a, b, c) {
			if need[d.a] && need[d.b] && need[d.c] {
				return models.Features{}, fmt.Errorf("frame %d: %w: degenerate %s", set.Index, ErrInsufficientLandmarks, d.name)
			}
			continue
		}
		angles[d.name] = pose.Angle(a, b, c)
	}
	for name, v := range angles {
		if name != plankL && name != plankR {
			f.Values[name] = v
		}
	}

	pair(f, angles, models.KneeAngleL, models.KneeAngleR, models.KneeAngleAvg, models.SymKnee)
	pair(f, angles, models.HipAngleL, models.HipAngleR, models.HipAngleAvg, models.SymHip)
	pair(f, angles, models.ElbowAngleL, models.ElbowAngleR, models.ElbowAngleAvg, models.SymElbow)
	pair(f, angles, plankL, plankR, models.PlankLine, "")

	l, okL := angles[models.KneeAngleL]
	r, okR := angles[models.KneeAngleR]
	if okL && okR {
		f.Values[models.FrontKneeAngle] = math.Min(l, r)
		f.Values[models.BackKneeAngle] = math.Max(l, r)
	}

	if y, ok := e.midY(set, models.LeftHip, models.RightHip); ok {
		f.Values[models.HipY] = y
	}
	if y, ok := e.midY(set, models.LeftShoulder, models.RightShoulder); ok {
		f.Values[models.ShoulderY] = y
	}
	if y, ok := e.midY(set, models.LeftWrist, models.RightWrist); ok {
		f.Values[models.WristY] = y
	}

	torso, hasTorso, err := e.torso(set, need)
	if err != nil {
		return models.Features{}, err
	}
	if hasTorso {
		f.Values[models.TrunkTilt] = torso.tilt
	}

	// Everything below mutates history; nothing may fail past this point.
	for _, v := range velocities {
		cur, ok := f.Values[v.of]
		if !ok {
			continue
		}
		h := e.history[v.of]
		vel := 0.0
		if len(h) > 0 {
			vel = cur - h[len(h)-1]
		}
		f.Values[v.name] = vel
		h = append(h, cur)
		if len(h) > e.cfg.VelocityHistory {
			h = h[1:]
		}
		e.history[v.of] = h
	}

	if hasTorso {
		e.observeBaseline(torso)
		disp := 0.0
		if e.baseFrames >= e.cfg.BaselineFrames {
			disp = (torso.hipY - e.baseHipY) / e.baseTorso
		}
		f.Values[models.VerticalDisp] = disp
	}

	return f, nil
}

type torsoFrame struct {
	hipY   float64
	length float64
	tilt   float64
}

func (e *Extractor) torso(set models.LandmarkSet, need map[models.Joint]bool) (torsoFrame, bool, error) {
	ls, ok1 := e.usable(set, models.LeftShoulder)
	rs, ok2 := e.usable(set, models.RightShoulder)
	lh, ok3 := e.usable(set, models.LeftHip)
	rh, ok4 := e.usable(set, models.RightHip)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return torsoFrame{}, false, nil
	}
	sh := pose.Midpoint(ls, rs)
	hp := pose.Midpoint(lh, rh)
	length := pose.Distance(sh, hp)
	if length < pose.Epsilon {
		if need[models.LeftShoulder] && need[models.RightShoulder] && need[models.LeftHip] && need[models.RightHip] {
			return torsoFrame{}, false, fmt.Errorf("frame %d: %w: degenerate torso", set.Index, ErrInsufficientLandmarks)
		}
		return torsoFrame{}, false, nil
	}
	return torsoFrame{hipY: hp.Y, length: length, tilt: pose.TiltFromVertical(sh, hp)}, true, nil
}

func (e *Extractor) observeBaseline(t torsoFrame) {
	if e.baseFrames >= e.cfg.BaselineFrames {
		return
	}
	n := float64(e.baseFrames)
	e.baseHipY = (e.baseHipY*n + t.hipY) / (n + 1)
	e.baseTorso = (e.baseTorso*n + t.length) / (n + 1)
	e.baseFrames++
}

// BaselineReady reports whether vertical displacement is being measured.
func (e *Extractor) BaselineReady() bool {
	return e.baseFrames >= e.cfg.BaselineFrames
}

// Reset clears velocity histories and the baseline.
func (e *Extractor) Reset() {
	clear(e.history)
	e.baseFrames = 0
	e.baseHipY = 0
	e.baseTorso = 0
}

func (e *Extractor) usable(set models.LandmarkSet, j models.Joint) (models.Landmark, bool) {
	lm, ok := set.Points[j]
	if !ok || lm.Confidence < e.cfg.MinConfidence {
		return models.Landmark{}, false
	}
	return lm, true
}

func (e *Extractor) midY(set models.LandmarkSet, a, b models.Joint) (float64, bool) {
	la, okA := e.usable(set, a)
	lb, okB := e.usable(set, b)
	if !okA || !okB {
		return 0, false
	}
	return (la.Y + lb.Y) / 2, true
}

func pair(f models.Features, angles map[string]float64, left, right, avg, sym string) {
	l, okL := angles[left]
	r, okR := angles[right]
	if !okL || !okR {
		return
	}
	f.Values[avg] = (l + r) / 2
	if sym != "" {
		f.Values[sym] = math.Abs(l - r)
	}
}
