package pose

import (
	"math"

	"github.com/claude/repform/internal/config"
	"github.com/claude/repform/internal/models"
)

// filter smooths one scalar signal.
type filter interface {
	update(x float64) float64
}

type emaFilter struct {
	alpha float64
	state float64
	ready bool
}

func (f *emaFilter) update(x float64) float64 {
	if !f.ready {
		f.state, f.ready = x, true
		return x
	}
	f.state = f.alpha*x + (1-f.alpha)*f.state
	return f.state
}

type movingAverage struct {
	buf  []float64
	size int
	sum  float64
}

func (f *movingAverage) update(x float64) float64 {
	f.buf = append(f.buf, x)
	f.sum += x
	if len(f.buf) > f.size {
		f.sum -= f.buf[0]
		f.buf = f.buf[1:]
	}
	return f.sum / float64(len(f.buf))
}

// kalmanFilter is a constant-position 1D Kalman filter seeded with its first
// measurement.
type kalmanFilter struct {
	q, r  float64
	x, p  float64
	ready bool
}

func (f *kalmanFilter) update(z float64) float64 {
	if !f.ready {
		f.x, f.p, f.ready = z, 1, true
		return z
	}
	f.p += f.q
	k := f.p / (f.p + f.r)
	f.x += k * (z - f.x)
	f.p *= 1 - k
	return f.x
}

type jointState struct {
	x, y    filter
	history []models.Landmark
	last    models.Landmark
	valid   bool
	held    int
}

// Smoother low-pass filters landmark coordinates per joint across frames.
// A joint that drops out or falls below the confidence threshold holds its
// previous smoothed position instead of jumping.
type Smoother struct {
	cfg    config.SmoothingConfig
	joints map[models.Joint]*jointState
}

// NewSmoother creates a Smoother for the configured method.
func NewSmoother(cfg config.SmoothingConfig) *Smoother {
	return &Smoother{cfg: cfg, joints: make(map[models.Joint]*jointState, len(models.AllJoints))}
}

func (s *Smoother) newFilter() filter {
	switch s.cfg.Method {
	case "moving_average":
		return &movingAverage{size: s.cfg.Window}
	case "kalman":
		return &kalmanFilter{q: s.cfg.Q, r: s.cfg.R}
	default:
		return &emaFilter{alpha: s.cfg.Alpha}
	}
}

func (s *Smoother) state(j models.Joint) *jointState {
	st, ok := s.joints[j]
	if !ok {
		st = &jointState{x: s.newFilter(), y: s.newFilter()}
		s.joints[j] = st
	}
	return st
}

// Smooth filters one frame and returns a new set; raw is not modified.
//
// Held joints keep their last good confidence for up to MaxHoldFrames
// consecutive frames. After that the raw confidence is reported so that the
// feature extractor sees the joint as missing.
func (s *Smoother) Smooth(raw models.LandmarkSet) models.LandmarkSet {
	out := models.LandmarkSet{
		Index:     raw.Index,
		Timestamp: raw.Timestamp,
		Points:    make(map[models.Joint]models.Landmark, len(models.AllJoints)),
	}

	for _, j := range models.AllJoints {
		lm, present := raw.Points[j]
		st := s.state(j)

		if present && s.usable(lm) {
			st.history = append(st.history, lm)
			if len(st.history) > s.cfg.Window {
				st.history = st.history[1:]
			}
			st.last = models.Landmark{X: st.x.update(lm.X), Y: st.y.update(lm.Y), Confidence: lm.Confidence}
			st.valid = true
			st.held = 0
			out.Points[j] = st.last
			continue
		}

		if !st.valid {
			if present {
				out.Points[j] = lm
			}
			continue
		}

		st.held++
		held := st.last
		if st.held > s.cfg.MaxHoldFrames {
			held.Confidence = 0
			if present {
				held.Confidence = lm.Confidence
			}
		}
		out.Points[j] = held
	}

	return out
}

func (s *Smoother) usable(lm models.Landmark) bool {
	if math.IsNaN(lm.X) || math.IsNaN(lm.Y) || math.IsInf(lm.X, 0) || math.IsInf(lm.Y, 0) {
		return false
	}
	return lm.Confidence >= s.cfg.MinConfidence
}

// History returns a copy of the last accepted raw points for j, oldest first.
func (s *Smoother) History(j models.Joint) []models.Landmark {
	st, ok := s.joints[j]
	if !ok {
		return nil
	}
	out := make([]models.Landmark, len(st.history))
	copy(out, st.history)
	return out
}

// Reset clears all per-joint state.
func (s *Smoother) Reset() {
	clear(s.joints)
}
