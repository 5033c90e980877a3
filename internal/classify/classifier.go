// Package classify recognizes which exercise a session is performing from a
// sliding window of frame features.
package classify

import (
	"errors"
	"maps"
	"math"
	"slices"

	"github.com/claude/repform/internal/config"
	"github.com/claude/repform/internal/models"
)

// ErrAmbiguousExercise is reported once the classifier has seen max_frames
// observations without any signature reaching the lock confidence.
var ErrAmbiguousExercise = errors.New("ambiguous exercise")

// Status is the detection state of a session.
type Status string

const (
	StatusPending   Status = "pending"
	StatusLocked    Status = "locked"
	StatusAmbiguous Status = "ambiguous"
)

// Result is the classifier's verdict after one observation.
type Result struct {
	Kind       models.ExerciseKind             `json:"kind"`
	Confidence float64                         `json:"confidence"`
	Locked     bool                            `json:"locked"`
	Status     Status                          `json:"status"`
	Scores     map[models.ExerciseKind]float64 `json:"scores,omitempty"`
}

// Err returns ErrAmbiguousExercise for an ambiguous result and nil otherwise.
func (r Result) Err() error {
	if r.Status == StatusAmbiguous {
		return ErrAmbiguousExercise
	}
	return nil
}

// Classifier scores config-enumerated signatures over recent frames. Once a
// kind locks it never changes for the session.
type Classifier struct {
	cfg      config.ClassifierConfig
	names    []string
	window   []models.Features
	observed int
	last     Result
}

// New creates a Classifier. A known forced kind disables detection: every
// observation returns that kind locked with confidence 1.
func New(cfg config.ClassifierConfig, forced models.ExerciseKind) *Classifier {
	c := &Classifier{
		cfg:   cfg,
		names: slices.Sorted(maps.Keys(cfg.Signatures)),
		last:  Result{Kind: models.Unknown, Status: StatusPending},
	}
	if forced.Known() {
		c.last = Result{Kind: forced, Confidence: 1, Locked: true, Status: StatusLocked}
	}
	return c
}

// Observe adds f to the window and re-evaluates the signatures, unless the
// kind is already locked.
func (c *Classifier) Observe(f models.Features) Result {
	if c.last.Locked {
		return c.last
	}

	c.observed++
	c.window = append(c.window, f)
	if len(c.window) > c.cfg.Window {
		c.window = c.window[1:]
	}

	res := Result{Kind: models.Unknown, Status: StatusPending}
	if len(c.window) >= c.cfg.MinWindow {
		res.Scores = make(map[models.ExerciseKind]float64, len(c.names))
		best, bestKind := -1.0, models.Unknown
		for _, name := range c.names {
			kind := models.ExerciseKind(name)
			s := c.score(c.cfg.Signatures[name])
			res.Scores[kind] = s
			if s > best {
				best, bestKind = s, kind
			}
		}
		res.Confidence = best
		if best >= c.cfg.LockConfidence {
			res.Kind = bestKind
			res.Locked = true
			res.Status = StatusLocked
		}
	}
	if !res.Locked && c.observed >= c.cfg.MaxFrames {
		res.Status = StatusAmbiguous
	}

	c.last = res
	if res.Locked {
		c.window = nil
	}
	return res
}

// Result returns the most recent verdict.
func (c *Classifier) Result() Result { return c.last }

// Locked reports whether the exercise kind is settled.
func (c *Classifier) Locked() bool { return c.last.Locked }

func (c *Classifier) score(terms []config.SignatureTerm) float64 {
	if len(terms) == 0 {
		return 0
	}
	total := 0.0
	for _, t := range terms {
		v, ok := c.aggregate(t.Feature, t.Aggregate)
		if !ok {
			continue
		}
		s := ramp(v, t.Lo, t.Hi)
		if t.Invert {
			s = 1 - s
		}
		total += s
	}
	return total / float64(len(terms))
}

// aggregate reduces one feature across the window. Frames that lack the
// feature are ignored; a feature absent from every frame scores nothing.
func (c *Classifier) aggregate(feature, agg string) (float64, bool) {
	var (
		n         int
		sum, last float64
		lo        = math.Inf(1)
		hi        = math.Inf(-1)
	)
	for _, f := range c.window {
		v, ok := f.Get(feature)
		if !ok {
			continue
		}
		n++
		sum += v
		last = v
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if n == 0 {
		return 0, false
	}
	switch agg {
	case "mean":
		return sum / float64(n), true
	case "min":
		return lo, true
	case "max":
		return hi, true
	case "range":
		return hi - lo, true
	case "last":
		return last, true
	}
	panic("classify: unknown aggregate " + agg)
}

// ramp maps v linearly from [lo, hi] onto [0, 1], clamped.
func ramp(v, lo, hi float64) float64 {
	return math.Max(0, math.Min(1, (v-lo)/(hi-lo)))
}
