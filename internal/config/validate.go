package config

import (
	"fmt"
	"maps"
	"slices"

	"github.com/claude/repform/internal/models"
)

var (
	smoothingMethods = []string{"ema", "moving_average", "kalman"}
	aggregates       = []string{"mean", "min", "max", "range", "last"}
	comparisonOps    = []string{"gt", "ge", "lt", "le"}
	repMetrics       = []string{"min_depth", "max_depth", "duration_frames", "duration_seconds"}
)

// RepMetrics lists the rep-level metrics a rep-scope rule may reference.
func RepMetrics() []string { return slices.Clone(repMetrics) }

type validator struct {
	errs []*FieldError
}

func (v *validator) add(field, format string, args ...any) {
	v.errs = append(v.errs, &FieldError{Field: field, Problem: fmt.Sprintf(format, args...)})
}

func (v *validator) positive(field string, x float64) {
	if x <= 0 {
		v.add(field, "must be > 0, got %v", x)
	}
}

func (v *validator) unit(field string, x float64) {
	if x <= 0 || x > 1 {
		v.add(field, "must be in (0, 1], got %v", x)
	}
}

func (v *validator) oneOf(field, value string, allowed []string) {
	if !slices.Contains(allowed, value) {
		v.add(field, "must be one of %v, got %q", allowed, value)
	}
}

func (v *validator) feature(field, name string) {
	if !models.IsFeatureName(name) {
		v.add(field, "unknown feature %q", name)
	}
}

// validate checks every engine section. Server and database settings are
// checked separately by ValidateServer.
func (c *Config) validate() error {
	v := &validator{}

	forced, err := models.ParseExerciseKind(c.Session.Exercise)
	if err != nil {
		v.add("session.exercise", "%v", err)
	}
	c.forced = forced
	v.positive("session.fps", c.Session.FPS)

	c.validateSmoothing(v)
	c.validateFeatures(v)
	c.validateClassifier(v)
	c.validateFeedback(v)

	if len(c.Exercises) == 0 {
		v.add("exercises", "at least one exercise must be configured")
	}
	for _, name := range sortedKeys(c.Exercises) {
		prefix := "exercises." + name
		kind, err := models.ParseExerciseKind(name)
		if err != nil || !kind.Known() || string(kind) != name {
			v.add(prefix, "unknown exercise; use one of %v", models.ExerciseKinds)
			continue
		}
		ex := c.Exercises[name]
		validatePhase(v, prefix+".phase", ex.Phase)
		validateForm(v, prefix+".form", ex.Form)
	}
	if forced.Known() {
		if _, ok := c.Exercises[string(forced)]; !ok {
			v.add("session.exercise", "forced exercise %q has no rule table", forced)
		}
	}

	if len(v.errs) > 0 {
		return &ValidationError{Fields: v.errs}
	}
	return nil
}

func (c *Config) validateSmoothing(v *validator) {
	s := c.Smoothing
	v.oneOf("smoothing.method", s.Method, smoothingMethods)
	switch s.Method {
	case "ema":
		v.unit("smoothing.alpha", s.Alpha)
	case "kalman":
		v.positive("smoothing.q", s.Q)
		v.positive("smoothing.r", s.R)
	}
	if s.Window < 1 {
		v.add("smoothing.window", "must be >= 1, got %d", s.Window)
	}
	v.unit("smoothing.min_confidence", s.MinConfidence)
	if s.MaxHoldFrames < 0 {
		v.add("smoothing.max_hold_frames", "must be >= 0, got %d", s.MaxHoldFrames)
	}
}

func (c *Config) validateFeatures(v *validator) {
	f := c.Features
	v.unit("features.min_confidence", f.MinConfidence)
	if f.VelocityHistory < 2 {
		v.add("features.velocity_history", "must be >= 2, got %d", f.VelocityHistory)
	}
	if f.BaselineFrames < 1 {
		v.add("features.baseline_frames", "must be >= 1, got %d", f.BaselineFrames)
	}
}

func (c *Config) validateClassifier(v *validator) {
	cl := c.Classifier
	if c.forced.Known() {
		// Auto-detection is off; the classifier section may be omitted.
		return
	}
	if cl.Window < 1 {
		v.add("classifier.window", "must be >= 1, got %d", cl.Window)
	}
	if cl.MinWindow < 1 || cl.MinWindow > cl.Window {
		v.add("classifier.min_window", "must be in [1, window], got %d", cl.MinWindow)
	}
	if cl.MaxFrames < cl.MinWindow {
		v.add("classifier.max_frames", "must be >= min_window, got %d", cl.MaxFrames)
	}
	v.unit("classifier.lock_confidence", cl.LockConfidence)
	if len(cl.Signatures) == 0 {
		v.add("classifier.signatures", "at least one signature is required for auto-detection")
	}
	for _, name := range sortedKeys(cl.Signatures) {
		terms := cl.Signatures[name]
		prefix := "classifier.signatures." + name
		if _, ok := c.Exercises[name]; !ok {
			v.add(prefix, "no rule table for exercise %q", name)
		}
		if len(terms) == 0 {
			v.add(prefix, "signature has no terms")
		}
		for i, t := range terms {
			tp := fmt.Sprintf("%s[%d]", prefix, i)
			v.feature(tp+".feature", t.Feature)
			v.oneOf(tp+".aggregate", t.Aggregate, aggregates)
			if t.Hi <= t.Lo {
				v.add(tp+".hi", "must be > lo (%v), got %v", t.Lo, t.Hi)
			}
		}
	}
}

func (c *Config) validateFeedback(v *validator) {
	f := c.Feedback
	v.oneOf("feedback.granularity", f.Granularity, []string{"phase", "rep"})
	if f.PraiseThreshold < 0 || f.PraiseThreshold > 100 {
		v.add("feedback.praise_threshold", "must be in [0, 100], got %v", f.PraiseThreshold)
	}
	if len(f.PraiseLines) == 0 {
		v.add("feedback.praise_lines", "at least one praise line is required")
	}
	if f.QueueSize < 1 {
		v.add("feedback.queue_size", "must be >= 1, got %d", f.QueueSize)
	}
	if f.MinGap < 0 {
		v.add("feedback.min_gap", "must not be negative, got %v", f.MinGap)
	}
}

func validatePhase(v *validator, prefix string, p PhaseConfig) {
	v.feature(prefix+".primary", p.Primary)
	v.oneOf(prefix+".direction", p.Direction, []string{"decreasing", "increasing"})
	if p.TopLabel != "" {
		v.oneOf(prefix+".top_label", p.TopLabel, []string{"top", "start"})
	}
	if p.Debounce < 1 {
		v.add(prefix+".debounce", "must be >= 1, got %d", p.Debounce)
	}

	// Orient thresholds so that "deeper" is always smaller.
	sign := 1.0
	if p.Direction == "increasing" {
		sign = -1.0
	}
	topExit, topEnter := sign*p.TopExit, sign*p.TopEnter
	bottomEnter, bottomExit := sign*p.BottomEnter, sign*p.BottomExit

	if !(bottomEnter < bottomExit) {
		v.add(prefix+".bottom_enter", "must be strictly beyond bottom_exit (%v) toward the bottom, got %v", p.BottomExit, p.BottomEnter)
	}
	if !(topEnter > topExit) {
		v.add(prefix+".top_enter", "must be strictly beyond top_exit (%v) toward the top, got %v", p.TopExit, p.TopEnter)
	}
	if !(bottomExit <= topExit) {
		v.add(prefix+".bottom_exit", "must not be beyond top_exit (%v) toward the top, got %v", p.TopExit, p.BottomExit)
	}
	for i, g := range p.TopGuards {
		gp := fmt.Sprintf("%s.top_guards[%d]", prefix, i)
		v.feature(gp+".feature", g.Feature)
		v.oneOf(gp+".op", g.Op, comparisonOps)
	}
}

func validateForm(v *validator, prefix string, f FormProfile) {
	if f.GoodFormCutoff <= 0 || f.GoodFormCutoff > 100 {
		v.add(prefix+".good_form_cutoff", "must be in (0, 100], got %v", f.GoodFormCutoff)
	}
	if len(f.PhaseWeights) == 0 {
		v.add(prefix+".phase_weights", "at least one phase weight is required")
	}
	for _, name := range sortedKeys(f.PhaseWeights) {
		w := f.PhaseWeights[name]
		phase, ok := models.ParsePhase(name)
		switch {
		case !ok:
			v.add(prefix+".phase_weights."+name, "unknown phase")
		case phase == models.PhaseTop:
			v.add(prefix+".phase_weights."+name, "top frames fall outside any rep and are never scored")
		}
		if w < 0 {
			v.add(prefix+".phase_weights."+name, "must not be negative, got %v", w)
		}
	}

	seen := map[string]bool{}
	for i, r := range f.Rules {
		rp := fmt.Sprintf("%s.rules[%d]", prefix, i)
		if r.Category == "" {
			v.add(rp+".category", "is required")
		} else if seen[r.Category+"/"+r.Scope] {
			v.add(rp+".category", "duplicate category %q in scope %q", r.Category, r.Scope)
		}
		seen[r.Category+"/"+r.Scope] = true

		v.oneOf(rp+".scope", r.Scope, []string{"frame", "rep"})
		switch r.Scope {
		case "frame":
			v.feature(rp+".metric", r.Metric)
		case "rep":
			v.oneOf(rp+".metric", r.Metric, repMetrics)
		}
		for _, ph := range r.Phases {
			if _, ok := models.ParsePhase(ph); !ok {
				v.add(rp+".phases", "unknown phase %q", ph)
			}
		}
		v.oneOf(rp+".op", r.Op, comparisonOps)
		if r.Threshold == nil {
			v.add(rp+".threshold", "is required")
		}
		if r.Weight <= 0 || r.Weight > 100 {
			v.add(rp+".weight", "must be in (0, 100], got %v", r.Weight)
		}
		v.oneOf(rp+".severity", r.Severity, []string{string(models.SeverityMinor), string(models.SeverityMajor)})
		if r.Message == "" {
			v.add(rp+".message", "is required")
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}

// Compare applies a comparison op from the rule vocabulary. Unknown ops are
// rejected at load time, so reaching the default is a programming error.
func Compare(op string, v, threshold float64) bool {
	switch op {
	case "gt":
		return v > threshold
	case "ge":
		return v >= threshold
	case "lt":
		return v < threshold
	case "le":
		return v <= threshold
	}
	panic("config: unknown comparison op " + op)
}
