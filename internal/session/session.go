// Package session runs the per-frame analysis pipeline for one exercise
// session. A Session owns all of its state; nothing is shared between
// sessions.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/claude/repform/internal/classify"
	"github.com/claude/repform/internal/config"
	"github.com/claude/repform/internal/features"
	"github.com/claude/repform/internal/feedback"
	"github.com/claude/repform/internal/form"
	"github.com/claude/repform/internal/models"
	"github.com/claude/repform/internal/phase"
	"github.com/claude/repform/internal/pose"
	"github.com/claude/repform/internal/reps"
)

var (
	// ErrOutOfOrder is returned for a frame whose index does not increase.
	ErrOutOfOrder = errors.New("frame out of order")
	// ErrClosed is returned by Process after Close.
	ErrClosed = errors.New("session closed")
)

// Options configures a Session beyond the shared config.
type Options struct {
	// Forced overrides session.exercise from the config when known.
	Forced models.ExerciseKind
	// Publisher receives announcements; nil disables feedback delivery.
	Publisher feedback.Publisher
	Log       *slog.Logger
}

// FrameSource yields landmark frames until io.EOF.
type FrameSource interface {
	Next() (models.LandmarkSet, error)
}

// FrameResult is everything the pipeline derived from one frame.
type FrameResult struct {
	Index         int                   `json:"frame"`
	Exercise      models.ExerciseKind   `json:"exercise"`
	Confidence    float64               `json:"confidence"`
	Status        classify.Status       `json:"status"`
	Phase         models.Phase          `json:"phase"`
	PhaseLabel    string                `json:"phase_label"`
	Features      models.Features       `json:"features"`
	PhaseScore    float64               `json:"phase_score"`
	Faults        []models.Fault        `json:"faults,omitempty"`
	Transition    *models.Transition    `json:"transition,omitempty"`
	Rep           *models.RepRecord     `json:"rep,omitempty"`
	Announcements []models.Announcement `json:"announcements,omitempty"`
	Skipped       bool                  `json:"skipped,omitempty"`
	SkipReason    string                `json:"skip_reason,omitempty"`
}

// Session is the explicit context of one analysis session.
type Session struct {
	cfg *config.Config
	log *slog.Logger
	pub feedback.Publisher

	smoother   *pose.Smoother
	extractor  *features.Extractor
	classifier *classify.Classifier
	selector   *feedback.Selector

	kind      models.ExerciseKind
	table     phase.RuleTable
	engine    *phase.Engine
	evaluator *form.Evaluator
	counter   *reps.Counter
	required  []models.Joint

	history    form.PhaseScores
	phaseAcc   faultSet
	phaseSum   float64
	phaseCount int
	repFaults  faultSet

	reps        []models.RepRecord
	transitions []models.Transition

	started    bool
	lastIndex  int
	ambiguous  bool
	closed     bool
	frames     int
	skipped    int
	phaseFrame map[string]int
	histogram  map[string]int
}

// New creates a Session from a validated config.
func New(cfg *config.Config, opts Options) (*Session, error) {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	forced := cfg.ForcedExercise()
	if opts.Forced.Known() {
		forced = opts.Forced
	}
	if forced.Known() {
		if _, ok := cfg.Exercise(forced); !ok {
			return nil, fmt.Errorf("%w: no rule table for exercise %q", config.ErrInvalidConfiguration, forced)
		}
	}

	s := &Session{
		cfg:        cfg,
		log:        log,
		pub:        opts.Publisher,
		smoother:   pose.NewSmoother(cfg.Smoothing),
		extractor:  features.NewExtractor(cfg.Features),
		classifier: classify.New(cfg.Classifier, forced),
		selector:   feedback.NewSelector(cfg.Feedback),
		kind:       models.Unknown,
		required:   features.RequiredJoints(cfg, models.Unknown),
		phaseFrame: make(map[string]int),
		histogram:  make(map[string]int),
	}
	if forced.Known() {
		s.lock(forced)
	}
	return s, nil
}

func (s *Session) lock(kind models.ExerciseKind) {
	ex, _ := s.cfg.Exercise(kind)
	s.kind = kind
	s.table = phase.TableFrom(ex.Phase)
	s.engine = phase.NewEngine(s.table)
	s.evaluator = form.NewEvaluator(ex.Form)
	s.counter = reps.NewCounter(s.cfg.Session.FPS)
	s.required = features.RequiredJoints(s.cfg, kind)
}

// Exercise returns the locked exercise kind, or Unknown.
func (s *Session) Exercise() models.ExerciseKind { return s.kind }

// Process runs one frame through the pipeline. Frames lacking required
// landmarks come back Skipped with no events; that is not an error.
func (s *Session) Process(set models.LandmarkSet) (FrameResult, error) {
	if s.closed {
		return FrameResult{}, ErrClosed
	}
	if s.started && set.Index <= s.lastIndex {
		return FrameResult{}, fmt.Errorf("%w: frame %d after %d", ErrOutOfOrder, set.Index, s.lastIndex)
	}
	s.started = true
	s.lastIndex = set.Index
	s.frames++

	cls := s.classifier.Result()
	res := FrameResult{
		Index:      set.Index,
		Exercise:   s.kind,
		Confidence: cls.Confidence,
		Status:     cls.Status,
	}
	if s.engine != nil {
		res.Phase = s.engine.Current()
		res.PhaseLabel = s.table.Label(res.Phase)
	}

	smoothed := s.smoother.Smooth(set)
	f, err := s.extractor.Extract(smoothed, s.required)
	if err != nil {
		if !errors.Is(err, features.ErrInsufficientLandmarks) {
			return res, err
		}
		s.skipped++
		res.Skipped = true
		res.SkipReason = err.Error()
		return res, nil
	}
	res.Features = f

	if !s.classifier.Locked() {
		cls = s.classifier.Observe(f)
		res.Confidence = cls.Confidence
		res.Status = cls.Status
		if cls.Locked {
			s.lock(cls.Kind)
			s.log.Info("exercise detected", "exercise", cls.Kind, "confidence", cls.Confidence, "frame", f.Index)
			res.Exercise = s.kind
			res.Phase = s.engine.Current()
			res.PhaseLabel = s.table.Label(res.Phase)
		} else if cls.Status == classify.StatusAmbiguous && !s.ambiguous {
			s.ambiguous = true
			s.log.Warn("exercise still ambiguous", "frame", f.Index, "confidence", cls.Confidence, "error", cls.Err())
		}
		// Phase tracking starts on the frame after the lock, once the
		// exercise's own joints are required.
		return res, nil
	}

	s.step(f, &res)
	return res, nil
}

func (s *Session) step(f models.Features, res *FrameResult) {
	p, tr := s.engine.Advance(f)
	res.Phase = p
	res.PhaseLabel = s.table.Label(p)

	var closed *models.RepRecord
	var repScope []models.Fault
	if tr != nil {
		s.transitions = append(s.transitions, *tr)
		res.Transition = tr
		s.log.Debug("phase transition", "from", s.table.Label(tr.From), "to", s.table.Label(tr.To), "frame", tr.Frame)

		rep, outcome := s.counter.OnTransition(*tr)
		switch outcome {
		case reps.OutcomeOpened:
			s.history.Reset()
			s.repFaults = nil
		case reps.OutcomeAborted:
			s.log.Info("rep aborted before reaching bottom", "frame", tr.Frame, "aborted", s.counter.Aborted())
			s.history.Reset()
			s.repFaults = nil
		case reps.OutcomeClosed:
			closed, repScope = s.closeRep(rep)
			res.Rep = closed
		}
	}
	s.counter.Observe(p, f, s.table.Primary)

	score, faults := s.evaluator.ScoreFrame(f, p)
	res.PhaseScore = score
	res.Faults = faults
	s.phaseFrame[res.PhaseLabel]++
	for _, ft := range faults {
		s.histogram[ft.Category]++
	}

	if tr != nil {
		res.Announcements = s.announce(tr, closed, repScope)
	}

	if _, open := s.counter.Open(); open {
		s.history.Add(p, score)
		s.repFaults = s.repFaults.add(faults...)
	}
	s.phaseAcc = s.phaseAcc.add(faults...)
	s.phaseSum += score
	s.phaseCount++
}

// closeRep scores a rep the counter just closed.
func (s *Session) closeRep(rep *models.RepRecord) (*models.RepRecord, []models.Fault) {
	quality, repScope := s.evaluator.ScoreRep(*rep, &s.history)
	rep.Quality = quality
	rep.PhaseScores = s.history.Means()
	rep.Faults = append(append([]models.Fault(nil), s.repFaults...), repScope...)
	for _, ft := range repScope {
		s.histogram[ft.Category]++
	}
	s.reps = append(s.reps, *rep)
	s.history.Reset()
	s.repFaults = nil

	s.log.Info("rep completed",
		"exercise", s.kind,
		"rep", rep.Number,
		"start", rep.StartFrame,
		"end", rep.EndFrame,
		"quality", quality,
		"faults", len(rep.Faults),
		"good_form", s.evaluator.GoodForm(quality),
	)
	return rep, repScope
}

// announce runs the feedback selector at the configured granularity and
// hands the result to the publisher.
func (s *Session) announce(tr *models.Transition, closed *models.RepRecord, repScope []models.Fault) []models.Announcement {
	var out []models.Announcement
	switch s.cfg.Feedback.Granularity {
	case feedback.PerRep:
		if closed != nil {
			out = s.selector.Select(closed.Faults, closed.Quality, tr.Frame)
		}
	default:
		current := []models.Fault(s.phaseAcc)
		score := form.Perfect
		if s.phaseCount > 0 {
			score = s.phaseSum / float64(s.phaseCount)
		}
		if closed != nil {
			current = append(append([]models.Fault(nil), current...), repScope...)
			score = closed.Quality
		}
		out = s.selector.Select(current, score, tr.Frame)
		s.phaseAcc = nil
		s.phaseSum, s.phaseCount = 0, 0
	}
	if s.pub != nil {
		for _, a := range out {
			s.pub.Publish(a)
		}
	}
	return out
}

// Reps returns the closed reps in order.
func (s *Session) Reps() []models.RepRecord {
	out := make([]models.RepRecord, len(s.reps))
	copy(out, s.reps)
	return out
}

// Transitions returns every phase transition in frame order.
func (s *Session) Transitions() []models.Transition {
	out := make([]models.Transition, len(s.transitions))
	copy(out, s.transitions)
	return out
}

// Summary aggregates the session so far.
func (s *Session) Summary() models.SessionSummary {
	sum := models.SessionSummary{
		Exercise:       s.kind,
		Status:         string(s.classifier.Result().Status),
		FramesTotal:    s.frames,
		FramesSkipped:  s.skipped,
		TotalReps:      len(s.reps),
		FaultHistogram: make(map[string]int, len(s.histogram)),
		PhaseFrames:    make(map[string]int, len(s.phaseFrame)),
		Reps:           s.Reps(),
	}
	if s.counter != nil {
		sum.AbortedReps = s.counter.Aborted()
	}
	for k, v := range s.histogram {
		sum.FaultHistogram[k] = v
	}
	for k, v := range s.phaseFrame {
		sum.PhaseFrames[k] = v
	}
	if len(s.reps) > 0 {
		total := 0.0
		for _, r := range s.reps {
			total += r.Quality
		}
		sum.MeanQuality = total / float64(len(s.reps))
	}
	return sum
}

// Close ends the session. An open rep is discarded, never force-closed.
func (s *Session) Close() models.SessionSummary {
	if !s.closed {
		s.closed = true
		if s.counter != nil && s.counter.Discard() {
			s.log.Info("open rep discarded at session end", "frame", s.lastIndex)
		}
	}
	return s.Summary()
}

// Run feeds frames from src until io.EOF or ctx is cancelled, calling onFrame
// (if non-nil) for each result, then closes the session. Cancellation returns
// the summary together with ctx's error.
func (s *Session) Run(ctx context.Context, src FrameSource, onFrame func(FrameResult)) (models.SessionSummary, error) {
	for {
		if err := ctx.Err(); err != nil {
			return s.Close(), err
		}
		set, err := src.Next()
		if errors.Is(err, io.EOF) {
			return s.Close(), nil
		}
		if err != nil {
			return s.Close(), fmt.Errorf("reading frame: %w", err)
		}
		res, err := s.Process(set)
		if err != nil {
			return s.Close(), err
		}
		if onFrame != nil {
			onFrame(res)
		}
	}
}
