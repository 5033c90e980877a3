// Package feedback decides which form cues to announce and hands them to the
// speech or display layer without blocking frame processing.
package feedback

import (
	"github.com/claude/repform/internal/config"
	"github.com/claude/repform/internal/models"
)

// Granularity values.
const (
	PerPhase = "phase"
	PerRep   = "rep"
)

// Selector forwards only changes in the active fault set. A fault that stays
// active is announced once; an empty set with a good score earns one praise.
type Selector struct {
	cfg     config.FeedbackConfig
	emitted map[string]bool
	praised bool
	praises int
	seq     uint64
}

// NewSelector creates a Selector with an empty emitted set.
func NewSelector(cfg config.FeedbackConfig) *Selector {
	return &Selector{cfg: cfg, emitted: map[string]bool{}}
}

// Select returns the announcements for current, then makes current the
// emitted set. Calling it again with the same faults returns nothing.
func (s *Selector) Select(current []models.Fault, score float64, frame int) []models.Announcement {
	next := make(map[string]bool, len(current))
	var out []models.Announcement

	for _, f := range current {
		if next[f.Category] {
			continue
		}
		next[f.Category] = true
		if !s.emitted[f.Category] {
			out = append(out, s.announce(models.AnnounceWarning, f.Category, f.Message, frame))
		}
	}

	if len(next) == 0 && score >= s.cfg.PraiseThreshold {
		if !s.praised {
			line := s.cfg.PraiseLines[s.praises%len(s.cfg.PraiseLines)]
			s.praises++
			out = append(out, s.announce(models.AnnouncePraise, "", line, frame))
		}
		s.praised = true
	} else {
		s.praised = false
	}

	s.emitted = next
	return out
}

func (s *Selector) announce(kind models.AnnouncementKind, category, msg string, frame int) models.Announcement {
	s.seq++
	return models.Announcement{Seq: s.seq, Kind: kind, Category: category, Message: msg, Frame: frame}
}

// Reset forgets the emitted set; sequence numbers keep increasing.
func (s *Selector) Reset() {
	s.emitted = map[string]bool{}
	s.praised = false
}
