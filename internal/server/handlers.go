package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/claude/repform/internal/ingest/landmarks"
	"github.com/claude/repform/internal/models"
	"github.com/claude/repform/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// maxRecordingBytes caps an uploaded recording (about an hour at 30 fps).
const maxRecordingBytes = 256 << 20

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, userInfoFromContext(r))
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	kind, err := models.ParseExerciseKind(r.URL.Query().Get("exercise"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if kind.Known() {
		if _, ok := s.cfg.Exercise(kind); !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no rule table for exercise " + string(kind)})
			return
		}
	}
	source := r.URL.Query().Get("source")
	if source == "" {
		source = r.Header.Get("X-Recording-Name")
	}
	if source == "" {
		source = "upload"
	}

	uid := userIDFromContext(r)
	start := time.Now()
	logID, err := s.store.InsertImportLog(r.Context(), storage.ImportLog{UserID: uid, Source: source, Status: "running"})
	if err != nil {
		s.log.Warn("import log insert failed", "error", err)
	}

	body := http.MaxBytesReader(w, r.Body, maxRecordingBytes)
	result, err := s.provider.Ingest(r.Context(), body, uid, landmarks.Options{Source: source, Exercise: kind})

	entry := storage.ImportLog{Status: "success", DurationMs: durationMs(start)}
	if err != nil {
		msg := err.Error()
		entry.Status = "error"
		entry.ErrorMessage = &msg
	} else {
		entry.FramesReceived = result.FramesReceived
		entry.FramesSkipped = result.FramesSkipped
		entry.RepsDetected = result.RepsDetected
		entry.SessionID = result.SessionID
	}
	if logID != 0 {
		// The request context may already be cancelled; record the outcome anyway.
		if uerr := s.store.UpdateImportLog(context.WithoutCancel(r.Context()), logID, entry); uerr != nil {
			s.log.Warn("import log update failed", "error", uerr)
		}
	}

	if err != nil {
		status := http.StatusInternalServerError
		var perr *landmarks.ParseError
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			status = http.StatusRequestEntityTooLarge
		case errors.As(err, &perr), errors.Is(err, landmarks.ErrEmptyRecording):
			status = http.StatusBadRequest
		default:
			s.log.Error("analyze error", "source", source, "error", err)
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleQuerySessions(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseTimeRange(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	sessions, err := s.store.QuerySessions(r.Context(), userIDFromContext(r), storage.SessionFilter{
		Start:    start,
		End:      end,
		Exercise: r.URL.Query().Get("exercise"),
		Limit:    limit,
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if sessions == nil {
		sessions = []models.SessionRow{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	session, err := s.store.GetSession(r.Context(), id, userIDFromContext(r))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleQueryReps(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	reps, err := s.store.QueryReps(r.Context(), id, userIDFromContext(r))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if reps == nil {
		reps = []models.RepRow{}
	}
	writeJSON(w, http.StatusOK, reps)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	if err := s.store.DeleteSession(r.Context(), id, userIDFromContext(r)); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFaultStats(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseTimeRange(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	stats, err := s.store.GetFaultStats(r.Context(), userIDFromContext(r), start, end, r.URL.Query().Get("exercise"))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if stats == nil {
		stats = []storage.FaultStat{}
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleDataStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetDataStats(r.Context(), userIDFromContext(r))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleImportLogs(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	logs, err := s.store.QueryImportLogs(r.Context(), userIDFromContext(r), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if logs == nil {
		logs = []storage.ImportLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}

// exerciseInfo describes a configured exercise for clients.
type exerciseInfo struct {
	Name      string      `json:"name"`
	Primary   string      `json:"primary"`
	Direction string      `json:"direction"`
	TopLabel  string      `json:"top_label"`
	Faults    []faultInfo `json:"faults"`
}

type faultInfo struct {
	Category string `json:"category"`
	Scope    string `json:"scope"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

func (s *Server) handleExercises(w http.ResponseWriter, r *http.Request) {
	var out []exerciseInfo
	for _, kind := range models.ExerciseKinds {
		ex, ok := s.cfg.Exercise(kind)
		if !ok {
			continue
		}
		info := exerciseInfo{
			Name:      string(kind),
			Primary:   ex.Phase.Primary,
			Direction: ex.Phase.Direction,
			TopLabel:  ex.Phase.TopLabel,
		}
		if info.TopLabel == "" {
			info.TopLabel = models.PhaseTop.String()
		}
		for _, rule := range ex.Form.Rules {
			info.Faults = append(info.Faults, faultInfo{
				Category: rule.Category,
				Scope:    rule.Scope,
				Severity: rule.Severity,
				Message:  rule.Message,
			})
		}
		out = append(out, info)
	}
	slices.SortFunc(out, func(a, b exerciseInfo) int { return strings.Compare(a.Name, b.Name) })
	writeJSON(w, http.StatusOK, out)
}

func sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid session ID"})
		return uuid.Nil, false
	}
	return id, true
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

// handleHealth reports whether the server can reach its database.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.log.Warn("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New("limit must be a non-negative integer")
	}
	return n, nil
}

func parseTimeRange(r *http.Request) (start, end time.Time, err error) {
	startStr := r.URL.Query().Get("start")
	endStr := r.URL.Query().Get("end")

	if startStr == "" {
		// Default: last 7 days
		end = time.Now()
		start = end.AddDate(0, 0, -7)
		return
	}

	start, err = time.Parse(time.RFC3339, startStr)
	if err != nil {
		start, err = time.Parse("2006-01-02", startStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	}

	if endStr == "" {
		end = time.Now()
	} else {
		end, err = time.Parse(time.RFC3339, endStr)
		if err != nil {
			end, err = time.Parse("2006-01-02", endStr)
			if err != nil {
				return time.Time{}, time.Time{}, err
			}
			// End of day for date-only
			end = end.Add(24 * time.Hour)
		}
	}
	return
}
