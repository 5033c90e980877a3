package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/claude/repform/internal/config"
	"github.com/claude/repform/internal/ingest"
	"github.com/claude/repform/internal/ingest/landmarks"
	"github.com/claude/repform/internal/models"
	"github.com/claude/repform/internal/posetest"
	"github.com/claude/repform/internal/storage"
	"github.com/google/uuid"
)

// memStore is an in-memory Store for handler tests.
type memStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]models.SessionRow
	reps     map[uuid.UUID][]models.RepRow
	logs     []storage.ImportLog
	filter   storage.SessionFilter
	users    map[string]int
	pingErr  error
}

func newMemStore() *memStore {
	return &memStore{
		sessions: map[uuid.UUID]models.SessionRow{},
		reps:     map[uuid.UUID][]models.RepRow{},
		users:    map[string]int{},
	}
}

func (m *memStore) InsertSession(_ context.Context, s models.SessionRow, reps []models.RepRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	m.reps[s.ID] = reps
	return nil
}

func (m *memStore) QuerySessions(_ context.Context, userID int, f storage.SessionFilter) ([]models.SessionRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filter = f
	var out []models.SessionRow
	for _, s := range m.sessions {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) GetSession(_ context.Context, id uuid.UUID, userID int) (*models.SessionRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.UserID != userID {
		return nil, storage.ErrNotFound
	}
	return &s, nil
}

func (m *memStore) QueryReps(ctx context.Context, id uuid.UUID, userID int) ([]models.RepRow, error) {
	if _, err := m.GetSession(ctx, id, userID); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reps[id], nil
}

func (m *memStore) DeleteSession(ctx context.Context, id uuid.UUID, userID int) error {
	if _, err := m.GetSession(ctx, id, userID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	delete(m.reps, id)
	return nil
}

func (m *memStore) GetFaultStats(_ context.Context, _ int, _, _ time.Time, exercise string) ([]storage.FaultStat, error) {
	return []storage.FaultStat{{Exercise: exercise, Category: "insufficient_depth", Reps: 2, Sessions: 1}}, nil
}

func (m *memStore) GetDataStats(_ context.Context, _ int) (*storage.DataStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &storage.DataStats{TotalSessions: int64(len(m.sessions))}, nil
}

func (m *memStore) GetOrCreateUser(_ context.Context, login, _ string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.users[login]; ok {
		return id, nil
	}
	id := len(m.users) + 2
	m.users[login] = id
	return id, nil
}

func (m *memStore) InsertImportLog(_ context.Context, l storage.ImportLog) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, l)
	return int64(len(m.logs)), nil
}

func (m *memStore) UpdateImportLog(_ context.Context, id int64, l storage.ImportLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.logs[id-1]
	l.UserID, l.Source = prev.UserID, prev.Source
	m.logs[id-1] = l
	return nil
}

func (m *memStore) QueryImportLogs(_ context.Context, _ int, _ int) ([]storage.ImportLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]storage.ImportLog(nil), m.logs...), nil
}

func (m *memStore) Ping(context.Context) error { return m.pingErr }

func newTestServer(t *testing.T) (*Server, *memStore) {
	t.Helper()
	cfg, err := config.Example()
	if err != nil {
		t.Fatal(err)
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := newMemStore()
	return New(cfg, store, landmarks.NewProvider(cfg, store, log), log), store
}

func do(s *Server, method, target string, body []byte, apiKey string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

// TestHandleMeDefault verifies the /api/v1/me endpoint returns the dev user
// identity when no Tailscale middleware is active.
func TestHandleMeDefault(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(s, http.MethodGet, "/api/v1/me", nil, "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var info UserInfo
	if err := json.NewDecoder(rec.Body).Decode(&info); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if info.Login != "local" {
		t.Errorf("login = %q, want %q", info.Login, "local")
	}
	if info.DisplayName != "Local Dev User" {
		t.Errorf("display_name = %q, want %q", info.DisplayName, "Local Dev User")
	}
}

// TestHandleMeTailscaleUser verifies the /api/v1/me endpoint returns the
// Tailscale user identity when set in context.
func TestHandleMeTailscaleUser(t *testing.T) {
	s := &Server{}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	ctx := context.WithValue(req.Context(), userInfoKey, UserInfo{Login: "alice@example.com", DisplayName: "Alice"})
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()

	s.handleMe(rec, req)

	var info UserInfo
	if err := json.NewDecoder(rec.Body).Decode(&info); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if info.Login != "alice@example.com" {
		t.Errorf("login = %q, want %q", info.Login, "alice@example.com")
	}
}

// TestAnalyzeRecording verifies an uploaded recording is analyzed, stored
// and logged, and its reps are then readable.
func TestAnalyzeRecording(t *testing.T) {
	s, store := newTestServer(t)
	body := posetest.Gzip(posetest.NDJSON(posetest.Squats(80, 2)))

	rec := do(s, http.MethodPost, "/api/v1/sessions?exercise=squat&source=garage.ndjson.gz", body, "change-me")
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body)
	}
	var res ingest.Result
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	if res.RepsDetected != 2 || res.SessionID == nil {
		t.Fatalf("result = %+v", res)
	}

	logs, _ := store.QueryImportLogs(context.Background(), 1, 0)
	if len(logs) != 1 || logs[0].Status != "success" || logs[0].RepsDetected != 2 {
		t.Errorf("import logs = %+v", logs)
	}
	if logs[0].Source != "garage.ndjson.gz" {
		t.Errorf("source = %q", logs[0].Source)
	}

	rec = do(s, http.MethodGet, "/api/v1/sessions/"+res.SessionID.String()+"/reps", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("reps status = %d", rec.Code)
	}
	var reps []models.RepRow
	if err := json.NewDecoder(rec.Body).Decode(&reps); err != nil {
		t.Fatal(err)
	}
	if len(reps) != 2 || reps[0].Number != 1 {
		t.Errorf("reps = %+v", reps)
	}

	rec = do(s, http.MethodGet, "/api/v1/sessions/"+res.SessionID.String(), nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("session status = %d", rec.Code)
	}
}

// TestAnalyzeRejects verifies auth and input errors on upload.
func TestAnalyzeRejects(t *testing.T) {
	good := posetest.NDJSON(posetest.Squats(80, 1))
	repeated := posetest.Squats(80, 1)
	repeated[5].Index = 4
	tests := []struct {
		name   string
		target string
		body   []byte
		key    string
		want   int
	}{
		{"missing key", "/api/v1/sessions", good, "", http.StatusUnauthorized},
		{"wrong key", "/api/v1/sessions", good, "nope", http.StatusForbidden},
		{"unknown exercise", "/api/v1/sessions?exercise=deadlift", good, "change-me", http.StatusBadRequest},
		{"malformed line", "/api/v1/sessions", []byte("{\"frame\":\n"), "change-me", http.StatusBadRequest},
		{"empty recording", "/api/v1/sessions", nil, "change-me", http.StatusBadRequest},
		{"out of order frame", "/api/v1/sessions?exercise=squat", posetest.NDJSON(repeated), "change-me", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t)
			rec := do(s, http.MethodPost, tt.target, tt.body, tt.key)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body)
			}
		})
	}
}

// TestAnalyzeErrorLogged verifies a failed analysis is recorded in the import log.
func TestAnalyzeErrorLogged(t *testing.T) {
	s, store := newTestServer(t)
	do(s, http.MethodPost, "/api/v1/sessions", []byte("garbage\n"), "change-me")

	logs, _ := store.QueryImportLogs(context.Background(), 1, 0)
	if len(logs) != 1 {
		t.Fatalf("logs = %d, want 1", len(logs))
	}
	if logs[0].Status != "error" || logs[0].ErrorMessage == nil || !strings.Contains(*logs[0].ErrorMessage, "line 1") {
		t.Errorf("log = %+v", logs[0])
	}
}

// TestGetSessionErrors verifies bad and unknown session IDs.
func TestGetSessionErrors(t *testing.T) {
	s, _ := newTestServer(t)
	if rec := do(s, http.MethodGet, "/api/v1/sessions/not-a-uuid", nil, ""); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid id status = %d, want 400", rec.Code)
	}
	if rec := do(s, http.MethodGet, "/api/v1/sessions/"+uuid.NewString(), nil, ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown id status = %d, want 404", rec.Code)
	}
	if rec := do(s, http.MethodGet, "/api/v1/sessions/"+uuid.NewString()+"/reps", nil, ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown reps status = %d, want 404", rec.Code)
	}
}

// TestQuerySessionsFilter verifies query params reach the store and an empty
// result is encoded as an array.
func TestQuerySessionsFilter(t *testing.T) {
	s, store := newTestServer(t)
	rec := do(s, http.MethodGet, "/api/v1/sessions?start=2026-03-01&end=2026-03-02&exercise=pushup&limit=5", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("body = %q, want []", rec.Body.String())
	}
	f := store.filter
	if f.Exercise != "pushup" || f.Limit != 5 {
		t.Errorf("filter = %+v", f)
	}
	if want := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC); !f.End.Equal(want) {
		t.Errorf("end = %v, want %v", f.End, want)
	}

	if rec := do(s, http.MethodGet, "/api/v1/sessions?limit=-1", nil, ""); rec.Code != http.StatusBadRequest {
		t.Errorf("negative limit status = %d, want 400", rec.Code)
	}
}

// TestDeleteSession verifies deletion requires the API key and removes the session.
func TestDeleteSession(t *testing.T) {
	s, store := newTestServer(t)
	id := uuid.New()
	store.InsertSession(context.Background(), models.SessionRow{ID: id, UserID: 1}, nil)

	if rec := do(s, http.MethodDelete, "/api/v1/sessions/"+id.String(), nil, ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("without key status = %d, want 401", rec.Code)
	}
	if rec := do(s, http.MethodDelete, "/api/v1/sessions/"+id.String(), nil, "change-me"); rec.Code != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", rec.Code)
	}
	if rec := do(s, http.MethodDelete, "/api/v1/sessions/"+id.String(), nil, "change-me"); rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}
}

// TestExercises verifies the configured exercises are listed by name.
func TestExercises(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(s, http.MethodGet, "/api/v1/exercises", nil, "")
	var got []exerciseInfo
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[0].Name != "lunge" || got[2].Name != "squat" {
		t.Fatalf("exercises = %+v", got)
	}
	if got[2].TopLabel != "start" || got[2].Primary != "knee_angle_avg" {
		t.Errorf("squat = %+v", got[2])
	}
	if len(got[2].Faults) != 4 {
		t.Errorf("squat faults = %d, want 4", len(got[2].Faults))
	}
}

// TestFaultStats verifies the exercise filter is forwarded.
func TestFaultStats(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(s, http.MethodGet, "/api/v1/faults/stats?exercise=squat", nil, "")
	var got []storage.FaultStat
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Exercise != "squat" {
		t.Errorf("stats = %+v", got)
	}
}

func TestHealth(t *testing.T) {
	s, store := newTestServer(t)

	rec := do(s, http.MethodGet, "/healthz", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	store.pingErr = errors.New("connection refused")
	rec = do(s, http.MethodGet, "/healthz", nil, "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "unavailable") {
		t.Errorf("body = %q, want unavailable status", rec.Body.String())
	}
}
