package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/felixgeelhaar/temario/internal/adaptive"
	"github.com/felixgeelhaar/temario/internal/config"
	"github.com/felixgeelhaar/temario/internal/domain"
	"github.com/felixgeelhaar/temario/internal/selection"
	"github.com/felixgeelhaar/temario/internal/session"
	"github.com/felixgeelhaar/temario/internal/storage/memory"
)

// setupTestServer creates a server over the in-memory test catalog
func setupTestServer(t *testing.T) (*Server, *session.Service) {
	t.Helper()

	catalog, err := memory.LoadFixture("../storage/memory/testdata/catalog.yaml")
	if err != nil {
		t.Fatalf("load fixture: %v", err)
	}

	sel := selection.NewService(catalog, catalog, selection.DefaultConfig())
	svc := session.NewService(sel, session.NewMemoryStore(), session.DefaultConfig())

	cfg := config.DefaultLocalConfig()
	cfg.Daemon.Port = 0
	cfg.Daemon.RateLimitPerSecond = 0
	cfg.Storage.PostgresURL = "postgres://temario:secret@db/temario"

	server, err := NewServer(ServerConfig{
		Config:        cfg,
		Sessions:      svc,
		StorageDriver: "memory",
	})
	if err != nil {
		t.Fatalf("create server: %v", err)
	}
	return server, svc
}

func do(t *testing.T, server *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := setupTestServer(t)

	w := do(t, server, http.MethodGet, "/v1/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	resp := decode[map[string]any](t, w)
	if resp["status"] != "healthy" {
		t.Errorf("expected status 'healthy', got %v", resp["status"])
	}
}

func TestStatusEndpoint(t *testing.T) {
	server, _ := setupTestServer(t)

	w := do(t, server, http.MethodGet, "/v1/status", nil)
	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	resp := decode[map[string]any](t, w)
	if resp["status"] != "running" {
		t.Errorf("expected status 'running', got %v", resp["status"])
	}
	if resp["storage"] != "memory" {
		t.Errorf("expected storage 'memory', got %v", resp["storage"])
	}
	if _, ok := resp["version"]; !ok {
		t.Error("expected 'version' field in response")
	}
}

func TestConfigEndpoint_HidesConnectionStrings(t *testing.T) {
	server, _ := setupTestServer(t)

	w := do(t, server, http.MethodGet, "/v1/config", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	if strings.Contains(w.Body.String(), "secret") {
		t.Errorf("config response leaks the database URL: %s", w.Body.String())
	}

	resp := decode[map[string]map[string]any](t, w)
	if resp["adaptive"]["upper_threshold"] != 0.8 {
		t.Errorf("adaptive.upper_threshold = %v, want 0.8", resp["adaptive"]["upper_threshold"])
	}
}

func TestSelectEndpoint(t *testing.T) {
	server, _ := setupTestServer(t)

	w := do(t, server, http.MethodPost, "/selection", map[string]any{
		"count": 2,
		"laws":  []string{"CE"},
		"seed":  42,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	plan := decode[domain.SessionPlan](t, w)
	if plan.Delivered != 2 || len(plan.Questions) != 2 {
		t.Errorf("plan delivered %d questions %v, want 2", plan.Delivered, plan.Questions)
	}
	if plan.Available != 3 {
		t.Errorf("plan.Available = %d, want 3", plan.Available)
	}
	if plan.SessionID == "" {
		t.Error("plan should carry a session id")
	}
}

func TestSelectEndpoint_NothingAvailable(t *testing.T) {
	server, _ := setupTestServer(t)

	w := do(t, server, http.MethodPost, "/selection", map[string]any{
		"count":       5,
		"laws":        []string{"CE"},
		"only_failed": true,
		"user_id":     "nobody",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	resp := decode[map[string]any](t, w)
	if resp["available"] != float64(0) {
		t.Errorf("available = %v, want 0", resp["available"])
	}
}

func TestSelectEndpoint_DifficultyIgnoresCase(t *testing.T) {
	server, _ := setupTestServer(t)

	for _, difficulty := range []string{"EASY", "Random"} {
		w := do(t, server, http.MethodPost, "/selection", map[string]any{
			"count":      2,
			"laws":       []string{"CE"},
			"difficulty": difficulty,
		})
		if w.Code != http.StatusOK {
			t.Errorf("difficulty %q: expected status %d, got %d: %s", difficulty, http.StatusOK, w.Code, w.Body.String())
		}
	}
}

func TestSelectEndpoint_Errors(t *testing.T) {
	server, _ := setupTestServer(t)

	tests := []struct {
		name       string
		body       any
		wantStatus int
		wantCode   string
	}{
		{"zero count", map[string]any{"count": 0, "laws": []string{"CE"}}, http.StatusBadRequest, CodeInvalidRequest},
		{"no scope", map[string]any{"count": 5}, http.StatusBadRequest, CodeInvalidRequest},
		{"unknown law", map[string]any{"count": 5, "laws": []string{"XX"}}, http.StatusBadRequest, CodeInsufficientScope},
		{"unknown topic", map[string]any{"count": 5, "topic": 99}, http.StatusBadRequest, CodeInsufficientScope},
		{"topic with section", map[string]any{"count": 5, "topic": 1, "laws": []string{"CE"}, "section": "titulo-i"}, http.StatusBadRequest, CodeInvalidRequest},
		{"unknown difficulty", map[string]any{"count": 5, "laws": []string{"CE"}, "difficulty": "brutal"}, http.StatusBadRequest, CodeInvalidRequest},
		{"malformed body", "not an object", http.StatusBadRequest, CodeInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, server, http.MethodPost, "/selection", tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
			resp := decode[map[string]any](t, w)
			if resp["code"] != tt.wantCode {
				t.Errorf("code = %v, want %s", resp["code"], tt.wantCode)
			}
			if resp["status"] != float64(tt.wantStatus) {
				t.Errorf("status field = %v, want %d", resp["status"], tt.wantStatus)
			}
		})
	}
}

func TestAdaptiveSessionLifecycle(t *testing.T) {
	server, _ := setupTestServer(t)

	w := do(t, server, http.MethodPost, "/selection", map[string]any{
		"count":    3,
		"laws":     []string{"CE"},
		"adaptive": true,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("select: expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	plan := decode[domain.SessionPlan](t, w)
	if !plan.Adaptive || len(plan.ActiveWindow) == 0 {
		t.Fatalf("expected an adaptive plan, got %+v", plan)
	}
	base := "/selection/" + plan.SessionID
	head := plan.ActiveWindow[0]

	// Answer the head of the window
	w = do(t, server, http.MethodPost, base+"/advance", map[string]any{
		"last_result": true,
		"question_id": head,
		"sequence":    1,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("advance: expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	view := decode[session.View](t, w)
	if view.Answered != 1 || view.Sequence != 2 {
		t.Errorf("view answered/sequence = %d/%d, want 1/2", view.Answered, view.Sequence)
	}
	if view.Phase != adaptive.PhaseWarming {
		t.Errorf("view.Phase = %q, want warming", view.Phase)
	}

	// Replaying the same answer conflicts
	w = do(t, server, http.MethodPost, base+"/advance", map[string]any{
		"last_result": true,
		"question_id": head,
	})
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate advance: expected status %d, got %d", http.StatusConflict, w.Code)
	}
	if resp := decode[map[string]any](t, w); resp["code"] != CodeStateConflict {
		t.Errorf("code = %v, want %s", resp["code"], CodeStateConflict)
	}

	// Current state
	w = do(t, server, http.MethodGet, base, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get: expected status %d, got %d", http.StatusOK, w.Code)
	}
	if got := decode[session.View](t, w); got.Next != view.Next {
		t.Errorf("get next = %q, want %q", got.Next, view.Next)
	}

	// Abandon, then further answers conflict
	w = do(t, server, http.MethodDelete, base, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("abandon: expected status %d, got %d", http.StatusOK, w.Code)
	}
	if got := decode[session.View](t, w); got.Status != session.StatusAbandoned {
		t.Errorf("abandon status = %q, want abandoned", got.Status)
	}

	w = do(t, server, http.MethodPost, base+"/advance", map[string]any{
		"last_result": false,
		"question_id": view.Next,
	})
	if w.Code != http.StatusConflict {
		t.Errorf("advance after abandon: expected status %d, got %d", http.StatusConflict, w.Code)
	}
}

func TestAdvanceEndpoint_Errors(t *testing.T) {
	server, _ := setupTestServer(t)

	tests := []struct {
		name       string
		path       string
		body       any
		wantStatus int
		wantCode   string
	}{
		{"unknown session", "/selection/nope/advance", map[string]any{"last_result": true, "question_id": "q"}, http.StatusNotFound, CodeSessionNotFound},
		{"missing last_result", "/selection/nope/advance", map[string]any{"question_id": "q"}, http.StatusBadRequest, CodeInvalidRequest},
		{"missing question_id", "/selection/nope/advance", map[string]any{"last_result": false}, http.StatusBadRequest, CodeInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, server, http.MethodPost, tt.path, tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
			if resp := decode[map[string]any](t, w); resp["code"] != tt.wantCode {
				t.Errorf("code = %v, want %s", resp["code"], tt.wantCode)
			}
		})
	}
}

func TestGetSession_Expired(t *testing.T) {
	server, svc := setupTestServer(t)

	plan, err := svc.Select(context.Background(), domain.SelectionRequest{Count: 3, Laws: []string{"CE"}, Adaptive: true})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}

	svc.SetClock(func() time.Time { return time.Now().Add(session.DefaultTTL + time.Minute) })

	w := do(t, server, http.MethodGet, "/selection/"+plan.SessionID, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, w.Code)
	}
	if resp := decode[map[string]any](t, w); resp["code"] != CodeSessionExpired {
		t.Errorf("code = %v, want %s", resp["code"], CodeSessionExpired)
	}
}

// failingSessions fails every call with err
type failingSessions struct{ err error }

func (f failingSessions) Select(context.Context, domain.SelectionRequest) (*domain.SessionPlan, error) {
	return nil, f.err
}
func (f failingSessions) Get(context.Context, string) (*session.Session, error) { return nil, f.err }
func (f failingSessions) Advance(context.Context, string, adaptive.Result) (*session.Session, error) {
	return nil, f.err
}
func (f failingSessions) Abandon(context.Context, string) (*session.Session, error) { return nil, f.err }

func TestInternalErrorsHideDetails(t *testing.T) {
	server, err := NewServer(ServerConfig{
		Config:   config.DefaultLocalConfig(),
		Sessions: failingSessions{err: errors.New("connection refused to 10.0.0.3")},
	})
	if err != nil {
		t.Fatalf("create server: %v", err)
	}

	w := do(t, server, http.MethodGet, "/selection/abc", nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
	}
	resp := decode[map[string]any](t, w)
	if resp["code"] != CodeInternal {
		t.Errorf("code = %v, want %s", resp["code"], CodeInternal)
	}
	if _, ok := resp["details"]; ok {
		t.Errorf("internal errors should not expose details: %v", resp["details"])
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{domain.ErrInsufficientScope, http.StatusBadRequest, CodeInsufficientScope},
		{domain.ErrInvalidRequest, http.StatusBadRequest, CodeInvalidRequest},
		{domain.ErrStateConflict, http.StatusConflict, CodeStateConflict},
		{domain.ErrSessionNotFound, http.StatusNotFound, CodeSessionNotFound},
		{domain.ErrSessionExpired, http.StatusNotFound, CodeSessionExpired},
		{domain.ErrNotFound, http.StatusNotFound, CodeNotFound},
		{errors.New("boom"), http.StatusInternalServerError, CodeInternal},
	}

	for _, tt := range tests {
		status, code := StatusFor(wrapErr(tt.err))
		if status != tt.wantStatus || code != tt.wantCode {
			t.Errorf("StatusFor(%v) = %d, %s; want %d, %s", tt.err, status, code, tt.wantStatus, tt.wantCode)
		}
	}
}

func wrapErr(err error) error {
	return errors.Join(errors.New("context"), err)
}

func TestNewServer_RequiresSessions(t *testing.T) {
	if _, err := NewServer(ServerConfig{Config: config.DefaultLocalConfig()}); err == nil {
		t.Error("NewServer() should fail without a session service")
	}
}

func TestSelectEndpoint_RateLimited(t *testing.T) {
	catalog, err := memory.LoadFixture("../storage/memory/testdata/catalog.yaml")
	if err != nil {
		t.Fatalf("load fixture: %v", err)
	}
	svc := session.NewService(selection.NewService(catalog, catalog, selection.DefaultConfig()), session.NewMemoryStore(), session.DefaultConfig())

	cfg := config.DefaultLocalConfig()
	cfg.Daemon.RateLimitPerSecond = 1
	cfg.Daemon.RateLimitBurst = 1

	server, err := NewServer(ServerConfig{Config: cfg, Sessions: svc})
	if err != nil {
		t.Fatalf("create server: %v", err)
	}
	defer server.Shutdown(context.Background())

	body := map[string]any{"count": 1, "laws": []string{"CE"}}
	if w := do(t, server, http.MethodPost, "/selection", body); w.Code != http.StatusOK {
		t.Fatalf("first request: expected status %d, got %d", http.StatusOK, w.Code)
	}
	if w := do(t, server, http.MethodPost, "/selection", body); w.Code != http.StatusTooManyRequests {
		t.Errorf("second request: expected status %d, got %d", http.StatusTooManyRequests, w.Code)
	}
}
