package mcp

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/felixgeelhaar/temario/internal/domain"
	"github.com/felixgeelhaar/temario/internal/selection"
	"github.com/felixgeelhaar/temario/internal/session"
	"github.com/felixgeelhaar/temario/internal/storage/memory"
)

// setupTestServer creates a test MCP server over the fixture catalog
func setupTestServer(t *testing.T) *Server {
	t.Helper()

	catalog, err := memory.LoadFixture("../storage/memory/testdata/catalog.yaml")
	if err != nil {
		t.Fatalf("load fixture: %v", err)
	}

	sel := selection.NewService(catalog, catalog, selection.DefaultConfig())
	svc := session.NewService(sel, session.NewMemoryStore(), session.DefaultConfig())

	return NewServer(Config{Sessions: svc})
}

func TestNewServer(t *testing.T) {
	server := setupTestServer(t)

	if server.mcpServer == nil {
		t.Fatal("expected non-nil MCP server")
	}
	if server.sessions == nil {
		t.Fatal("expected non-nil session service")
	}
	if server.GetMCPServer() == nil {
		t.Fatal("expected non-nil underlying MCP server")
	}
}

func TestServerConfig(t *testing.T) {
	// nil services should not panic at construction
	if server := NewServer(Config{}); server == nil {
		t.Fatal("expected non-nil server even with nil config")
	}
}

func TestHandleSelect(t *testing.T) {
	server := setupTestServer(t)
	ctx := context.Background()

	out, err := server.handleSelect(ctx, SelectInput{
		Count: 2,
		Laws:  []string{"CE"},
		Seed:  42,
	})
	if err != nil {
		t.Fatalf("handleSelect() error = %v", err)
	}
	if out.Delivered != 2 || len(out.Questions) != 2 {
		t.Errorf("Delivered = %d, questions = %v; want 2", out.Delivered, out.Questions)
	}
	if out.Available != 3 {
		t.Errorf("Available = %d; want 3", out.Available)
	}
	if out.Mode != string(domain.ModePrioritized) {
		t.Errorf("Mode = %q; want prioritized", out.Mode)
	}
	if !strings.HasPrefix(out.Message, "Selected 2") {
		t.Errorf("Message = %q", out.Message)
	}
}

func TestHandleSelect_Shortfall(t *testing.T) {
	server := setupTestServer(t)

	out, err := server.handleSelect(context.Background(), SelectInput{Count: 10, Laws: []string{"CE"}})
	if err != nil {
		t.Fatalf("handleSelect() error = %v", err)
	}
	if out.Delivered != 3 {
		t.Errorf("Delivered = %d; want 3", out.Delivered)
	}
	if !strings.Contains(out.Message, "Only 3 of 10") {
		t.Errorf("Message = %q", out.Message)
	}
}

func TestHandleSelect_NothingAvailable(t *testing.T) {
	server := setupTestServer(t)

	out, err := server.handleSelect(context.Background(), SelectInput{
		Count:      5,
		UserID:     "nobody",
		Laws:       []string{"CE"},
		OnlyFailed: true,
	})
	if err != nil {
		t.Fatalf("handleSelect() error = %v", err)
	}
	if out.Delivered != 0 || !strings.HasPrefix(out.Message, "No questions available") {
		t.Errorf("out = %+v; want the empty outcome", out)
	}
}

func TestHandleSelect_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input SelectInput
	}{
		{"zero count", SelectInput{Count: 0, Laws: []string{"CE"}}},
		{"no scope", SelectInput{Count: 5}},
		{"bad difficulty", SelectInput{Count: 5, Laws: []string{"CE"}, Difficulty: "impossible"}},
		{"failed without user", SelectInput{Count: 5, Laws: []string{"CE"}, OnlyFailed: true}},
	}

	server := setupTestServer(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := server.handleSelect(context.Background(), tt.input)
			if !errors.Is(err, domain.ErrInvalidRequest) {
				t.Errorf("handleSelect() error = %v; want ErrInvalidRequest", err)
			}
		})
	}
}

func TestAdaptiveSessionTools(t *testing.T) {
	server := setupTestServer(t)
	ctx := context.Background()

	plan, err := server.handleSelect(ctx, SelectInput{
		Count:    4,
		Laws:     []string{"CE", "LPAC"},
		Adaptive: true,
		Seed:     7,
	})
	if err != nil {
		t.Fatalf("handleSelect() error = %v", err)
	}
	if plan.Mode != string(domain.ModeAdaptive) || len(plan.ActiveWindow) == 0 {
		t.Fatalf("plan = %+v; want an adaptive plan", plan)
	}

	got, err := server.handleGet(ctx, SessionInput{SessionID: plan.SessionID})
	if err != nil {
		t.Fatalf("handleGet() error = %v", err)
	}
	if got.Sequence != 1 || got.Next == "" {
		t.Errorf("get_session = %+v; want sequence 1 and a next question", got)
	}

	next, err := server.handleAdvance(ctx, AdvanceInput{
		SessionID:  plan.SessionID,
		QuestionID: got.Next,
		Correct:    true,
		Sequence:   got.Sequence,
	})
	if err != nil {
		t.Fatalf("handleAdvance() error = %v", err)
	}
	if next.Answered != 1 || next.Version != 2 {
		t.Errorf("Answered/Version = %d/%d; want 1/2", next.Answered, next.Version)
	}

	// replay of the same sequence
	_, err = server.handleAdvance(ctx, AdvanceInput{
		SessionID:  plan.SessionID,
		QuestionID: got.Next,
		Correct:    true,
		Sequence:   got.Sequence,
	})
	if !errors.Is(err, domain.ErrStateConflict) {
		t.Errorf("replay error = %v; want ErrStateConflict", err)
	}

	ended, err := server.handleAbandon(ctx, SessionInput{SessionID: plan.SessionID})
	if err != nil {
		t.Fatalf("handleAbandon() error = %v", err)
	}
	if ended.Status != string(session.StatusAbandoned) {
		t.Errorf("Status = %q; want abandoned", ended.Status)
	}
}

func TestSessionTools_Errors(t *testing.T) {
	server := setupTestServer(t)
	ctx := context.Background()

	_, err := server.handleGet(ctx, SessionInput{SessionID: "missing"})
	if !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("handleGet() error = %v; want ErrSessionNotFound", err)
	}
	if err != nil && !strings.Contains(err.Error(), "unknown session") {
		t.Errorf("error message = %q", err.Error())
	}

	_, err = server.handleAdvance(ctx, AdvanceInput{SessionID: "missing"})
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Errorf("handleAdvance() without question error = %v; want ErrInvalidRequest", err)
	}
}
