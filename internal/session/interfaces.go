package session

import (
	"context"

	"github.com/felixgeelhaar/temario/internal/adaptive"
	"github.com/felixgeelhaar/temario/internal/domain"
)

// SessionService defines the session operations used by the daemon handlers
// and the MCP tools
type SessionService interface {
	// Select builds a plan and registers adaptive sessions
	Select(ctx context.Context, req domain.SelectionRequest) (*domain.SessionPlan, error)

	// Get retrieves a live session by ID
	Get(ctx context.Context, id string) (*Session, error)

	// Advance applies one answer to an adaptive session
	Advance(ctx context.Context, id string, result adaptive.Result) (*Session, error)

	// Abandon ends a session
	Abandon(ctx context.Context, id string) (*Session, error)
}

// Ensure Service implements SessionService
var _ SessionService = (*Service)(nil)
