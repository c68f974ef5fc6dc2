package selection

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/temario/internal/domain"
)

// Config tunes the selection service
type Config struct {
	// MaxCount caps the requested count. Zero disables the cap.
	MaxCount int
	// ActiveWindow is the adaptive active window size
	ActiveWindow int
	// DefaultFailedOrder applies to failed review requests without an order
	DefaultFailedOrder domain.FailedOrder
	// StrictFlags rejects requests forcing both official-only and
	// essential-articles instead of letting essential articles win
	StrictFlags bool
}

// DefaultConfig returns the defaults used by the daemon
func DefaultConfig() Config {
	return Config{
		MaxCount:           200,
		ActiveWindow:       DefaultActiveWindow,
		DefaultFailedOrder: domain.FailedOrderMostFailed,
	}
}

// Result is a session plan plus the ordered candidates it was built from
type Result struct {
	Request domain.SelectionRequest
	Plan    domain.SessionPlan
	Ordered []Candidate
}

// Service builds session plans: resolve, order, count, assemble
type Service struct {
	resolver *Resolver
	cfg      Config
}

// NewService creates a selection service
func NewService(content ContentIndex, history HistoryStore, cfg Config) *Service {
	if cfg.ActiveWindow <= 0 {
		cfg.ActiveWindow = DefaultActiveWindow
	}
	return &Service{
		resolver: NewResolver(content, history),
		cfg:      cfg,
	}
}

// SetClock replaces the clock used for recency exclusion
func (s *Service) SetClock(now func() time.Time) {
	s.resolver.SetClock(now)
}

// Select produces the plan for one request. sessionID seeds the shuffle when
// the request carries no explicit seed. Invalid requests are rejected before
// any store access.
func (s *Service) Select(ctx context.Context, req domain.SelectionRequest, sessionID string) (*Result, error) {
	if s.cfg.StrictFlags && req.HasConflictingFlags() {
		return nil, fmt.Errorf("%w: only_official and only_essential_articles are mutually exclusive", domain.ErrInvalidRequest)
	}

	req, err := req.Normalize(s.cfg.DefaultFailedOrder)
	if err != nil {
		return nil, err
	}
	if s.cfg.MaxCount > 0 && req.Count > s.cfg.MaxCount {
		return nil, fmt.Errorf("%w: count %d exceeds the maximum of %d", domain.ErrInvalidRequest, req.Count, s.cfg.MaxCount)
	}

	set, err := s.resolver.ResolveCandidates(ctx, req)
	if err != nil {
		return nil, err
	}

	seed := req.Seed
	if seed == 0 {
		seed = SeedFor(sessionID)
	}
	rng := NewRand(seed)

	var ordered []Candidate
	if req.OnlyFailed {
		ordered = OrderFailed(set.Candidates, req.FailedOrder, rng)
	} else {
		ordered = Prioritize(set.Candidates, rng)
	}

	target := ResolveTargetCount(req, set)
	plan := Assemble(ordered, target, req.Adaptive, s.cfg.ActiveWindow)
	plan.SessionID = sessionID
	plan.Mode = req.Mode()
	plan.Seed = seed
	plan.Requested = req.Count
	plan.Available = set.Len()

	slog.Debug("selection assembled",
		"session_id", sessionID,
		"mode", plan.Mode,
		"requested", plan.Requested,
		"available", plan.Available,
		"delivered", plan.Delivered,
	)

	return &Result{
		Request: req,
		Plan:    plan,
		Ordered: ordered[:plan.Delivered],
	}, nil
}
