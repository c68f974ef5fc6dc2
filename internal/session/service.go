package session

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/felixgeelhaar/temario/internal/adaptive"
	"github.com/felixgeelhaar/temario/internal/domain"
	"github.com/felixgeelhaar/temario/internal/selection"
)

// DefaultTTL bounds how long an idle adaptive session is kept
const DefaultTTL = 6 * time.Hour

const lockStripes = 64

// Selector produces session plans
type Selector interface {
	Select(ctx context.Context, req domain.SelectionRequest, sessionID string) (*selection.Result, error)
}

// EventPublisher receives session events. Publishing is best-effort.
type EventPublisher interface {
	PublishSelectionIssued(ctx context.Context, event domain.SelectionIssued) error
	PublishSessionAdvanced(ctx context.Context, event domain.SessionAdvanced) error
}

// Config tunes the session service
type Config struct {
	TTL          time.Duration
	ActiveWindow int
	Adaptive     adaptive.Config
}

// DefaultConfig returns the defaults used by the daemon
func DefaultConfig() Config {
	return Config{
		TTL:          DefaultTTL,
		ActiveWindow: selection.DefaultActiveWindow,
		Adaptive:     adaptive.DefaultConfig(),
	}
}

// Service issues session plans and drives registered adaptive sessions
type Service struct {
	selector   Selector
	store      Store
	controller *adaptive.Controller
	cfg        Config
	publisher  EventPublisher
	now        func() time.Time

	// advances of the same session are serialized in-process; the store's
	// version check covers other processes
	locks [lockStripes]sync.Mutex
}

// NewService creates a session service
func NewService(selector Selector, store Store, cfg Config) *Service {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.ActiveWindow <= 0 {
		cfg.ActiveWindow = selection.DefaultActiveWindow
	}
	return &Service{
		selector:   selector,
		store:      store,
		controller: adaptive.NewController(cfg.Adaptive),
		cfg:        cfg,
		now:        time.Now,
	}
}

// SetPublisher sets the event publisher
func (s *Service) SetPublisher(p EventPublisher) {
	s.publisher = p
}

// SetClock replaces the clock used for expiry
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Select builds a plan for req. Adaptive plans with at least one question
// are registered as sessions that Advance can drive.
func (s *Service) Select(ctx context.Context, req domain.SelectionRequest) (*domain.SessionPlan, error) {
	id := NewID()

	res, err := s.selector.Select(ctx, req, id)
	if err != nil {
		return nil, err
	}
	plan := res.Plan

	if plan.Adaptive && !plan.Empty() {
		state := s.controller.Init(adaptive.ItemsFromPlan(plan), s.cfg.ActiveWindow)
		sess := NewSession(plan, res.Request.UserID, state, s.now(), s.cfg.TTL)
		if err := s.store.Save(ctx, sess); err != nil {
			return nil, fmt.Errorf("save session: %w", err)
		}
		slog.Info("adaptive session started", "session_id", sess.ID, "questions", plan.Delivered)
	}

	if s.publisher != nil {
		if err := s.publisher.PublishSelectionIssued(ctx, domain.NewSelectionIssued(res.Request.UserID, plan)); err != nil {
			slog.Warn("failed to publish selection event", "session_id", id, "error", err)
		}
	}

	return &plan, nil
}

// Get returns a live session
func (s *Service) Get(ctx context.Context, id string) (*Session, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Expired(s.now()) {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionExpired, id)
	}
	return sess, nil
}

// Advance applies the result of the question at the head of the active
// window. Duplicate, out-of-order or late results fail with
// domain.ErrStateConflict and leave the session unchanged.
func (s *Service) Advance(ctx context.Context, id string, result adaptive.Result) (*Session, error) {
	mu := s.lock(id)
	mu.Lock()
	defer mu.Unlock()

	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Status == StatusAbandoned {
		return nil, fmt.Errorf("%w: session %s was abandoned", domain.ErrStateConflict, id)
	}

	state, err := s.controller.Advance(sess.State, result)
	if err != nil {
		return nil, err
	}

	now := s.now()
	next := sess.Clone()
	next.State = state
	next.Version = sess.Version + 1
	next.UpdatedAt = now
	next.ExpiresAt = now.Add(s.cfg.TTL)
	if state.Completed() {
		next.Status = StatusCompleted
	}

	if err := s.store.Update(ctx, next, sess.Version); err != nil {
		return nil, err
	}

	slog.Debug("adaptive session advanced",
		"session_id", id,
		"answered", state.Answered(),
		"phase", state.Phase,
		"bias", state.Bias,
	)

	if s.publisher != nil {
		last := state.Answers[len(state.Answers)-1]
		event := domain.SessionAdvanced{
			BaseEvent:  domain.NewBaseEvent(domain.EventSessionAdvanced),
			SessionID:  id,
			UserID:     sess.UserID,
			QuestionID: last.QuestionID,
			Correct:    last.Correct,
			Sequence:   last.Sequence,
			Phase:      string(state.Phase),
			Bias:       string(state.Bias),
			Accuracy:   state.Accuracy,
		}
		if err := s.publisher.PublishSessionAdvanced(ctx, event); err != nil {
			slog.Warn("failed to publish advance event", "session_id", id, "error", err)
		}
	}

	return next, nil
}

// Abandon ends a session. Abandoning twice is a no-op.
func (s *Service) Abandon(ctx context.Context, id string) (*Session, error) {
	mu := s.lock(id)
	mu.Lock()
	defer mu.Unlock()

	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Status == StatusAbandoned {
		return sess, nil
	}

	next := sess.Clone()
	next.Status = StatusAbandoned
	next.State.Phase = adaptive.PhaseCompleted
	next.Version = sess.Version + 1
	next.UpdatedAt = s.now()

	if err := s.store.Update(ctx, next, sess.Version); err != nil {
		return nil, err
	}
	slog.Info("adaptive session abandoned", "session_id", id)
	return next, nil
}

// SweepExpired deletes sessions past their TTL
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	n, err := s.store.DeleteExpired(ctx, s.now())
	if err != nil {
		return n, fmt.Errorf("delete expired sessions: %w", err)
	}
	if n > 0 {
		slog.Info("expired sessions removed", "count", n)
	}
	return n, nil
}

// RunSweeper calls SweepExpired every interval until ctx is done
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepExpired(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("session sweep failed", "error", err)
			}
		}
	}
}

func (s *Service) lock(id string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(id))
	return &s.locks[h.Sum32()%lockStripes]
}
