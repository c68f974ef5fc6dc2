package session

import (
	"time"

	"github.com/felixgeelhaar/temario/internal/adaptive"
	"github.com/felixgeelhaar/temario/internal/domain"
	"github.com/google/uuid"
)

// Status represents the session lifecycle
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusAbandoned Status = "abandoned"
)

// Session is a registered adaptive session. Version increases by one on
// every accepted change and guards concurrent updates.
type Session struct {
	ID     string               `json:"id"`
	UserID string               `json:"user_id,omitempty"`
	Mode   domain.SelectionMode `json:"mode"`
	Seed   int64                `json:"seed"`
	Status Status               `json:"status"`
	State  adaptive.State       `json:"state"`

	Version int `json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewID generates a session id
func NewID() string {
	return uuid.New().String()
}

// NewSession registers the initial adaptive state of a plan
func NewSession(plan domain.SessionPlan, userID string, state adaptive.State, now time.Time, ttl time.Duration) *Session {
	s := &Session{
		ID:        plan.SessionID,
		UserID:    userID,
		Mode:      plan.Mode,
		Seed:      plan.Seed,
		Status:    StatusActive,
		State:     state,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if state.Completed() {
		s.Status = StatusCompleted
	}
	return s
}

// Expired reports whether the session outlived its TTL
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// Clone returns a deep copy
func (s *Session) Clone() *Session {
	out := *s
	out.State = s.State.Clone()
	return &out
}

// View is the client-facing adaptive state
type View struct {
	SessionID    string            `json:"session_id"`
	Status       Status            `json:"status"`
	Phase        adaptive.Phase    `json:"phase"`
	Bias         adaptive.Bias     `json:"bias"`
	Target       domain.Difficulty `json:"target_difficulty,omitempty"`
	Accuracy     float64           `json:"accuracy"`
	Next         string            `json:"next_question,omitempty"`
	ActiveWindow []string          `json:"active_window"`
	Pool         []string          `json:"pool"`
	Answered     int               `json:"answered"`
	Remaining    int               `json:"remaining"`
	Sequence     int               `json:"sequence"`
	Version      int               `json:"version"`
	ExpiresAt    time.Time         `json:"expires_at"`
}

// View projects the session for clients. Sequence is the number the next
// answer must carry.
func (s *Session) View() View {
	v := View{
		SessionID:    s.ID,
		Status:       s.Status,
		Phase:        s.State.Phase,
		Bias:         s.State.Bias,
		Target:       s.State.Target,
		Accuracy:     s.State.Accuracy,
		ActiveWindow: make([]string, 0, len(s.State.ActiveWindow)),
		Pool:         make([]string, 0, len(s.State.Pool)),
		Answered:     s.State.Answered(),
		Remaining:    s.State.Remaining(),
		Sequence:     s.State.Answered() + 1,
		Version:      s.Version,
		ExpiresAt:    s.ExpiresAt,
	}
	if s.Status == StatusActive {
		v.Next = s.State.Next()
	}
	for _, it := range s.State.ActiveWindow {
		v.ActiveWindow = append(v.ActiveWindow, it.ID)
	}
	for _, it := range s.State.Pool {
		v.Pool = append(v.Pool, it.ID)
	}
	return v
}
