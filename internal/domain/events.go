package domain

import (
	"time"

	"github.com/google/uuid"
)

// -----------------------------------------------------------------------------
// Event Interface and Base Event
// -----------------------------------------------------------------------------

// Event represents a domain event published to the message bus
type Event interface {
	// EventID returns the unique identifier for this event
	EventID() uuid.UUID
	// EventType returns the type name of this event
	EventType() string
	// OccurredAt returns when this event occurred
	OccurredAt() time.Time
}

// BaseEvent provides common event fields
type BaseEvent struct {
	ID        uuid.UUID `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// NewBaseEvent creates a new BaseEvent
func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New(),
		Type:      eventType,
		Timestamp: time.Now(),
	}
}

func (e BaseEvent) EventID() uuid.UUID    { return e.ID }
func (e BaseEvent) EventType() string     { return e.Type }
func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }

// -----------------------------------------------------------------------------
// Selection Events
// -----------------------------------------------------------------------------

const (
	EventSelectionIssued = "selection.issued"
	EventSessionAdvanced = "session.advanced"
	EventContentChanged  = "content.changed"
)

// SelectionIssued is emitted after a session plan was produced
type SelectionIssued struct {
	BaseEvent
	SessionID string        `json:"session_id"`
	UserID    string        `json:"user_id,omitempty"`
	Mode      SelectionMode `json:"mode"`
	Requested int           `json:"requested"`
	Available int           `json:"available"`
	Delivered int           `json:"delivered"`
}

// NewSelectionIssued builds the event for a plan
func NewSelectionIssued(userID string, plan SessionPlan) SelectionIssued {
	return SelectionIssued{
		BaseEvent: NewBaseEvent(EventSelectionIssued),
		SessionID: plan.SessionID,
		UserID:    userID,
		Mode:      plan.Mode,
		Requested: plan.Requested,
		Available: plan.Available,
		Delivered: plan.Delivered,
	}
}

// SessionAdvanced is emitted after an adaptive session accepted an answer
type SessionAdvanced struct {
	BaseEvent
	SessionID  string  `json:"session_id"`
	UserID     string  `json:"user_id,omitempty"`
	QuestionID string  `json:"question_id"`
	Correct    bool    `json:"correct"`
	Sequence   int     `json:"sequence"`
	Phase      string  `json:"phase"`
	Bias       string  `json:"bias"`
	Accuracy   float64 `json:"accuracy"`
}

// ContentChanged is consumed from the content-management process. An empty
// Law means every law changed.
type ContentChanged struct {
	BaseEvent
	Law string `json:"law,omitempty"`
}
