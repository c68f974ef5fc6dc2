package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/felixgeelhaar/temario/internal/domain"
	"github.com/felixgeelhaar/temario/internal/session"
)

// jsonPublisher is the part of Connection the producer needs
type jsonPublisher interface {
	PublishJSON(ctx context.Context, queue string, data any) error
	PublishFanout(ctx context.Context, exchange string, data any) error
}

// Ensure Producer implements session.EventPublisher
var _ session.EventPublisher = (*Producer)(nil)

// Producer publishes selection and content events
type Producer struct {
	conn jsonPublisher
}

// NewProducer creates a new queue producer
func NewProducer(conn *Connection) *Producer {
	return &Producer{conn: conn}
}

// PublishSelectionIssued publishes a plan summary to the selections queue
func (p *Producer) PublishSelectionIssued(ctx context.Context, event domain.SelectionIssued) error {
	if err := p.conn.PublishJSON(ctx, SelectionQueueName, event); err != nil {
		return fmt.Errorf("failed to publish selection event: %w", err)
	}

	slog.Debug("published selection event",
		"event_id", event.ID,
		"session_id", event.SessionID,
		"delivered", event.Delivered,
	)
	return nil
}

// PublishSessionAdvanced publishes an accepted answer to the advances queue
func (p *Producer) PublishSessionAdvanced(ctx context.Context, event domain.SessionAdvanced) error {
	if err := p.conn.PublishJSON(ctx, AdvanceQueueName, event); err != nil {
		return fmt.Errorf("failed to publish advance event: %w", err)
	}

	slog.Debug("published advance event",
		"event_id", event.ID,
		"session_id", event.SessionID,
		"sequence", event.Sequence,
	)
	return nil
}

// PublishContentChanged tells every running daemon that a law's content
// changed. An empty law invalidates everything.
func (p *Producer) PublishContentChanged(ctx context.Context, law string) error {
	event := domain.ContentChanged{
		BaseEvent: domain.NewBaseEvent(domain.EventContentChanged),
		Law:       law,
	}
	if err := p.conn.PublishFanout(ctx, ContentExchangeName, event); err != nil {
		return fmt.Errorf("failed to publish content event: %w", err)
	}

	slog.Info("published content change", "event_id", event.ID, "law", law)
	return nil
}
