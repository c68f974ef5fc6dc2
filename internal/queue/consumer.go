package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/felixgeelhaar/temario/internal/domain"
)

// invalidateTimeout bounds a single cache invalidation
const invalidateTimeout = 10 * time.Second

// Invalidator drops cached content of a law
type Invalidator interface {
	Invalidate(ctx context.Context, law string) error
}

// ContentConsumer consumes content-change events and invalidates the cache
type ContentConsumer struct {
	conn        *Connection
	invalidator Invalidator
	workers     int
	prefetch    int
	cancelFunc  context.CancelFunc
	wg          sync.WaitGroup
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	Workers  int // Number of concurrent workers
	Prefetch int // Prefetch count per worker
}

// DefaultConsumerConfig returns sensible defaults
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Workers:  1,
		Prefetch: 10,
	}
}

// NewContentConsumer creates a new content-change consumer
func NewContentConsumer(conn *Connection, invalidator Invalidator, cfg ConsumerConfig) *ContentConsumer {
	def := DefaultConsumerConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = def.Prefetch
	}

	return &ContentConsumer{
		conn:        conn,
		invalidator: invalidator,
		workers:     cfg.Workers,
		prefetch:    cfg.Prefetch,
	}
}

// Start begins consuming messages
func (c *ContentConsumer) Start(ctx context.Context) error {
	ctx, c.cancelFunc = context.WithCancel(ctx)

	ch := c.conn.Channel()
	if ch == nil {
		return ErrNotConnected
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	name, err := bindContentQueue(ch)
	if err != nil {
		return err
	}

	msgs, err := ch.Consume(
		name,
		"",    // consumer tag (auto-generated)
		false, // auto-ack (manual ack for reliability)
		true,  // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	slog.Info("starting content consumer", "queue", name, "workers", c.workers, "prefetch", c.prefetch)

	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go c.worker(ctx, i, msgs)
	}

	return nil
}

// bindContentQueue declares a server-named queue private to this connection
// and binds it to the content exchange. The broker drops it when the
// consumer goes away.
func bindContentQueue(ch *amqp.Channel) (string, error) {
	q, err := ch.QueueDeclare(
		"",    // server-generated name
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return "", fmt.Errorf("failed to declare content queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", ContentExchangeName, false, nil); err != nil {
		return "", fmt.Errorf("failed to bind %s to %s: %w", q.Name, ContentExchangeName, err)
	}
	return q.Name, nil
}

// worker processes messages from the queue
func (c *ContentConsumer) worker(ctx context.Context, id int, msgs <-chan amqp.Delivery) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-msgs:
			if !ok {
				slog.Info("message channel closed", "worker_id", id)
				return
			}

			c.processMessage(ctx, id, msg)
		}
	}
}

// processMessage handles a single content-change message
func (c *ContentConsumer) processMessage(ctx context.Context, workerID int, msg amqp.Delivery) {
	var event domain.ContentChanged
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		slog.Error("failed to unmarshal content event",
			"worker_id", workerID,
			"error", err,
		)
		// Reject without requeue for malformed messages
		_ = msg.Reject(false)
		return
	}

	invCtx, cancel := context.WithTimeout(ctx, invalidateTimeout)
	defer cancel()

	if err := c.invalidator.Invalidate(invCtx, event.Law); err != nil {
		slog.Error("cache invalidation failed",
			"worker_id", workerID,
			"law", event.Law,
			"redelivered", msg.Redelivered,
			"error", err,
		)
		// one redelivery, then drop
		_ = msg.Nack(false, !msg.Redelivered)
		return
	}

	slog.Info("content cache invalidated", "law", event.Law, "event_id", event.ID)

	if err := msg.Ack(false); err != nil {
		slog.Error("failed to ack message",
			"worker_id", workerID,
			"error", err,
		)
	}
}

// Stop gracefully stops the consumer
func (c *ContentConsumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
	c.wg.Wait()
	slog.Info("content consumer stopped")
}
