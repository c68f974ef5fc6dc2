//go:build integration

package queue_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"

	"github.com/felixgeelhaar/temario/internal/domain"
	"github.com/felixgeelhaar/temario/internal/queue"
)

// setupRabbitMQ creates a RabbitMQ container for testing
func setupRabbitMQ(t *testing.T) (string, func()) {
	ctx := context.Background()

	container, err := rabbitmq.Run(ctx, "rabbitmq:3.12-management")
	if err != nil {
		t.Fatalf("failed to start RabbitMQ container: %v", err)
	}

	amqpURL, err := container.AmqpURL(ctx)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("failed to get AMQP URL: %v", err)
	}

	cleanup := func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}

	return amqpURL, cleanup
}

type recordingInvalidator struct {
	laws chan string
}

func (r *recordingInvalidator) Invalidate(ctx context.Context, law string) error {
	r.laws <- law
	return nil
}

func TestIntegration_Connection_ConnectAndClose(t *testing.T) {
	amqpURL, cleanup := setupRabbitMQ(t)
	defer cleanup()

	conn, err := queue.NewConnection(amqpURL)
	if err != nil {
		t.Fatalf("failed to create connection: %v", err)
	}

	if !conn.IsConnected() {
		t.Error("expected connection to be active")
	}

	if err := conn.Close(); err != nil {
		t.Errorf("failed to close connection: %v", err)
	}
}

func TestIntegration_Connection_InvalidURL(t *testing.T) {
	_, err := queue.NewConnection("amqp://invalid:5672")
	if err == nil {
		t.Error("expected error for invalid URL")
	}
}

func TestIntegration_Producer_PublishSelectionIssued(t *testing.T) {
	amqpURL, cleanup := setupRabbitMQ(t)
	defer cleanup()

	conn, err := queue.NewConnection(amqpURL)
	if err != nil {
		t.Fatalf("failed to create connection: %v", err)
	}
	defer conn.Close()

	producer := queue.NewProducer(conn)
	plan := domain.SessionPlan{SessionID: "s1", Mode: domain.ModeAdaptive, Requested: 10, Available: 4, Delivered: 4}

	if err := producer.PublishSelectionIssued(context.Background(), domain.NewSelectionIssued("u1", plan)); err != nil {
		t.Fatalf("failed to publish selection event: %v", err)
	}

	ch := conn.Channel()
	msg, ok, err := ch.Get(queue.SelectionQueueName, true)
	if err != nil || !ok {
		t.Fatalf("failed to get message: ok=%v err=%v", ok, err)
	}
	if msg.Type != domain.EventSelectionIssued {
		t.Errorf("message type = %q; want %q", msg.Type, domain.EventSelectionIssued)
	}

	var got domain.SelectionIssued
	if err := json.Unmarshal(msg.Body, &got); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if got.SessionID != "s1" || got.Delivered != 4 {
		t.Errorf("event = %+v", got)
	}
}

func TestIntegration_Producer_PublishSessionAdvanced(t *testing.T) {
	amqpURL, cleanup := setupRabbitMQ(t)
	defer cleanup()

	conn, err := queue.NewConnection(amqpURL)
	if err != nil {
		t.Fatalf("failed to create connection: %v", err)
	}
	defer conn.Close()

	producer := queue.NewProducer(conn)
	event := domain.SessionAdvanced{
		BaseEvent:  domain.NewBaseEvent(domain.EventSessionAdvanced),
		SessionID:  "s1",
		QuestionID: "q1",
		Correct:    true,
		Sequence:   1,
	}
	if err := producer.PublishSessionAdvanced(context.Background(), event); err != nil {
		t.Fatalf("failed to publish advance event: %v", err)
	}

	q, err := conn.Channel().QueueInspect(queue.AdvanceQueueName)
	if err != nil {
		t.Fatalf("failed to inspect queue: %v", err)
	}
	if q.Messages != 1 {
		t.Errorf("expected 1 message in queue, got %d", q.Messages)
	}
}

func TestIntegration_ContentConsumer_Invalidates(t *testing.T) {
	amqpURL, cleanup := setupRabbitMQ(t)
	defer cleanup()

	conn, err := queue.NewConnection(amqpURL)
	if err != nil {
		t.Fatalf("failed to create connection: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	inv := &recordingInvalidator{laws: make(chan string, 4)}
	consumer := queue.NewContentConsumer(conn, inv, queue.DefaultConsumerConfig())
	if err := consumer.Start(ctx); err != nil {
		t.Fatalf("failed to start consumer: %v", err)
	}
	defer consumer.Stop()

	producer := queue.NewProducer(conn)
	for _, law := range []string{"CE", ""} {
		if err := producer.PublishContentChanged(ctx, law); err != nil {
			t.Fatalf("failed to publish content change: %v", err)
		}
	}

	for _, want := range []string{"CE", ""} {
		select {
		case got := <-inv.laws:
			if got != want {
				t.Errorf("invalidated law = %q; want %q", got, want)
			}
		case <-ctx.Done():
			t.Fatalf("timeout waiting for invalidation of %q", want)
		}
	}
}

func TestIntegration_ContentConsumer_RejectsMalformed(t *testing.T) {
	amqpURL, cleanup := setupRabbitMQ(t)
	defer cleanup()

	conn, err := queue.NewConnection(amqpURL)
	if err != nil {
		t.Fatalf("failed to create connection: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	inv := &recordingInvalidator{laws: make(chan string, 2)}
	consumer := queue.NewContentConsumer(conn, inv, queue.DefaultConsumerConfig())
	if err := consumer.Start(ctx); err != nil {
		t.Fatalf("failed to start consumer: %v", err)
	}
	defer consumer.Stop()

	// a string body is valid JSON but not an event object
	if err := conn.PublishFanout(ctx, queue.ContentExchangeName, "not an event"); err != nil {
		t.Fatalf("failed to publish: %v", err)
	}
	if err := queue.NewProducer(conn).PublishContentChanged(ctx, "CE"); err != nil {
		t.Fatalf("failed to publish content change: %v", err)
	}

	// the malformed message is dropped, not redelivered ahead of the valid one
	select {
	case law := <-inv.laws:
		if law != "CE" {
			t.Errorf("invalidated law = %q; want CE", law)
		}
	case <-ctx.Done():
		t.Fatal("timeout waiting for invalidation")
	}

	time.Sleep(500 * time.Millisecond)
	select {
	case law := <-inv.laws:
		t.Errorf("unexpected invalidation of %q", law)
	default:
	}
}

func TestIntegration_ContentConsumer_EveryDaemonInvalidates(t *testing.T) {
	amqpURL, cleanup := setupRabbitMQ(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// one connection and consumer per daemon
	var invalidators []*recordingInvalidator
	for i := 0; i < 2; i++ {
		conn, err := queue.NewConnection(amqpURL)
		if err != nil {
			t.Fatalf("failed to create connection: %v", err)
		}
		defer conn.Close()

		inv := &recordingInvalidator{laws: make(chan string, 4)}
		consumer := queue.NewContentConsumer(conn, inv, queue.DefaultConsumerConfig())
		if err := consumer.Start(ctx); err != nil {
			t.Fatalf("failed to start consumer %d: %v", i, err)
		}
		defer consumer.Stop()
		invalidators = append(invalidators, inv)
	}

	pub, err := queue.NewConnection(amqpURL)
	if err != nil {
		t.Fatalf("failed to create connection: %v", err)
	}
	defer pub.Close()

	if err := queue.NewProducer(pub).PublishContentChanged(ctx, "LPAC"); err != nil {
		t.Fatalf("failed to publish content change: %v", err)
	}

	for i, inv := range invalidators {
		select {
		case got := <-inv.laws:
			if got != "LPAC" {
				t.Errorf("daemon %d invalidated %q; want LPAC", i, got)
			}
		case <-ctx.Done():
			t.Fatalf("daemon %d never saw the content change", i)
		}
	}
}
