package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/pubsub"
)

// DurableBus wraps the in-process Bus and also publishes every event to a
// Google Cloud Pub/Sub topic, for organizers who want a durable audit trail
// or cross-cluster mirroring of the tournament feed. Optional: the server
// runs fine on the in-process Bus alone (internal/wshub only needs that).
//
// Fan-out strategy:
//   - Pub/Sub: durable, at-least-once delivery to downstream consumers
//   - In-memory: immediate push to the WebSocket hubs
type DurableBus struct {
	*Bus

	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewDurableBus creates a Pub/Sub-backed event bus, creating the topic if
// it does not already exist.
func NewDurableBus(projectID, topicID string) (*DurableBus, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub.NewClient: %w", err)
	}

	topic := client.Topic(topicID)

	exists, err := topic.Exists(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("topic.Exists: %w", err)
	}
	if !exists {
		topic, err = client.CreateTopic(ctx, topicID)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("CreateTopic: %w", err)
		}
		slog.Info("events: created pubsub topic", "topic", topicID)
	}

	bus := &DurableBus{
		Bus:    NewBus(),
		client: client,
		topic:  topic,
	}

	slog.Info("events: connected to pubsub topic", "project", projectID, "topic", topicID)
	return bus, nil
}

// Emit builds a CloudEvent, publishes it to Pub/Sub, and fans it out to
// in-process subscribers (the WebSocket hubs).
func (pb *DurableBus) Emit(eventType, source, subject string, data map[string]interface{}) {
	event := NewCloudEvent(eventType, source, subject, data)
	pb.publishToPubSub(event)
	pb.Bus.Publish(event)
}

func (pb *DurableBus) publishToPubSub(event *CloudEvent) {
	payload, err := event.JSON()
	if err != nil {
		slog.Error("events: marshal failed", "event_id", event.ID, "error", err)
		return
	}

	msg := &pubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"ce-specversion": event.SpecVersion,
			"ce-type":        event.Type,
			"ce-source":      event.Source,
			"ce-id":          event.ID,
			"ce-time":        event.Time.Format(time.RFC3339Nano),
		},
	}

	result := pb.topic.Publish(context.Background(), msg)

	go func() {
		_, err := result.Get(context.Background())
		if err != nil {
			slog.Error("events: pubsub publish failed", "event_id", event.ID, "error", err)
		}
	}()
}

// PublishRaw publishes a pre-built CloudEvent to Pub/Sub and the in-process
// bus. Used to replay events recorded from the round action stream.
func (pb *DurableBus) PublishRaw(event *CloudEvent) {
	pb.publishToPubSub(event)
	pb.Bus.Publish(event)
}

// Close shuts down the Pub/Sub client.
func (pb *DurableBus) Close() error {
	pb.topic.Stop()
	if err := pb.client.Close(); err != nil {
		return fmt.Errorf("pubsub client close: %w", err)
	}
	return nil
}

// TopicPath returns the fully-qualified Pub/Sub topic path.
func (pb *DurableBus) TopicPath() string {
	return pb.topic.String()
}

// HealthCheck verifies the Pub/Sub topic is reachable.
func (pb *DurableBus) HealthCheck(ctx context.Context) error {
	exists, err := pb.topic.Exists(ctx)
	if err != nil {
		return fmt.Errorf("topic health check: %w", err)
	}
	if !exists {
		return fmt.Errorf("topic does not exist")
	}
	return nil
}

// Stats returns basic telemetry about the bus for the monitoring package.
func (pb *DurableBus) Stats() map[string]interface{} {
	return map[string]interface{}{
		"backend":     "gcp-pubsub",
		"topic":       pb.topic.String(),
		"subscribers": pb.Bus.SubscriberCount(),
	}
}

var _ Emitter = (*DurableBus)(nil)
