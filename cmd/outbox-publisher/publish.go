package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/luggagedeposit-backend/pkg/db/models"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/outbox/registry"
)

type publisherFactory func(topic string) publisher

// publisher publishes ordered messages. After a failed publish the
// ordering key stays paused until ResumePublish is called.
type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
	ResumePublish(orderingKey string)
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// newMessage keys messages by booking id so subscribers see one booking's
// events in order.
func newMessage(event models.OutboxEvent, resolved *registry.ResolvedEvent) *gcppubsub.Message {
	key := event.AggregateID.String()
	return &gcppubsub.Message{
		Data:        event.Payload,
		OrderingKey: key,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"event_version":  strconv.Itoa(resolved.Envelope.Version),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   key,
			"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
		},
	}
}

// topicsFor lists the resolved topic plus the analytics fan-out topic.
func (s *Service) topicsFor(resolved *registry.ResolvedEvent) []string {
	topics := []string{resolved.Descriptor.Topic}
	if analytics := strings.TrimSpace(s.analyticsTopic); analytics != "" && analytics != resolved.Descriptor.Topic {
		topics = append(topics, analytics)
	}
	return topics
}

func (s *Service) publisherFor(topic string) (publisher, error) {
	if pub, ok := s.publishers[topic]; ok {
		return pub, nil
	}
	pub := s.publisherFactory(topic)
	if pub == nil {
		return nil, fmt.Errorf("%w for topic %s", errNoPublisher, topic)
	}
	s.publishers[topic] = pub
	return pub, nil
}

// publish waits for every topic to acknowledge the message. A partial
// failure is retried as a whole; subscribers dedupe on event_id.
func (s *Service) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	ctx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()

	msg := newMessage(event, resolved)
	for _, topic := range s.topicsFor(resolved) {
		pub, err := s.publisherFor(topic)
		if err != nil {
			return err
		}
		result := pub.Publish(ctx, msg)
		if result == nil {
			return fmt.Errorf("%w: nil result for topic %s", errNoPublisher, topic)
		}
		if _, err := result.Get(ctx); err != nil {
			pub.ResumePublish(msg.OrderingKey)
			return fmt.Errorf("publish to %s: %w", topic, err)
		}
	}
	return nil
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func newGCPPublisher(p *gcppubsub.Publisher) publisher {
	if p == nil {
		return nil
	}
	return &gcpPublisher{Publisher: p}
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return p.Publisher.Publish(ctx, msg)
}
