// Package worker consumes booking events from the analytics subscription
// and hands them to the BigQuery router.
package worker

import (
	"context"
	"errors"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/luggagedeposit-backend/internal/analytics/router"
	"github.com/angelmondragon/luggagedeposit-backend/internal/analytics/types"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/logger"
)

// ConsumerName scopes the processed-event claims of this worker.
const ConsumerName = "analytics"

type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope) error
}

type HandlerFunc func(ctx context.Context, envelope types.Envelope) error

func (fn HandlerFunc) Handle(ctx context.Context, envelope types.Envelope) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, envelope)
}

type claimer interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

type receiver interface {
	Receive(ctx context.Context, fn func(context.Context, *gcppubsub.Message)) error
}

type disposition int

const (
	ack disposition = iota
	nack
)

// Service claims each event id in Redis before handling it, so redelivered
// messages are written once. Handler failures release the claim and nack
// the message for redelivery.
type Service struct {
	subscription receiver
	handler      Handler
	claims       claimer
	logg         *logger.Logger
}

func NewService(subscription *gcppubsub.Subscriber, handler Handler, claims claimer, logg *logger.Logger) (*Service, error) {
	switch {
	case subscription == nil:
		return nil, errors.New("analytics subscription is required")
	case handler == nil:
		return nil, errors.New("analytics handler is required")
	case claims == nil:
		return nil, errors.New("idempotency guard is required")
	case logg == nil:
		return nil, errors.New("logger is required")
	}
	return &Service{subscription: subscription, handler: handler, claims: claims, logg: logg}, nil
}

// Run receives messages until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	return s.subscription.Receive(ctx, func(msgCtx context.Context, msg *gcppubsub.Message) {
		if s.process(msgCtx, msg) == nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func (s *Service) process(ctx context.Context, msg *gcppubsub.Message) disposition {
	ctx = s.logg.WithField(ctx, "message_id", msg.ID)

	envelope, err := buildEnvelope(msg)
	if err != nil {
		// Redelivery would fail the same way.
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "invalid analytics envelope")
		return ack
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"event_id":      envelope.EventID,
		"event_type":    envelope.EventType,
		"event_version": envelope.Version,
		"aggregate_id":  envelope.AggregateID,
		"occurred_at":   envelope.OccurredAt.Format(time.RFC3339Nano),
	})

	seen, err := s.claims.CheckAndMark(ctx, envelope.EventID)
	switch {
	case err != nil:
		s.logg.Error(ctx, "idempotency check failed", err)
		return nack
	case seen:
		s.logg.Info(ctx, "event already processed")
		return ack
	}

	err = s.handler.Handle(ctx, *envelope)
	switch {
	case err == nil:
		s.logg.Info(ctx, "analytics event handled")
		return ack
	case errors.Is(err, router.ErrUnsupportedEventType), errors.Is(err, router.ErrMalformedPayload):
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "analytics event dropped")
		return ack
	}
	s.logg.Error(ctx, "analytics handler failed", err)
	if releaseErr := s.claims.Release(ctx, envelope.EventID); releaseErr != nil {
		s.logg.Error(ctx, "idempotency release failed", releaseErr)
	}
	return nack
}
