package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/luggagedeposit-backend/pkg/db/models"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/enums"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/outbox/registry"
)

type outcome int

const (
	outcomePublished outcome = iota
	outcomeRetry
	outcomeDeadLetter
)

// delivery is the result of one publish attempt for one outbox row.
type delivery struct {
	outcome outcome
	reason  enums.OutboxDLQErrorReason
	err     error
	fields  map[string]any
}

// processBatch publishes one locked batch and reports whether it found any
// rows. A retryable failure holds back the rest of that booking's events
// in the batch so per-booking order is kept.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	found := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		found = len(events) > 0

		held := map[uuid.UUID]bool{}
		for _, event := range events {
			if held[event.AggregateID] {
				continue
			}
			d := s.deliver(ctx, event)
			if err := s.record(ctx, tx, event, d); err != nil {
				return err
			}
			if d.outcome == outcomeRetry {
				held[event.AggregateID] = true
			}
		}
		return nil
	})
	return found, err
}

func (s *Service) deliver(ctx context.Context, event models.OutboxEvent) delivery {
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return delivery{outcome: outcomeDeadLetter, reason: enums.OutboxDLQReasonNonRetryable, err: err, fields: eventFields(event, nil)}
	}
	fields := eventFields(event, resolved)
	fields["batch_size"] = s.batchSize

	err = s.publish(ctx, event, resolved)
	var nonRetryable registry.NonRetryableError
	switch {
	case err == nil:
		return delivery{outcome: outcomePublished, fields: fields}
	case errors.As(err, &nonRetryable), errors.Is(err, errNoPublisher):
		return delivery{outcome: outcomeDeadLetter, reason: enums.OutboxDLQReasonNonRetryable, err: err, fields: fields}
	}

	attempt := event.AttemptCount + 1
	fields["attempt_count"] = attempt
	if attempt >= s.maxAttempts {
		return delivery{
			outcome: outcomeDeadLetter,
			reason:  enums.OutboxDLQReasonMaxAttempts,
			err:     fmt.Errorf("max publish attempts reached: %w", err),
			fields:  fields,
		}
	}
	return delivery{outcome: outcomeRetry, err: err, fields: fields}
}

func (s *Service) record(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, d delivery) error {
	logCtx := s.logg.WithFields(ctx, d.fields)
	switch d.outcome {
	case outcomePublished:
		if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.metrics.IncPublished(string(event.EventType))
		s.logg.Debug(logCtx, "outbox event published")
	case outcomeRetry:
		s.metrics.IncFailed(string(event.EventType))
		s.logg.Warn(s.logg.WithField(logCtx, "error", d.err.Error()), "outbox publish failed")
		if err := s.repo.MarkFailedTx(tx, event.ID, d.err); err != nil {
			return fmt.Errorf("mark failure %s: %w", event.ID, err)
		}
	case outcomeDeadLetter:
		return s.deadLetter(logCtx, tx, event, d)
	}
	return nil
}

func (s *Service) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, d delivery) error {
	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
		"error":        d.err.Error(),
		"error_reason": d.reason,
	}), "outbox event will not be retried")

	msg := d.err.Error()
	entry := models.OutboxDLQ{
		EventID:      event.ID,
		EventSubject: event.EventSubject,
		Payload:      event.Payload,
		ErrorReason:  d.reason,
		ErrorMessage: &msg,
		AttemptCount: event.AttemptCount,
		FailedAt:     s.now().UTC(),
	}
	if err := s.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := s.repo.MarkTerminalTx(tx, event.ID, d.err, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	s.metrics.IncDeadLettered(string(event.EventType), string(d.reason))
	return nil
}

func eventFields(event models.OutboxEvent, resolved *registry.ResolvedEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	if resolved != nil {
		fields["event_id"] = resolved.Envelope.EventID
		fields["topic"] = resolved.Descriptor.Topic
	}
	return fields
}
