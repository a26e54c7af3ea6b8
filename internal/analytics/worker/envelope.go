package worker

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/luggagedeposit-backend/internal/analytics/types"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/enums"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/outbox"
)

// buildEnvelope combines the message body with its attributes. The body
// wins where both carry a value.
func buildEnvelope(msg *gcppubsub.Message) (*types.Envelope, error) {
	stored, err := outbox.DecodeEnvelope(msg.Data)
	if err != nil {
		return nil, err
	}
	eventType, err := enums.ParseOutboxEventType(attribute(msg, "event_type"))
	if err != nil {
		return nil, fmt.Errorf("event_type: %w", err)
	}
	aggregateType, err := enums.ParseOutboxAggregateType(attribute(msg, "aggregate_type"))
	if err != nil {
		return nil, fmt.Errorf("aggregate_type: %w", err)
	}
	aggregateID := attribute(msg, "aggregate_id")
	if aggregateID == "" {
		return nil, errors.New("aggregate_id missing")
	}
	eventID := firstNonEmpty(strings.TrimSpace(stored.EventID), attribute(msg, "event_id"))
	if eventID == "" {
		return nil, errors.New("event_id missing")
	}

	version := stored.Version
	if raw := attribute(msg, "event_version"); version <= 0 && raw != "" {
		if version, err = strconv.Atoi(raw); err != nil {
			return nil, fmt.Errorf("event_version: %w", err)
		}
	}
	occurredAt := stored.OccurredAt
	if occurredAt.IsZero() {
		// A malformed created_at leaves the zero time.
		occurredAt, _ = time.Parse(time.RFC3339Nano, attribute(msg, "created_at"))
	}

	return &types.Envelope{
		EventID:       eventID,
		EventType:     eventType,
		Version:       version,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		OccurredAt:    occurredAt.UTC(),
		Payload:       stored.Data,
	}, nil
}

func attribute(msg *gcppubsub.Message, key string) string {
	return strings.TrimSpace(msg.Attributes[key])
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
