package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/luggagedeposit-backend/pkg/enums"
)

// EventSubject names the event and the aggregate an outbox row is about. It
// is embedded by both outbox tables.
type EventSubject struct {
	EventType     enums.OutboxEventType     `gorm:"column:event_type;not null"`
	AggregateType enums.OutboxAggregateType `gorm:"column:aggregate_type;not null"`
	AggregateID   uuid.UUID                 `gorm:"column:aggregate_id;type:uuid;not null"`
}

// OutboxEvent is written in the same transaction as the booking change it
// announces and marked published by the publisher.
type OutboxEvent struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	EventSubject `gorm:"embedded"`
	Payload      json.RawMessage `gorm:"column:payload;type:jsonb;not null"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
	PublishedAt  *time.Time      `gorm:"column:published_at"`
	AttemptCount int             `gorm:"column:attempt_count;not null;default:0"`
	LastError    *string         `gorm:"column:last_error"`
}

func (OutboxEvent) TableName() string { return "outbox_events" }

// OutboxDLQ keeps a copy of a row the publisher gave up on.
type OutboxDLQ struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	EventID      uuid.UUID `gorm:"column:event_id;type:uuid;not null"`
	EventSubject `gorm:"embedded"`
	Payload      json.RawMessage            `gorm:"column:payload_json;type:jsonb;not null"`
	ErrorReason  enums.OutboxDLQErrorReason `gorm:"column:error_reason;not null"`
	ErrorMessage *string                    `gorm:"column:error_message"`
	AttemptCount int                        `gorm:"column:attempt_count;not null;default:0"`
	FailedAt     time.Time                  `gorm:"column:failed_at"`
	CreatedAt    time.Time                  `gorm:"column:created_at;autoCreateTime"`
}

func (OutboxDLQ) TableName() string { return "outbox_dlq" }
