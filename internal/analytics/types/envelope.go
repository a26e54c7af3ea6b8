package types

import (
	"encoding/json"
	"time"

	"github.com/angelmondragon/luggagedeposit-backend/pkg/enums"
)

// Envelope is a booking event as received from the analytics subscription.
type Envelope struct {
	EventID       string
	EventType     enums.OutboxEventType
	Version       int
	AggregateType enums.OutboxAggregateType
	AggregateID   string
	OccurredAt    time.Time
	Payload       json.RawMessage
}
