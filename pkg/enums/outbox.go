package enums

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateBooking OutboxAggregateType = "booking"
)

var aggregateTypes = valueSet[OutboxAggregateType]{AggregateBooking}

func (a OutboxAggregateType) IsValid() bool { return aggregateTypes.has(a) }

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return aggregateTypes.parse(value, "aggregate type")
}

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	EventBookingCreated      OutboxEventType = "booking_created"
	EventBookingCheckedIn    OutboxEventType = "booking_checked_in"
	EventBookingPickedUp     OutboxEventType = "booking_picked_up"
	EventBookingCancelled    OutboxEventType = "booking_cancelled"
	EventBookingArchived     OutboxEventType = "booking_archived"
	EventBookingNotesUpdated OutboxEventType = "booking_notes_updated"
	// EventBookingCheckInTokenIssued carries the kiosk link to the
	// Pub/Sub subscriber that mails it to the customer.
	EventBookingCheckInTokenIssued OutboxEventType = "booking_checkin_token_issued"
)

var outboxEventTypes = valueSet[OutboxEventType]{
	EventBookingCreated,
	EventBookingCheckedIn,
	EventBookingPickedUp,
	EventBookingCancelled,
	EventBookingArchived,
	EventBookingNotesUpdated,
	EventBookingCheckInTokenIssued,
}

func (e OutboxEventType) IsValid() bool { return outboxEventTypes.has(e) }

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return outboxEventTypes.parse(value, "event type")
}

// BookingStatusEvent returns the event announcing a transition into status.
func BookingStatusEvent(status BookingStatus) (OutboxEventType, bool) {
	switch status {
	case BookingStatusCheckedIn:
		return EventBookingCheckedIn, true
	case BookingStatusPickedUp:
		return EventBookingPickedUp, true
	case BookingStatusCancelled:
		return EventBookingCancelled, true
	default:
		return "", false
	}
}

// OutboxDLQErrorReason records why an event was moved to the dead letter table.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

var dlqErrorReasons = valueSet[OutboxDLQErrorReason]{OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable}

func (r OutboxDLQErrorReason) IsValid() bool { return dlqErrorReasons.has(r) }
