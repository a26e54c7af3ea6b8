package router

import (
	"fmt"

	"github.com/angelmondragon/luggagedeposit-backend/internal/analytics/types"
	"github.com/angelmondragon/luggagedeposit-backend/internal/analytics/writer"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/outbox/payloads"
)

func buildRow(envelope types.Envelope, payload any) (types.BookingEventRow, error) {
	row := types.BookingEventRow{
		EventID:    envelope.EventID,
		EventType:  string(envelope.EventType),
		OccurredAt: envelope.OccurredAt.UTC(),
		BookingID:  envelope.AggregateID,
	}

	stored := payload
	switch event := payload.(type) {
	case *payloads.BookingCreatedEvent:
		row.BookingRef = event.BookingRef
		row.ToStatus = strPtr(string(event.Status))
		row.AmountCents = int64Ptr(event.AmountCents)
		row.Currency = strPtr(string(event.Currency))
		row.BillableDays = int64Ptr(int64(event.BillableDays))
		row.BagsSmall = int64Ptr(int64(event.BagsSmall))
		row.BagsMedium = int64Ptr(int64(event.BagsMedium))
		row.BagsLarge = int64Ptr(int64(event.BagsLarge))
	case *payloads.BookingTransitionedEvent:
		row.BookingRef = event.BookingRef
		row.FromStatus = strPtr(string(event.FromStatus))
		row.ToStatus = strPtr(string(event.ToStatus))
		row.Actor = strPtr(event.Actor)
		row.AmountCents = int64Ptr(event.AmountCents)
		row.Currency = strPtr(string(event.Currency))
	case *payloads.BookingArchivedEvent:
		row.BookingRef = event.BookingRef
		row.ToStatus = strPtr(string(event.FinalStatus))
		row.Actor = strPtr(event.ArchivedBy)
		row.ArchiveReason = strPtr(string(event.Reason))
	case *payloads.BookingNotesUpdatedEvent:
		row.BookingRef = event.BookingRef
		row.Actor = strPtr(event.Actor)
	case *payloads.BookingCheckInTokenIssuedEvent:
		row.BookingRef = event.BookingRef
		row.Actor = strPtr(event.IssuedBy)
		// The link is a live credential and the contact is PII.
		redacted := *event
		redacted.CheckInURL = ""
		redacted.CustomerEmail = ""
		redacted.CustomerName = ""
		stored = &redacted
	default:
		return types.BookingEventRow{}, fmt.Errorf("%w: %T", ErrUnsupportedEventType, payload)
	}

	raw, err := writer.EncodeJSON(stored)
	if err != nil {
		return types.BookingEventRow{}, err
	}
	row.Payload = raw
	return row, nil
}

func strPtr(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func int64Ptr(value int64) *int64 {
	return &value
}
