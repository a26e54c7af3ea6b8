package registry

import (
	"github.com/angelmondragon/luggagedeposit-backend/pkg/enums"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/outbox/payloads"
)

// bookingPayloads maps every booking event to a constructor for its data
// section. The publisher and the consumers both read from it.
var bookingPayloads = map[enums.OutboxEventType]func() any{
	enums.EventBookingCreated:      func() any { return &payloads.BookingCreatedEvent{} },
	enums.EventBookingCheckedIn:    func() any { return &payloads.BookingTransitionedEvent{} },
	enums.EventBookingPickedUp:     func() any { return &payloads.BookingTransitionedEvent{} },
	enums.EventBookingCancelled:    func() any { return &payloads.BookingTransitionedEvent{} },
	enums.EventBookingArchived:     func() any { return &payloads.BookingArchivedEvent{} },
	enums.EventBookingNotesUpdated: func() any { return &payloads.BookingNotesUpdatedEvent{} },

	enums.EventBookingCheckInTokenIssued: func() any { return &payloads.BookingCheckInTokenIssuedEvent{} },
}
