package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/luggagedeposit-backend/pkg/enums"
)

// BookingCreatedEvent is emitted once, when a paid checkout first lands.
type BookingCreatedEvent struct {
	BookingID    uuid.UUID           `json:"booking_id"`
	BookingRef   string              `json:"booking_ref"`
	Status       enums.BookingStatus `json:"status"`
	DropOffDate  string              `json:"drop_off_date"`
	PickUpDate   string              `json:"pick_up_date"`
	BillableDays int                 `json:"billable_days"`
	BagsSmall    int                 `json:"bags_small"`
	BagsMedium   int                 `json:"bags_medium"`
	BagsLarge    int                 `json:"bags_large"`
	AmountCents  int64               `json:"amount_cents"`
	Currency     enums.Currency      `json:"currency"`
	CreatedAt    time.Time           `json:"created_at"`
}

// BookingTransitionedEvent covers check-in, pickup and cancellation.
type BookingTransitionedEvent struct {
	BookingID   uuid.UUID           `json:"booking_id"`
	BookingRef  string              `json:"booking_ref"`
	FromStatus  enums.BookingStatus `json:"from_status"`
	ToStatus    enums.BookingStatus `json:"to_status"`
	Actor       string              `json:"actor"`
	AmountCents int64               `json:"amount_cents"`
	Currency    enums.Currency      `json:"currency"`
	OccurredAt  time.Time           `json:"occurred_at"`
}

// ArchiveReason says which path moved the booking out of the active store.
type ArchiveReason string

const (
	ArchiveReasonPickup             ArchiveReason = "pickup"
	ArchiveReasonStale              ArchiveReason = "stale"
	ArchiveReasonCancelledRetention ArchiveReason = "cancelled_retention"
)

// BookingArchivedEvent is emitted in the same transaction as the archive copy.
type BookingArchivedEvent struct {
	BookingID   uuid.UUID           `json:"booking_id"`
	BookingRef  string              `json:"booking_ref"`
	FinalStatus enums.BookingStatus `json:"final_status"`
	Reason      ArchiveReason       `json:"reason"`
	ArchivedBy  string              `json:"archived_by"`
	ArchivedAt  time.Time           `json:"archived_at"`
}

// BookingNotesUpdatedEvent carries only the note length, never its text.
type BookingNotesUpdatedEvent struct {
	BookingID   uuid.UUID `json:"booking_id"`
	BookingRef  string    `json:"booking_ref"`
	Actor       string    `json:"actor"`
	NotesLength int       `json:"notes_length"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// BookingCheckInTokenIssuedEvent is emitted with every minted kiosk token.
// CheckInURL embeds the bearer token; sinks other than the customer
// notification must drop it.
type BookingCheckInTokenIssuedEvent struct {
	BookingID     uuid.UUID `json:"booking_id"`
	BookingRef    string    `json:"booking_ref"`
	CustomerName  string    `json:"customer_name,omitempty"`
	CustomerEmail string    `json:"customer_email,omitempty"`
	CheckInURL    string    `json:"checkin_url,omitempty"`
	IssuedBy      string    `json:"issued_by"`
	IssuedAt      time.Time `json:"issued_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}
