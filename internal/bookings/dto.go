package bookings

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/luggagedeposit-backend/pkg/db/models"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/enums"
)

// ListFilters describe the inputs supported by the dashboard booking list.
// Today is the reference date (YYYY-MM-DD) for DateFilter.
type ListFilters struct {
	Search     string
	Status     *enums.BookingStatus
	DateFilter enums.BookingDateFilter
	Today      string
}

// ListResult wraps a page of active bookings plus the next page cursor.
type ListResult struct {
	Bookings   []models.Booking
	NextCursor string
}

// CreateInput is a paid checkout ready to become a booking.
type CreateInput struct {
	BookingRef      string `validate:"required"`
	StripeSessionID string `validate:"required"`
	CustomerName    string `validate:"required,max=200"`
	CustomerEmail   string `validate:"required,email"`
	CustomerPhone   string `validate:"required,max=40"`
	DropOffDate     string `validate:"required,datetime=2006-01-02"`
	DropOffTime     string `validate:"required,datetime=15:04"`
	PickUpDate      string `validate:"required,datetime=2006-01-02"`
	PickUpTime      string `validate:"required,datetime=15:04"`
	BillableDays    int    `validate:"gte=1"`
	BagsSmall       int    `validate:"gte=0"`
	BagsMedium      int    `validate:"gte=0"`
	BagsLarge       int    `validate:"gte=0"`
	AmountCents     int64  `validate:"gte=0"`
	Currency        enums.Currency
	Notes           string `validate:"max=2000"`
}

// CreateResult reports whether the booking was written or already known.
// Archived is set when the ref was found in the archive instead.
type CreateResult struct {
	Booking  *models.Booking
	Archived *models.ArchivedBooking
	Created  bool
}

// CheckInTokenIssue describes a freshly minted kiosk token. URL embeds the
// token and leaves the service only inside the issued event.
type CheckInTokenIssue struct {
	URL       string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Actor     string
}

// TransitionResult is the post-transition state. Archived is set when the
// transition moved the booking out of the active table.
type TransitionResult struct {
	Booking  models.BookingRecord
	Fields   UpdatedFields
	Archived *models.ArchivedBooking
}

// LookupResult finds a booking in either table.
type LookupResult struct {
	Booking    models.BookingRecord
	IsArchived bool
	ArchivedAt *time.Time
	ArchivedBy *string
}

// BookingDTO is the API shape shared by active and archived bookings.
type BookingDTO struct {
	ID              uuid.UUID           `json:"id"`
	BookingRef      string              `json:"booking_ref"`
	Status          enums.BookingStatus `json:"status"`
	CustomerName    string              `json:"customer_name"`
	CustomerEmail   string              `json:"customer_email"`
	CustomerPhone   string              `json:"customer_phone"`
	DropOffDate     string              `json:"drop_off_date"`
	DropOffTime     string              `json:"drop_off_time"`
	PickUpDate      string              `json:"pick_up_date"`
	PickUpTime      string              `json:"pick_up_time"`
	BillableDays    int                 `json:"billable_days"`
	BagsSmall       int                 `json:"bags_small"`
	BagsMedium      int                 `json:"bags_medium"`
	BagsLarge       int                 `json:"bags_large"`
	TotalBags       int                 `json:"total_bags"`
	AmountCents     int64               `json:"amount_cents"`
	Currency        enums.Currency      `json:"currency"`
	StripeSessionID string              `json:"stripe_session_id"`
	Notes           string              `json:"notes"`
	CheckedInAt     *time.Time          `json:"checked_in_at,omitempty"`
	CheckedInBy     *string             `json:"checked_in_by,omitempty"`
	PickedUpAt      *time.Time          `json:"picked_up_at,omitempty"`
	PickedUpBy      *string             `json:"picked_up_by,omitempty"`
	CancelledBy     *string             `json:"cancelled_by,omitempty"`
	ArchivedAt      *time.Time          `json:"archived_at,omitempty"`
	ArchivedBy      *string             `json:"archived_by,omitempty"`
	Version         int64               `json:"version"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// ToDTO maps a stored record onto the API shape.
func ToDTO(rec models.BookingRecord) BookingDTO {
	return BookingDTO{
		ID:              rec.ID,
		BookingRef:      rec.BookingRef,
		Status:          rec.Status,
		CustomerName:    rec.CustomerName,
		CustomerEmail:   rec.CustomerEmail,
		CustomerPhone:   rec.CustomerPhone,
		DropOffDate:     rec.DropOffDate,
		DropOffTime:     rec.DropOffTime,
		PickUpDate:      rec.PickUpDate,
		PickUpTime:      rec.PickUpTime,
		BillableDays:    rec.BillableDays,
		BagsSmall:       rec.BagsSmall,
		BagsMedium:      rec.BagsMedium,
		BagsLarge:       rec.BagsLarge,
		TotalBags:       rec.TotalBags(),
		AmountCents:     rec.AmountCents,
		Currency:        rec.Currency,
		StripeSessionID: rec.StripeSessionID,
		Notes:           rec.Notes,
		CheckedInAt:     rec.CheckedInAt,
		CheckedInBy:     rec.CheckedInBy,
		PickedUpAt:      rec.PickedUpAt,
		PickedUpBy:      rec.PickedUpBy,
		CancelledBy:     rec.CancelledBy,
		Version:         rec.Version,
		CreatedAt:       rec.CreatedAt,
		UpdatedAt:       rec.UpdatedAt,
	}
}

// ArchivedToDTO maps an archive row, including its archive stamp.
func ArchivedToDTO(rec models.ArchivedBooking) BookingDTO {
	dto := ToDTO(rec.BookingRecord)
	archivedAt := rec.ArchivedAt
	archivedBy := rec.ArchivedBy
	dto.ArchivedAt = &archivedAt
	dto.ArchivedBy = &archivedBy
	return dto
}

// LookupToDTO maps a lookup hit from either table.
func LookupToDTO(res LookupResult) BookingDTO {
	dto := ToDTO(res.Booking)
	dto.ArchivedAt = res.ArchivedAt
	dto.ArchivedBy = res.ArchivedBy
	return dto
}
