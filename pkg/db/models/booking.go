package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/luggagedeposit-backend/pkg/enums"
)

// BookingRecord holds every column shared by the active and archive tables.
// Archiving copies it verbatim and only adds ArchivedAt/ArchivedBy.
type BookingRecord struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	BookingRef      string              `gorm:"column:booking_ref;not null"`
	StripeSessionID string              `gorm:"column:stripe_session_id;not null"`
	Status          enums.BookingStatus `gorm:"column:status;type:booking_status;not null"`

	CustomerName  string `gorm:"column:customer_name;not null"`
	CustomerEmail string `gorm:"column:customer_email;not null"`
	CustomerPhone string `gorm:"column:customer_phone;not null"`

	DropOffDate  string    `gorm:"column:drop_off_date;not null"`
	DropOffTime  string    `gorm:"column:drop_off_time;not null"`
	DropOffAt    time.Time `gorm:"column:drop_off_at;not null"`
	PickUpDate   string    `gorm:"column:pick_up_date;not null"`
	PickUpTime   string    `gorm:"column:pick_up_time;not null"`
	PickUpAt     time.Time `gorm:"column:pick_up_at;not null"`
	BillableDays int       `gorm:"column:billable_days;not null"`

	BagsSmall  int `gorm:"column:bags_small;not null;default:0"`
	BagsMedium int `gorm:"column:bags_medium;not null;default:0"`
	BagsLarge  int `gorm:"column:bags_large;not null;default:0"`

	AmountCents int64          `gorm:"column:amount_cents;not null"`
	Currency    enums.Currency `gorm:"column:currency;not null"`

	Notes string `gorm:"column:notes;not null;default:''"`

	CheckedInAt          *time.Time `gorm:"column:checked_in_at"`
	CheckedInBy          *string    `gorm:"column:checked_in_by"`
	PickedUpAt           *time.Time `gorm:"column:picked_up_at"`
	PickedUpBy           *string    `gorm:"column:picked_up_by"`
	CancelledBy          *string    `gorm:"column:cancelled_by"`
	CheckinTokenIssuedAt *time.Time `gorm:"column:checkin_token_issued_at"`

	Version   int64     `gorm:"column:version;not null;default:1"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

// TotalBags sums every size class.
func (b BookingRecord) TotalBags() int {
	return b.BagsSmall + b.BagsMedium + b.BagsLarge
}

// Booking is a row of the active store.
type Booking struct {
	BookingRecord `gorm:"embedded"`
}

func (Booking) TableName() string { return "bookings" }

// ArchivedBooking is a read-only row of the archive store.
type ArchivedBooking struct {
	BookingRecord `gorm:"embedded"`
	ArchivedAt    time.Time `gorm:"column:archived_at;not null"`
	ArchivedBy    string    `gorm:"column:archived_by;not null"`
}

func (ArchivedBooking) TableName() string { return "bookings_archive" }
