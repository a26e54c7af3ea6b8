package enums

import "strings"

// BookingStatus tracks where a booking sits in its lifecycle.
type BookingStatus string

const (
	BookingStatusPaid      BookingStatus = "paid"
	BookingStatusCheckedIn BookingStatus = "checked_in"
	BookingStatusPickedUp  BookingStatus = "picked_up"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// bookingStatuses is in lifecycle order.
var bookingStatuses = valueSet[BookingStatus]{
	BookingStatusPaid,
	BookingStatusCheckedIn,
	BookingStatusPickedUp,
	BookingStatusCancelled,
}

// BookingStatuses returns every known status in lifecycle order.
func BookingStatuses() []BookingStatus {
	return append([]BookingStatus(nil), bookingStatuses...)
}

func (s BookingStatus) String() string { return string(s) }

func (s BookingStatus) IsValid() bool { return bookingStatuses.has(s) }

// IsTerminal reports whether no staff transition may leave the status.
func (s BookingStatus) IsTerminal() bool {
	return s == BookingStatusPickedUp || s == BookingStatusCancelled
}

// ParseBookingStatus ignores case and surrounding space.
func ParseBookingStatus(value string) (BookingStatus, error) {
	return bookingStatuses.parse(strings.ToLower(strings.TrimSpace(value)), "booking status")
}
