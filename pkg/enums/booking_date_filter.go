package enums

// BookingDateFilter narrows dashboard listings by drop-off date.
type BookingDateFilter string

const (
	BookingDateFilterAll      BookingDateFilter = "all"
	BookingDateFilterToday    BookingDateFilter = "today"
	BookingDateFilterUpcoming BookingDateFilter = "upcoming"
	BookingDateFilterPast     BookingDateFilter = "past"
)

var bookingDateFilters = valueSet[BookingDateFilter]{
	BookingDateFilterAll,
	BookingDateFilterToday,
	BookingDateFilterUpcoming,
	BookingDateFilterPast,
}

func (f BookingDateFilter) String() string { return string(f) }

func (f BookingDateFilter) IsValid() bool { return bookingDateFilters.has(f) }

// ParseBookingDateFilter treats an empty value as "all".
func ParseBookingDateFilter(value string) (BookingDateFilter, error) {
	if value == "" {
		return BookingDateFilterAll, nil
	}
	return bookingDateFilters.parse(value, "date filter")
}
