package types

import (
	"time"

	cbigquery "cloud.google.com/go/bigquery"
)

// BookingEventRow mirrors the booking_events BigQuery schema.
type BookingEventRow struct {
	EventID       string             `bigquery:"event_id"`
	EventType     string             `bigquery:"event_type"`
	OccurredAt    time.Time          `bigquery:"occurred_at"`
	BookingID     string             `bigquery:"booking_id"`
	BookingRef    string             `bigquery:"booking_ref"`
	FromStatus    *string            `bigquery:"from_status"`
	ToStatus      *string            `bigquery:"to_status"`
	Actor         *string            `bigquery:"actor"`
	AmountCents   *int64             `bigquery:"amount_cents"`
	Currency      *string            `bigquery:"currency"`
	BillableDays  *int64             `bigquery:"billable_days"`
	BagsSmall     *int64             `bigquery:"bags_small"`
	BagsMedium    *int64             `bigquery:"bags_medium"`
	BagsLarge     *int64             `bigquery:"bags_large"`
	ArchiveReason *string            `bigquery:"archive_reason"`
	Payload       cbigquery.NullJSON `bigquery:"payload"`
}
