package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/luggagedeposit-backend/internal/analytics/types"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/enums"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/logger"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/outbox/payloads"
)

func TestRouterUnsupportedEvent(t *testing.T) {
	router, _ := newTestRouter(t)
	env := types.Envelope{
		EventType: enums.OutboxEventType("order_created"),
		Payload:   []byte(`{"foo":"bar"}`),
	}
	err := router.Handle(context.Background(), env)
	if !errors.Is(err, ErrUnsupportedEventType) {
		t.Fatalf("expected unsupported error, got %v", err)
	}
}

func TestRouterMalformedPayload(t *testing.T) {
	router, writer := newTestRouter(t)
	for _, payload := range []string{"", "not-json"} {
		err := router.Handle(context.Background(), types.Envelope{
			EventType: enums.EventBookingCreated,
			Version:   1,
			Payload:   []byte(payload),
		})
		if !errors.Is(err, ErrMalformedPayload) {
			t.Fatalf("payload %q: expected malformed error, got %v", payload, err)
		}
	}
	if len(writer.rows) != 0 {
		t.Fatalf("no rows expected, got %d", len(writer.rows))
	}
}

func TestRouterUnknownVersionIsMalformed(t *testing.T) {
	router, _ := newTestRouter(t)
	err := router.Handle(context.Background(), types.Envelope{
		EventType: enums.EventBookingCreated,
		Version:   7,
		Payload:   []byte(`{}`),
	})
	if !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected malformed error, got %v", err)
	}
}

func TestRouterBookingCreatedRow(t *testing.T) {
	router, writer := newTestRouter(t)
	bookingID := uuid.New()
	occurred := time.Date(2026, 5, 3, 9, 30, 0, 0, time.FixedZone("CEST", 2*3600))
	env := envelopeFor(t, enums.EventBookingCreated, bookingID, occurred, payloads.BookingCreatedEvent{
		BookingID:    bookingID,
		BookingRef:   "ABC123",
		Status:       enums.BookingStatusPaid,
		BillableDays: 2,
		BagsSmall:    1,
		BagsLarge:    2,
		AmountCents:  3250,
		Currency:     enums.CurrencyEUR,
	})

	if err := router.Handle(context.Background(), env); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(writer.rows) != 1 {
		t.Fatalf("expected one row, got %d", len(writer.rows))
	}
	row := writer.rows[0]
	if row.BookingRef != "ABC123" || row.BookingID != bookingID.String() {
		t.Fatalf("unexpected identity %+v", row)
	}
	if row.OccurredAt.Location() != time.UTC {
		t.Fatalf("occurred_at should be UTC, got %s", row.OccurredAt.Location())
	}
	if row.FromStatus != nil || row.ToStatus == nil || *row.ToStatus != string(enums.BookingStatusPaid) {
		t.Fatalf("unexpected statuses from=%v to=%v", row.FromStatus, row.ToStatus)
	}
	if row.AmountCents == nil || *row.AmountCents != 3250 {
		t.Fatalf("unexpected amount %v", row.AmountCents)
	}
	if row.BagsMedium == nil || *row.BagsMedium != 0 || *row.BagsLarge != 2 {
		t.Fatalf("unexpected bag counts")
	}
	if !row.Payload.Valid {
		t.Fatal("payload json should be populated")
	}
}

func TestRouterTransitionAndArchiveRows(t *testing.T) {
	router, writer := newTestRouter(t)
	bookingID := uuid.New()
	now := time.Date(2026, 5, 4, 18, 0, 0, 0, time.UTC)

	picked := envelopeFor(t, enums.EventBookingPickedUp, bookingID, now, payloads.BookingTransitionedEvent{
		BookingID:  bookingID,
		BookingRef: "ABC123",
		FromStatus: enums.BookingStatusCheckedIn,
		ToStatus:   enums.BookingStatusPickedUp,
		Actor:      "Marta",
	})
	archived := envelopeFor(t, enums.EventBookingArchived, bookingID, now, payloads.BookingArchivedEvent{
		BookingID:   bookingID,
		BookingRef:  "ABC123",
		FinalStatus: enums.BookingStatusPickedUp,
		Reason:      payloads.ArchiveReasonPickup,
		ArchivedBy:  "Marta",
	})

	for _, env := range []types.Envelope{picked, archived} {
		if err := router.Handle(context.Background(), env); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if len(writer.rows) != 2 {
		t.Fatalf("expected two rows, got %d", len(writer.rows))
	}
	if *writer.rows[0].FromStatus != string(enums.BookingStatusCheckedIn) || *writer.rows[0].Actor != "Marta" {
		t.Fatalf("unexpected transition row %+v", writer.rows[0])
	}
	if writer.rows[1].ArchiveReason == nil || *writer.rows[1].ArchiveReason != string(payloads.ArchiveReasonPickup) {
		t.Fatalf("unexpected archive reason %v", writer.rows[1].ArchiveReason)
	}
}

func TestRouterPropagatesWriterError(t *testing.T) {
	router, writer := newTestRouter(t)
	writer.err = errors.New("bigquery down")
	bookingID := uuid.New()
	env := envelopeFor(t, enums.EventBookingNotesUpdated, bookingID, time.Now(), payloads.BookingNotesUpdatedEvent{
		BookingID:   bookingID,
		BookingRef:  "ABC123",
		NotesLength: 12,
	})
	err := router.Handle(context.Background(), env)
	if err == nil || errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected writer error, got %v", err)
	}
}

func TestRouterTokenIssuedRowDropsLink(t *testing.T) {
	router, writer := newTestRouter(t)
	bookingID := uuid.New()
	issued := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	env := envelopeFor(t, enums.EventBookingCheckInTokenIssued, bookingID, issued, payloads.BookingCheckInTokenIssuedEvent{
		BookingID:     bookingID,
		BookingRef:    "ABC123",
		CustomerName:  "Ada Lovelace",
		CustomerEmail: "ada@example.com",
		CheckInURL:    "https://dashboard.example.com/#/scan?token=secret",
		IssuedBy:      "stripe_webhook",
		IssuedAt:      issued,
		ExpiresAt:     issued.Add(720 * time.Hour),
	})

	if err := router.Handle(context.Background(), env); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(writer.rows) != 1 {
		t.Fatalf("expected one row, got %d", len(writer.rows))
	}
	row := writer.rows[0]
	if row.BookingRef != "ABC123" || row.Actor == nil || *row.Actor != "stripe_webhook" {
		t.Fatalf("unexpected row identity: %+v", row)
	}
	for _, leaked := range []string{"token=secret", "ada@example.com", "Ada Lovelace"} {
		if strings.Contains(row.Payload.JSONVal, leaked) {
			t.Fatalf("payload leaks %q: %s", leaked, row.Payload.JSONVal)
		}
	}
}

func envelopeFor(t *testing.T, eventType enums.OutboxEventType, bookingID uuid.UUID, occurred time.Time, payload any) types.Envelope {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return types.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		Version:       1,
		AggregateType: enums.AggregateBooking,
		AggregateID:   bookingID.String(),
		OccurredAt:    occurred,
		Payload:       data,
	}
}

func newTestRouter(t *testing.T) (*Router, *recordingWriter) {
	t.Helper()
	writer := &recordingWriter{}
	router, err := NewRouter(writer, nil, logger.New(logger.Options{ServiceName: "router-test", Output: io.Discard}))
	if err != nil {
		t.Fatalf("construct router: %v", err)
	}
	return router, writer
}

type recordingWriter struct {
	rows []types.BookingEventRow
	err  error
}

func (w *recordingWriter) InsertBookingEvent(_ context.Context, row types.BookingEventRow) error {
	if w.err != nil {
		return w.err
	}
	w.rows = append(w.rows, row)
	return nil
}
