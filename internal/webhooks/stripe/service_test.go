package stripewebhook

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/luggagedeposit-backend/internal/bookings"
	pkgAuth "github.com/angelmondragon/luggagedeposit-backend/pkg/auth"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/config"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/db/models"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/luggagedeposit-backend/pkg/errors"
)

var checkInCfg = config.CheckInConfig{
	Secret:  "checkin-secret",
	Issuer:  "luggage-deposit",
	TTL:     720 * time.Hour,
	BaseURL: "https://dashboard.example.com/#/scan",
}

type stubBookings struct {
	created  []bookings.CreateInput
	existing *models.Booking
	issued   map[string]bookings.CheckInTokenIssue
	err      error
}

func (s *stubBookings) Create(_ context.Context, input bookings.CreateInput) (*bookings.CreateResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.created = append(s.created, input)
	if s.existing != nil {
		return &bookings.CreateResult{Booking: s.existing}, nil
	}
	booking := &models.Booking{BookingRecord: models.BookingRecord{
		ID:         uuid.New(),
		BookingRef: strings.ToUpper(input.BookingRef),
		Status:     enums.BookingStatusPaid,
	}}
	return &bookings.CreateResult{Booking: booking, Created: true}, nil
}

func (s *stubBookings) RecordCheckInTokenIssued(_ context.Context, ref string, issue bookings.CheckInTokenIssue) error {
	if s.issued == nil {
		s.issued = map[string]bookings.CheckInTokenIssue{}
	}
	s.issued[ref] = issue
	return nil
}

const paidSession = `{
	"id": "cs_test_123",
	"object": "checkout.session",
	"payment_status": "paid",
	"amount_total": 2400,
	"currency": "eur",
	"customer_details": {"name": "Ada Lovelace", "email": "ada@example.com", "phone": "+39 333 1234567"},
	"metadata": {
		"bookingRef": "abc123",
		"dropOffDate": "2026-05-01",
		"dropOffTime": "09:00",
		"pickUpDate": "2026-05-02",
		"pickUpTime": "18:00",
		"billableDays": "2",
		"bagsSmall": "1",
		"bagsLarge": "1"
	}
}`

func newTestService(t *testing.T, stub *stubBookings) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Bookings: stub,
		CheckIn:  checkInCfg,
		Now:      func() time.Time { return time.Date(2026, 4, 20, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}
	return svc
}

func checkoutEvent(raw string) *stripe.Event {
	return &stripe.Event{
		ID:   "evt_1",
		Type: stripe.EventTypeCheckoutSessionCompleted,
		Data: &stripe.EventData{Raw: []byte(raw)},
	}
}

func TestService_CheckoutCompletedCreatesBookingAndMintsToken(t *testing.T) {
	stub := &stubBookings{}
	svc := newTestService(t, stub)

	if err := svc.HandleEvent(context.Background(), checkoutEvent(paidSession)); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(stub.created) != 1 {
		t.Fatalf("expected one create, got %d", len(stub.created))
	}
	in := stub.created[0]
	if in.BookingRef != "abc123" || in.StripeSessionID != "cs_test_123" {
		t.Fatalf("unexpected identity fields: %+v", in)
	}
	if in.AmountCents != 2400 || in.Currency != enums.CurrencyEUR {
		t.Fatalf("unexpected amount: %d %s", in.AmountCents, in.Currency)
	}
	if in.BillableDays != 2 || in.BagsSmall != 1 || in.BagsMedium != 0 || in.BagsLarge != 1 {
		t.Fatalf("unexpected bags/days: %+v", in)
	}
	if in.CustomerEmail != "ada@example.com" || in.CustomerPhone != "+39 333 1234567" {
		t.Fatalf("unexpected customer: %+v", in)
	}
	issue, ok := stub.issued["ABC123"]
	if !ok {
		t.Fatalf("expected token issue recorded for ABC123")
	}
	if !strings.HasPrefix(issue.URL, checkInCfg.BaseURL+"?token=") || issue.Actor != WebhookActor {
		t.Fatalf("token issue must carry the kiosk link for delivery: %+v", issue)
	}
	if !issue.ExpiresAt.Equal(issue.IssuedAt.Add(checkInCfg.TTL)) {
		t.Fatalf("unexpected expiry %s", issue.ExpiresAt)
	}
}

func TestService_CheckoutCompletedReturnsVerifiableURL(t *testing.T) {
	stub := &stubBookings{}
	svc := newTestService(t, stub)

	session := &stripe.CheckoutSession{}
	if err := json.Unmarshal([]byte(paidSession), session); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	res, err := svc.HandleCheckoutCompleted(context.Background(), session)
	if err != nil {
		t.Fatalf("handle checkout: %v", err)
	}
	if !res.Created || res.BookingRef != "ABC123" {
		t.Fatalf("unexpected result: %+v", res)
	}
	prefix := checkInCfg.BaseURL + "?token="
	if !strings.HasPrefix(res.CheckInURL, prefix) {
		t.Fatalf("unexpected url %q", res.CheckInURL)
	}
	claims, err := pkgAuth.ParseCheckInToken(checkInCfg, time.Date(2026, 4, 21, 0, 0, 0, 0, time.UTC), strings.TrimPrefix(res.CheckInURL, prefix))
	if err != nil {
		t.Fatalf("parse minted token: %v", err)
	}
	if claims.BookingRef != "ABC123" {
		t.Fatalf("unexpected ref %q", claims.BookingRef)
	}
}

func TestService_CheckoutRedeliveryDoesNotReissueToken(t *testing.T) {
	issued := time.Date(2026, 4, 19, 0, 0, 0, 0, time.UTC)
	stub := &stubBookings{existing: &models.Booking{BookingRecord: models.BookingRecord{
		ID:                   uuid.New(),
		BookingRef:           "ABC123",
		Status:               enums.BookingStatusCheckedIn,
		CheckinTokenIssuedAt: &issued,
	}}}
	svc := newTestService(t, stub)

	if err := svc.HandleEvent(context.Background(), checkoutEvent(paidSession)); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(stub.issued) != 0 {
		t.Fatalf("token must not be reissued")
	}
}

func TestService_UnpaidSessionIgnored(t *testing.T) {
	stub := &stubBookings{}
	svc := newTestService(t, stub)

	raw := strings.Replace(paidSession, `"payment_status": "paid"`, `"payment_status": "unpaid"`, 1)
	if err := svc.HandleEvent(context.Background(), checkoutEvent(raw)); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(stub.created) != 0 {
		t.Fatalf("unpaid session must not create a booking")
	}
}

func TestService_MalformedMetadataRejected(t *testing.T) {
	cases := map[string]string{
		"missing ref":   strings.Replace(paidSession, `"bookingRef": "abc123",`, ``, 1),
		"bad bag count": strings.Replace(paidSession, `"bagsSmall": "1"`, `"bagsSmall": "two"`, 1),
		"negative days": strings.Replace(paidSession, `"billableDays": "2"`, `"billableDays": "-1"`, 1),
		"bad currency":  strings.Replace(paidSession, `"currency": "eur"`, `"currency": "jpy"`, 1),
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			stub := &stubBookings{}
			svc := newTestService(t, stub)
			err := svc.HandleEvent(context.Background(), checkoutEvent(raw))
			if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if len(stub.created) != 0 {
				t.Fatalf("malformed session must not create a booking")
			}
		})
	}
}

func TestService_CreateFailurePropagates(t *testing.T) {
	stub := &stubBookings{err: pkgerrors.New(pkgerrors.CodeUnavailable, "database unavailable")}
	svc := newTestService(t, stub)

	err := svc.HandleEvent(context.Background(), checkoutEvent(paidSession))
	if !pkgerrors.IsRetryable(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}
}

func TestService_IgnoresOtherEvents(t *testing.T) {
	stub := &stubBookings{}
	svc := newTestService(t, stub)

	event := &stripe.Event{Type: stripe.EventTypeInvoicePaid, Data: &stripe.EventData{Raw: []byte(`{}`)}}
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(stub.created) != 0 {
		t.Fatalf("unexpected create")
	}
}
