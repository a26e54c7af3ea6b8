package stripewebhook

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/luggagedeposit-backend/internal/bookings"
	pkgAuth "github.com/angelmondragon/luggagedeposit-backend/pkg/auth"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/config"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/luggagedeposit-backend/pkg/errors"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/logger"
)

// Checkout session metadata keys set by the booking widget.
const (
	MetaBookingRef   = "bookingRef"
	MetaDropOffDate  = "dropOffDate"
	MetaDropOffTime  = "dropOffTime"
	MetaPickUpDate   = "pickUpDate"
	MetaPickUpTime   = "pickUpTime"
	MetaBillableDays = "billableDays"
	MetaBagsSmall    = "bagsSmall"
	MetaBagsMedium   = "bagsMedium"
	MetaBagsLarge    = "bagsLarge"
)

// WebhookActor attributes tokens minted on payment confirmation.
const WebhookActor = "stripe_webhook"

type bookingService interface {
	Create(ctx context.Context, input bookings.CreateInput) (*bookings.CreateResult, error)
	RecordCheckInTokenIssued(ctx context.Context, ref string, issue bookings.CheckInTokenIssue) error
}

type ServiceParams struct {
	Bookings bookingService
	CheckIn  config.CheckInConfig
	Logger   *logger.Logger
	Now      func() time.Time
}

type Service struct {
	bookings bookingService
	checkIn  config.CheckInConfig
	logg     *logger.Logger
	now      func() time.Time
}

// CheckoutResult describes what a completed checkout produced.
type CheckoutResult struct {
	BookingRef string
	Created    bool
	CheckInURL string
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Bookings == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "bookings service required")
	}
	if params.CheckIn.Secret == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "check-in secret required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		bookings: params.Bookings,
		checkIn:  params.CheckIn,
		logg:     params.Logger,
		now:      now,
	}, nil
}

func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session")
		}
		_, err := s.HandleCheckoutCompleted(ctx, &session)
		return err
	default:
		return nil
	}
}

// HandleCheckoutCompleted upserts the booking of a paid session and mints
// its check-in token the first time the booking is seen. The link reaches
// the customer through the token-issued outbox event recorded with it.
// Unpaid sessions are ignored and return a nil result.
func (s *Service) HandleCheckoutCompleted(ctx context.Context, session *stripe.CheckoutSession) (*CheckoutResult, error) {
	if session == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout session required")
	}
	if session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		if s.logg != nil {
			s.logg.Debug(s.logg.WithField(ctx, "session_id", session.ID), "checkout session not paid; skipping")
		}
		return nil, nil
	}

	input, err := CreateInputFromSession(session)
	if err != nil {
		return nil, err
	}
	res, err := s.bookings.Create(ctx, input)
	if err != nil {
		return nil, err
	}

	out := &CheckoutResult{BookingRef: strings.ToUpper(input.BookingRef), Created: res.Created}
	if res.Booking == nil || res.Booking.CheckinTokenIssuedAt != nil {
		return out, nil
	}

	token, err := pkgAuth.MintCheckInToken(s.checkIn, s.now(), res.Booking.ID, res.Booking.BookingRef)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint check-in token")
	}
	issue := bookings.CheckInTokenIssue{
		URL:       token.URL,
		IssuedAt:  token.IssuedAt,
		ExpiresAt: token.ExpiresAt,
		Actor:     WebhookActor,
	}
	if err := s.bookings.RecordCheckInTokenIssued(ctx, res.Booking.BookingRef, issue); err != nil {
		return nil, err
	}
	out.CheckInURL = token.URL

	if s.logg != nil {
		logCtx := s.logg.WithBookingRef(ctx, res.Booking.BookingRef)
		logCtx = s.logg.WithField(logCtx, "token_expires_at", token.ExpiresAt)
		s.logg.Info(logCtx, "check-in token issued")
	}
	return out, nil
}

// CreateInputFromSession maps a checkout session onto a booking input.
// Missing or malformed metadata is a validation error, never a default.
func CreateInputFromSession(session *stripe.CheckoutSession) (bookings.CreateInput, error) {
	meta := session.Metadata
	if meta == nil {
		meta = map[string]string{}
	}

	var missing []string
	required := func(key string) string {
		value := strings.TrimSpace(meta[key])
		if value == "" {
			missing = append(missing, key)
		}
		return value
	}
	input := bookings.CreateInput{
		BookingRef:      required(MetaBookingRef),
		StripeSessionID: session.ID,
		DropOffDate:     required(MetaDropOffDate),
		DropOffTime:     required(MetaDropOffTime),
		PickUpDate:      required(MetaPickUpDate),
		PickUpTime:      required(MetaPickUpTime),
		AmountCents:     session.AmountTotal,
	}
	billable := required(MetaBillableDays)
	if len(missing) > 0 {
		return bookings.CreateInput{}, pkgerrors.New(pkgerrors.CodeValidation, "checkout metadata incomplete").
			WithDetails(map[string]any{"missing": missing, "sessionId": session.ID})
	}

	var err error
	if input.BillableDays, err = metaInt(MetaBillableDays, billable); err != nil {
		return bookings.CreateInput{}, err
	}
	if input.BagsSmall, err = metaInt(MetaBagsSmall, meta[MetaBagsSmall]); err != nil {
		return bookings.CreateInput{}, err
	}
	if input.BagsMedium, err = metaInt(MetaBagsMedium, meta[MetaBagsMedium]); err != nil {
		return bookings.CreateInput{}, err
	}
	if input.BagsLarge, err = metaInt(MetaBagsLarge, meta[MetaBagsLarge]); err != nil {
		return bookings.CreateInput{}, err
	}

	if session.Currency != "" {
		currency, err := enums.ParseCurrency(string(session.Currency))
		if err != nil {
			return bookings.CreateInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported checkout currency")
		}
		input.Currency = currency
	}
	if details := session.CustomerDetails; details != nil {
		input.CustomerName = strings.TrimSpace(details.Name)
		input.CustomerEmail = strings.TrimSpace(details.Email)
		input.CustomerPhone = strings.TrimSpace(details.Phone)
	}
	return input, nil
}

// metaInt parses an optional non-negative integer; blank means zero.
func metaInt(key, raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, pkgerrors.Newf(pkgerrors.CodeValidation, "metadata %s must be a non-negative integer", key).
			WithDetails(map[string]any{"field": key, "value": raw})
	}
	return n, nil
}
