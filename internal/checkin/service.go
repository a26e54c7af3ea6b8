package checkin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/luggagedeposit-backend/internal/bookings"
	pkgAuth "github.com/angelmondragon/luggagedeposit-backend/pkg/auth"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/config"
	dbpkg "github.com/angelmondragon/luggagedeposit-backend/pkg/db"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/db/models"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/luggagedeposit-backend/pkg/errors"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/logger"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/metrics"
)

const (
	invalidTokenMessage = "invalid check-in token"

	// KioskActor is recorded when the kiosk does not identify its operator.
	// A named operator is recorded as kiosk:<operator> so free text typed at
	// an unauthenticated terminal never passes for a staff identity.
	KioskActor = "kiosk"
)

// Service gates kiosk check-ins behind signed tokens.
type Service interface {
	AuthorizeCheckIn(ctx context.Context, token string) (string, error)
	Verify(ctx context.Context, token string) (*bookings.LookupResult, error)
	CheckIn(ctx context.Context, token, actor string) (*bookings.TransitionResult, error)
	Reissue(ctx context.Context, ref, actor string) (*pkgAuth.CheckInToken, error)
}

type bookingReader interface {
	FindByRef(ctx context.Context, ref string) (*models.Booking, error)
}

type bookingService interface {
	ApplyTransition(ctx context.Context, ref string, target enums.BookingStatus, actor string) (*bookings.TransitionResult, error)
	Lookup(ctx context.Context, ref string) (*bookings.LookupResult, error)
	RecordCheckInTokenIssued(ctx context.Context, ref string, issue bookings.CheckInTokenIssue) error
}

// ServiceParams bundles the dependencies required to build a check-in service.
type ServiceParams struct {
	Bookings bookingReader
	Service  bookingService
	Config   config.CheckInConfig
	Logger   *logger.Logger
	Metrics  *metrics.BookingMetrics
	Now      func() time.Time
}

type service struct {
	bookings bookingReader
	svc      bookingService
	cfg      config.CheckInConfig
	logg     *logger.Logger
	metrics  *metrics.BookingMetrics
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Bookings == nil {
		return nil, fmt.Errorf("bookings repository required")
	}
	if params.Service == nil {
		return nil, fmt.Errorf("bookings service required")
	}
	if params.Config.Secret == "" {
		return nil, pkgAuth.ErrCheckInSecretMissing
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		bookings: params.Bookings,
		svc:      params.Service,
		cfg:      params.Config,
		logg:     params.Logger,
		metrics:  params.Metrics,
		now:      now,
	}, nil
}

// AuthorizeCheckIn resolves a token to the ref of a booking still in the
// active store. It never mutates anything.
func (s *service) AuthorizeCheckIn(ctx context.Context, token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", s.reject(ctx, "", errors.New("token missing"))
	}

	claims, err := pkgAuth.ParseCheckInToken(s.cfg, s.now(), token)
	if err != nil {
		return "", s.reject(ctx, "", err)
	}
	ref, err := bookings.NormalizeRef(claims.BookingRef)
	if err != nil {
		return "", s.reject(ctx, claims.BookingRef, err)
	}

	booking, err := s.bookings.FindByRef(ctx, ref)
	if err != nil {
		if bookings.IsNotFound(err) {
			return "", s.reject(ctx, ref, errors.New("booking not in active store"))
		}
		return "", dbpkg.Classify(err, "load booking for check-in")
	}
	if claims.BookingID != uuid.Nil && booking.ID != claims.BookingID {
		return "", s.reject(ctx, ref, errors.New("token booking id does not match stored booking"))
	}
	return ref, nil
}

func (s *service) Verify(ctx context.Context, token string) (*bookings.LookupResult, error) {
	ref, err := s.AuthorizeCheckIn(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.svc.Lookup(ctx, ref)
}

func (s *service) CheckIn(ctx context.Context, token, actor string) (*bookings.TransitionResult, error) {
	ref, err := s.AuthorizeCheckIn(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.svc.ApplyTransition(ctx, ref, enums.BookingStatusCheckedIn, KioskOperator(actor))
}

// KioskOperator is the checked_in_by value for an operator name typed at
// the kiosk.
func KioskOperator(operator string) string {
	operator = strings.TrimSpace(operator)
	if operator == "" {
		return KioskActor
	}
	return KioskActor + ":" + operator
}

// Reissue mints a fresh token for a booking still awaiting drop-off and
// records it, which queues the link for delivery again. Earlier tokens
// stay valid until they expire.
func (s *service) Reissue(ctx context.Context, ref, actor string) (*pkgAuth.CheckInToken, error) {
	normalized, err := bookings.NormalizeRef(ref)
	if err != nil {
		return nil, err
	}
	booking, err := s.bookings.FindByRef(ctx, normalized)
	if err != nil {
		if bookings.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
		}
		return nil, dbpkg.Classify(err, "load booking for token reissue")
	}
	if booking.Status != enums.BookingStatusPaid {
		return nil, pkgerrors.Newf(pkgerrors.CodeInvalidTransition, "booking is %s; check-in links are only issued for paid bookings", booking.Status)
	}

	token, err := pkgAuth.MintCheckInToken(s.cfg, s.now(), booking.ID, booking.BookingRef)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint check-in token")
	}
	if err := s.svc.RecordCheckInTokenIssued(ctx, booking.BookingRef, bookings.CheckInTokenIssue{
		URL:       token.URL,
		IssuedAt:  token.IssuedAt,
		ExpiresAt: token.ExpiresAt,
		Actor:     actor,
	}); err != nil {
		return nil, err
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithBookingRef(ctx, booking.BookingRef), "check-in token reissued")
	}
	return token, nil
}

// reject logs the real reason and returns the generic public error.
func (s *service) reject(ctx context.Context, ref string, reason error) error {
	s.metrics.IncCheckInRejected()
	if s.logg != nil {
		logCtx := ctx
		if ref != "" {
			logCtx = s.logg.WithBookingRef(logCtx, ref)
		}
		logCtx = s.logg.WithField(logCtx, "reason", reason.Error())
		s.logg.Warn(logCtx, "check-in token rejected")
	}
	return pkgerrors.New(pkgerrors.CodeUnauthorized, invalidTokenMessage)
}
