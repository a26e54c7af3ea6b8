package checkin

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/luggagedeposit-backend/api/middleware"
	"github.com/angelmondragon/luggagedeposit-backend/api/responses"
	"github.com/angelmondragon/luggagedeposit-backend/api/validators"
	"github.com/angelmondragon/luggagedeposit-backend/internal/bookings"
	pkgAuth "github.com/angelmondragon/luggagedeposit-backend/pkg/auth"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/luggagedeposit-backend/pkg/errors"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/logger"
)

// Service is the kiosk side of the check-in authorizer.
type Service interface {
	Verify(ctx context.Context, token string) (*bookings.LookupResult, error)
	CheckIn(ctx context.Context, token, actor string) (*bookings.TransitionResult, error)
	Reissue(ctx context.Context, ref, actor string) (*pkgAuth.CheckInToken, error)
}

type verifyRequest struct {
	Token string `json:"token" validate:"required"`
}

type checkInRequest struct {
	Token    string `json:"token" validate:"required"`
	Operator string `json:"operator,omitempty" validate:"max=100"`
}

type reissueResponse struct {
	BookingRef string    `json:"booking_ref"`
	CheckInURL string    `json:"checkin_url"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// kioskBooking is what an unauthenticated kiosk may show: no payment or
// contact details beyond the customer name.
type kioskBooking struct {
	ID           uuid.UUID           `json:"id"`
	BookingRef   string              `json:"booking_ref"`
	Status       enums.BookingStatus `json:"status"`
	CustomerName string              `json:"customer_name"`
	DropOffDate  string              `json:"drop_off_date"`
	DropOffTime  string              `json:"drop_off_time"`
	BagsSmall    int                 `json:"bags_small"`
	BagsMedium   int                 `json:"bags_medium"`
	BagsLarge    int                 `json:"bags_large"`
	TotalBags    int                 `json:"total_bags"`
	CheckedInAt  *time.Time          `json:"checked_in_at,omitempty"`
}

func toKiosk(dto bookings.BookingDTO) kioskBooking {
	return kioskBooking{
		ID:           dto.ID,
		BookingRef:   dto.BookingRef,
		Status:       dto.Status,
		CustomerName: dto.CustomerName,
		DropOffDate:  dto.DropOffDate,
		DropOffTime:  dto.DropOffTime,
		BagsSmall:    dto.BagsSmall,
		BagsMedium:   dto.BagsMedium,
		BagsLarge:    dto.BagsLarge,
		TotalBags:    dto.TotalBags,
		CheckedInAt:  dto.CheckedInAt,
	}
}

// Verify resolves a scanned token to the booking it admits.
func Verify(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "check-in service unavailable"))
			return
		}

		var payload verifyRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Verify(r.Context(), payload.Token)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toKiosk(bookings.LookupToDTO(*result)))
	}
}

// CheckIn performs paid -> checked_in for the booking bound to the token.
func CheckIn(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "check-in service unavailable"))
			return
		}

		var payload checkInRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CheckIn(r.Context(), payload.Token, validators.SanitizeString(payload.Operator, 100))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(logg.WithBookingRef(r.Context(), result.Booking.BookingRef), "kiosk.checked_in")
		}
		responses.WriteSuccess(w, toKiosk(bookings.ToDTO(result.Booking)))
	}
}

// Reissue lets staff mint a fresh check-in link when the original mail
// never arrived. The link is also queued for delivery to the customer.
func Reissue(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "check-in service unavailable"))
			return
		}

		ctx := r.Context()
		ref := chi.URLParam(r, "ref")
		token, err := svc.Reissue(ctx, ref, middleware.ActorFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		bookingRef, _ := bookings.NormalizeRef(ref)
		responses.WriteSuccess(w, reissueResponse{
			BookingRef: bookingRef,
			CheckInURL: token.URL,
			ExpiresAt:  token.ExpiresAt,
		})
	}
}
