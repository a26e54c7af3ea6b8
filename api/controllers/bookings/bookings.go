package bookings

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/luggagedeposit-backend/api/middleware"
	"github.com/angelmondragon/luggagedeposit-backend/api/responses"
	"github.com/angelmondragon/luggagedeposit-backend/api/validators"
	internalbookings "github.com/angelmondragon/luggagedeposit-backend/internal/bookings"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/db/models"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/luggagedeposit-backend/pkg/errors"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/logger"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/pagination"
)

const (
	maxSearchLength = 100
	maxNotesLength  = 2000
)

// Service is the subset of the booking service the staff routes call.
type Service interface {
	ApplyTransition(ctx context.Context, ref string, target enums.BookingStatus, actor string) (*internalbookings.TransitionResult, error)
	UpdateNotes(ctx context.Context, ref, notes, actor string) (*models.Booking, error)
	Get(ctx context.Context, ref string) (*models.Booking, error)
	Lookup(ctx context.Context, ref string) (*internalbookings.LookupResult, error)
	List(ctx context.Context, filters internalbookings.ListFilters, params pagination.Params) (*internalbookings.ListResult, error)
}

type listResponse struct {
	Bookings   []internalbookings.BookingDTO `json:"bookings"`
	NextCursor string                        `json:"next_cursor,omitempty"`
}

type lookupResponse struct {
	Booking    internalbookings.BookingDTO `json:"booking"`
	IsArchived bool                        `json:"is_archived"`
}

type transitionRequest struct {
	Status string `json:"status" validate:"required,oneof=paid checked_in picked_up cancelled"`
}

type transitionResponse struct {
	Booking  internalbookings.BookingDTO `json:"booking"`
	Archived bool                        `json:"archived"`
}

type notesRequest struct {
	Notes string `json:"notes" validate:"max=2000"`
}

// List returns active bookings filtered by search, status and drop-off date.
func List(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "booking service unavailable"))
			return
		}

		filters, err := parseListFilters(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}

		result, err := svc.List(r.Context(), filters, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := listResponse{
			Bookings:   make([]internalbookings.BookingDTO, 0, len(result.Bookings)),
			NextCursor: result.NextCursor,
		}
		for _, booking := range result.Bookings {
			resp.Bookings = append(resp.Bookings, internalbookings.ToDTO(booking.BookingRecord))
		}
		responses.WriteSuccess(w, resp)
	}
}

// Detail returns one active booking.
func Detail(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "booking service unavailable"))
			return
		}

		booking, err := svc.Get(r.Context(), chi.URLParam(r, "ref"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalbookings.ToDTO(booking.BookingRecord))
	}
}

// Lookup finds a booking by ref in the active store or the archive.
func Lookup(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "booking service unavailable"))
			return
		}

		result, err := svc.Lookup(r.Context(), chi.URLParam(r, "ref"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, lookupResponse{
			Booking:    internalbookings.LookupToDTO(*result),
			IsArchived: result.IsArchived,
		})
	}
}

// Transition moves a booking to the requested status on behalf of the
// authenticated staff member.
func Transition(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "booking service unavailable"))
			return
		}

		var payload transitionRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		target, err := enums.ParseBookingStatus(payload.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}

		ctx := r.Context()
		ref := chi.URLParam(r, "ref")
		if logg != nil {
			ctx = logg.WithBookingRef(ctx, strings.ToUpper(strings.TrimSpace(ref)))
		}

		result, err := svc.ApplyTransition(ctx, ref, target, middleware.ActorFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		resp := transitionResponse{Booking: internalbookings.ToDTO(result.Booking)}
		if result.Archived != nil {
			resp.Booking = internalbookings.ArchivedToDTO(*result.Archived)
			resp.Archived = true
		}
		if logg != nil {
			logg.Info(logg.WithField(ctx, "status", target), "booking.transitioned")
		}
		responses.WriteSuccess(w, resp)
	}
}

// UpdateNotes replaces the staff notes of an active booking.
func UpdateNotes(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "booking service unavailable"))
			return
		}

		var payload notesRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		booking, err := svc.UpdateNotes(r.Context(), chi.URLParam(r, "ref"), validators.SanitizeMultiline(payload.Notes, maxNotesLength), middleware.ActorFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalbookings.ToDTO(booking.BookingRecord))
	}
}

func parseListFilters(r *http.Request) (internalbookings.ListFilters, error) {
	filters := internalbookings.ListFilters{
		Search: validators.SanitizeString(r.URL.Query().Get("search"), maxSearchLength),
	}

	status, ok, err := validators.ParseQueryEnum(r, "status", enums.ParseBookingStatus, "all")
	if err != nil {
		return filters, err
	}
	if ok {
		filters.Status = &status
	}

	filters.DateFilter = enums.BookingDateFilterAll
	dateFilter, ok, err := validators.ParseQueryEnum(r, "date", enums.ParseBookingDateFilter, "all")
	if err != nil {
		return filters, err
	}
	if ok {
		filters.DateFilter = dateFilter
	}
	return filters, nil
}
