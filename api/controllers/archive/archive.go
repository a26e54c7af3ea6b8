package archive

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/luggagedeposit-backend/api/middleware"
	"github.com/angelmondragon/luggagedeposit-backend/api/responses"
	"github.com/angelmondragon/luggagedeposit-backend/api/validators"
	internalarchive "github.com/angelmondragon/luggagedeposit-backend/internal/archive"
	"github.com/angelmondragon/luggagedeposit-backend/internal/bookings"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/db/models"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/luggagedeposit-backend/pkg/errors"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/logger"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/pagination"
)

const maxStaleDays = 3650

// Reader serves archived bookings for reporting.
type Reader interface {
	Get(ctx context.Context, ref string) (*models.ArchivedBooking, error)
	List(ctx context.Context, filters internalarchive.ListFilters, params pagination.Params) (*internalarchive.ListResult, error)
}

// Migrator runs admin-triggered archive migrations.
type Migrator interface {
	ArchiveStaleBy(ctx context.Context, cutoffDays int, actor string) (*internalarchive.Result, error)
	ArchiveByRef(ctx context.Context, ref, actor string) (*models.ArchivedBooking, error)
}

type listResponse struct {
	Bookings   []bookings.BookingDTO `json:"bookings"`
	NextCursor string                `json:"next_cursor,omitempty"`
}

type staleResponse struct {
	Count   int      `json:"count"`
	Refs    []string `json:"refs,omitempty"`
	Skipped []string `json:"skipped,omitempty"`
	Message string   `json:"message"`
}

// List returns archived bookings, newest first.
func List(svc Reader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "archive service unavailable"))
			return
		}

		filters := internalarchive.ListFilters{
			Search: validators.SanitizeString(r.URL.Query().Get("search"), 100),
		}
		status, ok, err := validators.ParseQueryEnum(r, "status", enums.ParseBookingStatus, "all")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if ok {
			filters.Status = &status
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.List(r.Context(), filters, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := listResponse{
			Bookings:   make([]bookings.BookingDTO, 0, len(result.Bookings)),
			NextCursor: result.NextCursor,
		}
		for _, row := range result.Bookings {
			resp.Bookings = append(resp.Bookings, bookings.ArchivedToDTO(row))
		}
		responses.WriteSuccess(w, resp)
	}
}

// Detail returns one archived booking.
func Detail(svc Reader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "archive service unavailable"))
			return
		}

		row, err := svc.Get(r.Context(), chi.URLParam(r, "ref"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, bookings.ArchivedToDTO(*row))
	}
}

// ArchiveStale migrates picked-up bookings older than ?days=N (default 0).
func ArchiveStale(svc Migrator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "archive migrator unavailable"))
			return
		}

		days, err := validators.ParseQueryInt(r, "days", 0, 0, maxStaleDays)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ArchiveStaleBy(r.Context(), days, middleware.ActorFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if logg != nil {
			logCtx := logg.WithFields(r.Context(), map[string]any{"days": days, "count": result.Count})
			logg.Info(logCtx, "archive.stale.manual")
		}
		responses.WriteSuccess(w, staleResponse{
			Count:   result.Count,
			Refs:    result.Refs,
			Skipped: result.Skipped,
			Message: fmt.Sprintf("archived %d booking(s)", result.Count),
		})
	}
}

// ArchiveOne moves a single picked-up or cancelled booking to the archive
// without waiting for the scheduled sweeps.
func ArchiveOne(svc Migrator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "archive migrator unavailable"))
			return
		}

		ctx := r.Context()
		row, err := svc.ArchiveByRef(ctx, chi.URLParam(r, "ref"), middleware.ActorFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			logg.Info(logg.WithBookingRef(ctx, row.BookingRef), "archive.manual")
		}
		responses.WriteSuccess(w, bookings.ArchivedToDTO(*row))
	}
}
