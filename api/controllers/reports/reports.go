package reports

import (
	"context"
	"net/http"

	"github.com/angelmondragon/luggagedeposit-backend/api/responses"
	"github.com/angelmondragon/luggagedeposit-backend/api/validators"
	internalreports "github.com/angelmondragon/luggagedeposit-backend/internal/reports"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/luggagedeposit-backend/pkg/errors"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/logger"
)

type Service interface {
	Summary(ctx context.Context, period internalreports.Period) (*internalreports.Summary, error)
}

// Summary reports totals for ?mode=day|month|year&date=... and defaults to today.
func Summary(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "report service unavailable"))
			return
		}

		period := internalreports.Period{
			Mode: enums.ReportPeriodDay,
			Date: validators.SanitizeString(r.URL.Query().Get("date"), 10),
		}
		mode, ok, err := validators.ParseQueryEnum(r, "mode", enums.ParseReportPeriod)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if ok {
			period.Mode = mode
		}

		summary, err := svc.Summary(r.Context(), period)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}
