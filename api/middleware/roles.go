package middleware

import (
	"net/http"
	"slices"

	"github.com/angelmondragon/luggagedeposit-backend/api/responses"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/luggagedeposit-backend/pkg/errors"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/logger"
)

// RequireRole must run after Auth. Staff outside allowed get a 403 listing
// the roles that would have passed.
func RequireRole(logg *logger.Logger, allowed ...enums.StaffRole) func(http.Handler) http.Handler {
	denied := pkgerrors.New(pkgerrors.CodeForbidden, "role required").
		WithDetails(map[string]any{"required": allowed})
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !slices.Contains(allowed, enums.StaffRole(RoleFromContext(r.Context()))) {
				responses.WriteError(r.Context(), logg, w, denied)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
