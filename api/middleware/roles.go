package middleware

import (
	"net/http"

	"github.com/paymall/paymall-backend/api/responses"
	pkgerrors "github.com/paymall/paymall-backend/pkg/errors"
	"github.com/paymall/paymall-backend/pkg/logger"
)

// RequireExitStaff admits gate staff and mall admins.
func RequireExitStaff(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !RoleFromContext(r.Context()).CanRedeemExit() {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "gate staff role required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
