package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/paymall/paymall-backend/api/middleware"
	"github.com/paymall/paymall-backend/api/responses"
	pkgerrors "github.com/paymall/paymall-backend/pkg/errors"
	"github.com/paymall/paymall-backend/pkg/logger"
)

func currentUser(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (uuid.UUID, bool) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == uuid.Nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
		return uuid.Nil, false
	}
	return userID, true
}

func unavailable(w http.ResponseWriter, r *http.Request, logg *logger.Logger, name string) {
	responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, name+" unavailable"))
}
