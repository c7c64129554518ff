package controllers

import (
	"net/http"

	"github.com/paymall/paymall-backend/api/middleware"
	"github.com/paymall/paymall-backend/api/responses"
	"github.com/paymall/paymall-backend/api/validators"
	"github.com/paymall/paymall-backend/internal/exitotp"
	ordersvc "github.com/paymall/paymall-backend/internal/orders"
	"github.com/paymall/paymall-backend/pkg/logger"
)

type redeemExitCodeRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

// ExitCodeGet shows the buyer the exit code of their paid order.
func ExitCodeGet(svc exitotp.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "exit code service")
			return
		}
		userID, ok := currentUser(w, r, logg)
		if !ok {
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		code, err := svc.GetExitCode(r.Context(), userID, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, code)
	}
}

// ExitCodeRedeem is the gate staff check. It burns the code and fulfills the order.
func ExitCodeRedeem(svc exitotp.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "exit code service")
			return
		}
		staffID, ok := currentUser(w, r, logg)
		if !ok {
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload redeemExitCodeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithOrderID(ctx, orderID.String())
			ctx = logg.WithField(ctx, "actor_role", string(middleware.RoleFromContext(ctx)))
		}
		order, err := svc.Redeem(ctx, exitotp.RedeemInput{OrderID: orderID, Code: payload.Code, StaffID: staffID})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			logg.Info(ctx, "exit_code.redeemed")
		}
		responses.WriteSuccess(w, ordersvc.NewView(order))
	}
}
