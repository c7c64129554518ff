package controllers

import (
	"net/http"
	"strings"

	"github.com/paymall/paymall-backend/api/responses"
	"github.com/paymall/paymall-backend/api/validators"
	ordersvc "github.com/paymall/paymall-backend/internal/orders"
	"github.com/paymall/paymall-backend/pkg/enums"
	pkgerrors "github.com/paymall/paymall-backend/pkg/errors"
	"github.com/paymall/paymall-backend/pkg/logger"
	"github.com/paymall/paymall-backend/pkg/pagination"
)

type checkoutResponse struct {
	Order  ordersvc.View `json:"order"`
	Reused bool          `json:"reused"`
}

type orderListResponse struct {
	Orders     []ordersvc.View `json:"orders"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Checkout freezes the caller's active cart into a payable order. A brand new
// order answers 201; an identical unexpired pending order is returned with 200.
func Checkout(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "orders service")
			return
		}
		userID, ok := currentUser(w, r, logg)
		if !ok {
			return
		}

		result, err := svc.Checkout(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status := http.StatusCreated
		if result.Reused {
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, checkoutResponse{
			Order:  ordersvc.NewView(result.Order),
			Reused: result.Reused,
		})
	}
}

// OrdersList returns the caller's orders newest first.
func OrdersList(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "orders service")
			return
		}
		userID, ok := currentUser(w, r, logg)
		if !ok {
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := ordersvc.ListParams{
			Params: pagination.Params{
				Limit:  limit,
				Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
			},
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseOrderStatus(strings.ToUpper(raw))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			params.Status = &status
		}

		list, err := svc.List(r.Context(), userID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := orderListResponse{Orders: make([]ordersvc.View, 0, len(list.Orders)), NextCursor: list.NextCursor}
		for i := range list.Orders {
			resp.Orders = append(resp.Orders, ordersvc.NewView(&list.Orders[i]))
		}
		responses.WriteSuccess(w, resp)
	}
}

func OrderDetail(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "orders service")
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

		order, err := svc.Get(r.Context(), userID, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, ordersvc.NewView(order))
	}
}

func OrderCancel(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "orders service")
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

		order, err := svc.Cancel(r.Context(), userID, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, ordersvc.NewView(order))
	}
}
