package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/paymall/paymall-backend/api/responses"
	"github.com/paymall/paymall-backend/api/validators"
	cartsvc "github.com/paymall/paymall-backend/internal/cart"
	"github.com/paymall/paymall-backend/pkg/logger"
)

type addCartItemRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,min=1"`
	Force     bool      `json:"force"`
}

type updateCartItemRequest struct {
	// Zero removes the line.
	Quantity *int `json:"quantity" validate:"required,min=0"`
}

type mergeCartRequest struct {
	MallID uuid.UUID          `json:"mall_id" validate:"required"`
	Items  []guestItemPayload `json:"items" validate:"required,min=1,max=100,dive"`
	Force  bool               `json:"force"`
}

type guestItemPayload struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,min=1"`
}

// CartAddItem adds a product to the caller's active cart. A cross-mall add
// without force answers 200 with the conflict instead of the cart.
func CartAddItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "cart service")
			return
		}
		userID, ok := currentUser(w, r, logg)
		if !ok {
			return
		}

		var payload addCartItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Add(r.Context(), userID, cartsvc.AddInput{
			ProductID: payload.ProductID,
			Quantity:  payload.Quantity,
			Force:     payload.Force,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func CartUpdateItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "cart service")
			return
		}
		userID, ok := currentUser(w, r, logg)
		if !ok {
			return
		}
		itemID, err := validators.ParseUUIDParam(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateCartItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.UpdateQuantity(r.Context(), userID, itemID, *payload.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func CartRemoveItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "cart service")
			return
		}
		userID, ok := currentUser(w, r, logg)
		if !ok {
			return
		}
		itemID, err := validators.ParseUUIDParam(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.Remove(r.Context(), userID, itemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func CartClear(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "cart service")
			return
		}
		userID, ok := currentUser(w, r, logg)
		if !ok {
			return
		}
		if err := svc.Clear(r.Context(), userID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func CartGet(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "cart service")
			return
		}
		userID, ok := currentUser(w, r, logg)
		if !ok {
			return
		}
		view, err := svc.GetActive(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// CartMerge folds a device-side guest cart into the caller's cart after login.
func CartMerge(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "cart service")
			return
		}
		userID, ok := currentUser(w, r, logg)
		if !ok {
			return
		}

		var payload mergeCartRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]cartsvc.GuestItem, len(payload.Items))
		for i, item := range payload.Items {
			items[i] = cartsvc.GuestItem{ProductID: item.ProductID, Quantity: item.Quantity}
		}
		result, err := svc.MergeGuest(r.Context(), userID, cartsvc.MergeInput{
			MallID: payload.MallID,
			Items:  items,
			Force:  payload.Force,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
