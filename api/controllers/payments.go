package controllers

import (
	"net/http"

	"github.com/paymall/paymall-backend/api/responses"
	"github.com/paymall/paymall-backend/api/validators"
	paymentsvc "github.com/paymall/paymall-backend/internal/payments"
	"github.com/paymall/paymall-backend/pkg/logger"
)

const maxReasonLen = 512

type createAttemptRequest struct {
	// Empty selects the configured default provider.
	Provider string `json:"provider" validate:"omitempty,max=32"`
}

type confirmPaymentRequest struct {
	Success           *bool  `json:"success" validate:"required"`
	ProviderPaymentID string `json:"provider_payment_id" validate:"omitempty,max=128"`
	FailureReason     string `json:"failure_reason"`
}

func (r confirmPaymentRequest) toInput() paymentsvc.ConfirmInput {
	return paymentsvc.ConfirmInput{
		Success:           *r.Success,
		ProviderPaymentID: validators.SanitizeString(r.ProviderPaymentID, 128),
		FailureReason:     validators.SanitizeString(r.FailureReason, maxReasonLen),
	}
}

// PaymentAttemptCreate opens (or reuses) a provider attempt for an order.
func PaymentAttemptCreate(svc paymentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "payments service")
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

		var payload createAttemptRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		attempt, err := svc.CreateAttempt(r.Context(), paymentsvc.CreateAttemptInput{
			UserID:   userID,
			OrderID:  orderID,
			Provider: payload.Provider,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status := http.StatusCreated
		if attempt.Reused {
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, attempt)
	}
}

func PaymentAttemptsList(svc paymentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "payments service")
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

		attempts, err := svc.ListAttempts(r.Context(), userID, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, attempts)
	}
}

// PaymentConfirm settles an attempt on behalf of the order's owner.
func PaymentConfirm(svc paymentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "payments service")
			return
		}
		userID, ok := currentUser(w, r, logg)
		if !ok {
			return
		}
		attemptID, err := validators.ParseUUIDParam(r, "attemptId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload confirmPaymentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithField(ctx, "attempt_id", attemptID.String())
		}
		result, err := svc.Confirm(ctx, attemptID, payload.toInput(), &userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
