package webhooks

import (
	"bytes"
	"io"
	"net/http"

	"github.com/paymall/paymall-backend/api/responses"
	"github.com/paymall/paymall-backend/api/validators"
	paymentsvc "github.com/paymall/paymall-backend/internal/payments"
	pkgerrors "github.com/paymall/paymall-backend/pkg/errors"
	"github.com/paymall/paymall-backend/pkg/logger"
)

const maxCallbackBytes = 64 << 10

type callbackPayload struct {
	Success           *bool  `json:"success" validate:"required"`
	ProviderPaymentID string `json:"provider_payment_id" validate:"omitempty,max=128"`
	FailureReason     string `json:"failure_reason"`
}

// PaymentCallback lets a provider settle an attempt directly. The raw body
// must carry a valid X-Provider-Signature; no user context is involved.
func PaymentCallback(secret string, svc paymentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		if secret == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment webhook secret not configured"))
			return
		}

		attemptID, err := validators.ParseUUIDParam(r, "attemptId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBytes))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read callback body"))
			return
		}
		if !paymentsvc.VerifySignature([]byte(secret), body, r.Header.Get(paymentsvc.SignatureHeader)) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid provider signature"))
			return
		}

		r.Body = io.NopCloser(bytes.NewReader(body))
		var payload callbackPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{"attempt_id": attemptID.String(), "source": "provider_callback"})
		}
		result, err := svc.Confirm(ctx, attemptID, paymentsvc.ConfirmInput{
			Success:           *payload.Success,
			ProviderPaymentID: validators.SanitizeString(payload.ProviderPaymentID, 128),
			FailureReason:     validators.SanitizeString(payload.FailureReason, 512),
		}, nil)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			logg.Info(ctx, "payment.callback_processed")
		}
		responses.WriteSuccess(w, result)
	}
}
