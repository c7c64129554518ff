package payments

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/paymall/paymall-backend/internal/exitotp"
	"github.com/paymall/paymall-backend/pkg/db/models"
	"github.com/paymall/paymall-backend/pkg/enums"
)

type CreateAttemptInput struct {
	UserID   uuid.UUID
	OrderID  uuid.UUID
	Provider string
}

// ConfirmInput is the provider's verdict on an attempt.
type ConfirmInput struct {
	Success           bool   `json:"success"`
	ProviderPaymentID string `json:"provider_payment_id"`
	FailureReason     string `json:"failure_reason"`
}

type AttemptView struct {
	ID                uuid.UUID                  `json:"id"`
	OrderID           uuid.UUID                  `json:"order_id"`
	AttemptNo         int                        `json:"attempt_no"`
	Provider          enums.PaymentProvider      `json:"provider"`
	Status            enums.PaymentAttemptStatus `json:"status"`
	Amount            decimal.Decimal            `json:"amount"`
	ProviderOrderID   string                     `json:"provider_order_id"`
	ProviderPaymentID *string                    `json:"provider_payment_id,omitempty"`
	ErrorMessage      *string                    `json:"error_message,omitempty"`
	CreatedAt         time.Time                  `json:"created_at"`
	Reused            bool                       `json:"reused"`
}

func newAttemptView(a *models.PaymentAttempt, reused bool) *AttemptView {
	return &AttemptView{
		ID:                a.ID,
		OrderID:           a.OrderID,
		AttemptNo:         a.AttemptNo,
		Provider:          a.Provider,
		Status:            a.Status,
		Amount:            a.Amount.Round(2),
		ProviderOrderID:   a.ProviderOrderID,
		ProviderPaymentID: a.ProviderPaymentID,
		ErrorMessage:      a.ErrorMessage,
		CreatedAt:         a.CreatedAt,
		Reused:            reused,
	}
}

// ConfirmResult is the outcome of a confirmation. Replayed marks a call that
// found the order already paid and changed nothing.
type ConfirmResult struct {
	OrderID       uuid.UUID                  `json:"order_id"`
	OrderStatus   enums.OrderStatus          `json:"order_status"`
	AttemptID     uuid.UUID                  `json:"attempt_id"`
	AttemptStatus enums.PaymentAttemptStatus `json:"attempt_status"`
	ExitCode      *exitotp.Code              `json:"exit_code,omitempty"`
	Replayed      bool                       `json:"replayed"`
}
