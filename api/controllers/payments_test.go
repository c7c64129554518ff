package controllers

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	paymentsvc "github.com/paymall/paymall-backend/internal/payments"
	"github.com/paymall/paymall-backend/pkg/enums"
	pkgerrors "github.com/paymall/paymall-backend/pkg/errors"
)

func TestPaymentAttemptCreate(t *testing.T) {
	userID, orderID := uuid.New(), uuid.New()
	for _, reused := range []bool{false, true} {
		var got paymentsvc.CreateAttemptInput
		svc := stubPaymentsService{create: func(_ context.Context, input paymentsvc.CreateAttemptInput) (*paymentsvc.AttemptView, error) {
			got = input
			return &paymentsvc.AttemptView{ID: uuid.New(), OrderID: input.OrderID, Provider: enums.PaymentProviderRazorpay, Reused: reused}, nil
		}}

		resp := serve(t, PaymentAttemptCreate(svc, testLogger), testRequest{
			method: http.MethodPost,
			body:   `{"provider":"RAZORPAY"}`,
			params: map[string]string{"orderId": orderID.String()},
			user:   userID,
		})

		want := http.StatusCreated
		if reused {
			want = http.StatusOK
		}
		require.Equal(t, want, resp.Code, resp.Body.String())
		assert.Equal(t, paymentsvc.CreateAttemptInput{UserID: userID, OrderID: orderID, Provider: "RAZORPAY"}, got)
	}
}

func TestPaymentAttemptCreateWithoutBodyUsesDefaultProvider(t *testing.T) {
	provider := "unset"
	svc := stubPaymentsService{create: func(_ context.Context, input paymentsvc.CreateAttemptInput) (*paymentsvc.AttemptView, error) {
		provider = input.Provider
		return &paymentsvc.AttemptView{}, nil
	}}
	resp := serve(t, PaymentAttemptCreate(svc, testLogger), testRequest{
		method: http.MethodPost,
		params: map[string]string{"orderId": uuid.NewString()},
		user:   uuid.New(),
	})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	assert.Equal(t, "", provider)
}

func TestPaymentAttemptCreateExpiredOrder(t *testing.T) {
	svc := stubPaymentsService{create: func(context.Context, paymentsvc.CreateAttemptInput) (*paymentsvc.AttemptView, error) {
		return nil, pkgerrors.New(pkgerrors.CodeExpired, "order expired")
	}}
	resp := serve(t, PaymentAttemptCreate(svc, testLogger), testRequest{
		method: http.MethodPost,
		params: map[string]string{"orderId": uuid.NewString()},
		user:   uuid.New(),
	})
	requireErrorCode(t, resp, http.StatusGone, string(pkgerrors.CodeExpired))
}

func TestPaymentConfirmPassesOwner(t *testing.T) {
	userID, attemptID := uuid.New(), uuid.New()
	var (
		gotInput paymentsvc.ConfirmInput
		gotUser  *uuid.UUID
	)
	svc := stubPaymentsService{confirm: func(_ context.Context, id uuid.UUID, input paymentsvc.ConfirmInput, u *uuid.UUID) (*paymentsvc.ConfirmResult, error) {
		assert.Equal(t, attemptID, id)
		gotInput, gotUser = input, u
		return &paymentsvc.ConfirmResult{AttemptID: id, OrderStatus: enums.OrderStatusPaid, AttemptStatus: enums.PaymentAttemptSuccess}, nil
	}}

	resp := serve(t, PaymentConfirm(svc, testLogger), testRequest{
		method: http.MethodPost,
		body:   `{"success":true,"provider_payment_id":"  pay_123  "}`,
		params: map[string]string{"attemptId": attemptID.String()},
		user:   userID,
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	require.NotNil(t, gotUser)
	assert.Equal(t, userID, *gotUser)
	assert.Equal(t, paymentsvc.ConfirmInput{Success: true, ProviderPaymentID: "pay_123"}, gotInput)
}

func TestPaymentConfirmRequiresVerdict(t *testing.T) {
	resp := serve(t, PaymentConfirm(stubPaymentsService{}, testLogger), testRequest{
		method: http.MethodPost,
		body:   `{"provider_payment_id":"pay_1"}`,
		params: map[string]string{"attemptId": uuid.NewString()},
		user:   uuid.New(),
	})
	requireErrorCode(t, resp, http.StatusBadRequest, string(pkgerrors.CodeValidation))
}

func TestPaymentConfirmStockConflictKeepsDetails(t *testing.T) {
	productID := uuid.New()
	svc := stubPaymentsService{confirm: func(context.Context, uuid.UUID, paymentsvc.ConfirmInput, *uuid.UUID) (*paymentsvc.ConfirmResult, error) {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "insufficient stock").WithDetails(map[string]any{
			"product_id": productID.String(),
			"requested":  3,
			"available":  1,
		})
	}}
	resp := serve(t, PaymentConfirm(svc, testLogger), testRequest{
		method: http.MethodPost,
		body:   `{"success":true}`,
		params: map[string]string{"attemptId": uuid.NewString()},
		user:   uuid.New(),
	})
	requireErrorCode(t, resp, http.StatusConflict, string(pkgerrors.CodeConflict))
	assert.Contains(t, string(decodeEnvelope(t, resp).Error.Details), productID.String())
}

func TestPaymentAttemptsList(t *testing.T) {
	orderID := uuid.New()
	svc := stubPaymentsService{list: func(_ context.Context, _, id uuid.UUID) ([]paymentsvc.AttemptView, error) {
		return []paymentsvc.AttemptView{{OrderID: id, AttemptNo: 1}, {OrderID: id, AttemptNo: 2}}, nil
	}}
	resp := serve(t, PaymentAttemptsList(svc, testLogger), testRequest{
		method: http.MethodGet,
		params: map[string]string{"orderId": orderID.String()},
		user:   uuid.New(),
	})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"attempt_no":2`)
}
