package controllers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paymall/paymall-backend/internal/exitotp"
	"github.com/paymall/paymall-backend/pkg/db/models"
	"github.com/paymall/paymall-backend/pkg/enums"
	pkgerrors "github.com/paymall/paymall-backend/pkg/errors"
)

func TestExitCodeGet(t *testing.T) {
	orderID := uuid.New()
	svc := stubExitService{get: func(_ context.Context, _, id uuid.UUID) (*exitotp.Code, error) {
		return &exitotp.Code{OrderID: id, Code: "482913", ExpiresAt: time.Now().Add(5 * time.Minute)}, nil
	}}
	resp := serve(t, ExitCodeGet(svc, testLogger), testRequest{
		method: http.MethodGet,
		params: map[string]string{"orderId": orderID.String()},
		user:   uuid.New(),
	})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"code":"482913"`)
}

func TestExitCodeGetUnpaidOrder(t *testing.T) {
	svc := stubExitService{get: func(context.Context, uuid.UUID, uuid.UUID) (*exitotp.Code, error) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not paid")
	}}
	resp := serve(t, ExitCodeGet(svc, testLogger), testRequest{
		method: http.MethodGet,
		params: map[string]string{"orderId": uuid.NewString()},
		user:   uuid.New(),
	})
	requireErrorCode(t, resp, http.StatusUnprocessableEntity, string(pkgerrors.CodeStateConflict))
}

func TestExitCodeRedeem(t *testing.T) {
	staffID, orderID := uuid.New(), uuid.New()
	var got exitotp.RedeemInput
	svc := stubExitService{redeem: func(_ context.Context, input exitotp.RedeemInput) (*models.Order, error) {
		got = input
		return &models.Order{ID: input.OrderID, Status: enums.OrderStatusFulfilled, IsExited: true}, nil
	}}
	resp := serve(t, ExitCodeRedeem(svc, testLogger), testRequest{
		method: http.MethodPost,
		body:   `{"code":"482913"}`,
		params: map[string]string{"orderId": orderID.String()},
		user:   staffID,
		role:   enums.RoleGateStaff,
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, exitotp.RedeemInput{OrderID: orderID, Code: "482913", StaffID: staffID}, got)
	assert.Contains(t, resp.Body.String(), `"status":"FULFILLED"`)
}

func TestExitCodeRedeemRejectsMalformedCode(t *testing.T) {
	for _, body := range []string{`{"code":"12345"}`, `{"code":"12a456"}`, `{}`} {
		resp := serve(t, ExitCodeRedeem(stubExitService{}, testLogger), testRequest{
			method: http.MethodPost,
			body:   body,
			params: map[string]string{"orderId": uuid.NewString()},
			user:   uuid.New(),
			role:   enums.RoleGateStaff,
		})
		requireErrorCode(t, resp, http.StatusBadRequest, string(pkgerrors.CodeValidation))
	}
}

func TestExitCodeRedeemExpired(t *testing.T) {
	svc := stubExitService{redeem: func(context.Context, exitotp.RedeemInput) (*models.Order, error) {
		return nil, pkgerrors.New(pkgerrors.CodeExpired, "exit code expired")
	}}
	resp := serve(t, ExitCodeRedeem(svc, testLogger), testRequest{
		method: http.MethodPost,
		body:   `{"code":"482913"}`,
		params: map[string]string{"orderId": uuid.NewString()},
		user:   uuid.New(),
		role:   enums.RoleGateStaff,
	})
	requireErrorCode(t, resp, http.StatusGone, string(pkgerrors.CodeExpired))
}
