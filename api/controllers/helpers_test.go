package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/paymall/paymall-backend/api/middleware"
	cartsvc "github.com/paymall/paymall-backend/internal/cart"
	"github.com/paymall/paymall-backend/internal/exitotp"
	ordersvc "github.com/paymall/paymall-backend/internal/orders"
	paymentsvc "github.com/paymall/paymall-backend/internal/payments"
	"github.com/paymall/paymall-backend/pkg/db/models"
	"github.com/paymall/paymall-backend/pkg/enums"
	"github.com/paymall/paymall-backend/pkg/logger"
)

var testLogger = logger.Nop()

type testRequest struct {
	method string
	body   string
	params map[string]string
	query  string
	user   uuid.UUID
	role   enums.Role
}

func (tr testRequest) build() *http.Request {
	var body io.Reader = http.NoBody
	if tr.body != "" {
		body = strings.NewReader(tr.body)
	}
	target := "/"
	if tr.query != "" {
		target += "?" + tr.query
	}
	req := httptest.NewRequest(tr.method, target, body)

	rc := chi.NewRouteContext()
	for k, v := range tr.params {
		rc.URLParams.Add(k, v)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rc)
	if tr.user != uuid.Nil {
		role := tr.role
		if role == "" {
			role = enums.RoleShopper
		}
		ctx = middleware.WithUser(ctx, tr.user, role, nil)
	}
	return req.WithContext(ctx)
}

func serve(t *testing.T, h http.HandlerFunc, tr testRequest) *httptest.ResponseRecorder {
	t.Helper()
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, tr.build())
	return resp
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, resp *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(resp.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response %q: %v", resp.Body.String(), err)
	}
	return env
}

func requireErrorCode(t *testing.T, resp *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if resp.Code != status {
		t.Fatalf("expected status %d got %d: %s", status, resp.Code, resp.Body.String())
	}
	env := decodeEnvelope(t, resp)
	if env.Error == nil || env.Error.Code != code {
		t.Fatalf("expected error code %s, got %s", code, resp.Body.String())
	}
}

type stubCartService struct {
	add    func(ctx context.Context, userID uuid.UUID, input cartsvc.AddInput) (*cartsvc.AddResult, error)
	update func(ctx context.Context, userID, itemID uuid.UUID, qty int) (*cartsvc.View, error)
	remove func(ctx context.Context, userID, itemID uuid.UUID) (*cartsvc.View, error)
	clear  func(ctx context.Context, userID uuid.UUID) error
	get    func(ctx context.Context, userID uuid.UUID) (*cartsvc.View, error)
	merge  func(ctx context.Context, userID uuid.UUID, input cartsvc.MergeInput) (*cartsvc.MergeResult, error)
}

func (s stubCartService) Add(ctx context.Context, userID uuid.UUID, input cartsvc.AddInput) (*cartsvc.AddResult, error) {
	return s.add(ctx, userID, input)
}

func (s stubCartService) UpdateQuantity(ctx context.Context, userID, itemID uuid.UUID, qty int) (*cartsvc.View, error) {
	return s.update(ctx, userID, itemID, qty)
}

func (s stubCartService) Remove(ctx context.Context, userID, itemID uuid.UUID) (*cartsvc.View, error) {
	return s.remove(ctx, userID, itemID)
}

func (s stubCartService) Clear(ctx context.Context, userID uuid.UUID) error {
	return s.clear(ctx, userID)
}

func (s stubCartService) GetActive(ctx context.Context, userID uuid.UUID) (*cartsvc.View, error) {
	return s.get(ctx, userID)
}

func (s stubCartService) MergeGuest(ctx context.Context, userID uuid.UUID, input cartsvc.MergeInput) (*cartsvc.MergeResult, error) {
	return s.merge(ctx, userID, input)
}

type stubOrdersService struct {
	checkout func(ctx context.Context, userID uuid.UUID) (*ordersvc.CheckoutResult, error)
	cancel   func(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error)
	get      func(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error)
	list     func(ctx context.Context, userID uuid.UUID, params ordersvc.ListParams) (*ordersvc.OrderList, error)
}

func (s stubOrdersService) Checkout(ctx context.Context, userID uuid.UUID) (*ordersvc.CheckoutResult, error) {
	return s.checkout(ctx, userID)
}

func (s stubOrdersService) Cancel(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	return s.cancel(ctx, userID, orderID)
}

func (s stubOrdersService) Get(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	return s.get(ctx, userID, orderID)
}

func (s stubOrdersService) List(ctx context.Context, userID uuid.UUID, params ordersvc.ListParams) (*ordersvc.OrderList, error) {
	return s.list(ctx, userID, params)
}

type stubPaymentsService struct {
	create  func(ctx context.Context, input paymentsvc.CreateAttemptInput) (*paymentsvc.AttemptView, error)
	confirm func(ctx context.Context, attemptID uuid.UUID, input paymentsvc.ConfirmInput, userID *uuid.UUID) (*paymentsvc.ConfirmResult, error)
	list    func(ctx context.Context, userID, orderID uuid.UUID) ([]paymentsvc.AttemptView, error)
}

func (s stubPaymentsService) CreateAttempt(ctx context.Context, input paymentsvc.CreateAttemptInput) (*paymentsvc.AttemptView, error) {
	return s.create(ctx, input)
}

func (s stubPaymentsService) Confirm(ctx context.Context, attemptID uuid.UUID, input paymentsvc.ConfirmInput, userID *uuid.UUID) (*paymentsvc.ConfirmResult, error) {
	return s.confirm(ctx, attemptID, input, userID)
}

func (s stubPaymentsService) ListAttempts(ctx context.Context, userID, orderID uuid.UUID) ([]paymentsvc.AttemptView, error) {
	return s.list(ctx, userID, orderID)
}

type stubExitService struct {
	get    func(ctx context.Context, userID, orderID uuid.UUID) (*exitotp.Code, error)
	redeem func(ctx context.Context, input exitotp.RedeemInput) (*models.Order, error)
}

func (stubExitService) Issue(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.ExitOTP, error) {
	panic("not implemented")
}

func (s stubExitService) GetExitCode(ctx context.Context, userID, orderID uuid.UUID) (*exitotp.Code, error) {
	return s.get(ctx, userID, orderID)
}

func (s stubExitService) Redeem(ctx context.Context, input exitotp.RedeemInput) (*models.Order, error) {
	return s.redeem(ctx, input)
}
