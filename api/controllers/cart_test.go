package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cartsvc "github.com/paymall/paymall-backend/internal/cart"
	pkgerrors "github.com/paymall/paymall-backend/pkg/errors"
)

func TestCartAddItemPassesInput(t *testing.T) {
	userID, productID := uuid.New(), uuid.New()
	var got cartsvc.AddInput
	svc := stubCartService{add: func(ctx context.Context, u uuid.UUID, input cartsvc.AddInput) (*cartsvc.AddResult, error) {
		assert.Equal(t, userID, u)
		got = input
		return &cartsvc.AddResult{Cart: &cartsvc.View{UserID: u}}, nil
	}}

	resp := serve(t, CartAddItem(svc, testLogger), testRequest{
		method: http.MethodPost,
		body:   `{"product_id":"` + productID.String() + `","quantity":2,"force":true}`,
		user:   userID,
	})

	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, cartsvc.AddInput{ProductID: productID, Quantity: 2, Force: true}, got)
}

func TestCartAddItemReportsMallConflictAsResult(t *testing.T) {
	current, requested := uuid.New(), uuid.New()
	svc := stubCartService{add: func(context.Context, uuid.UUID, cartsvc.AddInput) (*cartsvc.AddResult, error) {
		return &cartsvc.AddResult{Conflict: &cartsvc.MallConflict{CurrentMallID: current, RequestedMallID: requested}}, nil
	}}

	resp := serve(t, CartAddItem(svc, testLogger), testRequest{
		method: http.MethodPost,
		body:   `{"product_id":"` + uuid.NewString() + `","quantity":1}`,
		user:   uuid.New(),
	})
	require.Equal(t, http.StatusOK, resp.Code)

	var data cartsvc.AddResult
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, resp).Data, &data))
	require.NotNil(t, data.Conflict)
	assert.Nil(t, data.Cart)
	assert.Equal(t, current, data.Conflict.CurrentMallID)
}

func TestCartAddItemValidation(t *testing.T) {
	svc := stubCartService{add: func(context.Context, uuid.UUID, cartsvc.AddInput) (*cartsvc.AddResult, error) {
		t.Fatal("service must not be called")
		return nil, nil
	}}

	cases := map[string]string{
		"zero quantity":   `{"product_id":"` + uuid.NewString() + `","quantity":0}`,
		"missing product": `{"quantity":1}`,
		"bad uuid":        `{"product_id":"abc","quantity":1}`,
		"unknown field":   `{"product_id":"` + uuid.NewString() + `","quantity":1,"price":"1.00"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			resp := serve(t, CartAddItem(svc, testLogger), testRequest{method: http.MethodPost, body: body, user: uuid.New()})
			requireErrorCode(t, resp, http.StatusBadRequest, string(pkgerrors.CodeValidation))
		})
	}
}

func TestCartAddItemStockConflict(t *testing.T) {
	svc := stubCartService{add: func(context.Context, uuid.UUID, cartsvc.AddInput) (*cartsvc.AddResult, error) {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "insufficient stock")
	}}
	resp := serve(t, CartAddItem(svc, testLogger), testRequest{
		method: http.MethodPost,
		body:   `{"product_id":"` + uuid.NewString() + `","quantity":9}`,
		user:   uuid.New(),
	})
	requireErrorCode(t, resp, http.StatusConflict, string(pkgerrors.CodeConflict))
	assert.Contains(t, resp.Body.String(), "insufficient stock")
}

func TestCartRequiresUser(t *testing.T) {
	resp := serve(t, CartGet(stubCartService{}, testLogger), testRequest{method: http.MethodGet})
	requireErrorCode(t, resp, http.StatusUnauthorized, string(pkgerrors.CodeUnauthorized))
}

func TestCartUpdateItemAllowsZero(t *testing.T) {
	itemID := uuid.New()
	gotQty := -1
	svc := stubCartService{update: func(_ context.Context, _, id uuid.UUID, qty int) (*cartsvc.View, error) {
		assert.Equal(t, itemID, id)
		gotQty = qty
		return &cartsvc.View{}, nil
	}}

	resp := serve(t, CartUpdateItem(svc, testLogger), testRequest{
		method: http.MethodPatch,
		body:   `{"quantity":0}`,
		params: map[string]string{"itemId": itemID.String()},
		user:   uuid.New(),
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, 0, gotQty)
}

func TestCartUpdateItemRejectsBadItemID(t *testing.T) {
	resp := serve(t, CartUpdateItem(stubCartService{}, testLogger), testRequest{
		method: http.MethodPatch,
		body:   `{"quantity":1}`,
		params: map[string]string{"itemId": "nope"},
		user:   uuid.New(),
	})
	requireErrorCode(t, resp, http.StatusBadRequest, string(pkgerrors.CodeValidation))
}

func TestCartRemoveAndClear(t *testing.T) {
	userID := uuid.New()
	var cleared bool
	remove := func(context.Context, uuid.UUID, uuid.UUID) (*cartsvc.View, error) {
		return &cartsvc.View{UserID: userID}, nil
	}
	clearCart := func(_ context.Context, u uuid.UUID) error {
		cleared = u == userID
		return nil
	}
	svc := stubCartService{remove: remove, clear: clearCart}

	resp := serve(t, CartRemoveItem(svc, testLogger), testRequest{
		method: http.MethodDelete,
		params: map[string]string{"itemId": uuid.NewString()},
		user:   userID,
	})
	require.Equal(t, http.StatusOK, resp.Code)

	resp = serve(t, CartClear(svc, testLogger), testRequest{method: http.MethodDelete, user: userID})
	require.Equal(t, http.StatusNoContent, resp.Code)
	assert.True(t, cleared)
}

func TestCartMergeMapsItems(t *testing.T) {
	mallID, productID := uuid.New(), uuid.New()
	var got cartsvc.MergeInput
	svc := stubCartService{merge: func(_ context.Context, _ uuid.UUID, input cartsvc.MergeInput) (*cartsvc.MergeResult, error) {
		got = input
		return &cartsvc.MergeResult{MergedCount: len(input.Items)}, nil
	}}

	resp := serve(t, CartMerge(svc, testLogger), testRequest{
		method: http.MethodPost,
		body:   `{"mall_id":"` + mallID.String() + `","items":[{"product_id":"` + productID.String() + `","quantity":3}]}`,
		user:   uuid.New(),
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, mallID, got.MallID)
	require.Len(t, got.Items, 1)
	assert.Equal(t, cartsvc.GuestItem{ProductID: productID, Quantity: 3}, got.Items[0])
}

func TestCartMergeRejectsEmptyItems(t *testing.T) {
	resp := serve(t, CartMerge(stubCartService{}, testLogger), testRequest{
		method: http.MethodPost,
		body:   `{"mall_id":"` + uuid.NewString() + `","items":[]}`,
		user:   uuid.New(),
	})
	requireErrorCode(t, resp, http.StatusBadRequest, string(pkgerrors.CodeValidation))
}
