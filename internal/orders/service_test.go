package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paymall/paymall-backend/pkg/db/models"
	"github.com/paymall/paymall-backend/pkg/enums"
	pkgerrors "github.com/paymall/paymall-backend/pkg/errors"
	"github.com/paymall/paymall-backend/pkg/pagination"
)

func requireCode(t *testing.T, err error, code pkgerrors.Code) *pkgerrors.Error {
	t.Helper()
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected typed error, got %v", err)
	require.Equal(t, code, typed.Code(), typed.Message())
	return typed
}

func TestCheckoutFreezesTotals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user, mall := uuid.New(), uuid.New()
	a := f.product(t, mall, "118.00", 18, 10)
	b := f.product(t, mall, "50.00", 0, 10)
	f.fillCart(t, user, mall, map[uuid.UUID]int{a.ID: 2, b.ID: 1})

	res, err := f.svc.Checkout(ctx, user)
	require.NoError(t, err)
	require.False(t, res.Reused)

	order := f.reload(t, res.Order.ID)
	assert.Equal(t, enums.OrderStatusPaymentPending, order.Status)
	assert.Equal(t, "250.00", order.Subtotal.StringFixed(2))
	assert.Equal(t, "36.00", order.TaxTotal.StringFixed(2))
	assert.Equal(t, "18.00", order.CGSTTotal.StringFixed(2))
	assert.Equal(t, "18.00", order.SGSTTotal.StringFixed(2))
	assert.Equal(t, "0.00", order.IGSTTotal.StringFixed(2))
	assert.Equal(t, "286.00", order.Total.StringFixed(2))
	assert.Len(t, order.Items, 2)
	assert.Regexp(t, `^ORD-[0-9A-F]{12}$`, order.OrderNumber)
	assert.WithinDuration(t, f.clock.Now().Add(15*time.Minute), order.ExpiresAt, time.Second)
	assert.Len(t, order.CartHash, 64)
	assert.EqualValues(t, 1, f.events(t, order.ID, enums.EventOrderCreated))

	var items int64
	require.NoError(t, f.conn.Model(&models.CartItem{}).Count(&items).Error)
	assert.EqualValues(t, 2, items, "checkout must not clear the cart")
}

func TestCheckoutEmptyCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user, mall := uuid.New(), uuid.New()

	_, err := f.svc.Checkout(ctx, user)
	typed := requireCode(t, err, pkgerrors.CodeValidation)
	assert.Equal(t, "cart empty", typed.Message())

	f.fillCart(t, user, mall, nil)
	_, err = f.svc.Checkout(ctx, user)
	requireCode(t, err, pkgerrors.CodeValidation)

	var orders int64
	require.NoError(t, f.conn.Model(&models.Order{}).Count(&orders).Error)
	assert.Zero(t, orders)
}

func TestCheckoutIsIdempotentPerFingerprint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user, mall := uuid.New(), uuid.New()
	p := f.product(t, mall, "10.00", 5, 10)
	f.fillCart(t, user, mall, map[uuid.UUID]int{p.ID: 3})

	first, err := f.svc.Checkout(ctx, user)
	require.NoError(t, err)
	second, err := f.svc.Checkout(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.True(t, second.Reused)

	f.fillCart(t, user, mall, map[uuid.UUID]int{p.ID: 4})
	third, err := f.svc.Checkout(ctx, user)
	require.NoError(t, err)
	assert.NotEqual(t, first.Order.ID, third.Order.ID)
	assert.Equal(t, "40.00", third.Order.Total.StringFixed(2))
}

func TestCheckoutExpiresOverdueOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user, mall := uuid.New(), uuid.New()
	p := f.product(t, mall, "10.00", 5, 10)
	f.fillCart(t, user, mall, map[uuid.UUID]int{p.ID: 1})

	first, err := f.svc.Checkout(ctx, user)
	require.NoError(t, err)

	f.clock.Advance(16 * time.Minute)
	second, err := f.svc.Checkout(ctx, user)
	require.NoError(t, err)
	assert.NotEqual(t, first.Order.ID, second.Order.ID, "expired order must not be reused")

	old := f.reload(t, first.Order.ID)
	assert.Equal(t, enums.OrderStatusExpired, old.Status)
	assert.NotNil(t, old.ExpiredAt)
	assert.EqualValues(t, 1, f.events(t, old.ID, enums.EventOrderExpired))
}

func TestOrderSnapshotIgnoresProductChanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user, mall := uuid.New(), uuid.New()
	p := f.product(t, mall, "118.00", 18, 10)
	f.fillCart(t, user, mall, map[uuid.UUID]int{p.ID: 1})

	res, err := f.svc.Checkout(ctx, user)
	require.NoError(t, err)

	require.NoError(t, f.conn.Model(&models.Product{}).Where("id = ?", p.ID).
		Updates(map[string]any{"price": "200.00", "name": "renamed"}).Error)

	got, err := f.svc.Get(ctx, user, res.Order.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "118.00", got.Items[0].ProductPrice.StringFixed(2))
	assert.Equal(t, p.Name, got.Items[0].ProductName)
	assert.Equal(t, "118.00", got.Total.StringFixed(2))
}

func TestGetAppliesLazyExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user, mall := uuid.New(), uuid.New()
	p := f.product(t, mall, "10.00", 0, 10)
	f.fillCart(t, user, mall, map[uuid.UUID]int{p.ID: 1})

	res, err := f.svc.Checkout(ctx, user)
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, uuid.New(), res.Order.ID)
	requireCode(t, err, pkgerrors.CodeForbidden)
	_, err = f.svc.Get(ctx, user, uuid.New())
	requireCode(t, err, pkgerrors.CodeNotFound)

	f.clock.Advance(16 * time.Minute)
	got, err := f.svc.Get(ctx, user, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusExpired, got.Status)
	assert.Equal(t, enums.OrderStatusExpired, f.reload(t, res.Order.ID).Status)
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user, mall := uuid.New(), uuid.New()
	p := f.product(t, mall, "10.00", 0, 10)
	f.fillCart(t, user, mall, map[uuid.UUID]int{p.ID: 1})

	res, err := f.svc.Checkout(ctx, user)
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, uuid.New(), res.Order.ID)
	requireCode(t, err, pkgerrors.CodeForbidden)

	cancelled, err := f.svc.Cancel(ctx, user, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.CancelledAt)
	assert.EqualValues(t, 1, f.events(t, res.Order.ID, enums.EventOrderCancelled))

	_, err = f.svc.Cancel(ctx, user, res.Order.ID)
	typed := requireCode(t, err, pkgerrors.CodeStateConflict)
	assert.Equal(t, map[string]any{"status": enums.OrderStatusCancelled}, typed.Details())
}

func TestCancelOverdueOrderReportsExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user, mall := uuid.New(), uuid.New()
	p := f.product(t, mall, "10.00", 0, 10)
	f.fillCart(t, user, mall, map[uuid.UUID]int{p.ID: 1})

	res, err := f.svc.Checkout(ctx, user)
	require.NoError(t, err)

	f.clock.Advance(20 * time.Minute)
	_, err = f.svc.Cancel(ctx, user, res.Order.ID)
	requireCode(t, err, pkgerrors.CodeExpired)
	assert.Equal(t, enums.OrderStatusExpired, f.reload(t, res.Order.ID).Status, "expiry commits even though the call failed")
}

func TestListPaginatesNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user, mall := uuid.New(), uuid.New()
	p := f.product(t, mall, "10.00", 0, 100)

	var ids []uuid.UUID
	for qty := 1; qty <= 3; qty++ {
		f.fillCart(t, user, mall, map[uuid.UUID]int{p.ID: qty})
		res, err := f.svc.Checkout(ctx, user)
		require.NoError(t, err)
		ids = append(ids, res.Order.ID)
		time.Sleep(2 * time.Millisecond)
	}

	page, err := f.svc.List(ctx, user, ListParams{Params: pagination.Params{Limit: 2}})
	require.NoError(t, err)
	require.Len(t, page.Orders, 2)
	assert.Equal(t, ids[2], page.Orders[0].ID)
	assert.Equal(t, ids[1], page.Orders[1].ID)
	require.NotEmpty(t, page.NextCursor)

	next, err := f.svc.List(ctx, user, ListParams{Params: pagination.Params{Limit: 2, Cursor: page.NextCursor}})
	require.NoError(t, err)
	require.Len(t, next.Orders, 1)
	assert.Equal(t, ids[0], next.Orders[0].ID)
	assert.Empty(t, next.NextCursor)

	_, err = f.svc.List(ctx, user, ListParams{Params: pagination.Params{Cursor: "%%%"}})
	requireCode(t, err, pkgerrors.CodeValidation)
}
