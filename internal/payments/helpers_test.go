package payments

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/paymall/paymall-backend/internal/cart"
	"github.com/paymall/paymall-backend/internal/exitotp"
	"github.com/paymall/paymall-backend/internal/orders"
	product "github.com/paymall/paymall-backend/internal/products"
	"github.com/paymall/paymall-backend/pkg/db"
	"github.com/paymall/paymall-backend/pkg/db/models"
	"github.com/paymall/paymall-backend/pkg/enums"
	pkgerrors "github.com/paymall/paymall-backend/pkg/errors"
	"github.com/paymall/paymall-backend/pkg/locks"
	"github.com/paymall/paymall-backend/pkg/outbox"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	conn     *gorm.DB
	clock    *testClock
	orders   orders.Service
	payments Service
	locks    *locks.Keyed
}

func newFixture(t *testing.T, lowStockThreshold int) *fixture {
	t.Helper()
	conn, err := db.OpenSQLite("file:payments_" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.AutoMigrate(models.All()...))

	clock := &testClock{t: time.Now().UTC()}
	keyed := locks.NewKeyed()
	tx := db.FromConn(conn)
	events := outbox.NewService(outbox.NewRepository(conn), nil)
	orderRepo := orders.NewRepository(conn)
	carts := cart.NewRepository(conn)
	lifecycle, err := orders.NewLifecycle(orderRepo, events, nil, nil)
	require.NoError(t, err)

	orderSvc, err := orders.NewService(orders.ServiceParams{
		Repository: orderRepo,
		Carts:      carts,
		Lifecycle:  lifecycle,
		Tx:         tx,
		Outbox:     events,
		Now:        clock.Now,
	})
	require.NoError(t, err)

	exitSvc, err := exitotp.NewService(exitotp.ServiceParams{
		Repository: exitotp.NewRepository(conn),
		Orders:     orderRepo,
		Lifecycle:  lifecycle,
		Tx:         tx,
		Now:        clock.Now,
	})
	require.NoError(t, err)

	paySvc, err := NewService(ServiceParams{
		Repository:        NewRepository(conn),
		Orders:            orderRepo,
		Lifecycle:         lifecycle,
		Products:          product.NewRepository(conn),
		Carts:             carts,
		ExitCodes:         exitSvc,
		Outbox:            events,
		Tx:                tx,
		Locks:             keyed,
		LowStockThreshold: lowStockThreshold,
		Now:               clock.Now,
	})
	require.NoError(t, err)

	return &fixture{conn: conn, clock: clock, orders: orderSvc, payments: paySvc, locks: keyed}
}

func (f *fixture) product(t *testing.T, mallID uuid.UUID, price string, gst int64, stock int) models.Product {
	t.Helper()
	p := models.Product{
		MallID:        mallID,
		Name:          "item-" + uuid.NewString()[:8],
		Barcode:       uuid.NewString(),
		Price:         decimal.RequireFromString(price),
		GSTRate:       decimal.NewFromInt(gst),
		StockQuantity: stock,
		IsAvailable:   true,
	}
	require.NoError(t, f.conn.Create(&p).Error)
	return p
}

// pendingOrder fills a fresh cart for userID and checks it out.
func (f *fixture) pendingOrder(t *testing.T, userID, mallID uuid.UUID, lines map[uuid.UUID]int) *models.Order {
	t.Helper()
	c := models.Cart{UserID: userID, Status: enums.CartStatusActive, MallID: &mallID}
	require.NoError(t, f.conn.Create(&c).Error)
	for productID, qty := range lines {
		require.NoError(t, f.conn.Create(&models.CartItem{CartID: c.ID, ProductID: productID, Quantity: qty}).Error)
	}
	res, err := f.orders.Checkout(context.Background(), userID)
	require.NoError(t, err)
	return res.Order
}

func (f *fixture) stock(t *testing.T, id uuid.UUID) int {
	t.Helper()
	var p models.Product
	require.NoError(t, f.conn.Where("id = ?", id).First(&p).Error)
	return p.StockQuantity
}

func (f *fixture) order(t *testing.T, id uuid.UUID) models.Order {
	t.Helper()
	var o models.Order
	require.NoError(t, f.conn.Where("id = ?", id).First(&o).Error)
	return o
}

func (f *fixture) attempt(t *testing.T, id uuid.UUID) models.PaymentAttempt {
	t.Helper()
	var a models.PaymentAttempt
	require.NoError(t, f.conn.Where("id = ?", id).First(&a).Error)
	return a
}

func (f *fixture) count(t *testing.T, model any, query string, args ...any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.conn.Model(model).Where(query, args...).Count(&n).Error)
	return n
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) *pkgerrors.Error {
	t.Helper()
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected typed error, got %v", err)
	require.Equal(t, code, typed.Code(), typed.Message())
	return typed
}
