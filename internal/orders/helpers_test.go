package orders

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/paymall/paymall-backend/internal/cart"
	"github.com/paymall/paymall-backend/pkg/db"
	"github.com/paymall/paymall-backend/pkg/db/models"
	"github.com/paymall/paymall-backend/pkg/enums"
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
	conn  *gorm.DB
	clock *testClock
	svc   Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn, err := db.OpenSQLite("file:orders_" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.AutoMigrate(models.All()...))

	clock := &testClock{t: time.Now().UTC()}
	repo := NewRepository(conn)
	events := outbox.NewService(outbox.NewRepository(conn), nil)
	lifecycle, err := NewLifecycle(repo, events, nil, nil)
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Repository: repo,
		Carts:      cart.NewRepository(conn),
		Lifecycle:  lifecycle,
		Tx:         db.FromConn(conn),
		Outbox:     events,
		Now:        clock.Now,
	})
	require.NoError(t, err)
	return &fixture{conn: conn, clock: clock, svc: svc}
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

// fillCart replaces the user's active cart contents with the given lines.
func (f *fixture) fillCart(t *testing.T, userID, mallID uuid.UUID, lines map[uuid.UUID]int) models.Cart {
	t.Helper()
	var c models.Cart
	err := f.conn.Where("user_id = ? AND status = ?", userID, enums.CartStatusActive).First(&c).Error
	if err != nil {
		c = models.Cart{UserID: userID, Status: enums.CartStatusActive, MallID: &mallID}
		require.NoError(t, f.conn.Create(&c).Error)
	} else {
		require.NoError(t, f.conn.Where("cart_id = ?", c.ID).Delete(&models.CartItem{}).Error)
		require.NoError(t, f.conn.Model(&c).Update("mall_id", mallID).Error)
	}
	for productID, qty := range lines {
		require.NoError(t, f.conn.Create(&models.CartItem{CartID: c.ID, ProductID: productID, Quantity: qty}).Error)
	}
	return c
}

func (f *fixture) reload(t *testing.T, id uuid.UUID) models.Order {
	t.Helper()
	var o models.Order
	require.NoError(t, f.conn.Preload("Items").Where("id = ?", id).First(&o).Error)
	return o
}

func (f *fixture) events(t *testing.T, aggregateID uuid.UUID, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).
		Where("aggregate_id = ? AND event_type = ?", aggregateID, eventType).
		Count(&n).Error)
	return n
}
