package product

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/paymall/paymall-backend/pkg/db"
	"github.com/paymall/paymall-backend/pkg/db/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := db.OpenSQLite("file:products_" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.Product{}, &models.InventoryAlert{}))
	return conn
}

func seedProduct(t *testing.T, conn *gorm.DB, stock int) models.Product {
	t.Helper()
	p := models.Product{
		MallID:        uuid.New(),
		Name:          "Basmati Rice 1kg",
		Barcode:       uuid.NewString(),
		Price:         decimal.RequireFromString("118.00"),
		GSTRate:       decimal.NewFromInt(18),
		StockQuantity: stock,
		IsAvailable:   true,
	}
	require.NoError(t, conn.Create(&p).Error)
	return p
}

func TestDecrementStockGuardsNegative(t *testing.T) {
	conn := newTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	p := seedProduct(t, conn, 2)

	require.NoError(t, repo.DecrementStock(ctx, p.ID, 2))
	err := repo.DecrementStock(ctx, p.ID, 1)
	assert.True(t, errors.Is(err, ErrInsufficientStock))

	got, err := repo.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.StockQuantity)
}

func TestLockForUpdateReturnsSortedRows(t *testing.T) {
	conn := newTestDB(t)
	repo := NewRepository(conn)
	a := seedProduct(t, conn, 1)
	b := seedProduct(t, conn, 1)
	c := seedProduct(t, conn, 1)

	var rows []models.Product
	err := conn.Transaction(func(tx *gorm.DB) error {
		var err error
		rows, err = repo.WithTx(tx).LockForUpdate(context.Background(), []uuid.UUID{c.ID, a.ID, b.ID, a.ID})
		return err
	})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for i := 1; i < len(rows); i++ {
		assert.Less(t, rows[i-1].ID.String(), rows[i].ID.String())
	}
}

func TestFindByIDs(t *testing.T) {
	conn := newTestDB(t)
	repo := NewRepository(conn)
	a := seedProduct(t, conn, 4)

	found, err := repo.FindByIDs(context.Background(), []uuid.UUID{a.ID, uuid.New()})
	require.NoError(t, err)
	assert.Len(t, found, 1)
	assert.Equal(t, 4, found[a.ID].StockQuantity)
	assert.True(t, found[a.ID].Price.Equal(decimal.RequireFromString("118")))
}

func TestEvaluateLowStockFiresOnce(t *testing.T) {
	conn := newTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	low := seedProduct(t, conn, 3)
	high := seedProduct(t, conn, 50)

	fired, err := repo.EvaluateLowStock(ctx, []models.Product{low, high}, 5, now)
	require.NoError(t, err)
	require.Len(t, fired, 1)
	assert.Equal(t, low.ID, fired[0].ProductID)
	assert.Equal(t, 5, fired[0].Threshold)

	fired, err = repo.EvaluateLowStock(ctx, []models.Product{low, high}, 5, now)
	require.NoError(t, err)
	assert.Empty(t, fired, "a triggered alert must not fire twice")

	alerts, err := repo.FindAlerts(ctx, []uuid.UUID{low.ID, high.ID})
	require.NoError(t, err)
	assert.True(t, alerts[low.ID].IsTriggered)
	assert.False(t, alerts[high.ID].IsTriggered)
}

func TestEvaluateLowStockWithoutDefault(t *testing.T) {
	conn := newTestDB(t)
	repo := NewRepository(conn)
	p := seedProduct(t, conn, 0)

	fired, err := repo.EvaluateLowStock(context.Background(), []models.Product{p}, 0, time.Now().UTC())
	require.NoError(t, err)
	assert.Empty(t, fired)
}

func TestSortedIDs(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	out := SortedIDs([]uuid.UUID{b, a, b})
	require.Len(t, out, 2)
	assert.Less(t, out[0].String(), out[1].String())
}
