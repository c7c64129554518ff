package product

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/paymall/paymall-backend/pkg/db/models"
)

// ErrInsufficientStock is returned by DecrementStock when the guarded update
// matched no row.
var ErrInsufficientStock = errors.New("insufficient stock")

// Repository is the catalog persistence surface used by cart, checkout and
// settlement. Stock is only written through DecrementStock.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindByID loads a single product.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// FindByIDs loads the requested products keyed by id. Missing ids are absent
// from the map.
func (r *Repository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	out := make(map[uuid.UUID]models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Product
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

// LockForUpdate takes row locks on the products in ascending id order and
// returns them in that order.
func (r *Repository) LockForUpdate(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	sorted := SortedIDs(ids)
	if len(sorted) == 0 {
		return nil, nil
	}
	var rows []models.Product
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", sorted).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// DecrementStock subtracts qty from the product's stock. The update is
// guarded on stock_quantity >= qty so stock never goes negative even if a
// caller skipped the locked read.
func (r *Repository) DecrementStock(ctx context.Context, id uuid.UUID, qty int) error {
	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND stock_quantity >= ?", id, qty).
		Updates(map[string]any{
			"stock_quantity": gorm.Expr("stock_quantity - ?", qty),
			"updated_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInsufficientStock
	}
	return nil
}

// FindAlerts loads the inventory alerts for the given products keyed by
// product id.
func (r *Repository) FindAlerts(ctx context.Context, productIDs []uuid.UUID) (map[uuid.UUID]models.InventoryAlert, error) {
	out := make(map[uuid.UUID]models.InventoryAlert, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}
	var rows []models.InventoryAlert
	if err := r.db.WithContext(ctx).Where("product_id IN ?", productIDs).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ProductID] = row
	}
	return out, nil
}

// SaveAlert inserts or updates an alert row.
func (r *Repository) SaveAlert(ctx context.Context, alert *models.InventoryAlert) error {
	return r.db.WithContext(ctx).Save(alert).Error
}

// SortedIDs returns a de-duplicated copy of ids in ascending string order,
// the order in which product rows are always locked.
func SortedIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].String() < out[j].String()
	})
	return out
}
