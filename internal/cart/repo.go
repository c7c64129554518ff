package cart

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/paymall/paymall-backend/pkg/db/models"
	"github.com/paymall/paymall-backend/pkg/enums"
)

// Repository exposes persistence operations for the active cart.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a cart repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindActive loads the user's active cart with items and their products.
func (r *Repository) FindActive(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	return r.findActive(ctx, userID, false)
}

// LockActive is FindActive with a row lock on the cart, so a checkout reads a
// cart no concurrent edit is halfway through.
func (r *Repository) LockActive(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	return r.findActive(ctx, userID, true)
}

func (r *Repository) findActive(ctx context.Context, userID uuid.UUID, lock bool) (*models.Cart, error) {
	query := r.db.WithContext(ctx)
	if lock {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var cart models.Cart
	err := query.
		Preload("Items", func(q *gorm.DB) *gorm.DB { return q.Order("created_at ASC") }).
		Preload("Items.Product").
		Where("user_id = ? AND status = ?", userID, enums.CartStatusActive).
		First(&cart).Error
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// GetOrCreateActive returns the active cart, creating it on first use. A
// concurrent creator losing the unique-index race re-reads the winner's row.
func (r *Repository) GetOrCreateActive(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	cart, err := r.FindActive(ctx, userID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	created := &models.Cart{UserID: userID, Status: enums.CartStatusActive}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(created)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return r.FindActive(ctx, userID)
	}
	return created, nil
}

// FindItem returns the cart line for productID, or gorm.ErrRecordNotFound.
func (r *Repository) FindItem(ctx context.Context, cartID, productID uuid.UUID) (*models.CartItem, error) {
	var item models.CartItem
	err := r.db.WithContext(ctx).
		Where("cart_id = ? AND product_id = ?", cartID, productID).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// FindItemByID returns a line, with its product, restricted to the provided cart.
func (r *Repository) FindItemByID(ctx context.Context, cartID, itemID uuid.UUID) (*models.CartItem, error) {
	var item models.CartItem
	err := r.db.WithContext(ctx).
		Preload("Product").
		Where("id = ? AND cart_id = ?", itemID, cartID).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *Repository) SaveItem(ctx context.Context, item *models.CartItem) error {
	return r.db.WithContext(ctx).Omit("Product").Save(item).Error
}

func (r *Repository) DeleteItem(ctx context.Context, cartID, itemID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("id = ? AND cart_id = ?", itemID, cartID).
		Delete(&models.CartItem{}).Error
}

// CountItems returns the number of lines in the cart.
func (r *Repository) CountItems(ctx context.Context, cartID uuid.UUID) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.CartItem{}).Where("cart_id = ?", cartID).Count(&n).Error
	return n, err
}

// Empty removes every line and detaches the cart from its mall.
func (r *Repository) Empty(ctx context.Context, cartID uuid.UUID) error {
	if err := r.db.WithContext(ctx).Where("cart_id = ?", cartID).Delete(&models.CartItem{}).Error; err != nil {
		return err
	}
	return r.SetMall(ctx, cartID, nil)
}

func (r *Repository) SetMall(ctx context.Context, cartID uuid.UUID, mallID *uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("id = ?", cartID).
		Update("mall_id", mallID).Error
}

// ClearForMall empties the user's active cart when it belongs to mallID.
// Settlement calls it inside the payment transaction.
func (r *Repository) ClearForMall(ctx context.Context, userID, mallID uuid.UUID) error {
	var cart models.Cart
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ? AND mall_id = ?", userID, enums.CartStatusActive, mallID).
		First(&cart).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return r.Empty(ctx, cart.ID)
}
