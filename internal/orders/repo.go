package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/paymall/paymall-backend/pkg/db/models"
	"github.com/paymall/paymall-backend/pkg/enums"
	"github.com/paymall/paymall-backend/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Create inserts the order together with its items.
func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return r.find(ctx, r.db.WithContext(ctx), id)
}

// LockByID reads the order under a row lock. Settlement and cancel always
// take this lock before touching any product row.
func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return r.find(ctx, r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *repository) find(ctx context.Context, q *gorm.DB, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := q.
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC").Order("id ASC") }).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// FindReusable returns the newest unexpired pending order for the same cart
// contents, or gorm.ErrRecordNotFound.
func (r *repository) FindReusable(ctx context.Context, userID, mallID uuid.UUID, cartHash string, now time.Time) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC").Order("id ASC") }).
		Where("user_id = ? AND mall_id = ? AND status = ? AND cart_hash = ? AND expires_at > ?",
			userID, mallID, enums.OrderStatusPaymentPending, cartHash, now).
		Order("created_at DESC").
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// FindOverdue returns the user's pending orders in the mall whose payment
// window has closed.
func (r *repository) FindOverdue(ctx context.Context, userID, mallID uuid.UUID, now time.Time) ([]models.Order, error) {
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND mall_id = ? AND status = ? AND expires_at <= ?",
			userID, mallID, enums.OrderStatusPaymentPending, now).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

// ListByUser returns up to limit+1 orders, newest first, so the caller can
// tell whether another page exists.
func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params, status *enums.OrderStatus) ([]models.Order, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}

	q := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC").Order("id ASC") }).
		Where("user_id = ?", userID)
	if status != nil {
		q = q.Where("status = ?", *status)
	}
	if cursor != nil {
		q = q.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []models.Order
	err = q.Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error
	return rows, err
}

// UpdateStatus applies updates only while the row is still in status from.
// It reports false when another writer moved the order first.
func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, from enums.OrderStatus, updates map[string]any) (bool, error) {
	if len(updates) == 0 {
		return false, errors.New("no updates provided")
	}
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CloseOpenAttempts ends every still-open payment attempt of the order.
func (r *repository) CloseOpenAttempts(ctx context.Context, orderID uuid.UUID, status enums.PaymentAttemptStatus, reason string) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentAttempt{}).
		Where("order_id = ? AND status IN ?", orderID, []enums.PaymentAttemptStatus{enums.PaymentAttemptCreated, enums.PaymentAttemptPending}).
		Updates(map[string]any{
			"status":        status,
			"error_message": reason,
			"updated_at":    time.Now().UTC(),
		}).Error
}
