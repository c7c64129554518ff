package payments

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/paymall/paymall-backend/pkg/db/models"
	"github.com/paymall/paymall-backend/pkg/enums"
)

// Repository persists the attempt log and the settled payment receipts.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) FindAttempt(ctx context.Context, id uuid.UUID) (*models.PaymentAttempt, error) {
	var attempt models.PaymentAttempt
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&attempt).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

// FindOpenAttempt returns the newest CREATED or PENDING attempt of the order.
func (r *Repository) FindOpenAttempt(ctx context.Context, orderID uuid.UUID) (*models.PaymentAttempt, error) {
	var attempt models.PaymentAttempt
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status IN ?", orderID, []enums.PaymentAttemptStatus{enums.PaymentAttemptCreated, enums.PaymentAttemptPending}).
		Order("attempt_no DESC").
		First(&attempt).Error
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *Repository) ListAttempts(ctx context.Context, orderID uuid.UUID) ([]models.PaymentAttempt, error) {
	var rows []models.PaymentAttempt
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("attempt_no ASC").
		Find(&rows).Error
	return rows, err
}

// MaxAttemptNo returns the highest attempt number for the order, 0 if none.
func (r *Repository) MaxAttemptNo(ctx context.Context, orderID uuid.UUID) (int, error) {
	var max int64
	err := r.db.WithContext(ctx).
		Model(&models.PaymentAttempt{}).
		Select("COALESCE(MAX(attempt_no), 0)").
		Where("order_id = ?", orderID).
		Row().
		Scan(&max)
	return int(max), err
}

func (r *Repository) CreateAttempt(ctx context.Context, attempt *models.PaymentAttempt) error {
	return r.db.WithContext(ctx).Create(attempt).Error
}

func (r *Repository) UpdateAttempt(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentAttempt{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *Repository) FindPaymentByOrder(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *Repository) CreatePayment(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}
