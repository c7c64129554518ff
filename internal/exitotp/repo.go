package exitotp

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/paymall/paymall-backend/pkg/db/models"
)

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

func (r *Repository) FindByOrder(ctx context.Context, orderID uuid.UUID) (*models.ExitOTP, error) {
	var otp models.ExitOTP
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&otp).Error; err != nil {
		return nil, err
	}
	return &otp, nil
}

// CreateIfAbsent inserts otp unless the order already has a code. It reports
// whether the row was written.
func (r *Repository) CreateIfAbsent(ctx context.Context, otp *models.ExitOTP) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "order_id"}}, DoNothing: true}).
		Create(otp)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkUsed flips is_used once. It reports false if the code was already used.
func (r *Repository) MarkUsed(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ExitOTP{}).
		Where("id = ? AND is_used = ?", id, false).
		Updates(map[string]any{"is_used": true, "used_at": at})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
