package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/paymall/paymall-backend/pkg/db/models"
	"github.com/paymall/paymall-backend/pkg/enums"
	"github.com/paymall/paymall-backend/pkg/outbox"
	"github.com/paymall/paymall-backend/pkg/pagination"
)

// Repository defines persistence operations for orders and their items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindReusable(ctx context.Context, userID, mallID uuid.UUID, cartHash string, now time.Time) (*models.Order, error)
	FindOverdue(ctx context.Context, userID, mallID uuid.UUID, now time.Time) ([]models.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params, status *enums.OrderStatus) ([]models.Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from enums.OrderStatus, updates map[string]any) (bool, error)
	CloseOpenAttempts(ctx context.Context, orderID uuid.UUID, status enums.PaymentAttemptStatus, reason string) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}
