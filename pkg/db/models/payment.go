package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/paymall/paymall-backend/pkg/enums"
)

// PaymentAttempt is an append-only entry in an order's payment log.
type PaymentAttempt struct {
	ID                uuid.UUID                  `gorm:"column:id;type:uuid;primaryKey"`
	OrderID           uuid.UUID                  `gorm:"column:order_id;type:uuid;not null;uniqueIndex:idx_payment_attempts_order_no"`
	AttemptNo         int                        `gorm:"column:attempt_no;not null;uniqueIndex:idx_payment_attempts_order_no"`
	Provider          enums.PaymentProvider      `gorm:"column:provider;type:varchar(16);not null"`
	Status            enums.PaymentAttemptStatus `gorm:"column:status;type:varchar(16);not null"`
	Amount            decimal.Decimal            `gorm:"column:amount;type:numeric(12,2);not null"`
	ProviderOrderID   string                     `gorm:"column:provider_order_id;not null"`
	ProviderPaymentID *string                    `gorm:"column:provider_payment_id"`
	ErrorMessage      *string                    `gorm:"column:error_message"`
	CreatedAt         time.Time                  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time                  `gorm:"column:updated_at;autoUpdateTime"`
}

func (a *PaymentAttempt) BeforeCreate(*gorm.DB) error {
	ensureID(&a.ID)
	return nil
}

// Payment is the receipt of the one attempt that settled an order. The unique
// order_id index backs the single-settlement rule at the storage layer.
type Payment struct {
	ID                uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	AttemptID         uuid.UUID             `gorm:"column:attempt_id;type:uuid;not null;uniqueIndex"`
	OrderID           uuid.UUID             `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	Provider          enums.PaymentProvider `gorm:"column:provider;type:varchar(16);not null"`
	ProviderPaymentID string                `gorm:"column:provider_payment_id;not null"`
	Amount            decimal.Decimal       `gorm:"column:amount;type:numeric(12,2);not null"`
	PaidAt            time.Time             `gorm:"column:paid_at;not null"`
	CreatedAt         time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (p *Payment) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// ExitOTP is the one-shot gate code issued for a paid order.
type ExitOTP struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	OrderID   uuid.UUID  `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	Code      string     `gorm:"column:code;type:varchar(6);not null"`
	ExpiresAt time.Time  `gorm:"column:expires_at;not null"`
	IsUsed    bool       `gorm:"column:is_used;not null;default:false"`
	UsedAt    *time.Time `gorm:"column:used_at"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (o *ExitOTP) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

func (ExitOTP) TableName() string {
	return "exit_otps"
}
