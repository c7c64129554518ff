package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/paymall/paymall-backend/pkg/enums"
)

// Order is the frozen financial snapshot of a cart. Totals and items never
// change after creation; only the status columns move.
type Order struct {
	ID               uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber      string            `gorm:"column:order_number;not null;uniqueIndex"`
	UserID           uuid.UUID         `gorm:"column:user_id;type:uuid;not null;index:idx_orders_user_mall_status"`
	MallID           uuid.UUID         `gorm:"column:mall_id;type:uuid;not null;index:idx_orders_user_mall_status"`
	Status           enums.OrderStatus `gorm:"column:status;type:varchar(24);not null;index:idx_orders_user_mall_status"`
	CartHash         string            `gorm:"column:cart_hash;type:varchar(64);not null;index"`
	Subtotal         decimal.Decimal   `gorm:"column:subtotal;type:numeric(12,2);not null"`
	TaxTotal         decimal.Decimal   `gorm:"column:tax_total;type:numeric(12,2);not null"`
	CGSTTotal        decimal.Decimal   `gorm:"column:cgst_total;type:numeric(12,2);not null"`
	SGSTTotal        decimal.Decimal   `gorm:"column:sgst_total;type:numeric(12,2);not null"`
	IGSTTotal        decimal.Decimal   `gorm:"column:igst_total;type:numeric(12,2);not null"`
	Total            decimal.Decimal   `gorm:"column:total;type:numeric(12,2);not null"`
	ExpiresAt        time.Time         `gorm:"column:expires_at;not null"`
	IsPaid           bool              `gorm:"column:is_paid;not null;default:false"`
	PaymentReference *string           `gorm:"column:payment_reference"`
	PaidAt           *time.Time        `gorm:"column:paid_at"`
	CancelledAt      *time.Time        `gorm:"column:cancelled_at"`
	ExpiredAt        *time.Time        `gorm:"column:expired_at"`
	FulfilledAt      *time.Time        `gorm:"column:fulfilled_at"`
	IsExited         bool              `gorm:"column:is_exited;not null;default:false"`
	Items            []OrderItem       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt        time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

// IsOverdue reports whether a pending order is past its payment window.
func (o *Order) IsOverdue(now time.Time) bool {
	return o.Status == enums.OrderStatusPaymentPending && !o.ExpiresAt.After(now)
}

// OrderItem copies the product fields at checkout time.
type OrderItem struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID      uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID    uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	ProductName  string          `gorm:"column:product_name;not null"`
	ProductPrice decimal.Decimal `gorm:"column:product_price;type:numeric(12,2);not null"`
	Barcode      string          `gorm:"column:barcode;not null"`
	GSTRate      decimal.Decimal `gorm:"column:gst_rate;type:numeric(5,2);not null"`
	Quantity     int             `gorm:"column:quantity;not null"`
	TaxableValue decimal.Decimal `gorm:"column:taxable_value;type:numeric(12,2);not null"`
	TaxAmount    decimal.Decimal `gorm:"column:tax_amount;type:numeric(12,2);not null"`
	CGSTAmount   decimal.Decimal `gorm:"column:cgst_amount;type:numeric(12,2);not null"`
	SGSTAmount   decimal.Decimal `gorm:"column:sgst_amount;type:numeric(12,2);not null"`
	TotalPrice   decimal.Decimal `gorm:"column:total_price;type:numeric(12,2);not null"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}
