package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product is the catalog row. Price is GST inclusive.
type Product struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	MallID        uuid.UUID       `gorm:"column:mall_id;type:uuid;not null;index"`
	Name          string          `gorm:"column:name;not null"`
	Barcode       string          `gorm:"column:barcode;not null;uniqueIndex"`
	Price         decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	GSTRate       decimal.Decimal `gorm:"column:gst_rate;type:numeric(5,2);not null;default:0"`
	StockQuantity int             `gorm:"column:stock_quantity;not null;default:0;check:stock_quantity >= 0"`
	IsAvailable   bool            `gorm:"column:is_available;not null"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// InventoryAlert fires once when a product's stock falls to its threshold.
type InventoryAlert struct {
	ID          uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	ProductID   uuid.UUID  `gorm:"column:product_id;type:uuid;not null;uniqueIndex"`
	Threshold   int        `gorm:"column:threshold;not null;default:10"`
	IsTriggered bool       `gorm:"column:is_triggered;not null;default:false"`
	TriggeredAt *time.Time `gorm:"column:triggered_at"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (a *InventoryAlert) BeforeCreate(*gorm.DB) error {
	ensureID(&a.ID)
	return nil
}
