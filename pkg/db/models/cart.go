package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/paymall/paymall-backend/pkg/enums"
)

// Cart is the mutable per-user basket. A user has at most one ACTIVE cart,
// enforced by idx_carts_user_status.
type Cart struct {
	ID        uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	UserID    uuid.UUID        `gorm:"column:user_id;type:uuid;not null;uniqueIndex:idx_carts_user_status"`
	Status    enums.CartStatus `gorm:"column:status;type:varchar(16);not null;default:'ACTIVE';uniqueIndex:idx_carts_user_status"`
	MallID    *uuid.UUID       `gorm:"column:mall_id;type:uuid"`
	Items     []CartItem       `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *Cart) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}

type CartItem struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	CartID    uuid.UUID `gorm:"column:cart_id;type:uuid;not null;uniqueIndex:idx_cart_items_cart_product"`
	ProductID uuid.UUID `gorm:"column:product_id;type:uuid;not null;uniqueIndex:idx_cart_items_cart_product"`
	Quantity  int       `gorm:"column:quantity;not null;check:quantity >= 1"`
	Product   *Product  `gorm:"foreignKey:ProductID"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (i *CartItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}
