package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/paymall/paymall-backend/pkg/enums"
)

// OrderCreatedEvent is emitted when checkout freezes a new order.
type OrderCreatedEvent struct {
	OrderID     uuid.UUID       `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	MallID      uuid.UUID       `json:"mall_id"`
	Total       decimal.Decimal `json:"total"`
	ItemCount   int             `json:"item_count"`
	ExpiresAt   time.Time       `json:"expires_at"`
}

// OrderStatusEvent covers cancel, expiry and fulfilment transitions.
type OrderStatusEvent struct {
	OrderID     uuid.UUID         `json:"order_id"`
	OrderNumber string            `json:"order_number"`
	From        enums.OrderStatus `json:"from"`
	To          enums.OrderStatus `json:"to"`
	At          time.Time         `json:"at"`
}

// OrderPaidEvent is emitted once per order, in the settlement transaction.
type OrderPaidEvent struct {
	OrderID           uuid.UUID             `json:"order_id"`
	OrderNumber       string                `json:"order_number"`
	AttemptID         uuid.UUID             `json:"attempt_id"`
	Provider          enums.PaymentProvider `json:"provider"`
	ProviderPaymentID string                `json:"provider_payment_id"`
	Amount            decimal.Decimal       `json:"amount"`
	PaidAt            time.Time             `json:"paid_at"`
}

// PaymentFailedEvent records a failed attempt and why.
type PaymentFailedEvent struct {
	OrderID   uuid.UUID `json:"order_id"`
	AttemptID uuid.UUID `json:"attempt_id"`
	AttemptNo int       `json:"attempt_no"`
	Reason    string    `json:"reason"`
}

// LowStockEvent fires when settlement pushes stock to an alert threshold.
type LowStockEvent struct {
	ProductID     uuid.UUID `json:"product_id"`
	MallID        uuid.UUID `json:"mall_id"`
	StockQuantity int       `json:"stock_quantity"`
	Threshold     int       `json:"threshold"`
}
