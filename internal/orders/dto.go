package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/paymall/paymall-backend/pkg/db/models"
	"github.com/paymall/paymall-backend/pkg/enums"
	"github.com/paymall/paymall-backend/pkg/pagination"
)

// CheckoutResult is the order a checkout produced. Reused is true when an
// identical pending order was returned instead of a new one.
type CheckoutResult struct {
	Order  *models.Order
	Reused bool
}

type ListParams struct {
	pagination.Params
	Status *enums.OrderStatus
}

type OrderList struct {
	Orders     []models.Order
	NextCursor string
}

// ItemView is the frozen line as shown to the buyer.
type ItemView struct {
	ProductID    uuid.UUID       `json:"product_id"`
	ProductName  string          `json:"product_name"`
	Barcode      string          `json:"barcode"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	GSTRate      decimal.Decimal `json:"gst_rate"`
	Quantity     int             `json:"quantity"`
	TaxableValue decimal.Decimal `json:"taxable_value"`
	TaxAmount    decimal.Decimal `json:"tax_amount"`
	CGSTAmount   decimal.Decimal `json:"cgst_amount"`
	SGSTAmount   decimal.Decimal `json:"sgst_amount"`
	TotalPrice   decimal.Decimal `json:"total_price"`
}

type View struct {
	ID               uuid.UUID         `json:"id"`
	OrderNumber      string            `json:"order_number"`
	Status           enums.OrderStatus `json:"status"`
	MallID           uuid.UUID         `json:"mall_id"`
	CartHash         string            `json:"cart_hash"`
	Subtotal         decimal.Decimal   `json:"subtotal"`
	TaxTotal         decimal.Decimal   `json:"tax_total"`
	CGSTTotal        decimal.Decimal   `json:"cgst_total"`
	SGSTTotal        decimal.Decimal   `json:"sgst_total"`
	IGSTTotal        decimal.Decimal   `json:"igst_total"`
	Total            decimal.Decimal   `json:"total"`
	ExpiresAt        time.Time         `json:"expires_at"`
	IsPaid           bool              `json:"is_paid"`
	PaymentReference *string           `json:"payment_reference,omitempty"`
	PaidAt           *time.Time        `json:"paid_at,omitempty"`
	CancelledAt      *time.Time        `json:"cancelled_at,omitempty"`
	ExpiredAt        *time.Time        `json:"expired_at,omitempty"`
	FulfilledAt      *time.Time        `json:"fulfilled_at,omitempty"`
	IsExited         bool              `json:"is_exited"`
	CreatedAt        time.Time         `json:"created_at"`
	Items            []ItemView        `json:"items"`
}

// NewView renders an order for API responses.
func NewView(order *models.Order) View {
	view := View{
		ID:               order.ID,
		OrderNumber:      order.OrderNumber,
		Status:           order.Status,
		MallID:           order.MallID,
		CartHash:         order.CartHash,
		Subtotal:         fixed(order.Subtotal),
		TaxTotal:         fixed(order.TaxTotal),
		CGSTTotal:        fixed(order.CGSTTotal),
		SGSTTotal:        fixed(order.SGSTTotal),
		IGSTTotal:        fixed(order.IGSTTotal),
		Total:            fixed(order.Total),
		ExpiresAt:        order.ExpiresAt,
		IsPaid:           order.IsPaid,
		PaymentReference: order.PaymentReference,
		PaidAt:           order.PaidAt,
		CancelledAt:      order.CancelledAt,
		ExpiredAt:        order.ExpiredAt,
		FulfilledAt:      order.FulfilledAt,
		IsExited:         order.IsExited,
		CreatedAt:        order.CreatedAt,
		Items:            make([]ItemView, 0, len(order.Items)),
	}
	for _, item := range order.Items {
		view.Items = append(view.Items, ItemView{
			ProductID:    item.ProductID,
			ProductName:  item.ProductName,
			Barcode:      item.Barcode,
			UnitPrice:    fixed(item.ProductPrice),
			GSTRate:      item.GSTRate,
			Quantity:     item.Quantity,
			TaxableValue: fixed(item.TaxableValue),
			TaxAmount:    fixed(item.TaxAmount),
			CGSTAmount:   fixed(item.CGSTAmount),
			SGSTAmount:   fixed(item.SGSTAmount),
			TotalPrice:   fixed(item.TotalPrice),
		})
	}
	return view
}

func fixed(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
