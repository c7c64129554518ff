package cart

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/paymall/paymall-backend/pkg/db/models"
	"github.com/paymall/paymall-backend/pkg/money"
)

// AddInput is a request to add qty of a product to the active cart.
type AddInput struct {
	ProductID uuid.UUID
	Quantity  int
	// Force discards items from another mall instead of reporting a conflict.
	Force bool
}

// MallConflict is returned, not raised, when an add would mix malls.
type MallConflict struct {
	CurrentMallID   uuid.UUID `json:"current_mall_id"`
	RequestedMallID uuid.UUID `json:"requested_mall_id"`
}

// AddResult carries either the updated cart or a mall conflict.
type AddResult struct {
	Cart     *View         `json:"cart,omitempty"`
	Conflict *MallConflict `json:"conflict,omitempty"`
}

// GuestItem is one line of a device-side cart built before login.
type GuestItem struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

type MergeInput struct {
	MallID uuid.UUID
	Items  []GuestItem
	Force  bool
}

type MergeResult struct {
	Cart             *View         `json:"cart,omitempty"`
	Conflict         *MallConflict `json:"conflict,omitempty"`
	HadExistingItems bool          `json:"had_existing_items"`
	MergedCount      int           `json:"merged_count"`
}

// LineView prices a cart line at the product's current price.
type LineView struct {
	ItemID        uuid.UUID       `json:"item_id"`
	ProductID     uuid.UUID       `json:"product_id"`
	Name          string          `json:"name"`
	Barcode       string          `json:"barcode"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	GSTRate       decimal.Decimal `json:"gst_rate"`
	Quantity      int             `json:"quantity"`
	StockQuantity int             `json:"stock_quantity"`
	Taxable       decimal.Decimal `json:"taxable_value"`
	Tax           decimal.Decimal `json:"tax_amount"`
	CGST          decimal.Decimal `json:"cgst_amount"`
	SGST          decimal.Decimal `json:"sgst_amount"`
	LineTotal     decimal.Decimal `json:"line_total"`
}

type TotalsView struct {
	Subtotal  decimal.Decimal `json:"subtotal"`
	Tax       decimal.Decimal `json:"tax_total"`
	CGST      decimal.Decimal `json:"cgst_total"`
	SGST      decimal.Decimal `json:"sgst_total"`
	IGST      decimal.Decimal `json:"igst_total"`
	Total     decimal.Decimal `json:"total"`
	ItemCount int             `json:"item_count"`
}

// View is the display form of the active cart.
type View struct {
	CartID      uuid.UUID  `json:"cart_id"`
	UserID      uuid.UUID  `json:"user_id"`
	MallID      *uuid.UUID `json:"mall_id,omitempty"`
	Items       []LineView `json:"items"`
	Totals      TotalsView `json:"totals"`
	Fingerprint string     `json:"fingerprint"`
}

func emptyView(userID uuid.UUID) *View {
	return &View{UserID: userID, Items: []LineView{}, Totals: totalsView(money.Sum(nil))}
}

func buildView(cart *models.Cart) *View {
	view := &View{
		CartID: cart.ID,
		UserID: cart.UserID,
		MallID: cart.MallID,
		Items:  make([]LineView, 0, len(cart.Items)),
	}

	lines := make([]money.Line, 0, len(cart.Items))
	entries := make([]money.FingerprintEntry, 0, len(cart.Items))
	for _, item := range cart.Items {
		if item.Product == nil {
			continue
		}
		line := money.NewLine(item.Product.Price, item.Product.GSTRate, item.Quantity)
		lines = append(lines, line)
		entries = append(entries, money.FingerprintEntry{ProductID: item.ProductID.String(), Quantity: item.Quantity})
		view.Items = append(view.Items, LineView{
			ItemID:        item.ID,
			ProductID:     item.ProductID,
			Name:          item.Product.Name,
			Barcode:       item.Product.Barcode,
			UnitPrice:     line.UnitPrice,
			GSTRate:       item.Product.GSTRate,
			Quantity:      item.Quantity,
			StockQuantity: item.Product.StockQuantity,
			Taxable:       line.Taxable,
			Tax:           line.Tax,
			CGST:          line.CGST,
			SGST:          line.SGST,
			LineTotal:     line.Total,
		})
	}
	view.Totals = totalsView(money.Sum(lines))
	if len(entries) > 0 {
		view.Fingerprint = money.Fingerprint(entries)
	}
	return view
}

func totalsView(t money.Totals) TotalsView {
	return TotalsView{
		Subtotal:  t.Subtotal,
		Tax:       t.Tax,
		CGST:      t.CGST,
		SGST:      t.SGST,
		IGST:      t.IGST,
		Total:     t.Total,
		ItemCount: t.Items,
	}
}
