package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/paymall/paymall-backend/internal/cart"
	"github.com/paymall/paymall-backend/pkg/db/models"
	"github.com/paymall/paymall-backend/pkg/enums"
	pkgerrors "github.com/paymall/paymall-backend/pkg/errors"
	"github.com/paymall/paymall-backend/pkg/logger"
	"github.com/paymall/paymall-backend/pkg/metrics"
	"github.com/paymall/paymall-backend/pkg/money"
	"github.com/paymall/paymall-backend/pkg/outbox"
	"github.com/paymall/paymall-backend/pkg/outbox/payloads"
	"github.com/paymall/paymall-backend/pkg/pagination"
)

const defaultOrderTTL = 15 * time.Minute

// Service freezes carts into orders and exposes the buyer's order reads.
type Service interface {
	Checkout(ctx context.Context, userID uuid.UUID) (*CheckoutResult, error)
	Cancel(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error)
	Get(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error)
	List(ctx context.Context, userID uuid.UUID, params ListParams) (*OrderList, error)
}

type ServiceParams struct {
	Repository Repository
	Carts      *cart.Repository
	Lifecycle  *Lifecycle
	Tx         txRunner
	Outbox     outboxPublisher
	Metrics    *metrics.CheckoutMetrics
	Logger     *logger.Logger
	OrderTTL   time.Duration
	Now        func() time.Time
}

type service struct {
	repo      Repository
	carts     *cart.Repository
	lifecycle *Lifecycle
	tx        txRunner
	outbox    outboxPublisher
	metrics   *metrics.CheckoutMetrics
	logg      *logger.Logger
	ttl       time.Duration
	now       func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if params.Lifecycle == nil {
		return nil, fmt.Errorf("order lifecycle required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	ttl := params.OrderTTL
	if ttl <= 0 {
		ttl = defaultOrderTTL
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:      params.Repository,
		carts:     params.Carts,
		lifecycle: params.Lifecycle,
		tx:        params.Tx,
		outbox:    params.Outbox,
		metrics:   params.Metrics,
		logg:      logg,
		ttl:       ttl,
		now:       now,
	}, nil
}

// Checkout converts the active cart into a PAYMENT_PENDING order. Calling it
// again with an unchanged cart returns the same order while it is payable.
// The cart itself is left untouched.
func (s *service) Checkout(ctx context.Context, userID uuid.UUID) (*CheckoutResult, error) {
	now := s.now()
	var result CheckoutResult

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		active, err := s.carts.WithTx(tx).LockActive(ctx, userID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeValidation, "cart empty")
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}

		items := sellableItems(active)
		if len(items) == 0 || active.MallID == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "cart empty")
		}
		mallID := *active.MallID

		entries := make([]money.FingerprintEntry, 0, len(items))
		for _, item := range items {
			entries = append(entries, money.FingerprintEntry{ProductID: item.ProductID.String(), Quantity: item.Quantity})
		}
		hash := money.Fingerprint(entries)

		repo := s.repo.WithTx(tx)
		overdue, err := repo.FindOverdue(ctx, userID, mallID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load overdue orders")
		}
		for i := range overdue {
			if _, err := s.lifecycle.ExpireIfOverdue(ctx, tx, &overdue[i], now); err != nil {
				return err
			}
		}

		existing, err := repo.FindReusable(ctx, userID, mallID, hash, now)
		switch {
		case err == nil:
			result = CheckoutResult{Order: existing, Reused: true}
			return nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load pending order")
		}

		order := freeze(userID, mallID, hash, items, now.Add(s.ttl))
		if err := repo.Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}

		actor := &outbox.ActorRef{UserID: userID, MallID: &mallID}
		err = s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actor,
			OccurredAt:    now,
			Data: payloads.OrderCreatedEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				MallID:      mallID,
				Total:       order.Total,
				ItemCount:   len(order.Items),
				ExpiresAt:   order.ExpiresAt,
			},
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order_created")
		}
		result = CheckoutResult{Order: order}
		return nil
	})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			s.metrics.IncCheckout(metrics.CheckoutEmpty)
		}
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":     result.Order.ID.String(),
		"order_number": result.Order.OrderNumber,
		"cart_hash":    result.Order.CartHash,
	})
	if result.Reused {
		s.metrics.IncCheckout(metrics.CheckoutReused)
		s.logg.Info(logCtx, "order.reused")
	} else {
		s.metrics.IncCheckout(metrics.CheckoutCreated)
		s.logg.Info(logCtx, "order.created")
	}
	return &result, nil
}

// Cancel ends a payment-pending order on the buyer's request.
func (s *service) Cancel(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	now := s.now()
	var (
		order   *models.Order
		expired bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		order, err = s.lockOwned(ctx, tx, userID, orderID)
		if err != nil {
			return err
		}
		expired, err = s.lifecycle.ExpireIfOverdue(ctx, tx, order, now)
		if err != nil || expired {
			return err
		}
		if order.Status != enums.OrderStatusPaymentPending {
			return StateError("order cannot be cancelled", order.Status)
		}
		mallID := order.MallID
		return s.lifecycle.Cancel(ctx, tx, order, &outbox.ActorRef{UserID: userID, MallID: &mallID}, now)
	})
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, ExpiredError()
	}
	return order, nil
}

// Get returns one of the buyer's orders. An overdue pending order is expired
// first, so callers never observe a stale PAYMENT_PENDING.
func (s *service) Get(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound()
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.UserID != userID {
		return nil, forbidden()
	}
	if !order.IsOverdue(s.now()) {
		return order, nil
	}
	return s.expire(ctx, userID, orderID)
}

func (s *service) List(ctx context.Context, userID uuid.UUID, params ListParams) (*OrderList, error) {
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListByUser(ctx, userID, params.Params, params.Status)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	rows, more := pagination.Trim(rows, params.Limit)

	now := s.now()
	for i := range rows {
		if !rows[i].IsOverdue(now) {
			continue
		}
		fresh, err := s.expire(ctx, userID, rows[i].ID)
		if err != nil {
			return nil, err
		}
		rows[i] = *fresh
	}

	list := &OrderList{Orders: rows}
	if more && len(rows) > 0 {
		last := rows[len(rows)-1]
		list.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return list, nil
}

func (s *service) expire(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		order, err = s.lockOwned(ctx, tx, userID, orderID)
		if err != nil {
			return err
		}
		_, err = s.lifecycle.ExpireIfOverdue(ctx, tx, order, s.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) lockOwned(ctx context.Context, tx *gorm.DB, userID, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.WithTx(tx).LockByID(ctx, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound()
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order")
	}
	if order.UserID != userID {
		return nil, forbidden()
	}
	return order, nil
}

func sellableItems(c *models.Cart) []models.CartItem {
	out := make([]models.CartItem, 0, len(c.Items))
	for _, item := range c.Items {
		if item.Product != nil && item.Quantity > 0 {
			out = append(out, item)
		}
	}
	return out
}

// freeze prices every line at the product's current price and GST rate.
func freeze(userID, mallID uuid.UUID, hash string, items []models.CartItem, expiresAt time.Time) *models.Order {
	lines := make([]money.Line, 0, len(items))
	orderItems := make([]models.OrderItem, 0, len(items))
	for _, item := range items {
		p := item.Product
		line := money.NewLine(p.Price, p.GSTRate, item.Quantity)
		lines = append(lines, line)
		orderItems = append(orderItems, models.OrderItem{
			ProductID:    p.ID,
			ProductName:  p.Name,
			ProductPrice: line.UnitPrice,
			Barcode:      p.Barcode,
			GSTRate:      p.GSTRate,
			Quantity:     item.Quantity,
			TaxableValue: line.Taxable,
			TaxAmount:    line.Tax,
			CGSTAmount:   line.CGST,
			SGSTAmount:   line.SGST,
			TotalPrice:   line.Total,
		})
	}
	totals := money.Sum(lines)

	return &models.Order{
		OrderNumber: newOrderNumber(),
		UserID:      userID,
		MallID:      mallID,
		Status:      enums.OrderStatusPaymentPending,
		CartHash:    hash,
		Subtotal:    totals.Subtotal,
		TaxTotal:    totals.Tax,
		CGSTTotal:   totals.CGST,
		SGSTTotal:   totals.SGST,
		IGSTTotal:   totals.IGST,
		Total:       totals.Total,
		ExpiresAt:   expiresAt,
		Items:       orderItems,
	}
}

// newOrderNumber returns "ORD-" followed by 12 upper-case hex characters.
func newOrderNumber() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "ORD-" + strings.ToUpper(raw[:12])
}
