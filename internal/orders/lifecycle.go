package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/paymall/paymall-backend/pkg/db/models"
	"github.com/paymall/paymall-backend/pkg/enums"
	pkgerrors "github.com/paymall/paymall-backend/pkg/errors"
	"github.com/paymall/paymall-backend/pkg/logger"
	"github.com/paymall/paymall-backend/pkg/metrics"
	"github.com/paymall/paymall-backend/pkg/outbox"
	"github.com/paymall/paymall-backend/pkg/outbox/payloads"
)

// Lifecycle owns every order status write. Each transition is a guarded
// update on the current status plus an outbox event, both in the caller's
// transaction.
type Lifecycle struct {
	repo    Repository
	outbox  outboxPublisher
	metrics *metrics.CheckoutMetrics
	logg    *logger.Logger
}

func NewLifecycle(repo Repository, outbox outboxPublisher, m *metrics.CheckoutMetrics, logg *logger.Logger) (*Lifecycle, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Lifecycle{repo: repo, outbox: outbox, metrics: m, logg: logg}, nil
}

// PaidInput describes the settlement that pays an order.
type PaidInput struct {
	AttemptID         uuid.UUID
	Provider          enums.PaymentProvider
	ProviderPaymentID string
	Amount            decimal.Decimal
	At                time.Time
}

// ExpireIfOverdue moves an overdue pending order to EXPIRED and closes its
// open attempts. It reports whether the order was expired.
func (l *Lifecycle) ExpireIfOverdue(ctx context.Context, tx *gorm.DB, order *models.Order, now time.Time) (bool, error) {
	if !order.IsOverdue(now) {
		return false, nil
	}
	at := now
	err := l.transition(ctx, tx, order, enums.OrderStatusExpired, at, map[string]any{"expired_at": at}, enums.EventOrderExpired, nil)
	if err != nil {
		return false, err
	}
	order.ExpiredAt = &at
	if err := l.repo.WithTx(tx).CloseOpenAttempts(ctx, order.ID, enums.PaymentAttemptExpired, "order expired"); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "close payment attempts")
	}
	l.metrics.AddExpired(1)
	l.logg.Info(l.logg.WithOrderID(ctx, order.ID.String()), "order.expired")
	return true, nil
}

func (l *Lifecycle) Cancel(ctx context.Context, tx *gorm.DB, order *models.Order, actor *outbox.ActorRef, now time.Time) error {
	at := now
	if err := l.transition(ctx, tx, order, enums.OrderStatusCancelled, at, map[string]any{"cancelled_at": at}, enums.EventOrderCancelled, actor); err != nil {
		return err
	}
	order.CancelledAt = &at
	if err := l.repo.WithTx(tx).CloseOpenAttempts(ctx, order.ID, enums.PaymentAttemptFailed, "order cancelled"); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "close payment attempts")
	}
	l.logg.Info(l.logg.WithOrderID(ctx, order.ID.String()), "order.cancelled")
	return nil
}

// MarkPaid moves a pending order to PAID and emits order_paid.
func (l *Lifecycle) MarkPaid(ctx context.Context, tx *gorm.DB, order *models.Order, input PaidInput) error {
	at := input.At
	ref := input.ProviderPaymentID
	updates := map[string]any{
		"is_paid":           true,
		"payment_reference": ref,
		"paid_at":           at,
	}
	if err := l.guardedUpdate(ctx, tx, order, enums.OrderStatusPaid, updates); err != nil {
		return err
	}
	order.IsPaid = true
	order.PaymentReference = &ref
	order.PaidAt = &at

	return l.emit(ctx, tx, order, enums.EventOrderPaid, nil, payloads.OrderPaidEvent{
		OrderID:           order.ID,
		OrderNumber:       order.OrderNumber,
		AttemptID:         input.AttemptID,
		Provider:          input.Provider,
		ProviderPaymentID: ref,
		Amount:            input.Amount,
		PaidAt:            at,
	}, at)
}

// Fulfill closes a paid order once its exit code was redeemed.
func (l *Lifecycle) Fulfill(ctx context.Context, tx *gorm.DB, order *models.Order, actor *outbox.ActorRef, now time.Time) error {
	at := now
	updates := map[string]any{"is_exited": true, "fulfilled_at": at}
	if err := l.transition(ctx, tx, order, enums.OrderStatusFulfilled, at, updates, enums.EventOrderFulfilled, actor); err != nil {
		return err
	}
	order.IsExited = true
	order.FulfilledAt = &at
	return nil
}

func (l *Lifecycle) transition(ctx context.Context, tx *gorm.DB, order *models.Order, to enums.OrderStatus, at time.Time, updates map[string]any, event enums.OutboxEventType, actor *outbox.ActorRef) error {
	from := order.Status
	if err := l.guardedUpdate(ctx, tx, order, to, updates); err != nil {
		return err
	}
	return l.emit(ctx, tx, order, event, actor, payloads.OrderStatusEvent{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		From:        from,
		To:          to,
		At:          at,
	}, at)
}

func (l *Lifecycle) guardedUpdate(ctx context.Context, tx *gorm.DB, order *models.Order, to enums.OrderStatus, updates map[string]any) error {
	from := order.Status
	if !from.CanTransitionTo(to) {
		return StateError(fmt.Sprintf("cannot move order from %s to %s", from, to), from)
	}
	updates["status"] = to
	ok, err := l.repo.WithTx(tx).UpdateStatus(ctx, order.ID, from, updates)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}
	if !ok {
		return StateError("order status changed concurrently", from)
	}
	order.Status = to
	return nil
}

func (l *Lifecycle) emit(ctx context.Context, tx *gorm.DB, order *models.Order, event enums.OutboxEventType, actor *outbox.ActorRef, data any, at time.Time) error {
	if actor == nil {
		mallID := order.MallID
		actor = &outbox.ActorRef{UserID: order.UserID, MallID: &mallID}
	}
	err := l.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     event,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actor,
		Data:          data,
		OccurredAt:    at,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit "+string(event))
	}
	return nil
}
