package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/paymall/paymall-backend/internal/cart"
	"github.com/paymall/paymall-backend/internal/exitotp"
	"github.com/paymall/paymall-backend/internal/orders"
	product "github.com/paymall/paymall-backend/internal/products"
	"github.com/paymall/paymall-backend/pkg/db/models"
	"github.com/paymall/paymall-backend/pkg/enums"
	pkgerrors "github.com/paymall/paymall-backend/pkg/errors"
	"github.com/paymall/paymall-backend/pkg/locks"
	"github.com/paymall/paymall-backend/pkg/logger"
	"github.com/paymall/paymall-backend/pkg/metrics"
	"github.com/paymall/paymall-backend/pkg/outbox"
	"github.com/paymall/paymall-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type exitIssuer interface {
	Issue(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.ExitOTP, error)
}

// Service runs the payment attempt log and settles orders.
type Service interface {
	CreateAttempt(ctx context.Context, input CreateAttemptInput) (*AttemptView, error)
	// Confirm settles an attempt. userID is nil for signed provider callbacks;
	// otherwise the order must belong to that user.
	Confirm(ctx context.Context, attemptID uuid.UUID, input ConfirmInput, userID *uuid.UUID) (*ConfirmResult, error)
	ListAttempts(ctx context.Context, userID, orderID uuid.UUID) ([]AttemptView, error)
}

type ServiceParams struct {
	Repository        *Repository
	Orders            orders.Repository
	Lifecycle         *orders.Lifecycle
	Products          *product.Repository
	Carts             *cart.Repository
	ExitCodes         exitIssuer
	Outbox            outboxPublisher
	Tx                txRunner
	Locks             *locks.Keyed
	Metrics           *metrics.CheckoutMetrics
	Logger            *logger.Logger
	DefaultProvider   enums.PaymentProvider
	LowStockThreshold int
	Now               func() time.Time
}

type service struct {
	repo              *Repository
	orders            orders.Repository
	lifecycle         *orders.Lifecycle
	products          *product.Repository
	carts             *cart.Repository
	exit              exitIssuer
	outbox            outboxPublisher
	tx                txRunner
	locks             *locks.Keyed
	metrics           *metrics.CheckoutMetrics
	logg              *logger.Logger
	defaultProvider   enums.PaymentProvider
	lowStockThreshold int
	now               func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repository == nil:
		return nil, fmt.Errorf("payments repository required")
	case params.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Lifecycle == nil:
		return nil, fmt.Errorf("order lifecycle required")
	case params.Products == nil:
		return nil, fmt.Errorf("product repository required")
	case params.Carts == nil:
		return nil, fmt.Errorf("cart repository required")
	case params.ExitCodes == nil:
		return nil, fmt.Errorf("exit code issuer required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	}

	s := &service{
		repo:              params.Repository,
		orders:            params.Orders,
		lifecycle:         params.Lifecycle,
		products:          params.Products,
		carts:             params.Carts,
		exit:              params.ExitCodes,
		outbox:            params.Outbox,
		tx:                params.Tx,
		locks:             params.Locks,
		metrics:           params.Metrics,
		logg:              params.Logger,
		defaultProvider:   params.DefaultProvider,
		lowStockThreshold: params.LowStockThreshold,
		now:               params.Now,
	}
	if s.locks == nil {
		s.locks = locks.NewKeyed()
	}
	if s.logg == nil {
		s.logg = logger.Nop()
	}
	if !s.defaultProvider.IsValid() {
		s.defaultProvider = enums.PaymentProviderMock
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s, nil
}

// ProviderOrderID is the id sent to the provider for an attempt.
func ProviderOrderID(provider enums.PaymentProvider, orderNumber string, attemptNo int) string {
	return fmt.Sprintf("%s_%s_%d", provider, orderNumber, attemptNo)
}

// CreateAttempt opens a payment attempt on a payable order. An open attempt
// is returned as is, whatever provider the caller names.
func (s *service) CreateAttempt(ctx context.Context, input CreateAttemptInput) (*AttemptView, error) {
	provider, err := enums.ParsePaymentProvider(input.Provider, s.defaultProvider)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment provider")
	}

	now := s.now()
	var (
		view    *AttemptView
		expired bool
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.lockOwnedOrder(ctx, tx, input.OrderID, &input.UserID)
		if err != nil {
			return err
		}
		expired, err = s.lifecycle.ExpireIfOverdue(ctx, tx, order, now)
		if err != nil || expired {
			return err
		}
		if order.Status != enums.OrderStatusPaymentPending {
			return orders.StateError("order not payable", order.Status)
		}

		repo := s.repo.WithTx(tx)
		open, err := repo.FindOpenAttempt(ctx, order.ID)
		switch {
		case err == nil:
			// The buyer may already be paying through this attempt, so it is
			// returned even when another provider was requested.
			view = newAttemptView(open, true)
			return nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment attempt")
		}

		last, err := repo.MaxAttemptNo(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load attempt number")
		}
		attempt := &models.PaymentAttempt{
			OrderID:         order.ID,
			AttemptNo:       last + 1,
			Provider:        provider,
			Status:          enums.PaymentAttemptPending,
			Amount:          order.Total,
			ProviderOrderID: ProviderOrderID(provider, order.OrderNumber, last+1),
		}
		if err := repo.CreateAttempt(ctx, attempt); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment attempt")
		}
		view = newAttemptView(attempt, false)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, orders.ExpiredError()
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id":   view.OrderID.String(),
		"attempt_id": view.ID.String(),
		"attempt_no": view.AttemptNo,
		"reused":     view.Reused,
	}), "payment.attempt_opened")
	return view, nil
}

func (s *service) ListAttempts(ctx context.Context, userID, orderID uuid.UUID) ([]AttemptView, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
	}
	rows, err := s.repo.ListAttempts(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payment attempts")
	}
	out := make([]AttemptView, 0, len(rows))
	for i := range rows {
		out = append(out, *newAttemptView(&rows[i], false))
	}
	return out, nil
}

// Confirm applies the provider verdict. Locks are taken in a fixed order:
// the in-process keys for the order and its products, then the order row,
// then the product rows by ascending id.
func (s *service) Confirm(ctx context.Context, attemptID uuid.UUID, input ConfirmInput, userID *uuid.UUID) (*ConfirmResult, error) {
	attempt, err := s.repo.FindAttempt(ctx, attemptID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment attempt not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment attempt")
	}
	preflight, err := s.orders.FindByID(ctx, attempt.OrderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if userID != nil && preflight.UserID != *userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
	}

	keys := make([]string, 0, len(preflight.Items))
	for _, item := range preflight.Items {
		keys = append(keys, "product:"+item.ProductID.String())
	}
	unlock := s.locks.LockOrdered("order:"+preflight.ID.String(), keys...)
	defer unlock()

	started := time.Now()
	defer func() { s.metrics.ObserveSettlement(time.Since(started)) }()

	st := &settlement{svc: s, attemptID: attemptID, input: input, now: s.now()}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return st.run(ctx, tx, attempt.OrderID)
	})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
			s.metrics.IncSettlement(metrics.SettlementStockConflict)
		}
		return nil, err
	}
	s.metrics.IncSettlement(st.outcome)
	s.metrics.AddLowStock(st.lowStock)

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":   st.result.OrderID.String(),
		"attempt_id": attemptID.String(),
		"outcome":    st.outcome,
	})
	if st.failure != nil {
		s.logg.Warn(s.logg.WithField(logCtx, "error", st.failure.Error()), "payment.not_settled")
		return nil, st.failure
	}
	s.logg.Info(logCtx, "payment.settled")
	return &st.result, nil
}

// settlement is the state of one Confirm transaction. failure holds an error
// to return after the transaction commits its side effects.
type settlement struct {
	svc       *service
	attemptID uuid.UUID
	input     ConfirmInput
	now       time.Time

	result   ConfirmResult
	outcome  string
	failure  error
	lowStock int
}

func (st *settlement) run(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	s := st.svc
	order, err := s.orders.WithTx(tx).LockByID(ctx, orderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order")
	}
	repo := s.repo.WithTx(tx)
	attempt, err := repo.FindAttempt(ctx, st.attemptID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload payment attempt")
	}
	st.result = ConfirmResult{OrderID: order.ID, OrderStatus: order.Status, AttemptID: attempt.ID, AttemptStatus: attempt.Status}

	if order.Status == enums.OrderStatusPaid || order.Status == enums.OrderStatusFulfilled {
		otp, err := s.exit.Issue(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		st.result.ExitCode = exitotp.NewCode(otp, st.now)
		st.result.Replayed = true
		st.outcome = metrics.SettlementReplayed
		return nil
	}

	if attempt.Status == enums.PaymentAttemptSuccess {
		if order.Status != enums.OrderStatusPaymentPending {
			return orders.StateError("order not payable", order.Status)
		}
		st.outcome = metrics.SettlementRefinalized
		return st.finalize(ctx, tx, order, attempt, nil)
	}

	expired, err := s.lifecycle.ExpireIfOverdue(ctx, tx, order, st.now)
	if err != nil {
		return err
	}
	if expired {
		st.result.OrderStatus = order.Status
		st.result.AttemptStatus = enums.PaymentAttemptExpired
		st.outcome = metrics.SettlementExpired
		st.failure = orders.ExpiredError()
		return nil
	}
	if order.Status != enums.OrderStatusPaymentPending {
		return orders.StateError("order not payable", order.Status)
	}
	if !attempt.Status.IsOpen() {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "payment attempt is closed").
			WithDetails(map[string]any{"status": order.Status, "attempt_status": attempt.Status})
	}

	if !st.input.Success {
		return st.fail(ctx, tx, order, attempt, failureReason(st.input.FailureReason))
	}

	locked, err := s.products.WithTx(tx).LockForUpdate(ctx, productIDs(order))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock products")
	}
	byID := make(map[uuid.UUID]models.Product, len(locked))
	for _, p := range locked {
		byID[p.ID] = p
	}
	need := requiredStock(order)
	for _, id := range product.SortedIDs(productIDs(order)) {
		p, ok := byID[id]
		if !ok || p.StockQuantity < need[id] {
			conflict := stockConflict(order, id, p, need[id])
			if err := st.fail(ctx, tx, order, attempt, conflict.Message()); err != nil {
				return err
			}
			st.outcome = metrics.SettlementStockConflict
			st.failure = conflict
			return nil
		}
	}
	return st.finalize(ctx, tx, order, attempt, byID)
}

// finalize pays the order. locked is nil when stock was already deducted by
// an earlier run of the same attempt.
func (st *settlement) finalize(ctx context.Context, tx *gorm.DB, order *models.Order, attempt *models.PaymentAttempt, locked map[uuid.UUID]models.Product) error {
	s := st.svc
	repo := s.repo.WithTx(tx)

	if locked != nil {
		need := requiredStock(order)
		products := s.products.WithTx(tx)
		after := make([]models.Product, 0, len(need))
		for _, id := range product.SortedIDs(productIDs(order)) {
			if err := products.DecrementStock(ctx, id, need[id]); err != nil {
				if errors.Is(err, product.ErrInsufficientStock) {
					return stockConflict(order, id, locked[id], need[id])
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement stock")
			}
			p := locked[id]
			p.StockQuantity -= need[id]
			after = append(after, p)
		}
		if err := st.alertLowStock(ctx, tx, after); err != nil {
			return err
		}
		st.outcome = metrics.SettlementPaid
	}

	paymentID := attemptPaymentID(attempt, st.input.ProviderPaymentID)
	if attempt.Status != enums.PaymentAttemptSuccess {
		err := repo.UpdateAttempt(ctx, attempt.ID, map[string]any{
			"status":              enums.PaymentAttemptSuccess,
			"provider_payment_id": paymentID,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark attempt succeeded")
		}
		attempt.Status = enums.PaymentAttemptSuccess
		attempt.ProviderPaymentID = &paymentID
	}

	if _, err := repo.FindPaymentByOrder(ctx, order.ID); errors.Is(err, gorm.ErrRecordNotFound) {
		payment := &models.Payment{
			AttemptID:         attempt.ID,
			OrderID:           order.ID,
			Provider:          attempt.Provider,
			ProviderPaymentID: paymentID,
			Amount:            attempt.Amount,
			PaidAt:            st.now,
		}
		if err := repo.CreatePayment(ctx, payment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payment")
		}
	} else if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}

	err := s.lifecycle.MarkPaid(ctx, tx, order, orders.PaidInput{
		AttemptID:         attempt.ID,
		Provider:          attempt.Provider,
		ProviderPaymentID: paymentID,
		Amount:            attempt.Amount,
		At:                st.now,
	})
	if err != nil {
		return err
	}
	if err := s.orders.WithTx(tx).CloseOpenAttempts(ctx, order.ID, enums.PaymentAttemptFailed, "order already paid"); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "close payment attempts")
	}
	if err := s.carts.WithTx(tx).ClearForMall(ctx, order.UserID, order.MallID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
	}

	otp, err := s.exit.Issue(ctx, tx, order.ID)
	if err != nil {
		return err
	}
	st.result.OrderStatus = order.Status
	st.result.AttemptStatus = attempt.Status
	st.result.ExitCode = exitotp.NewCode(otp, st.now)
	return nil
}

func (st *settlement) fail(ctx context.Context, tx *gorm.DB, order *models.Order, attempt *models.PaymentAttempt, reason string) error {
	s := st.svc
	updates := map[string]any{
		"status":        enums.PaymentAttemptFailed,
		"error_message": reason,
	}
	if id := strings.TrimSpace(st.input.ProviderPaymentID); id != "" {
		updates["provider_payment_id"] = id
	}
	if err := s.repo.WithTx(tx).UpdateAttempt(ctx, attempt.ID, updates); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark attempt failed")
	}
	mallID := order.MallID
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPaymentFailed,
		AggregateType: enums.AggregatePayment,
		AggregateID:   attempt.ID,
		Actor:         &outbox.ActorRef{UserID: order.UserID, MallID: &mallID},
		OccurredAt:    st.now,
		Data: payloads.PaymentFailedEvent{
			OrderID:   order.ID,
			AttemptID: attempt.ID,
			AttemptNo: attempt.AttemptNo,
			Reason:    reason,
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit payment_failed")
	}
	st.result.OrderStatus = order.Status
	st.result.AttemptStatus = enums.PaymentAttemptFailed
	st.outcome = metrics.SettlementFailed
	return nil
}

func (st *settlement) alertLowStock(ctx context.Context, tx *gorm.DB, after []models.Product) error {
	s := st.svc
	fired, err := s.products.WithTx(tx).EvaluateLowStock(ctx, after, s.lowStockThreshold, st.now)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "evaluate low stock")
	}
	for _, alert := range fired {
		mallID := alert.MallID
		err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventInventoryLowStock,
			AggregateType: enums.AggregateProduct,
			AggregateID:   alert.ProductID,
			Actor:         &outbox.ActorRef{MallID: &mallID},
			OccurredAt:    st.now,
			Data: payloads.LowStockEvent{
				ProductID:     alert.ProductID,
				MallID:        alert.MallID,
				StockQuantity: alert.StockQuantity,
				Threshold:     alert.Threshold,
			},
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit inventory_low_stock")
		}
	}
	st.lowStock = len(fired)
	return nil
}

func (s *service) lockOwnedOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, userID *uuid.UUID) (*models.Order, error) {
	order, err := s.orders.WithTx(tx).LockByID(ctx, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order")
	}
	if userID != nil && order.UserID != *userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
	}
	return order, nil
}

func productIDs(order *models.Order) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(order.Items))
	for _, item := range order.Items {
		ids = append(ids, item.ProductID)
	}
	return ids
}

func requiredStock(order *models.Order) map[uuid.UUID]int {
	need := make(map[uuid.UUID]int, len(order.Items))
	for _, item := range order.Items {
		need[item.ProductID] += item.Quantity
	}
	return need
}

func stockConflict(order *models.Order, id uuid.UUID, p models.Product, requested int) *pkgerrors.Error {
	name := p.Name
	if name == "" {
		for _, item := range order.Items {
			if item.ProductID == id {
				name = item.ProductName
				break
			}
		}
	}
	return pkgerrors.Newf(pkgerrors.CodeConflict, "stock not available for %s", name).
		WithDetails(map[string]any{
			"product_id": id,
			"requested":  requested,
			"available":  p.StockQuantity,
		})
}

func attemptPaymentID(attempt *models.PaymentAttempt, supplied string) string {
	if attempt.ProviderPaymentID != nil && *attempt.ProviderPaymentID != "" {
		return *attempt.ProviderPaymentID
	}
	if id := strings.TrimSpace(supplied); id != "" {
		return id
	}
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("%s_PAY_%s", attempt.Provider, strings.ToUpper(raw[:16]))
}

func failureReason(reason string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return "payment failed"
	}
	return reason
}
