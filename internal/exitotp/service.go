package exitotp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/paymall/paymall-backend/internal/orders"
	"github.com/paymall/paymall-backend/pkg/db/models"
	"github.com/paymall/paymall-backend/pkg/enums"
	pkgerrors "github.com/paymall/paymall-backend/pkg/errors"
	"github.com/paymall/paymall-backend/pkg/logger"
	"github.com/paymall/paymall-backend/pkg/outbox"
)

const (
	defaultTTL = 5 * time.Minute
	codeMin    = 100000
	codeSpan   = 900000
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Code is the buyer-facing view of an exit code.
type Code struct {
	OrderID   uuid.UUID `json:"order_id"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
	IsUsed    bool      `json:"is_used"`
	IsExpired bool      `json:"is_expired"`
}

type RedeemInput struct {
	OrderID uuid.UUID
	Code    string
	StaffID uuid.UUID
}

type Service interface {
	// Issue returns the order's code, creating it on the first call. It runs
	// inside the settlement transaction.
	Issue(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.ExitOTP, error)
	GetExitCode(ctx context.Context, userID, orderID uuid.UUID) (*Code, error)
	Redeem(ctx context.Context, input RedeemInput) (*models.Order, error)
}

type ServiceParams struct {
	Repository *Repository
	Orders     orders.Repository
	Lifecycle  *orders.Lifecycle
	Tx         txRunner
	Logger     *logger.Logger
	TTL        time.Duration
	Now        func() time.Time
	// Generate overrides the random code source.
	Generate func() (string, error)
}

type service struct {
	repo      *Repository
	orders    orders.Repository
	lifecycle *orders.Lifecycle
	tx        txRunner
	logg      *logger.Logger
	ttl       time.Duration
	now       func() time.Time
	generate  func() (string, error)
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("exit otp repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Lifecycle == nil {
		return nil, fmt.Errorf("order lifecycle required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	s := &service{
		repo:      params.Repository,
		orders:    params.Orders,
		lifecycle: params.Lifecycle,
		tx:        params.Tx,
		logg:      params.Logger,
		ttl:       params.TTL,
		now:       params.Now,
		generate:  params.Generate,
	}
	if s.logg == nil {
		s.logg = logger.Nop()
	}
	if s.ttl <= 0 {
		s.ttl = defaultTTL
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.generate == nil {
		s.generate = GenerateCode
	}
	return s, nil
}

// GenerateCode returns a uniformly random 6 digit code without a leading zero.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeSpan))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+codeMin), nil
}

func (s *service) Issue(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.ExitOTP, error) {
	repo := s.repo.WithTx(tx)
	existing, err := repo.FindByOrder(ctx, orderID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load exit code")
	}

	code, err := s.generate()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate exit code")
	}
	otp := &models.ExitOTP{OrderID: orderID, Code: code, ExpiresAt: s.now().Add(s.ttl)}
	created, err := repo.CreateIfAbsent(ctx, otp)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create exit code")
	}
	if !created {
		existing, err = repo.FindByOrder(ctx, orderID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload exit code")
		}
		return existing, nil
	}
	s.logg.Info(s.logg.WithOrderID(ctx, orderID.String()), "exit_otp.issued")
	return otp, nil
}

// GetExitCode returns the code of a paid order owned by userID.
func (s *service) GetExitCode(ctx context.Context, userID, orderID uuid.UUID) (*Code, error) {
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
	if order.Status != enums.OrderStatusPaid && order.Status != enums.OrderStatusFulfilled {
		return nil, orders.StateError("exit code is available only after payment", order.Status)
	}

	otp, err := s.repo.FindByOrder(ctx, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "exit code not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load exit code")
	}
	return s.view(otp), nil
}

// Redeem checks the code presented at the exit gate and closes the order.
// Used and expired codes never become valid again.
func (s *service) Redeem(ctx context.Context, input RedeemInput) (*models.Order, error) {
	code := strings.TrimSpace(input.Code)
	if input.OrderID == uuid.Nil || code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order_id and code are required")
	}

	now := s.now()
	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		order, err = s.orders.WithTx(tx).LockByID(ctx, input.OrderID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order")
		}
		if order.Status != enums.OrderStatusPaid {
			return orders.StateError("order is not awaiting exit", order.Status)
		}

		repo := s.repo.WithTx(tx)
		otp, err := repo.FindByOrder(ctx, order.ID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "exit code not found")
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load exit code")
		}
		if subtle.ConstantTimeCompare([]byte(otp.Code), []byte(code)) != 1 {
			return pkgerrors.New(pkgerrors.CodeValidation, "invalid exit code")
		}
		if otp.IsUsed {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "exit code already used")
		}
		if !otp.ExpiresAt.After(now) {
			return pkgerrors.New(pkgerrors.CodeExpired, "exit code expired")
		}

		used, err := repo.MarkUsed(ctx, otp.ID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark exit code used")
		}
		if !used {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "exit code already used")
		}

		mallID := order.MallID
		return s.lifecycle.Fulfill(ctx, tx, order, &outbox.ActorRef{UserID: input.StaffID, MallID: &mallID}, now)
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithOrderID(ctx, order.ID.String()), "exit_otp.redeemed")
	return order, nil
}

func (s *service) view(otp *models.ExitOTP) *Code {
	return NewCode(otp, s.now())
}

// NewCode renders otp as seen at now.
func NewCode(otp *models.ExitOTP, now time.Time) *Code {
	return &Code{
		OrderID:   otp.OrderID,
		Code:      otp.Code,
		ExpiresAt: otp.ExpiresAt,
		IsUsed:    otp.IsUsed,
		IsExpired: !otp.ExpiresAt.After(now),
	}
}
