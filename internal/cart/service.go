package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/paymall/paymall-backend/pkg/db/models"
	pkgerrors "github.com/paymall/paymall-backend/pkg/errors"
	"github.com/paymall/paymall-backend/pkg/logger"
)

// Service manages the user's active cart. Stock is read at call time as an
// advisory limit; nothing here reserves or deducts stock.
type Service interface {
	Add(ctx context.Context, userID uuid.UUID, input AddInput) (*AddResult, error)
	UpdateQuantity(ctx context.Context, userID, itemID uuid.UUID, quantity int) (*View, error)
	Remove(ctx context.Context, userID, itemID uuid.UUID) (*View, error)
	Clear(ctx context.Context, userID uuid.UUID) error
	GetActive(ctx context.Context, userID uuid.UUID) (*View, error)
	MergeGuest(ctx context.Context, userID uuid.UUID, input MergeInput) (*MergeResult, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type productLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
}

type service struct {
	repo     *Repository
	products productLoader
	tx       txRunner
	logg     *logger.Logger
}

// NewService builds the cart service.
func NewService(repo *Repository, products productLoader, tx txRunner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if products == nil {
		return nil, fmt.Errorf("product loader required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{repo: repo, products: products, tx: tx, logg: logg}, nil
}

func (s *service) Add(ctx context.Context, userID uuid.UUID, input AddInput) (*AddResult, error) {
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product_id is required")
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be greater than zero")
	}

	product, err := s.loadSellable(ctx, input.ProductID)
	if err != nil {
		return nil, err
	}
	if product.StockQuantity < input.Quantity {
		return nil, stockError("insufficient stock", product, input.Quantity)
	}

	var result AddResult
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cart, err := repo.GetOrCreateActive(ctx, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}

		if cart.MallID != nil && *cart.MallID != product.MallID && len(cart.Items) > 0 {
			if !input.Force {
				result.Conflict = &MallConflict{CurrentMallID: *cart.MallID, RequestedMallID: product.MallID}
				return nil
			}
			if err := repo.Empty(ctx, cart.ID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "discard cart items")
			}
			s.logg.Info(s.logg.WithFields(ctx, map[string]any{
				"cart_id":      cart.ID.String(),
				"from_mall_id": cart.MallID.String(),
				"to_mall_id":   product.MallID.String(),
			}), "cart.mall_switched")
		}
		if cart.MallID == nil || *cart.MallID != product.MallID {
			mallID := product.MallID
			if err := repo.SetMall(ctx, cart.ID, &mallID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "assign cart mall")
			}
		}

		item, err := repo.FindItem(ctx, cart.ID, product.ID)
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			item = &models.CartItem{CartID: cart.ID, ProductID: product.ID}
		case err != nil:
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart item")
		}

		next := item.Quantity + input.Quantity
		if next > product.StockQuantity {
			return stockError("stock limit exceeded", product, next)
		}
		item.Quantity = next
		if err := repo.SaveItem(ctx, item); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save cart item")
		}

		view, err := s.reload(ctx, repo, userID)
		if err != nil {
			return err
		}
		result.Cart = view
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *service) UpdateQuantity(ctx context.Context, userID, itemID uuid.UUID, quantity int) (*View, error) {
	if quantity <= 0 {
		return s.Remove(ctx, userID, itemID)
	}

	var view *View
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cart, item, err := s.loadItem(ctx, repo, userID, itemID)
		if err != nil {
			return err
		}

		product := item.Product
		if product == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		if err := checkSellable(product); err != nil {
			return err
		}
		if quantity > product.StockQuantity {
			return stockError("stock limit exceeded", product, quantity)
		}

		item.Quantity = quantity
		if err := repo.SaveItem(ctx, item); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save cart item")
		}
		view, err = s.reload(ctx, repo, cart.UserID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// Remove deletes a line. Removing a line that is already gone is not an error.
func (s *service) Remove(ctx context.Context, userID, itemID uuid.UUID) (*View, error) {
	var view *View
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cart, err := repo.FindActive(ctx, userID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			view = emptyView(userID)
			return nil
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}

		if err := repo.DeleteItem(ctx, cart.ID, itemID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete cart item")
		}
		remaining, err := repo.CountItems(ctx, cart.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count cart items")
		}
		if remaining == 0 {
			if err := repo.SetMall(ctx, cart.ID, nil); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "detach cart mall")
			}
		}
		view, err = s.reload(ctx, repo, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

func (s *service) Clear(ctx context.Context, userID uuid.UUID) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cart, err := repo.FindActive(ctx, userID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}
		if err := repo.Empty(ctx, cart.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
		}
		return nil
	})
}

func (s *service) GetActive(ctx context.Context, userID uuid.UUID) (*View, error) {
	cart, err := s.repo.FindActive(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return emptyView(userID), nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	return buildView(cart), nil
}

// MergeGuest folds a pre-login cart into the active cart. Lines for unknown,
// unavailable, out-of-stock or foreign-mall products are skipped, and merged
// quantities are clamped to current stock.
func (s *service) MergeGuest(ctx context.Context, userID uuid.UUID, input MergeInput) (*MergeResult, error) {
	if input.MallID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "mall_id is required")
	}

	ids := make([]uuid.UUID, 0, len(input.Items))
	for _, item := range input.Items {
		if item.ProductID != uuid.Nil && item.Quantity > 0 {
			ids = append(ids, item.ProductID)
		}
	}
	products, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}

	var result MergeResult
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cart, err := repo.GetOrCreateActive(ctx, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}
		result.HadExistingItems = len(cart.Items) > 0

		if cart.MallID != nil && *cart.MallID != input.MallID && result.HadExistingItems {
			if !input.Force {
				result.Conflict = &MallConflict{CurrentMallID: *cart.MallID, RequestedMallID: input.MallID}
				return nil
			}
			if err := repo.Empty(ctx, cart.ID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "discard cart items")
			}
		}
		mallID := input.MallID
		if err := repo.SetMall(ctx, cart.ID, &mallID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "assign cart mall")
		}

		for _, guest := range input.Items {
			if guest.Quantity <= 0 {
				continue
			}
			product, ok := products[guest.ProductID]
			if !ok || !product.IsAvailable || product.MallID != input.MallID || product.StockQuantity <= 0 {
				continue
			}

			item, err := repo.FindItem(ctx, cart.ID, product.ID)
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				item = &models.CartItem{CartID: cart.ID, ProductID: product.ID}
			case err != nil:
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart item")
			}

			item.Quantity += guest.Quantity
			if item.Quantity > product.StockQuantity {
				item.Quantity = product.StockQuantity
			}
			if err := repo.SaveItem(ctx, item); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save cart item")
			}
			result.MergedCount++
		}

		view, err := s.reload(ctx, repo, userID)
		if err != nil {
			return err
		}
		result.Cart = view
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *service) loadSellable(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	product, err := s.products.FindByID(ctx, productID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	if err := checkSellable(product); err != nil {
		return nil, err
	}
	return product, nil
}

func checkSellable(product *models.Product) error {
	if !product.IsAvailable {
		return pkgerrors.New(pkgerrors.CodeValidation, "product not available")
	}
	return nil
}

func (s *service) loadItem(ctx context.Context, repo *Repository, userID, itemID uuid.UUID) (*models.Cart, *models.CartItem, error) {
	cart, err := repo.FindActive(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	}
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	item, err := repo.FindItemByID(ctx, cart.ID, itemID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	}
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart item")
	}
	return cart, item, nil
}

func (s *service) reload(ctx context.Context, repo *Repository, userID uuid.UUID) (*View, error) {
	cart, err := repo.FindActive(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload cart")
	}
	return buildView(cart), nil
}

func stockError(message string, product *models.Product, requested int) error {
	return pkgerrors.New(pkgerrors.CodeConflict, message).WithDetails(map[string]any{
		"product_id": product.ID,
		"requested":  requested,
		"available":  product.StockQuantity,
	})
}
