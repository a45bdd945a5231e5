package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/cinenext/storefront-backend/pkg/db/models"
	pkgerrors "github.com/cinenext/storefront-backend/pkg/errors"
)

type productLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

// Service is the cart engine: every read reconciles lines against live
// stock, every write clamps or rejects so a stored quantity never exceeds
// what the catalog can deliver.
type Service interface {
	AddItem(ctx context.Context, userID, productID uuid.UUID, requestedQty int) (*AddItemResult, error)
	View(ctx context.Context, userID uuid.UUID) (*CartViewDTO, error)
	SetQuantity(ctx context.Context, userID, productID uuid.UUID, quantity int) (*CartLineDTO, error)
	RemoveItem(ctx context.Context, userID, productID uuid.UUID) error
	Clear(ctx context.Context, userID uuid.UUID) error
	ItemCount(ctx context.Context, userID uuid.UUID) (int, error)
}

type service struct {
	repo     CartRepository
	products productLoader
}

// NewService builds a cart engine backed by the provided stores.
func NewService(repo CartRepository, products productLoader) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if products == nil {
		return nil, fmt.Errorf("product loader required")
	}
	return &service{repo: repo, products: products}, nil
}

// AddItem merges the requested quantity into the cart, clamping the stored
// value to the stock available at write time.
func (s *service) AddItem(ctx context.Context, userID, productID uuid.UUID, requestedQty int) (*AddItemResult, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if requestedQty < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}

	product, err := s.loadProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product.Stock == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "product is out of stock").
			WithDetails(map[string]any{"available": 0})
	}

	cart, err := s.repo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}

	existing := 0
	for i := range cart.Items {
		if cart.Items[i].ProductID == productID {
			existing = cart.Items[i].Quantity
			break
		}
	}

	desired := existing + requestedQty
	effective := desired
	if effective > product.Stock {
		effective = product.Stock
	}

	if _, err := s.repo.UpsertItem(ctx, cart.ID, productID, effective); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upsert cart item")
	}

	return &AddItemResult{
		ProductID: productID,
		Quantity:  effective,
		Clamped:   effective < desired,
	}, nil
}

// View prices the cart against live catalog rows, repairing stale lines in
// storage before returning. Dangling lines are dropped; overcommitted
// quantities are clamped down, and a clamp to zero removes the line.
func (s *service) View(ctx context.Context, userID uuid.UUID) (*CartViewDTO, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	cart, err := s.repo.GetByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	if cart == nil {
		return emptyView(), nil
	}

	view := emptyView()
	for i := range cart.Items {
		item := cart.Items[i]

		product, err := s.products.FindByID(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				if _, err := s.repo.RemoveItem(ctx, cart.ID, item.ProductID); err != nil {
					return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "drop dangling cart item")
				}
				continue
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart product")
		}
		if !product.IsActive {
			if _, err := s.repo.RemoveItem(ctx, cart.ID, item.ProductID); err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "drop inactive cart item")
			}
			continue
		}

		quantity := item.Quantity
		if quantity > product.Stock {
			if product.Stock == 0 {
				if _, err := s.repo.RemoveItem(ctx, cart.ID, item.ProductID); err != nil {
					return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "drop depleted cart item")
				}
				continue
			}
			quantity = product.Stock
			if _, err := s.repo.SetItemQuantity(ctx, cart.ID, item.ProductID, quantity); err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "repair cart item quantity")
			}
		}

		subtotal := product.Price.Mul(decimal.NewFromInt(int64(quantity))).Round(2)
		view.Items = append(view.Items, CartLineDTO{
			ProductID: product.ID,
			Code:      product.Code,
			Name:      product.Name,
			UnitPrice: product.Price,
			Quantity:  quantity,
			Subtotal:  subtotal,
			ImageURL:  product.ImageURL,
		})
		view.Total = view.Total.Add(subtotal)
	}

	view.Total = view.Total.Round(2)
	return view, nil
}

// SetQuantity overwrites a line's quantity. Unlike AddItem it never clamps:
// a request beyond stock is rejected with the available count.
func (s *service) SetQuantity(ctx context.Context, userID, productID uuid.UUID, quantity int) (*CartLineDTO, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}

	product, err := s.loadProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if quantity > product.Stock {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "insufficient stock").
			WithDetails(map[string]any{"available": product.Stock})
	}

	cart, err := s.repo.GetByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	if cart == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "item not in cart")
	}

	updated, err := s.repo.SetItemQuantity(ctx, cart.ID, productID, quantity)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "set cart item quantity")
	}
	if !updated {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "item not in cart")
	}

	subtotal := product.Price.Mul(decimal.NewFromInt(int64(quantity))).Round(2)
	return &CartLineDTO{
		ProductID: product.ID,
		Code:      product.Code,
		Name:      product.Name,
		UnitPrice: product.Price,
		Quantity:  quantity,
		Subtotal:  subtotal,
		ImageURL:  product.ImageURL,
	}, nil
}

// RemoveItem deletes the line for the product. Removing an absent line or
// a line from an absent cart is a no-op, like Clear.
func (s *service) RemoveItem(ctx context.Context, userID, productID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if productID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}

	cart, err := s.repo.GetByUser(ctx, userID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	if cart == nil {
		return nil
	}

	if _, err := s.repo.RemoveItem(ctx, cart.ID, productID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove cart item")
	}
	return nil
}

// Clear empties the cart. Clearing an absent cart is a no-op.
func (s *service) Clear(ctx context.Context, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	cart, err := s.repo.GetByUser(ctx, userID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	if cart == nil {
		return nil
	}

	if err := s.repo.ClearItems(ctx, cart.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
	}
	return nil
}

// ItemCount sums the stored quantities across all lines.
func (s *service) ItemCount(ctx context.Context, userID uuid.UUID) (int, error) {
	if userID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	cart, err := s.repo.GetByUser(ctx, userID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	if cart == nil {
		return 0, nil
	}

	total := 0
	for i := range cart.Items {
		total += cart.Items[i].Quantity
	}
	return total, nil
}

func (s *service) loadProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	if !product.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return product, nil
}

func emptyView() *CartViewDTO {
	return &CartViewDTO{
		Items: []CartLineDTO{},
		Total: decimal.Zero,
	}
}
