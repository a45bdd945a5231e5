package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	cart "github.com/cinenext/storefront-backend/internal/cart"
	product "github.com/cinenext/storefront-backend/internal/products"
	"github.com/cinenext/storefront-backend/pkg/db/models"
	pkgerrors "github.com/cinenext/storefront-backend/pkg/errors"
	"github.com/cinenext/storefront-backend/pkg/logger"
	"github.com/cinenext/storefront-backend/pkg/metrics"
)

// Line failure kinds surfaced to clients.
const (
	KindProductGone       = "product_not_found"
	KindOutOfStock        = "out_of_stock"
	KindInsufficientStock = "insufficient_stock"
)

// Checkout outcomes recorded in metrics.
const (
	outcomeFull     = "full"
	outcomePartial  = "partial"
	outcomeRejected = "rejected"
)

// LineError describes a cart line that could not be purchased.
type LineError struct {
	ProductID uuid.UUID `json:"product_id"`
	Name      string    `json:"name,omitempty"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	Available *int      `json:"available,omitempty"`
}

// ReceiptLine is a successfully purchased cart line.
type ReceiptLine struct {
	ProductID uuid.UUID       `json:"product_id"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// Result carries the receipt plus any per-line failures.
type Result struct {
	Items  []ReceiptLine   `json:"items"`
	Total  decimal.Decimal `json:"total"`
	Errors []LineError     `json:"errors,omitempty"`
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service executes checkout atomically against live stock.
type Service interface {
	Execute(ctx context.Context, userID uuid.UUID) (*Result, error)
}

type service struct {
	tx          txRunner
	cartRepo    *cart.Repository
	productRepo *product.Repository
	metrics     *metrics.CheckoutMetrics
	logg        *logger.Logger
}

// NewService builds a checkout service backed by the provided stack.
func NewService(tx txRunner, cartRepo *cart.Repository, productRepo *product.Repository, m *metrics.CheckoutMetrics, logg *logger.Logger) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if cartRepo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if productRepo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	return &service{
		tx:          tx,
		cartRepo:    cartRepo,
		productRepo: productRepo,
		metrics:     m,
		logg:        logg,
	}, nil
}

// Execute walks the cart in insertion order inside one transaction. Each
// purchasable line decrements stock through the guarded update; lines that
// cannot be fulfilled become per-line errors. Zero purchasable lines roll
// the transaction back; otherwise the whole cart is cleared, failed lines
// included.
func (s *service) Execute(ctx context.Context, userID uuid.UUID) (*Result, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	started := time.Now()
	var result *Result

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		carts := s.cartRepo.WithTx(tx)
		products := s.productRepo.WithTx(tx)

		cartRow, err := carts.GetByUser(ctx, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}
		if cartRow == nil || len(cartRow.Items) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
		}

		var (
			receipt  []ReceiptLine
			failures []LineError
			total    = decimal.Zero
		)

		for i := range cartRow.Items {
			item := cartRow.Items[i]

			line, failure, err := s.purchaseLine(ctx, products, item)
			if err != nil {
				return err
			}
			if failure != nil {
				failures = append(failures, *failure)
				continue
			}
			receipt = append(receipt, *line)
			total = total.Add(line.Subtotal)
		}

		if len(receipt) == 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "no items could be purchased").
				WithDetails(map[string]any{"errors": failures})
		}

		if err := carts.ClearItems(ctx, cartRow.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
		}

		result = &Result{
			Items:  receipt,
			Total:  total.Round(2),
			Errors: failures,
		}
		return nil
	})
	if err != nil {
		s.record(ctx, outcomeRejected, started, nil, err)
		return nil, err
	}

	outcome := outcomeFull
	if len(result.Errors) > 0 {
		outcome = outcomePartial
	}
	s.record(ctx, outcome, started, result, nil)
	return result, nil
}

// purchaseLine attempts the guarded decrement for one cart line. A nil
// failure with a nil error means the line was purchased.
func (s *service) purchaseLine(ctx context.Context, products *product.Repository, item models.CartItem) (*ReceiptLine, *LineError, error) {
	row, err := products.FindByID(ctx, item.ProductID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &LineError{
				ProductID: item.ProductID,
				Kind:      KindProductGone,
				Message:   "product no longer exists",
			}, nil
		}
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	if !row.IsActive {
		return nil, &LineError{
			ProductID: item.ProductID,
			Name:      row.Name,
			Kind:      KindProductGone,
			Message:   "product no longer exists",
		}, nil
	}
	if row.Stock == 0 {
		zero := 0
		return nil, &LineError{
			ProductID: item.ProductID,
			Name:      row.Name,
			Kind:      KindOutOfStock,
			Message:   "product is out of stock",
			Available: &zero,
		}, nil
	}
	if item.Quantity > row.Stock {
		available := row.Stock
		return nil, &LineError{
			ProductID: item.ProductID,
			Name:      row.Name,
			Kind:      KindInsufficientStock,
			Message:   "insufficient stock",
			Available: &available,
		}, nil
	}

	dec, err := products.DecrementStock(ctx, item.ProductID, item.Quantity)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement stock")
	}
	if !dec.Decremented {
		// another checkout consumed the stock between the read and the update
		available := dec.Available
		return nil, &LineError{
			ProductID: item.ProductID,
			Name:      row.Name,
			Kind:      KindInsufficientStock,
			Message:   "insufficient stock",
			Available: &available,
		}, nil
	}

	subtotal := row.Price.Mul(decimal.NewFromInt(int64(item.Quantity))).Round(2)
	return &ReceiptLine{
		ProductID: row.ID,
		Code:      row.Code,
		Name:      row.Name,
		Quantity:  item.Quantity,
		UnitPrice: row.Price,
		Subtotal:  subtotal,
	}, nil, nil
}

func (s *service) record(ctx context.Context, outcome string, started time.Time, result *Result, execErr error) {
	s.metrics.ObserveDuration(outcome, time.Since(started))

	if result != nil {
		s.metrics.AddPurchased(outcome, len(result.Items))
		for _, failure := range result.Errors {
			s.metrics.IncFailed(failure.Kind)
		}
	}

	if s.logg == nil {
		return
	}

	switch {
	case execErr != nil:
		s.logg.Warn(s.logg.WithField(ctx, "outcome", outcome), "checkout rejected: "+execErr.Error())
	case len(result.Errors) > 0:
		var agg error
		for _, failure := range result.Errors {
			agg = multierr.Append(agg, fmt.Errorf("%s: %s", failure.ProductID, failure.Kind))
		}
		s.logg.Warn(s.logg.WithField(ctx, "outcome", outcome), "checkout completed with line failures: "+agg.Error())
	default:
		s.logg.Info(s.logg.WithField(ctx, "outcome", outcome), "checkout completed")
	}
}
