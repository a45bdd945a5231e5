package product

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cinenext/storefront-backend/pkg/db/models"
)

// ProductRepository defines persistence operations for catalog listings.
type ProductRepository interface {
	List(context.Context, ListFilters) ([]models.Product, error)
	FindByID(context.Context, uuid.UUID) (*models.Product, error)
	FindByCode(context.Context, string) (*models.Product, error)
	Create(context.Context, *models.Product) (*models.Product, error)
	Update(context.Context, *models.Product) (*models.Product, error)
	Delete(context.Context, uuid.UUID) error
	DecrementStock(context.Context, uuid.UUID, int) (*StockDecrementResult, error)
	SetStock(context.Context, uuid.UUID, int) (*models.Product, error)
}

// StockDecrementResult reports the outcome of a guarded stock decrement.
type StockDecrementResult struct {
	Decremented bool
	// Available holds the stock observed when the decrement was rejected.
	Available int
}

// Repository wires together product persistence helpers.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// List returns catalog rows matching the filters, newest first.
func (r *Repository) List(ctx context.Context, filters ListFilters) ([]models.Product, error) {
	qb := r.db.WithContext(ctx).Model(&models.Product{})

	if !filters.IncludeInactive {
		qb = qb.Where("is_active = ?", true)
	}
	if filters.Category != nil {
		qb = qb.Where("category = ?", *filters.Category)
	}
	if search := strings.TrimSpace(filters.Query); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		qb = qb.Where("(LOWER(name) LIKE ? OR LOWER(code) LIKE ?)", pattern, pattern)
	}

	var rows []models.Product
	err := qb.Order("created_at DESC").Order("id DESC").Find(&rows).Error
	return rows, err
}

// FindByID loads the product row.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// FindByCode loads the product by its unique merchant code.
func (r *Repository) FindByCode(ctx context.Context, code string) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "code = ?", code).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// Create inserts a new product row, assigning the ID when absent.
func (r *Repository) Create(ctx context.Context, product *models.Product) (*models.Product, error) {
	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(product).Error; err != nil {
		return nil, err
	}
	return product, nil
}

// Update persists the full product row.
func (r *Repository) Update(ctx context.Context, product *models.Product) (*models.Product, error) {
	if err := r.db.WithContext(ctx).Save(product).Error; err != nil {
		return nil, err
	}
	return product, nil
}

// Delete removes a product by ID.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Product{}).Error
}

// DecrementStock atomically subtracts qty, guarded so stock never drops
// below zero. A rejected decrement reports the stock available at that
// moment so callers can surface it.
func (r *Repository) DecrementStock(ctx context.Context, id uuid.UUID, qty int) (*StockDecrementResult, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND stock >= ?", id, qty).
		Update("stock", gorm.Expr("stock - ?", qty))
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected > 0 {
		return &StockDecrementResult{Decremented: true}, nil
	}

	product, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &StockDecrementResult{Decremented: false, Available: product.Stock}, nil
}

// SetStock overwrites the stock counter and returns the fresh row.
func (r *Repository) SetStock(ctx context.Context, id uuid.UUID, qty int) (*models.Product, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", id).
		Update("stock", qty)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return r.FindByID(ctx, id)
}
