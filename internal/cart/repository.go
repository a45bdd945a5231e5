package cart

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cinenext/storefront-backend/pkg/db/models"
)

// CartRepository defines persistence operations for carts and their lines.
type CartRepository interface {
	GetByUser(context.Context, uuid.UUID) (*models.Cart, error)
	GetOrCreate(context.Context, uuid.UUID) (*models.Cart, error)
	UpsertItem(ctx context.Context, cartID, productID uuid.UUID, quantity int) (*models.CartItem, error)
	SetItemQuantity(ctx context.Context, cartID, productID uuid.UUID, quantity int) (bool, error)
	RemoveItem(ctx context.Context, cartID, productID uuid.UUID) (bool, error)
	ClearItems(ctx context.Context, cartID uuid.UUID) error
}

// Repository persists carts through GORM.
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

// GetByUser loads the user's cart with items in insertion order. A missing
// cart returns nil so callers can treat it as empty.
func (r *Repository) GetByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		First(&cart, "user_id = ?", userID).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cart, nil
}

// GetOrCreate returns the user's cart, creating the row lazily.
func (r *Repository) GetOrCreate(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	cart, err := r.GetByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cart != nil {
		return cart, nil
	}

	cart = &models.Cart{ID: uuid.New(), UserID: userID}
	if err := r.db.WithContext(ctx).Create(cart).Error; err != nil {
		return nil, err
	}
	return cart, nil
}

// UpsertItem updates the line for the product in place or appends a new
// line with the next position.
func (r *Repository) UpsertItem(ctx context.Context, cartID, productID uuid.UUID, quantity int) (*models.CartItem, error) {
	tx := r.db.WithContext(ctx)

	var item models.CartItem
	err := tx.First(&item, "cart_id = ? AND product_id = ?", cartID, productID).Error
	switch {
	case err == nil:
		item.Quantity = quantity
		if err := tx.Model(&item).Update("quantity", quantity).Error; err != nil {
			return nil, err
		}
		return &item, nil

	case errors.Is(err, gorm.ErrRecordNotFound):
		var maxPosition int
		if err := tx.Model(&models.CartItem{}).
			Where("cart_id = ?", cartID).
			Select("COALESCE(MAX(position), 0)").
			Scan(&maxPosition).Error; err != nil {
			return nil, err
		}
		item = models.CartItem{
			ID:        uuid.New(),
			CartID:    cartID,
			ProductID: productID,
			Quantity:  quantity,
			Position:  maxPosition + 1,
		}
		if err := tx.Create(&item).Error; err != nil {
			return nil, err
		}
		return &item, nil

	default:
		return nil, err
	}
}

// SetItemQuantity overwrites the quantity. Zero rows affected means the
// line does not exist.
func (r *Repository) SetItemQuantity(ctx context.Context, cartID, productID uuid.UUID, quantity int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.CartItem{}).
		Where("cart_id = ? AND product_id = ?", cartID, productID).
		Update("quantity", quantity)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// RemoveItem deletes the line, reporting whether it existed.
func (r *Repository) RemoveItem(ctx context.Context, cartID, productID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("cart_id = ? AND product_id = ?", cartID, productID).
		Delete(&models.CartItem{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ClearItems deletes every line in the cart.
func (r *Repository) ClearItems(ctx context.Context, cartID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("cart_id = ?", cartID).
		Delete(&models.CartItem{}).
		Error
}
