package product

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cinenext/storefront-backend/pkg/db/models"
)

// ProductDTO is the read model returned by product operations.
type ProductDTO struct {
	ID          uuid.UUID       `json:"id"`
	Code        string          `json:"code"`
	Name        string          `json:"name"`
	Description *string         `json:"description,omitempty"`
	Category    *string         `json:"category,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	ImageURL    *string         `json:"image_url,omitempty"`
	IsActive    bool            `json:"is_active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// CreateProductInput carries the payload for inserting a catalog listing.
type CreateProductInput struct {
	Code        string
	Name        string
	Description *string
	Category    *string
	Price       decimal.Decimal
	Stock       int
	ImageURL    *string
}

// UpdateProductInput carries a partial update. Nil fields are left untouched.
type UpdateProductInput struct {
	Code        *string
	Name        *string
	Description *string
	Category    *string
	Price       *decimal.Decimal
	ImageURL    *string
	IsActive    *bool
}

// ListFilters narrows the catalog listing.
type ListFilters struct {
	Category        *string
	Query           string
	IncludeInactive bool
}

func toDTO(m *models.Product) *ProductDTO {
	if m == nil {
		return nil
	}
	return &ProductDTO{
		ID:          m.ID,
		Code:        m.Code,
		Name:        m.Name,
		Description: m.Description,
		Category:    m.Category,
		Price:       m.Price,
		Stock:       m.Stock,
		ImageURL:    m.ImageURL,
		IsActive:    m.IsActive,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}
