package cart

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CartLineDTO is a priced line of the reconciled cart view.
type CartLineDTO struct {
	ProductID uuid.UUID       `json:"product_id"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	ImageURL  *string         `json:"image_url,omitempty"`
}

// CartViewDTO is the reconciled, priced cart returned to clients.
type CartViewDTO struct {
	Items []CartLineDTO   `json:"items"`
	Total decimal.Decimal `json:"total"`
}

// AddItemResult reports the stored quantity after an add, including
// whether the request was clamped to the available stock.
type AddItemResult struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
	Clamped   bool      `json:"clamped"`
}
