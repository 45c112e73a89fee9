package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Category struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type Product struct {
	ID          int64           `json:"id"`
	SKU         string          `json:"sku"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	CategoryID  *int64          `json:"category_id,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Active      bool            `json:"active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Purchasable reports whether qty units can be sold right now.
func (p *Product) Purchasable(qty int) error {
	if !p.Active {
		return ErrNotFound
	}
	if p.Stock < qty {
		return ErrInsufficientStock
	}
	return nil
}

func (p *Product) Validate() error {
	switch {
	case p.SKU == "":
		return fmt.Errorf("%w: sku is required", ErrInvalidArgument)
	case p.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidArgument)
	case !p.Price.IsPositive():
		return fmt.Errorf("%w: price must be positive", ErrInvalidArgument)
	case p.Stock < 0:
		return fmt.Errorf("%w: stock must not be negative", ErrInvalidArgument)
	}
	p.Price = RoundMoney(p.Price)
	return nil
}
