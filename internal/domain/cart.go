package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type CartStatus string

const (
	CartStatusActive    CartStatus = "ACTIVE"
	CartStatusAbandoned CartStatus = "ABANDONED"
	CartStatusConverted CartStatus = "CONVERTED"
)

func (s CartStatus) String() string {
	return string(s)
}

type Cart struct {
	ID            int64           `json:"id"`
	CustomerID    int64           `json:"customer_id"`
	Status        CartStatus      `json:"status"`
	Items         []CartItem      `json:"items"`
	TotalPrice    decimal.Decimal `json:"total_price"`
	TotalQuantity int             `json:"total_quantity"`
	Version       int64           `json:"version"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type CartItem struct {
	ID        int64           `json:"id"`
	CartID    int64           `json:"cart_id"`
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (i CartItem) Subtotal() decimal.Decimal {
	return RoundMoney(i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity))))
}

// RecomputeTotals folds over every line item. Totals are never adjusted
// incrementally.
func RecomputeTotals(items []CartItem) (decimal.Decimal, int) {
	total := decimal.Zero
	quantity := 0
	for _, item := range items {
		total = total.Add(item.Subtotal())
		quantity += item.Quantity
	}
	return RoundMoney(total), quantity
}

// ApplyTotals replaces the cart's items and refreshes the derived totals.
func (c *Cart) ApplyTotals(items []CartItem) {
	c.Items = items
	c.TotalPrice, c.TotalQuantity = RecomputeTotals(items)
}

func (c *Cart) FindItem(itemID int64) (CartItem, bool) {
	for _, item := range c.Items {
		if item.ID == itemID {
			return item, true
		}
	}
	return CartItem{}, false
}

func (c *Cart) FindProduct(productID int64) (CartItem, bool) {
	for _, item := range c.Items {
		if item.ProductID == productID {
			return item, true
		}
	}
	return CartItem{}, false
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// ValidateQuantity rejects zero and negative quantities.
func ValidateQuantity(qty int) error {
	if qty <= 0 {
		return fmt.Errorf("%w: quantity must be greater than 0", ErrInvalidArgument)
	}
	return nil
}
