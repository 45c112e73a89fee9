package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/go_cart/storefront-service/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Money leaves the API as strings with two decimals.

type CartItemDTO struct {
	ID        int64  `json:"id"`
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	Subtotal  string `json:"subtotal"`
}

type CartDTO struct {
	ID            int64         `json:"id"`
	CustomerID    int64         `json:"customer_id"`
	Status        string        `json:"status"`
	Items         []CartItemDTO `json:"items"`
	TotalPrice    string        `json:"total_price"`
	TotalQuantity int           `json:"total_quantity"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

func toCartItemDTO(item domain.CartItem) CartItemDTO {
	return CartItemDTO{
		ID:        item.ID,
		ProductID: item.ProductID,
		Quantity:  item.Quantity,
		UnitPrice: domain.FormatMoney(item.UnitPrice),
		Subtotal:  domain.FormatMoney(item.Subtotal()),
	}
}

func toCartDTO(c *domain.Cart) CartDTO {
	items := make([]CartItemDTO, len(c.Items))
	for i, item := range c.Items {
		items[i] = toCartItemDTO(item)
	}
	return CartDTO{
		ID:            c.ID,
		CustomerID:    c.CustomerID,
		Status:        c.Status.String(),
		Items:         items,
		TotalPrice:    domain.FormatMoney(c.TotalPrice),
		TotalQuantity: c.TotalQuantity,
		UpdatedAt:     c.UpdatedAt,
	}
}

type OrderItemDTO struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	Subtotal    string `json:"subtotal"`
}

type OrderDTO struct {
	ID          int64          `json:"id"`
	OrderNumber string         `json:"order_number"`
	CustomerID  int64          `json:"customer_id"`
	Status      string         `json:"status"`
	TotalAmount string         `json:"total_amount"`
	Items       []OrderItemDTO `json:"items"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func toOrderDTO(o *domain.Order) OrderDTO {
	items := make([]OrderItemDTO, len(o.Items))
	for i, item := range o.Items {
		items[i] = OrderItemDTO{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   domain.FormatMoney(item.UnitPrice),
			Subtotal:    domain.FormatMoney(item.Subtotal),
		}
	}
	return OrderDTO{
		ID:          o.ID,
		OrderNumber: o.OrderNumber,
		CustomerID:  o.CustomerID,
		Status:      o.Status.String(),
		TotalAmount: domain.FormatMoney(o.TotalAmount),
		Items:       items,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}
}

func toOrderDTOs(orders []domain.Order) []OrderDTO {
	out := make([]OrderDTO, len(orders))
	for i := range orders {
		out[i] = toOrderDTO(&orders[i])
	}
	return out
}

type ProductDTO struct {
	ID          int64  `json:"id"`
	SKU         string `json:"sku"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CategoryID  *int64 `json:"category_id,omitempty"`
	Price       string `json:"price"`
	Stock       int    `json:"stock"`
	Active      bool   `json:"active"`
}

func toProductDTO(p *domain.Product) ProductDTO {
	return ProductDTO{
		ID:          p.ID,
		SKU:         p.SKU,
		Name:        p.Name,
		Description: p.Description,
		CategoryID:  p.CategoryID,
		Price:       domain.FormatMoney(p.Price),
		Stock:       p.Stock,
		Active:      p.Active,
	}
}

// decodeJSON reads a size-limited JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is empty", domain.ErrInvalidArgument)
		}
		return fmt.Errorf("%w: invalid JSON body", domain.ErrInvalidArgument)
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", domain.ErrInvalidArgument, name)
	}
	return id, nil
}

// pagination reads limit and offset query parameters; absent values are 0.
func pagination(r *http.Request) (limit, offset int, err error) {
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
			return 0, 0, fmt.Errorf("%w: limit must be a non-negative integer", domain.ErrInvalidArgument)
		}
	}
	if v := q.Get("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil || offset < 0 {
			return 0, 0, fmt.Errorf("%w: offset must be a non-negative integer", domain.ErrInvalidArgument)
		}
	}
	return limit, offset, nil
}

// parseMoneyField parses an optional amount; empty means zero.
func parseMoneyField(name, value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}
	d, err := domain.ParseMoney(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s is not a valid amount", domain.ErrInvalidArgument, name)
	}
	return d, nil
}
