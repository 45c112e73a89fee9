package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/go_cart/storefront-service/internal/service"
)

type CheckoutHandler struct {
	checkout *service.CheckoutService
	timeout  time.Duration
}

func NewCheckoutHandler(checkout *service.CheckoutService, timeout time.Duration) *CheckoutHandler {
	return &CheckoutHandler{checkout: checkout, timeout: timeout}
}

type CheckoutItemDTO struct {
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price,omitempty"`
}

type CheckoutRequestDTO struct {
	DeclaredTotal string            `json:"declared_total"`
	Items         []CheckoutItemDTO `json:"items,omitempty"`
}

func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CheckoutRequestDTO
	if err := decodeJSON(w, r, &req); err != nil {
		handleError(w, err)
		return
	}

	declared, err := parseMoneyField("declared_total", req.DeclaredTotal)
	if err != nil {
		handleError(w, err)
		return
	}
	items := make([]service.CheckoutItem, len(req.Items))
	for i, item := range req.Items {
		price, err := parseMoneyField("unit_price", item.UnitPrice)
		if err != nil {
			handleError(w, err)
			return
		}
		items[i] = service.CheckoutItem{ProductID: item.ProductID, Quantity: item.Quantity, UnitPrice: price}
	}

	order, err := h.checkout.Checkout(ctx, getCustomerIDFromContext(r.Context()), service.CheckoutRequest{
		DeclaredTotal: declared,
		Items:         items,
	})
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, toOrderDTO(order))
}
