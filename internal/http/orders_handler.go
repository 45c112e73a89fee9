package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/go_cart/storefront-service/internal/service"
)

type OrdersHandler struct {
	orders  *service.OrderService
	timeout time.Duration
}

func NewOrdersHandler(orders *service.OrderService, timeout time.Duration) *OrdersHandler {
	return &OrdersHandler{orders: orders, timeout: timeout}
}

type UpdateStatusRequestDTO struct {
	Status string `json:"status"`
}

func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	q, err := orderQuery(r)
	if err != nil {
		handleError(w, err)
		return
	}
	orders, err := h.orders.ListOrders(ctx, getCustomerIDFromContext(r.Context()), q)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderDTOs(orders))
}

func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orderID, err := pathID(r, "order_id")
	if err != nil {
		handleError(w, err)
		return
	}
	order, err := h.orders.GetOrder(ctx, getCustomerIDFromContext(r.Context()), orderID)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderDTO(order))
}

func (h *OrdersHandler) AdminListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	q, err := orderQuery(r)
	if err != nil {
		handleError(w, err)
		return
	}
	orders, err := h.orders.ListAllOrders(ctx, q)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderDTOs(orders))
}

func (h *OrdersHandler) AdminStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	stats, err := h.orders.Stats(ctx)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (h *OrdersHandler) AdminUpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orderID, err := pathID(r, "order_id")
	if err != nil {
		handleError(w, err)
		return
	}
	var req UpdateStatusRequestDTO
	if err := decodeJSON(w, r, &req); err != nil {
		handleError(w, err)
		return
	}

	order, err := h.orders.UpdateOrderStatus(ctx, orderID, req.Status)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderDTO(order))
}

func orderQuery(r *http.Request) (service.OrderQuery, error) {
	limit, offset, err := pagination(r)
	if err != nil {
		return service.OrderQuery{}, err
	}
	return service.OrderQuery{
		Status: r.URL.Query().Get("status"),
		Query:  r.URL.Query().Get("q"),
		Limit:  limit,
		Offset: offset,
	}, nil
}
