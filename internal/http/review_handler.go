package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/go_cart/storefront-service/internal/domain"
	"github.com/fjod/go_cart/storefront-service/internal/service"
	"github.com/go-chi/chi/v5"
)

type ReviewHandler struct {
	reviews *service.ReviewService
	timeout time.Duration
}

func NewReviewHandler(reviews *service.ReviewService, timeout time.Duration) *ReviewHandler {
	return &ReviewHandler{reviews: reviews, timeout: timeout}
}

type ReviewRequestDTO struct {
	ProductID int64  `json:"product_id"`
	OrderID   *int64 `json:"order_id,omitempty"`
	Rating    int    `json:"rating"`
	Title     string `json:"title"`
	Content   string `json:"content"`
}

func (h *ReviewHandler) ListReviews(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID, err := pathID(r, "id")
	if err != nil {
		handleError(w, err)
		return
	}
	limit, offset, err := pagination(r)
	if err != nil {
		handleError(w, err)
		return
	}
	reviews, err := h.reviews.ListReviews(ctx, productID, limit, offset)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, reviews)
}

func (h *ReviewHandler) Summary(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID, err := pathID(r, "id")
	if err != nil {
		handleError(w, err)
		return
	}
	summary, err := h.reviews.Summary(ctx, productID)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func (h *ReviewHandler) CreateReview(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req ReviewRequestDTO
	if err := decodeJSON(w, r, &req); err != nil {
		handleError(w, err)
		return
	}
	review := &domain.Review{
		ProductID: req.ProductID,
		OrderID:   req.OrderID,
		Rating:    req.Rating,
		Title:     req.Title,
		Content:   req.Content,
	}
	if err := h.reviews.CreateReview(ctx, getCustomerIDFromContext(r.Context()), review); err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, review)
}

func (h *ReviewHandler) DeleteReview(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	reviewID := chi.URLParam(r, "review_id")
	if err := h.reviews.DeleteReview(ctx, getCustomerIDFromContext(r.Context()), reviewID); err != nil {
		handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ReviewHandler) ListMyReviews(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	limit, offset, err := pagination(r)
	if err != nil {
		handleError(w, err)
		return
	}
	reviews, err := h.reviews.ListByCustomer(ctx, getCustomerIDFromContext(ctx), limit, offset)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, reviews)
}
