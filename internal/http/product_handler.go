package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/go_cart/storefront-service/internal/domain"
	"github.com/fjod/go_cart/storefront-service/internal/service"
	"github.com/go-chi/chi/v5"
)

type ProductHandler struct {
	catalog *service.CatalogService
	timeout time.Duration
}

func NewProductHandler(catalog *service.CatalogService, timeout time.Duration) *ProductHandler {
	return &ProductHandler{catalog: catalog, timeout: timeout}
}

type ProductRequestDTO struct {
	SKU         string `json:"sku"`
	Name        string `json:"name"`
	Description string `json:"description"`
	CategoryID  *int64 `json:"category_id"`
	Price       string `json:"price"`
	Stock       int    `json:"stock"`
	Active      *bool  `json:"active"`
}

func (req ProductRequestDTO) toProduct() (*domain.Product, error) {
	price, err := parseMoneyField("price", req.Price)
	if err != nil {
		return nil, err
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return &domain.Product{
		SKU:         req.SKU,
		Name:        req.Name,
		Description: req.Description,
		CategoryID:  req.CategoryID,
		Price:       price,
		Stock:       req.Stock,
		Active:      active,
	}, nil
}

func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	limit, offset, err := pagination(r)
	if err != nil {
		handleError(w, err)
		return
	}
	var categoryID *int64
	if v := r.URL.Query().Get("category_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_argument", "category_id must be a positive integer")
			return
		}
		categoryID = &id
	}

	products, err := h.catalog.ListProducts(ctx, categoryID, limit, offset)
	if err != nil {
		handleError(w, err)
		return
	}
	out := make([]ProductDTO, len(products))
	for i := range products {
		out[i] = toProductDTO(&products[i])
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, err := pathID(r, "id")
	if err != nil {
		handleError(w, err)
		return
	}
	product, err := h.catalog.GetProduct(ctx, id)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toProductDTO(product))
}

func (h *ProductHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	categories, err := h.catalog.ListCategories(ctx)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, categories)
}

func (h *ProductHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req ProductRequestDTO
	if err := decodeJSON(w, r, &req); err != nil {
		handleError(w, err)
		return
	}
	product, err := req.toProduct()
	if err != nil {
		handleError(w, err)
		return
	}
	if err := h.catalog.CreateProduct(ctx, product); err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, toProductDTO(product))
}

func (h *ProductHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, err := pathID(r, "id")
	if err != nil {
		handleError(w, err)
		return
	}
	var req ProductRequestDTO
	if err := decodeJSON(w, r, &req); err != nil {
		handleError(w, err)
		return
	}
	product, err := req.toProduct()
	if err != nil {
		handleError(w, err)
		return
	}
	product.ID = id
	if err := h.catalog.UpdateProduct(ctx, product); err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toProductDTO(product))
}

func (h *ProductHandler) SearchProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	limit, offset, err := pagination(r)
	if err != nil {
		handleError(w, err)
		return
	}
	products, err := h.catalog.SearchProducts(ctx, r.URL.Query().Get("q"), limit, offset)
	if err != nil {
		handleError(w, err)
		return
	}
	out := make([]ProductDTO, len(products))
	for i := range products {
		out[i] = toProductDTO(&products[i])
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *ProductHandler) GetProductBySKU(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	product, err := h.catalog.GetProductBySKU(ctx, chi.URLParam(r, "sku"))
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toProductDTO(product))
}

// DeactivateProduct is a soft delete; the row stays for order history.
func (h *ProductHandler) DeactivateProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, err := pathID(r, "id")
	if err != nil {
		handleError(w, err)
		return
	}
	if err := h.catalog.DeactivateProduct(ctx, id); err != nil {
		handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
