package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/go_cart/storefront-service/internal/domain"
	"github.com/fjod/go_cart/storefront-service/internal/metrics"
	"github.com/fjod/go_cart/storefront-service/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Services bundles what the router needs. Ready is optional and backs the
// health endpoint.
type Services struct {
	Carts    *service.CartService
	Checkout *service.CheckoutService
	Orders   *service.OrderService
	Catalog  *service.CatalogService
	Reviews  *service.ReviewService
	Identity *service.IdentityService
	Metrics  *metrics.Metrics
	Ready    func(ctx context.Context) error
}

func NewRouter(s Services, requestTimeout time.Duration) http.Handler {
	cartHandler := NewCartHandler(s.Carts, requestTimeout)
	checkoutHandler := NewCheckoutHandler(s.Checkout, requestTimeout)
	ordersHandler := NewOrdersHandler(s.Orders, requestTimeout)
	productHandler := NewProductHandler(s.Catalog, requestTimeout)
	reviewHandler := NewReviewHandler(s.Reviews, requestTimeout)
	authHandler := NewAuthHandler(s.Identity, requestTimeout)
	userHandler := NewUserHandler(s.Identity, requestTimeout)

	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestIDMiddleware)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(middleware.Compress(5))
	r.Use(MetricsMiddleware(s.Metrics))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if s.Ready != nil {
			if err := s.Ready(r.Context()); err != nil {
				respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", s.Metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)

		r.Get("/products", productHandler.ListProducts)
		r.Get("/products/search", productHandler.SearchProducts)
		r.Get("/products/sku/{sku}", productHandler.GetProductBySKU)
		r.Get("/products/{id}", productHandler.GetProduct)
		r.Get("/products/{id}/reviews", reviewHandler.ListReviews)
		r.Get("/products/{id}/reviews/summary", reviewHandler.Summary)
		r.Get("/categories", productHandler.ListCategories)

		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(s.Identity))

			r.Get("/user/profile", userHandler.GetProfile)
			r.Put("/user/profile", userHandler.UpdateProfile)
		})

		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(s.Identity))
			r.Use(CustomerMiddleware(s.Identity))

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", cartHandler.GetCart)
				r.Delete("/", cartHandler.ClearCart)
				r.Post("/items", cartHandler.AddItem)
				r.Put("/items/{item_id}", cartHandler.UpdateQuantity)
				r.Delete("/items/{item_id}", cartHandler.RemoveItem)
			})
			r.Post("/checkout", checkoutHandler.Checkout)
			r.Get("/orders", ordersHandler.ListOrders)
			r.Get("/orders/{order_id}", ordersHandler.GetOrder)
			r.Get("/reviews/my", reviewHandler.ListMyReviews)
			r.Post("/reviews", reviewHandler.CreateReview)
			r.Delete("/reviews/{review_id}", reviewHandler.DeleteReview)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(AuthMiddleware(s.Identity))
			r.Use(RequireRole(domain.RoleAdmin))

			r.Get("/orders", ordersHandler.AdminListOrders)
			r.Get("/orders/stats", ordersHandler.AdminStats)
			r.Patch("/orders/{order_id}/status", ordersHandler.AdminUpdateStatus)
			r.Post("/products", productHandler.CreateProduct)
			r.Put("/products/{id}", productHandler.UpdateProduct)
			r.Delete("/products/{id}", productHandler.DeactivateProduct)
			r.Get("/users", userHandler.AdminListUsers)
			r.Get("/users/{user_id}", userHandler.AdminGetUser)
			r.Put("/users/{user_id}", userHandler.AdminUpdateUser)
			r.Post("/users/{user_id}/roles", authHandler.AssignRole)
			r.Delete("/users/{user_id}/roles/{role}", authHandler.RevokeRole)
		})
	})

	return r
}
