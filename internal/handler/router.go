package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/storefront/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware витрины.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	authenticated := h.authMiddleware.Authenticate
	admin := chi.Chain(h.authMiddleware.Authenticate, h.authMiddleware.RequireAdmin)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				if h.limiter != nil {
					r.Use(h.limiter.Middleware)
				}
				r.Post("/register", h.Register)
				r.Post("/login", h.Login)
				r.Post("/forgot-password", h.ForgotPassword)
			})

			r.With(authenticated).Get("/user-auth", h.AuthCheck)
			r.With(authenticated).Put("/profile", h.UpdateProfile)
			r.With(authenticated).Get("/orders", h.GetOrders)

			r.With(admin...).Get("/admin-auth", h.AuthCheck)
			r.With(admin...).Get("/all-orders", h.GetAllOrders)
			r.With(admin...).Put("/order-status/{orderID}", h.UpdateOrderStatus)
		})

		r.Route("/category", func(r chi.Router) {
			r.Get("/get-category", h.GetCategories)
			r.Get("/single-category/{slug}", h.GetCategory)

			r.With(admin...).Post("/create-category", h.CreateCategory)
			r.With(admin...).Put("/update-category/{id}", h.UpdateCategory)
			r.With(admin...).Delete("/delete-category/{id}", h.DeleteCategory)
		})

		r.Route("/product", func(r chi.Router) {
			r.Get("/get-product", h.GetProducts)
			r.Get("/get-product/{slug}", h.GetProduct)
			r.Post("/product-filters", h.FilterProducts)
			r.Get("/product-count", h.ProductCount)
			r.Get("/product-list/{page}", h.ProductList)
			r.Get("/search/{keyword}", h.SearchProducts)
			r.Get("/related-product/{pid}/{cid}", h.RelatedProducts)
			r.Get("/product-category/{slug}", h.ProductsByCategory)

			r.With(admin...).Post("/create-product", h.CreateProduct)
			r.With(admin...).Put("/update-product/{pid}", h.UpdateProduct)
			r.With(admin...).Delete("/product/{pid}", h.DeleteProduct)

			r.Get("/braintree/token", h.ClientToken)
			r.With(authenticated).Post("/braintree/payment", h.Pay)
		})

		r.Route("/payment", func(r chi.Router) {
			r.Get("/token", h.ClientToken)
			r.With(authenticated).Post("/pay", h.Pay)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "")
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
	})

	return r
}
