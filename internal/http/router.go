package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type RouterConfig struct {
	RequestTimeout     time.Duration
	MaxRequestBodySize int64
}

type Handlers struct {
	Products  *ProductHandler
	Cart      *CartHandler
	Addresses *AddressHandler
	Orders    *OrdersHandler
}

// NewRouter mounts the storefront API and wraps it in OpenTelemetry
// server instrumentation.
func NewRouter(cfg RouterConfig, h Handlers) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestIDMiddleware)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	if cfg.MaxRequestBodySize > 0 {
		r.Use(middleware.RequestSize(cfg.MaxRequestBodySize))
	}

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(IdentityMiddleware)

		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.Products.ListProducts)
			r.Get("/{product}", h.Products.GetProduct)
		})

		r.Route("/categories", func(r chi.Router) {
			r.Get("/", h.Products.ListCategories)
			r.Get("/{slug}", h.Products.GetCategory)
		})

		r.Route("/brands", func(r chi.Router) {
			r.Get("/", h.Products.ListBrands)
			r.Get("/{slug}", h.Products.GetBrand)
		})

		r.Get("/search", h.Products.Search)
		r.Get("/homepage", h.Products.Homepage)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.Cart.GetCart)
			r.Delete("/", h.Cart.ClearCart)
			r.Post("/items", h.Cart.AddItem)
			r.Patch("/items/{item_id}", h.Cart.UpdateQuantity)
			r.Delete("/items/{item_id}", h.Cart.RemoveItem)
			r.Post("/merge", h.Cart.Merge)
		})

		r.Route("/addresses", func(r chi.Router) {
			r.Get("/", h.Addresses.ListAddresses)
			r.Post("/", h.Addresses.CreateAddress)
			r.Get("/{address_id}", h.Addresses.GetAddress)
			r.Patch("/{address_id}", h.Addresses.UpdateAddress)
			r.Delete("/{address_id}", h.Addresses.DeleteAddress)
			r.Post("/{address_id}/default", h.Addresses.SetDefault)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", h.Orders.ListOrders)
			r.Post("/", h.Orders.CreateOrder)
			r.Get("/{order_number}", h.Orders.GetOrder)
			r.Patch("/{order_number}/cancel", h.Orders.CancelOrder)
		})
	})

	return otelhttp.NewHandler(r, "storefront")
}
