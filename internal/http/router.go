package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/andreasstove999/ecommerce-system/shop-service-go/internal/metrics"
	"github.com/andreasstove999/ecommerce-system/shop-service-go/internal/tracing"
)

// HealthCheck pings one dependency.
type HealthCheck func(ctx context.Context) error

type Deps struct {
	Logger      *slog.Logger
	CORSOrigins []string

	Products ProductCatalog
	Cart     CartService
	Orders   OrderService

	Metrics      *metrics.ServerMetrics
	HealthChecks map[string]HealthCheck
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	// Middlewares (outer -> inner)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(CorrelationID)
	r.Use(Logging(d.Logger))
	r.Use(Recover(d.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", HeaderCorrelationID, HeaderSessionID, HeaderIdempotencyKey},
		ExposedHeaders:   []string{HeaderCorrelationID, HeaderSessionID},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware)
	}
	r.Use(tracing.Middleware)

	health := &healthHandler{checks: d.HealthChecks}
	r.Get("/health", health.ServeHTTP)
	r.Get("/api/health", health.ServeHTTP)
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	products := NewProductHandler(d.Products, d.Logger)
	r.Route("/api/products", func(r chi.Router) {
		r.Get("/", products.List)
		r.Post("/", products.Create)
		r.Get("/categories", products.Categories)
		r.Get("/{id}", products.Get)
		r.Put("/{id}/stock", products.SetStock)
	})

	carts := NewCartHandler(d.Cart, d.Logger)
	r.Route("/api/cart", func(r chi.Router) {
		r.Get("/", carts.Get)
		r.Post("/", carts.Add)
		r.Delete("/", carts.Clear)
		r.Put("/{productId}", carts.Update)
		r.Delete("/{productId}", carts.Remove)
	})

	orders := NewOrderHandler(d.Orders, d.Cart, d.Logger)
	r.Post("/api/checkout", orders.Checkout)
	r.Route("/api/orders", func(r chi.Router) {
		r.Post("/", orders.Checkout)
		r.Get("/customer/{email}", orders.ListByCustomer)
		r.Get("/{id}", orders.Get)
		r.Put("/{id}/status", orders.UpdateStatus)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not Found - "+r.URL.Path)
	})
	return r
}

type healthHandler struct {
	checks map[string]HealthCheck
}

func (h *healthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			deps[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	writeJSON(w, status, map[string]any{
		"success":      status == http.StatusOK,
		"status":       state,
		"service":      "shop-service",
		"dependencies": deps,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	})
}
