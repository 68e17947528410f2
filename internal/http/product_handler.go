package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/andreasstove999/ecommerce-system/shop-service-go/internal/product"
)

type ProductCatalog interface {
	List(ctx context.Context, q product.ListQuery) ([]product.Product, int, error)
	Get(ctx context.Context, id string) (product.Product, error)
	Categories(ctx context.Context) ([]string, error)
	Create(ctx context.Context, p *product.Product) error
	SetStock(ctx context.Context, id string, stock int) error
}

type ProductHandler struct {
	catalog ProductCatalog
	logger  *slog.Logger
}

func NewProductHandler(catalog ProductCatalog, logger *slog.Logger) *ProductHandler {
	return &ProductHandler{catalog: catalog, logger: logger}
}

func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	qs := r.URL.Query()
	q := product.ListQuery{
		Category: strings.TrimSpace(qs.Get("category")),
		Search:   strings.TrimSpace(qs.Get("search")),
		Page:     queryInt(qs.Get("page")),
		Limit:    queryInt(qs.Get("limit")),
	}.Normalize()

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	products, total, err := h.catalog.List(ctx, q)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Error fetching products")
		return
	}

	writeJSON(w, http.StatusOK, response{
		Success: true,
		Data:    products,
		Pagination: pagination{
			CurrentPage:   q.Page,
			TotalPages:    (total + q.Limit - 1) / q.Limit,
			TotalProducts: total,
			HasNext:       q.Page*q.Limit < total,
			HasPrev:       q.Page > 1,
		},
	})
}

func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	p, err := h.catalog.Get(ctx, id)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Error fetching product")
		return
	}
	writeData(w, http.StatusOK, "", p)
}

func (h *ProductHandler) Categories(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	categories, err := h.catalog.Categories(ctx)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Error fetching categories")
		return
	}
	writeData(w, http.StatusOK, "", categories)
}

type createProductRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	Image       string          `json:"image"`
	Rating      product.Rating  `json:"rating"`
	Stock       int             `json:"stock"`
}

func (req createProductRequest) validate() string {
	switch {
	case strings.TrimSpace(req.Name) == "":
		return "Product name is required"
	case len(req.Name) > 100:
		return "Product name cannot exceed 100 characters"
	case req.Price.IsNegative():
		return "Price must be a positive number"
	case len(req.Description) > 1500:
		return "Description cannot exceed 1500 characters"
	case strings.TrimSpace(req.Category) == "":
		return "Category is required"
	case len(req.Category) > 50:
		return "Category cannot exceed 50 characters"
	case req.Stock < 0:
		return "Stock must be a non-negative integer"
	}
	return ""
}

func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	p := &product.Product{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Price:       req.Price,
		Category:    strings.TrimSpace(req.Category),
		Image:       req.Image,
		Rating:      req.Rating,
		Stock:       req.Stock,
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.catalog.Create(ctx, p); err != nil {
		writeServiceError(w, r, h.logger, err, "Error creating product")
		return
	}
	writeData(w, http.StatusCreated, "Product created", p)
}

func (h *ProductHandler) SetStock(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body struct {
		Stock *int `json:"stock"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if body.Stock == nil || *body.Stock < 0 {
		writeError(w, http.StatusBadRequest, "Stock must be a non-negative integer")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.catalog.SetStock(ctx, id, *body.Stock); err != nil {
		writeServiceError(w, r, h.logger, err, "Error updating stock")
		return
	}
	p, err := h.catalog.Get(ctx, id)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Error fetching product")
		return
	}
	writeData(w, http.StatusOK, "Stock updated", p)
}

// queryInt returns 0 for missing or malformed values so Normalize applies defaults.
func queryInt(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
