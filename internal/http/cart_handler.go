package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/andreasstove999/ecommerce-system/shop-service-go/internal/cart"
)

const HeaderSessionID = "X-Session-Id"

type CartService interface {
	Get(ctx context.Context, sessionID string) (*cart.Cart, error)
	Add(ctx context.Context, sessionID, productID string, quantity int) (*cart.Cart, error)
	Update(ctx context.Context, sessionID, productID string, quantity int) (*cart.Cart, error)
	Remove(ctx context.Context, sessionID, productID string) (*cart.Cart, error)
	Clear(ctx context.Context, sessionID string) error
}

type CartHandler struct {
	carts  CartService
	logger *slog.Logger
}

func NewCartHandler(carts CartService, logger *slog.Logger) *CartHandler {
	return &CartHandler{carts: carts, logger: logger}
}

func sessionID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(HeaderSessionID))
}

func (h *CartHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	c, err := h.carts.Get(ctx, sessionID(r))
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Error fetching cart")
		return
	}
	writeData(w, http.StatusOK, "", c)
}

// Add starts a new session when the caller has none; the id comes back in the
// X-Session-Id header and in the body.
func (h *CartHandler) Add(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ProductID string `json:"productId"`
		Quantity  int    `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(body.ProductID) == "" {
		writeError(w, http.StatusBadRequest, "Invalid product ID")
		return
	}

	sid := sessionID(r)
	if sid == "" {
		sid = cart.NewSessionID()
	}
	w.Header().Set(HeaderSessionID, sid)

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	c, err := h.carts.Add(ctx, sid, body.ProductID, body.Quantity)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Error adding item to cart")
		return
	}
	writeData(w, http.StatusOK, "Item added to cart", c)
}

func (h *CartHandler) Update(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	c, err := h.carts.Update(ctx, sessionID(r), chi.URLParam(r, "productId"), body.Quantity)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Error updating cart")
		return
	}
	writeData(w, http.StatusOK, "Cart updated", c)
}

func (h *CartHandler) Remove(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	c, err := h.carts.Remove(ctx, sessionID(r), chi.URLParam(r, "productId"))
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Error removing item from cart")
		return
	}
	writeData(w, http.StatusOK, "Item removed from cart", c)
}

func (h *CartHandler) Clear(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.carts.Clear(ctx, sessionID(r)); err != nil {
		writeServiceError(w, r, h.logger, err, "Error clearing cart")
		return
	}
	writeData(w, http.StatusOK, "Cart cleared", nil)
}
