package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/andreasstove999/ecommerce-system/shop-service-go/internal/checkout"
	"github.com/andreasstove999/ecommerce-system/shop-service-go/internal/order"
)

const HeaderIdempotencyKey = "Idempotency-Key"

const maxIdempotencyKeyLen = 255

type OrderService interface {
	PlaceOrder(ctx context.Context, req checkout.PlaceOrderRequest) (checkout.Result, error)
	Order(ctx context.Context, id string) (*order.Order, error)
	CustomerOrders(ctx context.Context, email string, page order.Page) (checkout.CustomerOrders, error)
	UpdateStatus(ctx context.Context, id string, status string) (*order.Order, error)
}

// CartClearer empties a session cart after a successful checkout.
type CartClearer interface {
	Clear(ctx context.Context, sessionID string) error
}

type OrderHandler struct {
	orders OrderService
	carts  CartClearer
	logger *slog.Logger
}

func NewOrderHandler(orders OrderService, carts CartClearer, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, carts: carts, logger: logger}
}

type checkoutRequest struct {
	CartItems    []checkout.LineItem `json:"cartItems"`
	CustomerInfo order.Customer      `json:"customerInfo"`
}

func (h *OrderHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var body checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	key := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
	if len(key) > maxIdempotencyKeyLen {
		writeError(w, http.StatusBadRequest, "Idempotency-Key is too long")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := h.orders.PlaceOrder(ctx, checkout.PlaceOrderRequest{
		Items:          body.CartItems,
		Customer:       body.CustomerInfo,
		IdempotencyKey: key,
		CorrelationID:  GetCorrelationID(r.Context()),
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Error processing checkout")
		return
	}

	if sid := sessionID(r); sid != "" && h.carts != nil && !res.Replayed {
		if err := h.carts.Clear(ctx, sid); err != nil {
			h.logger.WarnContext(ctx, "clear cart after checkout", "session", sid, "orderId", res.Order.ID, "error", err)
		}
	}

	msg := "Order placed successfully"
	if res.Replayed {
		msg = "Order already placed"
	}
	writeData(w, http.StatusOK, msg, res)
}

func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.orders.Order(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Error fetching order")
		return
	}
	writeData(w, http.StatusOK, "", o)
}

func (h *OrderHandler) ListByCustomer(w http.ResponseWriter, r *http.Request) {
	page := order.Page{
		Page:  queryInt(r.URL.Query().Get("page")),
		Limit: queryInt(r.URL.Query().Get("limit")),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := h.orders.CustomerOrders(ctx, chi.URLParam(r, "email"), page)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Error fetching orders")
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true, Data: res.Orders, Pagination: res.Pagination})
}

func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.orders.UpdateStatus(ctx, chi.URLParam(r, "id"), body.Status)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Error updating order status")
		return
	}
	writeData(w, http.StatusOK, "Order status updated successfully", o)
}
