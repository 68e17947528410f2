package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/andreasstove999/ecommerce-system/shop-service-go/internal/cart"
	"github.com/andreasstove999/ecommerce-system/shop-service-go/internal/checkout"
	"github.com/andreasstove999/ecommerce-system/shop-service-go/internal/order"
	"github.com/andreasstove999/ecommerce-system/shop-service-go/internal/product"
)

type stockConflict struct {
	ProductID string `json:"productId"`
	Available int    `json:"available"`
	Requested int    `json:"requested"`
}

// writeServiceError maps domain errors to status codes. Anything unrecognised
// is logged and reported as fallback with a 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error, fallback string) {
	var (
		stockErr    *checkout.InsufficientStockError
		statusErr   *checkout.InvalidStatusError
		storageErr  *checkout.StorageUnavailableError
		quantityErr *cart.InvalidQuantityError
		limitErr    *cart.StockLimitError
	)

	switch {
	case errors.As(err, &stockErr):
		logger.InfoContext(r.Context(), "checkout rejected", "productId", stockErr.ProductID,
			"available", stockErr.Available, "requested", stockErr.Requested)
		writeJSON(w, http.StatusBadRequest, response{
			Message: stockErr.Error(),
			Data:    stockConflict{ProductID: stockErr.ProductID, Available: stockErr.Available, Requested: stockErr.Requested},
		})
	case errors.As(err, &statusErr):
		writeError(w, http.StatusBadRequest, "Invalid status. Must be one of: "+statusList())
	case checkout.IsValidationError(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, checkout.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, "Order not found")

	case errors.Is(err, cart.ErrSessionRequired):
		writeError(w, http.StatusBadRequest, "Session ID required")
	case errors.As(err, &quantityErr):
		writeError(w, http.StatusBadRequest, "Quantity must be between 1 and 100")
	case errors.As(err, &limitErr):
		writeError(w, http.StatusBadRequest, limitErr.Error())
	case errors.Is(err, cart.ErrCartNotFound):
		writeError(w, http.StatusNotFound, "Cart not found")
	case errors.Is(err, cart.ErrItemNotFound):
		writeError(w, http.StatusNotFound, "Item not found in cart")
	case errors.Is(err, cart.ErrProductNotFound), errors.Is(err, product.ErrNotFound):
		writeError(w, http.StatusNotFound, "Product not found")

	case errors.As(err, &storageErr),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		logger.ErrorContext(r.Context(), "storage unavailable", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusServiceUnavailable, "Service temporarily unavailable, please retry")
	default:
		logger.ErrorContext(r.Context(), fallback, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func statusList() string {
	names := make([]string, len(order.Statuses))
	for i, s := range order.Statuses {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}
