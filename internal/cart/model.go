package cart

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	MinQuantity = 1
	MaxQuantity = 100
)

var (
	ErrSessionRequired = errors.New("session id required")
	ErrCartNotFound    = errors.New("cart not found")
	ErrItemNotFound    = errors.New("item not found in cart")
	ErrProductNotFound = errors.New("product not found")
)

type InvalidQuantityError struct {
	Quantity int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be between %d and %d, got %d", MinQuantity, MaxQuantity, e.Quantity)
}

// StockLimitError is returned when the cart would hold more units than are in stock.
type StockLimitError struct {
	ProductID string
	Available int
	InCart    int
	Requested int
}

func (e *StockLimitError) Error() string {
	if e.InCart > 0 {
		return fmt.Sprintf("Cannot add %d more items. Only %d available", e.Requested, max(e.Available-e.InCart, 0))
	}
	return fmt.Sprintf("Only %d items available in stock", e.Available)
}

// Line is what the store keeps per product.
type Line struct {
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	AddedAt   time.Time       `json:"addedAt"`
}

type Item struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Image     string          `json:"image"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Stock     int             `json:"stock"`
	LineTotal decimal.Decimal `json:"lineTotal"`
}

type Cart struct {
	SessionID   string          `json:"sessionId"`
	Items       []Item          `json:"items"`
	TotalItems  int             `json:"totalItems"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
}
