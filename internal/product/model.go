package product

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound        = errors.New("product not found")
	ErrInvalidQuantity = errors.New("reservation quantity out of range")
)

// MaxQuantity is the largest stock or reservation quantity a products row can hold.
const MaxQuantity = math.MaxInt32

// MissingError names a product that vanished while stock was being reserved.
type MissingError struct {
	ID string
}

func (e *MissingError) Error() string {
	return "product not found: " + e.ID
}

func (e *MissingError) Is(target error) bool {
	return target == ErrNotFound
}

type Rating struct {
	Rate  float64 `json:"rate"`
	Count int     `json:"count"`
}

type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	Image       string          `json:"image"`
	Rating      Rating          `json:"rating"`
	Stock       int             `json:"stock"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Reservation asks for Quantity units of ProductID to be taken out of stock.
type Reservation struct {
	ProductID string
	Quantity  int
}

// ShortfallError is returned by ReserveStock when a product no longer has
// enough stock at decrement time.
type ShortfallError struct {
	ProductID string
	Available int
	Requested int
}

func (e *ShortfallError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: available %d, requested %d", e.ProductID, e.Available, e.Requested)
}

type ListQuery struct {
	Category string
	Search   string
	Page     int
	Limit    int
}

const (
	DefaultPageSize = 12
	MaxPageSize     = 100
)

// Normalize applies paging defaults and bounds.
func (q ListQuery) Normalize() ListQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = DefaultPageSize
	}
	if q.Limit > MaxPageSize {
		q.Limit = MaxPageSize
	}
	return q
}

func (q ListQuery) Offset() int {
	return (q.Page - 1) * q.Limit
}
