package order

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound                = errors.New("order not found")
	ErrDuplicateIdempotencyKey = errors.New("order with this idempotency key already exists")
	ErrConstraint              = errors.New("order violates a table constraint")
)

type Item struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// LineTotal is Price × Quantity.
func (it Item) LineTotal() decimal.Decimal {
	return it.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

type Customer struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type Order struct {
	ID             string          `json:"orderId"`
	Items          []Item          `json:"items"`
	TotalAmount    decimal.Decimal `json:"totalAmount"`
	TotalItems     int             `json:"totalItems"`
	Status         Status          `json:"status"`
	Customer       Customer        `json:"customerInfo"`
	IdempotencyKey string          `json:"-"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// New builds a pending order. Totals are always derived from items.
func New(id string, items []Item, customer Customer, now time.Time) *Order {
	o := &Order{
		ID:        id,
		Items:     append([]Item(nil), items...),
		Status:    StatusPending,
		Customer:  customer,
		CreatedAt: now,
		UpdatedAt: now,
	}
	o.TotalAmount, o.TotalItems = Totals(o.Items)
	return o
}

// Totals returns Σ price×quantity and Σ quantity.
func Totals(items []Item) (decimal.Decimal, int) {
	amount := decimal.Zero
	count := 0
	for _, it := range items {
		amount = amount.Add(it.LineTotal())
		count += it.Quantity
	}
	return amount, count
}

type Page struct {
	Page  int
	Limit int
}

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = DefaultPageSize
	}
	if p.Limit > MaxPageSize {
		p.Limit = MaxPageSize
	}
	return p
}

func (p Page) Offset() int {
	return (p.Page - 1) * p.Limit
}
