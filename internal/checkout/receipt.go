package checkout

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/andreasstove999/ecommerce-system/shop-service-go/internal/order"
)

const (
	MockPaymentMethod   = "Mock Payment (No Real Payment Processed)"
	MockShippingAddress = "Mock Address (No Real Shipping)"
	DeliveryLeadTime    = 7 * 24 * time.Hour
)

var TaxRate = decimal.RequireFromString("0.08")

// Receipt is derived from an order on demand and never stored.
type Receipt struct {
	OrderID           string          `json:"orderId"`
	Timestamp         time.Time       `json:"timestamp"`
	Customer          order.Customer  `json:"customerInfo"`
	Items             []order.Item    `json:"items"`
	Subtotal          decimal.Decimal `json:"subtotal"`
	Tax               decimal.Decimal `json:"tax"`
	Total             decimal.Decimal `json:"total"`
	TotalItems        int             `json:"totalItems"`
	Status            order.Status    `json:"status"`
	PaymentMethod     string          `json:"paymentMethod"`
	ShippingAddress   string          `json:"shippingAddress"`
	EstimatedDelivery time.Time       `json:"estimatedDelivery"`
}

// NewReceipt computes tax and total from o.TotalAmount. Amounts are non-negative,
// so decimal's half-away-from-zero rounding is half-up here.
func NewReceipt(o *order.Order, now time.Time) Receipt {
	subtotal := o.TotalAmount
	return Receipt{
		OrderID:           o.ID,
		Timestamp:         o.CreatedAt,
		Customer:          o.Customer,
		Items:             o.Items,
		Subtotal:          subtotal,
		Tax:               subtotal.Mul(TaxRate).Round(2),
		Total:             subtotal.Mul(decimal.NewFromInt(1).Add(TaxRate)).Round(2),
		TotalItems:        o.TotalItems,
		Status:            o.Status,
		PaymentMethod:     MockPaymentMethod,
		ShippingAddress:   MockShippingAddress,
		EstimatedDelivery: now.Add(DeliveryLeadTime),
	}
}
