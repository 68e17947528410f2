package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/andreasstove999/ecommerce-system/shop-service-go/internal/order"
)

const (
	OrderPlacedEventName    = "OrderPlaced"
	OrderPlacedEventVersion = 1
	orderPlacedSchema       = "contracts/events/order/OrderPlaced.v1.payload.schema.json"
)

type OrderPlacedItem struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type OrderPlacedPayload struct {
	OrderID       string            `json:"orderId"`
	CustomerEmail string            `json:"customerEmail"`
	CustomerName  string            `json:"customerName"`
	Items         []OrderPlacedItem `json:"items"`
	TotalAmount   decimal.Decimal   `json:"totalAmount"`
	TotalItems    int               `json:"totalItems"`
	Timestamp     time.Time         `json:"timestamp"`
}

type OrderPlacedEnvelope = EventEnvelope[OrderPlacedPayload]

// BuildOrderPlacedEnvelope wraps a freshly placed order. The order id is the partition key.
func BuildOrderPlacedEnvelope(o *order.Order, seq int64, meta EnvelopeMetadata, occurredAt time.Time) OrderPlacedEnvelope {
	if meta.CorrelationID == "" {
		meta.CorrelationID = uuid.NewString()
	}

	items := make([]OrderPlacedItem, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, OrderPlacedItem{
			ProductID: it.ProductID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			Price:     it.Price,
		})
	}

	return OrderPlacedEnvelope{
		EventName:     OrderPlacedEventName,
		EventVersion:  OrderPlacedEventVersion,
		EventID:       uuid.NewString(),
		CorrelationID: meta.CorrelationID,
		CausationID:   meta.CausationID,
		Producer:      producerName,
		PartitionKey:  o.ID,
		Sequence:      &seq,
		OccurredAt:    occurredAt.UTC(),
		Schema:        orderPlacedSchema,
		Payload: OrderPlacedPayload{
			OrderID:       o.ID,
			CustomerEmail: o.Customer.Email,
			CustomerName:  o.Customer.Name,
			Items:         items,
			TotalAmount:   o.TotalAmount,
			TotalItems:    o.TotalItems,
			Timestamp:     o.CreatedAt,
		},
	}
}
