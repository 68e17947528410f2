package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/andreasstove999/ecommerce-system/shop-service-go/internal/order"
)

const (
	OrderStatusChangedEventName    = "OrderStatusChanged"
	OrderStatusChangedEventVersion = 1
	orderStatusChangedSchema       = "contracts/events/order/OrderStatusChanged.v1.payload.schema.json"
)

type OrderStatusChangedPayload struct {
	OrderID   string       `json:"orderId"`
	Status    order.Status `json:"status"`
	Timestamp time.Time    `json:"timestamp"`
}

type OrderStatusChangedEnvelope = EventEnvelope[OrderStatusChangedPayload]

func BuildOrderStatusChangedEnvelope(o *order.Order, seq int64, meta EnvelopeMetadata, occurredAt time.Time) OrderStatusChangedEnvelope {
	if meta.CorrelationID == "" {
		meta.CorrelationID = uuid.NewString()
	}

	return OrderStatusChangedEnvelope{
		EventName:     OrderStatusChangedEventName,
		EventVersion:  OrderStatusChangedEventVersion,
		EventID:       uuid.NewString(),
		CorrelationID: meta.CorrelationID,
		CausationID:   meta.CausationID,
		Producer:      producerName,
		PartitionKey:  o.ID,
		Sequence:      &seq,
		OccurredAt:    occurredAt.UTC(),
		Schema:        orderStatusChangedSchema,
		Payload: OrderStatusChangedPayload{
			OrderID:   o.ID,
			Status:    o.Status,
			Timestamp: o.UpdatedAt,
		},
	}
}
