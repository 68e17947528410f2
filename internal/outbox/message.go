package outbox

import "time"

// Message is an event waiting in the outbox table to be relayed to the broker.
type Message struct {
	ID          int64
	AggregateID string
	RoutingKey  string
	Payload     []byte
	ContentType string
	RetryCount  int
	LastError   string
	NextRetryAt time.Time
	CreatedAt   time.Time
}
