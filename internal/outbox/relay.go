package outbox

import (
	"context"
	"log/slog"
	"time"
)

type Store interface {
	Pending(ctx context.Context, now time.Time, limit int) ([]Message, error)
	Delete(ctx context.Context, id int64) error
	UpdateRetry(ctx context.Context, id int64, retryCount int, lastError string, nextRetryAt time.Time) error
}

type Publisher interface {
	Publish(ctx context.Context, routingKey, contentType string, body []byte) error
}

const (
	baseBackoff = 30 * time.Second
	maxBackoff  = time.Hour
)

// Relay polls the outbox and publishes due messages. Delivery is at least once.
type Relay struct {
	store        Store
	publisher    Publisher
	logger       *slog.Logger
	pollInterval time.Duration
	batchSize    int
	now          func() time.Time
	observe      func(ok bool)
}

func NewRelay(store Store, publisher Publisher, logger *slog.Logger, pollInterval time.Duration, batchSize int) *Relay {
	return &Relay{
		store:        store,
		publisher:    publisher,
		logger:       logger,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		now:          time.Now,
		observe:      func(bool) {},
	}
}

// OnPublish registers a callback that is told whether each publish attempt succeeded.
func (r *Relay) OnPublish(fn func(ok bool)) *Relay {
	r.observe = fn
	return r
}

// Run blocks until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	r.logger.Info("outbox relay started", "poll_interval", r.pollInterval, "batch_size", r.batchSize)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopped")
			return nil
		case <-ticker.C:
			r.ProcessBatch(ctx)
		}
	}
}

// ProcessBatch publishes one batch of due messages and returns how many were delivered.
func (r *Relay) ProcessBatch(ctx context.Context) int {
	messages, err := r.store.Pending(ctx, r.now(), r.batchSize)
	if err != nil {
		r.logger.Error("load pending outbox messages", "error", err)
		return 0
	}

	delivered := 0
	for _, msg := range messages {
		if ctx.Err() != nil {
			return delivered
		}

		err := r.publisher.Publish(ctx, msg.RoutingKey, msg.ContentType, msg.Payload)
		r.observe(err == nil)
		if err != nil {
			retries := msg.RetryCount + 1
			next := r.now().Add(Backoff(retries))

			r.logger.Warn("publish outbox message failed, will retry",
				"outbox_id", msg.ID,
				"aggregate_id", msg.AggregateID,
				"retry_count", retries,
				"next_retry", next,
				"error", err,
			)

			if err := r.store.UpdateRetry(ctx, msg.ID, retries, err.Error(), next); err != nil {
				r.logger.Error("update outbox retry", "outbox_id", msg.ID, "error", err)
			}
			continue
		}

		if err := r.store.Delete(ctx, msg.ID); err != nil {
			r.logger.Error("delete published outbox message", "outbox_id", msg.ID, "error", err)
			continue
		}
		delivered++
		r.logger.Debug("outbox message published", "outbox_id", msg.ID, "routing_key", msg.RoutingKey)
	}
	return delivered
}

// Backoff returns the wait before retry number n: 60s, 120s, 240s, ... capped at one hour.
func Backoff(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	if n > 10 {
		return maxBackoff
	}
	d := baseBackoff << n
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}
