package outbox

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX matches the methods shared by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var messageColumns = []string{
	"id", "aggregate_id", "routing_key", "payload", "content_type",
	"retry_count", "last_error", "next_retry_at", "created_at",
}

type Repository struct {
	db DBTX
}

func NewRepository(db DBTX) *Repository {
	return &Repository{db: db}
}

// Enqueue stores a message. Call it on the transaction that changes the aggregate.
func (r *Repository) Enqueue(ctx context.Context, msg Message) error {
	query, args, err := psql.Insert("outbox").
		Columns("aggregate_id", "routing_key", "payload", "content_type", "next_retry_at", "created_at").
		Values(msg.AggregateID, msg.RoutingKey, msg.Payload, msg.ContentType, msg.CreatedAt, msg.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert outbox: %w", err)
	}

	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert outbox message: %w", err)
	}
	return nil
}

// Pending returns up to limit messages due at or before now, oldest first.
func (r *Repository) Pending(ctx context.Context, now time.Time, limit int) ([]Message, error) {
	query, args, err := psql.Select(messageColumns...).
		From("outbox").
		Where(sq.LtOrEq{"next_retry_at": now}).
		OrderBy("next_retry_at ASC", "id ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select outbox: %w", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query outbox messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(
			&msg.ID,
			&msg.AggregateID,
			&msg.RoutingKey,
			&msg.Payload,
			&msg.ContentType,
			&msg.RetryCount,
			&msg.LastError,
			&msg.NextRetryAt,
			&msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan outbox message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox messages: %w", err)
	}
	return messages, nil
}

// Delete removes a message after successful delivery.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	query, args, err := psql.Delete("outbox").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete outbox: %w", err)
	}
	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("delete outbox message: %w", err)
	}
	return nil
}

func (r *Repository) UpdateRetry(ctx context.Context, id int64, retryCount int, lastError string, nextRetryAt time.Time) error {
	query, args, err := psql.Update("outbox").
		Set("retry_count", retryCount).
		Set("last_error", lastError).
		Set("next_retry_at", nextRetryAt).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update outbox: %w", err)
	}
	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("update outbox message: %w", err)
	}
	return nil
}
