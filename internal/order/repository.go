package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/andreasstove999/ecommerce-system/shop-service-go/internal/db"
)

const idempotencyKeyConstraint = "orders_idempotency_key_key"

// DBTX matches the methods shared by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*Order, error)
	ListByCustomer(ctx context.Context, email string, page Page) ([]Order, int, error)
	UpdateStatus(ctx context.Context, id string, status Status, at time.Time) (*Order, error)
}

var orderColumns = []string{
	"id", "idempotency_key", "status", "customer_email", "customer_name",
	"total_amount", "total_items", "created_at", "updated_at",
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type PostgresRepository struct {
	db DBTX
}

func NewPostgresRepository(db DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts the order and its items. Call it on a transaction so a failing
// item insert does not leave a headless order behind.
func (r *PostgresRepository) Create(ctx context.Context, o *Order) error {
	if o.ID == "" {
		return errors.New("order id is required")
	}

	query, args, err := psql.Insert("orders").
		Columns(orderColumns...).
		Values(o.ID, nullable(o.IdempotencyKey), o.Status, o.Customer.Email, o.Customer.Name,
			o.TotalAmount, o.TotalItems, o.CreatedAt, o.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert order: %w", err)
	}
	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		if db.IsUniqueViolation(err, idempotencyKeyConstraint) {
			return ErrDuplicateIdempotencyKey
		}
		if db.IsCheckViolation(err) {
			return fmt.Errorf("%w: %v", ErrConstraint, err)
		}
		return fmt.Errorf("insert order: %w", err)
	}

	if len(o.Items) == 0 {
		return nil
	}

	items := psql.Insert("order_items").Columns("order_id", "position", "product_id", "name", "quantity", "price")
	for i, it := range o.Items {
		items = items.Values(o.ID, i, it.ProductID, it.Name, it.Quantity, it.Price)
	}
	query, args, err = items.ToSql()
	if err != nil {
		return fmt.Errorf("build insert order_items: %w", err)
	}
	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		if db.IsCheckViolation(err) {
			return fmt.Errorf("%w: %v", ErrConstraint, err)
		}
		return fmt.Errorf("insert order_items: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Order, error) {
	return r.getOne(ctx, sq.Eq{"id": id})
}

func (r *PostgresRepository) GetByIdempotencyKey(ctx context.Context, key string) (*Order, error) {
	if key == "" {
		return nil, ErrNotFound
	}
	return r.getOne(ctx, sq.Eq{"idempotency_key": key})
}

func (r *PostgresRepository) getOne(ctx context.Context, where sq.Eq) (*Order, error) {
	query, args, err := psql.Select(orderColumns...).From("orders").Where(where).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select order: %w", err)
	}

	o, err := scanOrder(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select order: %w", err)
	}

	items, err := r.loadItems(ctx, []string{o.ID})
	if err != nil {
		return nil, err
	}
	o.Items = items[o.ID]
	return &o, nil
}

// ListByCustomer returns a page of the customer's orders, newest first, plus the total count.
func (r *PostgresRepository) ListByCustomer(ctx context.Context, email string, page Page) ([]Order, int, error) {
	page = page.Normalize()

	var total int
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM orders WHERE customer_email = $1`, email).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	query, args, err := psql.Select(orderColumns...).From("orders").
		Where(sq.Eq{"customer_email": email}).
		OrderBy("created_at DESC", "id").
		Limit(uint64(page.Limit)).
		Offset(uint64(page.Offset())).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list orders: %w", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	orders := []Order{}
	ids := []string{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows: %w", err)
	}
	rows.Close()

	if len(orders) == 0 {
		return orders, total, nil
	}

	items, err := r.loadItems(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}
	return orders, total, nil
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, status Status, at time.Time) (*Order, error) {
	query, args, err := psql.Update("orders").
		Set("status", status).
		Set("updated_at", at).
		Where(sq.Eq{"id": id}).
		Suffix("RETURNING " + strings.Join(orderColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build update status: %w", err)
	}

	o, err := scanOrder(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update status: %w", err)
	}

	items, err := r.loadItems(ctx, []string{o.ID})
	if err != nil {
		return nil, err
	}
	o.Items = items[o.ID]
	return &o, nil
}

func (r *PostgresRepository) loadItems(ctx context.Context, orderIDs []string) (map[string][]Item, error) {
	rows, err := r.db.Query(ctx, `
		SELECT order_id, product_id, name, quantity, price
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position
	`, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("select order_items: %w", err)
	}
	defer rows.Close()

	items := make(map[string][]Item, len(orderIDs))
	for rows.Next() {
		var orderID string
		var it Item
		if err := rows.Scan(&orderID, &it.ProductID, &it.Name, &it.Quantity, &it.Price); err != nil {
			return nil, fmt.Errorf("scan order_item: %w", err)
		}
		items[orderID] = append(items[orderID], it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return items, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (Order, error) {
	var (
		o   Order
		key *string
	)
	err := row.Scan(&o.ID, &key, &o.Status, &o.Customer.Email, &o.Customer.Name,
		&o.TotalAmount, &o.TotalItems, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return Order{}, err
	}
	if key != nil {
		o.IdempotencyKey = *key
	}
	return o, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
