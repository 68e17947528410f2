package order

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

var itemColumns = []string{"order_id", "product_id", "name", "quantity", "price"}

func orderRow(rows *pgxmock.Rows, o *Order) *pgxmock.Rows {
	return rows.AddRow(o.ID, nil, o.Status, o.Customer.Email, o.Customer.Name,
		o.TotalAmount, o.TotalItems, o.CreatedAt, o.UpdatedAt)
}

func sampleOrder(id string) *Order {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return New(id, []Item{
		{ProductID: "p1", Name: "Mouse", Quantity: 2, Price: decimal.RequireFromString("10.99")},
		{ProductID: "p2", Name: "Pad", Quantity: 1, Price: decimal.RequireFromString("4.50")},
	}, Customer{Email: "ada@example.com", Name: "Ada"}, at)
}

func TestPostgresRepository_Create(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresRepository(mock)
	o := sampleOrder("ORD-1")
	o.IdempotencyKey = "key-1"

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO orders (id,idempotency_key,status,customer_email,customer_name,total_amount,total_items,created_at,updated_at)")).
		WithArgs("ORD-1", "key-1", StatusPending, "ada@example.com", "Ada", pgxmock.AnyArg(), 3, o.CreatedAt, o.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO order_items (order_id,position,product_id,name,quantity,price) VALUES ($1,$2,$3,$4,$5,$6),($7,$8,$9,$10,$11,$12)")).
		WithArgs("ORD-1", 0, "p1", "Mouse", 2, pgxmock.AnyArg(), "ORD-1", 1, "p2", "Pad", 1, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))

	require.NoError(t, repo.Create(context.Background(), o))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_CreateDuplicateKey(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresRepository(mock)
	o := sampleOrder("ORD-2")
	o.IdempotencyKey = "key-1"

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO orders")).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "orders_idempotency_key_key"})

	err := repo.Create(context.Background(), o)
	require.ErrorIs(t, err, ErrDuplicateIdempotencyKey)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_CreateCheckViolation(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresRepository(mock)
	o := sampleOrder("ORD-3")

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO orders")).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO order_items")).
		WillReturnError(&pgconn.PgError{Code: "23514", ConstraintName: "order_items_quantity_check"})

	err := repo.Create(context.Background(), o)
	require.ErrorIs(t, err, ErrConstraint)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_CreateRequiresID(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresRepository(mock)

	require.Error(t, repo.Create(context.Background(), &Order{}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_GetByID(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresRepository(mock)
	want := sampleOrder("ORD-1")

	mock.ExpectQuery(regexp.QuoteMeta("FROM orders WHERE id = $1")).
		WithArgs("ORD-1").
		WillReturnRows(orderRow(pgxmock.NewRows(orderColumns), want))
	mock.ExpectQuery(regexp.QuoteMeta("FROM order_items WHERE order_id = ANY($1)")).
		WithArgs([]string{"ORD-1"}).
		WillReturnRows(pgxmock.NewRows(itemColumns).
			AddRow("ORD-1", "p1", "Mouse", 2, decimal.RequireFromString("10.99")).
			AddRow("ORD-1", "p2", "Pad", 1, decimal.RequireFromString("4.50")))

	got, err := repo.GetByID(context.Background(), "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, "ORD-1", got.ID)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, "", got.IdempotencyKey)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "p1", got.Items[0].ProductID)
	assert.True(t, got.TotalAmount.Equal(decimal.RequireFromString("26.48")))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_GetByIDMissing(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresRepository(mock)

	mock.ExpectQuery(regexp.QuoteMeta("FROM orders WHERE id = $1")).
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresRepository_GetByIdempotencyKeyEmpty(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresRepository(mock)

	_, err := repo.GetByIdempotencyKey(context.Background(), "")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_ListByCustomer(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresRepository(mock)
	a, b := sampleOrder("ORD-B"), sampleOrder("ORD-A")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM orders WHERE customer_email = $1")).
		WithArgs("ada@example.com").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(7))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE customer_email = $1 ORDER BY created_at DESC, id LIMIT 5 OFFSET 5")).
		WithArgs("ada@example.com").
		WillReturnRows(orderRow(orderRow(pgxmock.NewRows(orderColumns), a), b))
	mock.ExpectQuery(regexp.QuoteMeta("FROM order_items")).
		WithArgs([]string{"ORD-B", "ORD-A"}).
		WillReturnRows(pgxmock.NewRows(itemColumns).
			AddRow("ORD-A", "p1", "Mouse", 2, decimal.RequireFromString("10.99")).
			AddRow("ORD-B", "p2", "Pad", 1, decimal.RequireFromString("4.50")))

	orders, total, err := repo.ListByCustomer(context.Background(), "ada@example.com", Page{Page: 2, Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, 7, total)
	require.Len(t, orders, 2)
	assert.Equal(t, "ORD-B", orders[0].ID)
	require.Len(t, orders[0].Items, 1)
	assert.Equal(t, "p2", orders[0].Items[0].ProductID)
	assert.Equal(t, "p1", orders[1].Items[0].ProductID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_ListByCustomerEmpty(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresRepository(mock)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM orders")).
		WithArgs("nobody@example.com").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(regexp.QuoteMeta("LIMIT 10 OFFSET 0")).
		WithArgs("nobody@example.com").
		WillReturnRows(pgxmock.NewRows(orderColumns))

	orders, total, err := repo.ListByCustomer(context.Background(), "nobody@example.com", Page{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.NotNil(t, orders)
	assert.Empty(t, orders)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_UpdateStatus(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresRepository(mock)
	o := sampleOrder("ORD-1")
	at := o.CreatedAt.Add(time.Hour)
	o.Status, o.UpdatedAt = StatusShipped, at

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3 RETURNING id, idempotency_key")).
		WithArgs(StatusShipped, at, "ORD-1").
		WillReturnRows(orderRow(pgxmock.NewRows(orderColumns), o))
	mock.ExpectQuery(regexp.QuoteMeta("FROM order_items")).
		WithArgs([]string{"ORD-1"}).
		WillReturnRows(pgxmock.NewRows(itemColumns))

	got, err := repo.UpdateStatus(context.Background(), "ORD-1", StatusShipped, at)
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, got.Status)
	assert.Equal(t, at, got.UpdatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_UpdateStatusMissing(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresRepository(mock)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE orders")).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.UpdateStatus(context.Background(), "nope", StatusCancelled, time.Now())
	require.ErrorIs(t, err, ErrNotFound)
}
