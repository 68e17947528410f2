package product

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/andreasstove999/ecommerce-system/shop-service-go/internal/db"
)

// DBTX matches the methods shared by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

type Repository interface {
	Get(ctx context.Context, id string) (Product, error)
	List(ctx context.Context, q ListQuery) ([]Product, int, error)
	Categories(ctx context.Context) ([]string, error)
	FindMany(ctx context.Context, ids []string) (map[string]Product, error)
	ReserveStock(ctx context.Context, reservations []Reservation) error
	Create(ctx context.Context, p *Product) error
	SetStock(ctx context.Context, id string, stock int) error
}

var columns = []string{
	"id", "name", "description", "price", "category", "image",
	"rating_rate", "rating_count", "stock", "created_at", "updated_at",
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type PostgresRepository struct {
	db DBTX
}

func NewPostgresRepository(db DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(row scanner) (Product, error) {
	var p Product
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.Price, &p.Category, &p.Image,
		&p.Rating.Rate, &p.Rating.Count, &p.Stock, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (Product, error) {
	query, args, err := psql.Select(columns...).From("products").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return Product{}, fmt.Errorf("build select product: %w", err)
	}

	p, err := scanProduct(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("select product: %w", err)
	}
	return p, nil
}

// List returns one page of products, newest first, and the total number of matches.
// Category and Search are case-insensitive substring filters; Search matches name or description.
func (r *PostgresRepository) List(ctx context.Context, q ListQuery) ([]Product, int, error) {
	q = q.Normalize()

	var filters sq.And
	if q.Category != "" {
		filters = append(filters, sq.ILike{"category": likePattern(q.Category)})
	}
	if q.Search != "" {
		pattern := likePattern(q.Search)
		filters = append(filters, sq.Or{
			sq.ILike{"name": pattern},
			sq.ILike{"description": pattern},
		})
	}

	countQ := psql.Select("count(*)").From("products")
	listQ := psql.Select(columns...).From("products").
		OrderBy("created_at DESC", "id").
		Limit(uint64(q.Limit)).
		Offset(uint64(q.Offset()))
	if len(filters) > 0 {
		countQ = countQ.Where(filters)
		listQ = listQ.Where(filters)
	}

	query, args, err := countQ.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count products: %w", err)
	}
	var total int
	if err := r.db.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	query, args, err = listQ.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list products: %w", err)
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := make([]Product, 0, q.Limit)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows: %w", err)
	}
	return products, total, nil
}

func (r *PostgresRepository) Categories(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT category FROM products ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("select categories: %w", err)
	}
	defer rows.Close()

	categories := []string{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return categories, nil
}

// FindMany loads the products with the given ids. Unknown ids are absent from the result.
func (r *PostgresRepository) FindMany(ctx context.Context, ids []string) (map[string]Product, error) {
	found := make(map[string]Product, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	query, args, err := psql.Select(columns...).From("products").Where("id = ANY(?)", ids).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build find products: %w", err)
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		found[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return found, nil
}

// ReserveStock decrements stock for every reservation, each guarded by
// stock >= quantity at decrement time. Rows are touched in product id order so
// concurrent reservations lock in the same order.
//
// It must run on a transaction: on *ShortfallError the earlier decrements of the
// batch are still applied and only a rollback discards them.
func (r *PostgresRepository) ReserveStock(ctx context.Context, reservations []Reservation) error {
	merged, err := mergeReservations(reservations)
	if err != nil {
		return err
	}
	for _, res := range merged {
		tag, err := r.db.Exec(ctx, `
			UPDATE products
			SET stock = stock - $2, updated_at = now()
			WHERE id = $1 AND stock >= $2
		`, res.ProductID, res.Quantity)
		if err != nil {
			if db.IsCheckViolation(err) {
				return fmt.Errorf("%w: product %s", ErrInvalidQuantity, res.ProductID)
			}
			return fmt.Errorf("reserve product %s: %w", res.ProductID, err)
		}
		if tag.RowsAffected() == 1 {
			continue
		}

		var available int
		err = r.db.QueryRow(ctx, `SELECT stock FROM products WHERE id = $1`, res.ProductID).Scan(&available)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return &MissingError{ID: res.ProductID}
			}
			return fmt.Errorf("reload stock %s: %w", res.ProductID, err)
		}
		return &ShortfallError{ProductID: res.ProductID, Available: available, Requested: res.Quantity}
	}
	return nil
}

func (r *PostgresRepository) Create(ctx context.Context, p *Product) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}

	query, args, err := psql.Insert("products").
		Columns("id", "name", "description", "price", "category", "image", "rating_rate", "rating_count", "stock").
		Values(p.ID, p.Name, p.Description, p.Price, p.Category, p.Image, p.Rating.Rate, p.Rating.Count, p.Stock).
		Suffix("RETURNING created_at, updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert product: %w", err)
	}
	if err := r.db.QueryRow(ctx, query, args...).Scan(&p.CreatedAt, &p.UpdatedAt); err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (r *PostgresRepository) SetStock(ctx context.Context, id string, stock int) error {
	tag, err := r.db.Exec(ctx, `UPDATE products SET stock = $2, updated_at = now() WHERE id = $1`, id, stock)
	if err != nil {
		return fmt.Errorf("set stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// mergeReservations sums quantities per product and sorts by product id. Every
// quantity and every per-product sum must lie in 1..MaxQuantity.
func mergeReservations(in []Reservation) ([]Reservation, error) {
	totals := make(map[string]int, len(in))
	for _, res := range in {
		if res.Quantity < 1 || res.Quantity > MaxQuantity-totals[res.ProductID] {
			return nil, fmt.Errorf("%w: product %s", ErrInvalidQuantity, res.ProductID)
		}
		totals[res.ProductID] += res.Quantity
	}
	out := make([]Reservation, 0, len(totals))
	for id, qty := range totals {
		out = append(out, Reservation{ProductID: id, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePattern(s string) string {
	return "%" + likeEscaper.Replace(strings.TrimSpace(s)) + "%"
}
