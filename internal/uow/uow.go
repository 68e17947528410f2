package uow

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/andreasstove999/ecommerce-system/shop-service-go/internal/checkout"
	"github.com/andreasstove999/ecommerce-system/shop-service-go/internal/order"
	"github.com/andreasstove999/ecommerce-system/shop-service-go/internal/outbox"
	"github.com/andreasstove999/ecommerce-system/shop-service-go/internal/product"
	"github.com/andreasstove999/ecommerce-system/shop-service-go/internal/sequence"
)

// TxBeginner is satisfied by *pgxpool.Pool.
type TxBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// Postgres runs checkout work inside one pgx transaction. Repositories handed
// to fn are bound to that transaction.
type Postgres struct {
	db TxBeginner
}

func NewPostgres(db TxBeginner) *Postgres {
	return &Postgres{db: db}
}

func (u *Postgres) WithinTx(ctx context.Context, fn func(ctx context.Context, repos checkout.Repositories) error) (err error) {
	tx, err := u.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
			}
		}
	}()

	repos := checkout.Repositories{
		Products:  product.NewPostgresRepository(tx),
		Orders:    order.NewPostgresRepository(tx),
		Outbox:    outbox.NewRepository(tx),
		Sequences: sequence.NewRepository(tx),
	}

	if err = fn(ctx, repos); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
