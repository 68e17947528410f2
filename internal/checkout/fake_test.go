package checkout

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/andreasstove999/ecommerce-system/shop-service-go/internal/order"
	"github.com/andreasstove999/ecommerce-system/shop-service-go/internal/outbox"
	"github.com/andreasstove999/ecommerce-system/shop-service-go/internal/product"
)

// memDB is an in-memory Transactor. Stock decrements are conditional and applied
// immediately with an undo log, like row updates inside a database transaction;
// orders, outbox messages and sequences become visible on commit.
type memDB struct {
	mu       sync.Mutex
	products map[string]product.Product
	orders   map[string]*order.Order
	keys     map[string]string
	outbox   []outbox.Message
	seqs     map[string]int64

	failOn        map[string]error
	commitErr     error
	hideKeysInTx  bool
	afterFindMany func(db *memDB)
	beforeCommit  func()
}

func newMemDB(products ...product.Product) *memDB {
	db := &memDB{
		products: make(map[string]product.Product),
		orders:   make(map[string]*order.Order),
		keys:     make(map[string]string),
		seqs:     make(map[string]int64),
		failOn:   make(map[string]error),
	}
	for _, p := range products {
		db.products[p.ID] = p
	}
	return db
}

func (db *memDB) stock(id string) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.products[id].Stock
}

func (db *memDB) orderCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.orders)
}

func (db *memDB) fail(op string) error {
	return db.failOn[op]
}

func (db *memDB) WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error {
	if err := db.fail("Begin"); err != nil {
		return err
	}
	tx := &memTx{db: db, staged: make(map[string]*order.Order)}
	repos := Repositories{Products: tx, Orders: tx, Outbox: tx, Sequences: tx}

	if err := fn(ctx, repos); err != nil {
		tx.rollback()
		return err
	}
	if db.beforeCommit != nil {
		db.beforeCommit()
	}
	if err := ctx.Err(); err != nil {
		tx.rollback()
		return err
	}
	if db.commitErr != nil {
		tx.rollback()
		return db.commitErr
	}
	tx.commit()
	return nil
}

func (db *memDB) GetByID(ctx context.Context, id string) (*order.Order, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.fail("GetByID"); err != nil {
		return nil, err
	}
	o, ok := db.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (db *memDB) GetByIdempotencyKey(ctx context.Context, key string) (*order.Order, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	id, ok := db.keys[key]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *db.orders[id]
	return &cp, nil
}

func (db *memDB) ListByCustomer(ctx context.Context, email string, page order.Page) ([]order.Order, int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.fail("ListByCustomer"); err != nil {
		return nil, 0, err
	}

	var all []order.Order
	for _, o := range db.orders {
		if o.Customer.Email == email {
			all = append(all, *o)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})

	out := []order.Order{}
	for i := page.Offset(); i < len(all) && len(out) < page.Limit; i++ {
		out = append(out, all[i])
	}
	return out, len(all), nil
}

type memTx struct {
	db     *memDB
	undo   []func()
	staged map[string]*order.Order
	outbox []outbox.Message
}

func (tx *memTx) rollback() {
	tx.db.mu.Lock()
	defer tx.db.mu.Unlock()
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
}

func (tx *memTx) commit() {
	tx.db.mu.Lock()
	defer tx.db.mu.Unlock()
	for id, o := range tx.staged {
		tx.db.orders[id] = o
		if o.IdempotencyKey != "" {
			tx.db.keys[o.IdempotencyKey] = id
		}
	}
	tx.db.outbox = append(tx.db.outbox, tx.outbox...)
}

func (tx *memTx) FindMany(ctx context.Context, ids []string) (map[string]product.Product, error) {
	tx.db.mu.Lock()
	if err := tx.db.fail("FindMany"); err != nil {
		tx.db.mu.Unlock()
		return nil, err
	}
	out := make(map[string]product.Product, len(ids))
	for _, id := range ids {
		if p, ok := tx.db.products[id]; ok {
			out[id] = p
		}
	}
	tx.db.mu.Unlock()

	if tx.db.afterFindMany != nil {
		tx.db.mu.Lock()
		tx.db.afterFindMany(tx.db)
		tx.db.mu.Unlock()
	}
	return out, nil
}

func (tx *memTx) ReserveStock(ctx context.Context, reservations []product.Reservation) error {
	sorted := append([]product.Reservation(nil), reservations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })

	tx.db.mu.Lock()
	defer tx.db.mu.Unlock()
	if err := tx.db.fail("ReserveStock"); err != nil {
		return err
	}
	for _, r := range sorted {
		if r.Quantity < 1 || r.Quantity > product.MaxQuantity {
			return product.ErrInvalidQuantity
		}
		p, ok := tx.db.products[r.ProductID]
		if !ok {
			return &product.MissingError{ID: r.ProductID}
		}
		if p.Stock < r.Quantity {
			return &product.ShortfallError{ProductID: r.ProductID, Available: p.Stock, Requested: r.Quantity}
		}
		p.Stock -= r.Quantity
		tx.db.products[r.ProductID] = p

		id, q := r.ProductID, r.Quantity
		tx.undo = append(tx.undo, func() {
			restored := tx.db.products[id]
			restored.Stock += q
			tx.db.products[id] = restored
		})
	}
	return nil
}

func (tx *memTx) Create(ctx context.Context, o *order.Order) error {
	tx.db.mu.Lock()
	defer tx.db.mu.Unlock()
	if err := tx.db.fail("Create"); err != nil {
		return err
	}
	if o.IdempotencyKey != "" {
		if _, ok := tx.db.keys[o.IdempotencyKey]; ok {
			return order.ErrDuplicateIdempotencyKey
		}
	}
	if _, ok := tx.db.orders[o.ID]; ok {
		return errors.New("duplicate order id")
	}
	cp := *o
	tx.staged[o.ID] = &cp
	return nil
}

func (tx *memTx) GetByIdempotencyKey(ctx context.Context, key string) (*order.Order, error) {
	if tx.db.hideKeysInTx {
		return nil, order.ErrNotFound
	}
	return tx.db.GetByIdempotencyKey(ctx, key)
}

func (tx *memTx) UpdateStatus(ctx context.Context, id string, status order.Status, at time.Time) (*order.Order, error) {
	tx.db.mu.Lock()
	defer tx.db.mu.Unlock()
	o, ok := tx.db.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *o
	cp.Status, cp.UpdatedAt = status, at
	tx.staged[id] = &cp
	out := cp
	return &out, nil
}

func (tx *memTx) NextSequence(ctx context.Context, partitionKey string) (int64, error) {
	tx.db.mu.Lock()
	defer tx.db.mu.Unlock()
	tx.db.seqs[partitionKey]++
	tx.undo = append(tx.undo, func() { tx.db.seqs[partitionKey]-- })
	return tx.db.seqs[partitionKey], nil
}

func (tx *memTx) Enqueue(ctx context.Context, msg outbox.Message) error {
	tx.db.mu.Lock()
	defer tx.db.mu.Unlock()
	if err := tx.db.fail("Enqueue"); err != nil {
		return err
	}
	tx.outbox = append(tx.outbox, msg)
	return nil
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *recordingObserver) ObserveCheckout(outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}
