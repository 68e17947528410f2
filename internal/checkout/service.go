package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/andreasstove999/ecommerce-system/shop-service-go/internal/events"
	"github.com/andreasstove999/ecommerce-system/shop-service-go/internal/order"
	"github.com/andreasstove999/ecommerce-system/shop-service-go/internal/outbox"
	"github.com/andreasstove999/ecommerce-system/shop-service-go/internal/product"
)

type ProductStore interface {
	FindMany(ctx context.Context, ids []string) (map[string]product.Product, error)
	ReserveStock(ctx context.Context, reservations []product.Reservation) error
}

type OrderStore interface {
	Create(ctx context.Context, o *order.Order) error
	GetByIdempotencyKey(ctx context.Context, key string) (*order.Order, error)
	UpdateStatus(ctx context.Context, id string, status order.Status, at time.Time) (*order.Order, error)
}

type OrderReader interface {
	GetByID(ctx context.Context, id string) (*order.Order, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*order.Order, error)
	ListByCustomer(ctx context.Context, email string, page order.Page) ([]order.Order, int, error)
}

type OutboxStore interface {
	Enqueue(ctx context.Context, msg outbox.Message) error
}

type SequenceStore interface {
	NextSequence(ctx context.Context, partitionKey string) (int64, error)
}

// Repositories are bound to a single transaction.
type Repositories struct {
	Products  ProductStore
	Orders    OrderStore
	Outbox    OutboxStore
	Sequences SequenceStore
}

// Transactor runs fn in one database transaction. fn's error rolls the
// transaction back; a nil return commits it.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

// Observer receives the outcome of each checkout attempt.
type Observer interface {
	ObserveCheckout(outcome string, elapsed time.Duration)
}

const (
	OutcomeSuccess           = "success"
	OutcomeReplayed          = "replayed"
	OutcomeInvalid           = "invalid"
	OutcomeInsufficientStock = "insufficient_stock"
	OutcomeStorageError      = "storage_error"
	OutcomeCancelled         = "cancelled"
)

// MaxLineQuantity bounds the merged quantity of one product in a checkout.
const MaxLineQuantity = product.MaxQuantity

const (
	minNameLength = 2
	maxNameLength = 50
)

type LineItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type PlaceOrderRequest struct {
	Items          []LineItem
	Customer       order.Customer
	IdempotencyKey string
	CorrelationID  string
}

type Result struct {
	Order   *order.Order `json:"order"`
	Receipt Receipt      `json:"receipt"`
	// Replayed is set when the idempotency key matched an earlier order.
	Replayed bool `json:"-"`
}

type Pagination struct {
	CurrentPage int  `json:"currentPage"`
	TotalPages  int  `json:"totalPages"`
	TotalOrders int  `json:"totalOrders"`
	HasNext     bool `json:"hasNext"`
	HasPrev     bool `json:"hasPrev"`
}

type CustomerOrders struct {
	Orders     []order.Order `json:"orders"`
	Pagination Pagination    `json:"pagination"`
}

type Service struct {
	tx       Transactor
	orders   OrderReader
	ids      *order.IDGenerator
	logger   *slog.Logger
	observer Observer
	tracer   trace.Tracer
	now      func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithIDGenerator(g *order.IDGenerator) Option {
	return func(s *Service) { s.ids = g }
}

func NewService(tx Transactor, orders OrderReader, opts ...Option) *Service {
	s := &Service{
		tx:       tx,
		orders:   orders,
		logger:   slog.Default(),
		observer: nopObserver{},
		tracer:   otel.Tracer("shop-service/checkout"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.ids == nil {
		s.ids = order.NewIDGenerator(s.now)
	}
	return s
}

// PlaceOrder reserves stock for every line item and records the order in one
// transaction. Either every decrement and the order insert commit together or
// nothing changes.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (Result, error) {
	start := s.now()
	ctx, span := s.tracer.Start(ctx, "checkout.PlaceOrder", trace.WithAttributes(
		attribute.Int("checkout.line_items", len(req.Items)),
		attribute.Bool("checkout.idempotent", req.IdempotencyKey != ""),
	))
	defer span.End()

	res, err := s.placeOrder(ctx, req)

	outcome := outcomeOf(res, err)
	s.observer.ObserveCheckout(outcome, s.now().Sub(start))
	span.SetAttributes(attribute.String("checkout.outcome", outcome))
	if err != nil {
		span.RecordError(err)
		if outcome == OutcomeStorageError {
			span.SetStatus(codes.Error, err.Error())
		}
		return Result{}, err
	}
	span.SetAttributes(attribute.String("order.id", res.Order.ID))
	return res, nil
}

func (s *Service) placeOrder(ctx context.Context, req PlaceOrderRequest) (Result, error) {
	lines, err := mergeLineItems(req.Items)
	if err != nil {
		return Result{}, err
	}
	customer, err := normalizeCustomer(req.Customer)
	if err != nil {
		return Result{}, err
	}
	key := strings.TrimSpace(req.IdempotencyKey)

	var (
		placed   *order.Order
		replayed bool
	)
	err = s.tx.WithinTx(ctx, func(ctx context.Context, repos Repositories) error {
		if key != "" {
			existing, err := repos.Orders.GetByIdempotencyKey(ctx, key)
			switch {
			case err == nil:
				placed, replayed = existing, true
				return nil
			case !errors.Is(err, order.ErrNotFound):
				return s.storageError(ctx, "lookup idempotency key", err)
			}
		}

		ids := make([]string, len(lines))
		for i, ln := range lines {
			ids[i] = ln.ProductID
		}
		products, err := repos.Products.FindMany(ctx, ids)
		if err != nil {
			return s.storageError(ctx, "find products", err)
		}

		var missing []string
		for _, id := range ids {
			if _, ok := products[id]; !ok {
				missing = append(missing, id)
			}
		}
		if len(missing) > 0 {
			return &ProductNotFoundError{IDs: missing}
		}

		items := make([]order.Item, 0, len(lines))
		reservations := make([]product.Reservation, 0, len(lines))
		for _, ln := range lines {
			p := products[ln.ProductID]
			if ln.Quantity > p.Stock {
				return &InsufficientStockError{ProductID: p.ID, Name: p.Name, Available: p.Stock, Requested: ln.Quantity}
			}
			items = append(items, order.Item{ProductID: p.ID, Name: p.Name, Quantity: ln.Quantity, Price: p.Price})
			reservations = append(reservations, product.Reservation{ProductID: p.ID, Quantity: ln.Quantity})
		}

		if err := repos.Products.ReserveStock(ctx, reservations); err != nil {
			var (
				shortfall *product.ShortfallError
				missing   *product.MissingError
			)
			switch {
			case errors.As(err, &shortfall):
				return &InsufficientStockError{
					ProductID: shortfall.ProductID,
					Name:      products[shortfall.ProductID].Name,
					Available: shortfall.Available,
					Requested: shortfall.Requested,
				}
			case errors.As(err, &missing):
				return &ProductNotFoundError{IDs: []string{missing.ID}}
			case errors.Is(err, product.ErrInvalidQuantity):
				return fmt.Errorf("%w: %v", ErrOutOfRange, err)
			}
			return s.storageError(ctx, "reserve stock", err)
		}

		now := s.now().UTC()
		o := order.New(s.ids.NewID(), items, customer, now)
		o.IdempotencyKey = key
		if err := repos.Orders.Create(ctx, o); err != nil {
			switch {
			case errors.Is(err, order.ErrDuplicateIdempotencyKey):
				return err
			case errors.Is(err, order.ErrConstraint):
				return fmt.Errorf("%w: %v", ErrOutOfRange, err)
			}
			return s.storageError(ctx, "create order", err)
		}

		seq, err := repos.Sequences.NextSequence(ctx, o.ID)
		if err != nil {
			return s.storageError(ctx, "next event sequence", err)
		}
		env := events.BuildOrderPlacedEnvelope(o, seq, events.EnvelopeMetadata{CorrelationID: req.CorrelationID}, now)
		if err := enqueue(ctx, repos.Outbox, o.ID, events.OrderPlacedRoutingKey, env, now); err != nil {
			return s.storageError(ctx, "enqueue order placed", err)
		}

		placed = o
		return nil
	})

	switch {
	case err == nil:
	case errors.Is(err, order.ErrDuplicateIdempotencyKey):
		// A concurrent request with the same key committed first; our transaction,
		// reservation included, has been rolled back.
		winner, lookupErr := s.orders.GetByIdempotencyKey(ctx, key)
		if lookupErr != nil {
			return Result{}, s.storageError(ctx, "lookup idempotency key", lookupErr)
		}
		placed, replayed = winner, true
	case IsValidationError(err):
		s.logger.InfoContext(ctx, "checkout rejected", "error", err)
		return Result{}, err
	default:
		err = s.storageError(ctx, "place order", err)
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			s.logger.ErrorContext(ctx, "checkout failed", "error", err)
		}
		return Result{}, err
	}

	if replayed {
		s.logger.InfoContext(ctx, "checkout replayed", "orderId", placed.ID)
	} else {
		s.logger.InfoContext(ctx, "order placed", "orderId", placed.ID, "totalItems", placed.TotalItems, "totalAmount", placed.TotalAmount.StringFixed(2))
	}
	return Result{Order: placed, Receipt: NewReceipt(placed, s.now()), Replayed: replayed}, nil
}

// Order returns a single order by id.
func (s *Service) Order(ctx context.Context, id string) (*order.Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, s.storageError(ctx, "get order", err)
	}
	return o, nil
}

// CustomerOrders lists a customer's orders, newest first.
func (s *Service) CustomerOrders(ctx context.Context, email string, page order.Page) (CustomerOrders, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return CustomerOrders{}, &InvalidCustomerInfoError{Field: "email", Reason: "is required"}
	}
	page = page.Normalize()

	orders, total, err := s.orders.ListByCustomer(ctx, email, page)
	if err != nil {
		return CustomerOrders{}, s.storageError(ctx, "list orders", err)
	}

	return CustomerOrders{
		Orders: orders,
		Pagination: Pagination{
			CurrentPage: page.Page,
			TotalPages:  (total + page.Limit - 1) / page.Limit,
			TotalOrders: total,
			HasNext:     page.Page*page.Limit < total,
			HasPrev:     page.Page > 1,
		},
	}, nil
}

// UpdateStatus sets any valid status; there is no transition graph.
func (s *Service) UpdateStatus(ctx context.Context, id string, status string) (*order.Order, error) {
	st, err := order.ParseStatus(status)
	if err != nil {
		return nil, &InvalidStatusError{Status: status}
	}

	var updated *order.Order
	err = s.tx.WithinTx(ctx, func(ctx context.Context, repos Repositories) error {
		now := s.now().UTC()
		o, err := repos.Orders.UpdateStatus(ctx, id, st, now)
		if err != nil {
			if errors.Is(err, order.ErrNotFound) {
				return ErrOrderNotFound
			}
			return s.storageError(ctx, "update status", err)
		}

		seq, err := repos.Sequences.NextSequence(ctx, o.ID)
		if err != nil {
			return s.storageError(ctx, "next event sequence", err)
		}
		env := events.BuildOrderStatusChangedEnvelope(o, seq, events.EnvelopeMetadata{}, now)
		if err := enqueue(ctx, repos.Outbox, o.ID, events.OrderStatusChangedRoutingKey, env, now); err != nil {
			return s.storageError(ctx, "enqueue status changed", err)
		}

		updated = o
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, err
		}
		err = s.storageError(ctx, "update status", err)
		s.logger.ErrorContext(ctx, "update order status failed", "orderId", id, "error", err)
		return nil, err
	}

	s.logger.InfoContext(ctx, "order status updated", "orderId", id, "status", st)
	return updated, nil
}

// storageError returns the caller's context error when the context is done,
// otherwise err wrapped as *StorageUnavailableError (at most once).
func (s *Service) storageError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var se *StorageUnavailableError
	if errors.As(err, &se) {
		return se
	}
	return &StorageUnavailableError{Op: op, Err: err}
}

func enqueue(ctx context.Context, store OutboxStore, aggregateID, routingKey string, env any, now time.Time) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", routingKey, err)
	}
	return store.Enqueue(ctx, outbox.Message{
		AggregateID: aggregateID,
		RoutingKey:  routingKey,
		Payload:     body,
		ContentType: events.ContentTypeJSON,
		CreatedAt:   now,
	})
}

// mergeLineItems validates line items and folds repeated product ids into the
// first occurrence.
func mergeLineItems(items []LineItem) ([]LineItem, error) {
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}

	merged := make([]LineItem, 0, len(items))
	index := make(map[string]int, len(items))
	for i, it := range items {
		id := strings.TrimSpace(it.ProductID)
		if id == "" || it.Quantity < 1 {
			return nil, &InvalidLineItemError{Index: i, ProductID: id, Quantity: it.Quantity}
		}
		if it.Quantity > MaxLineQuantity {
			return nil, &InvalidLineItemError{Index: i, ProductID: id, Quantity: it.Quantity, Max: MaxLineQuantity}
		}
		if pos, ok := index[id]; ok {
			if merged[pos].Quantity > MaxLineQuantity-it.Quantity {
				return nil, &InvalidLineItemError{Index: i, ProductID: id, Quantity: it.Quantity, Max: MaxLineQuantity}
			}
			merged[pos].Quantity += it.Quantity
			continue
		}
		index[id] = len(merged)
		merged = append(merged, LineItem{ProductID: id, Quantity: it.Quantity})
	}
	return merged, nil
}

func normalizeCustomer(c order.Customer) (order.Customer, error) {
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	c.Name = strings.TrimSpace(c.Name)

	if c.Email == "" {
		return order.Customer{}, &InvalidCustomerInfoError{Field: "email", Reason: "is required"}
	}
	addr, err := mail.ParseAddress(c.Email)
	if err != nil || addr.Name != "" || addr.Address != c.Email || !hasDottedDomain(addr.Address) {
		return order.Customer{}, &InvalidCustomerInfoError{Field: "email", Reason: "must be a valid email address"}
	}
	if c.Name == "" {
		return order.Customer{}, &InvalidCustomerInfoError{Field: "name", Reason: "is required"}
	}
	if n := utf8.RuneCountInString(c.Name); n < minNameLength || n > maxNameLength {
		return order.Customer{}, &InvalidCustomerInfoError{Field: "name", Reason: fmt.Sprintf("must be between %d and %d characters", minNameLength, maxNameLength)}
	}
	return c, nil
}

func hasDottedDomain(address string) bool {
	domain := address[strings.LastIndex(address, "@")+1:]
	return strings.Contains(domain, ".") && !strings.HasPrefix(domain, ".") && !strings.HasSuffix(domain, ".")
}

func outcomeOf(res Result, err error) string {
	var stockErr *InsufficientStockError
	switch {
	case err == nil && res.Replayed:
		return OutcomeReplayed
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCancelled
	case errors.As(err, &stockErr):
		return OutcomeInsufficientStock
	case IsValidationError(err):
		return OutcomeInvalid
	default:
		return OutcomeStorageError
	}
}

type nopObserver struct{}

func (nopObserver) ObserveCheckout(string, time.Duration) {}
