package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/andreasstove999/ecommerce-system/shop-service-go/internal/product"
)

type Store interface {
	Lines(ctx context.Context, sessionID string) ([]Line, error)
	Put(ctx context.Context, sessionID string, ln Line) error
	Delete(ctx context.Context, sessionID, productID string) (bool, error)
	Clear(ctx context.Context, sessionID string) error
}

type ProductLookup interface {
	Get(ctx context.Context, id string) (product.Product, error)
	FindMany(ctx context.Context, ids []string) (map[string]product.Product, error)
}

type Service struct {
	store    Store
	products ProductLookup
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(store Store, products ProductLookup, logger *slog.Logger) *Service {
	return &Service{store: store, products: products, logger: logger, now: time.Now}
}

// NewSessionID returns an id for a visitor who has no cart yet.
func NewSessionID() string {
	return "session_" + uuid.NewString()
}

func (s *Service) Get(ctx context.Context, sessionID string) (*Cart, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrSessionRequired
	}
	lines, err := s.store.Lines(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, sessionID, lines)
}

// Add puts quantity more units of productID into the cart. The cumulative
// quantity may not exceed the product's stock or MaxQuantity.
func (s *Service) Add(ctx context.Context, sessionID, productID string, quantity int) (*Cart, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrSessionRequired
	}
	if quantity < MinQuantity || quantity > MaxQuantity {
		return nil, &InvalidQuantityError{Quantity: quantity}
	}

	p, err := s.product(ctx, productID)
	if err != nil {
		return nil, err
	}
	if p.Stock < quantity {
		return nil, &StockLimitError{ProductID: p.ID, Available: p.Stock, Requested: quantity}
	}

	lines, err := s.store.Lines(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	ln := Line{ProductID: p.ID, Quantity: quantity, Price: p.Price, AddedAt: s.now().UTC()}
	if existing, ok := findLine(lines, p.ID); ok {
		total := existing.Quantity + quantity
		if total > p.Stock {
			return nil, &StockLimitError{ProductID: p.ID, Available: p.Stock, InCart: existing.Quantity, Requested: quantity}
		}
		if total > MaxQuantity {
			return nil, &InvalidQuantityError{Quantity: total}
		}
		ln.Quantity = total
		ln.AddedAt = existing.AddedAt
	}

	if err := s.store.Put(ctx, sessionID, ln); err != nil {
		return nil, err
	}
	s.logger.DebugContext(ctx, "cart item added", "session", sessionID, "productId", p.ID, "quantity", ln.Quantity)
	return s.Get(ctx, sessionID)
}

// Update sets the quantity of a product already in the cart.
func (s *Service) Update(ctx context.Context, sessionID, productID string, quantity int) (*Cart, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrSessionRequired
	}
	if quantity < MinQuantity || quantity > MaxQuantity {
		return nil, &InvalidQuantityError{Quantity: quantity}
	}

	lines, err := s.store.Lines(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, ErrCartNotFound
	}
	existing, ok := findLine(lines, productID)
	if !ok {
		return nil, ErrItemNotFound
	}

	p, err := s.product(ctx, productID)
	if err != nil {
		return nil, err
	}
	if quantity > p.Stock {
		return nil, &StockLimitError{ProductID: p.ID, Available: p.Stock, Requested: quantity}
	}

	existing.Quantity = quantity
	if err := s.store.Put(ctx, sessionID, existing); err != nil {
		return nil, err
	}
	return s.Get(ctx, sessionID)
}

func (s *Service) Remove(ctx context.Context, sessionID, productID string) (*Cart, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrSessionRequired
	}
	lines, err := s.store.Lines(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, ErrCartNotFound
	}
	if _, err := s.store.Delete(ctx, sessionID, productID); err != nil {
		return nil, err
	}
	return s.Get(ctx, sessionID)
}

func (s *Service) Clear(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrSessionRequired
	}
	return s.store.Clear(ctx, sessionID)
}

func (s *Service) product(ctx context.Context, id string) (product.Product, error) {
	p, err := s.products.Get(ctx, id)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return product.Product{}, ErrProductNotFound
		}
		return product.Product{}, fmt.Errorf("load product: %w", err)
	}
	return p, nil
}

// view joins stored lines with current catalog data. Lines whose product has
// since been removed are left out.
func (s *Service) view(ctx context.Context, sessionID string, lines []Line) (*Cart, error) {
	c := &Cart{SessionID: sessionID, Items: []Item{}, TotalAmount: decimal.Zero}
	if len(lines) == 0 {
		return c, nil
	}

	ids := make([]string, len(lines))
	for i, ln := range lines {
		ids[i] = ln.ProductID
	}
	products, err := s.products.FindMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load cart products: %w", err)
	}

	for _, ln := range lines {
		p, ok := products[ln.ProductID]
		if !ok {
			s.logger.WarnContext(ctx, "cart references missing product", "session", sessionID, "productId", ln.ProductID)
			continue
		}
		lineTotal := ln.Price.Mul(decimal.NewFromInt(int64(ln.Quantity)))
		c.Items = append(c.Items, Item{
			ProductID: ln.ProductID,
			Name:      p.Name,
			Image:     p.Image,
			Price:     ln.Price,
			Quantity:  ln.Quantity,
			Stock:     p.Stock,
			LineTotal: lineTotal,
		})
		c.TotalItems += ln.Quantity
		c.TotalAmount = c.TotalAmount.Add(lineTotal)
	}
	return c, nil
}

func findLine(lines []Line, productID string) (Line, bool) {
	for _, ln := range lines {
		if ln.ProductID == productID {
			return ln, true
		}
	}
	return Line{}, false
}
