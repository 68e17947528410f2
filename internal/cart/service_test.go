package cart

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andreasstove999/ecommerce-system/shop-service-go/internal/logging"
	"github.com/andreasstove999/ecommerce-system/shop-service-go/internal/product"
)

type memStore struct {
	carts  map[string]map[string]Line
	putErr error
}

func newMemStore() *memStore {
	return &memStore{carts: make(map[string]map[string]Line)}
}

func (m *memStore) Lines(ctx context.Context, sessionID string) ([]Line, error) {
	out := []Line{}
	for _, ln := range m.carts[sessionID] {
		out = append(out, ln)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AddedAt.Equal(out[j].AddedAt) {
			return out[i].AddedAt.Before(out[j].AddedAt)
		}
		return out[i].ProductID < out[j].ProductID
	})
	return out, nil
}

func (m *memStore) Put(ctx context.Context, sessionID string, ln Line) error {
	if m.putErr != nil {
		return m.putErr
	}
	if m.carts[sessionID] == nil {
		m.carts[sessionID] = make(map[string]Line)
	}
	m.carts[sessionID][ln.ProductID] = ln
	return nil
}

func (m *memStore) Delete(ctx context.Context, sessionID, productID string) (bool, error) {
	if _, ok := m.carts[sessionID][productID]; !ok {
		return false, nil
	}
	delete(m.carts[sessionID], productID)
	return true, nil
}

func (m *memStore) Clear(ctx context.Context, sessionID string) error {
	delete(m.carts, sessionID)
	return nil
}

type fakeProducts map[string]product.Product

func (f fakeProducts) Get(ctx context.Context, id string) (product.Product, error) {
	p, ok := f[id]
	if !ok {
		return product.Product{}, product.ErrNotFound
	}
	return p, nil
}

func (f fakeProducts) FindMany(ctx context.Context, ids []string) (map[string]product.Product, error) {
	out := make(map[string]product.Product, len(ids))
	for _, id := range ids {
		if p, ok := f[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func catalog() fakeProducts {
	return fakeProducts{
		"p1": {ID: "p1", Name: "Mouse", Image: "mouse.png", Price: decimal.RequireFromString("10.99"), Stock: 5},
		"p2": {ID: "p2", Name: "Pad", Price: decimal.RequireFromString("4.50"), Stock: 200},
	}
}

func newTestService(store Store, products ProductLookup) *Service {
	svc := NewService(store, products, logging.Discard())
	tick := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
	return svc
}

func TestNewSessionID(t *testing.T) {
	a, b := NewSessionID(), NewSessionID()
	assert.Regexp(t, `^session_[0-9a-f-]{36}$`, a)
	assert.NotEqual(t, a, b)
}

func TestServiceGet(t *testing.T) {
	t.Run("missing cart is empty", func(t *testing.T) {
		svc := newTestService(newMemStore(), catalog())

		c, err := svc.Get(context.Background(), "s1")
		require.NoError(t, err)
		assert.Equal(t, "s1", c.SessionID)
		assert.NotNil(t, c.Items)
		assert.Empty(t, c.Items)
		assert.Zero(t, c.TotalItems)
		assert.True(t, c.TotalAmount.IsZero())
	})

	t.Run("session required", func(t *testing.T) {
		svc := newTestService(newMemStore(), catalog())

		_, err := svc.Get(context.Background(), " ")
		require.ErrorIs(t, err, ErrSessionRequired)
	})

	t.Run("lines for removed products are skipped", func(t *testing.T) {
		store := newMemStore()
		products := catalog()
		svc := newTestService(store, products)
		ctx := context.Background()

		_, err := svc.Add(ctx, "s1", "p1", 1)
		require.NoError(t, err)
		_, err = svc.Add(ctx, "s1", "p2", 2)
		require.NoError(t, err)
		delete(products, "p1")

		c, err := svc.Get(ctx, "s1")
		require.NoError(t, err)
		require.Len(t, c.Items, 1)
		assert.Equal(t, "p2", c.Items[0].ProductID)
		assert.Equal(t, 2, c.TotalItems)
		assert.True(t, c.TotalAmount.Equal(decimal.RequireFromString("9.00")))
	})
}

func TestServiceAdd(t *testing.T) {
	tests := map[string]struct {
		existing  int
		productID string
		quantity  int
		wantQty   int
		wantErr   error
		wantMsg   string
	}{
		"new line": {
			productID: "p1", quantity: 2, wantQty: 2,
		},
		"accumulates existing line": {
			existing: 2, productID: "p1", quantity: 3, wantQty: 5,
		},
		"zero quantity": {
			productID: "p1", quantity: 0,
			wantMsg: "quantity must be between 1 and 100, got 0",
		},
		"above max quantity": {
			productID: "p2", quantity: 101,
			wantMsg: "quantity must be between 1 and 100, got 101",
		},
		"cumulative above max quantity": {
			existing: 60, productID: "p2", quantity: 50,
			wantMsg: "quantity must be between 1 and 100, got 110",
		},
		"more than stock": {
			productID: "p1", quantity: 6,
			wantMsg: "Only 5 items available in stock",
		},
		"cumulative more than stock": {
			existing: 4, productID: "p1", quantity: 2,
			wantMsg: "Cannot add 2 more items. Only 1 available",
		},
		"unknown product": {
			productID: "nope", quantity: 1,
			wantErr: ErrProductNotFound,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			store := newMemStore()
			svc := newTestService(store, catalog())
			ctx := context.Background()
			if tc.existing > 0 {
				_, err := svc.Add(ctx, "s1", tc.productID, tc.existing)
				require.NoError(t, err)
			}

			c, err := svc.Add(ctx, "s1", tc.productID, tc.quantity)
			switch {
			case tc.wantErr != nil:
				require.ErrorIs(t, err, tc.wantErr)
				return
			case tc.wantMsg != "":
				require.EqualError(t, err, tc.wantMsg)
				return
			}
			require.NoError(t, err)
			require.Len(t, c.Items, 1)
			assert.Equal(t, tc.wantQty, c.Items[0].Quantity)
			assert.Equal(t, tc.wantQty, c.TotalItems)
		})
	}
}

func TestServiceAddCapturesPriceAndEnriches(t *testing.T) {
	products := catalog()
	svc := newTestService(newMemStore(), products)
	ctx := context.Background()

	_, err := svc.Add(ctx, "s1", "p1", 2)
	require.NoError(t, err)

	changed := products["p1"]
	changed.Price = decimal.RequireFromString("12.00")
	changed.Stock = 3
	products["p1"] = changed

	c, err := svc.Get(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	item := c.Items[0]
	assert.Equal(t, "Mouse", item.Name)
	assert.Equal(t, "mouse.png", item.Image)
	assert.Equal(t, 3, item.Stock)
	assert.True(t, item.Price.Equal(decimal.RequireFromString("10.99")))
	assert.True(t, item.LineTotal.Equal(decimal.RequireFromString("21.98")))
	assert.True(t, c.TotalAmount.Equal(decimal.RequireFromString("21.98")))
}

func TestServiceAddKeepsLineOrder(t *testing.T) {
	svc := newTestService(newMemStore(), catalog())
	ctx := context.Background()

	_, err := svc.Add(ctx, "s1", "p2", 1)
	require.NoError(t, err)
	_, err = svc.Add(ctx, "s1", "p1", 1)
	require.NoError(t, err)
	c, err := svc.Add(ctx, "s1", "p2", 1)
	require.NoError(t, err)

	require.Len(t, c.Items, 2)
	assert.Equal(t, "p2", c.Items[0].ProductID)
	assert.Equal(t, "p1", c.Items[1].ProductID)
	assert.Equal(t, 3, c.TotalItems)
}

func TestServiceAddStoreError(t *testing.T) {
	store := newMemStore()
	store.putErr = errors.New("redis down")
	svc := newTestService(store, catalog())

	_, err := svc.Add(context.Background(), "s1", "p1", 1)
	require.EqualError(t, err, "redis down")
}

func TestServiceUpdate(t *testing.T) {
	tests := map[string]struct {
		seed      bool
		productID string
		quantity  int
		wantQty   int
		wantErr   error
		wantMsg   string
	}{
		"sets quantity": {
			seed: true, productID: "p1", quantity: 4, wantQty: 4,
		},
		"missing cart": {
			productID: "p1", quantity: 1, wantErr: ErrCartNotFound,
		},
		"missing item": {
			seed: true, productID: "p2", quantity: 1, wantErr: ErrItemNotFound,
		},
		"more than stock": {
			seed: true, productID: "p1", quantity: 9,
			wantMsg: "Only 5 items available in stock",
		},
		"invalid quantity": {
			seed: true, productID: "p1", quantity: 0,
			wantMsg: "quantity must be between 1 and 100, got 0",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			svc := newTestService(newMemStore(), catalog())
			ctx := context.Background()
			if tc.seed {
				_, err := svc.Add(ctx, "s1", "p1", 1)
				require.NoError(t, err)
			}

			c, err := svc.Update(ctx, "s1", tc.productID, tc.quantity)
			switch {
			case tc.wantErr != nil:
				require.ErrorIs(t, err, tc.wantErr)
				return
			case tc.wantMsg != "":
				require.EqualError(t, err, tc.wantMsg)
				return
			}
			require.NoError(t, err)
			require.Len(t, c.Items, 1)
			assert.Equal(t, tc.wantQty, c.Items[0].Quantity)
		})
	}
}

func TestServiceRemoveAndClear(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, catalog())
	ctx := context.Background()

	_, err := svc.Remove(ctx, "s1", "p1")
	require.ErrorIs(t, err, ErrCartNotFound)

	_, err = svc.Add(ctx, "s1", "p1", 1)
	require.NoError(t, err)
	_, err = svc.Add(ctx, "s1", "p2", 1)
	require.NoError(t, err)

	c, err := svc.Remove(ctx, "s1", "p1")
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.Equal(t, "p2", c.Items[0].ProductID)

	require.NoError(t, svc.Clear(ctx, "s1"))
	c, err = svc.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, c.Items)

	require.ErrorIs(t, svc.Clear(ctx, ""), ErrSessionRequired)
}
