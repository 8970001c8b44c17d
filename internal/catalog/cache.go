package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	pkgerrors "github.com/angelmondragon/holopos/pkg/errors"
	"github.com/angelmondragon/holopos/pkg/logger"
)

// Source fetches the raw product listing from the backend.
type Source interface {
	FetchProducts(ctx context.Context) ([]byte, error)
}

type snapshotStore interface {
	Read(ctx context.Context) ([]byte, error)
	Update(ctx context.Context, fn func(current []byte) ([]byte, error)) error
}

// Cache keeps the last good catalog in memory and mirrors the raw listing to a
// durable snapshot so a restarted till can keep pricing while offline.
type Cache struct {
	source Source
	store  snapshotStore
	logg   *logger.Logger

	mu          sync.RWMutex
	products    map[int64]Product
	order       []int64
	byBarcode   map[string]int64
	refreshedAt time.Time
}

// NewCache wires a catalog cache. store may be nil for a memory-only cache.
func NewCache(source Source, store snapshotStore, logg *logger.Logger) (*Cache, error) {
	if source == nil {
		return nil, fmt.Errorf("catalog source required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Cache{
		source:    source,
		store:     store,
		logg:      logg,
		products:  map[int64]Product{},
		byBarcode: map[string]int64{},
	}, nil
}

// Load primes the cache from the durable snapshot. A missing snapshot leaves
// the catalog empty.
func (c *Cache) Load(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	raw, err := c.store.Read(ctx)
	if err != nil {
		return fmt.Errorf("reading catalog snapshot: %w", err)
	}
	if len(raw) == 0 {
		return nil
	}
	products, err := ParseProducts(raw)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeStorageCorruption, err, "catalog snapshot unreadable")
	}
	c.swap(products, time.Time{})
	c.logg.Info(c.logg.WithField(ctx, "products", len(products)), "catalog loaded from snapshot")
	return nil
}

// Refresh pulls the listing from the backend and replaces the cache. A
// malformed listing keeps the previous catalog in place.
func (c *Cache) Refresh(ctx context.Context) (int, error) {
	raw, err := c.source.FetchProducts(ctx)
	if err != nil {
		return 0, err
	}
	products, err := ParseProducts(raw)
	if err != nil {
		return 0, err
	}

	if c.store != nil {
		persistErr := c.store.Update(ctx, func([]byte) ([]byte, error) {
			return raw, nil
		})
		if persistErr != nil {
			c.logg.Error(ctx, "failed to persist catalog snapshot", persistErr)
		}
	}

	c.swap(products, time.Now().UTC())
	c.logg.Info(c.logg.WithField(ctx, "products", len(products)), "catalog refreshed")
	return len(products), nil
}

func (c *Cache) swap(products []Product, refreshedAt time.Time) {
	byID := make(map[int64]Product, len(products))
	order := make([]int64, 0, len(products))
	byBarcode := make(map[string]int64, len(products))
	for _, p := range products {
		if _, dup := byID[p.ID]; !dup {
			order = append(order, p.ID)
		}
		byID[p.ID] = p
		if p.Barcode != "" {
			byBarcode[p.Barcode] = p.ID
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.products = byID
	c.order = order
	c.byBarcode = byBarcode
	c.refreshedAt = refreshedAt
}

// Get returns the product with id.
func (c *Cache) Get(id int64) (Product, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.products[id]
	return p, ok
}

// FindByBarcode resolves a scanned barcode.
func (c *Cache) FindByBarcode(barcode string) (Product, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.byBarcode[barcode]
	if !ok {
		return Product{}, false
	}
	p, ok := c.products[id]
	return p, ok
}

// All returns the products in listing order.
func (c *Cache) All() []Product {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Product, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.products[id])
	}
	return out
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.products)
}

// RefreshedAt is the time of the last successful backend refresh, zero when
// the catalog came from the snapshot only.
func (c *Cache) RefreshedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.refreshedAt
}
