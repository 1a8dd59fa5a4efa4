package vending

import (
	"sync"

	"vendsim/internal/models"
)

// Catalog holds the sellable products. Display collaborators read it; only
// the machine decrements stock, the administrative boundary overrides it.
type Catalog struct {
	mu       sync.RWMutex
	products map[string]*models.Product
	order    []string
}

// NewCatalog seeds a catalog from the given products.
func NewCatalog(products []models.Product) *Catalog {
	c := &Catalog{products: make(map[string]*models.Product, len(products))}
	for i := range products {
		p := products[i]
		if _, ok := c.products[p.ID]; ok {
			continue
		}
		c.products[p.ID] = &p
		c.order = append(c.order, p.ID)
	}
	return c
}

// Get returns a copy of the product.
func (c *Catalog) Get(id string) (models.Product, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.products[id]
	if !ok {
		return models.Product{}, false
	}
	return *p, true
}

// List returns products in seed order.
func (c *Catalog) List() []models.Product {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.Product, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, *c.products[id])
	}
	return out
}

// DecrementStock takes one unit off the shelf, flooring at zero.
func (c *Catalog) DecrementStock(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.products[id]; ok && p.Stock > 0 {
		p.Stock--
	}
}

// SetStock applies an administrative stock override.
func (c *Catalog) SetStock(id string, level int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[id]
	if !ok {
		return newError(CodeProductNotFound, KindValidation, "product %q not found", id)
	}
	if level < 0 {
		level = 0
	}
	p.Stock = level
	return nil
}

// MinPriceInStock returns the lowest price among products with stock, or
// zero when nothing is sellable.
func (c *Catalog) MinPriceInStock() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var min int64
	for _, p := range c.products {
		if p.Stock <= 0 {
			continue
		}
		if min == 0 || p.Price < min {
			min = p.Price
		}
	}
	return min
}
