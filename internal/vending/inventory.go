package vending

import (
	"fmt"
	"sort"
	"sync"

	"vendsim/internal/models"
)

// Inventory owns the physical count of each accepted denomination. Every
// mutation keeps all counts non-negative. A provisional Debit is reversed
// in full with Restore when the operation it was made for fails.
type Inventory struct {
	mu     sync.RWMutex
	counts map[models.Denomination]int
}

// NewInventory builds an inventory holding initialCount units of each
// accepted denomination.
func NewInventory(denominations []models.Denomination, initialCount int) *Inventory {
	if initialCount < 0 {
		initialCount = 0
	}
	counts := make(map[models.Denomination]int, len(denominations))
	for _, d := range denominations {
		counts[d] = initialCount
	}
	return &Inventory{counts: counts}
}

// Accepts reports whether d is one of the accepted denominations.
func (inv *Inventory) Accepts(d models.Denomination) bool {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	_, ok := inv.counts[d]
	return ok
}

// Add receives one inserted unit of d.
func (inv *Inventory) Add(d models.Denomination) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if _, ok := inv.counts[d]; !ok {
		return newError(CodeUnknownDenomination, KindValidation, "denomination %d not accepted", d)
	}
	inv.counts[d]++
	return nil
}

// Remove returns one unit of d to the customer, flooring at zero.
func (inv *Inventory) Remove(d models.Denomination) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if inv.counts[d] > 0 {
		inv.counts[d]--
	}
}

// Adjust applies an administrative delta to d and returns the new count.
// The count floors at zero.
func (inv *Inventory) Adjust(d models.Denomination, delta int) (int, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	current, ok := inv.counts[d]
	if !ok {
		return 0, newError(CodeUnknownDenomination, KindValidation, "denomination %d not accepted", d)
	}
	next := current + delta
	if next < 0 {
		next = 0
	}
	inv.counts[d] = next
	return next, nil
}

// Debit removes the units of a feasible change plan. It fails without
// partial effect if any denomination is short.
func (inv *Inventory) Debit(breakdown models.ChangeBreakdown) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	for d, n := range breakdown.Units {
		if inv.counts[d] < n {
			return fmt.Errorf("inventory: debit of %d x %d exceeds count %d", n, d, inv.counts[d])
		}
	}
	for d, n := range breakdown.Units {
		inv.counts[d] -= n
	}
	return nil
}

// Restore reverses a prior Debit of the same plan exactly.
func (inv *Inventory) Restore(breakdown models.ChangeBreakdown) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	for d, n := range breakdown.Units {
		inv.counts[d] += n
	}
}

// Snapshot returns a copy of the current counts.
func (inv *Inventory) Snapshot() map[models.Denomination]int {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	out := make(map[models.Denomination]int, len(inv.counts))
	for d, n := range inv.counts {
		out[d] = n
	}
	return out
}

// Denominations returns the accepted set in descending value order.
func (inv *Inventory) Denominations() []models.Denomination {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	out := make([]models.Denomination, 0, len(inv.counts))
	for d := range inv.counts {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] > out[j] })
	return out
}

// Total returns the value held across all denominations.
func (inv *Inventory) Total() int64 {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	var total int64
	for d, n := range inv.counts {
		total += int64(d) * int64(n)
	}
	return total
}
