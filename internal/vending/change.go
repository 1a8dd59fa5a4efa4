package vending

import (
	"sort"

	"vendsim/internal/models"
)

// ComputeChange plans a disbursement of amount from the given denomination
// counts. The pass is greedy largest-first: each denomination contributes
// min(remaining/value, available) units. Feasible means the pass reached
// exactly zero; an infeasible result carries no partial plan. The input map
// is never mutated; callers own the commit/rollback decision.
func ComputeChange(amount int64, available map[models.Denomination]int) models.ChangeBreakdown {
	breakdown := models.ChangeBreakdown{
		TotalAmount: amount,
		Units:       make(map[models.Denomination]int),
	}
	if amount < 0 {
		return breakdown
	}
	if amount == 0 {
		breakdown.Feasible = true
		return breakdown
	}

	denominations := make([]models.Denomination, 0, len(available))
	for d := range available {
		denominations = append(denominations, d)
	}
	sort.Slice(denominations, func(i, j int) bool { return denominations[i] > denominations[j] })

	remaining := amount
	for _, d := range denominations {
		if remaining <= 0 {
			break
		}
		value := int64(d)
		if value <= 0 {
			continue
		}
		units := remaining / value
		if avail := int64(available[d]); units > avail {
			units = avail
		}
		if units == 0 {
			continue
		}
		breakdown.Units[d] = int(units)
		remaining -= units * value
	}

	if remaining != 0 {
		// No partial change is ever issued.
		breakdown.Units = make(map[models.Denomination]int)
		return breakdown
	}
	breakdown.Feasible = true
	return breakdown
}
