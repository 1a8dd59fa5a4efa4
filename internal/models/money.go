package models

// Denomination is one accepted currency unit value, in minor units.
type Denomination int64

// PaymentMethod identifies how the current session pays.
type PaymentMethod string

// Payment methods.
const (
	PaymentNone PaymentMethod = "none"
	PaymentCash PaymentMethod = "cash"
	PaymentCard PaymentMethod = "card"
)

// ChangeBreakdown is a per-denomination disbursement plan. If Feasible,
// the unit counts sum to TotalAmount exactly; if not, the plan carries no
// disbursement obligation at all.
type ChangeBreakdown struct {
	Feasible    bool                 `json:"feasible"`
	TotalAmount int64                `json:"total_amount"`
	Units       map[Denomination]int `json:"units,omitempty"`
}

// Sum returns the value covered by the plan's unit counts.
func (b ChangeBreakdown) Sum() int64 {
	var total int64
	for d, n := range b.Units {
		total += int64(d) * int64(n)
	}
	return total
}

// Clone returns a deep copy of the breakdown.
func (b ChangeBreakdown) Clone() ChangeBreakdown {
	out := ChangeBreakdown{Feasible: b.Feasible, TotalAmount: b.TotalAmount}
	if b.Units != nil {
		out.Units = make(map[Denomination]int, len(b.Units))
		for d, n := range b.Units {
			out.Units[d] = n
		}
	}
	return out
}
