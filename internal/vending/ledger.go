package vending

import (
	"time"

	"vendsim/internal/models"
)

// Ledger tracks the money side of the live session: balance, the ordered
// inserted-cash history and the chosen payment method. It is owned by the
// machine and only touched inside a serialized command.
type Ledger struct {
	balance    int64
	inserted   []models.Denomination
	method     models.PaymentMethod
	lastInsert time.Time
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{method: models.PaymentNone}
}

// Reset clears the ledger for a fresh session.
func (l *Ledger) Reset() {
	l.balance = 0
	l.inserted = nil
	l.method = models.PaymentNone
	l.lastInsert = time.Time{}
}

// SetMethod records the session payment method.
func (l *Ledger) SetMethod(method models.PaymentMethod) {
	l.method = method
}

// Method returns the session payment method.
func (l *Ledger) Method() models.PaymentMethod {
	return l.method
}

// Insert records one inserted denomination at the given instant. Insertions
// within minInterval of the previous one are rejected.
func (l *Ledger) Insert(d models.Denomination, now time.Time, minInterval time.Duration) (int64, error) {
	if !l.lastInsert.IsZero() && now.Sub(l.lastInsert) < minInterval {
		return l.balance, newError(CodeCashInsertTooFast, KindTiming,
			"cash inserted %s after previous unit, minimum interval is %s", now.Sub(l.lastInsert), minInterval)
	}
	l.lastInsert = now
	l.inserted = append(l.inserted, d)
	l.balance += int64(d)
	return l.balance, nil
}

// Balance returns the current session balance.
func (l *Ledger) Balance() int64 {
	return l.balance
}

// SetBalance overwrites the balance. The machine uses it for the purchase
// debit and its rollback.
func (l *Ledger) SetBalance(balance int64) {
	if balance < 0 {
		balance = 0
	}
	l.balance = balance
}

// Inserted returns a copy of the inserted-cash history in order.
func (l *Ledger) Inserted() []models.Denomination {
	out := make([]models.Denomination, len(l.inserted))
	copy(out, l.inserted)
	return out
}

// RefundPlan returns the inserted units grouped per denomination. A refund
// hands back exactly the units the customer put in.
func (l *Ledger) RefundPlan() models.ChangeBreakdown {
	plan := models.ChangeBreakdown{
		Feasible: true,
		Units:    make(map[models.Denomination]int),
	}
	for _, d := range l.inserted {
		plan.Units[d]++
		plan.TotalAmount += int64(d)
	}
	return plan
}
