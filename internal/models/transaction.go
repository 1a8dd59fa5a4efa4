package models

import "time"

// TransactionStatus is the terminal status of a purchase attempt.
type TransactionStatus string

// Transaction statuses.
const (
	TransactionPending   TransactionStatus = "pending"
	TransactionSuccess   TransactionStatus = "success"
	TransactionFailed    TransactionStatus = "failed"
	TransactionCancelled TransactionStatus = "cancelled"
)

// Transaction records one purchase attempt. It is created when the attempt
// begins and finalized exactly once.
type Transaction struct {
	ID              string            `db:"id" json:"id"`
	SessionID       string            `db:"session_id" json:"session_id"`
	ProductID       string            `db:"product_id" json:"product_id"`
	ProductName     string            `db:"product_name" json:"product_name"`
	Amount          int64             `db:"amount" json:"amount"`
	PaymentMethod   PaymentMethod     `db:"payment_method" json:"payment_method"`
	ChangeAmount    int64             `db:"change_amount" json:"change_amount"`
	ChangeBreakdown ChangeBreakdown   `db:"change_breakdown" json:"change_breakdown"`
	Status          TransactionStatus `db:"status" json:"status"`
	FailureCode     string            `db:"failure_code" json:"failure_code,omitempty"`
	CreatedAt       time.Time         `db:"created_at" json:"created_at"`
	FinalizedAt     time.Time         `db:"finalized_at" json:"finalized_at"`
}
