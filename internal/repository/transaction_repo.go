package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"vendsim/internal/models"
)

// ErrTransactionNotFound indicates a missing transaction row.
var ErrTransactionNotFound = errors.New("transaction not found")

// TransactionRepository persists finalized vend transactions. It backs the
// in-memory transaction log as its durable sink.
type TransactionRepository struct {
	db *sql.DB
}

// NewTransactionRepository returns repository.
func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// SaveTransaction inserts one finalized transaction. Replays of the same id
// update the terminal fields rather than duplicating the row.
func (r *TransactionRepository) SaveTransaction(ctx context.Context, tx models.Transaction) error {
	breakdown, err := json.Marshal(tx.ChangeBreakdown)
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO vend_transactions
			(id, session_id, product_id, product_name, amount, payment_method, change_amount, change_breakdown, status, failure_code, created_at, finalized_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			failure_code = EXCLUDED.failure_code,
			finalized_at = EXCLUDED.finalized_at
	`
	_, err = r.db.ExecContext(ctx, query,
		tx.ID,
		tx.SessionID,
		tx.ProductID,
		tx.ProductName,
		tx.Amount,
		tx.PaymentMethod,
		tx.ChangeAmount,
		breakdown,
		tx.Status,
		tx.FailureCode,
		tx.CreatedAt,
		tx.FinalizedAt,
	)
	return err
}

// GetByID returns one transaction.
func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*models.Transaction, error) {
	const query = `
		SELECT id, session_id, product_id, product_name, amount, payment_method, change_amount, change_breakdown, status, failure_code, created_at, finalized_at
		FROM vend_transactions
		WHERE id = $1
	`
	row := r.db.QueryRowContext(ctx, query, id)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// ListRecent returns the latest transactions, newest first.
func (r *TransactionRepository) ListRecent(ctx context.Context, limit int) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
		SELECT id, session_id, product_id, product_name, amount, payment_method, change_amount, change_breakdown, status, failure_code, created_at, finalized_at
		FROM vend_transactions
		ORDER BY finalized_at DESC
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []models.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, *tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return transactions, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var tx models.Transaction
	var breakdown []byte
	if err := row.Scan(
		&tx.ID,
		&tx.SessionID,
		&tx.ProductID,
		&tx.ProductName,
		&tx.Amount,
		&tx.PaymentMethod,
		&tx.ChangeAmount,
		&breakdown,
		&tx.Status,
		&tx.FailureCode,
		&tx.CreatedAt,
		&tx.FinalizedAt,
	); err != nil {
		return nil, err
	}
	if len(breakdown) > 0 {
		if err := json.Unmarshal(breakdown, &tx.ChangeBreakdown); err != nil {
			return nil, err
		}
	}
	return &tx, nil
}
