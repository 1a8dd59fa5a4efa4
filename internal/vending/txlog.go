package vending

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"vendsim/internal/models"
)

// TransactionSink receives finalized transactions for persistence. The log
// works without one; persistence is an operational add-on.
type TransactionSink interface {
	SaveTransaction(ctx context.Context, tx models.Transaction) error
}

const defaultLogLimit = 256

// TransactionLog is the append-only record of finalized transactions. It
// keeps a bounded in-memory window and forwards each entry to the sink
// best-effort.
type TransactionLog struct {
	mu      sync.RWMutex
	entries []models.Transaction
	limit   int
	sink    TransactionSink
	logger  *zap.Logger
}

// NewTransactionLog builds a log keeping up to limit entries in memory.
func NewTransactionLog(limit int, sink TransactionSink, logger *zap.Logger) *TransactionLog {
	if limit <= 0 {
		limit = defaultLogLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TransactionLog{limit: limit, sink: sink, logger: logger}
}

// Append records a finalized transaction. A sink failure is logged, never
// surfaced: the machine already committed the outcome.
func (l *TransactionLog) Append(ctx context.Context, tx models.Transaction) {
	l.mu.Lock()
	l.entries = append(l.entries, tx)
	if len(l.entries) > l.limit {
		l.entries = l.entries[len(l.entries)-l.limit:]
	}
	l.mu.Unlock()

	if l.sink != nil {
		if err := l.sink.SaveTransaction(ctx, tx); err != nil {
			l.logger.Warn("failed to persist transaction",
				zap.String("transaction_id", tx.ID), zap.Error(err))
		}
	}
}

// Recent returns up to limit latest entries, newest first.
func (l *TransactionLog) Recent(limit int) []models.Transaction {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if limit <= 0 || limit > len(l.entries) {
		limit = len(l.entries)
	}
	out := make([]models.Transaction, 0, limit)
	for i := len(l.entries) - 1; i >= len(l.entries)-limit; i-- {
		out = append(out, l.entries[i])
	}
	return out
}
