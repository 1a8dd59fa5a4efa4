package vending

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"vendsim/internal/models"
)

// Status is the observable state of the machine.
type Status string

// Machine statuses.
const (
	StatusIdle          Status = "idle"
	StatusCashInput     Status = "cash_input"
	StatusCardProcess   Status = "card_process"
	StatusProductSelect Status = "product_select"
	StatusCardConfirm   Status = "card_confirm"
	StatusDispensing    Status = "dispensing"
	StatusCompleting    Status = "completing"
)

// MachineConfig carries the session timing knobs.
type MachineConfig struct {
	CashTimeout       time.Duration
	CardTimeout       time.Duration
	MinInsertInterval time.Duration
}

func (c MachineConfig) withDefaults() MachineConfig {
	if c.CashTimeout <= 0 {
		c.CashTimeout = 60 * time.Second
	}
	if c.CardTimeout <= 0 {
		c.CardTimeout = 30 * time.Second
	}
	if c.MinInsertInterval <= 0 {
		c.MinInsertInterval = time.Second
	}
	return c
}

// LiveSession is the operational mirror of the in-progress session.
type LiveSession struct {
	SessionID string               `json:"session_id"`
	Status    Status               `json:"status"`
	Method    models.PaymentMethod `json:"payment_method"`
	Balance   int64                `json:"balance"`
	ProductID string               `json:"product_id,omitempty"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// SessionMirror receives live-session updates for operational visibility.
// It is never authoritative; failures are logged and ignored.
type SessionMirror interface {
	SaveSession(ctx context.Context, session LiveSession) error
	DeleteSession(ctx context.Context, sessionID string) error
}

// ErrorInfo is the externally visible form of the current error.
type ErrorInfo struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// StateSnapshot is the observable machine state.
type StateSnapshot struct {
	Status          Status                `json:"status"`
	SessionID       string                `json:"session_id,omitempty"`
	PaymentMethod   models.PaymentMethod  `json:"payment_method"`
	Balance         int64                 `json:"balance"`
	SelectedProduct string                `json:"selected_product,omitempty"`
	InsertedCash    []models.Denomination `json:"inserted_cash,omitempty"`
	LastError       *ErrorInfo            `json:"last_error,omitempty"`
}

// Machine is the transaction orchestrator. It sequences payment validation,
// change computation, dispensing and rollback, and is the only writer of
// session status, product stock and the denomination inventory. Commands
// run one at a time under a single mutex; timer expiry re-enters through
// the same mutex and is therefore just another serialized command.
type Machine struct {
	mu        sync.Mutex
	cfg       MachineConfig
	catalog   *Catalog
	inventory *Inventory
	faults    *FaultModel
	ledger    *Ledger
	timeouts  *TimeoutSupervisor
	notifier  *Notifier
	txlog     *TransactionLog
	mirror    SessionMirror
	logger    *zap.Logger

	clock func() time.Time
	newID func() string

	status    Status
	sessionID string
	selected  string
	lastErr   *Error
}

// NewMachine wires the orchestrator. mirror may be nil.
func NewMachine(
	cfg MachineConfig,
	catalog *Catalog,
	inventory *Inventory,
	faults *FaultModel,
	txlog *TransactionLog,
	notifier *Notifier,
	mirror SessionMirror,
	logger *zap.Logger,
) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Machine{
		cfg:       cfg.withDefaults(),
		catalog:   catalog,
		inventory: inventory,
		faults:    faults,
		ledger:    NewLedger(),
		timeouts:  NewTimeoutSupervisor(),
		notifier:  notifier,
		txlog:     txlog,
		mirror:    mirror,
		logger:    logger,
		clock:     time.Now,
		newID:     uuid.NewString,
		status:    StatusIdle,
	}
}

// SelectPaymentMethod opens a session. Valid only from Idle.
func (m *Machine) SelectPaymentMethod(ctx context.Context, method models.PaymentMethod) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status != StatusIdle {
		return m.fail(errInvalidState(m.status, "selectPaymentMethod"))
	}

	switch method {
	case models.PaymentCash:
		m.beginSession(method)
		m.status = StatusCashInput
		m.notifier.Publish(LevelInfo, "session_started", "cash session started, insert coins or bills")
	case models.PaymentCard:
		m.beginSession(method)
		m.status = StatusCardProcess
		m.scheduleTimeout(m.cfg.CardTimeout)
		m.notifier.Publish(LevelInfo, "session_started", "card session started, select a product")
	default:
		return m.fail(newError(CodeInvalidState, KindValidation, "unknown payment method %q", method))
	}

	m.logger.Info("session started",
		zap.String("session_id", m.sessionID), zap.String("method", string(method)))
	m.syncMirror(ctx)
	return nil
}

// InsertCash accepts one denomination and returns the new balance.
func (m *Machine) InsertCash(ctx context.Context, d models.Denomination) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status != StatusCashInput && m.status != StatusProductSelect {
		return m.ledger.Balance(), m.fail(errInvalidState(m.status, "insertCash"))
	}
	if !m.inventory.Accepts(d) {
		return m.ledger.Balance(), m.fail(newError(CodeUnknownDenomination, KindValidation, "denomination %d not accepted", d))
	}

	balance, err := m.ledger.Insert(d, m.clock(), m.cfg.MinInsertInterval)
	if err != nil {
		e, _ := AsEngineError(err)
		return balance, m.fail(e)
	}
	if err := m.inventory.Add(d); err != nil {
		// Accepts just passed under the machine lock; this cannot happen.
		e, _ := AsEngineError(err)
		return balance, m.fail(e)
	}

	m.lastErr = nil
	m.status = StatusProductSelect
	m.scheduleTimeout(m.cfg.CashTimeout)
	m.notifier.Publish(LevelInfo, "cash_inserted", fmt.Sprintf("inserted %d, balance is %d", d, balance))
	m.syncMirror(ctx)
	return balance, nil
}

// SelectProduct chooses the product. Under card payment it moves to the
// pending-confirmation sub-state and reports pendingConfirmation=true;
// under cash it runs the whole purchase through dispense.
func (m *Machine) SelectProduct(ctx context.Context, productID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status != StatusProductSelect && m.status != StatusCardProcess {
		return false, m.fail(errInvalidState(m.status, "selectProduct"))
	}
	product, ok := m.catalog.Get(productID)
	if !ok {
		return false, m.fail(newError(CodeProductNotFound, KindValidation, "product %q not found", productID))
	}
	if product.Stock <= 0 {
		return false, m.fail(newError(CodeOutOfStock, KindResource, "%s is sold out", product.Name))
	}

	if m.ledger.Method() == models.PaymentCard {
		m.lastErr = nil
		m.selected = product.ID
		m.status = StatusCardConfirm
		m.scheduleTimeout(m.cfg.CardTimeout)
		m.notifier.Publish(LevelInfo, "confirmation_pending", fmt.Sprintf("confirm card payment of %d for %s", product.Price, product.Name))
		m.syncMirror(ctx)
		return true, nil
	}

	// Cash path: the user must never be charged for an impossible purchase,
	// so both guards run before any money moves.
	balance := m.ledger.Balance()
	if balance < product.Price {
		return false, m.fail(newError(CodeInsufficientFunds, KindResource,
			"balance %d is below price %d of %s", balance, product.Price, product.Name))
	}
	changeAmount := balance - product.Price
	plan := ComputeChange(changeAmount, m.inventory.Snapshot())
	if !plan.Feasible {
		return false, m.fail(newError(CodeChangeShortage, KindResource,
			"cannot return change of %d for %s", changeAmount, product.Name))
	}

	// Provisional debit; dispense failure reverses it in full.
	if err := m.inventory.Debit(plan); err != nil {
		return false, m.fail(newError(CodeChangeShortage, KindResource, "change reservation failed: %v", err))
	}
	m.lastErr = nil
	m.selected = product.ID
	tx := m.beginTransaction(product, changeAmount, plan)
	m.status = StatusDispensing
	return false, m.dispense(ctx, &tx, product, balance, plan)
}

// ConfirmCardPayment authorizes the pending card purchase and dispenses.
func (m *Machine) ConfirmCardPayment(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status != StatusCardConfirm {
		return false, m.fail(errInvalidState(m.status, "confirmCardPayment"))
	}
	product, ok := m.catalog.Get(m.selected)
	if !ok {
		m.status = StatusCardProcess
		return false, m.fail(newError(CodeProductNotFound, KindValidation, "product %q not found", m.selected))
	}
	if product.Stock <= 0 {
		m.status = StatusCardProcess
		m.selected = ""
		return false, m.fail(newError(CodeOutOfStock, KindResource, "%s is sold out", product.Name))
	}

	if m.faults.Triggered(FaultCardReader) {
		m.status = StatusCardProcess
		m.syncMirror(ctx)
		return false, m.fail(newError(CodeCardReaderFault, KindFault, "card reader is not responding"))
	}
	if m.faults.Triggered(FaultCardPaymentReject) {
		m.status = StatusCardProcess
		m.syncMirror(ctx)
		return false, m.fail(newError(CodeCardPaymentReject, KindFault, "card payment was rejected"))
	}

	m.lastErr = nil
	zeroChange := models.ChangeBreakdown{Feasible: true, Units: map[models.Denomination]int{}}
	tx := m.beginTransaction(product, 0, zeroChange)
	m.status = StatusDispensing
	err := m.dispense(ctx, &tx, product, 0, zeroChange)
	return err == nil, err
}

// Cancel aborts the session and refunds inserted cash. It never fails: in
// Idle it is a no-op with a zero refund.
func (m *Machine) Cancel(ctx context.Context) (int64, models.ChangeBreakdown) {
	m.mu.Lock()
	defer m.mu.Unlock()

	empty := models.ChangeBreakdown{Feasible: true, Units: map[models.Denomination]int{}}
	if m.status == StatusIdle {
		return 0, empty
	}

	// Timer first: no stale expiry may fire against the reset session.
	m.timeouts.Cancel()

	refund := m.ledger.Balance()
	plan := empty
	if m.ledger.Method() == models.PaymentCash && refund > 0 {
		plan = m.refundInsertedCash()
		m.notifier.Publish(LevelInfo, "refund_returned", fmt.Sprintf("refund of %d returned", refund))
	}
	m.recordAbandonment(ctx, models.TransactionCancelled, refund)
	m.notifier.Publish(LevelInfo, "session_cancelled", "session cancelled")
	m.logger.Info("session cancelled",
		zap.String("session_id", m.sessionID), zap.Int64("refund", refund))
	m.resetSession(ctx)
	return refund, plan
}

// State returns the observable machine state.
func (m *Machine) State() StateSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := StateSnapshot{
		Status:          m.status,
		SessionID:       m.sessionID,
		PaymentMethod:   m.ledger.Method(),
		Balance:         m.ledger.Balance(),
		SelectedProduct: m.selected,
		InsertedCash:    m.ledger.Inserted(),
	}
	if m.lastErr != nil {
		snapshot.LastError = &ErrorInfo{Code: m.lastErr.Code, Message: m.lastErr.Message}
	}
	return snapshot
}

// dispense runs the dispenser gate and finishes the transaction either way.
// Callers already hold the lock and have provisionally debited the change
// plan for cash purchases.
func (m *Machine) dispense(ctx context.Context, tx *models.Transaction, product models.Product, prevBalance int64, plan models.ChangeBreakdown) error {
	cash := m.ledger.Method() == models.PaymentCash

	if m.faults.Triggered(FaultDispense) {
		e := newError(CodeDispenseFailure, KindFault, "dispenser failed to release %s", product.Name)
		m.finalize(ctx, tx, models.TransactionFailed, e.Code)
		if cash {
			// Reverse the two-phase debit exactly and refund the price.
			m.inventory.Restore(plan)
			m.ledger.SetBalance(prevBalance)
			m.selected = ""
			m.status = StatusProductSelect
		} else {
			m.resetSession(ctx)
		}
		err := m.fail(e)
		m.syncMirror(ctx)
		return err
	}

	m.catalog.DecrementStock(product.ID)
	m.finalize(ctx, tx, models.TransactionSuccess, "")
	m.status = StatusCompleting

	if cash {
		if tx.ChangeAmount > 0 {
			m.notifier.Publish(LevelInfo, "change_returned", fmt.Sprintf("change of %d returned", tx.ChangeAmount))
		}
		m.ledger.SetBalance(0)
		m.notifier.Publish(LevelSuccess, "dispensed", fmt.Sprintf("%s dispensed, enjoy", product.Name))
		// Continuous purchase: leftover credit that still buys something
		// keeps the session open.
		if balance, min := m.ledger.Balance(), m.catalog.MinPriceInStock(); balance > 0 && min > 0 && balance >= min {
			m.selected = ""
			m.status = StatusProductSelect
			m.scheduleTimeout(m.cfg.CashTimeout)
			m.syncMirror(ctx)
			return nil
		}
		m.resetSession(ctx)
		return nil
	}

	m.notifier.Publish(LevelSuccess, "dispensed", fmt.Sprintf("%s dispensed, enjoy", product.Name))
	m.resetSession(ctx)
	return nil
}

// handleTimeout is the timer expiry entry point. It serializes behind the
// machine mutex like any other command and ignores stale epochs.
func (m *Machine) handleTimeout(epoch uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.timeouts.Valid(epoch) {
		return
	}

	ctx := context.Background()
	e := newError(CodeSessionTimeout, KindTiming, "session timed out waiting for activity")
	m.lastErr = e
	m.notifier.Publish(LevelError, string(e.Code), e.Message)

	refund := m.ledger.Balance()
	if m.ledger.Method() == models.PaymentCash && refund > 0 {
		m.refundInsertedCash()
		m.notifier.Publish(LevelInfo, "refund_returned", fmt.Sprintf("refund of %d returned", refund))
	} else {
		// Card sessions hold no money, so expiry cancels without a refund.
		refund = 0
	}
	m.recordAbandonment(ctx, models.TransactionCancelled, refund)
	m.logger.Info("session timed out",
		zap.String("session_id", m.sessionID), zap.Int64("refund", refund))
	m.resetSession(ctx)
}

func (m *Machine) beginSession(method models.PaymentMethod) {
	m.ledger.Reset()
	m.ledger.SetMethod(method)
	m.sessionID = m.newID()
	m.selected = ""
	m.lastErr = nil
}

func (m *Machine) beginTransaction(product models.Product, changeAmount int64, plan models.ChangeBreakdown) models.Transaction {
	return models.Transaction{
		ID:              m.newID(),
		SessionID:       m.sessionID,
		ProductID:       product.ID,
		ProductName:     product.Name,
		Amount:          product.Price,
		PaymentMethod:   m.ledger.Method(),
		ChangeAmount:    changeAmount,
		ChangeBreakdown: plan.Clone(),
		Status:          models.TransactionPending,
		CreatedAt:       m.clock().UTC(),
	}
}

// finalize moves a transaction to its terminal status exactly once.
func (m *Machine) finalize(ctx context.Context, tx *models.Transaction, status models.TransactionStatus, code ErrorCode) {
	if tx.Status != models.TransactionPending {
		return
	}
	tx.Status = status
	tx.FailureCode = string(code)
	tx.FinalizedAt = m.clock().UTC()
	m.txlog.Append(ctx, *tx)
	m.logger.Info("transaction finalized",
		zap.String("transaction_id", tx.ID),
		zap.String("product_id", tx.ProductID),
		zap.String("status", string(status)),
		zap.Int64("amount", tx.Amount),
		zap.Int64("change", tx.ChangeAmount))
}

// recordAbandonment logs a cancelled entry when the session had anything
// worth recording: money in or a product selected.
func (m *Machine) recordAbandonment(ctx context.Context, status models.TransactionStatus, refund int64) {
	if refund == 0 && m.selected == "" {
		return
	}
	tx := models.Transaction{
		ID:            m.newID(),
		SessionID:     m.sessionID,
		ProductID:     m.selected,
		Amount:        refund,
		PaymentMethod: m.ledger.Method(),
		Status:        status,
		CreatedAt:     m.clock().UTC(),
		FinalizedAt:   m.clock().UTC(),
	}
	m.txlog.Append(ctx, tx)
}

// refundInsertedCash hands the inserted units back out of the inventory.
func (m *Machine) refundInsertedCash() models.ChangeBreakdown {
	plan := m.ledger.RefundPlan()
	for d, n := range plan.Units {
		for i := 0; i < n; i++ {
			m.inventory.Remove(d)
		}
	}
	return plan
}

func (m *Machine) resetSession(ctx context.Context) {
	m.timeouts.Cancel()
	old := m.sessionID
	m.ledger.Reset()
	m.sessionID = ""
	m.selected = ""
	m.status = StatusIdle
	if m.mirror != nil && old != "" {
		if err := m.mirror.DeleteSession(ctx, old); err != nil {
			m.logger.Warn("failed to delete session mirror", zap.Error(err))
		}
	}
}

func (m *Machine) scheduleTimeout(d time.Duration) {
	m.timeouts.Schedule(d, m.handleTimeout)
}

// fail records the error, surfaces it on the notification stream and
// returns it. No failure is silently swallowed.
func (m *Machine) fail(e *Error) error {
	m.lastErr = e
	m.notifier.Publish(LevelError, string(e.Code), e.Message)
	m.logger.Debug("command rejected",
		zap.String("code", string(e.Code)), zap.String("message", e.Message))
	return e
}

func (m *Machine) syncMirror(ctx context.Context) {
	if m.mirror == nil || m.sessionID == "" {
		return
	}
	session := LiveSession{
		SessionID: m.sessionID,
		Status:    m.status,
		Method:    m.ledger.Method(),
		Balance:   m.ledger.Balance(),
		ProductID: m.selected,
		UpdatedAt: m.clock().UTC(),
	}
	if err := m.mirror.SaveSession(ctx, session); err != nil {
		m.logger.Warn("failed to mirror session", zap.Error(err))
	}
}
