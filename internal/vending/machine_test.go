package vending

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vendsim/internal/models"
)

type machineFixture struct {
	machine   *Machine
	catalog   *Catalog
	inventory *Inventory
	faults    *FaultModel
	notifier  *Notifier
	txlog     *TransactionLog

	mu  sync.Mutex
	now time.Time
}

func newFixture(cfg MachineConfig) *machineFixture {
	f := &machineFixture{
		catalog: NewCatalog([]models.Product{
			{ID: "cola", Name: "Cola", Price: 1100, Stock: 5},
			{ID: "coffee", Name: "Coffee", Price: 700, Stock: 5},
			{ID: "water", Name: "Water", Price: 600, Stock: 5},
		}),
		inventory: NewInventory(testDenominations, 3),
		faults:    NewFaultModel(),
		notifier:  NewNotifier(64),
		now:       time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
	f.txlog = NewTransactionLog(32, nil, zap.NewNop())
	f.machine = NewMachine(cfg, f.catalog, f.inventory, f.faults, f.txlog, f.notifier, nil, zap.NewNop())
	f.machine.clock = func() time.Time {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.now
	}
	return f
}

func (f *machineFixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// insert advances past the re-insert interval first so helpers never trip
// the rate limit by accident.
func (f *machineFixture) insert(t *testing.T, d models.Denomination) int64 {
	t.Helper()
	f.advance(2 * time.Second)
	balance, err := f.machine.InsertCash(context.Background(), d)
	require.NoError(t, err)
	return balance
}

func (f *machineFixture) startCash(t *testing.T) {
	t.Helper()
	require.NoError(t, f.machine.SelectPaymentMethod(context.Background(), models.PaymentCash))
}

func (f *machineFixture) startCard(t *testing.T) {
	t.Helper()
	require.NoError(t, f.machine.SelectPaymentMethod(context.Background(), models.PaymentCard))
}

func TestCashPurchaseHappyPath(t *testing.T) {
	f := newFixture(MachineConfig{})
	ctx := context.Background()
	totalBefore := f.inventory.Total()

	f.startCash(t)
	assert.Equal(t, StatusCashInput, f.machine.State().Status)

	f.insert(t, 1000)
	balance := f.insert(t, 500)
	assert.Equal(t, int64(1500), balance)
	assert.Equal(t, StatusProductSelect, f.machine.State().Status)

	pending, err := f.machine.SelectProduct(ctx, "coffee")
	require.NoError(t, err)
	assert.False(t, pending)

	// Change 800 disbursed as one 500 and three 100s, full change
	// returned, session back to idle.
	state := f.machine.State()
	assert.Equal(t, StatusIdle, state.Status)
	assert.Equal(t, int64(0), state.Balance)

	snapshot := f.inventory.Snapshot()
	assert.Equal(t, 4, snapshot[1000], "inserted 1000 stays")
	assert.Equal(t, 3, snapshot[500], "inserted 500 minus one unit of change")
	assert.Equal(t, 0, snapshot[100], "three 100s went out as change")

	product, _ := f.catalog.Get("coffee")
	assert.Equal(t, 4, product.Stock)

	// Money conservation: the machine kept exactly the price.
	assert.Equal(t, totalBefore+700, f.inventory.Total())

	entries := f.txlog.Recent(1)
	require.Len(t, entries, 1)
	tx := entries[0]
	assert.Equal(t, models.TransactionSuccess, tx.Status)
	assert.Equal(t, models.PaymentCash, tx.PaymentMethod)
	assert.Equal(t, int64(700), tx.Amount)
	assert.Equal(t, int64(800), tx.ChangeAmount)
	assert.Equal(t, tx.ChangeAmount, tx.ChangeBreakdown.Sum())
}

func TestCashPurchaseExactPayment(t *testing.T) {
	f := newFixture(MachineConfig{})
	ctx := context.Background()

	f.startCash(t)
	f.insert(t, 1000)
	f.insert(t, 100)

	_, err := f.machine.SelectProduct(ctx, "cola")
	require.NoError(t, err)

	state := f.machine.State()
	assert.Equal(t, StatusIdle, state.Status)
	entries := f.txlog.Recent(1)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(0), entries[0].ChangeAmount)
	assert.True(t, entries[0].ChangeBreakdown.Feasible)
}

func TestDispenseFaultRollsBackCashPurchase(t *testing.T) {
	f := newFixture(MachineConfig{})
	ctx := context.Background()
	require.NoError(t, f.faults.Set(FaultDispense, FaultState{Active: true}))
	// Extra 100s so change 900 is feasible and the rollback is visible.
	_, err := f.inventory.Adjust(100, 2)
	require.NoError(t, err)

	f.startCash(t)
	f.insert(t, 1000)
	f.insert(t, 1000)
	before := f.inventory.Snapshot()

	_, err = f.machine.SelectProduct(ctx, "cola")
	require.Error(t, err)
	assert.Equal(t, CodeDispenseFailure, CodeOf(err))

	state := f.machine.State()
	assert.Equal(t, StatusProductSelect, state.Status)
	assert.Equal(t, int64(2000), state.Balance, "price refunded after failed dispense")
	assert.Empty(t, state.SelectedProduct)
	assert.Equal(t, before, f.inventory.Snapshot(), "change debit reversed exactly")

	product, _ := f.catalog.Get("cola")
	assert.Equal(t, 5, product.Stock)

	entries := f.txlog.Recent(1)
	require.Len(t, entries, 1)
	assert.Equal(t, models.TransactionFailed, entries[0].Status)
	assert.Equal(t, string(CodeDispenseFailure), entries[0].FailureCode)

	// Clearing the fault lets the same session finish.
	require.NoError(t, f.faults.Set(FaultDispense, FaultState{}))
	_, err = f.machine.SelectProduct(ctx, "cola")
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, f.machine.State().Status)
}

func TestChangeShortageAbortsBeforeCharging(t *testing.T) {
	f := newFixture(MachineConfig{})
	ctx := context.Background()

	f.startCash(t)
	f.insert(t, 1000)
	f.insert(t, 1000)
	before := f.inventory.Snapshot()

	// Change 900 greedy needs one 500 and four 100s; only three 100s
	// exist.
	_, err := f.machine.SelectProduct(ctx, "cola")
	require.Error(t, err)
	assert.Equal(t, CodeChangeShortage, CodeOf(err))

	state := f.machine.State()
	assert.Equal(t, StatusProductSelect, state.Status)
	assert.Equal(t, int64(2000), state.Balance, "balance untouched on change shortage")
	assert.Equal(t, before, f.inventory.Snapshot())
	assert.Empty(t, f.txlog.Recent(0), "no purchase attempt is recorded")
}

func TestInsufficientFundsCheckedPreemptively(t *testing.T) {
	f := newFixture(MachineConfig{})
	ctx := context.Background()

	f.startCash(t)
	f.insert(t, 500)

	_, err := f.machine.SelectProduct(ctx, "cola")
	require.Error(t, err)
	assert.Equal(t, CodeInsufficientFunds, CodeOf(err))
	assert.Equal(t, int64(500), f.machine.State().Balance)
}

func TestOutOfStockRejected(t *testing.T) {
	f := newFixture(MachineConfig{})
	ctx := context.Background()
	require.NoError(t, f.catalog.SetStock("water", 0))

	f.startCash(t)
	f.insert(t, 1000)

	_, err := f.machine.SelectProduct(ctx, "water")
	require.Error(t, err)
	assert.Equal(t, CodeOutOfStock, CodeOf(err))
}

func TestProductNotFoundRejected(t *testing.T) {
	f := newFixture(MachineConfig{})
	ctx := context.Background()

	f.startCash(t)
	f.insert(t, 1000)

	_, err := f.machine.SelectProduct(ctx, "chips")
	require.Error(t, err)
	assert.Equal(t, CodeProductNotFound, CodeOf(err))
}

func TestRapidCashInsertionRejected(t *testing.T) {
	f := newFixture(MachineConfig{})
	ctx := context.Background()

	f.startCash(t)
	f.insert(t, 1000)
	before := f.inventory.Snapshot()

	f.advance(400 * time.Millisecond)
	balance, err := f.machine.InsertCash(ctx, 500)
	require.Error(t, err)
	assert.Equal(t, CodeCashInsertTooFast, CodeOf(err))
	assert.Equal(t, int64(1000), balance)
	assert.Equal(t, before, f.inventory.Snapshot(), "rejected coin never enters the inventory")
}

func TestInvalidStateGuards(t *testing.T) {
	f := newFixture(MachineConfig{})
	ctx := context.Background()

	_, err := f.machine.InsertCash(ctx, 1000)
	assert.Equal(t, CodeInvalidState, CodeOf(err))

	_, err = f.machine.SelectProduct(ctx, "cola")
	assert.Equal(t, CodeInvalidState, CodeOf(err))

	_, err = f.machine.ConfirmCardPayment(ctx)
	assert.Equal(t, CodeInvalidState, CodeOf(err))

	f.startCash(t)
	err = f.machine.SelectPaymentMethod(ctx, models.PaymentCard)
	assert.Equal(t, CodeInvalidState, CodeOf(err), "payment method only selectable from idle")

	// Cash sessions never confirm a card payment.
	f.insert(t, 1000)
	_, err = f.machine.ConfirmCardPayment(ctx)
	assert.Equal(t, CodeInvalidState, CodeOf(err))
}

func TestUnknownPaymentMethodRejected(t *testing.T) {
	f := newFixture(MachineConfig{})

	err := f.machine.SelectPaymentMethod(context.Background(), "crypto")

	assert.Equal(t, CodeInvalidState, CodeOf(err))
	assert.Equal(t, StatusIdle, f.machine.State().Status)
}

func TestCardPurchaseHappyPath(t *testing.T) {
	f := newFixture(MachineConfig{})
	ctx := context.Background()
	before := f.inventory.Snapshot()

	f.startCard(t)
	assert.Equal(t, StatusCardProcess, f.machine.State().Status)

	pending, err := f.machine.SelectProduct(ctx, "cola")
	require.NoError(t, err)
	assert.True(t, pending, "card purchases wait for confirmation")
	assert.Equal(t, StatusCardConfirm, f.machine.State().Status)

	dispensed, err := f.machine.ConfirmCardPayment(ctx)
	require.NoError(t, err)
	assert.True(t, dispensed)
	assert.Equal(t, StatusIdle, f.machine.State().Status)

	product, _ := f.catalog.Get("cola")
	assert.Equal(t, 4, product.Stock)
	assert.Equal(t, before, f.inventory.Snapshot(), "card purchases never touch the change inventory")

	entries := f.txlog.Recent(1)
	require.Len(t, entries, 1)
	assert.Equal(t, models.TransactionSuccess, entries[0].Status)
	assert.Equal(t, models.PaymentCard, entries[0].PaymentMethod)
	assert.Equal(t, int64(0), entries[0].ChangeAmount)
}

func TestCardReaderFaultRecoverable(t *testing.T) {
	f := newFixture(MachineConfig{})
	ctx := context.Background()
	require.NoError(t, f.faults.Set(FaultCardReader, FaultState{Active: true}))

	f.startCard(t)
	_, err := f.machine.SelectProduct(ctx, "cola")
	require.NoError(t, err)

	_, err = f.machine.ConfirmCardPayment(ctx)
	require.Error(t, err)
	assert.Equal(t, CodeCardReaderFault, CodeOf(err))
	assert.Equal(t, StatusCardProcess, f.machine.State().Status)
	assert.Empty(t, f.txlog.Recent(0), "no transaction is recorded on a reader fault")

	product, _ := f.catalog.Get("cola")
	assert.Equal(t, 5, product.Stock)
}

func TestCardPaymentRejectRecoverable(t *testing.T) {
	f := newFixture(MachineConfig{})
	ctx := context.Background()
	require.NoError(t, f.faults.Set(FaultCardPaymentReject, FaultState{Active: true}))

	f.startCard(t)
	_, err := f.machine.SelectProduct(ctx, "coffee")
	require.NoError(t, err)

	_, err = f.machine.ConfirmCardPayment(ctx)
	assert.Equal(t, CodeCardPaymentReject, CodeOf(err))
	assert.Equal(t, StatusCardProcess, f.machine.State().Status)

	// Clearing the fault allows the retry to finish.
	require.NoError(t, f.faults.Set(FaultCardPaymentReject, FaultState{}))
	_, err = f.machine.SelectProduct(ctx, "coffee")
	require.NoError(t, err)
	dispensed, err := f.machine.ConfirmCardPayment(ctx)
	require.NoError(t, err)
	assert.True(t, dispensed)
}

func TestCardDispenseFaultResetsSession(t *testing.T) {
	f := newFixture(MachineConfig{})
	ctx := context.Background()
	require.NoError(t, f.faults.Set(FaultDispense, FaultState{Active: true}))

	f.startCard(t)
	_, err := f.machine.SelectProduct(ctx, "cola")
	require.NoError(t, err)

	_, err = f.machine.ConfirmCardPayment(ctx)
	assert.Equal(t, CodeDispenseFailure, CodeOf(err))
	assert.Equal(t, StatusIdle, f.machine.State().Status)

	entries := f.txlog.Recent(1)
	require.Len(t, entries, 1)
	assert.Equal(t, models.TransactionFailed, entries[0].Status)
}

func TestCancelRefundsInsertedCash(t *testing.T) {
	f := newFixture(MachineConfig{})
	ctx := context.Background()
	before := f.inventory.Snapshot()

	f.startCash(t)
	f.insert(t, 1000)
	f.insert(t, 500)

	refund, breakdown := f.machine.Cancel(ctx)

	assert.Equal(t, int64(1500), refund)
	assert.Equal(t, map[models.Denomination]int{1000: 1, 500: 1}, breakdown.Units)
	assert.Equal(t, StatusIdle, f.machine.State().Status)
	assert.Equal(t, before, f.inventory.Snapshot(), "refund hands the inserted units back out")

	entries := f.txlog.Recent(1)
	require.Len(t, entries, 1)
	assert.Equal(t, models.TransactionCancelled, entries[0].Status)
	assert.Equal(t, int64(1500), entries[0].Amount)
}

func TestCancelInIdleIsNoop(t *testing.T) {
	f := newFixture(MachineConfig{})

	refund, breakdown := f.machine.Cancel(context.Background())

	assert.Equal(t, int64(0), refund)
	assert.Empty(t, breakdown.Units)
	assert.Empty(t, f.txlog.Recent(0))
}

func TestCashTimeoutRefundsAndResets(t *testing.T) {
	f := newFixture(MachineConfig{CashTimeout: 30 * time.Millisecond})
	before := f.inventory.Snapshot()

	f.startCash(t)
	f.insert(t, 1000)

	require.Eventually(t, func() bool {
		return f.machine.State().Status == StatusIdle
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, before, f.inventory.Snapshot(), "timeout refunds the inserted cash")
	state := f.machine.State()
	require.NotNil(t, state.LastError)
	assert.Equal(t, CodeSessionTimeout, state.LastError.Code)

	entries := f.txlog.Recent(1)
	require.Len(t, entries, 1)
	assert.Equal(t, models.TransactionCancelled, entries[0].Status)
	assert.Equal(t, int64(1000), entries[0].Amount)
}

func TestCardTimeoutCancelsWithoutRefund(t *testing.T) {
	f := newFixture(MachineConfig{CardTimeout: 20 * time.Millisecond})

	f.startCard(t)

	require.Eventually(t, func() bool {
		return f.machine.State().Status == StatusIdle
	}, time.Second, 5*time.Millisecond)

	assert.Empty(t, f.txlog.Recent(0), "nothing was held, nothing is recorded")
}

func TestActivityRestartsCashTimer(t *testing.T) {
	f := newFixture(MachineConfig{CashTimeout: 80 * time.Millisecond})

	f.startCash(t)
	f.insert(t, 1000)

	// Halfway through, fresh activity restarts the full duration.
	time.Sleep(50 * time.Millisecond)
	f.insert(t, 500)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StatusProductSelect, f.machine.State().Status,
		"old timer must not fire after being rescheduled")

	require.Eventually(t, func() bool {
		return f.machine.State().Status == StatusIdle
	}, time.Second, 5*time.Millisecond)
}

func TestCompletionClearsPendingTimer(t *testing.T) {
	f := newFixture(MachineConfig{CashTimeout: 40 * time.Millisecond})
	ctx := context.Background()

	f.startCash(t)
	f.insert(t, 1000)
	_, err := f.machine.SelectProduct(ctx, "coffee")
	require.NoError(t, err)
	require.Equal(t, StatusIdle, f.machine.State().Status)
	entriesBefore := len(f.txlog.Recent(0))

	// Let the old duration pass; the cleared timer must not cancel or
	// refund anything.
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, StatusIdle, f.machine.State().Status)
	assert.Len(t, f.txlog.Recent(0), entriesBefore)
}

func TestStaleTimerEpochIgnored(t *testing.T) {
	f := newFixture(MachineConfig{})
	ctx := context.Background()

	f.startCash(t)
	f.insert(t, 1000)
	f.machine.Cancel(ctx)
	before := f.inventory.Snapshot()

	// An epoch invalidated by the cancel must be a no-op even if its
	// callback still runs.
	f.machine.handleTimeout(1)

	assert.Equal(t, StatusIdle, f.machine.State().Status)
	assert.Equal(t, before, f.inventory.Snapshot(), "no double refund")
	assert.Len(t, f.txlog.Recent(0), 1, "only the cancel entry exists")
}

func TestTransactionFinalizedExactlyOnce(t *testing.T) {
	f := newFixture(MachineConfig{})
	ctx := context.Background()

	tx := models.Transaction{ID: "tx-1", Status: models.TransactionPending}
	f.machine.finalize(ctx, &tx, models.TransactionSuccess, "")
	f.machine.finalize(ctx, &tx, models.TransactionFailed, CodeDispenseFailure)

	assert.Equal(t, models.TransactionSuccess, tx.Status, "terminal status never changes")
	assert.Empty(t, tx.FailureCode)
	assert.Len(t, f.txlog.Recent(0), 1)
}

func TestSuccessNotificationsEmitted(t *testing.T) {
	f := newFixture(MachineConfig{})
	ctx := context.Background()

	f.startCash(t)
	f.insert(t, 1000)
	_, err := f.machine.SelectProduct(ctx, "coffee")
	require.NoError(t, err)

	codes := make(map[string]int)
	for _, n := range f.notifier.Recent(0) {
		codes[n.Code]++
	}
	assert.Equal(t, 1, codes["session_started"])
	assert.Equal(t, 1, codes["cash_inserted"])
	assert.Equal(t, 1, codes["change_returned"])
	assert.Equal(t, 1, codes["dispensed"])
}

func TestFailedCommandsSurfaceOnNotificationStream(t *testing.T) {
	f := newFixture(MachineConfig{})

	_, err := f.machine.InsertCash(context.Background(), 1000)
	require.Error(t, err)

	recent := f.notifier.Recent(1)
	require.Len(t, recent, 1)
	assert.Equal(t, LevelError, recent[0].Level)
	assert.Equal(t, string(CodeInvalidState), recent[0].Code)
}

type fakeMirror struct {
	mu      sync.Mutex
	saved   map[string]LiveSession
	deleted []string
}

func newFakeMirror() *fakeMirror {
	return &fakeMirror{saved: make(map[string]LiveSession)}
}

func (m *fakeMirror) SaveSession(_ context.Context, session LiveSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved[session.SessionID] = session
	return nil
}

func (m *fakeMirror) DeleteSession(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, sessionID)
	return nil
}

func TestSessionMirrorLifecycle(t *testing.T) {
	f := newFixture(MachineConfig{})
	mirror := newFakeMirror()
	f.machine.mirror = mirror
	ctx := context.Background()

	f.startCash(t)
	f.insert(t, 1000)
	sessionID := f.machine.State().SessionID
	require.NotEmpty(t, sessionID)

	mirror.mu.Lock()
	saved, ok := mirror.saved[sessionID]
	mirror.mu.Unlock()
	require.True(t, ok)
	assert.Equal(t, StatusProductSelect, saved.Status)
	assert.Equal(t, int64(1000), saved.Balance)

	f.machine.Cancel(ctx)
	mirror.mu.Lock()
	deleted := append([]string(nil), mirror.deleted...)
	mirror.mu.Unlock()
	assert.Contains(t, deleted, sessionID)
}
