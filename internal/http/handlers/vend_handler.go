package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"vendsim/internal/models"
	"vendsim/internal/vending"
)

// VendHandler holds the customer-facing command endpoints.
type VendHandler struct {
	machine  *vending.Machine
	catalog  *vending.Catalog
	txlog    *vending.TransactionLog
	notifier *vending.Notifier
	logger   *zap.Logger
}

// NewVendHandler builds handler set.
func NewVendHandler(
	machine *vending.Machine,
	catalog *vending.Catalog,
	txlog *vending.TransactionLog,
	notifier *vending.Notifier,
	logger *zap.Logger,
) *VendHandler {
	return &VendHandler{
		machine:  machine,
		catalog:  catalog,
		txlog:    txlog,
		notifier: notifier,
		logger:   logger,
	}
}

type paymentMethodRequest struct {
	Method string `json:"method"`
}

// HandlePaymentMethod handles POST /vend/payment-method.
func (h *VendHandler) HandlePaymentMethod(w http.ResponseWriter, r *http.Request) {
	var req paymentMethodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.machine.SelectPaymentMethod(r.Context(), models.PaymentMethod(req.Method)); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type insertCashRequest struct {
	Denomination int64 `json:"denomination"`
}

// HandleInsertCash handles POST /vend/insert-cash.
func (h *VendHandler) HandleInsertCash(w http.ResponseWriter, r *http.Request) {
	var req insertCashRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	balance, err := h.machine.InsertCash(r.Context(), models.Denomination(req.Denomination))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"balance": balance})
}

type selectProductRequest struct {
	ProductID string `json:"product_id"`
}

// HandleSelectProduct handles POST /vend/select-product.
func (h *VendHandler) HandleSelectProduct(w http.ResponseWriter, r *http.Request) {
	var req selectProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.ProductID == "" {
		writeError(w, http.StatusBadRequest, "product_id is required")
		return
	}

	pending, err := h.machine.SelectProduct(r.Context(), req.ProductID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"pending_confirmation": pending})
}

// HandleConfirmCard handles POST /vend/confirm-card.
func (h *VendHandler) HandleConfirmCard(w http.ResponseWriter, r *http.Request) {
	dispensed, err := h.machine.ConfirmCardPayment(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"dispensed": dispensed})
}

// HandleCancel handles POST /vend/cancel.
func (h *VendHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	refund, breakdown := h.machine.Cancel(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"refund_amount":    refund,
		"refund_breakdown": breakdown.Units,
	})
}

// HandleState handles GET /vend/state.
func (h *VendHandler) HandleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"machine":  h.machine.State(),
		"products": h.catalog.List(),
	})
}

// HandleTransactions handles GET /vend/transactions.
func (h *VendHandler) HandleTransactions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": h.txlog.Recent(queryLimit(r, 50)),
	})
}

// HandleNotifications handles GET /vend/notifications.
func (h *VendHandler) HandleNotifications(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": h.notifier.Recent(queryLimit(r, 50)),
	})
}

func queryLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return fallback
	}
	return limit
}
