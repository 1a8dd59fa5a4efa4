package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"vendsim/internal/auth"
	"vendsim/internal/models"
	"vendsim/internal/vending"
)

// AdminHandler holds the administrative boundary: fault toggles, change
// inventory adjustment and stock overrides. All of it sits behind the
// operator JWT except login itself.
type AdminHandler struct {
	faults       *vending.FaultModel
	inventory    *vending.Inventory
	catalog      *vending.Catalog
	tokens       *auth.TokenService
	hasher       auth.Hasher
	passwordHash string
	logger       *zap.Logger
}

// NewAdminHandler builds handler set.
func NewAdminHandler(
	faults *vending.FaultModel,
	inventory *vending.Inventory,
	catalog *vending.Catalog,
	tokens *auth.TokenService,
	hasher auth.Hasher,
	passwordHash string,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{
		faults:       faults,
		inventory:    inventory,
		catalog:      catalog,
		tokens:       tokens,
		hasher:       hasher,
		passwordHash: passwordHash,
		logger:       logger,
	}
}

type loginRequest struct {
	Password string `json:"password"`
}

// HandleLogin handles POST /admin/login.
func (h *AdminHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.hasher.Compare(h.passwordHash, req.Password); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := h.tokens.GenerateToken(auth.RoleOperator)
	if err != nil {
		h.logger.Error("token generation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

type setFaultRequest struct {
	Name   string  `json:"name"`
	Active bool    `json:"active"`
	Rate   float64 `json:"rate"`
}

// HandleSetFault handles POST /admin/faults.
func (h *AdminHandler) HandleSetFault(w http.ResponseWriter, r *http.Request) {
	var req setFaultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	flag := vending.FaultFlag(req.Name)
	if err := h.faults.Set(flag, vending.FaultState{Active: req.Active, Rate: req.Rate}); err != nil {
		writeEngineError(w, err)
		return
	}
	h.logger.Info("fault flag updated",
		zap.String("flag", req.Name), zap.Bool("active", req.Active), zap.Float64("rate", req.Rate))
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleFaults handles GET /admin/faults/list.
func (h *AdminHandler) HandleFaults(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"faults": h.faults.Snapshot()})
}

type adjustInventoryRequest struct {
	Denomination int64 `json:"denomination"`
	Delta        int   `json:"delta"`
}

// HandleAdjustInventory handles POST /admin/inventory.
func (h *AdminHandler) HandleAdjustInventory(w http.ResponseWriter, r *http.Request) {
	var req adjustInventoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	count, err := h.inventory.Adjust(models.Denomination(req.Denomination), req.Delta)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	h.logger.Info("inventory adjusted",
		zap.Int64("denomination", req.Denomination), zap.Int("delta", req.Delta), zap.Int("count", count))
	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

// HandleInventory handles GET /admin/inventory/list.
func (h *AdminHandler) HandleInventory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"counts": h.inventory.Snapshot(),
		"total":  h.inventory.Total(),
	})
}

type setStockRequest struct {
	ProductID string `json:"product_id"`
	Level     int    `json:"level"`
}

// HandleSetStock handles POST /admin/stock.
func (h *AdminHandler) HandleSetStock(w http.ResponseWriter, r *http.Request) {
	var req setStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.catalog.SetStock(req.ProductID, req.Level); err != nil {
		writeEngineError(w, err)
		return
	}
	h.logger.Info("stock overridden",
		zap.String("product_id", req.ProductID), zap.Int("level", req.Level))
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
