package handlers

import (
	"encoding/json"
	"net/http"

	"vendsim/internal/vending"
)

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeEngineError maps an engine error to an HTTP status and serializes
// its code alongside the message.
func writeEngineError(w http.ResponseWriter, err error) {
	e, ok := vending.AsEngineError(err)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, statusForCode(e.Code), map[string]string{
		"error": e.Message,
		"code":  string(e.Code),
	})
}

func statusForCode(code vending.ErrorCode) int {
	switch code {
	case vending.CodeInvalidState:
		return http.StatusConflict
	case vending.CodeProductNotFound, vending.CodeUnknownFaultFlag:
		return http.StatusNotFound
	case vending.CodeUnknownDenomination:
		return http.StatusBadRequest
	case vending.CodeCashInsertTooFast:
		return http.StatusTooManyRequests
	case vending.CodeSessionTimeout:
		return http.StatusRequestTimeout
	default:
		// Resource and fault errors: the request was well-formed, the
		// machine just cannot satisfy it right now.
		return http.StatusUnprocessableEntity
	}
}
