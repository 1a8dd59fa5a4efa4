package vending

import "fmt"

// ErrorKind groups error codes by recovery class.
type ErrorKind string

// Error kinds.
const (
	KindValidation ErrorKind = "validation"
	KindResource   ErrorKind = "resource"
	KindFault      ErrorKind = "fault"
	KindTiming     ErrorKind = "timing"
)

// ErrorCode identifies one failure mode of the engine.
type ErrorCode string

// Error codes.
const (
	CodeInvalidState        ErrorCode = "INVALID_STATE"
	CodeProductNotFound     ErrorCode = "PRODUCT_NOT_FOUND"
	CodeUnknownDenomination ErrorCode = "UNKNOWN_DENOMINATION"
	CodeUnknownFaultFlag    ErrorCode = "UNKNOWN_FAULT_FLAG"
	CodeOutOfStock          ErrorCode = "OUT_OF_STOCK"
	CodeChangeShortage      ErrorCode = "CHANGE_SHORTAGE"
	CodeInsufficientFunds   ErrorCode = "INSUFFICIENT_FUNDS"
	CodeCardReaderFault     ErrorCode = "CARD_READER_FAULT"
	CodeCardPaymentReject   ErrorCode = "CARD_PAYMENT_REJECT"
	CodeDispenseFailure     ErrorCode = "DISPENSE_FAILURE"
	CodeCashInsertTooFast   ErrorCode = "CASH_INSERT_TOO_FAST"
	CodeSessionTimeout      ErrorCode = "SESSION_TIMEOUT"
)

// Error is the only error type crossing the engine boundary. Every command
// failure is one of these; nothing panics across the session boundary.
type Error struct {
	Code    ErrorCode
	Kind    ErrorKind
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newError(code ErrorCode, kind ErrorKind, format string, args ...any) *Error {
	return &Error{Code: code, Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func errInvalidState(status Status, command string) *Error {
	return newError(CodeInvalidState, KindValidation, "command %s not valid in status %s", command, status)
}

// AsEngineError unwraps err into *Error when possible.
func AsEngineError(err error) (*Error, bool) {
	e, ok := err.(*Error)
	return e, ok
}

// CodeOf returns the engine error code, or empty for foreign errors.
func CodeOf(err error) ErrorCode {
	if e, ok := AsEngineError(err); ok {
		return e.Code
	}
	return ""
}
