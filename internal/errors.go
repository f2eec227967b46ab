package internal

import (
	"encoding/json"
	"fmt"
	"net/http"
)

type ErrorType string

const (
	ErrorTypeValidation  ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound    ErrorType = "NOT_FOUND"
	ErrorTypeConflict    ErrorType = "CONFLICT"
	ErrorTypeUnavailable ErrorType = "UNAVAILABLE"
	ErrorTypeRejected    ErrorType = "REJECTED"
	ErrorTypeInternal    ErrorType = "INTERNAL_ERROR"
)

type ErrorCode string

const (
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidAmount    ErrorCode = "INVALID_AMOUNT"
	ErrCodeInvalidCurrency  ErrorCode = "INVALID_CURRENCY"

	ErrCodePaymentNotFound     ErrorCode = "PAYMENT_NOT_FOUND"
	ErrCodeOrderAlreadyPaid    ErrorCode = "ORDER_ALREADY_PAID"
	ErrCodeInvalidTransition   ErrorCode = "INVALID_TRANSITION"
	ErrCodeConflictingTerminal ErrorCode = "CONFLICTING_TERMINAL_STATE"
	ErrCodeAmountMismatch      ErrorCode = "AMOUNT_MISMATCH"
	ErrCodeRefundNotAllowed    ErrorCode = "REFUND_NOT_ALLOWED"

	ErrCodeUnknownGateway       ErrorCode = "UNKNOWN_GATEWAY"
	ErrCodeGatewayUnavailable   ErrorCode = "GATEWAY_UNAVAILABLE"
	ErrCodeGatewayRejected      ErrorCode = "GATEWAY_REJECTED"
	ErrCodeGatewayNotFound      ErrorCode = "GATEWAY_TRANSACTION_NOT_FOUND"
	ErrCodeInvalidSignature     ErrorCode = "INVALID_SIGNATURE"
	ErrCodeInsufficientAuth     ErrorCode = "INSUFFICIENT_AUTHORIZATION"
	ErrCodeAmountExceedsCapture ErrorCode = "AMOUNT_EXCEEDS_CAPTURED"
)

type AppError struct {
	Type       ErrorType   `json:"type"`
	Code       ErrorCode   `json:"code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	StatusCode int         `json:"-"`
	Cause      error       `json:"-"`
	// Retryable marks transient failures the caller may safely retry.
	Retryable bool `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithCause(cause error) *AppError {
	clone := *e
	clone.Cause = cause
	return &clone
}

func (e *AppError) WithDetails(details interface{}) *AppError {
	clone := *e
	clone.Details = details
	return &clone
}

// ValidationError describes a single rejected field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func NewValidationError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewValidationFieldError(field, message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       ErrCodeValidationFailed,
		Message:    "validation failed",
		StatusCode: http.StatusBadRequest,
		Details: ValidationErrors{
			Errors: []ValidationError{
				{Field: field, Message: message, Code: string(code)},
			},
		},
	}
}

func NewNotFoundError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

func NewConflictError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func NewUnavailableError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeUnavailable,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Retryable:  true,
	}
}

func NewRejectedError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeRejected,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
	}
}

func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

var (
	ErrPaymentNotFound          = NewNotFoundError("payment not found", ErrCodePaymentNotFound)
	ErrOrderAlreadyPaid         = NewConflictError("order already has a live payment attempt", ErrCodeOrderAlreadyPaid)
	ErrInvalidTransition        = NewConflictError("payment status transition not allowed", ErrCodeInvalidTransition)
	ErrConflictingTerminalState = NewConflictError("payment already in a different terminal state", ErrCodeConflictingTerminal)
	ErrAmountMismatch           = NewRejectedError("observed amount does not match recorded payment amount", ErrCodeAmountMismatch)
	ErrRefundNotAllowed         = NewConflictError("refund only allowed for succeeded payments", ErrCodeRefundNotAllowed)

	ErrUnknownGateway            = NewNotFoundError("payment gateway not registered", ErrCodeUnknownGateway)
	ErrGatewayUnavailable        = NewUnavailableError("payment gateway unreachable", ErrCodeGatewayUnavailable)
	ErrGatewayRejected           = NewRejectedError("payment gateway rejected the request", ErrCodeGatewayRejected)
	ErrGatewayNotFound           = NewNotFoundError("gateway has no record of this transaction", ErrCodeGatewayNotFound)
	ErrInvalidSignature          = NewRejectedError("webhook signature verification failed", ErrCodeInvalidSignature)
	ErrInsufficientAuthorization = NewRejectedError("refund not authorized for this transaction", ErrCodeInsufficientAuth)
	ErrAmountExceedsCaptured     = NewRejectedError("refund amount exceeds captured amount", ErrCodeAmountExceedsCapture)
)

func IsAppError(err error) (*AppError, bool) {
	if appErr, ok := err.(*AppError); ok {
		return appErr, true
	}
	return nil, false
}

// IsRetryable reports whether err is a transient failure the caller may retry.
func IsRetryable(err error) bool {
	if appErr, ok := IsAppError(err); ok {
		return appErr.Retryable
	}
	return false
}

type Response struct {
	Error *AppError `json:"error"`
}

func (e *AppError) ToHTTPResponse() (int, interface{}) {
	return e.StatusCode, Response{Error: e}
}

func (e *AppError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    ErrorType   `json:"type"`
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Details interface{} `json:"details,omitempty"`
	}{
		Type:    e.Type,
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
}
