package errorutil

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes shared by the relay engine, the bot surface and the HTTP API.
const (
	CodeNotFound      = "NOT_FOUND"
	CodeAlreadyExists = "ALREADY_EXISTS"
	CodeStorage       = "STORAGE_ERROR"
	CodeRelayDelivery = "RELAY_DELIVERY_FAILED"
	CodeTimeout       = "TIMEOUT"
	CodeValidation    = "VALIDATION_FAILED"
	CodeTicketPending = "TICKET_PENDING"
	CodeUnauthorized  = "UNAUTHORIZED"
	CodeInternal      = "INTERNAL_ERROR"
)

// DomainError standardizes application errors. Message is safe to show to
// the party that triggered the operation.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

// NewNotFound reports a missing ticket or a failed correlation lookup.
func NewNotFound(message string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return NewDomainError(CodeNotFound, message, http.StatusNotFound, details)
}

func NewAlreadyExists(message string, details map[string]any) error {
	return NewDomainError(CodeAlreadyExists, message, http.StatusConflict, details)
}

// NewTicketPending rejects activity on a ticket staff have not picked up yet.
func NewTicketPending(message string) error {
	return NewDomainError(CodeTicketPending, message, http.StatusConflict, nil)
}

// NewStorageError wraps a persistence failure. The operation must be treated
// as not applied.
func NewStorageError(op string, err error) error {
	return &DomainError{
		Code:       CodeStorage,
		Message:    "storage unavailable, please try again later",
		HTTPStatus: http.StatusServiceUnavailable,
		Details:    map[string]any{"op": op},
		Err:        err,
	}
}

// NewRelayDeliveryError wraps a failed send or edit on the messaging platform.
func NewRelayDeliveryError(message string, err error) error {
	return &DomainError{
		Code:       CodeRelayDelivery,
		Message:    message,
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

func NewTimeout(message string) error {
	return NewDomainError(CodeTimeout, message, http.StatusRequestTimeout, nil)
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// HasCode reports whether err carries a DomainError with the given code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		return false
	}
	return domainErr.Code == code
}

func IsNotFound(err error) bool      { return HasCode(err, CodeNotFound) }
func IsAlreadyExists(err error) bool { return HasCode(err, CodeAlreadyExists) }
func IsStorage(err error) bool       { return HasCode(err, CodeStorage) }
func IsTimeout(err error) bool       { return HasCode(err, CodeTimeout) }
