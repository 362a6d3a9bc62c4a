package api

import (
	"fmt"
	"net/http"
)

// ErrorType classifies an API error. Each type maps to one HTTP status.
type ErrorType string

const (
	ErrorTypeInvalidRequest  ErrorType = "invalid_request"
	ErrorTypeUnauthorized    ErrorType = "unauthorized"
	ErrorTypeNotFound        ErrorType = "not_found"
	ErrorTypeConflict        ErrorType = "conflict"
	ErrorTypeTooManyRequests ErrorType = "too_many_requests"
	ErrorTypeServerError     ErrorType = "server_error"
	ErrorTypeOracleError     ErrorType = "oracle_error"
	ErrorTypeUnavailable     ErrorType = "unavailable"
)

// Status returns the HTTP status for the type. Unknown types are server
// errors.
func (t ErrorType) Status() int {
	switch t {
	case ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case ErrorTypeUnauthorized:
		return http.StatusUnauthorized
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeConflict:
		return http.StatusConflict
	case ErrorTypeTooManyRequests:
		return http.StatusTooManyRequests
	case ErrorTypeOracleError:
		return http.StatusBadGateway
	case ErrorTypeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// APIError is the error body of every non-2xx relay response and of
// chat error events.
type APIError struct {
	Type    ErrorType `json:"type"`
	Code    string    `json:"code,omitempty"`
	Param   string    `json:"param,omitempty"`
	Message string    `json:"message"`
}

func (e *APIError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s: %s (param: %s)", e.Type, e.Message, e.Param)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Is matches another APIError of the same type, and the same code when the
// target sets one. errors.Is(err, &APIError{Type: ErrorTypeNotFound})
// therefore works through wrapping.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return t.Type == e.Type && (t.Code == "" || t.Code == e.Code)
}

// ErrorResponse is the JSON envelope around an APIError.
type ErrorResponse struct {
	Error *APIError `json:"error"`
}

func newError(t ErrorType, message string) *APIError {
	return &APIError{Type: t, Message: message}
}

// NewInvalidRequestError reports a bad request field.
func NewInvalidRequestError(param, message string) *APIError {
	e := newError(ErrorTypeInvalidRequest, message)
	e.Param = param
	return e
}

// NewNotFoundError reports an unknown capability, task or session.
func NewNotFoundError(message string) *APIError { return newError(ErrorTypeNotFound, message) }

// NewConflictError reports a session that already runs a chain.
func NewConflictError(message string) *APIError { return newError(ErrorTypeConflict, message) }

func NewUnauthorizedError(message string) *APIError { return newError(ErrorTypeUnauthorized, message) }

func NewServerError(message string) *APIError { return newError(ErrorTypeServerError, message) }

// NewOracleError reports a reasoning backend failure.
func NewOracleError(message string) *APIError { return newError(ErrorTypeOracleError, message) }

func NewTooManyRequestsError(message string) *APIError {
	return newError(ErrorTypeTooManyRequests, message)
}

// NewUnavailableError reports that the service is draining or a dependency
// is down.
func NewUnavailableError(message string) *APIError { return newError(ErrorTypeUnavailable, message) }
