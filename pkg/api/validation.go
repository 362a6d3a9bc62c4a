package api

import (
	"fmt"
	"regexp"
	"unicode/utf8"
)

// ValidationConfig holds configurable limits for request validation.
type ValidationConfig struct {
	MaxMessageSize int
	MaxArguments   int
}

// DefaultValidationConfig returns a ValidationConfig with sensible defaults.
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		MaxMessageSize: 64 * 1024,
		MaxArguments:   64,
	}
}

var capabilityNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.:/-]{1,128}$`)

// ValidateCapabilityName reports whether name can name a capability.
func ValidateCapabilityName(name string) bool {
	return capabilityNamePattern.MatchString(name)
}

// ValidateChatRequest checks a ChatRequest. It returns an *APIError for the
// first failure, or nil.
func ValidateChatRequest(req *ChatRequest, cfg ValidationConfig) *APIError {
	if req.Message == "" {
		return NewInvalidRequestError("message", "message is required")
	}
	if !utf8.ValidString(req.Message) {
		return NewInvalidRequestError("message", "message must be valid UTF-8")
	}
	if cfg.MaxMessageSize > 0 && len(req.Message) > cfg.MaxMessageSize {
		return NewInvalidRequestError("message",
			fmt.Sprintf("message exceeds maximum of %d bytes", cfg.MaxMessageSize))
	}
	if req.SessionID != "" && !ValidateSessionID(req.SessionID) {
		return NewInvalidRequestError("session_id", "malformed session id")
	}
	return nil
}

// ValidateInvokeRequest checks an InvokeRequest. Schema conformance of the
// arguments is checked by the capability registry, not here.
func ValidateInvokeRequest(req *InvokeRequest, cfg ValidationConfig) *APIError {
	if cfg.MaxArguments > 0 && len(req.Arguments) > cfg.MaxArguments {
		return NewInvalidRequestError("arguments",
			fmt.Sprintf("arguments exceed maximum of %d keys", cfg.MaxArguments))
	}
	return nil
}

// ValidateTaskStatus checks a status filter value. Empty means no filter.
func ValidateTaskStatus(status string) *APIError {
	switch status {
	case "", "PENDING", "RUNNING", "COMPLETED", "FAILED":
		return nil
	}
	return NewInvalidRequestError("status", "status must be one of PENDING, RUNNING, COMPLETED, FAILED")
}
