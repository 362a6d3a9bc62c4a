package transport

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rhuss/relay/pkg/api"
	"github.com/rhuss/relay/pkg/storage"
)

// HTTPStatusFromError returns the status code for an APIError. Body-size
// and content-type failures are answered by the HTTP adapter directly.
func HTTPStatusFromError(err *api.APIError) int {
	return err.Type.Status()
}

// AsAPIError converts err into an APIError. APIErrors pass through; store
// not-found and conflict errors map to their API types; anything else is a
// server error.
func AsAPIError(err error) *api.APIError {
	var apiErr *api.APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, storage.ErrNotFound):
		return api.NewNotFoundError(err.Error())
	case errors.Is(err, storage.ErrConflict):
		return api.NewConflictError(err.Error())
	default:
		return api.NewServerError(err.Error())
	}
}

// WriteErrorResponse writes a JSON error response using the ErrorResponse
// wrapper format from pkg/api. It sets the Content-Type header and writes
// the HTTP status code.
func WriteErrorResponse(w http.ResponseWriter, apiErr *api.APIError, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(api.ErrorResponse{Error: apiErr})
}

// WriteAPIError writes an APIError response, deriving the HTTP status code
// from the error type.
func WriteAPIError(w http.ResponseWriter, apiErr *api.APIError) {
	WriteErrorResponse(w, apiErr, HTTPStatusFromError(apiErr))
}

// WriteError writes any error as an APIError response.
func WriteError(w http.ResponseWriter, err error) {
	WriteAPIError(w, AsAPIError(err))
}
