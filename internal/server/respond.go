package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/limiquantix/addrpool/internal/domain"
)

// ErrorResponse is the JSON body of every failed API call.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// statusFor maps a service error to an HTTP status and a stable error code.
// A reservation refused on an exhausted pool reports the exhaustion.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrAddressNotFound):
		return http.StatusNotFound, "address_not_found"
	case errors.Is(err, domain.ErrPoolExhausted):
		return http.StatusUnprocessableEntity, "pool_exhausted"
	case errors.Is(err, domain.ErrAddressNotReservable):
		return http.StatusUnprocessableEntity, "address_not_reservable"
	case errors.Is(err, domain.ErrAddressAlreadyAssigned):
		return http.StatusConflict, "address_already_assigned"
	case errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict, "already_exists"
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, domain.ErrInvalidAddressFormat):
		return http.StatusBadRequest, "invalid_address_format"
	case errors.Is(err, domain.ErrInvalidSubnetInput):
		return http.StatusBadRequest, "invalid_subnet_input"
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, domain.ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// writeJSON writes a JSON response.
func writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode JSON response", zap.Error(err))
	}
}

// writeError writes the error response for err. Internal errors are logged
// and their details withheld.
func writeError(logger *zap.Logger, w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error("Request failed", zap.Error(err))
		message = "internal server error"
	}
	writeJSON(logger, w, status, ErrorResponse{Error: message, Code: code})
}

// writeBadRequest writes a 400 response with a fixed message.
func writeBadRequest(logger *zap.Logger, w http.ResponseWriter, message string) {
	writeJSON(logger, w, http.StatusBadRequest, ErrorResponse{Error: message, Code: "invalid_argument"})
}

func methodNotAllowed(w http.ResponseWriter) {
	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
}

// decodeBody decodes a JSON request body into dest.
func decodeBody(r *http.Request, dest interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dest)
}
