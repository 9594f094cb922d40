package coordinator

import (
	"encoding/json"
	"net/http"

	"github.com/lakeforge/lakeforge/internal/apperrors"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}

// writeAppError maps a tagged error from apperrors to an HTTP status and
// a stable error code, falling back to 500 for anything unrecognized.
func writeAppError(w http.ResponseWriter, err error) {
	switch {
	case apperrors.IsInvalidInput(err):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
	case apperrors.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case apperrors.IsTimeout(err):
		writeError(w, http.StatusGatewayTimeout, "timeout", err.Error())
	case apperrors.IsTransient(err):
		writeError(w, http.StatusServiceUnavailable, "bus_error", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "execution_error", err.Error())
	}
}
