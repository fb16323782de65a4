package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pbinitiative/zentask/internal/log"
	"github.com/pbinitiative/zentask/pkg/humantask"
	"github.com/pbinitiative/zentask/pkg/processor"
	"github.com/pbinitiative/zentask/pkg/reconcile"
	"github.com/pbinitiative/zentask/pkg/storage"
)

type ApiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, resp ApiError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body, err := json.Marshal(resp)
	if err != nil {
		log.Errorf(r.Context(), "Server error: %s", err)
		return
	}
	_, _ = w.Write(body)
}

func writeBadRequest(w http.ResponseWriter, r *http.Request, msg string) {
	writeError(w, r, http.StatusBadRequest, ApiError{Type: "BAD_REQUEST", Message: msg})
}

// writeProcessorError maps errors of the processor to responses.
func writeProcessorError(w http.ResponseWriter, r *http.Request, err error) {
	var noOwners *humantask.NoPotentialOwnersForTaskError
	var dataSize *reconcile.DataSizeLimitExceededError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, r, http.StatusNotFound, ApiError{Type: "NOT_FOUND", Message: err.Error()})
	case errors.Is(err, storage.ErrLocked):
		writeError(w, r, http.StatusConflict, ApiError{Type: "LOCKED", Message: err.Error()})
	case errors.Is(err, processor.ErrInstanceNotActive):
		writeError(w, r, http.StatusConflict, ApiError{Type: "INVALID_STATUS", Message: err.Error()})
	case errors.Is(err, processor.ErrNotAuthorized):
		writeError(w, r, http.StatusForbidden, ApiError{Type: "FORBIDDEN", Message: err.Error()})
	case errors.As(err, &noOwners):
		writeError(w, r, http.StatusUnprocessableEntity, ApiError{Type: "NO_POTENTIAL_OWNERS", Message: err.Error()})
	case errors.As(err, &dataSize):
		writeError(w, r, http.StatusUnprocessableEntity, ApiError{Type: "DATA_SIZE_LIMIT_EXCEEDED", Message: err.Error()})
	default:
		log.Errorf(r.Context(), "Request %s %s failed: %s", r.Method, r.URL.Path, err)
		writeError(w, r, http.StatusInternalServerError, ApiError{Type: "ERROR", Message: err.Error()})
	}
}
