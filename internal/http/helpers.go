package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"fondo/internal/core"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`

	// Set for balance violations only.
	Person     string `json:"person,omitempty"`
	Project    string `json:"project,omitempty"`
	SubProject string `json:"sub_project,omitempty"`
	Balance    string `json:"balance,omitempty"`
}

// writeError maps the domain error taxonomy to HTTP statuses. Anything
// unrecognized is an infrastructure failure and stays opaque.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var balErr *core.BalanceError
	if errors.As(err, &balErr) {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:      balErr.Error(),
			Person:     balErr.Person,
			Project:    balErr.Project,
			SubProject: balErr.SubProject,
			Balance:    balErr.Balance.String(),
		})
		return
	}

	switch {
	case errors.Is(err, core.ErrNotFound),
		errors.Is(err, core.ErrUnknownPerson),
		errors.Is(err, core.ErrUnknownProject),
		errors.Is(err, core.ErrUnknownSubProject):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, core.ErrDuplicateName),
		errors.Is(err, core.ErrReferenced):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidKind),
		errors.Is(err, core.ErrEmptyName),
		errors.Is(err, core.ErrInvalidName):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
	default:
		slog.ErrorContext(r.Context(), "Request failed",
			"error", err,
			"method", r.Method,
			"url", r.URL.Path)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		slog.ErrorContext(r.Context(), "Parse JSON body error",
			"error", err, "method", r.Method, "url", r.URL.Path)
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return false
	}
	return true
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}
