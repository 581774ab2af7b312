package httpapi

import (
	"errors"
	"net/http"

	"github.com/ledgertree/ledgertree/internal/errs"
)

// errorResponse is the standard error payload for the API.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	// Currency and Total are set for imbalance errors only.
	Currency string `json:"currency,omitempty"`
	Total    string `json:"total,omitempty"`
}

func writeErr(w http.ResponseWriter, status int, msg, code string) {
	toJSON(w, status, errorResponse{Error: msg, Code: code})
}

func badRequest(w http.ResponseWriter, msg string) { writeErr(w, http.StatusBadRequest, msg, "") }
func notFound(w http.ResponseWriter)               { writeErr(w, http.StatusNotFound, "not_found", "not_found") }
func conflict(w http.ResponseWriter, msg string)   { writeErr(w, http.StatusConflict, msg, "conflict") }

// writeDomainErr maps core error types onto HTTP statuses and codes.
func writeDomainErr(w http.ResponseWriter, err error) {
	var imbalance *errs.ImbalanceError
	var cycle *errs.CycleError
	var validation *errs.ValidationError
	var storage *errs.StorageError
	switch {
	case errors.As(err, &imbalance):
		toJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:    imbalance.Error(),
			Code:     "imbalance",
			Currency: imbalance.Currency,
			Total:    imbalance.Total.String(),
		})
	case errors.As(err, &cycle):
		writeErr(w, http.StatusUnprocessableEntity, cycle.Error(), "cycle")
	case errors.Is(err, errs.ErrEmptyTransaction):
		writeErr(w, http.StatusUnprocessableEntity, "transaction has no legs", "empty_transaction")
	case errors.Is(err, errs.ErrCommitted):
		writeErr(w, http.StatusConflict, "transaction already committed", "already_committed")
	case errors.As(err, &validation):
		writeErr(w, http.StatusUnprocessableEntity, validation.Error(), "validation_error")
	case errors.Is(err, errs.ErrInvalid):
		writeErr(w, http.StatusBadRequest, err.Error(), "invalid")
	case errors.Is(err, errs.ErrNotFound):
		notFound(w)
	case errors.Is(err, errs.ErrConflict):
		conflict(w, err.Error())
	case errors.As(err, &storage):
		writeErr(w, http.StatusServiceUnavailable, "storage unavailable, safe to retry", "storage_error")
	default:
		writeErr(w, http.StatusInternalServerError, "internal error", "")
	}
}
