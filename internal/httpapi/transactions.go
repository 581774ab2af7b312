package httpapi

import (
	"errors"
	"net/http"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ledgertree/ledgertree/internal/errs"
)

// postTransaction handles POST /v1/transactions. The whole transaction
// arrives in one request; the handler drives the draft protocol (begin, add
// legs, commit) so the invariant enforcer sees every commit. An optional
// Idempotency-Key header makes retries safe across transport faults.
func (s *Server) postTransaction(w http.ResponseWriter, r *http.Request) {
	if !requireJSON(w, r) {
		return
	}
	idemKey := r.Header.Get("Idempotency-Key")
	if idemKey != "" {
		existing, ok, err := s.idem.TransactionByIdempotencyKey(r.Context(), idemKey)
		if err != nil {
			// Committing while the key's status is unknown risks a
			// double-post; the caller retries against the same key.
			writeDomainErr(w, errs.Storage("idempotency lookup", err))
			return
		}
		if ok {
			toJSON(w, http.StatusOK, toTransactionResponse(existing))
			return
		}
	}
	var payload postTransactionRequest
	if !decodeJSON(w, r, &payload) {
		return
	}
	if payload.Date.IsZero() {
		badRequest(w, "date is required")
		return
	}
	d := s.journalSvc.Begin(payload.Date, payload.Description)
	for _, leg := range payload.Legs {
		if _, err := s.journalSvc.AddLeg(r.Context(), d, leg.AccountID, leg.Amount, leg.Currency, leg.Description); err != nil {
			commitsRejected.WithLabelValues("leg_validation").Inc()
			writeDomainErr(w, err)
			return
		}
	}
	tx, err := s.journalSvc.Commit(r.Context(), d)
	if err != nil {
		var imbalance *errs.ImbalanceError
		switch {
		case errors.As(err, &imbalance):
			commitsRejected.WithLabelValues("imbalance").Inc()
		case errors.Is(err, errs.ErrEmptyTransaction):
			commitsRejected.WithLabelValues("empty").Inc()
		}
		writeDomainErr(w, err)
		return
	}
	transactionsCommitted.Inc()
	if idemKey != "" {
		if err := s.idem.SaveIdempotencyKey(r.Context(), idemKey, tx.ID); err != nil {
			s.log.Error("save idempotency key", "err", err)
		}
	}
	toJSON(w, http.StatusCreated, toTransactionResponse(tx))
}

// listTransactions handles GET /v1/transactions?as_of=RFC3339.
func (s *Server) listTransactions(w http.ResponseWriter, r *http.Request) {
	asOf, ok := parseAsOf(w, r)
	if !ok {
		return
	}
	txs, err := s.journalSvc.List(r.Context(), asOf)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	out := make([]transactionResponse, 0, len(txs))
	for _, tx := range txs {
		out = append(out, toTransactionResponse(tx))
	}
	toJSON(w, http.StatusOK, out)
}

// getTransaction handles GET /v1/transactions/{id}.
func (s *Server) getTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		badRequest(w, "invalid transaction id")
		return
	}
	tx, err := s.journalSvc.Get(r.Context(), id)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, toTransactionResponse(tx))
}

// reverseTransaction handles POST /v1/transactions/{id}/reverse. The
// original stays untouched; a new sign-flipped transaction is committed.
func (s *Server) reverseTransaction(w http.ResponseWriter, r *http.Request) {
	if !requireJSON(w, r) {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		badRequest(w, "invalid transaction id")
		return
	}
	var payload reverseTransactionRequest
	if !decodeJSON(w, r, &payload) {
		return
	}
	date := time.Now().UTC()
	if payload.Date != nil {
		date = payload.Date.UTC()
	}
	tx, err := s.journalSvc.Reverse(r.Context(), id, date)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	transactionsCommitted.Inc()
	toJSON(w, http.StatusCreated, toTransactionResponse(tx))
}

func parseAsOf(w http.ResponseWriter, r *http.Request) (*time.Time, bool) {
	v := r.URL.Query().Get("as_of")
	if v == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		badRequest(w, "invalid as_of")
		return nil, false
	}
	tt := t.UTC()
	return &tt, true
}
