package httpapi

import (
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"
)

// getBalance handles GET /v1/accounts/{id}/balance?as_of=RFC3339. The
// response carries both the stored (debit-positive) sums and the
// display-sign version for the account's type.
func (s *Server) getBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}
	asOf, ok := parseAsOf(w, r)
	if !ok {
		return
	}
	acc, err := s.accountSvc.Get(r.Context(), id)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	balances, err := s.balanceSvc.Balance(r.Context(), id, asOf)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	display := make(map[string]decimal.Decimal, len(balances))
	for currency, v := range balances {
		if acc.Type.DisplaySign() < 0 {
			v = v.Neg()
		}
		display[currency] = v
	}
	toJSON(w, http.StatusOK, balanceResponse{AccountID: id, AsOf: asOf, Balances: balances, Display: display})
}

// getIncome handles GET /v1/accounts/{id}/income?as_of=RFC3339 — the sum of
// positive legs only.
func (s *Server) getIncome(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}
	asOf, ok := parseAsOf(w, r)
	if !ok {
		return
	}
	sums, err := s.balanceSvc.Income(r.Context(), id, asOf)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, map[string]any{"account_id": id, "as_of": asOf, "income": sums})
}

// getLedger handles GET /v1/accounts/{id}/ledger?currency=USD&limit=N — the
// running balance, ordered by (date, id).
func (s *Server) getLedger(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}
	currency := r.URL.Query().Get("currency")
	if currency == "" {
		badRequest(w, "currency is required")
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			badRequest(w, "invalid limit")
			return
		}
		limit = n
	}
	seq, err := s.balanceSvc.RunningBalance(r.Context(), id, currency)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	resp := ledgerResponse{AccountID: id, Currency: currency, Entries: make([]ledgerEntryResponse, 0)}
	for tx, balance := range seq {
		resp.Entries = append(resp.Entries, ledgerEntryResponse{
			TransactionID: tx.ID,
			CorrelationID: tx.CorrelationID,
			Date:          tx.Date,
			Description:   tx.Description,
			Balance:       balance,
		})
		if limit > 0 && len(resp.Entries) >= limit {
			break
		}
	}
	toJSON(w, http.StatusOK, resp)
}
