package httpapi

import (
	"net/http"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ledgertree/ledgertree/internal/ledger"
)

// postAccount handles POST /v1/accounts.
func (s *Server) postAccount(w http.ResponseWriter, r *http.Request) {
	if !requireJSON(w, r) {
		return
	}
	var payload postAccountRequest
	if !decodeJSON(w, r, &payload) {
		return
	}
	parentID := uuid.Nil
	if payload.ParentID != nil {
		parentID = *payload.ParentID
	}
	a, err := s.accountSvc.Create(r.Context(), parentID, payload.Code, payload.Name, payload.Type, payload.Currencies)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	toJSON(w, http.StatusCreated, toAccountResponse(a))
}

// listAccounts handles GET /v1/accounts. Accounts come back in depth-first
// order, so a client can render the tree by indenting on depth.
func (s *Server) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.accountSvc.List(r.Context())
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	out := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, toAccountResponse(a))
	}
	toJSON(w, http.StatusOK, out)
}

// getAccount handles GET /v1/accounts/{id}. The id may also be a full code.
func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	var err error
	if id, parseErr := uuid.Parse(idStr); parseErr == nil {
		var acc ledger.Account
		if acc, err = s.accountSvc.Get(r.Context(), id); err == nil {
			toJSON(w, http.StatusOK, toAccountResponse(acc))
			return
		}
	} else {
		var acc ledger.Account
		if acc, err = s.accountSvc.GetByFullCode(r.Context(), idStr); err == nil {
			toJSON(w, http.StatusOK, toAccountResponse(acc))
			return
		}
	}
	writeDomainErr(w, err)
}

// deleteAccount handles DELETE /v1/accounts/{id}. Accounts referenced by
// legs or with children cannot be deleted.
func (s *Server) deleteAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}
	if err := s.accountSvc.Delete(r.Context(), id); err != nil {
		writeDomainErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// moveAccount handles POST /v1/accounts/{id}/move.
func (s *Server) moveAccount(w http.ResponseWriter, r *http.Request) {
	if !requireJSON(w, r) {
		return
	}
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}
	var payload moveAccountRequest
	if !decodeJSON(w, r, &payload) {
		return
	}
	newParentID := uuid.Nil
	if payload.NewParentID != nil {
		newParentID = *payload.NewParentID
	}
	a, err := s.accountSvc.Move(r.Context(), id, newParentID)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, toAccountResponse(a))
}

// getSubtree handles GET /v1/accounts/{id}/subtree.
func (s *Server) getSubtree(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}
	accounts, err := s.accountSvc.Subtree(r.Context(), id)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	out := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, toAccountResponse(a))
	}
	toJSON(w, http.StatusOK, out)
}

func parseIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		badRequest(w, "invalid account id")
		return uuid.Nil, false
	}
	return id, true
}
