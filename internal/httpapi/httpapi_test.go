package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ledgertree/ledgertree/internal/config"
	"github.com/ledgertree/ledgertree/internal/ledger"
	"github.com/ledgertree/ledgertree/internal/storage/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type acctResp struct {
	ID       string `json:"id"`
	ParentID string `json:"parent_id"`
	Code     string `json:"code"`
	FullCode string `json:"full_code"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Depth    int    `json:"depth"`
}

type txResp struct {
	ID            string    `json:"id"`
	CorrelationID string    `json:"correlation_id"`
	Date          time.Time `json:"date"`
	Description   string    `json:"description"`
	Legs          []struct {
		ID        string `json:"id"`
		AccountID string `json:"account_id"`
		Amount    string `json:"amount"`
		Currency  string `json:"currency"`
	} `json:"legs"`
}

type errResp struct {
	Error    string `json:"error"`
	Code     string `json:"code"`
	Currency string `json:"currency"`
	Total    string `json:"total"`
}

func setup(t *testing.T) (*memory.Store, http.Handler) {
	t.Helper()
	store := memory.New()
	h := New(store, config.Default(), testLogger()).Handler()
	return store, h
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func createAccount(t *testing.T, h http.Handler, parentID, code, typ string) acctResp {
	t.Helper()
	body := map[string]any{"code": code, "name": "account " + code, "type": typ}
	if parentID != "" {
		body["parent_id"] = parentID
	}
	rec := doJSON(t, h, http.MethodPost, "/v1/accounts", body, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var a acctResp
	if err := json.Unmarshal(rec.Body.Bytes(), &a); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return a
}

func postBalanced(t *testing.T, h http.Handler, debit, credit, amount string) txResp {
	t.Helper()
	body := map[string]any{
		"date":        "2024-01-15T00:00:00Z",
		"description": "posting",
		"legs": []map[string]any{
			{"account_id": debit, "amount": amount, "currency": "USD"},
			{"account_id": credit, "amount": "-" + amount, "currency": "USD"},
		},
	}
	rec := doJSON(t, h, http.MethodPost, "/v1/transactions", body, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var tx txResp
	if err := json.Unmarshal(rec.Body.Bytes(), &tx); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return tx
}

func TestAccounts_CreateGetMove(t *testing.T) {
	_, h := setup(t)
	root := createAccount(t, h, "", "1", "asset")
	child := createAccount(t, h, root.ID, "1", "asset")
	if child.FullCode != "11" {
		t.Fatalf("unexpected full code: %q", child.FullCode)
	}

	// Fetch by ID and by full code.
	for _, key := range []string{child.ID, "11"} {
		rec := doJSON(t, h, http.MethodGet, "/v1/accounts/"+key, nil, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("get %q: expected 200, got %d", key, rec.Code)
		}
	}

	dest := createAccount(t, h, "", "2", "asset")
	rec := doJSON(t, h, http.MethodPost, "/v1/accounts/"+child.ID+"/move", map[string]any{"new_parent_id": dest.ID}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("move: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var moved acctResp
	if err := json.Unmarshal(rec.Body.Bytes(), &moved); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if moved.FullCode != "21" {
		t.Fatalf("unexpected full code after move: %q", moved.FullCode)
	}
}

func TestAccounts_MoveCycleRejected(t *testing.T) {
	_, h := setup(t)
	root := createAccount(t, h, "", "1", "asset")
	child := createAccount(t, h, root.ID, "2", "asset")

	rec := doJSON(t, h, http.MethodPost, "/v1/accounts/"+root.ID+"/move", map[string]any{"new_parent_id": child.ID}, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAccounts_DeleteReferencedConflict(t *testing.T) {
	_, h := setup(t)
	bank := createAccount(t, h, "", "1", "asset")
	income := createAccount(t, h, "", "4", "income")
	postBalanced(t, h, bank.ID, income.ID, "10")

	rec := doJSON(t, h, http.MethodDelete, "/v1/accounts/"+bank.ID, nil, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestTransactions_PostAndImbalance(t *testing.T) {
	_, h := setup(t)
	bank := createAccount(t, h, "", "1", "asset")
	income := createAccount(t, h, "", "4", "income")

	tx := postBalanced(t, h, bank.ID, income.ID, "100")
	if len(tx.Legs) != 2 || tx.CorrelationID == uuid.Nil.String() {
		t.Fatalf("unexpected transaction: %+v", tx)
	}

	// Unbalanced commit is rejected with the offending currency and residual.
	body := map[string]any{
		"date": "2024-01-15T00:00:00Z",
		"legs": []map[string]any{
			{"account_id": bank.ID, "amount": "50", "currency": "USD"},
			{"account_id": income.ID, "amount": "-40", "currency": "USD"},
		},
	}
	rec := doJSON(t, h, http.MethodPost, "/v1/transactions", body, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
	var er errResp
	if err := json.Unmarshal(rec.Body.Bytes(), &er); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if er.Currency != "USD" || er.Total != "10" {
		t.Fatalf("unexpected imbalance payload: %+v", er)
	}

	// Nothing from the rejected commit is visible.
	rec = doJSON(t, h, http.MethodGet, "/v1/transactions", nil, nil)
	var list []txResp
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 committed transaction, got %d", len(list))
	}
}

func TestTransactions_ZeroLegRejected(t *testing.T) {
	_, h := setup(t)
	bank := createAccount(t, h, "", "1", "asset")
	body := map[string]any{
		"date": "2024-01-15T00:00:00Z",
		"legs": []map[string]any{{"account_id": bank.ID, "amount": "0", "currency": "USD"}},
	}
	rec := doJSON(t, h, http.MethodPost, "/v1/transactions", body, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestTransactions_IdempotencyKey(t *testing.T) {
	_, h := setup(t)
	bank := createAccount(t, h, "", "1", "asset")
	income := createAccount(t, h, "", "4", "income")
	body := map[string]any{
		"date": "2024-01-15T00:00:00Z",
		"legs": []map[string]any{
			{"account_id": bank.ID, "amount": "25", "currency": "USD"},
			{"account_id": income.ID, "amount": "-25", "currency": "USD"},
		},
	}
	hdr := map[string]string{"Idempotency-Key": "req-1"}

	rec := doJSON(t, h, http.MethodPost, "/v1/transactions", body, hdr)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var first txResp
	if err := json.Unmarshal(rec.Body.Bytes(), &first); err != nil {
		t.Fatalf("decode: %v", err)
	}

	// Retry with the same key returns the original, not a duplicate.
	rec = doJSON(t, h, http.MethodPost, "/v1/transactions", body, hdr)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on replay, got %d: %s", rec.Code, rec.Body.String())
	}
	var second txResp
	if err := json.Unmarshal(rec.Body.Bytes(), &second); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("replay created a new transaction: %s vs %s", first.ID, second.ID)
	}

	rec = doJSON(t, h, http.MethodGet, "/v1/transactions", nil, nil)
	var list []txResp
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(list))
	}
}

// flakyIdemStore fails idempotency lookups while fail is set; everything
// else passes through to the memory store.
type flakyIdemStore struct {
	*memory.Store
	fail bool
}

func (s *flakyIdemStore) TransactionByIdempotencyKey(ctx context.Context, key string) (ledger.Transaction, bool, error) {
	if s.fail {
		return ledger.Transaction{}, false, errors.New("connection reset")
	}
	return s.Store.TransactionByIdempotencyKey(ctx, key)
}

func TestTransactions_IdempotencyLookupFault(t *testing.T) {
	store := &flakyIdemStore{Store: memory.New()}
	h := New(store, config.Default(), testLogger()).Handler()
	bank := createAccount(t, h, "", "1", "asset")
	income := createAccount(t, h, "", "4", "income")
	body := map[string]any{
		"date": "2024-01-15T00:00:00Z",
		"legs": []map[string]any{
			{"account_id": bank.ID, "amount": "25", "currency": "USD"},
			{"account_id": income.ID, "amount": "-25", "currency": "USD"},
		},
	}
	hdr := map[string]string{"Idempotency-Key": "req-1"}

	// While the key's status cannot be resolved, nothing may be committed.
	store.fail = true
	rec := doJSON(t, h, http.MethodPost, "/v1/transactions", body, hdr)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, h, http.MethodGet, "/v1/transactions", nil, nil)
	var list []txResp
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected no committed transactions, got %d", len(list))
	}

	// The retry after the fault clears posts exactly once.
	store.fail = false
	rec = doJSON(t, h, http.MethodPost, "/v1/transactions", body, hdr)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, h, http.MethodGet, "/v1/transactions", nil, nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 committed transaction, got %d", len(list))
	}
}

func TestTransactions_Reverse(t *testing.T) {
	_, h := setup(t)
	bank := createAccount(t, h, "", "1", "asset")
	income := createAccount(t, h, "", "4", "income")
	tx := postBalanced(t, h, bank.ID, income.ID, "30")

	rec := doJSON(t, h, http.MethodPost, "/v1/transactions/"+tx.ID+"/reverse", map[string]any{}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	// The subtree balance nets to zero after the reversal.
	rec = doJSON(t, h, http.MethodGet, "/v1/accounts/"+bank.ID+"/balance", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var bal struct {
		Balances map[string]string `json:"balances"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &bal); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if bal.Balances["USD"] != "0" {
		t.Fatalf("expected zero balance, got %q", bal.Balances["USD"])
	}
}

func TestBalance_DisplaySign(t *testing.T) {
	_, h := setup(t)
	bank := createAccount(t, h, "", "1", "asset")
	income := createAccount(t, h, "", "4", "income")
	postBalanced(t, h, bank.ID, income.ID, "100")

	rec := doJSON(t, h, http.MethodGet, "/v1/accounts/"+income.ID+"/balance", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var bal struct {
		Balances map[string]string `json:"balances"`
		Display  map[string]string `json:"display"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &bal); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if bal.Balances["USD"] != "-100" {
		t.Fatalf("stored balance: got %q", bal.Balances["USD"])
	}
	if bal.Display["USD"] != "100" {
		t.Fatalf("display balance: got %q", bal.Display["USD"])
	}
}

func TestLedger_RunningBalance(t *testing.T) {
	_, h := setup(t)
	bank := createAccount(t, h, "", "1", "asset")
	income := createAccount(t, h, "", "4", "income")
	postBalanced(t, h, bank.ID, income.ID, "10")
	postBalanced(t, h, bank.ID, income.ID, "5")

	rec := doJSON(t, h, http.MethodGet, "/v1/accounts/"+bank.ID+"/ledger?currency=USD", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var out struct {
		Entries []struct {
			Balance string `json:"balance"`
		} `json:"entries"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(out.Entries))
	}
	if out.Entries[1].Balance != "15" {
		t.Fatalf("running balance: got %q", out.Entries[1].Balance)
	}

	// currency is required
	rec = doJSON(t, h, http.MethodGet, "/v1/accounts/"+bank.ID+"/ledger", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSubtree(t *testing.T) {
	_, h := setup(t)
	root := createAccount(t, h, "", "1", "asset")
	createAccount(t, h, root.ID, "1", "asset")
	createAccount(t, h, "", "2", "asset")

	rec := doJSON(t, h, http.MethodGet, "/v1/accounts/"+root.ID+"/subtree", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var out []acctResp
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(out))
	}
}

func TestUnknownJSONFieldRejected(t *testing.T) {
	_, h := setup(t)
	rec := doJSON(t, h, http.MethodPost, "/v1/accounts", map[string]any{"code": "1", "name": "x", "type": "asset", "bogus": true}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHealthAndReady(t *testing.T) {
	_, h := setup(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		rec := doJSON(t, h, http.MethodGet, path, nil, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rec.Code)
		}
	}
}
