// Package memory is an in-memory storage backend used for development and
// tests. A single RWMutex guards all state: writers (account mutations,
// transaction commits) hold the write lock for their whole unit of work, so
// readers can never observe a half-committed transaction or a partially
// renumbered tree.
package memory

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgertree/ledgertree/internal/errs"
	"github.com/ledgertree/ledgertree/internal/ledger"
	"github.com/ledgertree/ledgertree/internal/nestedset"
)

// txKey orders committed transactions asc by (Date, ID).
type txKey struct {
	Date time.Time
	ID   uuid.UUID
}

// Store is the in-memory implementation of the repository and writer
// interfaces declared by the service packages.
type Store struct {
	mu         sync.RWMutex
	accounts   map[uuid.UUID]ledger.Account
	byFullCode map[string]uuid.UUID
	txs        map[uuid.UUID]*ledger.Transaction
	txKeys     []txKey
	// Idempotency: key -> committed transaction ID.
	idem map[string]uuid.UUID
}

// New constructs an empty store.
func New() *Store {
	return &Store{
		accounts:   make(map[uuid.UUID]ledger.Account),
		byFullCode: make(map[string]uuid.UUID),
		txs:        make(map[uuid.UUID]*ledger.Transaction),
		idem:       make(map[string]uuid.UUID),
	}
}

// Ready reports storage liveness; the memory store is always ready.
func (s *Store) Ready(context.Context) error { return nil }

// --- Accounts ---

// CreateAccount inserts the account and renumbers the tree. It enforces the
// structural invariants that survive races on the service-layer checks:
// sibling code uniqueness and, transitively, full-code uniqueness.
func (s *Store) CreateAccount(_ context.Context, a ledger.Account) (ledger.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ParentID != uuid.Nil {
		if _, ok := s.accounts[a.ParentID]; !ok {
			return ledger.Account{}, errs.ErrNotFound
		}
	}
	for _, other := range s.accounts {
		if other.ParentID == a.ParentID && other.Code == a.Code {
			return ledger.Account{}, errs.ErrConflict
		}
	}
	s.accounts[a.ID] = a
	if err := s.rebuildLocked(); err != nil {
		delete(s.accounts, a.ID)
		return ledger.Account{}, err
	}
	return s.accounts[a.ID], nil
}

// MoveAccount re-parents an account and renumbers bounds and full codes for
// the whole tree. The caller (account service) has already rejected cycles;
// the store still refuses a move that would break sibling code uniqueness.
func (s *Store) MoveAccount(_ context.Context, accountID, newParentID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return errs.ErrNotFound
	}
	if newParentID != uuid.Nil {
		if _, ok := s.accounts[newParentID]; !ok {
			return errs.ErrNotFound
		}
	}
	for _, other := range s.accounts {
		if other.ID != accountID && other.ParentID == newParentID && other.Code == a.Code {
			return errs.ErrConflict
		}
	}
	prevParent := a.ParentID
	a.ParentID = newParentID
	s.accounts[accountID] = a
	if err := s.rebuildLocked(); err != nil {
		a.ParentID = prevParent
		s.accounts[accountID] = a
		_ = s.rebuildLocked()
		return err
	}
	return nil
}

// DeleteAccount removes an account that has no children and no legs.
func (s *Store) DeleteAccount(_ context.Context, accountID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return errs.ErrNotFound
	}
	for _, other := range s.accounts {
		if other.ParentID == accountID {
			return errs.ErrConflict
		}
	}
	for _, tx := range s.txs {
		for _, leg := range tx.Legs {
			if leg.AccountID == accountID {
				return errs.ErrConflict
			}
		}
	}
	delete(s.accounts, accountID)
	delete(s.byFullCode, a.FullCode)
	return s.rebuildLocked()
}

// Account returns a single account by ID.
func (s *Store) Account(_ context.Context, accountID uuid.UUID) (ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return ledger.Account{}, errs.ErrNotFound
	}
	return a, nil
}

// AccountByFullCode resolves an account via its chart-wide unique full code.
func (s *Store) AccountByFullCode(_ context.Context, fullCode string) (ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byFullCode[fullCode]
	if !ok {
		return ledger.Account{}, errs.ErrNotFound
	}
	return s.accounts[id], nil
}

// Accounts returns the whole chart in depth-first (Lft) order.
func (s *Store) Accounts(_ context.Context) ([]ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Lft < out[j].Lft })
	return out, nil
}

// Children returns the direct children of an account, ordered by code.
func (s *Store) Children(_ context.Context, accountID uuid.UUID) ([]ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.accounts[accountID]; !ok {
		return nil, errs.ErrNotFound
	}
	out := make([]ledger.Account, 0)
	for _, a := range s.accounts {
		if a.ParentID == accountID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// Subtree returns the account and all descendants as a single bound-range
// scan over the Lft-ordered chart, not a recursive walk.
func (s *Store) Subtree(_ context.Context, accountID uuid.UUID) ([]ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	root, ok := s.accounts[accountID]
	if !ok {
		return nil, errs.ErrNotFound
	}
	out := make([]ledger.Account, 0, 8)
	for _, a := range s.accounts {
		if root.ContainsOrSelf(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Lft < out[j].Lft })
	return out, nil
}

// SubtreeTotals sums legs posted anywhere in the account's subtree up to and
// including asOf (nil = all time), grouped by currency. positiveOnly keeps
// only debit legs, the income view.
func (s *Store) SubtreeTotals(_ context.Context, accountID uuid.UUID, asOf *time.Time, positiveOnly bool) (map[string]decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	root, ok := s.accounts[accountID]
	if !ok {
		return nil, errs.ErrNotFound
	}
	end := len(s.txKeys)
	if asOf != nil {
		end = sort.Search(len(s.txKeys), func(i int) bool { return s.txKeys[i].Date.After(*asOf) })
	}
	out := make(map[string]decimal.Decimal)
	for _, k := range s.txKeys[:end] {
		for _, leg := range s.txs[k.ID].Legs {
			a, ok := s.accounts[leg.AccountID]
			if !ok || !root.ContainsOrSelf(a) {
				continue
			}
			if positiveOnly && leg.Amount.Value.Sign() <= 0 {
				continue
			}
			out[leg.Amount.Currency] = out[leg.Amount.Currency].Add(leg.Amount.Value)
		}
	}
	return out, nil
}

// rebuildLocked renumbers bounds and full codes. Caller holds the write lock.
func (s *Store) rebuildLocked() error {
	list := make([]ledger.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		list = append(list, a)
	}
	rebuilt, err := nestedset.Rebuild(list)
	if err != nil {
		return err
	}
	byFullCode := make(map[string]uuid.UUID, len(rebuilt))
	for _, a := range rebuilt {
		if _, dup := byFullCode[a.FullCode]; dup {
			return errs.ErrConflict
		}
		byFullCode[a.FullCode] = a.ID
	}
	for _, a := range rebuilt {
		s.accounts[a.ID] = a
	}
	s.byFullCode = byFullCode
	return nil
}

// --- Transactions ---

// CreateTransaction persists a committed transaction and its legs as one
// unit under the write lock. The journal has already validated the zero-sum
// invariant; nothing between lock acquisition and return can observe the
// transaction partially written.
func (s *Store) CreateTransaction(_ context.Context, tx ledger.Transaction) (ledger.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.txs[tx.ID]; exists {
		return ledger.Transaction{}, errs.ErrConflict
	}
	for _, leg := range tx.Legs {
		if _, ok := s.accounts[leg.AccountID]; !ok {
			return ledger.Transaction{}, errs.ErrNotFound
		}
	}
	cp := tx
	cp.Legs = make([]ledger.Leg, len(tx.Legs))
	copy(cp.Legs, tx.Legs)
	s.txs[cp.ID] = &cp
	s.insertTxKeyLocked(txKey{Date: cp.Date, ID: cp.ID})
	return cp, nil
}

// Transaction returns a committed transaction by ID.
func (s *Store) Transaction(_ context.Context, txID uuid.UUID) (ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.txs[txID]
	if !ok {
		return ledger.Transaction{}, errs.ErrNotFound
	}
	return cloneTx(tx), nil
}

// Transactions returns committed transactions up to and including asOf
// (nil = all time), ordered asc by (Date, ID).
func (s *Store) Transactions(_ context.Context, asOf *time.Time) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	end := len(s.txKeys)
	if asOf != nil {
		end = sort.Search(len(s.txKeys), func(i int) bool { return s.txKeys[i].Date.After(*asOf) })
	}
	out := make([]ledger.Transaction, 0, end)
	for _, k := range s.txKeys[:end] {
		out = append(out, cloneTx(s.txs[k.ID]))
	}
	return out, nil
}

// TransactionByIdempotencyKey resolves a previously committed transaction.
func (s *Store) TransactionByIdempotencyKey(_ context.Context, key string) (ledger.Transaction, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.idem[key]
	if !ok {
		return ledger.Transaction{}, false, nil
	}
	tx, ok := s.txs[id]
	if !ok {
		return ledger.Transaction{}, false, nil
	}
	return cloneTx(tx), true, nil
}

// SaveIdempotencyKey records key -> transaction, first writer wins.
func (s *Store) SaveIdempotencyKey(_ context.Context, key string, txID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.idem[key]; !exists {
		s.idem[key] = txID
	}
	return nil
}

// insertTxKeyLocked inserts k keeping the index sorted asc by (Date, ID).
// Caller holds the write lock.
func (s *Store) insertTxKeyLocked(k txKey) {
	i := sort.Search(len(s.txKeys), func(i int) bool {
		if s.txKeys[i].Date.After(k.Date) {
			return true
		}
		if s.txKeys[i].Date.Equal(k.Date) {
			return bytes.Compare(s.txKeys[i].ID[:], k.ID[:]) > 0
		}
		return false
	})
	s.txKeys = append(s.txKeys, txKey{})
	copy(s.txKeys[i+1:], s.txKeys[i:])
	s.txKeys[i] = k
}

func cloneTx(tx *ledger.Transaction) ledger.Transaction {
	cp := *tx
	cp.Legs = make([]ledger.Leg, len(tx.Legs))
	copy(cp.Legs, tx.Legs)
	return cp
}
