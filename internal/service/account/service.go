// Package account implements the chart-of-accounts rules: sibling code
// uniqueness, child currency restrictions as subsets of the parent's,
// cycle-free moves, and deletion only for unreferenced leaves.
package account

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/ledgertree/ledgertree/internal/errs"
	"github.com/ledgertree/ledgertree/internal/ledger"
)

// Repo defines read operations needed by the service.
type Repo interface {
	Account(ctx context.Context, accountID uuid.UUID) (ledger.Account, error)
	AccountByFullCode(ctx context.Context, fullCode string) (ledger.Account, error)
	Accounts(ctx context.Context) ([]ledger.Account, error)
	Children(ctx context.Context, accountID uuid.UUID) ([]ledger.Account, error)
	Subtree(ctx context.Context, accountID uuid.UUID) ([]ledger.Account, error)
}

// Writer defines write operations needed by the service. Implementations
// must apply each mutation and the resulting tree renumbering atomically.
type Writer interface {
	CreateAccount(ctx context.Context, a ledger.Account) (ledger.Account, error)
	MoveAccount(ctx context.Context, accountID, newParentID uuid.UUID) error
	DeleteAccount(ctx context.Context, accountID uuid.UUID) error
}

// Service exposes creation and restructuring of the account tree.
type Service interface {
	Create(ctx context.Context, parentID uuid.UUID, code, name string, typ ledger.AccountType, currencies []string) (ledger.Account, error)
	Move(ctx context.Context, accountID, newParentID uuid.UUID) (ledger.Account, error)
	Delete(ctx context.Context, accountID uuid.UUID) error
	Get(ctx context.Context, accountID uuid.UUID) (ledger.Account, error)
	GetByFullCode(ctx context.Context, fullCode string) (ledger.Account, error)
	List(ctx context.Context) ([]ledger.Account, error)
	Subtree(ctx context.Context, accountID uuid.UUID) ([]ledger.Account, error)
	IsLeaf(ctx context.Context, accountID uuid.UUID) (bool, error)
}

type service struct {
	repo   Repo
	writer Writer
}

func New(repo Repo, writer Writer) Service { return &service{repo: repo, writer: writer} }

// Create validates and inserts a new account under parentID (uuid.Nil for a
// root). The stored account comes back with bounds and full code assigned.
func (s *service) Create(ctx context.Context, parentID uuid.UUID, code, name string, typ ledger.AccountType, currencies []string) (ledger.Account, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return ledger.Account{}, errs.Validation("code", "is required")
	}
	if name == "" {
		return ledger.Account{}, errs.Validation("name", "is required")
	}
	if !typ.Valid() {
		return ledger.Account{}, errs.Validation("type", "unknown account type "+string(typ))
	}
	normalized := make([]string, 0, len(currencies))
	for _, c := range currencies {
		nc, err := ledger.NormalizeCurrency(c)
		if err != nil {
			return ledger.Account{}, err
		}
		normalized = append(normalized, nc)
	}
	if parentID != uuid.Nil {
		parent, err := s.repo.Account(ctx, parentID)
		if err != nil {
			return ledger.Account{}, err
		}
		if err := checkCurrencySubset(parent, normalized); err != nil {
			return ledger.Account{}, err
		}
		siblings, err := s.repo.Children(ctx, parentID)
		if err != nil {
			return ledger.Account{}, err
		}
		for _, sib := range siblings {
			if sib.Code == code {
				return ledger.Account{}, errs.Validation("code", "duplicate sibling code "+code)
			}
		}
	}
	a := ledger.Account{
		ID:         uuid.New(),
		ParentID:   parentID,
		Code:       code,
		Name:       name,
		Type:       typ,
		Currencies: normalized,
	}
	return s.writer.CreateAccount(ctx, a)
}

// Move re-parents accountID under newParentID (uuid.Nil promotes it to a
// root). The moved subtree keeps its internal shape; bounds and full codes
// of every account in it are rewritten.
func (s *service) Move(ctx context.Context, accountID, newParentID uuid.UUID) (ledger.Account, error) {
	a, err := s.repo.Account(ctx, accountID)
	if err != nil {
		return ledger.Account{}, err
	}
	if newParentID != uuid.Nil {
		parent, err := s.repo.Account(ctx, newParentID)
		if err != nil {
			return ledger.Account{}, err
		}
		if parent.ID == a.ID || a.ContainsOrSelf(parent) {
			return ledger.Account{}, &errs.CycleError{AccountID: accountID.String()}
		}
		if err := checkCurrencySubset(parent, a.Currencies); err != nil {
			return ledger.Account{}, err
		}
	}
	if err := s.writer.MoveAccount(ctx, accountID, newParentID); err != nil {
		return ledger.Account{}, err
	}
	return s.repo.Account(ctx, accountID)
}

// Delete removes an account. Storage rejects the delete with a conflict if
// any leg references the account or it still has children; callers model
// corrections as reversing transactions instead of deletions.
func (s *service) Delete(ctx context.Context, accountID uuid.UUID) error {
	return s.writer.DeleteAccount(ctx, accountID)
}

func (s *service) Get(ctx context.Context, accountID uuid.UUID) (ledger.Account, error) {
	return s.repo.Account(ctx, accountID)
}

func (s *service) GetByFullCode(ctx context.Context, fullCode string) (ledger.Account, error) {
	return s.repo.AccountByFullCode(ctx, fullCode)
}

func (s *service) List(ctx context.Context) ([]ledger.Account, error) {
	return s.repo.Accounts(ctx)
}

// Subtree returns accountID and all of its descendants.
func (s *service) Subtree(ctx context.Context, accountID uuid.UUID) ([]ledger.Account, error) {
	return s.repo.Subtree(ctx, accountID)
}

// IsLeaf reports whether the account has no children.
func (s *service) IsLeaf(ctx context.Context, accountID uuid.UUID) (bool, error) {
	children, err := s.repo.Children(ctx, accountID)
	if err != nil {
		return false, err
	}
	return len(children) == 0, nil
}

// checkCurrencySubset enforces that a child's currency restriction is a
// subset of the parent's. An unrestricted child under a restricted parent is
// rejected: it would widen what the parent allows.
func checkCurrencySubset(parent ledger.Account, currencies []string) error {
	if len(parent.Currencies) == 0 {
		return nil
	}
	if len(currencies) == 0 {
		return errs.Validation("currencies", "parent restricts currencies, child must restrict too")
	}
	for _, c := range currencies {
		if !parent.AllowsCurrency(c) {
			return errs.Validation("currencies", "currency "+c+" not allowed by parent")
		}
	}
	return nil
}
