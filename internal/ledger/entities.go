package ledger

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AccountType enumerates the broad classification of an account in the chart.
type AccountType string

const (
	// AccountTypeAsset increases on the debit side and holds owned resources.
	AccountTypeAsset AccountType = "asset"
	// AccountTypeLiability increases on the credit side and tracks obligations.
	AccountTypeLiability AccountType = "liability"
	// AccountTypeEquity captures the owner's residual interest in the entity.
	AccountTypeEquity AccountType = "equity"
	// AccountTypeIncome represents inflows that increase equity.
	AccountTypeIncome AccountType = "income"
	// AccountTypeExpense represents outflows that decrease equity.
	AccountTypeExpense AccountType = "expense"
)

// Valid reports whether t is one of the known account types.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeIncome, AccountTypeExpense:
		return true
	}
	return false
}

// DisplaySign returns the factor a presentation layer multiplies stored sums
// by. Storage is uniformly signed (debit positive); liability, equity and
// income accounts are conventionally shown with the sign flipped.
func (t AccountType) DisplaySign() int {
	switch t {
	case AccountTypeLiability, AccountTypeEquity, AccountTypeIncome:
		return -1
	default:
		return 1
	}
}

// Account is a node in the hierarchical chart of accounts. Non-leaf accounts
// aggregate their descendants; postings may target any account.
type Account struct {
	ID       uuid.UUID
	ParentID uuid.UUID // uuid.Nil for roots
	// Code is the leaf-level short code, unique among siblings.
	Code string
	// FullCode is the concatenation of ancestor codes down to this account,
	// unique across the whole chart. Derived; rewritten on every tree change.
	FullCode string
	Name     string
	Type     AccountType
	// Currencies restricts which currency codes may be posted to this
	// account. Empty means unrestricted.
	Currencies []string
	// Nested-set bounds. A is an ancestor of B iff A.Lft < B.Lft && B.Rght < A.Rght.
	Lft   int
	Rght  int
	Depth int
}

// AllowsCurrency reports whether code may be posted to the account.
func (a Account) AllowsCurrency(code string) bool {
	if len(a.Currencies) == 0 {
		return true
	}
	return slices.ContainsFunc(a.Currencies, func(c string) bool {
		return strings.EqualFold(c, code)
	})
}

// Contains reports whether b lies strictly inside a's subtree.
func (a Account) Contains(b Account) bool {
	return a.Lft < b.Lft && b.Rght < a.Rght
}

// ContainsOrSelf reports subtree membership including a itself.
func (a Account) ContainsOrSelf(b Account) bool {
	return a.Lft <= b.Lft && b.Rght <= a.Rght
}

// Transaction is an atomic, committed group of legs. Committed transactions
// and their legs are immutable; corrections are posted as new reversing
// transactions.
type Transaction struct {
	ID uuid.UUID
	// CorrelationID is the externally-facing identifier, distinct from the
	// storage key.
	CorrelationID uuid.UUID
	// Timestamp is the commit time, set once by the journal on commit.
	Timestamp time.Time
	// Date is the caller-supplied business/effective date.
	Date        time.Time
	Description string
	// Legs are ordered for display only; order carries no meaning.
	Legs []Leg
}

// Leg is one signed, currency-tagged posting against one account.
// Positive amounts are debits, negative amounts are credits.
type Leg struct {
	ID            uuid.UUID
	TransactionID uuid.UUID
	AccountID     uuid.UUID
	Amount        Amount
	// Description optionally overrides the transaction's description for
	// this leg.
	Description string
}
