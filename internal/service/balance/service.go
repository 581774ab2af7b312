// Package balance computes account and subtree balances from committed
// transactions. It never writes; repeated reads with no intervening commits
// return identical results.
package balance

import (
	"context"
	"iter"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgertree/ledgertree/internal/ledger"
)

// Repo defines the read surface the engine aggregates over. Transactions
// come back ordered asc by (Date, ID) with the zero-sum invariant holding
// for every one of them. SubtreeTotals is the store's single
// range-scan-and-group-by-currency aggregate over the account's bound range;
// the Postgres backend answers it without shipping legs to the client.
type Repo interface {
	Subtree(ctx context.Context, accountID uuid.UUID) ([]ledger.Account, error)
	Transactions(ctx context.Context, asOf *time.Time) ([]ledger.Transaction, error)
	SubtreeTotals(ctx context.Context, accountID uuid.UUID, asOf *time.Time, positiveOnly bool) (map[string]decimal.Decimal, error)
}

// Service exposes balance computation over accounts and subtrees.
type Service interface {
	Balance(ctx context.Context, accountID uuid.UUID, asOf *time.Time) (map[string]decimal.Decimal, error)
	RunningBalance(ctx context.Context, accountID uuid.UUID, currency string) (iter.Seq2[ledger.Transaction, decimal.Decimal], error)
	Income(ctx context.Context, accountID uuid.UUID, asOf *time.Time) (map[string]decimal.Decimal, error)
}

type service struct {
	repo Repo
}

func New(repo Repo) Service { return &service{repo: repo} }

// Balance sums all committed legs posted anywhere in the account's subtree
// up to and including asOf (nil = all time), grouped by currency. A currency
// never posted is simply absent from the result.
func (s *service) Balance(ctx context.Context, accountID uuid.UUID, asOf *time.Time) (map[string]decimal.Decimal, error) {
	return s.repo.SubtreeTotals(ctx, accountID, asOf, false)
}

// Income sums only positive-signed legs in the subtree. It is a reporting
// view, not a stored fact.
func (s *service) Income(ctx context.Context, accountID uuid.UUID, asOf *time.Time) (map[string]decimal.Decimal, error) {
	return s.repo.SubtreeTotals(ctx, accountID, asOf, true)
}

// RunningBalance yields, for each transaction touching the account's subtree
// in the given currency, the cumulative balance after that transaction. The
// order is (Date, ID) ascending, the same total order everywhere in the
// ledger, so output is reproducible. The sequence is lazy and restartable:
// ranging over it twice replays from the start.
func (s *service) RunningBalance(ctx context.Context, accountID uuid.UUID, currency string) (iter.Seq2[ledger.Transaction, decimal.Decimal], error) {
	code, err := ledger.NormalizeCurrency(currency)
	if err != nil {
		return nil, err
	}
	members, err := s.subtreeIDs(ctx, accountID)
	if err != nil {
		return nil, err
	}
	// The transaction list is materialized up front; only the yielding is
	// lazy. Restartability depends on ranging over this one snapshot, so a
	// cursor-backed fetch would have to pin its own snapshot too.
	txs, err := s.repo.Transactions(ctx, nil)
	if err != nil {
		return nil, err
	}
	return func(yield func(ledger.Transaction, decimal.Decimal) bool) {
		running := decimal.Zero
		for _, tx := range txs {
			touched := false
			for _, leg := range tx.Legs {
				if leg.Amount.Currency != code {
					continue
				}
				if _, ok := members[leg.AccountID]; !ok {
					continue
				}
				running = running.Add(leg.Amount.Value)
				touched = true
			}
			if !touched {
				continue
			}
			if !yield(tx, running) {
				return
			}
		}
	}, nil
}

func (s *service) subtreeIDs(ctx context.Context, accountID uuid.UUID) (map[uuid.UUID]struct{}, error) {
	subtree, err := s.repo.Subtree(ctx, accountID)
	if err != nil {
		return nil, err
	}
	members := make(map[uuid.UUID]struct{}, len(subtree))
	for _, a := range subtree {
		members[a.ID] = struct{}{}
	}
	return members, nil
}
