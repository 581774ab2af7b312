// Package journal owns the write path of the ledger: drafts, leg validation,
// and the commit protocol that never lets an unbalanced transaction become
// durable or visible.
package journal

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgertree/ledgertree/internal/config"
	"github.com/ledgertree/ledgertree/internal/errs"
	"github.com/ledgertree/ledgertree/internal/ledger"
)

// Repo defines read operations needed by the service.
type Repo interface {
	Account(ctx context.Context, accountID uuid.UUID) (ledger.Account, error)
	Transaction(ctx context.Context, txID uuid.UUID) (ledger.Transaction, error)
	Transactions(ctx context.Context, asOf *time.Time) ([]ledger.Transaction, error)
}

// Writer persists a committed transaction together with all of its legs as
// one atomic unit: after an error, no row from the attempt is observable.
type Writer interface {
	CreateTransaction(ctx context.Context, tx ledger.Transaction) (ledger.Transaction, error)
}

// Service exposes draft construction and the commit boundary.
type Service interface {
	Begin(date time.Time, description string) *Draft
	AddLeg(ctx context.Context, d *Draft, accountID uuid.UUID, value decimal.Decimal, currency, description string) (uuid.UUID, error)
	RemoveLeg(d *Draft, legID uuid.UUID) error
	Commit(ctx context.Context, d *Draft) (ledger.Transaction, error)
	Reverse(ctx context.Context, txID uuid.UUID, date time.Time) (ledger.Transaction, error)
	Get(ctx context.Context, txID uuid.UUID) (ledger.Transaction, error)
	List(ctx context.Context, asOf *time.Time) ([]ledger.Transaction, error)
}

type service struct {
	cfg    config.Config
	repo   Repo
	writer Writer
	// now is swapped in tests for a deterministic commit timestamp.
	now func() time.Time
}

func New(cfg config.Config, repo Repo, writer Writer) Service {
	return &service{cfg: cfg, repo: repo, writer: writer, now: func() time.Time { return time.Now().UTC() }}
}

// Begin opens a draft. The business date is caller-supplied; the commit
// timestamp is assigned once, at Commit.
func (s *service) Begin(date time.Time, description string) *Draft {
	return &Draft{
		id:            uuid.New(),
		correlationID: uuid.New(),
		date:          date.UTC(),
		description:   description,
	}
}

// AddLeg validates and stages one leg on the draft. An empty currency code
// takes the configured default. Validation failures leave the draft exactly
// as it was.
func (s *service) AddLeg(ctx context.Context, d *Draft, accountID uuid.UUID, value decimal.Decimal, currency, description string) (uuid.UUID, error) {
	if currency == "" {
		currency = s.cfg.DefaultCurrency
	}
	amount, err := ledger.NewAmount(value, currency)
	if err != nil {
		return uuid.Nil, err
	}
	if amount.IsZero() {
		return uuid.Nil, errs.Validation("amount", "must be non-zero")
	}
	if err := s.cfg.CheckAmount(amount.Value); err != nil {
		return uuid.Nil, err
	}
	account, err := s.repo.Account(ctx, accountID)
	if err != nil {
		return uuid.Nil, err
	}
	if !account.AllowsCurrency(amount.Currency) {
		return uuid.Nil, errs.Validation("currency", amount.Currency+" not allowed on account "+account.FullCode)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.committed {
		return uuid.Nil, errs.ErrCommitted
	}
	leg := ledger.Leg{
		ID:            uuid.New(),
		TransactionID: d.id,
		AccountID:     accountID,
		Amount:        amount,
		Description:   description,
	}
	d.legs = append(d.legs, leg)
	return leg.ID, nil
}

// RemoveLeg discards a staged leg. Only valid before commit.
func (s *service) RemoveLeg(d *Draft, legID uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.committed {
		return errs.ErrCommitted
	}
	for i, leg := range d.legs {
		if leg.ID == legID {
			d.legs = append(d.legs[:i], d.legs[i+1:]...)
			return nil
		}
	}
	return errs.ErrNotFound
}

// Commit validates the zero-sum invariant and persists the transaction
// atomically. On any failure the store is untouched and the draft stays
// open, so the caller can adjust legs and retry. A draft commits at most
// once.
func (s *service) Commit(ctx context.Context, d *Draft) (ledger.Transaction, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.committed {
		return ledger.Transaction{}, errs.ErrCommitted
	}
	if err := validate(d.legs); err != nil {
		return ledger.Transaction{}, err
	}
	tx := ledger.Transaction{
		ID:            d.id,
		CorrelationID: d.correlationID,
		Timestamp:     s.now(),
		Date:          d.date,
		Description:   d.description,
		Legs:          make([]ledger.Leg, len(d.legs)),
	}
	copy(tx.Legs, d.legs)
	created, err := s.writer.CreateTransaction(ctx, tx)
	if err != nil {
		return ledger.Transaction{}, errs.Storage("create transaction", err)
	}
	d.committed = true
	return created, nil
}

// Reverse posts a new transaction whose legs are the sign-flipped legs of an
// existing one. This is the correction model: committed transactions are
// never mutated or deleted.
func (s *service) Reverse(ctx context.Context, txID uuid.UUID, date time.Time) (ledger.Transaction, error) {
	orig, err := s.repo.Transaction(ctx, txID)
	if err != nil {
		return ledger.Transaction{}, err
	}
	d := s.Begin(date, "reversal of "+orig.CorrelationID.String())
	for _, leg := range orig.Legs {
		if _, err := s.AddLeg(ctx, d, leg.AccountID, leg.Amount.Value.Neg(), leg.Amount.Currency, leg.Description); err != nil {
			return ledger.Transaction{}, err
		}
	}
	return s.Commit(ctx, d)
}

func (s *service) Get(ctx context.Context, txID uuid.UUID) (ledger.Transaction, error) {
	return s.repo.Transaction(ctx, txID)
}

func (s *service) List(ctx context.Context, asOf *time.Time) ([]ledger.Transaction, error) {
	return s.repo.Transactions(ctx, asOf)
}

// validate is the invariant enforcer: every currency among the legs must sum
// to exactly zero. It runs synchronously inside Commit, before anything is
// handed to storage. Currencies are checked in sorted order so the reported
// offender is deterministic.
func validate(legs []ledger.Leg) error {
	if len(legs) == 0 {
		return errs.ErrEmptyTransaction
	}
	sums := make(map[string]decimal.Decimal, 2)
	for _, leg := range legs {
		sums[leg.Amount.Currency] = sums[leg.Amount.Currency].Add(leg.Amount.Value)
	}
	currencies := make([]string, 0, len(sums))
	for c := range sums {
		currencies = append(currencies, c)
	}
	sort.Strings(currencies)
	for _, c := range currencies {
		if !sums[c].IsZero() {
			return &errs.ImbalanceError{Currency: c, Total: sums[c]}
		}
	}
	return nil
}
