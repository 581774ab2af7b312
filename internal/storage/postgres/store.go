// Package postgres is the pgx-backed storage backend. Every multi-row
// mutation (transaction commit, tree renumbering) runs inside one database
// transaction, so readers on snapshot isolation never observe a
// half-committed ledger transaction or a partially renumbered tree.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ledgertree/ledgertree/internal/errs"
	"github.com/ledgertree/ledgertree/internal/ledger"
	"github.com/ledgertree/ledgertree/internal/nestedset"
)

// Store holds a pgx connection pool. All methods are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// Open runs the embedded migrations, establishes a pool and verifies
// connectivity.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if err := Migrate(dsn); err != nil {
		return nil, err
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ready pings the pool to verify connectivity.
func (s *Store) Ready(ctx context.Context) error { return s.pool.Ping(ctx) }

const accountCols = `id, parent_id, code, full_code, name, type, currencies, lft, rght, depth`

// --- Accounts ---

// CreateAccount inserts the account and renumbers the tree inside one
// database transaction. Sibling and full-code uniqueness come back as
// conflicts from the unique indexes.
func (s *Store) CreateAccount(ctx context.Context, a ledger.Account) (ledger.Account, error) {
	var out ledger.Account
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			insert into accounts (id, parent_id, code, full_code, name, type, currencies, lft, rght, depth)
			values ($1, $2, $3, $4, $5, $6, $7, 0, 0, 0)
		`, a.ID, nullableID(a.ParentID), a.Code, a.ID.String(), a.Name, a.Type, a.Currencies); err != nil {
			return mapPgErr(err)
		}
		if err := s.renumberLocked(ctx, tx); err != nil {
			return err
		}
		got, err := scanAccountRow(tx.QueryRow(ctx, `select `+accountCols+` from accounts where id = $1`, a.ID))
		if err != nil {
			return err
		}
		out = got
		return nil
	})
	if err != nil {
		return ledger.Account{}, err
	}
	return out, nil
}

// MoveAccount re-parents the account and renumbers the tree in one database
// transaction. Row locks taken by the renumbering serialize concurrent
// structural changes; balance reads are not blocked.
func (s *Store) MoveAccount(ctx context.Context, accountID, newParentID uuid.UUID) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		ct, err := tx.Exec(ctx, `update accounts set parent_id = $2 where id = $1`, accountID, nullableID(newParentID))
		if err != nil {
			return mapPgErr(err)
		}
		if ct.RowsAffected() == 0 {
			return errs.ErrNotFound
		}
		return s.renumberLocked(ctx, tx)
	})
}

// DeleteAccount removes an account with no children and no legs.
func (s *Store) DeleteAccount(ctx context.Context, accountID uuid.UUID) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		var children, legs int
		if err := tx.QueryRow(ctx, `select count(*) from accounts where parent_id = $1`, accountID).Scan(&children); err != nil {
			return err
		}
		if err := tx.QueryRow(ctx, `select count(*) from legs where account_id = $1`, accountID).Scan(&legs); err != nil {
			return err
		}
		if children > 0 || legs > 0 {
			return errs.ErrConflict
		}
		ct, err := tx.Exec(ctx, `delete from accounts where id = $1`, accountID)
		if err != nil {
			return mapPgErr(err)
		}
		if ct.RowsAffected() == 0 {
			return errs.ErrNotFound
		}
		return s.renumberLocked(ctx, tx)
	})
}

// Account returns a single account by ID.
func (s *Store) Account(ctx context.Context, accountID uuid.UUID) (ledger.Account, error) {
	return scanAccountRow(s.pool.QueryRow(ctx, `select `+accountCols+` from accounts where id = $1`, accountID))
}

// AccountByFullCode resolves an account via its chart-wide unique full code.
func (s *Store) AccountByFullCode(ctx context.Context, fullCode string) (ledger.Account, error) {
	return scanAccountRow(s.pool.QueryRow(ctx, `select `+accountCols+` from accounts where full_code = $1`, fullCode))
}

// Accounts returns the whole chart in depth-first (lft) order.
func (s *Store) Accounts(ctx context.Context) ([]ledger.Account, error) {
	rows, err := s.pool.Query(ctx, `select `+accountCols+` from accounts order by lft`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAccounts(rows)
}

// Children returns the direct children of an account, ordered by code.
func (s *Store) Children(ctx context.Context, accountID uuid.UUID) ([]ledger.Account, error) {
	if _, err := s.Account(ctx, accountID); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `select `+accountCols+` from accounts where parent_id = $1 order by code`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAccounts(rows)
}

// Subtree returns the account and descendants with a single bound-range scan.
func (s *Store) Subtree(ctx context.Context, accountID uuid.UUID) ([]ledger.Account, error) {
	root, err := s.Account(ctx, accountID)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
		select `+accountCols+` from accounts
		where lft >= $1 and rght <= $2
		order by lft
	`, root.Lft, root.Rght)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAccounts(rows)
}

// renumberLocked locks every account row, recomputes bounds and full codes
// in Go, and writes back the rows that changed. Caller supplies the open
// database transaction.
func (s *Store) renumberLocked(ctx context.Context, tx pgx.Tx) error {
	rows, err := tx.Query(ctx, `select `+accountCols+` from accounts order by lft for update`)
	if err != nil {
		return err
	}
	accounts, err := scanAccounts(rows)
	rows.Close()
	if err != nil {
		return err
	}
	rebuilt, err := nestedset.Rebuild(accounts)
	if err != nil {
		return err
	}
	prev := make(map[uuid.UUID]ledger.Account, len(accounts))
	for _, a := range accounts {
		prev[a.ID] = a
	}
	for _, a := range rebuilt {
		old := prev[a.ID]
		if old.Lft == a.Lft && old.Rght == a.Rght && old.Depth == a.Depth && old.FullCode == a.FullCode {
			continue
		}
		if _, err := tx.Exec(ctx, `
			update accounts set full_code = $2, lft = $3, rght = $4, depth = $5 where id = $1
		`, a.ID, a.FullCode, a.Lft, a.Rght, a.Depth); err != nil {
			return mapPgErr(err)
		}
	}
	return nil
}

// --- Transactions ---

// CreateTransaction inserts the transaction header and all legs in one
// database transaction: all-or-nothing, exactly the commit atomicity the
// journal relies on.
func (s *Store) CreateTransaction(ctx context.Context, t ledger.Transaction) (ledger.Transaction, error) {
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			insert into transactions (id, correlation_id, ts, date, description)
			values ($1, $2, $3, $4, $5)
		`, t.ID, t.CorrelationID, t.Timestamp, t.Date, t.Description); err != nil {
			return mapPgErr(err)
		}
		for _, leg := range t.Legs {
			if _, err := tx.Exec(ctx, `
				insert into legs (id, transaction_id, account_id, amount, currency, description)
				values ($1, $2, $3, $4, $5, $6)
			`, leg.ID, t.ID, leg.AccountID, leg.Amount.Value.String(), leg.Amount.Currency, leg.Description); err != nil {
				return fmt.Errorf("insert leg: %w", mapPgErr(err))
			}
		}
		return nil
	})
	if err != nil {
		return ledger.Transaction{}, err
	}
	return t, nil
}

// Transaction returns a committed transaction by ID with legs populated.
func (s *Store) Transaction(ctx context.Context, txID uuid.UUID) (ledger.Transaction, error) {
	var t ledger.Transaction
	err := s.pool.QueryRow(ctx, `
		select id, correlation_id, ts, date, description from transactions where id = $1
	`, txID).Scan(&t.ID, &t.CorrelationID, &t.Timestamp, &t.Date, &t.Description)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Transaction{}, errs.ErrNotFound
	}
	if err != nil {
		return ledger.Transaction{}, err
	}
	rows, err := s.pool.Query(ctx, `
		select id, transaction_id, account_id, amount::text, currency, description
		from legs where transaction_id = $1 order by id
	`, txID)
	if err != nil {
		return ledger.Transaction{}, err
	}
	defer rows.Close()
	t.Legs, err = scanLegs(rows)
	if err != nil {
		return ledger.Transaction{}, err
	}
	return t, nil
}

// Transactions returns committed transactions up to and including asOf
// (nil = all time), ordered asc by (date, id), legs populated.
func (s *Store) Transactions(ctx context.Context, asOf *time.Time) ([]ledger.Transaction, error) {
	q := `select id, correlation_id, ts, date, description from transactions`
	args := []any{}
	if asOf != nil {
		q += ` where date <= $1`
		args = append(args, *asOf)
	}
	q += ` order by date, id`
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	txs := make([]ledger.Transaction, 0)
	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var t ledger.Transaction
		if err := rows.Scan(&t.ID, &t.CorrelationID, &t.Timestamp, &t.Date, &t.Description); err != nil {
			return nil, err
		}
		txs = append(txs, t)
		ids = append(ids, t.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return txs, nil
	}
	legRows, err := s.pool.Query(ctx, `
		select id, transaction_id, account_id, amount::text, currency, description
		from legs where transaction_id = any($1) order by id
	`, ids)
	if err != nil {
		return nil, err
	}
	defer legRows.Close()
	legs, err := scanLegs(legRows)
	if err != nil {
		return nil, err
	}
	idx := make(map[uuid.UUID]*ledger.Transaction, len(txs))
	for i := range txs {
		idx[txs[i].ID] = &txs[i]
	}
	for _, leg := range legs {
		if t := idx[leg.TransactionID]; t != nil {
			t.Legs = append(t.Legs, leg)
		}
	}
	return txs, nil
}

// SubtreeTotals aggregates legs posted in the account's subtree grouped by
// currency, entirely in SQL: one range scan over the bound interval, the
// legs never leave the database.
func (s *Store) SubtreeTotals(ctx context.Context, accountID uuid.UUID, asOf *time.Time, positiveOnly bool) (map[string]decimal.Decimal, error) {
	root, err := s.Account(ctx, accountID)
	if err != nil {
		return nil, err
	}
	q := `
		select l.currency, sum(l.amount)::text
		from legs l
		join accounts a on a.id = l.account_id
		join transactions t on t.id = l.transaction_id
		where a.lft >= $1 and a.rght <= $2`
	args := []any{root.Lft, root.Rght}
	if asOf != nil {
		args = append(args, *asOf)
		q += fmt.Sprintf(` and t.date <= $%d`, len(args))
	}
	if positiveOnly {
		q += ` and l.amount > 0`
	}
	q += ` group by l.currency`
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]decimal.Decimal)
	for rows.Next() {
		var currency, total string
		if err := rows.Scan(&currency, &total); err != nil {
			return nil, err
		}
		v, err := decimal.NewFromString(total)
		if err != nil {
			return nil, fmt.Errorf("parse subtree total %q: %w", total, err)
		}
		out[currency] = v
	}
	return out, rows.Err()
}

// --- Idempotency ---

// TransactionByIdempotencyKey resolves a previously committed transaction.
func (s *Store) TransactionByIdempotencyKey(ctx context.Context, key string) (ledger.Transaction, bool, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `select transaction_id from transaction_idempotency where key = $1`, key).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Transaction{}, false, nil
	}
	if err != nil {
		return ledger.Transaction{}, false, err
	}
	t, err := s.Transaction(ctx, id)
	if err != nil {
		return ledger.Transaction{}, false, err
	}
	return t, true, nil
}

// SaveIdempotencyKey records key -> transaction, first writer wins.
func (s *Store) SaveIdempotencyKey(ctx context.Context, key string, txID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		insert into transaction_idempotency (key, transaction_id)
		values ($1, $2)
		on conflict (key) do nothing
	`, key, txID)
	return err
}

// --- helpers ---

func (s *Store) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccountRow(row rowScanner) (ledger.Account, error) {
	var a ledger.Account
	var parent *uuid.UUID
	err := row.Scan(&a.ID, &parent, &a.Code, &a.FullCode, &a.Name, &a.Type, &a.Currencies, &a.Lft, &a.Rght, &a.Depth)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Account{}, errs.ErrNotFound
	}
	if err != nil {
		return ledger.Account{}, err
	}
	if parent != nil {
		a.ParentID = *parent
	}
	return a, nil
}

func scanAccounts(rows pgx.Rows) ([]ledger.Account, error) {
	out := make([]ledger.Account, 0)
	for rows.Next() {
		a, err := scanAccountRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanLegs(rows pgx.Rows) ([]ledger.Leg, error) {
	out := make([]ledger.Leg, 0)
	for rows.Next() {
		var l ledger.Leg
		var amount string
		if err := rows.Scan(&l.ID, &l.TransactionID, &l.AccountID, &amount, &l.Amount.Currency, &l.Description); err != nil {
			return nil, err
		}
		v, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("parse leg amount %q: %w", amount, err)
		}
		l.Amount.Value = v
		out = append(out, l)
	}
	return out, rows.Err()
}

func nullableID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

func mapPgErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return errs.ErrConflict
		case "23503": // foreign_key_violation
			return errs.ErrNotFound
		}
	}
	return err
}
