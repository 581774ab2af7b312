package account

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgertree/ledgertree/internal/errs"
	"github.com/ledgertree/ledgertree/internal/ledger"
	"github.com/ledgertree/ledgertree/internal/storage/memory"
)

func setup(t *testing.T) (*memory.Store, Service) {
	t.Helper()
	store := memory.New()
	return store, New(store, store)
}

func mustCreate(t *testing.T, svc Service, parent uuid.UUID, code string, currencies ...string) ledger.Account {
	t.Helper()
	a, err := svc.Create(context.Background(), parent, code, "account "+code, ledger.AccountTypeAsset, currencies)
	require.NoError(t, err)
	return a
}

func TestCreate_AssignsBoundsAndFullCode(t *testing.T) {
	_, svc := setup(t)
	root := mustCreate(t, svc, uuid.Nil, "1")
	child := mustCreate(t, svc, root.ID, "1")
	grand := mustCreate(t, svc, child.ID, "3")

	assert.Equal(t, "1", root.FullCode)
	assert.Equal(t, "11", child.FullCode)
	assert.Equal(t, "113", grand.FullCode)
	assert.Equal(t, 2, grand.Depth)

	// Re-read the root: its bounds were rewritten to enclose the new
	// descendants.
	got, err := svc.Get(context.Background(), root.ID)
	require.NoError(t, err)
	assert.True(t, got.Contains(grand))
}

func TestCreate_Validation(t *testing.T) {
	ctx := context.Background()
	_, svc := setup(t)

	_, err := svc.Create(ctx, uuid.Nil, "", "no code", ledger.AccountTypeAsset, nil)
	require.ErrorIs(t, err, errs.ErrInvalid)
	_, err = svc.Create(ctx, uuid.Nil, "1", "", ledger.AccountTypeAsset, nil)
	require.ErrorIs(t, err, errs.ErrInvalid)
	_, err = svc.Create(ctx, uuid.Nil, "1", "bad type", ledger.AccountType("stock"), nil)
	require.ErrorIs(t, err, errs.ErrInvalid)
	_, err = svc.Create(ctx, uuid.Nil, "1", "bad currency", ledger.AccountTypeAsset, []string{"DOGE"})
	require.ErrorIs(t, err, errs.ErrInvalid)
	_, err = svc.Create(ctx, uuid.New(), "1", "missing parent", ledger.AccountTypeAsset, nil)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestCreate_DuplicateSiblingCode(t *testing.T) {
	ctx := context.Background()
	_, svc := setup(t)
	root := mustCreate(t, svc, uuid.Nil, "1")
	mustCreate(t, svc, root.ID, "10")

	_, err := svc.Create(ctx, root.ID, "10", "dup", ledger.AccountTypeAsset, nil)
	require.ErrorIs(t, err, errs.ErrInvalid)

	// Same code under a different parent is fine.
	other := mustCreate(t, svc, uuid.Nil, "2")
	mustCreate(t, svc, other.ID, "10")
}

func TestCreate_CurrencySubset(t *testing.T) {
	ctx := context.Background()
	_, svc := setup(t)
	restricted := mustCreate(t, svc, uuid.Nil, "1", "USD", "EUR")

	// Subset is allowed, case-insensitively.
	child := mustCreate(t, svc, restricted.ID, "10", "usd")
	assert.Equal(t, []string{"USD"}, child.Currencies)

	_, err := svc.Create(ctx, restricted.ID, "11", "widen", ledger.AccountTypeAsset, []string{"GBP"})
	require.ErrorIs(t, err, errs.ErrInvalid)
	_, err = svc.Create(ctx, restricted.ID, "12", "unrestricted", ledger.AccountTypeAsset, nil)
	require.ErrorIs(t, err, errs.ErrInvalid)
}

func TestMove_RewritesSubtree(t *testing.T) {
	ctx := context.Background()
	_, svc := setup(t)
	assets := mustCreate(t, svc, uuid.Nil, "1")
	old := mustCreate(t, svc, assets.ID, "1")
	leaf := mustCreate(t, svc, old.ID, "5")
	dest := mustCreate(t, svc, uuid.Nil, "2")

	moved, err := svc.Move(ctx, old.ID, dest.ID)
	require.NoError(t, err)
	assert.Equal(t, dest.ID, moved.ParentID)
	assert.Equal(t, "21", moved.FullCode)

	got, err := svc.Get(ctx, leaf.ID)
	require.NoError(t, err)
	assert.Equal(t, "215", got.FullCode)

	destNow, err := svc.Get(ctx, dest.ID)
	require.NoError(t, err)
	assert.True(t, destNow.Contains(got))
}

func TestMove_ToRoot(t *testing.T) {
	ctx := context.Background()
	_, svc := setup(t)
	root := mustCreate(t, svc, uuid.Nil, "1")
	child := mustCreate(t, svc, root.ID, "2")

	moved, err := svc.Move(ctx, child.ID, uuid.Nil)
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, moved.ParentID)
	assert.Equal(t, "2", moved.FullCode)
	assert.Equal(t, 0, moved.Depth)
}

func TestMove_RejectsCycle(t *testing.T) {
	ctx := context.Background()
	_, svc := setup(t)
	root := mustCreate(t, svc, uuid.Nil, "1")
	child := mustCreate(t, svc, root.ID, "2")
	grand := mustCreate(t, svc, child.ID, "3")

	var cycle *errs.CycleError
	_, err := svc.Move(ctx, root.ID, grand.ID)
	require.ErrorAs(t, err, &cycle)
	_, err = svc.Move(ctx, root.ID, root.ID)
	require.ErrorAs(t, err, &cycle)

	// Untouched after the rejected moves.
	got, err := svc.Get(ctx, grand.ID)
	require.NoError(t, err)
	assert.Equal(t, "123", got.FullCode)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	_, svc := setup(t)
	root := mustCreate(t, svc, uuid.Nil, "1")
	child := mustCreate(t, svc, root.ID, "2")

	// A parent with children cannot be deleted.
	require.ErrorIs(t, svc.Delete(ctx, root.ID), errs.ErrConflict)

	require.NoError(t, svc.Delete(ctx, child.ID))
	_, err := svc.Get(ctx, child.ID)
	require.ErrorIs(t, err, errs.ErrNotFound)

	leaf, err := svc.IsLeaf(ctx, root.ID)
	require.NoError(t, err)
	assert.True(t, leaf)
}

func TestGetByFullCode(t *testing.T) {
	ctx := context.Background()
	_, svc := setup(t)
	root := mustCreate(t, svc, uuid.Nil, "7")
	child := mustCreate(t, svc, root.ID, "01")

	got, err := svc.GetByFullCode(ctx, "701")
	require.NoError(t, err)
	assert.Equal(t, child.ID, got.ID)

	_, err = svc.GetByFullCode(ctx, "999")
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestSubtree(t *testing.T) {
	ctx := context.Background()
	_, svc := setup(t)
	root := mustCreate(t, svc, uuid.Nil, "1")
	a := mustCreate(t, svc, root.ID, "1")
	mustCreate(t, svc, a.ID, "1")
	mustCreate(t, svc, root.ID, "2")
	other := mustCreate(t, svc, uuid.Nil, "2")

	sub, err := svc.Subtree(ctx, root.ID)
	require.NoError(t, err)
	assert.Len(t, sub, 4)
	for _, acc := range sub {
		assert.NotEqual(t, other.ID, acc.ID)
	}
}
