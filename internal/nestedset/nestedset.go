// Package nestedset recomputes the interval encoding of the account tree.
// Both storage backends call Rebuild after a structural mutation, so the
// bound and full-code rules live in exactly one place.
package nestedset

import (
	"sort"

	"github.com/google/uuid"

	"github.com/ledgertree/ledgertree/internal/errs"
	"github.com/ledgertree/ledgertree/internal/ledger"
)

// Rebuild assigns Lft/Rght/Depth bounds and FullCode to every account and
// returns the accounts in depth-first order. Sibling order is by Code, so
// the numbering is a pure function of the tree shape. Rebuild fails if a
// ParentID references a missing account or the parent links contain a cycle.
//
// The full renumber is O(n log n). Mutations are rare next to balance reads,
// which is the trade the interval encoding makes: constant-time subtree
// membership against renumbering on every structural change.
func Rebuild(accounts []ledger.Account) ([]ledger.Account, error) {
	byID := make(map[uuid.UUID]*ledger.Account, len(accounts))
	children := make(map[uuid.UUID][]*ledger.Account, len(accounts))
	roots := make([]*ledger.Account, 0, 4)

	out := make([]ledger.Account, len(accounts))
	copy(out, accounts)
	for i := range out {
		byID[out[i].ID] = &out[i]
	}
	for i := range out {
		a := &out[i]
		if a.ParentID == uuid.Nil {
			roots = append(roots, a)
			continue
		}
		if _, ok := byID[a.ParentID]; !ok {
			return nil, errs.Validation("parent", "account "+a.ID.String()+" references missing parent")
		}
		children[a.ParentID] = append(children[a.ParentID], a)
	}
	sortByCode(roots)
	for _, c := range children {
		sortByCode(c)
	}

	ordered := make([]ledger.Account, 0, len(out))
	counter := 1
	var walk func(a *ledger.Account, depth int, prefix string) error
	walk = func(a *ledger.Account, depth int, prefix string) error {
		if depth > len(out) {
			return errs.Validation("parent", "cycle in parent links")
		}
		a.Depth = depth
		a.FullCode = prefix + a.Code
		a.Lft = counter
		counter++
		for _, c := range children[a.ID] {
			if err := walk(c, depth+1, a.FullCode); err != nil {
				return err
			}
		}
		a.Rght = counter
		counter++
		ordered = append(ordered, *a)
		return nil
	}
	for _, r := range roots {
		if err := walk(r, 0, ""); err != nil {
			return nil, err
		}
	}
	if len(ordered) != len(out) {
		// Accounts unreachable from any root mean the parent links loop.
		return nil, errs.Validation("parent", "cycle in parent links")
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Lft < ordered[j].Lft })
	return ordered, nil
}

func sortByCode(as []*ledger.Account) {
	sort.Slice(as, func(i, j int) bool {
		if as[i].Code == as[j].Code {
			return as[i].ID.String() < as[j].ID.String()
		}
		return as[i].Code < as[j].Code
	})
}
