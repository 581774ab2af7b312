package journal

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ledgertree/ledgertree/internal/ledger"
)

// Draft is a transaction under construction. It lives only in the memory of
// the caller that opened it; nothing is persisted until Commit succeeds, so
// readers can never see its legs. A draft may be transiently unbalanced
// between leg additions.
type Draft struct {
	mu sync.Mutex

	id            uuid.UUID
	correlationID uuid.UUID
	date          time.Time
	description   string
	legs          []ledger.Leg
	committed     bool
}

// ID returns the identifier the committed transaction will carry.
func (d *Draft) ID() uuid.UUID { return d.id }

// CorrelationID returns the externally-facing identifier assigned at Begin.
func (d *Draft) CorrelationID() uuid.UUID { return d.correlationID }

// Legs returns a snapshot of the legs added so far.
func (d *Draft) Legs() []ledger.Leg {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]ledger.Leg, len(d.legs))
	copy(out, d.legs)
	return out
}
