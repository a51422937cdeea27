package transform

import (
	"github.com/wonny/coinpulse/internal/market"
)

// Aggregator is one timeframe window's per-symbol accumulation strategy.
// Implementations are not safe for concurrent use; each instance is owned by
// exactly one Transformer and touched only from its run loop.
type Aggregator interface {
	// Kind identifies the snapshot variant this aggregator produces
	Kind() market.SnapshotKind

	// Apply folds one tick into the per-symbol state
	Apply(tick *market.TradeTick)

	// Snapshot returns the ranked entries for the current window state,
	// sorted per the variant's contract. Rank fields are left unset.
	Snapshot() []market.RankedEntry

	// Rebase starts a new window: current values become the new baseline
	// and accumulators return to zero. Symbol states are kept, not cleared.
	Rebase()

	// TrimToLimit drops the least significant symbol states so at most max
	// remain
	TrimToLimit(max int)

	// Len returns the number of tracked symbol states
	Len() int
}
