package engine

import (
	"fmt"

	"github.com/puzpuzpuz/xsync/v4"

	"CurveLedger/internal/event"
	"CurveLedger/internal/observability"
)

// VersionGate tracks the last applied upstream version per address (token or
// stake). It is the only defense against double-applying a redelivered trade:
// the indexer retries freely, so every mutation must pass the gate first.
//
// Versions are assigned upstream; gaps are tolerated (the indexer is the
// source of truth for numbering, not a reliability layer to reconstruct).
// The map is safe for concurrent use across addresses; check-then-advance for
// a single address is made atomic by the engine's per-address lock.
type VersionGate struct {
	metrics *observability.Metrics
	last    *xsync.Map[string, int64]
	gaps    *xsync.Map[string, int64]
}

func NewVersionGate(metrics *observability.Metrics) *VersionGate {
	return &VersionGate{
		metrics: metrics,
		last:    xsync.NewMap[string, int64](),
		gaps:    xsync.NewMap[string, int64](),
	}
}

// Check validates an incoming version against the last applied one.
// Returns ErrStaleEvent for version <= lastApplied. Versions that skip ahead
// are accepted as-is; the gap is counted for observability.
func (g *VersionGate) Check(addr string, version int64) error {
	lastApplied, _ := g.last.Load(addr)

	if version <= lastApplied {
		return fmt.Errorf("%w: addr=%s last=%d got=%d", event.ErrStaleEvent, addr, lastApplied, version)
	}

	if version > lastApplied+1 {
		g.gaps.Compute(addr, func(old int64, _ bool) (int64, xsync.ComputeOp) {
			return old + 1, xsync.UpdateOp
		})
		if g.metrics != nil {
			g.metrics.SequenceGaps.Inc()
		}
	}

	return nil
}

// Advance records a successfully committed version. Called only after the
// atomic state+ledger commit, so a rejected event never blocks its corrected
// redelivery as stale.
func (g *VersionGate) Advance(addr string, version int64) {
	g.last.Store(addr, version)
}

// Last returns the last applied version for an address (0 if none).
func (g *VersionGate) Last(addr string) int64 {
	v, _ := g.last.Load(addr)
	return v
}

// Gaps returns how many forward version skips were observed for an address.
func (g *VersionGate) Gaps(addr string) int64 {
	v, _ := g.gaps.Load(addr)
	return v
}

// Restore seeds the gate during startup rebuild from the persisted ledger.
func (g *VersionGate) Restore(addr string, version int64) {
	if version > g.Last(addr) {
		g.last.Store(addr, version)
	}
}
