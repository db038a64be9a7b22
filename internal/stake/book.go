// Package stake tracks user positions on stake pools. Pools live in their own
// version space, fully independent of token curves, but spin events pass the
// same per-address gate discipline before landing here.
package stake

import (
	"fmt"
	"sync"

	"CurveLedger/internal/event"
)

// Position is one user's stake on one pool.
type Position struct {
	StakeAddr   string
	User        string
	Amount      int64 // base units, can only be moved by spin deltas
	LastVersion int64
	UpdatedAt   int64 // unix seconds of the last applied spin
}

// Stats summarizes one pool.
type Stats struct {
	StakeAddr      string
	ActiveStakers  int   // positions with a positive amount
	TotalStaked    int64 // sum of positive amounts
	AppliedVersion int64
}

// Book maps stake pools to per-user positions. Spins to one pool are
// serialized by the engine's per-address lock; the book's own lock protects
// cross-pool reads.
type Book struct {
	mu    sync.RWMutex
	pools map[string]map[string]*Position
	// last applied spin version per pool, for stats
	versions map[string]int64
}

func NewBook() *Book {
	return &Book{
		pools:    make(map[string]map[string]*Position),
		versions: make(map[string]int64),
	}
}

// ApplySpin moves a user's position by the spin's signed delta. The indexer
// reports settled on-chain movements, so deltas are applied as given and a
// first spin implicitly opens both the pool and the position.
func (b *Book) ApplySpin(ev *event.StakeSpin) Position {
	b.mu.Lock()
	defer b.mu.Unlock()

	pool, ok := b.pools[ev.StakeAddr]
	if !ok {
		pool = make(map[string]*Position)
		b.pools[ev.StakeAddr] = pool
	}
	pos, ok := pool[ev.User]
	if !ok {
		pos = &Position{StakeAddr: ev.StakeAddr, User: ev.User}
		pool[ev.User] = pos
	}

	pos.Amount += ev.AmountDelta
	pos.LastVersion = ev.TxnVersion
	pos.UpdatedAt = ev.Timestamp
	if ev.TxnVersion > b.versions[ev.StakeAddr] {
		b.versions[ev.StakeAddr] = ev.TxnVersion
	}
	return *pos
}

// Position returns a user's stake on a pool. A known pool with no position
// for the user yields a zero-amount position; an unknown pool is an error.
func (b *Book) Position(stakeAddr, user string) (Position, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	pool, ok := b.pools[stakeAddr]
	if !ok {
		return Position{}, fmt.Errorf("%w: %s", event.ErrUnknownStake, stakeAddr)
	}
	pos, ok := pool[user]
	if !ok {
		return Position{StakeAddr: stakeAddr, User: user}, nil
	}
	return *pos, nil
}

// Stats summarizes a pool's active stakers and total staked amount.
func (b *Book) Stats(stakeAddr string) (Stats, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	pool, ok := b.pools[stakeAddr]
	if !ok {
		return Stats{}, fmt.Errorf("%w: %s", event.ErrUnknownStake, stakeAddr)
	}

	st := Stats{StakeAddr: stakeAddr, AppliedVersion: b.versions[stakeAddr]}
	for _, pos := range pool {
		if pos.Amount > 0 {
			st.ActiveStakers++
			st.TotalStaked += pos.Amount
		}
	}
	return st, nil
}

// Has reports whether the pool has ever seen an event.
func (b *Book) Has(stakeAddr string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.pools[stakeAddr]
	return ok
}

// Restore installs a position during startup rebuild.
func (b *Book) Restore(pos Position) {
	b.mu.Lock()
	defer b.mu.Unlock()

	pool, ok := b.pools[pos.StakeAddr]
	if !ok {
		pool = make(map[string]*Position)
		b.pools[pos.StakeAddr] = pool
	}
	p := pos
	pool[pos.User] = &p
	if pos.LastVersion > b.versions[pos.StakeAddr] {
		b.versions[pos.StakeAddr] = pos.LastVersion
	}
}
