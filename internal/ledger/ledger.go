// Package ledger is the append-only record of executed bonding-curve trades.
// It is the system's source of truth: curve state and every derived view can
// be reproduced by replaying it in order.
package ledger

import (
	"iter"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"

	"CurveLedger/internal/event"
)

// Trade is one committed ledger row. Versions are strictly increasing within
// a token; TokenAmount and QuoteAmount are always positive, direction lives
// in Side and in the sign of ReserveDelta.
type Trade struct {
	ID           uuid.UUID
	TokenAddr    string
	Version      int64
	Trader       string
	Side         event.Side
	TokenAmount  int64
	QuoteAmount  int64
	ReserveDelta int64
	Price        float64
	Timestamp    int64 // unix seconds, versioned input
}

// Ledger keeps trades in global arrival order plus per-token and per-trader
// indexes. Slices are append-only, so iterators capture a length-bounded
// snapshot under the read lock and walk it lock-free.
type Ledger struct {
	mu      sync.RWMutex
	all     []Trade
	byToken map[string][]Trade
	byUser  map[string][]Trade
}

func New() *Ledger {
	return &Ledger{
		byToken: make(map[string][]Trade),
		byUser:  make(map[string][]Trade),
	}
}

// Append records a committed trade. The global list keeps arrival order; the
// per-token and per-trader indexes keep version order. Live commits always
// arrive version-ascending because the gate admits them in order, so the
// sorted-insert path only runs during startup replay when indexer clock skew
// left a token's timestamps regressing. A zero ID is assigned.
func (l *Ledger) Append(t Trade) Trade {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}

	l.mu.Lock()
	l.all = append(l.all, t)
	tok := l.byToken[t.TokenAddr]
	if n := len(tok); n == 0 || tok[n-1].Version < t.Version {
		l.byToken[t.TokenAddr] = append(tok, t)
		l.byUser[t.Trader] = append(l.byUser[t.Trader], t)
	} else {
		l.byToken[t.TokenAddr] = insertByVersion(tok, t)
		l.byUser[t.Trader] = insertUserTrade(l.byUser[t.Trader], t)
	}
	l.mu.Unlock()
	return t
}

func insertByVersion(s []Trade, t Trade) []Trade {
	i := sort.Search(len(s), func(i int) bool { return s[i].Version > t.Version })
	return slices.Insert(s, i, t)
}

// insertUserTrade places t before the trader's first same-token trade with a
// higher version. Versions of different tokens are not comparable, so their
// relative order is left alone.
func insertUserTrade(s []Trade, t Trade) []Trade {
	i := len(s)
	for j := range s {
		if s[j].TokenAddr == t.TokenAddr && s[j].Version > t.Version {
			i = j
			break
		}
	}
	return slices.Insert(s, i, t)
}

// Len is the global trade count, used as the as-of marker on query responses.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.all)
}

// TokenTradeCount returns how many trades a token has, for pagination.
func (l *Ledger) TokenTradeCount(addr string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.byToken[addr])
}

// RecentTrades returns up to limit trades across all tokens, newest first.
func (l *Ledger) RecentTrades(limit int) []Trade {
	l.mu.RLock()
	snap := l.all
	l.mu.RUnlock()
	return recentOf(snap, limit, 0)
}

// RecentTokenTrades returns up to limit trades for one token, newest first,
// skipping offset newest entries.
func (l *Ledger) RecentTokenTrades(addr string, limit, offset int) []Trade {
	l.mu.RLock()
	snap := l.byToken[addr]
	l.mu.RUnlock()
	return recentOf(snap, limit, offset)
}

func recentOf(snap []Trade, limit, offset int) []Trade {
	if limit <= 0 || offset < 0 || offset >= len(snap) {
		return nil
	}
	end := len(snap) - offset
	out := make([]Trade, 0, limit)
	for i := end - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, snap[i])
	}
	return out
}

// TradesForToken yields the token's trades in version order. The sequence is
// restartable: each range loop re-reads the current snapshot.
func (l *Ledger) TradesForToken(addr string) iter.Seq[Trade] {
	return func(yield func(Trade) bool) {
		l.mu.RLock()
		snap := l.byToken[addr]
		l.mu.RUnlock()
		for _, t := range snap {
			if !yield(t) {
				return
			}
		}
	}
}

// TradesForUser yields one trader's trades on one token, version order.
func (l *Ledger) TradesForUser(addr, user string) iter.Seq[Trade] {
	return func(yield func(Trade) bool) {
		l.mu.RLock()
		snap := l.byUser[user]
		l.mu.RUnlock()
		for _, t := range snap {
			if t.TokenAddr != addr {
				continue
			}
			if !yield(t) {
				return
			}
		}
	}
}

// TokensTradedBy lists the distinct tokens a trader touched, in first-trade
// order.
func (l *Ledger) TokensTradedBy(user string) []string {
	l.mu.RLock()
	snap := l.byUser[user]
	l.mu.RUnlock()

	seen := make(map[string]struct{}, 4)
	var out []string
	for _, t := range snap {
		if _, ok := seen[t.TokenAddr]; ok {
			continue
		}
		seen[t.TokenAddr] = struct{}{}
		out = append(out, t.TokenAddr)
	}
	return out
}
