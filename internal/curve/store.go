// Package curve holds the materialized bonding-curve state for every launched
// token. It is a view over the trade ledger: dropping it and replaying the
// ledger reproduces it exactly.
package curve

import (
	"fmt"

	"github.com/puzpuzpuz/xsync/v4"

	"CurveLedger/internal/event"
)

// Token is the reserve state and metadata of one bonding-curve token.
// InitialReserves is fixed at creation; CurrentReserves moves with trades and
// stays within [0, InitialReserves]; RemainReserves is the slice withheld for
// the post-graduation pool and never sold on the curve.
type Token struct {
	Addr            string
	Name            string
	Symbol          string
	Decimals        int32
	Creator         string
	InitialReserves int64
	RemainReserves  int64
	QuoteReserves   int64
	CurrentReserves int64
	LastPrice       float64
	TradeCount      int64
	AppliedVersion  int64
	CreatedAt       int64
}

// TotalSupply is the sellable supply on the curve.
func (t Token) TotalSupply() int64 {
	return t.InitialReserves - t.RemainReserves
}

// TokensSold is how much of the sellable supply has left the curve.
func (t Token) TokensSold() int64 {
	return t.TotalSupply() - (t.CurrentReserves - t.RemainReserves)
}

// Progress is the graduation percentage in [0, 100]. 0 right after creation,
// 100 when the sellable supply is exhausted. Recomputed from reserves on
// every call, never cached.
func (t Token) Progress() float64 {
	supply := t.TotalSupply()
	if supply <= 0 {
		return 0
	}
	return float64(t.TokensSold()) / float64(supply) * 100
}

// SpotPrice is the last traded price, or the curve's opening price
// (quote reserves over initial reserves) before any trade.
func (t Token) SpotPrice() float64 {
	if t.TradeCount > 0 {
		return t.LastPrice
	}
	if t.InitialReserves == 0 {
		return 0
	}
	return float64(t.QuoteReserves) / float64(t.InitialReserves)
}

// Store maps token addresses to curve state. Stored values are immutable
// snapshots: ApplyTrade swaps in a fresh pointer instead of mutating the old
// one, so readers copy whatever pointer they loaded without any lock.
// Mutations to a single token are serialized by the engine's per-address lock.
type Store struct {
	tokens *xsync.Map[string, *Token]
}

func NewStore() *Store {
	return &Store{tokens: xsync.NewMap[string, *Token]()}
}

// Create initializes curve state for a new token with full reserves.
// Returns event.ErrAlreadyExists when the address is known; existing reserves
// are left untouched.
func (s *Store) Create(ev *event.TokenCreated) error {
	tok := &Token{
		Addr:            ev.TokenAddr,
		Name:            ev.Name,
		Symbol:          ev.Symbol,
		Decimals:        ev.Decimals,
		Creator:         ev.Creator,
		InitialReserves: ev.InitialReserves,
		RemainReserves:  ev.RemainReserves,
		QuoteReserves:   ev.QuoteReserves,
		CurrentReserves: ev.InitialReserves,
		CreatedAt:       ev.Timestamp,
	}
	if _, loaded := s.tokens.LoadOrStore(ev.TokenAddr, tok); loaded {
		return fmt.Errorf("%w: %s", event.ErrAlreadyExists, ev.TokenAddr)
	}
	return nil
}

// Preview validates a trade and returns the post-trade state without
// mutating anything. The engine commits the previewed snapshot durably before
// calling ApplyTrade.
func (s *Store) Preview(ev *event.TokenTraded) (Token, error) {
	tok, ok := s.tokens.Load(ev.TokenAddr)
	if !ok {
		return Token{}, fmt.Errorf("%w: %s", event.ErrUnknownToken, ev.TokenAddr)
	}

	next := tok.CurrentReserves + ev.ReserveDelta
	if next < 0 || next > tok.InitialReserves {
		return Token{}, fmt.Errorf("%w: token=%s current=%d delta=%d initial=%d",
			event.ErrInvariantViolation, ev.TokenAddr, tok.CurrentReserves, ev.ReserveDelta, tok.InitialReserves)
	}

	out := *tok
	out.CurrentReserves = next
	out.LastPrice = ev.Price
	out.TradeCount++
	out.AppliedVersion = ev.TxnVersion
	return out, nil
}

// ApplyTrade moves CurrentReserves by the trade's signed delta and records the
// execution price. The reserve bound check rejects, never clamps: a violating
// trade leaves the token exactly as it was. The previous snapshot is replaced
// wholesale rather than written in place, so concurrent readers never observe
// a half-applied trade. Returns the post-trade snapshot.
func (s *Store) ApplyTrade(ev *event.TokenTraded) (Token, error) {
	tok, ok := s.tokens.Load(ev.TokenAddr)
	if !ok {
		return Token{}, fmt.Errorf("%w: %s", event.ErrUnknownToken, ev.TokenAddr)
	}

	reserves := tok.CurrentReserves + ev.ReserveDelta
	if reserves < 0 || reserves > tok.InitialReserves {
		return Token{}, fmt.Errorf("%w: token=%s current=%d delta=%d initial=%d",
			event.ErrInvariantViolation, ev.TokenAddr, tok.CurrentReserves, ev.ReserveDelta, tok.InitialReserves)
	}

	next := *tok
	next.CurrentReserves = reserves
	next.LastPrice = ev.Price
	next.TradeCount++
	next.AppliedVersion = ev.TxnVersion
	s.tokens.Store(ev.TokenAddr, &next)
	return next, nil
}

// Get returns a copy of the token state.
func (s *Store) Get(addr string) (Token, error) {
	tok, ok := s.tokens.Load(addr)
	if !ok {
		return Token{}, fmt.Errorf("%w: %s", event.ErrUnknownToken, addr)
	}
	return *tok, nil
}

// Has reports whether the token address is known without copying state.
func (s *Store) Has(addr string) bool {
	_, ok := s.tokens.Load(addr)
	return ok
}

// Restore installs token state during startup rebuild, overwriting any
// previous entry for the address.
func (s *Store) Restore(tok Token) {
	t := tok
	s.tokens.Store(tok.Addr, &t)
}

// Len returns the number of launched tokens.
func (s *Store) Len() int {
	return s.tokens.Size()
}

// Range visits a copy of every token. Iteration order is unspecified.
func (s *Store) Range(fn func(Token) bool) {
	s.tokens.Range(func(_ string, tok *Token) bool {
		return fn(*tok)
	})
}
