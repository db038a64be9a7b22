package event

import "fmt"

// Kind discriminates normalized indexer events.
type Kind int32

const (
	KindUnknown Kind = iota
	KindTokenCreated
	KindTokenTraded
	KindStakeSpin
)

func (k Kind) String() string {
	switch k {
	case KindTokenCreated:
		return "token_created"
	case KindTokenTraded:
		return "token_traded"
	case KindStakeSpin:
		return "stake_spin"
	default:
		return "unknown"
	}
}

// Event is the canonical shape every normalized indexer callback reduces to.
// Address returns the partition key (token address or stake address) whose
// mutation must be serialized; Version is the upstream monotonic sequence
// within that partition.
type Event interface {
	Kind() Kind
	Address() string
	Version() int64
	IdempotencyKey() string
}

// Side represents trade direction on the bonding curve.
type Side int32

const (
	SideBuy Side = iota
	SideSell
)

func (s Side) String() string {
	if s == SideSell {
		return "sell"
	}
	return "buy"
}

// ParseSide maps the wire strings "buy" and "sell".
func ParseSide(s string) (Side, error) {
	switch s {
	case "buy":
		return SideBuy, nil
	case "sell":
		return SideSell, nil
	default:
		return SideBuy, fmt.Errorf("%w: invalid side %q", ErrMalformedEvent, s)
	}
}

// TokenCreated initializes bonding-curve state for a new token.
// Idempotency key: the token address (a token is created at most once).
type TokenCreated struct {
	TokenAddr       string
	Name            string
	Symbol          string
	Decimals        int32
	Creator         string
	InitialReserves int64 // base units, fixed at creation
	RemainReserves  int64 // base units reserved past graduation
	QuoteReserves   int64 // initial virtual quote reserves, sets the opening price
	Timestamp       int64 // unix seconds, versioned input
}

func (e *TokenCreated) Kind() Kind             { return KindTokenCreated }
func (e *TokenCreated) Address() string        { return e.TokenAddr }
func (e *TokenCreated) Version() int64         { return 0 }
func (e *TokenCreated) IdempotencyKey() string { return e.TokenAddr }

// TokenTraded is an executed bonding-curve trade.
// ReserveDelta is the signed effect on currentReserves: negative for buys
// (tokens leave the curve), positive for sells (tokens return to it).
// Idempotency key: tokenAddr + version (the upstream txn version is unique
// per token).
type TokenTraded struct {
	TokenAddr    string
	TxnVersion   int64
	Trader       string
	TradeSide    Side
	TokenAmount  int64   // base units moved, always positive
	QuoteAmount  int64   // quote units moved, always positive
	ReserveDelta int64   // signed effect on currentReserves
	Price        float64 // quote per base at execution
	Timestamp    int64   // unix seconds
}

func (e *TokenTraded) Kind() Kind      { return KindTokenTraded }
func (e *TokenTraded) Address() string { return e.TokenAddr }
func (e *TokenTraded) Version() int64  { return e.TxnVersion }

func (e *TokenTraded) IdempotencyKey() string {
	return fmt.Sprintf("%s:%d", e.TokenAddr, e.TxnVersion)
}

// StakeSpin adjusts a user's position on a stake pool. AmountDelta is signed:
// positive stakes, negative unstakes.
type StakeSpin struct {
	StakeAddr   string
	User        string
	AmountDelta int64
	TxnVersion  int64
	Timestamp   int64
}

func (e *StakeSpin) Kind() Kind      { return KindStakeSpin }
func (e *StakeSpin) Address() string { return e.StakeAddr }
func (e *StakeSpin) Version() int64  { return e.TxnVersion }

func (e *StakeSpin) IdempotencyKey() string {
	return fmt.Sprintf("%s:%d", e.StakeAddr, e.TxnVersion)
}
