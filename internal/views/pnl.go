package views

import (
	"errors"
	"fmt"
	"iter"

	"CurveLedger/internal/event"
	"CurveLedger/internal/ledger"
)

// Platform fee charged on both trade directions. Buys pay quote on top of the
// curve price, sells receive quote net of it, so PNL is computed against the
// amounts the trader actually paid and received.
const feeRate = 0.015

// ErrUnknownUser marks a PNL query for a trader the ledger has never seen.
var ErrUnknownUser = errors.New("unknown user")

// TokenPNL is one trader's profit and loss on one token, derived with a
// weighted-average cost basis.
type TokenPNL struct {
	TokenAddr  string
	Held       int64   // base units currently held
	AvgEntry   float64 // fee-inclusive quote per base unit, 0 when flat
	CostBasis  float64 // quote locked in the open position
	Realized   float64
	Unrealized float64
	Total      float64
	Trades     int
}

// ComputeTokenPNL walks one trader's trades on a token in version order.
// Buys accumulate fee-inclusive cost; sells release cost proportionally to
// the fraction sold and realize the difference against net proceeds. The
// result is a pure function of the trade sequence and the spot price, so
// recomputing it always gives the same answer.
func ComputeTokenPNL(addr string, trades iter.Seq[ledger.Trade], spot float64) TokenPNL {
	p := TokenPNL{TokenAddr: addr}

	for t := range trades {
		p.Trades++
		if t.Side == event.SideBuy {
			p.CostBasis += float64(t.QuoteAmount) * (1 + feeRate)
			p.Held += t.TokenAmount
			continue
		}

		proceeds := float64(t.QuoteAmount) * (1 - feeRate)
		sold := t.TokenAmount
		if sold > p.Held {
			sold = p.Held
		}
		var released float64
		if p.Held > 0 {
			released = p.CostBasis * float64(sold) / float64(p.Held)
		}
		p.Realized += proceeds - released
		p.CostBasis -= released
		p.Held -= sold
	}

	if p.Held > 0 {
		p.AvgEntry = p.CostBasis / float64(p.Held)
		p.Unrealized = float64(p.Held) * (spot - p.AvgEntry)
	} else {
		p.CostBasis = 0
	}
	p.Total = p.Realized + p.Unrealized
	return p
}

// UserPNL aggregates a trader's PNL across every token they traded.
type UserPNL struct {
	User       string
	Tokens     []TokenPNL
	Realized   float64
	Unrealized float64
	Total      float64
}

// ComputeUserPNL derives a trader's global PNL. spot resolves the current
// price per token and may fail for tokens the ledger knows but the curve
// store lost, which would mean a corrupted rebuild.
func ComputeUserPNL(l *ledger.Ledger, user string, spot func(token string) (float64, error)) (UserPNL, error) {
	tokens := l.TokensTradedBy(user)
	if len(tokens) == 0 {
		return UserPNL{}, fmt.Errorf("%w: %s", ErrUnknownUser, user)
	}

	report := UserPNL{User: user, Tokens: make([]TokenPNL, 0, len(tokens))}
	for _, addr := range tokens {
		price, err := spot(addr)
		if err != nil {
			return UserPNL{}, fmt.Errorf("spot price for %s: %w", addr, err)
		}
		p := ComputeTokenPNL(addr, l.TradesForUser(addr, user), price)
		report.Tokens = append(report.Tokens, p)
		report.Realized += p.Realized
		report.Unrealized += p.Unrealized
	}
	report.Total = report.Realized + report.Unrealized
	return report, nil
}
