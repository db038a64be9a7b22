// Package views derives holder, PNL, and aggregate read models from the trade
// ledger on demand. Nothing here is cached or persisted: every call walks the
// ledger, so the views can never drift from it.
package views

import (
	"iter"
	"sort"

	"CurveLedger/internal/event"
	"CurveLedger/internal/ledger"
)

// Holder is one address with a positive net token balance.
type Holder struct {
	Addr       string
	Balance    int64   // base units, net of buys minus sells
	Percentage float64 // share of circulating supply, 0 when supply is 0
}

// HolderBalances folds a token's trades into net balances per trader.
// Addresses at or below zero are excluded; output is sorted by balance
// descending with the address as tie-break so repeated calls agree.
func HolderBalances(trades iter.Seq[ledger.Trade], circulating int64) []Holder {
	net := make(map[string]int64)
	for t := range trades {
		if t.Side == event.SideBuy {
			net[t.Trader] += t.TokenAmount
		} else {
			net[t.Trader] -= t.TokenAmount
		}
	}

	out := make([]Holder, 0, len(net))
	for addr, bal := range net {
		if bal <= 0 {
			continue
		}
		h := Holder{Addr: addr, Balance: bal}
		if circulating > 0 {
			h.Percentage = float64(bal) / float64(circulating) * 100
		}
		out = append(out, h)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Balance != out[j].Balance {
			return out[i].Balance > out[j].Balance
		}
		return out[i].Addr < out[j].Addr
	})
	return out
}
