package engine

import (
	"context"
	"fmt"
	"time"

	"CurveLedger/internal/curve"
	"CurveLedger/internal/ledger"
	"CurveLedger/internal/stake"
)

// RebuildSource supplies persisted state for the startup rebuild.
// Implemented by persistence.Loader. Trades may arrive in any order; the
// ledger keeps its per-token index version-sorted on append.
type RebuildSource interface {
	Tokens(ctx context.Context) ([]curve.Token, error)
	Trades(ctx context.Context) ([]ledger.Trade, error)
	Stakes(ctx context.Context) ([]stake.Position, error)
}

// Rebuild reloads tokens, trades, and stake positions from the durable store
// and reseeds the version gate from the highest persisted version per
// address. Runs before the webhook starts accepting events, so no locking is
// needed. Nothing is broadcast: subscribers were not connected yet.
func (e *Engine) Rebuild(ctx context.Context, src RebuildSource) error {
	start := time.Now()

	tokens, err := src.Tokens(ctx)
	if err != nil {
		return fmt.Errorf("load tokens: %w", err)
	}
	for _, tok := range tokens {
		e.store.Restore(tok)
		e.gate.Restore(tok.Addr, tok.AppliedVersion)
	}

	trades, err := src.Trades(ctx)
	if err != nil {
		return fmt.Errorf("load trades: %w", err)
	}
	for _, tr := range trades {
		e.trades.Append(tr)
		e.gate.Restore(tr.TokenAddr, tr.Version)
		if e.metrics != nil {
			e.metrics.RebuildTrades.Inc()
		}
	}

	stakes, err := src.Stakes(ctx)
	if err != nil {
		return fmt.Errorf("load stakes: %w", err)
	}
	for _, pos := range stakes {
		e.stakes.Restore(pos)
		e.gate.Restore(pos.StakeAddr, pos.LastVersion)
	}

	elapsed := time.Since(start)
	if e.metrics != nil {
		e.metrics.RebuildDuration.Set(elapsed.Seconds())
	}
	e.log.Info().
		Int("tokens", len(tokens)).
		Int("trades", len(trades)).
		Int("stakes", len(stakes)).
		Dur("elapsed", elapsed).
		Msg("state rebuilt from storage")
	return nil
}
