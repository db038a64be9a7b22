package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"CurveLedger/internal/curve"
	"CurveLedger/internal/event"
	"CurveLedger/internal/ledger"
	"CurveLedger/internal/stake"
)

// Loader reads persisted state for the startup rebuild. It satisfies
// engine.RebuildSource.
type Loader struct {
	db *sql.DB
}

func NewLoader(db *sql.DB) *Loader {
	return &Loader{db: db}
}

// Tokens loads every token row.
func (l *Loader) Tokens(ctx context.Context) ([]curve.Token, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT token_addr, name, symbol, decimals, creator,
		       initial_reserves, remain_reserves, quote_reserves, current_reserves,
		       last_price, trade_count, applied_version, created_at
		FROM curve.tokens`)
	if err != nil {
		return nil, fmt.Errorf("query tokens: %w", err)
	}
	defer rows.Close()

	var out []curve.Token
	for rows.Next() {
		var tok curve.Token
		if err := rows.Scan(
			&tok.Addr, &tok.Name, &tok.Symbol, &tok.Decimals, &tok.Creator,
			&tok.InitialReserves, &tok.RemainReserves, &tok.QuoteReserves, &tok.CurrentReserves,
			&tok.LastPrice, &tok.TradeCount, &tok.AppliedVersion, &tok.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		out = append(out, tok)
	}
	return out, rows.Err()
}

// Trades loads the full trade log, time-ordered globally with address and
// version as tie breaks so replay order is deterministic. Timestamps can
// regress within a token when the indexer's clock skewed; the ledger restores
// per-token version order on append, so no ordering is assumed here beyond
// what the query states.
func (l *Loader) Trades(ctx context.Context) ([]ledger.Trade, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, token_addr, version, trader, side,
		       token_amount, quote_amount, reserve_delta, price, ts
		FROM curve.trades
		ORDER BY ts ASC, token_addr ASC, version ASC`)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var out []ledger.Trade
	for rows.Next() {
		var tr ledger.Trade
		var side string
		if err := rows.Scan(
			&tr.ID, &tr.TokenAddr, &tr.Version, &tr.Trader, &side,
			&tr.TokenAmount, &tr.QuoteAmount, &tr.ReserveDelta, &tr.Price, &tr.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		if tr.Side, err = event.ParseSide(side); err != nil {
			return nil, fmt.Errorf("trade %s v%d: %w", tr.TokenAddr, tr.Version, err)
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

// Stakes loads every stake position.
func (l *Loader) Stakes(ctx context.Context) ([]stake.Position, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT stake_addr, user_addr, amount, last_version, updated_at
		FROM curve.stake_positions`)
	if err != nil {
		return nil, fmt.Errorf("query stakes: %w", err)
	}
	defer rows.Close()

	var out []stake.Position
	for rows.Next() {
		var pos stake.Position
		if err := rows.Scan(
			&pos.StakeAddr, &pos.User, &pos.Amount, &pos.LastVersion, &pos.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan stake: %w", err)
		}
		out = append(out, pos)
	}
	return out, rows.Err()
}
