// Package persistence is the Postgres layer: durable commit of events on the
// write path, schema migrations, and the startup rebuild reads. Tables are
// written so that any replay is idempotent; redelivered rows land on
// ON CONFLICT guards instead of double-applying.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"CurveLedger/internal/curve"
	"CurveLedger/internal/event"
	"CurveLedger/internal/ledger"
	"CurveLedger/internal/observability"
)

const (
	commitAttempts = 3
	retryBackoff   = 50 * time.Millisecond
)

// Writer commits one event per call. A trade commit couples the token reserve
// snapshot and the trade row in a single transaction: either both land or
// neither does, so the in-memory state applied afterwards can never run ahead
// of the database.
type Writer struct {
	db      *sql.DB
	log     zerolog.Logger
	metrics *observability.Metrics
}

func NewWriter(db *sql.DB, log zerolog.Logger, metrics *observability.Metrics) *Writer {
	return &Writer{
		db:      db,
		log:     log.With().Str("component", "persistence").Logger(),
		metrics: metrics,
	}
}

// CommitToken inserts the initial token row. Redelivered created events hit
// the primary key conflict and write nothing.
func (w *Writer) CommitToken(ctx context.Context, tok curve.Token) error {
	return w.withRetry(ctx, "token", func() error {
		_, err := w.db.ExecContext(ctx, `
			INSERT INTO curve.tokens
				(token_addr, name, symbol, decimals, creator,
				 initial_reserves, remain_reserves, quote_reserves, current_reserves,
				 last_price, trade_count, applied_version, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			ON CONFLICT (token_addr) DO NOTHING`,
			tok.Addr, tok.Name, tok.Symbol, tok.Decimals, tok.Creator,
			tok.InitialReserves, tok.RemainReserves, tok.QuoteReserves, tok.CurrentReserves,
			tok.LastPrice, tok.TradeCount, tok.AppliedVersion, tok.CreatedAt,
		)
		return err
	})
}

// CommitTrade writes the post-trade token snapshot and the trade row in one
// transaction. The trade insert's (token_addr, version) conflict guard makes
// a cross-restart replay a no-op for the ledger while the absolute snapshot
// update stays correct either way.
func (w *Writer) CommitTrade(ctx context.Context, tok curve.Token, tr ledger.Trade) error {
	return w.withRetry(ctx, "trade", func() error {
		tx, err := w.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE curve.tokens
			SET current_reserves = $2, last_price = $3, trade_count = $4, applied_version = $5
			WHERE token_addr = $1`,
			tok.Addr, tok.CurrentReserves, tok.LastPrice, tok.TradeCount, tok.AppliedVersion,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("update token: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO curve.trades
				(id, token_addr, version, trader, side,
				 token_amount, quote_amount, reserve_delta, price, ts)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (token_addr, version) DO NOTHING`,
			tr.ID, tr.TokenAddr, tr.Version, tr.Trader, tr.Side.String(),
			tr.TokenAmount, tr.QuoteAmount, tr.ReserveDelta, tr.Price, tr.Timestamp,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert trade: %w", err)
		}

		return tx.Commit()
	})
}

// CommitSpin upserts the stake position, applying the delta in SQL. The
// version guard on the update arm absorbs replays after a restart.
func (w *Writer) CommitSpin(ctx context.Context, ev *event.StakeSpin) error {
	return w.withRetry(ctx, "spin", func() error {
		_, err := w.db.ExecContext(ctx, `
			INSERT INTO curve.stake_positions
				(stake_addr, user_addr, amount, last_version, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (stake_addr, user_addr) DO UPDATE
			SET amount       = curve.stake_positions.amount + EXCLUDED.amount,
			    last_version = EXCLUDED.last_version,
			    updated_at   = EXCLUDED.updated_at
			WHERE curve.stake_positions.last_version < EXCLUDED.last_version`,
			ev.StakeAddr, ev.User, ev.AmountDelta, ev.TxnVersion, ev.Timestamp,
		)
		return err
	})
}

// withRetry reruns transient failures with a doubling backoff. The per-token
// lock is held during commit, so retries here delay only that one address.
func (w *Writer) withRetry(ctx context.Context, op string, fn func() error) error {
	backoff := retryBackoff
	var err error
	for attempt := 1; attempt <= commitAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		if attempt < commitAttempts {
			if w.metrics != nil {
				w.metrics.PersistRetry.Inc()
			}
			w.log.Warn().
				Err(err).
				Str("op", op).
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("commit failed, retrying")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return err
			}
			backoff *= 2
		}
	}
	return fmt.Errorf("%s commit after %d attempts: %w", op, commitAttempts, err)
}
