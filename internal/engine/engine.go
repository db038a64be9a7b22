// Package engine serializes event application per address and owns the
// atomic commit pipeline: gate check, state validation, durable write,
// in-memory apply, gate advance, then notification. Different addresses
// proceed fully in parallel; there is no global lock.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/rs/zerolog"

	"CurveLedger/internal/broadcast"
	"CurveLedger/internal/curve"
	"CurveLedger/internal/event"
	"CurveLedger/internal/ledger"
	"CurveLedger/internal/observability"
	"CurveLedger/internal/stake"
	"CurveLedger/internal/views"
)

// Committer writes a committed event durably before it becomes visible in
// memory. Implemented by persistence.Writer; nil means in-memory only (tests).
type Committer interface {
	CommitToken(ctx context.Context, tok curve.Token) error
	CommitTrade(ctx context.Context, tok curve.Token, tr ledger.Trade) error
	CommitSpin(ctx context.Context, ev *event.StakeSpin) error
}

// Broadcaster fans committed events to live subscribers. Must never block.
type Broadcaster interface {
	Publish(eventName string, payload any)
}

// Mirror forwards committed events to a durable stream for other services.
type Mirror interface {
	Mirror(kind event.Kind, addr string, payload any)
}

// Engine wires the gate, curve store, trade ledger, and stake book behind
// per-address locks.
type Engine struct {
	log     zerolog.Logger
	metrics *observability.Metrics

	gate   *VersionGate
	store  *curve.Store
	trades *ledger.Ledger
	stakes *stake.Book

	locks *xsync.Map[string, *sync.RWMutex]

	committer Committer
	bcast     Broadcaster
	mirror    Mirror
}

// Option configures optional engine collaborators.
type Option func(*Engine)

func WithCommitter(c Committer) Option { return func(e *Engine) { e.committer = c } }
func WithBroadcaster(b Broadcaster) Option { return func(e *Engine) { e.bcast = b } }
func WithMirror(m Mirror) Option { return func(e *Engine) { e.mirror = m } }

func New(log zerolog.Logger, metrics *observability.Metrics, opts ...Option) *Engine {
	e := &Engine{
		log:     log.With().Str("component", "engine").Logger(),
		metrics: metrics,
		gate:    NewVersionGate(metrics),
		store:   curve.NewStore(),
		trades:  ledger.New(),
		stakes:  stake.NewBook(),
		locks:   xsync.NewMap[string, *sync.RWMutex](),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) lockFor(addr string) *sync.RWMutex {
	if mu, ok := e.locks.Load(addr); ok {
		return mu
	}
	mu, _ := e.locks.LoadOrStore(addr, &sync.RWMutex{})
	return mu
}

// ProcessEvent applies one normalized event. The returned error is one of the
// sentinel taxonomy values (wrapped with detail) or a commit failure; callers
// at the webhook boundary absorb all of them into a 200 acknowledgment.
func (e *Engine) ProcessEvent(ctx context.Context, ev event.Event) error {
	start := time.Now()
	var err error
	switch v := ev.(type) {
	case *event.TokenCreated:
		err = e.applyCreated(ctx, v)
	case *event.TokenTraded:
		err = e.applyTraded(ctx, v)
	case *event.StakeSpin:
		err = e.applySpin(ctx, v)
	default:
		err = fmt.Errorf("%w: unhandled kind %s", event.ErrMalformedEvent, ev.Kind())
	}

	if err == nil && e.metrics != nil {
		e.metrics.EventsApplied.WithLabelValues(ev.Kind().String()).Inc()
		e.metrics.EventDuration.WithLabelValues(ev.Kind().String()).Observe(time.Since(start).Seconds())
	}
	return err
}

func (e *Engine) applyCreated(ctx context.Context, ev *event.TokenCreated) error {
	mu := e.lockFor(ev.TokenAddr)
	mu.Lock()

	if e.store.Has(ev.TokenAddr) {
		mu.Unlock()
		e.reject(ev.Kind(), "duplicate")
		e.log.Debug().Str("token", ev.TokenAddr).Msg("duplicate created event absorbed")
		return fmt.Errorf("%w: %s", event.ErrAlreadyExists, ev.TokenAddr)
	}
	if ev.InitialReserves < 0 || ev.RemainReserves < 0 || ev.RemainReserves > ev.InitialReserves {
		mu.Unlock()
		e.reject(ev.Kind(), "invariant")
		return fmt.Errorf("%w: token=%s initial=%d remain=%d",
			event.ErrInvariantViolation, ev.TokenAddr, ev.InitialReserves, ev.RemainReserves)
	}

	if e.committer != nil {
		tok := curve.Token{
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
		if err := e.commitToken(ctx, tok); err != nil {
			mu.Unlock()
			return err
		}
	}

	if err := e.store.Create(ev); err != nil {
		mu.Unlock()
		return err
	}
	tok, _ := e.store.Get(ev.TokenAddr)
	mu.Unlock()

	if e.metrics != nil {
		e.metrics.TokensLaunched.Inc()
	}
	e.log.Info().
		Str("token", ev.TokenAddr).
		Str("symbol", ev.Symbol).
		Int64("initial_reserves", ev.InitialReserves).
		Msg("token created")

	e.notify(broadcast.EventTokenCreated, event.KindTokenCreated, ev.TokenAddr, tokenPayload(tok, e.trades.Len()))
	return nil
}

func (e *Engine) applyTraded(ctx context.Context, ev *event.TokenTraded) error {
	mu := e.lockFor(ev.TokenAddr)
	mu.Lock()

	if err := e.gate.Check(ev.TokenAddr, ev.TxnVersion); err != nil {
		mu.Unlock()
		e.reject(ev.Kind(), "stale")
		if e.metrics != nil {
			e.metrics.StaleEvents.WithLabelValues(ev.Kind().String()).Inc()
		}
		e.log.Debug().
			Str("token", ev.TokenAddr).
			Int64("version", ev.TxnVersion).
			Msg("stale trade absorbed")
		return err
	}

	before, err := e.store.Get(ev.TokenAddr)
	if err != nil {
		mu.Unlock()
		e.reject(ev.Kind(), "unknown_token")
		return err
	}

	after, err := e.store.Preview(ev)
	if err != nil {
		mu.Unlock()
		e.reject(ev.Kind(), "invariant")
		e.log.Warn().
			Str("token", ev.TokenAddr).
			Int64("version", ev.TxnVersion).
			Int64("reserve_delta", ev.ReserveDelta).
			Msg("trade rejected: reserve bounds")
		return err
	}

	tr := ledger.Trade{
		TokenAddr:    ev.TokenAddr,
		Version:      ev.TxnVersion,
		Trader:       ev.Trader,
		Side:         ev.TradeSide,
		TokenAmount:  ev.TokenAmount,
		QuoteAmount:  ev.QuoteAmount,
		ReserveDelta: ev.ReserveDelta,
		Price:        ev.Price,
		Timestamp:    ev.Timestamp,
	}

	if e.committer != nil {
		commitStart := time.Now()
		if err := e.committer.CommitTrade(ctx, after, tr); err != nil {
			mu.Unlock()
			e.persistError(err)
			return fmt.Errorf("trade commit failed: %w", err)
		}
		if e.metrics != nil {
			e.metrics.CommitDuration.Observe(time.Since(commitStart).Seconds())
		}
	}

	if _, err := e.store.ApplyTrade(ev); err != nil {
		// Preview admitted the trade, so this is a bug, not an input problem.
		mu.Unlock()
		return fmt.Errorf("apply after commit: %w", err)
	}
	tr = e.trades.Append(tr)
	e.gate.Advance(ev.TokenAddr, ev.TxnVersion)
	mu.Unlock()

	e.log.Debug().
		Str("token", ev.TokenAddr).
		Int64("version", ev.TxnVersion).
		Str("side", ev.TradeSide.String()).
		Int64("token_amount", ev.TokenAmount).
		Float64("price", ev.Price).
		Msg("trade applied")

	asOf := e.trades.Len()
	e.notify(broadcast.EventTradeExecuted, event.KindTokenTraded, ev.TokenAddr, tradePayload(after, tr, asOf))

	prev, now := before.Progress(), after.Progress()
	if prev < 50 && now >= 50 {
		e.notify(broadcast.EventTokenNear, event.KindTokenTraded, ev.TokenAddr, tokenPayload(after, asOf))
	}
	if prev < 100 && now >= 100 {
		if e.metrics != nil {
			e.metrics.TokensGraduated.Inc()
		}
		e.log.Info().Str("token", ev.TokenAddr).Msg("token graduated")
		e.notify(broadcast.EventTokenGraduated, event.KindTokenTraded, ev.TokenAddr, tokenPayload(after, asOf))
	}
	return nil
}

func (e *Engine) applySpin(ctx context.Context, ev *event.StakeSpin) error {
	mu := e.lockFor(ev.StakeAddr)
	mu.Lock()

	if err := e.gate.Check(ev.StakeAddr, ev.TxnVersion); err != nil {
		mu.Unlock()
		e.reject(ev.Kind(), "stale")
		if e.metrics != nil {
			e.metrics.StaleEvents.WithLabelValues(ev.Kind().String()).Inc()
		}
		return err
	}

	if e.committer != nil {
		commitStart := time.Now()
		if err := e.committer.CommitSpin(ctx, ev); err != nil {
			mu.Unlock()
			e.persistError(err)
			return fmt.Errorf("spin commit failed: %w", err)
		}
		if e.metrics != nil {
			e.metrics.CommitDuration.Observe(time.Since(commitStart).Seconds())
		}
	}

	pos := e.stakes.ApplySpin(ev)
	e.gate.Advance(ev.StakeAddr, ev.TxnVersion)
	mu.Unlock()

	e.log.Debug().
		Str("stake", ev.StakeAddr).
		Str("user", ev.User).
		Int64("delta", ev.AmountDelta).
		Int64("version", ev.TxnVersion).
		Msg("spin applied")

	e.notify(broadcast.EventStakeUpdated, event.KindStakeSpin, ev.StakeAddr, stakePayload(pos))
	return nil
}

func (e *Engine) commitToken(ctx context.Context, tok curve.Token) error {
	start := time.Now()
	if err := e.committer.CommitToken(ctx, tok); err != nil {
		e.persistError(err)
		return fmt.Errorf("token commit failed: %w", err)
	}
	if e.metrics != nil {
		e.metrics.CommitDuration.Observe(time.Since(start).Seconds())
	}
	return nil
}

func (e *Engine) notify(name string, kind event.Kind, addr string, payload any) {
	if e.bcast != nil {
		e.bcast.Publish(name, payload)
	}
	if e.mirror != nil {
		e.mirror.Mirror(kind, addr, payload)
	}
}

func (e *Engine) reject(kind event.Kind, reason string) {
	if e.metrics != nil {
		e.metrics.EventsRejected.WithLabelValues(kind.String(), reason).Inc()
	}
}

func (e *Engine) persistError(err error) {
	if e.metrics != nil {
		e.metrics.PersistErrors.WithLabelValues("commit").Inc()
	}
	e.log.Error().Err(err).Msg("durable commit failed")
}

// --- Read API. Reads take the address's read side and never block other
// readers; the ledger has its own internal locking.

// TokenState returns the live curve state for a token.
func (e *Engine) TokenState(addr string) (curve.Token, error) {
	mu := e.lockFor(addr)
	mu.RLock()
	defer mu.RUnlock()
	return e.store.Get(addr)
}

// Tokens returns every launched token.
func (e *Engine) Tokens() []curve.Token {
	var out []curve.Token
	e.store.Range(func(tok curve.Token) bool {
		out = append(out, tok)
		return true
	})
	return out
}

// LedgerLen is the global committed trade count.
func (e *Engine) LedgerLen() int { return e.trades.Len() }

// RecentTrades returns the newest trades across all tokens.
func (e *Engine) RecentTrades(limit int) []ledger.Trade {
	return e.trades.RecentTrades(limit)
}

// TokenTrades returns one token's newest trades with pagination.
func (e *Engine) TokenTrades(addr string, limit, offset int) ([]ledger.Trade, int, error) {
	if !e.store.Has(addr) {
		return nil, 0, fmt.Errorf("%w: %s", event.ErrUnknownToken, addr)
	}
	return e.trades.RecentTokenTrades(addr, limit, offset), e.trades.TokenTradeCount(addr), nil
}

// Holders derives the current holder table for a token.
func (e *Engine) Holders(addr string) ([]views.Holder, error) {
	tok, err := e.TokenState(addr)
	if err != nil {
		return nil, err
	}
	return views.HolderBalances(e.trades.TradesForToken(addr), tok.TokensSold()), nil
}

// TokenPNL derives one trader's PNL on one token at the current spot price.
func (e *Engine) TokenPNL(addr, user string) (views.TokenPNL, error) {
	tok, err := e.TokenState(addr)
	if err != nil {
		return views.TokenPNL{}, err
	}
	p := views.ComputeTokenPNL(addr, e.trades.TradesForUser(addr, user), tok.SpotPrice())
	if p.Trades == 0 {
		return views.TokenPNL{}, fmt.Errorf("%w: %s on %s", views.ErrUnknownUser, user, addr)
	}
	return p, nil
}

// UserPNL derives a trader's PNL across every token they traded.
func (e *Engine) UserPNL(user string) (views.UserPNL, error) {
	return views.ComputeUserPNL(e.trades, user, func(token string) (float64, error) {
		tok, err := e.TokenState(token)
		if err != nil {
			return 0, err
		}
		return tok.SpotPrice(), nil
	})
}

// Candles aggregates a token's trades into OHLC buckets.
func (e *Engine) Candles(addr string, interval, from, to int64) ([]ledger.Candle, error) {
	if !e.store.Has(addr) {
		return nil, fmt.Errorf("%w: %s", event.ErrUnknownToken, addr)
	}
	return e.trades.Candles(addr, interval, from, to)
}

// StakePosition returns a user's position on a stake pool.
func (e *Engine) StakePosition(stakeAddr, user string) (stake.Position, error) {
	mu := e.lockFor(stakeAddr)
	mu.RLock()
	defer mu.RUnlock()
	return e.stakes.Position(stakeAddr, user)
}

// StakeStats summarizes a stake pool.
func (e *Engine) StakeStats(stakeAddr string) (stake.Stats, error) {
	mu := e.lockFor(stakeAddr)
	mu.RLock()
	defer mu.RUnlock()
	return e.stakes.Stats(stakeAddr)
}
