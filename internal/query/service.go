// Package query is the read-only API surface. It wraps the engine's
// in-memory state, which the ledger rebuilds on startup, so no query ever
// touches PostgreSQL. Every response carries as_of for freshness semantics.
package query

import (
	"sort"

	"CurveLedger/internal/curve"
	"CurveLedger/internal/engine"
	"CurveLedger/internal/ledger"
	"CurveLedger/internal/views"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// Service answers read queries from the engine's committed state.
type Service struct {
	eng *engine.Engine
}

func NewService(eng *engine.Engine) *Service {
	return &Service{eng: eng}
}

// Token returns one token's curve snapshot.
func (s *Service) Token(addr string) (*TokenResponse, error) {
	tok, err := s.eng.TokenState(addr)
	if err != nil {
		return nil, err
	}
	resp := tokenResponse(tok, s.eng.LedgerLen())
	return &resp, nil
}

// Tokens lists every launched token, newest first.
func (s *Service) Tokens() *TokenListResponse {
	asOf := s.eng.LedgerLen()
	toks := s.eng.Tokens()
	sort.Slice(toks, func(i, j int) bool {
		if toks[i].CreatedAt != toks[j].CreatedAt {
			return toks[i].CreatedAt > toks[j].CreatedAt
		}
		return toks[i].Addr < toks[j].Addr
	})

	out := make([]TokenResponse, 0, len(toks))
	for _, tok := range toks {
		out = append(out, tokenResponse(tok, asOf))
	}
	return &TokenListResponse{Tokens: out, AsOf: asOf}
}

// RecentTrades returns the newest trades across all tokens.
func (s *Service) RecentTrades(limit int) *TradePageResponse {
	limit = clampLimit(limit)
	trades := s.eng.RecentTrades(limit)
	return &TradePageResponse{
		Trades: tradeResponses(trades),
		Total:  s.eng.LedgerLen(),
		Limit:  limit,
		AsOf:   s.eng.LedgerLen(),
	}
}

// TokenTrades returns one page of a token's trades, newest first.
func (s *Service) TokenTrades(addr string, limit, offset int) (*TradePageResponse, error) {
	limit = clampLimit(limit)
	if offset < 0 {
		offset = 0
	}
	trades, total, err := s.eng.TokenTrades(addr, limit, offset)
	if err != nil {
		return nil, err
	}
	return &TradePageResponse{
		TokenAddr: addr,
		Trades:    tradeResponses(trades),
		Total:     total,
		Limit:     limit,
		Offset:    offset,
		AsOf:      s.eng.LedgerLen(),
	}, nil
}

// Holders returns a token's holder distribution, largest first.
func (s *Service) Holders(addr string) (*HolderListResponse, error) {
	holders, err := s.eng.Holders(addr)
	if err != nil {
		return nil, err
	}
	out := make([]HolderResponse, 0, len(holders))
	for _, h := range holders {
		out = append(out, HolderResponse{Addr: h.Addr, Balance: h.Balance, Percentage: h.Percentage})
	}
	return &HolderListResponse{TokenAddr: addr, Holders: out, AsOf: s.eng.LedgerLen()}, nil
}

// Chart returns a token's OHLC candles over [from, to).
func (s *Service) Chart(addr string, interval, from, to int64) (*ChartResponse, error) {
	candles, err := s.eng.Candles(addr, interval, from, to)
	if err != nil {
		return nil, err
	}
	out := make([]CandleResponse, 0, len(candles))
	for _, c := range candles {
		out = append(out, CandleResponse{
			BucketStart: c.BucketStart,
			Open:        c.Open,
			High:        c.High,
			Low:         c.Low,
			Close:       c.Close,
			Volume:      c.Volume,
			BuyVolume:   c.BuyVolume,
			SellVolume:  c.SellVolume,
			Trades:      c.Trades,
		})
	}
	return &ChartResponse{TokenAddr: addr, Interval: interval, Candles: out, AsOf: s.eng.LedgerLen()}, nil
}

// TokenPNL returns one trader's profit and loss on a single token.
func (s *Service) TokenPNL(addr, user string) (*TokenPNLResponse, error) {
	p, err := s.eng.TokenPNL(addr, user)
	if err != nil {
		return nil, err
	}
	resp := pnlResponse(p)
	resp.User = user
	resp.AsOf = s.eng.LedgerLen()
	return &resp, nil
}

// UserPNL aggregates a trader's PNL across every token they traded.
func (s *Service) UserPNL(user string) (*UserPNLResponse, error) {
	p, err := s.eng.UserPNL(user)
	if err != nil {
		return nil, err
	}
	tokens := make([]TokenPNLResponse, 0, len(p.Tokens))
	for _, tp := range p.Tokens {
		tokens = append(tokens, pnlResponse(tp))
	}
	return &UserPNLResponse{
		User:       p.User,
		Tokens:     tokens,
		Realized:   p.Realized,
		Unrealized: p.Unrealized,
		Total:      p.Total,
		AsOf:       s.eng.LedgerLen(),
	}, nil
}

// StakePosition returns one user's position in a stake pool.
func (s *Service) StakePosition(stakeAddr, user string) (*StakePositionResponse, error) {
	pos, err := s.eng.StakePosition(stakeAddr, user)
	if err != nil {
		return nil, err
	}
	return &StakePositionResponse{
		StakeAddr:   pos.StakeAddr,
		User:        pos.User,
		Amount:      pos.Amount,
		LastVersion: pos.LastVersion,
		UpdatedAt:   pos.UpdatedAt,
		AsOf:        s.eng.LedgerLen(),
	}, nil
}

// StakeStats summarizes one stake pool.
func (s *Service) StakeStats(stakeAddr string) (*StakeStatsResponse, error) {
	st, err := s.eng.StakeStats(stakeAddr)
	if err != nil {
		return nil, err
	}
	return &StakeStatsResponse{
		StakeAddr:      st.StakeAddr,
		ActiveStakers:  st.ActiveStakers,
		TotalStaked:    st.TotalStaked,
		AppliedVersion: st.AppliedVersion,
		AsOf:           s.eng.LedgerLen(),
	}, nil
}

// --- helpers ---

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

func tokenResponse(tok curve.Token, asOf int) TokenResponse {
	return TokenResponse{
		TokenAddr:       tok.Addr,
		Name:            tok.Name,
		Symbol:          tok.Symbol,
		Decimals:        tok.Decimals,
		Creator:         tok.Creator,
		InitialReserves: tok.InitialReserves,
		RemainReserves:  tok.RemainReserves,
		CurrentReserves: tok.CurrentReserves,
		QuoteReserves:   tok.QuoteReserves,
		SpotPrice:       tok.SpotPrice(),
		Progress:        tok.Progress(),
		TradeCount:      tok.TradeCount,
		CreatedAt:       tok.CreatedAt,
		AsOf:            asOf,
	}
}

func tradeResponses(trades []ledger.Trade) []TradeResponse {
	out := make([]TradeResponse, 0, len(trades))
	for _, t := range trades {
		out = append(out, TradeResponse{
			ID:          t.ID,
			TokenAddr:   t.TokenAddr,
			Version:     t.Version,
			Trader:      t.Trader,
			Side:        t.Side.String(),
			TokenAmount: t.TokenAmount,
			QuoteAmount: t.QuoteAmount,
			Price:       t.Price,
			Timestamp:   t.Timestamp,
		})
	}
	return out
}

func pnlResponse(p views.TokenPNL) TokenPNLResponse {
	return TokenPNLResponse{
		TokenAddr:  p.TokenAddr,
		Held:       p.Held,
		AvgEntry:   p.AvgEntry,
		CostBasis:  p.CostBasis,
		Realized:   p.Realized,
		Unrealized: p.Unrealized,
		Total:      p.Total,
		Trades:     p.Trades,
	}
}
