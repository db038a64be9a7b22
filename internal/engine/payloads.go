package engine

import (
	"CurveLedger/internal/curve"
	"CurveLedger/internal/ledger"
	"CurveLedger/internal/stake"
)

// Wire payloads for broadcast and the NATS mirror. They carry the fresh
// derived snapshot so subscribers can render without a follow-up query;
// asOf is the global ledger length at publish time.

type TokenPayload struct {
	TokenAddr       string  `json:"token_addr"`
	Name            string  `json:"name"`
	Symbol          string  `json:"symbol"`
	Creator         string  `json:"creator"`
	InitialReserves int64   `json:"initial_reserves"`
	CurrentReserves int64   `json:"current_reserves"`
	RemainReserves  int64   `json:"remain_reserves"`
	Progress        float64 `json:"progress"`
	SpotPrice       float64 `json:"spot_price"`
	TradeCount      int64   `json:"trade_count"`
	AsOf            int     `json:"as_of"`
}

type TradePayload struct {
	TokenAddr   string       `json:"token_addr"`
	Version     int64        `json:"version"`
	Trader      string       `json:"trader"`
	Side        string       `json:"side"`
	TokenAmount int64        `json:"token_amount"`
	QuoteAmount int64        `json:"quote_amount"`
	Price       float64      `json:"price"`
	Timestamp   int64        `json:"ts"`
	Token       TokenPayload `json:"token"`
}

type StakePayload struct {
	StakeAddr   string `json:"stake_addr"`
	User        string `json:"user"`
	Amount      int64  `json:"amount"`
	LastVersion int64  `json:"version"`
	UpdatedAt   int64  `json:"updated_at"`
}

func tokenPayload(tok curve.Token, asOf int) TokenPayload {
	return TokenPayload{
		TokenAddr:       tok.Addr,
		Name:            tok.Name,
		Symbol:          tok.Symbol,
		Creator:         tok.Creator,
		InitialReserves: tok.InitialReserves,
		CurrentReserves: tok.CurrentReserves,
		RemainReserves:  tok.RemainReserves,
		Progress:        tok.Progress(),
		SpotPrice:       tok.SpotPrice(),
		TradeCount:      tok.TradeCount,
		AsOf:            asOf,
	}
}

func tradePayload(tok curve.Token, tr ledger.Trade, asOf int) TradePayload {
	return TradePayload{
		TokenAddr:   tr.TokenAddr,
		Version:     tr.Version,
		Trader:      tr.Trader,
		Side:        tr.Side.String(),
		TokenAmount: tr.TokenAmount,
		QuoteAmount: tr.QuoteAmount,
		Price:       tr.Price,
		Timestamp:   tr.Timestamp,
		Token:       tokenPayload(tok, asOf),
	}
}

func stakePayload(pos stake.Position) StakePayload {
	return StakePayload{
		StakeAddr:   pos.StakeAddr,
		User:        pos.User,
		Amount:      pos.Amount,
		LastVersion: pos.LastVersion,
		UpdatedAt:   pos.UpdatedAt,
	}
}
