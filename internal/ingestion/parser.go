// Package ingestion is the inbound boundary: the indexer webhook, payload
// normalization, and the outbound NATS mirror for committed events.
package ingestion

import (
	"encoding/json"
	"fmt"

	"CurveLedger/internal/event"
)

// ParseEvent converts a raw JSON body plus event kind into a typed
// event.Event. Validation happens here, before anything reaches the engine;
// every failure wraps event.ErrMalformedEvent.
func ParseEvent(kind event.Kind, data []byte) (event.Event, error) {
	switch kind {
	case event.KindTokenCreated:
		return parseCreated(data)
	case event.KindTokenTraded:
		return parseTraded(data)
	case event.KindStakeSpin:
		return parseSpin(data)
	default:
		return nil, fmt.Errorf("%w: unknown kind %d", event.ErrMalformedEvent, kind)
	}
}

// --- JSON wire formats ---
// Field names use snake_case to match the indexer's payloads.

type createdJSON struct {
	TokenAddr       string `json:"token_addr"`
	Name            string `json:"name"`
	Symbol          string `json:"symbol"`
	Decimals        int32  `json:"decimals"`
	Creator         string `json:"creator"`
	InitialReserves int64  `json:"initial_reserves"`
	RemainReserves  int64  `json:"remain_reserves"`
	QuoteReserves   int64  `json:"quote_reserves"`
	Timestamp       int64  `json:"ts"`
}

func parseCreated(data []byte) (*event.TokenCreated, error) {
	var j createdJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("%w: parse created: %v", event.ErrMalformedEvent, err)
	}

	if j.TokenAddr == "" {
		return nil, fmt.Errorf("%w: created missing token_addr", event.ErrMalformedEvent)
	}
	if j.InitialReserves < 0 {
		return nil, fmt.Errorf("%w: created negative initial_reserves %d", event.ErrMalformedEvent, j.InitialReserves)
	}
	if j.RemainReserves < 0 || j.RemainReserves > j.InitialReserves {
		return nil, fmt.Errorf("%w: created remain_reserves %d outside [0, %d]",
			event.ErrMalformedEvent, j.RemainReserves, j.InitialReserves)
	}

	return &event.TokenCreated{
		TokenAddr:       j.TokenAddr,
		Name:            j.Name,
		Symbol:          j.Symbol,
		Decimals:        j.Decimals,
		Creator:         j.Creator,
		InitialReserves: j.InitialReserves,
		RemainReserves:  j.RemainReserves,
		QuoteReserves:   j.QuoteReserves,
		Timestamp:       j.Timestamp,
	}, nil
}

type tradedJSON struct {
	TokenAddr    string  `json:"token_addr"`
	Version      int64   `json:"version"`
	Trader       string  `json:"trader"`
	Side         string  `json:"side"` // "buy" or "sell"
	TokenAmount  int64   `json:"token_amount"`
	QuoteAmount  int64   `json:"quote_amount"`
	ReserveDelta int64   `json:"reserve_delta"`
	Price        float64 `json:"price"`
	Timestamp    int64   `json:"ts"`
}

func parseTraded(data []byte) (*event.TokenTraded, error) {
	var j tradedJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("%w: parse traded: %v", event.ErrMalformedEvent, err)
	}

	if j.TokenAddr == "" {
		return nil, fmt.Errorf("%w: traded missing token_addr", event.ErrMalformedEvent)
	}
	if j.Version <= 0 {
		return nil, fmt.Errorf("%w: traded non-positive version %d", event.ErrMalformedEvent, j.Version)
	}
	if j.Trader == "" {
		return nil, fmt.Errorf("%w: traded missing trader", event.ErrMalformedEvent)
	}
	side, err := event.ParseSide(j.Side)
	if err != nil {
		return nil, err
	}
	if j.TokenAmount <= 0 {
		return nil, fmt.Errorf("%w: traded non-positive token_amount %d", event.ErrMalformedEvent, j.TokenAmount)
	}
	if j.QuoteAmount < 0 {
		return nil, fmt.Errorf("%w: traded negative quote_amount %d", event.ErrMalformedEvent, j.QuoteAmount)
	}
	if j.Price <= 0 {
		return nil, fmt.Errorf("%w: traded non-positive price %v", event.ErrMalformedEvent, j.Price)
	}

	return &event.TokenTraded{
		TokenAddr:    j.TokenAddr,
		TxnVersion:   j.Version,
		Trader:       j.Trader,
		TradeSide:    side,
		TokenAmount:  j.TokenAmount,
		QuoteAmount:  j.QuoteAmount,
		ReserveDelta: j.ReserveDelta,
		Price:        j.Price,
		Timestamp:    j.Timestamp,
	}, nil
}

type spinJSON struct {
	StakeAddr   string `json:"stake_addr"`
	User        string `json:"user"`
	AmountDelta int64  `json:"amount_delta"`
	Version     int64  `json:"version"`
	Timestamp   int64  `json:"ts"`
}

func parseSpin(data []byte) (*event.StakeSpin, error) {
	var j spinJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("%w: parse spin: %v", event.ErrMalformedEvent, err)
	}

	if j.StakeAddr == "" {
		return nil, fmt.Errorf("%w: spin missing stake_addr", event.ErrMalformedEvent)
	}
	if j.User == "" {
		return nil, fmt.Errorf("%w: spin missing user", event.ErrMalformedEvent)
	}
	if j.Version <= 0 {
		return nil, fmt.Errorf("%w: spin non-positive version %d", event.ErrMalformedEvent, j.Version)
	}

	return &event.StakeSpin{
		StakeAddr:   j.StakeAddr,
		User:        j.User,
		AmountDelta: j.AmountDelta,
		TxnVersion:  j.Version,
		Timestamp:   j.Timestamp,
	}, nil
}
