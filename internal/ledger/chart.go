package ledger

import (
	"fmt"
	"sort"

	"CurveLedger/internal/event"
)

// Candle is one OHLC bucket of a token's trade history. Open and Close come
// from the first and last trade inside the bucket; empty buckets are simply
// absent from the output.
type Candle struct {
	BucketStart int64 // unix seconds, inclusive lower edge
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      int64 // token base units, both directions
	BuyVolume   int64
	SellVolume  int64
	Trades      int
}

// Candles aggregates a token's trades into fixed-interval OHLC buckets over
// [from, to). It is a pure function of the trade set: recomputing over the
// same ledger yields identical candles. Trades arrive from the per-token
// index in version order, which is also time order within a token.
func (l *Ledger) Candles(addr string, interval, from, to int64) ([]Candle, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("candle interval must be positive, got %d", interval)
	}
	if to > 0 && to <= from {
		return nil, fmt.Errorf("candle window [%d, %d) is empty", from, to)
	}

	buckets := make(map[int64]*Candle)
	for t := range l.TradesForToken(addr) {
		if t.Timestamp < from {
			continue
		}
		if to > 0 && t.Timestamp >= to {
			continue
		}

		start := t.Timestamp - (t.Timestamp % interval)
		c, ok := buckets[start]
		if !ok {
			c = &Candle{
				BucketStart: start,
				Open:        t.Price,
				High:        t.Price,
				Low:         t.Price,
			}
			buckets[start] = c
		}

		if t.Price > c.High {
			c.High = t.Price
		}
		if t.Price < c.Low {
			c.Low = t.Price
		}
		c.Close = t.Price
		c.Volume += t.TokenAmount
		if t.Side == event.SideSell {
			c.SellVolume += t.TokenAmount
		} else {
			c.BuyVolume += t.TokenAmount
		}
		c.Trades++
	}

	out := make([]Candle, 0, len(buckets))
	for _, c := range buckets {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BucketStart < out[j].BucketStart })
	return out, nil
}
