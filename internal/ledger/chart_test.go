package ledger_test

import (
	"testing"

	"CurveLedger/internal/event"
	"CurveLedger/internal/ledger"
)

// ============================================================================
// Test: Candles
// ============================================================================

func TestCandles_BucketsAndOHLC(t *testing.T) {
	l := ledger.New()
	// Bucket [60, 120): open 0.02, high 0.05, low 0.01, close 0.03.
	l.Append(tradeAt("0xa", 1, "0xalice", event.SideBuy, 100, 0.02, 61))
	l.Append(tradeAt("0xa", 2, "0xbob", event.SideBuy, 50, 0.05, 75))
	l.Append(tradeAt("0xa", 3, "0xalice", event.SideSell, 40, 0.01, 99))
	l.Append(tradeAt("0xa", 4, "0xbob", event.SideBuy, 10, 0.03, 119))
	// Bucket [180, 240): single trade, gap bucket [120, 180) stays absent.
	l.Append(tradeAt("0xa", 5, "0xalice", event.SideBuy, 20, 0.04, 185))

	candles, err := l.Candles("0xa", 60, 0, 0)
	if err != nil {
		t.Fatalf("candles: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("len = %d, want 2", len(candles))
	}

	c := candles[0]
	if c.BucketStart != 60 {
		t.Fatalf("bucket = %d, want 60", c.BucketStart)
	}
	if c.Open != 0.02 || c.High != 0.05 || c.Low != 0.01 || c.Close != 0.03 {
		t.Fatalf("ohlc = %v/%v/%v/%v", c.Open, c.High, c.Low, c.Close)
	}
	if c.Volume != 200 || c.BuyVolume != 160 || c.SellVolume != 40 {
		t.Fatalf("volume = %d buy=%d sell=%d", c.Volume, c.BuyVolume, c.SellVolume)
	}
	if c.Trades != 4 {
		t.Fatalf("trades = %d, want 4", c.Trades)
	}

	c = candles[1]
	if c.BucketStart != 180 || c.Open != 0.04 || c.Close != 0.04 || c.Trades != 1 {
		t.Fatalf("second candle = %+v", c)
	}
}

func TestCandles_WindowFiltering(t *testing.T) {
	l := ledger.New()
	l.Append(tradeAt("0xa", 1, "0xalice", event.SideBuy, 10, 0.02, 50))
	l.Append(tradeAt("0xa", 2, "0xalice", event.SideBuy, 10, 0.03, 130))
	l.Append(tradeAt("0xa", 3, "0xalice", event.SideBuy, 10, 0.04, 250))

	candles, err := l.Candles("0xa", 60, 100, 200)
	if err != nil {
		t.Fatalf("candles: %v", err)
	}
	if len(candles) != 1 || candles[0].BucketStart != 120 {
		t.Fatalf("candles = %+v, want single bucket 120", candles)
	}
}

func TestCandles_Deterministic(t *testing.T) {
	l := ledger.New()
	for v := int64(1); v <= 200; v++ {
		l.Append(tradeAt("0xa", v, "0xalice", event.SideBuy, v, float64(v)*0.001, 1000+v*7))
	}

	first, err := l.Candles("0xa", 300, 0, 0)
	if err != nil {
		t.Fatalf("candles: %v", err)
	}
	second, err := l.Candles("0xa", 300, 0, 0)
	if err != nil {
		t.Fatalf("candles: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("len %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("candle %d differs: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestCandles_InvalidArguments(t *testing.T) {
	l := ledger.New()
	if _, err := l.Candles("0xa", 0, 0, 0); err == nil {
		t.Fatal("zero interval accepted")
	}
	if _, err := l.Candles("0xa", 60, 200, 100); err == nil {
		t.Fatal("inverted window accepted")
	}
}

func TestCandles_UnknownTokenEmpty(t *testing.T) {
	l := ledger.New()
	candles, err := l.Candles("0xmissing", 60, 0, 0)
	if err != nil {
		t.Fatalf("candles: %v", err)
	}
	if len(candles) != 0 {
		t.Fatalf("candles = %+v, want empty", candles)
	}
}
