package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"CurveLedger/internal/broadcast"
	"CurveLedger/internal/engine"
	"CurveLedger/internal/event"
	"CurveLedger/internal/ingestion"
	"CurveLedger/internal/observability"
	"CurveLedger/internal/query"
	"CurveLedger/internal/server"
)

func newTestServer(t *testing.T) (*httptest.Server, *engine.Engine) {
	t.Helper()
	log := zerolog.Nop()
	eng := engine.New(log, nil)

	hc := observability.NewHealthChecker()
	hc.SetReady(true)

	srv := server.New(":0", ":0", log, &server.Deps{
		Query:         query.NewService(eng),
		Webhook:       ingestion.NewWebhook(eng, log, nil, ""),
		Hub:           broadcast.NewHub(log, nil),
		HealthChecker: hc,
	})
	return httptest.NewServer(srv.Handler()), eng
}

func seedMoon(t *testing.T, eng *engine.Engine) {
	t.Helper()
	ctx := context.Background()
	err := eng.ProcessEvent(ctx, &event.TokenCreated{
		TokenAddr:       "0xmoon",
		Name:            "Moonshot",
		Symbol:          "MOON",
		InitialReserves: 1_000_000,
		RemainReserves:  200_000,
		QuoteReserves:   30_000,
		Timestamp:       1_700_000_000,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	err = eng.ProcessEvent(ctx, &event.TokenTraded{
		TokenAddr:    "0xmoon",
		TxnVersion:   1,
		Trader:       "0xalice",
		TradeSide:    event.SideBuy,
		TokenAmount:  10_000,
		QuoteAmount:  400,
		ReserveDelta: -10_000,
		Price:        0.04,
		Timestamp:    1_700_000_060,
	})
	if err != nil {
		t.Fatalf("trade: %v", err)
	}
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestRoutes_TokenLifecycle(t *testing.T) {
	ts, eng := newTestServer(t)
	defer ts.Close()
	seedMoon(t, eng)

	var list query.TokenListResponse
	if code := getJSON(t, ts.URL+"/tokens", &list); code != http.StatusOK {
		t.Fatalf("tokens status = %d", code)
	}
	if len(list.Tokens) != 1 || list.Tokens[0].TokenAddr != "0xmoon" {
		t.Fatalf("tokens = %+v", list.Tokens)
	}

	var tok query.TokenResponse
	if code := getJSON(t, ts.URL+"/tokens/0xmoon", &tok); code != http.StatusOK {
		t.Fatalf("token status = %d", code)
	}
	if tok.CurrentReserves != 990_000 || tok.AsOf != 1 {
		t.Fatalf("token = %+v", tok)
	}

	var page query.TradePageResponse
	if code := getJSON(t, ts.URL+"/tokens/0xmoon/trades?limit=10", &page); code != http.StatusOK {
		t.Fatalf("trades status = %d", code)
	}
	if page.Total != 1 || len(page.Trades) != 1 {
		t.Fatalf("page = %+v", page)
	}
}

func TestRoutes_NotFoundMapping(t *testing.T) {
	ts, _ := newTestServer(t)
	defer ts.Close()

	cases := []string{
		"/tokens/0xghost",
		"/tokens/0xghost/holders",
		"/users/0xnobody/pnl",
		"/stakes/0xghost",
	}
	for _, path := range cases {
		if code := getJSON(t, ts.URL+path, nil); code != http.StatusNotFound {
			t.Errorf("%s status = %d, want 404", path, code)
		}
	}
}

func TestRoutes_ChartBadParams(t *testing.T) {
	ts, eng := newTestServer(t)
	defer ts.Close()
	seedMoon(t, eng)

	if code := getJSON(t, ts.URL+"/tokens/0xmoon/chart?interval=0", nil); code != http.StatusBadRequest {
		t.Fatalf("chart status = %d, want 400", code)
	}
	if code := getJSON(t, ts.URL+"/tokens/0xmoon/chart?interval=300", nil); code != http.StatusOK {
		t.Fatalf("chart status = %d, want 200", code)
	}
}

func TestRoutes_WebhookMounted(t *testing.T) {
	ts, eng := newTestServer(t)
	defer ts.Close()

	body := []byte(`{"token_addr":"0xmoon","initial_reserves":1000000,"remain_reserves":200000,"quote_reserves":30000,"ts":1700000000}`)
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/indexer/created", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if _, err := eng.TokenState("0xmoon"); err != nil {
		t.Fatalf("token not applied: %v", err)
	}
}

func TestRoutes_Health(t *testing.T) {
	ts, _ := newTestServer(t)
	defer ts.Close()

	if code := getJSON(t, ts.URL+"/healthz", nil); code != http.StatusOK {
		t.Fatalf("healthz status = %d", code)
	}
	if code := getJSON(t, ts.URL+"/readyz", nil); code != http.StatusOK {
		t.Fatalf("readyz status = %d", code)
	}
}
