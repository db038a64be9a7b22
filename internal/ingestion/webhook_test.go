package ingestion_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"CurveLedger/internal/event"
	"CurveLedger/internal/ingestion"
)

// stubSink records events and returns a scripted error.
type stubSink struct {
	events []event.Event
	err    error
}

func (s *stubSink) ProcessEvent(_ context.Context, ev event.Event) error {
	s.events = append(s.events, ev)
	return s.err
}

func newWebhookServer(sink ingestion.EventSink, secret string) *httptest.Server {
	r := mux.NewRouter()
	ingestion.NewWebhook(sink, zerolog.Nop(), nil, secret).Register(r)
	return httptest.NewServer(r)
}

func postEvent(t *testing.T, url, secret string, payload interface{}) (*http.Response, ackBody) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if secret != "" {
		req.Header.Set("X-Indexer", secret)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()

	var body ackBody
	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	return resp, body
}

type ackBody struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func validTrade() map[string]interface{} {
	return map[string]interface{}{
		"token_addr":    "0xmoon",
		"version":       int64(1),
		"trader":        "0xalice",
		"side":          "buy",
		"token_amount":  int64(10),
		"quote_amount":  int64(1),
		"reserve_delta": int64(-10),
		"price":         0.01,
		"ts":            int64(1),
	}
}

func TestWebhook_AppliedEventAcksOK(t *testing.T) {
	sink := &stubSink{}
	srv := newWebhookServer(sink, "secret")
	defer srv.Close()

	resp, body := postEvent(t, srv.URL+"/indexer/traded", "secret", validTrade())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if !body.OK {
		t.Fatalf("body = %+v, want ok", body)
	}
	if len(sink.events) != 1 || sink.events[0].Kind() != event.KindTokenTraded {
		t.Fatalf("sink events = %+v", sink.events)
	}
}

func TestWebhook_ErrorsStillReturn200(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		wantOK bool
	}{
		{"stale", fmt.Errorf("wrapped: %w", event.ErrStaleEvent), true},
		{"duplicate", fmt.Errorf("wrapped: %w", event.ErrAlreadyExists), true},
		{"unknown token", fmt.Errorf("wrapped: %w", event.ErrUnknownToken), false},
		{"invariant", fmt.Errorf("wrapped: %w", event.ErrInvariantViolation), false},
		{"internal", fmt.Errorf("postgres down"), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sink := &stubSink{err: tc.err}
			srv := newWebhookServer(sink, "")
			defer srv.Close()

			resp, body := postEvent(t, srv.URL+"/indexer/traded", "", validTrade())
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status = %d, want 200 regardless of outcome", resp.StatusCode)
			}
			if body.OK != tc.wantOK {
				t.Fatalf("ok = %v, want %v (body %+v)", body.OK, tc.wantOK, body)
			}
		})
	}
}

func TestWebhook_MalformedBodyAcked(t *testing.T) {
	sink := &stubSink{}
	srv := newWebhookServer(sink, "")
	defer srv.Close()

	resp, body := postEvent(t, srv.URL+"/indexer/created", "", map[string]interface{}{
		"token_addr":       "",
		"initial_reserves": int64(-1),
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body.OK || body.Error == "" {
		t.Fatalf("body = %+v, want error ack", body)
	}
	if len(sink.events) != 0 {
		t.Fatalf("malformed event reached the sink: %+v", sink.events)
	}
}

func TestWebhook_BadSecretAckedNotApplied(t *testing.T) {
	sink := &stubSink{}
	srv := newWebhookServer(sink, "secret")
	defer srv.Close()

	// A wrong secret is still acked with 200 so the indexer does not
	// redeliver forever; the event must not reach the engine.
	resp, body := postEvent(t, srv.URL+"/indexer/traded", "wrong", validTrade())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body.OK || body.Error != "unauthorized" {
		t.Fatalf("body = %+v, want unauthorized error ack", body)
	}
	if len(sink.events) != 0 {
		t.Fatalf("unauthenticated event reached the sink")
	}
}

func TestWebhook_SpinRoute(t *testing.T) {
	sink := &stubSink{}
	srv := newWebhookServer(sink, "")
	defer srv.Close()

	resp, body := postEvent(t, srv.URL+"/indexer/spin", "", map[string]interface{}{
		"stake_addr":   "0xpool",
		"user":         "0xalice",
		"amount_delta": int64(100),
		"version":      int64(1),
		"ts":           int64(1),
	})
	if resp.StatusCode != http.StatusOK || !body.OK {
		t.Fatalf("status = %d body = %+v", resp.StatusCode, body)
	}
	if len(sink.events) != 1 || sink.events[0].Kind() != event.KindStakeSpin {
		t.Fatalf("sink events = %+v", sink.events)
	}
}
