package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"CurveLedger/internal/event"
	"CurveLedger/internal/observability"
)

const (
	authHeader  = "X-Indexer"
	maxBodySize = 1 << 20
)

// EventSink consumes normalized events. Implemented by engine.Engine.
type EventSink interface {
	ProcessEvent(ctx context.Context, ev event.Event) error
}

// Webhook is the indexer's push endpoint. Every request is acknowledged with
// HTTP 200 whether or not the event applied, a failed secret check included:
// the indexer retries on non-200 only, and a retry storm cannot fix a
// misconfigured secret, a malformed event, or a stale one. Outcomes travel in
// the body and in metrics instead.
type Webhook struct {
	sink    EventSink
	log     zerolog.Logger
	metrics *observability.Metrics
	secret  string
}

func NewWebhook(sink EventSink, log zerolog.Logger, metrics *observability.Metrics, secret string) *Webhook {
	return &Webhook{
		sink:    sink,
		log:     log.With().Str("component", "webhook").Logger(),
		metrics: metrics,
		secret:  secret,
	}
}

// Register mounts the indexer routes.
func (wh *Webhook) Register(r *mux.Router) {
	r.HandleFunc("/indexer/created", wh.handle(event.KindTokenCreated)).Methods(http.MethodPost)
	r.HandleFunc("/indexer/traded", wh.handle(event.KindTokenTraded)).Methods(http.MethodPost)
	r.HandleFunc("/indexer/spin", wh.handle(event.KindStakeSpin)).Methods(http.MethodPost)
}

type ackResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func (wh *Webhook) handle(kind event.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if wh.secret != "" && r.Header.Get(authHeader) != wh.secret {
			wh.count(kind, "unauthorized")
			wh.log.Warn().Str("kind", kind.String()).Msg("indexer secret mismatch")
			wh.ack(w, ackResponse{OK: false, Error: "unauthorized"})
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
		if err != nil {
			wh.count(kind, "read_error")
			wh.ack(w, ackResponse{OK: false, Error: "body read failed"})
			return
		}

		ev, err := ParseEvent(kind, body)
		if err != nil {
			wh.count(kind, "malformed")
			wh.log.Warn().Err(err).Str("kind", kind.String()).Msg("malformed event")
			wh.ack(w, ackResponse{OK: false, Error: err.Error()})
			return
		}

		// A disconnecting indexer must not abort a commit in flight.
		err = wh.sink.ProcessEvent(context.WithoutCancel(r.Context()), ev)
		switch {
		case err == nil:
			wh.count(kind, "applied")
			wh.ack(w, ackResponse{OK: true})
		case errors.Is(err, event.ErrStaleEvent), errors.Is(err, event.ErrAlreadyExists):
			// Idempotent redelivery: absorbed as success.
			wh.count(kind, "absorbed")
			wh.ack(w, ackResponse{OK: true})
		case errors.Is(err, event.ErrUnknownToken), errors.Is(err, event.ErrInvariantViolation):
			wh.count(kind, "rejected")
			wh.log.Warn().Err(err).Str("kind", kind.String()).Msg("event rejected")
			wh.ack(w, ackResponse{OK: false, Error: err.Error()})
		default:
			wh.count(kind, "internal")
			wh.log.Error().Err(err).Str("kind", kind.String()).Msg("event processing failed")
			wh.ack(w, ackResponse{OK: false, Error: "internal error"})
		}
	}
}

func (wh *Webhook) ack(w http.ResponseWriter, resp ackResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

func (wh *Webhook) count(kind event.Kind, outcome string) {
	if wh.metrics != nil {
		wh.metrics.WebhookRequests.WithLabelValues(kind.String(), outcome).Inc()
	}
}
