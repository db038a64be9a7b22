package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"CurveLedger/internal/event"
	"CurveLedger/internal/observability"
)

// OutboundPublisher mirrors committed events to NATS JetStream for downstream
// services. Subjects follow curve.ledger.events.{kind}.{addr}. The mirror is
// best effort: the enqueue never blocks the commit path, and a full channel
// drops the event; consumers that need completeness query the HTTP API.
type OutboundPublisher struct {
	js      jetstream.JetStream
	log     zerolog.Logger
	metrics *observability.Metrics
	input   chan outboundEvent
}

type outboundEvent struct {
	kind    event.Kind
	addr    string
	payload any
}

type outboundEnvelope struct {
	Kind      string `json:"kind"`
	Addr      string `json:"addr"`
	Payload   any    `json:"payload"`
	Timestamp int64  `json:"ts"`
}

func NewOutboundPublisher(js jetstream.JetStream, log zerolog.Logger, metrics *observability.Metrics, buffer int) *OutboundPublisher {
	return &OutboundPublisher{
		js:      js,
		log:     log.With().Str("component", "outbound_publisher").Logger(),
		metrics: metrics,
		input:   make(chan outboundEvent, buffer),
	}
}

// Mirror enqueues a committed event for publishing. Satisfies engine.Mirror.
func (op *OutboundPublisher) Mirror(kind event.Kind, addr string, payload any) {
	select {
	case op.input <- outboundEvent{kind: kind, addr: addr, payload: payload}:
	default:
		if op.metrics != nil {
			op.metrics.PublishDrops.Inc()
		}
		op.log.Warn().Str("kind", kind.String()).Str("addr", addr).Msg("outbound publish channel full, dropped")
	}
}

// Run drains the publish channel until the context ends.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		if op.metrics != nil {
			op.metrics.SetChannelMetrics("outbound_publish", len(op.input), cap(op.input))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt := <-op.input:
			if err := op.publish(ctx, evt); err != nil {
				// Non-fatal: downstream consumers converge via the query API.
				op.log.Warn().Err(err).Str("kind", evt.kind.String()).Str("addr", evt.addr).Msg("outbound publish failed")
			}
		}
	}
}

func (op *OutboundPublisher) publish(ctx context.Context, evt outboundEvent) error {
	data, err := json.Marshal(outboundEnvelope{
		Kind:      evt.kind.String(),
		Addr:      evt.addr,
		Payload:   evt.payload,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := fmt.Sprintf("curve.ledger.events.%s.%s", evt.kind.String(), evt.addr)
	_, err = op.js.Publish(ctx, subject, data)
	return err
}

// EnsureOutboundStream creates the outbound events stream.
func EnsureOutboundStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "CURVE_LEDGER_EVENTS",
		Subjects:  []string{"curve.ledger.events.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	return nil
}
