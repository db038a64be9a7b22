package event

import "errors"

// Error taxonomy for event ingestion and queries. The webhook boundary maps
// every one of these to an HTTP 200 acknowledgment so the indexer never
// retries; the query boundary maps the unknown-* errors to not-found.
var (
	// ErrMalformedEvent: payload failed schema validation. No state change.
	ErrMalformedEvent = errors.New("malformed event")

	// ErrStaleEvent: version <= lastAppliedVersion for the address. Absorbed
	// as idempotent redelivery; no state change, no alarm.
	ErrStaleEvent = errors.New("stale event version")

	// ErrAlreadyExists: duplicate created event for an existing token.
	// Absorbed; reserves are NOT reset.
	ErrAlreadyExists = errors.New("token already exists")

	// ErrUnknownToken: trade or query references a token that was never
	// created. Surfaced to operators, it implies a missing created event.
	ErrUnknownToken = errors.New("unknown token")

	// ErrUnknownStake: spin or query references a stake address with no
	// recorded events.
	ErrUnknownStake = errors.New("unknown stake address")

	// ErrInvariantViolation: the trade would push currentReserves outside
	// [0, initialReserves]. Rejected loudly, never clamped.
	ErrInvariantViolation = errors.New("reserve invariant violation")
)
