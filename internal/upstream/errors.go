package upstream

import "errors"

// Error taxonomy shared by every Upstream Client, per spec.
var (
	// ErrBadRequest marks an invalid query. Never retried, never routed to a
	// provider.
	ErrBadRequest = errors.New("invalid query")

	// ErrTimeout marks an upstream deadline elapsing. Triggers fallback.
	ErrTimeout = errors.New("upstream timeout")

	// ErrUpstream marks a non-2xx response or parse failure. Same fallback
	// behavior as ErrTimeout.
	ErrUpstream = errors.New("upstream error")

	// ErrFallbackMock is a diagnostic marker attached to payloads that came
	// from a deterministic mock rather than a live fetch. It is not
	// propagated as a call error; it is carried on the payload.
	ErrFallbackMock = errors.New("fallback: mock payload")

	// ErrUnavailable is returned when no provider produced data and mock
	// fallback is disabled by configuration.
	ErrUnavailable = errors.New("no provider data available and mock fallback disabled")
)
