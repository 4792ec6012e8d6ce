package upstream

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/skywatch/skywatch/internal/airquality"
	"github.com/skywatch/skywatch/internal/featureflags"
	"github.com/skywatch/skywatch/internal/provider/resilience"
)

// FallbackMode selects what a client does when the live fetch fails and mock
// fallback is permitted.
type FallbackMode int

const (
	// FallbackMock returns the deterministic mock payload.
	FallbackMock FallbackMode = iota
	// FallbackNull returns a nil payload; the Canonicalizer simply skips
	// this provider's contribution.
	FallbackNull
)

// HTTPDoer abstracts HTTP execution so clients can be pointed at the shared
// resilience.Client or a fake in tests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// baseClient holds the behavior shared by every pollutant-producing Upstream
// Client: resilience wrapping, timeout, deterministic-mock-or-null fallback,
// and feature-flag-gated mock permission.
type baseClient struct {
	name       string
	http       HTTPDoer
	ttl        time.Duration
	timeout    time.Duration
	fallback   FallbackMode
	pollutants []airquality.Pollutant
	flags      *featureflags.Service
	registry   *resilience.Registry
	logger     zerolog.Logger
}

// TTL is the cache TTL this client's results should be stored under.
func (c *baseClient) TTL() time.Duration { return c.ttl }

// Name identifies the provider for caching, logging, and health reporting.
func (c *baseClient) Name() string { return c.name }

// mockAllowed reports whether deterministic mock fallback is currently
// permitted, consulting the mock_fallback_disabled feature flag when a
// Service is wired.
func (c *baseClient) mockAllowed(ctx context.Context) bool {
	if c.flags == nil {
		return true
	}
	return !c.flags.IsEnabled(ctx, featureflags.FlagMockFallbackDisabled)
}

// fetchWithFallback runs fn (the live provider call) within the query's
// timeout, converting transport/upstream errors into the client's
// configured fallback — unless mock fallback has been disabled by
// configuration and no live data was produced, in which case ErrUnavailable
// is returned.
func (c *baseClient) fetchWithFallback(
	ctx context.Context,
	q Query,
	now time.Time,
	fn func(ctx context.Context) (*airquality.ProviderPayload, error),
) (*airquality.ProviderPayload, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	fetchCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := fn(fetchCtx)
	if err == nil {
		if c.registry != nil {
			c.registry.RecordSuccess(c.name)
		}
		return payload, nil
	}

	if c.registry != nil {
		c.registry.RecordFailure(c.name, err)
	}
	c.logger.Warn().Err(err).Str("provider", c.name).Msg("upstream fetch failed, applying fallback")

	classified := classifyErr(fetchCtx, err)

	switch c.fallback {
	case FallbackNull:
		return nil, nil
	case FallbackMock:
		if !c.mockAllowed(ctx) {
			return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, c.name, classified)
		}
		return mockPayload(q, c.pollutants, c.name, now), nil
	default:
		return nil, nil
	}
}

func classifyErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrUpstream, err)
}
