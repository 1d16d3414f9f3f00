package endpoint

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"docgofer/internal/analysis"
	"docgofer/internal/cache"
)

// ErrAllEndpointsFailed is returned when all endpoints fail
var ErrAllEndpointsFailed = errors.New("all endpoints failed")

// ErrNoEndpointsAvailable is returned when no endpoints are available
var ErrNoEndpointsAvailable = errors.New("no endpoints available")

// RetryConfig holds retry configuration
type RetryConfig struct {
	Enabled     bool
	MaxAttempts int
}

// Executor sends batch requests with retry across endpoints.
// Main endpoints are tried first, then fallbacks; endpoints with an open
// circuit breaker are skipped. The dispatcher core never retries, so all
// retry policy lives here.
type Executor struct {
	endpoints []*Endpoint
	config    RetryConfig
	cache     cache.Cache
	logger    zerolog.Logger
}

// NewExecutor creates a new Executor. respCache may be nil to disable caching.
func NewExecutor(endpoints []*Endpoint, cfg RetryConfig, respCache cache.Cache, logger zerolog.Logger) *Executor {
	return &Executor{
		endpoints: endpoints,
		config:    cfg,
		cache:     respCache,
		logger:    logger.With().Str("component", "executor").Logger(),
	}
}

// Close closes all endpoints
func (ex *Executor) Close() {
	for _, ep := range ex.endpoints {
		ep.Close()
	}
}

// Execute sends one batch request for the given operation, consulting the
// response cache first when one is configured.
func (ex *Executor) Execute(ctx context.Context, op string, req *analysis.BatchRequest) (*analysis.BatchResponse, error) {
	var key string
	if ex.cache != nil {
		reqBytes, err := req.Bytes()
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		key = cache.Key(op, reqBytes)

		if data, ok := ex.cache.Get(key); ok {
			resp, err := analysis.ParseBatchResponse(data)
			if err == nil {
				ex.logger.Debug().Str("op", op).Msg("cache hit")
				return resp, nil
			}
			// Unparseable entry; fall through to the network
		}
	}

	resp, err := ex.execute(ctx, op, req)
	if err != nil {
		return nil, err
	}

	if ex.cache != nil {
		if data, err := resp.Bytes(); err == nil {
			ex.cache.Set(key, data)
		}
	}

	return resp, nil
}

// execute tries endpoints until one succeeds or all are exhausted
func (ex *Executor) execute(ctx context.Context, op string, req *analysis.BatchRequest) (*analysis.BatchResponse, error) {
	tried := make(map[string]bool)

	if !ex.config.Enabled {
		resp, _, err := ex.executeOnce(ctx, op, req, tried, false)
		return resp, err
	}

	maxAttempts := ex.config.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	var lastEndpoint string
	usedFallback := false

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if !usedFallback && ex.mainExhausted(tried) {
			usedFallback = true
			ex.logger.Warn().
				Str("op", op).
				Int("triedMain", len(tried)).
				Msg("all main endpoints failed, falling back to fallback endpoints")
		}

		resp, epName, err := ex.executeOnce(ctx, op, req, tried, usedFallback)
		if err == nil {
			return resp, nil
		}

		var statusErr *StatusError
		if errors.As(err, &statusErr) && !statusErr.Retryable() {
			// Request-level error; another endpoint will reject it too
			return nil, err
		}

		if errors.Is(err, ErrNoEndpointsAvailable) {
			// Keep the previous attempt's error for the report, if any
			if lastErr == nil {
				lastErr = err
			}
			break
		}

		lastErr = err
		lastEndpoint = epName

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		logEvent := ex.logger.Warn().
			Int("attempt", attempt+1).
			Int("maxAttempts", maxAttempts).
			Err(lastErr).
			Str("op", op).
			Bool("usingFallback", usedFallback)
		if lastEndpoint != "" {
			logEvent = logEvent.Str("endpoint", lastEndpoint)
		}
		logEvent.Msg("batch request failed, retrying")
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrAllEndpointsFailed, lastErr)
	}
	return nil, ErrAllEndpointsFailed
}

// executeOnce executes the request on a single endpoint.
// Returns response, endpoint name (empty if none selected), and error.
func (ex *Executor) executeOnce(ctx context.Context, op string, req *analysis.BatchRequest, tried map[string]bool, isFallback bool) (*analysis.BatchResponse, string, error) {
	ep := ex.next(tried)
	if ep == nil {
		return nil, "", ErrNoEndpointsAvailable
	}

	name := ep.Name()
	tried[name] = true

	resp, err := ep.Analyze(ctx, op, req)
	if err != nil {
		ep.Breaker().RecordFailure()
		logEvent := ex.logger.Warn().
			Err(err).
			Str("endpoint", name).
			Str("op", op).
			Bool("isFallback", ep.IsFallback())
		if isFallback {
			logEvent.Msg("fallback batch request failed")
		} else {
			logEvent.Msg("batch request failed")
		}
		return nil, name, err
	}

	ep.Breaker().RecordSuccess()
	ex.logger.Debug().
		Str("endpoint", name).
		Str("op", op).
		Int("documents", len(req.Documents)).
		Bool("isFallback", ep.IsFallback()).
		Msg("batch request succeeded")

	return resp, name, nil
}

// next selects the first untried endpoint whose breaker admits a request,
// preferring main endpoints over fallbacks.
func (ex *Executor) next(tried map[string]bool) *Endpoint {
	for _, ep := range ex.endpoints {
		if !ep.IsFallback() && !tried[ep.Name()] && ep.Breaker().Allow() {
			return ep
		}
	}
	for _, ep := range ex.endpoints {
		if ep.IsFallback() && !tried[ep.Name()] && ep.Breaker().Allow() {
			return ep
		}
	}
	return nil
}

// mainExhausted checks if all main endpoints have been tried
func (ex *Executor) mainExhausted(tried map[string]bool) bool {
	hasMain := false
	for _, ep := range ex.endpoints {
		if ep.IsFallback() {
			continue
		}
		hasMain = true
		if !tried[ep.Name()] {
			return false
		}
	}
	return hasMain
}
