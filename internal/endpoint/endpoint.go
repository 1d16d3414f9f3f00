package endpoint

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"docgofer/internal/analysis"
	"docgofer/internal/config"
)

// Role defines the endpoint role
type Role string

const (
	RoleMain     Role = "main"
	RoleFallback Role = "fallback"
)

// RoleFromConfig converts a config role
func RoleFromConfig(r config.Role) Role {
	if r == config.RoleFallback {
		return RoleFallback
	}
	return RoleMain
}

// keyHeader is the subscription key header expected by the analysis service
const keyHeader = "Ocp-Apim-Subscription-Key"

// StatusError is a non-2xx HTTP response from the analysis service
type StatusError struct {
	Code int
	Body string
}

// Error implements the error interface
func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error %d: %s", e.Code, e.Body)
}

// Retryable reports whether another endpoint may succeed where this one
// failed. Throttling and server-side errors are retryable; request errors
// (bad payload, bad key) are not.
func (e *StatusError) Retryable() bool {
	switch {
	case e.Code == http.StatusRequestTimeout:
		return true
	case e.Code == http.StatusTooManyRequests:
		return true
	case e.Code >= 500:
		return true
	default:
		return false
	}
}

// Endpoint represents a single analysis service endpoint
type Endpoint struct {
	name  string
	url   string
	wsURL string
	key   string
	role  Role

	httpClient *http.Client
	breaker    *CircuitBreaker
	wsClient   *WSClient
	logger     zerolog.Logger
}

// Config for creating a new Endpoint
type Config struct {
	Name           string
	URL            string
	WSURL          string
	Key            string
	Role           Role
	RequestTimeout time.Duration
	Breaker        BreakerConfig
	Logger         zerolog.Logger
}

// New creates a new Endpoint instance
func New(cfg Config) *Endpoint {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	}

	httpClient := &http.Client{
		Transport: transport,
		Timeout:   cfg.RequestTimeout,
	}

	return &Endpoint{
		name:       cfg.Name,
		url:        strings.TrimRight(cfg.URL, "/"),
		wsURL:      cfg.WSURL,
		key:        cfg.Key,
		role:       cfg.Role,
		httpClient: httpClient,
		breaker:    NewCircuitBreaker(cfg.Breaker),
		logger:     cfg.Logger.With().Str("endpoint", cfg.Name).Logger(),
	}
}

// NewFromConfig creates an Endpoint from config, resolving its key from the
// configured environment variable.
func NewFromConfig(cfg config.EndpointConfig, globalCfg *config.Config, logger zerolog.Logger) (*Endpoint, error) {
	key := os.Getenv(cfg.KeyEnv)
	if key == "" {
		return nil, fmt.Errorf("endpoint %s: key not found in environment variable %s", cfg.Name, cfg.KeyEnv)
	}

	breakerCfg := BreakerConfig{}
	if globalCfg.IsBreakerEnabled() {
		breakerCfg = BreakerConfig{
			Enabled:             true,
			FailureThreshold:    globalCfg.Breaker.FailureThreshold,
			Cooldown:            globalCfg.Breaker.GetCooldownDuration(),
			HalfOpenMaxRequests: globalCfg.Breaker.HalfOpenMaxRequests,
		}
	}

	return New(Config{
		Name:           cfg.Name,
		URL:            cfg.URL,
		WSURL:          cfg.WSURL,
		Key:            key,
		Role:           RoleFromConfig(cfg.Role),
		RequestTimeout: cfg.GetTimeoutDuration(),
		Breaker:        breakerCfg,
		Logger:         logger,
	}), nil
}

// Name returns the endpoint name
func (e *Endpoint) Name() string {
	return e.name
}

// Role returns the endpoint role
func (e *Endpoint) Role() Role {
	return e.role
}

// IsFallback returns true if this is a fallback endpoint
func (e *Endpoint) IsFallback() bool {
	return e.role == RoleFallback
}

// Breaker returns the endpoint's circuit breaker
func (e *Endpoint) Breaker() *CircuitBreaker {
	return e.breaker
}

// HasHTTP returns true if an HTTP URL is configured
func (e *Endpoint) HasHTTP() bool {
	return e.url != ""
}

// HasWS returns true if a streaming URL is configured
func (e *Endpoint) HasWS() bool {
	return e.wsURL != ""
}

// operationURL builds the request URL for one analysis operation
func (e *Endpoint) operationURL(op string) string {
	return fmt.Sprintf("%s/text/analytics/%s/%s", e.url, analysis.APIVersion, op)
}

// Analyze sends one batch request for the given operation.
// Prefers HTTP; falls back to the streaming connection when only wsUrl is
// configured.
func (e *Endpoint) Analyze(ctx context.Context, op string, req *analysis.BatchRequest) (*analysis.BatchResponse, error) {
	if e.HasHTTP() {
		return e.AnalyzeHTTP(ctx, op, req)
	}
	if e.HasWS() {
		return e.AnalyzeWS(ctx, op, req)
	}
	return nil, fmt.Errorf("no endpoint URL configured for %s", e.name)
}

// AnalyzeHTTP sends one batch request via HTTP
func (e *Endpoint) AnalyzeHTTP(ctx context.Context, op string, req *analysis.BatchRequest) (*analysis.BatchResponse, error) {
	if e.url == "" {
		return nil, fmt.Errorf("HTTP URL not configured")
	}

	reqBytes, err := req.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.operationURL(op), bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(keyHeader, e.key)

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	batchResp, err := analysis.ParseBatchResponse(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return batchResp, nil
}

// AnalyzeWS sends one batch request over the streaming connection
func (e *Endpoint) AnalyzeWS(ctx context.Context, op string, req *analysis.BatchRequest) (*analysis.BatchResponse, error) {
	if e.wsClient == nil {
		return nil, fmt.Errorf("streaming connection not established")
	}
	return e.wsClient.Send(ctx, op, req)
}

// StartWS establishes the streaming connection for this endpoint
func (e *Endpoint) StartWS(ctx context.Context, messageTimeout time.Duration, reconnectInterval time.Duration) error {
	if e.wsURL == "" {
		return fmt.Errorf("streaming URL not configured")
	}
	if e.wsClient != nil {
		return nil
	}

	e.wsClient = NewWSClient(e.wsURL, e.key, messageTimeout, reconnectInterval, e.logger)
	return e.wsClient.Connect(ctx)
}

// Close closes all connections
func (e *Endpoint) Close() {
	if e.wsClient != nil {
		e.wsClient.Close()
		e.wsClient = nil
	}
	e.httpClient.CloseIdleConnections()
}
