package config

import "time"

// Role defines the endpoint role type
type Role string

const (
	RoleMain     Role = "main"
	RoleFallback Role = "fallback"
)

// Config represents the main configuration structure
type Config struct {
	LogLevel  string           `json:"logLevel"`
	Batching  BatchingConfig   `json:"batching"`
	Retry     RetryConfig      `json:"retry"`
	Breaker   *BreakerConfig   `json:"circuitBreaker,omitempty"`
	Cache     *CacheConfig     `json:"cache,omitempty"`
	Endpoints []EndpointConfig `json:"endpoints"`
}

// BatchingConfig bounds how items are grouped and dispatched
type BatchingConfig struct {
	MaxBatchSize         int `json:"maxBatchSize"`
	MaxBatchPayload      int `json:"maxBatchPayload"` // total characters per batch; 0 = unbounded
	MaxConcurrentBatches int `json:"maxConcurrentBatches"`
	PerBatchTimeout      int `json:"perBatchTimeout"` // ms; 0 = none
}

// RetryConfig controls transport-level retries across endpoints
type RetryConfig struct {
	Enabled     *bool `json:"enabled,omitempty"`
	MaxAttempts int   `json:"maxAttempts"`
}

// BreakerConfig controls the per-endpoint circuit breaker
type BreakerConfig struct {
	Enabled             bool `json:"enabled"`
	FailureThreshold    int  `json:"failureThreshold"`
	Cooldown            int  `json:"cooldown"` // ms
	HalfOpenMaxRequests int  `json:"halfOpenMaxRequests"`
}

// CacheConfig represents batch response cache configuration
type CacheConfig struct {
	Enabled bool `json:"enabled"`
	TTL     int  `json:"ttl"`  // seconds
	Size    int  `json:"size"` // number of entries
}

// EndpointConfig represents a single analysis endpoint
type EndpointConfig struct {
	Name    string `json:"name"`
	URL     string `json:"url"`             // HTTP base URL
	WSURL   string `json:"wsUrl,omitempty"` // optional streaming endpoint
	KeyEnv  string `json:"keyEnv"`          // env var holding the subscription key
	Role    Role   `json:"role"`
	Timeout int    `json:"timeout"` // ms, per HTTP request
}

// Default values
const (
	DefaultLogLevel             = "info"
	DefaultMaxBatchSize         = 5
	DefaultMaxBatchPayload      = 0 // unbounded
	DefaultMaxConcurrentBatches = 1
	DefaultPerBatchTimeout      = 0 // none
	DefaultRetryEnabled         = true
	DefaultRetryMaxAttempts     = 3
	DefaultEndpointTimeout      = 10000 // ms
	DefaultEndpointRole         = RoleMain
	DefaultKeyEnv               = "COG_SERVICE_KEY"
	DefaultBreakerThreshold     = 5
	DefaultBreakerCooldown      = 30000 // ms
	DefaultBreakerHalfOpen      = 2
)

// GetPerBatchTimeoutDuration returns the per-batch timeout as time.Duration
func (c *BatchingConfig) GetPerBatchTimeoutDuration() time.Duration {
	return time.Duration(c.PerBatchTimeout) * time.Millisecond
}

// GetCooldownDuration returns the breaker cooldown as time.Duration
func (c *BreakerConfig) GetCooldownDuration() time.Duration {
	return time.Duration(c.Cooldown) * time.Millisecond
}

// GetTTLDuration returns cache TTL as time.Duration
func (c *CacheConfig) GetTTLDuration() time.Duration {
	return time.Duration(c.TTL) * time.Second
}

// GetTimeoutDuration returns the endpoint request timeout as time.Duration
func (c *EndpointConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Millisecond
}

// IsRetryEnabled returns the retry flag with its default applied
func (c *RetryConfig) IsRetryEnabled() bool {
	if c.Enabled == nil {
		return DefaultRetryEnabled
	}
	return *c.Enabled
}

// IsCacheEnabled returns true if cache is configured and enabled
func (c *Config) IsCacheEnabled() bool {
	return c.Cache != nil && c.Cache.Enabled
}

// IsBreakerEnabled returns true if the circuit breaker is configured and enabled
func (c *Config) IsBreakerEnabled() bool {
	return c.Breaker != nil && c.Breaker.Enabled
}
