package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyDefaults sets default values for unset fields
func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.Batching.MaxBatchSize == 0 {
		cfg.Batching.MaxBatchSize = DefaultMaxBatchSize
	}
	// MaxBatchPayload default is 0, meaning unbounded
	if cfg.Batching.MaxConcurrentBatches == 0 {
		cfg.Batching.MaxConcurrentBatches = DefaultMaxConcurrentBatches
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = DefaultRetryMaxAttempts
	}
	if cfg.Breaker != nil {
		if cfg.Breaker.FailureThreshold == 0 {
			cfg.Breaker.FailureThreshold = DefaultBreakerThreshold
		}
		if cfg.Breaker.Cooldown == 0 {
			cfg.Breaker.Cooldown = DefaultBreakerCooldown
		}
		if cfg.Breaker.HalfOpenMaxRequests == 0 {
			cfg.Breaker.HalfOpenMaxRequests = DefaultBreakerHalfOpen
		}
	}

	for i := range cfg.Endpoints {
		if cfg.Endpoints[i].Role == "" {
			cfg.Endpoints[i].Role = DefaultEndpointRole
		}
		if cfg.Endpoints[i].KeyEnv == "" {
			cfg.Endpoints[i].KeyEnv = DefaultKeyEnv
		}
		if cfg.Endpoints[i].Timeout == 0 {
			cfg.Endpoints[i].Timeout = DefaultEndpointTimeout
		}
	}
}

// validate checks the configuration for errors
func validate(cfg *Config) error {
	if len(cfg.Endpoints) == 0 {
		return errors.New("at least one endpoint is required")
	}

	names := make(map[string]bool)
	hasMain := false
	for i, ep := range cfg.Endpoints {
		if ep.Name == "" {
			return fmt.Errorf("endpoint[%d]: name is required", i)
		}

		if names[ep.Name] {
			return fmt.Errorf("endpoint[%d]: duplicate endpoint name '%s'", i, ep.Name)
		}
		names[ep.Name] = true

		if ep.URL == "" && ep.WSURL == "" {
			return fmt.Errorf("endpoint '%s': at least one of url or wsUrl is required", ep.Name)
		}

		if ep.Role != RoleMain && ep.Role != RoleFallback {
			return fmt.Errorf("endpoint '%s': role must be 'main' or 'fallback'", ep.Name)
		}
		if ep.Role == RoleMain {
			hasMain = true
		}

		if ep.Timeout < 0 {
			return fmt.Errorf("endpoint '%s': timeout must be non-negative", ep.Name)
		}
	}

	if !hasMain {
		return errors.New("at least one endpoint with role 'main' is required")
	}

	if cfg.Batching.MaxBatchSize < 0 {
		return errors.New("batching.maxBatchSize must not be negative")
	}
	if cfg.Batching.MaxBatchPayload < 0 {
		return errors.New("batching.maxBatchPayload must be non-negative")
	}
	if cfg.Batching.MaxConcurrentBatches < 0 {
		return errors.New("batching.maxConcurrentBatches must not be negative")
	}
	if cfg.Batching.PerBatchTimeout < 0 {
		return errors.New("batching.perBatchTimeout must be non-negative")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return errors.New("logLevel must be one of: debug, info, warn, error")
	}

	if cfg.Retry.MaxAttempts < 0 {
		return errors.New("retry.maxAttempts must be non-negative")
	}

	if cfg.Cache != nil && cfg.Cache.Enabled {
		if cfg.Cache.TTL <= 0 {
			return errors.New("cache.ttl must be positive when cache is enabled")
		}
		if cfg.Cache.Size <= 0 {
			return errors.New("cache.size must be positive when cache is enabled")
		}
	}

	return nil
}
