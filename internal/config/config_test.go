package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `{
		"endpoints": [
			{"name": "westeurope", "url": "https://example.cognitiveservices.azure.com"}
		]
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.LogLevel != DefaultLogLevel {
		t.Errorf("LogLevel = %s, want %s", cfg.LogLevel, DefaultLogLevel)
	}
	if cfg.Batching.MaxBatchSize != DefaultMaxBatchSize {
		t.Errorf("MaxBatchSize = %d, want %d", cfg.Batching.MaxBatchSize, DefaultMaxBatchSize)
	}
	if cfg.Batching.MaxBatchPayload != 0 {
		t.Errorf("MaxBatchPayload = %d, want 0 (unbounded)", cfg.Batching.MaxBatchPayload)
	}
	if cfg.Batching.MaxConcurrentBatches != DefaultMaxConcurrentBatches {
		t.Errorf("MaxConcurrentBatches = %d, want %d", cfg.Batching.MaxConcurrentBatches, DefaultMaxConcurrentBatches)
	}
	if !cfg.Retry.IsRetryEnabled() {
		t.Error("retry should default to enabled")
	}
	if cfg.Retry.MaxAttempts != DefaultRetryMaxAttempts {
		t.Errorf("MaxAttempts = %d, want %d", cfg.Retry.MaxAttempts, DefaultRetryMaxAttempts)
	}

	ep := cfg.Endpoints[0]
	if ep.Role != RoleMain {
		t.Errorf("Role = %s, want main", ep.Role)
	}
	if ep.KeyEnv != DefaultKeyEnv {
		t.Errorf("KeyEnv = %s, want %s", ep.KeyEnv, DefaultKeyEnv)
	}
	if ep.Timeout != DefaultEndpointTimeout {
		t.Errorf("Timeout = %d, want %d", ep.Timeout, DefaultEndpointTimeout)
	}
}

func TestLoad_RetryDisabledExplicitly(t *testing.T) {
	path := writeConfig(t, `{
		"retry": {"enabled": false},
		"endpoints": [{"name": "e", "url": "https://example.com"}]
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Retry.IsRetryEnabled() {
		t.Error("explicit retry.enabled=false was ignored")
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "no endpoints",
			content: `{"endpoints": []}`,
			wantErr: "at least one endpoint",
		},
		{
			name: "duplicate endpoint names",
			content: `{"endpoints": [
				{"name": "e", "url": "https://a.example.com"},
				{"name": "e", "url": "https://b.example.com"}
			]}`,
			wantErr: "duplicate endpoint name",
		},
		{
			name:    "endpoint without url",
			content: `{"endpoints": [{"name": "e"}]}`,
			wantErr: "at least one of url or wsUrl",
		},
		{
			name:    "bad role",
			content: `{"endpoints": [{"name": "e", "url": "https://example.com", "role": "backup"}]}`,
			wantErr: "role must be",
		},
		{
			name: "only fallbacks",
			content: `{"endpoints": [
				{"name": "e", "url": "https://example.com", "role": "fallback"}
			]}`,
			wantErr: "role 'main'",
		},
		{
			name: "negative batch size",
			content: `{"batching": {"maxBatchSize": -1},
				"endpoints": [{"name": "e", "url": "https://example.com"}]}`,
			wantErr: "maxBatchSize must not be negative",
		},
		{
			name: "negative concurrency",
			content: `{"batching": {"maxConcurrentBatches": -2},
				"endpoints": [{"name": "e", "url": "https://example.com"}]}`,
			wantErr: "maxConcurrentBatches must not be negative",
		},
		{
			name: "negative batch payload",
			content: `{"batching": {"maxBatchPayload": -1},
				"endpoints": [{"name": "e", "url": "https://example.com"}]}`,
			wantErr: "maxBatchPayload",
		},
		{
			name: "bad log level",
			content: `{"logLevel": "verbose",
				"endpoints": [{"name": "e", "url": "https://example.com"}]}`,
			wantErr: "logLevel",
		},
		{
			name: "cache enabled without ttl",
			content: `{"cache": {"enabled": true, "size": 10},
				"endpoints": [{"name": "e", "url": "https://example.com"}]}`,
			wantErr: "cache.ttl",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.content)
			_, err := Load(path)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("err = %v, want substring %q", err, tc.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
