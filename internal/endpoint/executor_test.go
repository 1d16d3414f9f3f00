package endpoint

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"docgofer/internal/analysis"
	"docgofer/internal/batcher"
	"docgofer/internal/cache"
)

func testEndpoint(t *testing.T, name string, url string, role Role) *Endpoint {
	t.Helper()
	return New(Config{
		Name:           name,
		URL:            url,
		Key:            "test-key",
		Role:           role,
		RequestTimeout: 5 * time.Second,
		Logger:         zerolog.Nop(),
	})
}

// echoServer answers every document with a success result and checks the key header
func echoServer(t *testing.T, calls *int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(calls, 1)

		if got := r.Header.Get("Ocp-Apim-Subscription-Key"); got != "test-key" {
			t.Errorf("key header = %q", got)
		}

		var req analysis.BatchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}

		resp := analysis.BatchResponse{ModelVersion: "test"}
		for _, doc := range req.Documents {
			raw, _ := json.Marshal(map[string]string{"id": doc.ID, "sentiment": "neutral"})
			resp.Documents = append(resp.Documents, raw)
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestExecutor_Success(t *testing.T) {
	var calls int64
	srv := echoServer(t, &calls)
	defer srv.Close()

	ep := testEndpoint(t, "primary", srv.URL, RoleMain)
	ex := NewExecutor([]*Endpoint{ep}, RetryConfig{Enabled: true, MaxAttempts: 3}, nil, zerolog.Nop())
	defer ex.Close()

	req := analysis.NewBatchRequest([]analysis.Document{{ID: "1", Text: "hello"}})
	resp, err := ex.Execute(context.Background(), analysis.OpSentiment, req)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(resp.Documents) != 1 {
		t.Errorf("documents = %d, want 1", len(resp.Documents))
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestExecutor_FallbackOnServerError(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer failing.Close()

	var calls int64
	good := echoServer(t, &calls)
	defer good.Close()

	main := testEndpoint(t, "main", failing.URL, RoleMain)
	fallback := testEndpoint(t, "fallback", good.URL, RoleFallback)
	ex := NewExecutor([]*Endpoint{main, fallback}, RetryConfig{Enabled: true, MaxAttempts: 3}, nil, zerolog.Nop())
	defer ex.Close()

	req := analysis.NewBatchRequest([]analysis.Document{{ID: "1", Text: "hello"}})
	resp, err := ex.Execute(context.Background(), analysis.OpSentiment, req)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(resp.Documents) != 1 {
		t.Errorf("documents = %d, want 1", len(resp.Documents))
	}
	if calls != 1 {
		t.Errorf("fallback calls = %d, want 1", calls)
	}
}

func TestExecutor_NonRetryableStopsImmediately(t *testing.T) {
	var calls int64
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		http.Error(w, "invalid subscription key", http.StatusUnauthorized)
	}))
	defer bad.Close()

	var fallbackCalls int64
	good := echoServer(t, &fallbackCalls)
	defer good.Close()

	main := testEndpoint(t, "main", bad.URL, RoleMain)
	fallback := testEndpoint(t, "fallback", good.URL, RoleFallback)
	ex := NewExecutor([]*Endpoint{main, fallback}, RetryConfig{Enabled: true, MaxAttempts: 5}, nil, zerolog.Nop())
	defer ex.Close()

	req := analysis.NewBatchRequest([]analysis.Document{{ID: "1", Text: "hello"}})
	_, err := ex.Execute(context.Background(), analysis.OpSentiment, req)
	if err == nil {
		t.Fatal("expected error")
	}

	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusUnauthorized {
		t.Errorf("err = %v, want 401 StatusError", err)
	}
	if calls != 1 {
		t.Errorf("main calls = %d, want 1 (no retry on request errors)", calls)
	}
	if fallbackCalls != 0 {
		t.Errorf("fallback calls = %d, want 0", fallbackCalls)
	}
}

func TestExecutor_AllEndpointsFailed(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer failing.Close()

	ep := testEndpoint(t, "only", failing.URL, RoleMain)
	ex := NewExecutor([]*Endpoint{ep}, RetryConfig{Enabled: true, MaxAttempts: 3}, nil, zerolog.Nop())
	defer ex.Close()

	req := analysis.NewBatchRequest([]analysis.Document{{ID: "1", Text: "hello"}})
	_, err := ex.Execute(context.Background(), analysis.OpSentiment, req)
	if !errors.Is(err, ErrAllEndpointsFailed) {
		t.Errorf("err = %v, want ErrAllEndpointsFailed", err)
	}
}

func TestExecutor_CacheHitSkipsNetwork(t *testing.T) {
	var calls int64
	srv := echoServer(t, &calls)
	defer srv.Close()

	mc, err := cache.NewMemoryCache(10, time.Minute)
	if err != nil {
		t.Fatalf("NewMemoryCache: %v", err)
	}
	defer mc.Close()

	ep := testEndpoint(t, "primary", srv.URL, RoleMain)
	ex := NewExecutor([]*Endpoint{ep}, RetryConfig{Enabled: true, MaxAttempts: 3}, mc, zerolog.Nop())
	defer ex.Close()

	req := analysis.NewBatchRequest([]analysis.Document{{ID: "1", Text: "hello"}})
	for i := 0; i < 3; i++ {
		if _, err := ex.Execute(context.Background(), analysis.OpSentiment, req); err != nil {
			t.Fatalf("Execute %d: %v", i, err)
		}
	}

	if calls != 1 {
		t.Errorf("calls = %d, want 1 (identical batches should hit the cache)", calls)
	}
}

func TestTransport_MapsOutcomes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := analysis.BatchResponse{
			Documents: []json.RawMessage{json.RawMessage(`{"id":"1","sentiment":"positive"}`)},
			Errors: []analysis.DocumentError{
				{ID: "2", Error: &analysis.Error{Code: "InvalidDocument", Message: "empty"}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	ep := testEndpoint(t, "primary", srv.URL, RoleMain)
	ex := NewExecutor([]*Endpoint{ep}, RetryConfig{}, nil, zerolog.Nop())
	defer ex.Close()

	transport := ex.Transport(analysis.OpSentiment)
	b := &batcher.Batch{Items: []batcher.Item{
		{ID: "1", Payload: analysis.Document{ID: "1", Text: "great"}, SizeHint: 5},
		{ID: "2", Payload: analysis.Document{ID: "2", Text: ""}, SizeHint: 0},
	}}

	out, err := transport(context.Background(), b)
	if err != nil {
		t.Fatalf("transport: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("outcomes = %d, want 2", len(out))
	}
	if out[0].ID != "1" || out[0].Err != nil || out[0].Value == nil {
		t.Errorf("outcome 0 = %+v, want success for id 1", out[0])
	}
	if out[1].ID != "2" || out[1].Err == nil {
		t.Errorf("outcome 1 = %+v, want error for id 2", out[1])
	}
}

func TestTransport_RejectsNonDocumentPayload(t *testing.T) {
	ep := testEndpoint(t, "primary", "http://127.0.0.1:0", RoleMain)
	ex := NewExecutor([]*Endpoint{ep}, RetryConfig{}, nil, zerolog.Nop())
	defer ex.Close()

	transport := ex.Transport(analysis.OpSentiment)
	b := &batcher.Batch{Items: []batcher.Item{{ID: "1", Payload: 42, SizeHint: 1}}}

	if _, err := transport(context.Background(), b); err == nil {
		t.Error("expected error for non-document payload")
	}
}
