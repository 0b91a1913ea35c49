package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSendJSONSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Expected JSON content type, got %s", r.Header.Get("Content-Type"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result":"ok"}`))
	}))
	defer server.Close()

	client := NewProviderHTTPClient(&HTTPClientConfig{
		BaseURL: server.URL,
		Retry:   RetryConfig{Attempts: 1, Delay: time.Millisecond},
	})

	resp, err := client.SendJSON(context.Background(), &HTTPRequest{
		Method:   "POST",
		Endpoint: "/test",
		Body:     map[string]string{"key": "value"},
	})
	if err != nil {
		t.Fatalf("SendJSON failed: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var parsed map[string]string
	if err := client.ParseJSONResponse(resp, &parsed); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if parsed["result"] != "ok" {
		t.Errorf("Expected result 'ok', got %s", parsed["result"])
	}
}

func TestSendJSONRetriesUntilSuccess(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":"temporarily unavailable"}`))
			return
		}
		w.Write([]byte(`{"token":"abc"}`))
	}))
	defer server.Close()

	var (
		mu       sync.Mutex
		attempts []RequestAttempt
	)

	client := NewProviderHTTPClient(&HTTPClientConfig{
		BaseURL: server.URL,
		Retry:   RetryConfig{Attempts: 3, Delay: time.Millisecond},
		Observer: func(attempt RequestAttempt) {
			mu.Lock()
			attempts = append(attempts, attempt)
			mu.Unlock()
		},
	})

	resp, err := client.SendJSON(context.Background(), &HTTPRequest{
		Method:   "POST",
		Endpoint: "/auth",
	})
	if err != nil {
		t.Fatalf("Expected success after retries, got: %v", err)
	}

	var parsed map[string]string
	if err := client.ParseJSONResponse(resp, &parsed); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if parsed["token"] != "abc" {
		t.Errorf("Expected token 'abc', got %s", parsed["token"])
	}

	if got := hits.Load(); got != 3 {
		t.Errorf("Expected exactly 3 requests, server saw %d", got)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(attempts) != 3 {
		t.Fatalf("Expected 3 observed attempts, got %d", len(attempts))
	}
	wantStatus := []int{500, 500, 200}
	for i, attempt := range attempts {
		if attempt.Attempt != i+1 {
			t.Errorf("Attempt %d reported number %d", i+1, attempt.Attempt)
		}
		if attempt.StatusCode != wantStatus[i] {
			t.Errorf("Attempt %d: expected status %d, got %d", i+1, wantStatus[i], attempt.StatusCode)
		}
	}
	if attempts[2].Err != nil {
		t.Errorf("Final attempt should not carry an error, got %v", attempts[2].Err)
	}
}

func TestSendJSONExhaustsRetryBudget(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"code":"500.001","message":"internal"}}`))
	}))
	defer server.Close()

	client := NewProviderHTTPClient(&HTTPClientConfig{
		BaseURL: server.URL,
		Retry:   RetryConfig{Attempts: 3, Delay: time.Millisecond},
	})

	_, err := client.SendJSON(context.Background(), &HTTPRequest{
		Method:   "POST",
		Endpoint: "/orders",
	})
	if err == nil {
		t.Fatal("Expected error after exhausting retry budget")
	}

	if got := hits.Load(); got != 3 {
		t.Errorf("Expected exactly 3 requests, server saw %d", got)
	}

	gwErr, ok := AsError(err)
	if !ok {
		t.Fatalf("Expected a provider error, got %T: %v", err, err)
	}
	if gwErr.Kind != ErrKindGateway {
		t.Errorf("Expected gateway error kind, got %s", gwErr.Kind)
	}
	if gwErr.HTTPStatus != http.StatusInternalServerError {
		t.Errorf("Expected HTTP status 500 on error, got %d", gwErr.HTTPStatus)
	}

	body, ok := gwErr.Body.(map[string]any)
	if !ok {
		t.Fatalf("Expected parsed JSON body on error, got %T", gwErr.Body)
	}
	if _, ok := body["error"]; !ok {
		t.Errorf("Expected error body to carry the gateway payload, got %v", body)
	}
}

func TestRetryPolicySkipsClientErrors(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid request"}`))
	}))
	defer server.Close()

	client := NewProviderHTTPClient(&HTTPClientConfig{
		BaseURL: server.URL,
		Retry:   RetryConfig{Attempts: 3, Delay: time.Millisecond},
		Policy:  SkipClientErrorsPolicy,
	})

	_, err := client.SendJSON(context.Background(), &HTTPRequest{
		Method:   "POST",
		Endpoint: "/orders",
	})
	if err == nil {
		t.Fatal("Expected error for 400 response")
	}

	if got := hits.Load(); got != 1 {
		t.Errorf("4xx should not be retried, server saw %d requests", got)
	}

	gwErr, ok := AsError(err)
	if !ok {
		t.Fatalf("Expected a provider error, got %T", err)
	}
	if gwErr.HTTPStatus != http.StatusBadRequest {
		t.Errorf("Expected HTTP status 400, got %d", gwErr.HTTPStatus)
	}
}

func TestRetryDelayGrowsLinearly(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	var (
		mu    sync.Mutex
		times []time.Time
	)

	delay := 15 * time.Millisecond
	client := NewProviderHTTPClient(&HTTPClientConfig{
		BaseURL: server.URL,
		Retry:   RetryConfig{Attempts: 3, Delay: delay},
		Observer: func(RequestAttempt) {
			mu.Lock()
			times = append(times, time.Now())
			mu.Unlock()
		},
	})

	client.SendJSON(context.Background(), &HTTPRequest{Method: "GET", Endpoint: "/status"})

	mu.Lock()
	defer mu.Unlock()
	if len(times) != 3 {
		t.Fatalf("Expected 3 attempts, got %d", len(times))
	}

	// Waits are Delay*1 then Delay*2, so the gaps must be at least that long
	// and must not shrink.
	gap1 := times[1].Sub(times[0])
	gap2 := times[2].Sub(times[1])
	if gap1 < delay {
		t.Errorf("First backoff too short: %v < %v", gap1, delay)
	}
	if gap2 < 2*delay {
		t.Errorf("Second backoff too short: %v < %v", gap2, 2*delay)
	}
	if gap2 < gap1 {
		t.Errorf("Backoff shrank between attempts: %v then %v", gap1, gap2)
	}
}

func TestContextCanceledDuringBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"down"}`))
	}))
	defer server.Close()

	client := NewProviderHTTPClient(&HTTPClientConfig{
		BaseURL: server.URL,
		Retry:   RetryConfig{Attempts: 3, Delay: 5 * time.Second},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := client.SendJSON(ctx, &HTTPRequest{Method: "GET", Endpoint: "/status"})
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("Expected error when context is canceled during backoff")
	}
	if elapsed >= 5*time.Second {
		t.Errorf("Cancelation should interrupt the backoff wait, took %v", elapsed)
	}

	// The last gateway response stays attached to the error even when the
	// wait was cut short.
	gwErr, ok := AsError(err)
	if !ok {
		t.Fatalf("Expected a provider error, got %T", err)
	}
	if gwErr.HTTPStatus != http.StatusInternalServerError {
		t.Errorf("Expected last response status 500, got %d", gwErr.HTTPStatus)
	}
}

func TestBreakerFailsFastWhenOpen(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewProviderHTTPClient(&HTTPClientConfig{
		BaseURL:       server.URL,
		Retry:         RetryConfig{Attempts: 1, Delay: time.Millisecond},
		EnableBreaker: true,
	})

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := client.SendJSON(ctx, &HTTPRequest{Method: "GET", Endpoint: "/status"}); err == nil {
			t.Fatalf("Call %d should have failed", i+1)
		}
	}

	before := hits.Load()
	_, err := client.SendJSON(ctx, &HTTPRequest{Method: "GET", Endpoint: "/status"})
	if err == nil {
		t.Fatal("Expected the open breaker to reject the call")
	}
	if hits.Load() != before {
		t.Errorf("Open breaker should fail fast without reaching the gateway, server saw %d requests", hits.Load())
	}
	if !IsKind(err, ErrKindGateway) {
		t.Errorf("Expected a gateway error from the open breaker, got %v", err)
	}
}

func TestSendFormEncodesBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("Expected form content type, got %s", ct)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("Failed to parse form: %v", err)
		}
		if r.PostFormValue("grant_type") != "client_credentials" {
			t.Errorf("Expected grant_type field, got %q", r.PostFormValue("grant_type"))
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewProviderHTTPClient(&HTTPClientConfig{
		BaseURL: server.URL,
		Retry:   RetryConfig{Attempts: 1, Delay: time.Millisecond},
	})

	_, err := client.SendForm(context.Background(), &HTTPRequest{
		Method:   "POST",
		Endpoint: "/token",
		FormData: map[string]string{"grant_type": "client_credentials"},
	})
	if err != nil {
		t.Fatalf("SendForm failed: %v", err)
	}
}

func TestDefaultHeadersApplied(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != "PesaPay/1.0" {
			t.Errorf("Expected default User-Agent, got %s", ua)
		}
		if accept := r.Header.Get("Accept"); accept != "application/json" {
			t.Errorf("Expected default Accept header, got %s", accept)
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	config := CreateHTTPClientConfig(server.URL, false, 0)
	config.Retry = RetryConfig{Attempts: 1, Delay: time.Millisecond}
	client := NewProviderHTTPClient(config)

	_, err := client.SendJSON(context.Background(), &HTTPRequest{Method: "GET", Endpoint: "/ping"})
	if err != nil {
		t.Fatalf("SendJSON failed: %v", err)
	}
}

func TestBuildURL(t *testing.T) {
	client := NewProviderHTTPClient(&HTTPClientConfig{BaseURL: "https://api.example.com/v3/api"})

	tests := []struct {
		name     string
		endpoint string
		params   map[string]string
		expected string
	}{
		{
			name:     "relative endpoint",
			endpoint: "/Transactions/SubmitOrderRequest",
			expected: "https://api.example.com/v3/api/Transactions/SubmitOrderRequest",
		},
		{
			name:     "relative endpoint without slash",
			endpoint: "Auth/RequestToken",
			expected: "https://api.example.com/v3/api/Auth/RequestToken",
		},
		{
			name:     "query parameters",
			endpoint: "/Transactions/GetTransactionStatus",
			params:   map[string]string{"orderTrackingId": "track-123"},
			expected: "https://api.example.com/v3/api/Transactions/GetTransactionStatus?orderTrackingId=track-123",
		},
		{
			name:     "absolute URL passes through",
			endpoint: "https://other.example.com/hook",
			expected: "https://other.example.com/hook",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := client.buildURL(tt.endpoint, tt.params)
			if got != tt.expected {
				t.Errorf("buildURL(%q) = %q, want %q", tt.endpoint, got, tt.expected)
			}
		})
	}
}
