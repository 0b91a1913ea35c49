package provider

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

// Default retry behavior applied when the config leaves the fields zero
const (
	defaultRetryAttempts = 3
	defaultRetryDelay    = 1000 * time.Millisecond
)

// RetryConfig bounds the retry loop. Attempts is the total number of tries
// for one logical request; Delay is the base for the linear backoff, so the
// wait after attempt n is Delay*n.
type RetryConfig struct {
	Attempts int
	Delay    time.Duration
}

// RequestAttempt describes a single try of a logical request, reported to
// the attempt observer whether it succeeded or failed
type RequestAttempt struct {
	Attempt    int
	Method     string
	URL        string
	StatusCode int
	Err        error
	Elapsed    time.Duration
}

// AttemptObserver receives a RequestAttempt after every try
type AttemptObserver func(attempt RequestAttempt)

// RetryPolicy decides whether a failed attempt should be retried. resp is
// nil when the failure happened before a response was received.
type RetryPolicy func(attempt int, resp *HTTPResponse, err error) bool

// RetryAllPolicy retries every failure. This mirrors how the supported
// gateways historically behaved toward their clients: transient 5xx and
// broken reads dominate, so every failure class is retried uniformly.
func RetryAllPolicy(int, *HTTPResponse, error) bool {
	return true
}

// SkipClientErrorsPolicy retries everything except 4xx responses, which
// repeat deterministically and only burn the retry budget
func SkipClientErrorsPolicy(_ int, resp *HTTPResponse, _ error) bool {
	if resp != nil && resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return false
	}
	return true
}

// HTTPClientConfig represents configuration for HTTP client
type HTTPClientConfig struct {
	BaseURL            string
	Timeout            time.Duration
	InsecureSkipVerify bool
	DefaultHeaders     map[string]string
	Retry              RetryConfig
	Policy             RetryPolicy
	Observer           AttemptObserver

	// EnableBreaker puts a circuit breaker in front of the retry loop so a
	// hard-down gateway fails fast instead of burning the full retry budget
	// on every call
	EnableBreaker bool
}

// HTTPRequest represents a standardized HTTP request
type HTTPRequest struct {
	Method      string
	Endpoint    string
	Headers     map[string]string
	Body        any
	FormData    map[string]string
	QueryParams map[string]string
}

// HTTPResponse represents a standardized HTTP response
type HTTPResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	RawBody    string
}

// ProviderHTTPClient provides standardized HTTP operations for payment
// providers: one logical call runs up to Retry.Attempts tries with linear
// backoff, reports every try to the observer, and surfaces the final
// failure as a gateway Error carrying the last response's status and body.
type ProviderHTTPClient struct {
	config  *HTTPClientConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewProviderHTTPClient creates a new provider HTTP client
func NewProviderHTTPClient(config *HTTPClientConfig) *ProviderHTTPClient {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.Retry.Attempts <= 0 {
		config.Retry.Attempts = defaultRetryAttempts
	}
	if config.Retry.Delay <= 0 {
		config.Retry.Delay = defaultRetryDelay
	}
	if config.Policy == nil {
		config.Policy = RetryAllPolicy
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: config.InsecureSkipVerify,
		},
	}

	client := &http.Client{
		Timeout:   config.Timeout,
		Transport: transport,
	}

	c := &ProviderHTTPClient{
		config: config,
		client: client,
	}

	if config.EnableBreaker {
		c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    config.BaseURL,
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		})
	}

	return c
}

// SendJSON sends a JSON request and returns the response
func (c *ProviderHTTPClient) SendJSON(ctx context.Context, req *HTTPRequest) (*HTTPResponse, error) {
	return c.send(ctx, req, "application/json")
}

// SendForm sends a form-encoded request and returns the response
func (c *ProviderHTTPClient) SendForm(ctx context.Context, req *HTTPRequest) (*HTTPResponse, error) {
	return c.send(ctx, req, "application/x-www-form-urlencoded")
}

// SendRaw sends a raw request and returns the response
func (c *ProviderHTTPClient) SendRaw(ctx context.Context, req *HTTPRequest) (*HTTPResponse, error) {
	return c.send(ctx, req, "")
}

// send runs the retry loop, behind the circuit breaker when one is
// configured
func (c *ProviderHTTPClient) send(ctx context.Context, req *HTTPRequest, contentType string) (*HTTPResponse, error) {
	if c.breaker == nil {
		return c.sendWithRetry(ctx, req, contentType)
	}

	result, err := c.breaker.Execute(func() (any, error) {
		return c.sendWithRetry(ctx, req, contentType)
	})
	if err != nil {
		if resp, ok := result.(*HTTPResponse); ok {
			return resp, err
		}
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, NewGatewayError("gateway circuit open", 0, nil, err)
		}
		return nil, err
	}
	return result.(*HTTPResponse), nil
}

// sendWithRetry issues one logical request with up to Retry.Attempts tries.
// The wait between tries grows linearly with the attempt number. The error
// of the final attempt is the one surfaced to the caller.
func (c *ProviderHTTPClient) sendWithRetry(ctx context.Context, req *HTTPRequest, contentType string) (*HTTPResponse, error) {
	var (
		resp    *HTTPResponse
		lastErr error
	)

	attempts := c.config.Retry.Attempts
	for attempt := 1; attempt <= attempts; attempt++ {
		start := time.Now()
		resp, lastErr = c.sendRequest(ctx, req, contentType)

		if c.config.Observer != nil {
			info := RequestAttempt{
				Attempt: attempt,
				Method:  req.Method,
				URL:     c.buildURL(req.Endpoint, req.QueryParams),
				Err:     lastErr,
				Elapsed: time.Since(start),
			}
			if resp != nil {
				info.StatusCode = resp.StatusCode
			}
			c.config.Observer(info)
		}

		if lastErr == nil {
			return resp, nil
		}

		if !c.config.Policy(attempt, resp, lastErr) {
			break
		}

		if attempt < attempts {
			select {
			case <-time.After(c.config.Retry.Delay * time.Duration(attempt)):
			case <-ctx.Done():
				return resp, c.gatewayError(resp, lastErr)
			}
		}
	}

	return resp, c.gatewayError(resp, lastErr)
}

// gatewayError converts the final attempt's failure into a gateway Error.
// A JSON error body is carried parsed; anything else rides along as raw
// text.
func (c *ProviderHTTPClient) gatewayError(resp *HTTPResponse, cause error) error {
	if resp == nil {
		return NewGatewayError("request failed", 0, nil, cause)
	}

	var body any
	var parsed map[string]any
	if err := json.Unmarshal(resp.Body, &parsed); err == nil {
		body = parsed
	} else {
		body = resp.RawBody
	}

	return NewGatewayError("gateway returned an error response", resp.StatusCode, body, cause)
}

// sendRequest is the internal method that handles a single HTTP attempt
func (c *ProviderHTTPClient) sendRequest(ctx context.Context, req *HTTPRequest, contentType string) (*HTTPResponse, error) {
	// Build full URL
	fullURL := c.buildURL(req.Endpoint, req.QueryParams)

	// Prepare request body
	var body io.Reader
	if contentType == "application/x-www-form-urlencoded" {
		if len(req.FormData) > 0 {
			formData := url.Values{}
			for key, value := range req.FormData {
				formData.Set(key, value)
			}
			body = strings.NewReader(formData.Encode())
		} else if formMap, ok := req.Body.(map[string]string); ok {
			formData := url.Values{}
			for key, value := range formMap {
				formData.Set(key, value)
			}
			body = strings.NewReader(formData.Encode())
		}
	} else if contentType == "application/json" && req.Body != nil {
		jsonData, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal JSON body: %w", err)
		}
		body = bytes.NewBuffer(jsonData)
	} else if req.Body != nil {
		if rawBody, ok := req.Body.(string); ok {
			body = strings.NewReader(rawBody)
		} else if rawBody, ok := req.Body.([]byte); ok {
			body = bytes.NewBuffer(rawBody)
		}
	}

	// Create HTTP request
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	// Set default headers
	for key, value := range c.config.DefaultHeaders {
		httpReq.Header.Set(key, value)
	}

	// Set request-specific headers
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	// Set content type if specified
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	// Send request
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	// Read response body
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	// Create standardized response
	response := &HTTPResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       respBody,
		RawBody:    string(respBody),
	}

	// Check for HTTP errors
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return response, fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(respBody))
	}

	return response, nil
}

func joinURL(base, endpoint string) string {
	if strings.HasSuffix(base, "/") && strings.HasPrefix(endpoint, "/") {
		return base + endpoint[1:]
	}
	if !strings.HasSuffix(base, "/") && !strings.HasPrefix(endpoint, "/") {
		return base + "/" + endpoint
	}
	return base + endpoint
}

// buildURL constructs the full URL with query parameters
func (c *ProviderHTTPClient) buildURL(endpoint string, queryParams map[string]string) string {
	if strings.HasPrefix(endpoint, "http") {
		// Absolute URL
		u, err := url.Parse(endpoint)
		if err != nil {
			return endpoint
		}

		if len(queryParams) > 0 {
			q := u.Query()
			for key, value := range queryParams {
				q.Set(key, value)
			}
			u.RawQuery = q.Encode()
		}

		return u.String()
	}

	// Relative URL - prepend base URL
	fullURL := joinURL(c.config.BaseURL, endpoint)

	if len(queryParams) > 0 {
		u, err := url.Parse(fullURL)
		if err != nil {
			return fullURL
		}

		q := u.Query()
		for key, value := range queryParams {
			q.Set(key, value)
		}
		u.RawQuery = q.Encode()
		return u.String()
	}

	return fullURL
}

// ParseJSONResponse parses the response body as JSON into the target interface
func (c *ProviderHTTPClient) ParseJSONResponse(response *HTTPResponse, target any) error {
	return json.Unmarshal(response.Body, target)
}

// CreateHTTPClientConfig creates a standard HTTP client configuration for providers
func CreateHTTPClientConfig(baseURL string, isProduction bool, timeout time.Duration) *HTTPClientConfig {
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &HTTPClientConfig{
		BaseURL:            baseURL,
		Timeout:            timeout,
		InsecureSkipVerify: !isProduction, // Skip TLS verification in sandbox
		DefaultHeaders: map[string]string{
			"Accept":     "application/json",
			"User-Agent": "PesaPay/1.0",
		},
	}
}
