package pesapal

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mstgnz/pesapay/infra/logger"
	"github.com/mstgnz/pesapay/provider"
)

const (
	// tokenValidity is assumed when the gateway's expiryDate is absent or
	// unparseable
	tokenValidity = time.Hour

	// tokenRefreshMargin pulls the refresh forward so requests never ride
	// a token into its final seconds
	tokenRefreshMargin = 5 * time.Minute
)

// tokenManager owns the current bearer token and its expiry; nothing else
// writes them. Concurrent callers that need a refresh share one in-flight
// token request through the single-flight group and all observe the same
// token or the same failure.
type tokenManager struct {
	client         *provider.ProviderHTTPClient
	consumerKey    string
	consumerSecret string
	store          provider.TokenStore
	cacheKey       string

	group singleflight.Group

	mu        sync.RWMutex
	token     string
	expiresAt time.Time
}

func newTokenManager(client *provider.ProviderHTTPClient, consumerKey, consumerSecret string, store provider.TokenStore, cacheKey string) *tokenManager {
	return &tokenManager{
		client:         client,
		consumerKey:    consumerKey,
		consumerSecret: consumerSecret,
		store:          store,
		cacheKey:       cacheKey,
	}
}

// Token returns a bearer token that is valid now. Lookup order: the token
// store, the in-memory token, then a refresh shared with any concurrent
// callers. An expired token is never returned.
func (m *tokenManager) Token(ctx context.Context) (string, error) {
	if m.store != nil {
		token, found, err := m.store.Get(ctx, m.cacheKey)
		if err != nil {
			if provider.IsKind(err, provider.ErrKindTokenDecryption) {
				return "", err
			}
			// A degraded store (unreachable redis) must not block payments;
			// fall through to the refresh path
		} else if found {
			return token, nil
		}
	}

	m.mu.RLock()
	if m.token != "" && time.Now().Before(m.expiresAt) {
		token := m.token
		m.mu.RUnlock()
		return token, nil
	}
	m.mu.RUnlock()

	// The refresh outlives any single caller: its result is shared, so one
	// caller's cancellation must not fail the others waiting on it.
	refreshCtx := context.WithoutCancel(ctx)
	ch := m.group.DoChan("token", func() (any, error) {
		return m.refresh(refreshCtx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// refresh performs the token request. It re-checks the in-memory state
// first so a caller that raced a just-finished refresh does not trigger
// another network call.
func (m *tokenManager) refresh(ctx context.Context) (string, error) {
	m.mu.RLock()
	if m.token != "" && time.Now().Before(m.expiresAt) {
		token := m.token
		m.mu.RUnlock()
		return token, nil
	}
	m.mu.RUnlock()

	resp, err := m.client.SendJSON(ctx, &provider.HTTPRequest{
		Method:   "POST",
		Endpoint: endpointRequestToken,
		Body: authTokenRequest{
			ConsumerKey:    m.consumerKey,
			ConsumerSecret: m.consumerSecret,
		},
	})
	if err != nil {
		return "", err
	}

	var result authTokenResponse
	if err := m.client.ParseJSONResponse(resp, &result); err != nil {
		return "", provider.NewGatewayError("pesapal: token endpoint returned a malformed response", resp.StatusCode, resp.RawBody, err)
	}
	if !result.Error.isZero() || result.Token == "" {
		message := "pesapal: token request failed"
		if result.Error != nil && result.Error.Message != "" {
			message = "pesapal: token request failed: " + result.Error.Message
		}
		return "", provider.NewGatewayError(message, resp.StatusCode, resp.RawBody, nil)
	}

	now := time.Now()
	expiresAt := computeTokenExpiry(now, result.ExpiryDate)

	m.mu.Lock()
	m.token = result.Token
	m.expiresAt = expiresAt
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.Set(ctx, m.cacheKey, result.Token, time.Until(expiresAt)); err != nil {
			logger.Warn("Failed to store bearer token", logger.LogContext{
				Provider: "pesapal",
				Fields:   map[string]any{"error": err.Error()},
			})
		}
	}

	return result.Token, nil
}

// computeTokenExpiry derives when to refresh next. The gateway's own
// expiryDate wins when it parses and lies in the future; otherwise the
// assumed validity window applies. Either way the margin is subtracted.
func computeTokenExpiry(now time.Time, expiryDate string) time.Time {
	fallback := now.Add(tokenValidity - tokenRefreshMargin)
	if expiryDate == "" {
		return fallback
	}

	parsed, err := time.Parse(time.RFC3339, expiryDate)
	if err != nil {
		// The gateway sometimes omits the zone designator
		parsed, err = time.Parse("2006-01-02T15:04:05", expiryDate)
	}
	if err != nil || !parsed.After(now) {
		return fallback
	}

	candidate := parsed.Add(-tokenRefreshMargin)
	if candidate.After(now) {
		return candidate
	}
	// A token shorter than the margin refreshes halfway through its life
	return now.Add(parsed.Sub(now) / 2)
}

type authTokenRequest struct {
	ConsumerKey    string `json:"consumer_key"`
	ConsumerSecret string `json:"consumer_secret"`
}

type authTokenResponse struct {
	Token      string    `json:"token"`
	ExpiryDate string    `json:"expiryDate"`
	Status     string    `json:"status"`
	Message    string    `json:"message"`
	Error      *apiError `json:"error"`
}
