package pesapal

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/mstgnz/pesapay/provider"
)

// SignatureHeader carries the hex HMAC-SHA256 of the exact raw IPN body
const SignatureHeader = "x-pesapal-signature"

// ComputeSignature returns the hex HMAC-SHA256 of body under secret. It is
// exported so embedding applications can sign test payloads.
func ComputeSignature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks an inbound notification's signature against the
// exact raw body bytes. A missing header, a header that is not valid hex,
// or a digest mismatch all report false; the comparison over decoded bytes
// is constant time. It never panics or errors on malformed input.
func VerifySignature(secret string, headers map[string]string, body []byte) bool {
	header := headerValue(headers, SignatureHeader)
	if header == "" {
		return false
	}

	claimed, err := hex.DecodeString(header)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(claimed, mac.Sum(nil))
}

// headerValue looks up a header case-insensitively. Proxies and router
// stacks disagree on header casing, signatures must not care.
func headerValue(headers map[string]string, name string) string {
	if value, ok := headers[name]; ok {
		return value
	}
	for key, value := range headers {
		if strings.EqualFold(key, name) {
			return value
		}
	}
	return ""
}

// VerificationMiddleware gates an HTTP handler behind signature
// verification. Requests with a missing or invalid signature are rejected
// with 401 before the wrapped handler runs; valid requests pass through
// with the body intact and re-readable.
func VerificationMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(r.Body)
			if err != nil {
				rejectUnauthorized(w)
				return
			}
			r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))

			headers := make(map[string]string, len(r.Header))
			for key := range r.Header {
				headers[key] = r.Header.Get(key)
			}

			if !VerifySignature(secret, headers, body) {
				rejectUnauthorized(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func rejectUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"message": "invalid notification signature",
	})
}

// BuildAck builds the acknowledgment body Pesapal expects for an IPN. The
// body's status reports the processing outcome (200 or 500); the HTTP
// response carrying it must stay 200 either way, or the gateway re-sends
// the event.
func BuildAck(notificationType, trackingID, merchantReference string, processingErr error) provider.NotificationAck {
	status := http.StatusOK
	if processingErr != nil {
		status = http.StatusInternalServerError
	}
	if notificationType == "" {
		notificationType = "IPNCHANGE"
	}
	return provider.NotificationAck{
		NotificationType:  notificationType,
		TrackingID:        trackingID,
		MerchantReference: merchantReference,
		Status:            status,
	}
}
