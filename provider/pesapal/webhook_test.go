package pesapal

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mstgnz/pesapay/provider"
)

const webhookTestSecret = "osGQ364R49cXKeOYSpaOnT++rHs="

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"OrderNotificationType":"IPNCHANGE","OrderTrackingId":"b945e4af-80a5-4ec1-8706-e03f8332fb04","OrderMerchantReference":"order-1"}`)
	valid := ComputeSignature(webhookTestSecret, body)

	tests := []struct {
		name    string
		headers map[string]string
		body    []byte
		want    bool
	}{
		{
			name:    "Valid signature",
			headers: map[string]string{SignatureHeader: valid},
			body:    body,
			want:    true,
		},
		{
			name:    "Tampered body",
			headers: map[string]string{SignatureHeader: valid},
			body:    []byte(`{"OrderNotificationType":"IPNCHANGE","OrderTrackingId":"b945e4af-80a5-4ec1-8706-e03f8332fb04","OrderMerchantReference":"order-2"}`),
			want:    false,
		},
		{
			name:    "Missing header",
			headers: map[string]string{},
			body:    body,
			want:    false,
		},
		{
			name:    "Nil headers",
			headers: nil,
			body:    body,
			want:    false,
		},
		{
			name:    "Signature is not hex",
			headers: map[string]string{SignatureHeader: "zzzz-not-hex"},
			body:    body,
			want:    false,
		},
		{
			name:    "Truncated signature",
			headers: map[string]string{SignatureHeader: valid[:16]},
			body:    body,
			want:    false,
		},
		{
			name:    "Signature under wrong secret",
			headers: map[string]string{SignatureHeader: ComputeSignature("other-secret", body)},
			body:    body,
			want:    false,
		},
		{
			name:    "Canonical header casing",
			headers: map[string]string{"X-Pesapal-Signature": valid},
			body:    body,
			want:    true,
		},
		{
			name:    "Empty body signed",
			headers: map[string]string{SignatureHeader: ComputeSignature(webhookTestSecret, nil)},
			body:    nil,
			want:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VerifySignature(webhookTestSecret, tt.headers, tt.body); got != tt.want {
				t.Errorf("VerifySignature() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestComputeSignatureDeterministic(t *testing.T) {
	body := []byte(`{"OrderTrackingId":"abc"}`)
	first := ComputeSignature(webhookTestSecret, body)
	second := ComputeSignature(webhookTestSecret, body)

	if first != second {
		t.Error("Signature over identical input must be deterministic")
	}
	if len(first) != 64 {
		t.Errorf("Expected 64 hex characters for SHA-256, got %d", len(first))
	}
	if first == ComputeSignature(webhookTestSecret, []byte(`{"OrderTrackingId":"abd"}`)) {
		t.Error("Different bodies must not share a signature")
	}
}

func TestVerificationMiddleware(t *testing.T) {
	body := []byte(`{"OrderNotificationType":"IPNCHANGE","OrderTrackingId":"track-1","OrderMerchantReference":"order-1"}`)

	var handlerCalled bool
	var seenBody []byte
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		seenBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	})
	gated := VerificationMiddleware(webhookTestSecret)(next)

	t.Run("Valid signature passes through with body intact", func(t *testing.T) {
		handlerCalled = false
		req := httptest.NewRequest("POST", "/webhooks/pesapal", bytes.NewReader(body))
		req.Header.Set(SignatureHeader, ComputeSignature(webhookTestSecret, body))
		rec := httptest.NewRecorder()

		gated.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("Expected 200, got %d", rec.Code)
		}
		if !handlerCalled {
			t.Fatal("Wrapped handler was not called")
		}
		if !bytes.Equal(seenBody, body) {
			t.Errorf("Handler saw a different body: %s", seenBody)
		}
	})

	t.Run("Invalid signature is rejected before the handler", func(t *testing.T) {
		handlerCalled = false
		req := httptest.NewRequest("POST", "/webhooks/pesapal", bytes.NewReader(body))
		req.Header.Set(SignatureHeader, ComputeSignature("wrong-secret", body))
		rec := httptest.NewRecorder()

		gated.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401, got %d", rec.Code)
		}
		if handlerCalled {
			t.Error("Wrapped handler must not run for an invalid signature")
		}

		var response map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
			t.Fatalf("Rejection body is not JSON: %v", err)
		}
		if success, _ := response["success"].(bool); success {
			t.Error("Rejection body must report success=false")
		}
	})

	t.Run("Missing signature is rejected", func(t *testing.T) {
		handlerCalled = false
		req := httptest.NewRequest("POST", "/webhooks/pesapal", bytes.NewReader(body))
		rec := httptest.NewRecorder()

		gated.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401, got %d", rec.Code)
		}
		if handlerCalled {
			t.Error("Wrapped handler must not run without a signature")
		}
	})
}

func TestBuildAck(t *testing.T) {
	t.Run("Successful processing", func(t *testing.T) {
		ack := BuildAck("IPNCHANGE", "track-1", "order-1", nil)

		if ack.NotificationType != "IPNCHANGE" {
			t.Errorf("Unexpected notification type %q", ack.NotificationType)
		}
		if ack.TrackingID != "track-1" || ack.MerchantReference != "order-1" {
			t.Errorf("Identifiers not echoed: %+v", ack)
		}
		if ack.Status != 200 {
			t.Errorf("Expected status 200, got %d", ack.Status)
		}
	})

	t.Run("Failed processing", func(t *testing.T) {
		ack := BuildAck("IPNCHANGE", "track-1", "order-1", provider.NewGatewayError("boom", 502, nil, nil))

		if ack.Status != 500 {
			t.Errorf("Expected status 500, got %d", ack.Status)
		}
	})

	t.Run("Missing notification type defaults", func(t *testing.T) {
		ack := BuildAck("", "track-1", "order-1", nil)

		if ack.NotificationType != "IPNCHANGE" {
			t.Errorf("Expected IPNCHANGE default, got %q", ack.NotificationType)
		}
	})
}

func TestPesapalProvider_ValidateWebhook(t *testing.T) {
	p := &PesapalProvider{consumerSecret: webhookTestSecret}

	body := []byte(`{"OrderNotificationType":"IPNCHANGE","OrderTrackingId":"track-9","OrderMerchantReference":"order-9"}`)
	signed := map[string]string{SignatureHeader: ComputeSignature(webhookTestSecret, body)}

	t.Run("Signed notification parses", func(t *testing.T) {
		valid, fields, err := p.ValidateWebhook(context.Background(), body, signed)
		if err != nil {
			t.Fatalf("ValidateWebhook failed: %v", err)
		}
		if !valid {
			t.Fatal("Expected a valid notification")
		}
		if fields["trackingId"] != "track-9" {
			t.Errorf("Expected tracking id track-9, got %q", fields["trackingId"])
		}
		if fields["merchantReference"] != "order-9" {
			t.Errorf("Expected merchant reference order-9, got %q", fields["merchantReference"])
		}
		if fields["notificationType"] != "IPNCHANGE" {
			t.Errorf("Expected IPNCHANGE, got %q", fields["notificationType"])
		}
	})

	t.Run("Lowercase field names parse too", func(t *testing.T) {
		lower := []byte(`{"orderNotificationType":"IPNCHANGE","orderTrackingId":"track-10","orderMerchantReference":"order-10"}`)
		headers := map[string]string{SignatureHeader: ComputeSignature(webhookTestSecret, lower)}

		valid, fields, err := p.ValidateWebhook(context.Background(), lower, headers)
		if err != nil || !valid {
			t.Fatalf("Expected valid notification, got valid=%v err=%v", valid, err)
		}
		if fields["trackingId"] != "track-10" {
			t.Errorf("Expected track-10, got %q", fields["trackingId"])
		}
	})

	t.Run("Unsigned notification is invalid", func(t *testing.T) {
		valid, fields, err := p.ValidateWebhook(context.Background(), body, map[string]string{})
		if err != nil {
			t.Fatalf("Unsigned notification must not error: %v", err)
		}
		if valid || fields != nil {
			t.Error("Unsigned notification must be reported invalid with no payload")
		}
	})

	t.Run("Signed but malformed body is invalid", func(t *testing.T) {
		garbage := []byte(`{"OrderTrackingId":`)
		headers := map[string]string{SignatureHeader: ComputeSignature(webhookTestSecret, garbage)}

		valid, fields, err := p.ValidateWebhook(context.Background(), garbage, headers)
		if err != nil {
			t.Fatalf("Malformed body must not error: %v", err)
		}
		if valid || fields != nil {
			t.Error("Malformed body must be reported invalid")
		}
	})
}
