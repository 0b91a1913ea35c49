package provider

import (
	"encoding/json"
	"testing"
)

func TestStatusFromCode(t *testing.T) {
	tests := []struct {
		code     int
		expected PaymentStatus
	}{
		{StatusCodeInvalid, StatusInvalid},
		{StatusCodeCompleted, StatusCompleted},
		{StatusCodeFailed, StatusFailed},
		{StatusCodeReversed, StatusReversed},
		{99, StatusPending},
		{-1, StatusPending},
	}

	for _, tt := range tests {
		if got := StatusFromCode(tt.code); got != tt.expected {
			t.Errorf("StatusFromCode(%d) = %v, want %v", tt.code, got, tt.expected)
		}
	}
}

func TestNotificationAckWireFormat(t *testing.T) {
	ack := NotificationAck{
		NotificationType:  "IPNCHANGE",
		TrackingID:        "track-123",
		MerchantReference: "order-456",
		Status:            200,
	}

	data, err := json.Marshal(ack)
	if err != nil {
		t.Fatalf("Failed to marshal ack: %v", err)
	}

	var wire map[string]any
	if err := json.Unmarshal(data, &wire); err != nil {
		t.Fatalf("Failed to unmarshal ack: %v", err)
	}

	// The gateway matches acknowledgments on these exact field names
	if wire["orderNotificationType"] != "IPNCHANGE" {
		t.Errorf("Expected orderNotificationType field, got %v", wire)
	}
	if wire["orderTrackingId"] != "track-123" {
		t.Errorf("Expected orderTrackingId field, got %v", wire)
	}
	if wire["orderMerchantReference"] != "order-456" {
		t.Errorf("Expected orderMerchantReference field, got %v", wire)
	}
	if wire["status"] != float64(200) {
		t.Errorf("Expected numeric status field, got %v", wire["status"])
	}
}

func TestNotificationParsing(t *testing.T) {
	body := []byte(`{"notificationType":"IPNCHANGE","trackingId":"d0fa69d6-f74e-4772-9e23-b71a1c3205b7","merchantReference":"order-1"}`)

	var notification Notification
	if err := json.Unmarshal(body, &notification); err != nil {
		t.Fatalf("Failed to parse notification: %v", err)
	}

	if notification.NotificationType != "IPNCHANGE" {
		t.Errorf("Expected IPNCHANGE, got %s", notification.NotificationType)
	}
	if notification.TrackingID != "d0fa69d6-f74e-4772-9e23-b71a1c3205b7" {
		t.Errorf("Unexpected tracking id: %s", notification.TrackingID)
	}
}
