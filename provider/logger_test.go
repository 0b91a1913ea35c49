package provider

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestLogger(t *testing.T) *SQLitePaymentLogger {
	t.Helper()

	logger, err := NewSQLitePaymentLogger(filepath.Join(t.TempDir(), "payment_logs.db"))
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	t.Cleanup(func() { logger.Close() })
	return logger
}

func TestSQLiteLoggerRequestResponseRoundTrip(t *testing.T) {
	logger := newTestLogger(t)
	ctx := context.Background()

	request := OrderRequest{
		ID:          "order-123",
		Amount:      "1500.00",
		Currency:    "KES",
		Description: "Test order",
	}

	logID, err := logger.LogRequest(ctx, "merchant-1", "pesapal", "POST", "/orders", request, "test-agent", "10.0.0.1")
	if err != nil {
		t.Fatalf("LogRequest failed: %v", err)
	}
	if logID == 0 {
		t.Fatal("Expected a non-zero log id")
	}

	response := &OrderResponse{
		Success:    true,
		Status:     StatusPending,
		TrackingID: "track-456",
	}
	if err := logger.LogResponse(ctx, logID, response, 142); err != nil {
		t.Fatalf("LogResponse failed: %v", err)
	}

	logs, err := logger.RecentLogs(ctx, "pesapal", 10)
	if err != nil {
		t.Fatalf("RecentLogs failed: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("Expected 1 log record, got %d", len(logs))
	}

	record := logs[0]
	if record.MerchantID != "merchant-1" {
		t.Errorf("Expected merchant-1, got %s", record.MerchantID)
	}
	if record.Provider != "pesapal" {
		t.Errorf("Expected provider pesapal, got %s", record.Provider)
	}
	if record.Amount != 1500.00 {
		t.Errorf("Expected amount 1500.00, got %f", record.Amount)
	}
	if record.Currency != "KES" {
		t.Errorf("Expected currency KES, got %s", record.Currency)
	}
	if record.Status != string(StatusPending) {
		t.Errorf("Expected status pending, got %s", record.Status)
	}
	if record.PaymentID != "track-456" {
		t.Errorf("Response tracking id should replace the request id, got %s", record.PaymentID)
	}
	if record.ProcessingMs != 142 {
		t.Errorf("Expected processing time 142ms, got %d", record.ProcessingMs)
	}
	if record.ResponseAt == nil {
		t.Error("Expected response timestamp to be set")
	}
}

func TestSQLiteLoggerMasksCredentials(t *testing.T) {
	logger := newTestLogger(t)
	ctx := context.Background()

	request := map[string]any{
		"consumer_key":    "public-key",
		"consumer_secret": "super-secret-value",
		"token":           "bearer-token",
		"amount":          100.0,
		"nested": map[string]any{
			"password": "hunter2",
			"city":     "Nairobi",
		},
	}

	logID, err := logger.LogRequest(ctx, "merchant-1", "pesapal", "POST", "/auth", request, "", "")
	if err != nil {
		t.Fatalf("LogRequest failed: %v", err)
	}
	if err := logger.LogResponse(ctx, logID, map[string]any{"status": "ok"}, 10); err != nil {
		t.Fatalf("LogResponse failed: %v", err)
	}

	logs, err := logger.RecentLogs(ctx, "pesapal", 10)
	if err != nil {
		t.Fatalf("RecentLogs failed: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("Expected 1 log record, got %d", len(logs))
	}

	stored := logs[0].Request
	if stored["consumer_secret"] != "***" {
		t.Errorf("consumer_secret should be masked, got %v", stored["consumer_secret"])
	}
	if stored["token"] != "***" {
		t.Errorf("token should be masked, got %v", stored["token"])
	}
	nested, ok := stored["nested"].(map[string]any)
	if !ok {
		t.Fatalf("Expected nested map, got %T", stored["nested"])
	}
	if nested["password"] != "***" {
		t.Errorf("Nested password should be masked, got %v", nested["password"])
	}
	if nested["city"] != "Nairobi" {
		t.Errorf("Non-sensitive nested field should survive, got %v", nested["city"])
	}
}

func TestSQLiteLoggerLogError(t *testing.T) {
	logger := newTestLogger(t)
	ctx := context.Background()

	logID, err := logger.LogRequest(ctx, "merchant-1", "pesapal", "POST", "/orders", OrderRequest{Amount: "10.00"}, "", "")
	if err != nil {
		t.Fatalf("LogRequest failed: %v", err)
	}

	if err := logger.LogError(ctx, logID, "ORDER_ERROR", "gateway returned an error response", 87); err != nil {
		t.Fatalf("LogError failed: %v", err)
	}

	logs, err := logger.RecentLogs(ctx, "pesapal", 10)
	if err != nil {
		t.Fatalf("RecentLogs failed: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("Expected 1 log record, got %d", len(logs))
	}
	if logs[0].ErrorCode != "ORDER_ERROR" {
		t.Errorf("Expected error code ORDER_ERROR, got %s", logs[0].ErrorCode)
	}
}

func TestSQLiteLoggerResponseForUnknownID(t *testing.T) {
	logger := newTestLogger(t)

	err := logger.LogResponse(context.Background(), 9999, map[string]any{"status": "ok"}, 5)
	if err == nil {
		t.Error("Expected error for unknown log id")
	}
}

func TestSQLiteLoggerPaymentLogs(t *testing.T) {
	logger := newTestLogger(t)
	ctx := context.Background()

	logID, err := logger.LogRequest(ctx, "merchant-1", "pesapal", "POST", "/orders", OrderRequest{ID: "order-777", Amount: "50.00"}, "", "")
	if err != nil {
		t.Fatalf("LogRequest failed: %v", err)
	}
	logger.LogResponse(ctx, logID, &OrderResponse{Success: true, Status: StatusPending, TrackingID: "track-777"}, 30)

	// A status check for the same payment
	statusID, _ := logger.LogRequest(ctx, "merchant-1", "pesapal", "GET", "/orders/status", map[string]any{"trackingId": "track-777"}, "", "")
	logger.LogResponse(ctx, statusID, &TransactionStatus{Success: true, Status: StatusCompleted, TrackingID: "track-777"}, 25)

	// Unrelated traffic
	logger.LogRequest(ctx, "merchant-1", "pesapal", "POST", "/orders", OrderRequest{ID: "order-888", Amount: "60.00"}, "", "")

	logs, err := logger.PaymentLogs(ctx, "pesapal", "track-777")
	if err != nil {
		t.Fatalf("PaymentLogs failed: %v", err)
	}
	if len(logs) != 2 {
		t.Errorf("Expected 2 records for track-777, got %d", len(logs))
	}
}

func TestSQLiteLoggerProviderStats(t *testing.T) {
	logger := newTestLogger(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		logID, _ := logger.LogRequest(ctx, "merchant-1", "pesapal", "POST", "/orders", OrderRequest{Amount: "10.00"}, "", "")
		logger.LogResponse(ctx, logID, &OrderResponse{Success: true, Status: StatusPending}, 100)
	}
	failedID, _ := logger.LogRequest(ctx, "merchant-1", "pesapal", "POST", "/orders", OrderRequest{Amount: "10.00"}, "", "")
	logger.LogError(ctx, failedID, "ORDER_ERROR", "boom", 50)

	stats, err := logger.ProviderStats(ctx, "pesapal", 24)
	if err != nil {
		t.Fatalf("ProviderStats failed: %v", err)
	}

	if stats["total_requests"] != 4 {
		t.Errorf("Expected 4 total requests, got %v", stats["total_requests"])
	}
	if stats["error_count"] != 1 {
		t.Errorf("Expected 1 error, got %v", stats["error_count"])
	}
	if stats["success_count"] != 3 {
		t.Errorf("Expected 3 successes, got %v", stats["success_count"])
	}
	if rate, ok := stats["success_rate"].(float64); !ok || rate != 75.0 {
		t.Errorf("Expected success rate 75.0, got %v", stats["success_rate"])
	}
}

func TestSanitizeForLog(t *testing.T) {
	input := map[string]any{
		"ConsumerSecret": "secret",
		"Authorization":  "Bearer abc",
		"api_key":        "key",
		"signature":      "sig",
		"amount":         42.0,
	}

	out := SanitizeForLog(input)

	for _, key := range []string{"ConsumerSecret", "Authorization", "api_key", "signature"} {
		if out[key] != "***" {
			t.Errorf("Key %q should be masked, got %v", key, out[key])
		}
	}
	if out["amount"] != 42.0 {
		t.Errorf("Non-sensitive key should survive, got %v", out["amount"])
	}
}
