package provider

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// PaymentLogger records every payment operation: the outbound request, the
// gateway's response or the failure, and how long the round trip took
type PaymentLogger interface {
	LogRequest(ctx context.Context, merchantID, providerName, method, endpoint string, request any, userAgent, clientIP string) (int64, error)
	LogResponse(ctx context.Context, logID int64, response any, processingMs int64) error
	LogError(ctx context.Context, logID int64, errorCode, errorMsg string, processingMs int64) error
}

// NopPaymentLogger discards everything. It backs SDK-only embeddings that
// bring their own audit trail.
type NopPaymentLogger struct{}

func (NopPaymentLogger) LogRequest(context.Context, string, string, string, string, any, string, string) (int64, error) {
	return 0, nil
}

func (NopPaymentLogger) LogResponse(context.Context, int64, any, int64) error { return nil }

func (NopPaymentLogger) LogError(context.Context, int64, string, string, int64) error { return nil }

// PaymentLogRecord is one persisted payment operation
type PaymentLogRecord struct {
	ID           int64          `json:"id"`
	MerchantID   string         `json:"merchant_id"`
	Provider     string         `json:"provider"`
	Method       string         `json:"method"`
	Endpoint     string         `json:"endpoint"`
	Request      map[string]any `json:"request,omitempty"`
	Response     map[string]any `json:"response,omitempty"`
	Status       string         `json:"status,omitempty"`
	ErrorCode    string         `json:"error_code,omitempty"`
	Amount       float64        `json:"amount,omitempty"`
	Currency     string         `json:"currency,omitempty"`
	PaymentID    string         `json:"payment_id,omitempty"`
	ProcessingMs int64          `json:"processing_ms"`
	UserAgent    string         `json:"user_agent,omitempty"`
	ClientIP     string         `json:"client_ip,omitempty"`
	RequestAt    time.Time      `json:"request_at"`
	ResponseAt   *time.Time     `json:"response_at,omitempty"`
}

// SQLitePaymentLogger implements PaymentLogger on a local SQLite database.
// All providers share one payment_logs table keyed by provider name.
type SQLitePaymentLogger struct {
	db   *sql.DB
	path string
}

// NewSQLitePaymentLogger opens (or creates) the payment log database at
// dbPath
func NewSQLitePaymentLogger(dbPath string) (*SQLitePaymentLogger, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	// WAL keeps readers out of the writers' way when the API serves
	// traffic while someone tails the logs
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_timeout=20000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	logger := &SQLitePaymentLogger{db: db, path: dbPath}
	if err := logger.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return logger, nil
}

// NewSQLitePaymentLoggerFromDB wraps an already-open database handle
func NewSQLitePaymentLoggerFromDB(db *sql.DB) (*SQLitePaymentLogger, error) {
	logger := &SQLitePaymentLogger{db: db}
	if err := logger.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return logger, nil
}

func (l *SQLitePaymentLogger) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS payment_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		merchant_id TEXT NOT NULL DEFAULT '',
		provider TEXT NOT NULL,
		method TEXT NOT NULL,
		endpoint TEXT NOT NULL,
		request TEXT,
		response TEXT,
		status TEXT,
		error_code TEXT,
		amount REAL,
		currency TEXT,
		payment_id TEXT,
		processing_ms INTEGER,
		user_agent TEXT,
		client_ip TEXT,
		request_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		response_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_payment_logs_provider ON payment_logs(provider, request_at);
	CREATE INDEX IF NOT EXISTS idx_payment_logs_payment ON payment_logs(payment_id);
	`

	_, err := l.db.Exec(query)
	return err
}

// retryOperation executes a database operation with retry logic for
// SQLITE_BUSY errors
func (l *SQLitePaymentLogger) retryOperation(operation func() error, maxRetries int) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}

		if strings.Contains(err.Error(), "SQLITE_BUSY") || strings.Contains(err.Error(), "database is locked") {
			lastErr = err
			if attempt < maxRetries {
				backoff := time.Duration(10*(1<<attempt)) * time.Millisecond
				time.Sleep(backoff)
				continue
			}
		} else {
			return err
		}
	}

	return fmt.Errorf("operation failed after %d retries, last error: %w", maxRetries+1, lastErr)
}

// LogRequest persists the outbound request and returns the log row id used
// to attach the response later
func (l *SQLitePaymentLogger) LogRequest(ctx context.Context, merchantID, providerName, method, endpoint string, request any, userAgent, clientIP string) (int64, error) {
	requestMap, err := toLogMap(request)
	if err != nil {
		return 0, fmt.Errorf("failed to convert request for logging: %w", err)
	}

	sanitized := SanitizeForLog(requestMap)
	requestJSON, err := json.Marshal(sanitized)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal sanitized request: %w", err)
	}

	paymentID, amount, currency := extractPaymentFields(requestMap)

	var logID int64
	err = l.retryOperation(func() error {
		query := `
		INSERT INTO payment_logs (merchant_id, provider, method, endpoint, request, payment_id, amount, currency, user_agent, client_ip)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`

		result, execErr := l.db.ExecContext(ctx, query, merchantID, providerName, method, endpoint, string(requestJSON), paymentID, amount, currency, userAgent, clientIP)
		if execErr != nil {
			return fmt.Errorf("failed to log request: %w", execErr)
		}

		logID, execErr = result.LastInsertId()
		return execErr
	}, 3)

	return logID, err
}

// LogResponse attaches the gateway's response to an existing log row
func (l *SQLitePaymentLogger) LogResponse(ctx context.Context, logID int64, response any, processingMs int64) error {
	responseMap, err := toLogMap(response)
	if err != nil {
		return fmt.Errorf("failed to convert response for logging: %w", err)
	}

	sanitized := SanitizeForLog(responseMap)
	responseJSON, err := json.Marshal(sanitized)
	if err != nil {
		return fmt.Errorf("failed to marshal sanitized response: %w", err)
	}

	status, errorCode, paymentID := extractResponseFields(response)

	return l.retryOperation(func() error {
		query := `
		UPDATE payment_logs
		SET response = ?, response_at = CURRENT_TIMESTAMP, status = ?, error_code = ?, payment_id = COALESCE(NULLIF(?, ''), payment_id), processing_ms = ?
		WHERE id = ?
		`

		result, execErr := l.db.ExecContext(ctx, query, string(responseJSON), status, errorCode, paymentID, processingMs, logID)
		if execErr != nil {
			return fmt.Errorf("failed to log response for id %d: %w", logID, execErr)
		}

		rows, execErr := result.RowsAffected()
		if execErr != nil {
			return execErr
		}
		if rows == 0 {
			return fmt.Errorf("no log row found for id %d", logID)
		}
		return nil
	}, 3)
}

// LogError records a failed operation against an existing log row
func (l *SQLitePaymentLogger) LogError(ctx context.Context, logID int64, errorCode, errorMsg string, processingMs int64) error {
	errorResponse := map[string]any{
		"error":   true,
		"code":    errorCode,
		"message": errorMsg,
		"time":    time.Now(),
	}

	return l.LogResponse(ctx, logID, errorResponse, processingMs)
}

// RecentLogs returns the most recent log records for a provider, newest
// first, capped at limit
func (l *SQLitePaymentLogger) RecentLogs(ctx context.Context, providerName string, limit int) ([]PaymentLogRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `
	SELECT id, merchant_id, provider, method, endpoint, request, response, status, error_code, amount, currency, payment_id, processing_ms, user_agent, client_ip, request_at, response_at
	FROM payment_logs
	WHERE provider = ?
	ORDER BY request_at DESC, id DESC
	LIMIT ?
	`

	rows, err := l.db.QueryContext(ctx, query, providerName, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query logs: %w", err)
	}
	defer rows.Close()

	return scanLogRecords(rows)
}

// PaymentLogs returns all log records touching a payment id
func (l *SQLitePaymentLogger) PaymentLogs(ctx context.Context, providerName, paymentID string) ([]PaymentLogRecord, error) {
	query := `
	SELECT id, merchant_id, provider, method, endpoint, request, response, status, error_code, amount, currency, payment_id, processing_ms, user_agent, client_ip, request_at, response_at
	FROM payment_logs
	WHERE provider = ? AND (payment_id = ? OR request LIKE ?)
	ORDER BY request_at DESC, id DESC
	`

	rows, err := l.db.QueryContext(ctx, query, providerName, paymentID, "%"+paymentID+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to query payment logs: %w", err)
	}
	defer rows.Close()

	return scanLogRecords(rows)
}

// ProviderStats aggregates request counts, error counts and processing
// times for a provider over the last N hours
func (l *SQLitePaymentLogger) ProviderStats(ctx context.Context, providerName string, hours int) (map[string]any, error) {
	if hours <= 0 {
		hours = 24
	}

	query := fmt.Sprintf(`
	SELECT
		COUNT(*) as total_requests,
		COUNT(CASE WHEN error_code IS NOT NULL AND error_code != '' THEN 1 END) as error_count,
		AVG(processing_ms) as avg_processing_ms
	FROM payment_logs
	WHERE provider = ? AND request_at >= datetime('now', '-%d hours')
	`, hours)

	var totalRequests, errorCount int
	var avgProcessingMs sql.NullFloat64

	err := l.db.QueryRowContext(ctx, query, providerName).Scan(&totalRequests, &errorCount, &avgProcessingMs)
	if err != nil {
		return nil, fmt.Errorf("failed to get provider stats: %w", err)
	}

	stats := map[string]any{
		"total_requests": totalRequests,
		"error_count":    errorCount,
		"success_count":  totalRequests - errorCount,
		"success_rate":   0.0,
	}
	if totalRequests > 0 {
		stats["success_rate"] = float64(totalRequests-errorCount) / float64(totalRequests) * 100
	}
	if avgProcessingMs.Valid {
		stats["avg_processing_ms"] = avgProcessingMs.Float64
	}

	return stats, nil
}

// Close closes the database connection
func (l *SQLitePaymentLogger) Close() error {
	if l.db != nil {
		return l.db.Close()
	}
	return nil
}

func scanLogRecords(rows *sql.Rows) ([]PaymentLogRecord, error) {
	var records []PaymentLogRecord
	for rows.Next() {
		var rec PaymentLogRecord
		var requestJSON, responseJSON, status, errorCode, currency, paymentID, userAgent, clientIP sql.NullString
		var amount sql.NullFloat64
		var processingMs sql.NullInt64
		var responseAt sql.NullTime

		err := rows.Scan(
			&rec.ID,
			&rec.MerchantID,
			&rec.Provider,
			&rec.Method,
			&rec.Endpoint,
			&requestJSON,
			&responseJSON,
			&status,
			&errorCode,
			&amount,
			&currency,
			&paymentID,
			&processingMs,
			&userAgent,
			&clientIP,
			&rec.RequestAt,
			&responseAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan log row: %w", err)
		}

		rec.Status = status.String
		rec.ErrorCode = errorCode.String
		rec.Amount = amount.Float64
		rec.Currency = currency.String
		rec.PaymentID = paymentID.String
		rec.ProcessingMs = processingMs.Int64
		rec.UserAgent = userAgent.String
		rec.ClientIP = clientIP.String
		if responseAt.Valid {
			rec.ResponseAt = &responseAt.Time
		}

		if requestJSON.Valid && requestJSON.String != "" {
			if err := json.Unmarshal([]byte(requestJSON.String), &rec.Request); err != nil {
				rec.Request = map[string]any{"raw": requestJSON.String}
			}
		}
		if responseJSON.Valid && responseJSON.String != "" {
			if err := json.Unmarshal([]byte(responseJSON.String), &rec.Response); err != nil {
				rec.Response = map[string]any{"raw": responseJSON.String}
			}
		}

		records = append(records, rec)
	}

	return records, rows.Err()
}

// toLogMap converts any value to a map through a JSON round trip so the
// sanitizer sees every field regardless of the concrete type
func toLogMap(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		// Non-object payloads (arrays, scalars) are wrapped rather than
		// rejected
		return map[string]any{"value": json.RawMessage(raw)}, nil
	}
	return m, nil
}

// sensitiveLogKeys are masked before any payload is persisted
var sensitiveLogKeys = []string{
	"consumer_secret", "consumersecret", "secret", "token", "authorization",
	"password", "api_key", "apikey", "signature",
}

// SanitizeForLog masks credential-bearing fields in a payload, walking
// nested objects
func SanitizeForLog(data map[string]any) map[string]any {
	sanitized := make(map[string]any, len(data))
	for key, value := range data {
		if isSensitiveLogKey(key) {
			sanitized[key] = "***"
			continue
		}
		if nested, ok := value.(map[string]any); ok {
			sanitized[key] = SanitizeForLog(nested)
			continue
		}
		sanitized[key] = value
	}
	return sanitized
}

func isSensitiveLogKey(key string) bool {
	lower := strings.ToLower(key)
	for _, sensitive := range sensitiveLogKeys {
		if strings.Contains(lower, sensitive) {
			return true
		}
	}
	return false
}

// extractPaymentFields pulls indexed columns out of a request payload
func extractPaymentFields(m map[string]any) (paymentID string, amount float64, currency string) {
	if id, ok := m["id"].(string); ok && id != "" {
		paymentID = id
	} else if id, ok := m["trackingId"].(string); ok {
		paymentID = id
	}

	switch v := m["amount"].(type) {
	case float64:
		amount = v
	case string:
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			amount = parsed
		}
	}

	currency, _ = m["currency"].(string)
	return paymentID, amount, currency
}

// extractResponseFields pulls indexed columns out of a response payload
func extractResponseFields(response any) (status, errorCode, paymentID string) {
	switch resp := response.(type) {
	case *OrderResponse:
		return string(resp.Status), resp.ErrorCode, resp.TrackingID
	case *TransactionStatus:
		return string(resp.Status), resp.ErrorCode, resp.TrackingID
	case *RefundResponse:
		return resp.Status, resp.ErrorCode, ""
	case *CancelResponse:
		return resp.Status, resp.ErrorCode, ""
	case *IPNRegistration:
		return resp.Status, "", ""
	case map[string]any:
		if code, ok := resp["code"].(string); ok {
			errorCode = code
		}
		if s, ok := resp["status"].(string); ok {
			status = s
		}
		return status, errorCode, ""
	default:
		return "", "", ""
	}
}
