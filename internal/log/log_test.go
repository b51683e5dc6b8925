package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newBufferLogger(buf *bytes.Buffer, component string) *Logger {
	return New(Config{
		Component: component,
		Handler:   slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}),
	})
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	return entry
}

func TestLogger_AddsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf, ComponentLedger)

	logger.InfoContext(context.Background(), "hello", FieldFamilyID, "fam-1")

	entry := decodeLine(t, &buf)
	if entry[FieldComponent] != ComponentLedger {
		t.Errorf("component = %v, want %v", entry[FieldComponent], ComponentLedger)
	}
	if entry[FieldFamilyID] != "fam-1" {
		t.Errorf("family_id = %v, want fam-1", entry[FieldFamilyID])
	}
}

func TestLogger_WithComponentReplacesName(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf, ComponentApp).WithComponent(ComponentWorker)

	if logger.Component() != ComponentWorker {
		t.Fatalf("Component() = %v, want %v", logger.Component(), ComponentWorker)
	}
	logger.Warn("tick")
	entry := decodeLine(t, &buf)
	if entry[FieldComponent] != ComponentWorker {
		t.Errorf("component = %v, want %v", entry[FieldComponent], ComponentWorker)
	}
}

func TestLogFields_Builder(t *testing.T) {
	fields := NewFields().
		WithTenant("fam-1", "").
		WithTransaction("tx-1", "EXPENSE", "10", "USD", "175").
		WithError(errors.New("boom")).
		WithOperation(OpCreate)

	if _, ok := fields[FieldUserID]; ok {
		t.Error("empty user id should be skipped")
	}
	if fields[FieldAmountBase] != "175" {
		t.Errorf("amount_base = %v, want 175", fields[FieldAmountBase])
	}
	if fields[FieldError] != "boom" {
		t.Errorf("error = %v, want boom", fields[FieldError])
	}
	if got := len(fields.ToSlice()); got != 2*len(fields) {
		t.Errorf("ToSlice() len = %d, want %d", got, 2*len(fields))
	}
}

func TestFromContext_Default(t *testing.T) {
	logger := FromContext(context.Background())
	if logger == nil || logger.Component() != "unknown" {
		t.Fatalf("expected default logger, got %+v", logger)
	}
}

func TestMiddlewareChain(t *testing.T) {
	var buf bytes.Buffer
	base := newBufferLogger(&buf, ComponentApp)

	var seen *Logger
	handler := Middleware(base)(
		ComponentMiddleware(ComponentHTTP)(
			RequestIDMiddleware(func(r *http.Request) string { return r.Header.Get("X-Request-ID") })(
				http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					seen = FromContext(r.Context())
					seen.Info("inside")
				}),
			),
		),
	)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/transactions", nil)
	req.Header.Set("X-Request-ID", "req-42")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if seen == nil {
		t.Fatal("handler did not run")
	}
	entry := decodeLine(t, &buf)
	if entry[FieldRequestID] != "req-42" {
		t.Errorf("request_id = %v, want req-42", entry[FieldRequestID])
	}
	if entry[FieldComponent] != ComponentHTTP {
		t.Errorf("component = %v, want %v", entry[FieldComponent], ComponentHTTP)
	}
}

func TestStructuredLogger_HTTPEndLevels(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "INFO"},
		{http.StatusNotFound, "WARN"},
		{http.StatusInternalServerError, "ERROR"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		sl := NewStructuredLogger(newBufferLogger(&buf, ComponentHTTP))
		req := httptest.NewRequest(http.MethodGet, "/health", nil)

		sl.LogHTTPEnd(context.Background(), req, tt.status, 3, "127.0.0.1")

		entry := decodeLine(t, &buf)
		if entry["level"] != tt.level {
			t.Errorf("status %d logged at %v, want %v", tt.status, entry["level"], tt.level)
		}
		if entry[FieldStatusCode] != float64(tt.status) {
			t.Errorf("status_code = %v, want %d", entry[FieldStatusCode], tt.status)
		}
	}
}

func TestStructuredLogger_LogError(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(newBufferLogger(&buf, ComponentDebts))

	sl.LogError(context.Background(), "payment failed", errors.New("locked"), ComponentDebts, OpPay, nil)

	entry := decodeLine(t, &buf)
	if entry[FieldOperation] != OpPay || entry[FieldError] != "locked" {
		t.Errorf("unexpected entry: %v", entry)
	}
}
