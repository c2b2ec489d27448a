package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	cctls "github.com/HatiCode/courtcast/pkg/tls"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	if err := WriteJSON(w, http.StatusCreated, map[string]int{"games": 3}); err != nil {
		t.Fatalf("WriteJSON error: %v", err)
	}
	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if got := strings.TrimSpace(w.Body.String()); got != `{"games":3}` {
		t.Errorf("body = %s", got)
	}
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, http.StatusBadRequest, errors.New("unknown target"))

	var resp ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if w.Code != http.StatusBadRequest || resp.Error != "unknown target" {
		t.Errorf("got %d %+v", w.Code, resp)
	}
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Player string `json:"player"`
	}
	tests := []struct {
		name    string
		body    string
		limit   int64
		wantErr string
	}{
		{"valid", `{"player":"p1"}`, 1024, ""},
		{"unknown field", `{"player":"p1","extra":1}`, 1024, "unknown field"},
		{"malformed", `{"player":`, 1024, "invalid JSON"},
		{"trailing data", `{"player":"p1"}{"player":"p2"}`, 1024, "unexpected data"},
		{"too large", `{"player":"` + strings.Repeat("x", 100) + `"}`, 16, ErrBodyTooLarge.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(tt.body))
			var p payload
			err := DecodeJSON(httptest.NewRecorder(), r, tt.limit, &p)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if p.Player != "p1" {
					t.Errorf("Player = %q", p.Player)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestHealthHandlerWithCheck(t *testing.T) {
	tests := []struct {
		name   string
		check  func() error
		status int
	}{
		{"healthy", func() error { return nil }, http.StatusOK},
		{"no models", func() error { return errors.New("no models loaded") }, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			HealthHandlerWithCheck(tt.check)(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
		})
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	h := RecoveryMiddleware(discard())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestChain_Order(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}), tag("outer"), tag("inner"))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if got := strings.Join(order, ","); got != "outer,inner,handler" {
		t.Errorf("order = %s", got)
	}
}

func TestLoggingMiddleware_CapturesStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/models", nil))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["status"] != float64(http.StatusTeapot) || entry["path"] != "/v1/models" {
		t.Errorf("log entry = %v", entry)
	}
}

func TestServer_StartStop(t *testing.T) {
	s := NewServer("127.0.0.1:0", http.NewServeMux(), discard())
	done := make(chan error, 1)
	go func() { done <- s.Start() }()

	time.Sleep(50 * time.Millisecond)
	if err := s.Stop(time.Second); err != nil {
		t.Fatalf("Stop error: %v", err)
	}
	if err := <-done; err != nil {
		t.Errorf("Start returned %v after graceful stop", err)
	}
}

func TestNewClient(t *testing.T) {
	c, err := NewClient(cctls.Config{}, 5*time.Second)
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	if c.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v", c.Timeout)
	}
	if tr := c.Transport.(*http.Transport); tr.TLSClientConfig != nil {
		t.Error("plaintext client should have no TLS config")
	}

	if _, err := NewClient(cctls.Config{Enabled: true, CAFile: "/nonexistent/ca.crt"}, time.Second); err == nil {
		t.Error("NewClient with a missing CA should fail")
	}
}
