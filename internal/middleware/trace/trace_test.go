package trace

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"orcamento/internal/log"
)

func TestMiddleware_RequestID(t *testing.T) {
	m := NewMiddleware(nil, log.Discard())

	var seen string
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	tests := []struct {
		name     string
		incoming string
		reuse    bool
	}{
		{"generated", "", false},
		{"reused", "abc-123", true},
		{"rejected", "bad id with spaces", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			if rr.Header().Get(RequestIDHeader) != seen {
				t.Errorf("header %q != context %q", rr.Header().Get(RequestIDHeader), seen)
			}
			if tt.reuse && seen != tt.incoming {
				t.Errorf("Expected incoming ID to be reused, got %q", seen)
			}
			if !tt.reuse && !strings.HasPrefix(seen, "req_") {
				t.Errorf("Expected generated ID, got %q", seen)
			}
		})
	}
}

func TestMiddleware_Metrics(t *testing.T) {
	m := NewMiddleware(func(*http.Request) string { return "10.0.0.1" }, log.Discard())
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fail" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))

	for _, path := range []string{"/ok", "/fail", "/ok"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	got := m.GetMetrics()
	if got.TotalRequests != 3 {
		t.Errorf("TotalRequests = %d, want 3", got.TotalRequests)
	}
	if got.ServerErrors != 1 {
		t.Errorf("ServerErrors = %d, want 1", got.ServerErrors)
	}
}

func TestMiddleware_ContextLogger(t *testing.T) {
	m := NewMiddleware(nil, log.Discard().WithComponent(log.ComponentHTTP))

	var component string
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		component = log.FromContext(r.Context()).Component()
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if component != log.ComponentHTTP {
		t.Errorf("context logger component = %q, want %q", component, log.ComponentHTTP)
	}
}
