package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"orcamento/internal/core"
)

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) Envelope {
	t.Helper()
	var env Envelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (%s)", err, rr.Body.String())
	}
	return env
}

func TestJSONResponseBuilder_Basic(t *testing.T) {
	rr := httptest.NewRecorder()
	fixed := time.Date(2025, 7, 15, 10, 30, 0, 0, time.UTC)

	NewJSONResponse().
		Kind(core.ResultSuccess).
		Data(map[string]int{"n": 1}).
		Header("X-Custom", "value").
		Clock(func() time.Time { return fixed }).
		Write(rr)

	if rr.Code != http.StatusOK {
		t.Errorf("Status code = %d, want %d", rr.Code, http.StatusOK)
	}
	if rr.Header().Get("X-Custom") != "value" {
		t.Errorf("X-Custom = %q", rr.Header().Get("X-Custom"))
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	env := decodeEnvelope(t, rr)
	if !env.Success || env.Kind != "success" || env.Timestamp != "2025-07-15T10:30:00Z" {
		t.Errorf("envelope = %+v", env)
	}
}

func TestResultResponse(t *testing.T) {
	tests := []struct {
		name        string
		res         core.Result[[]int]
		wantStatus  int
		wantKind    string
		wantSuccess bool
	}{
		{"success", core.Success([]int{1}), http.StatusOK, "success", true},
		{"empty", core.Empty([]int{}), http.StatusOK, "empty", true},
		{"source error", core.SourceError[[]int](errors.New("dial tcp: refused")), http.StatusServiceUnavailable, "source_error", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			ResultResponse(tt.res).Write(rr)

			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			env := decodeEnvelope(t, rr)
			if env.Kind != tt.wantKind || env.Success != tt.wantSuccess {
				t.Errorf("envelope = %+v", env)
			}
			if !tt.wantSuccess && env.Error != "data source unavailable" {
				t.Errorf("source error details must not leak: %q", env.Error)
			}
		})
	}
}

func TestErrorResponses(t *testing.T) {
	tests := []struct {
		name    string
		builder *JSONResponseBuilder
		want    int
	}{
		{"bad request", BadRequestError("bad"), http.StatusBadRequest},
		{"not found", NotFoundError("missing"), http.StatusNotFound},
		{"internal", InternalServerError("boom"), http.StatusInternalServerError},
		{"unavailable", ServiceUnavailableError("down"), http.StatusServiceUnavailable},
		{"rate limited", TooManyRequestsError(), http.StatusTooManyRequests},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			tt.builder.Write(rr)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
			if env := decodeEnvelope(t, rr); env.Success || env.Error == "" {
				t.Errorf("envelope = %+v", env)
			}
		})
	}
}
