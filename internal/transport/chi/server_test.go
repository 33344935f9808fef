package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/knowledge-network/knsearch/internal/domain"
)

func newTestServer() *Server {
	return NewServer(nil, nil, nil, zap.NewNop())
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var out ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&out); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return out
}

func TestHandleDomainError_SentinelMapping(t *testing.T) {
	s := newTestServer()

	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{domain.ErrWorkspaceAccessDenied, http.StatusForbidden, codeForbidden},
		{domain.ErrInvalidRequest, http.StatusBadRequest, codeBadRequest},
		{domain.ErrEngineUnavailable, http.StatusBadGateway, codeUpstream},
		{domain.ErrNotFound, http.StatusNotFound, codeNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.wantCode, func(t *testing.T) {
			rr := httptest.NewRecorder()
			s.handleDomainError(rr, fmt.Errorf("context: %w", tc.err))

			if rr.Code != tc.wantStatus {
				t.Errorf("status: %d, want %d", rr.Code, tc.wantStatus)
			}
			if got := decodeError(t, rr); got.Code != tc.wantCode {
				t.Errorf("code: %s, want %s", got.Code, tc.wantCode)
			}
		})
	}
}

func TestHandleDomainError_CircuitOpenSetsRetryAfter(t *testing.T) {
	s := newTestServer()

	rr := httptest.NewRecorder()
	s.handleDomainError(rr, fmt.Errorf("search: %w", domain.NewCircuitOpen(42*time.Second)))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status: %d, want 503", rr.Code)
	}
	if got := rr.Header().Get("Retry-After"); got != "42" {
		t.Errorf("Retry-After: %q, want 42", got)
	}
	if got := decodeError(t, rr); got.Code != codeUnavailable {
		t.Errorf("code: %s", got.Code)
	}
}

func TestHandleDomainError_UnknownErrorIs500(t *testing.T) {
	s := newTestServer()

	rr := httptest.NewRecorder()
	s.handleDomainError(rr, errors.New("something odd"))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status: %d, want 500", rr.Code)
	}
	if got := decodeError(t, rr); got.Message == "something odd" {
		t.Error("internal error details must not leak to clients")
	}
}

func TestFormatSeconds(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{42 * time.Second, "42"},
		{1500 * time.Millisecond, "1"},
		{200 * time.Millisecond, "1"}, // never advertise a zero wait
		{0, "1"},
	}
	for _, tc := range tests {
		if got := formatSeconds(tc.d); got != tc.want {
			t.Errorf("formatSeconds(%v) = %q, want %q", tc.d, got, tc.want)
		}
	}
}
