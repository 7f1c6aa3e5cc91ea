package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"conti/internal/auth"
	"conti/internal/core"
	"conti/internal/middleware/trace"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{auth.ErrMissingToken, http.StatusUnauthorized},
		{fmt.Errorf("%w: expired", auth.ErrInvalidToken), http.StatusUnauthorized},
		{malformed(fmt.Errorf("%w: bad json", core.ErrValidation)), http.StatusBadRequest},
		{core.ErrInvalidAmount, http.StatusUnprocessableEntity},
		{fmt.Errorf("pay bill: %w", core.ErrInstanceNotFound), http.StatusNotFound},
		{fmt.Errorf("pay bill: %w", core.ErrAlreadyPaid), http.StatusConflict},
		{core.ErrSameAccountTransfer, http.StatusConflict},
		{fmt.Errorf("commit: %w", core.ErrAtomicity), http.StatusServiceUnavailable},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.want {
				t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
		retryAfter string
	}{
		{"conflict message is kept", core.ErrNotPaid, http.StatusConflict, core.ErrNotPaid.Error(), ""},
		{"internal message is hidden", errors.New("sql: connection refused"), http.StatusInternalServerError, "internal error", ""},
		{"atomicity asks to retry", core.ErrAtomicity, http.StatusServiceUnavailable, "the ledger is busy, retry the request", "1"},
		{"auth message is generic", auth.ErrInvalidToken, http.StatusUnauthorized, "unauthorized", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(context.WithValue(req.Context(), trace.RequestIDKey, "req-1"))
			rec := httptest.NewRecorder()
			writeError(rec, req, tt.err)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var body ErrorBody
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if body.Error != tt.wantMsg {
				t.Errorf("error = %q, want %q", body.Error, tt.wantMsg)
			}
			if body.RequestID != "req-1" {
				t.Errorf("requestId = %q, want req-1", body.RequestID)
			}
			if got := rec.Header().Get("Retry-After"); got != tt.retryAfter {
				t.Errorf("Retry-After = %q, want %q", got, tt.retryAfter)
			}
		})
	}
}

func TestJSONResponseBuilder(t *testing.T) {
	rec := httptest.NewRecorder()
	NewJSONResponse().Status(http.StatusCreated).Header("Location", "/accounts/a1").Data(map[string]string{"id": "a1"}).Write(rec)
	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d", rec.Code)
	}
	if rec.Header().Get("Location") != "/accounts/a1" {
		t.Errorf("Location = %q", rec.Header().Get("Location"))
	}
	if rec.Body.String() != "{\"id\":\"a1\"}\n" {
		t.Errorf("body = %q", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	NewJSONResponse().Status(http.StatusNoContent).Data("ignored").Write(rec)
	if rec.Code != http.StatusNoContent || rec.Body.Len() != 0 {
		t.Errorf("204 response: status %d, body %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	NewJSONResponse().Data(func() {}).Write(rec)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("unencodable data: status = %d", rec.Code)
	}
}
