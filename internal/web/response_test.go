package web

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/p-n-ai/pai-course/internal/auth"
	"github.com/p-n-ai/pai-course/internal/catalog"
	"github.com/p-n-ai/pai-course/internal/course"
	"github.com/p-n-ai/pai-course/internal/generator"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		retryAfter bool
	}{
		{"not found", fmt.Errorf("course x: %w", course.ErrNotFound), http.StatusNotFound, false},
		{"forbidden", course.ErrForbidden, http.StatusForbidden, false},
		{"validation", course.ErrValidation, http.StatusBadRequest, false},
		{"invalid topic", catalog.ErrInvalidTopic, http.StatusBadRequest, false},
		{"conflict", course.ErrConflict, http.StatusConflict, false},
		{"unauthorized", auth.ErrUnauthorized, http.StatusUnauthorized, false},
		{"bad credentials", auth.ErrInvalidCredentials, http.StatusUnauthorized, false},
		{"budget", &generator.GenerationError{Op: "x", Err: generator.ErrBudgetExceeded}, http.StatusTooManyRequests, false},
		{"generation", &generator.GenerationError{Op: "x", Err: errors.New("schema")}, http.StatusBadGateway, false},
		{"generation retryable", &generator.GenerationError{Op: "x", Err: errors.New("timeout"), Retryable: true}, http.StatusServiceUnavailable, true},
		{"other", errors.New("disk on fire"), http.StatusInternalServerError, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get("Retry-After") != ""; got != tt.retryAfter {
				t.Errorf("Retry-After set = %v, want %v", got, tt.retryAfter)
			}
		})
	}
}

func TestWriteError_HidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("password=hunter2"))
	if got := rec.Body.String(); got != "{\"error\":\"internal error\"}\n" {
		t.Errorf("body = %q", got)
	}
}

func TestLogRequests(t *testing.T) {
	h := LogRequests(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want 418", rec.Code)
	}
}
