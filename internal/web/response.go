package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/p-n-ai/pai-course/internal/auth"
	"github.com/p-n-ai/pai-course/internal/catalog"
	"github.com/p-n-ai/pai-course/internal/course"
	"github.com/p-n-ai/pai-course/internal/generator"
)

const (
	maxBodyBytes = 1 << 20
	retryAfter   = 5 // seconds
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

type errorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

// writeError maps domain errors to HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var genErr *generator.GenerationError
	switch {
	case errors.Is(err, course.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, course.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: err.Error()})
	case errors.Is(err, course.ErrValidation), errors.Is(err, catalog.ErrInvalidTopic):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, course.ErrConflict):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: auth.ErrInvalidCredentials.Error()})
	case errors.Is(err, auth.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: auth.ErrUnauthorized.Error()})
	case errors.Is(err, generator.ErrBudgetExceeded):
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: generator.ErrBudgetExceeded.Error()})
	case errors.As(err, &genErr):
		slog.Warn("content generation failed",
			"path", r.URL.Path,
			"op", genErr.Op,
			"retryable", genErr.Retryable,
			"error", genErr.Err,
		)
		if genErr.Retryable {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "content generation is temporarily unavailable", Retryable: true})
			return
		}
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "content generation failed"})
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

// decodeJSON reads a JSON body into dst. An empty body leaves dst untouched
// when allowEmpty is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid request body: %v: %w", err, course.ErrValidation)
	}
	return nil
}

// answerList is a list of chosen option indexes in which null marks a
// skipped question.
type answerList []*int

func (a answerList) indexes() []int {
	out := make([]int, len(a))
	for i, v := range a {
		out[i] = course.Unanswered
		if v != nil {
			out[i] = *v
		}
	}
	return out
}

// pathIndex parses a non-negative integer path segment.
func pathIndex(r *http.Request, name string) (int, error) {
	v, err := strconv.Atoi(r.PathValue(name))
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer: %w", name, course.ErrValidation)
	}
	return v, nil
}
