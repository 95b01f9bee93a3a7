package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGoogleProvider_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/models/gemini-2.5-flash:generateContent") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "test-key" {
			t.Errorf("unexpected key: %s", r.URL.Query().Get("key"))
		}

		var req geminiRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		if req.SystemInstruction == nil || req.SystemInstruction.Parts[0].Text != "Be brief." {
			t.Errorf("systemInstruction = %+v, want the system message", req.SystemInstruction)
		}
		if len(req.Contents) != 2 {
			t.Fatalf("contents = %d, want 2 (system excluded)", len(req.Contents))
		}
		if req.Contents[1].Role != "model" {
			t.Errorf("assistant role = %q, want model", req.Contents[1].Role)
		}
		if req.GenerationConfig != nil {
			t.Errorf("generationConfig = %+v, want omitted", req.GenerationConfig)
		}

		_, _ = w.Write([]byte(`{
			"candidates": [{"content": {"parts": [{"text": "Gemini says hi"}]}}],
			"usageMetadata": {"promptTokenCount": 7, "candidatesTokenCount": 3}
		}`))
	}))
	defer server.Close()

	provider := NewGoogleProvider("test-key", WithGoogleBaseURL(server.URL))

	resp, err := provider.Complete(context.Background(), CompletionRequest{
		Messages: []Message{
			{Role: "system", Content: "Be brief."},
			{Role: "user", Content: "hello"},
			{Role: "assistant", Content: "hi"},
		},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Content != "Gemini says hi" {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.InputTokens != 7 || resp.OutputTokens != 3 {
		t.Errorf("tokens = %d/%d, want 7/3", resp.InputTokens, resp.OutputTokens)
	}
}

func TestGoogleProvider_JSONMode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "gemini-2.5-pro") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var req geminiRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.GenerationConfig == nil || req.GenerationConfig.ResponseMIMEType != "application/json" {
			t.Errorf("generationConfig = %+v, want application/json", req.GenerationConfig)
		}
		if req.GenerationConfig != nil && req.GenerationConfig.MaxOutputTokens != 256 {
			t.Errorf("maxOutputTokens = %d, want 256", req.GenerationConfig.MaxOutputTokens)
		}
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{}"}]}}]}`))
	}))
	defer server.Close()

	provider := NewGoogleProvider("test-key",
		WithGoogleBaseURL(server.URL),
		WithGoogleModel("gemini-2.5-pro"),
	)
	if _, err := provider.Complete(context.Background(), CompletionRequest{
		Messages:  []Message{{Role: "user", Content: "json"}},
		MaxTokens: 256,
		JSON:      true,
	}); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
}

func TestGoogleProvider_RateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	provider := NewGoogleProvider("test-key", WithGoogleBaseURL(server.URL))
	_, err := provider.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: "user", Content: "hello"}},
	})

	var rl *ErrRateLimit
	if !errors.As(err, &rl) {
		t.Fatalf("Complete() error = %v, want *ErrRateLimit", err)
	}
	if rl.Provider != "google" {
		t.Errorf("Provider = %q, want google", rl.Provider)
	}
}

func TestGoogleProvider_NoCandidates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer server.Close()

	provider := NewGoogleProvider("test-key", WithGoogleBaseURL(server.URL))
	if _, err := provider.Complete(context.Background(), CompletionRequest{}); err == nil {
		t.Fatal("Complete() should fail when there are no candidates")
	}
}

func TestGoogleProvider_HealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/models") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	provider := NewGoogleProvider("test-key", WithGoogleBaseURL(server.URL))
	if err := provider.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}
