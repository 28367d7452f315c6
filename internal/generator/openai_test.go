package generator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"incident-analyzer/internal/config"
)

func stubConfig(url string) config.GeneratorConfig {
	return config.GeneratorConfig{
		URL:         url,
		Model:       "test-model",
		APIKey:      "test-key",
		Temperature: 0.2,
		MaxTokens:   900,
		Timeout:     5 * time.Second,
	}
}

func TestOpenAIGeneratorGenerate(t *testing.T) {
	var captured chatRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Expected bearer auth, got %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": "  ## Executive Summary\nAll fine.\n  "}},
			},
		})
	}))
	defer server.Close()

	gen := NewOpenAIGenerator(stubConfig(server.URL), testSchema(), "rules text")
	report, err := gen.Generate(context.Background(), testMetrics())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if report != "## Executive Summary\nAll fine." {
		t.Errorf("Expected trimmed content, got %q", report)
	}
	if captured.Model != "test-model" || captured.Temperature != 0.2 || captured.MaxTokens != 900 {
		t.Errorf("Request did not carry the configured parameters: %+v", captured)
	}
	if len(captured.Messages) != 2 || captured.Messages[0].Role != "system" || captured.Messages[1].Role != "user" {
		t.Fatalf("Expected a system+user message pair, got %+v", captured.Messages)
	}
	if !strings.Contains(captured.Messages[1].Content, "rules text") {
		t.Error("User message should embed the grounding rules")
	}
}

func TestOpenAIGeneratorErrors(t *testing.T) {
	t.Run("missing api key", func(t *testing.T) {
		cfg := stubConfig("http://unused")
		cfg.APIKey = ""
		gen := NewOpenAIGenerator(cfg, testSchema(), "")
		if _, err := gen.Generate(context.Background(), testMetrics()); err == nil {
			t.Error("Expected an error without an API key")
		}
	})

	t.Run("server failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error": "rate limited"}`, http.StatusTooManyRequests)
		}))
		defer server.Close()

		gen := NewOpenAIGenerator(stubConfig(server.URL), testSchema(), "")
		_, err := gen.Generate(context.Background(), testMetrics())
		if err == nil || !strings.Contains(err.Error(), "429") {
			t.Errorf("Expected a 429 error, got %v", err)
		}
	})

	t.Run("no choices", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"choices": []}`))
		}))
		defer server.Close()

		gen := NewOpenAIGenerator(stubConfig(server.URL), testSchema(), "")
		if _, err := gen.Generate(context.Background(), testMetrics()); err == nil {
			t.Error("Expected an error for an empty choices list")
		}
	})

	t.Run("empty content", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"choices": [{"message": {"role": "assistant", "content": "   "}}]}`))
		}))
		defer server.Close()

		gen := NewOpenAIGenerator(stubConfig(server.URL), testSchema(), "")
		if _, err := gen.Generate(context.Background(), testMetrics()); err == nil {
			t.Error("Expected an error for empty content")
		}
	})
}
