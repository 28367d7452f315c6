package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"incident-analyzer/internal/config"
	"incident-analyzer/internal/validator"
	"incident-analyzer/pkg/models"
)

// OpenAIGenerator calls an OpenAI-compatible chat-completions endpoint to
// turn the metrics document into a narrative report. Temperature is kept
// low for repeatability; repeatability is still measured, never assumed.
type OpenAIGenerator struct {
	cfg    config.GeneratorConfig
	schema *validator.ReportSchema
	rules  string
	client *http.Client
}

// NewOpenAIGenerator creates a generator bound to the report contract
// documents.
func NewOpenAIGenerator(cfg config.GeneratorConfig, schema *validator.ReportSchema, rules string) *OpenAIGenerator {
	return &OpenAIGenerator{
		cfg:    cfg,
		schema: schema,
		rules:  rules,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Generate produces one report for the given metrics document. Errors are
// returned to the caller; retries are the caller's policy.
func (g *OpenAIGenerator) Generate(ctx context.Context, metrics *models.Metrics) (string, error) {
	if g.cfg.APIKey == "" {
		return "", fmt.Errorf("generator API key is not configured")
	}

	system, user, err := BuildPrompt(g.schema, g.rules, metrics)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(chatRequest{
		Model: g.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: g.cfg.Temperature,
		MaxTokens:   g.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal generation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create generation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("generation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("generation endpoint returned %d: %s", resp.StatusCode, string(detail))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode generation response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("generation endpoint returned no choices")
	}

	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("generation endpoint returned empty content")
	}
	return content, nil
}
