package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/collabgrid/collabgrid/internal/config"
)

// ChatBackend calls an OpenAI-compatible chat completion endpoint.
// It works against OpenAI, OpenRouter, vLLM and any other compatible
// server.
type ChatBackend struct {
	name       string
	apiKey     string
	apiBase    string
	model      string
	httpClient *http.Client
}

// NewChatBackend creates a backend from its configuration.
func NewChatBackend(cfg config.BackendConfig) *ChatBackend {
	apiBase := cfg.APIBase
	if apiBase == "" {
		apiBase = "https://api.openai.com/v1"
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4"
	}
	return &ChatBackend{
		name:       cfg.Name,
		apiKey:     cfg.APIKey,
		apiBase:    strings.TrimSuffix(apiBase, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

// Name identifies the backend.
func (b *ChatBackend) Name() string { return b.name }

// Call sends the prompt as a single user message and returns the first
// choice's content.
func (b *ChatBackend) Call(ctx context.Context, prompt string) (*Response, error) {
	body := map[string]any{
		"model": b.model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": 0.0,
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", b.apiBase+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var apiResp chatResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if len(apiResp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	text := apiResp.Choices[0].Message.Content
	return &Response{
		Text:          text,
		TokenEstimate: EstimateTokens(prompt, text),
	}, nil
}

// OpenAI-compatible API response types.
type chatResponse struct {
	Choices []chatChoice `json:"choices"`
}

type chatChoice struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	FinishReason string `json:"finish_reason"`
}
