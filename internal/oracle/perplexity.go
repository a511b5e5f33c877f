// Package oracle implements the Oracle collaborator consumed by
// internal/sentiment and internal/optimizer: a plain chat-completions
// call against Perplexity's REST API. The original bot issued these
// same requests with Python's requests.post and no SDK at all, so a
// net/http client here is a direct port, not a simplification.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	endpoint       = "https://api.perplexity.ai/chat/completions"
	requestTimeout = 45 * time.Second
	defaultModel   = "sonar-pro"
	maxTokens      = 400
	temperature    = 0.2
)

// Perplexity queries Perplexity's sonar models for a free-text
// analysis, which internal/sentiment and internal/optimizer parse a
// directional score out of.
type Perplexity struct {
	logger     *zap.Logger
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewPerplexity constructs a Perplexity oracle client. An empty apiKey
// makes every Query call fail fast rather than issue a doomed request.
func NewPerplexity(logger *zap.Logger, apiKey string) *Perplexity {
	return &Perplexity{
		logger:     logger,
		endpoint:   endpoint,
		apiKey:     apiKey,
		model:      defaultModel,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Query implements sentiment.Oracle and optimizer.Oracle.
func (p *Perplexity) Query(ctx context.Context, prompt string) (string, error) {
	if p.apiKey == "" {
		return "", fmt.Errorf("oracle: no perplexity API key configured")
	}

	payload, err := json.Marshal(chatRequest{
		Model:       p.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("oracle: encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("oracle: building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("oracle: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("oracle: reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("oracle: perplexity returned status %d: %s", resp.StatusCode, string(raw))
	}

	var decoded chatResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("oracle: decoding response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("oracle: empty response")
	}

	content := decoded.Choices[0].Message.Content
	p.logger.Debug("oracle response received", zap.Int("length", len(content)))
	return content, nil
}
