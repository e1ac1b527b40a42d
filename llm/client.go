// Package llm wraps the external completion service behind a small client
// interface so the generation pipeline can be tested against a fake. The
// real implementation speaks the OpenAI responses API over plain net/http.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/studydeck/studydeck-api/logger"
)

// Client is the completion-service boundary consumed by the generation
// pipeline. GenerateJSON asks the model for output conforming to the given
// JSON schema and returns the raw JSON text of the structured result.
type Client interface {
	GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (json.RawMessage, error)
	Model() string
}

// Config holds everything the client needs. It is constructed once at
// process start and injected; the client never reads the environment.
type Config struct {
	APIKey          string
	BaseURL         string
	ModelName       string
	Temperature     *float64
	MaxOutputTokens int
	HTTPClient      *http.Client
}

type client struct {
	log             *logger.Logger
	baseURL         string
	apiKey          string
	model           string
	temperature     *float64
	maxOutputTokens int
	httpClient      *http.Client
}

// NewClient validates cfg and returns a responses-API client. Missing
// credentials or model are configuration errors so callers can distinguish
// a misdeployed server from a provider outage.
func NewClient(cfg Config, log *logger.Logger) (Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, newError(CodeConfiguration, "completion service API key is not configured", nil)
	}
	model := strings.TrimSpace(cfg.ModelName)
	if model == "" {
		return nil, newError(CodeConfiguration, "completion service model is not configured", nil)
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	return &client{
		log:             log.With("service", "llm"),
		baseURL:         baseURL,
		apiKey:          cfg.APIKey,
		model:           model,
		temperature:     cfg.Temperature,
		maxOutputTokens: cfg.MaxOutputTokens,
		httpClient:      httpClient,
	}, nil
}

func (c *client) Model() string { return c.model }

// Disabled stands in for the real client when the completion service is not
// configured. Every call fails with a configuration error so the server can
// still boot and serve everything except AI generation.
type Disabled struct{}

func (Disabled) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (json.RawMessage, error) {
	return nil, newError(CodeConfiguration, "completion service is not configured", nil)
}

func (Disabled) Model() string { return "" }

type responsesMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responsesRequest struct {
	Model           string             `json:"model"`
	Input           []responsesMessage `json:"input"`
	Temperature     *float64           `json:"temperature,omitempty"`
	MaxOutputTokens int                `json:"max_output_tokens,omitempty"`
	Text            struct {
		Format map[string]any `json:"format,omitempty"`
	} `json:"text,omitempty"`
}

type responsesResponse struct {
	OutputText string `json:"output_text"`
	Refusal    string `json:"refusal"`
	Output     []struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
}

func (c *client) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (json.RawMessage, error) {
	if schemaName == "" || schema == nil {
		return nil, newError(CodeConfiguration, "response schema is required", nil)
	}

	req := responsesRequest{
		Model: c.model,
		Input: []responsesMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature:     c.temperature,
		MaxOutputTokens: c.maxOutputTokens,
	}
	req.Text.Format = map[string]any{
		"type":   "json_schema",
		"name":   schemaName,
		"schema": schema,
		"strict": true,
	}

	var resp responsesResponse
	if err := c.do(ctx, "/v1/responses", &req, &resp); err != nil {
		return nil, err
	}
	if resp.Refusal != "" {
		return nil, newError(CodeValidation, "model refused the request", errors.New(resp.Refusal))
	}

	text := extractOutputText(resp)
	if strings.TrimSpace(text) == "" {
		return nil, newError(CodeValidation, "model returned no structured output", nil)
	}
	if !json.Valid([]byte(text)) {
		return nil, newError(CodeValidation, "model output is not valid JSON", nil)
	}
	return json.RawMessage(text), nil
}

func (c *client) do(ctx context.Context, path string, body, out any) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return newError(CodeBadRequest, "failed to encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return newError(CodeBadRequest, "failed to build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return newError(CodeNetwork, "completion service is unreachable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return newError(CodeNetwork, "failed to read completion response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.statusError(resp.StatusCode, raw)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return newError(CodeValidation, "completion response is not valid JSON", err)
	}
	return nil
}

// statusError maps provider HTTP statuses onto the closed taxonomy. The raw
// body stays in the wrapped cause; the message never echoes provider text.
func (c *client) statusError(status int, raw []byte) error {
	cause := fmt.Errorf("completion service status %d: %s", status, strings.TrimSpace(string(raw)))
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return newError(CodeAuthentication, "completion service rejected our credentials", cause)
	case status == http.StatusTooManyRequests:
		return newError(CodeRateLimit, "completion service is rate limiting requests, try again later", cause)
	case status == http.StatusBadRequest:
		return newError(CodeBadRequest, "completion service rejected the request", cause)
	default:
		return newError(CodeAPI, fmt.Sprintf("completion service returned status %d", status), cause)
	}
}

func extractOutputText(resp responsesResponse) string {
	if text := strings.TrimSpace(resp.OutputText); text != "" {
		return text
	}
	for _, item := range resp.Output {
		for _, content := range item.Content {
			if text := strings.TrimSpace(content.Text); text != "" {
				return text
			}
		}
	}
	return ""
}
