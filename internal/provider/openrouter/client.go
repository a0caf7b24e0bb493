// Package openrouter implements the chat-completion gateway for OpenRouter
// and other OpenAI-compatible APIs.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"askrelay/internal/models"
	"askrelay/internal/provider"
)

const (
	contentTypeJSON = "application/json"
	userAgent       = "askrelay/0.1"

	// MaxTokens and Temperature are fixed generation parameters.
	MaxTokens   = 1024
	Temperature = 0.7

	maxResponseBytes = 4 << 20
	maxDetailBytes   = 512
)

// Config describes how to reach the upstream gateway.
type Config struct {
	BaseURL string
	SiteURL string
	Title   string
	Headers map[string]string
}

// Provider implements provider.Gateway for OpenAI-compatible chat completions.
type Provider struct {
	name    string
	headers map[string]string
	client  *http.Client
	chatURL string
}

var _ provider.Gateway = (*Provider)(nil)

// New creates a new OpenRouter gateway.
func New(name string, cfg Config, client *http.Client) (*Provider, error) {
	if client == nil {
		return nil, errors.New("http client must not be nil")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		return nil, errors.New("base url must not be empty")
	}

	headers := make(map[string]string, len(cfg.Headers)+2)
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	if cfg.SiteURL != "" {
		headers["HTTP-Referer"] = cfg.SiteURL
	}
	if cfg.Title != "" {
		headers["X-Title"] = cfg.Title
	}

	return &Provider{
		name:    name,
		headers: headers,
		client:  client,
		chatURL: baseURL + "/chat/completions",
	}, nil
}

func (p *Provider) Name() string {
	return p.name
}

// Complete sends the prompt as a single user message and returns the first
// choice. Every error returned is a *provider.UpstreamError.
func (p *Provider) Complete(ctx context.Context, req provider.CompletionRequest) (provider.Completion, error) {
	payload := buildChatPayload(req)

	httpReq, err := p.newRequest(ctx, http.MethodPost, p.chatURL, req.APIKey, payload)
	if err != nil {
		return provider.Completion{}, &provider.UpstreamError{Kind: provider.KindUnknown, Err: err}
	}

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return provider.Completion{}, &provider.UpstreamError{
			Kind: provider.KindUnreachable,
			Err:  fmt.Errorf("%s chat request failed: %w", p.name, err),
		}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 400 {
		return provider.Completion{}, parseAPIError(httpResp)
	}

	var providerResp chatResponse
	if err := decodeJSON(httpResp.Body, &providerResp); err != nil {
		return provider.Completion{}, &provider.UpstreamError{
			Kind:   provider.KindUnknown,
			Status: httpResp.StatusCode,
			Err:    err,
		}
	}

	return providerResp.toCompletion(req.Model)
}

func (p *Provider) newRequest(ctx context.Context, method, url, apiKey string, payload any) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("construct request: %w", err)
	}

	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept", contentTypeJSON)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Authorization", "Bearer "+apiKey)

	for k, v := range p.headers {
		req.Header.Set(k, v)
	}

	return req, nil
}

type chatPayload struct {
	Model       string           `json:"model"`
	Messages    []models.Message `json:"messages"`
	MaxTokens   int              `json:"max_tokens"`
	Temperature float64          `json:"temperature"`
}

func buildChatPayload(req provider.CompletionRequest) chatPayload {
	return chatPayload{
		Model: req.Model,
		Messages: []models.Message{
			{Role: "user", Content: req.Prompt},
		},
		MaxTokens:   MaxTokens,
		Temperature: Temperature,
	}
}

type chatResponse struct {
	ID      string          `json:"id"`
	Model   string          `json:"model"`
	Choices []chatChoice    `json:"choices"`
	Usage   *models.Usage   `json:"usage,omitempty"`
	Error   *apiErrorObject `json:"error,omitempty"`
}

type chatChoice struct {
	Index        int    `json:"index"`
	FinishReason string `json:"finish_reason"`
	Message      struct {
		Role    string `json:"role"`
		Content any    `json:"content"`
	} `json:"message"`
}

func (r chatResponse) toCompletion(requestedModel string) (provider.Completion, error) {
	// OpenRouter reports some failures inside a 200 body.
	if r.Error != nil {
		status := r.Error.status()
		kind := provider.KindUnknown
		if status >= 400 && status <= 599 {
			kind = provider.KindHTTPStatus
		}
		return provider.Completion{}, &provider.UpstreamError{
			Kind:   kind,
			Status: status,
			Detail: truncate(r.Error.Message),
		}
	}

	if len(r.Choices) == 0 {
		return provider.Completion{}, &provider.UpstreamError{
			Kind:   provider.KindEmptyResponse,
			Detail: "response did not include choices",
		}
	}

	choice := r.Choices[0]
	text := contentText(choice.Message.Content)
	if text == "" {
		return provider.Completion{}, &provider.UpstreamError{
			Kind:   provider.KindEmptyResponse,
			Detail: "response did not include message content",
		}
	}

	model := r.Model
	if model == "" {
		model = requestedModel
	}

	completion := provider.Completion{
		ID:           r.ID,
		Text:         text,
		Model:        model,
		FinishReason: choice.FinishReason,
	}
	if r.Usage != nil {
		completion.Usage = *r.Usage
	}
	return completion, nil
}

// contentText accepts either a plain string or an array of content parts.
func contentText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				if txt, ok := m["text"].(string); ok && txt != "" {
					parts = append(parts, txt)
				}
			}
		}
		return strings.Join(parts, "\n")
	default:
		return ""
	}
}

type apiErrorResponse struct {
	Error apiErrorObject `json:"error"`
}

type apiErrorObject struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

func (o apiErrorObject) status() int {
	switch v := o.Code.(type) {
	case float64:
		return int(v)
	case string:
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return 0
}

func parseAPIError(resp *http.Response) error {
	upErr := &provider.UpstreamError{
		Kind:   provider.KindHTTPStatus,
		Status: resp.StatusCode,
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		upErr.Err = fmt.Errorf("read error body: %w", err)
		return upErr
	}

	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		upErr.Detail = truncate(apiErr.Error.Message)
		return upErr
	}

	upErr.Detail = truncate(strings.TrimSpace(string(body)))
	return upErr
}

func decodeJSON(reader io.Reader, target any) error {
	decoder := json.NewDecoder(io.LimitReader(reader, maxResponseBytes))
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("decode provider response: %w", err)
	}
	return nil
}

func truncate(s string) string {
	if len(s) <= maxDetailBytes {
		return s
	}
	return s[:maxDetailBytes] + "..."
}
