// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultAnthropicEndpoint is the Anthropic Messages API endpoint.
	DefaultAnthropicEndpoint = "https://api.anthropic.com/v1/messages"
	// anthropicVersion is the required API version header value.
	anthropicVersion = "2023-06-01"
	// DefaultHTTPTimeout bounds a single HTTP round trip for debater turns.
	DefaultHTTPTimeout = 180 * time.Second
)

// AnthropicClient implements the Provider interface for Anthropic's
// Messages API.
type AnthropicClient struct {
	apiKey     string
	spec       ModelSpec
	endpoint   string
	httpClient *http.Client
}

// AnthropicConfig holds configuration for the Anthropic client.
type AnthropicConfig struct {
	APIKey   string
	Spec     ModelSpec
	Endpoint string // Default: https://api.anthropic.com/v1/messages
	Timeout  time.Duration
}

// NewAnthropicClient creates a new Anthropic client.
func NewAnthropicClient(config AnthropicConfig) *AnthropicClient {
	if config.Endpoint == "" {
		config.Endpoint = DefaultAnthropicEndpoint
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultHTTPTimeout
	}
	return &AnthropicClient{
		apiKey:   config.APIKey,
		spec:     config.Spec,
		endpoint: config.Endpoint,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Name returns the provider name.
func (c *AnthropicClient) Name() string { return "anthropic" }

// Spec returns the bound model spec.
func (c *AnthropicClient) Spec() ModelSpec { return c.spec }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	MaxTokens int                `json:"max_tokens"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Complete sends a conversation to Claude and returns the response text.
func (c *AnthropicClient) Complete(ctx context.Context, systemPrompt string, conversation []Message, maxTokens int) (string, error) {
	result, err := c.CompleteWithUsage(ctx, systemPrompt, conversation, maxTokens)
	if err != nil {
		return "", err
	}
	return result.Content, nil
}

// CompleteWithUsage sends a conversation to Claude and returns the response
// with token usage, latency, and cost.
func (c *AnthropicClient) CompleteWithUsage(ctx context.Context, systemPrompt string, conversation []Message, maxTokens int) (*CompletionResult, error) {
	messages := make([]anthropicMessage, 0, len(conversation))
	for _, msg := range conversation {
		messages = append(messages, anthropicMessage{Role: msg.Role, Content: msg.Content})
	}
	req := &anthropicRequest{
		Model:     c.spec.APIID,
		System:    systemPrompt,
		Messages:  messages,
		MaxTokens: maxTokens,
	}

	return withRetry(ctx, c.spec.Name, func(ctx context.Context) (*CompletionResult, error) {
		start := time.Now()
		resp, err := c.callAPI(ctx, req)
		if err != nil {
			return nil, err
		}
		latency := int(time.Since(start).Milliseconds())

		var text string
		for _, block := range resp.Content {
			if block.Type == "text" {
				text += block.Text
			}
		}

		return &CompletionResult{
			Content:      text,
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
			LatencyMS:    latency,
			CostUSD:      c.spec.Cost(resp.Usage.InputTokens, resp.Usage.OutputTokens),
		}, nil
	})
}

// callAPI makes the HTTP request to Anthropic's API.
func (c *AnthropicClient) callAPI(ctx context.Context, req *anthropicRequest) (*anthropicResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		if looksLikeContentFilter(string(respBody)) {
			return nil, &ContentFilterError{
				Provider:  "anthropic",
				ModelName: c.spec.Name,
				Message:   fmt.Sprintf("content blocked by safety filter: %s", string(respBody)),
			}
		}
		return nil, &HTTPError{StatusCode: httpResp.StatusCode, Message: string(respBody)}
	}

	var resp anthropicResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &resp, nil
}

// Ensure AnthropicClient implements the Provider interface.
var _ Provider = (*AnthropicClient)(nil)
