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
	// DefaultOpenAIEndpoint is the OpenAI chat completions endpoint.
	DefaultOpenAIEndpoint = "https://api.openai.com/v1/chat/completions"
	// XAIEndpoint serves Grok models over the OpenAI-compatible schema.
	XAIEndpoint = "https://api.x.ai/v1/chat/completions"
	// DeepSeekEndpoint serves DeepSeek models over the OpenAI-compatible schema.
	DeepSeekEndpoint = "https://api.deepseek.com/v1/chat/completions"
)

// OpenAIClient implements the Provider interface for OpenAI's chat
// completions API and for any endpoint speaking the same schema.
type OpenAIClient struct {
	apiKey       string
	spec         ModelSpec
	endpoint     string
	providerName string
	httpClient   *http.Client
}

// OpenAIConfig holds configuration for the OpenAI client.
type OpenAIConfig struct {
	APIKey       string
	Spec         ModelSpec
	Endpoint     string // Default: https://api.openai.com/v1/chat/completions
	ProviderName string // Default: "openai"; overridden by compatible endpoints
	Timeout      time.Duration
}

// NewOpenAIClient creates a new OpenAI client.
func NewOpenAIClient(config OpenAIConfig) *OpenAIClient {
	if config.Endpoint == "" {
		config.Endpoint = DefaultOpenAIEndpoint
	}
	if config.ProviderName == "" {
		config.ProviderName = "openai"
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultHTTPTimeout
	}
	return &OpenAIClient{
		apiKey:       config.APIKey,
		spec:         config.Spec,
		endpoint:     config.Endpoint,
		providerName: config.ProviderName,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// NewXAIClient creates a client for xAI's Grok models, which speak the
// OpenAI chat schema at a different base URL.
func NewXAIClient(apiKey string, spec ModelSpec) *OpenAIClient {
	return NewOpenAIClient(OpenAIConfig{
		APIKey:       apiKey,
		Spec:         spec,
		Endpoint:     XAIEndpoint,
		ProviderName: "xai",
	})
}

// NewDeepSeekClient creates a client for DeepSeek models, which speak the
// OpenAI chat schema at a different base URL.
func NewDeepSeekClient(apiKey string, spec ModelSpec) *OpenAIClient {
	return NewOpenAIClient(OpenAIConfig{
		APIKey:       apiKey,
		Spec:         spec,
		Endpoint:     DeepSeekEndpoint,
		ProviderName: "deepseek",
	})
}

// Name returns the provider name.
func (c *OpenAIClient) Name() string { return c.providerName }

// Spec returns the bound model spec.
func (c *OpenAIClient) Spec() ModelSpec { return c.spec }

type openaiRequest struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens,omitempty"`
}

type openaiResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Complete sends a conversation and returns the response text.
func (c *OpenAIClient) Complete(ctx context.Context, systemPrompt string, conversation []Message, maxTokens int) (string, error) {
	result, err := c.CompleteWithUsage(ctx, systemPrompt, conversation, maxTokens)
	if err != nil {
		return "", err
	}
	return result.Content, nil
}

// CompleteWithUsage sends a conversation and returns the response with
// token usage, latency, and cost. The system prompt is prepended as a
// system-role message per the chat completions schema.
func (c *OpenAIClient) CompleteWithUsage(ctx context.Context, systemPrompt string, conversation []Message, maxTokens int) (*CompletionResult, error) {
	messages := make([]Message, 0, len(conversation)+1)
	messages = append(messages, Message{Role: "system", Content: systemPrompt})
	messages = append(messages, conversation...)

	req := &openaiRequest{
		Model:     c.spec.APIID,
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

		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("%s returned no choices", c.providerName)
		}
		choice := resp.Choices[0]
		if choice.FinishReason == "content_filter" {
			return nil, &ContentFilterError{
				Provider:  c.providerName,
				ModelName: c.spec.Name,
				Message:   "content blocked by safety filter (finish_reason=content_filter)",
			}
		}

		return &CompletionResult{
			Content:      choice.Message.Content,
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			LatencyMS:    latency,
			CostUSD:      c.spec.Cost(resp.Usage.PromptTokens, resp.Usage.CompletionTokens),
		}, nil
	})
}

// callAPI makes the HTTP request to the chat completions endpoint.
func (c *OpenAIClient) callAPI(ctx context.Context, req *openaiRequest) (*openaiResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

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
				Provider:  c.providerName,
				ModelName: c.spec.Name,
				Message:   fmt.Sprintf("content blocked by safety filter: %s", string(respBody)),
			}
		}
		return nil, &HTTPError{StatusCode: httpResp.StatusCode, Message: string(respBody)}
	}

	var resp openaiResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &resp, nil
}

// Ensure OpenAIClient implements the Provider interface.
var _ Provider = (*OpenAIClient)(nil)
