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

// DefaultGoogleEndpoint is the Gemini generateContent endpoint template.
const DefaultGoogleEndpoint = "https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent?key=%s"

// debateSafetySettings lower Gemini's safety thresholds for the categories
// that debate content routinely brushes against. Harassment and hate speech
// are set to BLOCK_NONE; the remaining categories block only the highest
// band.
var debateSafetySettings = []googleSafetySetting{
	{Category: "HARM_CATEGORY_HARASSMENT", Threshold: "BLOCK_NONE"},
	{Category: "HARM_CATEGORY_HATE_SPEECH", Threshold: "BLOCK_NONE"},
	{Category: "HARM_CATEGORY_SEXUALLY_EXPLICIT", Threshold: "BLOCK_ONLY_HIGH"},
	{Category: "HARM_CATEGORY_DANGEROUS_CONTENT", Threshold: "BLOCK_ONLY_HIGH"},
}

// GoogleClient implements the Provider interface for Google's Gemini API.
type GoogleClient struct {
	apiKey      string
	spec        ModelSpec
	endpointFmt string
	httpClient  *http.Client
}

// GoogleConfig holds configuration for the Google client.
type GoogleConfig struct {
	APIKey      string
	Spec        ModelSpec
	EndpointFmt string // Default: DefaultGoogleEndpoint
	Timeout     time.Duration
}

// NewGoogleClient creates a new Gemini client.
func NewGoogleClient(config GoogleConfig) *GoogleClient {
	if config.EndpointFmt == "" {
		config.EndpointFmt = DefaultGoogleEndpoint
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultHTTPTimeout
	}
	return &GoogleClient{
		apiKey:      config.APIKey,
		spec:        config.Spec,
		endpointFmt: config.EndpointFmt,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Name returns the provider name.
func (c *GoogleClient) Name() string { return "google" }

// Spec returns the bound model spec.
func (c *GoogleClient) Spec() ModelSpec { return c.spec }

type googlePart struct {
	Text string `json:"text"`
}

type googleContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []googlePart `json:"parts"`
}

type googleSafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type googleRequest struct {
	SystemInstruction *googleContent        `json:"system_instruction,omitempty"`
	Contents          []googleContent       `json:"contents"`
	SafetySettings    []googleSafetySetting `json:"safetySettings,omitempty"`
}

type googleResponse struct {
	Candidates []struct {
		Content      googleContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

// Complete sends a conversation to Gemini and returns the response text.
func (c *GoogleClient) Complete(ctx context.Context, systemPrompt string, conversation []Message, maxTokens int) (string, error) {
	result, err := c.CompleteWithUsage(ctx, systemPrompt, conversation, maxTokens)
	if err != nil {
		return "", err
	}
	return result.Content, nil
}

// CompleteWithUsage sends a conversation to Gemini and returns the response
// with token usage, latency, and cost.
//
// maxTokens is accepted for interface compatibility but never forwarded:
// setting max_output_tokens has been observed to spuriously trigger
// finishReason=SAFETY on benign content. Gemini's defaults apply instead.
func (c *GoogleClient) CompleteWithUsage(ctx context.Context, systemPrompt string, conversation []Message, _ int) (*CompletionResult, error) {
	contents := make([]googleContent, 0, len(conversation))
	for _, msg := range conversation {
		role := "user"
		if msg.Role == "assistant" {
			role = "model"
		}
		contents = append(contents, googleContent{Role: role, Parts: []googlePart{{Text: msg.Content}}})
	}

	req := &googleRequest{
		Contents:       contents,
		SafetySettings: debateSafetySettings,
	}
	if systemPrompt != "" {
		req.SystemInstruction = &googleContent{Parts: []googlePart{{Text: systemPrompt}}}
	}

	return withRetry(ctx, c.spec.Name, func(ctx context.Context) (*CompletionResult, error) {
		start := time.Now()
		resp, err := c.callAPI(ctx, req)
		if err != nil {
			return nil, err
		}
		latency := int(time.Since(start).Milliseconds())

		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return nil, &ContentFilterError{
				Provider:  "google",
				ModelName: c.spec.Name,
				Message:   fmt.Sprintf("prompt blocked by safety filter (%s)", resp.PromptFeedback.BlockReason),
			}
		}
		if len(resp.Candidates) == 0 {
			return nil, fmt.Errorf("gemini returned no candidates")
		}
		candidate := resp.Candidates[0]
		if candidate.FinishReason == "SAFETY" {
			return nil, &ContentFilterError{
				Provider:  "google",
				ModelName: c.spec.Name,
				Message:   "content blocked by safety filter (finish_reason=SAFETY)",
			}
		}

		var text string
		for _, part := range candidate.Content.Parts {
			text += part.Text
		}

		return &CompletionResult{
			Content:      text,
			InputTokens:  resp.UsageMetadata.PromptTokenCount,
			OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
			LatencyMS:    latency,
			CostUSD:      c.spec.Cost(resp.UsageMetadata.PromptTokenCount, resp.UsageMetadata.CandidatesTokenCount),
		}, nil
	})
}

// callAPI makes the HTTP request to the Gemini API.
func (c *GoogleClient) callAPI(ctx context.Context, req *googleRequest) (*googleResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf(c.endpointFmt, c.spec.APIID, c.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

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
		return nil, &HTTPError{StatusCode: httpResp.StatusCode, Message: string(respBody)}
	}

	var resp googleResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &resp, nil
}

// Ensure GoogleClient implements the Provider interface.
var _ Provider = (*GoogleClient)(nil)
