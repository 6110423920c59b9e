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
// Package llm provides a uniform adapter contract over heterogeneous remote
// LLM chat APIs, with shared retry, error classification, and per-model
// pricing.
package llm

import (
	"context"
)

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// CompletionResult is the outcome of a completion call, including usage
// telemetry. CostUSD is computed from the model's price table entry.
type CompletionResult struct {
	Content      string
	InputTokens  int
	OutputTokens int
	LatencyMS    int
	CostUSD      float64
}

// ModelSpec describes one remote model: identity, pricing, and tier.
// Adding a model is a data change in the catalog, not a code change.
type ModelSpec struct {
	Name            string
	Provider        string
	APIID           string
	InputCostPer1M  float64
	OutputCostPer1M float64
	Tier            string // "flagship", "workhorse", "budget"
}

// Cost returns the USD cost of a call under this model's pricing.
func (m ModelSpec) Cost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)/1_000_000*m.InputCostPer1M +
		float64(outputTokens)/1_000_000*m.OutputCostPer1M
}

// Provider is the capability a remote LLM endpoint exposes to the engine.
// Complete returns only the text; CompleteWithUsage additionally returns
// token counts, latency, and cost.
type Provider interface {
	// Name returns the provider tag ("anthropic", "openai", ...).
	Name() string
	// Spec returns the model this provider instance is bound to.
	Spec() ModelSpec
	Complete(ctx context.Context, systemPrompt string, conversation []Message, maxTokens int) (string, error)
	CompleteWithUsage(ctx context.Context, systemPrompt string, conversation []Message, maxTokens int) (*CompletionResult, error)
}
