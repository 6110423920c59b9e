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

import "fmt"

// Catalog is the model registry: display key to spec with pricing.
// Prices are USD per million tokens.
var Catalog = map[string]ModelSpec{
	// Anthropic
	"claude-opus-4-5": {
		Name: "Claude Opus 4.5", Provider: "anthropic", APIID: "claude-opus-4-5-20251101",
		InputCostPer1M: 5.0, OutputCostPer1M: 25.0, Tier: "flagship",
	},
	"claude-opus-4": {
		Name: "Claude Opus 4", Provider: "anthropic", APIID: "claude-opus-4-20250514",
		InputCostPer1M: 15.0, OutputCostPer1M: 75.0, Tier: "flagship",
	},
	"claude-sonnet-4-5": {
		Name: "Claude Sonnet 4.5", Provider: "anthropic", APIID: "claude-sonnet-4-5-20250929",
		InputCostPer1M: 3.0, OutputCostPer1M: 15.0, Tier: "workhorse",
	},
	"claude-sonnet-4": {
		Name: "Claude Sonnet 4", Provider: "anthropic", APIID: "claude-sonnet-4-20250514",
		InputCostPer1M: 3.0, OutputCostPer1M: 15.0, Tier: "workhorse",
	},
	"claude-3-5-haiku": {
		Name: "Claude 3.5 Haiku", Provider: "anthropic", APIID: "claude-3-5-haiku-20241022",
		InputCostPer1M: 0.80, OutputCostPer1M: 4.0, Tier: "budget",
	},

	// OpenAI
	"gpt-4o": {
		Name: "GPT-4o", Provider: "openai", APIID: "gpt-4o",
		InputCostPer1M: 2.5, OutputCostPer1M: 10.0, Tier: "workhorse",
	},
	"gpt-4o-mini": {
		Name: "GPT-4o Mini", Provider: "openai", APIID: "gpt-4o-mini",
		InputCostPer1M: 0.15, OutputCostPer1M: 0.60, Tier: "budget",
	},

	// Google
	"gemini-2.0-flash": {
		Name: "Gemini 2.0 Flash", Provider: "google", APIID: "gemini-2.0-flash",
		InputCostPer1M: 0.10, OutputCostPer1M: 0.40, Tier: "budget",
	},
	"gemini-2.5-flash": {
		Name: "Gemini 2.5 Flash", Provider: "google", APIID: "gemini-2.5-flash",
		InputCostPer1M: 0.15, OutputCostPer1M: 0.60, Tier: "budget",
	},
	"gemini-2.5-pro": {
		Name: "Gemini 2.5 Pro", Provider: "google", APIID: "gemini-2.5-pro",
		InputCostPer1M: 1.25, OutputCostPer1M: 10.0, Tier: "workhorse",
	},
	"gemini-3-pro": {
		Name: "Gemini 3 Pro", Provider: "google", APIID: "gemini-3-pro-preview",
		InputCostPer1M: 2.0, OutputCostPer1M: 12.0, Tier: "flagship",
	},

	// Mistral
	"mistral-large": {
		Name: "Mistral Large", Provider: "mistral", APIID: "mistral-large-latest",
		InputCostPer1M: 2.0, OutputCostPer1M: 6.0, Tier: "workhorse",
	},
	"mistral-large-2": {
		Name: "Mistral Large 2", Provider: "mistral", APIID: "mistral-large-2411",
		InputCostPer1M: 2.0, OutputCostPer1M: 6.0, Tier: "flagship",
	},

	// xAI
	"grok-4": {
		Name: "Grok 4", Provider: "xai", APIID: "grok-4-0709",
		InputCostPer1M: 2.00, OutputCostPer1M: 10.00, Tier: "flagship",
	},
	"grok-4-1-fast": {
		Name: "Grok 4.1 Fast", Provider: "xai", APIID: "grok-4-1-fast-reasoning",
		InputCostPer1M: 0.20, OutputCostPer1M: 0.50, Tier: "workhorse",
	},
	"grok-4-fast": {
		Name: "Grok 4 Fast", Provider: "xai", APIID: "grok-4-fast-reasoning",
		InputCostPer1M: 0.20, OutputCostPer1M: 0.50, Tier: "workhorse",
	},

	// DeepSeek
	"deepseek-chat": {
		Name: "DeepSeek V3", Provider: "deepseek", APIID: "deepseek-chat",
		InputCostPer1M: 0.56, OutputCostPer1M: 1.68, Tier: "budget",
	},
	"deepseek-reasoner": {
		Name: "DeepSeek R1", Provider: "deepseek", APIID: "deepseek-reasoner",
		InputCostPer1M: 0.56, OutputCostPer1M: 1.68, Tier: "flagship",
	},
}

// SpecByAPIID looks up a catalog entry by remote model identifier.
func SpecByAPIID(apiID string) (ModelSpec, bool) {
	for _, spec := range Catalog {
		if spec.APIID == apiID {
			return spec, true
		}
	}
	return ModelSpec{}, false
}

// Resolver maps a stored model row (remote API identifier) to a ready
// provider client.
type Resolver func(apiModelID string) (Provider, error)

// NewResolver returns a Resolver backed by the catalog and the given API
// keys.
func NewResolver(apiKeys map[string]string) Resolver {
	return func(apiModelID string) (Provider, error) {
		spec, ok := SpecByAPIID(apiModelID)
		if !ok {
			return nil, fmt.Errorf("no catalog entry for model %q", apiModelID)
		}
		return NewProvider(spec, apiKeys)
	}
}

// NewProvider builds the adapter for a model spec. apiKeys maps provider
// tags to keys.
func NewProvider(spec ModelSpec, apiKeys map[string]string) (Provider, error) {
	key, ok := apiKeys[spec.Provider]
	if !ok || key == "" {
		return nil, fmt.Errorf("no API key configured for provider %q", spec.Provider)
	}

	switch spec.Provider {
	case "anthropic":
		return NewAnthropicClient(AnthropicConfig{APIKey: key, Spec: spec}), nil
	case "openai":
		return NewOpenAIClient(OpenAIConfig{APIKey: key, Spec: spec}), nil
	case "xai":
		return NewXAIClient(key, spec), nil
	case "deepseek":
		return NewDeepSeekClient(key, spec), nil
	case "google":
		return NewGoogleClient(GoogleConfig{APIKey: key, Spec: spec}), nil
	case "mistral":
		return NewMistralClient(key, spec), nil
	default:
		return nil, fmt.Errorf("unknown provider: %q", spec.Provider)
	}
}
