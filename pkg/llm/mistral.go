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

// MistralEndpoint is Mistral's chat completions endpoint. The API follows
// the OpenAI chat schema, so the client is a thin wrapper over OpenAIClient
// with a different base URL.
const MistralEndpoint = "https://api.mistral.ai/v1/chat/completions"

// NewMistralClient creates a client for Mistral models.
func NewMistralClient(apiKey string, spec ModelSpec) *OpenAIClient {
	return NewOpenAIClient(OpenAIConfig{
		APIKey:       apiKey,
		Spec:         spec,
		Endpoint:     MistralEndpoint,
		ProviderName: "mistral",
	})
}
