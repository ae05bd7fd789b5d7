// Copyright 2026 Keepsake Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package ai provides abstractions for the model services keepsake
// depends on.
//
// Two capabilities are defined: text embedding (Embedder) and
// conversation summarization (Summarizer). Both are pure model
// invocation boundaries — `text in, result out` — so the rest of the
// system never depends on a specific backend.
//
// Implementation packages:
//
//   - ai/openai: production implementation for any OpenAI-compatible
//     endpoint (Ollama, LocalAI, vLLM, api.openai.com)
//   - ai/mock: deterministic test doubles requiring no external service
//
// The GuardedEmbedder wrapper enforces the deployment's fixed embedding
// dimension and short-circuits degenerate input: embedding an empty or
// near-empty string returns the zero vector without invoking the
// backend, so the same text always yields the same vector and callers
// can rely on the dimension being constant.
package ai
