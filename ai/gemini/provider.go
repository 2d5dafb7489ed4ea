// Copyright 2025 Poiesic Systems
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


// Package gemini provides the embedding service backed by Google Gemini models.
package gemini

import (
	"context"
	"log/slog"

	"github.com/google/generative-ai-go/genai"
	"github.com/poiesic/sheetvec/ai"
	"github.com/poiesic/sheetvec/ratelimit"
	"google.golang.org/api/option"
)

// Provider implements ai.AIProvider using the Gemini API.
type Provider struct {
	config   *ai.Config
	client   *genai.Client
	embedder *Embedder
	logger   *slog.Logger
}

// NewProvider creates a Gemini-backed provider. The config must carry an APIKey.
//
// Returns ai.AIProvider interface to enforce abstraction.
func NewProvider(ctx context.Context, config *ai.Config, limiter *ratelimit.Limiter) (ai.AIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if limiter == nil {
		return nil, ai.ErrLimiterRequired
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(config.APIKey))
	if err != nil {
		return nil, err
	}

	embedder, err := newEmbedder(&modelBatcher{model: client.EmbeddingModel(config.EmbeddingModel)}, config, limiter)
	if err != nil {
		client.Close()
		return nil, err
	}

	return &Provider{
		config:   config,
		client:   client,
		embedder: embedder,
		logger:   slog.Default().With("component", "gemini-provider"),
	}, nil
}

// Embedder returns the text embedding service.
func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

// Dimensions returns the configured vector size.
func (p *Provider) Dimensions() int {
	return p.config.Dimensions
}

// Close releases the underlying API client.
func (p *Provider) Close() error {
	p.logger.Debug("closing Gemini provider")
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}
