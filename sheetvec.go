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


// Package sheetvec turns spreadsheet exports into a searchable vector index.
//
// A Service wires the source fetcher, document builder, embedding provider,
// vector index and run log together:
//
//	cfg, err := sheetvec.ConfigFromEnv()
//	svc, err := sheetvec.NewService(ctx, cfg)
//	defer svc.Close()
//	result, err := svc.Pipeline().Ingest(ctx, ingestion.IngestRequest{URL: url})
package sheetvec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/poiesic/sheetvec/ai"
	"github.com/poiesic/sheetvec/ai/gemini"
	"github.com/poiesic/sheetvec/ai/openai"
	"github.com/poiesic/sheetvec/document"
	"github.com/poiesic/sheetvec/ingestion"
	"github.com/poiesic/sheetvec/ratelimit"
	"github.com/poiesic/sheetvec/reembed"
	"github.com/poiesic/sheetvec/search"
	"github.com/poiesic/sheetvec/server"
	"github.com/poiesic/sheetvec/source"
	"github.com/poiesic/sheetvec/storage"
	"github.com/poiesic/sheetvec/storage/badger"
	"github.com/poiesic/sheetvec/storage/pgvector"
)

// ErrConfigRequired is returned by NewService when no configuration is given.
var ErrConfigRequired = errors.New("config required")

// Service holds one wired set of components.
type Service struct {
	config    *Config
	provider  ai.AIProvider
	index     storage.VectorIndex
	runs      storage.RunRepository
	backend   *badger.Backend
	fetcher   *source.Fetcher
	pipeline  *ingestion.Pipeline
	retriever *search.Retriever
	logger    *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	provider ai.AIProvider
	index    storage.VectorIndex
	runs     storage.RunRepository
	progress ingestion.ProgressFunc
	logger   *slog.Logger
}

// WithProvider uses provider instead of building one from the AI config.
// The service closes it.
func WithProvider(provider ai.AIProvider) ServiceOption {
	return func(o *serviceOptions) {
		o.provider = provider
	}
}

// WithIndex uses an already opened index and run log. The service closes the index.
func WithIndex(index storage.VectorIndex, runs storage.RunRepository) ServiceOption {
	return func(o *serviceOptions) {
		o.index = index
		o.runs = runs
	}
}

// WithProgress reports embedding and upsert progress of every ingestion.
func WithProgress(fn ingestion.ProgressFunc) ServiceOption {
	return func(o *serviceOptions) {
		o.progress = fn
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(o *serviceOptions) {
		o.logger = logger
	}
}

// NewService opens the index, builds the embedding provider and wires the
// ingestion pipeline and context retriever.
func NewService(ctx context.Context, cfg *Config, opts ...ServiceOption) (*Service, error) {
	if cfg == nil {
		return nil, ErrConfigRequired
	}
	options := &serviceOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Service{
		config: cfg,
		logger: options.logger.With("component", "sheetvec"),
	}

	var err error
	if s.provider = options.provider; s.provider == nil {
		if s.provider, err = newProvider(ctx, cfg.AI); err != nil {
			return nil, err
		}
	}

	if options.index != nil {
		s.index, s.runs = options.index, options.runs
	} else if err = s.openIndex(ctx); err != nil {
		s.Close()
		return nil, err
	}

	if err = s.wire(ctx, options); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func newProvider(ctx context.Context, cfg *ai.Config) (ai.AIProvider, error) {
	cfg.Normalize()
	limiter := ratelimit.New(cfg.MinSpacing)
	switch cfg.Provider {
	case ai.ProviderGemini:
		return gemini.NewProvider(ctx, cfg, limiter)
	default:
		return openai.NewProvider(cfg, limiter)
	}
}

func (s *Service) openIndex(ctx context.Context) error {
	switch s.config.IndexBackend {
	case IndexPgvector:
		opts := []pgvector.Option{pgvector.WithLogger(s.logger)}
		if s.config.MaxBatchSize > 0 {
			opts = append(opts, pgvector.WithMaxBatchSize(s.config.MaxBatchSize))
		}
		idx, err := pgvector.Open(ctx, s.config.DatabaseURL, opts...)
		if err != nil {
			return fmt.Errorf("open pgvector index: %w", err)
		}
		s.index, s.runs = idx, idx
	default:
		backend, err := badger.OpenBackend(s.config.DBPath, false)
		if err != nil {
			return fmt.Errorf("open badger index: %w", err)
		}
		s.backend = backend

		opts := []badger.IndexOption{badger.WithLogger(s.logger)}
		if s.config.MaxBatchSize > 0 {
			opts = append(opts, badger.WithMaxBatchSize(s.config.MaxBatchSize))
		}
		idx, err := badger.NewIndex(backend, opts...)
		if err != nil {
			return err
		}
		s.index, s.runs = idx, badger.NewRunRepository(backend)
	}
	return nil
}

func (s *Service) wire(ctx context.Context, options *serviceOptions) error {
	cfg := s.config

	fetcherOpts := []source.Option{source.WithLogger(s.logger)}
	if cfg.MaxRecords > 0 {
		fetcherOpts = append(fetcherOpts, source.WithMaxRecords(cfg.MaxRecords))
	}
	if cfg.S3 != nil {
		opener, err := source.NewS3OpenerFromConfig(ctx, *cfg.S3)
		if err != nil {
			return fmt.Errorf("configure s3 source: %w", err)
		}
		fetcherOpts = append(fetcherOpts, source.WithOpener("s3", opener))
	}
	fetcher, err := source.NewFetcher(fetcherOpts...)
	if err != nil {
		return err
	}
	s.fetcher = fetcher

	builder, err := document.NewBuilder(
		document.WithStrategy(cfg.DocumentStrategy),
		document.WithCopyFields(cfg.CopyFields...),
		document.WithLogger(s.logger),
	)
	if err != nil {
		return err
	}

	pipelineOpts := []ingestion.Option{
		ingestion.WithLogger(s.logger),
		ingestion.WithBuilder(builder),
		ingestion.WithBatchSize(cfg.BatchSize),
		ingestion.WithNamespace(cfg.Namespace),
		ingestion.WithUpserterOptions(
			ingestion.WithWriteConcurrency(cfg.WriteConcurrency),
			ingestion.WithWriteRetry(cfg.WriteAttempts, cfg.WriteRetryDelay),
		),
		ingestion.WithProgress(options.progress),
	}
	if s.runs != nil {
		pipelineOpts = append(pipelineOpts, ingestion.WithRunRepository(s.runs))
	}
	if cfg.PoolSize > 0 {
		pipelineOpts = append(pipelineOpts, ingestion.WithPoolSize(cfg.PoolSize))
	}
	s.pipeline, err = ingestion.NewPipeline(fetcher, s.index, s.provider, pipelineOpts...)
	if err != nil {
		return err
	}

	s.retriever, err = search.NewRetriever(s.index, s.provider,
		search.WithLogger(s.logger),
		search.WithNamespace(cfg.Namespace),
		search.WithTopK(cfg.TopK),
		search.WithMinScore(cfg.MinScore),
		search.WithMaxContextLength(cfg.MaxContextLength),
	)
	return err
}

// Config returns the service configuration.
func (s *Service) Config() *Config {
	return s.config
}

func (s *Service) Index() storage.VectorIndex {
	return s.index
}

func (s *Service) Runs() storage.RunRepository {
	return s.runs
}

func (s *Service) Provider() ai.AIProvider {
	return s.provider
}

func (s *Service) Fetcher() *source.Fetcher {
	return s.fetcher
}

func (s *Service) Pipeline() *ingestion.Pipeline {
	return s.pipeline
}

func (s *Service) Retriever() *search.Retriever {
	return s.retriever
}

// NewServer builds the HTTP surface over the service's pipeline and retriever.
func (s *Service) NewServer() (*server.Server, error) {
	opts := []server.Option{server.WithLogger(s.logger)}
	if s.runs != nil {
		opts = append(opts, server.WithRunRepository(s.runs))
	}
	return server.NewServer(s.config.Server, s.pipeline, s.retriever, opts...)
}

// NewReembedder builds a reembedder over the service's index and provider.
func (s *Service) NewReembedder(cfg *reembed.Config, progress io.Writer) (*reembed.Reembedder, error) {
	return reembed.NewReembedder(s.index, s.provider, cfg, progress)
}

// Close releases every component. It is safe on a partially built service.
func (s *Service) Close() error {
	var errs []error
	if s.pipeline != nil {
		s.pipeline.Release()
	}
	if s.provider != nil {
		if err := s.provider.Close(); err != nil {
			s.logger.Error("error closing AI provider", "err", err)
			errs = append(errs, err)
		}
	}
	if s.index != nil {
		if err := s.index.Close(); err != nil {
			s.logger.Error("error closing vector index", "err", err)
			errs = append(errs, err)
		}
	}
	if s.backend != nil {
		if err := s.backend.Close(); err != nil {
			s.logger.Error("error closing backend storage", "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
