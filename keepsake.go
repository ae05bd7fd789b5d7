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


// Package keepsake assembles the chat-memory system: storage, model
// services, ingestion, and retrieval behind one Database handle.
package keepsake

import (
	"log/slog"

	"github.com/keepsake-ai/keepsake/ai"
	"github.com/keepsake-ai/keepsake/ai/openai"
	"github.com/keepsake-ai/keepsake/ingestion"
	"github.com/keepsake-ai/keepsake/search"
	"github.com/keepsake-ai/keepsake/storage"
	"github.com/keepsake-ai/keepsake/storage/badger"
)

// Database bundles the storage backend, repositories, and model
// services of one keepsake deployment.
type Database struct {
	backend     *badger.Backend
	messageRepo storage.MessageRepository
	vectorRepo  storage.VectorRepository
	jobRepo     storage.JobRepository
	provider    ai.Provider
	logger      *slog.Logger
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	aiConfig *ai.Config
	provider ai.Provider
	inMemory bool
}

// WithAIConfig sets the model service configuration.
// Default is ai.DefaultConfig().
func WithAIConfig(config *ai.Config) DatabaseOption {
	return func(o *databaseOptions) {
		if config != nil {
			o.aiConfig = config
		}
	}
}

// WithProvider injects a pre-built AI provider instead of constructing
// the OpenAI-compatible one. Used for tests and offline tooling.
func WithProvider(provider ai.Provider) DatabaseOption {
	return func(o *databaseOptions) {
		o.provider = provider
	}
}

// WithInMemoryStorage keeps all data in memory; nothing touches disk.
func WithInMemoryStorage() DatabaseOption {
	return func(o *databaseOptions) {
		o.inMemory = true
	}
}

// NewDatabase opens (or creates) a keepsake database at filePath.
// The embedder is wrapped with the deployment's dimension guard, so
// everything downstream sees unit vectors of one fixed dimension.
func NewDatabase(filePath string, opts ...DatabaseOption) (*Database, error) {
	options := &databaseOptions{
		aiConfig: ai.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(options)
	}
	if err := options.aiConfig.Validate(); err != nil {
		return nil, err
	}

	backend, err := badger.OpenBackend(filePath, options.inMemory)
	if err != nil {
		return nil, err
	}

	messageRepo, err := badger.NewMessageRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	vectorRepo, err := badger.NewVectorRepository(backend, options.aiConfig.Dimension)
	if err != nil {
		messageRepo.Close()
		backend.Close()
		return nil, err
	}

	jobRepo := badger.NewJobRepository(backend)

	provider := options.provider
	if provider == nil {
		provider, err = openai.NewProvider(options.aiConfig)
		if err != nil {
			vectorRepo.Close()
			messageRepo.Close()
			backend.Close()
			return nil, err
		}
	}

	guarded, err := ai.NewGuardedEmbedder(provider.Embedder(), options.aiConfig.Dimension)
	if err != nil {
		provider.Close()
		vectorRepo.Close()
		messageRepo.Close()
		backend.Close()
		return nil, err
	}

	return &Database{
		backend:     backend,
		messageRepo: messageRepo,
		vectorRepo:  vectorRepo,
		jobRepo:     jobRepo,
		provider:    &guardedProvider{inner: provider, embedder: guarded},
		logger:      slog.Default(),
	}, nil
}

// Close releases the model services, repositories, and backend, in
// that order.
func (db *Database) Close() error {
	if err := db.provider.Close(); err != nil {
		db.logger.Error("error closing AI provider", "err", err)
	}

	if err := db.vectorRepo.Close(); err != nil {
		db.logger.Error("error closing vector repository", "err", err)
		return err
	}
	if err := db.messageRepo.Close(); err != nil {
		db.logger.Error("error closing message repository", "err", err)
		return err
	}
	if err := db.jobRepo.Close(); err != nil {
		db.logger.Error("error closing job repository", "err", err)
		return err
	}

	if err := db.backend.Close(); err != nil {
		db.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}

// MessageRepository returns the canonical message store.
func (db *Database) MessageRepository() storage.MessageRepository {
	return db.messageRepo
}

// VectorRepository returns the embedding store.
func (db *Database) VectorRepository() storage.VectorRepository {
	return db.vectorRepo
}

// JobRepository returns the ingestion job store.
func (db *Database) JobRepository() storage.JobRepository {
	return db.jobRepo
}

// Provider returns the model services, with the guarded embedder.
func (db *Database) Provider() ai.Provider {
	return db.provider
}

// NewIngestionManager creates an ingestion manager over this database.
func (db *Database) NewIngestionManager(opts ...ingestion.Option) (*ingestion.Manager, error) {
	return ingestion.NewManager(db.messageRepo, db.vectorRepo, db.jobRepo, db.provider, opts...)
}

// NewRetriever creates a retriever over this database.
func (db *Database) NewRetriever(opts ...search.Option) (*search.Retriever, error) {
	return search.NewRetriever(db.vectorRepo, db.provider, opts...)
}

// guardedProvider swaps the provider's embedder for the guarded one.
type guardedProvider struct {
	inner    ai.Provider
	embedder ai.Embedder
}

func (p *guardedProvider) Embedder() ai.Embedder {
	return p.embedder
}

func (p *guardedProvider) Summarizer() ai.Summarizer {
	return p.inner.Summarizer()
}

func (p *guardedProvider) Close() error {
	return p.inner.Close()
}
