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


// Package pgvector implements the storage interfaces on PostgreSQL with the
// pgvector extension. Similarity is ranked with the cosine distance operator.
package pgvector

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pgvector/pgvector-go"
	"github.com/poiesic/sheetvec/core"
	"github.com/poiesic/sheetvec/storage"
)

//go:embed schema.sql
var schema string

// DefaultMaxBatchSize is the largest batch UpsertVectors accepts by default.
const DefaultMaxBatchSize = 100

// Index implements storage.VectorIndex and storage.RunRepository on Postgres.
type Index struct {
	db           *sql.DB
	maxBatchSize int
	autoCreate   bool
	logger       *slog.Logger
}

var (
	_ storage.VectorIndex   = (*Index)(nil)
	_ storage.RunRepository = (*Index)(nil)
)

// Option configures an Index.
type Option func(*Index) error

// WithMaxBatchSize sets the largest accepted batch.
func WithMaxBatchSize(n int) Option {
	return func(i *Index) error {
		if n < 1 {
			return fmt.Errorf("max batch size must be positive, got %d", n)
		}
		i.maxBatchSize = n
		return nil
	}
}

// WithAutoCreate controls whether Ensure creates absent namespaces.
func WithAutoCreate(enabled bool) Option {
	return func(i *Index) error {
		i.autoCreate = enabled
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Index) error {
		if logger == nil {
			logger = slog.Default()
		}
		i.logger = logger
		return nil
	}
}

// Open connects to databaseURL, applies the schema and returns the index.
func Open(ctx context.Context, databaseURL string, opts ...Option) (*Index, error) {
	if databaseURL == "" {
		return nil, errors.New("database url is empty")
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	idx, err := New(db, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := idx.Migrate(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return idx, nil
}

// New wraps an open database handle. The schema is not applied.
func New(db *sql.DB, opts ...Option) (*Index, error) {
	if db == nil {
		return nil, errors.New("db required")
	}
	idx := &Index{
		db:           db,
		maxBatchSize: DefaultMaxBatchSize,
		autoCreate:   true,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(idx); err != nil {
			return nil, err
		}
	}
	idx.logger = idx.logger.With("component", "pgvector-index")
	return idx, nil
}

// Migrate creates the extension and tables if they are missing.
func (i *Index) Migrate(ctx context.Context) error {
	if _, err := i.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	return nil
}

// Close closes the database handle.
func (i *Index) Close() error {
	if i.db != nil {
		return i.db.Close()
	}
	return nil
}

// MaxBatchSize returns the largest batch UpsertVectors accepts.
func (i *Index) MaxBatchSize() int {
	return i.maxBatchSize
}

// Ensure creates namespace if needed and checks its dimension.
func (i *Index) Ensure(ctx context.Context, namespace string, dimension int) (*core.NamespaceInfo, error) {
	if dimension <= 0 {
		return nil, &core.IndexConfigurationError{
			Namespace: namespace,
			Expected:  dimension,
			Reason:    fmt.Sprintf("dimension must be positive, got %d", dimension),
		}
	}

	info, err := i.Describe(ctx, namespace)
	if err != nil && !errors.Is(err, storage.ErrNamespaceNotFound) {
		return nil, err
	}
	if info == nil {
		if !i.autoCreate {
			return nil, &core.IndexConfigurationError{
				Namespace: namespace,
				Expected:  dimension,
				Reason:    "namespace does not exist and auto-create is disabled",
			}
		}
		const q = `
			INSERT INTO sheetvec_namespaces (name, dimension)
			VALUES ($1, $2)
			ON CONFLICT (name) DO NOTHING
		`
		if _, err := i.db.ExecContext(ctx, q, namespace, dimension); err != nil {
			return nil, err
		}
		i.logger.Info("created namespace", "namespace", namespace, "dimension", dimension)

		if info, err = i.Describe(ctx, namespace); err != nil {
			return nil, err
		}
	}

	if info.Dimension != dimension {
		return nil, &core.IndexConfigurationError{
			Namespace: namespace,
			Expected:  dimension,
			Actual:    info.Dimension,
		}
	}
	return info, nil
}

// UpsertVectors writes vectors in one transaction.
func (i *Index) UpsertVectors(ctx context.Context, namespace string, vectors []core.Vector) error {
	if len(vectors) > i.maxBatchSize {
		return fmt.Errorf("%w: %d vectors, maximum is %d", storage.ErrBatchTooLarge, len(vectors), i.maxBatchSize)
	}
	if len(vectors) == 0 {
		return nil
	}

	tx, err := i.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	var dimension int
	err = tx.QueryRowContext(ctx, `SELECT dimension FROM sheetvec_namespaces WHERE name = $1`, namespace).Scan(&dimension)
	if errors.Is(err, sql.ErrNoRows) {
		_ = tx.Rollback()
		return &core.IndexConfigurationError{Namespace: namespace, Reason: "namespace does not exist"}
	}
	if err != nil {
		_ = tx.Rollback()
		return err
	}

	const q = `
		INSERT INTO sheetvec_vectors (namespace, id, embedding, metadata, updated_at)
		VALUES ($1, $2, $3, $4::jsonb, now())
		ON CONFLICT (namespace, id) DO UPDATE
		SET embedding = EXCLUDED.embedding, metadata = EXCLUDED.metadata, updated_at = now()
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for idx := range vectors {
		v := &vectors[idx]
		if err := core.ValidateVector(v, dimension); err != nil {
			var cfgErr *core.IndexConfigurationError
			if errors.As(err, &cfgErr) {
				cfgErr.Namespace = namespace
			}
			_ = tx.Rollback()
			return err
		}
		md, err := storage.MarshalMetadata(v.Metadata)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := stmt.ExecContext(ctx, namespace, v.Id, pgvector.NewVector(v.Values), string(md)); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Query ranks the namespace by cosine distance.
func (i *Index) Query(ctx context.Context, namespace string, vector []float32, topK int, minScore float32) ([]core.Match, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive", storage.ErrInvalidQuery)
	}
	info, err := i.Describe(ctx, namespace)
	if err != nil {
		return nil, err
	}
	if len(vector) != info.Dimension {
		return nil, &core.IndexConfigurationError{Namespace: namespace, Expected: len(vector), Actual: info.Dimension}
	}

	const q = `
		SELECT id, embedding, metadata, 1 - (embedding <=> $2) AS score
		FROM sheetvec_vectors
		WHERE namespace = $1 AND 1 - (embedding <=> $2) >= $3
		ORDER BY embedding <=> $2, id
		LIMIT $4
	`
	rows, err := i.db.QueryContext(ctx, q, namespace, pgvector.NewVector(vector), minScore, topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Match
	for rows.Next() {
		var (
			m     core.Match
			emb   pgvector.Vector
			md    []byte
			score float64
		)
		if err := rows.Scan(&m.Vector.Id, &emb, &md, &score); err != nil {
			return nil, err
		}
		m.Vector.Values = emb.Slice()
		if m.Vector.Metadata, err = storage.UnmarshalMetadata(md); err != nil {
			return nil, err
		}
		m.Score = float32(score)
		out = append(out, m)
	}
	return out, rows.Err()
}

// Describe returns the namespace metadata with its vector count.
func (i *Index) Describe(ctx context.Context, namespace string) (*core.NamespaceInfo, error) {
	const q = `
		SELECT n.name, n.dimension, n.created_at,
		       (SELECT count(*) FROM sheetvec_vectors v WHERE v.namespace = n.name)
		FROM sheetvec_namespaces n
		WHERE n.name = $1
	`
	var info core.NamespaceInfo
	err := i.db.QueryRowContext(ctx, q, namespace).Scan(&info.Namespace, &info.Dimension, &info.CreatedAt, &info.VectorCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", storage.ErrNamespaceNotFound, namespace)
	}
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// Namespaces lists every namespace with its vector count.
func (i *Index) Namespaces(ctx context.Context) ([]core.NamespaceInfo, error) {
	const q = `
		SELECT n.name, n.dimension, n.created_at,
		       (SELECT count(*) FROM sheetvec_vectors v WHERE v.namespace = n.name)
		FROM sheetvec_namespaces n
		ORDER BY n.name
	`
	rows, err := i.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.NamespaceInfo
	for rows.Next() {
		var info core.NamespaceInfo
		if err := rows.Scan(&info.Namespace, &info.Dimension, &info.CreatedAt, &info.VectorCount); err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// Scan pages through a namespace in id order.
func (i *Index) Scan(ctx context.Context, namespace, afterID string, limit int) ([]core.Vector, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", storage.ErrInvalidQuery)
	}
	if _, err := i.Describe(ctx, namespace); err != nil {
		return nil, err
	}

	const q = `
		SELECT id, embedding, metadata
		FROM sheetvec_vectors
		WHERE namespace = $1 AND id > $2
		ORDER BY id
		LIMIT $3
	`
	rows, err := i.db.QueryContext(ctx, q, namespace, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Vector
	for rows.Next() {
		var (
			v   core.Vector
			emb pgvector.Vector
			md  []byte
		)
		if err := rows.Scan(&v.Id, &emb, &md); err != nil {
			return nil, err
		}
		v.Values = emb.Slice()
		if v.Metadata, err = storage.UnmarshalMetadata(md); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
