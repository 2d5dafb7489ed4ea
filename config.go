package sheetvec

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/poiesic/sheetvec/ai"
	"github.com/poiesic/sheetvec/core"
	"github.com/poiesic/sheetvec/server"
	"github.com/poiesic/sheetvec/source"
)

// Supported vector index backends.
const (
	IndexBadger   = "badger"
	IndexPgvector = "pgvector"
)

// Config aggregates every setting a Service needs.
type Config struct {
	// AI configures the embedding provider.
	AI *ai.Config

	// IndexBackend selects "badger" (local directory) or "pgvector" (Postgres).
	// Default: badger
	IndexBackend string

	// DBPath is the badger directory.
	// Default: ./sheetvec-data
	DBPath string

	// DatabaseURL is the Postgres connection string for pgvector.
	DatabaseURL string

	// MaxBatchSize overrides the index's largest accepted batch when > 0.
	MaxBatchSize int

	// Namespace is used when a request names none.
	Namespace string

	// BatchSize is the number of vectors per index write.
	// Default: 10
	BatchSize int

	// WriteConcurrency bounds concurrent batch writes.
	// Default: 1
	WriteConcurrency int

	// WriteAttempts is the number of tries per batch write.
	// Default: 3
	WriteAttempts int

	// WriteRetryDelay is the base backoff between batch write attempts.
	// Default: 500ms
	WriteRetryDelay time.Duration

	// PoolSize is the number of embedding workers. Zero picks a default.
	PoolSize int

	// MaxRecords caps the records read when a request gives no limit. Zero keeps the fetcher default.
	MaxRecords int

	// DocumentStrategy selects how records become documents.
	// Default: whole record
	DocumentStrategy core.DocumentStrategy

	// CopyFields are record fields copied into chunk metadata.
	CopyFields []string

	// S3 enables s3:// sources when non-nil.
	S3 *source.S3Config

	// Server configures the HTTP surface.
	Server server.Config

	// TopK, MinScore and MaxContextLength tune context retrieval.
	TopK             int
	MinScore         float32
	MaxContextLength int
}

// DefaultConfig returns a Config with the default values.
func DefaultConfig() *Config {
	return &Config{
		AI:               ai.DefaultConfig(),
		IndexBackend:     IndexBadger,
		DBPath:           "./sheetvec-data",
		BatchSize:        10,
		WriteConcurrency: 1,
		WriteAttempts:    3,
		WriteRetryDelay:  500 * time.Millisecond,
		DocumentStrategy: core.StrategyWholeRecord,
		Server: server.Config{
			Addr:           ":3000",
			RequestTimeout: 5 * time.Minute,
			DefaultOptions: core.DefaultIngestOptions(),
		},
		TopK:             3,
		MinScore:         0.7,
		MaxContextLength: 3000,
	}
}

// Validate checks that the configuration is complete.
func (c *Config) Validate() error {
	if c.AI == nil {
		return errors.New("config: AI configuration is required")
	}
	if err := c.AI.Validate(); err != nil {
		return err
	}
	switch c.IndexBackend {
	case IndexBadger:
		if c.DBPath == "" {
			return errors.New("config: DBPath is required for the badger index")
		}
	case IndexPgvector:
		if c.DatabaseURL == "" {
			return errors.New("config: DatabaseURL is required for the pgvector index")
		}
	default:
		return fmt.Errorf("config: unknown index backend %q", c.IndexBackend)
	}
	if c.BatchSize <= 0 {
		return &core.ValidationError{Field: "batchSize", Reason: "must be greater than 0"}
	}
	if c.WriteConcurrency <= 0 {
		return &core.ValidationError{Field: "writeConcurrency", Reason: "must be greater than 0"}
	}
	if c.WriteAttempts <= 0 {
		return &core.ValidationError{Field: "writeAttempts", Reason: "must be greater than 0"}
	}
	return c.Server.DefaultOptions.Validate()
}

// ConfigFromEnv builds a Config from SHEETVEC_* environment variables.
// Variables already set take precedence over the given .env files. With no
// files, a ./.env is loaded when present.
func ConfigFromEnv(files ...string) (*Config, error) {
	if len(files) > 0 {
		if err := godotenv.Load(files...); err != nil {
			return nil, fmt.Errorf("load env files: %w", err)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg := DefaultConfig()

	cfg.AI.Provider = getEnv("SHEETVEC_EMBEDDING_PROVIDER", cfg.AI.Provider)
	cfg.AI.EmbeddingHost = getEnv("SHEETVEC_EMBEDDING_HOST", cfg.AI.EmbeddingHost)
	cfg.AI.EmbeddingModel = getEnv("SHEETVEC_EMBEDDING_MODEL", cfg.AI.EmbeddingModel)
	cfg.AI.APIKey = getEnv("SHEETVEC_API_KEY", cfg.AI.APIKey)
	cfg.AI.Dimensions = getEnvInt("SHEETVEC_EMBEDDING_DIMENSIONS", cfg.AI.Dimensions)
	cfg.AI.MinSpacing = getEnvDuration("SHEETVEC_EMBEDDING_SPACING", cfg.AI.MinSpacing)
	cfg.AI.RequestTimeout = getEnvDuration("SHEETVEC_EMBEDDING_TIMEOUT", cfg.AI.RequestTimeout)

	cfg.IndexBackend = strings.ToLower(getEnv("SHEETVEC_INDEX", cfg.IndexBackend))
	cfg.DBPath = getEnv("SHEETVEC_DB_PATH", cfg.DBPath)
	cfg.DatabaseURL = getEnv("SHEETVEC_DATABASE_URL", cfg.DatabaseURL)
	cfg.MaxBatchSize = getEnvInt("SHEETVEC_MAX_BATCH_SIZE", cfg.MaxBatchSize)
	cfg.Namespace = getEnv("SHEETVEC_NAMESPACE", cfg.Namespace)

	cfg.BatchSize = getEnvInt("SHEETVEC_BATCH_SIZE", cfg.BatchSize)
	cfg.WriteConcurrency = getEnvInt("SHEETVEC_WRITE_CONCURRENCY", cfg.WriteConcurrency)
	cfg.WriteAttempts = getEnvInt("SHEETVEC_WRITE_ATTEMPTS", cfg.WriteAttempts)
	cfg.WriteRetryDelay = getEnvDuration("SHEETVEC_WRITE_RETRY_DELAY", cfg.WriteRetryDelay)
	cfg.PoolSize = getEnvInt("SHEETVEC_POOL_SIZE", cfg.PoolSize)
	cfg.MaxRecords = getEnvInt("SHEETVEC_MAX_RECORDS", cfg.MaxRecords)
	cfg.CopyFields = getEnvList("SHEETVEC_COPY_FIELDS")

	if v := getEnv("SHEETVEC_DOCUMENT_STRATEGY", ""); v != "" {
		strategy, err := core.ParseDocumentStrategy(v)
		if err != nil {
			return nil, err
		}
		cfg.DocumentStrategy = strategy
	}

	opts := &cfg.Server.DefaultOptions
	if v := getEnv("SHEETVEC_SPLITTING_METHOD", ""); v != "" {
		method, err := core.ParseSplittingMethod(v)
		if err != nil {
			return nil, err
		}
		opts.SplittingMethod = method
	}
	opts.ChunkSize = getEnvInt("SHEETVEC_CHUNK_SIZE", opts.ChunkSize)
	opts.ChunkOverlap = getEnvInt("SHEETVEC_CHUNK_OVERLAP", opts.ChunkOverlap)

	if region := getEnv("SHEETVEC_S3_REGION", ""); region != "" {
		cfg.S3 = &source.S3Config{
			Region:    region,
			AccessKey: getEnv("SHEETVEC_S3_ACCESS_KEY", ""),
			SecretKey: getEnv("SHEETVEC_S3_SECRET_KEY", ""),
			Endpoint:  getEnv("SHEETVEC_S3_ENDPOINT", ""),
		}
	}

	cfg.Server.Addr = getEnv("SHEETVEC_ADDR", cfg.Server.Addr)
	cfg.Server.AllowedOrigins = getEnvList("SHEETVEC_ALLOWED_ORIGINS")
	cfg.Server.JWTSecret = getEnv("SHEETVEC_JWT_SECRET", "")
	cfg.Server.RequestTimeout = getEnvDuration("SHEETVEC_REQUEST_TIMEOUT", cfg.Server.RequestTimeout)

	cfg.TopK = getEnvInt("SHEETVEC_TOP_K", cfg.TopK)
	cfg.MinScore = getEnvFloat("SHEETVEC_MIN_SCORE", cfg.MinScore)
	cfg.MaxContextLength = getEnvInt("SHEETVEC_MAX_CONTEXT_LENGTH", cfg.MaxContextLength)

	return cfg, nil
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("environment value is not an int, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

func getEnvFloat(key string, def float32) float32 {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 32)
	if err != nil {
		slog.Warn("environment value is not a number, using default", "key", key, "value", v, "default", def)
		return def
	}
	return float32(f)
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("environment value is not a duration, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
