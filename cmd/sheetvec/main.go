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


package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/poiesic/sheetvec"
	"github.com/poiesic/sheetvec/core"
	"github.com/poiesic/sheetvec/ingestion"
	"github.com/poiesic/sheetvec/reembed"
	"github.com/poiesic/sheetvec/search"
	"github.com/poiesic/sheetvec/storage"
	"github.com/urfave/cli/v2"
)

func main() {
	// Flags read SHEETVEC_* variables, so .env has to be loaded first
	_ = godotenv.Load()

	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "sheetvec",
		Usage: "Index spreadsheet exports into a vector store and retrieve context from it",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
				EnvVars: []string{"SHEETVEC_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "index",
				Usage:   "Vector index backend (badger, pgvector)",
				EnvVars: []string{"SHEETVEC_INDEX"},
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to BadgerDB database directory",
				EnvVars: []string{"SHEETVEC_DB_PATH"},
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Postgres connection string for the pgvector index",
				EnvVars: []string{"SHEETVEC_DATABASE_URL"},
			},
			&cli.StringFlag{
				Name:    "namespace",
				Aliases: []string{"n"},
				Usage:   "Index namespace",
				EnvVars: []string{"SHEETVEC_NAMESPACE"},
			},
			&cli.StringFlag{
				Name:    "embedding-provider",
				Usage:   "Embedding provider (openai, gemini)",
				EnvVars: []string{"SHEETVEC_EMBEDDING_PROVIDER"},
			},
			&cli.StringFlag{
				Name:    "embedding-host",
				Usage:   "Embedding service host URL",
				EnvVars: []string{"SHEETVEC_EMBEDDING_HOST"},
			},
			&cli.StringFlag{
				Name:    "embedding-model",
				Usage:   "Embedding model name",
				EnvVars: []string{"SHEETVEC_EMBEDDING_MODEL"},
			},
			&cli.IntFlag{
				Name:    "dimensions",
				Usage:   "Vector size the embedding model produces",
				EnvVars: []string{"SHEETVEC_EMBEDDING_DIMENSIONS"},
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Serve the ingestion and context HTTP API",
				Action: serveCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "addr",
						Usage:   "Listen address",
						EnvVars: []string{"SHEETVEC_ADDR"},
					},
					&cli.DurationFlag{
						Name:  "shutdown-timeout",
						Usage: "Time allowed for in-flight requests on shutdown",
						Value: 30 * time.Second,
					},
				},
			},
			{
				Name:      "ingest",
				Usage:     "Fetch a CSV export and index its rows",
				ArgsUsage: "<url>",
				Action:    ingestCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of records to read (0 uses the configured cap)",
					},
					&cli.StringFlag{
						Name:    "splitting-method",
						Usage:   "Chunk splitting method (recursive, structural)",
						EnvVars: []string{"SHEETVEC_SPLITTING_METHOD"},
					},
					&cli.IntFlag{
						Name:    "chunk-size",
						Usage:   "Maximum chunk length in characters",
						EnvVars: []string{"SHEETVEC_CHUNK_SIZE"},
					},
					&cli.IntFlag{
						Name:    "chunk-overlap",
						Usage:   "Characters shared by consecutive chunks",
						EnvVars: []string{"SHEETVEC_CHUNK_OVERLAP"},
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Redraw progress every N chunks or batches",
						Value: 100,
					},
				},
			},
			{
				Name:      "query",
				Usage:     "Print the context retrieved for a query",
				ArgsUsage: "<text>",
				Action:    queryCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "matches",
						Usage: "Print every match with its score instead of the joined context",
					},
					&cli.BoolFlag{
						Name:  "explain",
						Usage: "Print each retrieval step to stderr",
					},
				},
			},
			{
				Name:      "describe",
				Usage:     "Describe one namespace, or list all of them",
				ArgsUsage: "[namespace]",
				Action:    describeCommand,
			},
			{
				Name:      "runs",
				Usage:     "List recent ingestion runs, or show one",
				ArgsUsage: "[run-id]",
				Action:    runsCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Number of runs to list",
						Value: 20,
					},
				},
			},
			{
				Name:   "reembed",
				Usage:  "Reembed every vector of a namespace with the current embedding model",
				Action: reembedCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "source",
						Usage:    "Namespace to read stored chunks from",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "target",
						Usage: "Namespace to write to (defaults to the source namespace)",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of vectors to read in each batch",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "write-batch-size",
						Usage: "Number of vectors per index write",
						Value: 10,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N vectors",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed operations",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
				},
			},
		},
	}
}

// loadConfig reads the environment and applies the global flags on top.
func loadConfig(c *cli.Context) (*sheetvec.Config, error) {
	cfg, err := sheetvec.ConfigFromEnv()
	if err != nil {
		return nil, err
	}

	if v := c.String("index"); v != "" {
		cfg.IndexBackend = strings.ToLower(v)
	}
	if v := c.String("db"); v != "" {
		cfg.DBPath = v
	}
	if v := c.String("database-url"); v != "" {
		cfg.DatabaseURL = v
	}
	if c.IsSet("namespace") {
		cfg.Namespace = c.String("namespace")
	}
	if v := c.String("embedding-provider"); v != "" {
		cfg.AI.Provider = v
	}
	if v := c.String("embedding-host"); v != "" {
		cfg.AI.EmbeddingHost = v
	}
	if v := c.String("embedding-model"); v != "" {
		cfg.AI.EmbeddingModel = v
	}
	if v := c.Int("dimensions"); v > 0 {
		cfg.AI.Dimensions = v
	}
	return cfg, nil
}

func openService(c *cli.Context, cfg *sheetvec.Config, opts ...sheetvec.ServiceOption) (*sheetvec.Service, error) {
	svc, err := sheetvec.NewService(c.Context, cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open service: %w", err)
	}
	return svc, nil
}

func serveCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if v := c.String("addr"); v != "" {
		cfg.Server.Addr = v
	}

	svc, err := openService(c, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	srv, err := svc.NewServer()
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), c.Duration("shutdown-timeout"))
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func ingestCommand(c *cli.Context) error {
	url := c.Args().First()
	if url == "" {
		return errors.New("source url is required")
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	opts := cfg.Server.DefaultOptions
	if v := c.String("splitting-method"); v != "" {
		if opts.SplittingMethod, err = core.ParseSplittingMethod(v); err != nil {
			return err
		}
	}
	if c.IsSet("chunk-size") {
		opts.ChunkSize = c.Int("chunk-size")
	}
	if c.IsSet("chunk-overlap") {
		opts.ChunkOverlap = c.Int("chunk-overlap")
	}
	if err := opts.Validate(); err != nil {
		return err
	}

	errOut := c.App.ErrWriter
	reporter := ingestion.NewStageReporter(errOut, c.Int("report-interval"))
	svc, err := openService(c, cfg, sheetvec.WithProgress(reporter.Report))
	if err != nil {
		return err
	}
	defer svc.Close()

	fmt.Fprintf(errOut, "Source: %s\n", url)
	fmt.Fprintf(errOut, "Embedding model: %s (%d dimensions)\n", cfg.AI.EmbeddingModel, cfg.AI.Dimensions)
	fmt.Fprintf(errOut, "Splitting: %s, chunk size %d, overlap %d\n", opts.SplittingMethod, opts.ChunkSize, opts.ChunkOverlap)
	fmt.Fprintln(errOut)

	result, err := svc.Pipeline().Ingest(c.Context, ingestion.IngestRequest{
		URL:     url,
		Limit:   c.Int("limit"),
		Options: opts,
	})
	reporter.Close()
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	out := c.App.Writer
	fmt.Fprintf(out, "Run:       %s\n", result.RunID)
	fmt.Fprintf(out, "Records:   %d\n", result.Records)
	fmt.Fprintf(out, "Documents: %d\n", result.DocumentCount)
	fmt.Fprintf(out, "Chunks:    %d\n", result.ChunkCount)
	fmt.Fprintf(out, "Vectors:   %d in %d batches\n", result.VectorCount, result.Batches)
	return nil
}

func queryCommand(c *cli.Context) error {
	query := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		return errors.New("query text is required")
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	svc, err := openService(c, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	out := c.App.Writer
	if !c.Bool("matches") {
		var monitor search.RetrievalMonitor
		if c.Bool("explain") {
			monitor = &explainMonitor{w: c.App.ErrWriter}
		}
		text, err := svc.Retriever().ContextWithMonitor(c.Context, query, monitor)
		if err != nil {
			return fmt.Errorf("retrieval failed: %w", err)
		}
		fmt.Fprintln(out, text)
		return nil
	}

	matches, err := svc.Retriever().Matches(c.Context, query)
	if err != nil {
		return fmt.Errorf("retrieval failed: %w", err)
	}
	fmt.Fprintf(out, "Found %d hits\n", len(matches))
	for i, m := range matches {
		fmt.Fprintf(out, "%d: [%0.3f] %s (%s)\n", i, m.Score, m.Vector.Metadata[core.MetaChunk], m.Vector.Metadata[core.MetaSourceURL])
	}
	return nil
}

func describeCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	svc, err := openService(c, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	out := c.App.Writer
	if ns := c.Args().First(); ns != "" {
		info, err := svc.Index().Describe(c.Context, ns)
		if err != nil {
			return err
		}
		printNamespace(c, *info)
		return nil
	}

	namespaces, err := svc.Index().Namespaces(c.Context)
	if err != nil {
		return err
	}
	if len(namespaces) == 0 {
		fmt.Fprintln(out, "No namespaces")
		return nil
	}
	for _, info := range namespaces {
		printNamespace(c, info)
	}
	return nil
}

func printNamespace(c *cli.Context, info core.NamespaceInfo) {
	name := info.Namespace
	if name == "" {
		name = "(default)"
	}
	fmt.Fprintf(c.App.Writer, "%s\tdimension=%d\tvectors=%d\n", name, info.Dimension, info.VectorCount)
}

func runsCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	svc, err := openService(c, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	out := c.App.Writer
	if id := c.Args().First(); id != "" {
		run, err := svc.Runs().GetRun(c.Context, id)
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("run %q not found", id)
		}
		if err != nil {
			return err
		}
		printRun(c, run)
		if run.Error != "" {
			fmt.Fprintf(out, "  error: %s\n", run.Error)
		}
		return nil
	}

	runs, err := svc.Runs().ListRuns(c.Context, c.Int("limit"))
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs")
		return nil
	}
	for _, run := range runs {
		printRun(c, run)
	}
	return nil
}

func printRun(c *cli.Context, run *core.IngestionRun) {
	state := run.State.String()
	if run.State == core.RunFailed {
		state = fmt.Sprintf("%s at %s (batch %d)", state, run.FailedStage, run.FailedBatch)
	}
	fmt.Fprintf(c.App.Writer, "%s\t%s\t%s\tbatches %d/%d\t%s\n",
		run.Id, run.StartedAt.Format(time.RFC3339), state, run.BatchesWritten, run.BatchesTotal, run.SourceURL)
}

func reembedCommand(c *cli.Context) error {
	config := &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		WriteBatchSize: c.Int("write-batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
	}

	// Validate config
	if config.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if config.WriteBatchSize <= 0 {
		return fmt.Errorf("write-batch-size must be greater than 0")
	}
	if config.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if config.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	svc, err := openService(c, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	errOut := c.App.ErrWriter
	reembedder, err := svc.NewReembedder(config, errOut)
	if err != nil {
		return fmt.Errorf("failed to create reembedder: %w", err)
	}

	fmt.Fprintf(errOut, "Index: %s\n", cfg.IndexBackend)
	fmt.Fprintf(errOut, "Embedding host: %s\n", cfg.AI.EmbeddingHost)
	fmt.Fprintf(errOut, "Embedding model: %s\n", cfg.AI.EmbeddingModel)
	fmt.Fprintln(errOut)

	if err := reembedder.Run(c.Context, c.String("source"), c.String("target")); err != nil {
		return fmt.Errorf("reembedding failed: %w", err)
	}
	return nil
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

	// Map string to slog.Level
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	// Configure slog with the specified level
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
