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


package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/keepsake-ai/keepsake"
	"github.com/keepsake-ai/keepsake/ai"
	"github.com/keepsake-ai/keepsake/core"
	"github.com/keepsake-ai/keepsake/export"
	"github.com/keepsake-ai/keepsake/search"
	"github.com/keepsake-ai/keepsake/watch"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "keepsake",
		Usage: "Personal chat memory: ingest chat exports, retrieve them semantically",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "ingest",
				Usage:     "Ingest a WhatsApp chat export for a user",
				ArgsUsage: "<export-file>",
				Action:    ingestCommand,
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:     "db",
						Aliases:  []string{"d"},
						Usage:    "Path to BadgerDB database directory",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "user",
						Aliases:  []string{"u"},
						Usage:    "User (tenant) the export belongs to",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "conversation",
						Aliases:  []string{"c"},
						Usage:    "Conversation identifier for the export",
						Required: true,
					},
				}, aiFlags()...),
			},
			{
				Name:      "query",
				Usage:     "Retrieve chat history relevant to a query",
				ArgsUsage: "<query>",
				Action:    queryCommand,
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:     "db",
						Aliases:  []string{"d"},
						Usage:    "Path to BadgerDB database directory",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "user",
						Aliases:  []string{"u"},
						Usage:    "User (tenant) to query for",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of matches to consider",
						Value: search.DefaultLimit,
					},
					&cli.IntFlag{
						Name:  "context-budget",
						Usage: "Character budget for the composed context",
						Value: search.DefaultContextBudget,
					},
				}, aiFlags()...),
			},
			{
				Name:   "status",
				Usage:  "Show ingestion jobs for a user",
				Action: statusCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "db",
						Aliases:  []string{"d"},
						Usage:    "Path to BadgerDB database directory",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "user",
						Aliases:  []string{"u"},
						Usage:    "User (tenant) to show jobs for",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "job",
						Usage: "Show a single job by ID",
					},
				},
			},
			{
				Name:   "cancel",
				Usage:  "Mark a non-terminal ingestion job as canceled",
				Action: cancelCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "db",
						Aliases:  []string{"d"},
						Usage:    "Path to BadgerDB database directory",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "user",
						Aliases:  []string{"u"},
						Usage:    "User (tenant) the job belongs to",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "job",
						Usage:    "Job ID to cancel",
						Required: true,
					},
				},
			},
			{
				Name:      "watch",
				Usage:     "Watch a drop directory and ingest exports as they appear",
				ArgsUsage: "<directory>",
				Action:    watchCommand,
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:     "db",
						Aliases:  []string{"d"},
						Usage:    "Path to BadgerDB database directory",
						Required: true,
					},
					&cli.DurationFlag{
						Name:  "debounce",
						Usage: "How long a file must stay quiet before ingestion",
						Value: watch.DefaultDebounce,
					},
				}, aiFlags()...),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// aiFlags are shared by every command that talks to model services.
func aiFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "ai-host",
			Usage: "OpenAI-compatible service host URL",
			Value: "http://localhost:11434/v1",
		},
		&cli.StringFlag{
			Name:  "embedding-model",
			Usage: "Embedding model name",
			Value: "embeddinggemma",
		},
		&cli.StringFlag{
			Name:  "summary-model",
			Usage: "Summarization model name",
			Value: "qwen2.5:3b",
		},
		&cli.IntFlag{
			Name:  "dimension",
			Usage: "Embedding dimension for this deployment",
			Value: ai.DefaultDimension,
		},
	}
}

// buildAIConfig maps AI flags onto a config. Commands without AI flags
// (status, cancel) fall through to the defaults.
func buildAIConfig(c *cli.Context) *ai.Config {
	var opts []ai.ConfigOption
	if host := c.String("ai-host"); host != "" {
		opts = append(opts, ai.WithHost(host))
	}
	if model := c.String("embedding-model"); model != "" {
		opts = append(opts, ai.WithEmbeddingModel(model))
	}
	if model := c.String("summary-model"); model != "" {
		opts = append(opts, ai.WithSummaryModel(model))
	}
	if dim := c.Int("dimension"); dim > 0 {
		opts = append(opts, ai.WithDimension(dim))
	}
	return ai.NewConfig(opts...)
}

func openDatabase(c *cli.Context) (*keepsake.Database, error) {
	db, err := keepsake.NewDatabase(c.String("db"), keepsake.WithAIConfig(buildAIConfig(c)))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func ingestCommand(c *cli.Context) error {
	ctx := context.Background()

	exportPath := c.Args().First()
	if exportPath == "" {
		return fmt.Errorf("export file path is required")
	}

	file, err := os.Open(exportPath)
	if err != nil {
		return fmt.Errorf("failed to open export: %w", err)
	}
	defer file.Close()

	conversationID := c.String("conversation")
	messages, err := export.NewParser().Parse(file, conversationID)
	if err != nil {
		return fmt.Errorf("failed to parse export: %w", err)
	}
	if len(messages) == 0 {
		return fmt.Errorf("export %s contained no messages", exportPath)
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	manager, err := db.NewIngestionManager()
	if err != nil {
		return fmt.Errorf("failed to create ingestion manager: %w", err)
	}
	defer manager.Release()

	fmt.Fprintf(os.Stderr, "Database: %s\n", c.String("db"))
	fmt.Fprintf(os.Stderr, "User: %s\n", c.String("user"))
	fmt.Fprintf(os.Stderr, "Conversation: %s\n", conversationID)
	fmt.Fprintf(os.Stderr, "Parsed messages: %d\n", len(messages))
	fmt.Fprintln(os.Stderr)

	job, err := manager.Submit(ctx, c.String("user"), conversationID, messages)
	if err != nil {
		return fmt.Errorf("failed to submit ingestion job: %w", err)
	}

	job, err = manager.Wait(ctx, job.Id)
	if err != nil {
		return fmt.Errorf("failed waiting for job %s: %w", job.Id, err)
	}

	fmt.Fprintf(os.Stderr, "Job %s: %s\n", job.Id, job.Status)
	fmt.Fprintf(os.Stderr, "  messages stored: %d\n", job.Progress.MessagesCreated)
	fmt.Fprintf(os.Stderr, "  chunks created:  %d\n", job.Progress.ChunksCreated)
	fmt.Fprintf(os.Stderr, "  embeddings:      %d\n", job.Progress.EmbeddingsCreated)
	fmt.Fprintf(os.Stderr, "  summaries:       %d\n", job.Progress.SummariesCreated)

	if job.Error != "" {
		return fmt.Errorf("ingestion failed: %s", job.Error)
	}
	return nil
}

func queryCommand(c *cli.Context) error {
	ctx := context.Background()

	query := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("query text is required")
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	retriever, err := db.NewRetriever(search.WithContextBudget(c.Int("context-budget")))
	if err != nil {
		return fmt.Errorf("failed to create retriever: %w", err)
	}

	result, err := retriever.Retrieve(ctx, c.String("user"), query, c.Int("limit"))
	if err != nil {
		return fmt.Errorf("retrieval failed: %w", err)
	}

	fmt.Println(result)
	return nil
}

func statusCommand(c *cli.Context) error {
	ctx := context.Background()

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	jobs := db.JobRepository()

	if jobID := c.String("job"); jobID != "" {
		job, err := jobs.GetJob(ctx, jobID)
		if err != nil {
			return fmt.Errorf("failed to load job %s: %w", jobID, err)
		}
		if job.UserID != c.String("user") {
			return fmt.Errorf("job %s does not belong to user %s", jobID, c.String("user"))
		}
		printJob(job.Id, job.Status.String(), job.UpdatedAt, job.Progress.MessagesCreated, job.Progress.EmbeddingsCreated, job.Error)
		return nil
	}

	list, err := jobs.ListJobsByUser(ctx, c.String("user"))
	if err != nil {
		return fmt.Errorf("failed to list jobs: %w", err)
	}
	if len(list) == 0 {
		fmt.Println("No ingestion jobs found.")
		return nil
	}
	for _, job := range list {
		printJob(job.Id, job.Status.String(), job.UpdatedAt, job.Progress.MessagesCreated, job.Progress.EmbeddingsCreated, job.Error)
	}
	return nil
}

// cancelCommand marks a persisted non-terminal job as canceled. It is
// for cleaning up jobs left behind by an interrupted process; a job
// running in another process is stopped by interrupting that process.
func cancelCommand(c *cli.Context) error {
	ctx := context.Background()

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	jobID := c.String("job")
	job, err := db.JobRepository().GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job %s: %w", jobID, err)
	}
	if job.UserID != c.String("user") {
		return fmt.Errorf("job %s does not belong to user %s", jobID, c.String("user"))
	}
	if job.Status.Terminal() {
		return fmt.Errorf("job %s is already %s", jobID, job.Status)
	}

	job.Status = core.JobFailed
	job.Error = "canceled"
	if err := db.JobRepository().UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("failed to update job %s: %w", jobID, err)
	}

	fmt.Fprintf(os.Stderr, "Job %s canceled.\n", jobID)
	return nil
}

func printJob(id, status string, updated time.Time, messages, embeddings int64, jobErr string) {
	fmt.Printf("%s  %-9s  updated %s  messages=%d embeddings=%d", id, status, updated.Format(time.RFC3339), messages, embeddings)
	if jobErr != "" {
		fmt.Printf("  error=%q", jobErr)
	}
	fmt.Println()
}

func watchCommand(c *cli.Context) error {
	dir := c.Args().First()
	if dir == "" {
		return fmt.Errorf("watch directory is required")
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	manager, err := db.NewIngestionManager()
	if err != nil {
		return fmt.Errorf("failed to create ingestion manager: %w", err)
	}
	defer manager.Release()

	watcher, err := watch.NewWatcher(manager, watch.WithDebounce(c.Duration("debounce")))
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(os.Stderr, "Database: %s\n", c.String("db"))
	fmt.Fprintf(os.Stderr, "Watching: %s\n", dir)
	fmt.Fprintln(os.Stderr, "Drop <user>--<conversation>.txt exports into the directory. Ctrl-C to stop.")
	fmt.Fprintln(os.Stderr)

	if err := watcher.Run(ctx, dir); err != nil && ctx.Err() == nil {
		return fmt.Errorf("watch failed: %w", err)
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
