// Package watch provides a drop-directory watcher that ingests chat
// exports as they appear.
//
// Export files are named <user>--<conversation>.txt; the watcher parses
// the name for tenant scope, the contents as a WhatsApp export, and
// submits an ingestion job. Writes are debounced so a file still being
// copied is only ingested once it settles.
package watch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/keepsake-ai/keepsake/core"
	"github.com/keepsake-ai/keepsake/export"
	"github.com/keepsake-ai/keepsake/ingestion"
)

// DefaultDebounce is how long a file must stay quiet before it is
// ingested.
const DefaultDebounce = 500 * time.Millisecond

// exportExtension is the only file type the watcher picks up.
const exportExtension = ".txt"

// nameSeparator splits an export filename into user and conversation.
const nameSeparator = "--"

// Submitter accepts parsed exports for ingestion. *ingestion.Manager
// satisfies it.
type Submitter interface {
	Submit(ctx context.Context, userID, conversationID string, messages []*core.RawMessage) (*core.IngestionJob, error)
}

// Watcher monitors a drop directory and submits ingestion jobs for
// export files.
type Watcher struct {
	watcher   *fsnotify.Watcher
	submitter Submitter
	parser    *export.Parser
	debounce  time.Duration
	logger    *slog.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the settle delay before a changed file is ingested.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewWatcher creates a drop-directory watcher.
func NewWatcher(submitter Submitter, opts ...Option) (*Watcher, error) {
	if submitter == nil {
		return nil, errors.New("submitter required")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		watcher:   fsw,
		submitter: submitter,
		parser:    export.NewParser(),
		debounce:  DefaultDebounce,
		logger:    slog.Default().With("component", "export-watcher"),
		pending:   make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run watches dir until the context is done. Export files already
// present are ingested on startup; new and rewritten files are ingested
// after they settle.
func (w *Watcher) Run(ctx context.Context, dir string) error {
	if err := w.watcher.Add(dir); err != nil {
		return err
	}
	w.logger.Info("watching export directory", "dir", dir)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		w.schedule(ctx, filepath.Join(dir, entry.Name()))
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			w.schedule(ctx, event.Name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watch error", "err", err)
		}
	}
}

// Close stops the underlying filesystem watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

// schedule (re)arms the debounce timer for a path.
func (w *Watcher) schedule(ctx context.Context, path string) {
	if filepath.Ext(path) != exportExtension {
		return
	}
	if _, _, ok := SplitExportName(filepath.Base(path)); !ok {
		w.logger.Warn("ignoring export with unrecognized name", "file", filepath.Base(path))
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.pending[path]; ok {
		timer.Reset(w.debounce)
		return
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		w.ingest(ctx, path)
	})
}

// ingest parses one export file and submits it.
func (w *Watcher) ingest(ctx context.Context, path string) {
	userID, conversationID, _ := SplitExportName(filepath.Base(path))
	logger := w.logger.With("file", filepath.Base(path), "user", userID, "conversation", conversationID)

	file, err := os.Open(path)
	if err != nil {
		logger.Error("failed to open export", "err", err)
		return
	}
	defer file.Close()

	messages, err := w.parser.Parse(file, conversationID)
	if err != nil {
		logger.Error("failed to parse export", "err", err)
		return
	}
	if len(messages) == 0 {
		logger.Warn("export contained no messages")
		return
	}

	job, err := w.submitter.Submit(ctx, userID, conversationID, messages)
	if err != nil {
		if errors.Is(err, ingestion.ErrJobConflict) {
			// The file will be picked up again on its next write.
			logger.Warn("ingestion already active, skipping")
			return
		}
		logger.Error("failed to submit ingestion job", "err", err)
		return
	}
	logger.Info("submitted ingestion job", "job", job.Id, "messages", len(messages))
}

// SplitExportName splits an export filename of the form
// <user>--<conversation>.txt into its parts. Both parts must be
// non-empty.
func SplitExportName(filename string) (userID, conversationID string, ok bool) {
	name := strings.TrimSuffix(filename, exportExtension)
	userID, conversationID, found := strings.Cut(name, nameSeparator)
	if !found || userID == "" || conversationID == "" {
		return "", "", false
	}
	return userID, conversationID, true
}
