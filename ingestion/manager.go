package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/keepsake-ai/keepsake/ai"
	"github.com/keepsake-ai/keepsake/core"
	"github.com/keepsake-ai/keepsake/storage"
)

const (
	// DefaultJobConcurrency is how many jobs may execute at once.
	DefaultJobConcurrency = 2

	// DefaultEmbedConcurrency is how many chunks one job embeds in parallel.
	DefaultEmbedConcurrency = 4

	// DefaultMaxAttempts is the per-chunk embedding attempt budget.
	DefaultMaxAttempts = 3

	// DefaultBaseDelay is the base backoff delay between embedding retries.
	DefaultBaseDelay = 500 * time.Millisecond

	// DefaultFailureRateThreshold aborts a job once this share of its
	// chunks has failed to embed after retries.
	DefaultFailureRateThreshold = 0.5

	// DefaultMinFailuresToAbort keeps small jobs from aborting on a
	// single unlucky chunk.
	DefaultMinFailuresToAbort = 4
)

// Manager owns the ingestion job lifecycle: submission, scope locking,
// asynchronous execution, progress persistence, and cancellation.
type Manager struct {
	messages   storage.MessageRepository
	vectors    storage.VectorRepository
	jobs       storage.JobRepository
	embedder   ai.Embedder
	summarizer ai.Summarizer
	chunker    *Chunker

	jobPool   *ants.Pool
	embedPool *ants.Pool

	maxAttempts          int
	baseDelay            time.Duration
	failureRateThreshold float64
	minFailuresToAbort   int
	summarize            bool

	mu      sync.Mutex
	scopes  map[string]map[string]struct{} // user -> active conversation scopes
	cancels map[string]context.CancelFunc  // job ID -> cancel

	logger *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager) error

// WithChunkConfig sets the chunk boundary tuning.
func WithChunkConfig(config ChunkConfig) Option {
	return func(m *Manager) error {
		m.chunker = NewChunker(config)
		return nil
	}
}

// WithJobConcurrency sets how many jobs may execute at once.
func WithJobConcurrency(size int) Option {
	return func(m *Manager) error {
		if size < 1 {
			size = 1
		}
		if m.jobPool != nil {
			m.jobPool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		m.jobPool = pool
		return nil
	}
}

// WithEmbedConcurrency sets how many chunks one job embeds in parallel.
func WithEmbedConcurrency(size int) Option {
	return func(m *Manager) error {
		if size < 1 {
			size = 1
		}
		if m.embedPool != nil {
			m.embedPool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		m.embedPool = pool
		return nil
	}
}

// WithRetry sets the per-chunk embedding retry budget.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(m *Manager) error {
		if maxAttempts <= 0 {
			return ErrInvalidMaxAttempts
		}
		m.maxAttempts = maxAttempts
		m.baseDelay = baseDelay
		return nil
	}
}

// WithFailureThreshold sets when a job aborts on embedding failures:
// once at least minFailures chunks failed AND the failed share of all
// chunks exceeds rate.
func WithFailureThreshold(rate float64, minFailures int) Option {
	return func(m *Manager) error {
		m.failureRateThreshold = rate
		m.minFailuresToAbort = minFailures
		return nil
	}
}

// WithSummaries enables or disables conversation summaries.
// Default is enabled.
func WithSummaries(enabled bool) Option {
	return func(m *Manager) error {
		m.summarize = enabled
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) error {
		if logger == nil {
			logger = slog.Default()
		}
		m.logger = logger
		return nil
	}
}

// NewManager creates an ingestion manager.
func NewManager(
	messages storage.MessageRepository,
	vectors storage.VectorRepository,
	jobs storage.JobRepository,
	provider ai.Provider,
	opts ...Option,
) (*Manager, error) {
	if messages == nil {
		return nil, ErrMessageRepositoryRequired
	}
	if vectors == nil {
		return nil, ErrVectorRepositoryRequired
	}
	if jobs == nil {
		return nil, ErrJobRepositoryRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	jobPool, err := ants.NewPool(DefaultJobConcurrency)
	if err != nil {
		return nil, err
	}
	embedPool, err := ants.NewPool(DefaultEmbedConcurrency)
	if err != nil {
		jobPool.Release()
		return nil, err
	}

	m := &Manager{
		messages:             messages,
		vectors:              vectors,
		jobs:                 jobs,
		embedder:             provider.Embedder(),
		summarizer:           provider.Summarizer(),
		chunker:              NewChunker(DefaultChunkConfig()),
		jobPool:              jobPool,
		embedPool:            embedPool,
		maxAttempts:          DefaultMaxAttempts,
		baseDelay:            DefaultBaseDelay,
		failureRateThreshold: DefaultFailureRateThreshold,
		minFailuresToAbort:   DefaultMinFailuresToAbort,
		summarize:            true,
		scopes:               make(map[string]map[string]struct{}),
		cancels:              make(map[string]context.CancelFunc),
		logger:               slog.Default().With("component", "ingestion-manager"),
	}

	for _, opt := range opts {
		if optErr := opt(m); optErr != nil {
			m.Release()
			return nil, optErr
		}
	}

	return m, nil
}

// Submit validates the messages, registers a job, and starts it
// asynchronously. conversationID names the scope the job locks; empty
// means the job covers all of the user's conversations. Returns the
// pending job record.
//
// Returns ErrJobConflict synchronously when another job overlapping the
// scope is still active.
func (m *Manager) Submit(ctx context.Context, userID, conversationID string, rawMessages []*core.RawMessage) (*core.IngestionJob, error) {
	if userID == "" {
		return nil, core.ErrEmptyUserID
	}
	if len(rawMessages) == 0 {
		return nil, ErrNoMessages
	}
	for _, raw := range rawMessages {
		if err := core.ValidateRawMessage(raw); err != nil {
			return nil, err
		}
	}

	job := &core.IngestionJob{
		Id:             uuid.NewString(),
		UserID:         userID,
		ConversationID: conversationID,
		Status:         core.JobPending,
	}

	if !m.acquireScope(userID, conversationID) {
		return nil, ErrJobConflict
	}

	if err := m.jobs.CreateJob(ctx, job); err != nil {
		m.releaseScope(userID, conversationID)
		return nil, err
	}

	// The job outlives the submission context.
	jobCtx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.cancels[job.Id] = cancel
	m.mu.Unlock()

	submitted := *job
	err := m.jobPool.Submit(func() {
		defer func() {
			cancel()
			m.mu.Lock()
			delete(m.cancels, submitted.Id)
			m.mu.Unlock()
			m.releaseScope(userID, conversationID)
		}()
		m.run(jobCtx, &submitted, rawMessages)
	})
	if err != nil {
		cancel()
		m.mu.Lock()
		delete(m.cancels, job.Id)
		m.mu.Unlock()
		m.releaseScope(userID, conversationID)
		return nil, err
	}

	return job, nil
}

// Cancel requests cancellation of a running job. The job observes the
// request at its next chunk boundary and finishes as failed.
func (m *Manager) Cancel(jobID string) error {
	m.mu.Lock()
	cancel, ok := m.cancels[jobID]
	m.mu.Unlock()
	if !ok {
		return ErrJobNotActive
	}
	cancel()
	return nil
}

// Job returns the durable record of a job.
func (m *Manager) Job(ctx context.Context, jobID string) (*core.IngestionJob, error) {
	return m.jobs.GetJob(ctx, jobID)
}

// ListJobs returns all jobs submitted by a user, newest first.
func (m *Manager) ListJobs(ctx context.Context, userID string) ([]*core.IngestionJob, error) {
	return m.jobs.ListJobsByUser(ctx, userID)
}

// Wait blocks until the job reaches a terminal status or the context is
// done, and returns the final job record.
func (m *Manager) Wait(ctx context.Context, jobID string) (*core.IngestionJob, error) {
	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()

	for {
		job, err := m.jobs.GetJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if job.Status.Terminal() {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Release releases the worker pools. In-flight jobs are allowed to
// finish; no new jobs can be submitted after release.
func (m *Manager) Release() {
	if m.jobPool != nil {
		m.jobPool.Release()
	}
	if m.embedPool != nil {
		m.embedPool.Release()
	}
}

// acquireScope registers an active (user, conversation) scope.
// An empty conversation covers the whole user and conflicts with
// everything; any scope conflicts with an active empty scope.
func (m *Manager) acquireScope(userID, conversationID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	active := m.scopes[userID]
	if conversationID == "" {
		if len(active) > 0 {
			return false
		}
	} else {
		if _, all := active[""]; all {
			return false
		}
		if _, dup := active[conversationID]; dup {
			return false
		}
	}

	if active == nil {
		active = make(map[string]struct{})
		m.scopes[userID] = active
	}
	active[conversationID] = struct{}{}
	return true
}

func (m *Manager) releaseScope(userID, conversationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if active := m.scopes[userID]; active != nil {
		delete(active, conversationID)
		if len(active) == 0 {
			delete(m.scopes, userID)
		}
	}
}

// conversationChunks pairs a conversation with its new chunks.
type conversationChunks struct {
	conversationID string
	chunks         []*core.Chunk
}

// run executes one job end to end. All errors end in a persisted
// terminal status; run never panics the pool worker.
func (m *Manager) run(ctx context.Context, job *core.IngestionJob, rawMessages []*core.RawMessage) {
	logger := m.logger.With("job", job.Id, "user", job.UserID)

	job.Status = core.JobRunning
	if err := m.jobs.UpdateJob(context.Background(), job); err != nil {
		logger.Error("failed to mark job running", "err", err)
		return
	}

	messages := make([]*core.Message, len(rawMessages))
	for i, raw := range rawMessages {
		messages[i] = &core.Message{
			UserID:         job.UserID,
			ConversationID: raw.ConversationID,
			Sender:         raw.Sender,
			Recipient:      raw.Recipient,
			Recipients:     raw.Recipients,
			Timestamp:      raw.Timestamp,
			Content:        raw.Content,
			Source:         raw.Source,
		}
	}

	inserted, err := m.messages.AddMessages(ctx, messages...)
	if err != nil {
		m.finishFailed(job, logger, err)
		return
	}
	job.Progress.MessagesCreated = int64(len(inserted))
	m.persistProgress(job, logger)

	if len(inserted) == 0 {
		// Everything was already ingested; nothing to chunk or embed.
		m.finishCompleted(job, logger)
		return
	}

	// Group the new messages by conversation, preserving order.
	var order []string
	byConversation := make(map[string][]*core.Message)
	for _, msg := range inserted {
		if _, ok := byConversation[msg.ConversationID]; !ok {
			order = append(order, msg.ConversationID)
		}
		byConversation[msg.ConversationID] = append(byConversation[msg.ConversationID], msg)
	}

	var work []conversationChunks
	totalChunks := 0
	for _, conv := range order {
		chunks := m.chunker.Chunk(byConversation[conv])
		work = append(work, conversationChunks{conversationID: conv, chunks: chunks})
		totalChunks += len(chunks)
	}
	job.Progress.ChunksCreated = int64(totalChunks)
	m.persistProgress(job, logger)

	if err := m.embedChunks(ctx, job, logger, work, totalChunks); err != nil {
		m.finishFailed(job, logger, err)
		return
	}

	if m.summarize && m.summarizer != nil {
		if err := m.summarizeConversations(ctx, job, logger, work); err != nil {
			m.finishFailed(job, logger, err)
			return
		}
	}

	m.finishCompleted(job, logger)
}

// embedChunks embeds all chunks concurrently on the embed pool.
// Cancellation is observed at chunk boundaries: chunks already embedded
// stay persisted.
func (m *Manager) embedChunks(ctx context.Context, job *core.IngestionJob, logger *slog.Logger, work []conversationChunks, totalChunks int) error {
	// abort cancels remaining chunks once the failure threshold trips.
	abortCtx, abort := context.WithCancel(ctx)
	defer abort()

	var (
		wg       sync.WaitGroup
		progress sync.Mutex
		failures int
	)

submit:
	for _, cc := range work {
		for _, chunk := range cc.chunks {
			if ctx.Err() != nil {
				break submit
			}

			chunk := chunk
			conversationID := cc.conversationID
			wg.Add(1)
			err := m.embedPool.Submit(func() {
				defer wg.Done()

				if abortCtx.Err() != nil {
					return
				}

				embErr := RetryWithBackoff(abortCtx, func() error {
					return m.embedChunk(abortCtx, job, conversationID, chunk)
				}, m.maxAttempts, m.baseDelay)

				progress.Lock()
				defer progress.Unlock()
				if embErr != nil {
					failures++
					logger.Warn("chunk embedding failed", "conversation", conversationID, "err", embErr)
					if failures >= m.minFailuresToAbort &&
						float64(failures)/float64(totalChunks) > m.failureRateThreshold {
						abort()
					}
					return
				}
				job.Progress.EmbeddingsCreated++
				m.persistProgress(job, logger)
			})
			if err != nil {
				wg.Done()
				progress.Lock()
				failures++
				progress.Unlock()
			}
		}
	}
	wg.Wait()

	if ctx.Err() != nil {
		return ErrJobCanceled
	}
	if failures >= m.minFailuresToAbort &&
		float64(failures)/float64(totalChunks) > m.failureRateThreshold {
		return fmt.Errorf("%w: %d of %d chunks", ErrTooManyFailures, failures, totalChunks)
	}
	return nil
}

// embedChunk embeds one chunk and persists the resulting vector.
func (m *Manager) embedChunk(ctx context.Context, job *core.IngestionJob, conversationID string, chunk *core.Chunk) error {
	vector, err := m.embedder.EmbedText(ctx, chunk.Text)
	if err != nil {
		return err
	}

	_, err = m.vectors.PutEmbeddings(ctx, &core.Embedding{
		UserID:           job.UserID,
		ConversationID:   conversationID,
		Kind:             core.EmbeddingKindChunk,
		Vector:           vector,
		Text:             chunk.Text,
		MessageIds:       chunk.MessageIds,
		MessageTimestamp: chunk.End,
	})
	return err
}

// summarizeConversations produces one summary embedding per touched
// conversation. Summary failures are logged, not fatal: the chunk
// embeddings already cover the content.
func (m *Manager) summarizeConversations(ctx context.Context, job *core.IngestionJob, logger *slog.Logger, work []conversationChunks) error {
	for _, cc := range work {
		if ctx.Err() != nil {
			return ErrJobCanceled
		}

		texts := make([]string, len(cc.chunks))
		for i, chunk := range cc.chunks {
			texts[i] = chunk.Text
		}
		transcript := strings.Join(texts, "\n")

		summary, err := m.summarizer.Summarize(ctx, transcript)
		if err != nil {
			logger.Warn("conversation summary failed", "conversation", cc.conversationID, "err", err)
			continue
		}
		if summary == "" {
			continue
		}

		vector, err := m.embedder.EmbedText(ctx, summary)
		if err != nil {
			logger.Warn("summary embedding failed", "conversation", cc.conversationID, "err", err)
			continue
		}

		last := cc.chunks[len(cc.chunks)-1]
		_, err = m.vectors.PutEmbeddings(ctx, &core.Embedding{
			UserID:           job.UserID,
			ConversationID:   cc.conversationID,
			Kind:             core.EmbeddingKindSummary,
			Vector:           vector,
			Text:             summary,
			MessageTimestamp: last.End,
		})
		if err != nil {
			logger.Warn("summary persistence failed", "conversation", cc.conversationID, "err", err)
			continue
		}

		job.Progress.SummariesCreated++
		m.persistProgress(job, logger)
	}
	return nil
}

func (m *Manager) persistProgress(job *core.IngestionJob, logger *slog.Logger) {
	if err := m.jobs.UpdateJob(context.Background(), job); err != nil {
		logger.Error("failed to persist job progress", "err", err)
	}
}

func (m *Manager) finishCompleted(job *core.IngestionJob, logger *slog.Logger) {
	job.Status = core.JobCompleted
	if err := m.jobs.UpdateJob(context.Background(), job); err != nil {
		logger.Error("failed to mark job completed", "err", err)
		return
	}
	logger.Info("ingestion job completed",
		"messages", job.Progress.MessagesCreated,
		"chunks", job.Progress.ChunksCreated,
		"embeddings", job.Progress.EmbeddingsCreated,
		"summaries", job.Progress.SummariesCreated)
}

func (m *Manager) finishFailed(job *core.IngestionJob, logger *slog.Logger, cause error) {
	job.Status = core.JobFailed
	job.Error = cause.Error()
	if err := m.jobs.UpdateJob(context.Background(), job); err != nil {
		logger.Error("failed to mark job failed", "err", err)
		return
	}
	logger.Warn("ingestion job failed", "err", cause)
}
