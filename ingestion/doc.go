// Package ingestion provides the durable ingestion pipeline for chat exports.
//
// The Manager type owns the full workflow of one ingestion job:
//   - Persisting parsed messages, skipping identity duplicates
//   - Grouping new messages into conversation chunks
//   - Generating and storing chunk embeddings concurrently
//   - Summarizing touched conversations and embedding the summaries
//
// Jobs run asynchronously on worker pools. Each job's status and
// progress counters are persisted incrementally, so a crashed or
// restarted process can report what completed and a re-submitted export
// resumes where it left off: already-ingested messages are skipped and
// only the remainder is processed.
//
// Only one job may run at a time per (user, conversation) scope. A job
// with an empty conversation ID covers all of the user's conversations
// and conflicts with every other job of that user. Conflicting
// submissions are rejected synchronously with ErrJobConflict.
//
// Transient embedding failures are retried with exponential backoff.
// A job aborts early when too large a share of its chunks fail to
// embed; partial progress remains persisted and queryable.
package ingestion
