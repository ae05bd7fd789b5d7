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


package core

import (
	"fmt"
	"time"
)

// futureSkew is how far into the future a timestamp may point before it
// is rejected. Export timestamps come from other devices' clocks.
const futureSkew = 5 * time.Minute

// ValidateRawMessage validates a parsed export entry before ingestion.
//
// Validation rules:
//   - Sender and Content must not be empty
//   - Source must be a known platform
//   - Timestamp must be set and not in the future
//
// NOT validated (populated later in the pipeline):
//   - Recipient/Recipients (filled once the conversation is classified)
func ValidateRawMessage(msg *RawMessage) error {
	if msg == nil {
		return fmt.Errorf("%w: message is nil", ErrInvalidMessage)
	}
	if msg.Sender == "" {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, ErrEmptySender)
	}
	if msg.Content == "" {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, ErrEmptyContent)
	}
	if err := ValidateSource(msg.Source); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	if !IsValidTimestamp(msg.Timestamp) {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, ErrInvalidTimestamp)
	}
	return nil
}

// ValidateMessage validates a message about to be persisted.
// A persisted message additionally requires its tenant scope.
func ValidateMessage(msg *Message) error {
	if msg == nil {
		return fmt.Errorf("%w: message is nil", ErrInvalidMessage)
	}
	if msg.UserID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, ErrEmptyUserID)
	}
	raw := RawMessage{
		ConversationID: msg.ConversationID,
		Sender:         msg.Sender,
		Timestamp:      msg.Timestamp,
		Content:        msg.Content,
		Source:         msg.Source,
	}
	return ValidateRawMessage(&raw)
}

// ValidateEmbedding validates an embedding about to be persisted.
//
// Validation rules:
//   - UserID must not be empty
//   - Vector must be non-empty
//   - Text must not be empty
//
// Dimension agreement is enforced by the vector store, which knows the
// deployment's fixed dimension.
func ValidateEmbedding(emb *Embedding) error {
	if emb == nil {
		return fmt.Errorf("%w: embedding is nil", ErrInvalidEmbedding)
	}
	if emb.UserID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidEmbedding, ErrEmptyUserID)
	}
	if len(emb.Vector) == 0 {
		return fmt.Errorf("%w: vector cannot be empty", ErrInvalidEmbedding)
	}
	if emb.Text == "" {
		return fmt.Errorf("%w: %w", ErrInvalidEmbedding, ErrEmptyContent)
	}
	return nil
}

// ValidateJob validates an ingestion job record.
func ValidateJob(job *IngestionJob) error {
	if job == nil {
		return fmt.Errorf("%w: job is nil", ErrInvalidJob)
	}
	if job.Id == "" {
		return fmt.Errorf("%w: job id cannot be empty", ErrInvalidJob)
	}
	if job.UserID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidJob, ErrEmptyUserID)
	}
	if err := ValidateJobStatus(job.Status); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidJob, err)
	}
	return nil
}

// ValidateSource validates that a Source has a valid value.
func ValidateSource(source Source) error {
	switch source {
	case SourceWhatsApp, SourceTelegram, SourceManual:
		return nil
	default:
		return fmt.Errorf("%w: value %d", ErrInvalidSource, source)
	}
}

// ValidateJobStatus validates that a JobStatus has a valid value.
func ValidateJobStatus(status JobStatus) error {
	switch status {
	case JobPending, JobRunning, JobCompleted, JobFailed:
		return nil
	default:
		return fmt.Errorf("%w: value %d", ErrInvalidJobStatus, status)
	}
}

// IsValidTimestamp checks if a timestamp is set and not in the future
// (beyond a small clock-skew allowance).
func IsValidTimestamp(ts time.Time) bool {
	if ts.IsZero() {
		return false
	}
	return !ts.After(time.Now().Add(futureSkew))
}
