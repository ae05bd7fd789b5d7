package core

import (
	"errors"
	"testing"
	"time"
)

func TestValidateRawMessage(t *testing.T) {
	validTime := time.Now().Add(-1 * time.Hour)
	futureTime := time.Now().Add(1 * time.Hour)

	tests := []struct {
		name    string
		msg     *RawMessage
		wantErr error
	}{
		{
			name: "valid message",
			msg: &RawMessage{
				ConversationID: "conv-1",
				Sender:         "Alice",
				Content:        "Hello world",
				Timestamp:      validTime,
				Source:         SourceWhatsApp,
			},
			wantErr: nil,
		},
		{
			name: "valid message without recipients",
			msg: &RawMessage{
				Sender:    "Alice",
				Content:   "Hi",
				Timestamp: validTime,
				Source:    SourceManual,
			},
			wantErr: nil,
		},
		{
			name:    "nil message",
			msg:     nil,
			wantErr: ErrInvalidMessage,
		},
		{
			name: "empty sender",
			msg: &RawMessage{
				Content:   "Hello",
				Timestamp: validTime,
				Source:    SourceWhatsApp,
			},
			wantErr: ErrEmptySender,
		},
		{
			name: "empty content",
			msg: &RawMessage{
				Sender:    "Alice",
				Timestamp: validTime,
				Source:    SourceWhatsApp,
			},
			wantErr: ErrEmptyContent,
		},
		{
			name: "unknown source",
			msg: &RawMessage{
				Sender:    "Alice",
				Content:   "Hello",
				Timestamp: validTime,
				Source:    Source(99),
			},
			wantErr: ErrInvalidSource,
		},
		{
			name: "future timestamp",
			msg: &RawMessage{
				Sender:    "Alice",
				Content:   "Hello",
				Timestamp: futureTime,
				Source:    SourceWhatsApp,
			},
			wantErr: ErrInvalidTimestamp,
		},
		{
			name: "zero timestamp",
			msg: &RawMessage{
				Sender:  "Alice",
				Content: "Hello",
				Source:  SourceWhatsApp,
			},
			wantErr: ErrInvalidTimestamp,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRawMessage(tt.msg)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateRawMessage() unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateRawMessage() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateMessage_RequiresUser(t *testing.T) {
	msg := &Message{
		ConversationID: "conv-1",
		Sender:         "Alice",
		Content:        "Hello",
		Timestamp:      time.Now().Add(-time.Minute),
		Source:         SourceWhatsApp,
	}

	if err := ValidateMessage(msg); !errors.Is(err, ErrEmptyUserID) {
		t.Errorf("ValidateMessage() error = %v, want %v", err, ErrEmptyUserID)
	}

	msg.UserID = "user-1"
	if err := ValidateMessage(msg); err != nil {
		t.Errorf("ValidateMessage() unexpected error: %v", err)
	}
}

func TestValidateEmbedding(t *testing.T) {
	tests := []struct {
		name    string
		emb     *Embedding
		wantErr error
	}{
		{
			name: "valid embedding",
			emb: &Embedding{
				UserID: "user-1",
				Vector: []float32{0.1, 0.2, 0.3},
				Text:   "some chunk text",
			},
			wantErr: nil,
		},
		{
			name:    "nil embedding",
			emb:     nil,
			wantErr: ErrInvalidEmbedding,
		},
		{
			name: "missing user",
			emb: &Embedding{
				Vector: []float32{0.1},
				Text:   "text",
			},
			wantErr: ErrEmptyUserID,
		},
		{
			name: "empty vector",
			emb: &Embedding{
				UserID: "user-1",
				Text:   "text",
			},
			wantErr: ErrInvalidEmbedding,
		},
		{
			name: "empty text",
			emb: &Embedding{
				UserID: "user-1",
				Vector: []float32{0.1},
			},
			wantErr: ErrEmptyContent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEmbedding(tt.emb)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateEmbedding() unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateEmbedding() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateJob(t *testing.T) {
	job := &IngestionJob{
		Id:     "job-1",
		UserID: "user-1",
		Status: JobPending,
	}
	if err := ValidateJob(job); err != nil {
		t.Errorf("ValidateJob() unexpected error: %v", err)
	}

	job.Status = JobStatus(42)
	if err := ValidateJob(job); !errors.Is(err, ErrInvalidJobStatus) {
		t.Errorf("ValidateJob() error = %v, want %v", err, ErrInvalidJobStatus)
	}

	if err := ValidateJob(nil); !errors.Is(err, ErrInvalidJob) {
		t.Errorf("ValidateJob(nil) error = %v, want %v", err, ErrInvalidJob)
	}
}
