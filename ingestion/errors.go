package ingestion

import "errors"

var (
	// ErrMessageRepositoryRequired is returned when a message repository is not provided.
	ErrMessageRepositoryRequired = errors.New("message repository required")

	// ErrVectorRepositoryRequired is returned when a vector repository is not provided.
	ErrVectorRepositoryRequired = errors.New("vector repository required")

	// ErrJobRepositoryRequired is returned when a job repository is not provided.
	ErrJobRepositoryRequired = errors.New("job repository required")

	// ErrAIProviderRequired is returned when an AI provider is not provided.
	ErrAIProviderRequired = errors.New("AI provider required")

	// ErrJobConflict is returned when a job is submitted while another
	// job overlapping its (user, conversation) scope is still active.
	ErrJobConflict = errors.New("conflicting ingestion job already active")

	// ErrJobCanceled indicates a job was canceled before completion.
	ErrJobCanceled = errors.New("ingestion job canceled")

	// ErrTooManyFailures indicates a job aborted because too large a
	// share of its chunks failed to embed.
	ErrTooManyFailures = errors.New("too many embedding failures")

	// ErrInvalidMaxAttempts is returned for a non-positive retry attempt count.
	ErrInvalidMaxAttempts = errors.New("max attempts must be positive")

	// ErrNoMessages is returned when a job is submitted with no messages.
	ErrNoMessages = errors.New("no messages to ingest")

	// ErrJobNotActive is returned when canceling a job that is not running.
	ErrJobNotActive = errors.New("job is not active")
)
