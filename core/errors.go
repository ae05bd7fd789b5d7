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

import "errors"

// Domain validation errors
var (
	// ErrInvalidMessage indicates a message failed validation.
	ErrInvalidMessage = errors.New("invalid message")

	// ErrInvalidEmbedding indicates an embedding failed validation.
	ErrInvalidEmbedding = errors.New("invalid embedding")

	// ErrInvalidJob indicates an ingestion job failed validation.
	ErrInvalidJob = errors.New("invalid ingestion job")

	// ErrInvalidTimestamp indicates a timestamp is zero or in the future.
	ErrInvalidTimestamp = errors.New("timestamp must be set and not in the future")

	// ErrEmptyContent indicates the Content field is empty.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrEmptySender indicates the Sender field is empty.
	ErrEmptySender = errors.New("sender cannot be empty")

	// ErrEmptyUserID indicates a record is missing its tenant scope.
	ErrEmptyUserID = errors.New("user id cannot be empty")

	// ErrInvalidSource indicates an invalid Source value.
	ErrInvalidSource = errors.New("invalid source")

	// ErrInvalidJobStatus indicates an invalid JobStatus value.
	ErrInvalidJobStatus = errors.New("invalid job status")

	// ErrTenantIsolation indicates a record crossed a tenant boundary.
	// This is an invariant breach, never a recoverable condition.
	ErrTenantIsolation = errors.New("tenant isolation violation")
)
