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


package badger

import "github.com/keepsake-ai/keepsake/storage"

// NewMemoryRepositories creates in-memory message, vector, and job
// repositories for testing. Caller must close the repositories and the
// backend when done.
func NewMemoryRepositories(dimension int) (storage.MessageRepository, storage.VectorRepository, storage.JobRepository, *Backend, error) {
	backend, err := OpenBackend("", true)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	messageRepo, err := NewMessageRepository(backend)
	if err != nil {
		backend.Close()
		return nil, nil, nil, nil, err
	}

	vectorRepo, err := NewVectorRepository(backend, dimension)
	if err != nil {
		messageRepo.Close()
		backend.Close()
		return nil, nil, nil, nil, err
	}

	jobRepo := NewJobRepository(backend)

	return messageRepo, vectorRepo, jobRepo, backend, nil
}
