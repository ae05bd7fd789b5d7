package badger

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/keepsake-ai/keepsake/core"
	"github.com/keepsake-ai/keepsake/storage"
)

// JobRepository implements storage.JobRepository for BadgerDB.
type JobRepository struct {
	backend *Backend
}

var _ storage.JobRepository = (*JobRepository)(nil)

// newJobRepository is an internal constructor returning the concrete type.
func newJobRepository(backend *Backend) *JobRepository {
	return &JobRepository{backend: backend}
}

// NewJobRepository creates a job repository on the given backend.
//
// Returns storage.JobRepository interface to enforce abstraction.
func NewJobRepository(backend *Backend) storage.JobRepository {
	return newJobRepository(backend)
}

// Close is a no-op; jobs use no sequence.
func (r *JobRepository) Close() error {
	return nil
}

// CreateJob persists a new job record.
func (r *JobRepository) CreateJob(ctx context.Context, job *core.IngestionJob) error {
	if err := core.ValidateJob(job); err != nil {
		return err
	}

	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeJobKey(job.Id)

		_, err := tx.Get(key)
		if err == nil {
			return storage.ErrDuplicateKey
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		now := time.Now().UTC()
		if job.CreatedAt.IsZero() {
			job.CreatedAt = now
		}
		job.UpdatedAt = now

		value, err := storage.MarshalJob(job)
		if err != nil {
			return err
		}
		if err := tx.Set(key, value); err != nil {
			return err
		}
		if err := tx.Set(makeJobUserKey(job.UserID, job.Id), []byte(job.Id)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// GetJob retrieves a job by ID.
func (r *JobRepository) GetJob(ctx context.Context, id string) (*core.IngestionJob, error) {
	var job *core.IngestionJob
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeJobKey(id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			var err error
			job, err = storage.UnmarshalJob(val)
			return err
		})
	}, false)
	if err != nil {
		return nil, err
	}
	return job, nil
}

// UpdateJob overwrites an existing job record.
func (r *JobRepository) UpdateJob(ctx context.Context, job *core.IngestionJob) error {
	if err := core.ValidateJob(job); err != nil {
		return err
	}

	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeJobKey(job.Id)

		_, err := tx.Get(key)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.ErrNotFound
			}
			return err
		}

		job.UpdatedAt = time.Now().UTC()

		value, err := storage.MarshalJob(job)
		if err != nil {
			return err
		}
		if err := tx.Set(key, value); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// ListJobsByUser returns all jobs submitted by a user, newest first.
func (r *JobRepository) ListJobsByUser(ctx context.Context, userID string) ([]*core.IngestionJob, error) {
	var jobs []*core.IngestionJob

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeJobUserPrefix(userID)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var jobID string
			err := iter.Item().Value(func(val []byte) error {
				jobID = string(val)
				return nil
			})
			if err != nil {
				return err
			}

			item, err := tx.Get(makeJobKey(jobID))
			if err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					continue
				}
				return err
			}
			var job *core.IngestionJob
			err = item.Value(func(val []byte) error {
				var err error
				job, err = storage.UnmarshalJob(val)
				return err
			})
			if err != nil {
				return err
			}
			jobs = append(jobs, job)
		}
		return nil
	}, false)

	if err != nil {
		return nil, err
	}

	slices.SortFunc(jobs, func(a, b *core.IngestionJob) int {
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		if a.CreatedAt.Before(b.CreatedAt) {
			return 1
		}
		return 0
	})
	return jobs, nil
}
