package badger

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/keepsake-ai/keepsake/core"
	"github.com/keepsake-ai/keepsake/storage"
)

// VectorRepository implements storage.VectorRepository for BadgerDB.
// Similarity search is a flat scan over one user's embeddings; with
// per-tenant corpora in the tens of thousands this beats maintaining an
// approximate index.
type VectorRepository struct {
	backend   *Backend
	idSeq     *badger.Sequence
	dimension int
}

var _ storage.VectorRepository = (*VectorRepository)(nil)

// newVectorRepository is an internal constructor returning the concrete type.
func newVectorRepository(backend *Backend, dimension int) (*VectorRepository, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive", storage.ErrInvalidQuery)
	}

	idSeq, err := backend.GetSequence(embeddingIDSeq)
	if err != nil {
		return nil, err
	}

	return &VectorRepository{
		backend:   backend,
		idSeq:     idSeq,
		dimension: dimension,
	}, nil
}

// NewVectorRepository creates a vector repository on the given backend.
// All stored and queried vectors must have the given dimension.
//
// Returns storage.VectorRepository interface to enforce abstraction.
func NewVectorRepository(backend *Backend, dimension int) (storage.VectorRepository, error) {
	return newVectorRepository(backend, dimension)
}

// Close releases the ID sequence.
func (r *VectorRepository) Close() error {
	return r.idSeq.Release()
}

// PutEmbeddings persists embeddings with sequence-generated IDs.
func (r *VectorRepository) PutEmbeddings(ctx context.Context, embeddings ...*core.Embedding) ([]*core.Embedding, error) {
	for _, emb := range embeddings {
		if err := core.ValidateEmbedding(emb); err != nil {
			return nil, err
		}
		if len(emb.Vector) != r.dimension {
			return nil, fmt.Errorf("%w: expected %d components, received %d",
				storage.ErrDimensionMismatch, r.dimension, len(emb.Vector))
		}
	}

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, emb := range embeddings {
			nextID, err := r.idSeq.Next()
			if err != nil {
				return err
			}
			// BadgerDB sequences can return 0 on first call, so we skip it
			if nextID == 0 {
				nextID, err = r.idSeq.Next()
				if err != nil {
					return err
				}
			}
			emb.Id = core.ID(nextID)
			emb.InsertedAt = time.Now().UTC()

			value, err := storage.MarshalEmbedding(emb)
			if err != nil {
				return err
			}
			if err := tx.Set(makeEmbeddingKey(emb.UserID, emb.Id), value); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)

	if err != nil {
		return nil, err
	}
	return embeddings, nil
}

// FindSimilar searches one user's embeddings by cosine distance.
func (r *VectorRepository) FindSimilar(ctx context.Context, userID string, query storage.SimilarityQuery) ([]*core.SimilarityMatch, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user ID required", storage.ErrInvalidQuery)
	}
	if query.Limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", storage.ErrInvalidQuery)
	}
	if len(query.Vector) != r.dimension {
		return nil, fmt.Errorf("%w: query vector has %d components, store uses %d",
			storage.ErrDimensionMismatch, len(query.Vector), r.dimension)
	}

	var matches []*core.SimilarityMatch

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeEmbeddingPrefix(userID)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var emb *core.Embedding
			err := iter.Item().Value(func(val []byte) error {
				var err error
				emb, err = storage.UnmarshalEmbedding(val)
				return err
			})
			if err != nil {
				return err
			}

			// The key prefix already scopes the scan; a record claiming
			// a different owner means the store is corrupt.
			if emb.UserID != userID {
				return fmt.Errorf("%w: embedding %d owned by different user", core.ErrTenantIsolation, emb.Id)
			}

			if query.ConversationID != "" && emb.ConversationID != query.ConversationID {
				continue
			}
			if len(emb.Vector) != r.dimension {
				continue
			}

			// Cosine distance for unit vectors: 1 - dot product.
			distance := 1 - dotProduct(query.Vector, emb.Vector)
			if query.MaxDistance > 0 && distance > query.MaxDistance {
				continue
			}

			matches = append(matches, &core.SimilarityMatch{
				Embedding: emb,
				Distance:  distance,
			})
		}
		return nil
	}, false)

	if err != nil {
		return nil, err
	}

	// Order by distance ascending; ties go to the newer message
	// timestamp, then the smaller embedding ID, so rankings are stable
	// across runs.
	slices.SortFunc(matches, func(a, b *core.SimilarityMatch) int {
		if a.Distance < b.Distance {
			return -1
		}
		if a.Distance > b.Distance {
			return 1
		}
		if a.Embedding.MessageTimestamp.After(b.Embedding.MessageTimestamp) {
			return -1
		}
		if a.Embedding.MessageTimestamp.Before(b.Embedding.MessageTimestamp) {
			return 1
		}
		if a.Embedding.Id < b.Embedding.Id {
			return -1
		}
		if a.Embedding.Id > b.Embedding.Id {
			return 1
		}
		return 0
	})

	if len(matches) > query.Limit {
		matches = matches[:query.Limit]
	}
	return matches, nil
}

// CountEmbeddings returns the number of embeddings stored for a user.
func (r *VectorRepository) CountEmbeddings(ctx context.Context, userID string) (int, error) {
	count := 0
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeEmbeddingPrefix(userID)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	}, false)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// dotProduct calculates the dot product of two vectors.
func dotProduct(a, b []float32) float32 {
	var sum float32
	minLen := len(a)
	if len(b) < minLen {
		minLen = len(b)
	}
	for i := 0; i < minLen; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
