// Package featurestore serves fixed-length embedding vectors keyed by object
// id, from memory or out-of-core. Both backends expose the same lookup
// contract and are interchangeable.
package featurestore

import (
	"gonum.org/v1/gonum/mat"

	"github.com/thingslab/glocal/glocal-golib/errors"
)

// ErrNotFound is returned when a store holds no vector for the requested id.
var ErrNotFound = errors.New("feature vector not found")

// Store is the read-only lookup contract shared by all backends.
type Store interface {
	Lookup(id int) ([]float64, error)
	Dim() int
	Len() int
}

// MemoryStore serves rows of a dense in-memory feature matrix.
type MemoryStore struct {
	features *mat.Dense
	rows     int
	cols     int
}

// NewMemoryStore wraps the provided matrix; row i is the vector for object i.
func NewMemoryStore(features *mat.Dense) *MemoryStore {
	rows, cols := features.Dims()
	return &MemoryStore{features: features, rows: rows, cols: cols}
}

// Lookup returns the feature vector for the given object id.
func (s *MemoryStore) Lookup(id int) ([]float64, error) {
	if id < 0 || id >= s.rows {
		return nil, ErrNotFound
	}
	return s.features.RawRowView(id), nil
}

// Dim returns the vector length.
func (s *MemoryStore) Dim() int {
	return s.cols
}

// Len returns the number of stored vectors.
func (s *MemoryStore) Len() int {
	return s.rows
}
