package featurestore

import (
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"gonum.org/v1/gonum/mat"

	"github.com/thingslab/glocal/glocal-golib/bufutil"
	"github.com/thingslab/glocal/glocal-golib/errors"
)

var metaKey = []byte("meta")

// LevelDBStore serves feature vectors out-of-core from a leveldb database,
// for feature sets too large to pin in memory.
type LevelDBStore struct {
	db   *leveldb.DB
	rows int
	cols int
}

// Builder writes feature vectors to a leveldb database, keyed by object id.
type Builder struct {
	db    *leveldb.DB
	batch *leveldb.Batch
	rows  int
	cols  int
}

// NewBuilder creates the database at path for writing.
func NewBuilder(path string) (*Builder, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "error creating feature db")
	}
	return &Builder{db: db, batch: new(leveldb.Batch)}, nil
}

// Add stores the vector for the given object id. All vectors must share one
// length.
func (b *Builder) Add(id int, vec []float64) error {
	if b.rows == 0 {
		b.cols = len(vec)
	} else if len(vec) != b.cols {
		return errors.Errorf("vector %d has %d dims, want %d", id, len(vec), b.cols)
	}
	b.batch.Put(bufutil.IntToBytes(int64(id)), bufutil.FloatsToBytes(vec))
	b.rows++
	return nil
}

// Finish writes the metadata record, flushes everything and closes the
// database.
func (b *Builder) Finish() error {
	meta := append(bufutil.IntToBytes(int64(b.rows)), bufutil.IntToBytes(int64(b.cols))...)
	b.batch.Put(metaKey, meta)
	err := b.db.Write(b.batch, nil)
	if cerr := b.db.Close(); err == nil {
		err = cerr
	}
	return errors.WrapfOrNil(err, "error writing feature db")
}

// BuildLevelDB writes every row of the feature matrix to a leveldb database
// at path; row i becomes the vector for object i.
func BuildLevelDB(path string, features *mat.Dense) error {
	builder, err := NewBuilder(path)
	if err != nil {
		return err
	}
	rows, _ := features.Dims()
	for i := 0; i < rows; i++ {
		if err := builder.Add(i, features.RawRowView(i)); err != nil {
			return err
		}
	}
	return builder.Finish()
}

// OpenLevelDB opens a feature database written by a Builder, read-only.
func OpenLevelDB(path string) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{ReadOnly: true})
	if err != nil {
		return nil, errors.Wrapf(err, "error opening feature db")
	}
	meta, err := db.Get(metaKey, nil)
	if err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "feature db has no metadata record")
	}
	if len(meta) != 16 {
		db.Close()
		return nil, errors.Errorf("feature db metadata record has %d bytes, want 16", len(meta))
	}
	return &LevelDBStore{
		db:   db,
		rows: int(bufutil.BytesToInt(meta[:8])),
		cols: int(bufutil.BytesToInt(meta[8:])),
	}, nil
}

// Lookup returns the feature vector for the given object id.
func (s *LevelDBStore) Lookup(id int) ([]float64, error) {
	val, err := s.db.Get(bufutil.IntToBytes(int64(id)), nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "error reading feature vector %d", id)
	}
	return bufutil.BytesToFloats(val), nil
}

// Dim returns the vector length.
func (s *LevelDBStore) Dim() int {
	return s.cols
}

// Len returns the number of stored vectors.
func (s *LevelDBStore) Len() int {
	return s.rows
}

// Close releases the underlying database.
func (s *LevelDBStore) Close() error {
	return s.db.Close()
}
