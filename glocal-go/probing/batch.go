package probing

import (
	"math/rand"

	"github.com/thingslab/glocal/glocal-go/probing/dataset"
	"github.com/thingslab/glocal/glocal-golib/workerpool"
)

// ClassBatch is one auxiliary classification batch: feature vectors with
// their class labels.
type ClassBatch struct {
	Features [][]float64
	Labels   []int
}

// BatchPair couples one triplet batch with one classification batch for a
// single joint optimization step.
type BatchPair struct {
	Triplets []Triplet
	Class    ClassBatch
}

// TripletLoader yields batches of triplets. Training loaders reshuffle on
// every call to Batches; evaluation loaders keep the stored order.
type TripletLoader struct {
	triplets  []Triplet
	batchSize int
	shuffle   bool
	rng       *rand.Rand
}

// NewTripletLoader builds a loader over the provided triplets.
func NewTripletLoader(triplets []Triplet, batchSize int, shuffle bool, seed int64) *TripletLoader {
	return &TripletLoader{
		triplets:  triplets,
		batchSize: batchSize,
		shuffle:   shuffle,
		rng:       rand.New(rand.NewSource(seed)),
	}
}

// NumBatches returns the number of batches per epoch. The last batch may be
// smaller than the batch size; it is never dropped.
func (l *TripletLoader) NumBatches() int {
	return (len(l.triplets) + l.batchSize - 1) / l.batchSize
}

// Batches materializes one epoch of triplet batches.
func (l *TripletLoader) Batches() [][]Triplet {
	order := l.triplets
	if l.shuffle {
		order = append([]Triplet(nil), l.triplets...)
		l.rng.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
	}

	batches := make([][]Triplet, 0, l.NumBatches())
	for start := 0; start < len(order); start += l.batchSize {
		stop := start + l.batchSize
		if stop > len(order) {
			stop = len(order)
		}
		batches = append(batches, order[start:stop])
	}
	return batches
}

// ClassLoader yields classification batches from a dataset adapter. Training
// loaders reshuffle every epoch and may materialize batches on a worker
// pool; evaluation loaders keep dataset order and load synchronously.
type ClassLoader struct {
	ds        dataset.Dataset
	batchSize int
	shuffle   bool
	workers   int
	rng       *rand.Rand
}

// NewClassLoader builds a loader over the provided dataset. workers is the
// size of the materialization pool; values below 2 mean synchronous loading.
func NewClassLoader(ds dataset.Dataset, batchSize int, shuffle bool, workers int, seed int64) *ClassLoader {
	return &ClassLoader{
		ds:        ds,
		batchSize: batchSize,
		shuffle:   shuffle,
		workers:   workers,
		rng:       rand.New(rand.NewSource(seed)),
	}
}

// NumBatches returns the number of batches per epoch.
func (l *ClassLoader) NumBatches() int {
	return (l.ds.Len() + l.batchSize - 1) / l.batchSize
}

// Batches materializes one epoch of classification batches. Batches are
// returned in draw order regardless of which worker filled them.
func (l *ClassLoader) Batches() ([]ClassBatch, error) {
	order := make([]int, l.ds.Len())
	for i := range order {
		order[i] = i
	}
	if l.shuffle {
		l.rng.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
	}

	numBatches := l.NumBatches()
	batches := make([]ClassBatch, numBatches)

	fill := func(b int) error {
		start := b * l.batchSize
		stop := start + l.batchSize
		if stop > len(order) {
			stop = len(order)
		}
		batch := ClassBatch{
			Features: make([][]float64, 0, stop-start),
			Labels:   make([]int, 0, stop-start),
		}
		for _, idx := range order[start:stop] {
			features, label, err := l.ds.Item(idx)
			if err != nil {
				return err
			}
			batch.Features = append(batch.Features, features)
			batch.Labels = append(batch.Labels, label)
		}
		batches[b] = batch
		return nil
	}

	if l.workers < 2 {
		for b := 0; b < numBatches; b++ {
			if err := fill(b); err != nil {
				return nil, err
			}
		}
		return batches, nil
	}

	// workers write at disjoint batch indices, so no locking is needed
	pool := workerpool.New(l.workers)
	defer pool.Stop()

	jobs := make([]workerpool.Job, 0, numBatches)
	for b := 0; b < numBatches; b++ {
		b := b
		jobs = append(jobs, func() error {
			return fill(b)
		})
	}
	pool.Add(jobs)
	if err := pool.Wait(); err != nil {
		return nil, err
	}
	return batches, nil
}

// ZipBatches pairs triplet and classification batches in lockstep. Pairing
// stops with the shorter stream; leftover batches from the longer stream are
// unused for the epoch. The auxiliary stream is large relative to the
// triplet stream, so full coverage of it is not required every epoch.
func ZipBatches(triplets [][]Triplet, class []ClassBatch) []BatchPair {
	n := len(triplets)
	if len(class) < n {
		n = len(class)
	}
	pairs := make([]BatchPair, 0, n)
	for i := 0; i < n; i++ {
		pairs = append(pairs, BatchPair{Triplets: triplets[i], Class: class[i]})
	}
	return pairs
}
