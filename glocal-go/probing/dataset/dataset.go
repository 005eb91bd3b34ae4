// Package dataset adapts auxiliary classification data to the probing loop.
// Items are precomputed feature vectors with class labels; the network that
// produced them is outside this repository.
package dataset

import (
	"github.com/thingslab/glocal/glocal-golib/errors"
)

// Dataset is the item-access contract shared by all classification datasets.
type Dataset interface {
	Len() int
	// Item returns the feature vector and class label at index i.
	Item(i int) ([]float64, int, error)
}

// SliceDataset serves features and labels held in memory.
type SliceDataset struct {
	features [][]float64
	labels   []int
}

// NewSliceDataset pairs each feature vector with its label.
func NewSliceDataset(features [][]float64, labels []int) (*SliceDataset, error) {
	if len(features) != len(labels) {
		return nil, errors.Errorf("have %d feature vectors but %d labels", len(features), len(labels))
	}
	return &SliceDataset{features: features, labels: labels}, nil
}

// Len returns the number of items.
func (d *SliceDataset) Len() int {
	return len(d.labels)
}

// Item returns the feature vector and label at index i.
func (d *SliceDataset) Item(i int) ([]float64, int, error) {
	if i < 0 || i >= len(d.labels) {
		return nil, 0, errors.Errorf("index %d out of range [0, %d)", i, len(d.labels))
	}
	return d.features[i], d.labels[i], nil
}
