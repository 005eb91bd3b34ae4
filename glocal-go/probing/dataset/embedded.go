package dataset

// Lookup resolves an item index to a precomputed embedding. The feature
// store backends in probing/featurestore satisfy this.
type Lookup interface {
	Lookup(id int) ([]float64, error)
}

// EmbeddedDataset substitutes precomputed embeddings for a base dataset's
// feature vectors while keeping its labels and ordering. It composes over
// any Dataset rather than subclassing a particular one.
type EmbeddedDataset struct {
	base   Dataset
	lookup Lookup
}

// NewEmbedded wraps base so that Item serves embeddings from lookup.
func NewEmbedded(base Dataset, lookup Lookup) *EmbeddedDataset {
	return &EmbeddedDataset{base: base, lookup: lookup}
}

// Len returns the base dataset's length.
func (d *EmbeddedDataset) Len() int {
	return d.base.Len()
}

// Item returns the embedding for index i with the base dataset's label.
func (d *EmbeddedDataset) Item(i int) ([]float64, int, error) {
	_, label, err := d.base.Item(i)
	if err != nil {
		return nil, 0, err
	}
	embedding, err := d.lookup.Lookup(i)
	if err != nil {
		return nil, 0, err
	}
	return embedding, label, nil
}
