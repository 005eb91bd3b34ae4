package featurestore

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/thingslab/glocal/glocal-golib/errors"
)

// Normalize returns a copy of the feature matrix with the global mean
// subtracted and the global standard deviation divided out. The statistics
// are computed over the entire matrix, not per fold or per column, so the
// same affine map applies to every object regardless of fold membership.
func Normalize(features *mat.Dense) (*mat.Dense, error) {
	rows, cols := features.Dims()
	n := float64(rows * cols)
	if n == 0 {
		return nil, errors.New("cannot normalize an empty feature matrix")
	}

	var sum float64
	for i := 0; i < rows; i++ {
		for _, v := range features.RawRowView(i) {
			sum += v
		}
	}
	mean := sum / n

	var sqDev float64
	for i := 0; i < rows; i++ {
		for _, v := range features.RawRowView(i) {
			d := v - mean
			sqDev += d * d
		}
	}
	std := math.Sqrt(sqDev / n)
	if std == 0 {
		return nil, errors.New("feature matrix is constant, standard deviation is zero")
	}

	normalized := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		src := features.RawRowView(i)
		dst := normalized.RawRowView(i)
		for j, v := range src {
			dst[j] = (v - mean) / std
		}
	}
	return normalized, nil
}
