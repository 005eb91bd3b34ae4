package featurestore

import (
	"io/ioutil"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func randomFeatures(rows, cols int, seed int64) *mat.Dense {
	rng := rand.New(rand.NewSource(seed))
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = rng.NormFloat64()*3 + 5
	}
	return mat.NewDense(rows, cols, data)
}

func Test_Normalize_GlobalStats(t *testing.T) {
	features := randomFeatures(100, 16, 1)
	normalized, err := Normalize(features)
	require.NoError(t, err)

	rows, cols := normalized.Dims()
	require.Equal(t, 100, rows)
	require.Equal(t, 16, cols)

	var sum float64
	for i := 0; i < rows; i++ {
		for _, v := range normalized.RawRowView(i) {
			sum += v
		}
	}
	n := float64(rows * cols)
	mean := sum / n

	var sqDev float64
	for i := 0; i < rows; i++ {
		for _, v := range normalized.RawRowView(i) {
			d := v - mean
			sqDev += d * d
		}
	}
	std := math.Sqrt(sqDev / n)

	require.InDelta(t, 0, mean, 1e-6)
	require.InDelta(t, 1, std, 1e-6)
}

func Test_Normalize_DoesNotMutateInput(t *testing.T) {
	features := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	_, err := Normalize(features)
	require.NoError(t, err)
	require.Equal(t, []float64{1, 2, 3, 4}, features.RawMatrix().Data)
}

func Test_Normalize_ConstantMatrix(t *testing.T) {
	features := mat.NewDense(3, 3, []float64{7, 7, 7, 7, 7, 7, 7, 7, 7})
	_, err := Normalize(features)
	require.Error(t, err)
}

func Test_MemoryStore(t *testing.T) {
	features := mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 6})
	store := NewMemoryStore(features)

	require.Equal(t, 3, store.Len())
	require.Equal(t, 2, store.Dim())

	vec, err := store.Lookup(1)
	require.NoError(t, err)
	require.Equal(t, []float64{3, 4}, vec)

	_, err = store.Lookup(3)
	require.Equal(t, ErrNotFound, err)
	_, err = store.Lookup(-1)
	require.Equal(t, ErrNotFound, err)
}

func Test_LevelDBStore_RoundTrip(t *testing.T) {
	tmpDir, err := ioutil.TempDir("", "test_featurestore_leveldb")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)
	dbPath := filepath.Join(tmpDir, "features.ldb")

	features := randomFeatures(10, 4, 2)
	require.NoError(t, BuildLevelDB(dbPath, features))

	store, err := OpenLevelDB(dbPath)
	require.NoError(t, err)
	defer store.Close()

	require.Equal(t, 10, store.Len())
	require.Equal(t, 4, store.Dim())

	for i := 0; i < 10; i++ {
		vec, err := store.Lookup(i)
		require.NoError(t, err)
		require.Equal(t, features.RawRowView(i), vec)
	}

	_, err = store.Lookup(10)
	require.Equal(t, ErrNotFound, err)
}
