package probing

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/gocarina/gocsv"
	"github.com/stretchr/testify/require"
)

func Test_MeanMetrics(t *testing.T) {
	results := []FoldResult{
		{Fold: 1, Val: Metrics{Loss: 1.0, ChoiceAcc: 0.5}},
		{Fold: 2, Val: Metrics{Loss: 3.0, ChoiceAcc: 0.7}},
	}

	acc, err := MeanChoiceAccuracy(results)
	require.NoError(t, err)
	require.InDelta(t, 0.6, acc, 1e-12)

	loss, err := MeanLoss(results)
	require.NoError(t, err)
	require.InDelta(t, 2.0, loss, 1e-12)

	_, err = MeanChoiceAccuracy(nil)
	require.Error(t, err)
}

func Test_CollectChoices(t *testing.T) {
	results := []FoldResult{
		{Fold: 1, Choices: []int{2, AmbiguousChoice}},
		{Fold: 2, Choices: []int{0}},
	}
	require.Equal(t, []int{2, AmbiguousChoice, 0}, CollectChoices(results))
	require.Empty(t, CollectChoices(nil))
}

func Test_AppendResultRow(t *testing.T) {
	dir, err := ioutil.TempDir("", "glocal-results")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "results", "probing_results.csv")
	first := ResultRow{
		Model:   "clip-ViT",
		Probing: 0.61,
		Module:  "penultimate",
		Family:  "CLIP",
		Source:  "custom",
		Reg:     "l2",
		Optim:   "adam",
		LR:      1e-3,
		Alpha:   0.1,
		Lambda:  1e-3,
		Tau:     1,
	}
	require.NoError(t, AppendResultRow(path, first))

	second := first
	second.Model = "vgg16"
	second.Probing = 0.48
	second.Bias = true
	require.NoError(t, AppendResultRow(path, second))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	var rows []ResultRow
	require.NoError(t, gocsv.UnmarshalFile(f, &rows))
	require.Len(t, rows, 2)
	require.Equal(t, first, rows[0])
	require.Equal(t, second, rows[1])
}

func Test_TransformRoundTrip(t *testing.T) {
	dir, err := ioutil.TempDir("", "glocal-transform")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	transform := Transform{
		Weights: [][]float64{{1, 0.5}, {-0.5, 1}},
		Bias:    []float64{0.1, -0.1},
	}
	path := filepath.Join(dir, "adam", "0.001", "transform.gob")
	require.NoError(t, SaveTransform(path, transform))

	loaded, err := LoadTransform(path)
	require.NoError(t, err)
	require.Equal(t, transform, loaded)

	_, err = LoadTransform(filepath.Join(dir, "missing.gob"))
	require.Error(t, err)
}
