package probing

import (
	"encoding/gob"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
	"github.com/montanaflynn/stats"

	"github.com/thingslab/glocal/glocal-golib/errors"
)

// ResultRow is one probing run appended to the tabular results store.
type ResultRow struct {
	Model        string  `csv:"model"`
	Probing      float64 `csv:"probing"`
	CrossEntropy float64 `csv:"cross-entropy"`
	Module       string  `csv:"module"`
	Family       string  `csv:"family"`
	Source       string  `csv:"source"`
	Reg          string  `csv:"reg"`
	Optim        string  `csv:"optim"`
	LR           float64 `csv:"lr"`
	Alpha        float64 `csv:"alpha"`
	Lambda       float64 `csv:"lambda"`
	Tau          float64 `csv:"tau"`
	Bias         bool    `csv:"bias"`
	Contrastive  bool    `csv:"contrastive"`
}

// MeanChoiceAccuracy averages the validation choice accuracy over the
// completed folds.
func MeanChoiceAccuracy(results []FoldResult) (float64, error) {
	return meanMetric(results, func(m Metrics) float64 { return m.ChoiceAcc })
}

// MeanLoss averages the validation loss over the completed folds.
func MeanLoss(results []FoldResult) (float64, error) {
	return meanMetric(results, func(m Metrics) float64 { return m.Loss })
}

func meanMetric(results []FoldResult, metric func(Metrics) float64) (float64, error) {
	if len(results) == 0 {
		return 0, errors.New("no completed folds to aggregate")
	}
	vals := make([]float64, 0, len(results))
	for _, res := range results {
		vals = append(vals, metric(res.Val))
	}
	return stats.Mean(vals)
}

// CollectChoices concatenates the per-fold odd-one-out choices in fold order.
func CollectChoices(results []FoldResult) []int {
	var choices []int
	for _, res := range results {
		choices = append(choices, res.Choices...)
	}
	return choices
}

// AppendResultRow appends one row to the CSV results file at path, creating
// the file with headers when it does not exist yet.
func AppendResultRow(path string, row ResultRow) error {
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return errors.Wrapf(err, "error creating results directory")
	}

	var rows []ResultRow
	if f, err := os.Open(path); err == nil {
		err = gocsv.UnmarshalFile(f, &rows)
		f.Close()
		if err != nil {
			return errors.Wrapf(err, "error reading existing results file")
		}
	} else if !os.IsNotExist(err) {
		return errors.Wrapf(err, "error opening results file")
	}
	rows = append(rows, row)

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "error writing results file")
	}
	defer f.Close()
	return gocsv.Marshal(&rows, f)
}

// SaveTransform writes the learned transformation to a single gob archive
// with the weights and, when enabled, the bias keyed by field name.
func SaveTransform(path string, transform Transform) error {
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return errors.Wrapf(err, "error creating transform directory")
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "error creating transform file")
	}
	defer f.Close()
	return gob.NewEncoder(f).Encode(transform)
}

// LoadTransform reads a transformation written by SaveTransform.
func LoadTransform(path string) (Transform, error) {
	f, err := os.Open(path)
	if err != nil {
		return Transform{}, errors.Wrapf(err, "error opening transform file")
	}
	defer f.Close()
	var transform Transform
	if err := gob.NewDecoder(f).Decode(&transform); err != nil {
		return Transform{}, errors.Wrapf(err, "error decoding transform file")
	}
	return transform, nil
}
