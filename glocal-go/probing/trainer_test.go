package probing

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/thingslab/glocal/glocal-go/probing/dataset"
	"github.com/thingslab/glocal/glocal-go/probing/featurestore"
	"github.com/thingslab/glocal/glocal-golib/errors"
)

// fixture: 12 objects with 4-dim features, every ordered-by-index triple as
// a triplet, and a small 3-class auxiliary stream sharing the feature space.
type trainerFixture struct {
	store    featurestore.Store
	head     *mat.Dense
	trainDS  dataset.Dataset
	valDS    dataset.Dataset
	triplets *TripletStore
}

func newTrainerFixture(t *testing.T) trainerFixture {
	const nObjects, dim, nClasses = 12, 4, 3
	rng := rand.New(rand.NewSource(9))

	data := make([]float64, nObjects*dim)
	for i := range data {
		data[i] = rng.NormFloat64()
	}
	features, err := featurestore.Normalize(mat.NewDense(nObjects, dim, data))
	require.NoError(t, err)

	var triplets []Triplet
	for i := 0; i < nObjects; i++ {
		for j := i + 1; j < nObjects; j++ {
			for k := j + 1; k < nObjects; k++ {
				triplets = append(triplets, Triplet{i, j, k})
			}
		}
	}
	store, err := NewTripletStore(triplets, nObjects)
	require.NoError(t, err)

	headData := make([]float64, nClasses*dim)
	for i := range headData {
		headData[i] = rng.NormFloat64()
	}

	makeAux := func(n int) dataset.Dataset {
		vecs := make([][]float64, n)
		labels := make([]int, n)
		for i := range vecs {
			vec := make([]float64, dim)
			for j := range vec {
				vec[j] = rng.NormFloat64()
			}
			vecs[i] = vec
			labels[i] = i % nClasses
		}
		ds, err := dataset.NewSliceDataset(vecs, labels)
		require.NoError(t, err)
		return ds
	}

	return trainerFixture{
		store:    featurestore.NewMemoryStore(features),
		head:     mat.NewDense(nClasses, dim, headData),
		trainDS:  makeAux(24),
		valDS:    makeAux(12),
		triplets: store,
	}
}

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.TripletBatchSize = 16
	cfg.ClassBatchSize = 8
	cfg.MaxEpochs = 3
	cfg.MinEpochs = 1
	cfg.Patience = 2
	cfg.NumWorkers = 2
	cfg.Sigma = 0.1
	return cfg
}

func Test_Trainer_RunSingleFold(t *testing.T) {
	fx := newTrainerFixture(t)
	cfg := smallConfig()

	trainer, err := NewTrainer(cfg, fx.store, fx.head, fx.trainDS, fx.valDS, fx.triplets)
	require.NoError(t, err)
	require.Equal(t, StateIdle, trainer.State())

	results, transform, err := trainer.Run()
	require.NoError(t, err)
	require.Equal(t, StateDone, trainer.State())

	require.Len(t, results, 1, "glocal probing evaluates one fold by default")
	res := results[0]
	require.Equal(t, 1, res.Fold)
	require.False(t, math.IsNaN(res.Val.Loss))
	require.True(t, res.Val.ChoiceAcc >= 0 && res.Val.ChoiceAcc <= 1)
	require.True(t, res.Val.ClassAcc >= 0 && res.Val.ClassAcc <= 1)
	require.NotEmpty(t, res.Choices)
	for _, choice := range res.Choices {
		require.Contains(t, []int{AmbiguousChoice, 0, 1, 2}, choice)
	}

	require.Len(t, transform.Weights, 4)
	require.Len(t, transform.Weights[0], 4)
	require.Nil(t, transform.Bias, "bias disabled by default")
}

func Test_Trainer_RunMultipleFolds(t *testing.T) {
	fx := newTrainerFixture(t)
	cfg := smallConfig()
	cfg.EvalFolds = cfg.NumFolds
	cfg.UseBias = true

	trainer, err := NewTrainer(cfg, fx.store, fx.head, fx.trainDS, fx.valDS, fx.triplets)
	require.NoError(t, err)

	results, transform, err := trainer.Run()
	require.NoError(t, err)
	require.Len(t, results, 4)
	for i, res := range results {
		require.Equal(t, i+1, res.Fold)
		require.True(t, res.Dropped > 0, "a 12-object fold split must drop boundary triplets")
	}
	require.Len(t, transform.Bias, 4)
}

func Test_Trainer_Deterministic(t *testing.T) {
	cfg := smallConfig()

	fx := newTrainerFixture(t)
	first, err := NewTrainer(cfg, fx.store, fx.head, fx.trainDS, fx.valDS, fx.triplets)
	require.NoError(t, err)
	_, firstTransform, err := first.Run()
	require.NoError(t, err)

	fx = newTrainerFixture(t)
	second, err := NewTrainer(cfg, fx.store, fx.head, fx.trainDS, fx.valDS, fx.triplets)
	require.NoError(t, err)
	_, secondTransform, err := second.Run()
	require.NoError(t, err)

	require.Equal(t, firstTransform, secondTransform, "same seed, same data, same transform")
}

func Test_Trainer_ConfigFailsFast(t *testing.T) {
	fx := newTrainerFixture(t)

	cfg := smallConfig()
	cfg.Alpha = 1.5
	_, err := NewTrainer(cfg, fx.store, fx.head, fx.trainDS, fx.valDS, fx.triplets)
	require.Error(t, err)
	require.True(t, IsConfigurationError(err))

	cfg = smallConfig()
	cfg.NumFolds = 13
	_, err = NewTrainer(cfg, fx.store, fx.head, fx.trainDS, fx.valDS, fx.triplets)
	require.Error(t, err)
	require.True(t, IsConfigurationError(err))

	cfg = smallConfig()
	badHead := mat.NewDense(3, 7, nil)
	_, err = NewTrainer(cfg, fx.store, badHead, fx.trainDS, fx.valDS, fx.triplets)
	require.Error(t, err)
	require.True(t, IsConfigurationError(err))
}

// failingStore delegates to a real store but fails lookups for one id, the
// way an out-of-core backend surfaces a read error.
type failingStore struct {
	featurestore.Store
	badID int
}

func (s failingStore) Lookup(id int) ([]float64, error) {
	if id == s.badID {
		return nil, errors.Errorf("read failed for object %d", id)
	}
	return s.Store.Lookup(id)
}

func Test_Trainer_LookupErrorSurfaces(t *testing.T) {
	fx := newTrainerFixture(t)
	store := failingStore{Store: fx.store, badID: 0}

	trainer, err := NewTrainer(smallConfig(), store, fx.head, fx.trainDS, fx.valDS, fx.triplets)
	require.NoError(t, err)

	_, _, err = trainer.Run()
	require.Error(t, err)
	require.False(t, IsDivergenceError(err))
	require.Contains(t, err.Error(), "looking up object 0")
}

func Test_Trainer_EvaluatePerExampleMean(t *testing.T) {
	fx := newTrainerFixture(t)
	cfg := smallConfig()
	trainer, err := NewTrainer(cfg, fx.store, fx.head, fx.trainDS, fx.valDS, fx.triplets)
	require.NoError(t, err)

	probe, err := NewProbe(4, 4, 1, false, fx.head)
	require.NoError(t, err)

	// 5 triplets at batch size 3 and 12 examples at batch size 7 give two
	// uneven batch pairs, (3, 7) then (2, 5)
	trips := []Triplet{{0, 1, 2}, {3, 4, 5}, {6, 7, 8}, {9, 10, 11}, {0, 5, 10}}
	valTriplets := NewTripletLoader(trips, 3, false, 1)
	valClass := NewClassLoader(fx.valDS, 7, false, 1, 1)

	got, n, err := trainer.evaluate(probe, valTriplets, valClass)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	var wantTripletLoss float64
	pmfs := make([][3]float64, 0, len(trips))
	for _, trip := range trips {
		vecs, err := trainer.transformTriplet(probe, trip)
		require.NoError(t, err)
		z := vecs.transformed
		sims := Similarities(z[0], z[1], z[2])
		loss, _ := trainer.objective.TripletLoss(sims)
		wantTripletLoss += loss
		pmfs = append(pmfs, sims.PMF())
	}
	wantTripletLoss /= float64(len(trips))

	var wantClassLoss float64
	var logits [][]float64
	var labels []int
	for i := 0; i < fx.valDS.Len(); i++ {
		features, label, err := fx.valDS.Item(i)
		require.NoError(t, err)
		res := probe.Forward(features)
		loss, _ := trainer.objective.CrossEntropy(res.Logits, label)
		wantClassLoss += loss
		logits = append(logits, res.Logits)
		labels = append(labels, label)
	}
	wantClassLoss /= float64(fx.valDS.Len())

	require.InDelta(t, wantTripletLoss, got.TripletLoss, 1e-12)
	require.InDelta(t, ChoiceAccuracy(pmfs), got.ChoiceAcc, 1e-12)
	require.InDelta(t, wantClassLoss, got.ClassLoss, 1e-12)
	require.InDelta(t, ClassificationAccuracy(logits, labels), got.ClassAcc, 1e-12)
	want := trainer.objective.Combined(wantTripletLoss, wantClassLoss) + trainer.objective.Regularization(probe.W)
	require.InDelta(t, want, got.Loss, 1e-12)
}

func Test_Trainer_DivergenceAborts(t *testing.T) {
	fx := newTrainerFixture(t)
	cfg := smallConfig()
	// a learning rate this size overflows the similarity terms within an epoch
	cfg.LearningRate = 1e200
	cfg.Optimizer = SGD

	trainer, err := NewTrainer(cfg, fx.store, fx.head, fx.trainDS, fx.valDS, fx.triplets)
	require.NoError(t, err)

	results, _, err := trainer.Run()
	require.Error(t, err)
	require.Empty(t, results, "a diverged fold contributes no result")
}
