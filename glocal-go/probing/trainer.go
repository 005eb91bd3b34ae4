package probing

import (
	"log"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/thingslab/glocal/glocal-go/probing/dataset"
	"github.com/thingslab/glocal/glocal-go/probing/featurestore"
	"github.com/thingslab/glocal/glocal-golib/errors"
)

// validation loss must improve by more than this to reset patience
const minDelta = 1e-4

// State tracks the trainer through one fold's lifecycle.
type State int

// Trainer states, in transition order.
const (
	StateIdle State = iota
	StateFitting
	StateEvaluating
	StatePredicting
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFitting:
		return "fitting"
	case StateEvaluating:
		return "evaluating"
	case StatePredicting:
		return "predicting"
	case StateDone:
		return "done"
	}
	return "unknown"
}

// Metrics aggregates one evaluation pass.
type Metrics struct {
	Loss        float64
	TripletLoss float64
	ChoiceAcc   float64
	ClassLoss   float64
	ClassAcc    float64
}

// FoldResult is the outcome of one completed fold.
type FoldResult struct {
	Fold    int
	Epochs  int
	Dropped int
	Val     Metrics
	// Choices are the per-example odd-one-out predictions over the
	// fold's validation triplets; AmbiguousChoice marks undecidable ones.
	Choices []int
}

// Transform is the learned mapping, exported as plain numeric matrices.
type Transform struct {
	Weights [][]float64
	Bias    []float64
}

// Trainer drives the fit/evaluate/predict cycle over object folds. The
// feature store serves the (already normalized) object embeddings behind the
// triplet stream; the dataset adapters serve the auxiliary classification
// stream; the head is the frozen classifier of the probed network.
type Trainer struct {
	cfg       Config
	objective Objective
	store     featurestore.Store
	head      *mat.Dense
	trainDS   dataset.Dataset
	valDS     dataset.Dataset
	triplets  *TripletStore

	state State
	probe *Probe
}

// NewTrainer validates the configuration and the dimensional contract
// between the feature store, the probe and the classifier head. All
// configuration failures surface here, before any fold starts.
func NewTrainer(cfg Config, store featurestore.Store, head *mat.Dense, trainDS, valDS dataset.Dataset, triplets *TripletStore) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.NumFolds > triplets.NumObjects() {
		return nil, configErrorf("cannot split %d objects into %d folds", triplets.NumObjects(), cfg.NumFolds)
	}
	dOut := cfg.ProbeDim
	if dOut == 0 {
		dOut = store.Dim()
	}
	if _, hc := head.Dims(); hc != dOut {
		return nil, configErrorf("classifier head expects %d-dim input but probe outputs %d dims", hc, dOut)
	}
	return &Trainer{
		cfg: cfg,
		objective: Objective{
			Alpha:  cfg.Alpha,
			Tau:    cfg.Tau,
			Lambda: cfg.Lambda,
			Reg:    cfg.Regularizer,
		},
		store:    store,
		head:     head,
		trainDS:  trainDS,
		valDS:    valDS,
		triplets: triplets,
		state:    StateIdle,
	}, nil
}

// State returns the trainer's current state.
func (t *Trainer) State() State {
	return t.state
}

// Run processes folds sequentially until EvalFolds folds have been attempted,
// and returns the per-fold results together with the transformation learned
// on the last completed fold. A fold whose validation loss turns non-finite
// is reported as a warning and omitted from the results; every other error
// aborts the run.
func (t *Trainer) Run() ([]FoldResult, Transform, error) {
	folds, err := SplitObjects(t.triplets.NumObjects(), t.cfg.NumFolds, t.cfg.Seed)
	if err != nil {
		return nil, Transform{}, err
	}

	var results []FoldResult
	var lastProbe *Probe
	for _, fold := range folds[:t.cfg.EvalFolds] {
		res, probe, err := t.runFold(fold)
		if err != nil {
			if IsDivergenceError(err) {
				log.Printf("warning: dropping fold %d: %v", fold.Index, err)
				continue
			}
			return nil, Transform{}, err
		}
		results = append(results, res)
		lastProbe = probe
	}
	t.state = StateDone
	if lastProbe == nil {
		return nil, Transform{}, errors.Errorf("all %d evaluated folds diverged", t.cfg.EvalFolds)
	}
	t.probe = lastProbe
	return results, exportTransform(lastProbe), nil
}

func exportTransform(probe *Probe) Transform {
	dOut, _ := probe.Dims()
	weights := make([][]float64, dOut)
	for i := range weights {
		weights[i] = append([]float64(nil), probe.W.RawRowView(i)...)
	}
	var bias []float64
	if probe.B != nil {
		bias = append([]float64(nil), probe.B...)
	}
	return Transform{Weights: weights, Bias: bias}
}

func (t *Trainer) runFold(fold Fold) (FoldResult, *Probe, error) {
	partition, err := t.triplets.Partition(fold.Train)
	if err != nil {
		return FoldResult{}, nil, err
	}

	seed := t.cfg.Seed + int64(fold.Index)
	trainTriplets := NewTripletLoader(partition.Train, t.cfg.TripletBatchSize, true, seed)
	valTriplets := NewTripletLoader(partition.Val, t.cfg.TripletBatchSize, false, seed)
	trainClass := NewClassLoader(t.trainDS, t.cfg.ClassBatchSize, true, t.cfg.NumWorkers, seed)
	valClass := NewClassLoader(t.valDS, t.cfg.ClassBatchSize, false, 1, seed)

	dOut := t.cfg.ProbeDim
	if dOut == 0 {
		dOut = t.store.Dim()
	}
	probe, err := NewProbe(t.store.Dim(), dOut, t.cfg.Sigma, t.cfg.UseBias, t.head)
	if err != nil {
		return FoldResult{}, nil, err
	}
	opt := newStepper(t.cfg.Optimizer, t.cfg.LearningRate, t.cfg.Regularizer, probe)
	grads := probe.NewGradients()

	// Fitting
	t.state = StateFitting
	best := math.Inf(1)
	var sinceImprovement, epochs int
	for epoch := 1; epoch <= t.cfg.MaxEpochs; epoch++ {
		epochs = epoch

		classBatches, err := trainClass.Batches()
		if err != nil {
			return FoldResult{}, nil, errors.Wrapf(err, "error loading classification batches")
		}
		for _, pair := range ZipBatches(trainTriplets.Batches(), classBatches) {
			if _, err := t.step(probe, opt, grads, pair, true); err != nil {
				return FoldResult{}, nil, err
			}
		}

		valMetrics, _, err := t.evaluate(probe, valTriplets, valClass)
		if err != nil {
			return FoldResult{}, nil, err
		}
		if math.IsNaN(valMetrics.Loss) || math.IsInf(valMetrics.Loss, 0) {
			return FoldResult{}, nil, DivergenceError{Fold: fold.Index, Epoch: epoch, Loss: valMetrics.Loss}
		}
		log.Printf("fold %d epoch %d: val loss %.4f choice acc %.4f class acc %.4f",
			fold.Index, epoch, valMetrics.Loss, valMetrics.ChoiceAcc, valMetrics.ClassAcc)

		if valMetrics.Loss < best-minDelta {
			best = valMetrics.Loss
			sinceImprovement = 0
		} else {
			sinceImprovement++
		}
		if epoch >= t.cfg.MinEpochs && sinceImprovement >= t.cfg.Patience {
			break
		}
	}

	// Evaluating
	t.state = StateEvaluating
	valMetrics, _, err := t.evaluate(probe, valTriplets, valClass)
	if err != nil {
		return FoldResult{}, nil, err
	}

	// Predicting: triplet-only validation stream, no labels involved.
	t.state = StatePredicting
	var choices []int
	for _, batch := range valTriplets.Batches() {
		pmfs, err := t.tripletPMFs(probe, batch)
		if err != nil {
			return FoldResult{}, nil, err
		}
		for _, choice := range Choices(pmfs) {
			choices = append(choices, ConvertPrediction(choice))
		}
	}

	return FoldResult{
		Fold:    fold.Index,
		Epochs:  epochs,
		Dropped: partition.Dropped,
		Val:     valMetrics,
		Choices: choices,
	}, probe, nil
}

// evaluate runs one full pass over the validation pairs. Batch means are
// weighted by batch size so a short final batch does not skew the fold
// metrics; the aggregate is an exact per-example mean.
func (t *Trainer) evaluate(probe *Probe, valTriplets *TripletLoader, valClass *ClassLoader) (Metrics, int, error) {
	classBatches, err := valClass.Batches()
	if err != nil {
		return Metrics{}, 0, errors.Wrapf(err, "error loading validation batches")
	}
	pairs := ZipBatches(valTriplets.Batches(), classBatches)
	if len(pairs) == 0 {
		return Metrics{}, 0, nil
	}

	var agg Metrics
	var nTriplets, nExamples float64
	for _, pair := range pairs {
		m, err := t.step(probe, nil, nil, pair, false)
		if err != nil {
			return Metrics{}, 0, err
		}
		wt := float64(len(pair.Triplets))
		wc := float64(len(pair.Class.Labels))
		agg.TripletLoss += m.TripletLoss * wt
		agg.ChoiceAcc += m.ChoiceAcc * wt
		agg.ClassLoss += m.ClassLoss * wc
		agg.ClassAcc += m.ClassAcc * wc
		nTriplets += wt
		nExamples += wc
	}
	agg.TripletLoss /= nTriplets
	agg.ChoiceAcc /= nTriplets
	agg.ClassLoss /= nExamples
	agg.ClassAcc /= nExamples
	agg.Loss = t.objective.Combined(agg.TripletLoss, agg.ClassLoss) + t.objective.Regularization(probe.W)
	return agg, len(pairs), nil
}

func (t *Trainer) tripletPMFs(probe *Probe, batch []Triplet) ([][3]float64, error) {
	pmfs := make([][3]float64, 0, len(batch))
	for _, trip := range batch {
		vecs, err := t.transformTriplet(probe, trip)
		if err != nil {
			return nil, err
		}
		z := vecs.transformed
		pmfs = append(pmfs, Similarities(z[0], z[1], z[2]).PMF())
	}
	return pmfs, nil
}

// tripletVectors holds one triplet's feature vectors in (anchor, positive,
// negative) order, raw beside transformed, so the backward pass reuses the
// raw vectors instead of a second store lookup.
type tripletVectors struct {
	raw         [3][]float64
	transformed [3][]float64
}

func (t *Trainer) transformTriplet(probe *Probe, trip Triplet) (tripletVectors, error) {
	var vecs tripletVectors
	for i, id := range trip {
		features, err := t.store.Lookup(id)
		if err != nil {
			return tripletVectors{}, errors.Wrapf(err, "error looking up object %d", id)
		}
		vecs.raw[i] = features
		vecs.transformed[i] = probe.Transform(features)
	}
	return vecs, nil
}

// step runs one batch pair through the probe. In training mode it
// accumulates gradients from both loss terms and applies one optimizer
// update; gradients from the two objectives flow through the shared
// transform in the same step, they are never alternated.
func (t *Trainer) step(probe *Probe, opt *stepper, grads *Gradients, pair BatchPair, train bool) (Metrics, error) {
	if train {
		grads.Reset()
	}

	// similarity term
	var tripletLoss float64
	pmfs := make([][3]float64, 0, len(pair.Triplets))
	tripletScale := (1 - t.cfg.Alpha) / float64(len(pair.Triplets))
	for _, trip := range pair.Triplets {
		vecs, err := t.transformTriplet(probe, trip)
		if err != nil {
			return Metrics{}, err
		}
		za, zp, zn := vecs.transformed[0], vecs.transformed[1], vecs.transformed[2]
		sims := Similarities(za, zp, zn)
		loss, simGrad := t.objective.TripletLoss(sims)
		tripletLoss += loss
		pmfs = append(pmfs, sims.PMF())

		if train {
			dza := axpy(simGrad[0], zp, simGrad[1], zn)
			dzp := axpy(simGrad[0], za, simGrad[2], zn)
			dzn := axpy(simGrad[1], za, simGrad[2], zp)
			grads.Accumulate(dza, vecs.raw[0], tripletScale)
			grads.Accumulate(dzp, vecs.raw[1], tripletScale)
			grads.Accumulate(dzn, vecs.raw[2], tripletScale)
		}
	}
	tripletLoss /= float64(len(pair.Triplets))

	// classification term
	var classLoss float64
	logits := make([][]float64, 0, len(pair.Class.Labels))
	classScale := t.cfg.Alpha / float64(len(pair.Class.Labels))
	for i, features := range pair.Class.Features {
		res := probe.Forward(features)
		loss, dLogits := t.objective.CrossEntropy(res.Logits, pair.Class.Labels[i])
		classLoss += loss
		logits = append(logits, res.Logits)

		if train {
			grads.Accumulate(probe.BackpropHead(dLogits), features, classScale)
		}
	}
	classLoss /= float64(len(pair.Class.Labels))

	m := Metrics{
		TripletLoss: tripletLoss,
		ChoiceAcc:   ChoiceAccuracy(pmfs),
		ClassLoss:   classLoss,
		ClassAcc:    ClassificationAccuracy(logits, pair.Class.Labels),
	}
	m.Loss = t.objective.Combined(tripletLoss, classLoss) + t.objective.Regularization(probe.W)

	if train {
		t.objective.AddRegularizationGrad(probe.W, grads.W)
		opt.Step(probe, grads)
	}
	return m, nil
}

// a*x + b*y, elementwise
func axpy(a float64, x []float64, b float64, y []float64) []float64 {
	out := make([]float64, len(x))
	for i := range x {
		out[i] = a*x[i] + b*y[i]
	}
	return out
}
