package main

import (
	"encoding/gob"
	"fmt"
	"log"
	"os"
	"path/filepath"

	arg "github.com/alexflint/go-arg"
	"github.com/sbwhitecap/tqdm"
	"github.com/sbwhitecap/tqdm/iterators"
	"gonum.org/v1/gonum/mat"

	"github.com/thingslab/glocal/glocal-go/analyses"
	"github.com/thingslab/glocal/glocal-go/probing"
	"github.com/thingslab/glocal/glocal-go/probing/dataset"
	"github.com/thingslab/glocal/glocal-go/probing/featurestore"
)

func fail(err error) {
	if err != nil {
		log.Fatalln(err)
	}
}

type matrixFile struct {
	Rows, Cols int
	Data       []float64
}

func loadMatrix(path string) (*mat.Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var mf matrixFile
	if err := gob.NewDecoder(f).Decode(&mf); err != nil {
		return nil, err
	}
	return mat.NewDense(mf.Rows, mf.Cols, mf.Data), nil
}

func loadLabels(path string) ([]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var labels []int
	if err := gob.NewDecoder(f).Decode(&labels); err != nil {
		return nil, err
	}
	return labels, nil
}

// auxDataset serves an auxiliary classification split through the selected
// feature store backend. With the leveldb backend the features are staged to
// an out-of-core store first and the in-memory copy is released.
func auxDataset(backend probing.StoreBackend, storeDir, split string, features *mat.Dense, labels []int) (dataset.Dataset, error) {
	if backend == probing.MemoryBackend {
		rows, _ := features.Dims()
		vecs := make([][]float64, rows)
		for i := range vecs {
			vecs[i] = features.RawRowView(i)
		}
		return dataset.NewSliceDataset(vecs, labels)
	}

	dbPath := filepath.Join(storeDir, split+".ldb")
	builder, err := featurestore.NewBuilder(dbPath)
	if err != nil {
		return nil, err
	}
	rows, _ := features.Dims()
	var addErr error
	err = tqdm.With(iterators.Interval(0, rows), "Indexing "+split+" features", func(c interface{}) (brk bool) {
		i := c.(int)
		if addErr = builder.Add(i, features.RawRowView(i)); addErr != nil {
			return true
		}
		return
	})
	if addErr != nil {
		return nil, addErr
	}
	if err != nil {
		return nil, err
	}
	if err := builder.Finish(); err != nil {
		return nil, err
	}
	store, err := featurestore.OpenLevelDB(dbPath)
	if err != nil {
		return nil, err
	}
	base, err := dataset.NewSliceDataset(make([][]float64, len(labels)), labels)
	if err != nil {
		return nil, err
	}
	return dataset.NewEmbedded(base, store), nil
}

func floatArg(v float64) string {
	return fmt.Sprintf("%g", v)
}

func main() {
	args := struct {
		Model  string `arg:"required" help:"name of the model whose features are probed"`
		Module string `help:"module the features were extracted from (penultimate or logits)"`
		Source string `help:"model zoo the features came from"`

		NObjects int    `help:"number of object categories in the triplet data"`
		Features string `arg:"required" help:"path to the object feature matrix (gob)"`
		Triplets string `arg:"required" help:"path to the odd-one-out triplet file"`

		AuxTrainFeatures string `arg:"required" help:"auxiliary train split feature matrix (gob)"`
		AuxTrainLabels   string `arg:"required" help:"auxiliary train split labels (gob)"`
		AuxValFeatures   string `arg:"required" help:"auxiliary validation split feature matrix (gob)"`
		AuxValLabels     string `arg:"required" help:"auxiliary validation split labels (gob)"`
		Head             string `arg:"required" help:"frozen classifier head matrix (gob)"`

		Backend  string `help:"feature store backend for the auxiliary stream (memory or leveldb)"`
		StoreDir string `help:"directory for out-of-core feature stores"`

		Optim        string  `help:"optimizer (Adam, AdamW or SGD)"`
		LearningRate float64 `help:"learning rate"`
		Reg          string  `help:"regularization (l2 or eye)"`
		Alpha        float64 `help:"relative contribution of the classification loss"`
		Tau          float64 `help:"temperature of the similarity loss"`
		Lmbda        float64 `help:"regularization strength"`
		Sigma        float64 `help:"scale of the identity initialization"`

		TripletBatchSize int `help:"triplet stream batch size"`
		ClassBatchSize   int `help:"auxiliary stream batch size"`
		Epochs           int `help:"maximum number of epochs"`
		Burnin           int `help:"minimum number of epochs before early stopping"`
		Patience         int `help:"validation checks without improvement before stopping"`
		Workers          int `help:"worker count for auxiliary batch loading"`

		UseBias   bool  `help:"learn a bias alongside the transform"`
		Folds     int   `help:"number of object-level cross-validation folds"`
		EvalFolds int   `help:"number of folds to train before stopping"`
		Seed      int64 `help:"random seed"`

		ProbingRoot string `arg:"required" help:"root directory for results and transforms"`
	}{
		Module:           "penultimate",
		Source:           "torchvision",
		NObjects:         1854,
		Backend:          "memory",
		Optim:            "Adam",
		LearningRate:     1e-3,
		Reg:              "l2",
		Alpha:            1e-1,
		Tau:              1,
		Lmbda:            1e-3,
		Sigma:            1e-3,
		TripletBatchSize: 256,
		ClassBatchSize:   1024,
		Epochs:           100,
		Burnin:           10,
		Patience:         10,
		Workers:          4,
		Folds:            4,
		EvalFolds:        1,
		Seed:             42,
	}
	arg.MustParse(&args)

	optim, err := probing.ParseOptimizer(args.Optim)
	fail(err)
	reg, err := probing.ParseRegularizer(args.Reg)
	fail(err)
	backend, err := probing.ParseStoreBackend(args.Backend)
	fail(err)
	if backend == probing.LevelDBBackend && args.StoreDir == "" {
		log.Fatalln("must specify --storedir for the leveldb backend")
	}

	cfg := probing.Config{
		Optimizer:        optim,
		LearningRate:     args.LearningRate,
		Regularizer:      reg,
		Alpha:            args.Alpha,
		Tau:              args.Tau,
		Lambda:           args.Lmbda,
		Sigma:            args.Sigma,
		TripletBatchSize: args.TripletBatchSize,
		ClassBatchSize:   args.ClassBatchSize,
		MaxEpochs:        args.Epochs,
		MinEpochs:        args.Burnin,
		Patience:         args.Patience,
		UseBias:          args.UseBias,
		NumFolds:         args.Folds,
		EvalFolds:        args.EvalFolds,
		NumWorkers:       args.Workers,
		Seed:             args.Seed,
	}
	fail(cfg.Validate())

	features, err := loadMatrix(args.Features)
	fail(err)
	normalized, err := featurestore.Normalize(features)
	fail(err)
	store := featurestore.NewMemoryStore(normalized)
	log.Printf("loaded %d object features with %d dims", store.Len(), store.Dim())

	triplets, err := probing.LoadTriplets(args.Triplets, args.NObjects)
	fail(err)
	log.Printf("loaded %d triplets over %d objects", triplets.Len(), args.NObjects)

	head, err := loadMatrix(args.Head)
	fail(err)

	auxTrainFeatures, err := loadMatrix(args.AuxTrainFeatures)
	fail(err)
	auxTrainLabels, err := loadLabels(args.AuxTrainLabels)
	fail(err)
	trainDS, err := auxDataset(backend, args.StoreDir, "train_set", auxTrainFeatures, auxTrainLabels)
	fail(err)

	auxValFeatures, err := loadMatrix(args.AuxValFeatures)
	fail(err)
	auxValLabels, err := loadLabels(args.AuxValLabels)
	fail(err)
	valDS, err := auxDataset(backend, args.StoreDir, "val", auxValFeatures, auxValLabels)
	fail(err)

	trainer, err := probing.NewTrainer(cfg, store, head, trainDS, valDS, triplets)
	fail(err)
	results, transform, err := trainer.Run()
	fail(err)

	meanAcc, err := probing.MeanChoiceAccuracy(results)
	fail(err)
	meanLoss, err := probing.MeanLoss(results)
	fail(err)
	log.Printf("probing accuracy %.4f, loss %.4f over %d completed folds", meanAcc, meanLoss, len(results))

	row := probing.ResultRow{
		Model:        args.Model,
		Probing:      meanAcc,
		CrossEntropy: meanLoss,
		Module:       args.Module,
		Family:       analyses.GetFamilyName(args.Model),
		Source:       args.Source,
		Reg:          reg.String(),
		Optim:        optim.String(),
		LR:           args.LearningRate,
		Alpha:        args.Alpha,
		Lambda:       args.Lmbda,
		Tau:          args.Tau,
		Bias:         args.UseBias,
		Contrastive:  true,
	}
	fail(probing.AppendResultRow(filepath.Join(args.ProbingRoot, "results", "probing_results.csv"), row))

	outDir := filepath.Join(
		args.ProbingRoot, "results",
		args.Source, args.Model, args.Module,
		floatArg(args.Alpha), floatArg(args.Lmbda), floatArg(args.Tau),
		optim.String(), floatArg(args.LearningRate),
	)
	fail(probing.SaveTransform(filepath.Join(outDir, "transform.gob"), transform))
	log.Println("saved transform to", outDir)
}
