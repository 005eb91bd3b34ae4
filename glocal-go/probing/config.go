package probing

import "strings"

// Optimizer selects the parameter update rule for the probe.
type Optimizer int

// Supported optimizers.
const (
	Adam Optimizer = iota
	AdamW
	SGD
)

func (o Optimizer) String() string {
	switch o {
	case Adam:
		return "adam"
	case AdamW:
		return "adamw"
	case SGD:
		return "sgd"
	}
	return "unknown"
}

// ParseOptimizer maps an optimizer name to its Optimizer value. Unknown names
// fail with a ConfigurationError before any training starts.
func ParseOptimizer(name string) (Optimizer, error) {
	switch strings.ToLower(name) {
	case "adam":
		return Adam, nil
	case "adamw":
		return AdamW, nil
	case "sgd":
		return SGD, nil
	}
	return 0, configErrorf("unknown optimizer %q, use Adam, AdamW or SGD", name)
}

// Regularizer selects the penalty applied to the transform weights.
type Regularizer int

// Supported regularizers: plain l2 shrinkage, or shrinkage towards the
// identity so the probe stays close to the untransformed space.
const (
	L2 Regularizer = iota
	Identity
)

func (r Regularizer) String() string {
	switch r {
	case L2:
		return "l2"
	case Identity:
		return "eye"
	}
	return "unknown"
}

// ParseRegularizer maps a regularization name to its Regularizer value.
func ParseRegularizer(name string) (Regularizer, error) {
	switch strings.ToLower(name) {
	case "l2":
		return L2, nil
	case "eye", "identity":
		return Identity, nil
	}
	return 0, configErrorf("unknown regularization %q, use l2 or eye", name)
}

// StoreBackend selects how auxiliary features are stored.
type StoreBackend int

// Supported feature store backends.
const (
	// MemoryBackend keeps the full feature matrix in memory.
	MemoryBackend StoreBackend = iota
	// LevelDBBackend reads feature vectors out-of-core from a leveldb file.
	LevelDBBackend
)

func (b StoreBackend) String() string {
	switch b {
	case MemoryBackend:
		return "memory"
	case LevelDBBackend:
		return "leveldb"
	}
	return "unknown"
}

// ParseStoreBackend maps a backend name to its StoreBackend value.
func ParseStoreBackend(name string) (StoreBackend, error) {
	switch strings.ToLower(name) {
	case "memory", "mem":
		return MemoryBackend, nil
	case "leveldb":
		return LevelDBBackend, nil
	}
	return 0, configErrorf("unknown feature store backend %q, use memory or leveldb", name)
}

// Config bundles the optimization hyperparameters for a probing run.
type Config struct {
	Optimizer    Optimizer
	LearningRate float64
	Regularizer  Regularizer

	// Alpha is the relative contribution of the classification loss; the
	// triplet similarity loss is weighted by 1 - Alpha.
	Alpha float64
	// Tau is the softmax temperature of the similarity loss.
	Tau float64
	// Lambda is the regularization strength.
	Lambda float64
	// Sigma scales the identity initialization of the transform.
	Sigma float64

	// ProbeDim is the output dimensionality of the transform; 0 keeps the
	// feature dimensionality, making the probe identity-shaped.
	ProbeDim int

	TripletBatchSize int
	ClassBatchSize   int

	MaxEpochs int
	// MinEpochs is the burn-in floor: early stopping cannot fire before it.
	MinEpochs int
	// Patience is the number of validation checks without improvement
	// (by more than minDelta) after which fitting stops.
	Patience int

	UseBias bool

	// NumFolds is the number of object-level cross-validation folds.
	NumFolds int
	// EvalFolds is the number of folds actually trained and evaluated
	// before the outer loop stops. Glocal probing conventionally uses 1;
	// set EvalFolds = NumFolds for full cross-validation.
	EvalFolds int

	// NumWorkers is the worker count for materializing classification
	// batches. The triplet stream is always loaded synchronously.
	NumWorkers int

	Seed int64
}

// DefaultConfig mirrors the conventional glocal probing setup.
func DefaultConfig() Config {
	return Config{
		Optimizer:        Adam,
		LearningRate:     1e-3,
		Regularizer:      L2,
		Alpha:            1e-1,
		Tau:              1,
		Lambda:           1e-3,
		Sigma:            1e-3,
		TripletBatchSize: 256,
		ClassBatchSize:   1024,
		MaxEpochs:        100,
		MinEpochs:        10,
		Patience:         10,
		NumFolds:         4,
		EvalFolds:        1,
		NumWorkers:       4,
		Seed:             42,
	}
}

// Validate fails with a ConfigurationError on the first invalid field.
func (c Config) Validate() error {
	if c.LearningRate <= 0 {
		return configErrorf("learning rate must be positive, got %v", c.LearningRate)
	}
	if c.Alpha < 0 || c.Alpha > 1 {
		return configErrorf("alpha must lie in [0, 1], got %v", c.Alpha)
	}
	if c.Tau <= 0 {
		return configErrorf("tau must be positive, got %v", c.Tau)
	}
	if c.Lambda < 0 {
		return configErrorf("lambda must be non-negative, got %v", c.Lambda)
	}
	if c.ProbeDim < 0 {
		return configErrorf("probe dimensionality must be non-negative, got %d", c.ProbeDim)
	}
	if c.TripletBatchSize < 1 || c.ClassBatchSize < 1 {
		return configErrorf("batch sizes must be positive, got %d and %d", c.TripletBatchSize, c.ClassBatchSize)
	}
	if c.MaxEpochs < 1 {
		return configErrorf("max epochs must be positive, got %d", c.MaxEpochs)
	}
	if c.MinEpochs < 0 || c.MinEpochs > c.MaxEpochs {
		return configErrorf("min epochs must lie in [0, max epochs], got %d", c.MinEpochs)
	}
	if c.Patience < 1 {
		return configErrorf("patience must be positive, got %d", c.Patience)
	}
	if c.NumFolds < 2 {
		return configErrorf("need at least 2 folds, got %d", c.NumFolds)
	}
	if c.EvalFolds < 1 || c.EvalFolds > c.NumFolds {
		return configErrorf("eval folds must lie in [1, %d], got %d", c.NumFolds, c.EvalFolds)
	}
	return nil
}
