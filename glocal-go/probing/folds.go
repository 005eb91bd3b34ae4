package probing

import (
	"math/rand"
	"sort"
)

// Fold is one object-level cross-validation split. Train and validation
// object sets are disjoint and together cover the full object universe.
type Fold struct {
	Index int
	Train []int
	Val   []int
}

// SplitObjects shuffles the object universe once with the provided seed and
// cuts it into k contiguous validation blocks, one per fold. Every object
// lands in exactly one fold's validation set; each fold's train set is the
// complement of its block.
func SplitObjects(nObjects, k int, seed int64) ([]Fold, error) {
	if k < 2 {
		return nil, configErrorf("need at least 2 folds, got %d", k)
	}
	if k > nObjects {
		return nil, configErrorf("cannot split %d objects into %d folds", nObjects, k)
	}

	objects := make([]int, nObjects)
	for i := range objects {
		objects[i] = i
	}
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(objects), func(i, j int) {
		objects[i], objects[j] = objects[j], objects[i]
	})

	// The first nObjects % k folds receive one extra object each.
	folds := make([]Fold, 0, k)
	size, rem := nObjects/k, nObjects%k
	var start int
	for f := 0; f < k; f++ {
		stop := start + size
		if f < rem {
			stop++
		}
		val := append([]int(nil), objects[start:stop]...)
		train := make([]int, 0, nObjects-len(val))
		train = append(train, objects[:start]...)
		train = append(train, objects[stop:]...)
		sort.Ints(val)
		sort.Ints(train)
		folds = append(folds, Fold{Index: f + 1, Train: train, Val: val})
		start = stop
	}
	return folds, nil
}
