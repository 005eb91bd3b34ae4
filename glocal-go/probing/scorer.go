package probing

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// AmbiguousChoice is the sentinel for an undecidable similarity comparison.
// It is distinct from every valid pairing index and propagates as data, not
// as an error: near-uniform similarity distributions are expected at
// non-trivial rates early in training.
const AmbiguousChoice = -1

// PairSimilarities holds the inner products of the three pairings of a
// triplet, in the fixed order anchor·positive, anchor·negative,
// positive·negative.
type PairSimilarities [3]float64

// Similarities applies the similarity function, modeled as a dot product, to
// each pair in the triplet.
func Similarities(anchor, positive, negative []float64) PairSimilarities {
	return PairSimilarities{
		floats.Dot(anchor, positive),
		floats.Dot(anchor, negative),
		floats.Dot(positive, negative),
	}
}

// PMF turns the three similarities into a probability mass over "which pair
// is the most similar pair".
func (s PairSimilarities) PMF() [3]float64 {
	return softmax3([3]float64(s))
}

// max-shifted for stability
func softmax3(vals [3]float64) [3]float64 {
	max := vals[0]
	for _, v := range vals[1:] {
		if v > max {
			max = v
		}
	}
	var sum float64
	var out [3]float64
	for i, v := range vals {
		out[i] = math.Exp(v - max)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// BreakTies returns the arg-max pairing index of the PMF, or AmbiguousChoice
// when the decision is undefined: the three entries are not all distinct, or
// they collapse to a single value after rounding to 2 decimal places.
func BreakTies(pmf [3]float64) int {
	if pmf[0] == pmf[1] || pmf[0] == pmf[2] || pmf[1] == pmf[2] {
		return AmbiguousChoice
	}
	r0, r1, r2 := round2(pmf[0]), round2(pmf[1]), round2(pmf[2])
	if r0 == r1 && r1 == r2 {
		return AmbiguousChoice
	}
	argmax := 0
	for i := 1; i < 3; i++ {
		if pmf[i] > pmf[argmax] {
			argmax = i
		}
	}
	return argmax
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ConvertPrediction maps the arg-max pairing index to the odd-one-out member
// of the triplet: the pairing that came out most similar excludes exactly one
// member, which is the odd one out. Pairing 0 (anchor, positive) excludes
// the negative at position 2 and vice versa; pairing 1 excludes position 1.
// The sentinel passes through unchanged.
func ConvertPrediction(pairIdx int) int {
	switch pairIdx {
	case 0:
		return 2
	case 2:
		return 0
	default:
		return pairIdx
	}
}

// ChoiceAccuracy is the mean hit rate over a batch of PMFs. Under the stored
// triplet convention the anchor-positive pairing is the human choice, so a
// hit is an unambiguous arg-max at index 0.
func ChoiceAccuracy(pmfs [][3]float64) float64 {
	if len(pmfs) == 0 {
		return 0
	}
	var hits int
	for _, pmf := range pmfs {
		if BreakTies(pmf) == 0 {
			hits++
		}
	}
	return float64(hits) / float64(len(pmfs))
}

// Choices returns the per-example tie-broken choices for offline analysis.
func Choices(pmfs [][3]float64) []int {
	choices := make([]int, len(pmfs))
	for i, pmf := range pmfs {
		choices[i] = BreakTies(pmf)
	}
	return choices
}

// ClassificationAccuracy is the arg-max hit rate of the logits against the
// labels.
func ClassificationAccuracy(logits [][]float64, labels []int) float64 {
	if len(logits) == 0 {
		return 0
	}
	var hits int
	for i, row := range logits {
		argmax := 0
		for j := 1; j < len(row); j++ {
			if row[j] > row[argmax] {
				argmax = j
			}
		}
		if argmax == labels[i] {
			hits++
		}
	}
	return float64(hits) / float64(len(logits))
}
