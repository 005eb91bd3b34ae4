package probing

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Objective combines the triplet similarity loss and the auxiliary
// classification loss into one scalar, plus the transform regularization.
type Objective struct {
	// Alpha weighs the classification loss; 1 - Alpha weighs the
	// similarity loss. At 0 training degrades to pure similarity
	// learning, at 1 to pure classification.
	Alpha float64
	// Tau is the softmax temperature of the similarity loss.
	Tau float64
	// Lambda is the regularization strength.
	Lambda float64
	// Reg selects between l2 shrinkage and shrinkage towards identity.
	Reg Regularizer
}

// TripletLoss is the temperature-scaled contrastive loss over the three
// pairwise similarities: softmax cross-entropy with the anchor-positive
// pairing as the target. It returns the loss and its gradient with respect
// to the three similarities.
func (o Objective) TripletLoss(sims PairSimilarities) (float64, [3]float64) {
	scaled := [3]float64{sims[0] / o.Tau, sims[1] / o.Tau, sims[2] / o.Tau}
	pmf := softmax3(scaled)

	loss := -math.Log(pmf[0])
	grad := [3]float64{
		(pmf[0] - 1) / o.Tau,
		pmf[1] / o.Tau,
		pmf[2] / o.Tau,
	}
	return loss, grad
}

// CrossEntropy is the multi-class cross-entropy of one logit row against its
// label. It returns the loss and its gradient with respect to the logits
// (softmax minus one-hot).
func (o Objective) CrossEntropy(logits []float64, label int) (float64, []float64) {
	max := logits[0]
	for _, v := range logits[1:] {
		if v > max {
			max = v
		}
	}
	var sum float64
	grad := make([]float64, len(logits))
	for i, v := range logits {
		grad[i] = math.Exp(v - max)
		sum += grad[i]
	}
	logSum := math.Log(sum)
	loss := logSum - (logits[label] - max)
	for i := range grad {
		grad[i] /= sum
	}
	grad[label]--
	return loss, grad
}

// Combined mixes the two loss terms with the convex weight Alpha.
func (o Objective) Combined(tripletLoss, classLoss float64) float64 {
	return (1-o.Alpha)*tripletLoss + o.Alpha*classLoss
}

// Regularization is the weight penalty: the mean squared entry of W for l2,
// or of W - I for identity regularization.
func (o Objective) Regularization(w *mat.Dense) float64 {
	rows, cols := w.Dims()
	n := float64(rows * cols)
	var sum float64
	for i := 0; i < rows; i++ {
		for j, v := range w.RawRowView(i) {
			if o.Reg == Identity && i == j {
				v--
			}
			sum += v * v
		}
	}
	return o.Lambda * sum / n
}

// AddRegularizationGrad accumulates the regularization gradient into grad.
func (o Objective) AddRegularizationGrad(w, grad *mat.Dense) {
	rows, cols := w.Dims()
	scale := 2 * o.Lambda / float64(rows*cols)
	for i := 0; i < rows; i++ {
		src := w.RawRowView(i)
		dst := grad.RawRowView(i)
		for j, v := range src {
			if o.Reg == Identity && i == j {
				v--
			}
			dst[j] += scale * v
		}
	}
}
