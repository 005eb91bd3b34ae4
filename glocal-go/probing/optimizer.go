package probing

import (
	"math"
)

const (
	adamBeta1 = 0.9
	adamBeta2 = 0.999
	adamEps   = 1e-8

	sgdMomentum = 0.9

	// AdamW's decoupled decay. The regularization strength lambda is
	// charged through the loss gradient, never here; this decay is the
	// optimizer's own and stays off under the identity regularizer, which
	// shrinks toward I rather than zero.
	adamWeightDecay = 1e-2

	// gradients are clipped to this global norm before every update
	maxGradNorm = 1.0
)

// stepper applies one parameter update. One implementation exists per
// Optimizer value; unknown names never reach this point because
// ParseOptimizer rejects them at configuration time.
type stepper struct {
	kind  Optimizer
	lr    float64
	decay float64

	t int

	// Adam moments / SGD velocity, laid out like the flattened weight
	// matrix followed by the bias.
	m []float64
	v []float64
}

func newStepper(kind Optimizer, lr float64, reg Regularizer, probe *Probe) *stepper {
	dOut, dIn := probe.Dims()
	size := dOut * dIn
	if probe.B != nil {
		size += dOut
	}
	s := &stepper{kind: kind, lr: lr, m: make([]float64, size)}
	if kind == AdamW && reg != Identity {
		s.decay = adamWeightDecay
	}
	if kind == Adam || kind == AdamW {
		s.v = make([]float64, size)
	}
	return s
}

// Step clips the gradient to maxGradNorm and applies one update to the
// probe's transform parameters.
func (s *stepper) Step(probe *Probe, grads *Gradients) {
	wGrad := grads.W.RawMatrix().Data
	clipByNorm(wGrad, grads.B)

	s.t++
	wData := probe.W.RawMatrix().Data
	s.apply(wData, wGrad, 0, true)
	if probe.B != nil {
		s.apply(probe.B, grads.B, len(wData), false)
	}
}

func (s *stepper) apply(params, grads []float64, offset int, isWeights bool) {
	switch s.kind {
	case SGD:
		for i := range params {
			vel := &s.m[offset+i]
			*vel = sgdMomentum**vel + grads[i]
			params[i] -= s.lr * *vel
		}
	case Adam, AdamW:
		bc1 := 1 - math.Pow(adamBeta1, float64(s.t))
		bc2 := 1 - math.Pow(adamBeta2, float64(s.t))
		for i := range params {
			j := offset + i
			s.m[j] = adamBeta1*s.m[j] + (1-adamBeta1)*grads[i]
			s.v[j] = adamBeta2*s.v[j] + (1-adamBeta2)*grads[i]*grads[i]
			mHat := s.m[j] / bc1
			vHat := s.v[j] / bc2
			params[i] -= s.lr * mHat / (math.Sqrt(vHat) + adamEps)
			// decoupled weight decay, weights only
			if isWeights && s.decay != 0 {
				params[i] -= s.lr * s.decay * params[i]
			}
		}
	}
}

func clipByNorm(wGrad, bGrad []float64) {
	var sq float64
	for _, g := range wGrad {
		sq += g * g
	}
	for _, g := range bGrad {
		sq += g * g
	}
	norm := math.Sqrt(sq)
	if norm <= maxGradNorm {
		return
	}
	scale := maxGradNorm / norm
	for i := range wGrad {
		wGrad[i] *= scale
	}
	for i := range bGrad {
		bGrad[i] *= scale
	}
}
