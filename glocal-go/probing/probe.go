package probing

import (
	"gonum.org/v1/gonum/mat"
)

// Probe is the trainable affine transformation of the frozen feature space,
// together with the frozen classifier head that turns transformed auxiliary
// features into class logits. Only the transform (and its bias, if enabled)
// receives gradient updates.
type Probe struct {
	// W has shape dOut x dIn.
	W *mat.Dense
	// B has length dOut; nil when the bias is disabled.
	B []float64
	// Head has shape nClasses x dOut and stays frozen.
	Head *mat.Dense

	dIn, dOut int
}

// ForwardResult carries both outputs of a forward pass: the transformed
// embedding and, when a classification batch is attached, the class logits.
// Returning both explicitly replaces any side-channel capture of
// intermediate activations.
type ForwardResult struct {
	Activation []float64
	Logits     []float64
}

// NewProbe initializes the transform at sigma times the identity (truncated
// when the probe is not square) with a zero bias, so optimization starts
// from a scaled copy of the untransformed space.
func NewProbe(dIn, dOut int, sigma float64, useBias bool, head *mat.Dense) (*Probe, error) {
	if dIn < 1 || dOut < 1 {
		return nil, configErrorf("probe dimensions must be positive, got %d x %d", dOut, dIn)
	}
	if head != nil {
		if _, hc := head.Dims(); hc != dOut {
			return nil, configErrorf("classifier head expects %d-dim input but probe outputs %d dims", hc, dOut)
		}
	}
	w := mat.NewDense(dOut, dIn, nil)
	for i := 0; i < dOut && i < dIn; i++ {
		w.Set(i, i, sigma)
	}
	var b []float64
	if useBias {
		b = make([]float64, dOut)
	}
	return &Probe{W: w, B: b, Head: head, dIn: dIn, dOut: dOut}, nil
}

// Dims returns the (output, input) dimensions of the transform.
func (p *Probe) Dims() (dOut, dIn int) {
	return p.dOut, p.dIn
}

// Transform maps a feature vector through the affine transform.
func (p *Probe) Transform(features []float64) []float64 {
	out := make([]float64, p.dOut)
	for i := 0; i < p.dOut; i++ {
		row := p.W.RawRowView(i)
		var sum float64
		for j, v := range row {
			sum += v * features[j]
		}
		if p.B != nil {
			sum += p.B[i]
		}
		out[i] = sum
	}
	return out
}

// Forward transforms a feature vector and, when the probe carries a head,
// also produces the class logits of the transformed vector.
func (p *Probe) Forward(features []float64) ForwardResult {
	activation := p.Transform(features)
	res := ForwardResult{Activation: activation}
	if p.Head != nil {
		nClasses, _ := p.Head.Dims()
		logits := make([]float64, nClasses)
		for c := 0; c < nClasses; c++ {
			row := p.Head.RawRowView(c)
			var sum float64
			for j, v := range row {
				sum += v * activation[j]
			}
			logits[c] = sum
		}
		res.Logits = logits
	}
	return res
}

// BackpropHead maps a logit gradient back to an activation gradient through
// the frozen head.
func (p *Probe) BackpropHead(dLogits []float64) []float64 {
	dz := make([]float64, p.dOut)
	for c, g := range dLogits {
		if g == 0 {
			continue
		}
		row := p.Head.RawRowView(c)
		for j, v := range row {
			dz[j] += g * v
		}
	}
	return dz
}

// Gradients accumulates parameter gradients across one optimization step.
type Gradients struct {
	W *mat.Dense
	B []float64
}

// NewGradients allocates zeroed gradients matching the probe's parameters.
func (p *Probe) NewGradients() *Gradients {
	g := &Gradients{W: mat.NewDense(p.dOut, p.dIn, nil)}
	if p.B != nil {
		g.B = make([]float64, p.dOut)
	}
	return g
}

// Reset zeroes the accumulated gradients in place.
func (g *Gradients) Reset() {
	raw := g.W.RawMatrix().Data
	for i := range raw {
		raw[i] = 0
	}
	for i := range g.B {
		g.B[i] = 0
	}
}

// Accumulate adds scale * (dz outer features) to the weight gradient and
// scale * dz to the bias gradient. dz is the loss gradient at the
// transformed vector, features the input that produced it.
func (g *Gradients) Accumulate(dz, features []float64, scale float64) {
	for i, gz := range dz {
		if gz == 0 {
			continue
		}
		row := g.W.RawRowView(i)
		s := scale * gz
		for j, f := range features {
			row[j] += s * f
		}
		if g.B != nil {
			g.B[i] += s
		}
	}
}
