// Package network implements the small fully-connected classifier used by the
// learned coffee classifier: ReLU hidden layers with dropout and a softmax
// output, trained with Adam on categorical cross-entropy.
package network

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	ErrNoSamples   = errors.New("no training samples")
	ErrNoFeatures  = errors.New("feature vector has zero width")
	ErrNoClasses   = errors.New("no output classes")
	ErrShape       = errors.New("shape mismatch")
	ErrBadSnapshot = errors.New("invalid network snapshot")
)

// layer is one dense layer: out = in*W + b.
type layer struct {
	w *mat.Dense // inputs x outputs
	b []float64

	// Adam moments, allocated lazily when training.
	mw, vw []float64
	mb, vb []float64
}

func newLayer(in, out int, rng *rand.Rand) *layer {
	// Glorot uniform initialisation.
	limit := math.Sqrt(6 / float64(in+out))
	data := make([]float64, in*out)
	for i := range data {
		data[i] = (rng.Float64()*2 - 1) * limit
	}
	return &layer{w: mat.NewDense(in, out, data), b: make([]float64, out)}
}

func (l *layer) dims() (in, out int) {
	return l.w.Dims()
}

// Network is a trained classifier. It is immutable after training and safe
// for concurrent Predict calls.
type Network struct {
	inputs  int
	outputs int
	dropout float64
	layers  []*layer
}

// New builds an untrained network with the given hidden layer sizes.
func New(inputs, outputs int, hidden []int, dropout float64, rng *rand.Rand) (*Network, error) {
	if inputs <= 0 {
		return nil, ErrNoFeatures
	}
	if outputs <= 0 {
		return nil, ErrNoClasses
	}
	if dropout < 0 || dropout >= 1 {
		return nil, fmt.Errorf("dropout %v outside [0, 1)", dropout)
	}

	n := &Network{inputs: inputs, outputs: outputs, dropout: dropout}
	prev := inputs
	for _, size := range hidden {
		if size <= 0 {
			return nil, fmt.Errorf("hidden layer size %d must be positive", size)
		}
		n.layers = append(n.layers, newLayer(prev, size, rng))
		prev = size
	}
	n.layers = append(n.layers, newLayer(prev, outputs, rng))
	return n, nil
}

// Inputs is the expected feature vector width.
func (n *Network) Inputs() int { return n.inputs }

// Outputs is the number of classes.
func (n *Network) Outputs() int { return n.outputs }

// Predict returns the class probability distribution for one feature vector.
// The result is non-negative and sums to 1.
func (n *Network) Predict(x []float64) ([]float64, error) {
	if len(x) != n.inputs {
		return nil, fmt.Errorf("%w: got %d features, want %d", ErrShape, len(x), n.inputs)
	}
	in := mat.NewDense(1, n.inputs, append([]float64(nil), x...))
	out := n.forward(in, nil, nil)
	return append([]float64(nil), out.RawRowView(0)...), nil
}

// forwardCache keeps what backpropagation needs from a training pass.
type forwardCache struct {
	inputs []*mat.Dense // input to each layer
	pre    []*mat.Dense // pre-activation of each hidden layer
	masks  []*mat.Dense // scaled dropout mask of each hidden layer, nil without dropout
}

// forward runs a batch through the network and returns softmax probabilities.
// With a non-nil rng dropout is active and cache is filled.
func (n *Network) forward(x *mat.Dense, rng *rand.Rand, cache *forwardCache) *mat.Dense {
	a := x
	last := len(n.layers) - 1
	for i, l := range n.layers {
		if cache != nil {
			cache.inputs = append(cache.inputs, a)
		}
		rows, _ := a.Dims()
		_, out := l.dims()
		z := mat.NewDense(rows, out, nil)
		z.Mul(a, l.w)
		for r := 0; r < rows; r++ {
			floats.Add(z.RawRowView(r), l.b)
		}

		if i == last {
			softmaxRows(z)
			return z
		}

		if cache != nil {
			cache.pre = append(cache.pre, mat.DenseCopyOf(z))
		}
		z.Apply(func(_, _ int, v float64) float64 { return math.Max(0, v) }, z)

		var mask *mat.Dense
		if rng != nil && n.dropout > 0 {
			keep := 1 - n.dropout
			mask = mat.NewDense(rows, out, nil)
			mask.Apply(func(_, _ int, _ float64) float64 {
				if rng.Float64() < keep {
					return 1 / keep
				}
				return 0
			}, mask)
			z.MulElem(z, mask)
		}
		if cache != nil {
			cache.masks = append(cache.masks, mask)
		}
		a = z
	}
	return a
}

func softmaxRows(z *mat.Dense) {
	rows, _ := z.Dims()
	for r := 0; r < rows; r++ {
		row := z.RawRowView(r)
		shift := floats.Max(row)
		for j, v := range row {
			row[j] = math.Exp(v - shift)
		}
		floats.Scale(1/floats.Sum(row), row)
	}
}
