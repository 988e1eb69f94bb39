package network

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Snapshot is the serialisable form of a Network. Weights hold the gonum
// binary encoding of each layer's matrix.
type Snapshot struct {
	Inputs  int             `json:"inputs"`
	Outputs int             `json:"outputs"`
	Dropout float64         `json:"dropout"`
	Layers  []LayerSnapshot `json:"layers"`
}

type LayerSnapshot struct {
	Weights []byte    `json:"weights"`
	Bias    []float64 `json:"bias"`
}

// Snapshot captures the trained parameters. Optimizer state is not kept.
func (n *Network) Snapshot() (*Snapshot, error) {
	s := &Snapshot{Inputs: n.inputs, Outputs: n.outputs, Dropout: n.dropout}
	for i, l := range n.layers {
		w, err := l.w.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("encode layer %d: %w", i, err)
		}
		s.Layers = append(s.Layers, LayerSnapshot{Weights: w, Bias: append([]float64(nil), l.b...)})
	}
	return s, nil
}

// FromSnapshot rebuilds a network and checks that its layers chain from
// Inputs to Outputs.
func FromSnapshot(s *Snapshot) (*Network, error) {
	if s == nil || s.Inputs <= 0 || s.Outputs <= 0 || len(s.Layers) == 0 {
		return nil, fmt.Errorf("%w: missing dimensions or layers", ErrBadSnapshot)
	}

	n := &Network{inputs: s.Inputs, outputs: s.Outputs, dropout: s.Dropout}
	prev := s.Inputs
	for i, ls := range s.Layers {
		w := &mat.Dense{}
		if err := decodeDense(w, ls.Weights); err != nil {
			return nil, fmt.Errorf("%w: layer %d: %v", ErrBadSnapshot, i, err)
		}
		in, out := w.Dims()
		if in != prev {
			return nil, fmt.Errorf("%w: layer %d takes %d inputs, previous layer gives %d", ErrBadSnapshot, i, in, prev)
		}
		if len(ls.Bias) != out {
			return nil, fmt.Errorf("%w: layer %d has %d biases for %d units", ErrBadSnapshot, i, len(ls.Bias), out)
		}
		if !finite(w.RawMatrix().Data) || !finite(ls.Bias) {
			return nil, fmt.Errorf("%w: layer %d holds non-finite parameters", ErrBadSnapshot, i)
		}
		n.layers = append(n.layers, &layer{w: w, b: append([]float64(nil), ls.Bias...)})
		prev = out
	}
	if prev != s.Outputs {
		return nil, fmt.Errorf("%w: last layer gives %d outputs, want %d", ErrBadSnapshot, prev, s.Outputs)
	}
	return n, nil
}

// decodeDense turns gonum's panics on malformed input into errors.
func decodeDense(w *mat.Dense, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("decode weights: %v", r)
		}
	}()
	return w.UnmarshalBinary(data)
}

func finite(xs []float64) bool {
	for _, v := range xs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
