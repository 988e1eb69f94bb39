package network

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	beta1       = 0.9
	beta2       = 0.999
	adamEpsilon = 1e-7
	minProb     = 1e-15
)

// Config holds the training hyperparameters.
type Config struct {
	Hidden          []int   `yaml:"hidden" json:"hidden"`
	Dropout         float64 `yaml:"dropout" json:"dropout"`
	LearningRate    float64 `yaml:"learning_rate" json:"learning_rate"`
	Epochs          int     `yaml:"epochs" json:"epochs"`
	BatchSize       int     `yaml:"batch_size" json:"batch_size"`
	ValidationSplit float64 `yaml:"validation_split" json:"validation_split"`
	Seed            uint64  `yaml:"seed" json:"seed"`
}

// DefaultConfig is two ReLU layers of 64 and 32 units with 20% dropout,
// Adam at 0.001, 100 epochs of batch 32 and a 20% validation hold-out.
func DefaultConfig() Config {
	return Config{
		Hidden:          []int{64, 32},
		Dropout:         0.2,
		LearningRate:    0.001,
		Epochs:          100,
		BatchSize:       32,
		ValidationSplit: 0.2,
		Seed:            42,
	}
}

func (c Config) validate() error {
	switch {
	case c.LearningRate <= 0:
		return fmt.Errorf("learning rate %v must be positive", c.LearningRate)
	case c.Epochs <= 0:
		return fmt.Errorf("epochs %d must be positive", c.Epochs)
	case c.BatchSize <= 0:
		return fmt.Errorf("batch size %d must be positive", c.BatchSize)
	case c.ValidationSplit < 0 || c.ValidationSplit >= 1:
		return fmt.Errorf("validation split %v outside [0, 1)", c.ValidationSplit)
	}
	return nil
}

// EpochStats reports the metrics of one epoch. Validation metrics are only
// set when HasValidation is true.
type EpochStats struct {
	Epoch              int     `json:"epoch"`
	Loss               float64 `json:"loss"`
	Accuracy           float64 `json:"accuracy"`
	HasValidation      bool    `json:"has_validation"`
	ValidationLoss     float64 `json:"validation_loss,omitempty"`
	ValidationAccuracy float64 `json:"validation_accuracy,omitempty"`
}

// History is the per-epoch record of a training run.
type History struct {
	Epochs          []EpochStats
	TrainSamples    int
	ValidateSamples int
}

// Last returns the final epoch, or the zero value for an empty history.
func (h History) Last() EpochStats {
	if len(h.Epochs) == 0 {
		return EpochStats{}
	}
	return h.Epochs[len(h.Epochs)-1]
}

// Train fits a new network on x with integer class labels in [0, classes).
// The validation hold-out is only used for reporting. onEpoch may be nil.
func Train(x [][]float64, labels []int, classes int, cfg Config, onEpoch func(EpochStats)) (*Network, History, error) {
	var hist History
	if err := cfg.validate(); err != nil {
		return nil, hist, err
	}
	width, err := checkData(x, labels, classes)
	if err != nil {
		return nil, hist, err
	}

	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	n, err := New(width, classes, cfg.Hidden, cfg.Dropout, rng)
	if err != nil {
		return nil, hist, err
	}

	order := rng.Perm(len(x))
	nVal := int(float64(len(x)) * cfg.ValidationSplit)
	if nVal >= len(x) {
		nVal = 0
	}
	trainIdx, valIdx := order[:len(x)-nVal], order[len(x)-nVal:]
	hist.TrainSamples, hist.ValidateSamples = len(trainIdx), len(valIdx)

	var valX, valY *mat.Dense
	if len(valIdx) > 0 {
		valX, valY = gather(x, labels, classes, valIdx)
	}

	step := 0
	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		rng.Shuffle(len(trainIdx), func(i, j int) { trainIdx[i], trainIdx[j] = trainIdx[j], trainIdx[i] })

		var lossSum float64
		var correct int
		for start := 0; start < len(trainIdx); start += cfg.BatchSize {
			end := min(start+cfg.BatchSize, len(trainIdx))
			xb, yb := gather(x, labels, classes, trainIdx[start:end])
			step++
			l, c := n.step(xb, yb, rng, step, cfg.LearningRate)
			lossSum += l
			correct += c
		}

		stats := EpochStats{
			Epoch:    epoch,
			Loss:     lossSum / float64(len(trainIdx)),
			Accuracy: float64(correct) / float64(len(trainIdx)),
		}
		if valX != nil {
			l, c := crossEntropy(n.forward(valX, nil, nil), valY)
			stats.HasValidation = true
			stats.ValidationLoss = l / float64(len(valIdx))
			stats.ValidationAccuracy = float64(c) / float64(len(valIdx))
		}
		hist.Epochs = append(hist.Epochs, stats)
		if onEpoch != nil {
			onEpoch(stats)
		}
	}
	return n, hist, nil
}

// Evaluate returns the mean loss and accuracy of n over a labelled set
// without dropout.
func (n *Network) Evaluate(x [][]float64, labels []int) (loss, accuracy float64, err error) {
	width, err := checkData(x, labels, n.outputs)
	if err != nil {
		return 0, 0, err
	}
	if width != n.inputs {
		return 0, 0, fmt.Errorf("%w: got %d features, want %d", ErrShape, width, n.inputs)
	}
	idx := make([]int, len(x))
	for i := range idx {
		idx[i] = i
	}
	xm, ym := gather(x, labels, n.outputs, idx)
	l, c := crossEntropy(n.forward(xm, nil, nil), ym)
	return l / float64(len(x)), float64(c) / float64(len(x)), nil
}

func checkData(x [][]float64, labels []int, classes int) (int, error) {
	if len(x) == 0 {
		return 0, ErrNoSamples
	}
	if classes <= 0 {
		return 0, ErrNoClasses
	}
	if len(x) != len(labels) {
		return 0, fmt.Errorf("%w: %d rows but %d labels", ErrShape, len(x), len(labels))
	}
	width := len(x[0])
	if width == 0 {
		return 0, ErrNoFeatures
	}
	for i, row := range x {
		if len(row) != width {
			return 0, fmt.Errorf("%w: row %d has %d features, want %d", ErrShape, i, len(row), width)
		}
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return 0, fmt.Errorf("%w: row %d holds a non-finite value", ErrShape, i)
			}
		}
		if labels[i] < 0 || labels[i] >= classes {
			return 0, fmt.Errorf("%w: label %d outside [0, %d)", ErrShape, labels[i], classes)
		}
	}
	return width, nil
}

// gather copies the selected rows into a feature matrix and a one-hot target matrix.
func gather(x [][]float64, labels []int, classes int, idx []int) (*mat.Dense, *mat.Dense) {
	width := len(x[0])
	xs := make([]float64, 0, len(idx)*width)
	ys := make([]float64, len(idx)*classes)
	for r, i := range idx {
		xs = append(xs, x[i]...)
		ys[r*classes+labels[i]] = 1
	}
	return mat.NewDense(len(idx), width, xs), mat.NewDense(len(idx), classes, ys)
}

// crossEntropy returns the summed loss and the number of correct argmax predictions.
func crossEntropy(p, y *mat.Dense) (float64, int) {
	rows, _ := p.Dims()
	var loss float64
	var correct int
	for r := 0; r < rows; r++ {
		target := floats.MaxIdx(y.RawRowView(r))
		prow := p.RawRowView(r)
		loss -= math.Log(math.Max(prow[target], minProb))
		if floats.MaxIdx(prow) == target {
			correct++
		}
	}
	return loss, correct
}

// step runs one forward/backward pass over a batch and applies Adam.
func (n *Network) step(xb, yb *mat.Dense, rng *rand.Rand, t int, lr float64) (float64, int) {
	cache := &forwardCache{}
	p := n.forward(xb, rng, cache)
	loss, correct := crossEntropy(p, yb)

	rows, cols := p.Dims()
	dz := mat.NewDense(rows, cols, nil)
	dz.Sub(p, yb)
	dz.Scale(1/float64(rows), dz)

	for i := len(n.layers) - 1; i >= 0; i-- {
		l := n.layers[i]
		in, out := l.dims()

		gw := mat.NewDense(in, out, nil)
		gw.Mul(cache.inputs[i].T(), dz)
		gb := make([]float64, out)
		for r := 0; r < rows; r++ {
			floats.Add(gb, dz.RawRowView(r))
		}

		if i > 0 {
			da := mat.NewDense(rows, in, nil)
			da.Mul(dz, l.w.T())
			if mask := cache.masks[i-1]; mask != nil {
				da.MulElem(da, mask)
			}
			pre := cache.pre[i-1]
			da.Apply(func(r, c int, v float64) float64 {
				if pre.At(r, c) <= 0 {
					return 0
				}
				return v
			}, da)
			dz = da
		}

		l.adam(gw, gb, t, lr)
	}
	return loss, correct
}

func (l *layer) adam(gw *mat.Dense, gb []float64, t int, lr float64) {
	w := l.w.RawMatrix().Data
	if l.mw == nil {
		l.mw, l.vw = make([]float64, len(w)), make([]float64, len(w))
		l.mb, l.vb = make([]float64, len(l.b)), make([]float64, len(l.b))
	}
	c1 := 1 - math.Pow(beta1, float64(t))
	c2 := 1 - math.Pow(beta2, float64(t))
	adamUpdate(w, gw.RawMatrix().Data, l.mw, l.vw, lr, c1, c2)
	adamUpdate(l.b, gb, l.mb, l.vb, lr, c1, c2)
}

func adamUpdate(params, grads, m, v []float64, lr, c1, c2 float64) {
	for i, g := range grads {
		m[i] = beta1*m[i] + (1-beta1)*g
		v[i] = beta2*v[i] + (1-beta2)*g*g
		params[i] -= lr * (m[i] / c1) / (math.Sqrt(v[i]/c2) + adamEpsilon)
	}
}
