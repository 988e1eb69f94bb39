package features

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// degenerateScale is the relative spread below which a column counts as constant.
const degenerateScale = 1e-12

// ErrNormalizerShape is returned when fitted statistics do not match a schema.
var ErrNormalizerShape = errors.New("normalizer does not match schema numeric width")

// Normalizer standardises numeric slots with (x - center) / scale.
//
// It is fitted on the numeric values of the synthetic training samples and
// persisted with the model. Inference never refits it.
type Normalizer struct {
	Center []float64 `json:"center"`
	Scale  []float64 `json:"scale"`
}

// FitNormalizer computes the per-column mean and population standard
// deviation of rows. Every row must have the same length.
func FitNormalizer(rows [][]float64) (*Normalizer, error) {
	if len(rows) == 0 {
		return nil, errors.New("cannot fit normalizer on zero rows")
	}
	width := len(rows[0])
	n := &Normalizer{
		Center: make([]float64, width),
		Scale:  make([]float64, width),
	}

	column := make([]float64, len(rows))
	for j := 0; j < width; j++ {
		for i, row := range rows {
			if len(row) != width {
				return nil, fmt.Errorf("row %d has %d values, want %d", i, len(row), width)
			}
			column[i] = row[j]
		}
		mean, std := stat.PopMeanStdDev(column, nil)
		if math.IsNaN(std) || std <= degenerateScale*math.Max(1, math.Abs(mean)) {
			std = 0
		}
		n.Center[j], n.Scale[j] = mean, std
	}
	return n, nil
}

// Width is the number of numeric slots the statistics cover.
func (n *Normalizer) Width() int {
	return len(n.Center)
}

// Validate checks the statistics against a schema.
func (n *Normalizer) Validate(s *Schema) error {
	if len(n.Center) != s.NumericWidth() || len(n.Scale) != s.NumericWidth() {
		return fmt.Errorf("%w: have %d/%d, schema has %d",
			ErrNormalizerShape, len(n.Center), len(n.Scale), s.NumericWidth())
	}
	return nil
}

// Transform standardises the value of numeric slot i. A zero scale maps to 0.
func (n *Normalizer) Transform(i int, x float64) float64 {
	if n.Scale[i] == 0 {
		return 0
	}
	return (x - n.Center[i]) / n.Scale[i]
}
