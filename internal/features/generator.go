package features

import (
	"iter"
	"maps"
	"math/rand/v2"
	"slices"

	"github.com/srv328/coffee-classification/internal/models"
)

// DefaultSamplesPerType is the number of synthetic samples drawn per coffee type.
const DefaultSamplesPerType = 10

// Sample is one synthetic training example labelled with a coffee type id.
type Sample struct {
	Raw   Raw
	Label int64
}

// Generator draws synthetic samples from the ranges and values the experts
// assigned to each coffee type.
//
// Numeric characteristics are drawn uniformly from [min, max]; a range with
// min == max always yields that value. When a type accepts several values for
// one categorical characteristic, each sample picks one of them uniformly.
type Generator struct {
	catalog        *models.Catalog
	samplesPerType int
	seed           uint64
}

// NewGenerator creates a generator over catalog. samplesPerType <= 0 falls
// back to DefaultSamplesPerType.
func NewGenerator(catalog *models.Catalog, samplesPerType int, seed uint64) *Generator {
	if samplesPerType <= 0 {
		samplesPerType = DefaultSamplesPerType
	}
	return &Generator{catalog: catalog, samplesPerType: samplesPerType, seed: seed}
}

// Samples returns a finite sequence of samples, types in catalog order. Each
// iteration restarts from the generator seed and yields the same samples.
func (g *Generator) Samples() iter.Seq[Sample] {
	return func(yield func(Sample) bool) {
		rng := rand.New(rand.NewPCG(g.seed, g.seed^0x9e3779b97f4a7c15))
		for _, ct := range g.catalog.Types {
			numeric := g.catalog.NumericFor(ct.ID)
			categorical := g.catalog.CategoricalFor(ct.ID)
			categoricalIDs := slices.Sorted(maps.Keys(categorical))

			for n := 0; n < g.samplesPerType; n++ {
				raw := Raw{
					Numeric:     make(map[int64]float64, len(numeric)),
					Categorical: make(map[int64]string, len(categorical)),
				}
				for _, a := range numeric {
					raw.Numeric[a.CharacteristicID] = uniform(rng, a.MinValue, a.MaxValue)
				}
				for _, id := range categoricalIDs {
					values := categorical[id]
					raw.Categorical[id] = values[rng.IntN(len(values))]
				}
				if !yield(Sample{Raw: raw, Label: ct.ID}) {
					return
				}
			}
		}
	}
}

// Count is the number of samples Samples yields.
func (g *Generator) Count() int {
	return len(g.catalog.Types) * g.samplesPerType
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	if lo == hi {
		return lo
	}
	r := rng.Float64()
	return min(max(lo*(1-r)+hi*r, lo), hi)
}

