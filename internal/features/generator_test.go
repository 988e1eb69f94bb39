package features

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srv328/coffee-classification/internal/models"
)

func collect(g *Generator) []Sample {
	var out []Sample
	for s := range g.Samples() {
		out = append(out, s)
	}
	return out
}

func TestGenerator_CountAndLabels(t *testing.T) {
	g := NewGenerator(testCatalog(), 0, 7)
	samples := collect(g)

	require.Len(t, samples, 2*DefaultSamplesPerType)
	assert.Equal(t, g.Count(), len(samples))

	labels := map[int64]int{}
	for _, s := range samples {
		labels[s.Label]++
	}
	assert.Equal(t, map[int64]int{espressoID: 10, lungoID: 10}, labels)
}

func TestGenerator_NumericWithinRange(t *testing.T) {
	g := NewGenerator(testCatalog(), 200, 3)

	for s := range g.Samples() {
		v, ok := s.Raw.Numeric[acidityID]
		require.True(t, ok)
		switch s.Label {
		case espressoID:
			assert.GreaterOrEqual(t, v, 3.0)
			assert.LessOrEqual(t, v, 5.0)
			assert.Equal(t, 7.0, s.Raw.Numeric[bitterID], "zero-width range always yields its bound")
		case lungoID:
			assert.GreaterOrEqual(t, v, 1.0)
			assert.LessOrEqual(t, v, 2.0)
			_, has := s.Raw.Numeric[bitterID]
			assert.False(t, has, "types only sample their own assignments")
		}
	}
}

func TestGenerator_WideRangeStaysFinite(t *testing.T) {
	c := &models.Catalog{
		Types:   []models.CoffeeType{{ID: 1, Name: "Only"}},
		Numeric: []models.NumericAssignment{{CoffeeTypeID: 1, CharacteristicID: 9, MinValue: -1e308, MaxValue: 1e308}},
	}
	for s := range NewGenerator(c, 200, 11).Samples() {
		v := s.Raw.Numeric[9]
		require.False(t, math.IsNaN(v) || math.IsInf(v, 0), "sample %g", v)
		assert.GreaterOrEqual(t, v, -1e308)
		assert.LessOrEqual(t, v, 1e308)
	}
}

func TestGenerator_ConstantRangeProperty(t *testing.T) {
	for _, value := range []float64{-3.5, 0, 1e-9, 42, 1e12} {
		c := &models.Catalog{
			Types:   []models.CoffeeType{{ID: 1, Name: "Only"}},
			Numeric: []models.NumericAssignment{{CoffeeTypeID: 1, CharacteristicID: 9, MinValue: value, MaxValue: value}},
		}
		for s := range NewGenerator(c, 50, uint64(value*7)+1).Samples() {
			require.Equal(t, value, s.Raw.Numeric[9])
		}
	}
}

func TestGenerator_MultiValueCategoricalPicksOne(t *testing.T) {
	g := NewGenerator(testCatalog(), 400, 11)

	seen := map[string]int{}
	for s := range g.Samples() {
		if s.Label != lungoID {
			assert.Equal(t, "dark", s.Raw.Categorical[roastID])
			continue
		}
		seen[s.Raw.Categorical[roastID]]++
		assert.Equal(t, "kenya", s.Raw.Categorical[regionID])
	}

	require.Len(t, seen, 2, "only assigned values are drawn")
	assert.Greater(t, seen["light"], 100)
	assert.Greater(t, seen["medium"], 100)
}

func TestGenerator_Restartable(t *testing.T) {
	g := NewGenerator(testCatalog(), 5, 99)
	assert.Equal(t, collect(g), collect(g))

	other := NewGenerator(testCatalog(), 5, 100)
	assert.NotEqual(t, collect(g), collect(other))
}

func TestGenerator_EarlyStop(t *testing.T) {
	g := NewGenerator(testCatalog(), 5, 1)
	n := 0
	for range g.Samples() {
		n++
		if n == 3 {
			break
		}
	}
	assert.Equal(t, 3, n)
}

func TestGenerator_EmptyCatalog(t *testing.T) {
	g := NewGenerator(&models.Catalog{}, 10, 1)
	assert.Empty(t, collect(g))
	assert.Equal(t, 0, g.Count())
}
