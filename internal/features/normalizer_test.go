package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFitNormalizer(t *testing.T) {
	n, err := FitNormalizer([][]float64{
		{1, 5},
		{3, 5},
		{5, 5},
	})
	require.NoError(t, err)

	assert.InDeltaSlice(t, []float64{3, 5}, n.Center, 1e-12)
	// population standard deviation of 1, 3, 5
	assert.InDelta(t, 1.632993161855452, n.Scale[0], 1e-12)
	assert.Equal(t, 0.0, n.Scale[1])

	assert.InDelta(t, -1.224744871391589, n.Transform(0, 1), 1e-12)
	assert.Equal(t, 0.0, n.Transform(1, 42), "constant column never divides by zero")
}

func TestFitNormalizer_Errors(t *testing.T) {
	_, err := FitNormalizer(nil)
	require.Error(t, err)

	_, err = FitNormalizer([][]float64{{1, 2}, {3}})
	require.Error(t, err)
}

func TestFitNormalizer_ZeroWidth(t *testing.T) {
	n, err := FitNormalizer([][]float64{{}, {}})
	require.NoError(t, err)
	assert.Equal(t, 0, n.Width())
	require.NoError(t, n.Validate(&Schema{}))
}

func TestNormalizer_Validate(t *testing.T) {
	s := BuildSchema(testCatalog())

	require.NoError(t, (&Normalizer{Center: []float64{0, 0}, Scale: []float64{1, 1}}).Validate(s))

	err := (&Normalizer{Center: []float64{0}, Scale: []float64{1}}).Validate(s)
	assert.ErrorIs(t, err, ErrNormalizerShape)
}

func TestFitNormalizer_SingleRow(t *testing.T) {
	n, err := FitNormalizer([][]float64{{4, -2}})
	require.NoError(t, err)
	assert.Equal(t, []float64{4, -2}, n.Center)
	assert.Equal(t, []float64{0, 0}, n.Scale)
}

func TestFitNormalizer_RoundingNoiseIsConstant(t *testing.T) {
	n, err := FitNormalizer([][]float64{{0.1}, {0.1}, {0.1}})
	require.NoError(t, err)
	assert.Equal(t, 0.0, n.Scale[0])
	assert.Equal(t, 0.0, n.Transform(0, 0.2))
}
