package network

import (
	"encoding/json"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

// clusters returns two well separated point clouds labelled 0 and 1.
func clusters(n int, seed uint64) ([][]float64, []int) {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	var x [][]float64
	var y []int
	for i := 0; i < n; i++ {
		label := i % 2
		center := -2.0
		if label == 1 {
			center = 2
		}
		x = append(x, []float64{center + rng.NormFloat64()*0.3, center + rng.NormFloat64()*0.3, 1})
		y = append(y, label)
	}
	return x, y
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.LearningRate = 0.01
	cfg.Epochs = 40
	return cfg
}

func TestPredict_IsDistribution(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 1))
	n, err := New(5, 4, []int{8, 6}, 0.2, rng)
	require.NoError(t, err)

	for i := 0; i < 200; i++ {
		x := make([]float64, 5)
		for j := range x {
			x[j] = rng.NormFloat64() * 50
		}
		p, err := n.Predict(x)
		require.NoError(t, err)
		require.Len(t, p, 4)
		for _, v := range p {
			require.GreaterOrEqual(t, v, 0.0)
		}
		require.InDelta(t, 1.0, floats.Sum(p), 1e-6)
	}
}

func TestPredict_WrongWidth(t *testing.T) {
	n, err := New(3, 2, []int{4}, 0, rand.New(rand.NewPCG(1, 2)))
	require.NoError(t, err)

	_, err = n.Predict([]float64{1, 2})
	assert.ErrorIs(t, err, ErrShape)
}

func TestNew_RejectsEmptyDimensions(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	_, err := New(0, 2, nil, 0, rng)
	assert.ErrorIs(t, err, ErrNoFeatures)

	_, err = New(2, 0, nil, 0, rng)
	assert.ErrorIs(t, err, ErrNoClasses)

	_, err = New(2, 2, []int{0}, 0, rng)
	assert.Error(t, err)

	_, err = New(2, 2, nil, 1, rng)
	assert.Error(t, err)
}

func TestTrain_LearnsSeparableData(t *testing.T) {
	x, y := clusters(200, 5)

	var epochs int
	n, hist, err := Train(x, y, 2, fastConfig(), func(EpochStats) { epochs++ })
	require.NoError(t, err)

	assert.Equal(t, 40, epochs)
	require.Len(t, hist.Epochs, 40)
	assert.Equal(t, 160, hist.TrainSamples)
	assert.Equal(t, 40, hist.ValidateSamples)

	last := hist.Last()
	assert.True(t, last.HasValidation)
	assert.Greater(t, last.ValidationAccuracy, 0.95)
	assert.Less(t, last.Loss, hist.Epochs[0].Loss)

	_, acc, err := n.Evaluate(x, y)
	require.NoError(t, err)
	assert.Greater(t, acc, 0.95)

	p, err := n.Predict([]float64{2, 2, 1})
	require.NoError(t, err)
	assert.Equal(t, 1, floats.MaxIdx(p))
}

func TestTrain_Deterministic(t *testing.T) {
	x, y := clusters(60, 9)
	cfg := fastConfig()
	cfg.Epochs = 5

	a, _, err := Train(x, y, 2, cfg, nil)
	require.NoError(t, err)
	b, _, err := Train(x, y, 2, cfg, nil)
	require.NoError(t, err)

	pa, err := a.Predict([]float64{0.5, -0.5, 1})
	require.NoError(t, err)
	pb, err := b.Predict([]float64{0.5, -0.5, 1})
	require.NoError(t, err)
	assert.Equal(t, pa, pb)
}

func TestTrain_NoValidationWhenSplitIsZero(t *testing.T) {
	x, y := clusters(10, 2)
	cfg := fastConfig()
	cfg.Epochs = 2
	cfg.ValidationSplit = 0

	_, hist, err := Train(x, y, 2, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, 10, hist.TrainSamples)
	assert.False(t, hist.Last().HasValidation)
}

func TestTrain_SingleClass(t *testing.T) {
	x := [][]float64{{1}, {2}, {3}}
	cfg := fastConfig()
	cfg.Epochs = 3

	n, _, err := Train(x, []int{0, 0, 0}, 1, cfg, nil)
	require.NoError(t, err)

	p, err := n.Predict([]float64{10})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1}, p, 1e-12)
}

func TestTrain_Errors(t *testing.T) {
	cfg := fastConfig()

	_, _, err := Train(nil, nil, 2, cfg, nil)
	assert.ErrorIs(t, err, ErrNoSamples)

	_, _, err = Train([][]float64{{}, {}}, []int{0, 1}, 2, cfg, nil)
	assert.ErrorIs(t, err, ErrNoFeatures)

	_, _, err = Train([][]float64{{1}}, []int{0}, 0, cfg, nil)
	assert.ErrorIs(t, err, ErrNoClasses)

	_, _, err = Train([][]float64{{1}}, []int{3}, 2, cfg, nil)
	assert.ErrorIs(t, err, ErrShape)

	_, _, err = Train([][]float64{{1}, {1, 2}}, []int{0, 1}, 2, cfg, nil)
	assert.ErrorIs(t, err, ErrShape)

	bad := cfg
	bad.BatchSize = 0
	_, _, err = Train([][]float64{{1}}, []int{0}, 1, bad, nil)
	assert.Error(t, err)
}

func TestSnapshot_RoundTrip(t *testing.T) {
	x, y := clusters(40, 3)
	cfg := fastConfig()
	cfg.Epochs = 3
	n, _, err := Train(x, y, 2, cfg, nil)
	require.NoError(t, err)

	snap, err := n.Snapshot()
	require.NoError(t, err)
	data, err := json.Marshal(snap)
	require.NoError(t, err)

	var decoded Snapshot
	require.NoError(t, json.Unmarshal(data, &decoded))
	restored, err := FromSnapshot(&decoded)
	require.NoError(t, err)

	for _, row := range x[:10] {
		want, err := n.Predict(row)
		require.NoError(t, err)
		got, err := restored.Predict(row)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestFromSnapshot_Rejects(t *testing.T) {
	n, err := New(3, 2, []int{4}, 0, rand.New(rand.NewPCG(4, 4)))
	require.NoError(t, err)
	good, err := n.Snapshot()
	require.NoError(t, err)

	t.Run("nil", func(t *testing.T) {
		_, err := FromSnapshot(nil)
		assert.ErrorIs(t, err, ErrBadSnapshot)
	})

	t.Run("wrong input width", func(t *testing.T) {
		s := *good
		s.Inputs = 5
		_, err := FromSnapshot(&s)
		assert.ErrorIs(t, err, ErrBadSnapshot)
	})

	t.Run("wrong output width", func(t *testing.T) {
		s := *good
		s.Outputs = 3
		_, err := FromSnapshot(&s)
		assert.ErrorIs(t, err, ErrBadSnapshot)
	})

	t.Run("bias length", func(t *testing.T) {
		s := *good
		s.Layers = append([]LayerSnapshot(nil), good.Layers...)
		s.Layers[1].Bias = []float64{0}
		_, err := FromSnapshot(&s)
		assert.ErrorIs(t, err, ErrBadSnapshot)
	})

	t.Run("garbage weights", func(t *testing.T) {
		s := *good
		s.Layers = append([]LayerSnapshot(nil), good.Layers...)
		s.Layers[0].Weights = []byte("nope")
		_, err := FromSnapshot(&s)
		assert.ErrorIs(t, err, ErrBadSnapshot)
	})
}
