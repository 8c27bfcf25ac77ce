package random

import (
	"context"
	"testing"

	"biomark/adapters/rng"
	"biomark/domain/subtype"
	"biomark/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPredictProducesValidDistribution(t *testing.T) {
	p := New(rng.NewSource(99))
	for i := 0; i < 500; i++ {
		probs, err := p.Predict(context.Background(), ports.PredictionRequest{})
		require.NoError(t, err)
		require.Len(t, probs, 4)

		sum := 0.0
		for _, l := range subtype.Labels {
			v, ok := probs[l]
			require.True(t, ok, "missing %s", l)
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
			sum += v
		}
		assert.InDelta(t, 1.0, sum, 1e-9)
		assert.NoError(t, probs.Validate())
	}
}

func TestPredictVariesBetweenCalls(t *testing.T) {
	p := New(rng.NewSource(5))
	a, err := p.Predict(context.Background(), ports.PredictionRequest{})
	require.NoError(t, err)
	b, err := p.Predict(context.Background(), ports.PredictionRequest{})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestPredictHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(rng.NewSource(1)).Predict(ctx, ports.PredictionRequest{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNormalize(t *testing.T) {
	probs, err := Normalize([]float64{1, 1, 2, 4})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, probs[subtype.ILC], 1e-12)

	uniform, err := Normalize([]float64{0, 0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, 0.25, uniform[subtype.TNBC])

	input := []float64{2, 2, 2, 2}
	_, err = Normalize(input)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 2, 2, 2}, input)
}
