package embedder

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeterministic_SameInputSameVector(t *testing.T) {
	e := NewDeterministic(32, false, 7)
	v1, err := e.EmbedBatch(context.Background(), []string{"hello world"})
	require.NoError(t, err)
	v2, err := e.EmbedBatch(context.Background(), []string{"hello world"})
	require.NoError(t, err)
	require.Equal(t, v1, v2)
}

func TestDeterministic_DifferentInputDifferentVector(t *testing.T) {
	e := NewDeterministic(32, false, 7)
	out, err := e.EmbedBatch(context.Background(), []string{"hello", "goodbye"})
	require.NoError(t, err)
	require.NotEqual(t, out[0], out[1])
}

func TestDeterministic_NormalizeProducesUnitVector(t *testing.T) {
	e := NewDeterministic(16, true, 1)
	out, err := e.EmbedBatch(context.Background(), []string{"some reasonably long input text"})
	require.NoError(t, err)
	var sumSq float64
	for _, x := range out[0] {
		sumSq += float64(x) * float64(x)
	}
	require.InDelta(t, 1.0, math.Sqrt(sumSq), 1e-4)
}

func TestDeterministic_EmptyStringReturnsZeroVector(t *testing.T) {
	e := NewDeterministic(8, false, 0)
	out, err := e.EmbedBatch(context.Background(), []string{""})
	require.NoError(t, err)
	for _, x := range out[0] {
		require.Equal(t, float32(0), x)
	}
}

func TestDeterministic_DimensionDefaultsTo64(t *testing.T) {
	e := NewDeterministic(0, false, 0)
	require.Equal(t, 64, e.Dimension())
}

func TestDeterministic_PingAlwaysSucceeds(t *testing.T) {
	e := NewDeterministic(8, false, 0)
	require.NoError(t, e.Ping(context.Background()))
}
