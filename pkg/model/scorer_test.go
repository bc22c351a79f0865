package model

import (
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hivewatch/pkg/feature"
	"hivewatch/pkg/structlog"
	"hivewatch/pkg/telemetry"
)

func testScorer(t *testing.T) *Scorer {
	t.Helper()
	b, err := LoadBundle(defaultFixture().write(t))
	require.NoError(t, err)
	return NewScorer(b, structlog.NewLogger("test", structlog.LevelError, io.Discard))
}

func TestScore_NetworkEventUsesZeroProcessPlaceholder(t *testing.T) {
	s := testScorer(t)
	// The fixture fusion ignores the network half, so with a zero process
	// placeholder the pre-activation sum is 0 and the score is exactly
	// sigmoid(0) regardless of the network values.
	score, err := s.Score(feature.Vector{
		Modality: telemetry.ModalityNetwork,
		Values:   []float64{9, 8, 7, 6, 5},
	})
	require.NoError(t, err)
	assert.Equal(t, 0.5, score)
}

func TestScore_ProcessEvent(t *testing.T) {
	s := testScorer(t)
	values := make([]float64, len(feature.ProcessFeatureNames))
	values[0], values[1], values[2] = 1, 2, 3
	score, err := s.Score(feature.Vector{Modality: telemetry.ModalityProcess, Values: values})
	require.NoError(t, err)
	// Encoder copies the first three inputs, fusion sums them: sigmoid(6).
	want := 1 / (1 + math.Exp(-6))
	assert.InDelta(t, want, score, 1e-12)
}

func TestScore_AlwaysInUnitInterval(t *testing.T) {
	s := testScorer(t)
	for _, values := range [][]float64{
		{0, 0, 0, 0, 0},
		{1e6, -1e6, 1e6, -1e6, 1e6},
		{math.MaxFloat32, 0, 0, 0, 0},
	} {
		score, err := s.Score(feature.Vector{Modality: telemetry.ModalityNetwork, Values: values})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, score, 0.0)
		assert.LessOrEqual(t, score, 1.0)
	}
}

func TestScore_WrongVectorLength(t *testing.T) {
	s := testScorer(t)
	_, err := s.Score(feature.Vector{Modality: telemetry.ModalityNetwork, Values: []float64{1, 2}})
	require.ErrorIs(t, err, ErrInference)
}

func TestScore_UnknownModality(t *testing.T) {
	s := testScorer(t)
	_, err := s.Score(feature.Vector{Modality: "Disk", Values: []float64{1}})
	require.ErrorIs(t, err, feature.ErrUnknownModality)
}

func TestAdaptLatent(t *testing.T) {
	s := testScorer(t)

	same := []float64{1, 2}
	assert.Equal(t, same, s.adaptLatent(same, 2, telemetry.ModalityNetwork))

	truncated := s.adaptLatent([]float64{1, 2, 3}, 2, telemetry.ModalityNetwork)
	assert.Equal(t, []float64{1, 2}, truncated)

	padded := s.adaptLatent([]float64{1}, 3, telemetry.ModalityProcess)
	assert.Equal(t, []float64{1, 0, 0}, padded)
}
