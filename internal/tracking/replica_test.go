package tracking

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go1575/internal/cacode"
)

// TestBlockSize tests the samples needed to finish one code period
func TestBlockSize(t *testing.T) {
	tests := []struct {
		name     string
		residual float64
		step     float64
		expected int
	}{
		{name: "Nominal code rate", residual: 0, step: DefaultCodeFreqBasis / DefaultSamplingFreq, expected: 4092},
		{name: "Slow code", residual: 0, step: (DefaultCodeFreqBasis - 1) / DefaultSamplingFreq, expected: 4093},
		{name: "Positive residual", residual: 0.25, step: 0.25, expected: 4091},
		{name: "Negative residual", residual: -0.25, step: 0.25, expected: 4093},
		{name: "Sub tolerance slow code", residual: 0, step: (DefaultCodeFreqBasis - 1e-9) / DefaultSamplingFreq, expected: 4092},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, BlockSize(DefaultCodeLength, tt.residual, tt.step))
		})
	}
}

// TestChipIndex tests rounding and wrapping of chip positions
func TestChipIndex(t *testing.T) {
	tests := []struct {
		name     string
		position float64
		expected int
	}{
		{name: "Zero", position: 0, expected: 0},
		{name: "Rounds up", position: 0.1, expected: 1},
		{name: "Whole chip", position: 5, expected: 5},
		{name: "Last chip", position: 1021.5, expected: 1022},
		{name: "Wraps past the end", position: 1022.5, expected: 0},
		{name: "Code length", position: 1023, expected: 0},
		{name: "Second period", position: 2046.2, expected: 1},
		{name: "Small negative", position: -0.5, expected: 0},
		{name: "Before chip zero", position: -1.5, expected: 1022},
		{name: "Just past a whole chip", position: 5 + 1e-9, expected: 5},
		{name: "Past a whole chip", position: 5 + 1e-4, expected: 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, chipIndex(tt.position, DefaultCodeLength))
		})
	}
}

// TestCorrectResidualCodePhase tests the residual bound
func TestCorrectResidualCodePhase(t *testing.T) {
	tests := []struct {
		name     string
		residual float64
		expected float64
	}{
		{name: "Within a step", residual: 0.1, expected: 0},
		{name: "Exactly one step", residual: 0.25, expected: 0},
		{name: "Positive overshoot", residual: 0.3, expected: 0.25},
		{name: "Negative overshoot", residual: -0.3, expected: -0.25},
		{name: "Zero", residual: 0, expected: 0},
		{name: "Just past one step", residual: -0.25 - 1e-12, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CorrectResidualCodePhase(tt.residual, 0.25))
		})
	}
}

// TestReplicaGenerator_Generate tests the three code replicas and the carrier
func TestReplicaGenerator_Generate(t *testing.T) {
	g := NewReplicaGenerator([]int8{1, -1, 1, -1}, 0.5, 4)
	assert.Equal(t, 4, g.CodeLength())

	r, next := g.Generate(ResidualPhase{}, 1, 1, 4)

	assert.Equal(t, []float64{1, -1, 1, -1}, r.Prompt)
	assert.Equal(t, []float64{1, -1, 1, -1}, r.Early)
	assert.Equal(t, []float64{-1, 1, -1, 1}, r.Late)

	wantSin := []float64{0, 1, 0, -1}
	wantCos := []float64{1, 0, -1, 0}
	for k := range wantSin {
		assert.InDelta(t, wantSin[k], r.Sin[k], 1e-12, "sin[%d]", k)
		assert.InDelta(t, wantCos[k], r.Cos[k], 1e-12, "cos[%d]", k)
	}

	assert.Equal(t, 0.0, next.CodePhaseChips)
	assert.InDelta(t, 0, next.CarrierPhaseRadians, 1e-12)
}

// TestReplicaGenerator_CarrierContinuity tests that the residual carrier
// phase joins consecutive blocks without a discontinuity
func TestReplicaGenerator_CarrierContinuity(t *testing.T) {
	code := make([]int8, 1023)
	for i := range code {
		code[i] = 1
	}
	g := NewReplicaGenerator(code, 0.5, DefaultSamplingFreq)
	const carrier = 1.25e3

	whole, _ := g.Generate(ResidualPhase{}, 0.25, carrier, 2000)
	first, next := g.Generate(ResidualPhase{}, 0.25, carrier, 1000)
	second, _ := g.Generate(next, 0.25, carrier, 1000)

	assert.GreaterOrEqual(t, next.CarrierPhaseRadians, 0.0)
	assert.Less(t, next.CarrierPhaseRadians, 2*math.Pi)

	for k := 0; k < 1000; k++ {
		require.InDelta(t, whole.Sin[k], first.Sin[k], 1e-12)
		require.InDelta(t, whole.Sin[1000+k], second.Sin[k], 1e-9)
		require.InDelta(t, whole.Cos[1000+k], second.Cos[k], 1e-9)
	}
}

// TestReplicaGenerator_ChipIndices tests the index sequence of a prompt replica
func TestReplicaGenerator_ChipIndices(t *testing.T) {
	code := make([]int8, DefaultCodeLength)
	g := NewReplicaGenerator(code, 0.5, DefaultSamplingFreq)

	indices := g.ChipIndices(1021.6, 0.25, 6)
	assert.Equal(t, []int{1022, 1022, 0, 0, 0, 0}, indices)

	for _, idx := range g.ChipIndices(-3, 0.25, 4092) {
		assert.GreaterOrEqual(t, idx, 0)
		assert.Less(t, idx, DefaultCodeLength)
	}
}

// TestReplicaGenerator_FastCodeKeepsAlignment tests that a code rate a
// fraction of a millihertz above nominal builds the same prompt replica and
// residual as the nominal rate
func TestReplicaGenerator_FastCodeKeepsAlignment(t *testing.T) {
	code, err := cacode.Generate(1)
	require.NoError(t, err)
	g := NewReplicaGenerator(code, DefaultEarlyLateSpacing, DefaultSamplingFreq)

	nominal := DefaultCodeFreqBasis / DefaultSamplingFreq
	for _, codeFreq := range []float64{DefaultCodeFreqBasis + 1e-4, DefaultCodeFreqBasis - 1e-4} {
		step := codeFreq / DefaultSamplingFreq
		n := BlockSize(DefaultCodeLength, 0, step)
		require.Equal(t, 4092, n, "code frequency %v", codeFreq)

		want, _ := g.Generate(ResidualPhase{}, nominal, 0, n)
		got, next := g.Generate(ResidualPhase{}, step, 0, n)
		assert.Equal(t, want.Prompt, got.Prompt, "code frequency %v", codeFreq)
		assert.Equal(t, want.Early, got.Early, "code frequency %v", codeFreq)
		assert.Equal(t, want.Late, got.Late, "code frequency %v", codeFreq)
		assert.Equal(t, 0.0, next.CodePhaseChips, "code frequency %v", codeFreq)
	}
}

// TestReducePhase tests the phase wrap
func TestReducePhase(t *testing.T) {
	assert.InDelta(t, 1.0, reducePhase(1+4*math.Pi), 1e-12)
	assert.InDelta(t, 2*math.Pi-1, reducePhase(-1), 1e-12)
	assert.Equal(t, 0.0, reducePhase(0))
}
