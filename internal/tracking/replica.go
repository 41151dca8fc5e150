package tracking

import (
	"math"
)

// ResidualPhase is the code and carrier phase carried from one epoch to the next
type ResidualPhase struct {
	CodePhaseChips      float64
	CarrierPhaseRadians float64
}

// Replica holds the local code and carrier replicas for one block
type Replica struct {
	Early  []float64
	Prompt []float64
	Late   []float64

	// Sin is the in-phase carrier, Cos the quadrature carrier
	Sin []float64
	Cos []float64
}

// ChipTolerance is the code phase, in chips, below which a position counts
// as lying on a chip boundary. Code NCO drift smaller than this never moves
// a chip index, adds a sample to a block or clamps the residual phase.
const ChipTolerance = 1e-6

// BlockSize returns the number of samples needed to reach the end of the
// current code period from the residual code phase.
func BlockSize(codeLength int, residual, codePhaseStep float64) int {
	return int(math.Ceil((float64(codeLength) - residual - ChipTolerance) / codePhaseStep))
}

// ReplicaGenerator builds code and carrier replicas against one reference code
type ReplicaGenerator struct {
	code         []int8
	spacing      float64
	samplingFreq float64
}

// NewReplicaGenerator creates a generator for the given reference chips
func NewReplicaGenerator(code []int8, spacing, samplingFreq float64) *ReplicaGenerator {
	return &ReplicaGenerator{
		code:         code,
		spacing:      spacing,
		samplingFreq: samplingFreq,
	}
}

// CodeLength returns the number of chips in one code period
func (g *ReplicaGenerator) CodeLength() int {
	return len(g.code)
}

// chipIndex rounds a fractional chip position up and wraps it into the
// reference code. Positions may fall before chip 0 or at/after the last
// chip, so the result is always reduced modulo the code length.
func chipIndex(position float64, codeLength int) int {
	idx := int(math.Ceil(position-ChipTolerance)) % codeLength
	if idx < 0 {
		idx += codeLength
	}
	return idx
}

// ChipIndices returns the n chip indices starting at start and stepping by step
func (g *ReplicaGenerator) ChipIndices(start, step float64, n int) []int {
	indices := make([]int, n)
	for k := range indices {
		indices[k] = chipIndex(start+float64(k)*step, len(g.code))
	}
	return indices
}

// fill writes the chips for n positions into dst and returns the last position
func (g *ReplicaGenerator) fill(dst []float64, start, step float64) float64 {
	last := start
	for k := range dst {
		last = start + float64(k)*step
		dst[k] = float64(g.code[chipIndex(last, len(g.code))])
	}
	return last
}

// Generate builds the early, prompt and late code replicas and the carrier
// replica for an n sample block. The returned ResidualPhase is the phase to
// use for the next block.
func (g *ReplicaGenerator) Generate(phase ResidualPhase, codePhaseStep, carrierFreq float64, n int) (*Replica, ResidualPhase) {
	r := &Replica{
		Early:  make([]float64, n),
		Prompt: make([]float64, n),
		Late:   make([]float64, n),
		Sin:    make([]float64, n),
		Cos:    make([]float64, n),
	}

	rem := phase.CodePhaseChips
	g.fill(r.Early, rem-g.spacing, codePhaseStep)
	g.fill(r.Late, rem+g.spacing, codePhaseStep)
	lastPrompt := g.fill(r.Prompt, rem, codePhaseStep)

	next := ResidualPhase{
		CodePhaseChips:      CorrectResidualCodePhase(lastPrompt-float64(len(g.code)), codePhaseStep),
		CarrierPhaseRadians: g.carrier(r, phase.CarrierPhaseRadians, carrierFreq, n),
	}

	return r, next
}

// CorrectResidualCodePhase bounds the residual code phase to one code phase
// step: anything larger is clamped to the step with its sign, anything
// within a step snaps to zero.
func CorrectResidualCodePhase(residual, codePhaseStep float64) float64 {
	if math.Abs(residual) > codePhaseStep+ChipTolerance {
		return math.Copysign(codePhaseStep, residual)
	}
	return 0
}

// carrier fills the sin/cos replicas and returns the residual carrier phase
// at sample n, reduced modulo 2π.
func (g *ReplicaGenerator) carrier(r *Replica, remCarr, carrierFreq float64, n int) float64 {
	omega := carrierFreq * 2.0 * math.Pi

	for k := 0; k < n; k++ {
		arg := omega*(float64(k)/g.samplingFreq) + remCarr
		r.Sin[k], r.Cos[k] = math.Sincos(arg)
	}

	end := omega*(float64(n)/g.samplingFreq) + remCarr
	return reducePhase(end)
}

// reducePhase maps a phase in radians onto [0, 2π)
func reducePhase(arg float64) float64 {
	p := math.Mod(arg, 2*math.Pi)
	if p < 0 {
		p += 2 * math.Pi
	}
	return p
}
