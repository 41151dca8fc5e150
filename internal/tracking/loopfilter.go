package tracking

// LoopCoefficients holds the time constants of a second order loop filter
type LoopCoefficients struct {
	Tau1 float64
	Tau2 float64
}

// NaturalFrequency returns the loop natural frequency Wn for the given noise
// bandwidth and damping ratio.
func NaturalFrequency(bandwidth, zeta float64) float64 {
	return bandwidth * 8 * zeta / (4*zeta*zeta + 1)
}

// DesignLoopFilter computes tau1 and tau2 from the noise bandwidth, damping
// ratio and loop gain. All three inputs must be positive; Config.Validate
// enforces that before any channel is built.
func DesignLoopFilter(bandwidth, zeta, gain float64) LoopCoefficients {
	wn := NaturalFrequency(bandwidth, zeta)

	return LoopCoefficients{
		Tau1: gain / (wn * wn),
		Tau2: 2.0 * zeta / wn,
	}
}

// LoopState is the memory of one loop filter between epochs
type LoopState struct {
	PreviousNCO   float64
	PreviousError float64
}

// LoopFilter is a discrete proportional-integral loop filter
type LoopFilter struct {
	coef  LoopCoefficients
	pdi   float64
	state LoopState
}

// NewLoopFilter creates a loop filter with zeroed state
func NewLoopFilter(coef LoopCoefficients, pdi float64) *LoopFilter {
	return &LoopFilter{coef: coef, pdi: pdi}
}

// Update feeds one discriminator output through the filter and returns the
// new NCO command. It must be called exactly once per epoch.
func (f *LoopFilter) Update(discr float64) float64 {
	nco := f.state.PreviousNCO +
		(f.coef.Tau2/f.coef.Tau1)*(discr-f.state.PreviousError) +
		discr*(f.pdi/f.coef.Tau1)

	f.state.PreviousNCO = nco
	f.state.PreviousError = discr

	return nco
}

// State returns a copy of the filter memory
func (f *LoopFilter) State() LoopState {
	return f.state
}

// Coefficients returns the filter time constants
func (f *LoopFilter) Coefficients() LoopCoefficients {
	return f.coef
}
