package tracking

import (
	"math"
)

// finite reports whether every value is neither NaN nor infinite
func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// CodeDiscriminator is the normalized early minus late envelope
// discriminator. It returns ErrDegenerateDiscriminator when both envelopes
// are zero or either is not finite.
func CodeDiscriminator(c CorrelatorOutputs) (float64, error) {
	early := math.Sqrt(c.IE*c.IE + c.QE*c.QE)
	late := math.Sqrt(c.IL*c.IL + c.QL*c.QL)

	sum := early + late
	if sum == 0 || !finite(early, late) {
		return 0, ErrDegenerateDiscriminator
	}
	return (early - late) / sum, nil
}

// CarrierDiscriminator is the Costas arctangent discriminator in cycles.
// The two quadrant arctangent folds the ±π data bit ambiguity; a zero or
// non-finite prompt returns ErrDegenerateDiscriminator.
func CarrierDiscriminator(c CorrelatorOutputs) (float64, error) {
	if c.IP == 0 || !finite(c.IP, c.QP) {
		return 0, ErrDegenerateDiscriminator
	}
	return math.Atan(c.QP/c.IP) / (2.0 * math.Pi), nil
}

// LoopOutput is the result of one loop update
type LoopOutput struct {
	Error     float64 // raw discriminator
	NCO       float64 // filtered discriminator
	Frequency float64 // updated frequency in Hz
	Lost      bool    // discriminator was degenerate and clamped to zero
}

// CodeLoop is the delay lock loop
type CodeLoop struct {
	filter *LoopFilter
	basis  float64
}

// NewCodeLoop creates a delay lock loop from the channel configuration
func NewCodeLoop(cfg Config) *CodeLoop {
	coef := DesignLoopFilter(cfg.CodeLoopNoiseBandwidth, cfg.CodeZeta, cfg.CodeLoopGain)
	return &CodeLoop{
		filter: NewLoopFilter(coef, cfg.PDICode),
		basis:  cfg.CodeFreqBasis,
	}
}

// Update runs the discriminator and filter and returns the code frequency
// for the next epoch.
func (l *CodeLoop) Update(c CorrelatorOutputs) LoopOutput {
	e, err := CodeDiscriminator(c)
	nco := l.filter.Update(e)

	return LoopOutput{
		Error:     e,
		NCO:       nco,
		Frequency: l.basis - nco,
		Lost:      err != nil,
	}
}

// State returns the loop filter memory
func (l *CodeLoop) State() LoopState {
	return l.filter.State()
}

// CarrierLoop is the Costas phase lock loop
type CarrierLoop struct {
	filter   *LoopFilter
	acquired float64
}

// NewCarrierLoop creates a carrier loop around the acquired carrier frequency
func NewCarrierLoop(cfg Config, acquiredFreq float64) *CarrierLoop {
	coef := DesignLoopFilter(cfg.CarrLoopNoiseBandwidth, cfg.CarrZeta, cfg.CarrLoopGain)
	return &CarrierLoop{
		filter:   NewLoopFilter(coef, cfg.PDICarr),
		acquired: acquiredFreq,
	}
}

// Update runs the discriminator and filter and returns the carrier
// frequency for the next epoch.
func (l *CarrierLoop) Update(c CorrelatorOutputs) LoopOutput {
	e, err := CarrierDiscriminator(c)
	nco := l.filter.Update(e)

	return LoopOutput{
		Error:     e,
		NCO:       nco,
		Frequency: l.acquired + nco,
		Lost:      err != nil,
	}
}

// State returns the loop filter memory
func (l *CarrierLoop) State() LoopState {
	return l.filter.State()
}
