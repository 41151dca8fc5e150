package tracking

import (
	"errors"
	"fmt"
)

// Default tracking parameters for a GPS L1 C/A channel
const (
	DefaultEarlyLateSpacing       = 0.5      // chips
	DefaultCodeLoopNoiseBandwidth = 2.0      // Hz
	DefaultCodeZeta               = 0.7      // damping
	DefaultCodeLoopGain           = 1.0      // loop gain
	DefaultCarrLoopNoiseBandwidth = 25.0     // Hz
	DefaultCarrZeta               = 0.7      // damping
	DefaultCarrLoopGain           = 0.25     // loop gain
	DefaultCodeFreqBasis          = 1.023e6  // L1 C/A chipping rate (Hz)
	DefaultSamplingFreq           = 4.092e6  // ADC sampling rate (Hz)
	DefaultCodeLength             = 1023     // chips per code period
	DefaultPDICode                = 0.001    // s
	DefaultPDICarr                = 0.001    // s
	DefaultEpochCount             = 430      // 1 ms epochs
	DefaultLostLockLimit          = 0        // disabled
)

// Config holds the per-channel tracking parameters. A Config is never
// modified once a channel has been created from it.
type Config struct {
	EarlyLateSpacing       float64 `yaml:"early_late_spacing"`
	CodeLoopNoiseBandwidth float64 `yaml:"code_loop_noise_bandwidth"`
	CodeZeta               float64 `yaml:"code_zeta"`
	CodeLoopGain           float64 `yaml:"code_loop_gain"`
	CarrLoopNoiseBandwidth float64 `yaml:"carr_loop_noise_bandwidth"`
	CarrZeta               float64 `yaml:"carr_zeta"`
	CarrLoopGain           float64 `yaml:"carr_loop_gain"`
	CodeFreqBasis          float64 `yaml:"code_freq_basis"`
	SamplingFreq           float64 `yaml:"sampling_freq"`
	CodeLength             int     `yaml:"code_length"`
	PDICode                float64 `yaml:"pdi_code"`
	PDICarr                float64 `yaml:"pdi_carr"`
	EpochCount             int     `yaml:"epoch_count"`

	// LostLockLimit fails the channel after this many consecutive epochs
	// with a degenerate discriminator. Zero disables the check.
	LostLockLimit int `yaml:"lost_lock_limit"`
}

// DefaultConfig returns the standard L1 C/A tracking parameters
func DefaultConfig() Config {
	return Config{
		EarlyLateSpacing:       DefaultEarlyLateSpacing,
		CodeLoopNoiseBandwidth: DefaultCodeLoopNoiseBandwidth,
		CodeZeta:               DefaultCodeZeta,
		CodeLoopGain:           DefaultCodeLoopGain,
		CarrLoopNoiseBandwidth: DefaultCarrLoopNoiseBandwidth,
		CarrZeta:               DefaultCarrZeta,
		CarrLoopGain:           DefaultCarrLoopGain,
		CodeFreqBasis:          DefaultCodeFreqBasis,
		SamplingFreq:           DefaultSamplingFreq,
		CodeLength:             DefaultCodeLength,
		PDICode:                DefaultPDICode,
		PDICarr:                DefaultPDICarr,
		EpochCount:             DefaultEpochCount,
		LostLockLimit:          DefaultLostLockLimit,
	}
}

// ErrInvalidConfig is returned by Validate for unusable parameters
var ErrInvalidConfig = errors.New("invalid tracking configuration")

// Validate checks that every parameter is usable by the loop filters and
// the replica generator.
func (c Config) Validate() error {
	positive := []struct {
		name  string
		value float64
	}{
		{"code_loop_noise_bandwidth", c.CodeLoopNoiseBandwidth},
		{"code_zeta", c.CodeZeta},
		{"code_loop_gain", c.CodeLoopGain},
		{"carr_loop_noise_bandwidth", c.CarrLoopNoiseBandwidth},
		{"carr_zeta", c.CarrZeta},
		{"carr_loop_gain", c.CarrLoopGain},
		{"code_freq_basis", c.CodeFreqBasis},
		{"sampling_freq", c.SamplingFreq},
		{"pdi_code", c.PDICode},
		{"pdi_carr", c.PDICarr},
	}
	for _, p := range positive {
		if !(p.value > 0) {
			return fmt.Errorf("%w: %s must be positive, got %v", ErrInvalidConfig, p.name, p.value)
		}
	}

	if c.CodeLength <= 0 {
		return fmt.Errorf("%w: code_length must be positive, got %d", ErrInvalidConfig, c.CodeLength)
	}
	if c.EpochCount <= 0 {
		return fmt.Errorf("%w: epoch_count must be positive, got %d", ErrInvalidConfig, c.EpochCount)
	}
	if c.EarlyLateSpacing < 0 || c.EarlyLateSpacing >= float64(c.CodeLength) {
		return fmt.Errorf("%w: early_late_spacing out of range: %v", ErrInvalidConfig, c.EarlyLateSpacing)
	}
	if c.LostLockLimit < 0 {
		return fmt.Errorf("%w: lost_lock_limit must not be negative", ErrInvalidConfig)
	}

	return nil
}
