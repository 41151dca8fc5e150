package tracking

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestConfig_Validate tests parameter validation
func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *Config)
		wantErr bool
	}{
		{name: "Defaults", modify: func(c *Config) {}},
		{name: "Narrow correlator", modify: func(c *Config) { c.EarlyLateSpacing = 0.1 }},
		{name: "Lost lock limit", modify: func(c *Config) { c.LostLockLimit = 50 }},
		{name: "Zero code bandwidth", modify: func(c *Config) { c.CodeLoopNoiseBandwidth = 0 }, wantErr: true},
		{name: "Negative carrier damping", modify: func(c *Config) { c.CarrZeta = -0.7 }, wantErr: true},
		{name: "NaN gain", modify: func(c *Config) { c.CarrLoopGain = math.NaN() }, wantErr: true},
		{name: "Zero sampling frequency", modify: func(c *Config) { c.SamplingFreq = 0 }, wantErr: true},
		{name: "Zero integration period", modify: func(c *Config) { c.PDICode = 0 }, wantErr: true},
		{name: "No code", modify: func(c *Config) { c.CodeLength = 0 }, wantErr: true},
		{name: "No epochs", modify: func(c *Config) { c.EpochCount = 0 }, wantErr: true},
		{name: "Negative spacing", modify: func(c *Config) { c.EarlyLateSpacing = -0.5 }, wantErr: true},
		{name: "Spacing beyond the code", modify: func(c *Config) { c.EarlyLateSpacing = 1023 }, wantErr: true},
		{name: "Negative lost lock limit", modify: func(c *Config) { c.LostLockLimit = -1 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			assert.NoError(t, err)
		})
	}
}

// TestDefaultConfig tests the standard L1 C/A parameters
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 0.5, cfg.EarlyLateSpacing)
	assert.Equal(t, 2.0, cfg.CodeLoopNoiseBandwidth)
	assert.Equal(t, 25.0, cfg.CarrLoopNoiseBandwidth)
	assert.Equal(t, 0.25, cfg.CarrLoopGain)
	assert.Equal(t, 1023, cfg.CodeLength)
	assert.Equal(t, 430, cfg.EpochCount)
	assert.Equal(t, 0.25, cfg.CodeFreqBasis/cfg.SamplingFreq)
}

// TestTelemetry tests the record arena
func TestTelemetry(t *testing.T) {
	tel := NewTelemetry(2)
	_, ok := tel.Last()
	assert.False(t, ok)

	require.NoError(t, tel.Append(Record{Epoch: 0, Correlation: CorrelatorOutputs{IP: 3}}))
	assert.Error(t, tel.Append(Record{Epoch: 2}), "out of order")
	require.NoError(t, tel.Append(Record{Epoch: 1, Correlation: CorrelatorOutputs{IP: -4}}))
	assert.Error(t, tel.Append(Record{Epoch: 2}), "full")

	assert.Equal(t, 2, tel.Len())
	assert.Equal(t, []float64{3, -4}, tel.PromptInPhase())

	last, ok := tel.Last()
	require.True(t, ok)
	assert.Equal(t, 1, last.Epoch)
}
