package app

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"go1575/internal/acquisition"
	"go1575/internal/output"
	"go1575/internal/signal"
	"go1575/internal/tracking"
)

// Default configuration constants
const (
	DefaultInputFormat      = "int8"
	DefaultSamplingFreq     = tracking.DefaultSamplingFreq // Hz
	DefaultIntermediateFreq = 0.0                          // Hz, complex baseband front end
	DefaultMilliseconds     = 450                          // enough for 430 epochs plus acquisition offset
	DefaultOutputDir        = "./output"
	DefaultCompression      = "none"
	DefaultWorkers          = 4
)

// Config holds application configuration
type Config struct {
	InputFile        string
	InputFormat      string
	SamplingFreq     float64
	IntermediateFreq float64
	SkipBytes        int64
	Milliseconds     float64

	// Estimate is a manual acquisition hand-off. When set, acquisition is
	// skipped and only this satellite is tracked.
	Estimate *tracking.AcquisitionEstimate

	OutputDir   string
	Compression string
	MetricsAddr string
	Workers     int
	ParamsFile  string
	Verbose     bool

	Tracking    tracking.Config
	Acquisition acquisition.Config
}

// DefaultConfig returns a configuration with every default applied
func DefaultConfig() Config {
	return Config{
		InputFormat:      DefaultInputFormat,
		SamplingFreq:     DefaultSamplingFreq,
		IntermediateFreq: DefaultIntermediateFreq,
		Milliseconds:     DefaultMilliseconds,
		OutputDir:        DefaultOutputDir,
		Compression:      DefaultCompression,
		Workers:          DefaultWorkers,
		Tracking:         tracking.DefaultConfig(),
		Acquisition:      acquisition.DefaultConfig(),
	}
}

// params is the layout of the optional parameters file
type params struct {
	Tracking    *tracking.Config    `yaml:"tracking"`
	Acquisition *acquisition.Config `yaml:"acquisition"`
}

// LoadParams merges the tracking and acquisition sections of a YAML file
// over the current values. Keys missing from the file keep their values.
func (c *Config) LoadParams(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read parameters file: %w", err)
	}

	p := params{Tracking: &c.Tracking, Acquisition: &c.Acquisition}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("failed to parse parameters file %s: %w", path, err)
	}
	return nil
}

// trackingConfig returns the per-channel parameters for this run. The
// sampling frequency always follows the input.
func (c Config) trackingConfig() tracking.Config {
	cfg := c.Tracking
	cfg.SamplingFreq = c.SamplingFreq
	return cfg
}

// Validate checks the configuration of a tracking run
func (c Config) Validate() error {
	if c.InputFile == "" {
		return fmt.Errorf("input file is required")
	}
	if _, err := signal.ParseFormat(c.InputFormat); err != nil {
		return err
	}
	if !(c.SamplingFreq > 0) {
		return fmt.Errorf("sampling frequency must be positive, got %v", c.SamplingFreq)
	}
	if c.SkipBytes < 0 {
		return fmt.Errorf("skip must not be negative, got %d", c.SkipBytes)
	}
	if c.Milliseconds < 0 {
		return fmt.Errorf("milliseconds must not be negative, got %v", c.Milliseconds)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if _, err := output.ParseCompression(c.Compression); err != nil {
		return err
	}
	if err := c.trackingConfig().Validate(); err != nil {
		return err
	}
	if c.Estimate == nil {
		if err := c.Acquisition.Validate(); err != nil {
			return fmt.Errorf("invalid acquisition config: %w", err)
		}
	}
	return nil
}
