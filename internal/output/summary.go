package output

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"go1575/internal/acquisition"
	"go1575/internal/tracking"
)

// ChannelSummary is the outcome of one tracked satellite
type ChannelSummary struct {
	PRN              int                          `yaml:"prn"`
	Status           string                       `yaml:"status"`
	Error            string                       `yaml:"error,omitempty"`
	Estimate         tracking.AcquisitionEstimate `yaml:"estimate"`
	Epochs           int                          `yaml:"epochs"`
	LostLockEpochs   int                          `yaml:"lost_lock_epochs"`
	CodeFrequency    float64                      `yaml:"code_frequency,omitempty"`
	CarrierFrequency float64                      `yaml:"carrier_frequency,omitempty"`
	BitOffset        int                          `yaml:"bit_offset"`
	Bits             string                       `yaml:"bits,omitempty"`
	Erasures         int                          `yaml:"erasures"`
	Files            []string                     `yaml:"files,omitempty"`
}

// Summary describes one processing run
type Summary struct {
	RunID        string               `yaml:"run_id"`
	Version      string               `yaml:"version"`
	Input        string               `yaml:"input"`
	SamplingFreq float64              `yaml:"sampling_freq"`
	Samples      int                  `yaml:"samples"`
	Started      time.Time            `yaml:"started"`
	Finished     time.Time            `yaml:"finished"`
	Tracking     tracking.Config      `yaml:"tracking"`
	Acquisition  []acquisition.Result `yaml:"acquisition,omitempty"`
	Channels     []ChannelSummary     `yaml:"channels"`
}

// WriteSummary writes the run summary as YAML. The summary is never
// compressed so it stays readable next to the channel files.
func (w *Writer) WriteSummary(s Summary) (string, error) {
	path := filepath.Join(w.dir, SummaryFile)

	data, err := yaml.Marshal(&s)
	if err != nil {
		return "", fmt.Errorf("failed to encode summary: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write summary %s: %w", path, err)
	}

	w.logger.WithField("file", path).Info("Wrote run summary")
	return path, nil
}

// ReadSummary loads a summary written by WriteSummary
func ReadSummary(path string) (Summary, error) {
	var s Summary
	data, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("failed to decode summary %s: %w", path, err)
	}
	return s, nil
}
