// Package rtlsdr captures raw GPS L1 samples from an RTL-SDR dongle
package rtlsdr

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"go1575/internal/signal"
)

// Capture defaults for GPS L1
const (
	DefaultFrequency  = 1575420000 // L1 carrier (Hz)
	DefaultSampleRate = 2048000    // samples per second
	DefaultGain       = 0          // automatic gain
	BufferChunkSize   = 16384      // bytes per synchronous read
	BytesPerSample    = 2          // interleaved uint8 I/Q
)

// Config describes a capture
type Config struct {
	DeviceIndex  int
	Frequency    uint32
	SampleRate   uint32
	Gain         int // dB, 0 for automatic
	Milliseconds int
}

// DefaultConfig returns a one second L1 capture on the first device
func DefaultConfig() Config {
	return Config{
		Frequency:    DefaultFrequency,
		SampleRate:   DefaultSampleRate,
		Gain:         DefaultGain,
		Milliseconds: 1000,
	}
}

// Validate checks the capture parameters
func (c Config) Validate() error {
	if c.Frequency == 0 {
		return fmt.Errorf("frequency must be set")
	}
	// librtlsdr accepts 225001-300000 and 900001-3200000 samples per second
	if !(c.SampleRate > 225000 && c.SampleRate <= 300000) && !(c.SampleRate > 900000 && c.SampleRate <= 3200000) {
		return fmt.Errorf("unsupported sample rate %d", c.SampleRate)
	}
	if c.Gain < 0 {
		return fmt.Errorf("gain must not be negative, got %d", c.Gain)
	}
	if c.Milliseconds <= 0 {
		return fmt.Errorf("capture length must be positive, got %d ms", c.Milliseconds)
	}
	return nil
}

// Bytes returns the capture size in bytes
func (c Config) Bytes() int {
	samples := int(uint64(c.SampleRate) * uint64(c.Milliseconds) / 1000)
	return samples * BytesPerSample
}

// Receiver is the part of a device a capture needs
type Receiver interface {
	Configure(cfg Config) error
	Capture(ctx context.Context, n int) ([]byte, error)
	Close() error
}

// Recorder writes captures from a receiver to disk
type Recorder struct {
	receiver Receiver
	logger   *logrus.Logger
}

// NewRecorder creates a recorder around a receiver
func NewRecorder(receiver Receiver, logger *logrus.Logger) *Recorder {
	return &Recorder{receiver: receiver, logger: logger}
}

// Record captures cfg.Milliseconds of samples into path in the uint8 I/Q
// layout and returns the number of bytes written.
func (r *Recorder) Record(ctx context.Context, cfg Config, path string) (int, error) {
	data, err := r.record(ctx, cfg, path)
	return len(data), err
}

// RecordSamples records like Record and returns the capture decoded into
// real samples, ready for acquisition and tracking.
func (r *Recorder) RecordSamples(ctx context.Context, cfg Config, path string) (*signal.Buffer, error) {
	data, err := r.record(ctx, cfg, path)
	if err != nil {
		return nil, err
	}
	return Samples(data, cfg.SampleRate)
}

func (r *Recorder) record(ctx context.Context, cfg Config, path string) ([]byte, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid capture config: %w", err)
	}
	if err := r.receiver.Configure(cfg); err != nil {
		return nil, fmt.Errorf("failed to configure receiver: %w", err)
	}
	defer func() {
		if err := r.receiver.Close(); err != nil {
			r.logger.WithError(err).Error("Failed to close receiver")
		}
	}()

	start := time.Now()
	data, err := r.receiver.Capture(ctx, cfg.Bytes())
	if err != nil {
		return nil, fmt.Errorf("capture failed: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write capture %s: %w", path, err)
	}

	r.logger.WithFields(logrus.Fields{
		"file":     path,
		"bytes":    len(data),
		"duration": time.Since(start).String(),
	}).Info("Capture written")

	return data, nil
}

// Samples converts captured bytes into real samples for tracking
func Samples(data []byte, sampleRate uint32) (*signal.Buffer, error) {
	samples, err := signal.Decode(bytes.NewReader(data), signal.FormatUint8IQ, -1)
	if err != nil {
		return nil, fmt.Errorf("failed to decode capture: %w", err)
	}
	return signal.NewBuffer(samples, float64(sampleRate)), nil
}

var _ Receiver = (*Device)(nil)
