//go:build cgo

package rtlsdr

import (
	"context"
	"errors"
	"fmt"

	rtlsdr "github.com/jpoirier/gortlsdr"
	"github.com/sirupsen/logrus"
)

// Device is an RTL-SDR dongle used for bulk L1 captures
type Device struct {
	device *rtlsdr.Context
	logger *logrus.Logger
	index  int
	isOpen bool
}

// NewDevice checks that the dongle at index exists
func NewDevice(index int, logger *logrus.Logger) (*Device, error) {
	count := rtlsdr.GetDeviceCount()
	if count == 0 {
		return nil, errors.New("no RTL-SDR devices found")
	}

	if index < 0 || index >= count {
		return nil, fmt.Errorf("device index %d out of range (0-%d)", index, count-1)
	}

	return &Device{
		logger: logger,
		index:  index,
	}, nil
}

// Configure opens the device and tunes it
func (d *Device) Configure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	var err error
	d.device, err = rtlsdr.Open(d.index)
	if err != nil {
		return fmt.Errorf("failed to open device: %w", err)
	}
	d.isOpen = true

	if err := d.device.SetCenterFreq(int(cfg.Frequency)); err != nil {
		return fmt.Errorf("failed to set frequency: %w", err)
	}

	if err := d.device.SetSampleRate(int(cfg.SampleRate)); err != nil {
		return fmt.Errorf("failed to set sample rate: %w", err)
	}

	if cfg.Gain == 0 {
		if err := d.device.SetTunerGainMode(false); err != nil {
			return fmt.Errorf("failed to set auto gain: %w", err)
		}
	} else {
		if err := d.device.SetTunerGainMode(true); err != nil {
			return fmt.Errorf("failed to set manual gain mode: %w", err)
		}
		// Gain is set in tenths of dB
		if err := d.device.SetTunerGain(cfg.Gain * 10); err != nil {
			return fmt.Errorf("failed to set gain: %w", err)
		}
	}

	if err := d.device.ResetBuffer(); err != nil {
		return fmt.Errorf("failed to reset buffer: %w", err)
	}

	d.logger.WithFields(logrus.Fields{
		"device_index": d.index,
		"device_name":  rtlsdr.GetDeviceName(d.index),
		"frequency":    cfg.Frequency,
		"sample_rate":  cfg.SampleRate,
		"gain":         cfg.Gain,
	}).Info("RTL-SDR device configured")

	return nil
}

// Capture reads n bytes of interleaved uint8 I/Q with synchronous reads.
// The context is checked between chunks.
func (d *Device) Capture(ctx context.Context, n int) ([]byte, error) {
	if !d.isOpen {
		return nil, errors.New("device not open")
	}

	data := make([]byte, 0, n)
	chunk := make([]byte, BufferChunkSize)

	d.logger.WithField("bytes", n).Info("Starting RTL-SDR capture")

	for len(data) < n {
		if err := ctx.Err(); err != nil {
			return data, err
		}

		want := BufferChunkSize
		if rest := n - len(data); rest < want {
			// librtlsdr reads in multiples of 512 bytes
			want = (rest + 511) &^ 511
		}

		read, err := d.device.ReadSync(chunk[:want], want)
		if err != nil {
			return data, fmt.Errorf("read failed after %d bytes: %w", len(data), err)
		}
		if read == 0 {
			return data, errors.New("device returned no data")
		}

		if len(data)+read > n {
			read = n - len(data)
		}
		data = append(data, chunk[:read]...)
	}

	d.logger.WithField("bytes", len(data)).Info("RTL-SDR capture complete")
	return data, nil
}

// Close closes the device
func (d *Device) Close() error {
	if d.device != nil && d.isOpen {
		if err := d.device.Close(); err != nil {
			return fmt.Errorf("failed to close device: %w", err)
		}
		d.isOpen = false
		d.logger.Info("RTL-SDR device closed")
	}

	return nil
}
