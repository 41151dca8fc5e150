//go:build !cgo

package rtlsdr

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
)

var errNoHardware = errors.New("RTL-SDR hardware support requires a cgo build with librtlsdr")

// Device is a stub used when the binary is built without cgo
type Device struct{}

// NewDevice always fails without cgo
func NewDevice(index int, logger *logrus.Logger) (*Device, error) {
	return nil, errNoHardware
}

// Configure always fails without cgo
func (d *Device) Configure(cfg Config) error {
	return errNoHardware
}

// Capture always fails without cgo
func (d *Device) Capture(ctx context.Context, n int) ([]byte, error) {
	return nil, errNoHardware
}

// Close does nothing without cgo
func (d *Device) Close() error {
	return nil
}
