// Package signal holds raw receiver samples and loads them from capture files
package signal

import (
	"errors"
	"fmt"
)

// ErrOutOfRange is returned when a block extends past the available samples
var ErrOutOfRange = errors.New("sample range out of bounds")

// Buffer is an immutable in-memory sample buffer. It is safe for concurrent
// readers because nothing writes to it after construction.
type Buffer struct {
	samples      []float64
	samplingFreq float64
}

// NewBuffer wraps samples captured at samplingFreq. The buffer takes
// ownership of the slice.
func NewBuffer(samples []float64, samplingFreq float64) *Buffer {
	return &Buffer{samples: samples, samplingFreq: samplingFreq}
}

// Len returns the number of samples
func (b *Buffer) Len() int {
	return len(b.samples)
}

// SamplingFreq returns the sampling frequency in Hz
func (b *Buffer) SamplingFreq() float64 {
	return b.samplingFreq
}

// Duration returns the captured time span in seconds
func (b *Buffer) Duration() float64 {
	if b.samplingFreq == 0 {
		return 0
	}
	return float64(len(b.samples)) / b.samplingFreq
}

// Block returns n samples starting at start. The returned slice aliases
// the buffer and must not be modified.
func (b *Buffer) Block(start, n int) ([]float64, error) {
	if start < 0 || n < 0 || start+n > len(b.samples) {
		return nil, fmt.Errorf("%w: [%d, %d) of %d samples", ErrOutOfRange, start, start+n, len(b.samples))
	}
	return b.samples[start : start+n : start+n], nil
}
