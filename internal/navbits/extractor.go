// Package navbits recovers the 50 bps navigation data bits from the prompt
// in-phase correlator series of a tracked channel.
package navbits

import (
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// SamplesPerBit is the number of 1 ms epochs in one navigation bit
const SamplesPerBit = 20

// Bit is a decided navigation bit
type Bit int8

// Bit values. An erasure keeps its place in the stream so later bits stay
// aligned with time.
const (
	Erasure Bit = -1
	Zero    Bit = 0
	One     Bit = 1
)

func (b Bit) String() string {
	switch b {
	case One:
		return "1"
	case Zero:
		return "0"
	case Erasure:
		return "x"
	default:
		return fmt.Sprintf("bit(%d)", int8(b))
	}
}

// Stream is the output of bit extraction
type Stream struct {
	Offset int   // epoch of the first polarity transition
	Bits   []Bit // one entry per complete 20 epoch window
}

// Erasures counts the windows whose mean was exactly zero
func (s Stream) Erasures() int {
	n := 0
	for _, b := range s.Bits {
		if b == Erasure {
			n++
		}
	}
	return n
}

// String renders the bits as a compact 0/1/x string
func (s Stream) String() string {
	var sb strings.Builder
	for _, b := range s.Bits {
		sb.WriteString(b.String())
	}
	return sb.String()
}

// WriteTo writes the stream in the bit file layout: the offset, then every
// bit right aligned in a three character field, then a newline. The file
// holds complete 20 epoch windows only; epochs after the last complete
// window never reach it.
func (s Stream) WriteTo(w io.Writer) (int64, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d", s.Offset)
	for _, b := range s.Bits {
		fmt.Fprintf(&sb, "%3d", int8(b))
	}
	sb.WriteByte('\n')

	n, err := io.WriteString(w, sb.String())
	return int64(n), err
}

// FileName returns the bit file name for a satellite
func FileName(prn int) string {
	return fmt.Sprintf("SV%d.bin", prn)
}

// sign returns -1, 0 or 1
func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

// SyncOffset returns the index of the first sample whose sign differs from
// the first sample, or len(ip) when the polarity never changes.
func SyncOffset(ip []float64) int {
	if len(ip) == 0 {
		return 0
	}

	first := sign(ip[0])
	for i, v := range ip {
		if sign(v) != first {
			return i
		}
	}
	return len(ip)
}

// Extractor turns prompt correlator series into bit streams
type Extractor struct {
	logger *logrus.Logger
}

// NewExtractor creates a bit extractor
func NewExtractor(logger *logrus.Logger) *Extractor {
	return &Extractor{logger: logger}
}

// Extract synchronizes on the first polarity transition and integrates
// complete 20 epoch windows into bits. Epochs after the last complete
// window are not decided.
func (e *Extractor) Extract(prn int, ip []float64) Stream {
	offset := SyncOffset(ip)
	windows := (len(ip) - offset) / SamplesPerBit

	stream := Stream{
		Offset: offset,
		Bits:   make([]Bit, 0, windows),
	}

	for w := 0; w < windows; w++ {
		start := offset + w*SamplesPerBit

		sum := 0.0
		for _, v := range ip[start : start+SamplesPerBit] {
			sum += v
		}

		switch sign(sum / SamplesPerBit) {
		case 1:
			stream.Bits = append(stream.Bits, One)
		case -1:
			stream.Bits = append(stream.Bits, Zero)
		default:
			stream.Bits = append(stream.Bits, Erasure)
		}
	}

	fields := logrus.Fields{
		"prn":      prn,
		"offset":   offset,
		"bits":     len(stream.Bits),
		"erasures": stream.Erasures(),
		"dropped":  len(ip) - offset - windows*SamplesPerBit,
	}
	if offset == len(ip) && len(ip) > 0 {
		e.logger.WithFields(fields).Warn("No polarity transition found, no bits decided")
	} else {
		e.logger.WithFields(fields).Debug("Extracted navigation bits")
	}

	return stream
}
