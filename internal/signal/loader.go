package signal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

// Format is the on-disk layout of a raw capture
type Format int

// Supported capture layouts. For I/Q layouts only the in-phase component is kept.
const (
	FormatInt8 Format = iota // signed 8 bit real samples
	FormatInt8IQ             // signed 8 bit interleaved I/Q
	FormatUint8IQ            // unsigned 8 bit interleaved I/Q (RTL-SDR)
	FormatFloat32IQ          // little endian float32 interleaved I/Q
)

var formatNames = map[Format]string{
	FormatInt8:      "int8",
	FormatInt8IQ:    "int8iq",
	FormatUint8IQ:   "uint8iq",
	FormatFloat32IQ: "float32iq",
}

func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("format(%d)", int(f))
}

// ParseFormat maps a format name to a Format
func ParseFormat(name string) (Format, error) {
	for f, n := range formatNames {
		if n == name {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown sample format %q", name)
}

// BytesPerSample returns the size of one sample in the file
func (f Format) BytesPerSample() int {
	switch f {
	case FormatInt8:
		return 1
	case FormatInt8IQ, FormatUint8IQ:
		return 2
	case FormatFloat32IQ:
		return 8
	default:
		return 0
	}
}

// LoadOptions describe which part of a capture file to load
type LoadOptions struct {
	Format       Format
	SamplingFreq float64 // Hz
	SkipBytes    int64   // bytes to skip at the start of the file
	Milliseconds float64 // length to load, 0 loads the whole file
}

// LoadFile reads a capture file into a Buffer in one synchronous pass
func LoadFile(path string, opts LoadOptions) (*Buffer, error) {
	if opts.SamplingFreq <= 0 {
		return nil, fmt.Errorf("sampling frequency must be positive, got %v", opts.SamplingFreq)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture %s: %w", path, err)
	}
	defer file.Close()

	if opts.SkipBytes > 0 {
		if _, err := file.Seek(opts.SkipBytes, io.SeekStart); err != nil {
			return nil, fmt.Errorf("failed to skip %d bytes: %w", opts.SkipBytes, err)
		}
	}

	maxSamples := -1
	if opts.Milliseconds > 0 {
		maxSamples = int(math.Ceil(opts.Milliseconds * opts.SamplingFreq / 1000))
	}

	samples, err := Decode(bufio.NewReaderSize(file, 1<<20), opts.Format, maxSamples)
	if err != nil {
		return nil, fmt.Errorf("failed to decode capture %s: %w", path, err)
	}

	return NewBuffer(samples, opts.SamplingFreq), nil
}

// Decode converts raw capture bytes into real samples. It stops after
// maxSamples samples (negative for no limit) or at end of input; a trailing
// partial sample is ignored.
func Decode(r io.Reader, format Format, maxSamples int) ([]float64, error) {
	size := format.BytesPerSample()
	if size == 0 {
		return nil, fmt.Errorf("unsupported sample format %v", format)
	}

	var samples []float64
	if maxSamples > 0 {
		samples = make([]float64, 0, maxSamples)
	}

	buf := make([]byte, size)
	for maxSamples < 0 || len(samples) < maxSamples {
		if _, err := io.ReadFull(r, buf); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return nil, err
		}
		samples = append(samples, decodeSample(format, buf))
	}

	return samples, nil
}

// decodeSample returns the real (in-phase) value of one raw sample
func decodeSample(format Format, b []byte) float64 {
	switch format {
	case FormatInt8, FormatInt8IQ:
		return float64(int8(b[0]))
	case FormatUint8IQ:
		return float64(b[0]) - 127.5
	case FormatFloat32IQ:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b[:4])))
	default:
		return 0
	}
}

// EncodeInt8 writes real samples as signed 8 bit values, clipping to the
// int8 range. It is the inverse of FormatInt8 decoding for integral samples.
func EncodeInt8(w io.Writer, samples []float64) error {
	bw := bufio.NewWriter(w)
	for _, s := range samples {
		v := math.Round(s)
		if v > math.MaxInt8 {
			v = math.MaxInt8
		} else if v < math.MinInt8 {
			v = math.MinInt8
		}
		if err := bw.WriteByte(byte(int8(v))); err != nil {
			return err
		}
	}
	return bw.Flush()
}
