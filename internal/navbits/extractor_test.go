package navbits

import (
	"bytes"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExtractor() *Extractor {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewExtractor(logger)
}

// series builds a prompt series of lead samples at -1 followed by one
// 20 sample block per sign
func series(lead int, signs ...float64) []float64 {
	var ip []float64
	for i := 0; i < lead; i++ {
		ip = append(ip, -1)
	}
	for _, s := range signs {
		for i := 0; i < SamplesPerBit; i++ {
			ip = append(ip, s*(100+float64(i)))
		}
	}
	return ip
}

// TestExtract tests synchronization and bit decisions
func TestExtract(t *testing.T) {
	zeroMean := make([]float64, SamplesPerBit)
	for i := range zeroMean {
		zeroMean[i] = 1
		if i%2 == 1 {
			zeroMean[i] = -1
		}
	}

	tests := []struct {
		name   string
		ip     []float64
		offset int
		bits   []Bit
	}{
		{
			name:   "Transition at epoch 7",
			ip:     series(7, 1, 1, -1, 1),
			offset: 7,
			bits:   []Bit{One, One, Zero, One},
		},
		{
			name:   "Partial window dropped",
			ip:     append(series(3, 1, -1), 5, 5, 5),
			offset: 3,
			bits:   []Bit{One, Zero},
		},
		{
			name:   "Zero mean is an erasure",
			ip:     append(append(series(2, 1), zeroMean...), series(0, 1)[:SamplesPerBit]...),
			offset: 2,
			bits:   []Bit{One, Erasure, One},
		},
		{
			name:   "No transition",
			ip:     []float64{-3, -2, -1, -4},
			offset: 4,
			bits:   []Bit{},
		},
		{
			name:   "Empty series",
			ip:     nil,
			offset: 0,
			bits:   []Bit{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := newTestExtractor().Extract(1, tt.ip)
			assert.Equal(t, tt.offset, got.Offset)
			assert.Equal(t, tt.bits, got.Bits)
		})
	}
}

// TestSyncOffset tests the first polarity transition search
func TestSyncOffset(t *testing.T) {
	assert.Equal(t, 1, SyncOffset([]float64{2, -2}))
	assert.Equal(t, 2, SyncOffset([]float64{-1, -5, 0, 1}))
	assert.Equal(t, 1, SyncOffset([]float64{0, 3}))
	assert.Equal(t, 3, SyncOffset([]float64{1, 1, 1}))
}

// TestStream_WriteTo tests the bit file layout
func TestStream_WriteTo(t *testing.T) {
	tests := []struct {
		name     string
		stream   Stream
		expected string
	}{
		{
			name:     "Bits",
			stream:   Stream{Offset: 7, Bits: []Bit{One, One, Zero, One}},
			expected: "7  1  1  0  1\n",
		},
		{
			name:     "Erasure keeps its field",
			stream:   Stream{Offset: 13, Bits: []Bit{One, Erasure, Zero}},
			expected: "13  1 -1  0\n",
		},
		{
			name:     "No bits",
			stream:   Stream{Offset: 430},
			expected: "430\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			n, err := tt.stream.WriteTo(&buf)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, buf.String())
			assert.Equal(t, int64(len(tt.expected)), n)
		})
	}
}

// TestStream_WriteToAfterExtract tests that a trailing partial window is not
// written to the bit file
func TestStream_WriteToAfterExtract(t *testing.T) {
	ip := series(3, 1, -1)
	for i := 0; i < SamplesPerBit-1; i++ {
		ip = append(ip, 100)
	}

	stream := newTestExtractor().Extract(1, ip)

	var buf bytes.Buffer
	_, err := stream.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, "3  1  0\n", buf.String())
}

// TestStream_String tests the compact rendering
func TestStream_String(t *testing.T) {
	s := Stream{Bits: []Bit{One, Zero, Erasure, One}}
	assert.Equal(t, "10x1", s.String())
	assert.Equal(t, 1, s.Erasures())
	assert.Equal(t, "bit(5)", Bit(5).String())
	assert.Equal(t, "SV12.bin", FileName(12))
}
