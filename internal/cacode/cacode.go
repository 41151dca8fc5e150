// Package cacode generates GPS L1 C/A Gold codes
package cacode

import (
	"fmt"
	"sync"
)

// C/A code constants
const (
	Length   = 1023    // chips per period
	ChipRate = 1.023e6 // chips per second
	MaxPRN   = 32
)

// g2Delay is the G2 output delay in chips for PRN 1-32 (IS-GPS-200 table 3-I)
var g2Delay = [MaxPRN]int{
	5, 6, 7, 8, 17, 18, 139, 140, 141, 251,
	252, 254, 255, 256, 257, 258, 469, 470, 471, 472,
	473, 474, 509, 512, 513, 514, 515, 516, 859, 860,
	861, 862,
}

// registerOutputs runs the G1 and G2 shift registers for one code period
func registerOutputs() (g1, g2 [Length]uint8) {
	var r1, r2 [10]uint8
	for i := range r1 {
		r1[i] = 1
		r2[i] = 1
	}

	for i := 0; i < Length; i++ {
		g1[i] = r1[9]
		g2[i] = r2[9]

		// G1 = 1 + x^3 + x^10, G2 = 1 + x^2 + x^3 + x^6 + x^8 + x^9 + x^10
		f1 := r1[2] ^ r1[9]
		f2 := r2[1] ^ r2[2] ^ r2[5] ^ r2[7] ^ r2[8] ^ r2[9]

		copy(r1[1:], r1[:9])
		copy(r2[1:], r2[:9])
		r1[0] = f1
		r2[0] = f2
	}
	return g1, g2
}

// Generate returns the C/A code of a PRN as ±1 chips. A code bit of 1 maps
// to +1 and a code bit of 0 to -1.
func Generate(prn int) ([]int8, error) {
	if prn < 1 || prn > MaxPRN {
		return nil, fmt.Errorf("PRN %d out of range (1-%d)", prn, MaxPRN)
	}

	g1, g2 := registerOutputs()
	delay := g2Delay[prn-1]

	code := make([]int8, Length)
	for i := range code {
		if g1[i]^g2[(i+Length-delay)%Length] == 1 {
			code[i] = 1
		} else {
			code[i] = -1
		}
	}
	return code, nil
}

// Provider caches generated codes and is safe for concurrent use
type Provider struct {
	mu    sync.RWMutex
	codes map[int][]int8
}

// NewProvider creates an empty code cache
func NewProvider() *Provider {
	return &Provider{codes: make(map[int][]int8)}
}

// Code returns the cached code for prn, generating it on first use. The
// returned slice is shared and must not be modified.
func (p *Provider) Code(prn int) ([]int8, error) {
	p.mu.RLock()
	code, ok := p.codes[prn]
	p.mu.RUnlock()
	if ok {
		return code, nil
	}

	code, err := Generate(prn)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if cached, ok := p.codes[prn]; ok {
		return cached, nil
	}
	p.codes[prn] = code
	return code, nil
}
