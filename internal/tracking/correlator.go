package tracking

import (
	"gonum.org/v1/gonum/floats"
)

// CorrelatorOutputs are the integrate-and-dump results of one epoch
type CorrelatorOutputs struct {
	IE float64 `yaml:"i_e"`
	QE float64 `yaml:"q_e"`
	IP float64 `yaml:"i_p"`
	QP float64 `yaml:"q_p"`
	IL float64 `yaml:"i_l"`
	QL float64 `yaml:"q_l"`
}

// Correlator mixes a raw block to baseband and correlates it against the
// early, prompt and late code replicas. Its scratch buffers are reused
// between epochs, so a Correlator belongs to a single channel.
type Correlator struct {
	iBaseband []float64
	qBaseband []float64
}

// NewCorrelator creates a correlator
func NewCorrelator() *Correlator {
	return &Correlator{}
}

// Correlate reduces the raw block against the replica. raw and every
// replica slice must have the same length.
func (c *Correlator) Correlate(raw []float64, r *Replica) CorrelatorOutputs {
	n := len(raw)
	if cap(c.iBaseband) < n {
		c.iBaseband = make([]float64, n)
		c.qBaseband = make([]float64, n)
	}
	iBase := c.iBaseband[:n]
	qBase := c.qBaseband[:n]

	// Mix to baseband
	floats.MulTo(iBase, r.Sin, raw)
	floats.MulTo(qBase, r.Cos, raw)

	return CorrelatorOutputs{
		IE: floats.Dot(r.Early, iBase),
		QE: floats.Dot(r.Early, qBase),
		IP: floats.Dot(r.Prompt, iBase),
		QP: floats.Dot(r.Prompt, qBase),
		IL: floats.Dot(r.Late, iBase),
		QL: floats.Dot(r.Late, qBase),
	}
}
