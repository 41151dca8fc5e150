// Package acquisition finds visible satellites and their coarse code phase
// and carrier frequency with an FFT based parallel code phase search.
package acquisition

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/bits"
	"math/cmplx"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"

	"go1575/internal/cacode"
	"go1575/internal/tracking"
)

// Default search parameters
const (
	DefaultMaxDoppler  = 7000.0 // Hz either side of the intermediate frequency
	DefaultStep        = 500.0  // Hz between Doppler bins
	DefaultThreshold   = 2.5    // peak power ratio
	DefaultPeriods     = 1      // code periods summed non-coherently
	DefaultFinePeriods = 10     // code periods used for the fine frequency estimate
	DefaultWorkers     = 4
)

// ErrNoSignal is returned when the search power is zero everywhere
var ErrNoSignal = errors.New("no signal power")

// Config holds the search parameters
type Config struct {
	MaxDoppler  float64 `yaml:"max_doppler"`
	Step        float64 `yaml:"step"`
	Threshold   float64 `yaml:"threshold"`
	Periods     int     `yaml:"periods"`
	FinePeriods int     `yaml:"fine_periods"`
	Workers     int     `yaml:"workers"`
	PRNs        []int   `yaml:"prns"` // empty searches every PRN
}

// DefaultConfig returns the standard search parameters
func DefaultConfig() Config {
	return Config{
		MaxDoppler:  DefaultMaxDoppler,
		Step:        DefaultStep,
		Threshold:   DefaultThreshold,
		Periods:     DefaultPeriods,
		FinePeriods: DefaultFinePeriods,
		Workers:     DefaultWorkers,
	}
}

// Validate checks the search parameters
func (c Config) Validate() error {
	if c.MaxDoppler < 0 {
		return fmt.Errorf("max_doppler must not be negative, got %v", c.MaxDoppler)
	}
	if !(c.Step > 0) {
		return fmt.Errorf("step must be positive, got %v", c.Step)
	}
	if !(c.Threshold > 0) {
		return fmt.Errorf("threshold must be positive, got %v", c.Threshold)
	}
	if c.Periods < 1 {
		return fmt.Errorf("periods must be at least 1, got %d", c.Periods)
	}
	if c.FinePeriods < 1 {
		return fmt.Errorf("fine_periods must be at least 1, got %d", c.FinePeriods)
	}
	for _, prn := range c.PRNs {
		if prn < 1 || prn > cacode.MaxPRN {
			return fmt.Errorf("PRN %d out of range (1-%d)", prn, cacode.MaxPRN)
		}
	}
	return nil
}

// Result is the outcome of searching for one satellite
type Result struct {
	PRN              int     `yaml:"prn"`
	Acquired         bool    `yaml:"acquired"`
	CodePhase        int     `yaml:"code_phase"`        // samples to the first code period start
	CoarseDoppler    float64 `yaml:"coarse_doppler"`    // centre of the winning Doppler bin
	Doppler          float64 `yaml:"doppler"`           // fine estimate, or the bin when not acquired
	CarrierFrequency float64 `yaml:"carrier_frequency"` // intermediate frequency plus Doppler
	Peak             float64 `yaml:"peak"`
	PeakRatio        float64 `yaml:"peak_ratio"`
}

// Estimate converts the result into a tracking hand-off. A satellite that
// was not acquired yields the zero satellite id.
func (r Result) Estimate() tracking.AcquisitionEstimate {
	if !r.Acquired {
		return tracking.AcquisitionEstimate{}
	}
	return tracking.AcquisitionEstimate{
		SatelliteID:      r.PRN,
		CodePhaseSamples: r.CodePhase,
		CarrierFrequency: r.CarrierFrequency,
	}
}

// Searcher runs the parallel code phase search over a sample source
type Searcher struct {
	config           Config
	samplingFreq     float64
	intermediateFreq float64
	codes            tracking.CodeProvider
	logger           *logrus.Logger

	samplesPerCode int
	samplesPerChip int
}

// NewSearcher creates a searcher for samples taken at samplingFreq with the
// signal centred on intermediateFreq.
func NewSearcher(cfg Config, samplingFreq, intermediateFreq float64, codes tracking.CodeProvider, logger *logrus.Logger) (*Searcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid acquisition config: %w", err)
	}
	if !(samplingFreq > 0) {
		return nil, fmt.Errorf("sampling frequency must be positive, got %v", samplingFreq)
	}

	perCode := int(math.Round(samplingFreq * cacode.Length / cacode.ChipRate))
	perChip := int(math.Round(samplingFreq / cacode.ChipRate))
	if perChip < 1 {
		perChip = 1
	}

	return &Searcher{
		config:           cfg,
		samplingFreq:     samplingFreq,
		intermediateFreq: intermediateFreq,
		codes:            codes,
		logger:           logger,
		samplesPerCode:   perCode,
		samplesPerChip:   perChip,
	}, nil
}

// SamplesPerCode returns the number of samples in one code period
func (s *Searcher) SamplesPerCode() int {
	return s.samplesPerCode
}

// DopplerBins returns the Doppler offsets searched, in Hz
func (s *Searcher) DopplerBins() []float64 {
	n := int(math.Floor(s.config.MaxDoppler / s.config.Step))
	bins := make([]float64, 0, 2*n+1)
	for i := -n; i <= n; i++ {
		bins = append(bins, float64(i)*s.config.Step)
	}
	return bins
}

// Search looks for one satellite in the first Periods code periods of the source
func (s *Searcher) Search(ctx context.Context, source tracking.SignalSource, prn int) (Result, error) {
	n := s.samplesPerCode
	result := Result{PRN: prn}

	code, err := s.codes.Code(prn)
	if err != nil {
		return result, fmt.Errorf("failed to get code for PRN %d: %w", prn, err)
	}

	// gonum FFT plans keep work buffers, so each search owns its own
	fft := fourier.NewCmplxFFT(n)

	// sample the code the way the tracking replica does so the hand-off
	// lands on the sample the tracking loop expects
	chips := s.sampleCode(code)
	replica := make([]complex128, n)
	for k, c := range chips {
		replica[k] = complex(c, 0)
	}
	codeFFT := fft.Coefficients(nil, replica)
	for k := range codeFFT {
		codeFFT[k] = cmplx.Conj(codeFFT[k])
	}

	bins := s.DopplerBins()
	power := make([][]float64, len(bins))
	for i := range power {
		power[i] = make([]float64, n)
	}

	mixed := make([]complex128, n)
	spectrum := make([]complex128, n)
	corr := make([]complex128, n)

	for p := 0; p < s.config.Periods; p++ {
		raw, err := source.Block(p*n, n)
		if err != nil {
			return result, fmt.Errorf("failed to read period %d: %w", p, err)
		}

		for b, doppler := range bins {
			if err := ctx.Err(); err != nil {
				return result, err
			}

			omega := 2 * math.Pi * (s.intermediateFreq + doppler) / s.samplingFreq
			for k, v := range raw {
				t := omega * float64(k+p*n)
				sin, cos := math.Sincos(t)
				mixed[k] = complex(v*cos, -v*sin)
			}

			fft.Coefficients(spectrum, mixed)
			for k := range spectrum {
				spectrum[k] *= codeFFT[k]
			}
			fft.Sequence(corr, spectrum)

			row := power[b]
			for k, c := range corr {
				row[k] += real(c)*real(c) + imag(c)*imag(c)
			}
		}
	}

	bestBin, bestTau := 0, 0
	for b, row := range power {
		if tau := floats.MaxIdx(row); row[tau] > power[bestBin][bestTau] {
			bestBin, bestTau = b, tau
		}
	}
	peak := power[bestBin][bestTau]
	if peak == 0 {
		return result, ErrNoSignal
	}

	second := secondPeak(power[bestBin], bestTau, 2*s.samplesPerChip)

	result.CodePhase = bestTau
	result.CoarseDoppler = bins[bestBin]
	result.Doppler = bins[bestBin]
	result.CarrierFrequency = s.intermediateFreq + bins[bestBin]
	result.Peak = peak
	if second > 0 {
		result.PeakRatio = peak / second
	} else {
		result.PeakRatio = math.Inf(1)
	}
	result.Acquired = result.PeakRatio > s.config.Threshold

	if result.Acquired {
		carrier, err := s.fineFrequency(source, chips, result.CodePhase, result.CarrierFrequency)
		if err != nil {
			return result, fmt.Errorf("failed to refine carrier of PRN %d: %w", prn, err)
		}
		result.CarrierFrequency = carrier
		result.Doppler = carrier - s.intermediateFreq
	}

	s.logger.WithFields(logrus.Fields{
		"prn":        prn,
		"acquired":   result.Acquired,
		"code_phase": result.CodePhase,
		"bin":        result.CoarseDoppler,
		"doppler":    fmt.Sprintf("%.2f", result.Doppler),
		"peak_ratio": fmt.Sprintf("%.2f", result.PeakRatio),
	}).Debug("Acquisition search finished")

	return result, nil
}

// sampleCode resamples one code period onto the sample grid with the
// tracking chip index convention
func (s *Searcher) sampleCode(code []int8) []float64 {
	gen := tracking.NewReplicaGenerator(code, 0, s.samplingFreq)
	out := make([]float64, s.samplesPerCode)
	for k, idx := range gen.ChipIndices(0, cacode.ChipRate/s.samplingFreq, s.samplesPerCode) {
		out[k] = float64(code[idx])
	}
	return out
}

// fineFrequency refines a coarse carrier frequency to a fraction of a
// Doppler bin. Up to FinePeriods whole code periods starting at the code
// phase are multiplied by the code, zero padded to eight times the next
// power of two and transformed; the strongest line within half a bin of the
// coarse carrier is then interpolated between its neighbours.
//
// Real samples cannot tell a frequency from its negative, so the search runs
// on the magnitude of coarse and keeps its sign. The DC line is never
// chosen, which keeps a zero IF hand-off off 0 Hz.
func (s *Searcher) fineFrequency(source tracking.SignalSource, chips []float64, codePhase int, coarse float64) (float64, error) {
	n := s.samplesPerCode
	periods := min(s.config.FinePeriods, (source.Len()-codePhase)/n)
	if periods < 1 {
		s.logger.WithFields(logrus.Fields{
			"code_phase": codePhase,
			"samples":    source.Len(),
		}).Warn("No full code period after the code phase, keeping the coarse carrier")
		return coarse, nil
	}

	raw, err := source.Block(codePhase, periods*n)
	if err != nil {
		return coarse, err
	}

	size := 8 << bits.Len(uint(len(raw)-1))
	wiped := make([]float64, size)
	for k, v := range raw {
		wiped[k] = v * chips[k%n]
	}

	fft := fourier.NewFFT(size)
	spectrum := fft.Coefficients(nil, wiped)
	resolution := s.samplingFreq / float64(size)

	centre := math.Abs(coarse)
	lo := max(int(math.Ceil((centre-s.config.Step/2)/resolution)), 1)
	hi := min(int(math.Floor((centre+s.config.Step/2)/resolution)), len(spectrum)-1)
	if lo > hi {
		return coarse, nil
	}

	best := lo
	for k := lo; k <= hi; k++ {
		if cmplx.Abs(spectrum[k]) > cmplx.Abs(spectrum[best]) {
			best = k
		}
	}

	bin := float64(best)
	if best > 1 && best < len(spectrum)-1 {
		alpha := cmplx.Abs(spectrum[best-1])
		beta := cmplx.Abs(spectrum[best])
		gamma := cmplx.Abs(spectrum[best+1])
		if den := alpha - 2*beta + gamma; den != 0 {
			bin += 0.5 * (alpha - gamma) / den
		}
	}

	fine := bin * resolution
	if coarse < 0 {
		fine = -fine
	}
	return fine, nil
}

// secondPeak returns the largest value of row at least exclude samples
// away from peak, measured circularly.
func secondPeak(row []float64, peak, exclude int) float64 {
	n := len(row)
	best := 0.0
	for k, v := range row {
		d := k - peak
		if d < 0 {
			d = -d
		}
		if n-d < d {
			d = n - d
		}
		if d <= exclude {
			continue
		}
		if v > best {
			best = v
		}
	}
	return best
}

// SearchAll searches every configured PRN with a bounded worker pool and
// returns the results ordered by PRN. A PRN that cannot be searched is
// reported as not acquired and does not stop the others.
func (s *Searcher) SearchAll(ctx context.Context, source tracking.SignalSource) ([]Result, error) {
	prns := s.config.PRNs
	if len(prns) == 0 {
		prns = make([]int, cacode.MaxPRN)
		for i := range prns {
			prns[i] = i + 1
		}
	}

	results := make([]Result, len(prns))

	g, gctx := errgroup.WithContext(ctx)
	if s.config.Workers > 0 {
		g.SetLimit(s.config.Workers)
	}

	for i, prn := range prns {
		g.Go(func() error {
			r, err := s.Search(gctx, source, prn)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				s.logger.WithError(err).WithField("prn", prn).Debug("PRN not acquired")
				r = Result{PRN: prn}
			}
			results[i] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	acquired := 0
	for _, r := range results {
		if r.Acquired {
			acquired++
		}
	}
	s.logger.WithFields(logrus.Fields{
		"searched": len(results),
		"acquired": acquired,
	}).Info("Acquisition complete")

	return results, nil
}
