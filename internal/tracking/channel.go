package tracking

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// AcquisitionEstimate is the coarse hand-off from acquisition
type AcquisitionEstimate struct {
	SatelliteID      int     `yaml:"prn"` // 0 means acquisition failed
	CodePhaseSamples int     `yaml:"code_phase_samples"`
	CarrierFrequency float64 `yaml:"carrier_frequency"`
}

// Valid reports whether the estimate names a satellite
func (e AcquisitionEstimate) Valid() bool {
	return e.SatelliteID != 0
}

// SignalSource gives read-only access to the raw samples
type SignalSource interface {
	Len() int
	Block(start, n int) ([]float64, error)
}

// CodeProvider returns the reference chips (±1) of a satellite
type CodeProvider interface {
	Code(prn int) ([]int8, error)
}

// Observer receives per-epoch and terminal notifications from a channel
type Observer interface {
	EpochCompleted(prn int, r Record)
	ChannelFinished(prn int, status Status, epochs int)
}

// Status is the lifecycle state of a channel
type Status int

// Channel states
const (
	StatusInitializing Status = iota
	StatusTracking
	StatusCompleted
	StatusFailed
	StatusCanceled
	StatusNotTracked
)

func (s Status) String() string {
	switch s {
	case StatusInitializing:
		return "initializing"
	case StatusTracking:
		return "tracking"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusCanceled:
		return "canceled"
	case StatusNotTracked:
		return "not-tracked"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Terminal reports whether the channel will not track any further
func (s Status) Terminal() bool {
	return s >= StatusCompleted
}

// Channel tracks one satellite through the sample source
type Channel struct {
	estimate AcquisitionEstimate
	config   Config
	source   SignalSource
	logger   *logrus.Logger
	observer Observer

	replicas    *ReplicaGenerator
	correlator  *Correlator
	codeLoop    *CodeLoop
	carrierLoop *CarrierLoop

	phase     ResidualPhase
	cursor    int
	lostRun   int
	lostTotal int
	telemetry *Telemetry
	status    Status
	err       error
}

// NewChannel creates a channel at hand-off from acquisition. An estimate
// without a satellite yields a channel in StatusNotTracked.
func NewChannel(est AcquisitionEstimate, source SignalSource, codes CodeProvider, cfg Config, logger *logrus.Logger) (*Channel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if est.CodePhaseSamples < 0 {
		return nil, fmt.Errorf("negative code phase %d for PRN %d", est.CodePhaseSamples, est.SatelliteID)
	}

	ch := &Channel{
		estimate:  est,
		config:    cfg,
		source:    source,
		logger:    logger,
		telemetry: NewTelemetry(cfg.EpochCount),
		status:    StatusInitializing,
	}

	if !est.Valid() {
		ch.status = StatusNotTracked
		ch.err = ErrAcquisitionInvalid
		return ch, nil
	}

	code, err := codes.Code(est.SatelliteID)
	if err != nil {
		return nil, fmt.Errorf("failed to get reference code for PRN %d: %w", est.SatelliteID, err)
	}
	if len(code) != cfg.CodeLength {
		return nil, fmt.Errorf("reference code for PRN %d has %d chips, expected %d", est.SatelliteID, len(code), cfg.CodeLength)
	}

	ch.replicas = NewReplicaGenerator(code, cfg.EarlyLateSpacing, cfg.SamplingFreq)
	ch.correlator = NewCorrelator()
	ch.codeLoop = NewCodeLoop(cfg)
	ch.carrierLoop = NewCarrierLoop(cfg, est.CarrierFrequency)

	return ch, nil
}

// SetObserver attaches an observer; it must be called before Track
func (ch *Channel) SetObserver(o Observer) {
	ch.observer = o
}

// Track runs the epoch loop until the configured number of epochs has been
// processed, the source runs out, or ctx is canceled. The context is
// checked once per epoch, so every stored record is complete. A channel
// whose every epoch lost lock ends Failed with ErrLostLock.
func (ch *Channel) Track(ctx context.Context) error {
	switch ch.status {
	case StatusNotTracked:
		return ErrAcquisitionInvalid
	case StatusInitializing:
	default:
		return fmt.Errorf("channel for PRN %d already %s", ch.estimate.SatelliteID, ch.status)
	}

	cfg := ch.config
	log := ch.logger.WithField("prn", ch.estimate.SatelliteID)
	log.WithFields(logrus.Fields{
		"code_phase": ch.estimate.CodePhaseSamples,
		"carrier":    ch.estimate.CarrierFrequency,
		"epochs":     cfg.EpochCount,
	}).Info("Starting tracking")

	ch.status = StatusTracking
	codeFreq := cfg.CodeFreqBasis
	carrFreq := ch.estimate.CarrierFrequency
	progressEvery := cfg.EpochCount / 10
	if progressEvery == 0 {
		progressEvery = 1
	}

	for epoch := 0; epoch < cfg.EpochCount; epoch++ {
		if err := ctx.Err(); err != nil {
			return ch.finish(StatusCanceled, err)
		}

		step := codeFreq / cfg.SamplingFreq
		blockSize := BlockSize(cfg.CodeLength, ch.phase.CodePhaseChips, step)
		start := ch.estimate.CodePhaseSamples + ch.cursor

		raw, err := ch.source.Block(start, blockSize)
		if err != nil {
			return ch.finish(StatusFailed, fmt.Errorf("%w at epoch %d: %w", ErrInputExhausted, epoch, err))
		}

		replica, next := ch.replicas.Generate(ch.phase, step, carrFreq, blockSize)
		corr := ch.correlator.Correlate(raw, replica)
		code := ch.codeLoop.Update(corr)
		carr := ch.carrierLoop.Update(corr)

		rec := Record{
			Epoch:             epoch,
			AbsoluteSample:    start,
			BlockSize:         blockSize,
			CodePhaseStep:     step,
			ResidualCodePhase: next.CodePhaseChips,
			CodeFrequency:     code.Frequency,
			CarrierFrequency:  carr.Frequency,
			Correlation:       corr,
			CodeError:         code.Error,
			CodeNCO:           code.NCO,
			CarrierError:      carr.Error,
			CarrierNCO:        carr.NCO,
			LostLock:          code.Lost || carr.Lost,
		}
		if err := ch.telemetry.Append(rec); err != nil {
			return ch.finish(StatusFailed, err)
		}
		if ch.observer != nil {
			ch.observer.EpochCompleted(ch.estimate.SatelliteID, rec)
		}

		ch.phase = next
		ch.cursor += blockSize
		codeFreq = code.Frequency
		carrFreq = carr.Frequency

		if rec.LostLock {
			ch.lostRun++
			ch.lostTotal++
			log.WithFields(logrus.Fields{
				"epoch":   epoch,
				"i_p":     corr.IP,
				"code":    code.Lost,
				"carrier": carr.Lost,
			}).Debug("Degenerate discriminator, clamped to zero")
			if cfg.LostLockLimit > 0 && ch.lostRun >= cfg.LostLockLimit {
				return ch.finish(StatusFailed, fmt.Errorf("%w after %d epochs: %w", ErrLostLock, ch.lostRun, ErrDegenerateDiscriminator))
			}
		} else {
			ch.lostRun = 0
		}

		if (epoch+1)%progressEvery == 0 {
			log.WithFields(logrus.Fields{
				"epoch":    epoch + 1,
				"progress": fmt.Sprintf("%.1f%%", float64(epoch+1)/float64(cfg.EpochCount)*100),
				"code_hz":  codeFreq,
				"carr_hz":  carrFreq,
			}).Debug("Tracking progress")
		}
	}

	// a loop that never had a usable discriminator has not tracked anything
	if ch.lostTotal == cfg.EpochCount {
		return ch.finish(StatusFailed, fmt.Errorf("%w in all %d epochs: %w", ErrLostLock, ch.lostTotal, ErrDegenerateDiscriminator))
	}

	return ch.finish(StatusCompleted, nil)
}

// finish moves the channel to a terminal state
func (ch *Channel) finish(status Status, err error) error {
	ch.status = status
	ch.err = err

	fields := logrus.Fields{
		"prn":    ch.estimate.SatelliteID,
		"status": status.String(),
		"epochs": ch.telemetry.Len(),
	}
	switch {
	case err == nil:
		ch.logger.WithFields(fields).Info("Tracking finished")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		ch.logger.WithFields(fields).Warn("Tracking canceled")
	default:
		ch.logger.WithFields(fields).WithError(err).Error("Tracking failed")
	}

	if ch.observer != nil {
		ch.observer.ChannelFinished(ch.estimate.SatelliteID, status, ch.telemetry.Len())
	}
	return err
}

// PRN returns the satellite id of the channel
func (ch *Channel) PRN() int {
	return ch.estimate.SatelliteID
}

// Estimate returns the acquisition hand-off the channel was created from
func (ch *Channel) Estimate() AcquisitionEstimate {
	return ch.estimate
}

// Status returns the current lifecycle state
func (ch *Channel) Status() Status {
	return ch.status
}

// Err returns the error that ended tracking, if any
func (ch *Channel) Err() error {
	return ch.err
}

// Telemetry returns the records of all completed epochs
func (ch *Channel) Telemetry() *Telemetry {
	return ch.telemetry
}

// Phase returns the residual phase carried into the next epoch
func (ch *Channel) Phase() ResidualPhase {
	return ch.phase
}

// LoopStates returns the code and carrier loop filter memories
func (ch *Channel) LoopStates() (code, carrier LoopState) {
	if ch.codeLoop == nil {
		return LoopState{}, LoopState{}
	}
	return ch.codeLoop.State(), ch.carrierLoop.State()
}
