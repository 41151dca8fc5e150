package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"go1575/internal/acquisition"
	"go1575/internal/cacode"
	"go1575/internal/metrics"
	"go1575/internal/navbits"
	"go1575/internal/output"
	"go1575/internal/rtlsdr"
	"go1575/internal/signal"
	"go1575/internal/tracking"
)

// Application runs acquisition, tracking and bit extraction over a capture
type Application struct {
	config    Config
	logger    *logrus.Logger
	runID     string
	codes     *cacode.Provider
	metrics   *metrics.Metrics
	extractor *navbits.Extractor
}

// NewApplication creates a new application instance
func NewApplication(config Config) *Application {
	logger := logrus.New()
	if config.Verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	return &Application{
		config:    config,
		logger:    logger,
		runID:     uuid.NewString(),
		codes:     cacode.NewProvider(),
		metrics:   metrics.New(),
		extractor: navbits.NewExtractor(logger),
	}
}

// SetLogOutput redirects application logging
func (app *Application) SetLogOutput(w io.Writer) {
	app.logger.SetOutput(w)
}

// RunID identifies this run in logs and in the summary
func (app *Application) RunID() string {
	return app.runID
}

// Metrics returns the run metrics
func (app *Application) Metrics() *metrics.Metrics {
	return app.metrics
}

// load reads the configured part of the capture file
func (app *Application) load() (*signal.Buffer, error) {
	format, err := signal.ParseFormat(app.config.InputFormat)
	if err != nil {
		return nil, err
	}

	buf, err := signal.LoadFile(app.config.InputFile, signal.LoadOptions{
		Format:       format,
		SamplingFreq: app.config.SamplingFreq,
		SkipBytes:    app.config.SkipBytes,
		Milliseconds: app.config.Milliseconds,
	})
	if err != nil {
		return nil, err
	}

	app.logger.WithFields(logrus.Fields{
		"file":     app.config.InputFile,
		"format":   format.String(),
		"samples":  buf.Len(),
		"duration": fmt.Sprintf("%.3fs", buf.Duration()),
	}).Info("Loaded capture")

	return buf, nil
}

// acquire searches the capture for the configured satellites
func (app *Application) acquire(ctx context.Context, source tracking.SignalSource) ([]acquisition.Result, error) {
	searcher, err := acquisition.NewSearcher(app.config.Acquisition, app.config.SamplingFreq,
		app.config.IntermediateFreq, app.codes, app.logger)
	if err != nil {
		return nil, err
	}
	return searcher.SearchAll(ctx, source)
}

// Acquire loads the capture and writes the acquisition table to w
func (app *Application) Acquire(ctx context.Context, w io.Writer) ([]acquisition.Result, error) {
	if err := app.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	buf, err := app.load()
	if err != nil {
		return nil, fmt.Errorf("failed to load capture: %w", err)
	}

	results, err := app.acquire(ctx, buf)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire: %w", err)
	}

	if err := WriteAcquisitionTable(w, results); err != nil {
		return nil, err
	}
	return results, nil
}

// WriteAcquisitionTable prints one row per searched satellite
func WriteAcquisitionTable(w io.Writer, results []acquisition.Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PRN\tACQUIRED\tCODE PHASE\tDOPPLER (Hz)\tCARRIER (Hz)\tPEAK RATIO")
	for _, r := range results {
		fmt.Fprintf(tw, "%d\t%t\t%d\t%.0f\t%.0f\t%.2f\n",
			r.PRN, r.Acquired, r.CodePhase, r.Doppler, r.CarrierFrequency, r.PeakRatio)
	}
	return tw.Flush()
}

// Run tracks every acquired satellite and writes telemetry, bit files and
// the run summary. A failing channel is recorded in the summary and does
// not stop the others; only cancellation or setup failures return an error.
func (app *Application) Run(ctx context.Context) (output.Summary, error) {
	started := time.Now().UTC()
	log := app.logger.WithField("run_id", app.runID)

	log.WithFields(logrus.Fields{
		"version":    Version,
		"build_time": BuildTime,
		"git_commit": GitCommit,
	}).Info("Starting GPS L1 C/A tracking")

	if err := app.config.Validate(); err != nil {
		return output.Summary{}, fmt.Errorf("invalid configuration: %w", err)
	}

	compression, err := output.ParseCompression(app.config.Compression)
	if err != nil {
		return output.Summary{}, err
	}
	writer, err := output.NewWriter(app.config.OutputDir, compression, app.logger)
	if err != nil {
		return output.Summary{}, fmt.Errorf("failed to initialize output: %w", err)
	}

	if app.config.MetricsAddr != "" {
		srv := metrics.NewServer(app.config.MetricsAddr, app.metrics, app.logger)
		if err := srv.Start(); err != nil {
			return output.Summary{}, fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				app.logger.WithError(err).Warn("Metrics server shutdown failed")
			}
		}()
	}

	buf, err := app.load()
	if err != nil {
		return output.Summary{}, fmt.Errorf("failed to load capture: %w", err)
	}

	summary := output.Summary{
		RunID:        app.runID,
		Version:      Version,
		Input:        app.config.InputFile,
		SamplingFreq: app.config.SamplingFreq,
		Samples:      buf.Len(),
		Started:      started,
		Tracking:     app.config.trackingConfig(),
	}

	var estimates []tracking.AcquisitionEstimate
	if app.config.Estimate != nil {
		estimates = append(estimates, *app.config.Estimate)
	} else {
		results, err := app.acquire(ctx, buf)
		if err != nil {
			return output.Summary{}, fmt.Errorf("failed to acquire: %w", err)
		}
		summary.Acquisition = results
		for _, r := range results {
			if r.Acquired {
				estimates = append(estimates, r.Estimate())
			}
		}
		if len(estimates) == 0 {
			log.Warn("No satellites acquired")
		}
	}

	summary.Channels = app.trackAll(ctx, buf, estimates, writer)
	summary.Finished = time.Now().UTC()

	if _, err := writer.WriteSummary(summary); err != nil {
		return summary, err
	}

	completed := 0
	for _, ch := range summary.Channels {
		if ch.Status == tracking.StatusCompleted.String() {
			completed++
		}
	}
	log.WithFields(logrus.Fields{
		"channels":  len(summary.Channels),
		"completed": completed,
		"elapsed":   summary.Finished.Sub(started).String(),
	}).Info("Run finished")

	return summary, ctx.Err()
}

// trackAll runs one channel per estimate on a bounded worker pool and
// returns their summaries in estimate order.
func (app *Application) trackAll(ctx context.Context, source tracking.SignalSource, estimates []tracking.AcquisitionEstimate, writer *output.Writer) []output.ChannelSummary {
	summaries := make([]output.ChannelSummary, len(estimates))

	var g errgroup.Group
	g.SetLimit(app.config.Workers)

	for i, est := range estimates {
		g.Go(func() error {
			summaries[i] = app.trackChannel(ctx, source, est, writer)
			return nil
		})
	}
	_ = g.Wait()

	return summaries
}

// trackChannel tracks one satellite and writes its files
func (app *Application) trackChannel(ctx context.Context, source tracking.SignalSource, est tracking.AcquisitionEstimate, writer *output.Writer) output.ChannelSummary {
	summary := output.ChannelSummary{PRN: est.SatelliteID, Estimate: est}
	log := app.logger.WithFields(logrus.Fields{"run_id": app.runID, "prn": est.SatelliteID})

	ch, err := tracking.NewChannel(est, source, app.codes, app.config.trackingConfig(), app.logger)
	if err != nil {
		log.WithError(err).Error("Failed to create channel")
		summary.Status = tracking.StatusFailed.String()
		summary.Error = err.Error()
		return summary
	}
	ch.SetObserver(app.metrics)

	trackErr := ch.Track(ctx)
	summary.Status = ch.Status().String()
	if trackErr != nil {
		summary.Error = trackErr.Error()
	}
	if errors.Is(trackErr, tracking.ErrAcquisitionInvalid) {
		return summary
	}

	telemetry := ch.Telemetry()
	summary.Epochs = telemetry.Len()
	for _, r := range telemetry.Records() {
		if r.LostLock {
			summary.LostLockEpochs++
		}
	}
	if last, ok := telemetry.Last(); ok {
		summary.CodeFrequency = last.CodeFrequency
		summary.CarrierFrequency = last.CarrierFrequency
	}

	if telemetry.Len() == 0 {
		return summary
	}

	path, err := writer.WriteTelemetry(est.SatelliteID, telemetry.Records())
	if err != nil {
		log.WithError(err).Error("Failed to write telemetry")
	} else {
		summary.Files = append(summary.Files, path)
	}

	stream := app.extractor.Extract(est.SatelliteID, telemetry.PromptInPhase())
	app.metrics.BitsExtracted(est.SatelliteID, stream)
	summary.BitOffset = stream.Offset
	summary.Bits = stream.String()
	summary.Erasures = stream.Erasures()

	path, err = writer.WriteBits(est.SatelliteID, stream)
	if err != nil {
		log.WithError(err).Error("Failed to write bits")
	} else {
		summary.Files = append(summary.Files, path)
	}

	return summary
}

// Capture records cfg.Milliseconds of L1 samples from an RTL-SDR into path
func (app *Application) Capture(ctx context.Context, cfg rtlsdr.Config, path string) (int, error) {
	device, err := rtlsdr.NewDevice(cfg.DeviceIndex, app.logger)
	if err != nil {
		return 0, fmt.Errorf("failed to initialize RTL-SDR: %w", err)
	}
	return app.Record(ctx, device, cfg, path)
}

// Record records a capture from any receiver into path
func (app *Application) Record(ctx context.Context, receiver rtlsdr.Receiver, cfg rtlsdr.Config, path string) (int, error) {
	app.logger.WithFields(logrus.Fields{
		"run_id":    app.runID,
		"frequency": cfg.Frequency,
		"rate":      cfg.SampleRate,
		"ms":        cfg.Milliseconds,
	}).Info("Starting capture")

	return rtlsdr.NewRecorder(receiver, app.logger).Record(ctx, cfg, path)
}

// Survey records a capture from receiver into path and runs acquisition
// over it at the capture's sample rate, writing the acquisition table to w.
func (app *Application) Survey(ctx context.Context, receiver rtlsdr.Receiver, cfg rtlsdr.Config, path string, w io.Writer) ([]acquisition.Result, error) {
	app.logger.WithFields(logrus.Fields{
		"run_id":    app.runID,
		"frequency": cfg.Frequency,
		"rate":      cfg.SampleRate,
		"ms":        cfg.Milliseconds,
	}).Info("Starting capture survey")

	buf, err := rtlsdr.NewRecorder(receiver, app.logger).RecordSamples(ctx, cfg, path)
	if err != nil {
		return nil, err
	}

	searcher, err := acquisition.NewSearcher(app.config.Acquisition, buf.SamplingFreq(),
		app.config.IntermediateFreq, app.codes, app.logger)
	if err != nil {
		return nil, fmt.Errorf("invalid acquisition config: %w", err)
	}
	results, err := searcher.SearchAll(ctx, buf)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire: %w", err)
	}

	if err := WriteAcquisitionTable(w, results); err != nil {
		return nil, err
	}
	return results, nil
}

// CaptureSurvey is Survey on the configured RTL-SDR dongle
func (app *Application) CaptureSurvey(ctx context.Context, cfg rtlsdr.Config, path string, w io.Writer) ([]acquisition.Result, error) {
	device, err := rtlsdr.NewDevice(cfg.DeviceIndex, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize RTL-SDR: %w", err)
	}
	return app.Survey(ctx, device, cfg, path, w)
}
