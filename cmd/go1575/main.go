package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"go1575/internal/acquisition"
	"go1575/internal/app"
	"go1575/internal/output"
	"go1575/internal/rtlsdr"
	"go1575/internal/tracking"
)

// inputFlags are shared by the commands that read a capture file
type inputFlags struct {
	config     app.Config
	prns       []int
	epochs     int
	lostLock   int
	prn        int
	codePhase  int
	carrier    float64
	paramsFile string

	maxDoppler float64
	step       float64
	threshold  float64
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	var verbose bool

	rootCmd := &cobra.Command{
		Use:   "go1575",
		Short: "GPS L1 C/A tracking receiver",
		Long: `GPS L1 C/A software receiver tracking stage.

Loads a raw capture, acquires the visible satellites (or takes a known
acquisition hand-off), tracks each one with a DLL and a Costas PLL, and
writes per-satellite telemetry, navigation bits and a run summary.

Example usage:
  go1575 track --input capture.bin --format int8 --sampling-freq 4092000
  go1575 track --input capture.bin --prn 1 --code-phase 1572 --carrier-freq -3340
  go1575 acquire --input capture.bin --if 1023000
  go1575 capture --output l1.bin --ms 2000 --gain 40
  go1575 capture --output l1.bin --ms 20 --acquire`,
		SilenceUsage: true,
	}
	rootCmd.SetOut(out)
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")

	rootCmd.AddCommand(
		newTrackCmd(out, &verbose, &inputFlags{}),
		newAcquireCmd(out, &verbose, &inputFlags{}),
		newCaptureCmd(out, &verbose),
		newVersionCmd(out),
	)
	return rootCmd
}

func addInputFlags(cmd *cobra.Command, f *inputFlags) {
	f.config = app.DefaultConfig()
	flags := cmd.Flags()
	flags.StringVarP(&f.config.InputFile, "input", "i", "", "Raw capture file")
	flags.StringVar(&f.config.InputFormat, "format", app.DefaultInputFormat, "Sample format (int8, int8iq, uint8iq, float32iq)")
	flags.Float64Var(&f.config.SamplingFreq, "sampling-freq", app.DefaultSamplingFreq, "Sampling frequency (Hz)")
	flags.Float64Var(&f.config.IntermediateFreq, "if", app.DefaultIntermediateFreq, "Intermediate frequency (Hz)")
	flags.Int64Var(&f.config.SkipBytes, "skip", 0, "Bytes to skip at the start of the file")
	flags.Float64Var(&f.config.Milliseconds, "ms", app.DefaultMilliseconds, "Milliseconds of samples to load (0 for the whole file)")
	flags.IntSliceVar(&f.prns, "prns", nil, "Satellites to search (default all)")
	flags.StringVar(&f.paramsFile, "params", "", "YAML file with tracking and acquisition parameters")
	_ = cmd.MarkFlagRequired("input")
}

// resolve applies the parameters file and then every flag set explicitly
func (f *inputFlags) resolve(cmd *cobra.Command, verbose bool) (app.Config, error) {
	cfg := f.config
	cfg.Verbose = verbose

	if f.paramsFile != "" {
		if err := cfg.LoadParams(f.paramsFile); err != nil {
			return cfg, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("prns") {
		cfg.Acquisition.PRNs = f.prns
	}
	if flags.Changed("epochs") {
		cfg.Tracking.EpochCount = f.epochs
	}
	if flags.Changed("lost-lock-limit") {
		cfg.Tracking.LostLockLimit = f.lostLock
	}
	if flags.Changed("max-doppler") {
		cfg.Acquisition.MaxDoppler = f.maxDoppler
	}
	if flags.Changed("doppler-step") {
		cfg.Acquisition.Step = f.step
	}
	if flags.Changed("threshold") {
		cfg.Acquisition.Threshold = f.threshold
	}
	if flags.Changed("prn") || flags.Changed("code-phase") || flags.Changed("carrier-freq") {
		cfg.Estimate = &tracking.AcquisitionEstimate{
			SatelliteID:      f.prn,
			CodePhaseSamples: f.codePhase,
			CarrierFrequency: f.carrier,
		}
	}
	return cfg, nil
}

func newTrackCmd(out io.Writer, verbose *bool, f *inputFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "track",
		Short: "Acquire and track satellites in a capture file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.resolve(cmd, *verbose)
			if err != nil {
				return err
			}

			application := app.NewApplication(cfg)
			summary, err := application.Run(cmd.Context())
			if len(summary.Channels) > 0 {
				if perr := printSummary(out, summary); perr != nil {
					return perr
				}
			}
			if errors.Is(err, context.Canceled) {
				return fmt.Errorf("interrupted, partial results in %s", cfg.OutputDir)
			}
			return err
		},
	}

	addInputFlags(cmd, f)
	flags := cmd.Flags()
	flags.StringVarP(&f.config.OutputDir, "output", "o", app.DefaultOutputDir, "Output directory")
	flags.StringVar(&f.config.Compression, "compress", app.DefaultCompression, "Compress output files (none, gzip, zstd)")
	flags.StringVar(&f.config.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address during the run")
	flags.IntVarP(&f.config.Workers, "workers", "w", app.DefaultWorkers, "Channels tracked in parallel")
	flags.IntVar(&f.epochs, "epochs", tracking.DefaultEpochCount, "Epochs (ms) to track per satellite")
	flags.IntVar(&f.lostLock, "lost-lock-limit", tracking.DefaultLostLockLimit, "Fail a channel after this many degenerate epochs (0 disables)")
	flags.IntVar(&f.prn, "prn", 1, "Satellite of a manual acquisition hand-off; skips acquisition")
	flags.IntVar(&f.codePhase, "code-phase", 0, "Code phase (samples) of a manual hand-off; skips acquisition")
	flags.Float64Var(&f.carrier, "carrier-freq", 0, "Carrier frequency (Hz) of a manual hand-off; skips acquisition")

	return cmd
}

func printSummary(w io.Writer, s output.Summary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PRN\tSTATUS\tEPOCHS\tLOST LOCK\tCARRIER (Hz)\tOFFSET\tBITS")
	for _, ch := range s.Channels {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%.3f\t%d\t%s\n",
			ch.PRN, ch.Status, ch.Epochs, ch.LostLockEpochs, ch.CarrierFrequency, ch.BitOffset, ch.Bits)
	}
	return tw.Flush()
}

func newAcquireCmd(out io.Writer, verbose *bool, f *inputFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "acquire",
		Short: "Search a capture file for satellites",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.resolve(cmd, *verbose)
			if err != nil {
				return err
			}
			_, err = app.NewApplication(cfg).Acquire(cmd.Context(), out)
			return err
		},
	}

	addInputFlags(cmd, f)
	flags := cmd.Flags()
	flags.Float64Var(&f.maxDoppler, "max-doppler", acquisition.DefaultMaxDoppler, "Doppler search range (±Hz)")
	flags.Float64Var(&f.step, "doppler-step", acquisition.DefaultStep, "Doppler bin width (Hz)")
	flags.Float64Var(&f.threshold, "threshold", acquisition.DefaultThreshold, "Peak ratio needed to declare a satellite")

	return cmd
}

func newCaptureCmd(out io.Writer, verbose *bool) *cobra.Command {
	cfg := rtlsdr.DefaultConfig()
	var (
		path       string
		acquire    bool
		intermFreq float64
		prns       []int
	)

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Record L1 samples from an RTL-SDR",
		RunE: func(cmd *cobra.Command, args []string) error {
			appCfg := app.DefaultConfig()
			appCfg.Verbose = *verbose
			appCfg.IntermediateFreq = intermFreq
			if len(prns) > 0 {
				appCfg.Acquisition.PRNs = prns
			}
			application := app.NewApplication(appCfg)

			if acquire {
				_, err := application.CaptureSurvey(cmd.Context(), cfg, path, out)
				return err
			}

			n, err := application.Capture(cmd.Context(), cfg, path)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Wrote %d bytes of uint8 I/Q to %s\n", n, path)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&path, "output", "o", "capture.bin", "Capture file")
	flags.IntVarP(&cfg.DeviceIndex, "device", "d", 0, "RTL-SDR device index")
	flags.Uint32VarP(&cfg.Frequency, "frequency", "f", rtlsdr.DefaultFrequency, "Frequency to tune to (Hz)")
	flags.Uint32VarP(&cfg.SampleRate, "sample-rate", "s", rtlsdr.DefaultSampleRate, "Sample rate (Hz)")
	flags.IntVarP(&cfg.Gain, "gain", "g", rtlsdr.DefaultGain, "Gain in dB (0 for auto)")
	flags.IntVar(&cfg.Milliseconds, "ms", cfg.Milliseconds, "Milliseconds to record")
	flags.BoolVar(&acquire, "acquire", false, "Run acquisition over the recording and print the table")
	flags.Float64Var(&intermFreq, "if", 0, "Intermediate frequency of the recording (Hz)")
	flags.IntSliceVar(&prns, "prns", nil, "Satellites to search (default all)")

	return cmd
}

func newVersionCmd(out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			app.ShowVersion(out)
		},
	}
}
