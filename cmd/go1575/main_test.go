package main

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go1575/internal/cacode"
	"go1575/internal/output"
	"go1575/internal/signal"
	"go1575/internal/tracking"
)

// writeCapture writes 50 periods of PRN 1 at four samples per chip on an
// fs/4 carrier, starting exactly at a code period.
func writeCapture(t *testing.T) string {
	t.Helper()
	code, err := cacode.Generate(1)
	require.NoError(t, err)

	const perPeriod = 4092
	samples := make([]float64, 50*perPeriod)
	for m := range samples {
		chip := int(math.Ceil(float64(m%perPeriod)*0.25)) % cacode.Length
		samples[m] = 100 * float64(code[chip]) * math.Sin(math.Pi*float64(m)/2)
	}

	path := filepath.Join(t.TempDir(), "capture.bin")
	file, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, signal.EncodeInt8(file, samples))
	require.NoError(t, file.Close())
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs(args)
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.Execute()
	return out.String(), err
}

// TestVersionCommand tests the version subcommand
func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Go1575")
	assert.Contains(t, out, "Version: dev")
}

// TestTrackCommand tests tracking from a manual hand-off
func TestTrackCommand(t *testing.T) {
	input := writeCapture(t)
	dir := filepath.Join(t.TempDir(), "out")

	out, err := execute(t, "track",
		"--input", input,
		"--ms", "0",
		"--output", dir,
		"--compress", "gzip",
		"--epochs", "40",
		"--prn", "1",
		"--code-phase", "0",
		"--carrier-freq", "1023000",
	)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "PRN"))
	fields := strings.Fields(lines[1])
	assert.Equal(t, []string{"1", "completed", "40", "0", "1023000.000", "40"}, fields)

	summary, err := output.ReadSummary(filepath.Join(dir, output.SummaryFile))
	require.NoError(t, err)
	assert.Equal(t, 40, summary.Tracking.EpochCount)
	require.Len(t, summary.Channels, 1)
	assert.FileExists(t, filepath.Join(dir, "SV1.bin.gz"))
	assert.FileExists(t, filepath.Join(dir, "SV1_tracking.csv.gz"))
}

// TestTrackCommand_Errors tests flag and input failures
func TestTrackCommand_Errors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{
			name:    "Missing input",
			args:    []string{"track"},
			wantErr: `required flag(s) "input" not set`,
		},
		{
			name:    "Unknown format",
			args:    []string{"track", "--input", "x.bin", "--format", "int16"},
			wantErr: "unknown sample format",
		},
		{
			name:    "Missing params file",
			args:    []string{"track", "--input", "x.bin", "--params", "/nonexistent/params.yaml"},
			wantErr: "parameters file",
		},
		{
			name:    "Missing capture",
			args:    []string{"track", "--input", "/nonexistent/capture.bin", "--output", "OUT"},
			wantErr: "failed to load capture",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := tt.args
			for i, a := range args {
				if a == "OUT" {
					args[i] = t.TempDir()
				}
			}
			_, err := execute(t, args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// TestResolve tests the precedence of defaults, parameter file and flags
func TestResolve(t *testing.T) {
	params := filepath.Join(t.TempDir(), "params.yaml")
	require.NoError(t, os.WriteFile(params, []byte(`tracking:
  epoch_count: 200
  code_loop_noise_bandwidth: 1
acquisition:
  max_doppler: 3000
`), 0644))

	f := &inputFlags{}
	cmd := newTrackCmd(&bytes.Buffer{}, new(bool), f)
	require.NoError(t, cmd.ParseFlags([]string{
		"--input", "capture.bin",
		"--params", params,
		"--epochs", "100",
		"--prns", "3,7",
	}))

	cfg, err := f.resolve(cmd, true)
	require.NoError(t, err)

	assert.True(t, cfg.Verbose)
	assert.Equal(t, "capture.bin", cfg.InputFile)
	assert.Equal(t, 100, cfg.Tracking.EpochCount)
	assert.Equal(t, 1.0, cfg.Tracking.CodeLoopNoiseBandwidth)
	assert.Equal(t, 3000.0, cfg.Acquisition.MaxDoppler)
	assert.Equal(t, []int{3, 7}, cfg.Acquisition.PRNs)
	assert.Nil(t, cfg.Estimate)
}

// TestResolve_ManualEstimate tests that --code-phase builds a hand-off
func TestResolve_ManualEstimate(t *testing.T) {
	f := &inputFlags{}
	cmd := newTrackCmd(&bytes.Buffer{}, new(bool), f)
	require.NoError(t, cmd.ParseFlags([]string{
		"--input", "capture.bin",
		"--prn", "4",
		"--code-phase", "1572",
		"--carrier-freq", "-3340",
	}))

	cfg, err := f.resolve(cmd, false)
	require.NoError(t, err)
	require.NotNil(t, cfg.Estimate)
	assert.Equal(t, tracking.AcquisitionEstimate{
		SatelliteID:      4,
		CodePhaseSamples: 1572,
		CarrierFrequency: -3340,
	}, *cfg.Estimate)
}

// TestResolve_PartialEstimate tests that any hand-off flag builds a hand-off
// with the others at their defaults
func TestResolve_PartialEstimate(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want tracking.AcquisitionEstimate
	}{
		{
			name: "PRN and carrier",
			args: []string{"--prn", "4", "--carrier-freq", "1500"},
			want: tracking.AcquisitionEstimate{SatelliteID: 4, CarrierFrequency: 1500},
		},
		{
			name: "Carrier only",
			args: []string{"--carrier-freq", "-3340"},
			want: tracking.AcquisitionEstimate{SatelliteID: 1, CarrierFrequency: -3340},
		},
		{
			name: "Zero code phase",
			args: []string{"--prn", "7", "--code-phase", "0"},
			want: tracking.AcquisitionEstimate{SatelliteID: 7},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &inputFlags{}
			cmd := newTrackCmd(&bytes.Buffer{}, new(bool), f)
			require.NoError(t, cmd.ParseFlags(append([]string{"--input", "capture.bin"}, tt.args...)))

			cfg, err := f.resolve(cmd, false)
			require.NoError(t, err)
			require.NotNil(t, cfg.Estimate)
			assert.Equal(t, tt.want, *cfg.Estimate)
		})
	}
}

// TestAcquireCommand tests the acquisition report
func TestAcquireCommand(t *testing.T) {
	out, err := execute(t, "acquire",
		"--input", writeCapture(t),
		"--ms", "2",
		"--if", "1023000",
		"--prns", "1",
		"--max-doppler", "500",
	)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 2)
	fields := strings.Fields(lines[1])
	require.Len(t, fields, 6)
	assert.Equal(t, "1", fields[0])
	assert.Equal(t, "true", fields[1])
	doppler, err := strconv.ParseFloat(fields[3], 64)
	require.NoError(t, err)
	assert.InDelta(t, 0, doppler, 1)
}

// TestCaptureCommand tests that a missing dongle is reported
func TestCaptureCommand(t *testing.T) {
	for _, args := range [][]string{nil, {"--acquire"}} {
		args = append([]string{"capture", "--device", "99", "--output", filepath.Join(t.TempDir(), "l1.bin")}, args...)
		_, err := execute(t, args...)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "RTL-SDR")
	}
}
