// Package output writes tracking telemetry, navigation bit files and the run
// summary into an output directory.
package output

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/sirupsen/logrus"

	"go1575/internal/navbits"
	"go1575/internal/tracking"
)

// SummaryFile is the name of the run summary in the output directory
const SummaryFile = "summary.yaml"

var telemetryHeader = []string{
	"epoch", "absolute_sample", "block_size", "code_phase_step", "residual_code_phase",
	"code_frequency", "carrier_frequency",
	"i_e", "q_e", "i_p", "q_p", "i_l", "q_l",
	"code_error", "code_nco", "carrier_error", "carrier_nco", "lost_lock",
}

// Writer places per channel files in one directory. It is safe for
// concurrent use by different channels because every file is written by
// exactly one call.
type Writer struct {
	dir         string
	compression Compression
	logger      *logrus.Logger
}

// NewWriter creates the output directory if needed
func NewWriter(dir string, compression Compression, logger *logrus.Logger) (*Writer, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	return &Writer{
		dir:         dir,
		compression: compression,
		logger:      logger,
	}, nil
}

// Dir returns the output directory
func (w *Writer) Dir() string {
	return w.dir
}

// TelemetryFileName returns the telemetry CSV name for a satellite
func TelemetryFileName(prn int) string {
	return fmt.Sprintf("SV%d_tracking.csv", prn)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// WriteTelemetry writes one CSV row per tracking record and returns the
// path of the finished file.
func (w *Writer) WriteTelemetry(prn int, records []tracking.Record) (string, error) {
	path := filepath.Join(w.dir, TelemetryFileName(prn))

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create telemetry file %s: %w", path, err)
	}
	defer file.Close()

	cw := csv.NewWriter(file)
	if err := cw.Write(telemetryHeader); err != nil {
		return "", fmt.Errorf("failed to write telemetry header: %w", err)
	}

	for _, r := range records {
		c := r.Correlation
		row := []string{
			strconv.Itoa(r.Epoch),
			strconv.Itoa(r.AbsoluteSample),
			strconv.Itoa(r.BlockSize),
			formatFloat(r.CodePhaseStep),
			formatFloat(r.ResidualCodePhase),
			formatFloat(r.CodeFrequency),
			formatFloat(r.CarrierFrequency),
			formatFloat(c.IE), formatFloat(c.QE),
			formatFloat(c.IP), formatFloat(c.QP),
			formatFloat(c.IL), formatFloat(c.QL),
			formatFloat(r.CodeError),
			formatFloat(r.CodeNCO),
			formatFloat(r.CarrierError),
			formatFloat(r.CarrierNCO),
			strconv.FormatBool(r.LostLock),
		}
		if err := cw.Write(row); err != nil {
			return "", fmt.Errorf("failed to write epoch %d: %w", r.Epoch, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return "", fmt.Errorf("failed to flush telemetry: %w", err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("failed to close telemetry file: %w", err)
	}

	return w.finish(prn, path, len(records))
}

// WriteBits writes the bit file of a satellite and returns its path
func (w *Writer) WriteBits(prn int, stream navbits.Stream) (string, error) {
	path := filepath.Join(w.dir, navbits.FileName(prn))

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create bit file %s: %w", path, err)
	}
	defer file.Close()

	if _, err := stream.WriteTo(file); err != nil {
		return "", fmt.Errorf("failed to write bits: %w", err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("failed to close bit file: %w", err)
	}

	return w.finish(prn, path, len(stream.Bits))
}

// finish compresses a completed file when configured
func (w *Writer) finish(prn int, path string, entries int) (string, error) {
	final, err := compressFile(path, w.compression, w.logger)
	if err != nil {
		return "", err
	}

	w.logger.WithFields(logrus.Fields{
		"prn":     prn,
		"file":    final,
		"entries": entries,
	}).Info("Wrote output file")

	return final, nil
}

// Files returns the per satellite files in the output directory, sorted
func (w *Writer) Files() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(w.dir, "SV*"))
	if err != nil {
		return nil, fmt.Errorf("failed to list output files: %w", err)
	}
	sort.Strings(files)
	return files, nil
}
