package tracking

import "fmt"

// Record is the telemetry of one completed epoch
type Record struct {
	Epoch             int               `yaml:"epoch"`
	AbsoluteSample    int               `yaml:"absolute_sample"` // first sample of the block
	BlockSize         int               `yaml:"block_size"`
	CodePhaseStep     float64           `yaml:"code_phase_step"`
	ResidualCodePhase float64           `yaml:"residual_code_phase"` // after correction
	CodeFrequency     float64           `yaml:"code_frequency"`
	CarrierFrequency  float64           `yaml:"carrier_frequency"`
	Correlation       CorrelatorOutputs `yaml:"correlation"`
	CodeError         float64           `yaml:"code_error"`
	CodeNCO           float64           `yaml:"code_nco"`
	CarrierError      float64           `yaml:"carrier_error"`
	CarrierNCO        float64           `yaml:"carrier_nco"`
	LostLock          bool              `yaml:"lost_lock"`
}

// Telemetry is an append-only arena of records with a fixed capacity of
// one record per configured epoch.
type Telemetry struct {
	records []Record
}

// NewTelemetry allocates an arena for the given number of epochs
func NewTelemetry(epochs int) *Telemetry {
	return &Telemetry{records: make([]Record, 0, epochs)}
}

// Append adds the record of the next epoch
func (t *Telemetry) Append(r Record) error {
	if len(t.records) == cap(t.records) {
		return fmt.Errorf("telemetry full at %d epochs", cap(t.records))
	}
	if r.Epoch != len(t.records) {
		return fmt.Errorf("out of order record: epoch %d, expected %d", r.Epoch, len(t.records))
	}
	t.records = append(t.records, r)
	return nil
}

// Len returns the number of completed epochs
func (t *Telemetry) Len() int {
	return len(t.records)
}

// Records returns the recorded epochs in order. The slice must not be modified.
func (t *Telemetry) Records() []Record {
	return t.records
}

// PromptInPhase returns the I_P series used for bit extraction
func (t *Telemetry) PromptInPhase() []float64 {
	ip := make([]float64, len(t.records))
	for i, r := range t.records {
		ip[i] = r.Correlation.IP
	}
	return ip
}

// Last returns the most recent record
func (t *Telemetry) Last() (Record, bool) {
	if len(t.records) == 0 {
		return Record{}, false
	}
	return t.records[len(t.records)-1], true
}
