// Package types defines shared types used across the application.
package types

import "time"

// SleepRecord holds the extracted metrics and coaching messages for one
// sleeper. Every field defaults to the empty string; a missing value is
// represented, never an error. The JSON field names are part of the
// output contract and must not change.
type SleepRecord struct {
	ThirtyDayAverage            string `json:"thirtyDayAverage"`
	CurrentScore                string `json:"currentScore"`
	AllTimeBest                 string `json:"allTimeBest"`
	GeneralMessage              string `json:"generalMessage"`
	HeartRateMessage            string `json:"heartRateMessage"`
	HeartRateVariabilityMessage string `json:"heartRateVariabilityMessage"`
	BreathRateMessage           string `json:"breathRateMessage"`

	// Diagnostic carries troubleshooting data and is deliberately
	// excluded from the serialized output.
	Diagnostic *Diagnostic `json:"-"`
}

// NewSleepRecord returns a record with all fields set to "".
func NewSleepRecord() *SleepRecord {
	return &SleepRecord{}
}

// FieldNames lists the record fields in their canonical order.
func FieldNames() []string {
	return []string{
		"thirtyDayAverage",
		"currentScore",
		"allTimeBest",
		"generalMessage",
		"heartRateMessage",
		"heartRateVariabilityMessage",
		"breathRateMessage",
	}
}

// FieldValues returns the field values in the same order as FieldNames.
func (r *SleepRecord) FieldValues() []string {
	return []string{
		r.ThirtyDayAverage,
		r.CurrentScore,
		r.AllTimeBest,
		r.GeneralMessage,
		r.HeartRateMessage,
		r.HeartRateVariabilityMessage,
		r.BreathRateMessage,
	}
}

// NrFilled counts the non-empty fields of the record.
func (r *SleepRecord) NrFilled() int {
	n := 0
	for _, v := range r.FieldValues() {
		if v != "" {
			n++
		}
	}
	return n
}

// Snapshot maps sleeper names to their records. One run produces
// exactly one snapshot with exactly the configured sleepers as keys.
type Snapshot map[string]*SleepRecord

// Metrics holds the three numeric dashboard scores as strings.
type Metrics struct {
	ThirtyDayAverage string
	CurrentScore     string
	AllTimeBest      string
}

// BiosignalMessages holds the three tabbed biosignal messages.
type BiosignalMessages struct {
	HeartRate            string
	HeartRateVariability string
	BreathRate           string
}

// Diagnostic collects per-sleeper troubleshooting data. It never ends
// up in the snapshot JSON.
type Diagnostic struct {
	RunID     string    `json:"runId"`
	Notes     []string  `json:"notes"`
	PageText  string    `json:"pageText,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (d *Diagnostic) AddNote(note string) {
	d.Notes = append(d.Notes, note)
}

// SleeperStats represents the extraction outcome for one sleeper.
type SleeperStats struct {
	Sleeper        string `json:"sleeper"`
	NrFieldsFilled int    `json:"nrFieldsFilled"`
	DurationMS     int64  `json:"durationMs"`
}

// RunStats represents the status of a single scrape run.
type RunStats struct {
	RunID    string         `json:"runId"`
	Sleepers []SleeperStats `json:"sleepers"`
	NrErrors int            `json:"nrErrors"`
	RunStart time.Time      `json:"runStart"`
	RunEnd   time.Time      `json:"runEnd"`
}
