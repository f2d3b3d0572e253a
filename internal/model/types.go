package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// Task names the modeled event classes. Class ids are positional: the i-th
// requested task gets class id i, baseline gets len(tasks), rest gets
// len(tasks)+1.
type Task string

const (
	TaskMILeft  Task = "MI/left"
	TaskMIRight Task = "MI/right"
	TaskRest    Task = "rest"
)

// Marker classes for the background-rhythm segments. These sit above the
// task/baseline/rest range for every supported task set.
const (
	ClassAlertMarker   = 4
	ClassFatigueMarker = 5
)

// BaselineClass returns the class id of the leading baseline segment for a
// run with nClasses task classes.
func BaselineClass(nClasses int) int { return nClasses }

// RestClass returns the class id of inter-trial rest segments.
func RestClass(nClasses int) int { return nClasses + 1 }

// Event marks one segment of the session timeline. Prev is kept only so
// exported event tables stay three-column compatible; it is always zero.
type Event struct {
	Onset int `json:"onset"`
	Prev  int `json:"prev"`
	Class int `json:"class"`
}

// SpectralPeak parameterizes one oscillatory peak on top of the aperiodic
// background.
type SpectralPeak struct {
	CenterFreqHz float64 `json:"center_freq_hz"`
	RelPowerDB   float64 `json:"rel_power_db"`
	BandwidthHz  float64 `json:"bandwidth_hz"`
}

// Aperiodic defines the 1/f background power law
// power(f) = 10^(Offset/2) / f^Exponent.
type Aperiodic struct {
	Offset   float64 `json:"offset"`
	Exponent float64 `json:"exponent"`
}

// LabelTask keys per-label per-task parameters and activity.
type LabelTask struct {
	Label string `json:"label"`
	Task  Task   `json:"task"`
}

// EpochedActivity is one label/task's activity sliced into trials, shape
// (trials, samples per trial).
type EpochedActivity [][]float64

// ActivitySet is the epoched "what" output, label -> task -> epochs.
type ActivitySet map[string]map[Task]EpochedActivity

// RunRecord is the persisted summary of one simulation run.
type RunRecord struct {
	VersionedRecord
	ID           string  `json:"id"`
	CreatedAtUTC string  `json:"created_at_utc"`
	Seed         int64   `json:"seed"`
	Tasks        []Task  `json:"tasks"`
	NTrials      int     `json:"n_trials"`
	SampleRate   float64 `json:"sample_rate"`
	MIDurationMS float64 `json:"mi_duration_ms"`
	Reduction    float64 `json:"reduction"`
	PFailed      float64 `json:"p_failed,omitempty"`
	FatigueStart float64 `json:"fatigue_start,omitempty"`
	NEvents      int     `json:"n_events"`
	NTimes       int     `json:"n_times"`
	ArtifactsDir string  `json:"artifacts_dir,omitempty"`
}

// RecordingSummary describes one accumulated source channel of the forward
// sink after a run.
type RecordingSummary struct {
	Region     string  `json:"region"`
	Hemisphere string  `json:"hemisphere"`
	Extent     int     `json:"extent"`
	Samples    int     `json:"samples"`
	RMS        float64 `json:"rms"`
	AbsMax     float64 `json:"abs_max"`
}
