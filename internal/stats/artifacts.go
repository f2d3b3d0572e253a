package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"neurosim/internal/model"
)

const runIndexFile = "run_index.json"

// RunConfig mirrors every user parameter of one simulation run, written next
// to the run's data tables so a recording can be regenerated bit for bit.
type RunConfig struct {
	RunID           string                        `json:"run_id"`
	Tasks           []model.Task                  `json:"tasks"`
	PeakParams      map[string]model.SpectralPeak `json:"peak_params"`
	Aperiodic       model.Aperiodic               `json:"aperiodic"`
	MIDurationMS    float64                       `json:"mi_duration_ms"`
	SampleRate      float64                       `json:"sample_rate"`
	NTrials         int                           `json:"n_trials"`
	Reduction       float64                       `json:"reduction"`
	PFailed         float64                       `json:"p_failed,omitempty"`
	IncludeBaseline bool                          `json:"include_baseline"`
	BaselineMS      float64                       `json:"baseline_ms,omitempty"`
	IncludeRest     bool                          `json:"include_rest"`
	RestMS          float64                       `json:"rest_ms,omitempty"`
	IncludeFatigue  bool                          `json:"include_fatigue"`
	FatigueStart    float64                       `json:"fatigue_start,omitempty"`
	FatigueDynamic  string                        `json:"fatigue_dynamic,omitempty"`
	AlphaScale      float64                       `json:"alpha_scale,omitempty"`
	ThetaScale      float64                       `json:"theta_scale,omitempty"`
	Seed            int64                         `json:"seed"`
	Workers         int                           `json:"workers"`
}

// EpochSummary condenses one label/task's epoched activity.
type EpochSummary struct {
	Label           string     `json:"label"`
	Task            model.Task `json:"task"`
	Trials          int        `json:"trials"`
	SamplesPerTrial int        `json:"samples_per_trial"`
	RMS             float64    `json:"rms"`
}

// RunArtifacts is everything WriteRunArtifacts lays down for one run.
type RunArtifacts struct {
	Config             RunConfig
	Events             []model.Event
	BadTrials          []int
	EpochSummaries     []EpochSummary
	RecordingSummaries []model.RecordingSummary
}

// RunIndexEntry is one row of the cross-run index kept at the artifacts root.
type RunIndexEntry struct {
	RunID        string  `json:"run_id"`
	Tasks        int     `json:"tasks"`
	NTrials      int     `json:"n_trials"`
	SampleRate   float64 `json:"sample_rate"`
	Seed         int64   `json:"seed"`
	NEvents      int     `json:"n_events"`
	NTimes       int     `json:"n_times"`
	BadTrials    int     `json:"bad_trials"`
	Fatigue      bool    `json:"fatigue"`
	CreatedAtUTC string  `json:"created_at_utc"`
}

// SummarizeEpochs builds per-label/task summaries from the epoched activity,
// ordered by label then by the declared task order.
func SummarizeEpochs(tasks []model.Task, activity model.ActivitySet) []EpochSummary {
	labels := make([]string, 0, len(activity))
	for label := range activity {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	out := make([]EpochSummary, 0, len(labels)*len(tasks))
	for _, label := range labels {
		for _, task := range tasks {
			epoched, ok := activity[label][task]
			if !ok {
				continue
			}
			var sumSq float64
			var n int
			for _, trial := range epoched {
				for _, v := range trial {
					sumSq += v * v
				}
				n += len(trial)
			}
			summary := EpochSummary{Label: label, Task: task, Trials: len(epoched)}
			if len(epoched) > 0 {
				summary.SamplesPerTrial = len(epoched[0])
			}
			if n > 0 {
				summary.RMS = math.Sqrt(sumSq / float64(n))
			}
			out = append(out, summary)
		}
	}
	return out
}

// WriteRunArtifacts writes one run's directory under baseDir and returns its
// path. Events go to a three-column CSV matching the event timeline layout.
func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Config.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Config.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, "run_config.json"), artifacts.Config); err != nil {
		return "", err
	}
	if err := writeEventsCSV(filepath.Join(runDir, "events.csv"), artifacts.Events); err != nil {
		return "", err
	}
	if err := writeBadTrialsCSV(filepath.Join(runDir, "bad_trials.csv"), artifacts.BadTrials); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "epoch_summary.json"), artifacts.EpochSummaries); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "recording_summary.json"), artifacts.RecordingSummaries); err != nil {
		return "", err
	}

	return runDir, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	path := filepath.Join(baseDir, runIndexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Prefer later appended entries for equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

// ExportRunArtifacts copies one run's directory into outDir and returns the
// destination path.
func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	files := []string{"run_config.json", "events.csv", "epoch_summary.json", "recording_summary.json"}
	for _, file := range files {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	badPath := filepath.Join(src, "bad_trials.csv")
	if _, err := os.Stat(badPath); err == nil {
		if err := copyFile(badPath, filepath.Join(dst, "bad_trials.csv")); err != nil {
			return "", err
		}
	} else if err != nil && !os.IsNotExist(err) {
		return "", err
	}

	return dst, nil
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	path := filepath.Join(baseDir, runID, "run_config.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return RunConfig{}, false, nil
		}
		return RunConfig{}, false, err
	}

	var cfg RunConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return RunConfig{}, false, err
	}
	return cfg, true, nil
}

func WriteRunConfig(baseDir, runID string, cfg RunConfig) error {
	if strings.TrimSpace(runID) == "" {
		return fmt.Errorf("run id is required")
	}
	if strings.TrimSpace(cfg.RunID) == "" {
		cfg.RunID = strings.TrimSpace(runID)
	}
	if cfg.RunID != strings.TrimSpace(runID) {
		return fmt.Errorf("run config run id mismatch: got=%s want=%s", cfg.RunID, strings.TrimSpace(runID))
	}
	runDir := filepath.Join(baseDir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return err
	}
	return writeJSON(filepath.Join(runDir, "run_config.json"), cfg)
}

func ReadEvents(baseDir, runID string) ([]model.Event, bool, error) {
	path := filepath.Join(baseDir, runID, "events.csv")
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []model.Event{}, true, nil
		}
		return nil, false, err
	}
	if len(header) != 3 {
		return nil, false, fmt.Errorf("events header must have 3 columns")
	}

	var events []model.Event
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		if len(record) != 3 {
			return nil, false, fmt.Errorf("events row must have 3 columns")
		}
		var ev model.Event
		if ev.Onset, err = strconv.Atoi(record[0]); err != nil {
			return nil, false, err
		}
		if ev.Prev, err = strconv.Atoi(record[1]); err != nil {
			return nil, false, err
		}
		if ev.Class, err = strconv.Atoi(record[2]); err != nil {
			return nil, false, err
		}
		events = append(events, ev)
	}
	return events, true, nil
}

func ReadBadTrials(baseDir, runID string) ([]int, bool, error) {
	path := filepath.Join(baseDir, runID, "bad_trials.csv")
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	if _, err := reader.Read(); err != nil {
		if err == io.EOF {
			return []int{}, true, nil
		}
		return nil, false, err
	}

	var indices []int
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		if len(record) < 1 {
			return nil, false, fmt.Errorf("bad trials row must have 1 column")
		}
		idx, err := strconv.Atoi(record[0])
		if err != nil {
			return nil, false, err
		}
		indices = append(indices, idx)
	}
	return indices, true, nil
}

func ReadRecordingSummaries(baseDir, runID string) ([]model.RecordingSummary, bool, error) {
	path := filepath.Join(baseDir, runID, "recording_summary.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var summaries []model.RecordingSummary
	if err := json.Unmarshal(data, &summaries); err != nil {
		return nil, false, err
	}
	return summaries, true, nil
}

func writeEventsCSV(path string, events []model.Event) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"onset", "prev", "class"}); err != nil {
		return err
	}
	for _, ev := range events {
		if err := writer.Write([]string{
			strconv.Itoa(ev.Onset),
			strconv.Itoa(ev.Prev),
			strconv.Itoa(ev.Class),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func writeBadTrialsCSV(path string, indices []int) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"event_index"}); err != nil {
		return err
	}
	for _, idx := range indices {
		if err := writer.Write([]string{strconv.Itoa(idx)}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
