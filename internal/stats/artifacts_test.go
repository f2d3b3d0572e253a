package stats

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"neurosim/internal/model"
)

func sampleArtifacts(runID string) RunArtifacts {
	return RunArtifacts{
		Config: RunConfig{
			RunID: runID,
			Tasks: []model.Task{model.TaskMILeft, model.TaskMIRight},
			PeakParams: map[string]model.SpectralPeak{
				"G_precentral-lh": {CenterFreqHz: 10, RelPowerDB: 0.9, BandwidthHz: 4},
				"G_precentral-rh": {CenterFreqHz: 10, RelPowerDB: 0.9, BandwidthHz: 4},
			},
			Aperiodic:    model.Aperiodic{Offset: -1.0, Exponent: 1.5},
			MIDurationMS: 1000,
			SampleRate:   250,
			NTrials:      20,
			Reduction:    0.5,
			Seed:         1234,
			Workers:      2,
		},
		Events: []model.Event{
			{Onset: 0, Class: 0},
			{Onset: 250, Class: 1},
			{Onset: 500, Class: 0},
		},
		BadTrials: []int{2},
		EpochSummaries: []EpochSummary{
			{Label: "G_precentral-lh", Task: model.TaskMILeft, Trials: 10, SamplesPerTrial: 250, RMS: 2.1e-5},
		},
		RecordingSummaries: []model.RecordingSummary{
			{Region: "G_precentral", Hemisphere: "lh", Extent: 30, Samples: 5000, RMS: 1.5e-5, AbsMax: 6.2e-5},
		},
	}
}

func TestWriteAndExportRunArtifacts(t *testing.T) {
	baseDir := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "exports")

	runID := "run-123"
	runDir, err := WriteRunArtifacts(baseDir, sampleArtifacts(runID))
	if err != nil {
		t.Fatalf("write artifacts: %v", err)
	}

	files := []string{"run_config.json", "events.csv", "bad_trials.csv", "epoch_summary.json", "recording_summary.json"}
	for _, file := range files {
		if _, err := os.Stat(filepath.Join(runDir, file)); err != nil {
			t.Fatalf("expected file %s: %v", file, err)
		}
	}

	exportedDir, err := ExportRunArtifacts(baseDir, runID, outDir)
	if err != nil {
		t.Fatalf("export artifacts: %v", err)
	}
	for _, file := range files {
		if _, err := os.Stat(filepath.Join(exportedDir, file)); err != nil {
			t.Fatalf("expected exported file %s: %v", file, err)
		}
	}
}

func TestEventsCSVRoundTrip(t *testing.T) {
	baseDir := t.TempDir()
	artifacts := sampleArtifacts("run-events")

	if _, err := WriteRunArtifacts(baseDir, artifacts); err != nil {
		t.Fatalf("write artifacts: %v", err)
	}

	events, ok, err := ReadEvents(baseDir, "run-events")
	if err != nil {
		t.Fatalf("read events: %v", err)
	}
	if !ok {
		t.Fatal("expected events file")
	}
	if !reflect.DeepEqual(events, artifacts.Events) {
		t.Fatalf("events mismatch: got=%+v want=%+v", events, artifacts.Events)
	}

	bad, ok, err := ReadBadTrials(baseDir, "run-events")
	if err != nil {
		t.Fatalf("read bad trials: %v", err)
	}
	if !ok {
		t.Fatal("expected bad trials file")
	}
	if !reflect.DeepEqual(bad, artifacts.BadTrials) {
		t.Fatalf("bad trials mismatch: got=%+v want=%+v", bad, artifacts.BadTrials)
	}
}

func TestReadRunConfigRoundTrip(t *testing.T) {
	baseDir := t.TempDir()
	artifacts := sampleArtifacts("run-cfg")

	if _, err := WriteRunArtifacts(baseDir, artifacts); err != nil {
		t.Fatalf("write artifacts: %v", err)
	}

	cfg, ok, err := ReadRunConfig(baseDir, "run-cfg")
	if err != nil {
		t.Fatalf("read run config: %v", err)
	}
	if !ok {
		t.Fatal("expected run config")
	}
	if !reflect.DeepEqual(cfg, artifacts.Config) {
		t.Fatalf("run config mismatch: got=%+v want=%+v", cfg, artifacts.Config)
	}

	_, ok, err = ReadRunConfig(baseDir, "missing-run")
	if err != nil {
		t.Fatalf("read missing run config: %v", err)
	}
	if ok {
		t.Fatal("expected no config for missing run")
	}
}

func TestReadRecordingSummaries(t *testing.T) {
	baseDir := t.TempDir()
	artifacts := sampleArtifacts("run-rec")

	if _, err := WriteRunArtifacts(baseDir, artifacts); err != nil {
		t.Fatalf("write artifacts: %v", err)
	}

	summaries, ok, err := ReadRecordingSummaries(baseDir, "run-rec")
	if err != nil {
		t.Fatalf("read summaries: %v", err)
	}
	if !ok {
		t.Fatal("expected recording summaries")
	}
	if !reflect.DeepEqual(summaries, artifacts.RecordingSummaries) {
		t.Fatalf("summaries mismatch: got=%+v want=%+v", summaries, artifacts.RecordingSummaries)
	}
}

func TestAppendRunIndexUpsertsAndSorts(t *testing.T) {
	baseDir := t.TempDir()

	first := RunIndexEntry{RunID: "run-1", NTrials: 20, CreatedAtUTC: "2026-08-29T10:00:00Z"}
	second := RunIndexEntry{RunID: "run-2", NTrials: 40, CreatedAtUTC: "2026-08-29T11:00:00Z"}
	if err := AppendRunIndex(baseDir, first); err != nil {
		t.Fatalf("append first: %v", err)
	}
	if err := AppendRunIndex(baseDir, second); err != nil {
		t.Fatalf("append second: %v", err)
	}

	entries, err := ListRunIndex(baseDir)
	if err != nil {
		t.Fatalf("list index: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	// Newest first.
	if entries[0].RunID != "run-2" || entries[1].RunID != "run-1" {
		t.Fatalf("unexpected order: %+v", entries)
	}

	first.NTrials = 30
	if err := AppendRunIndex(baseDir, first); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	entries, err = ListRunIndex(baseDir)
	if err != nil {
		t.Fatalf("list after upsert: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("upsert must not add entries, got %d", len(entries))
	}
	if entries[1].NTrials != 30 {
		t.Fatalf("expected upserted trial count, got %+v", entries[1])
	}
}

func TestSummarizeEpochs(t *testing.T) {
	activity := model.ActivitySet{
		"G_precentral-lh": {
			model.TaskMILeft:  {{3, 4}, {0, 5}},
			model.TaskMIRight: {{1, 1}, {1, 1}},
		},
	}
	summaries := SummarizeEpochs([]model.Task{model.TaskMILeft, model.TaskMIRight}, activity)
	if len(summaries) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(summaries))
	}
	left := summaries[0]
	if left.Task != model.TaskMILeft || left.Trials != 2 || left.SamplesPerTrial != 2 {
		t.Fatalf("unexpected left summary: %+v", left)
	}
	// sqrt((9+16+0+25)/4) = sqrt(12.5)
	if diff := left.RMS*left.RMS - 12.5; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("unexpected left rms: %v", left.RMS)
	}
	if summaries[1].RMS != 1 {
		t.Fatalf("unexpected right rms: %v", summaries[1].RMS)
	}
}

func TestWriteRunArtifactsRequiresRunID(t *testing.T) {
	if _, err := WriteRunArtifacts(t.TempDir(), RunArtifacts{}); err == nil {
		t.Fatal("expected error for missing run id")
	}
}
