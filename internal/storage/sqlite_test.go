//go:build sqlite

package storage

import (
	"context"
	"path/filepath"
	"testing"

	"neurosim/internal/model"
)

func TestSQLiteStoreRunTablesRoundTrip(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "neurosim.db")

	store := NewSQLiteStore(dbPath)
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	run := model.RunRecord{
		VersionedRecord: model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion},
		ID:              "run-1",
		CreatedAtUTC:    "2026-08-29T10:00:00Z",
		Seed:            1234,
		Tasks:           []model.Task{model.TaskMILeft, model.TaskMIRight},
		NTrials:         20,
		SampleRate:      250,
		MIDurationMS:    1000,
		Reduction:       0.5,
		NEvents:         20,
		NTimes:          5000,
	}
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("save run: %v", err)
	}

	loadedRun, ok, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if !ok {
		t.Fatalf("expected run %s", run.ID)
	}
	if loadedRun.ID != run.ID || loadedRun.NTimes != run.NTimes {
		t.Fatalf("unexpected run loaded: %+v", loadedRun)
	}

	events := []model.Event{
		{Onset: 0, Class: 0},
		{Onset: 250, Class: 1},
	}
	if err := store.SaveEvents(ctx, run.ID, events); err != nil {
		t.Fatalf("save events: %v", err)
	}
	loadedEvents, ok, err := store.GetEvents(ctx, run.ID)
	if err != nil {
		t.Fatalf("get events: %v", err)
	}
	if !ok {
		t.Fatal("expected events run-1")
	}
	if len(loadedEvents) != 2 || loadedEvents[1].Class != 1 {
		t.Fatalf("unexpected events loaded: %+v", loadedEvents)
	}

	badTrials := []int{0}
	if err := store.SaveBadTrials(ctx, run.ID, badTrials); err != nil {
		t.Fatalf("save bad trials: %v", err)
	}
	loadedBad, ok, err := store.GetBadTrials(ctx, run.ID)
	if err != nil {
		t.Fatalf("get bad trials: %v", err)
	}
	if !ok {
		t.Fatal("expected bad trials run-1")
	}
	if len(loadedBad) != 1 || loadedBad[0] != 0 {
		t.Fatalf("unexpected bad trials loaded: %+v", loadedBad)
	}

	summaries := []model.RecordingSummary{
		{Region: "G_precentral", Hemisphere: "lh", Extent: 30, Samples: 5000, RMS: 1.5e-5, AbsMax: 6.2e-5},
	}
	if err := store.SaveRecordingSummaries(ctx, run.ID, summaries); err != nil {
		t.Fatalf("save summaries: %v", err)
	}
	loadedSummaries, ok, err := store.GetRecordingSummaries(ctx, run.ID)
	if err != nil {
		t.Fatalf("get summaries: %v", err)
	}
	if !ok {
		t.Fatal("expected summaries run-1")
	}
	if len(loadedSummaries) != 1 || loadedSummaries[0].Region != "G_precentral" {
		t.Fatalf("unexpected summaries loaded: %+v", loadedSummaries)
	}
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "neurosim.db")

	first := NewSQLiteStore(dbPath)
	if err := first.Init(ctx); err != nil {
		t.Fatalf("first init: %v", err)
	}
	run := model.RunRecord{
		VersionedRecord: model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion},
		ID:              "persisted-run",
		CreatedAtUTC:    "2026-08-29T10:00:00Z",
	}
	if err := first.SaveRun(ctx, run); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}

	second := NewSQLiteStore(dbPath)
	if err := second.Init(ctx); err != nil {
		t.Fatalf("second init: %v", err)
	}
	t.Cleanup(func() {
		_ = second.Close()
	})

	loaded, ok, err := second.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	if !ok || loaded.ID != run.ID {
		t.Fatalf("expected persisted run, got ok=%t value=%+v", ok, loaded)
	}
}

func TestSQLiteStoreListRuns(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "neurosim.db")

	store := NewSQLiteStore(dbPath)
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	for i, id := range []string{"run-b", "run-a"} {
		run := model.RunRecord{
			VersionedRecord: model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion},
			ID:              id,
			CreatedAtUTC:    []string{"2026-08-29T11:00:00Z", "2026-08-29T10:00:00Z"}[i],
		}
		if err := store.SaveRun(ctx, run); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}

	runs, err := store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "run-a" || runs[1].ID != "run-b" {
		t.Fatalf("unexpected run order: %+v", runs)
	}
}
