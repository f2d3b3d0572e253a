package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neurosim/internal/epochs"
	"neurosim/internal/model"
	"neurosim/internal/source"
)

func baseRequest() Request {
	return Request{
		RunID: "run-1",
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
	}
}

func TestRunEndToEnd(t *testing.T) {
	sim := NewSimulator(Config{})
	result, err := sim.Run(context.Background(), baseRequest())
	require.NoError(t, err)

	assert.Equal(t, "run-1", result.RunID)
	require.Len(t, result.Events, 20)
	assert.Equal(t, 20*250, result.NTimes)

	// (N_trials // N_classes, round(MI_duration/1000*sfreq)) per label/task.
	require.Len(t, result.Activity, 2)
	for _, label := range []string{"G_precentral-lh", "G_precentral-rh"} {
		for _, task := range []model.Task{model.TaskMILeft, model.TaskMIRight} {
			epoched := result.Activity[label][task]
			require.Len(t, epoched, 10)
			for _, trial := range epoched {
				require.Len(t, trial, 250)
			}
		}
	}

	// One accumulated channel per motor label.
	require.Len(t, result.Recording, 2)
	for _, summary := range result.Recording {
		assert.Equal(t, "G_precentral", summary.Region)
		assert.Equal(t, result.NTimes, summary.Samples)
		assert.Positive(t, summary.RMS)
	}
}

func TestRunIsSeedDeterministic(t *testing.T) {
	sim := NewSimulator(Config{Workers: 4})

	a, err := sim.Run(context.Background(), baseRequest())
	require.NoError(t, err)
	b, err := sim.Run(context.Background(), baseRequest())
	require.NoError(t, err)

	assert.Equal(t, a.Events, b.Events)
	assert.Equal(t, a.Activity, b.Activity)
	assert.Equal(t, a.Recording, b.Recording)

	req := baseRequest()
	req.Seed = 4321
	c, err := sim.Run(context.Background(), req)
	require.NoError(t, err)
	assert.NotEqual(t, a.Events, c.Events)
}

func TestRunWithFailuresAndSegments(t *testing.T) {
	req := baseRequest()
	req.NTrials = 40
	req.PFailed = 0.2
	req.IncludeBaseline = true
	req.IncludeRest = true

	sim := NewSimulator(Config{})
	result, err := sim.Run(context.Background(), req)
	require.NoError(t, err)

	// 40 trials + 1 baseline + 40 rest rows.
	require.Len(t, result.Events, 81)
	assert.Equal(t, model.BaselineClass(2), result.Events[0].Class)

	require.Len(t, result.BadTrials, 81)
	assert.Equal(t, 4, result.BadTrials.Count())
	for _, idx := range result.BadTrials.Indices() {
		assert.Less(t, result.Events[idx].Class, 2)
	}
}

func TestRunWithFatigueBackground(t *testing.T) {
	req := baseRequest()
	req.IncludeFatigue = true
	req.FatigueStart = 0.6

	sim := NewSimulator(Config{})
	result, err := sim.Run(context.Background(), req)
	require.NoError(t, err)

	// Motor labels plus two rhythms on two hemispheres each.
	require.Len(t, result.Recording, 6)
	regions := map[string]int{}
	for _, summary := range result.Recording {
		regions[summary.Region]++
	}
	assert.Equal(t, map[string]int{
		"G_precentral":        2,
		"G_and_S_paracentral": 2,
		"G_front_sup":         2,
	}, regions)
}

func TestRunValidation(t *testing.T) {
	sim := NewSimulator(Config{})
	ctx := context.Background()

	req := baseRequest()
	req.Tasks = nil
	_, err := sim.Run(ctx, req)
	assert.ErrorIs(t, err, ErrNoTasks)

	req = baseRequest()
	req.Tasks = []model.Task{model.TaskMILeft, model.TaskMILeft}
	_, err = sim.Run(ctx, req)
	assert.ErrorIs(t, err, ErrDuplicateTask)

	req = baseRequest()
	req.PeakParams = nil
	_, err = sim.Run(ctx, req)
	assert.ErrorIs(t, err, ErrNoPeakParams)

	req = baseRequest()
	req.Reduction = 1.5
	_, err = sim.Run(ctx, req)
	require.Error(t, err)

	req = baseRequest()
	delete(req.PeakParams, "G_precentral-rh")
	_, err = sim.Run(ctx, req)
	require.Error(t, err)

	req = baseRequest()
	req.IncludeFatigue = true
	req.FatigueStart = 1.2
	_, err = sim.Run(ctx, req)
	require.Error(t, err)
}

func TestRunRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sim := NewSimulator(Config{})
	_, err := sim.Run(ctx, baseRequest())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunFailedTrialsNeedTwoMIClasses(t *testing.T) {
	req := baseRequest()
	req.Tasks = []model.Task{model.TaskMILeft, model.TaskMIRight, model.TaskRest}
	req.NTrials = 21
	req.PFailed = 0.2

	sim := NewSimulator(Config{})
	_, err := sim.Run(context.Background(), req)
	// Rest as a third class is fine: MI classes stay 0 and 1.
	require.NoError(t, err)

	req.Tasks = []model.Task{model.TaskRest}
	req.NTrials = 20
	_, err = sim.Run(context.Background(), req)
	assert.ErrorIs(t, err, epochs.ErrFailedTrialsTaskSet)
}

func TestSplitLabel(t *testing.T) {
	region, hemi, err := splitLabel("G_precentral-lh")
	require.NoError(t, err)
	assert.Equal(t, "G_precentral", region)
	assert.Equal(t, "lh", hemi)

	region, hemi, err = splitLabel("G_and_S_paracentral-rh")
	require.NoError(t, err)
	assert.Equal(t, "G_and_S_paracentral", region)
	assert.Equal(t, "rh", hemi)

	_, _, err = splitLabel("precentral")
	assert.ErrorIs(t, err, ErrLabelFormat)
}

func TestRunCustomSink(t *testing.T) {
	var got *source.MemorySink
	sim := NewSimulator(Config{
		NewSink: func(nTimes int) (source.Sink, error) {
			sink, err := source.NewMemorySink(nTimes)
			got = sink
			return sink, err
		},
	})

	result, err := sim.Run(context.Background(), baseRequest())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, result.NTimes, got.NTimes())
}
