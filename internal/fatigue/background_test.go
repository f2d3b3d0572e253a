package fatigue

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neurosim/internal/model"
	"neurosim/internal/source"
)

func testBackground(t *testing.T, sink source.Sink) *Background {
	t.Helper()
	return &Background{
		Locator:      source.NewStaticLocator(source.DefaultRegions()),
		Sink:         sink,
		Gen:          Generator{SampleRate: 250},
		FatigueStart: 0.6,
		Dynamic:      DynamicLinear,
		AlphaScale:   45,
		ThetaScale:   52,
	}
}

func TestBackgroundApplyRegistersBothSegments(t *testing.T) {
	nTimes := 5000
	sink, err := source.NewMemorySink(nTimes)
	require.NoError(t, err)

	b := testBackground(t, sink)
	require.NoError(t, b.Apply(rand.New(rand.NewSource(5)), nTimes))

	// Two rhythms, two hemispheres each.
	summaries := sink.Summaries()
	require.Len(t, summaries, 4)
	regions := map[string]int{}
	for _, s := range summaries {
		regions[s.Region]++
		assert.Equal(t, nTimes, s.Samples)
		assert.Positive(t, s.RMS)
	}
	assert.Equal(t, map[string]int{"G_and_S_paracentral": 2, "G_front_sup": 2}, regions)

	// Hemispheres share the drawn waveform, so their channels match.
	lh, ok := sink.Channel(source.Handle{Region: "G_front_sup", Hemisphere: "lh", Extent: 10})
	require.True(t, ok)
	rh, ok := sink.Channel(source.Handle{Region: "G_front_sup", Hemisphere: "rh", Extent: 10})
	require.True(t, ok)
	assert.Equal(t, lh, rh)

	// Fatigue segment fills the tail: the boundary sample region carries
	// activity from the second registration.
	alert, _, err := Split(b.FatigueStart, nTimes)
	require.NoError(t, err)
	var tailEnergy float64
	for _, v := range lh[alert:] {
		tailEnergy += v * v
	}
	assert.Positive(t, tailEnergy)
}

func TestBackgroundApplyValidation(t *testing.T) {
	sink, err := source.NewMemorySink(1000)
	require.NoError(t, err)
	b := testBackground(t, sink)

	assert.ErrorIs(t, b.Apply(nil, 1000), ErrRandRequired)

	b.FatigueStart = 0
	assert.ErrorIs(t, b.Apply(rand.New(rand.NewSource(1)), 1000), ErrFatigueStart)
}

func TestBackgroundApplyUnknownRegion(t *testing.T) {
	sink, err := source.NewMemorySink(1000)
	require.NoError(t, err)
	b := testBackground(t, sink)
	b.Locator = source.NewStaticLocator([]string{"G_precentral"})

	err = b.Apply(rand.New(rand.NewSource(1)), 1000)
	require.Error(t, err)
	assert.ErrorIs(t, err, source.ErrUnknownRegion)
}

func TestBackgroundEventMarkers(t *testing.T) {
	nTimes := 2000
	sink := &captureSink{}
	b := testBackground(t, sink)
	require.NoError(t, b.Apply(rand.New(rand.NewSource(2)), nTimes))

	alert, _, err := Split(b.FatigueStart, nTimes)
	require.NoError(t, err)

	require.Len(t, sink.events, 8)
	for i, ev := range sink.events {
		if i < 4 {
			assert.Equal(t, model.Event{Onset: 0, Class: model.ClassAlertMarker}, ev)
		} else {
			assert.Equal(t, model.Event{Onset: alert, Class: model.ClassFatigueMarker}, ev)
		}
	}
}

type captureSink struct {
	events []model.Event
}

func (c *captureSink) Register(_ source.Handle, _ []float64, ev model.Event) error {
	c.events = append(c.events, ev)
	return nil
}
