package spectral

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neurosim/internal/dsp"
	"neurosim/internal/model"
)

func testSynth() Synthesizer {
	return Synthesizer{
		SampleRate: 250,
		Aperiodic:  model.Aperiodic{Offset: -1.0, Exponent: 1.5},
	}
}

func TestAperiodicPowerLaw(t *testing.T) {
	s := testSynth()
	// 10^(offset/2) / f^exponent evaluated by hand at 10 Hz.
	want := math.Pow(10, -0.5) / math.Pow(10, 1.5)
	assert.InDelta(t, want, s.AperiodicPower(10), 1e-15)
}

func TestPeakPowerRaisesAperiodicLevel(t *testing.T) {
	s := testSynth()
	peak := model.SpectralPeak{CenterFreqHz: 10, RelPowerDB: 0.4, BandwidthHz: 4}
	assert.InDelta(t, s.AperiodicPower(10)*math.Pow(10, 0.4), s.PeakPower(peak), 1e-18)
}

func TestSynthesizeValidation(t *testing.T) {
	s := testSynth()
	peak := model.SpectralPeak{CenterFreqHz: 10, RelPowerDB: 0.4, BandwidthHz: 4}

	_, err := s.Synthesize(nil, peak, 100)
	assert.ErrorIs(t, err, ErrRandRequired)

	_, err = s.Synthesize(rand.New(rand.NewSource(1)), peak, 0)
	assert.ErrorIs(t, err, ErrInvalidLength)

	// Band edge at or below zero.
	bad := model.SpectralPeak{CenterFreqHz: 2, RelPowerDB: 0.4, BandwidthHz: 4}
	_, err = s.Synthesize(rand.New(rand.NewSource(1)), bad, 100)
	assert.ErrorIs(t, err, dsp.ErrInvalidBand)

	// Band edge at or above Nyquist.
	bad = model.SpectralPeak{CenterFreqHz: 124, RelPowerDB: 0.4, BandwidthHz: 4}
	_, err = s.Synthesize(rand.New(rand.NewSource(1)), bad, 100)
	assert.ErrorIs(t, err, dsp.ErrInvalidBand)
}

func TestSynthesizeAmplitudeTracksPeakPower(t *testing.T) {
	s := testSynth()
	full := model.SpectralPeak{CenterFreqHz: 10, RelPowerDB: 0.4, BandwidthHz: 4}
	reduced := model.SpectralPeak{CenterFreqHz: 10, RelPowerDB: 0.2, BandwidthHz: 4}

	// Identical seeds give identical underlying noise, so the two outputs
	// differ exactly by the ratio of peak powers.
	a, err := s.Synthesize(rand.New(rand.NewSource(42)), full, 2000)
	require.NoError(t, err)
	b, err := s.Synthesize(rand.New(rand.NewSource(42)), reduced, 2000)
	require.NoError(t, err)

	ratio := s.PeakPower(full) / s.PeakPower(reduced)
	for i := range a {
		if math.Abs(b[i]) < 1e-18 {
			continue
		}
		require.InDelta(t, ratio, a[i]/b[i], 1e-9)
	}
}

func TestSynthesizeIsSeedDeterministic(t *testing.T) {
	s := testSynth()
	peak := model.SpectralPeak{CenterFreqHz: 10, RelPowerDB: 0.4, BandwidthHz: 4}

	a, err := s.Synthesize(rand.New(rand.NewSource(5)), peak, 500)
	require.NoError(t, err)
	b, err := s.Synthesize(rand.New(rand.NewSource(5)), peak, 500)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := s.Synthesize(rand.New(rand.NewSource(6)), peak, 500)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}
