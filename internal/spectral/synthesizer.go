package spectral

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"neurosim/internal/dsp"
	"neurosim/internal/model"
)

// sourceAmplitude converts the model's power at the peak into a plausible
// dipole source strength, roughly Ampere-meter.
const sourceAmplitude = 1e-4

var (
	ErrRandRequired  = errors.New("random source is required")
	ErrInvalidLength = errors.New("sample count must be > 0")
)

// Synthesizer turns a spectral model (aperiodic background plus one
// oscillatory peak) into band-limited, power-calibrated source activity.
type Synthesizer struct {
	SampleRate float64
	Aperiodic  model.Aperiodic
}

// AperiodicPower evaluates the 1/f power law at freqHz.
func (s Synthesizer) AperiodicPower(freqHz float64) float64 {
	return math.Pow(10, s.Aperiodic.Offset/2) / math.Pow(freqHz, s.Aperiodic.Exponent)
}

// PeakPower is the total power at the peak's center frequency: the aperiodic
// level raised by the peak's relative power.
func (s Synthesizer) PeakPower(peak model.SpectralPeak) float64 {
	return s.AperiodicPower(peak.CenterFreqHz) * math.Pow(10, peak.RelPowerDB)
}

// Synthesize draws n standard-normal samples from rng, bandpass-filters them
// around the peak's center frequency and scales the result to the power the
// spectral model prescribes. The output is not normalized to unit variance;
// its amplitude is fully determined by the aperiodic and peak parameters.
func (s Synthesizer) Synthesize(rng *rand.Rand, peak model.SpectralPeak, n int) ([]float64, error) {
	if rng == nil {
		return nil, ErrRandRequired
	}
	if n <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLength, n)
	}

	low := peak.CenterFreqHz - peak.BandwidthHz/2
	high := peak.CenterFreqHz + peak.BandwidthHz/2
	sos, err := dsp.ButterBandpass(low, high, s.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("peak at %g Hz: %w", peak.CenterFreqHz, err)
	}

	noise := make([]float64, n)
	for i := range noise {
		noise[i] = rng.NormFloat64()
	}

	activity := sos.Filter(noise)
	dsp.Scale(activity, sourceAmplitude*s.PeakPower(peak))
	return activity, nil
}
