// Package fatigue produces basal theta and alpha background rhythms and the
// time-varying power modulation that models mental-fatigue onset: elevated
// frontal theta and parietal alpha over the tail of a session.
package fatigue

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"neurosim/internal/dsp"
)

// backgroundAmplitude fixes the physical units of the basal rhythms,
// keeping them well below the task-locked source strengths.
const backgroundAmplitude = 1e-8

// Band limits and pre-filter DC bias of the two modeled rhythms.
const (
	thetaLowHz  = 4.0
	thetaHighHz = 8.0
	thetaMean   = 3.5

	alphaLowHz  = 8.0
	alphaHighHz = 13.0
	alphaMean   = 4.0
)

// Dynamic selects how fatigue-condition power grows over the segment.
type Dynamic string

const (
	// DynamicLinear ramps the scale from 0 at the segment start to the
	// full factor at its last sample.
	DynamicLinear Dynamic = "linear"
	// DynamicConstant applies the full factor uniformly.
	DynamicConstant Dynamic = "constant"
)

var (
	ErrRandRequired   = errors.New("random source is required")
	ErrInvalidLength  = errors.New("sample count must be > 0")
	ErrUnknownDynamic = errors.New("unknown increase dynamic")
	ErrFatigueStart   = errors.New("fatigue start must be in (0, 1)")
)

// Generator synthesizes band-limited background rhythms at a fixed rate.
type Generator struct {
	SampleRate float64
}

// Theta generates n samples of theta-band (4-8 Hz) activity. A scale of 1
// yields the basal process; any other scale applies the chosen envelope.
func (g Generator) Theta(rng *rand.Rand, n int, dynamic Dynamic, scale float64) ([]float64, error) {
	return g.band(rng, n, thetaLowHz, thetaHighHz, thetaMean, dynamic, scale)
}

// Alpha generates n samples of alpha-band (8-13 Hz) activity.
func (g Generator) Alpha(rng *rand.Rand, n int, dynamic Dynamic, scale float64) ([]float64, error) {
	return g.band(rng, n, alphaLowHz, alphaHighHz, alphaMean, dynamic, scale)
}

func (g Generator) band(rng *rand.Rand, n int, lowHz, highHz, mean float64, dynamic Dynamic, scale float64) ([]float64, error) {
	if rng == nil {
		return nil, ErrRandRequired
	}
	if n <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLength, n)
	}

	sos, err := dsp.ButterBandpass(lowHz, highHz, g.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("band [%g, %g] Hz: %w", lowHz, highHz, err)
	}

	// Gaussian noise around a fixed DC bias; the bandpass removes the bias
	// but its step response shapes the onset transient the model expects.
	noise := make([]float64, n)
	for i := range noise {
		noise[i] = mean + rng.NormFloat64()
	}
	activity := sos.Filter(noise)

	if scale != 1 {
		switch dynamic {
		case DynamicLinear:
			dsp.Ramp(activity, scale)
		case DynamicConstant:
			dsp.Scale(activity, scale)
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownDynamic, dynamic)
		}
	}
	dsp.Scale(activity, backgroundAmplitude)
	return activity, nil
}

// Split divides a session of nTimes samples into an alert prefix and a
// fatigue suffix at round(fatigueStart*nTimes). The two lengths always sum
// to nTimes exactly.
func Split(fatigueStart float64, nTimes int) (alert, fatigued int, err error) {
	if fatigueStart <= 0 || fatigueStart >= 1 {
		return 0, 0, fmt.Errorf("%w: %g", ErrFatigueStart, fatigueStart)
	}
	if nTimes <= 0 {
		return 0, 0, fmt.Errorf("%w: %d", ErrInvalidLength, nTimes)
	}
	alert = int(math.Round(fatigueStart * float64(nTimes)))
	return alert, nTimes - alert, nil
}
