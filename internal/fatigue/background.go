package fatigue

import (
	"fmt"
	"math/rand"

	"neurosim/internal/model"
	"neurosim/internal/source"
)

// Spatial convention for the background rhythms: parietal alpha, frontal
// theta, bilaterally.
const (
	alphaRegion = "G_and_S_paracentral"
	alphaExtent = 5
	thetaRegion = "G_front_sup"
	thetaExtent = 10
)

// Background wires basal and fatigue-condition rhythms into a session
// recording. Each rhythm's labels are resolved once and reused for both the
// alert and fatigue segments.
type Background struct {
	Locator source.Locator
	Sink    source.Sink
	Gen     Generator

	FatigueStart float64
	Dynamic      Dynamic
	AlphaScale   float64
	ThetaScale   float64
}

// Apply splits the session at the fatigue onset, registers basal alpha and
// theta over the alert prefix against the alert marker (class 4), and the
// power-modulated versions over the fatigue suffix against the fatigue-onset
// marker (class 5). The same drawn waveform feeds both hemispheres of a
// rhythm, mirroring a shared bilateral generator.
func (b *Background) Apply(rng *rand.Rand, nTimes int) error {
	if rng == nil {
		return ErrRandRequired
	}
	alertN, fatigueN, err := Split(b.FatigueStart, nTimes)
	if err != nil {
		return err
	}

	alphaHandles, err := b.resolvePair(alphaRegion, alphaExtent)
	if err != nil {
		return err
	}
	thetaHandles, err := b.resolvePair(thetaRegion, thetaExtent)
	if err != nil {
		return err
	}

	alertEvent := model.Event{Onset: 0, Class: model.ClassAlertMarker}
	fatigueEvent := model.Event{Onset: alertN, Class: model.ClassFatigueMarker}

	// Alert segment: basal rhythms, no envelope.
	alpha, err := b.Gen.Alpha(rng, alertN, b.Dynamic, 1)
	if err != nil {
		return fmt.Errorf("basal alpha: %w", err)
	}
	if err := b.registerPair(alphaHandles, alpha, alertEvent); err != nil {
		return err
	}
	theta, err := b.Gen.Theta(rng, alertN, b.Dynamic, 1)
	if err != nil {
		return fmt.Errorf("basal theta: %w", err)
	}
	if err := b.registerPair(thetaHandles, theta, alertEvent); err != nil {
		return err
	}

	// Fatigue segment: same processes under the configured power envelope.
	alpha, err = b.Gen.Alpha(rng, fatigueN, b.Dynamic, b.AlphaScale)
	if err != nil {
		return fmt.Errorf("fatigue alpha: %w", err)
	}
	if err := b.registerPair(alphaHandles, alpha, fatigueEvent); err != nil {
		return err
	}
	theta, err = b.Gen.Theta(rng, fatigueN, b.Dynamic, b.ThetaScale)
	if err != nil {
		return fmt.Errorf("fatigue theta: %w", err)
	}
	return b.registerPair(thetaHandles, theta, fatigueEvent)
}

func (b *Background) resolvePair(region string, extent int) ([2]source.Handle, error) {
	var pair [2]source.Handle
	for i, hemi := range []string{"lh", "rh"} {
		h, err := b.Locator.Resolve(region, hemi, extent)
		if err != nil {
			return pair, fmt.Errorf("resolve %s-%s: %w", region, hemi, err)
		}
		pair[i] = h
	}
	return pair, nil
}

func (b *Background) registerPair(pair [2]source.Handle, waveform []float64, ev model.Event) error {
	for _, h := range pair {
		if err := b.Sink.Register(h, waveform, ev); err != nil {
			return fmt.Errorf("register %s-%s: %w", h.Region, h.Hemisphere, err)
		}
	}
	return nil
}
