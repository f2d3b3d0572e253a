// Package source defines the two narrow contracts the generation engine
// hands its output through: a locator that turns anatomical region names
// into opaque source handles, and a sink that accumulates per-source
// activity into a continuous session recording. Real forward modeling lives
// behind these interfaces; the in-process implementations here stand in for
// it so the engine runs end to end.
package source

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"neurosim/internal/model"
)

var (
	ErrUnknownRegion   = errors.New("region not present in parcellation")
	ErrUnknownHemi     = errors.New("hemisphere must be lh or rh")
	ErrInvalidExtent   = errors.New("extent must be > 0")
	ErrSpanOutOfRange  = errors.New("waveform span exceeds the recording length")
	ErrEmptyWaveform   = errors.New("waveform is empty")
	ErrNegativeOnset   = errors.New("event onset must be >= 0")
	ErrRecordingLength = errors.New("recording length must be > 0")
)

// Handle identifies a resolved group of source locations. It is comparable
// so sinks can key accumulation buffers by it.
type Handle struct {
	Region     string
	Hemisphere string
	Extent     int
}

// Locator resolves an anatomical region name and spatial extent to a source
// handle. Resolution fails for regions absent from the parcellation.
type Locator interface {
	Resolve(region, hemisphere string, extent int) (Handle, error)
}

// Sink accepts per-source waveforms tied to timeline events and accumulates
// them, additively, into a forward-projected continuous recording.
type Sink interface {
	Register(h Handle, waveform []float64, ev model.Event) error
}

// StaticLocator resolves against a fixed set of region names, mirroring a
// cortical parcellation lookup without any geometry.
type StaticLocator struct {
	regions map[string]struct{}
}

// DefaultRegions lists the parcellation regions the simulation addresses.
func DefaultRegions() []string {
	return []string{
		"G_precentral",
		"G_and_S_paracentral",
		"G_front_sup",
	}
}

// NewStaticLocator builds a locator over the given region names.
func NewStaticLocator(regions []string) *StaticLocator {
	l := &StaticLocator{regions: make(map[string]struct{}, len(regions))}
	for _, r := range regions {
		l.regions[r] = struct{}{}
	}
	return l
}

func (l *StaticLocator) Resolve(region, hemisphere string, extent int) (Handle, error) {
	if _, ok := l.regions[region]; !ok {
		return Handle{}, fmt.Errorf("%w: %s", ErrUnknownRegion, region)
	}
	if hemisphere != "lh" && hemisphere != "rh" {
		return Handle{}, fmt.Errorf("%w: %q", ErrUnknownHemi, hemisphere)
	}
	if extent <= 0 {
		return Handle{}, fmt.Errorf("%w: %d", ErrInvalidExtent, extent)
	}
	return Handle{Region: region, Hemisphere: hemisphere, Extent: extent}, nil
}

// MemorySink accumulates registered activity onto one timeline per handle.
// Overlapping registrations sum, the way a linear forward projection would
// combine simultaneous sources.
type MemorySink struct {
	nTimes int

	mu       sync.Mutex
	channels map[Handle][]float64
	events   []model.Event
}

// NewMemorySink creates a sink for a session of nTimes samples.
func NewMemorySink(nTimes int) (*MemorySink, error) {
	if nTimes <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrRecordingLength, nTimes)
	}
	return &MemorySink{nTimes: nTimes, channels: make(map[Handle][]float64)}, nil
}

// NTimes returns the session length in samples.
func (s *MemorySink) NTimes() int { return s.nTimes }

// Register adds waveform to the handle's channel starting at the event's
// onset. The span must fit inside the recording.
func (s *MemorySink) Register(h Handle, waveform []float64, ev model.Event) error {
	if len(waveform) == 0 {
		return ErrEmptyWaveform
	}
	if ev.Onset < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeOnset, ev.Onset)
	}
	if ev.Onset+len(waveform) > s.nTimes {
		return fmt.Errorf("%w: onset %d + %d samples > %d", ErrSpanOutOfRange, ev.Onset, len(waveform), s.nTimes)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channels[h]
	if !ok {
		ch = make([]float64, s.nTimes)
		s.channels[h] = ch
	}
	for i, v := range waveform {
		ch[ev.Onset+i] += v
	}
	s.events = append(s.events, ev)
	return nil
}

// Channel returns a copy of one handle's accumulated timeline.
func (s *MemorySink) Channel(h Handle) ([]float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channels[h]
	if !ok {
		return nil, false
	}
	out := make([]float64, len(ch))
	copy(out, ch)
	return out, true
}

// Summaries reports per-channel statistics in a stable handle order.
func (s *MemorySink) Summaries() []model.RecordingSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	handles := make([]Handle, 0, len(s.channels))
	for h := range s.channels {
		handles = append(handles, h)
	}
	sort.Slice(handles, func(i, j int) bool {
		if handles[i].Region != handles[j].Region {
			return handles[i].Region < handles[j].Region
		}
		if handles[i].Hemisphere != handles[j].Hemisphere {
			return handles[i].Hemisphere < handles[j].Hemisphere
		}
		return handles[i].Extent < handles[j].Extent
	})

	out := make([]model.RecordingSummary, 0, len(handles))
	for _, h := range handles {
		ch := s.channels[h]
		var sumSq, absMax float64
		for _, v := range ch {
			sumSq += v * v
			if a := math.Abs(v); a > absMax {
				absMax = a
			}
		}
		out = append(out, model.RecordingSummary{
			Region:     h.Region,
			Hemisphere: h.Hemisphere,
			Extent:     h.Extent,
			Samples:    len(ch),
			RMS:        math.Sqrt(sumSq / float64(len(ch))),
			AbsMax:     absMax,
		})
	}
	return out
}
