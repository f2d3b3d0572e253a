// Package schedule builds the randomized trial/event timeline of a session:
// a balanced, uniformly shuffled sequence of task trials with an optional
// leading baseline segment and optional inter-trial rest segments.
package schedule

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"neurosim/internal/model"
)

var (
	ErrRandRequired = errors.New("random source is required")
	ErrNoTasks      = errors.New("at least one task is required")
	ErrTrialCount   = errors.New("trial count must be > 0")
	ErrSampleRate   = errors.New("sample rate must be > 0")
	ErrDuration     = errors.New("segment duration must be > 0 ms")
)

// TaskSpec pairs a task with its trial duration. Class ids follow the slice
// order the specs were declared in.
type TaskSpec struct {
	Task       model.Task
	DurationMS float64
}

// Config parameterizes one timeline.
type Config struct {
	Tasks      []TaskSpec
	NTrials    int
	SampleRate float64

	IncludeBaseline bool
	BaselineMS      float64

	IncludeRest bool
	RestMS      float64
}

// Samples converts a duration in milliseconds to a sample count. Each
// segment is rounded independently against the integer sample clock, so
// rounding error never accumulates across segments.
func Samples(durationMS, sampleRate float64) int {
	return int(math.Round(durationMS / 1000 * sampleRate))
}

// Build produces the event timeline. Each class appears NTrials/len(Tasks)
// times; the order is a full uniform permutation, so consecutive repeats of
// one class are possible. Onsets are partial sums of the per-segment sample
// counts and therefore strictly increase.
func Build(rng *rand.Rand, cfg Config) ([]model.Event, error) {
	if rng == nil {
		return nil, ErrRandRequired
	}
	if len(cfg.Tasks) == 0 {
		return nil, ErrNoTasks
	}
	if cfg.NTrials <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrTrialCount, cfg.NTrials)
	}
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: %g", ErrSampleRate, cfg.SampleRate)
	}
	for _, spec := range cfg.Tasks {
		if spec.DurationMS <= 0 {
			return nil, fmt.Errorf("%w: task %s", ErrDuration, spec.Task)
		}
	}
	if cfg.IncludeBaseline && cfg.BaselineMS <= 0 {
		return nil, fmt.Errorf("%w: baseline", ErrDuration)
	}
	if cfg.IncludeRest && cfg.RestMS <= 0 {
		return nil, fmt.Errorf("%w: rest", ErrDuration)
	}

	nClasses := len(cfg.Tasks)
	perClass := cfg.NTrials / nClasses
	nTrials := perClass * nClasses

	classes := make([]int, 0, nTrials)
	for rep := 0; rep < perClass; rep++ {
		for class := 0; class < nClasses; class++ {
			classes = append(classes, class)
		}
	}
	rng.Shuffle(len(classes), func(i, j int) {
		classes[i], classes[j] = classes[j], classes[i]
	})

	capacity := nTrials
	if cfg.IncludeBaseline {
		capacity++
	}
	if cfg.IncludeRest {
		capacity += nTrials
	}
	events := make([]model.Event, 0, capacity)

	clock := 0
	if cfg.IncludeBaseline {
		events = append(events, model.Event{Onset: clock, Class: model.BaselineClass(nClasses)})
		clock += Samples(cfg.BaselineMS, cfg.SampleRate)
	}
	for _, class := range classes {
		events = append(events, model.Event{Onset: clock, Class: class})
		clock += Samples(cfg.Tasks[class].DurationMS, cfg.SampleRate)

		if cfg.IncludeRest {
			events = append(events, model.Event{Onset: clock, Class: model.RestClass(nClasses)})
			clock += Samples(cfg.RestMS, cfg.SampleRate)
		}
	}
	return events, nil
}

// TotalSamples is the full session length implied by a timeline: the last
// event's onset plus that event's duration in samples.
func TotalSamples(events []model.Event, cfg Config) int {
	if len(events) == 0 {
		return 0
	}
	last := events[len(events)-1]
	nClasses := len(cfg.Tasks)
	switch {
	case last.Class < nClasses:
		return last.Onset + Samples(cfg.Tasks[last.Class].DurationMS, cfg.SampleRate)
	case last.Class == model.BaselineClass(nClasses):
		return last.Onset + Samples(cfg.BaselineMS, cfg.SampleRate)
	default:
		return last.Onset + Samples(cfg.RestMS, cfg.SampleRate)
	}
}
