// Package epochs slices continuous per-label, per-task activity into
// fixed-length trial epochs, optionally substituting induced "failed"
// (non-desynchronizing) trials.
package epochs

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"neurosim/internal/erd"
	"neurosim/internal/model"
	"neurosim/internal/schedule"
	"neurosim/internal/spectral"
)

var (
	ErrRandRequired        = errors.New("random source is required")
	ErrNoEvents            = errors.New("event timeline is empty")
	ErrNoTasks             = errors.New("at least one task is required")
	ErrTrialCount          = errors.New("trial count must be > 0")
	ErrFailedFraction      = errors.New("failed-trial fraction must be in (0, 1)")
	ErrFailedTrialsTaskSet = errors.New("failure injection requires exactly the MI/left and MI/right classes")
	ErrInsufficientEvents  = errors.New("not enough motor-imagery events for the requested failed-trial count")
	ErrShortActivity       = errors.New("continuous activity shorter than the epoch span")
)

// Config parameterizes one epoching pass.
type Config struct {
	Tasks        []model.Task
	MIDurationMS float64
	SampleRate   float64
	NTrials      int

	// Workers bounds the synthesis fan-out across (label, task) units;
	// values < 1 mean sequential. Seed roots the per-unit random streams,
	// which are derived deterministically so results do not depend on
	// worker scheduling.
	Workers int
	Seed    int64
}

// BadTrials flags events whose trial was replaced by non-modulated activity.
// It is aligned with the event timeline the epochs were built against.
type BadTrials []bool

// Count returns the number of flagged events.
func (b BadTrials) Count() int {
	n := 0
	for _, bad := range b {
		if bad {
			n++
		}
	}
	return n
}

// Indices returns the flagged event indices in ascending order.
func (b BadTrials) Indices() []int {
	var out []int
	for i, bad := range b {
		if bad {
			out = append(out, i)
		}
	}
	return out
}

// Build epochs every (label, task) pair of the table: the continuous signal
// is synthesized as len(Tasks) back-to-back homogeneous blocks and cut into
// NTrials/len(Tasks) contiguous trials of round(MIDurationMS/1000*SampleRate)
// samples. Association with the randomized timeline is by class identity and
// trial index, never by absolute sample offset.
func Build(synth spectral.Synthesizer, table *erd.Table, events []model.Event, cfg Config) (model.ActivitySet, error) {
	dims, err := measure(events, cfg)
	if err != nil {
		return nil, err
	}
	waves, err := synthesizeAll(synth, table, cfg, dims, false)
	if err != nil {
		return nil, err
	}
	return slice(table, cfg, dims, waves, nil, nil), nil
}

// BuildWithFailures additionally replaces a randomly chosen subset of
// motor-imagery trials with activity synthesized at the non-reduced power
// level, modeling trials where the subject failed to desynchronize. The
// substitution only affects labels whose task-specific peak was the
// desynchronized one; rest and baseline segments are never eligible.
func BuildWithFailures(rng *rand.Rand, synth spectral.Synthesizer, table *erd.Table, events []model.Event, cfg Config, pFailed float64) (model.ActivitySet, BadTrials, error) {
	if rng == nil {
		return nil, nil, ErrRandRequired
	}
	if pFailed <= 0 || pFailed >= 1 {
		return nil, nil, fmt.Errorf("%w: %g", ErrFailedFraction, pFailed)
	}
	dims, err := measure(events, cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := checkMIClasses(cfg.Tasks); err != nil {
		return nil, nil, err
	}

	var eligible []int
	for i, ev := range events {
		if ev.Class == 0 || ev.Class == 1 {
			eligible = append(eligible, i)
		}
	}
	nBad := int(math.Round(pFailed * float64(cfg.NTrials) / 2))
	if nBad > len(eligible) {
		return nil, nil, fmt.Errorf("%w: requested %d, eligible %d", ErrInsufficientEvents, nBad, len(eligible))
	}

	bad := make(BadTrials, len(events))
	for _, pick := range rng.Perm(len(eligible))[:nBad] {
		bad[eligible[pick]] = true
	}

	waves, err := synthesizeAll(synth, table, cfg, dims, true)
	if err != nil {
		return nil, nil, err
	}
	return slice(table, cfg, dims, waves, events, bad), bad, nil
}

// dimensions are the derived sizes shared by both build modes.
type dimensions struct {
	samplesTrial int
	samplesClass int
	trialsClass  int
}

func measure(events []model.Event, cfg Config) (dimensions, error) {
	if len(events) == 0 {
		return dimensions{}, ErrNoEvents
	}
	if len(cfg.Tasks) == 0 {
		return dimensions{}, ErrNoTasks
	}
	if cfg.NTrials <= 0 {
		return dimensions{}, fmt.Errorf("%w: %d", ErrTrialCount, cfg.NTrials)
	}

	d := dimensions{samplesTrial: schedule.Samples(cfg.MIDurationMS, cfg.SampleRate)}
	nSamples := events[len(events)-1].Onset + d.samplesTrial
	d.samplesClass = nSamples / len(cfg.Tasks)
	d.trialsClass = cfg.NTrials / len(cfg.Tasks)
	if d.trialsClass*d.samplesTrial > d.samplesClass {
		return dimensions{}, fmt.Errorf("%w: need %d samples per class, have %d",
			ErrShortActivity, d.trialsClass*d.samplesTrial, d.samplesClass)
	}
	return d, nil
}

func checkMIClasses(tasks []model.Task) error {
	miClasses := map[int]model.Task{}
	for class, task := range tasks {
		if task == model.TaskMILeft || task == model.TaskMIRight {
			miClasses[class] = task
		}
	}
	if len(miClasses) != 2 {
		return fmt.Errorf("%w: got %d motor-imagery tasks", ErrFailedTrialsTaskSet, len(miClasses))
	}
	if _, ok := miClasses[0]; !ok {
		return fmt.Errorf("%w: MI classes must be 0 and 1", ErrFailedTrialsTaskSet)
	}
	if _, ok := miClasses[1]; !ok {
		return fmt.Errorf("%w: MI classes must be 0 and 1", ErrFailedTrialsTaskSet)
	}
	return nil
}

// unitWaves holds the continuous activity of one (label, task) unit. alt is
// only present in failure mode for desynchronized cells.
type unitWaves struct {
	std []float64
	alt []float64
}

// unitSeed derives an independent, reproducible stream seed for the i-th
// (label, task) unit. The stride is an arbitrary large prime so neighboring
// units never share a source.
func unitSeed(root int64, i int) int64 {
	return root + int64(i+1)*15485863
}

func synthesizeAll(synth spectral.Synthesizer, table *erd.Table, cfg Config, dims dimensions, withAlt bool) (map[model.LabelTask]unitWaves, error) {
	type unit struct {
		idx   int
		label string
		task  model.Task
		entry erd.Entry
	}
	labels := table.Labels()
	units := make([]unit, 0, len(labels)*len(cfg.Tasks))
	for _, label := range labels {
		for _, task := range cfg.Tasks {
			entry, ok := table.Get(label, task)
			if !ok {
				return nil, fmt.Errorf("peak table has no entry for %s/%s", label, task)
			}
			units = append(units, unit{idx: len(units), label: label, task: task, entry: entry})
		}
	}

	type result struct {
		idx   int
		waves unitWaves
		err   error
	}

	workerCount := cfg.Workers
	if workerCount < 1 {
		workerCount = 1
	}
	if workerCount > len(units) {
		workerCount = len(units)
	}

	jobs := make(chan unit)
	results := make(chan result, len(units))

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for w := 0; w < workerCount; w++ {
		go func() {
			defer wg.Done()
			for u := range jobs {
				rng := rand.New(rand.NewSource(unitSeed(cfg.Seed, u.idx)))
				var waves unitWaves
				var err error
				waves.std, err = synth.Synthesize(rng, u.entry.Peak, dims.samplesClass)
				if err == nil && withAlt && u.entry.Desynchronized {
					waves.alt, err = synth.Synthesize(rng, u.entry.RestoredPeak(), dims.samplesClass)
				}
				if err != nil {
					err = fmt.Errorf("%s/%s: %w", u.label, u.task, err)
				}
				results <- result{idx: u.idx, waves: waves, err: err}
			}
		}()
	}

	go func() {
		for _, u := range units {
			jobs <- u
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	collected := make([]unitWaves, len(units))
	var firstErr error
	for res := range results {
		if res.err != nil && firstErr == nil {
			firstErr = res.err
		}
		collected[res.idx] = res.waves
	}
	if firstErr != nil {
		return nil, firstErr
	}

	out := make(map[model.LabelTask]unitWaves, len(units))
	for _, u := range units {
		out[model.LabelTask{Label: u.label, Task: u.task}] = collected[u.idx]
	}
	return out, nil
}

func slice(table *erd.Table, cfg Config, dims dimensions, waves map[model.LabelTask]unitWaves, events []model.Event, bad BadTrials) model.ActivitySet {
	// Per-class bad flags in event order: the k-th event of a class governs
	// the k-th trial of that class.
	badByClass := map[int][]bool{}
	if bad != nil {
		for i, ev := range events {
			if ev.Class < len(cfg.Tasks) {
				badByClass[ev.Class] = append(badByClass[ev.Class], bad[i])
			}
		}
	}

	set := make(model.ActivitySet, len(waves))
	for _, label := range table.Labels() {
		byTask := make(map[model.Task]model.EpochedActivity, len(cfg.Tasks))
		for class, task := range cfg.Tasks {
			uw := waves[model.LabelTask{Label: label, Task: task}]
			epoched := make(model.EpochedActivity, dims.trialsClass)
			flags := badByClass[class]
			for t := 0; t < dims.trialsClass; t++ {
				src := uw.std
				if uw.alt != nil && t < len(flags) && flags[t] {
					src = uw.alt
				}
				epoched[t] = src[t*dims.samplesTrial : (t+1)*dims.samplesTrial]
			}
			byTask[task] = epoched
		}
		set[label] = byTask
	}
	return set
}
