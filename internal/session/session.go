// Package session drives one full simulation pass: it schedules the trial
// timeline, resolves the desynchronization peak table, synthesizes and epochs
// per-label activity, injects failed trials, registers everything with the
// source-activity sink and layers the fatigue background on top.
package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"neurosim/internal/epochs"
	"neurosim/internal/erd"
	"neurosim/internal/fatigue"
	"neurosim/internal/model"
	"neurosim/internal/schedule"
	"neurosim/internal/source"
	"neurosim/internal/spectral"
)

// miExtent is the spatial extent used for the hand motor cortex labels.
const miExtent = 30

// Default segment durations and fatigue scales, matching the modeled
// experimental protocol.
const (
	defaultBaselineMS = 5000
	defaultRestMS     = 2000
	defaultAlphaScale = 45
	defaultThetaScale = 52
)

// Stream offsets applied to the root seed so every stochastic stage owns an
// independent, reproducible generator.
const (
	streamSchedule  = 1
	streamBadTrials = 2
	streamFatigue   = 3
)

var (
	ErrNoTasks       = errors.New("at least one task is required")
	ErrDuplicateTask = errors.New("duplicate task")
	ErrLabelFormat   = errors.New("label must be <region>-<lh|rh>")
	ErrNoPeakParams  = errors.New("peak parameter table is empty")
)

// Config wires a Simulator's collaborators.
type Config struct {
	Locator source.Locator
	// NewSink builds the activity sink once the session length is known.
	// Nil defaults to an in-memory accumulating sink.
	NewSink func(nTimes int) (source.Sink, error)
	Logger  *zerolog.Logger
	Workers int
}

// Request carries every user parameter of one simulation run.
type Request struct {
	RunID        string
	Tasks        []model.Task
	PeakParams   map[string]model.SpectralPeak
	Aperiodic    model.Aperiodic
	MIDurationMS float64
	SampleRate   float64
	NTrials      int
	Reduction    float64

	// PFailed > 0 enables failed-trial injection.
	PFailed float64

	IncludeBaseline bool
	BaselineMS      float64
	IncludeRest     bool
	RestMS          float64

	// IncludeFatigue adds the basal background rhythms and their
	// fatigue-condition power drift.
	IncludeFatigue bool
	FatigueStart   float64
	FatigueDynamic fatigue.Dynamic
	AlphaScale     float64
	ThetaScale     float64

	Seed int64
}

// Result is the externally visible outcome of one run.
type Result struct {
	RunID     string
	Events    []model.Event
	Activity  model.ActivitySet
	BadTrials epochs.BadTrials
	NTimes    int
	Recording []model.RecordingSummary
	Elapsed   time.Duration
}

// Simulator executes simulation runs against a fixed set of collaborators.
type Simulator struct {
	cfg Config
}

func NewSimulator(cfg Config) *Simulator {
	if cfg.Locator == nil {
		cfg.Locator = source.NewStaticLocator(source.DefaultRegions())
	}
	if cfg.NewSink == nil {
		cfg.NewSink = func(nTimes int) (source.Sink, error) {
			return source.NewMemorySink(nTimes)
		}
	}
	if cfg.Logger == nil {
		nop := zerolog.Nop()
		cfg.Logger = &nop
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Simulator{cfg: cfg}
}

// Run executes the whole generation pass. It aborts on the first error; no
// partial results are returned.
func (s *Simulator) Run(ctx context.Context, req Request) (Result, error) {
	started := time.Now()
	req = withDefaults(req)
	if err := validateTasks(req.Tasks); err != nil {
		return Result{}, err
	}
	if len(req.PeakParams) == 0 {
		return Result{}, ErrNoPeakParams
	}

	logger := s.cfg.Logger.With().Str("run_id", req.RunID).Logger()

	// When: the randomized trial/event timeline.
	specs := make([]schedule.TaskSpec, len(req.Tasks))
	for i, task := range req.Tasks {
		specs[i] = schedule.TaskSpec{Task: task, DurationMS: req.MIDurationMS}
	}
	schedCfg := schedule.Config{
		Tasks:           specs,
		NTrials:         req.NTrials,
		SampleRate:      req.SampleRate,
		IncludeBaseline: req.IncludeBaseline,
		BaselineMS:      req.BaselineMS,
		IncludeRest:     req.IncludeRest,
		RestMS:          req.RestMS,
	}
	events, err := schedule.Build(rand.New(rand.NewSource(req.Seed+streamSchedule)), schedCfg)
	if err != nil {
		return Result{}, fmt.Errorf("schedule: %w", err)
	}
	nTimes := schedule.TotalSamples(events, schedCfg)
	logger.Debug().Int("events", len(events)).Int("n_times", nTimes).Msg("timeline built")

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	// What: desynchronization table and epoched per-label activity.
	resolver, err := erd.NewResolver(req.Reduction)
	if err != nil {
		return Result{}, err
	}
	table, err := resolver.Resolve(req.Tasks, req.PeakParams)
	if err != nil {
		return Result{}, fmt.Errorf("resolve peaks: %w", err)
	}

	synth := spectral.Synthesizer{SampleRate: req.SampleRate, Aperiodic: req.Aperiodic}
	epochCfg := epochs.Config{
		Tasks:        req.Tasks,
		MIDurationMS: req.MIDurationMS,
		SampleRate:   req.SampleRate,
		NTrials:      req.NTrials,
		Workers:      s.cfg.Workers,
		Seed:         req.Seed,
	}

	var activity model.ActivitySet
	var bad epochs.BadTrials
	if req.PFailed > 0 {
		badRNG := rand.New(rand.NewSource(req.Seed + streamBadTrials))
		activity, bad, err = epochs.BuildWithFailures(badRNG, synth, table, events, epochCfg, req.PFailed)
	} else {
		activity, err = epochs.Build(synth, table, events, epochCfg)
	}
	if err != nil {
		return Result{}, fmt.Errorf("epochs: %w", err)
	}
	logger.Debug().Int("labels", len(activity)).Int("bad_trials", bad.Count()).Msg("activity epoched")

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	// Where: hand the epoched activity and background rhythms to the sink.
	sink, err := s.cfg.NewSink(nTimes)
	if err != nil {
		return Result{}, fmt.Errorf("sink: %w", err)
	}
	if err := s.registerActivity(sink, req, events, activity); err != nil {
		return Result{}, err
	}

	if req.IncludeFatigue {
		background := &fatigue.Background{
			Locator:      s.cfg.Locator,
			Sink:         sink,
			Gen:          fatigue.Generator{SampleRate: req.SampleRate},
			FatigueStart: req.FatigueStart,
			Dynamic:      req.FatigueDynamic,
			AlphaScale:   req.AlphaScale,
			ThetaScale:   req.ThetaScale,
		}
		if err := background.Apply(rand.New(rand.NewSource(req.Seed+streamFatigue)), nTimes); err != nil {
			return Result{}, fmt.Errorf("fatigue background: %w", err)
		}
	}

	result := Result{
		RunID:     req.RunID,
		Events:    events,
		Activity:  activity,
		BadTrials: bad,
		NTimes:    nTimes,
		Elapsed:   time.Since(started),
	}
	if summarizer, ok := sink.(interface{ Summaries() []model.RecordingSummary }); ok {
		result.Recording = summarizer.Summaries()
	}
	logger.Info().
		Int("events", len(events)).
		Int("n_times", nTimes).
		Int("channels", len(result.Recording)).
		Dur("elapsed", result.Elapsed).
		Msg("simulation complete")
	return result, nil
}

// registerActivity feeds every epoched trial to the sink against its event:
// the k-th event of a class carries the k-th trial of that class.
func (s *Simulator) registerActivity(sink source.Sink, req Request, events []model.Event, activity model.ActivitySet) error {
	for label, byTask := range activity {
		region, hemi, err := splitLabel(label)
		if err != nil {
			return err
		}
		handle, err := s.cfg.Locator.Resolve(region, hemi, miExtent)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", label, err)
		}

		trialIdx := make([]int, len(req.Tasks))
		for _, ev := range events {
			if ev.Class >= len(req.Tasks) {
				continue
			}
			task := req.Tasks[ev.Class]
			k := trialIdx[ev.Class]
			trialIdx[ev.Class]++
			epoched := byTask[task]
			if k >= len(epoched) {
				// Trailing trials dropped by integer division.
				continue
			}
			if err := sink.Register(handle, epoched[k], ev); err != nil {
				return fmt.Errorf("register %s/%s trial %d: %w", label, task, k, err)
			}
		}
	}
	return nil
}

func withDefaults(req Request) Request {
	if req.IncludeBaseline && req.BaselineMS == 0 {
		req.BaselineMS = defaultBaselineMS
	}
	if req.IncludeRest && req.RestMS == 0 {
		req.RestMS = defaultRestMS
	}
	if req.IncludeFatigue {
		if req.FatigueDynamic == "" {
			req.FatigueDynamic = fatigue.DynamicLinear
		}
		if req.AlphaScale == 0 {
			req.AlphaScale = defaultAlphaScale
		}
		if req.ThetaScale == 0 {
			req.ThetaScale = defaultThetaScale
		}
	}
	return req
}

func validateTasks(tasks []model.Task) error {
	if len(tasks) == 0 {
		return ErrNoTasks
	}
	seen := make(map[model.Task]struct{}, len(tasks))
	for _, task := range tasks {
		if _, dup := seen[task]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateTask, task)
		}
		seen[task] = struct{}{}
	}
	return nil
}

func splitLabel(label string) (region, hemisphere string, err error) {
	idx := strings.LastIndex(label, "-")
	if idx <= 0 || idx == len(label)-1 {
		return "", "", fmt.Errorf("%w: %q", ErrLabelFormat, label)
	}
	return label[:idx], label[idx+1:], nil
}
