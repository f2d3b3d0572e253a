// Package neurosim is the embedding surface of the simulator: a Client that
// runs simulations, persists their tables and exposes the stored runs.
package neurosim

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"neurosim/internal/fatigue"
	"neurosim/internal/model"
	"neurosim/internal/session"
	"neurosim/internal/stats"
	"neurosim/internal/storage"
)

const (
	defaultArtifactsDir = "artifacts"
	defaultExportsDir   = "exports"
	defaultDBPath       = "neurosim.db"
)

type Options struct {
	StoreKind    string
	DBPath       string
	ArtifactsDir string
	ExportsDir   string
	Workers      int
	Logger       *zerolog.Logger
}

type Client struct {
	store storage.Store
	sim   *session.Simulator

	artifactsDir string
	exportsDir   string
	workers      int

	initialized bool
}

// SimulateRequest carries the user parameters of one run. Zero values fall
// back to the two-class motor imagery protocol.
type SimulateRequest struct {
	RunID        string
	Tasks        []model.Task
	PeakParams   map[string]model.SpectralPeak
	Aperiodic    model.Aperiodic
	MIDurationMS float64
	SampleRate   float64
	NTrials      int
	Reduction    float64

	PFailed float64

	IncludeBaseline bool
	BaselineMS      float64
	IncludeRest     bool
	RestMS          float64

	IncludeFatigue bool
	FatigueStart   float64
	FatigueDynamic string
	AlphaScale     float64
	ThetaScale     float64

	Seed int64
}

type SimulateSummary struct {
	RunID        string
	ArtifactsDir string
	NEvents      int
	NTimes       int
	BadTrials    int
	Channels     int
	Elapsed      time.Duration
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID        string
	CreatedAtUTC string
	Tasks        int
	NTrials      int
	SampleRate   float64
	Seed         int64
	NEvents      int
	NTimes       int
	BadTrials    int
	Fatigue      bool
}

type EventsRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	artifactsDir := opts.ArtifactsDir
	if artifactsDir == "" {
		artifactsDir = defaultArtifactsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	workers := opts.Workers
	if workers < 1 {
		workers = 4
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:        store,
		sim:          session.NewSimulator(session.Config{Workers: workers, Logger: opts.Logger}),
		artifactsDir: artifactsDir,
		exportsDir:   exportsDir,
		workers:      workers,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	if c.initialized {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return err
	}
	c.initialized = true
	return nil
}

// Simulate runs one full generation pass, persists the run's tables and
// writes its artifacts directory.
func (c *Client) Simulate(ctx context.Context, req SimulateRequest) (SimulateSummary, error) {
	req = simulateDefaults(req)
	if err := c.Init(ctx); err != nil {
		return SimulateSummary{}, err
	}

	result, err := c.sim.Run(ctx, session.Request{
		RunID:           req.RunID,
		Tasks:           req.Tasks,
		PeakParams:      req.PeakParams,
		Aperiodic:       req.Aperiodic,
		MIDurationMS:    req.MIDurationMS,
		SampleRate:      req.SampleRate,
		NTrials:         req.NTrials,
		Reduction:       req.Reduction,
		PFailed:         req.PFailed,
		IncludeBaseline: req.IncludeBaseline,
		BaselineMS:      req.BaselineMS,
		IncludeRest:     req.IncludeRest,
		RestMS:          req.RestMS,
		IncludeFatigue:  req.IncludeFatigue,
		FatigueStart:    req.FatigueStart,
		FatigueDynamic:  fatigue.Dynamic(req.FatigueDynamic),
		AlphaScale:      req.AlphaScale,
		ThetaScale:      req.ThetaScale,
		Seed:            req.Seed,
	})
	if err != nil {
		return SimulateSummary{}, err
	}

	now := time.Now().UTC()
	badIndices := result.BadTrials.Indices()

	runDir, err := stats.WriteRunArtifacts(c.artifactsDir, stats.RunArtifacts{
		Config: stats.RunConfig{
			RunID:           req.RunID,
			Tasks:           req.Tasks,
			PeakParams:      req.PeakParams,
			Aperiodic:       req.Aperiodic,
			MIDurationMS:    req.MIDurationMS,
			SampleRate:      req.SampleRate,
			NTrials:         req.NTrials,
			Reduction:       req.Reduction,
			PFailed:         req.PFailed,
			IncludeBaseline: req.IncludeBaseline,
			BaselineMS:      req.BaselineMS,
			IncludeRest:     req.IncludeRest,
			RestMS:          req.RestMS,
			IncludeFatigue:  req.IncludeFatigue,
			FatigueStart:    req.FatigueStart,
			FatigueDynamic:  req.FatigueDynamic,
			AlphaScale:      req.AlphaScale,
			ThetaScale:      req.ThetaScale,
			Seed:            req.Seed,
			Workers:         c.workers,
		},
		Events:             result.Events,
		BadTrials:          badIndices,
		EpochSummaries:     stats.SummarizeEpochs(req.Tasks, result.Activity),
		RecordingSummaries: result.Recording,
	})
	if err != nil {
		return SimulateSummary{}, err
	}

	if err := stats.AppendRunIndex(c.artifactsDir, stats.RunIndexEntry{
		RunID:        req.RunID,
		Tasks:        len(req.Tasks),
		NTrials:      req.NTrials,
		SampleRate:   req.SampleRate,
		Seed:         req.Seed,
		NEvents:      len(result.Events),
		NTimes:       result.NTimes,
		BadTrials:    len(badIndices),
		Fatigue:      req.IncludeFatigue,
		CreatedAtUTC: now.Format(time.RFC3339Nano),
	}); err != nil {
		return SimulateSummary{}, err
	}

	record := model.RunRecord{
		VersionedRecord: model.VersionedRecord{
			SchemaVersion: storage.CurrentSchemaVersion,
			CodecVersion:  storage.CurrentCodecVersion,
		},
		ID:           req.RunID,
		CreatedAtUTC: now.Format(time.RFC3339Nano),
		Seed:         req.Seed,
		Tasks:        req.Tasks,
		NTrials:      req.NTrials,
		SampleRate:   req.SampleRate,
		MIDurationMS: req.MIDurationMS,
		Reduction:    req.Reduction,
		PFailed:      req.PFailed,
		FatigueStart: req.FatigueStart,
		NEvents:      len(result.Events),
		NTimes:       result.NTimes,
		ArtifactsDir: filepath.Clean(runDir),
	}
	if err := c.store.SaveRun(ctx, record); err != nil {
		return SimulateSummary{}, err
	}
	if err := c.store.SaveEvents(ctx, req.RunID, result.Events); err != nil {
		return SimulateSummary{}, err
	}
	if len(badIndices) > 0 {
		if err := c.store.SaveBadTrials(ctx, req.RunID, badIndices); err != nil {
			return SimulateSummary{}, err
		}
	}
	if len(result.Recording) > 0 {
		if err := c.store.SaveRecordingSummaries(ctx, req.RunID, result.Recording); err != nil {
			return SimulateSummary{}, err
		}
	}

	return SimulateSummary{
		RunID:        req.RunID,
		ArtifactsDir: filepath.Clean(runDir),
		NEvents:      len(result.Events),
		NTimes:       result.NTimes,
		BadTrials:    len(badIndices),
		Channels:     len(result.Recording),
		Elapsed:      result.Elapsed,
	}, nil
}

func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}
	if err := c.Init(ctx); err != nil {
		return nil, err
	}

	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return nil, err
	}
	if len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}

	out := make([]RunItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, RunItem{
			RunID:        e.RunID,
			CreatedAtUTC: e.CreatedAtUTC,
			Tasks:        e.Tasks,
			NTrials:      e.NTrials,
			SampleRate:   e.SampleRate,
			Seed:         e.Seed,
			NEvents:      e.NEvents,
			NTimes:       e.NTimes,
			BadTrials:    e.BadTrials,
			Fatigue:      e.Fatigue,
		})
	}
	return out, nil
}

func (c *Client) Events(ctx context.Context, req EventsRequest) ([]model.Event, error) {
	if req.RunID != "" && req.Latest {
		return nil, errors.New("use either run id or latest")
	}
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	if err := c.Init(ctx); err != nil {
		return nil, err
	}

	runID := req.RunID
	if req.Latest {
		entries, err := stats.ListRunIndex(c.artifactsDir)
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			return nil, errors.New("no runs available")
		}
		runID = entries[0].RunID
	}
	if runID == "" {
		return nil, errors.New("events requires run id or latest")
	}

	events, ok, err := c.store.GetEvents(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Store may be ephemeral; the artifacts directory is authoritative.
		events, ok, err = stats.ReadEvents(c.artifactsDir, runID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("events not found for run id: %s", runID)
		}
	}

	if req.Limit > 0 && len(events) > req.Limit {
		events = events[:req.Limit]
	}
	return events, nil
}

// BadTrials returns the failed-trial event indices of one run.
func (c *Client) BadTrials(ctx context.Context, runID string) ([]int, error) {
	if runID == "" {
		return nil, errors.New("run id is required")
	}
	if err := c.Init(ctx); err != nil {
		return nil, err
	}

	indices, ok, err := c.store.GetBadTrials(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		indices, ok, err = stats.ReadBadTrials(c.artifactsDir, runID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("bad trials not found for run id: %s", runID)
		}
	}
	return indices, nil
}

// Recording returns the per-channel summaries of one run's recording.
func (c *Client) Recording(ctx context.Context, runID string) ([]model.RecordingSummary, error) {
	if runID == "" {
		return nil, errors.New("run id is required")
	}
	if err := c.Init(ctx); err != nil {
		return nil, err
	}

	summaries, ok, err := c.store.GetRecordingSummaries(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		summaries, ok, err = stats.ReadRecordingSummaries(c.artifactsDir, runID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("recording not found for run id: %s", runID)
		}
	}
	return summaries, nil
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	if req.RunID != "" && req.Latest {
		return ExportSummary{}, errors.New("use either run id or latest")
	}
	if req.RunID == "" && !req.Latest {
		return ExportSummary{}, errors.New("export requires run id or latest")
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}

	runID := req.RunID
	if req.Latest {
		entries, err := stats.ListRunIndex(c.artifactsDir)
		if err != nil {
			return ExportSummary{}, err
		}
		if len(entries) == 0 {
			return ExportSummary{}, errors.New("no runs available to export")
		}
		runID = entries[0].RunID
	}

	exportedDir, err := stats.ExportRunArtifacts(c.artifactsDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

func simulateDefaults(req SimulateRequest) SimulateRequest {
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	if len(req.Tasks) == 0 {
		req.Tasks = []model.Task{model.TaskMILeft, model.TaskMIRight}
	}
	if req.MIDurationMS <= 0 {
		req.MIDurationMS = 1000
	}
	if req.SampleRate <= 0 {
		req.SampleRate = 250
	}
	if req.NTrials <= 0 {
		req.NTrials = 20
	}
	if req.Reduction <= 0 {
		req.Reduction = 0.5
	}
	if req.IncludeFatigue && req.FatigueStart <= 0 {
		req.FatigueStart = 0.5
	}
	return req
}
