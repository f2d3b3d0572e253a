package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"neurosim/internal/config"
	"neurosim/internal/model"
	"neurosim/internal/storage"
	simapi "neurosim/pkg/neurosim"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if level, err := zerolog.ParseLevel(cfg.Log.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	if err := run(context.Background(), cfg, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "init":
		return runInit(ctx, cfg, args[1:])
	case "reset":
		return runReset(ctx, cfg, args[1:])
	case "simulate":
		return runSimulate(ctx, cfg, args[1:])
	case "runs":
		return runRuns(ctx, cfg, args[1:])
	case "events":
		return runEvents(ctx, cfg, args[1:])
	case "export":
		return runExport(ctx, cfg, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func runInit(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	storeKind := fs.String("store", cfg.Store.Backend, "store backend: memory|sqlite")
	dbPath := fs.String("db-path", cfg.Store.DBPath, "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := storage.NewStore(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = storage.CloseIfSupported(store)
	}()

	if err := store.Init(ctx); err != nil {
		return err
	}

	fmt.Printf("initialized store=%s\n", *storeKind)
	return nil
}

func runReset(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("reset", flag.ContinueOnError)
	storeKind := fs.String("store", cfg.Store.Backend, "store backend: memory|sqlite")
	dbPath := fs.String("db-path", cfg.Store.DBPath, "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *storeKind == "sqlite" {
		if err := os.Remove(*dbPath); err != nil && !os.IsNotExist(err) {
			return err
		}
	}

	store, err := storage.NewStore(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = storage.CloseIfSupported(store)
	}()

	if err := store.Init(ctx); err != nil {
		return err
	}

	fmt.Printf("reset store=%s\n", *storeKind)
	return nil
}

func runSimulate(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("simulate", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional scenario JSON path")
	runID := fs.String("run-id", "", "explicit run id (optional)")
	tasksFlag := fs.String("tasks", "MI/left,MI/right", "comma-separated task list")
	miDurationMS := fs.Float64("mi-duration-ms", 1000, "motor imagery duration per trial in ms")
	sampleRate := fs.Float64("sfreq", 250, "sampling frequency in Hz")
	nTrials := fs.Int("trials", 20, "total trial count across all classes")
	reduction := fs.Float64("reduction", 0.5, "contralateral peak power reduction fraction")
	aperiodicOffset := fs.Float64("aperiodic-offset", -1.0, "aperiodic background offset")
	aperiodicExponent := fs.Float64("aperiodic-exponent", 1.5, "aperiodic background exponent")
	peakFreq := fs.Float64("peak-freq", 10, "default motor peak center frequency in Hz")
	peakPower := fs.Float64("peak-power", 0.9, "default motor peak relative power in dB")
	peakBandwidth := fs.Float64("peak-bandwidth", 4, "default motor peak bandwidth in Hz")
	pFailed := fs.Float64("p-failed", 0, "failed-trial fraction (0 disables)")
	includeBaseline := fs.Bool("baseline", false, "prepend a baseline segment")
	baselineMS := fs.Float64("baseline-ms", 0, "baseline duration in ms (0 uses default)")
	includeRest := fs.Bool("rest", false, "append a rest segment after every trial")
	restMS := fs.Float64("rest-ms", 0, "rest duration in ms (0 uses default)")
	includeFatigue := fs.Bool("fatigue", false, "add background rhythms with fatigue drift")
	fatigueStart := fs.Float64("fatigue-start", 0.5, "fatigue onset as fraction of the session")
	fatigueDynamic := fs.String("fatigue-dynamic", "linear", "fatigue envelope: linear|constant")
	alphaScale := fs.Float64("alpha-scale", 0, "fatigue alpha scale (0 uses default)")
	thetaScale := fs.Float64("theta-scale", 0, "fatigue theta scale (0 uses default)")
	seed := fs.Int64("seed", 1, "rng seed (0 derives one from the clock)")
	workers := fs.Int("workers", cfg.Workers, "worker count")
	storeKind := fs.String("store", cfg.Store.Backend, "store backend: memory|sqlite")
	dbPath := fs.String("db-path", cfg.Store.DBPath, "sqlite database path")
	artifactsDir := fs.String("artifacts", cfg.Artifacts.Dir, "artifacts directory")
	jsonOut := fs.Bool("json", false, "emit run summary as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var req simapi.SimulateRequest
	if *configPath != "" {
		var err error
		req, err = loadSimulateRequestFromConfig(*configPath)
		if err != nil {
			return err
		}
	} else {
		tasks, err := parseTasks(*tasksFlag)
		if err != nil {
			return err
		}
		req = simapi.SimulateRequest{
			RunID:           *runID,
			Tasks:           tasks,
			PeakParams:      defaultPeakParams(*peakFreq, *peakPower, *peakBandwidth),
			Aperiodic:       model.Aperiodic{Offset: *aperiodicOffset, Exponent: *aperiodicExponent},
			MIDurationMS:    *miDurationMS,
			SampleRate:      *sampleRate,
			NTrials:         *nTrials,
			Reduction:       *reduction,
			PFailed:         *pFailed,
			IncludeBaseline: *includeBaseline,
			BaselineMS:      *baselineMS,
			IncludeRest:     *includeRest,
			RestMS:          *restMS,
			IncludeFatigue:  *includeFatigue,
			FatigueStart:    *fatigueStart,
			FatigueDynamic:  *fatigueDynamic,
			AlphaScale:      *alphaScale,
			ThetaScale:      *thetaScale,
			Seed:            *seed,
		}
	}
	if *runID != "" {
		req.RunID = *runID
	}
	if req.Seed == 0 {
		req.Seed = time.Now().UnixNano()
	}

	client, err := simapi.New(simapi.Options{
		StoreKind:    *storeKind,
		DBPath:       *dbPath,
		ArtifactsDir: *artifactsDir,
		Workers:      *workers,
		Logger:       &log.Logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Simulate(ctx, req)
	if err != nil {
		return err
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"run_id":        summary.RunID,
			"artifacts_dir": summary.ArtifactsDir,
			"n_events":      summary.NEvents,
			"n_times":       summary.NTimes,
			"bad_trials":    summary.BadTrials,
			"channels":      summary.Channels,
			"elapsed_ms":    summary.Elapsed.Milliseconds(),
		})
	}

	fmt.Printf("run_id=%s events=%d n_times=%d bad_trials=%d channels=%d artifacts=%s\n",
		summary.RunID, summary.NEvents, summary.NTimes, summary.BadTrials, summary.Channels, summary.ArtifactsDir)
	return nil
}

func runRuns(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "max runs to list")
	artifactsDir := fs.String("artifacts", cfg.Artifacts.Dir, "artifacts directory")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, err := simapi.New(simapi.Options{
		StoreKind:    "memory",
		ArtifactsDir: *artifactsDir,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	items, err := client.Runs(ctx, simapi.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	}

	for _, item := range items {
		fmt.Printf("run_id=%s created=%s tasks=%d trials=%d sfreq=%g seed=%d events=%d n_times=%d bad=%d fatigue=%t\n",
			item.RunID, item.CreatedAtUTC, item.Tasks, item.NTrials, item.SampleRate,
			item.Seed, item.NEvents, item.NTimes, item.BadTrials, item.Fatigue)
	}
	return nil
}

func runEvents(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("events", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "use the most recent run from the run index")
	limit := fs.Int("limit", 0, "max events to print (0 prints all)")
	storeKind := fs.String("store", cfg.Store.Backend, "store backend: memory|sqlite")
	dbPath := fs.String("db-path", cfg.Store.DBPath, "sqlite database path")
	artifactsDir := fs.String("artifacts", cfg.Artifacts.Dir, "artifacts directory")
	jsonOut := fs.Bool("json", false, "emit events as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := simapi.New(simapi.Options{
		StoreKind:    *storeKind,
		DBPath:       *dbPath,
		ArtifactsDir: *artifactsDir,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	events, err := client.Events(ctx, simapi.EventsRequest{RunID: *runID, Latest: *latest, Limit: *limit})
	if err != nil {
		return err
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(events)
	}

	fmt.Println("onset,prev,class")
	for _, ev := range events {
		fmt.Printf("%d,%d,%d\n", ev.Onset, ev.Prev, ev.Class)
	}
	return nil
}

func runExport(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "export the most recent run from the run index")
	outDir := fs.String("out", "exports", "export output directory")
	artifactsDir := fs.String("artifacts", cfg.Artifacts.Dir, "artifacts directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := simapi.New(simapi.Options{
		StoreKind:    "memory",
		ArtifactsDir: *artifactsDir,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	exported, err := client.Export(ctx, simapi.ExportRequest{RunID: *runID, Latest: *latest, OutDir: *outDir})
	if err != nil {
		return err
	}

	fmt.Printf("exported run_id=%s to=%s\n", exported.RunID, exported.Directory)
	return nil
}

func parseTasks(list string) ([]model.Task, error) {
	parts := strings.Split(list, ",")
	tasks := make([]model.Task, 0, len(parts))
	for _, part := range parts {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		switch model.Task(name) {
		case model.TaskMILeft, model.TaskMIRight, model.TaskRest:
			tasks = append(tasks, model.Task(name))
		default:
			return nil, fmt.Errorf("unknown task: %s", name)
		}
	}
	if len(tasks) == 0 {
		return nil, errors.New("at least one task is required")
	}
	return tasks, nil
}

func defaultPeakParams(freq, power, bandwidth float64) map[string]model.SpectralPeak {
	peak := model.SpectralPeak{CenterFreqHz: freq, RelPowerDB: power, BandwidthHz: bandwidth}
	return map[string]model.SpectralPeak{
		"G_precentral-lh": peak,
		"G_precentral-rh": peak,
	}
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: neurosimctl <init|reset|simulate|runs|events|export> [flags]", msg)
}
