package main

import (
	"encoding/json"
	"fmt"
	"os"

	"neurosim/internal/model"
	simapi "neurosim/pkg/neurosim"
)

// loadSimulateRequestFromConfig reads a scenario JSON file. Unknown keys are
// ignored so scenario files can carry annotations.
func loadSimulateRequestFromConfig(path string) (simapi.SimulateRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return simapi.SimulateRequest{}, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return simapi.SimulateRequest{}, err
	}

	var req simapi.SimulateRequest
	if v, ok := asString(raw["run_id"]); ok {
		req.RunID = v
	}
	if v, ok := raw["tasks"].([]any); ok {
		for _, item := range v {
			name, ok := asString(item)
			if !ok {
				return simapi.SimulateRequest{}, fmt.Errorf("tasks must be strings")
			}
			req.Tasks = append(req.Tasks, model.Task(name))
		}
	}
	peaks, err := parsePeakParams(raw["peak_params"])
	if err != nil {
		return simapi.SimulateRequest{}, err
	}
	req.PeakParams = peaks
	if v, ok := raw["aperiodic"].(map[string]any); ok {
		if offset, ok := asFloat64(v["offset"]); ok {
			req.Aperiodic.Offset = offset
		}
		if exponent, ok := asFloat64(v["exponent"]); ok {
			req.Aperiodic.Exponent = exponent
		}
	}
	if v, ok := asFloat64(raw["mi_duration_ms"]); ok {
		req.MIDurationMS = v
	}
	if v, ok := asFloat64(raw["sample_rate"]); ok {
		req.SampleRate = v
	}
	if v, ok := asInt(raw["n_trials"]); ok {
		req.NTrials = v
	}
	if v, ok := asFloat64(raw["reduction"]); ok {
		req.Reduction = v
	}
	if v, ok := asFloat64(raw["p_failed"]); ok {
		req.PFailed = v
	}
	if v, ok := asBool(raw["include_baseline"]); ok {
		req.IncludeBaseline = v
	}
	if v, ok := asFloat64(raw["baseline_ms"]); ok {
		req.BaselineMS = v
	}
	if v, ok := asBool(raw["include_rest"]); ok {
		req.IncludeRest = v
	}
	if v, ok := asFloat64(raw["rest_ms"]); ok {
		req.RestMS = v
	}
	if v, ok := asBool(raw["include_fatigue"]); ok {
		req.IncludeFatigue = v
	}
	if v, ok := asFloat64(raw["fatigue_start"]); ok {
		req.FatigueStart = v
	}
	if v, ok := asString(raw["fatigue_dynamic"]); ok {
		req.FatigueDynamic = v
	}
	if v, ok := asFloat64(raw["alpha_scale"]); ok {
		req.AlphaScale = v
	}
	if v, ok := asFloat64(raw["theta_scale"]); ok {
		req.ThetaScale = v
	}
	if v, ok := asInt64(raw["seed"]); ok {
		req.Seed = v
	}
	return req, nil
}

func parsePeakParams(v any) (map[string]model.SpectralPeak, error) {
	if v == nil {
		return nil, nil
	}
	table, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("peak_params must be an object")
	}

	out := make(map[string]model.SpectralPeak, len(table))
	for label, entry := range table {
		cell, ok := entry.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("peak_params[%s] must be an object", label)
		}
		var peak model.SpectralPeak
		if freq, ok := asFloat64(cell["center_freq_hz"]); ok {
			peak.CenterFreqHz = freq
		}
		if power, ok := asFloat64(cell["rel_power_db"]); ok {
			peak.RelPowerDB = power
		}
		if bandwidth, ok := asFloat64(cell["bandwidth_hz"]); ok {
			peak.BandwidthHz = bandwidth
		}
		out[label] = peak
	}
	return out, nil
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case float64:
		return int(x), true
	default:
		return 0, false
	}
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		return int64(x), true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	default:
		return 0, false
	}
}
