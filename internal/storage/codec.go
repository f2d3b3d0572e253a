package storage

import (
	"encoding/json"
	"errors"

	"neurosim/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

func EncodeRun(r model.RunRecord) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeRun(data []byte) (model.RunRecord, error) {
	var run model.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunRecord{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.RunRecord{}, err
	}
	return run, nil
}

func EncodeEvents(events []model.Event) ([]byte, error) {
	return json.Marshal(events)
}

func DecodeEvents(data []byte) ([]model.Event, error) {
	var events []model.Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, err
	}
	return events, nil
}

func EncodeBadTrials(indices []int) ([]byte, error) {
	return json.Marshal(indices)
}

func DecodeBadTrials(data []byte) ([]int, error) {
	var indices []int
	if err := json.Unmarshal(data, &indices); err != nil {
		return nil, err
	}
	return indices, nil
}

func EncodeRecordingSummaries(summaries []model.RecordingSummary) ([]byte, error) {
	return json.Marshal(summaries)
}

func DecodeRecordingSummaries(data []byte) ([]model.RecordingSummary, error) {
	var summaries []model.RecordingSummary
	if err := json.Unmarshal(data, &summaries); err != nil {
		return nil, err
	}
	return summaries, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
