package storage

import (
	"context"

	"neurosim/internal/model"
)

// Store defines persistence operations for simulation runs and their derived
// tables. Bad trials are stored as event-timeline indices.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
	SaveEvents(ctx context.Context, runID string, events []model.Event) error
	GetEvents(ctx context.Context, runID string) ([]model.Event, bool, error)
	SaveBadTrials(ctx context.Context, runID string, indices []int) error
	GetBadTrials(ctx context.Context, runID string) ([]int, bool, error)
	SaveRecordingSummaries(ctx context.Context, runID string, summaries []model.RecordingSummary) error
	GetRecordingSummaries(ctx context.Context, runID string) ([]model.RecordingSummary, bool, error)
}
