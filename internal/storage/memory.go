package storage

import (
	"context"
	"sort"
	"sync"

	"neurosim/internal/model"
)

type MemoryStore struct {
	mu        sync.RWMutex
	runs      map[string]model.RunRecord
	events    map[string][]model.Event
	badTrials map[string][]int
	summaries map[string][]model.RecordingSummary
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs = make(map[string]model.RunRecord)
	s.events = make(map[string][]model.Event)
	s.badTrials = make(map[string][]int)
	s.summaries = make(map[string][]model.RecordingSummary)
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run.Tasks = append([]model.Task(nil), run.Tasks...)
	s.runs[run.ID] = run
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return model.RunRecord{}, false, nil
	}
	run.Tasks = append([]model.Task(nil), run.Tasks...)
	return run, true, nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]model.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		run.Tasks = append([]model.Task(nil), run.Tasks...)
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAtUTC != runs[j].CreatedAtUTC {
			return runs[i].CreatedAtUTC < runs[j].CreatedAtUTC
		}
		return runs[i].ID < runs[j].ID
	})
	return runs, nil
}

func (s *MemoryStore) SaveEvents(_ context.Context, runID string, events []model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]model.Event, len(events))
	copy(copied, events)
	s.events[runID] = copied
	return nil
}

func (s *MemoryStore) GetEvents(_ context.Context, runID string) ([]model.Event, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events, ok := s.events[runID]
	if !ok {
		return nil, false, nil
	}
	copied := make([]model.Event, len(events))
	copy(copied, events)
	return copied, true, nil
}

func (s *MemoryStore) SaveBadTrials(_ context.Context, runID string, indices []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.badTrials[runID] = append([]int(nil), indices...)
	return nil
}

func (s *MemoryStore) GetBadTrials(_ context.Context, runID string) ([]int, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	indices, ok := s.badTrials[runID]
	if !ok {
		return nil, false, nil
	}
	return append([]int(nil), indices...), true, nil
}

func (s *MemoryStore) SaveRecordingSummaries(_ context.Context, runID string, summaries []model.RecordingSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]model.RecordingSummary, len(summaries))
	copy(copied, summaries)
	s.summaries[runID] = copied
	return nil
}

func (s *MemoryStore) GetRecordingSummaries(_ context.Context, runID string) ([]model.RecordingSummary, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries, ok := s.summaries[runID]
	if !ok {
		return nil, false, nil
	}
	copied := make([]model.RecordingSummary, len(summaries))
	copy(copied, summaries)
	return copied, true, nil
}
