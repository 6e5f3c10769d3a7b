package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/model"
)

// MemoryRecordStore is the in-process fallback record store. The check-then-
// mutate sequence runs under one lock, giving the same per-record
// serialization the Postgres stores get from their status compare-and-set.
type MemoryRecordStore struct {
	mu      sync.RWMutex
	records map[string]model.Workflowable
}

func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{records: make(map[string]model.Workflowable)}
}

func (s *MemoryRecordStore) Get(ctx context.Context, id string) (model.Workflowable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *MemoryRecordStore) Create(ctx context.Context, rec model.Workflowable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.RecordID()]; ok {
		return ErrDuplicate
	}
	s.records[rec.RecordID()] = rec.Clone()
	return nil
}

func (s *MemoryRecordStore) UpdateWorkflow(ctx context.Context, rec model.Workflowable, expected model.WorkflowStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.records[rec.RecordID()]
	if !ok {
		return ErrNotFound
	}
	if stored.Workflow().Status != expected {
		return ErrStaleStatus
	}
	*stored.Workflow() = *rec.Workflow()
	return nil
}

func (s *MemoryRecordStore) ApplyEdit(ctx context.Context, rec model.Workflowable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.records[rec.RecordID()]
	if !ok {
		return ErrNotFound
	}
	if stored.Workflow().Status != model.StatusDraft {
		return ErrStaleStatus
	}
	clone := rec.Clone()
	*clone.Workflow() = *stored.Workflow()
	s.records[rec.RecordID()] = clone
	return nil
}

func (s *MemoryRecordStore) Delete(ctx context.Context, id string, expected model.WorkflowStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	if stored.Workflow().Status != expected {
		return ErrStaleStatus
	}
	delete(s.records, id)
	return nil
}

func (s *MemoryRecordStore) List(ctx context.Context) ([]model.Workflowable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := make([]model.Workflowable, 0, len(s.records))
	for _, rec := range s.records {
		records = append(records, rec.Clone())
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Workflow().CreatedAt.After(records[j].Workflow().CreatedAt)
	})
	return records, nil
}
