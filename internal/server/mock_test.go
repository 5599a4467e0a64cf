package server

import (
	"context"

	"github.com/agenthands/graphdiff/internal/core/coordinator"
	"github.com/agenthands/graphdiff/internal/core/merge"
	"github.com/agenthands/graphdiff/internal/core/model"
)

type MockService struct {
	Root      *model.EnrichedDiffRoot
	Conflicts []model.DataConflict
	Batches   []*merge.MergeBatch
	Results   []*model.CheckResult
	Err       error

	Requests []coordinator.DiffRequest
	IDs      []string
	Resolved map[string]model.ConflictSelection
}

func (m *MockService) GetDiff(ctx context.Context, req coordinator.DiffRequest) (*model.EnrichedDiffRoot, error) {
	m.Requests = append(m.Requests, req)
	return m.Root, m.Err
}

func (m *MockService) GetConflicts(ctx context.Context, req coordinator.DiffRequest, ids ...string) ([]model.DataConflict, error) {
	m.Requests = append(m.Requests, req)
	m.IDs = ids
	return m.Conflicts, m.Err
}

func (m *MockService) ResolveConflict(ctx context.Context, conflictID string, selection model.ConflictSelection) error {
	if m.Err != nil {
		return m.Err
	}
	if m.Resolved == nil {
		m.Resolved = make(map[string]model.ConflictSelection)
	}
	m.Resolved[conflictID] = selection
	return nil
}

func (m *MockService) PreviewMerge(ctx context.Context, req coordinator.DiffRequest) ([]*merge.MergeBatch, error) {
	m.Requests = append(m.Requests, req)
	return m.Batches, m.Err
}

func (m *MockService) RecordConflicts(ctx context.Context, req coordinator.DiffRequest) ([]*model.CheckResult, error) {
	m.Requests = append(m.Requests, req)
	return m.Results, m.Err
}
