package core

import (
	"context"

	"github.com/agenthands/graphdiff/internal/core/conflict"
	"github.com/agenthands/graphdiff/internal/core/coordinator"
	"github.com/agenthands/graphdiff/internal/core/model"
)

type MockDiffer struct {
	Root     *model.EnrichedDiffRoot
	Requests []coordinator.DiffRequest
	Err      error
}

func (m *MockDiffer) GetDiff(ctx context.Context, req coordinator.DiffRequest) (*model.EnrichedDiffRoot, error) {
	m.Requests = append(m.Requests, req)
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Root.Clone(), nil
}

// MockSelections updates the conflict markers of the differ's root in place.
type MockSelections struct {
	Differ *MockDiffer
	Err    error
}

func (m *MockSelections) UpdateConflictSelection(ctx context.Context, conflictID string, selection model.ConflictSelection) (int, error) {
	if m.Err != nil {
		return 0, m.Err
	}
	c, _, ok := conflict.Find(m.Differ.Root, conflictID)
	if !ok {
		return 0, nil
	}
	c.SelectedBranch = selection
	return 1, nil
}

type MockProposedChanges struct {
	IDs    []string
	Source string
	Err    error
}

func (m *MockProposedChanges) OpenProposedChanges(ctx context.Context, sourceBranch string) ([]string, error) {
	m.Source = sourceBranch
	if m.Err != nil {
		return nil, m.Err
	}
	return m.IDs, nil
}

type MockCheckStore struct {
	Records map[string]model.CheckRecord
}

func NewMockCheckStore() *MockCheckStore {
	return &MockCheckStore{Records: make(map[string]model.CheckRecord)}
}

func (m *MockCheckStore) List(ctx context.Context, proposedChangeID string) ([]model.CheckRecord, error) {
	var out []model.CheckRecord
	for _, rec := range m.Records {
		if rec.ProposedChangeID == proposedChangeID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *MockCheckStore) Upsert(ctx context.Context, record model.CheckRecord) error {
	m.Records[record.ID] = record
	return nil
}

func (m *MockCheckStore) Delete(ctx context.Context, proposedChangeID, id string) error {
	delete(m.Records, id)
	return nil
}

func (m *MockCheckStore) SetKeepBranch(ctx context.Context, conflictID string, keep model.KeepBranch) (int, error) {
	n := 0
	for id, rec := range m.Records {
		if rec.Conflict.ConflictID == conflictID {
			rec.KeepBranch = keep
			m.Records[id] = rec
			n++
		}
	}
	return n, nil
}
