package enrich

import (
	"context"

	"github.com/agenthands/graphdiff/internal/core/model"
)

type MockParentResolver struct {
	ByID  map[string]Parent
	Calls [][]string
	Err   error
}

func (m *MockParentResolver) Parents(ctx context.Context, branch, kind string, ids []string) (map[string]Parent, error) {
	m.Calls = append(m.Calls, append([]string{branch, kind}, ids...))
	if m.Err != nil {
		return nil, m.Err
	}
	out := make(map[string]Parent)
	for _, id := range ids {
		if p, ok := m.ByID[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

type MockLabelProvider struct {
	ByKey    map[LabelKey]string
	Requests [][]LabelRequest
	Err      error
}

func (m *MockLabelProvider) Labels(ctx context.Context, requests []LabelRequest) (map[LabelKey]string, error) {
	m.Requests = append(m.Requests, requests)
	if m.Err != nil {
		return nil, m.Err
	}
	return m.ByKey, nil
}

func newRoot() *model.EnrichedDiffRoot {
	return model.NewEnrichedRoot("root", "main", "feature", t0, at(60))
}
