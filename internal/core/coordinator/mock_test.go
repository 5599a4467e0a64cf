package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agenthands/graphdiff/internal/core/enrich"
	"github.com/agenthands/graphdiff/internal/core/model"
)

var t0 = model.NewTimestamp(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

func at(minutes int) model.Timestamp {
	return t0.Add(time.Duration(minutes) * time.Minute)
}

// change is one value written to a node's height on a branch.
type change struct {
	branch string
	node   string
	value  string
	at     model.Timestamp
}

type calculation struct {
	Branch string
	From   model.Timestamp
	To     model.Timestamp
}

// MockCalculator replays the height history of each branch as raw diffs.
type MockCalculator struct {
	mu      sync.Mutex
	Changes []change
	Calls   []calculation
	Err     error
}

func (m *MockCalculator) Calculate(ctx context.Context, base, diff model.Branch, from, to model.Timestamp, fields ...model.NodeFieldSpecifier) (*model.CalculatedDiffs, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, calculation{Branch: diff.Name, From: from, To: to})
	if m.Err != nil {
		return nil, m.Err
	}

	root := model.NewDiffRoot(fmt.Sprintf("calc-%d", len(m.Calls)), model.BranchName(diff.Name), from, to)
	for _, ch := range m.Changes {
		if ch.branch != diff.Name || !ch.at.Before(to) {
			continue
		}
		node := root.EnsureNode(model.NodeUUID(ch.node), "Person", at(-120), model.StatusActive)
		attr := node.Attribute(ch.node+"-height", "height", at(-120), model.StatusActive)
		value := ch.value
		attr.Property(model.PropertyHasValue).AddValue(model.DiffValue{Value: &value, ChangedAt: ch.at, Status: model.StatusActive})
	}
	return &model.CalculatedDiffs{
		BaseBranchName: base.Name,
		DiffBranchName: diff.Name,
		DiffRoot:       root,
	}, nil
}

func (m *MockCalculator) CallsFor(branch string) []calculation {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []calculation
	for _, c := range m.Calls {
		if c.Branch == branch {
			out = append(out, c)
		}
	}
	return out
}

type MockBranches struct {
	ByName map[string]model.Branch
}

func (m *MockBranches) Branch(ctx context.Context, name string) (model.Branch, error) {
	b, ok := m.ByName[name]
	if !ok {
		return model.Branch{}, fmt.Errorf("%w: %s", model.ErrBranchNotFound, name)
	}
	return b, nil
}

func newBranches() *MockBranches {
	origin := "main"
	return &MockBranches{ByName: map[string]model.Branch{
		"main":     {Name: "main", CreatedAt: at(-600).Time(), IsDefault: true},
		"feature":  {Name: "feature", CreatedAt: t0.Time(), OriginBranch: &origin},
		"feature2": {Name: "feature2", CreatedAt: t0.Time(), OriginBranch: &origin},
	}}
}

type MockLabels struct {
	ByKey map[enrich.LabelKey]string
}

func (m *MockLabels) Labels(ctx context.Context, requests []enrich.LabelRequest) (map[enrich.LabelKey]string, error) {
	return m.ByKey, nil
}
