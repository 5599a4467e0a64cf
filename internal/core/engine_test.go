package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/graphdiff/internal/core/conflict"
	"github.com/agenthands/graphdiff/internal/core/coordinator"
	"github.com/agenthands/graphdiff/internal/core/merge"
	"github.com/agenthands/graphdiff/internal/core/model"
	"github.com/agenthands/graphdiff/internal/schema"
)

var t0 = model.NewTimestamp(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

var request = coordinator.DiffRequest{BaseBranch: "main", DiffBranch: "feature", To: t0.Add(time.Hour)}

// conflictedRoot holds one height change on p1 that main changed differently.
func conflictedRoot() *model.EnrichedDiffRoot {
	root := model.NewEnrichedRoot("r1", "main", "feature", t0, t0.Add(time.Hour))
	node := model.NewEnrichedNode("p1", "Person", model.ActionUpdated, t0)
	node.PathIdentifier = "data/p1"
	attr := model.NewEnrichedAttribute("height", model.ActionUpdated, t0)
	attr.PathIdentifier = "data/p1/height"
	attr.Properties[model.PropertyHasValue] = &model.EnrichedDiffProperty{
		PropertyType:   model.PropertyHasValue,
		PreviousValue:  model.StringPtr("170"),
		NewValue:       model.StringPtr("180"),
		Action:         model.ActionUpdated,
		ChangedAt:      t0.Add(10 * time.Minute),
		PathIdentifier: "data/p1/height/value",
		Conflict: &model.EnrichedDiffConflict{
			UUID:                "c1",
			BaseBranchAction:    model.ActionUpdated,
			BaseBranchValue:     model.StringPtr("175"),
			BaseBranchChangedAt: t0.Add(20 * time.Minute),
			DiffBranchAction:    model.ActionUpdated,
			DiffBranchValue:     model.StringPtr("180"),
			DiffBranchChangedAt: t0.Add(10 * time.Minute),
		},
	}
	node.Attributes["height"] = attr
	root.AddNode(node)
	return root
}

type fixture struct {
	engine  *Engine
	differ  *MockDiffer
	checks  *MockCheckStore
	changes *MockProposedChanges
}

func newFixture() *fixture {
	differ := &MockDiffer{Root: conflictedRoot()}
	checks := NewMockCheckStore()
	changes := &MockProposedChanges{IDs: []string{"pc-1", "pc-2"}}
	registry := schema.NewRegistry(schema.NodeSchema{
		Kind:       "Person",
		Attributes: []schema.AttributeSchema{{Name: "height", Kind: schema.KindNumber}},
	})
	engine := NewEngine(
		differ,
		&MockSelections{Differ: differ},
		conflict.NewRecorder(checks, nil),
		merge.NewSerializer(registry, merge.DefaultMaxBatchSize),
		changes,
		nil,
	)
	return &fixture{engine: engine, differ: differ, checks: checks, changes: changes}
}

func TestGetConflicts(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	conflicts, err := f.engine.GetConflicts(ctx, request)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "c1", conflicts[0].ID)
	assert.Equal(t, model.ChangeTypeAttributeValue, conflicts[0].ChangeType)
	assert.Equal(t, "data/p1/height/value", conflicts[0].Path)
	assert.Equal(t, "175", *conflicts[0].Changes[0].NewValue)
	assert.Equal(t, "180", *conflicts[0].Changes[1].NewValue)
	assert.Equal(t, request, f.differ.Requests[0])

	filtered, err := f.engine.GetConflicts(ctx, request, "other")
	require.NoError(t, err)
	assert.Empty(t, filtered)
}

func TestRecordConflictsAndResolve(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	results, err := f.engine.RecordConflicts(ctx, request)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "feature", f.changes.Source)
	for _, r := range results {
		assert.False(t, r.Success)
		require.Len(t, r.Checks, 1)
		assert.Equal(t, "c1", r.Checks[0].Conflict.ConflictID)
		assert.Equal(t, "175", r.Checks[0].Conflict.BaseValue)
	}
	assert.Len(t, f.checks.Records, 2)

	require.NoError(t, f.engine.ResolveConflict(ctx, "c1", model.SelectionDiffBranch))
	for _, rec := range f.checks.Records {
		assert.Equal(t, model.KeepSource, rec.KeepBranch)
	}

	require.NoError(t, f.engine.ResolveConflict(ctx, "c1", model.SelectionBaseBranch))
	for _, rec := range f.checks.Records {
		assert.Equal(t, model.KeepTarget, rec.KeepBranch)
	}

	err = f.engine.ResolveConflict(ctx, "missing", model.SelectionDiffBranch)
	assert.ErrorIs(t, err, model.ErrConflictNotFound)
}

func TestRecordConflictsWithoutProposedChange(t *testing.T) {
	f := newFixture()
	f.changes.IDs = nil

	results, err := f.engine.RecordConflicts(context.Background(), request)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Empty(t, f.differ.Requests, "no diff is computed")
}

func TestPreviewMergeFollowsSelection(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.engine.PreviewMerge(ctx, request)
	assert.ErrorIs(t, err, model.ErrUnresolvedConflict)

	require.NoError(t, f.engine.ResolveConflict(ctx, "c1", model.SelectionDiffBranch))
	batches, err := f.engine.PreviewMerge(ctx, request)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	require.Len(t, batches[0].Properties, 2)
	assert.Equal(t, model.ActionRemoved, batches[0].Properties[0].Action)
	assert.Equal(t, int64(170), batches[0].Properties[0].Value)
	assert.Equal(t, model.ActionAdded, batches[0].Properties[1].Action)
	assert.Equal(t, int64(180), batches[0].Properties[1].Value)

	require.NoError(t, f.engine.ResolveConflict(ctx, "c1", model.SelectionBaseBranch))
	batches, err = f.engine.PreviewMerge(ctx, request)
	require.NoError(t, err)
	for _, b := range batches {
		assert.Empty(t, b.Properties, "base branch value is kept")
	}
}

func TestEngineReturnsDiffErrors(t *testing.T) {
	f := newFixture()
	f.differ.Err = model.ErrInvalidTimeRange

	_, err := f.engine.GetDiff(context.Background(), request)
	assert.ErrorIs(t, err, model.ErrInvalidTimeRange)
	_, err = f.engine.GetConflicts(context.Background(), request)
	assert.True(t, errors.Is(err, model.ErrInvalidTimeRange))
	_, err = f.engine.RecordConflicts(context.Background(), request)
	assert.ErrorIs(t, err, model.ErrInvalidTimeRange)
}
