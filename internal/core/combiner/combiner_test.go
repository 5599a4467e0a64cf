package combiner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/graphdiff/internal/core/conflict"
	"github.com/agenthands/graphdiff/internal/core/enrich"
	"github.com/agenthands/graphdiff/internal/core/model"
	"github.com/agenthands/graphdiff/internal/core/parser"
	"github.com/agenthands/graphdiff/internal/schema"
)

var t0 = model.NewTimestamp(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

func at(minutes int) model.Timestamp {
	return t0.Add(time.Duration(minutes) * time.Minute)
}

func window(from, to int) *model.EnrichedDiffRoot {
	return model.NewEnrichedRoot("w", "main", "feature", at(from), at(to))
}

func withValue(root *model.EnrichedDiffRoot, node string, action model.Action, prev, next string, changedAt model.Timestamp) *model.EnrichedDiffNode {
	n, ok := root.Node(node)
	if !ok {
		n = model.NewEnrichedNode(node, "Person", action, changedAt)
		n.PathIdentifier = "data/" + node
		root.AddNode(n)
	}
	attr := model.NewEnrichedAttribute("height", model.ActionUpdated, changedAt)
	attr.PathIdentifier = n.PathIdentifier + "/height"
	attr.Properties[model.PropertyHasValue] = &model.EnrichedDiffProperty{
		PropertyType:   model.PropertyHasValue,
		PreviousValue:  model.StringPtr(prev),
		NewValue:       model.StringPtr(next),
		Action:         model.ActionForValues(model.StringPtr(prev), model.StringPtr(next)),
		ChangedAt:      changedAt,
		PathIdentifier: attr.PathIdentifier + "/value",
	}
	n.Attributes["height"] = attr
	return n
}

func newCombiner() *Combiner {
	return New(conflict.NewTransferer())
}

func TestCombineWindowAndProperties(t *testing.T) {
	earlier := window(0, 10)
	earlier.TrackingID = "pc-1"
	withValue(earlier, "p1", model.ActionUpdated, "170", "175", at(5))
	later := window(10, 20)
	withValue(later, "p1", model.ActionUpdated, "175", "180", at(15))

	out := newCombiner().Combine(earlier, later)

	assert.True(t, out.FromTime.Equal(at(0)))
	assert.True(t, out.ToTime.Equal(at(20)))
	assert.Equal(t, model.TrackingID("pc-1"), out.TrackingID)
	assert.NotEqual(t, earlier.UUID, out.UUID)

	prop := out.Nodes["p1"].Attributes["height"].Properties[model.PropertyHasValue]
	assert.Equal(t, "170", *prop.PreviousValue)
	assert.Equal(t, "180", *prop.NewValue)
	assert.Equal(t, model.ActionUpdated, prop.Action)
	assert.True(t, prop.ChangedAt.Equal(at(15)))

	// inputs are untouched
	assert.Equal(t, "175", *later.Nodes["p1"].Attributes["height"].Properties[model.PropertyHasValue].PreviousValue)
}

func TestCombineDropsNetZeroChanges(t *testing.T) {
	earlier := window(0, 10)
	earlier.AddNode(model.NewEnrichedNode("tmp", "Person", model.ActionAdded, at(2)))
	withValue(earlier, "p1", model.ActionUpdated, "170", "175", at(5))
	later := window(10, 20)
	later.AddNode(model.NewEnrichedNode("tmp", "Person", model.ActionRemoved, at(12)))
	withValue(later, "p1", model.ActionUpdated, "175", "170", at(15))

	out := newCombiner().Combine(earlier, later)

	assert.Empty(t, out.Nodes)
}

func TestCombineKeepsParentPlaceholders(t *testing.T) {
	earlier := window(0, 10)
	region := model.NewEnrichedNode("region", "Region", model.ActionUnchanged, model.Timestamp{})
	sites := model.NewEnrichedRelationship("sites", model.CardinalityMany, model.RelationshipParent, model.ActionUnchanged)
	sites.AddChildNode("site")
	region.Relationships["sites"] = sites
	earlier.AddNode(region)
	earlier.AddNode(model.NewEnrichedNode("orphan", "Region", model.ActionUnchanged, model.Timestamp{}))
	withValue(earlier, "site", model.ActionUpdated, "a", "b", at(5))

	later := window(10, 20)
	withValue(later, "other", model.ActionUpdated, "x", "y", at(15))

	out := newCombiner().Combine(earlier, later)

	assert.Contains(t, out.Nodes, "region")
	assert.Contains(t, out.Nodes, "site")
	assert.Contains(t, out.Nodes, "other")
	assert.NotContains(t, out.Nodes, "orphan")
}

func TestCombineCardinalityOneReconsolidates(t *testing.T) {
	employer := func(root *model.EnrichedDiffRoot, peer string, action model.Action, changedAt model.Timestamp, prev, next *string) {
		n, ok := root.Node("p1")
		if !ok {
			n = model.NewEnrichedNode("p1", "Person", model.ActionUpdated, at(-60))
			n.PathIdentifier = "data/p1"
			root.AddNode(n)
		}
		rel, ok := n.Relationships["employer"]
		if !ok {
			rel = model.NewEnrichedRelationship("employer", model.CardinalityOne, model.RelationshipGeneric, model.ActionUpdated)
			rel.PathIdentifier = "data/p1/employer"
			n.Relationships["employer"] = rel
		}
		el := model.NewEnrichedElement(peer, "Company", action, changedAt)
		el.Properties[model.PropertyIsRelated] = &model.EnrichedDiffProperty{
			PropertyType:  model.PropertyIsRelated,
			PreviousValue: prev,
			NewValue:      next,
			Action:        model.ActionForValues(prev, next),
			ChangedAt:     changedAt,
		}
		rel.Elements[peer] = el
	}

	earlier := window(0, 10)
	employer(earlier, "acme", model.ActionUpdated, at(5), model.StringPtr("init"), model.StringPtr("acme"))
	later := window(10, 20)
	employer(later, "globex", model.ActionUpdated, at(15), model.StringPtr("acme"), model.StringPtr("globex"))

	out := newCombiner().Combine(earlier, later)

	rel := out.Nodes["p1"].Relationships["employer"]
	require.Len(t, rel.Elements, 1)
	el := rel.Elements["globex"]
	require.NotNil(t, el)
	prop := el.Properties[model.PropertyIsRelated]
	assert.Equal(t, "init", *prop.PreviousValue)
	assert.Equal(t, "globex", *prop.NewValue)
	assert.Equal(t, "data/p1/employer/globex", el.PathIdentifier)
}

func TestCombineIsAssociative(t *testing.T) {
	a := window(0, 10)
	withValue(a, "p1", model.ActionUpdated, "1", "2", at(5))
	b := window(10, 20)
	withValue(b, "p1", model.ActionUpdated, "2", "3", at(15))
	b.AddNode(model.NewEnrichedNode("p2", "Person", model.ActionAdded, at(12)))
	c := window(20, 30)
	withValue(c, "p1", model.ActionUpdated, "3", "4", at(25))
	c.AddNode(model.NewEnrichedNode("p2", "Person", model.ActionRemoved, at(22)))

	cb := newCombiner()
	left := cb.Combine(cb.Combine(a, b), c)
	right := cb.Combine(a, cb.Combine(b, c))

	require.Equal(t, len(left.Nodes), len(right.Nodes))
	assert.NotContains(t, left.Nodes, "p2")
	for id, ln := range left.Nodes {
		rn := right.Nodes[id]
		require.NotNil(t, rn)
		assert.Equal(t, ln.Action, rn.Action)
		lp := ln.Attributes["height"].Properties[model.PropertyHasValue]
		rp := rn.Attributes["height"].Properties[model.PropertyHasValue]
		assert.Equal(t, *lp.PreviousValue, *rp.PreviousValue)
		assert.Equal(t, *lp.NewValue, *rp.NewValue)
	}
	assert.True(t, left.FromTime.Equal(right.FromTime))
	assert.True(t, left.ToTime.Equal(right.ToTime))
}

// history is the feature branch's raw rows: p1 is created at +5 and deleted at
// +10, p2 already existed and changes height at +20.
func history() []model.DatabasePath {
	row := func(node string, nodeAt model.Timestamp, nodeStatus model.EdgeStatus, value string, valueAt model.Timestamp, valueStatus model.EdgeStatus) model.DatabasePath {
		return model.DatabasePath{
			RootID:            "root",
			NodeID:            node,
			NodeKind:          "Person",
			NodeChangedAt:     nodeAt,
			NodeStatus:        nodeStatus,
			FieldType:         model.FieldAttribute,
			FieldID:           node + "-height",
			FieldName:         "height",
			FieldChangedAt:    nodeAt,
			FieldStatus:       nodeStatus,
			PropertyType:      model.PropertyHasValue,
			PropertyValue:     model.StringPtr(value),
			PropertyChangedAt: valueAt,
			PropertyStatus:    valueStatus,
			DeepestBranch:     "feature",
		}
	}
	return []model.DatabasePath{
		row("p1", at(10), model.StatusDeleted, "170", at(10), model.StatusDeleted),
		row("p1", at(5), model.StatusActive, "170", at(5), model.StatusActive),
		row("p2", at(-60), model.StatusActive, "1", at(-60), model.StatusActive),
		row("p2", at(-60), model.StatusActive, "1", at(20), model.StatusDeleted),
		row("p2", at(-60), model.StatusActive, "2", at(20), model.StatusActive),
	}
}

// parseWindow feeds the rows the path query would return for [from, to).
func parseWindow(t *testing.T, from, to int) *model.EnrichedDiffRoot {
	t.Helper()
	var rows []model.DatabasePath
	for _, r := range history() {
		if r.NodeChangedAt.Before(at(to)) && r.FieldChangedAt.Before(at(to)) && r.PropertyChangedAt.Before(at(to)) {
			rows = append(rows, r)
		}
	}
	registry := schema.NewRegistry(schema.NodeSchema{
		Kind:       "Person",
		Attributes: []schema.AttributeSchema{{Name: "height", Kind: schema.KindNumber}},
	})
	p := parser.New("main", "feature", at(from), at(to), registry, nil)
	require.NoError(t, p.Parse(parser.Executed(rows)))
	return enrich.Convert(p.Diffs()).DiffBranchDiff
}

func TestCombineParsedWindowsMatchesFullWindow(t *testing.T) {
	full := parseWindow(t, 0, 60)
	split := newCombiner().Combine(parseWindow(t, 0, 7), parseWindow(t, 7, 60))

	assert.NotContains(t, full.Nodes, "p1")
	assert.NotContains(t, split.Nodes, "p1")
	require.Len(t, full.Nodes, 1)
	require.Len(t, split.Nodes, 1)

	fp := full.Nodes["p2"].Attributes["height"].Properties[model.PropertyHasValue]
	sp := split.Nodes["p2"].Attributes["height"].Properties[model.PropertyHasValue]
	assert.Equal(t, full.Nodes["p2"].Action, split.Nodes["p2"].Action)
	assert.Equal(t, "1", *fp.PreviousValue)
	assert.Equal(t, "2", *fp.NewValue)
	assert.Equal(t, *fp.PreviousValue, *sp.PreviousValue)
	assert.Equal(t, *fp.NewValue, *sp.NewValue)
	assert.Equal(t, fp.Action, sp.Action)
}

func TestCombineTransfersSelection(t *testing.T) {
	earlier := window(0, 10)
	withValue(earlier, "p1", model.ActionUpdated, "170", "175", at(5)).
		Attributes["height"].Properties[model.PropertyHasValue].Conflict = &model.EnrichedDiffConflict{
		UUID:            "c1",
		BaseBranchValue: model.StringPtr("160"),
		DiffBranchValue: model.StringPtr("175"),
		SelectedBranch:  model.SelectionDiffBranch,
	}
	later := window(10, 20)
	withValue(later, "p1", model.ActionUpdated, "175", "178", at(15)).
		Attributes["height"].Properties[model.PropertyHasValue].Conflict = &model.EnrichedDiffConflict{
		UUID:            "c1",
		BaseBranchValue: model.StringPtr("160"),
		DiffBranchValue: model.StringPtr("175"),
	}

	out := newCombiner().Combine(earlier, later)

	c := out.Nodes["p1"].Attributes["height"].Properties[model.PropertyHasValue].Conflict
	require.NotNil(t, c)
	assert.Equal(t, model.SelectionDiffBranch, c.SelectedBranch)
}

func TestCombineActions(t *testing.T) {
	tests := []struct {
		earlier, later, want model.Action
	}{
		{model.ActionAdded, model.ActionUpdated, model.ActionAdded},
		{model.ActionUpdated, model.ActionRemoved, model.ActionRemoved},
		{model.ActionUnchanged, model.ActionUnchanged, model.ActionUnchanged},
		{model.ActionUnchanged, model.ActionUpdated, model.ActionUpdated},
		{model.ActionUpdated, model.ActionUpdated, model.ActionUpdated},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CombineActions(tt.earlier, tt.later), "%s+%s", tt.earlier, tt.later)
	}
}
