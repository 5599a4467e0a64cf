package merge

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/graphdiff/internal/core/model"
	"github.com/agenthands/graphdiff/internal/schema"
)

var t0 = model.NewTimestamp(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

func testSchema() *schema.Registry {
	return schema.NewRegistry(schema.NodeSchema{
		Kind: "Device",
		Attributes: []schema.AttributeSchema{
			{Name: "name", Kind: schema.KindText},
			{Name: "ports", Kind: schema.KindNumber},
			{Name: "enabled", Kind: schema.KindBoolean},
			{Name: "tags", Kind: schema.KindList},
		},
		Relationships: []schema.RelationshipSchema{
			{Name: "site", Peer: "Site", Cardinality: model.CardinalityOne},
		},
	})
}

func device(uuid string, action model.Action) *model.EnrichedDiffNode {
	n := model.NewEnrichedNode(uuid, "Device", action, t0)
	n.PathIdentifier = "data/" + uuid
	return n
}

func value(n *model.EnrichedDiffNode, attrName string, attrAction model.Action, prev, next *string) *model.EnrichedDiffProperty {
	attr := model.NewEnrichedAttribute(attrName, attrAction, t0)
	prop := &model.EnrichedDiffProperty{
		PropertyType:   model.PropertyHasValue,
		PreviousValue:  prev,
		NewValue:       next,
		Action:         model.ActionForValues(prev, next),
		ChangedAt:      t0,
		PathIdentifier: n.PathIdentifier + "/" + attrName + "/value",
	}
	attr.Properties[model.PropertyHasValue] = prop
	n.Attributes[attrName] = attr
	return prop
}

func collect(t *testing.T, s *Serializer, root *model.EnrichedDiffRoot) []*MergeBatch {
	t.Helper()
	var batches []*MergeBatch
	err := s.Serialize(context.Background(), root, func(b *MergeBatch) error {
		batches = append(batches, b)
		return nil
	})
	require.NoError(t, err)
	return batches
}

func TestSerializeUpdatedAttributeValue(t *testing.T) {
	root := model.NewEnrichedRoot("r", "main", "feature", t0, t0.Add(time.Hour))
	n := device("d1", model.ActionUpdated)
	value(n, "ports", model.ActionUpdated, model.StringPtr("24"), model.StringPtr("48"))
	root.AddNode(n)

	batches := collect(t, NewSerializer(testSchema(), 0), root)
	require.Len(t, batches, 1)
	b := batches[0]
	require.Len(t, b.Nodes, 1)
	assert.Empty(t, b.Nodes[0].Attributes)
	require.Len(t, b.Properties, 2)

	assert.Equal(t, model.ActionRemoved, b.Properties[0].Action)
	assert.Equal(t, int64(24), b.Properties[0].Value)
	assert.Equal(t, model.ActionAdded, b.Properties[1].Action)
	assert.Equal(t, int64(48), b.Properties[1].Value)
	assert.Equal(t, "ports", b.Properties[1].FieldName)
	assert.Equal(t, Stats{Nodes: 1, Properties: 2}, b.Stats())
}

func TestSerializeConvertsValues(t *testing.T) {
	tests := []struct {
		kind schema.AttributeKind
		pt   model.PropertyType
		raw  *string
		want any
	}{
		{schema.KindText, model.PropertyHasValue, nil, model.NullValue},
		{schema.KindNumber, model.PropertyHasValue, model.StringPtr("1.5"), 1.5},
		{schema.KindBoolean, model.PropertyHasValue, model.StringPtr("True"), true},
		{schema.KindList, model.PropertyHasValue, model.StringPtr(`["a","b"]`), []any{"a", "b"}},
		{schema.KindText, model.PropertyIsProtected, model.StringPtr("false"), false},
		{schema.KindNumber, model.PropertyHasOwner, model.StringPtr("acct-1"), "acct-1"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%s", tt.kind, tt.pt), func(t *testing.T) {
			got, err := convert(tt.pt, tt.kind, tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := convert(model.PropertyHasValue, schema.KindJSON, model.StringPtr("{"))
	assert.Error(t, err)
}

func TestSerializeAddedNodeAndRelationship(t *testing.T) {
	root := model.NewEnrichedRoot("r", "main", "feature", t0, t0.Add(time.Hour))
	n := device("d1", model.ActionAdded)
	value(n, "name", model.ActionAdded, nil, model.StringPtr("edge-01"))
	rel := model.NewEnrichedRelationship("site", model.CardinalityOne, model.RelationshipGeneric, model.ActionAdded)
	el := model.NewEnrichedElement("s1", "Site", model.ActionAdded, t0)
	el.PathIdentifier = "data/d1/site/s1"
	el.Properties[model.PropertyIsRelated] = &model.EnrichedDiffProperty{
		PropertyType: model.PropertyIsRelated, NewValue: model.StringPtr("s1"), Action: model.ActionAdded,
	}
	el.Properties[model.PropertyIsProtected] = &model.EnrichedDiffProperty{
		PropertyType: model.PropertyIsProtected, NewValue: model.StringPtr("true"), Action: model.ActionAdded,
	}
	rel.Elements["s1"] = el
	n.Relationships["site"] = rel
	root.AddNode(n)

	batches := collect(t, NewSerializer(testSchema(), 0), root)
	require.Len(t, batches, 1)
	b := batches[0]
	require.Len(t, b.Nodes, 1)
	assert.Equal(t, []AttributeOperation{{Name: "name", Action: model.ActionAdded}}, b.Nodes[0].Attributes)
	assert.Equal(t, []RelationshipOperation{{Name: "site", PeerID: "s1", Action: model.ActionAdded}}, b.Nodes[0].Relationships)

	flags := map[model.PropertyType]any{}
	for _, p := range b.Properties {
		if p.PropertyType.IsFlag() {
			flags[p.PropertyType] = p.Value
		}
	}
	assert.Equal(t, map[model.PropertyType]any{
		model.PropertyIsProtected: true,
		model.PropertyIsVisible:   true,
	}, flags)
}

func TestSerializeHonorsConflictSelection(t *testing.T) {
	root := model.NewEnrichedRoot("r", "main", "feature", t0, t0.Add(time.Hour))
	keepBase := device("d1", model.ActionUpdated)
	value(keepBase, "name", model.ActionUpdated, model.StringPtr("a"), model.StringPtr("b")).Conflict =
		&model.EnrichedDiffConflict{UUID: "c1", SelectedBranch: model.SelectionBaseBranch}
	keepDiff := device("d2", model.ActionUpdated)
	value(keepDiff, "name", model.ActionUpdated, model.StringPtr("a"), model.StringPtr("c")).Conflict =
		&model.EnrichedDiffConflict{UUID: "c2", SelectedBranch: model.SelectionDiffBranch}
	root.AddNode(keepBase)
	root.AddNode(keepDiff)

	batches := collect(t, NewSerializer(testSchema(), 0), root)
	require.Len(t, batches, 1)
	require.Len(t, batches[0].Properties, 2)
	for _, p := range batches[0].Properties {
		assert.Equal(t, "d2", p.NodeUUID)
	}

	unresolved := device("d3", model.ActionUpdated)
	value(unresolved, "name", model.ActionUpdated, model.StringPtr("a"), model.StringPtr("d")).Conflict =
		&model.EnrichedDiffConflict{UUID: "c3"}
	root.AddNode(unresolved)
	err := NewSerializer(testSchema(), 0).Serialize(context.Background(), root, func(*MergeBatch) error { return nil })
	require.ErrorIs(t, err, model.ErrUnresolvedConflict)
	var pathErr *model.PathError
	require.True(t, errors.As(err, &pathErr))
	assert.Equal(t, "data/d3/name/value", pathErr.Path)
}

func TestSerializeBatchesAndSkipsPlaceholders(t *testing.T) {
	root := model.NewEnrichedRoot("r", "main", "feature", t0, t0.Add(time.Hour))
	for i := 0; i < 5; i++ {
		root.AddNode(device(fmt.Sprintf("d%d", i), model.ActionRemoved))
	}
	root.AddNode(device("parent", model.ActionUnchanged))

	batches := collect(t, NewSerializer(testSchema(), 2), root)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0].Nodes, 2)
	assert.Len(t, batches[2].Nodes, 1)
	for _, b := range batches {
		for _, n := range b.Nodes {
			assert.NotEqual(t, "parent", n.UUID)
		}
	}

	stop := errors.New("stop")
	err := NewSerializer(testSchema(), 2).Serialize(context.Background(), root, func(*MergeBatch) error { return stop })
	assert.ErrorIs(t, err, stop)
}
