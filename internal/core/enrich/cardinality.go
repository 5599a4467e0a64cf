package enrich

import (
	"context"
	"sort"

	"github.com/agenthands/graphdiff/internal/core/model"
	"github.com/agenthands/graphdiff/internal/schema"
)

// CardinalityOne collapses every cardinality-one relationship holding several
// elements into the single element that describes the net change.
type CardinalityOne struct {
	schema schema.Provider
}

func NewCardinalityOne(provider schema.Provider) *CardinalityOne {
	return &CardinalityOne{schema: provider}
}

func (s *CardinalityOne) Name() string { return "cardinality_one" }

func (s *CardinalityOne) Enrich(ctx context.Context, root *model.EnrichedDiffRoot) error {
	for _, node := range root.Nodes {
		for _, rel := range node.Relationships {
			if s.cardinality(node.Kind, root.DiffBranchName, rel) != model.CardinalityOne || len(rel.Elements) <= 1 {
				continue
			}
			el := Consolidate(rel.SortedElements())
			rel.Elements = map[string]*model.EnrichedDiffSingleRelationship{el.PeerID: el}
			rel.Action = RelationshipAction(rel)
			rel.ChangedAt = el.ChangedAt
		}
	}
	return nil
}

func (s *CardinalityOne) cardinality(kind, branch string, rel *model.EnrichedDiffRelationship) model.Cardinality {
	ns, err := s.schema.NodeSchema(kind, branch)
	if err != nil {
		return rel.Cardinality
	}
	if rs, ok := ns.Relationship(rel.Name); ok {
		rel.Cardinality = rs.Cardinality
	}
	return rel.Cardinality
}

// actionRank orders same-instant events so a removal reads before an addition.
func actionRank(a model.Action) int {
	switch a {
	case model.ActionRemoved:
		return 0
	case model.ActionAdded:
		return 2
	default:
		return 1
	}
}

func chronological(atI, atJ model.Timestamp, actionI, actionJ model.Action) bool {
	if c := atI.Compare(atJ); c != 0 {
		return c < 0
	}
	return actionRank(actionI) < actionRank(actionJ)
}

// Consolidate merges the elements of one cardinality-one relationship.
func Consolidate(elements []*model.EnrichedDiffSingleRelationship) *model.EnrichedDiffSingleRelationship {
	sorted := append([]*model.EnrichedDiffSingleRelationship(nil), elements...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return chronological(sorted[i].ChangedAt, sorted[j].ChangedAt, sorted[i].Action, sorted[j].Action)
	})
	latest := sorted[len(sorted)-1]

	chosen := latest
	action := latest.Action
	if isSameInstantSwap(sorted) {
		action = model.ActionUpdated
		for _, el := range sorted {
			if el.Action == model.ActionAdded {
				chosen = el
			}
		}
	}

	out := model.NewEnrichedElement(chosen.PeerID, chosen.PeerKind, action, latest.ChangedAt)
	for pt, occurrences := range propertyOccurrences(sorted) {
		first, last := occurrences[0], occurrences[len(occurrences)-1]
		prop := &model.EnrichedDiffProperty{
			PropertyType:  pt,
			PreviousValue: first.PreviousValue,
			NewValue:      last.NewValue,
			PeerKind:      last.PeerKind,
			Action:        model.ActionForValues(first.PreviousValue, last.NewValue),
			ChangedAt:     last.ChangedAt,
		}
		if prop.Action == model.ActionUnchanged {
			continue
		}
		out.Properties[pt] = prop
	}
	return out
}

func isSameInstantSwap(sorted []*model.EnrichedDiffSingleRelationship) bool {
	actions := make(map[model.Action]bool)
	for _, el := range sorted {
		if !el.ChangedAt.Equal(sorted[0].ChangedAt) {
			return false
		}
		actions[el.Action] = true
	}
	return len(actions) == 2 && actions[model.ActionRemoved] && actions[model.ActionAdded]
}

func propertyOccurrences(sorted []*model.EnrichedDiffSingleRelationship) map[model.PropertyType][]*model.EnrichedDiffProperty {
	out := make(map[model.PropertyType][]*model.EnrichedDiffProperty)
	for _, el := range sorted {
		for pt, prop := range el.Properties {
			out[pt] = append(out[pt], prop)
		}
	}
	for _, props := range out {
		sort.SliceStable(props, func(i, j int) bool {
			return chronological(props[i].ChangedAt, props[j].ChangedAt, props[i].Action, props[j].Action)
		})
	}
	return out
}
