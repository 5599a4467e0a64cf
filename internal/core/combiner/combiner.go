// Package combiner folds chronologically adjacent enriched diffs of one branch pair.
package combiner

import (
	"github.com/google/uuid"

	"github.com/agenthands/graphdiff/internal/core/conflict"
	"github.com/agenthands/graphdiff/internal/core/enrich"
	"github.com/agenthands/graphdiff/internal/core/model"
)

type Combiner struct {
	transferer *conflict.Transferer
}

func New(transferer *conflict.Transferer) *Combiner {
	return &Combiner{transferer: transferer}
}

// Combine merges earlier and later, which must be adjacent with earlier first.
// Neither input is modified.
func (c *Combiner) Combine(earlier, later *model.EnrichedDiffRoot) *model.EnrichedDiffRoot {
	out := model.NewEnrichedRoot(uuid.NewString(), later.BaseBranchName, later.DiffBranchName, earlier.FromTime, later.ToTime)
	out.TrackingID = later.TrackingID
	if out.TrackingID == "" {
		out.TrackingID = earlier.TrackingID
	}

	parents := parentNodes(earlier, later)
	paired := make(map[string]bool)

	for _, en := range earlier.SortedNodes() {
		ln, ok := later.Node(en.UUID)
		if !ok {
			if en.Action == model.ActionUnchanged && !parents[en.UUID] {
				continue
			}
			out.AddNode(en.Clone())
			continue
		}
		paired[en.UUID] = true

		if isAddRemovePair(en.Action, ln.Action) {
			continue
		}
		if en.Action == model.ActionUnchanged && ln.Action == model.ActionUnchanged && !parents[en.UUID] {
			continue
		}
		if node := combineNodes(en, ln, parents[en.UUID]); node != nil {
			out.AddNode(node)
		}
	}

	for _, ln := range later.SortedNodes() {
		if !paired[ln.UUID] {
			out.AddNode(ln.Clone())
		}
	}

	c.transferer.Transfer(earlier, out)
	return out
}

// parentNodes lists every node that is the hierarchical parent of another node,
// with the later tree's assignment winning.
func parentNodes(earlier, later *model.EnrichedDiffRoot) map[string]bool {
	childToParent := make(map[string]string)
	for _, root := range []*model.EnrichedDiffRoot{earlier, later} {
		for _, node := range root.Nodes {
			for _, rel := range node.Relationships {
				if rel.Kind != model.RelationshipParent {
					continue
				}
				for _, child := range rel.NodeUUIDs {
					childToParent[child] = node.UUID
				}
			}
		}
	}
	out := make(map[string]bool, len(childToParent))
	for _, parent := range childToParent {
		out[parent] = true
	}
	return out
}

func isAddRemovePair(a, b model.Action) bool {
	return (a == model.ActionAdded && b == model.ActionRemoved) || (a == model.ActionRemoved && b == model.ActionAdded)
}

// CombineActions is the combined action of one element seen in both diffs.
func CombineActions(earlier, later model.Action) model.Action {
	switch {
	case earlier == model.ActionAdded || later == model.ActionAdded:
		return model.ActionAdded
	case earlier == model.ActionRemoved || later == model.ActionRemoved:
		return model.ActionRemoved
	case earlier == model.ActionUnchanged && later == model.ActionUnchanged:
		return model.ActionUnchanged
	default:
		return model.ActionUpdated
	}
}

func combineNodes(earlier, later *model.EnrichedDiffNode, isParent bool) *model.EnrichedDiffNode {
	out := model.NewEnrichedNode(later.UUID, later.Kind, CombineActions(earlier.Action, later.Action), model.MaxTimestamp(earlier.ChangedAt, later.ChangedAt))
	out.Label = later.Label
	out.PathIdentifier = later.PathIdentifier
	out.Conflict = latestConflict(earlier.Conflict, later.Conflict)

	for name, attr := range earlier.Attributes {
		if other, ok := later.Attributes[name]; ok {
			if merged := combineAttributes(attr, other); merged != nil {
				out.Attributes[name] = merged
			}
			continue
		}
		out.Attributes[name] = attr.Clone()
	}
	for name, attr := range later.Attributes {
		if _, ok := earlier.Attributes[name]; !ok {
			out.Attributes[name] = attr.Clone()
		}
	}

	for name, rel := range earlier.Relationships {
		if other, ok := later.Relationships[name]; ok {
			if merged := combineRelationships(rel, other); merged != nil {
				out.Relationships[name] = merged
			}
			continue
		}
		out.Relationships[name] = rel.Clone()
	}
	for name, rel := range later.Relationships {
		if _, ok := earlier.Relationships[name]; !ok {
			out.Relationships[name] = rel.Clone()
		}
	}

	if out.Action == model.ActionUpdated && len(out.Attributes) == 0 && !hasChanges(out.Relationships) {
		if !isParent {
			return nil
		}
		out.Action = model.ActionUnchanged
	}
	return out
}

func hasChanges(rels map[string]*model.EnrichedDiffRelationship) bool {
	for _, rel := range rels {
		if rel.Action != model.ActionUnchanged {
			return true
		}
	}
	return false
}

func combineAttributes(earlier, later *model.EnrichedDiffAttribute) *model.EnrichedDiffAttribute {
	if isAddRemovePair(earlier.Action, later.Action) {
		return nil
	}
	out := model.NewEnrichedAttribute(later.Name, CombineActions(earlier.Action, later.Action), model.MaxTimestamp(earlier.ChangedAt, later.ChangedAt))
	out.PathIdentifier = later.PathIdentifier
	out.Properties = combineProperties(earlier.Properties, later.Properties)
	if len(out.Properties) == 0 {
		return nil
	}
	return out
}

func combineRelationships(earlier, later *model.EnrichedDiffRelationship) *model.EnrichedDiffRelationship {
	out := model.NewEnrichedRelationship(later.Name, later.Cardinality, later.Kind, model.ActionUnchanged)
	out.Identifier = later.Identifier
	out.Label = later.Label
	out.PathIdentifier = later.PathIdentifier
	out.ChangedAt = model.MaxTimestamp(earlier.ChangedAt, later.ChangedAt)
	for _, id := range earlier.NodeUUIDs {
		out.AddChildNode(id)
	}
	for _, id := range later.NodeUUIDs {
		out.AddChildNode(id)
	}

	for peer, el := range earlier.Elements {
		other, ok := later.Elements[peer]
		if !ok {
			out.Elements[peer] = el.Clone()
			continue
		}
		if isAddRemovePair(el.Action, other.Action) {
			continue
		}
		merged := model.NewEnrichedElement(peer, other.PeerKind, CombineActions(el.Action, other.Action), model.MaxTimestamp(el.ChangedAt, other.ChangedAt))
		merged.PeerLabel = other.PeerLabel
		merged.PathIdentifier = other.PathIdentifier
		merged.Conflict = latestConflict(el.Conflict, other.Conflict)
		merged.Properties = combineProperties(el.Properties, other.Properties)
		if merged.Action == model.ActionUpdated && len(merged.Properties) == 0 {
			continue
		}
		out.Elements[peer] = merged
	}
	for peer, el := range later.Elements {
		if _, ok := earlier.Elements[peer]; !ok {
			out.Elements[peer] = el.Clone()
		}
	}

	if out.Cardinality == model.CardinalityOne && len(out.Elements) > 1 {
		el := enrich.Consolidate(out.SortedElements())
		el.PathIdentifier = out.PathIdentifier + "/" + el.PeerID
		for _, prop := range el.Properties {
			prop.PathIdentifier = enrich.PropertyPath(el.PathIdentifier, prop.PropertyType)
		}
		out.Elements = map[string]*model.EnrichedDiffSingleRelationship{el.PeerID: el}
	}

	out.Action = enrich.RelationshipAction(out)
	if len(out.Elements) == 0 && len(out.NodeUUIDs) == 0 {
		return nil
	}
	return out
}

// combineProperties takes previous values from earlier and new values from later;
// properties that end where they started are dropped.
func combineProperties(earlier, later map[model.PropertyType]*model.EnrichedDiffProperty) map[model.PropertyType]*model.EnrichedDiffProperty {
	out := make(map[model.PropertyType]*model.EnrichedDiffProperty)
	for pt, prop := range earlier {
		if _, ok := later[pt]; !ok {
			out[pt] = prop.Clone()
		}
	}
	for pt, prop := range later {
		first, ok := earlier[pt]
		if !ok {
			out[pt] = prop.Clone()
			continue
		}
		merged := prop.Clone()
		merged.PreviousValue = first.Clone().PreviousValue
		merged.PreviousLabel = first.PreviousLabel
		merged.Action = model.ActionForValues(merged.PreviousValue, merged.NewValue)
		merged.Conflict = latestConflict(first.Conflict, prop.Conflict)
		if merged.Action == model.ActionUnchanged {
			continue
		}
		out[pt] = merged
	}
	return out
}

func latestConflict(earlier, later *model.EnrichedDiffConflict) *model.EnrichedDiffConflict {
	if later != nil {
		return later.Clone()
	}
	return earlier.Clone()
}
