package enrich

import (
	"github.com/google/uuid"

	"github.com/agenthands/graphdiff/internal/core/model"
)

// Convert builds the enriched base and feature trees for one calculation.
// A missing base root becomes an empty base tree for the same window.
func Convert(diffs *model.CalculatedDiffs) *model.EnrichedDiffs {
	base := diffs.BaseBranchName
	feature := ConvertRoot(base, diffs.DiffRoot)

	var baseDiff *model.EnrichedDiffRoot
	if diffs.BaseRoot != nil {
		baseDiff = ConvertRoot(base, diffs.BaseRoot)
	} else {
		baseDiff = model.NewEnrichedRoot(uuid.NewString(), base, base, feature.FromTime, feature.ToTime)
	}
	return &model.EnrichedDiffs{BaseBranchDiff: baseDiff, DiffBranchDiff: feature}
}

// ConvertRoot turns a raw tree into its enriched form. Properties that did not
// change in the window are dropped, along with fields left empty by that.
func ConvertRoot(baseBranch string, root *model.DiffRoot) *model.EnrichedDiffRoot {
	from := root.From()
	out := model.NewEnrichedRoot(uuid.NewString(), baseBranch, string(root.Branch()), from, root.To())

	for _, node := range root.Nodes() {
		en := model.NewEnrichedNode(string(node.UUID), node.Kind, node.Action(from), node.ChangedAt)

		for name, attr := range node.Attributes {
			ea := model.NewEnrichedAttribute(name, attr.Action(from), attr.ChangedAt)
			for pt, prop := range attr.Properties {
				if ep := convertProperty(prop, from); ep != nil {
					ea.Properties[pt] = ep
				}
			}
			if len(ea.Properties) > 0 {
				en.Attributes[name] = ea
			}
		}

		for name, rel := range node.Relationships {
			er := convertRelationship(rel, from)
			if len(er.Elements) > 0 {
				en.Relationships[name] = er
			}
		}

		if en.Action == model.ActionUpdated && len(en.Attributes) == 0 && len(en.Relationships) == 0 {
			continue
		}
		out.AddNode(en)
	}
	return out
}

func convertRelationship(rel *model.DiffRelationship, from model.Timestamp) *model.EnrichedDiffRelationship {
	er := model.NewEnrichedRelationship(rel.Name, rel.Cardinality, rel.Kind, model.ActionUpdated)
	er.Identifier = rel.Identifier
	er.ChangedAt = rel.ChangedAt()

	for peer, el := range rel.Elements {
		ee := model.NewEnrichedElement(peer, el.PeerKind, el.Action(from), el.ChangedAt)
		for pt, prop := range el.Properties {
			if ep := convertProperty(prop, from); ep != nil {
				ee.Properties[pt] = ep
			}
		}
		if ee.Action == model.ActionUpdated && len(ee.Properties) == 0 {
			continue
		}
		er.Elements[peer] = ee
	}
	er.Action = RelationshipAction(er)
	return er
}

func convertProperty(prop *model.DiffProperty, from model.Timestamp) *model.EnrichedDiffProperty {
	action := prop.Action(from)
	if action == model.ActionUnchanged {
		return nil
	}
	return &model.EnrichedDiffProperty{
		PropertyType:  prop.Type,
		PreviousValue: prop.PreviousValue(from),
		NewValue:      prop.NewValue(),
		PeerKind:      prop.PeerKind,
		Action:        action,
		ChangedAt:     prop.ChangedAt(),
	}
}

// RelationshipAction derives a relationship's action from its elements.
func RelationshipAction(rel *model.EnrichedDiffRelationship) model.Action {
	if len(rel.Elements) == 0 {
		return model.ActionUnchanged
	}
	var added, removed, other int
	for _, el := range rel.Elements {
		switch el.Action {
		case model.ActionAdded:
			added++
		case model.ActionRemoved:
			removed++
		case model.ActionUnchanged:
		default:
			other++
		}
	}
	switch {
	case added == len(rel.Elements):
		return model.ActionAdded
	case removed == len(rel.Elements):
		return model.ActionRemoved
	case added+removed+other == 0:
		return model.ActionUnchanged
	default:
		return model.ActionUpdated
	}
}
