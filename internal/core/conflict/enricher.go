// Package conflict marks, carries forward, flattens and records conflicts
// between a base-branch diff and a feature-branch diff of the same window.
package conflict

import (
	"github.com/agenthands/graphdiff/internal/core/model"
)

// Enricher compares a base-vs-base diff with a base-vs-feature diff and marks
// conflicts on the feature diff.
type Enricher struct{}

func NewEnricher() *Enricher { return &Enricher{} }

// AddConflicts sets or clears the conflict markers of branchDiff. An existing
// marker keeps its selection as long as both sides still hold the same values.
func (e *Enricher) AddConflicts(baseDiff, branchDiff *model.EnrichedDiffRoot) {
	base, diff := branchDiff.BaseBranchName, branchDiff.DiffBranchName
	for _, node := range branchDiff.Nodes {
		baseNode, ok := baseDiff.Node(node.UUID)
		if !ok {
			clearNode(node)
			continue
		}
		c := coords{base: base, diff: diff, node: node.UUID}

		if node.Action != baseNode.Action && node.Action != model.ActionUnchanged && baseNode.Action != model.ActionUnchanged {
			node.Conflict = mark(node.Conflict, c.id(), side{action: baseNode.Action, changedAt: baseNode.ChangedAt}, side{action: node.Action, changedAt: node.ChangedAt})
		} else {
			node.Conflict = nil
		}

		for name, attr := range node.Attributes {
			baseAttr, ok := baseNode.Attributes[name]
			if !ok {
				clearProperties(attr.Properties)
				continue
			}
			for pt, prop := range attr.Properties {
				baseProp, ok := baseAttr.Properties[pt]
				if !ok || model.EqualValues(baseProp.NewValue, prop.NewValue) {
					prop.Conflict = nil
					continue
				}
				prop.Conflict = mark(prop.Conflict, c.with(name, string(pt)).id(), propertySide(baseProp), propertySide(prop))
			}
		}

		for name, rel := range node.Relationships {
			baseRel, ok := baseNode.Relationships[name]
			if !ok {
				clearRelationship(rel)
				continue
			}
			if rel.Cardinality == model.CardinalityOne {
				addCardinalityOneConflicts(c.with(name), baseRel, rel)
			} else {
				addCardinalityManyConflicts(c.with(name), baseRel, rel)
			}
		}
	}
}

func addCardinalityOneConflicts(c coords, baseRel, rel *model.EnrichedDiffRelationship) {
	baseEl, el := single(baseRel), single(rel)
	if baseEl == nil || el == nil {
		clearRelationship(rel)
		return
	}
	for _, other := range rel.Elements {
		if other != el {
			clearElement(other)
		}
	}

	existing := el.Conflict
	el.Conflict = nil
	for pt, prop := range el.Properties {
		baseProp, ok := baseEl.Properties[pt]
		if !ok || propertiesAgree(baseProp, prop) {
			prop.Conflict = nil
			continue
		}
		if pt == model.PropertyIsRelated {
			// peer changes sit on the element itself
			el.Conflict = mark(existing, c.with(string(pt)).id(), propertySide(baseProp), propertySide(prop))
			prop.Conflict = nil
			continue
		}
		prop.Conflict = mark(prop.Conflict, c.with(string(pt)).id(), propertySide(baseProp), propertySide(prop))
	}
}

func addCardinalityManyConflicts(c coords, baseRel, rel *model.EnrichedDiffRelationship) {
	for peer, el := range rel.Elements {
		baseEl, ok := baseRel.Elements[peer]
		if !ok {
			clearElement(el)
			continue
		}
		el.Conflict = nil
		for pt, prop := range el.Properties {
			baseProp, ok := baseEl.Properties[pt]
			if !ok || propertiesAgree(baseProp, prop) {
				prop.Conflict = nil
				continue
			}
			prop.Conflict = mark(prop.Conflict, c.with(peer, string(pt)).id(), propertySide(baseProp), propertySide(prop))
		}
	}
}

// propertiesAgree is true when both sides end on the same value, or when only
// the feature branch changed the property.
func propertiesAgree(base, diff *model.EnrichedDiffProperty) bool {
	if model.EqualValues(base.NewValue, diff.NewValue) {
		return true
	}
	return base.Action == model.ActionUnchanged && model.EqualValues(base.PreviousValue, diff.PreviousValue)
}

func single(rel *model.EnrichedDiffRelationship) *model.EnrichedDiffSingleRelationship {
	elements := rel.SortedElements()
	if len(elements) == 0 {
		return nil
	}
	return elements[len(elements)-1]
}

type side struct {
	action    model.Action
	value     *string
	changedAt model.Timestamp
}

func propertySide(p *model.EnrichedDiffProperty) side {
	return side{action: p.Action, value: p.NewValue, changedAt: p.ChangedAt}
}

func mark(existing *model.EnrichedDiffConflict, id string, base, diff side) *model.EnrichedDiffConflict {
	out := &model.EnrichedDiffConflict{
		UUID:                id,
		BaseBranchAction:    base.action,
		BaseBranchValue:     base.value,
		BaseBranchChangedAt: base.changedAt,
		DiffBranchAction:    diff.action,
		DiffBranchValue:     diff.value,
		DiffBranchChangedAt: diff.changedAt,
	}
	if existing != nil && sameValues(existing, out) {
		out.UUID = existing.UUID
		out.SelectedBranch = existing.SelectedBranch
		out.BaseBranchLabel = existing.BaseBranchLabel
		out.DiffBranchLabel = existing.DiffBranchLabel
	}
	return out
}

func sameValues(a, b *model.EnrichedDiffConflict) bool {
	return model.EqualValues(a.BaseBranchValue, b.BaseBranchValue) &&
		model.EqualValues(a.DiffBranchValue, b.DiffBranchValue)
}

func clearNode(node *model.EnrichedDiffNode) {
	node.Conflict = nil
	for _, attr := range node.Attributes {
		clearProperties(attr.Properties)
	}
	for _, rel := range node.Relationships {
		clearRelationship(rel)
	}
}

func clearRelationship(rel *model.EnrichedDiffRelationship) {
	for _, el := range rel.Elements {
		clearElement(el)
	}
}

func clearElement(el *model.EnrichedDiffSingleRelationship) {
	el.Conflict = nil
	clearProperties(el.Properties)
}

func clearProperties(props map[model.PropertyType]*model.EnrichedDiffProperty) {
	for _, prop := range props {
		prop.Conflict = nil
	}
}
