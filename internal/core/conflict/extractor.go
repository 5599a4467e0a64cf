package conflict

import (
	"github.com/agenthands/graphdiff/internal/core/model"
)

const dataConflictType = "data"

// Extractor flattens the conflict markers of a diff into DataConflict records.
type Extractor struct{}

func NewExtractor() *Extractor { return &Extractor{} }

// Extract returns every conflict of root, or only those whose id is in ids.
func (x *Extractor) Extract(root *model.EnrichedDiffRoot, ids ...string) []model.DataConflict {
	var filter map[string]bool
	if len(ids) > 0 {
		filter = make(map[string]bool, len(ids))
		for _, id := range ids {
			filter[id] = true
		}
	}

	var out []model.DataConflict
	add := func(dc model.DataConflict, c *model.EnrichedDiffConflict) {
		if filter != nil && !filter[c.UUID] {
			return
		}
		dc.ID = c.UUID
		dc.ConflictType = dataConflictType
		dc.SelectedBranch = c.SelectedBranch
		dc.Changes = [2]model.BranchChanges{
			{
				Branch:    root.BaseBranchName,
				Action:    c.BaseBranchAction,
				NewValue:  c.BaseBranchValue,
				Label:     c.BaseBranchLabel,
				ChangedAt: c.BaseBranchChangedAt,
			},
			{
				Branch:    root.DiffBranchName,
				Action:    c.DiffBranchAction,
				NewValue:  c.DiffBranchValue,
				Label:     c.DiffBranchLabel,
				ChangedAt: c.DiffBranchChangedAt,
			},
		}
		out = append(out, dc)
	}

	for _, node := range root.SortedNodes() {
		base := model.DataConflict{Kind: node.Kind, NodeID: node.UUID}
		if node.Conflict != nil {
			dc := base
			dc.Path = node.PathIdentifier
			dc.ChangeType = model.ChangeTypeNode
			add(dc, node.Conflict)
		}
		for _, attr := range node.SortedAttributes() {
			for _, prop := range model.SortedProperties(attr.Properties) {
				if prop.Conflict == nil {
					continue
				}
				dc := base
				dc.Path = prop.PathIdentifier
				dc.FieldName = attr.Name
				dc.PropertyType = prop.PropertyType
				dc.ChangeType = model.ChangeTypeAttributeProperty
				if prop.PropertyType == model.PropertyHasValue {
					dc.ChangeType = model.ChangeTypeAttributeValue
				}
				add(dc, prop.Conflict)
			}
		}
		for _, rel := range node.SortedRelationships() {
			changeType := model.ChangeTypeRelationshipMany
			if rel.Cardinality == model.CardinalityOne {
				changeType = model.ChangeTypeRelationshipOne
			}
			for _, el := range rel.SortedElements() {
				if el.Conflict != nil {
					dc := base
					dc.Path = el.PathIdentifier
					dc.FieldName = rel.Name
					dc.PeerID = el.PeerID
					dc.PropertyType = model.PropertyIsRelated
					dc.ChangeType = changeType
					add(dc, el.Conflict)
				}
				for _, prop := range model.SortedProperties(el.Properties) {
					if prop.Conflict == nil {
						continue
					}
					dc := base
					dc.Path = prop.PathIdentifier
					dc.FieldName = rel.Name
					dc.PeerID = el.PeerID
					dc.PropertyType = prop.PropertyType
					dc.ChangeType = changeType
					add(dc, prop.Conflict)
				}
			}
		}
	}
	return out
}

// ToObjectConflict converts a flattened conflict into the payload stored by check records.
func ToObjectConflict(dc model.DataConflict) model.ObjectConflict {
	return model.ObjectConflict{
		ConflictID:  dc.ID,
		Path:        dc.Path,
		ChangeType:  dc.ChangeType,
		Kind:        dc.Kind,
		NodeID:      dc.NodeID,
		BaseValue:   model.ValueOrNull(dc.Changes[0].NewValue),
		DiffValue:   model.ValueOrNull(dc.Changes[1].NewValue),
		BaseAction:  dc.Changes[0].Action,
		DiffAction:  dc.Changes[1].Action,
		SourceLabel: dc.Changes[1].Label,
	}
}
