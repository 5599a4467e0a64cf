package conflict

import "github.com/agenthands/graphdiff/internal/core/model"

// Transferer carries conflict identity and user selections from one diff into
// a diff that supersedes it, such as the result of combining two windows.
type Transferer struct{}

func NewTransferer() *Transferer { return &Transferer{} }

// Transfer copies the selection of every conflict in from onto the conflict
// with the same identity in to, unless to already has a selection of its own.
func (t *Transferer) Transfer(from, to *model.EnrichedDiffRoot) {
	if from == nil || to == nil {
		return
	}
	previous := make(map[string]*model.EnrichedDiffConflict)
	Visit(from, func(_ string, c *model.EnrichedDiffConflict) {
		previous[c.UUID] = c
	})
	if len(previous) == 0 {
		return
	}
	Visit(to, func(_ string, c *model.EnrichedDiffConflict) {
		old, ok := previous[c.UUID]
		if !ok || c.SelectedBranch != model.SelectionUnset {
			return
		}
		if sameValues(old, c) {
			c.SelectedBranch = old.SelectedBranch
		}
	})
}

// Visit calls fn with the path of every conflict marker in root.
func Visit(root *model.EnrichedDiffRoot, fn func(path string, c *model.EnrichedDiffConflict)) {
	for _, node := range root.SortedNodes() {
		if node.Conflict != nil {
			fn(node.PathIdentifier, node.Conflict)
		}
		for _, attr := range node.SortedAttributes() {
			for _, prop := range model.SortedProperties(attr.Properties) {
				if prop.Conflict != nil {
					fn(prop.PathIdentifier, prop.Conflict)
				}
			}
		}
		for _, rel := range node.SortedRelationships() {
			for _, el := range rel.SortedElements() {
				if el.Conflict != nil {
					fn(el.PathIdentifier, el.Conflict)
				}
				for _, prop := range model.SortedProperties(el.Properties) {
					if prop.Conflict != nil {
						fn(prop.PathIdentifier, prop.Conflict)
					}
				}
			}
		}
	}
}

// Find returns the conflict with the given id.
func Find(root *model.EnrichedDiffRoot, id string) (*model.EnrichedDiffConflict, string, bool) {
	var (
		found *model.EnrichedDiffConflict
		path  string
	)
	Visit(root, func(p string, c *model.EnrichedDiffConflict) {
		if found == nil && c.UUID == id {
			found, path = c, p
		}
	})
	return found, path, found != nil
}
