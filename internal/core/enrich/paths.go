package enrich

import (
	"context"

	"github.com/agenthands/graphdiff/internal/core/model"
)

// PathIdentifiers stamps every element of the tree with its canonical path.
type PathIdentifiers struct{}

func (PathIdentifiers) Name() string { return "path_identifiers" }

func (PathIdentifiers) Enrich(ctx context.Context, root *model.EnrichedDiffRoot) error {
	for _, node := range root.Nodes {
		node.PathIdentifier = NodePath(node.UUID)
		for _, attr := range node.Attributes {
			attr.PathIdentifier = node.PathIdentifier + "/" + attr.Name
			for _, prop := range attr.Properties {
				prop.PathIdentifier = PropertyPath(attr.PathIdentifier, prop.PropertyType)
			}
		}
		for _, rel := range node.Relationships {
			rel.PathIdentifier = node.PathIdentifier + "/" + rel.Name
			for _, el := range rel.Elements {
				el.PathIdentifier = rel.PathIdentifier + "/" + el.PeerID
				for _, prop := range el.Properties {
					prop.PathIdentifier = PropertyPath(el.PathIdentifier, prop.PropertyType)
				}
			}
		}
	}
	return nil
}

func NodePath(uuid string) string {
	return "data/" + uuid
}

// PropertyPath appends the property segment: "value" for HAS_VALUE, "property/<type>" otherwise.
func PropertyPath(parent string, pt model.PropertyType) string {
	if pt == model.PropertyHasValue {
		return parent + "/value"
	}
	return parent + "/property/" + string(pt)
}
