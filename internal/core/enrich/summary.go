package enrich

import (
	"context"

	"github.com/agenthands/graphdiff/internal/core/model"
)

// Summary recomputes the aggregate counters bottom-up.
type Summary struct{}

func (Summary) Name() string { return "summary" }

func (Summary) Enrich(ctx context.Context, root *model.EnrichedDiffRoot) error {
	Summarize(root)
	return nil
}

// Summarize resets and recounts every summary of the tree. A node's
// contains_conflict also covers the child nodes nested under its relationships.
func Summarize(root *model.EnrichedDiffRoot) {
	root.Reset()
	for _, node := range root.Nodes {
		summarizeNode(node)
	}
	for _, node := range root.Nodes {
		if !node.ContainsConflict {
			node.ContainsConflict = childHasConflict(root, node, map[string]bool{node.UUID: true})
		}
		root.Count(node.Action)
		root.NumConflicts += node.NumConflicts
		root.ContainsConflict = root.ContainsConflict || node.ContainsConflict
	}
}

func summarizeNode(node *model.EnrichedDiffNode) {
	node.Reset()
	if node.Conflict != nil {
		node.NumConflicts++
	}

	for _, attr := range node.Attributes {
		attr.Reset()
		summarizeProperties(&attr.DiffSummary, attr.Properties)
		node.Count(attr.Action)
		node.NumConflicts += attr.NumConflicts
	}

	for _, rel := range node.Relationships {
		rel.Reset()
		for _, el := range rel.Elements {
			el.Reset()
			if el.Conflict != nil {
				el.NumConflicts++
			}
			summarizeProperties(&el.DiffSummary, el.Properties)
			el.ContainsConflict = el.NumConflicts > 0
			rel.Count(el.Action)
			rel.NumConflicts += el.NumConflicts
		}
		rel.ContainsConflict = rel.NumConflicts > 0
		if len(rel.Elements) > 0 {
			node.Count(rel.Action)
		}
		node.NumConflicts += rel.NumConflicts
	}
	node.ContainsConflict = node.NumConflicts > 0
}

func summarizeProperties(s *model.DiffSummary, props map[model.PropertyType]*model.EnrichedDiffProperty) {
	for _, prop := range props {
		s.Count(prop.Action)
		if prop.Conflict != nil {
			s.NumConflicts++
		}
	}
	s.ContainsConflict = s.NumConflicts > 0
}

func childHasConflict(root *model.EnrichedDiffRoot, node *model.EnrichedDiffNode, seen map[string]bool) bool {
	for _, rel := range node.Relationships {
		for _, id := range rel.NodeUUIDs {
			if seen[id] {
				continue
			}
			seen[id] = true
			child, ok := root.Node(id)
			if !ok {
				continue
			}
			if child.NumConflicts > 0 || childHasConflict(root, child, seen) {
				return true
			}
		}
	}
	return false
}
