package enrich

import (
	"context"
	"log/slog"
	"sort"

	"github.com/agenthands/graphdiff/internal/core/model"
	"github.com/agenthands/graphdiff/internal/schema"
)

// Parent is a node's hierarchical parent as stored on a branch.
type Parent struct {
	ID   string
	Kind string
}

// ParentResolver looks up the current parent of several nodes of one kind.
type ParentResolver interface {
	Parents(ctx context.Context, branch, kind string, ids []string) (map[string]Parent, error)
}

// Hierarchy adds the ancestors of every hierarchical node to the tree, as
// Unchanged placeholders when they did not change themselves.
type Hierarchy struct {
	schema   schema.Provider
	resolver ParentResolver
	logger   *slog.Logger
}

func NewHierarchy(provider schema.Provider, resolver ParentResolver, logger *slog.Logger) *Hierarchy {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hierarchy{schema: provider, resolver: resolver, logger: logger}
}

func (s *Hierarchy) Name() string { return "hierarchy" }

func (s *Hierarchy) Enrich(ctx context.Context, root *model.EnrichedDiffRoot) error {
	branch := root.DiffBranchName
	visited := make(map[string]bool)
	pending := root.SortedNodes()

	for len(pending) > 0 {
		byKind := make(map[string][]*model.EnrichedDiffNode)
		relations := make(map[string]schema.RelationshipSchema)
		for _, node := range pending {
			if visited[node.UUID] {
				continue
			}
			visited[node.UUID] = true
			ns, err := s.schema.NodeSchema(node.Kind, branch)
			if err != nil {
				continue
			}
			rs, ok := ns.ParentRelationship()
			if !ok {
				continue
			}
			relations[node.Kind] = rs
			byKind[node.Kind] = append(byKind[node.Kind], node)
		}

		var added []*model.EnrichedDiffNode
		for _, kind := range sortedKeys(byKind) {
			nodes := byKind[kind]
			rs := relations[kind]
			parents := s.resolve(ctx, branch, kind, rs, nodes)
			for _, node := range nodes {
				parent, ok := parents[node.UUID]
				if !ok || parent.ID == "" || parent.ID == node.UUID {
					continue
				}
				if parent.Kind == "" {
					parent.Kind = rs.Peer
				}
				parentNode, exists := root.Node(parent.ID)
				if !exists {
					parentNode = model.NewEnrichedNode(parent.ID, parent.Kind, model.ActionUnchanged, model.Timestamp{})
					root.AddNode(parentNode)
					added = append(added, parentNode)
				}
				s.link(branch, node, rs, parentNode)
			}
		}
		pending = added
	}
	return nil
}

// resolve prefers the parent recorded in the diff itself and asks the resolver
// for the rest in one call per kind.
func (s *Hierarchy) resolve(ctx context.Context, branch, kind string, rs schema.RelationshipSchema, nodes []*model.EnrichedDiffNode) map[string]Parent {
	out := make(map[string]Parent, len(nodes))
	var missing []string
	for _, node := range nodes {
		if parent, ok := parentFromDiff(node, rs); ok {
			out[node.UUID] = parent
			continue
		}
		missing = append(missing, node.UUID)
	}
	if len(missing) == 0 {
		return out
	}

	found, err := s.resolver.Parents(ctx, branch, kind, missing)
	if err != nil {
		s.logger.Warn("parent lookup failed", "branch", branch, "kind", kind, "nodes", len(missing), "error", err)
		return out
	}
	for id, parent := range found {
		out[id] = parent
	}
	return out
}

func parentFromDiff(node *model.EnrichedDiffNode, rs schema.RelationshipSchema) (Parent, bool) {
	rel, ok := node.Relationships[rs.Name]
	if !ok || len(rel.Elements) == 0 {
		return Parent{}, false
	}
	var fallback *model.EnrichedDiffSingleRelationship
	for _, el := range rel.SortedElements() {
		if el.Action != model.ActionRemoved {
			return Parent{ID: el.PeerID, Kind: el.PeerKind}, true
		}
		fallback = el
	}
	// a removed node keeps rendering under the parent it was removed from
	return Parent{ID: fallback.PeerID, Kind: fallback.PeerKind}, true
}

func (s *Hierarchy) link(branch string, child *model.EnrichedDiffNode, rs schema.RelationshipSchema, parent *model.EnrichedDiffNode) {
	if _, ok := child.Relationships[rs.Name]; !ok {
		rel := model.NewEnrichedRelationship(rs.Name, model.CardinalityOne, model.RelationshipParent, model.ActionUnchanged)
		rel.Identifier = rs.Identifier
		rel.Elements[parent.UUID] = model.NewEnrichedElement(parent.UUID, parent.Kind, model.ActionUnchanged, model.Timestamp{})
		child.Relationships[rs.Name] = rel
	}

	name, identifier := rs.Identifier, rs.Identifier
	if ns, err := s.schema.NodeSchema(parent.Kind, branch); err == nil {
		if children, ok := ns.ChildrenRelationship(child.Kind); ok {
			name, identifier = children.Name, children.Identifier
		}
	}
	rel, ok := parent.Relationships[name]
	if !ok {
		rel = model.NewEnrichedRelationship(name, model.CardinalityMany, model.RelationshipParent, model.ActionUnchanged)
		rel.Identifier = identifier
		parent.Relationships[name] = rel
	}
	rel.Kind = model.RelationshipParent
	rel.AddChildNode(child.UUID)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
