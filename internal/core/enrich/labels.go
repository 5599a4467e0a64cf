package enrich

import (
	"context"
	"log/slog"
	"sort"

	"github.com/agenthands/graphdiff/internal/core/model"
	"github.com/agenthands/graphdiff/internal/schema"
)

// LabelKey identifies one label lookup result.
type LabelKey struct {
	Branch string
	ID     string
}

// LabelRequest asks for the labels of several nodes of one kind on one branch.
type LabelRequest struct {
	Branch string
	Kind   string
	IDs    []string
}

type LabelProvider interface {
	Labels(ctx context.Context, requests []LabelRequest) (map[LabelKey]string, error)
}

// Labels resolves display labels in two passes: every lookup is collected
// first, resolved with one provider call, then written back.
type Labels struct {
	provider LabelProvider
	schema   schema.Provider
	logger   *slog.Logger
}

func NewLabels(provider LabelProvider, schemaProvider schema.Provider, logger *slog.Logger) *Labels {
	if logger == nil {
		logger = slog.Default()
	}
	return &Labels{provider: provider, schema: schemaProvider, logger: logger}
}

func (s *Labels) Name() string { return "labels" }

type labelCollector struct {
	byGroup map[[2]string]map[string]struct{}
}

func (c *labelCollector) add(branch, kind string, id *string) {
	if id == nil || *id == "" || *id == model.NullValue {
		return
	}
	key := [2]string{branch, kind}
	if c.byGroup[key] == nil {
		c.byGroup[key] = make(map[string]struct{})
	}
	c.byGroup[key][*id] = struct{}{}
}

func (c *labelCollector) requests() []LabelRequest {
	out := make([]LabelRequest, 0, len(c.byGroup))
	for key, ids := range c.byGroup {
		req := LabelRequest{Branch: key[0], Kind: key[1], IDs: make([]string, 0, len(ids))}
		for id := range ids {
			req.IDs = append(req.IDs, id)
		}
		sort.Strings(req.IDs)
		out = append(out, req)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Branch != out[j].Branch {
			return out[i].Branch < out[j].Branch
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

func (s *Labels) Enrich(ctx context.Context, root *model.EnrichedDiffRoot) error {
	requests := Collect(root)
	if len(requests) == 0 {
		return nil
	}

	labels, err := s.provider.Labels(ctx, requests)
	if err != nil {
		s.logger.Warn("label lookup failed, continuing without labels",
			"base_branch", root.BaseBranchName,
			"diff_branch", root.DiffBranchName,
			"requests", len(requests),
			"error", err,
		)
		labels = nil
	}
	s.fill(root, labels)
	return nil
}

// branchFor resolves removed items against the base branch, everything else against the feature branch.
func branchFor(root *model.EnrichedDiffRoot, action model.Action) string {
	if action == model.ActionRemoved {
		return root.BaseBranchName
	}
	return root.DiffBranchName
}

// Collect lists every label lookup the tree needs, grouped by (branch, kind).
func Collect(root *model.EnrichedDiffRoot) []LabelRequest {
	c := &labelCollector{byGroup: make(map[[2]string]map[string]struct{})}
	collectProps := func(props map[model.PropertyType]*model.EnrichedDiffProperty, peerKind string) {
		for _, prop := range props {
			if !prop.PropertyType.IsPeerReference() {
				continue
			}
			kind := prop.PeerKind
			if kind == "" {
				kind = peerKind
			}
			branch := branchFor(root, prop.Action)
			c.add(branch, kind, prop.PreviousValue)
			c.add(branch, kind, prop.NewValue)
			if cf := prop.Conflict; cf != nil {
				c.add(root.BaseBranchName, kind, cf.BaseBranchValue)
				c.add(root.DiffBranchName, kind, cf.DiffBranchValue)
			}
		}
	}

	for _, node := range root.Nodes {
		uuid := node.UUID
		c.add(branchFor(root, node.Action), node.Kind, &uuid)
		for _, attr := range node.Attributes {
			collectProps(attr.Properties, "")
		}
		for _, rel := range node.Relationships {
			for _, el := range rel.Elements {
				peer := el.PeerID
				c.add(branchFor(root, el.Action), el.PeerKind, &peer)
				collectProps(el.Properties, el.PeerKind)
			}
		}
	}
	return c.requests()
}

func (s *Labels) fill(root *model.EnrichedDiffRoot, labels map[LabelKey]string) {
	lookup := func(branch string, id *string) string {
		if id == nil {
			return ""
		}
		return labels[LabelKey{Branch: branch, ID: *id}]
	}
	fillProps := func(props map[model.PropertyType]*model.EnrichedDiffProperty) {
		for _, prop := range props {
			if !prop.PropertyType.IsPeerReference() {
				continue
			}
			branch := branchFor(root, prop.Action)
			prop.PreviousLabel = lookup(branch, prop.PreviousValue)
			prop.NewLabel = lookup(branch, prop.NewValue)
			if cf := prop.Conflict; cf != nil {
				cf.BaseBranchLabel = lookup(root.BaseBranchName, cf.BaseBranchValue)
				cf.DiffBranchLabel = lookup(root.DiffBranchName, cf.DiffBranchValue)
			}
		}
	}

	for _, node := range root.Nodes {
		uuid := node.UUID
		node.Label = lookup(branchFor(root, node.Action), &uuid)
		for _, attr := range node.Attributes {
			fillProps(attr.Properties)
		}
		for _, rel := range node.Relationships {
			rel.Label = s.relationshipLabel(node.Kind, root.DiffBranchName, rel.Name)
			for _, el := range rel.Elements {
				peer := el.PeerID
				el.PeerLabel = lookup(branchFor(root, el.Action), &peer)
				fillProps(el.Properties)
			}
		}
	}
}

func (s *Labels) relationshipLabel(kind, branch, name string) string {
	ns, err := s.schema.NodeSchema(kind, branch)
	if err != nil {
		return ""
	}
	if rs, ok := ns.Relationship(name); ok {
		return rs.Label
	}
	return ""
}
