// Package parser turns raw change paths into per-branch diff trees.
package parser

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/agenthands/graphdiff/internal/core/model"
	"github.com/agenthands/graphdiff/internal/schema"
)

// PathSource is the result of a raw path query.
type PathSource interface {
	Executed() bool
	Paths() []model.DatabasePath
}

// Result is a PathSource over paths that were already fetched.
type Result struct {
	paths []model.DatabasePath
}

func Executed(paths []model.DatabasePath) *Result {
	return &Result{paths: paths}
}

func (r *Result) Executed() bool { return r != nil }

func (r *Result) Paths() []model.DatabasePath { return r.paths }

type Parser struct {
	baseBranch model.BranchName
	diffBranch model.BranchName
	from       model.Timestamp
	to         model.Timestamp
	schema     schema.Provider
	logger     *slog.Logger

	roots map[model.BranchName]*model.DiffRoot
}

func New(baseBranch, diffBranch string, from, to model.Timestamp, provider schema.Provider, logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{
		baseBranch: model.BranchName(baseBranch),
		diffBranch: model.BranchName(diffBranch),
		from:       from,
		to:         to,
		schema:     provider,
		logger:     logger,
		roots:      make(map[model.BranchName]*model.DiffRoot),
	}
}

// Parse indexes every path of source, then applies the branch fork rules.
func (p *Parser) Parse(source PathSource) error {
	if source == nil || !source.Executed() {
		return model.ErrQueryNotExecuted
	}

	for _, path := range source.Paths() {
		if err := p.parsePath(path); err != nil {
			return err
		}
	}

	p.copyBasePrevious()
	for _, root := range p.roots {
		root.DropNetZero()
	}
	p.dropUnchangedBase()
	return nil
}

func (p *Parser) parsePath(path model.DatabasePath) error {
	if err := validateStatuses(path); err != nil {
		return &model.PathError{Op: "parse", Path: "data/" + path.NodeID, Err: err}
	}

	root := p.root(model.BranchName(path.DeepestBranch))
	node := root.EnsureNode(model.NodeUUID(path.NodeID), path.NodeKind, path.NodeChangedAt, path.NodeStatus)
	if !path.HasField() {
		return nil
	}

	switch path.FieldType {
	case model.FieldRelationship:
		rel := node.AddRelationship(p.relationship(node.Kind, path.DeepestBranch, path.FieldName))
		el := rel.Element(path.PeerID, path.PeerKind)
		el.Observe(path.FieldChangedAt, path.FieldStatus)
		if path.HasProperty() {
			prop := el.Property(path.PropertyType)
			if path.PropertyPeerKind != "" {
				prop.PeerKind = path.PropertyPeerKind
			}
			prop.AddValue(valueOf(path))
		}
	default:
		attr := node.Attribute(path.FieldID, path.FieldName, path.FieldChangedAt, path.FieldStatus)
		if path.HasProperty() {
			prop := attr.Property(path.PropertyType)
			if path.PropertyPeerKind != "" {
				prop.PeerKind = path.PropertyPeerKind
			}
			prop.AddValue(valueOf(path))
		}
	}
	return nil
}

func (p *Parser) relationship(kind, branch, name string) *model.DiffRelationship {
	rel := &model.DiffRelationship{
		Name:        name,
		Identifier:  name,
		Cardinality: model.CardinalityMany,
		Kind:        model.RelationshipGeneric,
	}

	ns, err := p.schema.NodeSchema(kind, branch)
	if err != nil {
		if !errors.Is(err, schema.ErrKindNotFound) {
			p.logger.Warn("schema lookup failed", "kind", kind, "branch", branch, "error", err)
		}
		return rel
	}
	if rs, ok := ns.Relationship(name); ok {
		rel.Identifier = rs.Identifier
		rel.Cardinality = rs.Cardinality
		rel.Kind = rs.Kind
	}
	return rel
}

func (p *Parser) root(branch model.BranchName) *model.DiffRoot {
	root, ok := p.roots[branch]
	if !ok {
		root = model.NewDiffRoot(uuid.NewString(), branch, p.from, p.to)
		p.roots[branch] = root
	}
	return root
}

// copyBasePrevious replaces the previous value of every non-base property that has
// a base counterpart with the base branch's record from before the window.
func (p *Parser) copyBasePrevious() {
	base, ok := p.roots[p.baseBranch]
	if !ok {
		return
	}
	for branch, root := range p.roots {
		if branch == p.baseBranch {
			continue
		}
		for _, node := range root.Nodes() {
			baseNode, err := base.Node(node.UUID)
			if err != nil {
				continue
			}
			for name, attr := range node.Attributes {
				baseAttr, ok := baseNode.Attributes[name]
				if !ok {
					continue
				}
				for pt, prop := range attr.Properties {
					if baseProp, ok := baseAttr.Properties[pt]; ok {
						p.copyPrevious(baseProp, prop)
					}
				}
			}
			for name, rel := range node.Relationships {
				baseRel, ok := baseNode.Relationships[name]
				if !ok {
					continue
				}
				for peer, el := range rel.Elements {
					baseEl, ok := baseRel.Elements[peer]
					if !ok {
						continue
					}
					for pt, prop := range el.Properties {
						if baseProp, ok := baseEl.Properties[pt]; ok {
							p.copyPrevious(baseProp, prop)
						}
					}
				}
			}
		}
	}
}

func (p *Parser) copyPrevious(base, target *model.DiffProperty) {
	if previous := base.PreviousValue(p.from); previous != nil {
		target.SetBasePrevious(previous)
	}
}

func (p *Parser) dropUnchangedBase() {
	if p.baseBranch == p.diffBranch {
		return
	}
	base, ok := p.roots[p.baseBranch]
	if !ok {
		return
	}
	changed := false
	base.Properties(func(prop *model.DiffProperty) {
		if prop.ChangedInWindow(p.from) {
			changed = true
		}
	})
	if !changed {
		delete(p.roots, p.baseBranch)
	}
}

// Root returns the tree parsed for branch.
func (p *Parser) Root(branch string) (*model.DiffRoot, bool) {
	root, ok := p.roots[model.BranchName(branch)]
	return root, ok
}

// Diffs pairs the base and feature trees. The feature tree is always present.
func (p *Parser) Diffs() *model.CalculatedDiffs {
	out := &model.CalculatedDiffs{
		BaseBranchName: string(p.baseBranch),
		DiffBranchName: string(p.diffBranch),
		DiffRoot:       p.root(p.diffBranch),
	}
	if base, ok := p.roots[p.baseBranch]; ok && p.baseBranch != p.diffBranch {
		out.BaseRoot = base
	}
	return out
}

func valueOf(path model.DatabasePath) model.DiffValue {
	return model.DiffValue{
		Value:     path.PropertyValue,
		ChangedAt: path.PropertyChangedAt,
		Status:    path.PropertyStatus,
	}
}

func validateStatuses(path model.DatabasePath) error {
	if _, err := model.ParseEdgeStatus(string(path.NodeStatus)); err != nil {
		return fmt.Errorf("node status: %w", err)
	}
	if path.HasField() {
		if _, err := model.ParseEdgeStatus(string(path.FieldStatus)); err != nil {
			return fmt.Errorf("field %s status: %w", path.FieldName, err)
		}
	}
	if path.HasProperty() {
		if _, err := model.ParseEdgeStatus(string(path.PropertyStatus)); err != nil {
			return fmt.Errorf("property %s status: %w", path.PropertyType, err)
		}
	}
	return nil
}
