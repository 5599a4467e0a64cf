// Package schema exposes the read-only node schema lookups the diff engine needs.
package schema

import (
	"errors"

	"github.com/agenthands/graphdiff/internal/core/model"
)

var ErrKindNotFound = errors.New("schema kind not found")

// AttributeKind drives how raw attribute values are converted for merge.
type AttributeKind string

const (
	KindText     AttributeKind = "Text"
	KindNumber   AttributeKind = "Number"
	KindBoolean  AttributeKind = "Boolean"
	KindDateTime AttributeKind = "DateTime"
	KindJSON     AttributeKind = "JSON"
	KindList     AttributeKind = "List"
)

type AttributeSchema struct {
	Name     string        `toml:"name"`
	Kind     AttributeKind `toml:"kind"`
	Optional bool          `toml:"optional"`
}

type RelationshipSchema struct {
	Name        string                 `toml:"name"`
	Identifier  string                 `toml:"identifier"`
	Peer        string                 `toml:"peer"`
	Label       string                 `toml:"label"`
	Cardinality model.Cardinality      `toml:"cardinality"`
	Kind        model.RelationshipKind `toml:"kind"`
}

type NodeSchema struct {
	Kind          string               `toml:"kind"`
	Namespace     string               `toml:"namespace"`
	Label         string               `toml:"label"`
	Attributes    []AttributeSchema    `toml:"attributes"`
	Relationships []RelationshipSchema `toml:"relationships"`
}

func (s *NodeSchema) Attribute(name string) (AttributeSchema, bool) {
	for _, a := range s.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return AttributeSchema{}, false
}

func (s *NodeSchema) Relationship(name string) (RelationshipSchema, bool) {
	for _, r := range s.Relationships {
		if r.Name == name {
			return r, true
		}
	}
	return RelationshipSchema{}, false
}

// ParentRelationship returns the relationship pointing at the node's hierarchical parent.
func (s *NodeSchema) ParentRelationship() (RelationshipSchema, bool) {
	for _, r := range s.Relationships {
		if r.Kind == model.RelationshipParent && r.Cardinality == model.CardinalityOne {
			return r, true
		}
	}
	return RelationshipSchema{}, false
}

// ChildrenRelationship returns the relationship on a parent kind that nests nodes of childKind.
func (s *NodeSchema) ChildrenRelationship(childKind string) (RelationshipSchema, bool) {
	for _, r := range s.Relationships {
		if r.Kind == model.RelationshipParent && r.Cardinality == model.CardinalityMany && r.Peer == childKind {
			return r, true
		}
	}
	return RelationshipSchema{}, false
}

// Provider answers schema questions for a kind on a branch.
type Provider interface {
	NodeSchema(kind, branch string) (*NodeSchema, error)
}
