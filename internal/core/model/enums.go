package model

import "fmt"

// Action is what happened to a node, field or property inside a diff window.
type Action string

const (
	ActionAdded     Action = "added"
	ActionRemoved   Action = "removed"
	ActionUpdated   Action = "updated"
	ActionUnchanged Action = "unchanged"
)

// EdgeStatus is the status stored on every versioned edge of the graph.
type EdgeStatus string

const (
	StatusActive  EdgeStatus = "active"
	StatusDeleted EdgeStatus = "deleted"
)

// ParseEdgeStatus accepts only the statuses the storage layer can produce.
func ParseEdgeStatus(s string) (EdgeStatus, error) {
	switch EdgeStatus(s) {
	case StatusActive:
		return StatusActive, nil
	case StatusDeleted:
		return StatusDeleted, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownEdgeStatus, s)
	}
}

// ActionFor applies the window rule shared by nodes, attributes and relationship elements.
func ActionFor(changedAt, from Timestamp, status EdgeStatus) Action {
	if changedAt.Before(from) {
		return ActionUpdated
	}
	if status == StatusDeleted {
		return ActionRemoved
	}
	return ActionAdded
}

// PropertyType names the edge type linking a field to one of its properties.
type PropertyType string

const (
	PropertyHasValue    PropertyType = "HAS_VALUE"
	PropertyIsVisible   PropertyType = "IS_VISIBLE"
	PropertyIsProtected PropertyType = "IS_PROTECTED"
	PropertyHasSource   PropertyType = "HAS_SOURCE"
	PropertyHasOwner    PropertyType = "HAS_OWNER"
	PropertyIsRelated   PropertyType = "IS_RELATED"
)

func ParsePropertyType(s string) (PropertyType, error) {
	switch pt := PropertyType(s); pt {
	case PropertyHasValue, PropertyIsVisible, PropertyIsProtected,
		PropertyHasSource, PropertyHasOwner, PropertyIsRelated:
		return pt, nil
	default:
		return "", fmt.Errorf("unknown property type %q", s)
	}
}

// IsPeerReference reports whether values of this property are node UUIDs.
func (pt PropertyType) IsPeerReference() bool {
	return pt == PropertyHasSource || pt == PropertyHasOwner || pt == PropertyIsRelated
}

// IsFlag reports whether values of this property are booleans.
func (pt PropertyType) IsFlag() bool {
	return pt == PropertyIsVisible || pt == PropertyIsProtected
}

// FieldType distinguishes attribute paths from relationship paths.
type FieldType string

const (
	FieldAttribute    FieldType = "attribute"
	FieldRelationship FieldType = "relationship"
)

type Cardinality string

const (
	CardinalityOne  Cardinality = "one"
	CardinalityMany Cardinality = "many"
)

type RelationshipKind string

const (
	RelationshipGeneric   RelationshipKind = "generic"
	RelationshipParent    RelationshipKind = "parent"
	RelationshipComponent RelationshipKind = "component"
)

// ConflictSelection is the user's choice of which branch wins a conflict.
type ConflictSelection string

const (
	SelectionUnset      ConflictSelection = ""
	SelectionBaseBranch ConflictSelection = "base_branch"
	SelectionDiffBranch ConflictSelection = "diff_branch"
)

func ParseConflictSelection(s string) (ConflictSelection, error) {
	switch sel := ConflictSelection(s); sel {
	case SelectionUnset, SelectionBaseBranch, SelectionDiffBranch:
		return sel, nil
	default:
		return "", fmt.Errorf("unknown conflict selection %q", s)
	}
}

// KeepBranch is how a check record mirrors a conflict selection.
type KeepBranch string

const (
	KeepNone   KeepBranch = ""
	KeepTarget KeepBranch = "target"
	KeepSource KeepBranch = "source"
)

func (s ConflictSelection) KeepBranch() KeepBranch {
	switch s {
	case SelectionBaseBranch:
		return KeepTarget
	case SelectionDiffBranch:
		return KeepSource
	default:
		return KeepNone
	}
}

// NullValue is the canonical marker for an absent property value.
const NullValue = "NULL"
