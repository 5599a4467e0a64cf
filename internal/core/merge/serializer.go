// Package merge turns a conflict-resolved diff into ordered mutation batches
// for the base branch.
package merge

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/agenthands/graphdiff/internal/core/model"
	"github.com/agenthands/graphdiff/internal/metrics"
	"github.com/agenthands/graphdiff/internal/schema"
	"github.com/agenthands/graphdiff/internal/tracing"
)

const DefaultMaxBatchSize = 100

// NodeOperation creates, updates or deletes one node.
type NodeOperation struct {
	UUID          string                  `json:"uuid"`
	Kind          string                  `json:"kind"`
	Action        model.Action            `json:"action"`
	Attributes    []AttributeOperation    `json:"attributes,omitempty"`
	Relationships []RelationshipOperation `json:"relationships,omitempty"`
}

// AttributeOperation marks a whole attribute as added or removed.
type AttributeOperation struct {
	Name   string       `json:"name"`
	Action model.Action `json:"action"`
}

// RelationshipOperation links or unlinks one peer.
type RelationshipOperation struct {
	Name       string       `json:"name"`
	Identifier string       `json:"identifier"`
	PeerID     string       `json:"peer_id"`
	Action     model.Action `json:"action"`
}

// PropertyOperation adds or removes one property edge. Updates are a removal
// followed by an addition.
type PropertyOperation struct {
	NodeUUID     string             `json:"node_uuid"`
	FieldType    model.FieldType    `json:"field_type"`
	FieldName    string             `json:"field_name"`
	PeerID       string             `json:"peer_id,omitempty"`
	PropertyType model.PropertyType `json:"property_type"`
	Action       model.Action       `json:"action"`
	Value        any                `json:"value"`
}

type MergeBatch struct {
	Nodes      []NodeOperation     `json:"nodes"`
	Properties []PropertyOperation `json:"properties"`
}

// Stats summarizes a batch for previews.
type Stats struct {
	Nodes      int `json:"nodes"`
	Attributes int `json:"attributes"`
	Links      int `json:"links"`
	Properties int `json:"properties"`
}

func (b *MergeBatch) Stats() Stats {
	s := Stats{Nodes: len(b.Nodes), Properties: len(b.Properties)}
	for _, n := range b.Nodes {
		s.Attributes += len(n.Attributes)
		s.Links += len(n.Relationships)
	}
	return s
}

type Serializer struct {
	schema       schema.Provider
	maxBatchSize int
}

func NewSerializer(provider schema.Provider, maxBatchSize int) *Serializer {
	if maxBatchSize <= 0 {
		maxBatchSize = DefaultMaxBatchSize
	}
	return &Serializer{schema: provider, maxBatchSize: maxBatchSize}
}

// Serialize walks diff in node order and hands batches of at most maxBatchSize
// nodes to yield. Every operation is keyed by stable identifiers, so replaying
// a partially applied stream is safe.
func (s *Serializer) Serialize(ctx context.Context, diff *model.EnrichedDiffRoot, yield func(*MergeBatch) error) error {
	ctx, span := tracing.Start(ctx, "merge.serialize",
		attribute.String("graphdiff.base_branch", diff.BaseBranchName),
		attribute.String("graphdiff.diff_branch", diff.DiffBranchName),
		attribute.Int("graphdiff.nodes", len(diff.Nodes)),
	)
	defer span.End()

	batch := &MergeBatch{}
	flush := func() error {
		if len(batch.Nodes) == 0 && len(batch.Properties) == 0 {
			return nil
		}
		if err := yield(batch); err != nil {
			return err
		}
		metrics.MergeBatches.Inc()
		batch = &MergeBatch{}
		return nil
	}

	for _, node := range diff.SortedNodes() {
		if err := ctx.Err(); err != nil {
			return tracing.Fail(span, err)
		}
		op, props, err := s.serializeNode(diff.DiffBranchName, node)
		if err != nil {
			return tracing.Fail(span, err)
		}
		if op == nil {
			continue
		}
		batch.Nodes = append(batch.Nodes, *op)
		batch.Properties = append(batch.Properties, props...)
		if len(batch.Nodes) >= s.maxBatchSize {
			if err := flush(); err != nil {
				return tracing.Fail(span, err)
			}
		}
	}
	if err := flush(); err != nil {
		return tracing.Fail(span, err)
	}
	return nil
}

// apply reports whether a change guarded by c goes to the base branch.
func apply(c *model.EnrichedDiffConflict, path string) (bool, error) {
	if c == nil {
		return true, nil
	}
	switch c.SelectedBranch {
	case model.SelectionDiffBranch:
		return true, nil
	case model.SelectionBaseBranch:
		return false, nil
	default:
		return false, &model.PathError{Op: "merge", Path: path, Err: model.ErrUnresolvedConflict}
	}
}

func (s *Serializer) serializeNode(branch string, node *model.EnrichedDiffNode) (*NodeOperation, []PropertyOperation, error) {
	if node.Action == model.ActionUnchanged {
		return nil, nil, nil
	}
	ok, err := apply(node.Conflict, node.PathIdentifier)
	if err != nil || !ok {
		return nil, nil, err
	}

	ns, err := s.schema.NodeSchema(node.Kind, branch)
	if err != nil {
		ns = &schema.NodeSchema{Kind: node.Kind}
	}

	op := &NodeOperation{UUID: node.UUID, Kind: node.Kind, Action: node.Action}
	metrics.MergeOperations.WithLabelValues("node", string(node.Action)).Inc()
	var props []PropertyOperation

	for _, attr := range node.SortedAttributes() {
		kind := schema.KindText
		if as, ok := ns.Attribute(attr.Name); ok {
			kind = as.Kind
		}
		base := PropertyOperation{NodeUUID: node.UUID, FieldType: model.FieldAttribute, FieldName: attr.Name}
		var attrProps []PropertyOperation
		for _, prop := range model.SortedProperties(attr.Properties) {
			ok, err := apply(prop.Conflict, prop.PathIdentifier)
			if err != nil {
				return nil, nil, err
			}
			if !ok {
				continue
			}
			ops, err := translate(base, prop, kind)
			if err != nil {
				return nil, nil, err
			}
			attrProps = append(attrProps, ops...)
		}
		if attr.Action == model.ActionAdded || attr.Action == model.ActionRemoved {
			op.Attributes = append(op.Attributes, AttributeOperation{Name: attr.Name, Action: attr.Action})
			metrics.MergeOperations.WithLabelValues("attribute", string(attr.Action)).Inc()
		}
		props = append(props, attrProps...)
	}

	for _, rel := range node.SortedRelationships() {
		for _, el := range rel.SortedElements() {
			if el.Action == model.ActionUnchanged {
				continue
			}
			ok, err := apply(el.Conflict, el.PathIdentifier)
			if err != nil {
				return nil, nil, err
			}
			if !ok {
				continue
			}
			if el.Action == model.ActionAdded || el.Action == model.ActionRemoved {
				op.Relationships = append(op.Relationships, RelationshipOperation{
					Name: rel.Name, Identifier: rel.Identifier, PeerID: el.PeerID, Action: el.Action,
				})
				metrics.MergeOperations.WithLabelValues("relationship", string(el.Action)).Inc()
			}
			elProps, err := serializeElement(node.UUID, rel, el)
			if err != nil {
				return nil, nil, err
			}
			props = append(props, elProps...)
		}
	}

	for _, p := range props {
		metrics.MergeOperations.WithLabelValues("property", string(p.Action)).Inc()
	}
	return op, props, nil
}

var flagDefaults = map[model.PropertyType]string{
	model.PropertyIsVisible:   "true",
	model.PropertyIsProtected: "false",
}

func serializeElement(nodeUUID string, rel *model.EnrichedDiffRelationship, el *model.EnrichedDiffSingleRelationship) ([]PropertyOperation, error) {
	base := PropertyOperation{NodeUUID: nodeUUID, FieldType: model.FieldRelationship, FieldName: rel.Name, PeerID: el.PeerID}
	var out []PropertyOperation
	for _, prop := range model.SortedProperties(el.Properties) {
		if prop.PropertyType.IsFlag() && el.Action != model.ActionRemoved {
			continue
		}
		ok, err := apply(prop.Conflict, prop.PathIdentifier)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		ops, err := translate(base, prop, schema.KindText)
		if err != nil {
			return nil, err
		}
		out = append(out, ops...)
	}
	if el.Action == model.ActionRemoved {
		return out, nil
	}

	// flags are always rewritten so no stale base-branch state survives the merge
	for _, pt := range []model.PropertyType{model.PropertyIsProtected, model.PropertyIsVisible} {
		raw := flagDefaults[pt]
		if prop, ok := el.Properties[pt]; ok && !model.IsNullValue(prop.NewValue) {
			raw = *prop.NewValue
		}
		value, err := convert(pt, schema.KindBoolean, &raw)
		if err != nil {
			return nil, &model.PathError{Op: "merge", Path: el.PathIdentifier, Err: err}
		}
		op := base
		op.PropertyType = pt
		op.Action = model.ActionAdded
		op.Value = value
		out = append(out, op)
	}
	return out, nil
}

func translate(base PropertyOperation, prop *model.EnrichedDiffProperty, kind schema.AttributeKind) ([]PropertyOperation, error) {
	emit := func(action model.Action, raw *string) (PropertyOperation, error) {
		value, err := convert(prop.PropertyType, kind, raw)
		if err != nil {
			return PropertyOperation{}, &model.PathError{Op: "merge", Path: prop.PathIdentifier, Err: err}
		}
		op := base
		op.PropertyType = prop.PropertyType
		op.Action = action
		op.Value = value
		return op, nil
	}

	var out []PropertyOperation
	switch prop.Action {
	case model.ActionAdded:
		op, err := emit(model.ActionAdded, prop.NewValue)
		if err != nil {
			return nil, err
		}
		out = append(out, op)
	case model.ActionRemoved:
		op, err := emit(model.ActionRemoved, prop.PreviousValue)
		if err != nil {
			return nil, err
		}
		out = append(out, op)
	case model.ActionUpdated:
		removed, err := emit(model.ActionRemoved, prop.PreviousValue)
		if err != nil {
			return nil, err
		}
		added, err := emit(model.ActionAdded, prop.NewValue)
		if err != nil {
			return nil, err
		}
		out = append(out, removed, added)
	}
	return out, nil
}

// convert maps a stored string value to its native type. Absent values become
// the NULL sentinel.
func convert(pt model.PropertyType, kind schema.AttributeKind, raw *string) (any, error) {
	if model.IsNullValue(raw) {
		return model.NullValue, nil
	}
	v := *raw
	switch {
	case pt.IsFlag():
		return strconv.ParseBool(v)
	case pt.IsPeerReference():
		return v, nil
	}

	switch kind {
	case schema.KindNumber:
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i, nil
		}
		return strconv.ParseFloat(v, 64)
	case schema.KindBoolean:
		return strconv.ParseBool(strings.ToLower(v))
	case schema.KindDateTime:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("invalid datetime %q: %w", v, err)
		}
		return t.UTC(), nil
	case schema.KindJSON, schema.KindList:
		var out any
		if err := json.Unmarshal([]byte(v), &out); err != nil {
			return nil, fmt.Errorf("invalid %s value: %w", kind, err)
		}
		return out, nil
	default:
		return v, nil
	}
}
