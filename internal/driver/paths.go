package driver

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/agenthands/graphdiff/internal/core/model"
)

var propertyTypes = []string{
	string(model.PropertyHasValue),
	string(model.PropertyIsVisible),
	string(model.PropertyIsProtected),
	string(model.PropertyHasSource),
	string(model.PropertyHasOwner),
	string(model.PropertyIsRelated),
}

// PathQuery reads raw change paths from the versioned graph.
type PathQuery struct {
	driver GraphDriver
}

func NewPathQuery(driver GraphDriver) *PathQuery {
	return &PathQuery{driver: driver}
}

func (q *PathQuery) QueryPaths(ctx context.Context, req model.PathQueryRequest) ([]model.DatabasePath, error) {
	specifiers := make([][]string, 0, len(req.FieldSpecifiers))
	for _, fs := range req.FieldSpecifiers {
		specifiers = append(specifiers, []string{fs.NodeUUID, fs.FieldName})
	}
	params := map[string]any{
		"branches":           req.Branches(),
		"from_time":          FormatTime(req.FromTime),
		"to_time":            FormatTime(req.ToTime),
		"namespaces_include": nonNil(req.NamespacesInclude),
		"namespaces_exclude": nonNil(req.NamespacesExclude),
		"kinds_include":      nonNil(req.KindsInclude),
		"kinds_exclude":      nonNil(req.KindsExclude),
		"field_specifiers":   specifiers,
		"property_types":     propertyTypes,
	}

	result, err := q.driver.ExecuteQuery(ctx, DiffPathsQuery, params)
	if err != nil {
		return nil, fmt.Errorf("failed to query diff paths: %w", err)
	}

	paths := make([]model.DatabasePath, 0, len(result.Records))
	for i, rec := range result.Records {
		p, err := toDatabasePath(rec)
		if err != nil {
			return nil, fmt.Errorf("failed to read diff path %d: %w", i, err)
		}
		paths = append(paths, p)
	}
	return paths, nil
}

func toDatabasePath(rec *neo4j.Record) (model.DatabasePath, error) {
	var (
		p   model.DatabasePath
		err error
	)
	read := func(dst *string, key string) {
		if err == nil {
			*dst, err = stringValue(rec, key)
		}
	}
	readTime := func(dst *model.Timestamp, key string) {
		if err == nil {
			*dst, err = timestampValue(rec, key)
		}
	}
	readStatus := func(dst *model.EdgeStatus, key string) {
		if err == nil {
			*dst, err = statusValue(rec, key)
		}
	}

	var fieldType, propertyType string
	read(&p.RootID, "root_id")
	read(&p.NodeID, "node_id")
	read(&p.NodeKind, "node_kind")
	readTime(&p.NodeChangedAt, "node_changed_at")
	readStatus(&p.NodeStatus, "node_status")
	read(&fieldType, "field_type")
	read(&p.FieldID, "field_id")
	read(&p.FieldName, "field_name")
	readTime(&p.FieldChangedAt, "field_changed_at")
	readStatus(&p.FieldStatus, "field_status")
	read(&p.PeerID, "peer_id")
	read(&p.PeerKind, "peer_kind")
	read(&propertyType, "property_type")
	read(&p.PropertyPeerKind, "property_peer_kind")
	readTime(&p.PropertyChangedAt, "property_changed_at")
	readStatus(&p.PropertyStatus, "property_status")
	read(&p.DeepestBranch, "deepest_branch")
	if err != nil {
		return p, err
	}

	p.FieldType = model.FieldType(fieldType)
	if propertyType != "" {
		if p.PropertyType, err = model.ParsePropertyType(propertyType); err != nil {
			return p, err
		}
		if p.PropertyValue, err = optionalString(rec, "property_value"); err != nil {
			return p, err
		}
	}
	return p, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
