package model

import "time"

type BranchName string

type NodeUUID string

// TrackingID names a reusable diff (for example the one behind a proposed change).
type TrackingID string

type Branch struct {
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"created_at"`
	OriginBranch *string   `json:"origin_branch,omitempty"`
	IsDefault    bool      `json:"is_default"`
}

// DatabasePath is one change record returned by the raw path query.
type DatabasePath struct {
	RootID string `json:"root_id"`

	NodeID        string     `json:"node_id"`
	NodeKind      string     `json:"node_kind"`
	NodeChangedAt Timestamp  `json:"node_changed_at"`
	NodeStatus    EdgeStatus `json:"node_status"`

	// Field* are empty when the path stops at the node.
	FieldType      FieldType  `json:"field_type,omitempty"`
	FieldID        string     `json:"field_id,omitempty"`
	FieldName      string     `json:"field_name,omitempty"`
	FieldChangedAt Timestamp  `json:"field_changed_at"`
	FieldStatus    EdgeStatus `json:"field_status,omitempty"`

	// Peer* identify the other end of a relationship path.
	PeerID   string `json:"peer_id,omitempty"`
	PeerKind string `json:"peer_kind,omitempty"`

	PropertyType      PropertyType `json:"property_type,omitempty"`
	PropertyValue     *string      `json:"property_value,omitempty"`
	PropertyPeerKind  string       `json:"property_peer_kind,omitempty"`
	PropertyChangedAt Timestamp    `json:"property_changed_at"`
	PropertyStatus    EdgeStatus   `json:"property_status,omitempty"`

	DeepestBranch string `json:"deepest_branch"`
}

func (p DatabasePath) HasField() bool { return p.FieldName != "" }

func (p DatabasePath) HasProperty() bool { return p.PropertyType != "" }

// NodeFieldSpecifier forces a (node, field) pair into a path query result.
type NodeFieldSpecifier struct {
	NodeUUID  string `json:"node_uuid"`
	FieldName string `json:"field_name"`
}

// PathQueryRequest is what the diff calculator asks the storage layer for.
type PathQueryRequest struct {
	BaseBranch        string
	DiffBranch        string
	FromTime          Timestamp
	ToTime            Timestamp
	NamespacesInclude []string
	NamespacesExclude []string
	KindsInclude      []string
	KindsExclude      []string
	FieldSpecifiers   []NodeFieldSpecifier
}

// Branches returns the distinct branches the query must read.
func (r PathQueryRequest) Branches() []string {
	if r.BaseBranch == r.DiffBranch {
		return []string{r.BaseBranch}
	}
	return []string{r.BaseBranch, r.DiffBranch}
}

// StringPtr is a small helper for optional values.
func StringPtr(s string) *string { return &s }

// ValueOrNull renders an optional value with the NULL sentinel.
func ValueOrNull(v *string) string {
	if v == nil {
		return NullValue
	}
	return *v
}

// EqualValues compares optional values, treating nil and the NULL sentinel alike.
func EqualValues(a, b *string) bool {
	return ValueOrNull(a) == ValueOrNull(b)
}

func IsNullValue(v *string) bool {
	return v == nil || *v == NullValue
}
