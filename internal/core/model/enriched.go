package model

import "sort"

// DiffSummary carries the aggregate counters of one tree element.
type DiffSummary struct {
	NumAdded         int  `json:"num_added"`
	NumUpdated       int  `json:"num_updated"`
	NumRemoved       int  `json:"num_removed"`
	NumConflicts     int  `json:"num_conflicts"`
	ContainsConflict bool `json:"contains_conflict"`
}

// Count adds one occurrence of action.
func (s *DiffSummary) Count(action Action) {
	switch action {
	case ActionAdded:
		s.NumAdded++
	case ActionUpdated:
		s.NumUpdated++
	case ActionRemoved:
		s.NumRemoved++
	}
}

func (s *DiffSummary) Reset() { *s = DiffSummary{} }

type EnrichedDiffProperty struct {
	PropertyType   PropertyType          `json:"property_type"`
	PreviousValue  *string               `json:"previous_value"`
	NewValue       *string               `json:"new_value"`
	PreviousLabel  string                `json:"previous_label,omitempty"`
	NewLabel       string                `json:"new_label,omitempty"`
	PeerKind       string                `json:"peer_kind,omitempty"`
	Action         Action                `json:"action"`
	ChangedAt      Timestamp             `json:"changed_at"`
	PathIdentifier string                `json:"path_identifier"`
	Conflict       *EnrichedDiffConflict `json:"conflict,omitempty"`
}

func (p *EnrichedDiffProperty) Clone() *EnrichedDiffProperty {
	out := *p
	out.PreviousValue = cloneValue(p.PreviousValue)
	out.NewValue = cloneValue(p.NewValue)
	out.Conflict = p.Conflict.Clone()
	return &out
}

type EnrichedDiffAttribute struct {
	Name           string                                 `json:"name"`
	Action         Action                                 `json:"action"`
	ChangedAt      Timestamp                              `json:"changed_at"`
	PathIdentifier string                                 `json:"path_identifier"`
	Properties     map[PropertyType]*EnrichedDiffProperty `json:"properties"`
	DiffSummary
}

func NewEnrichedAttribute(name string, action Action, changedAt Timestamp) *EnrichedDiffAttribute {
	return &EnrichedDiffAttribute{
		Name:       name,
		Action:     action,
		ChangedAt:  changedAt,
		Properties: make(map[PropertyType]*EnrichedDiffProperty),
	}
}

func (a *EnrichedDiffAttribute) Clone() *EnrichedDiffAttribute {
	out := *a
	out.Properties = cloneProperties(a.Properties)
	return &out
}

// EnrichedDiffSingleRelationship is one peer of an enriched relationship.
type EnrichedDiffSingleRelationship struct {
	PeerID         string                                 `json:"peer_id"`
	PeerKind       string                                 `json:"peer_kind,omitempty"`
	PeerLabel      string                                 `json:"peer_label,omitempty"`
	Action         Action                                 `json:"action"`
	ChangedAt      Timestamp                              `json:"changed_at"`
	PathIdentifier string                                 `json:"path_identifier"`
	Conflict       *EnrichedDiffConflict                  `json:"conflict,omitempty"`
	Properties     map[PropertyType]*EnrichedDiffProperty `json:"properties"`
	DiffSummary
}

func NewEnrichedElement(peerID, peerKind string, action Action, changedAt Timestamp) *EnrichedDiffSingleRelationship {
	return &EnrichedDiffSingleRelationship{
		PeerID:     peerID,
		PeerKind:   peerKind,
		Action:     action,
		ChangedAt:  changedAt,
		Properties: make(map[PropertyType]*EnrichedDiffProperty),
	}
}

func (e *EnrichedDiffSingleRelationship) Clone() *EnrichedDiffSingleRelationship {
	out := *e
	out.Conflict = e.Conflict.Clone()
	out.Properties = cloneProperties(e.Properties)
	return &out
}

type EnrichedDiffRelationship struct {
	Name           string                                     `json:"name"`
	Identifier     string                                     `json:"identifier,omitempty"`
	Label          string                                     `json:"label,omitempty"`
	Cardinality    Cardinality                                `json:"cardinality"`
	Kind           RelationshipKind                           `json:"kind"`
	Action         Action                                     `json:"action"`
	ChangedAt      Timestamp                                  `json:"changed_at"`
	PathIdentifier string                                     `json:"path_identifier"`
	Elements       map[string]*EnrichedDiffSingleRelationship `json:"elements"`
	// NodeUUIDs are the child nodes nested under this relationship.
	NodeUUIDs []string `json:"node_uuids,omitempty"`
	DiffSummary
}

func NewEnrichedRelationship(name string, cardinality Cardinality, kind RelationshipKind, action Action) *EnrichedDiffRelationship {
	return &EnrichedDiffRelationship{
		Name:        name,
		Cardinality: cardinality,
		Kind:        kind,
		Action:      action,
		Elements:    make(map[string]*EnrichedDiffSingleRelationship),
	}
}

func (r *EnrichedDiffRelationship) Clone() *EnrichedDiffRelationship {
	out := *r
	out.Elements = make(map[string]*EnrichedDiffSingleRelationship, len(r.Elements))
	for k, el := range r.Elements {
		out.Elements[k] = el.Clone()
	}
	out.NodeUUIDs = append([]string(nil), r.NodeUUIDs...)
	return &out
}

// AddChildNode nests a child node UUID under the relationship once.
func (r *EnrichedDiffRelationship) AddChildNode(uuid string) {
	for _, existing := range r.NodeUUIDs {
		if existing == uuid {
			return
		}
	}
	r.NodeUUIDs = append(r.NodeUUIDs, uuid)
	sort.Strings(r.NodeUUIDs)
}

// SortedElements returns the elements ordered by peer id.
func (r *EnrichedDiffRelationship) SortedElements() []*EnrichedDiffSingleRelationship {
	out := make([]*EnrichedDiffSingleRelationship, 0, len(r.Elements))
	for _, el := range r.Elements {
		out = append(out, el)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PeerID < out[j].PeerID })
	return out
}

type EnrichedDiffNode struct {
	UUID           string                               `json:"uuid"`
	Kind           string                               `json:"kind"`
	Label          string                               `json:"label,omitempty"`
	Action         Action                               `json:"action"`
	ChangedAt      Timestamp                            `json:"changed_at"`
	PathIdentifier string                               `json:"path_identifier"`
	Conflict       *EnrichedDiffConflict                `json:"conflict,omitempty"`
	Attributes     map[string]*EnrichedDiffAttribute    `json:"attributes"`
	Relationships  map[string]*EnrichedDiffRelationship `json:"relationships"`
	DiffSummary
}

func NewEnrichedNode(uuid, kind string, action Action, changedAt Timestamp) *EnrichedDiffNode {
	return &EnrichedDiffNode{
		UUID:          uuid,
		Kind:          kind,
		Action:        action,
		ChangedAt:     changedAt,
		Attributes:    make(map[string]*EnrichedDiffAttribute),
		Relationships: make(map[string]*EnrichedDiffRelationship),
	}
}

func (n *EnrichedDiffNode) Clone() *EnrichedDiffNode {
	out := *n
	out.Conflict = n.Conflict.Clone()
	out.Attributes = make(map[string]*EnrichedDiffAttribute, len(n.Attributes))
	for k, a := range n.Attributes {
		out.Attributes[k] = a.Clone()
	}
	out.Relationships = make(map[string]*EnrichedDiffRelationship, len(n.Relationships))
	for k, r := range n.Relationships {
		out.Relationships[k] = r.Clone()
	}
	return &out
}

// SortedAttributes returns the attributes ordered by name.
func (n *EnrichedDiffNode) SortedAttributes() []*EnrichedDiffAttribute {
	out := make([]*EnrichedDiffAttribute, 0, len(n.Attributes))
	for _, a := range n.Attributes {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SortedRelationships returns the relationships ordered by name.
func (n *EnrichedDiffNode) SortedRelationships() []*EnrichedDiffRelationship {
	out := make([]*EnrichedDiffRelationship, 0, len(n.Relationships))
	for _, r := range n.Relationships {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// EnrichedDiffRoot is the client-facing diff of one branch pair over [FromTime, ToTime).
type EnrichedDiffRoot struct {
	UUID           string                       `json:"uuid"`
	BaseBranchName string                       `json:"base_branch"`
	DiffBranchName string                       `json:"diff_branch"`
	FromTime       Timestamp                    `json:"from_time"`
	ToTime         Timestamp                    `json:"to_time"`
	TrackingID     TrackingID                   `json:"tracking_id,omitempty"`
	Nodes          map[string]*EnrichedDiffNode `json:"nodes"`
	DiffSummary
}

func NewEnrichedRoot(uuid, baseBranch, diffBranch string, from, to Timestamp) *EnrichedDiffRoot {
	return &EnrichedDiffRoot{
		UUID:           uuid,
		BaseBranchName: baseBranch,
		DiffBranchName: diffBranch,
		FromTime:       from,
		ToTime:         to,
		Nodes:          make(map[string]*EnrichedDiffNode),
	}
}

func (r *EnrichedDiffRoot) Node(uuid string) (*EnrichedDiffNode, bool) {
	n, ok := r.Nodes[uuid]
	return n, ok
}

func (r *EnrichedDiffRoot) AddNode(n *EnrichedDiffNode) {
	r.Nodes[n.UUID] = n
}

// SortedNodes returns the nodes ordered by UUID.
func (r *EnrichedDiffRoot) SortedNodes() []*EnrichedDiffNode {
	out := make([]*EnrichedDiffNode, 0, len(r.Nodes))
	for _, n := range r.Nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UUID < out[j].UUID })
	return out
}

func (r *EnrichedDiffRoot) Clone() *EnrichedDiffRoot {
	out := *r
	out.Nodes = make(map[string]*EnrichedDiffNode, len(r.Nodes))
	for k, n := range r.Nodes {
		out.Nodes[k] = n.Clone()
	}
	return &out
}

// IsBranchToItself reports whether this is a base-vs-base diff.
func (r *EnrichedDiffRoot) IsBranchToItself() bool {
	return r.BaseBranchName == r.DiffBranchName
}

// EnrichedDiffs pairs the base-branch and feature-branch diffs of the same window.
type EnrichedDiffs struct {
	BaseBranchDiff *EnrichedDiffRoot
	DiffBranchDiff *EnrichedDiffRoot
}

func cloneValue(v *string) *string {
	if v == nil {
		return nil
	}
	s := *v
	return &s
}

func cloneProperties(in map[PropertyType]*EnrichedDiffProperty) map[PropertyType]*EnrichedDiffProperty {
	out := make(map[PropertyType]*EnrichedDiffProperty, len(in))
	for k, p := range in {
		out[k] = p.Clone()
	}
	return out
}

// SortedProperties returns properties ordered by type.
func SortedProperties(in map[PropertyType]*EnrichedDiffProperty) []*EnrichedDiffProperty {
	out := make([]*EnrichedDiffProperty, 0, len(in))
	for _, p := range in {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PropertyType < out[j].PropertyType })
	return out
}
