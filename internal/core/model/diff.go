package model

import (
	"fmt"
	"sort"
)

// DiffValue is one timestamped value a property held on a branch.
type DiffValue struct {
	Value     *string    `json:"value"`
	ChangedAt Timestamp  `json:"changed_at"`
	Status    EdgeStatus `json:"status"`
}

// before orders values chronologically; at the same instant a deletion comes first
// so that a same-instant swap reads as a replacement.
func (v DiffValue) before(other DiffValue) bool {
	if c := v.ChangedAt.Compare(other.ChangedAt); c != 0 {
		return c < 0
	}
	return v.Status == StatusDeleted && other.Status != StatusDeleted
}

// DiffProperty holds the ordered history of one property inside a diff window.
type DiffProperty struct {
	Type     PropertyType
	PeerKind string

	values       []DiffValue
	basePrevious *DiffValue
}

func NewDiffProperty(pt PropertyType) *DiffProperty {
	return &DiffProperty{Type: pt}
}

func (p *DiffProperty) AddValue(v DiffValue) {
	i := sort.Search(len(p.values), func(i int) bool { return v.before(p.values[i]) })
	p.values = append(p.values, DiffValue{})
	copy(p.values[i+1:], p.values[i:])
	p.values[i] = v
}

func (p *DiffProperty) Values() []DiffValue {
	out := make([]DiffValue, len(p.values))
	copy(out, p.values)
	return out
}

// SetBasePrevious overrides the previous value with the base branch's record.
func (p *DiffProperty) SetBasePrevious(v *string) {
	p.basePrevious = &DiffValue{Value: v, Status: StatusActive}
}

// PreviousValue is the value the property held when the window opened.
func (p *DiffProperty) PreviousValue(from Timestamp) *string {
	if p.basePrevious != nil {
		return p.basePrevious.Value
	}
	var (
		prev  *string
		found bool
	)
	for _, v := range p.values {
		if !v.ChangedAt.Before(from) {
			if !found && v.Status == StatusDeleted {
				return v.Value
			}
			break
		}
		found = true
		if v.Status == StatusActive {
			prev = v.Value
		} else {
			prev = nil
		}
	}
	return prev
}

// NewValue is the value the property holds at the end of the window.
func (p *DiffProperty) NewValue() *string {
	if len(p.values) == 0 {
		return nil
	}
	last := p.values[len(p.values)-1]
	if last.Status == StatusDeleted {
		return nil
	}
	return last.Value
}

func (p *DiffProperty) ChangedAt() Timestamp {
	if len(p.values) == 0 {
		return Timestamp{}
	}
	return p.values[len(p.values)-1].ChangedAt
}

// ChangedInWindow reports whether any recorded value changed at or after from.
func (p *DiffProperty) ChangedInWindow(from Timestamp) bool {
	return len(p.values) > 0 && !p.ChangedAt().Before(from)
}

func (p *DiffProperty) Action(from Timestamp) Action {
	if !p.ChangedInWindow(from) {
		return ActionUnchanged
	}
	return ActionForValues(p.PreviousValue(from), p.NewValue())
}

// ActionForValues derives an action from a property's previous and new values.
func ActionForValues(previous, updated *string) Action {
	switch {
	case EqualValues(previous, updated):
		return ActionUnchanged
	case IsNullValue(previous):
		return ActionAdded
	case IsNullValue(updated):
		return ActionRemoved
	default:
		return ActionUpdated
	}
}

// EdgeEvents folds the add and delete events of one structural edge. The
// latest event decides the action; the earliest one tells whether the edge was
// created inside the window.
type EdgeEvents struct {
	ChangedAt Timestamp
	Status    EdgeStatus

	seen     bool
	earliest DiffValue
}

// Observe records one event. Events may arrive in any order.
func (e *EdgeEvents) Observe(changedAt Timestamp, status EdgeStatus) {
	next := DiffValue{ChangedAt: changedAt, Status: status}
	if !e.seen {
		e.seen = true
		e.ChangedAt, e.Status = changedAt, status
		e.earliest = next
		return
	}
	if (DiffValue{ChangedAt: e.ChangedAt, Status: e.Status}).before(next) {
		e.ChangedAt, e.Status = changedAt, status
	}
	if next.before(e.earliest) {
		e.earliest = next
	}
}

func (e *EdgeEvents) Action(from Timestamp) Action {
	return ActionFor(e.ChangedAt, from, e.Status)
}

// NetZero reports an edge created at or after from and deleted again before
// the window closed.
func (e *EdgeEvents) NetZero(from Timestamp) bool {
	return e.seen &&
		e.earliest.Status == StatusActive &&
		!e.earliest.ChangedAt.Before(from) &&
		e.Status == StatusDeleted
}

type DiffAttribute struct {
	EdgeEvents
	UUID       string
	Name       string
	Properties map[PropertyType]*DiffProperty
}

func (a *DiffAttribute) Property(pt PropertyType) *DiffProperty {
	prop, ok := a.Properties[pt]
	if !ok {
		prop = NewDiffProperty(pt)
		a.Properties[pt] = prop
	}
	return prop
}

// DiffRelationshipElement is one peer of a relationship. An element added and
// removed inside the window stays Removed; cardinality-one consolidation reads
// it as the replaced peer.
type DiffRelationshipElement struct {
	EdgeEvents
	PeerID     string
	PeerKind   string
	Properties map[PropertyType]*DiffProperty
}

func (e *DiffRelationshipElement) Property(pt PropertyType) *DiffProperty {
	prop, ok := e.Properties[pt]
	if !ok {
		prop = NewDiffProperty(pt)
		e.Properties[pt] = prop
	}
	return prop
}

type DiffRelationship struct {
	Name        string
	Identifier  string
	Cardinality Cardinality
	Kind        RelationshipKind
	Elements    map[string]*DiffRelationshipElement
}

func (r *DiffRelationship) Element(peerID, peerKind string) *DiffRelationshipElement {
	el, ok := r.Elements[peerID]
	if !ok {
		el = &DiffRelationshipElement{
			PeerID:     peerID,
			PeerKind:   peerKind,
			Properties: make(map[PropertyType]*DiffProperty),
		}
		r.Elements[peerID] = el
	}
	return el
}

// ChangedAt is the latest change among the relationship's elements.
func (r *DiffRelationship) ChangedAt() Timestamp {
	var latest Timestamp
	for _, el := range r.Elements {
		latest = MaxTimestamp(latest, el.ChangedAt)
	}
	return latest
}

type DiffNode struct {
	EdgeEvents
	UUID          NodeUUID
	Kind          string
	Attributes    map[string]*DiffAttribute
	Relationships map[string]*DiffRelationship
}

// Attribute returns the named attribute, registering it on first sight, and
// records the HAS_ATTRIBUTE event.
func (n *DiffNode) Attribute(id, name string, changedAt Timestamp, status EdgeStatus) *DiffAttribute {
	attr, ok := n.Attributes[name]
	if !ok {
		attr = &DiffAttribute{
			UUID:       id,
			Name:       name,
			Properties: make(map[PropertyType]*DiffProperty),
		}
		n.Attributes[name] = attr
	}
	attr.Observe(changedAt, status)
	return attr
}

func (n *DiffNode) Relationship(name string) (*DiffRelationship, bool) {
	rel, ok := n.Relationships[name]
	return rel, ok
}

func (n *DiffNode) AddRelationship(rel *DiffRelationship) *DiffRelationship {
	if existing, ok := n.Relationships[rel.Name]; ok {
		return existing
	}
	if rel.Elements == nil {
		rel.Elements = make(map[string]*DiffRelationshipElement)
	}
	n.Relationships[rel.Name] = rel
	return rel
}

// DiffRoot is one branch's raw diff for the half-open window [from, to).
type DiffRoot struct {
	uuid   string
	branch BranchName
	from   Timestamp
	to     Timestamp
	nodes  map[NodeUUID]*DiffNode
}

func NewDiffRoot(uuid string, branch BranchName, from, to Timestamp) *DiffRoot {
	return &DiffRoot{
		uuid:   uuid,
		branch: branch,
		from:   from,
		to:     to,
		nodes:  make(map[NodeUUID]*DiffNode),
	}
}

func (r *DiffRoot) UUID() string { return r.uuid }

func (r *DiffRoot) Branch() BranchName { return r.branch }

func (r *DiffRoot) From() Timestamp { return r.from }

func (r *DiffRoot) To() Timestamp { return r.to }

// Node returns the node or ErrNodeNotFound.
func (r *DiffRoot) Node(id NodeUUID) (*DiffNode, error) {
	n, ok := r.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s on branch %s", ErrNodeNotFound, id, r.branch)
	}
	return n, nil
}

// EnsureNode returns the node, registering it on first sight, and records the
// IS_PART_OF event. The kind is fixed by the first registration.
func (r *DiffRoot) EnsureNode(id NodeUUID, kind string, changedAt Timestamp, status EdgeStatus) *DiffNode {
	n, ok := r.nodes[id]
	if !ok {
		n = &DiffNode{
			UUID:          id,
			Kind:          kind,
			Attributes:    make(map[string]*DiffAttribute),
			Relationships: make(map[string]*DiffRelationship),
		}
		r.nodes[id] = n
	}
	n.Observe(changedAt, status)
	return n
}

// DropNetZero removes nodes and attributes created and deleted inside the
// window.
func (r *DiffRoot) DropNetZero() {
	for id, n := range r.nodes {
		if n.NetZero(r.from) {
			delete(r.nodes, id)
			continue
		}
		for name, attr := range n.Attributes {
			if attr.NetZero(r.from) {
				delete(n.Attributes, name)
			}
		}
	}
}

func (r *DiffRoot) Len() int { return len(r.nodes) }

// Nodes returns the nodes ordered by UUID.
func (r *DiffRoot) Nodes() []*DiffNode {
	out := make([]*DiffNode, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UUID < out[j].UUID })
	return out
}

// Properties visits every property of the tree.
func (r *DiffRoot) Properties(fn func(*DiffProperty)) {
	for _, n := range r.nodes {
		for _, attr := range n.Attributes {
			for _, p := range attr.Properties {
				fn(p)
			}
		}
		for _, rel := range n.Relationships {
			for _, el := range rel.Elements {
				for _, p := range el.Properties {
					fn(p)
				}
			}
		}
	}
}

// CalculatedDiffs pairs the base-branch and feature-branch roots of one calculation.
// BaseRoot is nil when the base branch did not change inside the window.
type CalculatedDiffs struct {
	BaseBranchName string
	DiffBranchName string
	BaseRoot       *DiffRoot
	DiffRoot       *DiffRoot
}
