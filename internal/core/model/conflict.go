package model

import (
	"strings"

	"github.com/google/uuid"
)

// conflictNamespace seeds the name-based conflict UUIDs.
var conflictNamespace = uuid.MustParse("6f1d4e8a-2c37-4f55-9d0e-3b8a91c2e7d4")

// ConflictUUID derives a conflict's identity from its logical coordinates, so the
// same conflict keeps its UUID every time the diff is recomputed.
func ConflictUUID(coordinates ...string) string {
	return uuid.NewSHA1(conflictNamespace, []byte(strings.Join(coordinates, "/"))).String()
}

type EnrichedDiffConflict struct {
	UUID                string            `json:"uuid"`
	BaseBranchAction    Action            `json:"base_branch_action"`
	BaseBranchValue     *string           `json:"base_branch_value"`
	BaseBranchChangedAt Timestamp         `json:"base_branch_changed_at"`
	BaseBranchLabel     string            `json:"base_branch_label,omitempty"`
	DiffBranchAction    Action            `json:"diff_branch_action"`
	DiffBranchValue     *string           `json:"diff_branch_value"`
	DiffBranchChangedAt Timestamp         `json:"diff_branch_changed_at"`
	DiffBranchLabel     string            `json:"diff_branch_label,omitempty"`
	SelectedBranch      ConflictSelection `json:"selected_branch,omitempty"`
}

func (c *EnrichedDiffConflict) Clone() *EnrichedDiffConflict {
	if c == nil {
		return nil
	}
	out := *c
	out.BaseBranchValue = cloneValue(c.BaseBranchValue)
	out.DiffBranchValue = cloneValue(c.DiffBranchValue)
	return &out
}

// ConflictChangeType tags which part of a node a conflict sits on.
type ConflictChangeType string

const (
	ChangeTypeNode              ConflictChangeType = "node"
	ChangeTypeAttributeValue    ConflictChangeType = "attribute_value"
	ChangeTypeAttributeProperty ConflictChangeType = "attribute_property"
	ChangeTypeRelationshipOne   ConflictChangeType = "relationship_one"
	ChangeTypeRelationshipMany  ConflictChangeType = "relationship_many"
)

// BranchChanges is one side of a flattened conflict.
type BranchChanges struct {
	Branch    string    `json:"branch"`
	Action    Action    `json:"action"`
	NewValue  *string   `json:"new_value"`
	Label     string    `json:"label,omitempty"`
	ChangedAt Timestamp `json:"changed_at"`
}

// DataConflict is the flat form of a conflict marker found in a diff tree.
type DataConflict struct {
	ID             string             `json:"id"`
	Path           string             `json:"path"`
	ConflictType   string             `json:"conflict_type"`
	ChangeType     ConflictChangeType `json:"change_type"`
	Kind           string             `json:"kind"`
	NodeID         string             `json:"node_id"`
	FieldName      string             `json:"field_name,omitempty"`
	PeerID         string             `json:"peer_id,omitempty"`
	PropertyType   PropertyType       `json:"property_type,omitempty"`
	Changes        [2]BranchChanges   `json:"changes"`
	SelectedBranch ConflictSelection  `json:"selected_branch,omitempty"`
}

// ObjectConflict is the payload a check record stores for one conflict.
type ObjectConflict struct {
	ConflictID  string             `json:"conflict_id"`
	Path        string             `json:"path"`
	ChangeType  ConflictChangeType `json:"change_type"`
	Kind        string             `json:"kind"`
	NodeID      string             `json:"node_id"`
	BaseValue   string             `json:"base_value"`
	DiffValue   string             `json:"diff_value"`
	BaseAction  Action             `json:"base_action"`
	DiffAction  Action             `json:"diff_action"`
	SourceLabel string             `json:"source_label,omitempty"`
}

// SameContent reports whether two payloads describe the same conflict, ignoring the id.
func (o ObjectConflict) SameContent(other ObjectConflict) bool {
	o.ConflictID, other.ConflictID = "", ""
	return o == other
}

// CheckRecord is a persisted validator check mirroring one conflict.
type CheckRecord struct {
	ID               string         `json:"id"`
	ProposedChangeID string         `json:"proposed_change_id"`
	Conflict         ObjectConflict `json:"conflict"`
	KeepBranch       KeepBranch     `json:"keep_branch,omitempty"`
	CreatedAt        Timestamp      `json:"created_at"`
}

// CheckResult is the outcome of recording conflicts for a proposed change.
type CheckResult struct {
	ProposedChangeID string        `json:"proposed_change_id"`
	Success          bool          `json:"success"`
	Checks           []CheckRecord `json:"checks"`
}
