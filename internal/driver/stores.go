package driver

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/agenthands/graphdiff/internal/core/enrich"
	"github.com/agenthands/graphdiff/internal/core/model"
	"github.com/agenthands/graphdiff/internal/schema"
)

// branchesFor is the visibility set of a branch: itself plus the default branch.
func branchesFor(branch, defaultBranch string) []string {
	if branch == defaultBranch || defaultBranch == "" {
		return []string{branch}
	}
	return []string{branch, defaultBranch}
}

type BranchStore struct {
	driver GraphDriver
}

func NewBranchStore(driver GraphDriver) *BranchStore {
	return &BranchStore{driver: driver}
}

func (s *BranchStore) Branch(ctx context.Context, name string) (model.Branch, error) {
	result, err := s.driver.ExecuteQuery(ctx, GetBranchQuery, map[string]any{"name": name})
	if err != nil {
		return model.Branch{}, fmt.Errorf("failed to load branch %s: %w", name, err)
	}
	if len(result.Records) == 0 {
		return model.Branch{}, fmt.Errorf("%w: %s", model.ErrBranchNotFound, name)
	}
	rec := result.Records[0]

	branch := model.Branch{Name: name}
	createdAt, err := timestampValue(rec, "created_at")
	if err != nil {
		return model.Branch{}, err
	}
	branch.CreatedAt = createdAt.Time()
	if branch.OriginBranch, err = optionalString(rec, "origin_branch"); err != nil {
		return model.Branch{}, err
	}
	isDefault, _, err := neo4j.GetRecordValue[bool](rec, "is_default")
	if err != nil {
		return model.Branch{}, fmt.Errorf("column is_default: %w", err)
	}
	branch.IsDefault = isDefault
	return branch, nil
}

// LabelStore resolves node display labels from their label attribute.
type LabelStore struct {
	driver         GraphDriver
	defaultBranch  string
	labelAttribute string
}

func NewLabelStore(driver GraphDriver, defaultBranch, labelAttribute string) *LabelStore {
	if labelAttribute == "" {
		labelAttribute = "name"
	}
	return &LabelStore{driver: driver, defaultBranch: defaultBranch, labelAttribute: labelAttribute}
}

func (s *LabelStore) Labels(ctx context.Context, requests []enrich.LabelRequest) (map[enrich.LabelKey]string, error) {
	out := make(map[enrich.LabelKey]string)
	if len(requests) == 0 {
		return out, nil
	}
	params := make([]map[string]any, 0, len(requests))
	for _, req := range requests {
		params = append(params, map[string]any{
			"branch":   req.Branch,
			"branches": branchesFor(req.Branch, s.defaultBranch),
			"ids":      req.IDs,
		})
	}

	result, err := s.driver.ExecuteQuery(ctx, GetNodeLabelsQuery, map[string]any{
		"requests":        params,
		"label_attribute": s.labelAttribute,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load labels: %w", err)
	}
	for _, rec := range result.Records {
		branch, err := stringValue(rec, "branch")
		if err != nil {
			return nil, err
		}
		id, err := stringValue(rec, "id")
		if err != nil {
			return nil, err
		}
		label, err := optionalString(rec, "label")
		if err != nil {
			return nil, err
		}
		if label != nil {
			out[enrich.LabelKey{Branch: branch, ID: id}] = *label
		}
	}
	return out, nil
}

// ParentStore looks up hierarchical parents through the kind's parent relationship.
type ParentStore struct {
	driver        GraphDriver
	schema        schema.Provider
	defaultBranch string
}

func NewParentStore(driver GraphDriver, provider schema.Provider, defaultBranch string) *ParentStore {
	return &ParentStore{driver: driver, schema: provider, defaultBranch: defaultBranch}
}

func (s *ParentStore) Parents(ctx context.Context, branch, kind string, ids []string) (map[string]enrich.Parent, error) {
	out := make(map[string]enrich.Parent)
	ns, err := s.schema.NodeSchema(kind, branch)
	if err != nil {
		return nil, err
	}
	rel, ok := ns.ParentRelationship()
	if !ok || len(ids) == 0 {
		return out, nil
	}

	result, err := s.driver.ExecuteQuery(ctx, GetParentsQuery, map[string]any{
		"ids":        ids,
		"identifier": rel.Identifier,
		"branches":   branchesFor(branch, s.defaultBranch),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load parents of %s: %w", kind, err)
	}
	for _, rec := range result.Records {
		id, err := stringValue(rec, "id")
		if err != nil {
			return nil, err
		}
		parentID, err := stringValue(rec, "parent_id")
		if err != nil {
			return nil, err
		}
		parentKind, err := stringValue(rec, "parent_kind")
		if err != nil {
			return nil, err
		}
		if parentKind == "" {
			parentKind = rel.Peer
		}
		out[id] = enrich.Parent{ID: parentID, Kind: parentKind}
	}
	return out, nil
}

type ProposedChangeStore struct {
	driver GraphDriver
}

func NewProposedChangeStore(driver GraphDriver) *ProposedChangeStore {
	return &ProposedChangeStore{driver: driver}
}

// OpenProposedChanges returns the ids of the open proposed changes merging sourceBranch.
func (s *ProposedChangeStore) OpenProposedChanges(ctx context.Context, sourceBranch string) ([]string, error) {
	result, err := s.driver.ExecuteQuery(ctx, GetOpenProposedChangesQuery, map[string]any{"source_branch": sourceBranch})
	if err != nil {
		return nil, fmt.Errorf("failed to list proposed changes for %s: %w", sourceBranch, err)
	}
	ids := make([]string, 0, len(result.Records))
	for _, rec := range result.Records {
		id, err := stringValue(rec, "uuid")
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
